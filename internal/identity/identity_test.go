package identity

import (
	"math/rand/v2"
	"strings"
	"testing"
)

func TestHash_KnownValues(t *testing.T) {
	t.Parallel()

	tests := map[string]int64{
		"a":     177605,
		"alice": 933608,
		"bob":   415083,
		"😀x":    165921,
		"a_very_long_username_for_wrapping": 351425,
	}
	for in, want := range tests {
		if got := Hash(in); got != want {
			t.Fatalf("Hash(%q)=%d, want %d", in, got, want)
		}
		if Hash(in) != Hash(in) {
			t.Fatalf("Hash(%q) not deterministic", in)
		}
	}
}

func TestRegistry_Resolve(t *testing.T) {
	t.Parallel()

	g := NewRegistry(rand.New(rand.NewPCG(1, 2)))

	id1, name := g.Resolve("alice")
	id2, _ := g.Resolve("alice")
	if id1 != id2 || id1 != Hash("alice") || name != "alice" {
		t.Fatalf("Resolve(alice)=%d,%d name=%q", id1, id2, name)
	}
	if g.Len() != 1 {
		t.Fatalf("Len=%d, want 1", g.Len())
	}

	id, name := g.Resolve("")
	if id < 100000 || id > 999999 {
		t.Fatalf("random id=%d out of range", id)
	}
	if !strings.HasPrefix(name, "unknown_user_") || strings.TrimPrefix(name, "unknown_user_") == "" {
		t.Fatalf("synthetic name=%q", name)
	}
	if g.Len() != 1 {
		t.Fatalf("empty username must not be cached")
	}

	g.Clear()
	if g.Len() != 0 {
		t.Fatalf("Clear left %d entries", g.Len())
	}
}

func TestRandomID_Range(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewPCG(7, 7))
	for i := 0; i < 1000; i++ {
		if id := RandomID(r); id < 100000 || id > 999999 {
			t.Fatalf("RandomID=%d out of range", id)
		}
	}
	if id := RandomID(nil); id < 100000 || id > 999999 {
		t.Fatalf("RandomID(nil)=%d out of range", id)
	}
}

func TestSlug(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"Alice Smith":       "alice_smith",
		"  José   Núñez ":   "_jose_nunez_",
		"Bob!! 🎉 Jr.":       "bob__jr",
		strings.Repeat("x", 80): strings.Repeat("x", 50),
	}
	for in, want := range tests {
		if got := Slug(in); got != want {
			t.Fatalf("Slug(%q)=%q, want %q", in, got, want)
		}
	}
	if FallbackUsername(42) != "tiktok_user_42" {
		t.Fatalf("FallbackUsername=%q", FallbackUsername(42))
	}
}
