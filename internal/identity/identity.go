// Package identity derives the synthetic user id for an export.
//
// The id is a short, stable, human-traceable number derived from the username
// with a DJB2-style rolling hash, so that exports of the same account loaded
// into one database share a user_id.
package identity

import (
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"unicode"
	"unicode/utf16"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	idModulus = 1000000
	randomMin = 100000
	randomMax = 999999
)

// Hash returns the id for username, in [1, 1000000].
//
// The hash runs over UTF-16 code units with 32-bit wrapping arithmetic:
// h = (h*33) ^ c, starting at 5381.
func Hash(username string) int64 {
	h := int32(5381)
	for _, c := range utf16.Encode([]rune(username)) {
		h = (h * 33) ^ int32(c)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return v%idModulus + 1
}

// RandomID returns a random id in [100000, 999999] for exports without a username.
func RandomID(r *rand.Rand) int64 {
	if r == nil {
		return randomMin + rand.Int64N(randomMax-randomMin+1)
	}
	return randomMin + r.Int64N(randomMax-randomMin+1)
}

// Registry caches username -> id for the lifetime of an engine so repeated
// extractions stay idempotent even if the hash ever changes.
type Registry struct {
	mu  sync.Mutex
	ids map[string]int64
	rng *rand.Rand
}

// NewRegistry returns an empty registry. r may be nil for the global source.
func NewRegistry(r *rand.Rand) *Registry {
	return &Registry{ids: make(map[string]int64), rng: r}
}

// Resolve returns the id and final username. An empty username gets a random id
// and the synthetic name "unknown_user_<id>"; it is not cached.
func (g *Registry) Resolve(username string) (int64, string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if username == "" {
		id := RandomID(g.rng)
		return id, "unknown_user_" + strconv.FormatInt(id, 10)
	}
	if id, ok := g.ids[username]; ok {
		return id, username
	}
	id := Hash(username)
	g.ids[username] = id
	return id, username
}

// Len returns the number of cached usernames.
func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.ids)
}

// Clear drops every cached username.
func (g *Registry) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ids = make(map[string]int64)
}

// Slug turns a display name into a username candidate: accents folded,
// lowercased, whitespace runs to "_", anything outside [a-z0-9_] dropped,
// at most 50 characters.
func Slug(display string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	folded, _, err := transform.String(t, display)
	if err != nil {
		folded = display
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	inSpace := false
	for _, r := range folded {
		if unicode.IsSpace(r) {
			if !inSpace {
				b.WriteByte('_')
			}
			inSpace = true
			continue
		}
		inSpace = false
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}
	s := b.String()
	if len(s) > 50 {
		s = s[:50]
	}
	return s
}

// FallbackUsername is used when neither the profile nor the display name
// yields a username.
func FallbackUsername(id int64) string {
	return "tiktok_user_" + strconv.FormatInt(id, 10)
}
