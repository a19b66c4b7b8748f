package datefmt

import (
	"testing"
	"time"
)

func TestParseIn(t *testing.T) {
	t.Parallel()

	utc := time.UTC
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"day-mon-year", "01-Feb-1982", "1982-02-01"},
		{"single digit day", "7-mar-2001", "2001-03-07"},
		{"mon-day-year", "Feb-01-1982", "1982-02-01"},
		{"upper month", "12-DEC-1999", "1999-12-12"},
		{"bad month falls through", "01-Foo-1982", "01-Foo-1982"},
		{"canonical datetime", "2023-01-01 00:00:00", "2023-01-01 00:00:00"},
		{"canonical date", "2023-01-01", "2023-01-01"},
		{"iso with fraction and zone", "2023-05-01T10:00:00.000Z", "2023-05-01 10:00:00"},
		{"iso with offset", "2023-05-01T10:00:00+02:00", "2023-05-01 10:00:00"},
		{"generic", "May 8, 2009 5:57:51 PM", "2009-05-08 17:57:51"},
		{"garbage", "garbage", "garbage"},
		{"empty", "", nil},
		{"sentinel", "N/A", nil},
		{"sentinel null", "null", nil},
		{"nil", nil, nil},
		{"epoch millis", int64(1700000000000), "2023-11-14 22:13:20"},
		{"bool kept", true, true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ParseIn(tt.in, utc); got != tt.want {
				t.Fatalf("ParseIn(%#v)=%#v, want %#v", tt.in, got, tt.want)
			}
		})
	}
}

func TestIsCanonical(t *testing.T) {
	t.Parallel()

	for s, want := range map[string]bool{
		"2023-01-01":          true,
		"2023-01-01 10:11:12": true,
		"2023-01-01T10:11:12": false,
		"01-Feb-1982":         false,
		"":                    false,
	} {
		if got := IsCanonical(s); got != want {
			t.Fatalf("IsCanonical(%q)=%v, want %v", s, got, want)
		}
	}
}

func TestParseCanonical(t *testing.T) {
	t.Parallel()

	got, ok := ParseCanonical("2023-01-02 03:04:05")
	if !ok || !got.Equal(time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Fatalf("ParseCanonical datetime=%v,%v", got, ok)
	}
	got, ok = ParseCanonical("2023-01-02")
	if !ok || !got.Equal(time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("ParseCanonical date=%v,%v", got, ok)
	}
	if _, ok := ParseCanonical("garbage"); ok {
		t.Fatalf("ParseCanonical(garbage) ok=true")
	}
}
