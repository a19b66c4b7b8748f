// Package pathres navigates dot-separated paths through a decoded export document.
//
// Section names in real exports drift ("Income+ Wallet" vs "Income Wallet"), so
// any segment containing a non-alphanumeric character is matched against the
// object's keys after folding both sides to bare ASCII letters and digits.
package pathres

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	pjson "tiksql/internal/parser/json"
)

// Wildcard stops resolution and returns the subtree reached so far.
const Wildcard = "*"

// Resolve walks path through doc.
//
// Edge cases:
//   - Empty path or nil doc returns nil.
//   - A "*" segment returns the current value; the caller iterates it.
//   - Any missing segment returns nil. Absence is not an error.
//   - A numeric segment indexes into an array.
func Resolve(doc any, path string) any {
	if doc == nil || path == "" {
		return nil
	}
	cur := doc
	for _, seg := range strings.Split(path, ".") {
		if cur == nil {
			return nil
		}
		if seg == Wildcard {
			return cur
		}
		next, ok := step(cur, seg)
		if !ok {
			return nil
		}
		cur = next
	}
	return cur
}

func step(cur any, seg string) (any, bool) {
	switch v := cur.(type) {
	case *pjson.Object:
		if val, ok := v.Get(seg); ok {
			return val, true
		}
		if !needsFold(seg) {
			return nil, false
		}
		want := Fold(seg)
		for _, k := range v.Keys() {
			if Fold(k) == want {
				val, _ := v.Get(k)
				return val, true
			}
		}
		return nil, false
	case []any:
		i, err := strconv.Atoi(seg)
		if err != nil || i < 0 || i >= len(v) {
			return nil, false
		}
		return v[i], true
	default:
		return nil, false
	}
}

func needsFold(seg string) bool {
	for _, r := range seg {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return true
		}
	}
	return false
}

// Fold strips accents and every character that is not an ASCII letter or digit.
func Fold(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if r <= unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Shape names the kind of value found at a path.
type Shape string

const (
	ShapeMissing Shape = "missing"
	ShapeObject  Shape = "object"
	ShapeArray   Shape = "array"
	ShapeScalar  Shape = "scalar"
)

// ShapeOf classifies v.
func ShapeOf(v any) Shape {
	switch v.(type) {
	case nil:
		return ShapeMissing
	case *pjson.Object:
		return ShapeObject
	case []any:
		return ShapeArray
	default:
		return ShapeScalar
	}
}
