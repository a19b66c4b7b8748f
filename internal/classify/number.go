package classify

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var floatPrefix = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)

// ParseNumber parses the leading decimal literal of s, ignoring surrounding
// whitespace: "12.5kg" is 12.5, "kg" fails. The result is an int64 when the
// value is integral, float64 otherwise.
func ParseNumber(s string) (any, bool) {
	m := floatPrefix.FindString(strings.TrimSpace(s))
	if m == "" {
		return nil, false
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil || math.IsInf(f, 0) {
		return nil, false
	}
	return Number(f), true
}

// Number returns f as an int64 when it is integral and exactly representable,
// float64 otherwise.
func Number(f float64) any {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int64(f)
	}
	return f
}
