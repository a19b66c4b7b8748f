// Package classify decides whether a field holds a date, a number, or text.
//
// Precedence (first match wins):
//  1. explicit integer/numeric override on the target column -> Numeric
//  2. numeric suffix pattern on the field name -> Numeric
//  3. non-date allow-list (exact or case-insensitive substring) -> Text
//  4. explicit date override on the target column, or a date pattern -> Date
//  5. Text
//
// Numeric rules run before the allow-list so that "follower_count" is a number
// rather than merely "not a date"; the allow-list then keeps names such as
// "amount_paid_date" from being read as dates.
package classify

import (
	"regexp"
	"strings"
)

// Kind is the classification result.
type Kind int

const (
	Text Kind = iota
	Date
	Numeric
)

func (k Kind) String() string {
	switch k {
	case Date:
		return "date"
	case Numeric:
		return "numeric"
	default:
		return "text"
	}
}

// Overrides are the per-entry explicit column sets.
type Overrides struct {
	DateFields    []string
	NumericFields []string
	IntegerFields []string
}

var nonDateFields = []string{
	"followerCount", "followingCount", "likesCount", "totalLikes", "totalViews",
	"follower_count", "following_count", "likes_count", "total_likes", "total_views",
	"count", "amount", "number", "total", "quantity", "score", "rating", "duration",
	"coinAmount", "coin_amount", "giftAmount", "gift_amount", "price", "cost",
}

var numericPattern = regexp.MustCompile(`(?i)(count|amount|number|total|quantity|score|rating|duration|price|cost|value|size|length|width|height|weight|age|percent|percentage|ratio|frequency|rate)$`)

var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(date|time|_at|start|end|deleted)$`),
	regexp.MustCompile(`(?i)birth|created|updated|live_`),
}

// Classify is ClassifyField with the same name as source field and target column.
func Classify(name string, o Overrides) Kind {
	return ClassifyField(name, name, o)
}

// ClassifyField classifies a source field mapped to a target column. Overrides
// are matched against column; patterns are matched against source.
func ClassifyField(source, column string, o Overrides) Kind {
	if in(o.IntegerFields, column) || in(o.NumericFields, column) {
		return Numeric
	}
	if IsNumericName(source) {
		return Numeric
	}
	if IsNonDate(source) {
		return Text
	}
	if in(o.DateFields, column) || IsDateName(source) {
		return Date
	}
	return Text
}

// IsNumericName reports whether name matches a numeric suffix pattern.
func IsNumericName(name string) bool {
	return name != "" && numericPattern.MatchString(name)
}

// IsDateName reports whether name looks like a date/time field and is not on
// the non-date allow-list. RawTime is an epoch integer, never a date string.
func IsDateName(name string) bool {
	if name == "" || name == "RawTime" || IsNonDate(name) || IsNumericName(name) {
		return false
	}
	for _, p := range datePatterns {
		if p.MatchString(name) {
			return true
		}
	}
	return false
}

// IsNonDate reports whether name is on the non-date allow-list.
func IsNonDate(name string) bool {
	lower := strings.ToLower(name)
	for _, f := range nonDateFields {
		if name == f || strings.Contains(lower, strings.ToLower(f)) {
			return true
		}
	}
	return false
}

func in(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}
