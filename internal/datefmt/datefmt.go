// Package datefmt normalizes the date spellings found in exports to the
// SQLite-friendly "YYYY-MM-DD HH:MM:SS" / "YYYY-MM-DD" forms.
package datefmt

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// Layouts of the canonical forms.
const (
	DateTimeLayout = "2006-01-02 15:04:05"
	DateLayout     = "2006-01-02"
)

var (
	dayMonYear = regexp.MustCompile(`^(\d{1,2})-([A-Za-z]{3})-(\d{4})$`)
	monDayYear = regexp.MustCompile(`^([A-Za-z]{3})-(\d{1,2})-(\d{4})$`)
	canonDT    = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}$`)
	canonD     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	isoPrefix  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}`)
)

var months = [...]string{"jan", "feb", "mar", "apr", "may", "jun", "jul", "aug", "sep", "oct", "nov", "dec"}

// IsSentinel reports whether s is one of the "absent" markers used by exports.
func IsSentinel(s string) bool {
	return s == "N/A" || s == "null" || s == "NULL"
}

// IsCanonical reports whether s is already "YYYY-MM-DD HH:MM:SS" or "YYYY-MM-DD".
func IsCanonical(s string) bool {
	return canonDT.MatchString(s) || canonD.MatchString(s)
}

// Parse normalizes v using the local time zone. See ParseIn.
func Parse(v any) any {
	return ParseIn(v, time.Local)
}

// ParseIn normalizes a date value.
//
// Rules, in order:
//   - nil, "", and sentinels -> nil
//   - "01-Feb-1982" / "Feb-01-1982" -> "1982-02-01"
//   - canonical forms pass through
//   - "YYYY-MM-DDTHH:MM:SS..." -> "YYYY-MM-DD HH:MM:SS" (fraction and zone dropped)
//   - anything dateparse understands -> "YYYY-MM-DD HH:MM:SS" in loc
//   - numbers are epoch milliseconds, formatted in loc
//   - everything else is returned unchanged
func ParseIn(v any, loc *time.Location) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		if t == "" || IsSentinel(t) {
			return nil
		}
		return parseString(t, loc)
	case int64:
		return time.UnixMilli(t).In(loc).Format(DateTimeLayout)
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return v
		}
		return time.UnixMilli(int64(t)).In(loc).Format(DateTimeLayout)
	default:
		return v
	}
}

func parseString(s string, loc *time.Location) string {
	if m := dayMonYear.FindStringSubmatch(s); m != nil {
		if out, ok := ymd(m[3], m[2], m[1]); ok {
			return out
		}
	}
	if m := monDayYear.FindStringSubmatch(s); m != nil {
		if out, ok := ymd(m[3], m[1], m[2]); ok {
			return out
		}
	}
	if IsCanonical(s) {
		return s
	}
	if isoPrefix.MatchString(s) {
		return strings.Replace(s[:19], "T", " ", 1)
	}
	if t, err := dateparse.ParseIn(s, loc); err == nil {
		return t.In(loc).Format(DateTimeLayout)
	}
	return s
}

func ymd(year, mon, day string) (string, bool) {
	mon = strings.ToLower(mon)
	for i, m := range months {
		if m == mon {
			if len(day) == 1 {
				day = "0" + day
			}
			return fmt.Sprintf("%s-%02d-%s", year, i+1, day), true
		}
	}
	return "", false
}

// ParseCanonical parses a canonical value as UTC: "YYYY-MM-DD HH:MM:SS" or
// "YYYY-MM-DD" (midnight). Other strings fail.
func ParseCanonical(s string) (time.Time, bool) {
	layout := DateLayout
	if strings.Contains(s, " ") {
		layout = DateTimeLayout
	}
	t, err := time.ParseInLocation(layout, s, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
