package extract

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"tiksql/internal/catalog"
	"tiksql/internal/classify"
	"tiksql/internal/dataset"
	"tiksql/internal/datefmt"
	pjson "tiksql/internal/parser/json"
)

// RawTimeField is always an epoch integer, whatever the classifier says.
const RawTimeField = "RawTime"

var (
	numericLiteral = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
	intPrefix      = regexp.MustCompile(`^[+-]?\d+`)
)

// ExtractRow converts one source object into a row using the entry's column map,
// formatting dates in the local zone.
//
// Edge cases:
//   - Absent, null and "" source values produce no column.
//   - "N/A", "null" and "NULL" produce a column holding nil.
//   - Unparsable numeric values keep their original value.
//   - Unparsable date values are returned unchanged by the date parser.
func ExtractRow(src *pjson.Object, e catalog.Entry) *dataset.Row {
	return extractRowIn(src, e, time.Local)
}

func extractRowIn(src *pjson.Object, e catalog.Entry, loc *time.Location) *dataset.Row {
	row := dataset.NewRow()
	if src == nil {
		return row
	}
	o := classify.Overrides{DateFields: e.DateFields, NumericFields: e.NumericFields, IntegerFields: e.IntegerFields}

	for _, c := range e.Columns {
		v, ok := src.Get(c.Source)
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr {
			if s == "" {
				continue
			}
			if datefmt.IsSentinel(s) {
				row.Set(c.Target, nil)
				continue
			}
		}
		row.Set(c.Target, coerce(v, c, e, o, loc))
	}
	return row
}

func coerce(v any, c catalog.Column, e catalog.Entry, o classify.Overrides, loc *time.Location) any {
	if c.Source == RawTimeField || e.IsInteger(c.Target) {
		if n, ok := parseInt(v); ok {
			return n
		}
		return v
	}
	switch classify.ClassifyField(c.Source, c.Target, o) {
	case classify.Numeric:
		if n, ok := parseFloat(v); ok {
			return n
		}
		return v
	case classify.Date:
		return datefmt.ParseIn(v, loc)
	}
	if s, ok := v.(string); ok && numericLiteral.MatchString(s) {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return classify.Number(f)
		}
	}
	return v
}

// parseFloat accepts numbers and strings with a leading decimal literal
// ("12.5kg" -> 12.5). Surrounding whitespace is ignored.
func parseFloat(v any) (any, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case float64:
		return t, !math.IsNaN(t)
	case bool:
		return nil, false
	case string:
		return classify.ParseNumber(t)
	default:
		return nil, false
	}
}

// parseInt accepts numbers (truncated) and strings with a leading integer literal.
func parseInt(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, false
		}
		return int64(t), true
	case string:
		m := intPrefix.FindString(strings.TrimSpace(t))
		if m == "" {
			return 0, false
		}
		n, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// CleanKey turns a dynamic conversation key ("Chat History with Bob:") into
// its identifier ("Bob").
func CleanKey(key string) string {
	k := strings.ReplaceAll(key, "Chat History with ", "")
	k = strings.ReplaceAll(k, "Group Chat with ", "")
	k = strings.ReplaceAll(k, ":", "")
	return strings.TrimSpace(k)
}

func stringOf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
