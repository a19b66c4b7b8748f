package sqlgen

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"tiksql/internal/classify"
	"tiksql/internal/dataset"
	"tiksql/internal/datefmt"
	pjson "tiksql/internal/parser/json"
)

// ValueFormatter renders row values as SQL literals for one table.
type ValueFormatter struct {
	DateFields    []string
	NumericFields []string
	// Location is used when a non-canonical date is re-parsed. Defaults to time.Local.
	Location *time.Location
}

func in(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}

// Format returns the literal for v in column.
//
// Edge cases:
//   - nil and "" are NULL; so are NaN and infinities.
//   - Numbers and booleans (1/0) are written bare.
//   - Date columns re-parse non-canonical strings; sentinels become NULL.
//   - Numeric columns (explicit or by name) parse the leading number, else NULL.
//   - Objects and arrays are written as quoted JSON.
//   - Everything else is quoted with ' doubled.
func (f ValueFormatter) Format(column string, v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case string:
		if t == "" {
			return "NULL"
		}
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return "NULL"
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		if t {
			return "1"
		}
		return "0"
	}

	if in(f.DateFields, column) {
		s, ok := v.(string)
		if !ok {
			return quoteValue(v)
		}
		if datefmt.IsSentinel(s) {
			return "NULL"
		}
		if !datefmt.IsCanonical(s) {
			loc := f.Location
			if loc == nil {
				loc = time.Local
			}
			if p, ok := datefmt.ParseIn(s, loc).(string); ok && p != "" {
				s = p
			}
		}
		return quote(s)
	}

	if in(f.NumericFields, column) || classify.IsNumericName(column) {
		s, ok := v.(string)
		if !ok || datefmt.IsSentinel(s) {
			return "NULL"
		}
		n, ok := classify.ParseNumber(s)
		if !ok {
			return "NULL"
		}
		return f.Format(column, n)
	}

	return quoteValue(v)
}

// quoteValue quotes v, rendering objects and arrays as JSON.
func quoteValue(v any) string {
	switch t := v.(type) {
	case *pjson.Object, []any, map[string]any:
		b, err := json.Marshal(t)
		if err != nil {
			return "''"
		}
		return quote(string(b))
	case string:
		return quote(t)
	}
	return quote(fmt.Sprint(v))
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Insert returns the INSERT for row, with the row's columns in order, or ""
// when the row is empty.
func (f ValueFormatter) Insert(table string, row *dataset.Row) string {
	keys := row.Keys()
	if len(keys) == 0 {
		return ""
	}
	vals := make([]string, len(keys))
	for i, k := range keys {
		v, _ := row.Get(k)
		vals[i] = f.Format(k, v)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s);", table, strings.Join(keys, ", "), strings.Join(vals, ", "))
}
