package validate

import (
	"math"
	"time"

	"tiksql/internal/catalog"
	"tiksql/internal/dataset"
	"tiksql/internal/datefmt"
)

// FieldStats summarizes one date column.
type FieldStats struct {
	Count     int    `json:"count"`
	NonNull   int    `json:"nonNull"`
	NullCount int    `json:"nullCount"`
	MinDate   string `json:"minDate,omitempty"`
	MaxDate   string `json:"maxDate,omitempty"`
}

// DateRange spans every parsable date of a run.
type DateRange struct {
	Min  string `json:"min"`
	Max  string `json:"max"`
	Days int    `json:"days"`
}

// Overall aggregates across tables.
type Overall struct {
	TotalDateFields int        `json:"totalDateFields"`
	TotalDateValues int        `json:"totalDateValues"`
	DateRange       *DateRange `json:"dateRange"`
}

// Stats is the date summary of a run. ByTable only lists columns holding at
// least one value.
type Stats struct {
	ByTable map[string]map[string]FieldStats `json:"byTable"`
	Overall Overall                          `json:"overall"`
}

type span struct {
	min, max time.Time
	set      bool
}

func (s *span) add(t time.Time) {
	if !s.set || t.Before(s.min) {
		s.min = t
	}
	if !s.set || t.After(s.max) {
		s.max = t
	}
	s.set = true
}

// DateStatistics computes per-column and overall date statistics for every
// table with rows, users included. Values that do not parse as canonical dates
// are counted but excluded from the ranges.
func DateStatistics(cat *catalog.Catalog, ds *dataset.Dataset) Stats {
	out := Stats{ByTable: make(map[string]map[string]FieldStats)}
	var all span

	for _, table := range ds.TableOrder() {
		rows := ds.Tables[table]
		fields := cat.DateFields(table)
		if len(rows) == 0 || len(fields) == 0 {
			continue
		}
		out.ByTable[table] = make(map[string]FieldStats)
		out.Overall.TotalDateFields += len(fields)

		for _, f := range fields {
			var col span
			count := 0
			for _, r := range rows {
				v, _ := r.Get(f)
				if v == nil || v == "" {
					continue
				}
				count++
				s, ok := v.(string)
				if !ok {
					continue
				}
				if t, ok := datefmt.ParseCanonical(s); ok {
					col.add(t)
					all.add(t)
				}
			}
			out.Overall.TotalDateValues += count
			if count == 0 {
				continue
			}
			fs := FieldStats{Count: count, NonNull: count, NullCount: len(rows) - count}
			if col.set {
				fs.MinDate = col.min.Format(datefmt.DateLayout)
				fs.MaxDate = col.max.Format(datefmt.DateLayout)
			}
			out.ByTable[table][f] = fs
		}
	}

	if all.set {
		out.Overall.DateRange = &DateRange{
			Min:  all.min.Format(datefmt.DateLayout),
			Max:  all.max.Format(datefmt.DateLayout),
			Days: int(math.Round(all.max.Sub(all.min).Hours() / 24)),
		}
	}
	return out
}
