// Package dataset holds the in-memory result of one extraction run: ordered rows
// per table, per-table counts, warnings, fatal errors and progress.
package dataset

import (
	"bytes"
	"encoding/json"
	"sort"
	"time"
)

// TimestampLayout is the ISO-8601 UTC layout used on warnings and errors.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Row is one target row. Column order is insertion order, which drives the
// column order of generated DDL and INSERT statements.
type Row struct {
	cols []string
	vals map[string]any
}

// NewRow returns an empty row.
func NewRow() *Row {
	return &Row{vals: make(map[string]any)}
}

// Set stores v under col. A new column is appended; an existing one keeps its position.
func (r *Row) Set(col string, v any) {
	if _, ok := r.vals[col]; !ok {
		r.cols = append(r.cols, col)
	}
	r.vals[col] = v
}

// Get returns the value under col.
func (r *Row) Get(col string) (any, bool) {
	if r == nil {
		return nil, false
	}
	v, ok := r.vals[col]
	return v, ok
}

// Has reports whether col is present (a present column may hold nil).
func (r *Row) Has(col string) bool {
	_, ok := r.Get(col)
	return ok
}

// Delete removes col if present.
func (r *Row) Delete(col string) {
	if _, ok := r.vals[col]; !ok {
		return
	}
	delete(r.vals, col)
	for i, c := range r.cols {
		if c == col {
			r.cols = append(r.cols[:i], r.cols[i+1:]...)
			break
		}
	}
}

// Keys returns column names in insertion order. The slice must not be modified.
func (r *Row) Keys() []string {
	if r == nil {
		return nil
	}
	return r.cols
}

// Len returns the number of columns.
func (r *Row) Len() int {
	if r == nil {
		return 0
	}
	return len(r.cols)
}

// Clone returns a shallow copy.
func (r *Row) Clone() *Row {
	out := &Row{cols: make([]string, len(r.cols)), vals: make(map[string]any, len(r.vals))}
	copy(out.cols, r.cols)
	for k, v := range r.vals {
		out.vals[k] = v
	}
	return out
}

// MarshalJSON writes the row as an object in column order.
func (r *Row) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}
	var b bytes.Buffer
	b.WriteByte('{')
	for i, k := range r.cols {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		b.Write(kb)
		b.WriteByte(':')
		vb, err := json.Marshal(r.vals[k])
		if err != nil {
			return nil, err
		}
		b.Write(vb)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

// Warning is a non-fatal finding. Only the fields relevant to Type are set.
type Warning struct {
	Type      string `json:"type"`
	Path      string `json:"path,omitempty"`
	Table     string `json:"table,omitempty"`
	Field     string `json:"field,omitempty"`
	Row       *int   `json:"row,omitempty"`
	Value     any    `json:"value,omitempty"`
	Expected  string `json:"expected,omitempty"`
	Issue     string `json:"issue,omitempty"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Warning types.
const (
	WarnExtraction     = "extraction_warning"
	WarnDateValidation = "date_validation"
	WarnDataValidation = "data_validation"
)

// RunError is a fatal condition recorded on the dataset before the run fails.
type RunError struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Progress is a snapshot of extraction progress.
type Progress struct {
	Processed    int     `json:"processed"`
	Total        int     `json:"total"`
	Percentage   float64 `json:"percentage"`
	CurrentTable string  `json:"currentTable"`
	CurrentPath  string  `json:"currentPath"`
}

// NewProgress builds a snapshot with the percentage clamped to [0, 100].
func NewProgress(processed, total int, pct float64, table, path string) Progress {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return Progress{Processed: processed, Total: total, Percentage: pct, CurrentTable: table, CurrentPath: path}
}

// Dataset is the mutable result of one run. It is owned by a single extraction
// and handed out read-only afterwards.
type Dataset struct {
	User       *Row              `json:"user"`
	Tables     map[string][]*Row `json:"tables"`
	Statistics map[string]int    `json:"statistics"`
	Warnings   []Warning         `json:"warnings"`
	Errors     []RunError        `json:"errors"`
	Progress   Progress          `json:"progress"`

	order []string
}

// New returns an empty dataset.
func New() *Dataset {
	return &Dataset{
		Tables:     make(map[string][]*Row),
		Statistics: make(map[string]int),
		Warnings:   []Warning{},
		Errors:     []RunError{},
	}
}

// Append adds rows to table, remembering the order in which tables first received rows.
func (d *Dataset) Append(table string, rows ...*Row) {
	if len(rows) == 0 {
		return
	}
	if _, ok := d.Tables[table]; !ok {
		d.order = append(d.order, table)
	}
	d.Tables[table] = append(d.Tables[table], rows...)
	d.Statistics[table] += len(rows)
}

// TableOrder returns tables holding rows, in the order they first received rows.
func (d *Dataset) TableOrder() []string {
	return d.order
}

// Warn appends a warning.
func (d *Dataset) Warn(w Warning) {
	d.Warnings = append(d.Warnings, w)
}

// Fail appends a fatal error record.
func (d *Dataset) Fail(kind, msg string, at time.Time) {
	d.Errors = append(d.Errors, RunError{Type: kind, Message: msg, Timestamp: at.UTC().Format(TimestampLayout)})
}

// EnsureStatistics adds a zero count for every table in names that has none.
func (d *Dataset) EnsureStatistics(names []string) {
	for _, n := range names {
		if _, ok := d.Statistics[n]; !ok {
			d.Statistics[n] = 0
		}
	}
}

// TotalRecords sums all table counts.
func (d *Dataset) TotalRecords() int {
	n := 0
	for _, c := range d.Statistics {
		n += c
	}
	return n
}

// SortedTables returns the names of tables holding rows, sorted.
func (d *Dataset) SortedTables() []string {
	out := make([]string, 0, len(d.Tables))
	for t := range d.Tables {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// IntPtr is a helper for Warning.Row.
func IntPtr(i int) *int { return &i }
