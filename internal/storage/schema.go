// Table specs live here so the loader and the backends can share them without
// import cycles.
package storage

import (
	"strings"
	"time"

	"tiksql/internal/datefmt"
)

// ColumnType is a portable column type. Each backend maps it to its dialect.
type ColumnType string

const (
	Integer   ColumnType = "integer"
	Real      ColumnType = "real"
	Text      ColumnType = "text"
	Timestamp ColumnType = "timestamp"
)

type TableSpec struct {
	Name       string          `json:"name"`
	PrimaryKey *PrimaryKeySpec `json:"primary_key,omitempty"`
	Columns    []ColumnSpec    `json:"columns"`
}

type PrimaryKeySpec struct {
	Name string `json:"name"`
	// AutoIncrement makes the backend generate the key.
	AutoIncrement bool `json:"auto_increment"`
}

type ColumnSpec struct {
	Name       string     `json:"name"`
	Type       ColumnType `json:"type"`
	References string     `json:"references,omitempty"`
	Nullable   *bool      `json:"nullable,omitempty"`
}

// IsNullable reports whether the column accepts NULL. Columns are nullable
// unless Nullable says otherwise.
func (c ColumnSpec) IsNullable() bool {
	return c.Nullable == nil || *c.Nullable
}

// Bool returns a pointer to b, for ColumnSpec.Nullable.
func Bool(b bool) *bool { return &b }

// TimestampValue converts a canonical date string to a time.Time for typed
// timestamp columns. Other strings become nil; non-strings pass through.
func TimestampValue(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	if t, ok := datefmt.ParseCanonical(s); ok {
		return t.UTC().Truncate(time.Millisecond)
	}
	return nil
}

// StatementKind classifies a generated statement for ScriptReport, ignoring
// leading "--" comment lines.
func StatementKind(stmt string) string {
	up := strings.ToUpper(trimLeadingComments(stmt))
	switch {
	case strings.HasPrefix(up, "CREATE TABLE"):
		return "table"
	case strings.HasPrefix(up, "CREATE VIEW"):
		return "view"
	case strings.HasPrefix(up, "CREATE TRIGGER"):
		return "trigger"
	case strings.HasPrefix(up, "CREATE INDEX"), strings.HasPrefix(up, "CREATE UNIQUE INDEX"):
		return "index"
	case strings.HasPrefix(up, "INSERT"):
		return "insert"
	}
	return ""
}

// Count adds stmt to the report.
func (r *ScriptReport) Count(stmt string) {
	r.Statements++
	switch StatementKind(stmt) {
	case "table":
		r.Tables++
	case "view":
		r.Views++
	case "trigger":
		r.Triggers++
	case "index":
		r.Indexes++
	case "insert":
		r.Inserts++
	}
}

// Add accumulates o into r.
func (r *ScriptReport) Add(o ScriptReport) {
	r.Statements += o.Statements
	r.Tables += o.Tables
	r.Views += o.Views
	r.Triggers += o.Triggers
	r.Indexes += o.Indexes
	r.Inserts += o.Inserts
}
