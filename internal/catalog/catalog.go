// Package catalog is the static description of the export document: which path
// feeds which table, how the value under the path is iterated, and how each
// target column is typed.
//
// The catalog is immutable once built. Every lookup that asks "the entry for a
// table" uses the first entry (in catalog order) that targets that table.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownMode is returned when a mode name cannot be parsed.
var ErrUnknownMode = errors.New("catalog: unknown extraction mode")

// Mode selects how the value under an entry's path is turned into rows.
type Mode int

const (
	// Plain extracts one row from an object.
	Plain Mode = iota
	// Array extracts one row per element of an array.
	Array
	// DynamicKeyedMap iterates an object whose keys are data (e.g. chat titles);
	// each array-valued key yields rows stamped with the cleaned key.
	DynamicKeyedMap
	// NestedArrayUnderDynamicKey iterates a dynamic map and extracts the array
	// stored under NestedKey of each entry; rows are stamped with the raw key.
	NestedArrayUnderDynamicKey
)

var modeNames = [...]string{"plain", "array", "dynamic", "nested"}

func (m Mode) String() string {
	if int(m) >= 0 && int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode parses the textual mode name used in catalog files.
func ParseMode(s string) (Mode, error) {
	for i, n := range modeNames {
		if strings.EqualFold(strings.TrimSpace(s), n) {
			return Mode(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	if int(m) < 0 || int(m) >= len(modeNames) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMode, int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Column maps one source field to one target column.
type Column struct {
	Source string `json:"source" yaml:"source"`
	Target string `json:"column" yaml:"column"`
}

// Entry describes one path of the source document.
type Entry struct {
	Path    string   `json:"path" yaml:"path"`
	Table   string   `json:"table" yaml:"table"`
	Mode    Mode     `json:"mode" yaml:"mode"`
	Columns []Column `json:"columns" yaml:"columns"`

	DateFields    []string `json:"dateFields,omitempty" yaml:"dateFields,omitempty"`
	NumericFields []string `json:"numericFields,omitempty" yaml:"numericFields,omitempty"`
	IntegerFields []string `json:"integerFields,omitempty" yaml:"integerFields,omitempty"`

	// DynamicKeyColumn receives the cleaned dynamic key (DynamicKeyedMap).
	DynamicKeyColumn string `json:"dynamicKeyColumn,omitempty" yaml:"dynamicKeyColumn,omitempty"`
	// ParentKeyColumn receives the raw dynamic key (NestedArrayUnderDynamicKey).
	ParentKeyColumn string `json:"parentKeyColumn,omitempty" yaml:"parentKeyColumn,omitempty"`
}

// NestedKey returns the sub-key holding the nested array: the path segment
// after the wildcard. It is empty when the path has no wildcard.
func (e Entry) NestedKey() string {
	parts := strings.Split(e.Path, ".")
	for i, p := range parts {
		if p == "*" && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	return ""
}

// IsDate reports whether col is an explicit date column.
func (e Entry) IsDate(col string) bool { return contains(e.DateFields, col) }

// IsNumeric reports whether col is an explicit numeric column.
func (e Entry) IsNumeric(col string) bool { return contains(e.NumericFields, col) }

// IsInteger reports whether col is an explicit integer column.
func (e Entry) IsInteger(col string) bool { return contains(e.IntegerFields, col) }

// Validate checks an entry for structural problems.
func (e Entry) Validate() error {
	if strings.TrimSpace(e.Path) == "" {
		return errors.New("catalog: entry path is empty")
	}
	if strings.TrimSpace(e.Table) == "" {
		return fmt.Errorf("catalog: entry %q has no table", e.Path)
	}
	if len(e.Columns) == 0 {
		return fmt.Errorf("catalog: entry %q has no columns", e.Path)
	}
	seen := make(map[string]bool, len(e.Columns))
	for _, c := range e.Columns {
		if c.Source == "" || c.Target == "" {
			return fmt.Errorf("catalog: entry %q has an empty column mapping", e.Path)
		}
		if seen[c.Source] {
			return fmt.Errorf("catalog: entry %q maps source %q twice", e.Path, c.Source)
		}
		seen[c.Source] = true
	}
	switch e.Mode {
	case Plain, Array:
	case DynamicKeyedMap:
		if e.DynamicKeyColumn == "" {
			return fmt.Errorf("catalog: dynamic entry %q has no dynamicKeyColumn", e.Path)
		}
	case NestedArrayUnderDynamicKey:
		if e.ParentKeyColumn == "" {
			return fmt.Errorf("catalog: nested entry %q has no parentKeyColumn", e.Path)
		}
		if e.NestedKey() == "" {
			return fmt.Errorf("catalog: nested entry %q has no wildcard segment", e.Path)
		}
	default:
		return fmt.Errorf("%w: %d (path %q)", ErrUnknownMode, int(e.Mode), e.Path)
	}
	return nil
}

// Catalog is an ordered, immutable list of entries.
type Catalog struct {
	entries []Entry
	byTable map[string]int
	profile string
}

// New validates entries and builds a catalog. profilePath names the entry that
// holds the account profile; it must target the users table.
func New(profilePath string, entries []Entry) (*Catalog, error) {
	c := &Catalog{
		entries: make([]Entry, len(entries)),
		byTable: make(map[string]int),
		profile: profilePath,
	}
	copy(c.entries, entries)

	paths := make(map[string]bool, len(entries))
	for i, e := range c.entries {
		if err := e.Validate(); err != nil {
			return nil, err
		}
		if paths[e.Path] {
			return nil, fmt.Errorf("catalog: duplicate path %q", e.Path)
		}
		paths[e.Path] = true
		if _, ok := c.byTable[e.Table]; !ok {
			c.byTable[e.Table] = i
		}
	}
	if profilePath != "" {
		p, ok := c.Lookup(profilePath)
		if !ok {
			return nil, fmt.Errorf("catalog: profile path %q not in catalog", profilePath)
		}
		if p.Table != UsersTable {
			return nil, fmt.Errorf("catalog: profile path %q targets %q, want %q", profilePath, p.Table, UsersTable)
		}
	}
	return c, nil
}

// Entries returns the entries in catalog order. The slice must not be modified.
func (c *Catalog) Entries() []Entry { return c.entries }

// ProfilePath is the path of the users entry.
func (c *Catalog) ProfilePath() string { return c.profile }

// Lookup returns the entry for path.
func (c *Catalog) Lookup(path string) (Entry, bool) {
	for _, e := range c.entries {
		if e.Path == path {
			return e, true
		}
	}
	return Entry{}, false
}

// ForTable returns the first entry targeting table.
func (c *Catalog) ForTable(table string) (Entry, bool) {
	i, ok := c.byTable[table]
	if !ok {
		return Entry{}, false
	}
	return c.entries[i], true
}

// DateFields returns the first entry's date columns for table.
func (c *Catalog) DateFields(table string) []string {
	e, _ := c.ForTable(table)
	return e.DateFields
}

// NumericFields returns the first entry's numeric columns for table.
func (c *Catalog) NumericFields(table string) []string {
	e, _ := c.ForTable(table)
	return e.NumericFields
}

// Tables returns every target table (users included), sorted.
func (c *Catalog) Tables() []string {
	set := map[string]bool{UsersTable: true}
	for _, e := range c.entries {
		set[e.Table] = true
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// TablesInOrder returns every target table in order of first appearance.
func (c *Catalog) TablesInOrder() []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range c.entries {
		if !seen[e.Table] {
			seen[e.Table] = true
			out = append(out, e.Table)
		}
	}
	return out
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}
