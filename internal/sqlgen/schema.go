// Package sqlgen renders an extracted dataset as a replayable SQLite script:
// schema for every catalog table, indexes, validation triggers, report views,
// then one INSERT per row.
package sqlgen

import (
	"fmt"
	"sort"
	"strings"

	"tiksql/internal/catalog"
	"tiksql/internal/classify"
	"tiksql/internal/dataset"
)

// Validation log tables created alongside the triggers.
const (
	DateValidationLog = "date_validation_log"
	DataValidationLog = "data_validation_log"
)

// ColumnType is a SQLite declared type.
type ColumnType string

const (
	Integer   ColumnType = "INTEGER"
	Real      ColumnType = "REAL"
	Text      ColumnType = "TEXT"
	Timestamp ColumnType = "TIMESTAMP"
)

// Column is one generated column.
type Column struct {
	Name       string
	Type       ColumnType
	Constraint string
}

func (c Column) String() string {
	if c.Constraint == "" {
		return c.Name + " " + string(c.Type)
	}
	return c.Name + " " + string(c.Type) + " " + c.Constraint
}

// UserColumns is the fixed schema of the users table.
var UserColumns = []Column{
	{Name: "user_id", Type: Integer, Constraint: "PRIMARY KEY"},
	{Name: "username", Type: Text, Constraint: "NOT NULL"},
	{Name: "display_name", Type: Text},
	{Name: "email", Type: Text},
	{Name: "bio_description", Type: Text},
	{Name: "birth_date", Type: Text},
	{Name: "account_region", Type: Text},
	{Name: "follower_count", Type: Integer, Constraint: "DEFAULT 0"},
	{Name: "following_count", Type: Integer, Constraint: "DEFAULT 0"},
	{Name: "is_deleted", Type: Integer, Constraint: "DEFAULT 0"},
	{Name: "created_at", Type: Timestamp, Constraint: "DEFAULT CURRENT_TIMESTAMP"},
	{Name: "updated_at", Type: Timestamp, Constraint: "DEFAULT CURRENT_TIMESTAMP"},
}

// TableNames returns every table the script creates, sorted: the catalog
// tables, users, and the validation logs when triggers are on.
func TableNames(cat *catalog.Catalog, triggers bool) []string {
	names := cat.Tables()
	if triggers {
		names = append(names, DateValidationLog, DataValidationLog)
		sort.Strings(names)
	}
	return names
}

// DataTables returns the sorted catalog tables other than users.
func DataTables(cat *catalog.Catalog) []string {
	var out []string
	for _, t := range cat.Tables() {
		if t != catalog.UsersTable {
			out = append(out, t)
		}
	}
	return out
}

func overridesOf(e catalog.Entry) classify.Overrides {
	return classify.Overrides{DateFields: e.DateFields, NumericFields: e.NumericFields, IntegerFields: e.IntegerFields}
}

// TypeOf infers the declared type of a column from the table's entry and,
// when known, a sample value.
//
// Numeric classification (integer/numeric overrides, numeric names) gives
// INTEGER, date classification gives TIMESTAMP; otherwise the sample decides:
// int64 and bool are INTEGER, float64 is REAL, anything else TEXT.
func TypeOf(e catalog.Entry, column string, sample any) ColumnType {
	switch classify.Classify(column, overridesOf(e)) {
	case classify.Numeric:
		return Integer
	case classify.Date:
		return Timestamp
	}
	switch sample.(type) {
	case int64, bool:
		return Integer
	case float64:
		return Real
	}
	return Text
}

// TableColumns returns the data columns of a non-users table, excluding
// user_id and the primary key.
//
// With rows, columns come from the first row in order, typed by its values;
// catalog columns the first row lacks follow, so sparse rows still fit. Without
// rows, the catalog column list is used. The dynamic/parent key column of the
// entry is always present.
func TableColumns(cat *catalog.Catalog, ds *dataset.Dataset, table string) []Column {
	e, _ := cat.ForTable(table)
	pk := catalog.PrimaryKey(table)

	seen := map[string]bool{"user_id": true, pk: true}
	var out []Column
	add := func(name string, sample any) {
		if seen[name] {
			return
		}
		seen[name] = true
		out = append(out, Column{Name: name, Type: TypeOf(e, name, sample)})
	}

	var rows []*dataset.Row
	if ds != nil {
		rows = ds.Tables[table]
	}
	if len(rows) > 0 {
		seen["username"] = true
		first := rows[0]
		for _, k := range first.Keys() {
			v, _ := first.Get(k)
			add(k, v)
		}
	}
	for _, c := range e.Columns {
		add(c.Target, nil)
	}
	if e.DynamicKeyColumn != "" {
		add(e.DynamicKeyColumn, "")
	}
	if e.ParentKeyColumn != "" {
		add(e.ParentKeyColumn, "")
	}
	return out
}

// CreateUsersTable returns the users DDL.
func CreateUsersTable() string {
	defs := make([]string, len(UserColumns))
	for i, c := range UserColumns {
		defs[i] = c.String()
	}
	return createTable(catalog.UsersTable, defs)
}

// CreateTable returns the DDL of a non-users table.
func CreateTable(table string, cols []Column) string {
	defs := make([]string, 0, len(cols)+3)
	defs = append(defs,
		"user_id INTEGER NOT NULL",
		fmt.Sprintf("%s INTEGER PRIMARY KEY AUTOINCREMENT", catalog.PrimaryKey(table)),
	)
	for _, c := range cols {
		defs = append(defs, c.String())
	}
	defs = append(defs, "FOREIGN KEY (user_id) REFERENCES users(user_id) ON DELETE CASCADE")
	return createTable(table, defs)
}

func createTable(table string, defs []string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n    %s\n);", table, strings.Join(defs, ",\n    "))
}
