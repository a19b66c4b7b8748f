package sqlgen

import (
	"context"
	"errors"
	"time"

	"tiksql/internal/catalog"
	"tiksql/internal/dataset"
)

// Generator renders datasets for one catalog.
type Generator struct {
	Catalog *catalog.Catalog
	// GenerateTriggers adds the validation log tables and triggers.
	GenerateTriggers bool
	// BatchSize is how many INSERTs are rendered between cancellation checks.
	BatchSize int
	// Location is used when re-parsing non-canonical dates. Defaults to time.Local.
	Location *time.Location
}

// Formatter returns the value formatter for table.
func (g Generator) Formatter(table string) ValueFormatter {
	return ValueFormatter{
		DateFields:    g.Catalog.DateFields(table),
		NumericFields: g.Catalog.NumericFields(table),
		Location:      g.Location,
	}
}

// Schema returns the DDL part of the script: users, every other catalog table
// (sorted), indexes, triggers when enabled, and views.
func (g Generator) Schema(ds *dataset.Dataset) []string {
	out := []string{CreateUsersTable()}
	for _, table := range DataTables(g.Catalog) {
		out = append(out, CreateTable(table, TableColumns(g.Catalog, ds, table)))
	}
	out = append(out, Indexes(g.Catalog)...)
	if g.GenerateTriggers {
		out = append(out, Triggers(g.Catalog)...)
	}
	return append(out, Views()...)
}

// Generate returns the full script for ds and records a zero count in
// ds.Statistics for every table the script creates.
//
// DDL precedes all INSERTs and the users INSERT precedes the others, which
// follow the order in which tables received rows. No BEGIN/COMMIT is emitted.
//
// Errors:
//   - the context error when ctx is cancelled between batches.
func (g Generator) Generate(ctx context.Context, ds *dataset.Dataset) ([]string, error) {
	if g.Catalog == nil {
		return nil, errors.New("sqlgen: Catalog is required")
	}
	batch := g.BatchSize
	if batch <= 0 {
		batch = 100
	}

	ds.EnsureStatistics(TableNames(g.Catalog, g.GenerateTriggers))
	out := g.Schema(ds)

	if ds.User != nil {
		if s := g.Formatter(catalog.UsersTable).Insert(catalog.UsersTable, ds.User); s != "" {
			out = append(out, s)
		}
	}

	n := 0
	for _, table := range ds.TableOrder() {
		if table == catalog.UsersTable {
			continue
		}
		f := g.Formatter(table)
		for _, row := range ds.Tables[table] {
			if s := f.Insert(table, row); s != "" {
				out = append(out, s)
			}
			n++
			if n%batch == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}
		}
	}
	return out, nil
}
