package postgres

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tiksql/internal/storage"
)

/*
Repo implements storage.Repository for Postgres.

Rows are written with COPY. Timestamp columns receive time.Time values; strings
that are not canonical dates are loaded as NULL.
*/
type Repo struct {
	pool *pgxpool.Pool

	mu         sync.Mutex
	timestamps map[string]map[string]bool
}

func init() {
	storage.Register("postgres", New)
}

// New creates a Postgres-backed Repo.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Repo{pool: pool, timestamps: map[string]map[string]bool{}}, nil
}

// Close closes the connection pool.
func (r *Repo) Close() {
	r.pool.Close()
}

// EnsureTables creates missing schemas and tables in order.
func (r *Repo) EnsureTables(ctx context.Context, tables []storage.TableSpec) error {
	for _, t := range tables {
		schemaSQL, baseSQL, err := buildCreateSQL(t)
		if err != nil {
			return err
		}
		if schemaSQL != "" {
			if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
				return fmt.Errorf("create schema for %s: %w", t.Name, err)
			}
		}
		if _, err := r.pool.Exec(ctx, baseSQL); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}
		r.remember(t)
	}
	return nil
}

func (r *Repo) remember(t storage.TableSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ts := map[string]bool{}
	for _, c := range t.Columns {
		if c.Type == storage.Timestamp {
			ts[c.Name] = true
		}
	}
	r.timestamps[t.Name] = ts
}

// InsertRows copies rows into table.
func (r *Repo) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	r.mu.Lock()
	ts := r.timestamps[table]
	r.mu.Unlock()

	schema, name := splitQualifiedName(table)
	ident := pgx.Identifier{name}
	if schema != "" {
		ident = pgx.Identifier{schema, name}
	}
	n, err := r.pool.CopyFrom(ctx, ident, columns, pgx.CopyFromRows(convertRows(columns, rows, ts)))
	if err != nil {
		return 0, fmt.Errorf("copy into %s: %w", table, err)
	}
	return n, nil
}

// convertRows returns rows with timestamp columns converted. rows is not modified.
func convertRows(columns []string, rows [][]any, timestamps map[string]bool) [][]any {
	if len(timestamps) == 0 {
		return rows
	}
	var idx []int
	for i, c := range columns {
		if timestamps[c] {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		return rows
	}
	out := make([][]any, len(rows))
	for i, row := range rows {
		cp := append([]any(nil), row...)
		for _, j := range idx {
			cp[j] = storage.TimestampValue(cp[j])
		}
		out[i] = cp
	}
	return out
}

func pgIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func pgTableIdent(name string) string {
	schema, table := splitQualifiedName(name)
	if schema == "" {
		return pgIdent(table)
	}
	return pgIdent(schema) + "." + pgIdent(table)
}

func pgType(t storage.ColumnType) (string, error) {
	switch t {
	case storage.Integer:
		return "BIGINT", nil
	case storage.Real:
		return "DOUBLE PRECISION", nil
	case storage.Text:
		return "TEXT", nil
	case storage.Timestamp:
		return "TIMESTAMP", nil
	}
	return "", fmt.Errorf("postgres: unsupported column type %q", t)
}

// buildColumnDefs returns the "<col> <type> ..." definitions, primary key first.
func buildColumnDefs(t storage.TableSpec) ([]string, error) {
	cols := make([]string, 0, len(t.Columns)+1)

	if t.PrimaryKey != nil {
		pk := strings.TrimSpace(t.PrimaryKey.Name)
		if pk == "" {
			return nil, fmt.Errorf("buildColumnDefs: table %s: primary_key.name is required", t.Name)
		}
		if t.PrimaryKey.AutoIncrement {
			cols = append(cols, fmt.Sprintf(`%s BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY`, pgIdent(pk)))
		} else {
			cols = append(cols, fmt.Sprintf(`%s BIGINT PRIMARY KEY`, pgIdent(pk)))
		}
	}

	for _, c := range t.Columns {
		def, err := buildColumnDef(c)
		if err != nil {
			return nil, fmt.Errorf("buildColumnDefs: table %s: %w", t.Name, err)
		}
		cols = append(cols, def)
	}

	if len(cols) == 0 {
		return nil, fmt.Errorf("buildColumnDefs: table %s: no columns", t.Name)
	}
	return cols, nil
}

func buildColumnDef(c storage.ColumnSpec) (string, error) {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return "", fmt.Errorf("column name must be set")
	}
	typ, err := pgType(c.Type)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(pgIdent(name))
	b.WriteString(" ")
	b.WriteString(typ)
	if !c.IsNullable() {
		b.WriteString(" NOT NULL")
	}
	if ref := strings.TrimSpace(c.References); ref != "" {
		b.WriteString(" REFERENCES ")
		b.WriteString(ref)
		b.WriteString(" ON DELETE CASCADE")
	}
	return b.String(), nil
}

// splitQualifiedName splits "schema.table". Anything else is unqualified.
func splitQualifiedName(name string) (schema string, table string) {
	name = strings.TrimSpace(name)
	parts := strings.Split(name, ".")
	if len(parts) != 2 {
		return "", name
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}

// buildCreateSQL builds the optional CREATE SCHEMA and the CREATE TABLE for t.
func buildCreateSQL(t storage.TableSpec) (schemaSQL, baseSQL string, err error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", "", fmt.Errorf("table name is empty")
	}
	if schema, _ := splitQualifiedName(t.Name); schema != "" {
		schemaSQL = fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s;`, pgIdent(schema))
	}
	cols, err := buildColumnDefs(t)
	if err != nil {
		return "", "", err
	}
	baseSQL = fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n);", pgTableIdent(t.Name), strings.Join(cols, ",\n  "))
	return schemaSQL, baseSQL, nil
}
