package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "github.com/microsoft/go-mssqldb"

	"tiksql/internal/storage"
)

// maxParams stays below SQL Server's 2100 parameter limit per statement.
const maxParams = 2000

// Repo implements storage.Repository for Microsoft SQL Server.
//
// Each InsertRows call runs in one transaction, split into multi-row INSERTs
// that respect the parameter limit. Timestamp columns are sent as time.Time;
// strings that are not canonical dates are loaded as NULL.
type Repo struct {
	db dbConn

	mu         sync.Mutex
	timestamps map[string]map[string]bool
}

func init() {
	storage.Register("mssql", New)
}

// New opens cfg.DSN with the "sqlserver" driver and pings it.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	raw, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	raw.SetMaxOpenConns(16)
	raw.SetMaxIdleConns(16)

	if err := raw.PingContext(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return newRepo(&sqlDB{db: raw}), nil
}

func newRepo(db dbConn) *Repo {
	return &Repo{db: db, timestamps: map[string]map[string]bool{}}
}

// Close releases database resources held by this repository.
func (r *Repo) Close() {
	if r == nil || r.db == nil {
		return
	}
	_ = r.db.Close()
}

// EnsureTables creates missing tables in order, guarded by OBJECT_ID.
func (r *Repo) EnsureTables(ctx context.Context, tables []storage.TableSpec) error {
	for _, t := range tables {
		ddl, err := buildCreateSQL(t)
		if err != nil {
			return err
		}
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("mssql: create table %s: %w", t.Name, err)
		}
		ts := map[string]bool{}
		for _, c := range t.Columns {
			if c.Type == storage.Timestamp {
				ts[c.Name] = true
			}
		}
		r.mu.Lock()
		r.timestamps[t.Name] = ts
		r.mu.Unlock()
	}
	return nil
}

// InsertRows inserts rows in chunks inside one transaction.
func (r *Repo) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 || len(columns) == 0 {
		return 0, nil
	}
	r.mu.Lock()
	ts := r.timestamps[table]
	r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var total int64
	for _, chunk := range chunkRows(rows, len(columns)) {
		q, args := buildBulkInsertSQL(table, columns, chunk, ts)
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return 0, fmt.Errorf("mssql: insert %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	committed = true
	return total, nil
}

// chunkRows splits rows so that each chunk uses at most maxParams parameters.
func chunkRows(rows [][]any, width int) [][][]any {
	per := maxParams / max(width, 1)
	if per < 1 {
		per = 1
	}
	var out [][][]any
	for start := 0; start < len(rows); start += per {
		end := min(start+per, len(rows))
		out = append(out, rows[start:end])
	}
	return out
}

func mssqlType(t storage.ColumnType) (string, error) {
	switch t {
	case storage.Integer:
		return "BIGINT", nil
	case storage.Real:
		return "FLOAT", nil
	case storage.Text:
		return "NVARCHAR(MAX)", nil
	case storage.Timestamp:
		return "DATETIME2", nil
	}
	return "", fmt.Errorf("mssql: unsupported column type %q", t)
}

func buildCreateSQL(t storage.TableSpec) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("mssql: table name is empty")
	}
	var defs []string
	if t.PrimaryKey != nil {
		if strings.TrimSpace(t.PrimaryKey.Name) == "" {
			return "", fmt.Errorf("mssql: primary key name is empty")
		}
		if t.PrimaryKey.AutoIncrement {
			defs = append(defs, fmt.Sprintf("%s BIGINT IDENTITY(1,1) PRIMARY KEY", mssqlIdent(t.PrimaryKey.Name)))
		} else {
			defs = append(defs, fmt.Sprintf("%s BIGINT PRIMARY KEY", mssqlIdent(t.PrimaryKey.Name)))
		}
	}
	for _, c := range t.Columns {
		def, err := mssqlColumnDef(c)
		if err != nil {
			return "", err
		}
		defs = append(defs, def)
	}
	if len(defs) == 0 {
		return "", fmt.Errorf("mssql: table %s has no columns", t.Name)
	}
	return wrapCreateIfMissing(t.Name, strings.Join(defs, ", ")), nil
}

// wrapCreateIfMissing wraps a CREATE TABLE statement in an OBJECT_ID guard.
func wrapCreateIfMissing(tableName string, innerDefs string) string {
	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL BEGIN CREATE TABLE %s (%s); END;",
		strings.ReplaceAll(tableName, "'", "''"),
		mssqlTableIdent(tableName),
		innerDefs,
	)
}

// mssqlColumnDef builds a column definition. REFERENCES is passed through
// with ON DELETE CASCADE.
func mssqlColumnDef(c storage.ColumnSpec) (string, error) {
	if strings.TrimSpace(c.Name) == "" {
		return "", fmt.Errorf("mssql: column name is empty")
	}
	typ, err := mssqlType(c.Type)
	if err != nil {
		return "", fmt.Errorf("mssql: column %s: %w", c.Name, err)
	}

	var b strings.Builder
	b.WriteString(mssqlIdent(c.Name))
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

// buildBulkInsertSQL builds a single INSERT ... VALUES statement for rows,
// converting the values of timestamp columns.
func buildBulkInsertSQL(table string, columns []string, rows [][]any, timestamps map[string]bool) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(mssqlTableIdent(table))
	b.WriteString(" (")

	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(mssqlIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j, c := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "@p%d", p)
			v := row[j]
			if timestamps[c] {
				v = storage.TimestampValue(v)
			}
			args = append(args, v)
			p++
		}
		b.WriteString(")")
	}
	return b.String(), args
}

// mssqlIdent returns a bracket-quoted identifier, escaping ']' as ']]'.
func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// mssqlTableIdent quotes schema-qualified names: "dbo.users" -> [dbo].[users].
func mssqlTableIdent(name string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = mssqlIdent(strings.TrimSpace(parts[i]))
	}
	return strings.Join(parts, ".")
}

// ---- database/sql seam types ----

// dbConn is the subset of *sql.DB used by Repo.
type dbConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (txConn, error)
	Close() error
}

// txConn is the subset of *sql.Tx used by Repo.
type txConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Commit() error
	Rollback() error
}

type sqlDB struct {
	db *sql.DB
}

func (s *sqlDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, query, args...)
}

func (s *sqlDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (txConn, error) {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *sqlDB) Close() error { return s.db.Close() }

var _ dbConn = (*sqlDB)(nil)
