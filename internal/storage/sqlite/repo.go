package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"tiksql/internal/storage"
)

// maxParams stays below SQLITE_MAX_VARIABLE_NUMBER (32766).
const maxParams = 32000

// Repo implements storage.Repository and storage.ScriptRunner for SQLite.
//
// The pool is limited to one connection so that PRAGMA foreign_keys, which is
// per connection, holds for every statement.
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlite", New)
}

// New opens cfg.DSN (a file path or "file::memory:") and enables foreign keys.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: enable foreign keys: %w", err)
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

// EnsureTables creates missing tables in order.
func (r *Repo) EnsureTables(ctx context.Context, tables []storage.TableSpec) error {
	for _, t := range tables {
		ddl, err := buildCreateTableSQL(t)
		if err != nil {
			return err
		}
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}
	}
	return nil
}

// InsertRows inserts rows with multi-row INSERTs inside one transaction.
func (r *Repo) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 || len(columns) == 0 {
		return 0, nil
	}
	per := maxParams / len(columns)
	if per < 1 {
		per = 1
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var total int64
	for start := 0; start < len(rows); start += per {
		end := start + per
		if end > len(rows) {
			end = len(rows)
		}
		q, args := buildInsertSQL(table, columns, rows[start:end])
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return 0, fmt.Errorf("insert %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return total, nil
}

// ExecScript executes statements in order inside one transaction. Foreign keys
// are enforced.
//
// Errors:
//   - the first failing statement, by 1-based index, with a short excerpt.
//     Nothing is committed in that case.
func (r *Repo) ExecScript(ctx context.Context, statements []string) (storage.ScriptReport, error) {
	var rep storage.ScriptReport

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return rep, err
	}
	defer func() { _ = tx.Rollback() }()

	for i, stmt := range statements {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return storage.ScriptReport{}, fmt.Errorf("statement %d (%s): %w", i+1, excerpt(stmt), err)
		}
		rep.Count(stmt)
	}
	if err := tx.Commit(); err != nil {
		return storage.ScriptReport{}, err
	}
	return rep, nil
}

func excerpt(stmt string) string {
	s := strings.Join(strings.Fields(stmt), " ")
	if len(s) > 60 {
		s = s[:60] + "..."
	}
	return s
}

func sqlIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func sqlType(t storage.ColumnType) (string, error) {
	switch t {
	case storage.Integer:
		return "INTEGER", nil
	case storage.Real:
		return "REAL", nil
	case storage.Text:
		return "TEXT", nil
	case storage.Timestamp:
		// TEXT affinity; values are canonical date strings.
		return "TIMESTAMP", nil
	}
	return "", fmt.Errorf("sqlite: unsupported column type %q", t)
}

func buildCreateTableSQL(t storage.TableSpec) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("table name is empty")
	}
	var parts []string

	if t.PrimaryKey != nil {
		if t.PrimaryKey.AutoIncrement {
			parts = append(parts, fmt.Sprintf(`%s INTEGER PRIMARY KEY AUTOINCREMENT`, sqlIdent(t.PrimaryKey.Name)))
		} else {
			parts = append(parts, fmt.Sprintf(`%s INTEGER PRIMARY KEY`, sqlIdent(t.PrimaryKey.Name)))
		}
	}

	for _, c := range t.Columns {
		typ, err := sqlType(c.Type)
		if err != nil {
			return "", fmt.Errorf("%s.%s: %w", t.Name, c.Name, err)
		}
		col := fmt.Sprintf("%s %s", sqlIdent(c.Name), typ)
		if !c.IsNullable() {
			col += " NOT NULL"
		}
		if c.References != "" {
			col += " REFERENCES " + c.References + " ON DELETE CASCADE"
		}
		parts = append(parts, col)
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("table %s: no columns", t.Name)
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n);", sqlIdent(t.Name), strings.Join(parts, ",\n  ")), nil
}

func buildInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	colList := make([]string, 0, len(columns))
	for _, c := range columns {
		colList = append(colList, sqlIdent(c))
	}
	placeholders := "(" + strings.TrimRight(strings.Repeat("?,", len(columns)), ",") + ")"

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(sqlIdent(table))
	b.WriteString(" (")
	b.WriteString(strings.Join(colList, ", "))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(placeholders)
		args = append(args, row...)
	}
	return b.String(), args
}
