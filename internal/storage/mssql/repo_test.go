package mssql

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"tiksql/internal/storage"
)

type fakeResult int64

func (f fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (f fakeResult) RowsAffected() (int64, error) { return int64(f), nil }

type fakeTx struct {
	execs     []string
	args      [][]any
	failAt    int
	commits   int
	rollbacks int
}

func (f *fakeTx) ExecContext(_ context.Context, q string, args ...any) (sql.Result, error) {
	f.execs = append(f.execs, q)
	f.args = append(f.args, args)
	if f.failAt > 0 && len(f.execs) == f.failAt {
		return nil, errors.New("boom")
	}
	return fakeResult(strings.Count(q, "(@p")), nil
}
func (f *fakeTx) Commit() error   { f.commits++; return nil }
func (f *fakeTx) Rollback() error { f.rollbacks++; return nil }

type fakeDB struct {
	ddl []string
	tx  *fakeTx
}

func (f *fakeDB) ExecContext(_ context.Context, q string, _ ...any) (sql.Result, error) {
	f.ddl = append(f.ddl, q)
	return fakeResult(0), nil
}
func (f *fakeDB) BeginTx(context.Context, *sql.TxOptions) (txConn, error) { return f.tx, nil }
func (f *fakeDB) Close() error                                            { return nil }

func TestBuildCreateSQL(t *testing.T) {
	t.Parallel()

	got, err := buildCreateSQL(storage.TableSpec{
		Name:       "dbo.searches",
		PrimaryKey: &storage.PrimaryKeySpec{Name: "search_id", AutoIncrement: true},
		Columns: []storage.ColumnSpec{
			{Name: "user_id", Type: storage.Integer, Nullable: storage.Bool(false), References: "users(user_id)"},
			{Name: "search_date", Type: storage.Timestamp},
			{Name: "search_term", Type: storage.Text},
		},
	})
	if err != nil {
		t.Fatalf("buildCreateSQL: %v", err)
	}
	want := "IF OBJECT_ID(N'dbo.searches', N'U') IS NULL BEGIN CREATE TABLE [dbo].[searches] (" +
		"[search_id] BIGINT IDENTITY(1,1) PRIMARY KEY, " +
		"[user_id] BIGINT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE, " +
		"[search_date] DATETIME2, [search_term] NVARCHAR(MAX)); END;"
	if got != want {
		t.Fatalf("DDL=\n%s\nwant\n%s", got, want)
	}

	if _, err := buildCreateSQL(storage.TableSpec{Name: "t"}); err == nil {
		t.Fatalf("expected error for table without columns")
	}
}

func TestChunkRows_RespectsParameterLimit(t *testing.T) {
	t.Parallel()

	rows := make([][]any, 1001)
	for i := range rows {
		rows[i] = []any{i, i, i, i}
	}
	chunks := chunkRows(rows, 4)
	if len(chunks) != 3 {
		t.Fatalf("chunks=%d, want 3", len(chunks))
	}
	total := 0
	for _, c := range chunks {
		if len(c)*4 > maxParams {
			t.Fatalf("chunk uses %d params", len(c)*4)
		}
		total += len(c)
	}
	if total != len(rows) {
		t.Fatalf("rows lost: %d", total)
	}
}

func TestInsertRows_ConvertsTimestampsAndCommits(t *testing.T) {
	t.Parallel()

	db := &fakeDB{tx: &fakeTx{}}
	r := newRepo(db)
	err := r.EnsureTables(context.Background(), []storage.TableSpec{{
		Name:    "searches",
		Columns: []storage.ColumnSpec{{Name: "search_date", Type: storage.Timestamp}, {Name: "search_term", Type: storage.Text}},
	}})
	if err != nil {
		t.Fatalf("EnsureTables: %v", err)
	}

	n, err := r.InsertRows(context.Background(), "searches", []string{"search_date", "search_term"}, [][]any{
		{"2023-01-01", "go"},
		{"N/A", "sql"},
	})
	if err != nil {
		t.Fatalf("InsertRows: %v", err)
	}
	if n != 2 || db.tx.commits != 1 || db.tx.rollbacks != 0 {
		t.Fatalf("n=%d commits=%d rollbacks=%d", n, db.tx.commits, db.tx.rollbacks)
	}
	if db.tx.execs[0] != "INSERT INTO [searches] ([search_date], [search_term]) VALUES (@p1, @p2), (@p3, @p4)" {
		t.Fatalf("insert=%q", db.tx.execs[0])
	}
	args := db.tx.args[0]
	if ts, ok := args[0].(time.Time); !ok || !ts.Equal(time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("arg0=%#v", args[0])
	}
	if args[2] != nil || args[3] != "sql" {
		t.Fatalf("args=%#v", args)
	}
}

func TestInsertRows_RollsBackOnError(t *testing.T) {
	t.Parallel()

	db := &fakeDB{tx: &fakeTx{failAt: 1}}
	r := newRepo(db)
	if _, err := r.InsertRows(context.Background(), "t", []string{"a"}, [][]any{{1}}); err == nil {
		t.Fatalf("expected error")
	}
	if db.tx.commits != 0 || db.tx.rollbacks != 1 {
		t.Fatalf("commits=%d rollbacks=%d", db.tx.commits, db.tx.rollbacks)
	}
}
