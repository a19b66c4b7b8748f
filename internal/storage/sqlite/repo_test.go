package sqlite

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"tiksql/internal/catalog"
	"tiksql/internal/config"
	"tiksql/internal/extract"
	pjson "tiksql/internal/parser/json"
	"tiksql/internal/sqlgen"
	"tiksql/internal/storage"
)

func openRepo(t *testing.T) *Repo {
	t.Helper()
	repo, err := storage.New(context.Background(), storage.Config{
		Kind: "sqlite",
		DSN:  filepath.Join(t.TempDir(), "tiksql.db"),
	})
	require.NoError(t, err)
	t.Cleanup(repo.Close)
	return repo.(*Repo)
}

func count(t *testing.T, r *Repo, table string) int {
	t.Helper()
	var n int
	require.NoError(t, r.db.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM "+sqlIdent(table)).Scan(&n))
	return n
}

func TestExecScript_ReplaysGeneratedSQL(t *testing.T) {
	t.Parallel()

	doc, err := pjson.DecodeString(`{
		"Profile And Settings": {"Profile Info": {"ProfileMap": {"userName": "alice", "emailAddress": "a@b.co"}}},
		"Your Activity": {"Searches": {"SearchList": [
			{"Date": "2023-01-01 10:00:00", "SearchTerm": "it's go"},
			{"Date": "yesterday-ish", "SearchTerm": "sql"}
		]}},
		"Direct Message": {"Direct Messages": {"ChatHistory": {
			"Chat History with Bob:": [{"Date": "2023-01-02 09:00:00", "From": "bob", "Content": "hi"}]
		}}}
	}`)
	require.NoError(t, err)

	cat := catalog.Builtin()
	res, err := extract.New(cat, config.DefaultExtraction()).Extract(context.Background(), doc)
	require.NoError(t, err)

	r := openRepo(t)
	rep, err := r.ExecScript(context.Background(), res.SQL)
	require.NoError(t, err)

	require.Equal(t, len(res.SQL), rep.Statements)
	require.Equal(t, len(sqlgen.TableNames(cat, true)), rep.Tables)
	require.Equal(t, 3, rep.Views)
	require.Equal(t, 4, rep.Inserts)
	require.Positive(t, rep.Triggers)
	require.Positive(t, rep.Indexes)

	require.Equal(t, 1, count(t, r, "users"))
	require.Equal(t, 2, count(t, r, "searches"))
	require.Equal(t, 1, count(t, r, "direct_messages"))
	require.Equal(t, 0, count(t, r, "comments"))

	var term string
	require.NoError(t, r.db.QueryRow(`SELECT search_term FROM searches ORDER BY search_id LIMIT 1`).Scan(&term))
	require.Equal(t, "it's go", term)

	// The malformed search date is logged by its trigger.
	require.Equal(t, 1, count(t, r, sqlgen.DateValidationLog))
}

func TestExecScript_FailureRollsBack(t *testing.T) {
	t.Parallel()

	r := openRepo(t)
	_, err := r.ExecScript(context.Background(), []string{
		"CREATE TABLE t (x INTEGER);",
		"INSERT INTO t (x) VALUES (1);",
		"INSERT INTO missing (x) VALUES (1);",
	})
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "statement 3"), err.Error())

	var n int
	require.NoError(t, r.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name = 't'`).Scan(&n))
	require.Equal(t, 0, n)
}

func TestEnsureTablesAndInsertRows(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := openRepo(t)
	specs := []storage.TableSpec{
		{
			Name:       "users",
			PrimaryKey: &storage.PrimaryKeySpec{Name: "user_id"},
			Columns:    []storage.ColumnSpec{{Name: "username", Type: storage.Text, Nullable: storage.Bool(false)}},
		},
		{
			Name:       "searches",
			PrimaryKey: &storage.PrimaryKeySpec{Name: "search_id", AutoIncrement: true},
			Columns: []storage.ColumnSpec{
				{Name: "user_id", Type: storage.Integer, Nullable: storage.Bool(false), References: "users(user_id)"},
				{Name: "search_date", Type: storage.Timestamp},
				{Name: "search_term", Type: storage.Text},
			},
		},
	}
	require.NoError(t, r.EnsureTables(ctx, specs))
	require.NoError(t, r.EnsureTables(ctx, specs), "EnsureTables must be idempotent")

	n, err := r.InsertRows(ctx, "users", []string{"user_id", "username"}, [][]any{{int64(933608), "alice"}})
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	n, err = r.InsertRows(ctx, "searches", []string{"user_id", "search_date", "search_term"}, [][]any{
		{int64(933608), "2023-01-01 10:00:00", "go"},
		{int64(933608), nil, "sql"},
	})
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
	require.Equal(t, 2, count(t, r, "searches"))

	_, err = r.InsertRows(ctx, "searches", []string{"user_id", "search_term"}, [][]any{{int64(1), "orphan"}})
	require.Error(t, err, "foreign keys must be enforced")
	require.Equal(t, 2, count(t, r, "searches"))

	n, err = r.InsertRows(ctx, "searches", []string{"user_id"}, nil)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestBuildCreateTableSQL(t *testing.T) {
	t.Parallel()

	got, err := buildCreateTableSQL(storage.TableSpec{
		Name:       "searches",
		PrimaryKey: &storage.PrimaryKeySpec{Name: "search_id", AutoIncrement: true},
		Columns: []storage.ColumnSpec{
			{Name: "user_id", Type: storage.Integer, Nullable: storage.Bool(false), References: "users(user_id)"},
			{Name: "score", Type: storage.Real},
		},
	})
	require.NoError(t, err)
	require.Equal(t, `CREATE TABLE IF NOT EXISTS "searches" (
  "search_id" INTEGER PRIMARY KEY AUTOINCREMENT,
  "user_id" INTEGER NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
  "score" REAL
);`, got)

	_, err = buildCreateTableSQL(storage.TableSpec{Name: "x", Columns: []storage.ColumnSpec{{Name: "a", Type: "blob"}}})
	require.Error(t, err)
	_, err = buildCreateTableSQL(storage.TableSpec{Name: " "})
	require.Error(t, err)
}
