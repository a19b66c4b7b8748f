package postgres

import (
	"strings"
	"testing"
	"time"

	"tiksql/internal/storage"
)

func TestBuildCreateSQL_UsersAndChild(t *testing.T) {
	t.Parallel()

	_, users, err := buildCreateSQL(storage.TableSpec{
		Name:       "users",
		PrimaryKey: &storage.PrimaryKeySpec{Name: "user_id"},
		Columns:    []storage.ColumnSpec{{Name: "username", Type: storage.Text, Nullable: storage.Bool(false)}},
	})
	if err != nil {
		t.Fatalf("buildCreateSQL: %v", err)
	}
	want := "CREATE TABLE IF NOT EXISTS \"users\" (\n  \"user_id\" BIGINT PRIMARY KEY,\n  \"username\" TEXT NOT NULL\n);"
	if users != want {
		t.Fatalf("users DDL=\n%s\nwant\n%s", users, want)
	}

	_, child, err := buildCreateSQL(storage.TableSpec{
		Name:       "searches",
		PrimaryKey: &storage.PrimaryKeySpec{Name: "search_id", AutoIncrement: true},
		Columns: []storage.ColumnSpec{
			{Name: "user_id", Type: storage.Integer, Nullable: storage.Bool(false), References: "users(user_id)"},
			{Name: "search_date", Type: storage.Timestamp},
			{Name: "score", Type: storage.Real},
		},
	})
	if err != nil {
		t.Fatalf("buildCreateSQL: %v", err)
	}
	for _, frag := range []string{
		`"search_id" BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY`,
		`"user_id" BIGINT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE`,
		`"search_date" TIMESTAMP`,
		`"score" DOUBLE PRECISION`,
	} {
		if !strings.Contains(child, frag) {
			t.Fatalf("child DDL missing %q:\n%s", frag, child)
		}
	}
}

func TestBuildCreateSQL_SchemaQualified(t *testing.T) {
	t.Parallel()

	schemaSQL, baseSQL, err := buildCreateSQL(storage.TableSpec{
		Name:    "tiktok.searches",
		Columns: []storage.ColumnSpec{{Name: "search_term", Type: storage.Text}},
	})
	if err != nil {
		t.Fatalf("buildCreateSQL: %v", err)
	}
	if schemaSQL != `CREATE SCHEMA IF NOT EXISTS "tiktok";` {
		t.Fatalf("schemaSQL=%q", schemaSQL)
	}
	if !strings.HasPrefix(baseSQL, `CREATE TABLE IF NOT EXISTS "tiktok"."searches" (`) {
		t.Fatalf("baseSQL=%q", baseSQL)
	}
}

func TestBuildCreateSQL_Errors(t *testing.T) {
	t.Parallel()

	tests := []storage.TableSpec{
		{Name: ""},
		{Name: "t"},
		{Name: "t", Columns: []storage.ColumnSpec{{Name: "a", Type: "blob"}}},
		{Name: "t", Columns: []storage.ColumnSpec{{Name: " ", Type: storage.Text}}},
		{Name: "t", PrimaryKey: &storage.PrimaryKeySpec{}},
	}
	for i, spec := range tests {
		if _, _, err := buildCreateSQL(spec); err == nil {
			t.Fatalf("case %d: expected error for %+v", i, spec)
		}
	}
}

func TestConvertRows_Timestamps(t *testing.T) {
	t.Parallel()

	cols := []string{"search_date", "search_term"}
	rows := [][]any{{"2023-01-01 10:00:00", "go"}, {"garbage", "sql"}, {nil, "x"}}
	got := convertRows(cols, rows, map[string]bool{"search_date": true})

	want := time.Date(2023, 1, 1, 10, 0, 0, 0, time.UTC)
	if ts, ok := got[0][0].(time.Time); !ok || !ts.Equal(want) {
		t.Fatalf("row0=%#v, want %v", got[0][0], want)
	}
	if got[1][0] != nil || got[2][0] != nil {
		t.Fatalf("invalid timestamps not nulled: %#v %#v", got[1][0], got[2][0])
	}
	if rows[0][0] != "2023-01-01 10:00:00" {
		t.Fatalf("input modified")
	}
	if same := convertRows(cols, rows, nil); &same[0] != &rows[0] {
		t.Fatalf("rows copied without timestamp columns")
	}
}
