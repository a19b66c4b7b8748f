package storage

import (
	"reflect"
	"testing"
)

func TestSplitScript(t *testing.T) {
	t.Parallel()

	src := `-- TikTok Data SQL Export
-- Username: alice

CREATE TABLE t (x TEXT);

INSERT INTO t (x) VALUES ('a;b'), ('it''s; fine');

-- trailing note about triggers
CREATE TRIGGER IF NOT EXISTS trg
BEFORE INSERT ON t
FOR EACH ROW
BEGIN
    INSERT INTO log (v) SELECT CASE WHEN NEW.x = '' THEN 'empty' ELSE NEW.x END;
    INSERT INTO log (v) VALUES ('two');
END;

CREATE VIEW v AS SELECT "semi;colon" FROM t; -- done
`
	got := SplitScript(src)
	want := []string{
		"CREATE TABLE t (x TEXT);",
		"INSERT INTO t (x) VALUES ('a;b'), ('it''s; fine');",
		"CREATE TRIGGER IF NOT EXISTS trg\nBEFORE INSERT ON t\nFOR EACH ROW\nBEGIN\n" +
			"    INSERT INTO log (v) SELECT CASE WHEN NEW.x = '' THEN 'empty' ELSE NEW.x END;\n" +
			"    INSERT INTO log (v) VALUES ('two');\nEND;",
		`CREATE VIEW v AS SELECT "semi;colon" FROM t;`,
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("SplitScript=%#v\nwant %#v", got, want)
	}
}

func TestSplitScript_EdgeCases(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"comments only", "-- a\n-- b\n", nil},
		{"no terminator", "SELECT 1", []string{"SELECT 1"}},
		{"unterminated literal", "INSERT INTO t VALUES ('x;", []string{"INSERT INTO t VALUES ('x;"}},
		{"drop trigger", "DROP TRIGGER a; SELECT 1;", []string{"DROP TRIGGER a;", "SELECT 1;"}},
		{"word containing end", "SELECT weekend FROM t; SELECT 2;", []string{"SELECT weekend FROM t;", "SELECT 2;"}},
	}
	for _, tt := range tests {
		if got := SplitScript(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("%s: SplitScript=%#v, want %#v", tt.name, got, tt.want)
		}
	}
}

func TestScriptReport_Count(t *testing.T) {
	t.Parallel()

	var r ScriptReport
	for _, s := range []string{
		"-- header\nCREATE TABLE a (x);",
		"CREATE VIEW v AS SELECT 1;",
		"CREATE TRIGGER t BEFORE INSERT ON a BEGIN SELECT 1; END;",
		"CREATE UNIQUE INDEX i ON a(x);",
		"INSERT INTO a VALUES (1);",
		"PRAGMA foreign_keys = ON;",
	} {
		r.Count(s)
	}
	want := ScriptReport{Statements: 6, Tables: 1, Views: 1, Triggers: 1, Indexes: 1, Inserts: 1}
	if r != want {
		t.Fatalf("report=%+v, want %+v", r, want)
	}
}
