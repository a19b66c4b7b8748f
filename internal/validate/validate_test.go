package validate

import (
	"strings"
	"testing"
	"time"

	"tiksql/internal/catalog"
	"tiksql/internal/dataset"
)

func row(kv ...any) *dataset.Row {
	r := dataset.NewRow()
	for i := 0; i+1 < len(kv); i += 2 {
		r.Set(kv[i].(string), kv[i+1])
	}
	return r
}

func fixedNow() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }

func TestDates_FlagsNonCanonicalStrings(t *testing.T) {
	t.Parallel()

	ds := dataset.New()
	ds.Append("users", row("username", "alice", "created_at", "garbage"))
	ds.Append("comments",
		row("comment_date", "2023-01-01 10:00:00"),
		row("comment_date", "yesterday"),
		row("comment_date", nil),
		row("comment_date", int64(5)),
		row("comment_date", "2023-01-02"),
	)

	v := Validator{Catalog: catalog.Builtin(), Now: fixedNow}
	v.Dates(ds)

	if len(ds.Warnings) != 1 {
		t.Fatalf("warnings=%d, want 1: %+v", len(ds.Warnings), ds.Warnings)
	}
	w := ds.Warnings[0]
	if w.Type != dataset.WarnDateValidation || w.Table != "comments" || w.Field != "comment_date" {
		t.Fatalf("warning=%+v", w)
	}
	if w.Row == nil || *w.Row != 1 || w.Value != "yesterday" || w.Expected != ExpectedDateFormat {
		t.Fatalf("warning detail=%+v", w)
	}
	if w.Timestamp != "2024-03-01T12:00:00.000Z" {
		t.Fatalf("timestamp=%q", w.Timestamp)
	}
}

func TestDates_SamplesFirstRowsOnly(t *testing.T) {
	t.Parallel()

	ds := dataset.New()
	for i := 0; i < SampleSize+20; i++ {
		v := "2023-01-01"
		if i >= SampleSize {
			v = "bad"
		}
		ds.Append("searches", row("search_date", v))
	}
	Validator{Catalog: catalog.Builtin()}.Dates(ds)
	if len(ds.Warnings) != 0 {
		t.Fatalf("warnings=%d, want 0 (rows past the sample are not checked)", len(ds.Warnings))
	}
}

func TestUserData(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		user   *dataset.Row
		issues []string
	}{
		{name: "ok", user: row("username", "alice", "email", "a@b.co"), issues: nil},
		{name: "short_name", user: row("username", "al"), issues: []string{IssueLength}},
		{name: "long_name", user: row("username", strings.Repeat("x", 51)), issues: []string{IssueLength}},
		{name: "bad_email", user: row("username", "alice", "email", "alice.example.com"), issues: []string{IssueFormat}},
		{name: "empty_email_ignored", user: row("username", "alice", "email", ""), issues: nil},
		{name: "both", user: row("username", "a", "email", "a@b"), issues: []string{IssueLength, IssueFormat}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ds := dataset.New()
			ds.User = tc.user
			Validator{Catalog: catalog.Builtin()}.UserData(ds)

			if len(ds.Warnings) != len(tc.issues) {
				t.Fatalf("warnings=%+v, want issues %v", ds.Warnings, tc.issues)
			}
			for i, w := range ds.Warnings {
				if w.Type != dataset.WarnDataValidation || w.Issue != tc.issues[i] {
					t.Fatalf("warning[%d]=%+v, want issue %s", i, w, tc.issues[i])
				}
			}
		})
	}
}

func TestRun_CountsAddedWarnings(t *testing.T) {
	t.Parallel()

	ds := dataset.New()
	ds.User = row("username", "al")
	ds.Append("users", ds.User)
	ds.Append("posts", row("post_date", "bad"))
	ds.Warn(dataset.Warning{Type: dataset.WarnExtraction})

	if n := (Validator{Catalog: catalog.Builtin()}).Run(ds); n != 2 {
		t.Fatalf("Run()=%d, want 2", n)
	}
}

func TestDateStatistics(t *testing.T) {
	t.Parallel()

	ds := dataset.New()
	ds.Append("users", row("username", "alice", "birth_date", "1990-05-01"))
	ds.Append("comments",
		row("comment_date", "2023-01-01 10:00:00"),
		row("comment_date", "2023-01-11"),
		row("comment_date", "not a date"),
		row("comment_text", "no date"),
	)
	ds.Append("favorite_effects", row("effect_link", "x"))

	st := DateStatistics(catalog.Builtin(), ds)

	c, ok := st.ByTable["comments"]["comment_date"]
	if !ok {
		t.Fatalf("comments stats missing: %+v", st.ByTable)
	}
	if c.Count != 3 || c.NonNull != 3 || c.NullCount != 1 {
		t.Fatalf("comment_date counts=%+v", c)
	}
	if c.MinDate != "2023-01-01" || c.MaxDate != "2023-01-11" {
		t.Fatalf("comment_date range=%s..%s", c.MinDate, c.MaxDate)
	}
	if _, ok := st.ByTable["users"]["birth_date"]; !ok {
		t.Fatalf("users birth_date stats missing")
	}

	if st.Overall.TotalDateValues != 4 {
		t.Fatalf("TotalDateValues=%d, want 4", st.Overall.TotalDateValues)
	}
	r := st.Overall.DateRange
	if r == nil || r.Min != "1990-05-01" || r.Max != "2023-01-11" {
		t.Fatalf("DateRange=%+v", r)
	}
	want := int(time.Date(2023, 1, 11, 0, 0, 0, 0, time.UTC).Sub(time.Date(1990, 5, 1, 0, 0, 0, 0, time.UTC)).Hours() / 24)
	if r.Days != want {
		t.Fatalf("Days=%d, want %d", r.Days, want)
	}
}

func TestDateStatistics_Empty(t *testing.T) {
	t.Parallel()

	st := DateStatistics(catalog.Builtin(), dataset.New())
	if st.Overall.DateRange != nil || st.Overall.TotalDateFields != 0 || len(st.ByTable) != 0 {
		t.Fatalf("stats=%+v, want empty", st)
	}
}
