package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"tiksql/internal/dataset"
	"tiksql/internal/extract"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func sampleResult() *extract.Result {
	ds := dataset.New()
	u := dataset.NewRow()
	u.Set("user_id", int64(933608))
	u.Set("username", "alice")
	ds.User = u
	ds.Append("users", u)
	for i := 0; i < 7; i++ {
		r := dataset.NewRow()
		r.Set("search_term", "q")
		ds.Append("searches", r)
	}
	ds.EnsureStatistics([]string{"users", "searches", "comments"})
	return &extract.Result{
		RunID:      "run-1",
		UserID:     933608,
		Username:   "alice",
		Data:       ds,
		SQL:        []string{"CREATE TABLE a (x);", "INSERT INTO a (x) VALUES (1);"},
		Statistics: ds.Statistics,
		Duration:   1500 * time.Millisecond,
	}
}

func TestWriteSQL(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := WriteSQL(&buf, sampleResult(), fixedNow); err != nil {
		t.Fatalf("WriteSQL err=%v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"-- TikTok Data SQL Export\n",
		"-- Generated: 2024-05-01T12:00:00.000Z\n",
		"-- Username: alice\n",
		"-- User ID: 933608\n",
		"-- Run ID: run-1\n",
		"-- Total Tables Created: 3\n",
		"-- Tables With Data: 2\n",
		"-- Empty Tables: 1\n",
		"-- Total Records: 8\n",
		"-- Total SQL Statements: 2\n\n",
		"CREATE TABLE a (x);\n\nINSERT INTO a (x) VALUES (1);\n",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}

	if err := WriteSQL(&buf, &extract.Result{}, fixedNow); !errors.Is(err, ErrNoStatements) {
		t.Fatalf("WriteSQL(empty) err=%v, want ErrNoStatements", err)
	}
}

func TestChunks(t *testing.T) {
	t.Parallel()

	stmts := []string{"a", "b", "c", "d", "e"}
	var sizes []int
	err := Chunks(stmts, 2, func(chunk []string, index, total int) error {
		if total != 3 {
			t.Fatalf("total=%d, want 3", total)
		}
		sizes = append(sizes, len(chunk))
		return nil
	})
	if err != nil {
		t.Fatalf("Chunks err=%v", err)
	}
	if len(sizes) != 3 || sizes[2] != 1 {
		t.Fatalf("sizes=%v, want [2 2 1]", sizes)
	}

	boom := errors.New("boom")
	calls := 0
	err = Chunks(stmts, 0, func([]string, int, int) error { calls++; return boom })
	if !errors.Is(err, boom) || calls != 1 {
		t.Fatalf("Chunks err=%v calls=%d", err, calls)
	}
}

func TestWriteReport(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := WriteReport(&buf, sampleResult(), fixedNow); err != nil {
		t.Fatalf("WriteReport err=%v", err)
	}
	var got struct {
		Metadata struct {
			Username       string  `json:"username"`
			UserID         int64   `json:"userId"`
			ExtractionTime float64 `json:"extractionTime"`
			TotalTables    int     `json:"totalTables"`
			TablesWithData int     `json:"tablesWithData"`
		} `json:"metadata"`
		User        map[string]any   `json:"user"`
		TableCounts map[string]int   `json:"table_counts"`
		SampleData  map[string][]any `json:"sample_data"`
		Warnings    []any            `json:"warnings"`
	}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("Unmarshal err=%v\n%s", err, buf.String())
	}
	if got.Metadata.Username != "alice" || got.Metadata.UserID != 933608 || got.Metadata.ExtractionTime != 1.5 {
		t.Fatalf("metadata=%+v", got.Metadata)
	}
	if got.Metadata.TotalTables != 3 || got.Metadata.TablesWithData != 2 {
		t.Fatalf("metadata tables=%+v", got.Metadata)
	}
	if got.User["username"] != "alice" {
		t.Fatalf("user=%v", got.User)
	}
	if n, ok := got.TableCounts["comments"]; !ok || n != 0 {
		t.Fatalf("table_counts[comments]=%d,%v", n, ok)
	}
	if len(got.SampleData["searches"]) != SampleRows {
		t.Fatalf("sample searches=%d, want %d", len(got.SampleData["searches"]), SampleRows)
	}
	if _, ok := got.SampleData["comments"]; ok {
		t.Fatalf("empty table sampled")
	}
	if got.Warnings == nil {
		t.Fatalf("warnings should encode as []")
	}
}
