// Package export writes extraction results as a SQL script or a JSON report.
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"tiksql/internal/dataset"
	"tiksql/internal/extract"
	"tiksql/internal/validate"
)

// ErrNoStatements is returned when a result has no SQL to write.
var ErrNoStatements = errors.New("no SQL statements to export")

// DefaultChunkSize is the statement count per chunk when none is given.
const DefaultChunkSize = 1000

// SampleRows is the number of rows per table included in a report.
const SampleRows = 5

type summary struct {
	total, withData, records int
}

func summarize(stats map[string]int) summary {
	s := summary{total: len(stats)}
	for _, n := range stats {
		if n > 0 {
			s.withData++
		}
		s.records += n
	}
	return s
}

// WriteSQL writes a commented header followed by res.SQL, one blank line
// between statements.
func WriteSQL(w io.Writer, res *extract.Result, now time.Time) error {
	if res == nil || len(res.SQL) == 0 {
		return ErrNoStatements
	}
	s := summarize(res.Statistics)

	var b strings.Builder
	b.WriteString("-- TikTok Data SQL Export\n")
	fmt.Fprintf(&b, "-- Generated: %s\n", now.UTC().Format(dataset.TimestampLayout))
	fmt.Fprintf(&b, "-- Username: %s\n", res.Username)
	fmt.Fprintf(&b, "-- User ID: %d\n", res.UserID)
	fmt.Fprintf(&b, "-- Run ID: %s\n", res.RunID)
	fmt.Fprintf(&b, "-- Total Tables Created: %d\n", s.total)
	fmt.Fprintf(&b, "-- Tables With Data: %d\n", s.withData)
	fmt.Fprintf(&b, "-- Empty Tables: %d\n", s.total-s.withData)
	fmt.Fprintf(&b, "-- Total Records: %d\n", s.records)
	fmt.Fprintf(&b, "-- Total SQL Statements: %d\n\n", len(res.SQL))
	b.WriteString(strings.Join(res.SQL, "\n\n"))
	b.WriteString("\n")

	_, err := io.WriteString(w, b.String())
	return err
}

// Chunks calls fn for consecutive slices of at most size statements. It stops
// at the first error.
func Chunks(stmts []string, size int, fn func(chunk []string, index, total int) error) error {
	if size <= 0 {
		size = DefaultChunkSize
	}
	total := (len(stmts) + size - 1) / size
	for i := 0; i < total; i++ {
		end := (i + 1) * size
		if end > len(stmts) {
			end = len(stmts)
		}
		if err := fn(stmts[i*size:end], i, total); err != nil {
			return fmt.Errorf("chunk %d/%d: %w", i+1, total, err)
		}
	}
	return nil
}

// Metadata heads a report.
type Metadata struct {
	Generated      string  `json:"generated"`
	Username       string  `json:"username"`
	UserID         int64   `json:"userId"`
	RunID          string  `json:"runId"`
	ExtractionTime float64 `json:"extractionTime"`
	TotalTables    int     `json:"totalTables"`
	TablesWithData int     `json:"tablesWithData"`
}

// Report is the JSON summary of one run.
type Report struct {
	Metadata       Metadata                  `json:"metadata"`
	User           *dataset.Row              `json:"user"`
	Statistics     map[string]int            `json:"statistics"`
	DateStatistics validate.Stats            `json:"dateStatistics"`
	Warnings       []dataset.Warning         `json:"warnings"`
	Errors         []dataset.RunError        `json:"errors"`
	TableCounts    map[string]int            `json:"table_counts"`
	SampleData     map[string][]*dataset.Row `json:"sample_data"`
}

// NewReport builds the report for res.
func NewReport(res *extract.Result, now time.Time) Report {
	s := summarize(res.Statistics)
	r := Report{
		Metadata: Metadata{
			Generated:      now.UTC().Format(dataset.TimestampLayout),
			Username:       res.Username,
			UserID:         res.UserID,
			RunID:          res.RunID,
			ExtractionTime: res.Duration.Seconds(),
			TotalTables:    s.total,
			TablesWithData: s.withData,
		},
		Statistics:     res.Statistics,
		DateStatistics: res.DateStats,
		Warnings:       res.Warnings,
		Errors:         res.Errors,
		TableCounts:    make(map[string]int, len(res.Statistics)),
		SampleData:     map[string][]*dataset.Row{},
	}
	if r.Warnings == nil {
		r.Warnings = []dataset.Warning{}
	}
	if r.Errors == nil {
		r.Errors = []dataset.RunError{}
	}
	for t, n := range res.Statistics {
		r.TableCounts[t] = n
	}
	if res.Data != nil {
		r.User = res.Data.User
		tables := make([]string, 0, len(res.Data.Tables))
		for t := range res.Data.Tables {
			tables = append(tables, t)
		}
		sort.Strings(tables)
		for _, t := range tables {
			rows := res.Data.Tables[t]
			if len(rows) == 0 {
				continue
			}
			if len(rows) > SampleRows {
				rows = rows[:SampleRows]
			}
			r.SampleData[t] = rows
		}
	}
	return r
}

// WriteReport writes the indented JSON report for res.
func WriteReport(w io.Writer, res *extract.Result, now time.Time) error {
	if res == nil {
		return errors.New("export: nil result")
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(NewReport(res, now))
}
