// Package load writes an extraction result into a database through a
// storage.Repository.
//
// Two modes exist. Script mode replays the generated SQLite script verbatim and
// needs a backend that can execute it. Tables mode is dialect-neutral: it
// derives typed table specs from the catalog and the dataset, lets the backend
// create them, and inserts the rows in batches.
package load

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"strconv"
	"time"

	"tiksql/internal/catalog"
	"tiksql/internal/classify"
	"tiksql/internal/dataset"
	"tiksql/internal/datefmt"
	"tiksql/internal/extract"
	"tiksql/internal/metrics"
	"tiksql/internal/sqlgen"
	"tiksql/internal/storage"
)

// ErrScriptUnsupported is returned by script mode when the backend cannot
// execute SQL scripts.
var ErrScriptUnsupported = errors.New("load: backend cannot execute scripts; use mode=tables")

// DefaultBatchSize is used when Loader.BatchSize is not positive.
const DefaultBatchSize = 500

// Mode selects how a result is loaded.
type Mode string

const (
	ModeScript Mode = "script"
	ModeTables Mode = "tables"
)

// ParseMode parses a mode name. The empty name is ModeTables.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeTables:
		return ModeTables, nil
	case ModeScript:
		return ModeScript, nil
	}
	return "", fmt.Errorf("load: unknown mode %q (want script or tables)", s)
}

// Logger is the logging surface used by Loader.
type Logger interface {
	Printf(format string, v ...any)
}

var discardLogger = log.New(io.Discard, "", 0)

// Report summarizes one load.
type Report struct {
	Mode     Mode                 `json:"mode"`
	Rows     map[string]int64     `json:"rows"`
	Script   storage.ScriptReport `json:"script"`
	Duration time.Duration        `json:"duration"`
}

// Total sums the inserted rows.
func (r Report) Total() int64 {
	var n int64
	for _, c := range r.Rows {
		n += c
	}
	return n
}

// Loader loads results into Repo.
type Loader struct {
	Repo      storage.Repository
	Catalog   *catalog.Catalog
	Logger    Logger
	BatchSize int
	// Location re-parses free-form dates. Defaults to time.Local.
	Location *time.Location
}

func (l Loader) logf(format string, v ...any) {
	if l.Logger == nil {
		discardLogger.Printf(format, v...)
		return
	}
	l.Logger.Printf(format, v...)
}

// Load writes res using mode.
//
// Errors:
//   - ErrScriptUnsupported when mode is script and Repo is not a ScriptRunner.
//   - The first backend error, wrapped with the table it occurred on.
func (l Loader) Load(ctx context.Context, mode Mode, res *extract.Result) (Report, error) {
	start := time.Now()
	rep := Report{Mode: mode, Rows: map[string]int64{}}
	if res == nil || res.Data == nil {
		return rep, errors.New("load: empty result")
	}

	var err error
	switch mode {
	case ModeScript:
		err = l.script(ctx, res, &rep)
	case ModeTables:
		err = l.tables(ctx, res.Data, &rep)
	default:
		err = fmt.Errorf("load: unknown mode %q", mode)
	}
	rep.Duration = time.Since(start)

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RecordStep("load", status, rep.Duration)
	if err != nil {
		l.logf("stage=load mode=%s error=%v", mode, err)
		return rep, err
	}
	l.logf("stage=load ok mode=%s rows=%d duration=%s", mode, rep.Total(), rep.Duration)
	return rep, nil
}

func (l Loader) script(ctx context.Context, res *extract.Result, rep *Report) error {
	runner, ok := l.Repo.(storage.ScriptRunner)
	if !ok {
		return ErrScriptUnsupported
	}
	sr, err := runner.ExecScript(ctx, res.SQL)
	if err != nil {
		return err
	}
	rep.Script = sr
	if res.Data.User != nil {
		rep.Rows[catalog.UsersTable] = 1
	}
	for table, n := range res.Data.Statistics {
		if n > 0 && table != catalog.UsersTable {
			rep.Rows[table] = int64(n)
		}
	}
	return nil
}

func (l Loader) tables(ctx context.Context, ds *dataset.Dataset, rep *Report) error {
	if l.Catalog == nil {
		return errors.New("load: catalog is required for mode=tables")
	}
	plans := Plan(l.Catalog, ds)
	specs := make([]storage.TableSpec, len(plans))
	for i, p := range plans {
		specs[i] = p.Spec
	}
	if err := l.Repo.EnsureTables(ctx, specs); err != nil {
		return err
	}

	batch := l.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	loc := l.Location
	if loc == nil {
		loc = time.Local
	}

	for _, p := range plans {
		if len(p.Rows) == 0 {
			continue
		}
		cols := p.Columns()
		var written int64
		for startIdx := 0; startIdx < len(p.Rows); startIdx += batch {
			if err := ctx.Err(); err != nil {
				return err
			}
			end := min(startIdx+batch, len(p.Rows))
			values := p.values(cols, p.Rows[startIdx:end], loc)
			n, err := l.Repo.InsertRows(ctx, p.Spec.Name, cols, values)
			if err != nil {
				return fmt.Errorf("load %s: %w", p.Spec.Name, err)
			}
			written += n
		}
		rep.Rows[p.Spec.Name] = written
		metrics.RecordRows(p.Spec.Name, int(written))
		l.logf("stage=load table=%s rows=%d columns=%d", p.Spec.Name, written, len(cols))
	}
	return nil
}

// TablePlan is the typed layout of one table plus the rows destined for it.
type TablePlan struct {
	Spec storage.TableSpec
	Rows []*dataset.Row

	// numeric marks columns classified as numbers: unparsable strings load as NULL.
	numeric map[string]bool
}

// Columns returns the insert column list: the primary key and spec columns
// that at least one row carries, in spec order.
func (p TablePlan) Columns() []string {
	names := make([]string, 0, len(p.Spec.Columns)+1)
	if p.Spec.PrimaryKey != nil {
		names = append(names, p.Spec.PrimaryKey.Name)
	}
	for _, c := range p.Spec.Columns {
		names = append(names, c.Name)
	}

	var out []string
	for _, name := range names {
		for _, r := range p.Rows {
			if r.Has(name) {
				out = append(out, name)
				break
			}
		}
	}
	return out
}

func (p TablePlan) values(cols []string, rows []*dataset.Row, loc *time.Location) [][]any {
	types := make(map[string]storage.ColumnType, len(p.Spec.Columns)+1)
	if p.Spec.PrimaryKey != nil {
		types[p.Spec.PrimaryKey.Name] = storage.Integer
	}
	for _, c := range p.Spec.Columns {
		types[c.Name] = c.Type
	}
	out := make([][]any, len(rows))
	for i, r := range rows {
		vals := make([]any, len(cols))
		for j, c := range cols {
			v, _ := r.Get(c)
			vals[j] = Coerce(types[c], v, loc)
		}
		out[i] = vals
	}
	return out
}

// Plan derives the table layouts for ds: users first, then every non-users
// catalog table in sorted order, empty ones included.
//
// Column types start from the same inference the script's DDL uses and are
// widened by the values actually present: an integer column holding a
// fraction becomes real, and a number column holding free text becomes text
// unless the catalog classifies it as numeric.
func Plan(cat *catalog.Catalog, ds *dataset.Dataset) []TablePlan {
	plans := []TablePlan{usersPlan(cat, ds)}
	for _, table := range sqlgen.DataTables(cat) {
		plans = append(plans, dataPlan(cat, ds, table))
	}
	return plans
}

func usersPlan(cat *catalog.Catalog, ds *dataset.Dataset) TablePlan {
	p := TablePlan{
		Spec: storage.TableSpec{
			Name:       catalog.UsersTable,
			PrimaryKey: &storage.PrimaryKeySpec{Name: "user_id"},
		},
		numeric: map[string]bool{},
	}
	if ds != nil && ds.User != nil {
		p.Rows = []*dataset.Row{ds.User}
	}

	seen := map[string]bool{"user_id": true}
	for _, c := range sqlgen.UserColumns {
		if seen[c.Name] {
			continue
		}
		seen[c.Name] = true
		spec := storage.ColumnSpec{Name: c.Name, Type: storageType(c.Type)}
		if c.Name == "username" {
			spec.Nullable = storage.Bool(false)
		}
		p.Spec.Columns = append(p.Spec.Columns, spec)
		if c.Type == sqlgen.Integer {
			p.numeric[c.Name] = true
		}
	}

	profile, _ := cat.ForTable(catalog.UsersTable)
	for _, r := range p.Rows {
		for _, k := range r.Keys() {
			if seen[k] {
				continue
			}
			seen[k] = true
			v, _ := r.Get(k)
			p.addColumn(profile, k, sqlgen.TypeOf(profile, k, v))
		}
	}
	p.widen()
	return p
}

func dataPlan(cat *catalog.Catalog, ds *dataset.Dataset, table string) TablePlan {
	pk := catalog.PrimaryKey(table)
	p := TablePlan{
		Spec: storage.TableSpec{
			Name:       table,
			PrimaryKey: &storage.PrimaryKeySpec{Name: pk, AutoIncrement: true},
			Columns: []storage.ColumnSpec{{
				Name:       "user_id",
				Type:       storage.Integer,
				Nullable:   storage.Bool(false),
				References: catalog.UsersTable + "(user_id)",
			}},
		},
		numeric: map[string]bool{},
	}
	if ds != nil {
		p.Rows = ds.Tables[table]
	}

	e, _ := cat.ForTable(table)
	seen := map[string]bool{"user_id": true, pk: true, "username": true}
	for _, c := range sqlgen.TableColumns(cat, ds, table) {
		seen[c.Name] = true
		p.addColumn(e, c.Name, c.Type)
	}
	for _, r := range p.Rows {
		for _, k := range r.Keys() {
			if seen[k] {
				continue
			}
			seen[k] = true
			v, _ := r.Get(k)
			p.addColumn(e, k, sqlgen.TypeOf(e, k, v))
		}
	}
	p.widen()
	return p
}

func (p *TablePlan) addColumn(e catalog.Entry, name string, t sqlgen.ColumnType) {
	p.Spec.Columns = append(p.Spec.Columns, storage.ColumnSpec{Name: name, Type: storageType(t)})
	if classify.Classify(name, classify.Overrides{
		DateFields:    e.DateFields,
		NumericFields: e.NumericFields,
		IntegerFields: e.IntegerFields,
	}) == classify.Numeric {
		p.numeric[name] = true
	}
}

func (p *TablePlan) widen() {
	for i := range p.Spec.Columns {
		c := &p.Spec.Columns[i]
		if c.Name == "user_id" {
			continue
		}
		for _, r := range p.Rows {
			v, ok := r.Get(c.Name)
			if !ok {
				continue
			}
			c.Type = Widen(c.Type, v, p.numeric[c.Name])
		}
	}
}

func storageType(t sqlgen.ColumnType) storage.ColumnType {
	switch t {
	case sqlgen.Integer:
		return storage.Integer
	case sqlgen.Real:
		return storage.Real
	case sqlgen.Timestamp:
		return storage.Timestamp
	}
	return storage.Text
}

// Widen returns the type a column of type t needs to also hold v. Timestamp
// and text columns never change. numeric keeps number columns numeric when v is
// unparsable text.
func Widen(t storage.ColumnType, v any, numeric bool) storage.ColumnType {
	if t != storage.Integer && t != storage.Real {
		return t
	}
	switch x := v.(type) {
	case nil, int64, int, bool:
		return t
	case float64:
		if t == storage.Integer && !isWhole(x) {
			return storage.Real
		}
		return t
	case string:
		if x == "" || datefmt.IsSentinel(x) {
			return t
		}
		if n, ok := classify.ParseNumber(x); ok {
			return Widen(t, n, numeric)
		}
	}
	if numeric {
		return t
	}
	return storage.Text
}

func isWhole(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0) && f == math.Trunc(f)
}

// Coerce converts a dataset value to the Go value stored in a column of type t.
//
// Edge cases:
//   - nil, "" and sentinels are NULL in every column type.
//   - Number columns parse the leading number of strings; failures are NULL.
//   - Timestamp columns re-parse non-canonical dates in loc and keep the
//     canonical string; backends convert it to their native type.
//   - Text columns render objects and arrays as JSON and booleans as 1/0.
func Coerce(t storage.ColumnType, v any, loc *time.Location) any {
	if v == nil {
		return nil
	}
	if s, ok := v.(string); ok && (s == "" || datefmt.IsSentinel(s)) {
		return nil
	}

	switch t {
	case storage.Integer, storage.Real:
		n := toNumber(v)
		if n == nil {
			return nil
		}
		if t == storage.Real {
			switch x := n.(type) {
			case int64:
				return float64(x)
			case float64:
				return x
			}
		}
		if f, ok := n.(float64); ok {
			if !isWhole(f) {
				return nil
			}
			return int64(f)
		}
		return n
	case storage.Timestamp:
		switch v.(type) {
		case string, int64, int, float64:
			if s, ok := datefmt.ParseIn(v, loc).(string); ok && s != "" {
				return s
			}
		}
		return nil
	}
	return toText(v)
}

func toNumber(v any) any {
	switch x := v.(type) {
	case int64:
		return x
	case int:
		return int64(x)
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
		return x
	case string:
		n, ok := classify.ParseNumber(x)
		if !ok {
			return nil
		}
		return n
	}
	return nil
}

func toText(v any) any {
	switch x := v.(type) {
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		if x {
			return "1"
		}
		return "0"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
