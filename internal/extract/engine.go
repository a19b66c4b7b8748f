// Package extract turns a decoded account export into a relational dataset and
// the SQL script that materializes it.
//
// An Engine walks its catalog against one document at a time. A second call to
// Extract supersedes a run still in flight; Abort cancels it. Both surface as
// ErrAborted, which callers can tell apart from a failed run.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"maps"
	"math/rand/v2"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"tiksql/internal/catalog"
	"tiksql/internal/config"
	"tiksql/internal/dataset"
	"tiksql/internal/datefmt"
	"tiksql/internal/identity"
	"tiksql/internal/metrics"
	"tiksql/internal/normalize"
	pjson "tiksql/internal/parser/json"
	"tiksql/internal/pathres"
	"tiksql/internal/sqlgen"
	"tiksql/internal/validate"
)

var (
	// ErrAborted reports a cancelled run: Abort, a cancelled context, or a newer Extract.
	ErrAborted = errors.New("extraction aborted")
	// ErrInvalidDocument reports a document whose root is not a JSON object.
	ErrInvalidDocument = errors.New("invalid JSON data provided")
	// ErrNoData reports a document in which no catalog path resolves.
	ErrNoData = errors.New("no catalog path resolved to any data")
)

// Logger is the minimal logging interface used by the engine.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// Status is the engine state.
type Status int

const (
	Idle Status = iota
	Extracting
	Complete
	Aborted
	Failed
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Extracting:
		return "extracting"
	case Complete:
		return "complete"
	case Aborted:
		return "aborted"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// ProgressFunc receives progress snapshots synchronously, in registration order.
type ProgressFunc func(dataset.Progress)

// Result bundles everything one run produced.
type Result struct {
	RunID      string
	UserID     int64
	Username   string
	Data       *dataset.Dataset
	SQL        []string
	Statistics map[string]int
	Warnings   []dataset.Warning
	Errors     []dataset.RunError
	Progress   dataset.Progress
	DateStats  validate.Stats
	Duration   time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(l Logger) Option { return func(e *Engine) { e.logger = l } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithLocation sets the zone used when reformatting free-form dates.
func WithLocation(loc *time.Location) Option { return func(e *Engine) { e.loc = loc } }

// WithRand sets the source of random ids for exports without a username.
func WithRand(r *rand.Rand) Option { return func(e *Engine) { e.rng = r } }

// WithNormalize rewrites message and link columns after extraction.
func WithNormalize(opts normalize.Options) Option {
	return func(e *Engine) { e.norm = &opts }
}

type listener struct {
	id int
	fn ProgressFunc
}

// Engine is one extraction engine. It is safe for concurrent use, but runs are
// serialized: only the most recent Extract completes.
//
// A run works on its own dataset. Data, Statistics, Warnings and Errors report
// the last finished run; Progress is updated live.
type Engine struct {
	cat    *catalog.Catalog
	logger Logger
	now    func() time.Time
	loc    *time.Location
	rng    *rand.Rand
	norm   *normalize.Options
	ids    *identity.Registry

	mu        sync.Mutex
	cfg       config.Extraction
	status    Status
	seq       uint64
	cancel    context.CancelCauseFunc
	listeners []listener
	nextID    int

	data      *dataset.Dataset
	progress  dataset.Progress
	sql       []string
	dateStats validate.Stats
	userID    int64
	username  string
}

// New returns an idle engine. cfg is used as given; see SetConfig for validation.
func New(cat *catalog.Catalog, cfg config.Extraction, opts ...Option) *Engine {
	e := &Engine{
		cat:  cat,
		cfg:  cfg,
		now:  time.Now,
		loc:  time.Local,
		data: dataset.New(),
	}
	for _, o := range opts {
		o(e)
	}
	if e.logger == nil {
		e.logger = log.New(io.Discard, "", 0)
	}
	e.ids = identity.NewRegistry(e.rng)
	return e
}

func (e *Engine) logf(format string, v ...any) {
	e.logger.Printf(format, v...)
}

// run is the state of one Extract call.
type run struct {
	ctx      context.Context
	seq      uint64
	cfg      config.Extraction
	ds       *dataset.Dataset
	userID   int64
	username string
	ticks    int
}

// tick counts one processed element and, every ChunkSize elements, yields and
// checks for cancellation.
func (r *run) tick() error {
	r.ticks++
	if r.ticks%r.cfg.ChunkSize != 0 {
		return nil
	}
	runtime.Gosched()
	return r.aborted()
}

func (r *run) aborted() error {
	if r.ctx.Err() == nil {
		return nil
	}
	cause := context.Cause(r.ctx)
	if errors.Is(cause, ErrAborted) {
		return ErrAborted
	}
	return fmt.Errorf("%w: %w", ErrAborted, cause)
}

// ExtractReader decodes a document from r and extracts it.
func (e *Engine) ExtractReader(ctx context.Context, r io.Reader) (*Result, error) {
	doc, err := pjson.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	return e.Extract(ctx, doc)
}

// Extract runs one extraction over doc.
//
// Steps: reset run state, extract the user, estimate the total, extract every
// other catalog path, validate dates, normalize (when configured), generate SQL.
//
// Errors:
//   - ErrInvalidDocument when doc is not an object.
//   - ErrNoData when nothing in the catalog resolves.
//   - ErrAborted (possibly wrapping the context cause) when cancelled.
//
// Per-path shape problems never fail the run; they become warnings.
func (e *Engine) Extract(ctx context.Context, doc any) (*Result, error) {
	start := e.now()
	r := e.begin(ctx)
	defer r.release()

	res, err := e.extract(r.run, doc, start)
	status := Complete
	switch {
	case err == nil:
	case errors.Is(err, ErrAborted):
		status = Aborted
	default:
		status = Failed
		r.ds.Fail("extraction", err.Error(), e.now())
	}
	e.finish(r.run, status)
	metrics.RecordStep("extract", status.String(), e.now().Sub(start))
	if err != nil {
		e.logf("stage=extract status=%s err=%v", status, err)
		return nil, err
	}
	e.logf("stage=extract ok run_id=%s user_id=%d tables=%d records=%d warnings=%d statements=%d duration=%s",
		res.RunID, res.UserID, len(res.Data.Tables), res.Data.TotalRecords(), len(res.Warnings), len(res.SQL), res.Duration)
	return res, nil
}

type runHandle struct {
	*run
	release func()
}

// begin supersedes any in-flight run and installs fresh run state.
func (e *Engine) begin(parent context.Context) runHandle {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancelCause(parent)

	e.mu.Lock()
	if e.cancel != nil {
		e.cancel(ErrAborted)
	}
	e.seq++
	e.cancel = cancel
	e.status = Extracting
	e.data = dataset.New()
	e.sql = nil
	e.dateStats = validate.Stats{}
	e.userID, e.username = 0, ""
	r := &run{ctx: ctx, seq: e.seq, cfg: e.cfg, ds: dataset.New()}
	e.mu.Unlock()

	if r.cfg.ChunkSize <= 0 {
		r.cfg.ChunkSize = config.DefaultExtraction().ChunkSize
	}
	if r.cfg.BatchSize <= 0 {
		r.cfg.BatchSize = config.DefaultExtraction().BatchSize
	}
	e.notify(r, dataset.NewProgress(0, 0, 0, "", ""))
	return runHandle{run: r, release: func() { cancel(nil) }}
}

// finish publishes the run's dataset and terminal status unless a newer run
// took over. The run no longer touches its dataset afterwards.
func (e *Engine) finish(r *run, status Status) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r.seq != e.seq {
		return
	}
	e.data = r.ds
	e.status = status
	e.cancel = nil
}

func (e *Engine) extract(r *run, doc any, start time.Time) (*Result, error) {
	if _, ok := doc.(*pjson.Object); !ok {
		return nil, ErrInvalidDocument
	}

	resolvedAny := e.extractUser(r, doc)
	e.publishUser(r)

	total := EstimateTotal(e.cat, doc)
	e.notify(r, dataset.NewProgress(0, total, 0, "Starting", ""))

	processed := 0
	for _, entry := range e.cat.Entries() {
		if err := r.aborted(); err != nil {
			return nil, err
		}
		if entry.Path == e.cat.ProfilePath() {
			continue
		}
		pct := 0.0
		if total > 0 {
			pct = float64(processed) / float64(total) * 100
		}
		e.notify(r, dataset.NewProgress(processed, total, pct, entry.Table, entry.Path))

		v := pathres.Resolve(doc, entry.Path)
		if v == nil {
			continue
		}
		resolvedAny = true

		pathStart := time.Now()
		rows, err := e.extractEntry(r, entry, v)
		if err != nil {
			if errors.Is(err, ErrAborted) {
				return nil, err
			}
			r.ds.Warn(dataset.Warning{
				Type:      dataset.WarnExtraction,
				Path:      entry.Path,
				Table:     entry.Table,
				Message:   err.Error(),
				Timestamp: e.stamp(),
			})
			e.logf("stage=extract_path warn table=%s path=%q err=%v", entry.Table, entry.Path, err)
			continue
		}
		if len(rows) == 0 {
			continue
		}
		for _, row := range rows {
			row.Set("user_id", r.userID)
		}
		r.ds.Append(entry.Table, rows...)
		processed += len(rows)
		metrics.RecordRows(entry.Table, len(rows))
		e.logf("stage=extract_path ok table=%s rows=%d duration=%s", entry.Table, len(rows), durMS(pathStart))
	}
	e.notify(r, dataset.NewProgress(processed, total, 100, "Complete", ""))

	if !resolvedAny {
		return nil, ErrNoData
	}

	if r.cfg.ValidateDates {
		t := time.Now()
		v := validate.Validator{Catalog: e.cat, Now: e.now}
		n := v.Run(r.ds)
		metrics.RecordStep("validate", "ok", time.Since(t))
		e.logf("stage=validate ok warnings=%d duration=%s", n, durMS(t))
	}

	if e.norm != nil {
		t := time.Now()
		nz := normalize.Normalizer{ChunkSize: r.cfg.ChunkSize, Logger: e.logger}
		changed, err := nz.Apply(r.ctx, r.ds, *e.norm)
		if err != nil {
			if r.ctx.Err() != nil {
				return nil, r.aborted()
			}
			return nil, fmt.Errorf("normalize: %w", err)
		}
		metrics.RecordStep("normalize", "ok", time.Since(t))
		e.logf("stage=normalize ok changed=%d duration=%s", changed, durMS(t))
	}

	t := time.Now()
	gen := sqlgen.Generator{
		Catalog:          e.cat,
		GenerateTriggers: r.cfg.GenerateTriggers,
		BatchSize:        r.cfg.BatchSize,
		Location:         e.loc,
	}
	stmts, err := gen.Generate(r.ctx, r.ds)
	if err != nil {
		if r.ctx.Err() != nil {
			return nil, r.aborted()
		}
		return nil, fmt.Errorf("generate sql: %w", err)
	}
	metrics.RecordStep("sqlgen", "ok", time.Since(t))
	e.logf("stage=sqlgen ok statements=%d duration=%s", len(stmts), durMS(t))

	stats := validate.DateStatistics(e.cat, r.ds)
	for _, w := range r.ds.Warnings {
		metrics.RecordWarning(w.Type)
	}

	runID := uuid.Must(uuid.NewV7()).String()
	e.mu.Lock()
	if r.seq == e.seq {
		e.sql = stmts
		e.dateStats = stats
	}
	e.mu.Unlock()

	return &Result{
		RunID:      runID,
		UserID:     r.userID,
		Username:   r.username,
		Data:       r.ds,
		SQL:        stmts,
		Statistics: r.ds.Statistics,
		Warnings:   r.ds.Warnings,
		Errors:     r.ds.Errors,
		Progress:   r.ds.Progress,
		DateStats:  stats,
		Duration:   e.now().Sub(start),
	}, nil
}

// extractUser fills the users table. It reports whether the profile path resolved.
func (e *Engine) extractUser(r *run, doc any) bool {
	profile, hasEntry := e.cat.Lookup(e.cat.ProfilePath())
	var obj *pjson.Object
	if hasEntry {
		obj, _ = pathres.Resolve(doc, profile.Path).(*pjson.Object)
	}

	candidate := ""
	if obj != nil {
		candidate = usernameCandidate(obj, profile)
	}
	r.userID, r.username = e.ids.Resolve(candidate)

	var row *dataset.Row
	if obj != nil {
		row = extractRowIn(obj, profile, e.loc)
	}
	if row.Len() > 0 {
		if v, _ := row.Get("username"); stringOf(v) == "" {
			display, _ := row.Get("display_name")
			row.Set("username", profileUsername(r.username, stringOf(display), r.userID))
		}
		if v, _ := row.Get("username"); v != nil {
			r.username = stringOf(v)
		}
		row.Set("user_id", r.userID)
	} else {
		row = e.defaultUser(r)
	}

	r.ds.User = row
	r.ds.Append(catalog.UsersTable, row)
	metrics.RecordRows(catalog.UsersTable, 1)
	return obj != nil
}

// usernameCandidate returns the profile's username, else its display name.
func usernameCandidate(obj *pjson.Object, profile catalog.Entry) string {
	for _, target := range []string{"username", "display_name"} {
		for _, c := range profile.Columns {
			if c.Target != target {
				continue
			}
			v, _ := obj.Get(c.Source)
			if s := stringOf(v); s != "" && !datefmt.IsSentinel(s) {
				return s
			}
		}
	}
	return ""
}

// profileUsername picks the username for a profile row that lacks one.
func profileUsername(current, display string, id int64) string {
	if current != "" {
		return current
	}
	if s := identity.Slug(display); s != "" {
		return s
	}
	return identity.FallbackUsername(id)
}

func (e *Engine) defaultUser(r *run) *dataset.Row {
	if r.username == "" {
		r.username = identity.FallbackUsername(r.userID)
	}
	now := e.now().UTC().Format(datefmt.DateTimeLayout)
	row := dataset.NewRow()
	row.Set("user_id", r.userID)
	row.Set("username", r.username)
	row.Set("display_name", "Unknown User")
	row.Set("email", "")
	row.Set("bio_description", "")
	row.Set("birth_date", "")
	row.Set("account_region", "")
	row.Set("follower_count", int64(0))
	row.Set("following_count", int64(0))
	row.Set("is_deleted", int64(0))
	row.Set("created_at", now)
	row.Set("updated_at", now)
	return row
}

func (e *Engine) publishUser(r *run) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r.seq == e.seq {
		e.userID, e.username = r.userID, r.username
	}
}

// shapeError reports a path whose value does not fit its extraction mode.
type shapeError struct {
	mode catalog.Mode
	got  pathres.Shape
}

func (s shapeError) Error() string {
	return fmt.Sprintf("expected %s for %s extraction, got %s", wantShape(s.mode), s.mode, s.got)
}

func wantShape(m catalog.Mode) pathres.Shape {
	if m == catalog.Array {
		return pathres.ShapeArray
	}
	return pathres.ShapeObject
}

// extractEntry extracts the rows of one resolved path. A panic is turned into
// an error so one malformed section cannot end the run.
func (e *Engine) extractEntry(r *run, entry catalog.Entry, v any) (rows []*dataset.Row, err error) {
	defer func() {
		if p := recover(); p != nil {
			rows, err = nil, fmt.Errorf("panic while extracting: %v", p)
		}
	}()

	if got := pathres.ShapeOf(v); got != wantShape(entry.Mode) {
		return nil, shapeError{mode: entry.Mode, got: got}
	}

	keep := func(row *dataset.Row) bool { return row.Len() > 0 }

	switch entry.Mode {
	case catalog.Plain:
		row := extractRowIn(v.(*pjson.Object), entry, e.loc)
		if keep(row) {
			rows = append(rows, row)
		}

	case catalog.Array:
		for _, item := range v.([]any) {
			obj, _ := item.(*pjson.Object)
			if row := extractRowIn(obj, entry, e.loc); keep(row) {
				rows = append(rows, row)
			}
			if err := r.tick(); err != nil {
				return nil, err
			}
		}

	case catalog.DynamicKeyedMap:
		m := v.(*pjson.Object)
		for _, key := range m.Keys() {
			arr, ok := mustGet(m, key).([]any)
			if !ok {
				continue
			}
			cleaned := CleanKey(key)
			for _, item := range arr {
				obj, _ := item.(*pjson.Object)
				if row := extractRowIn(obj, entry, e.loc); keep(row) {
					row.Set(entry.DynamicKeyColumn, cleaned)
					rows = append(rows, row)
				}
				if err := r.tick(); err != nil {
					return nil, err
				}
			}
		}

	case catalog.NestedArrayUnderDynamicKey:
		m := v.(*pjson.Object)
		sub := entry.NestedKey()
		for _, key := range m.Keys() {
			inner, ok := mustGet(m, key).(*pjson.Object)
			if !ok {
				continue
			}
			arr, ok := mustGet(inner, sub).([]any)
			if !ok {
				continue
			}
			for _, item := range arr {
				obj, _ := item.(*pjson.Object)
				if row := extractRowIn(obj, entry, e.loc); keep(row) {
					row.Set(entry.ParentKeyColumn, key)
					rows = append(rows, row)
				}
				if err := r.tick(); err != nil {
					return nil, err
				}
			}
		}

	default:
		return nil, fmt.Errorf("%w: %s", catalog.ErrUnknownMode, entry.Mode)
	}
	return rows, nil
}

// notify stores p on the run's dataset and the engine, then fans it out to
// listeners. A panicking listener is logged and skipped.
func (e *Engine) notify(r *run, p dataset.Progress) {
	r.ds.Progress = p

	e.mu.Lock()
	if r.seq != e.seq {
		e.mu.Unlock()
		return
	}
	e.progress = p
	ls := make([]listener, len(e.listeners))
	copy(ls, e.listeners)
	e.mu.Unlock()

	for _, l := range ls {
		e.callListener(l, p)
	}
}

func (e *Engine) callListener(l listener, p dataset.Progress) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logf("stage=progress listener_panic=%v", rec)
		}
	}()
	l.fn(p)
}

// OnProgress registers fn and returns a function that unregisters it.
func (e *Engine) OnProgress(fn ProgressFunc) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	e.listeners = append(e.listeners, listener{id: id, fn: fn})
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, l := range e.listeners {
			if l.id == id {
				e.listeners = append(e.listeners[:i], e.listeners[i+1:]...)
				return
			}
		}
	}
}

// Abort cancels the run in flight, if any.
func (e *Engine) Abort() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel(ErrAborted)
		e.cancel = nil
		e.status = Aborted
	}
}

// Reset aborts any run and returns the engine to its initial state, including
// the username cache. Listeners stay registered.
func (e *Engine) Reset() {
	e.mu.Lock()
	if e.cancel != nil {
		e.cancel(ErrAborted)
		e.cancel = nil
	}
	e.seq++
	e.status = Idle
	e.data = dataset.New()
	e.sql = nil
	e.dateStats = validate.Stats{}
	e.userID, e.username = 0, ""
	r := &run{seq: e.seq, ds: dataset.New()}
	e.mu.Unlock()

	e.ids.Clear()
	e.notify(r, dataset.NewProgress(0, 0, 0, "", ""))
}

// Data returns the dataset of the last finished run. Treat it as read-only.
func (e *Engine) Data() *dataset.Dataset {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.data
}

// SQL returns the statements of the last completed run.
func (e *Engine) SQL() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sql
}

// Statistics returns a copy of the per-table row counts, with a zero for every
// known table.
func (e *Engine) Statistics() map[string]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := maps.Clone(e.data.Statistics)
	if out == nil {
		out = make(map[string]int)
	}
	for _, n := range sqlgen.TableNames(e.cat, e.cfg.GenerateTriggers) {
		if _, ok := out[n]; !ok {
			out[n] = 0
		}
	}
	return out
}

// TotalTables is the number of tables the generated schema creates.
func (e *Engine) TotalTables() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(sqlgen.TableNames(e.cat, e.cfg.GenerateTriggers))
}

func (e *Engine) Warnings() []dataset.Warning {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.data.Warnings)
}

func (e *Engine) Errors() []dataset.RunError {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.data.Errors)
}

// Progress returns the latest progress of the run in flight, or of the last run.
func (e *Engine) Progress() dataset.Progress {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.progress
}

func (e *Engine) DateStatistics() validate.Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dateStats
}

func (e *Engine) UserID() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.userID
}

func (e *Engine) Username() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.username
}

func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

func (e *Engine) IsExtracting() bool { return e.Status() == Extracting }

// Catalog returns the engine's catalog.
func (e *Engine) Catalog() *catalog.Catalog { return e.cat }

// Config returns a copy of the options.
func (e *Engine) Config() config.Extraction {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// SetConfig validates and installs cfg for subsequent runs.
func (e *Engine) SetConfig(cfg config.Extraction) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = cfg
	return nil
}

func (e *Engine) stamp() string {
	return e.now().UTC().Format(dataset.TimestampLayout)
}

func durMS(start time.Time) time.Duration { return time.Since(start).Truncate(time.Millisecond) }
