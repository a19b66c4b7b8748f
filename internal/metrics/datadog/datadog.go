// Package datadog implements a Datadog backend for internal/metrics.
//
// Metrics are buffered in memory and submitted on a ticker and once more on
// Close, so a long conversion produces a time series and a short one still
// reports its tail. Flush snapshots and resets the buffers under the lock and
// submits outside it.
package datadog

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"tiksql/internal/metrics"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
)

// Options controls the backend.
type Options struct {
	// JobName becomes tag "job:<name>". Defaults to "tiksql".
	JobName string
	// Tags are extra tags such as "env:prod".
	Tags []string
	// FlushEvery is the submit period. Defaults to 60s.
	FlushEvery time.Duration

	// Test seams.
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	submitter metricsSubmitter
}

// metricsSubmitter is the part of *datadogV2.MetricsApi the backend uses.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// Backend implements metrics.Backend for Datadog.
type Backend struct {
	api metricsSubmitter
	ctx context.Context

	flushEvery time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}
	closeOnce  sync.Once

	baseTags  []string
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker

	mu            sync.Mutex
	stepCounts    map[string]float64   // step\x00status -> count
	stepDurations map[string][]float64 // step\x00status -> seconds
	tableRows     map[string]float64   // table -> rows
	warnings      map[string]float64   // warning type -> count
}

func resolveEnvTag() string {
	if v := strings.TrimSpace(os.Getenv("ENV")); v != "" {
		return "env:" + v
	}
	if v := strings.TrimSpace(os.Getenv("DD_ENV")); v != "" {
		return "env:" + v
	}
	return "env:unknown"
}

// NewBackend constructs a backend and starts its flush loop.
//
// Edge cases:
//   - Credentials come from DD_API_KEY / DD_SITE via the client's default context.
//   - The env tag is taken from ENV, then DD_ENV, otherwise env:unknown.
//
// Errors:
//   - Network errors surface from Flush/Close, not from construction.
func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	if parent == nil {
		return nil, wrapInitErr(fmt.Errorf("nil context"))
	}
	job := opts.JobName
	if job == "" {
		job = "tiksql"
	}
	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 60 * time.Second
	}

	baseTags := make([]string, 0, 2+len(opts.Tags))
	baseTags = append(baseTags, resolveEnvTag(), "job:"+job)
	baseTags = append(baseTags, opts.Tags...)

	nowFn := opts.now
	if nowFn == nil {
		nowFn = time.Now
	}
	newTicker := opts.newTicker
	if newTicker == nil {
		newTicker = time.NewTicker
	}
	submitter := opts.submitter
	if submitter == nil {
		submitter = datadogV2.NewMetricsApi(dd.NewAPIClient(dd.NewConfiguration()))
	}

	b := &Backend{
		api:        submitter,
		ctx:        dd.NewDefaultContext(parent),
		flushEvery: flushEvery,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		baseTags:   baseTags,
		now:        nowFn,
		newTicker:  newTicker,
	}
	b.resetLocked()

	go b.loop()
	return b, nil
}

func (b *Backend) resetLocked() {
	b.stepCounts = make(map[string]float64)
	b.stepDurations = make(map[string][]float64)
	b.tableRows = make(map[string]float64)
	b.warnings = make(map[string]float64)
}

func (b *Backend) loop() {
	defer close(b.doneCh)

	t := b.newTicker(b.flushEvery)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			_ = b.Flush()
		case <-b.stopCh:
			return
		}
	}
}

// Close stops the flush loop and flushes once more. Further calls only flush.
func (b *Backend) Close() error {
	b.closeOnce.Do(func() {
		close(b.stopCh)
		<-b.doneCh
	})
	return b.Flush()
}

// IncCounter implements metrics.Backend. Unknown names and non-positive deltas are ignored.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch name {
	case metrics.StepTotal:
		b.stepCounts[stepStatusKey(labels["step"], labels["status"])] += delta
	case metrics.RowsTotal:
		if t := labels["table"]; t != "" {
			b.tableRows[t] += delta
		}
	case metrics.WarningsTotal:
		kind := labels["type"]
		if kind == "" {
			kind = "unknown"
		}
		b.warnings[kind] += delta
	}
}

// ObserveHistogram implements metrics.Backend.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 || name != metrics.StepDurationSeconds {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	k := stepStatusKey(labels["step"], labels["status"])
	b.stepDurations[k] = append(b.stepDurations[k], value)
}

type snapshot struct {
	stepCounts    map[string]float64
	stepDurations map[string][]float64
	tableRows     map[string]float64
	warnings      map[string]float64
}

func (b *Backend) snapshotAndReset() snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := snapshot{
		stepCounts:    b.stepCounts,
		stepDurations: b.stepDurations,
		tableRows:     b.tableRows,
		warnings:      b.warnings,
	}
	b.resetLocked()
	return s
}

func (s snapshot) isEmpty() bool {
	return len(s.stepCounts) == 0 && len(s.stepDurations) == 0 && len(s.tableRows) == 0 && len(s.warnings) == 0
}

// Flush submits buffered metrics and resets the buffers, even when submission
// fails. Nothing is sent when the buffers are empty.
func (b *Backend) Flush() error {
	snap := b.snapshotAndReset()
	if snap.isEmpty() {
		return nil
	}

	series := b.buildSeries(snap, b.now().Unix())
	_, _, err := b.api.SubmitMetrics(b.ctx, datadogV2.MetricPayload{Series: series}, *datadogV2.NewSubmitMetricsOptionalParameters())
	if err != nil {
		return fmt.Errorf("datadog submit: %w", err)
	}
	return nil
}

// buildSeries turns a snapshot into series at a fixed timestamp. Output is
// sorted by metric name and tags so payloads are deterministic.
func (b *Backend) buildSeries(s snapshot, nowUnix int64) []datadogV2.MetricSeries {
	series := make([]datadogV2.MetricSeries, 0, len(s.stepCounts)+len(s.tableRows)+len(s.warnings)+6*len(s.stepDurations))

	for k, v := range s.stepCounts {
		step, status := splitStepStatusKey(k)
		series = append(series, countSeries("tiksql.step.total", v, withTags(b.baseTags, "step:"+step, "status:"+status), nowUnix))
	}
	for table, v := range s.tableRows {
		series = append(series, countSeries("tiksql.rows.total", v, withTags(b.baseTags, "table:"+table), nowUnix))
	}
	for kind, v := range s.warnings {
		series = append(series, countSeries("tiksql.warnings.total", v, withTags(b.baseTags, "type:"+kind), nowUnix))
	}
	for k, samples := range s.stepDurations {
		step, status := splitStepStatusKey(k)
		addPercentiles(&series, "tiksql.step.duration_seconds", withTags(b.baseTags, "step:"+step, "status:"+status), samples, nowUnix)
	}

	sort.SliceStable(series, func(i, j int) bool {
		if series[i].Metric != series[j].Metric {
			return series[i].Metric < series[j].Metric
		}
		return strings.Join(series[i].Tags, ",") < strings.Join(series[j].Tags, ",")
	})
	return series
}

// addPercentiles appends p50/p90/p95/p99/max/samples gauges. It sorts a copy.
func addPercentiles(series *[]datadogV2.MetricSeries, prefix string, tags []string, samples []float64, nowUnix int64) {
	if len(samples) == 0 {
		return
	}
	cp := append([]float64(nil), samples...)
	sort.Float64s(cp)

	*series = append(*series,
		gaugeSeries(prefix+".p50", percentileNearestRank(cp, 0.50), tags, nowUnix),
		gaugeSeries(prefix+".p90", percentileNearestRank(cp, 0.90), tags, nowUnix),
		gaugeSeries(prefix+".p95", percentileNearestRank(cp, 0.95), tags, nowUnix),
		gaugeSeries(prefix+".p99", percentileNearestRank(cp, 0.99), tags, nowUnix),
		gaugeSeries(prefix+".max", cp[len(cp)-1], tags, nowUnix),
		gaugeSeries(prefix+".samples", float64(len(cp)), tags, nowUnix),
	)
}

func countSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return pointSeries(metric, datadogV2.METRICINTAKETYPE_COUNT, value, tags, nowUnix)
}

func gaugeSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return pointSeries(metric, datadogV2.METRICINTAKETYPE_GAUGE, value, tags, nowUnix)
}

func pointSeries(metric string, typ datadogV2.MetricIntakeType, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   typ.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func stepStatusKey(step, status string) string {
	return step + "\x00" + status
}

func splitStepStatusKey(k string) (step, status string) {
	parts := strings.SplitN(k, "\x00", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return k, "unknown"
}

func withTags(base []string, extras ...string) []string {
	out := make([]string, 0, len(base)+len(extras))
	out = append(out, base...)
	return append(out, extras...)
}

func percentileNearestRank(s []float64, p float64) float64 {
	n := len(s)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return s[0]
	}
	if p >= 1 {
		return s[n-1]
	}
	idx := int(p*float64(n-1) + 0.5)
	if idx >= n {
		idx = n - 1
	}
	return s[idx]
}

var _ metrics.Backend = (*Backend)(nil)

// ParseTagsCSV parses "env:prod,team:data" into tags, skipping empty segments.
func ParseTagsCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func wrapInitErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("datadog metrics init: %w", err)
}
