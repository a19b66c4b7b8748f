package datadog

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"tiksql/internal/metrics"

	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
)

// fakeSubmitter captures payloads submitted by Backend.Flush().
type fakeSubmitter struct {
	mu       sync.Mutex
	payloads []datadogV2.MetricPayload
	err      error
}

func (f *fakeSubmitter) SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, body)
	return datadogV2.IntakePayloadAccepted{}, nil, f.err
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func (f *fakeSubmitter) last() datadogV2.MetricPayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.payloads[len(f.payloads)-1]
}

// newTestBackend builds a backend whose ticker never fires on its own.
func newTestBackend(t *testing.T, sub *fakeSubmitter) *Backend {
	t.Helper()
	b, err := NewBackend(context.Background(), Options{
		JobName:    "test",
		Tags:       []string{"team:data"},
		FlushEvery: time.Hour,
		now:        func() time.Time { return time.Unix(1700000000, 0) },
		submitter:  sub,
	})
	if err != nil {
		t.Fatalf("NewBackend err=%v", err)
	}
	return b
}

func findSeries(p datadogV2.MetricPayload, metric, tag string) (datadogV2.MetricSeries, bool) {
	for _, s := range p.Series {
		if s.Metric != metric {
			continue
		}
		for _, tg := range s.Tags {
			if tg == tag {
				return s, true
			}
		}
	}
	return datadogV2.MetricSeries{}, false
}

func pointValue(s datadogV2.MetricSeries) float64 {
	return *s.Points[0].Value
}

func TestResolveEnvTag(t *testing.T) {
	tests := []struct {
		name string
		env  string
		dd   string
		want string
	}{
		{name: "ENV_wins", env: "prod", dd: "stage", want: "env:prod"},
		{name: "DD_ENV_fallback", env: "", dd: "stage", want: "env:stage"},
		{name: "whitespace_ignored", env: "  ", dd: "\t", want: "env:unknown"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("ENV", tc.env)
			t.Setenv("DD_ENV", tc.dd)
			if got := resolveEnvTag(); got != tc.want {
				t.Fatalf("resolveEnvTag()=%q, want %q", got, tc.want)
			}
		})
	}
}

func TestWrapInitErr(t *testing.T) {
	if got := wrapInitErr(nil); got != nil {
		t.Fatalf("wrapInitErr(nil)=%v, want nil", got)
	}
	in := errors.New("boom")
	got := wrapInitErr(in)
	if !errors.Is(got, in) || !strings.Contains(got.Error(), "datadog metrics init:") {
		t.Fatalf("wrapInitErr(err)=%v", got)
	}
}

func TestNewBackend_NilContext(t *testing.T) {
	var nilCtx context.Context
	if _, err := NewBackend(nilCtx, Options{}); err == nil {
		t.Fatalf("NewBackend(nil) err=nil, want error")
	}
}

func TestStepStatusKeyRoundTrip(t *testing.T) {
	t.Parallel()

	for _, tc := range [][2]string{{"extract", "ok"}, {"", "ok"}, {"sqlgen", ""}} {
		step, status := splitStepStatusKey(stepStatusKey(tc[0], tc[1]))
		if step != tc[0] || status != tc[1] {
			t.Fatalf("roundtrip=(%q,%q), want (%q,%q)", step, status, tc[0], tc[1])
		}
	}
	if step, status := splitStepStatusKey("bare"); step != "bare" || status != "unknown" {
		t.Fatalf("split(bare)=(%q,%q)", step, status)
	}
}

func TestWithTags_DoesNotAliasBase(t *testing.T) {
	t.Parallel()

	base := make([]string, 2, 8)
	base[0], base[1] = "env:test", "job:tiksql"
	a := withTags(base, "table:a")
	b := withTags(base, "table:b")
	if a[2] != "table:a" || b[2] != "table:b" {
		t.Fatalf("withTags aliased: a=%v b=%v", a, b)
	}
}

func TestPercentileNearestRank(t *testing.T) {
	t.Parallel()

	s := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	tests := []struct {
		p    float64
		want float64
	}{
		{0, 1}, {0.5, 6}, {0.9, 9}, {0.99, 10}, {1, 10},
	}
	for _, tc := range tests {
		if got := percentileNearestRank(s, tc.p); got != tc.want {
			t.Fatalf("p%v=%v, want %v", tc.p, got, tc.want)
		}
	}
	if got := percentileNearestRank(nil, 0.5); got != 0 {
		t.Fatalf("empty=%v, want 0", got)
	}
}

func TestParseTagsCSV(t *testing.T) {
	t.Parallel()

	got := ParseTagsCSV(" env:prod, ,team:data,")
	want := []string{"env:prod", "team:data"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ParseTagsCSV=%v, want %v", got, want)
	}
	if ParseTagsCSV("") != nil {
		t.Fatalf("ParseTagsCSV(\"\") should be nil")
	}
}

func TestBackend_FlushBuildsSeries(t *testing.T) {
	sub := &fakeSubmitter{}
	b := newTestBackend(t, sub)
	t.Cleanup(func() { _ = b.Close() })

	b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"step": "extract", "status": "ok"})
	b.ObserveHistogram(metrics.StepDurationSeconds, 0.25, metrics.Labels{"step": "extract", "status": "ok"})
	b.IncCounter(metrics.RowsTotal, 12, metrics.Labels{"table": "comments"})
	b.IncCounter(metrics.RowsTotal, 3, metrics.Labels{"table": "comments"})
	b.IncCounter(metrics.WarningsTotal, 2, metrics.Labels{})
	b.IncCounter("unrelated", 5, nil)
	b.IncCounter(metrics.RowsTotal, 0, metrics.Labels{"table": "posts"})

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush err=%v", err)
	}
	if sub.count() != 1 {
		t.Fatalf("submissions=%d, want 1", sub.count())
	}
	p := sub.last()

	rows, ok := findSeries(p, "tiksql.rows.total", "table:comments")
	if !ok || pointValue(rows) != 15 {
		t.Fatalf("rows series=%v ok=%v, want 15", rows, ok)
	}
	if _, ok := findSeries(p, "tiksql.rows.total", "table:posts"); ok {
		t.Fatalf("zero delta must not produce a series")
	}
	if w, ok := findSeries(p, "tiksql.warnings.total", "type:unknown"); !ok || pointValue(w) != 2 {
		t.Fatalf("warnings series missing or wrong: %v", w)
	}
	if _, ok := findSeries(p, "tiksql.step.total", "step:extract"); !ok {
		t.Fatalf("step series missing")
	}
	if p50, ok := findSeries(p, "tiksql.step.duration_seconds.p50", "status:ok"); !ok || pointValue(p50) != 0.25 {
		t.Fatalf("p50 series missing or wrong: %v", p50)
	}
	for _, s := range p.Series {
		if !containsTag(s.Tags, "job:test") || !containsTag(s.Tags, "team:data") {
			t.Fatalf("series %s missing base tags: %v", s.Metric, s.Tags)
		}
	}
	for i := 1; i < len(p.Series); i++ {
		if p.Series[i-1].Metric > p.Series[i].Metric {
			t.Fatalf("series not sorted at %d: %s > %s", i, p.Series[i-1].Metric, p.Series[i].Metric)
		}
	}
}

func TestBackend_EmptyFlushSendsNothing(t *testing.T) {
	sub := &fakeSubmitter{}
	b := newTestBackend(t, sub)

	if err := b.Close(); err != nil {
		t.Fatalf("Close err=%v", err)
	}
	if sub.count() != 0 {
		t.Fatalf("submissions=%d, want 0", sub.count())
	}
}

func TestBackend_SubmitErrorStillResets(t *testing.T) {
	sub := &fakeSubmitter{err: errors.New("503")}
	b := newTestBackend(t, sub)
	t.Cleanup(func() { _ = b.Close() })

	b.IncCounter(metrics.WarningsTotal, 1, metrics.Labels{"type": "date_validation"})
	if err := b.Flush(); err == nil || !strings.Contains(err.Error(), "datadog submit") {
		t.Fatalf("Flush err=%v, want datadog submit error", err)
	}
	if err := b.Flush(); err != nil {
		t.Fatalf("second Flush err=%v, want nil on empty buffers", err)
	}
	if sub.count() != 1 {
		t.Fatalf("submissions=%d, want 1", sub.count())
	}
}

func TestBackend_CloseIsIdempotent(t *testing.T) {
	sub := &fakeSubmitter{}
	b := newTestBackend(t, sub)

	b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"step": "load", "status": "ok"})
	if err := b.Close(); err != nil {
		t.Fatalf("Close err=%v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("second Close err=%v", err)
	}
	if sub.count() != 1 {
		t.Fatalf("submissions=%d, want 1", sub.count())
	}
}

func containsTag(tags []string, want string) bool {
	for _, t := range tags {
		if t == want {
			return true
		}
	}
	return false
}
