// Package metrics is a small process-wide metrics facade.
//
// Core packages call the helpers here; the CLI selects a Backend once at
// startup (none by default, datadog on request).
package metrics

import (
	"sync"
	"time"
)

// Metric names.
const (
	StepTotal           = "tiksql_step_total"
	StepDurationSeconds = "tiksql_step_duration_seconds"
	RowsTotal           = "tiksql_rows_total"
	WarningsTotal       = "tiksql_warnings_total"
)

// Labels are metric dimensions.
type Labels map[string]string

// Backend receives metric events.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b. A nil b restores the no-op backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nopBackend{}
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// IncCounter forwards to the installed backend.
func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

// ObserveHistogram forwards to the installed backend.
func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush flushes the installed backend.
func Flush() error {
	return current().Flush()
}

// RecordStep counts one step execution and its duration.
func RecordStep(step, status string, d time.Duration) {
	l := Labels{"step": step, "status": status}
	b := current()
	b.IncCounter(StepTotal, 1, l)
	b.ObserveHistogram(StepDurationSeconds, d.Seconds(), l)
}

// RecordRows counts rows extracted or loaded for table.
func RecordRows(table string, n int) {
	if n <= 0 {
		return
	}
	current().IncCounter(RowsTotal, float64(n), Labels{"table": table})
}

// RecordWarning counts one warning of the given type.
func RecordWarning(kind string) {
	current().IncCounter(WarningsTotal, 1, Labels{"type": kind})
}
