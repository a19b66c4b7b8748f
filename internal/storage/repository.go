package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Config selects and configures a backend.
//
// Edge cases:
//   - Kind must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is backend-specific.
type Config struct {
	Kind string
	DSN  string
}

// Repository is the backend-agnostic surface used to load typed tables.
type Repository interface {
	// Close releases backend resources. Call once.
	Close()

	// EnsureTables creates the tables that do not exist yet, in order. Backends
	// remember the column types for later InsertRows calls.
	EnsureTables(ctx context.Context, tables []TableSpec) error

	// InsertRows inserts rows, each aligned with columns, and returns the number
	// of rows written.
	InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)
}

// ScriptReport counts what a script execution created.
type ScriptReport struct {
	Statements int `json:"statements"`
	Tables     int `json:"tables"`
	Views      int `json:"views"`
	Triggers   int `json:"triggers"`
	Indexes    int `json:"indexes"`
	Inserts    int `json:"inserts"`
}

// ScriptRunner is implemented by backends that can replay a generated SQL
// script verbatim.
type ScriptRunner interface {
	ExecScript(ctx context.Context, statements []string) (ScriptReport, error)
}

// Factory builds a Repository for one backend kind.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers a backend under kind (e.g. "postgres", "sqlite").
// Call it from an init function in the backend package.
//
// Panics:
//   - If kind is empty, f is nil, or kind is already registered.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// New constructs a Repository using the registered factory for cfg.Kind.
//
// Errors:
//   - cfg.Kind is empty or not registered.
//   - whatever the factory returns.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

// Kinds returns the registered backend kinds, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
