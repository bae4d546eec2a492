package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Config is the minimal configuration needed to open a result store.
//
// When to use:
//   - Use Config when constructing a ResultStore via New.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is backend-specific.
//
// Errors:
//   - New returns an error if Kind is empty or unsupported.
type Config struct {
	Kind string
	DSN  string
}

// ResultStore persists profiler runs: the parameters every rule built for
// every domain.
//
// Each backend implements these semantics in its own idiomatic way (Postgres
// JSONB, SQLite TEXT, SQL Server NVARCHAR(MAX)).
type ResultStore interface {
	// Close releases any backend resources (connections, pools).
	//
	// Edge cases:
	//   - Callers should treat Close as "call once".
	Close()

	// EnsureSchema creates the result tables if they do not exist. It is
	// idempotent and safe to run on every invocation.
	EnsureSchema(ctx context.Context) error

	// SaveRun writes a run and all its records in one transaction. Saving
	// the same run ID again replaces the earlier copy.
	SaveRun(ctx context.Context, run Run) error

	// LoadParameters returns the records of a run ordered by rule, domain ID
	// and parameter name. An unknown run yields ErrRunNotFound.
	LoadParameters(ctx context.Context, runID string) ([]Record, error)
}

// ---- factories ----

// Factory opens a ResultStore for one backend kind.
type Factory func(ctx context.Context, cfg Config) (ResultStore, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers a backend under a kind (e.g. "postgres", "sqlite").
//
// When to use:
//   - Call Register from an init() function in a backend package.
//   - The `kind` string becomes the lookup key used by New.
//
// Panics:
//   - If kind is empty.
//   - If f is nil.
//   - If kind is already registered.
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

// Kinds lists the registered backend kinds, sorted.
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

// New constructs a ResultStore using the registered backend factory.
//
// Concurrency:
//   - Safe for concurrent use with Register. New takes a read lock while
//     selecting the factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns.
func New(ctx context.Context, cfg Config) (ResultStore, error) {
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
