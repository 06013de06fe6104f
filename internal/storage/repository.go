package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNoRows is returned by Row.Scan when a query matched nothing.
//
// Backends translate their driver-specific sentinel (pgx.ErrNoRows,
// sql.ErrNoRows) into this value so callers never import a driver.
var ErrNoRows = errors.New("storage: no rows in result set")

// Config is the minimal configuration needed to open a Repository.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is backend-specific.
type Config struct {
	Kind string
	DSN  string
}

// Row is the result of Tx.QueryRow. Both pgx.Row and *sql.Row satisfy the
// shape; backends wrap them so Scan reports ErrNoRows.
type Row interface {
	Scan(dest ...any) error
}

// Tx is a single open transaction on the shared connection.
//
// The pipeline opens one Tx per input file and commits it after the file's
// rows are written. After Rollback or Commit the Tx must not be reused.
type Tx interface {
	Exec(ctx context.Context, query string, args ...any) error
	QueryRow(ctx context.Context, query string, args ...any) Row
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Repository is the backend-agnostic handle the loader talks to.
//
// IMPORTANT: This interface is intentionally minimal. It exposes parameterized
// statement execution and transactions only; the statement text lives in
// Statements so the dialect is chosen once, at wiring time.
type Repository interface {
	// Close releases the connection. Call once at process shutdown.
	Close()

	// Kind reports the registered backend kind ("postgres", "sqlite", ...).
	Kind() string

	// Statements returns the dialect-specific statement set for the star schema.
	Statements() Statements

	// Exec runs a statement outside any transaction (DDL).
	Exec(ctx context.Context, query string, args ...any) error

	// Begin opens a transaction.
	Begin(ctx context.Context) (Tx, error)
}

type factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend under a kind (e.g. "postgres", "sqlite").
//
// When to use:
//   - Call Register from an init() function in a backend package.
//
// Panics:
//   - If kind is empty, f is nil, or kind is already registered. Registering
//     twice is a wiring bug and should fail at startup.
func Register(kind string, f factory) {
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

// Kinds returns the registered backend kinds in no particular order.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	return out
}

// New constructs a Repository using the registered backend factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns.
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
