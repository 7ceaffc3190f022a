// Package storage persists scraped records to a relational database.
//
// Backends register themselves by kind from an init function; commands
// blank-import storage/all to link every backend and pick one at runtime.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"wbdscrape/internal/directory"
)

// DefaultTable is used when Config.Table is empty.
const DefaultTable = "buddhist_centers"

// Config is the minimal configuration needed to open a Repository.
//
// Kind must match a registered backend. DSN is passed through to the
// backend; its format is backend-specific.
type Config struct {
	Kind  string
	DSN   string
	Table string
}

// TableName returns cfg.Table or DefaultTable.
func (cfg Config) TableName() string {
	if cfg.Table == "" {
		return DefaultTable
	}
	return cfg.Table
}

// Repository is a backend-agnostic sink for scraped records.
//
// Each backend implements idempotent saves its own way (SQLite OR IGNORE,
// Postgres ON CONFLICT, SQL Server NOT EXISTS), keyed on row_hash.
type Repository interface {
	// EnsureTable creates the records table if it does not exist.
	EnsureTable(ctx context.Context) error

	// SaveRecords inserts records not stored yet and returns how many rows
	// were inserted. Saving the same records twice inserts nothing the
	// second time.
	SaveRecords(ctx context.Context, records []directory.Record) (int64, error)

	// LastPage returns the highest stored page. ok is false for an empty
	// table.
	LastPage(ctx context.Context) (page int, ok bool, err error)

	// Close releases backend resources. Call once.
	Close()
}

// Factory opens a Repository for cfg.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under kind.
//
// Panics if kind is empty, f is nil or kind is already registered.
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

// New opens a Repository using the backend registered for cfg.Kind.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("storage: unsupported kind=%q (registered: %v)", cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
}

// Kinds lists the registered backend kinds in sorted order.
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
