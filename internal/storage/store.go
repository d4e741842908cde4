package storage

import (
	"context"
	"fmt"
	"sync"
)

// Config is the minimal configuration needed to open a destination store.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is backend-specific.
type Config struct {
	Kind string
	DSN  string
}

// WriteMode selects the conflict behavior of a Write.
type WriteMode int

const (
	// Append inserts every row unconditionally.
	Append WriteMode = iota
	// InsertIfAbsent inserts rows whose key is absent and ignores the rest.
	InsertIfAbsent
	// Upsert inserts rows whose key is absent and overwrites the non-key
	// columns of rows whose key is present.
	Upsert
)

func (m WriteMode) String() string {
	switch m {
	case Append:
		return "append"
	case InsertIfAbsent:
		return "insert_if_absent"
	case Upsert:
		return "upsert"
	default:
		return fmt.Sprintf("WriteMode(%d)", int(m))
	}
}

// SongMatch is one candidate returned by a song lookup.
type SongMatch struct {
	SongID   string
	ArtistID string
}

// Store is a destination session held open for the duration of a run.
//
// Implementations hold exactly one connection; callers must not use a Store
// from more than one goroutine.
type Store interface {
	// Begin opens a transaction. The loader scopes one transaction to one
	// source file.
	Begin(ctx context.Context) (Tx, error)

	// Close releases the connection. Call it once, at run exit.
	Close() error
}

// Tx is one open transaction against the destination.
//
// Every error returned by a Tx method is an *etlerr.StoreError.
type Tx interface {
	// Write inserts rows into t using the given conflict mode. Each row must
	// hold len(t.Columns) values in column order. It returns rows affected as
	// reported by the driver.
	Write(ctx context.Context, t Table, mode WriteMode, rows [][]any) (int64, error)

	// LookupSong returns up to two songs whose title, artist name and
	// duration equal the arguments exactly. Two results mean the match is
	// ambiguous.
	LookupSong(ctx context.Context, title, artist string, duration float64) ([]SongMatch, error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// ---- backend factories ----

type factory func(ctx context.Context, cfg Config) (Store, error)

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
//   - If kind is empty, f is nil, or kind is already registered.
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

// Open constructs a Store using the registered backend factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns (backends wrap
//     connection failures as *etlerr.StoreError with Op "connect").
func Open(ctx context.Context, cfg Config) (Store, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing Kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}
