// Package sqlite runs embedded SQLite engines for the database manager.
//
// An engine is either direct (the calling goroutine uses the connection) or
// worker-backed (one goroutine owns the connection and serves jobs sent over
// a channel). Both are opened through a Store, which maps storage locations to
// files and keeps track of which locations are still open.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/example/clientdb/internal/persistence"
)

// Location schemes.
const (
	SchemeFile   = "file"
	SchemeMemory = "memory"
)

// Location identifies where a database lives. It is immutable once parsed.
type Location struct {
	Scheme string
	Path   string
}

// FileLocation returns a persistent location relative to the store root.
func FileLocation(path string) Location {
	return Location{Scheme: SchemeFile, Path: path}
}

// MemoryLocation returns a non-persistent location.
func MemoryLocation(name string) Location {
	return Location{Scheme: SchemeMemory, Path: name}
}

// ParseLocation parses "file://<path>" or "memory://<name>".
func ParseLocation(raw string) (Location, error) {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return Location{}, fmt.Errorf("location %q has no scheme", raw)
	}
	if rest == "" {
		return Location{}, fmt.Errorf("location %q has an empty path", raw)
	}
	switch scheme {
	case SchemeFile, SchemeMemory:
		return Location{Scheme: scheme, Path: rest}, nil
	default:
		return Location{}, fmt.Errorf("location %q has unknown scheme %q", raw, scheme)
	}
}

// String implements fmt.Stringer.
func (l Location) String() string {
	return l.Scheme + "://" + l.Path
}

// Persistent reports whether the location survives process restarts.
func (l Location) Persistent() bool {
	return l.Scheme == SchemeFile
}

// Engine is an open embedded database.
type Engine interface {
	// ID uniquely identifies this engine instance.
	ID() string
	Location() Location
	Mode() persistence.Mode
	// Do runs fn with exclusive access to the connection pool as far as the
	// engine's mode requires. Calls after Close return persistence.ErrClosed.
	Do(ctx context.Context, fn func(ctx context.Context, db *sql.DB) error) error
	// Close is idempotent.
	Close() error
	Closed() bool
}

// LiveExtension is the only extension supported by worker engines.
const LiveExtension = "live"

// ErrUnsupportedExtension is returned when a worker engine is given an
// extension it cannot load.
var ErrUnsupportedExtension = errors.New("sqlite: extension not supported in worker mode")

// Extension prepares a freshly opened engine, for example by registering
// helper tables or triggers.
type Extension interface {
	Setup(ctx context.Context, db *sql.DB) error
}

// ExtensionFunc adapts a function to Extension.
type ExtensionFunc func(ctx context.Context, db *sql.DB) error

// Setup implements Extension.
func (f ExtensionFunc) Setup(ctx context.Context, db *sql.DB) error {
	return f(ctx, db)
}

// EngineOptions configures engine construction.
type EngineOptions struct {
	Connection ConnectionConfig
	Extensions map[string]Extension
}

// ExtensionNames returns the configured extension names sorted.
func (o EngineOptions) ExtensionNames() []string {
	names := make([]string, 0, len(o.Extensions))
	for name := range o.Extensions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UnsupportedWorkerExtensions lists extension names a worker engine rejects.
func (o EngineOptions) UnsupportedWorkerExtensions() []string {
	var unsupported []string
	for _, name := range o.ExtensionNames() {
		if name != LiveExtension {
			unsupported = append(unsupported, name)
		}
	}
	return unsupported
}

func (o EngineOptions) connection() ConnectionConfig {
	if o.Connection == (ConnectionConfig{}) {
		return DefaultConnectionConfig()
	}
	return o.Connection
}

func (o EngineOptions) setup(ctx context.Context, db *sql.DB) error {
	for _, name := range o.ExtensionNames() {
		if err := o.Extensions[name].Setup(ctx, db); err != nil {
			return fmt.Errorf("extension %s: %w", name, err)
		}
	}
	return nil
}

// DeleteOutcome is the result of deleting a database's storage.
type DeleteOutcome int

const (
	// DeleteFailed means the files could not be removed.
	DeleteFailed DeleteOutcome = iota
	// Deleted means the files are gone.
	Deleted
	// DeletedPendingClose means another handle still has the location open;
	// the files are removed when the last one is released.
	DeletedPendingClose
)

// String implements fmt.Stringer.
func (o DeleteOutcome) String() string {
	switch o {
	case Deleted:
		return "deleted"
	case DeletedPendingClose:
		return "deleted_pending_close"
	default:
		return "delete_failed"
	}
}

// StorageError wraps a failure of the persistent store.
type StorageError struct {
	Location Location
	Op       string
	Err      error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Location, e.Err)
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match persistence.ErrStorage.
func (e *StorageError) Is(target error) bool {
	return target == persistence.ErrStorage
}
