package sqlite

import (
	"context"
	"database/sql"
	"sync"

	"github.com/example/clientdb/internal/persistence"
)

// DirectEngine runs statements on the caller's goroutine.
type DirectEngine struct {
	id       string
	location Location
	db       *sql.DB
	release  func()

	mu     sync.RWMutex
	closed bool
}

// ID implements Engine.
func (e *DirectEngine) ID() string { return e.id }

// Location implements Engine.
func (e *DirectEngine) Location() Location { return e.location }

// Mode implements Engine.
func (e *DirectEngine) Mode() persistence.Mode { return persistence.ModeLocal }

// Do implements Engine. Close waits for in-flight calls.
func (e *DirectEngine) Do(ctx context.Context, fn func(ctx context.Context, db *sql.DB) error) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return persistence.ErrClosed
	}
	return fn(ctx, e.db)
}

// Close implements Engine.
func (e *DirectEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	err := e.db.Close()
	e.release()
	return err
}

// Closed implements Engine.
func (e *DirectEngine) Closed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.closed
}
