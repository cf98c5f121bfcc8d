package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/example/clientdb/internal/persistence"
)

// WorkerBootstrap runs on the worker goroutine before it accepts jobs. It is
// the hook for custom worker setup.
type WorkerBootstrap func(ctx context.Context, db *sql.DB) error

type job struct {
	ctx  context.Context
	fn   func(ctx context.Context, db *sql.DB) error
	done chan error
}

// WorkerEngine owns its connection on a dedicated goroutine. Every Do call is
// a message to that goroutine, so jobs run one at a time in arrival order.
type WorkerEngine struct {
	id       string
	location Location
	db       *sql.DB
	release  func()
	logger   *slog.Logger

	jobs     chan job
	quit     chan struct{}
	finished chan struct{}

	closeOnce sync.Once
	closeErr  error
	mu        sync.RWMutex
	closed    bool
}

func startWorker(ctx context.Context, loc Location, db *sql.DB, release func(), boot WorkerBootstrap, logger *slog.Logger) (*WorkerEngine, error) {
	w := &WorkerEngine{
		id:       uuid.NewString(),
		location: loc,
		db:       db,
		release:  release,
		jobs:     make(chan job),
		quit:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	w.logger = logger.With("component", "worker", "engine", w.id)

	ready := make(chan error, 1)
	go w.serve(ctx, boot, ready)

	if err := <-ready; err != nil {
		<-w.finished
		_ = db.Close()
		release()
		return nil, &StorageError{Location: loc, Op: "start worker", Err: err}
	}
	return w, nil
}

func (w *WorkerEngine) serve(ctx context.Context, boot WorkerBootstrap, ready chan<- error) {
	defer close(w.finished)

	if boot != nil {
		if err := boot(ctx, w.db); err != nil {
			ready <- fmt.Errorf("bootstrap: %w", err)
			return
		}
	}
	ready <- nil
	w.logger.Debug("worker started", "location", w.location.String())

	for {
		select {
		case <-w.quit:
			w.logger.Debug("worker stopped")
			return
		case j := <-w.jobs:
			j.done <- w.run(j)
		}
	}
}

func (w *WorkerEngine) run(j job) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("worker job panicked: %v", p)
		}
	}()
	if err := j.ctx.Err(); err != nil {
		return err
	}
	return j.fn(j.ctx, w.db)
}

// ID implements Engine.
func (w *WorkerEngine) ID() string { return w.id }

// Location implements Engine.
func (w *WorkerEngine) Location() Location { return w.location }

// Mode implements Engine.
func (w *WorkerEngine) Mode() persistence.Mode { return persistence.ModeWorker }

// Do implements Engine by sending fn to the worker and waiting for its reply.
func (w *WorkerEngine) Do(ctx context.Context, fn func(ctx context.Context, db *sql.DB) error) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return persistence.ErrClosed
	}

	j := job{ctx: ctx, fn: fn, done: make(chan error, 1)}
	select {
	case w.jobs <- j:
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-j.done
}

// Close stops the worker after the running job and closes the connection.
func (w *WorkerEngine) Close() error {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()

		close(w.quit)
		<-w.finished
		w.closeErr = w.db.Close()
		w.release()
	})
	return w.closeErr
}

// Closed implements Engine.
func (w *WorkerEngine) Closed() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.closed
}
