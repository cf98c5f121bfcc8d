package migration

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/clientdb/internal/logging"
	"github.com/example/clientdb/internal/persistence"
)

// Runner brings a database up to the last step of a migration log at most
// once per database lifetime.
type Runner struct {
	logger   *slog.Logger
	now      func() time.Time
	observer Observer
}

// RunnerOption customises a Runner.
type RunnerOption func(*Runner)

// WithClock overrides the clock used for duration logging.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// WithObserver registers an outcome observer.
func WithObserver(o Observer) RunnerOption {
	return func(r *Runner) {
		r.observer = o
	}
}

// NewRunner creates a runner. A nil logger falls back to slog.Default().
func NewRunner(logger *slog.Logger, opts ...RunnerOption) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		logger: logger.With("component", "migration"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run migrates the database behind h using opts.Log. The state records that an
// attempt happened even when it fails, so a later Run without Force is a no-op.
func (r *Runner) Run(ctx context.Context, h Handle, opts Options, state *State, name string) error {
	state.mu.Lock()
	defer state.mu.Unlock()

	if state.AttemptedMigration && !opts.Force {
		return nil
	}

	logger := r.loggerFor(ctx, opts, name)

	if err := opts.Log.Validate(); err != nil {
		return r.fail(logger, state, name, "validate", "", err)
	}

	target := opts.Log.Last().Hash
	key := HashKey(opts.StorageKey, name)
	store := opts.storage(state)
	if store == nil {
		return r.fail(logger, state, name, "read hash", target, fmt.Errorf("no storage adapter configured"))
	}

	stored, _, err := store.GetItem(ctx, key)
	if err != nil {
		return r.fail(logger, state, name, "read hash", target, err)
	}

	if !opts.Force {
		if state.Skip {
			state.AttemptedMigration = true
			return nil
		}
		if stored == target {
			logger.Debug("database is up to date", "hash", target)
			state.Skip = true
			state.AttemptedMigration = true
			r.notify(func(o Observer) { o.MigrationSkipped(name) })
			return nil
		}
	}

	start := r.now()
	logger.Info("migrating database", "hash", target, "steps", len(opts.Log))

	if opts.PreMigrationScript != "" {
		if err := h.ExecRaw(ctx, opts.PreMigrationScript); err != nil {
			logger.Error("pre-migration script failed", "step", "pre-migration", "error", err)
		}
	}

	switch mode := h.Mode(); mode {
	case persistence.ModeLocal, persistence.ModeWorker:
		if err := h.MigrateBatch(ctx, opts.Log); err != nil {
			return r.fail(logger, state, name, "apply", target, fmt.Errorf("%w: %w", ErrMigrationFailed, err))
		}
	default:
		return r.fail(logger, state, name, "apply", target, &persistence.UnsupportedOperationError{
			Op:     "migrate",
			Name:   name,
			Mode:   mode,
			Reason: "migrations run only against an embedded engine",
		})
	}

	if err := store.SetItem(ctx, key, target); err != nil {
		return r.fail(logger, state, name, "record hash", target, fmt.Errorf("%w: %w", ErrMigrationFailed, err))
	}

	state.AttemptedMigration = true
	logger.Info("database migrated", "hash", target, "duration", r.now().Sub(start))
	r.notify(func(o Observer) { o.MigrationApplied(name) })
	return nil
}

func (r *Runner) fail(logger *slog.Logger, state *State, name, step, hash string, err error) error {
	state.AttemptedMigration = true
	logger.Error("migration failed", "step", step, "hash", hash, "error", err)
	r.notify(func(o Observer) { o.MigrationFailed(name) })
	return NewMigrationError(name, step, hash, err)
}

func (r *Runner) loggerFor(ctx context.Context, opts Options, name string) *slog.Logger {
	logger := opts.Logger
	if logger == nil {
		logger = logging.FromContext(ctx)
	}
	if logger == nil {
		logger = r.logger
	} else {
		logger = logger.With("component", "migration")
	}
	return logger.With("ns", "clientdb", "name", name)
}

func (r *Runner) notify(fn func(Observer)) {
	if r.observer != nil {
		fn(r.observer)
	}
}
