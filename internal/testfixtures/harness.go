package testfixtures

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/example/clientdb/internal/clientdb"
	"github.com/example/clientdb/internal/persistence/kv"
	"github.com/example/clientdb/internal/persistence/sqlite"
)

// ManagerHarness wires a database manager to a temporary store, an in-memory
// hash storage and deterministic clock and IDs.
type ManagerHarness struct {
	Manager *clientdb.Manager
	Store   *sqlite.Store
	Hashes  *kv.Memory
	Clock   *Clock
	IDs     *IDGenerator
	Logger  *slog.Logger
}

// HarnessOption configures a ManagerHarness.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	clock    *Clock
	ids      *IDGenerator
	observer clientdb.Observer
	logger   *slog.Logger
}

// WithClock overrides the clock used by the harness.
func WithClock(clock *Clock) HarnessOption {
	return func(c *harnessConfig) {
		c.clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the harness.
func WithIDGenerator(generator *IDGenerator) HarnessOption {
	return func(c *harnessConfig) {
		c.ids = generator
	}
}

// WithObserver registers an observer on the manager.
func WithObserver(o clientdb.Observer) HarnessOption {
	return func(c *harnessConfig) {
		c.observer = o
	}
}

// WithLogger overrides the discard logger.
func WithLogger(logger *slog.Logger) HarnessOption {
	return func(c *harnessConfig) {
		c.logger = logger
	}
}

// NewManagerHarness constructs a harness whose engines are closed when the
// test ends.
func NewManagerHarness(tb testing.TB, opts ...HarnessOption) *ManagerHarness {
	tb.Helper()

	cfg := harnessConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.clock == nil {
		cfg.clock = NewTickingClock(time.Time{}, time.Millisecond)
	}
	if cfg.ids == nil {
		cfg.ids = NewIDGenerator("entry")
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	store := sqlite.NewStore(tb.TempDir(), cfg.logger)
	hashes := kv.NewMemory()

	managerOpts := []clientdb.Option{
		clientdb.WithLogger(cfg.logger),
		clientdb.WithHashStorage(hashes),
		clientdb.WithClock(cfg.clock.NowFunc()),
		clientdb.WithIDGenerator(cfg.ids.NextFunc()),
	}
	if cfg.observer != nil {
		managerOpts = append(managerOpts, clientdb.WithObserver(cfg.observer))
	}
	manager := clientdb.NewManager(store, managerOpts...)

	tb.Cleanup(func() {
		_ = manager.Close(context.Background())
	})

	return &ManagerHarness{
		Manager: manager,
		Store:   store,
		Hashes:  hashes,
		Clock:   cfg.clock,
		IDs:     cfg.ids,
		Logger:  cfg.logger,
	}
}

// PersistentConfig returns a config for a file-backed database with the
// sample schema.
func PersistentConfig() clientdb.Config {
	return clientdb.Config{
		UsePersistentStore: true,
		Schema:             SampleSchema(),
	}
}
