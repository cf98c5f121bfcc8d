// Package clientdb manages named embedded databases: it builds them on first
// use, migrates them once per lifetime and tears them down on request.
package clientdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/example/clientdb/internal/logging"
	"github.com/example/clientdb/internal/persistence"
	"github.com/example/clientdb/internal/persistence/kv"
	"github.com/example/clientdb/internal/persistence/sqlite"
	"github.com/example/clientdb/internal/persistence/sqlite/migration"
	"github.com/example/clientdb/internal/query"
)

// DefaultName is the initial default database name.
const DefaultName = "client"

// Observer receives registry and migration events. Implementations must be
// safe for concurrent use.
type Observer interface {
	migration.Observer
	RegistrySize(size int)
	StorageDeleted(name string, outcome sqlite.DeleteOutcome)
}

// Manager is the database registry.
type Manager struct {
	store    *sqlite.Store
	storage  kv.Storage
	logger   *slog.Logger
	observer Observer
	now      func() time.Time
	newID    func() string
	runner   *migration.Runner

	group singleflight.Group

	mu          sync.Mutex
	entries     map[string]*Entry
	defaultName string
}

// Option customises a Manager.
type Option func(*Manager)

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithHashStorage sets the adapter that keeps last applied migration hashes
// for databases whose config names none.
func WithHashStorage(storage kv.Storage) Option {
	return func(m *Manager) {
		if storage != nil {
			m.storage = storage
		}
	}
}

// WithObserver registers an event observer, typically metrics.
func WithObserver(o Observer) Option {
	return func(m *Manager) {
		m.observer = o
	}
}

// WithClock overrides the clock used for timestamps and durations.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithIDGenerator overrides how entry IDs are generated.
func WithIDGenerator(next func() string) Option {
	return func(m *Manager) {
		if next != nil {
			m.newID = next
		}
	}
}

// NewManager returns an empty registry whose default name is "client".
func NewManager(store *sqlite.Store, opts ...Option) *Manager {
	m := &Manager{
		store:       store,
		storage:     kv.NewMemory(),
		logger:      slog.Default(),
		now:         time.Now,
		newID:       uuid.NewString,
		entries:     make(map[string]*Entry),
		defaultName: DefaultName,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "clientdb")

	runnerOpts := []migration.RunnerOption{migration.WithClock(m.now)}
	if m.observer != nil {
		runnerOpts = append(runnerOpts, migration.WithObserver(m.observer))
	}
	m.runner = migration.NewRunner(m.logger, runnerOpts...)
	return m
}

// Store returns the persistent store engines are opened from.
func (m *Manager) Store() *sqlite.Store {
	return m.store
}

// LookupOption relaxes lookups.
type LookupOption func(*lookupOptions)

type lookupOptions struct {
	ignoreMissing bool
}

// IgnoreMissing turns a missing database into a silent no-op: Get returns
// (nil, nil), Remove and SwitchDefault succeed.
func IgnoreMissing() LookupOption {
	return func(o *lookupOptions) {
		o.ignoreMissing = true
	}
}

func applyLookup(opts []LookupOption) lookupOptions {
	var o lookupOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Init returns the database registered under name, building it from cfg when
// absent. An existing database is returned unchanged even when cfg differs.
// Concurrent first calls for one name share a single build.
func (m *Manager) Init(ctx context.Context, name string, cfg Config, init InitOptions) (*Entry, error) {
	name = m.resolveName(name)

	if entry := m.lookup(name); entry != nil {
		return entry, nil
	}

	v, err, shared := m.group.Do(name, func() (any, error) {
		if entry := m.lookup(name); entry != nil {
			return entry, nil
		}
		entry, err := m.build(ctx, name, cfg, init)
		if err != nil {
			return nil, err
		}
		m.register(entry)
		return entry, nil
	})
	if err != nil {
		var nf *NotFoundError
		if shared && errors.As(err, &nf) {
			// Joined a Reinitialize of a name that was not registered.
			return m.Init(ctx, name, cfg, init)
		}
		return nil, err
	}
	return v.(*Entry), nil
}

func (m *Manager) register(entry *Entry) {
	m.mu.Lock()
	m.entries[entry.name] = entry
	size := len(m.entries)
	m.mu.Unlock()

	m.notifySize(size)
}

func (m *Manager) build(ctx context.Context, name string, cfg Config, init InitOptions) (*Entry, error) {
	logger := m.entryLogger(ctx, init, name)

	if err := m.validate(name, cfg, logger); err != nil {
		logger.Warn("database config rejected", "error", err, "error_kind", ErrorKind(err))
		return nil, err
	}

	state := &migration.State{Storage: cfg.Migration.Storage}
	if state.Storage == nil {
		state.Storage = m.storage
	}

	entry := &Entry{
		id:        m.newID(),
		name:      name,
		state:     state,
		config:    cfg,
		init:      init,
		createdAt: m.now(),
	}

	if cfg.Proxy != nil {
		entry.mode = persistence.ModeProxy
		entry.handle = query.NewProxy(name, cfg.Proxy, cfg.Schema)
		logger.Info("database registered", "mode", entry.mode.String())
		return entry, nil
	}

	loc, err := m.location(name, cfg)
	if err != nil {
		return nil, err
	}

	var engine sqlite.Engine
	if cfg.UseWorker {
		engine, err = m.store.OpenWorker(ctx, loc, cfg.Engine, cfg.Worker)
	} else {
		engine, err = m.store.OpenDirect(ctx, loc, cfg.Engine)
	}
	if err != nil {
		logger.Error("open engine failed", "location", loc.String(), "error", err)
		return nil, fmt.Errorf("open database %q: %w", name, err)
	}

	entry.mode = engine.Mode()
	entry.engine = engine
	entry.location = loc
	entry.handle = query.NewLocal(engine, cfg.Schema)
	logger.Info("database registered", "mode", entry.mode.String(), "location", loc.String(), "engine", engine.ID())
	return entry, nil
}

func (m *Manager) validate(name string, cfg Config, logger *slog.Logger) error {
	cerr := &ConfigError{Name: name}

	if cfg.Schema == nil && cfg.Proxy == nil {
		if cfg.RequireSchema {
			cerr.add("Schema", "a schema or a proxy is required")
		} else {
			logger.Warn("no schema configured; FindMany is unavailable")
		}
	}

	if cfg.UseWorker && cfg.Proxy == nil {
		if unsupported := cfg.Engine.UnsupportedWorkerExtensions(); len(unsupported) > 0 {
			cerr.add("Engine.Extensions", fmt.Sprintf(
				"worker mode supports only the %q extension; unsupported: %s",
				sqlite.LiveExtension, strings.Join(unsupported, ", ")))
		}
	}

	if cfg.Location != "" && cfg.Proxy == nil {
		if _, err := sqlite.ParseLocation(cfg.Location); err != nil {
			cerr.add("Location", err.Error())
		}
	}

	if cerr.HasErrors() {
		return cerr
	}
	return nil
}

// location resolves the configured or default location for name.
func (m *Manager) location(name string, cfg Config) (sqlite.Location, error) {
	if cfg.Location != "" {
		loc, err := sqlite.ParseLocation(cfg.Location)
		if err != nil {
			cerr := &ConfigError{Name: name}
			cerr.add("Location", err.Error())
			return sqlite.Location{}, cerr
		}
		return loc, nil
	}
	if cfg.UsePersistentStore {
		return sqlite.FileLocation(name + ".db"), nil
	}
	return sqlite.MemoryLocation(name), nil
}

// Get returns the database registered under name. An empty name means the
// default database.
func (m *Manager) Get(name string, opts ...LookupOption) (*Entry, error) {
	name = m.resolveName(name)
	if entry := m.lookup(name); entry != nil {
		return entry, nil
	}
	if applyLookup(opts).ignoreMissing {
		return nil, nil
	}
	return nil, &NotFoundError{Name: name}
}

// Handle returns the query handle of the named database.
func (m *Manager) Handle(name string) (query.Handle, error) {
	entry, err := m.Get(name)
	if err != nil {
		return nil, err
	}
	return entry.handle, nil
}

// Remove forgets the named database. It neither closes the engine nor
// deletes storage. Removing the default database leaves DefaultName pointing
// at a name that is no longer registered.
func (m *Manager) Remove(name string, opts ...LookupOption) error {
	name = m.resolveName(name)

	m.mu.Lock()
	_, ok := m.entries[name]
	if ok {
		delete(m.entries, name)
	}
	size := len(m.entries)
	m.mu.Unlock()

	if !ok {
		if applyLookup(opts).ignoreMissing {
			return nil
		}
		return &NotFoundError{Name: name}
	}
	m.notifySize(size)
	m.logger.Debug("database removed from registry", "name", name)
	return nil
}

// SwitchDefault makes name the default database.
func (m *Manager) SwitchDefault(name string, opts ...LookupOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[name]; !ok && !applyLookup(opts).ignoreMissing {
		return &NotFoundError{Name: name}
	}
	m.defaultName = name
	return nil
}

// DefaultName returns the current default name, which may not be registered.
func (m *Manager) DefaultName() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.defaultName
}

// Names returns the registered names sorted.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.entries))
	for name := range m.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Exposed returns the registered databases that asked to be visible in the
// dev inspector, sorted by name.
func (m *Manager) Exposed() []*Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Entry
	for _, entry := range m.entries {
		if entry.init.ExposeInDev {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// UseDB returns the handle of the named database, building it if needed,
// and migrates it when cfg carries a migration log and auto migration is on.
func (m *Manager) UseDB(ctx context.Context, name string, cfg Config, init InitOptions) (query.Handle, error) {
	entry, err := m.Init(ctx, name, cfg, init)
	if err != nil {
		return nil, err
	}
	if err := m.autoMigrate(ctx, entry, cfg); err != nil {
		return nil, err
	}
	return entry.handle, nil
}

func (m *Manager) autoMigrate(ctx context.Context, entry *Entry, cfg Config) error {
	if cfg.Migration.Log == nil || cfg.DisableAutoMigrate {
		m.entryLogger(ctx, entry.init, entry.name).Debug("auto migration disabled")
		entry.state.MarkSkipped()
		return nil
	}
	return m.runMigration(ctx, entry, cfg.Migration)
}

// Migrate runs a migration against a registered database. Zero fields of
// opts fall back to the database's configured migration options.
func (m *Manager) Migrate(ctx context.Context, name string, opts migration.Options) error {
	entry, err := m.Get(name)
	if err != nil {
		return err
	}

	base := entry.config.Migration
	if opts.Log == nil {
		opts.Log = base.Log
	}
	if opts.PreMigrationScript == "" {
		opts.PreMigrationScript = base.PreMigrationScript
	}
	if opts.StorageKey == "" {
		opts.StorageKey = base.StorageKey
	}
	if opts.Storage == nil {
		opts.Storage = base.Storage
	}
	if opts.Logger == nil {
		opts.Logger = base.Logger
	}
	return m.runMigration(ctx, entry, opts)
}

func (m *Manager) runMigration(ctx context.Context, entry *Entry, opts migration.Options) error {
	if opts.Logger == nil {
		opts.Logger = entry.init.Logger
	}
	return m.runner.Run(ctx, entry.handle, opts, entry.state, entry.name)
}

// Close closes every engine. Entries stay registered.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	entries := make([]*Entry, 0, len(m.entries))
	for _, entry := range m.entries {
		entries = append(entries, entry)
	}
	m.mu.Unlock()

	var errs []error
	for _, entry := range entries {
		if entry.engine == nil || entry.engine.Closed() {
			continue
		}
		if err := entry.engine.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %q: %w", entry.name, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		logging.FromContextOr(ctx, m.logger).Error("closing databases failed", "error", err)
		return err
	}
	return nil
}

func (m *Manager) lookup(name string) *Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[name]
}

func (m *Manager) resolveName(name string) string {
	if name != "" {
		return name
	}
	return m.DefaultName()
}

func (m *Manager) entryLogger(ctx context.Context, init InitOptions, name string) *slog.Logger {
	logger := init.Logger
	if logger == nil {
		logger = logging.FromContextOr(ctx, m.logger)
	}
	return logger.With("ns", "clientdb", "name", name)
}

func (m *Manager) notifySize(size int) {
	if m.observer != nil {
		m.observer.RegistrySize(size)
	}
}
