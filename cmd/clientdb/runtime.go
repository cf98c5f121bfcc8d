package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/example/clientdb/internal/clientdb"
	"github.com/example/clientdb/internal/config"
	"github.com/example/clientdb/internal/logging"
	"github.com/example/clientdb/internal/metrics"
	"github.com/example/clientdb/internal/persistence/kv"
	"github.com/example/clientdb/internal/persistence/sqlite"
	"github.com/example/clientdb/internal/persistence/sqlite/migration"
	"github.com/example/clientdb/internal/query"
)

// metaFile holds migration hashes when no Redis address is configured.
const metaFile = "clientdb-meta.db"

// runtime bundles what every command needs: logger, hash storage, store and
// manager. Close releases them in reverse order.
type runtime struct {
	cfg       config.Config
	logger    *slog.Logger
	store     *sqlite.Store
	manager   *clientdb.Manager
	collector *metrics.Collector
	closers   []func() error
}

func newRuntime(ctx context.Context, cfg config.Config, logOut io.Writer) (*runtime, error) {
	logger, logCloser, err := logging.New(logOut, cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return nil, fmt.Errorf("configure logging: %w", err)
	}
	rt := &runtime{cfg: cfg, logger: logger, closers: []func() error{logCloser.Close}}

	hashes, err := rt.openHashStorage(ctx)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}

	rt.store = sqlite.NewStore(cfg.DataDir, logger)
	rt.collector = metrics.NewCollector("clientdb")
	rt.manager = clientdb.NewManager(rt.store,
		clientdb.WithLogger(logger),
		clientdb.WithHashStorage(hashes),
		clientdb.WithObserver(rt.collector),
	)
	return rt, nil
}

func (rt *runtime) openHashStorage(ctx context.Context) (kv.Storage, error) {
	if rt.cfg.RedisAddr != "" {
		store, client, err := kv.DialRedis(ctx, rt.cfg.RedisAddr, "", 0, "clientdb:")
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, client.Close)
		rt.logger.Info("migration hashes stored in redis", "addr", rt.cfg.RedisAddr)
		return store, nil
	}

	path := filepath.Join(rt.cfg.DataDir, metaFile)
	store, err := kv.OpenSQLite(ctx, path)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, store.Close)
	rt.logger.Debug("migration hashes stored in sqlite", "path", path)
	return store, nil
}

// register builds every declared database. With migrate set, databases whose
// declaration enables it are migrated as they are built.
func (rt *runtime) register(ctx context.Context, decls []config.Database, migrate bool) error {
	for _, decl := range decls {
		cfg, err := rt.databaseConfig(ctx, decl)
		if err != nil {
			return err
		}
		init := clientdb.InitOptions{ExposeInDev: decl.Expose}

		if migrate {
			_, err = rt.manager.UseDB(ctx, decl.Name, cfg, init)
		} else {
			_, err = rt.manager.Init(ctx, decl.Name, cfg, init)
		}
		if err != nil {
			return fmt.Errorf("register %q: %w", decl.Name, err)
		}
		if decl.Default {
			if err := rt.manager.SwitchDefault(decl.Name); err != nil {
				return err
			}
		}
	}
	return nil
}

func (rt *runtime) databaseConfig(ctx context.Context, decl config.Database) (clientdb.Config, error) {
	cfg := clientdb.Config{
		UseWorker:          decl.Worker,
		UsePersistentStore: decl.Persistent,
		Location:           decl.Location,
		DisableAutoMigrate: !decl.Migrates(),
		Migration: migration.Options{
			PreMigrationScript: decl.PreMigrationScript,
			StorageKey:         decl.StorageKey,
		},
	}

	if decl.Migrations != "" {
		log, err := migration.LoadLogFile(decl.Migrations)
		if err != nil {
			return clientdb.Config{}, fmt.Errorf("database %q: %w", decl.Name, err)
		}
		cfg.Migration.Log = log
	}

	if len(decl.Tables) > 0 {
		schema := &query.Schema{Tables: make([]query.Table, len(decl.Tables))}
		for i, t := range decl.Tables {
			schema.Tables[i] = query.Table{Name: t.Name, Columns: t.Columns}
		}
		cfg.Schema = schema
	}

	if decl.PostgresDSN != "" {
		pool, err := query.ConnectPostgres(ctx, decl.PostgresDSN)
		if err != nil {
			return clientdb.Config{}, fmt.Errorf("database %q: %w", decl.Name, err)
		}
		rt.closers = append(rt.closers, func() error {
			pool.Close()
			return nil
		})
		cfg.Proxy = query.PostgresProxy(pool)
	}
	return cfg, nil
}

// declaration returns the declared database called name, or a persistent
// default declaration when none matches.
func (rt *runtime) declaration(name string) config.Database {
	for _, decl := range rt.cfg.Databases {
		if decl.Name == name {
			return decl
		}
	}
	return config.Database{Name: name, Persistent: true}
}

func (rt *runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.manager != nil {
		errs = append(errs, rt.manager.Close(ctx))
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		errs = append(errs, rt.closers[i]())
	}
	return errors.Join(errs...)
}
