package clientdb

import (
	"context"
	"fmt"

	"github.com/example/clientdb/internal/persistence/sqlite"
	"github.com/example/clientdb/internal/persistence/sqlite/migration"
)

// RawHandle returns the embedded engine of the named database. Proxied
// databases have none and return a nil engine.
func (m *Manager) RawHandle(name string) (sqlite.Engine, error) {
	entry, err := m.Get(name)
	if err != nil {
		return nil, err
	}
	return entry.engine, nil
}

// DeleteStorage removes the on-disk files of the named database. The stored
// migration hash is removed first so the next build migrates from scratch;
// the engine is closed if still open. The entry stays registered.
//
// Only databases with an engine on a persistent location can be deleted;
// anything else returns an UnsupportedOperationError and is left untouched.
func (m *Manager) DeleteStorage(ctx context.Context, name string) (sqlite.DeleteOutcome, error) {
	entry, err := m.Get(name)
	if err != nil {
		return sqlite.DeleteFailed, err
	}
	logger := m.entryLogger(ctx, entry.init, entry.name)

	if !entry.mode.HasEngine() || entry.engine == nil {
		return sqlite.DeleteFailed, &UnsupportedOperationError{
			Op:     "delete storage",
			Name:   entry.name,
			Mode:   entry.mode,
			Reason: "database has no embedded engine",
		}
	}
	if !entry.location.Persistent() {
		return sqlite.DeleteFailed, &UnsupportedOperationError{
			Op:     "delete storage",
			Name:   entry.name,
			Mode:   entry.mode,
			Reason: fmt.Sprintf("location %s is not persistent", entry.location),
		}
	}

	key := migration.HashKey(entry.config.Migration.StorageKey, entry.name)
	if err := entry.state.Storage.RemoveItem(ctx, key); err != nil {
		logger.Error("remove migration hash failed", "key", key, "error", err)
		return sqlite.DeleteFailed, fmt.Errorf("delete storage of %q: remove migration hash: %w", entry.name, err)
	}

	if !entry.engine.Closed() {
		if err := entry.engine.Close(); err != nil {
			logger.Warn("close engine before delete failed", "error", err)
		}
	}

	outcome, err := m.store.Delete(ctx, entry.location)
	if m.observer != nil {
		m.observer.StorageDeleted(entry.name, outcome)
	}
	if err != nil {
		logger.Error("delete storage failed", "location", entry.location.String(), "error", err)
		return outcome, err
	}
	logger.Info("storage deleted", "location", entry.location.String(), "outcome", outcome.String())
	return outcome, nil
}

// Reinitialize rebuilds the named database with the config and options it was
// registered with. The previous engine is closed if still open; when a
// deletion of its storage is pending, the rebuild waits for it. The new
// entry has a fresh ID and runs auto migration like UseDB.
//
// The rebuild shares the per-name flight used by Init, so a concurrent Init
// of the same name receives the rebuilt entry instead of building its own.
func (m *Manager) Reinitialize(ctx context.Context, name string) (*Entry, error) {
	name = m.resolveName(name)

	v, err, _ := m.group.Do(name, func() (any, error) {
		previous := m.lookup(name)
		if previous == nil {
			return nil, &NotFoundError{Name: name}
		}
		if err := m.Remove(name); err != nil {
			return nil, err
		}
		if previous.engine != nil && !previous.engine.Closed() {
			if err := previous.engine.Close(); err != nil {
				m.entryLogger(ctx, previous.init, name).Warn("close previous engine failed", "error", err)
			}
		}

		entry, err := m.build(ctx, name, previous.config, previous.init)
		if err != nil {
			return nil, err
		}
		m.register(entry)
		return entry, nil
	})
	if err != nil {
		return nil, err
	}

	entry := v.(*Entry)
	if err := m.autoMigrate(ctx, entry, entry.config); err != nil {
		return nil, err
	}
	return entry, nil
}
