package migration

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/example/clientdb/internal/persistence/kv"
)

// DefaultStorageKey is the key prefix under which the last applied hash is kept.
const DefaultStorageKey = "db:lastMigrationHash"

// HashKey returns the storage key for the last applied hash of the named
// database. An empty name yields the bare prefix.
func HashKey(prefix, name string) string {
	if prefix == "" {
		prefix = DefaultStorageKey
	}
	if name == "" {
		return prefix
	}
	return prefix + ":" + name
}

// storage picks the adapter the hash is read from and written to.
func (o Options) storage(state *State) kv.Storage {
	if o.Storage != nil {
		return o.Storage
	}
	return state.Storage
}

// LoadLogFile reads and validates a compiled migration log from disk.
func LoadLogFile(path string) (Log, error) {
	raw, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, NewFileSystemError(path, "read log", err)
	}
	log, err := ParseLog(raw)
	if err != nil {
		return nil, fmt.Errorf("load migration log %s: %w", path, err)
	}
	return log, nil
}
