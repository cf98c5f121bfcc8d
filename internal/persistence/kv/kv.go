// Package kv provides the small key-value stores used to remember per-database
// migration state between runs.
//
// Three backends are available:
//
//   - Memory: process-local, lost on exit. Suitable for tests and servers that
//     migrate on every start.
//   - SQLite: a single table in a local SQLite file. This is the default
//     persistent store for client databases.
//   - Redis: a shared store for deployments where several processes manage the
//     same set of databases.
package kv

import "context"

// Storage is the key-value contract consumed by the migration runner.
//
// GetItem reports ok=false when the key is absent; a missing key is not an
// error. RemoveItem on a missing key succeeds.
type Storage interface {
	GetItem(ctx context.Context, key string) (value string, ok bool, err error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
}
