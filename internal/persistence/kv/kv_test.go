package kv

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T, prefix string) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedis(client, prefix), mr
}

func TestStorageBackends(t *testing.T) {
	ctx := context.Background()

	sqliteStore, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "kv", "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqliteStore.Close() })

	redisStore, _ := newTestRedis(t, "test:")

	backends := map[string]Storage{
		"memory": NewMemory(),
		"sqlite": sqliteStore,
		"redis":  redisStore,
	}

	for name, store := range backends {
		t.Run(name, func(t *testing.T) {
			_, ok, err := store.GetItem(ctx, "db:lastMigrationHash:client")
			require.NoError(t, err)
			require.False(t, ok, "missing key must report ok=false")

			require.NoError(t, store.SetItem(ctx, "db:lastMigrationHash:client", "a"))
			value, ok, err := store.GetItem(ctx, "db:lastMigrationHash:client")
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, "a", value)

			require.NoError(t, store.SetItem(ctx, "db:lastMigrationHash:client", "b"))
			value, _, err = store.GetItem(ctx, "db:lastMigrationHash:client")
			require.NoError(t, err)
			require.Equal(t, "b", value, "SetItem must overwrite")

			require.NoError(t, store.RemoveItem(ctx, "db:lastMigrationHash:client"))
			_, ok, err = store.GetItem(ctx, "db:lastMigrationHash:client")
			require.NoError(t, err)
			require.False(t, ok)

			require.NoError(t, store.RemoveItem(ctx, "never-set"), "removing a missing key succeeds")
		})
	}
}

func TestRedisKeyPrefix(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedis(t, "clientdb:")

	require.NoError(t, store.SetItem(ctx, "db:lastMigrationHash", "abc"))
	require.Contains(t, mr.Keys(), "clientdb:db:lastMigrationHash")

	value, err := mr.Get("clientdb:db:lastMigrationHash")
	require.NoError(t, err)
	require.Equal(t, "abc", value)
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	first, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, first.SetItem(ctx, "k", "v"))
	require.NoError(t, first.Close())

	second, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer second.Close()

	value, ok, err := second.GetItem(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", value)
}

func TestMemoryKeysSorted(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	require.NoError(t, store.SetItem(ctx, "b", "2"))
	require.NoError(t, store.SetItem(ctx, "a", "1"))
	require.Equal(t, []string{"a", "b"}, store.Keys())
}
