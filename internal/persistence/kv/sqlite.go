package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const createItemsTable = `
	CREATE TABLE IF NOT EXISTS kv_items (
		item_key   TEXT PRIMARY KEY,
		item_value TEXT NOT NULL,
		updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	)
`

// SQLite stores items in the kv_items table of a SQLite database.
type SQLite struct {
	db    *sql.DB
	owned bool
}

// NewSQLite wraps an existing connection and ensures the kv_items table
// exists. The caller keeps ownership of db.
func NewSQLite(ctx context.Context, db *sql.DB) (*SQLite, error) {
	if db == nil {
		return nil, errors.New("kv: nil database")
	}
	if _, err := db.ExecContext(ctx, createItemsTable); err != nil {
		return nil, fmt.Errorf("create kv_items table: %w", err)
	}
	return &SQLite{db: db}, nil
}

// OpenSQLite opens (creating if needed) a dedicated SQLite file at path and
// returns a store that owns the connection.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create kv directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open kv database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure kv database: %w", err)
	}

	store, err := NewSQLite(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	store.owned = true
	return store, nil
}

// GetItem returns the value stored under key.
func (s *SQLite) GetItem(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT item_value FROM kv_items WHERE item_key = ?", key,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get kv item: %w", err)
	}
	return value, true, nil
}

// SetItem stores value under key, replacing any previous value.
func (s *SQLite) SetItem(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_items (item_key, item_value) VALUES (?, ?)
		ON CONFLICT(item_key) DO UPDATE SET
			item_value = excluded.item_value,
			updated_at = CURRENT_TIMESTAMP
	`, key, value)
	if err != nil {
		return fmt.Errorf("set kv item: %w", err)
	}
	return nil
}

// RemoveItem deletes key.
func (s *SQLite) RemoveItem(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM kv_items WHERE item_key = ?", key); err != nil {
		return fmt.Errorf("remove kv item: %w", err)
	}
	return nil
}

// Close releases the connection when the store opened it itself.
func (s *SQLite) Close() error {
	if s.owned && s.db != nil {
		return s.db.Close()
	}
	return nil
}
