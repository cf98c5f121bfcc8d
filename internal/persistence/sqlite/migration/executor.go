package migration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// TableName is the bookkeeping table the batch executor maintains inside
// every migrated database.
const TableName = "__clientdb_migrations"

// SQLiteExecutor applies a migration log to a SQLite database in one call
type SQLiteExecutor struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteExecutor creates a new SQLite migration executor
func NewSQLiteExecutor(db *sql.DB) *SQLiteExecutor {
	return &SQLiteExecutor{
		db:  db,
		now: time.Now,
	}
}

// Apply runs every step of log that is newer than the newest recorded step.
// Steps without breakpoints share one transaction; a breakpoint step commits
// pending work first and then runs its statements one at a time.
func (e *SQLiteExecutor) Apply(ctx context.Context, log Log) (applied int, err error) {
	if err := e.InitializeVersionTable(ctx); err != nil {
		return 0, err
	}

	lastMillis, err := e.LastAppliedMillis(ctx)
	if err != nil {
		return 0, err
	}

	var tx *sql.Tx
	defer func() {
		if tx != nil && err != nil {
			_ = tx.Rollback()
		}
	}()

	commit := func() error {
		if tx == nil {
			return nil
		}
		if err := tx.Commit(); err != nil {
			tx = nil
			return NewDatabaseError("", "", "commit transaction", err)
		}
		tx = nil
		return nil
	}

	for _, step := range log {
		if step.FolderMillis <= lastMillis {
			continue
		}

		if step.Breakpoints {
			if err = commit(); err != nil {
				return applied, err
			}
			for i, stmt := range step.SQL {
				if strings.TrimSpace(stmt) == "" {
					continue
				}
				if _, execErr := e.db.ExecContext(ctx, stmt); execErr != nil {
					err = NewDatabaseError(step.Hash, stmt, fmt.Sprintf("execute statement %d", i+1), execErr)
					return applied, err
				}
			}
			if err = e.record(ctx, e.db, step); err != nil {
				return applied, err
			}
			applied++
			continue
		}

		if tx == nil {
			tx, err = e.db.BeginTx(ctx, nil)
			if err != nil {
				tx = nil
				err = NewDatabaseError(step.Hash, "", "begin transaction", err)
				return applied, err
			}
		}
		for i, stmt := range step.SQL {
			if strings.TrimSpace(stmt) == "" {
				continue
			}
			if _, execErr := tx.ExecContext(ctx, stmt); execErr != nil {
				err = NewDatabaseError(step.Hash, stmt, fmt.Sprintf("execute statement %d", i+1), execErr)
				return applied, err
			}
		}
		if err = e.record(ctx, tx, step); err != nil {
			return applied, err
		}
		applied++
	}

	if err = commit(); err != nil {
		return applied, err
	}
	return applied, nil
}

// InitializeVersionTable creates the bookkeeping table if it doesn't exist
func (e *SQLiteExecutor) InitializeVersionTable(ctx context.Context) error {
	createTableSQL := `
		CREATE TABLE IF NOT EXISTS ` + TableName + ` (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			hash TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			applied_at TEXT NOT NULL
		);
	`

	if _, err := e.db.ExecContext(ctx, createTableSQL); err != nil {
		return NewDatabaseError("", createTableSQL, "create "+TableName+" table", err)
	}
	return nil
}

// LastAppliedMillis returns the folder time of the newest recorded step, or
// zero when nothing has been applied yet
func (e *SQLiteExecutor) LastAppliedMillis(ctx context.Context) (int64, error) {
	querySQL := `SELECT COALESCE(MAX(created_at), 0) FROM ` + TableName

	var millis int64
	if err := e.db.QueryRowContext(ctx, querySQL).Scan(&millis); err != nil {
		return 0, NewDatabaseError("", querySQL, "read last applied step", err)
	}
	return millis, nil
}

// AppliedHashes returns the recorded step hashes in application order
func (e *SQLiteExecutor) AppliedHashes(ctx context.Context) ([]string, error) {
	querySQL := `SELECT hash FROM ` + TableName + ` ORDER BY id ASC`

	rows, err := e.db.QueryContext(ctx, querySQL)
	if err != nil {
		return nil, NewDatabaseError("", querySQL, "list applied steps", err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, NewDatabaseError("", querySQL, "scan applied step", err)
		}
		hashes = append(hashes, hash)
	}
	if err := rows.Err(); err != nil {
		return nil, NewDatabaseError("", querySQL, "iterate applied steps", err)
	}
	return hashes, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (e *SQLiteExecutor) record(ctx context.Context, db execer, step Step) error {
	insertSQL := `INSERT INTO ` + TableName + ` (hash, created_at, applied_at) VALUES (?, ?, ?)`

	appliedAt := e.now().UTC().Format(time.RFC3339)
	if _, err := db.ExecContext(ctx, insertSQL, step.Hash, step.FolderMillis, appliedAt); err != nil {
		return NewDatabaseError(step.Hash, insertSQL, "record step", err)
	}
	return nil
}
