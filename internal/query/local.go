package query

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/clientdb/internal/persistence"
	"github.com/example/clientdb/internal/persistence/sqlite"
	"github.com/example/clientdb/internal/persistence/sqlite/migration"
)

// Local is a handle bound to an embedded engine.
type Local struct {
	engine sqlite.Engine
	schema *Schema
}

// NewLocal binds a handle to engine. schema may be nil.
func NewLocal(engine sqlite.Engine, schema *Schema) *Local {
	return &Local{engine: engine, schema: schema}
}

// Mode implements Handle.
func (l *Local) Mode() persistence.Mode {
	return l.engine.Mode()
}

// Engine returns the engine behind the handle.
func (l *Local) Engine() sqlite.Engine {
	return l.engine
}

// Exec implements Handle.
func (l *Local) Exec(ctx context.Context, stmt string, args ...any) (Result, error) {
	var out Result
	err := l.engine.Do(ctx, func(ctx context.Context, db *sql.DB) error {
		res, err := db.ExecContext(ctx, stmt, args...)
		if err != nil {
			return err
		}
		out.RowsAffected, _ = res.RowsAffected()
		out.LastInsertID, _ = res.LastInsertId()
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("exec: %w", err)
	}
	return out, nil
}

// Query implements Handle.
func (l *Local) Query(ctx context.Context, stmt string, args ...any) (*Rows, error) {
	var out *Rows
	err := l.engine.Do(ctx, func(ctx context.Context, db *sql.DB) error {
		rows, err := db.QueryContext(ctx, stmt, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = collect(rows)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	return out, nil
}

// FindMany implements Handle.
func (l *Local) FindMany(ctx context.Context, table string, limit int) (*Rows, error) {
	stmt, err := findManySQL(l.schema, table, limit)
	if err != nil {
		return nil, err
	}
	return l.Query(ctx, stmt)
}

// ExecRaw implements Handle. The script may hold several statements.
func (l *Local) ExecRaw(ctx context.Context, script string) error {
	err := l.engine.Do(ctx, func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx, script)
		return err
	})
	if err != nil {
		return fmt.Errorf("exec raw: %w", err)
	}
	return nil
}

// MigrateBatch implements Handle.
func (l *Local) MigrateBatch(ctx context.Context, log migration.Log) error {
	return l.engine.Do(ctx, func(ctx context.Context, db *sql.DB) error {
		_, err := migration.NewSQLiteExecutor(db).Apply(ctx, log)
		return err
	})
}

func collect(rows *sql.Rows) (*Rows, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := &Rows{Columns: columns, Values: [][]any{}}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		out.Values = append(out.Values, values)
	}
	return out, rows.Err()
}
