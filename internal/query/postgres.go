package query

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxQuerier is the subset of *pgxpool.Pool used by PostgresProxy.
type PgxQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

var _ PgxQuerier = (*pgxpool.Pool)(nil)

// ConnectPostgres opens a pgx pool for use with PostgresProxy.
func ConnectPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// PostgresProxy returns a ProxyFunc that sends statements to a Postgres
// backend. Statements must use Postgres placeholders ($1, $2, ...).
func PostgresProxy(q PgxQuerier) ProxyFunc {
	return func(ctx context.Context, _ string, sql string, params []any, method Method) (*Rows, error) {
		if method == MethodRun {
			tag, err := q.Exec(ctx, sql, params...)
			if err != nil {
				return nil, err
			}
			return &Rows{Values: [][]any{}, RowsAffected: tag.RowsAffected()}, nil
		}

		rows, err := q.Query(ctx, sql, params...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		fields := rows.FieldDescriptions()
		out := &Rows{Values: [][]any{}}
		if method != MethodValues {
			out.Columns = make([]string, len(fields))
			for i, f := range fields {
				out.Columns[i] = f.Name
			}
		}

		for rows.Next() {
			values, err := rows.Values()
			if err != nil {
				return nil, err
			}
			out.Values = append(out.Values, values)
			if method == MethodGet {
				break
			}
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
		out.RowsAffected = rows.CommandTag().RowsAffected()
		return out, nil
	}
}
