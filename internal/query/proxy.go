package query

import (
	"context"
	"fmt"

	"github.com/example/clientdb/internal/persistence"
	"github.com/example/clientdb/internal/persistence/sqlite/migration"
)

// Method tells a proxy function how the caller wants the result shaped.
type Method string

const (
	MethodAll    Method = "all"
	MethodRun    Method = "run"
	MethodGet    Method = "get"
	MethodValues Method = "values"
)

// ProxyFunc forwards one statement to a remote backend. name is the managed
// database the statement was issued against.
type ProxyFunc func(ctx context.Context, name, sql string, params []any, method Method) (*Rows, error)

// Proxy is a handle that forwards every statement to a ProxyFunc.
type Proxy struct {
	name   string
	fn     ProxyFunc
	schema *Schema
}

// NewProxy binds fn to the database name.
func NewProxy(name string, fn ProxyFunc, schema *Schema) *Proxy {
	return &Proxy{name: name, fn: fn, schema: schema}
}

// Mode implements Handle.
func (p *Proxy) Mode() persistence.Mode {
	return persistence.ModeProxy
}

// Exec implements Handle.
func (p *Proxy) Exec(ctx context.Context, sql string, args ...any) (Result, error) {
	rows, err := p.call(ctx, sql, args, MethodRun)
	if err != nil {
		return Result{}, err
	}
	if rows == nil {
		return Result{}, nil
	}
	return Result{RowsAffected: rows.RowsAffected}, nil
}

// Query implements Handle.
func (p *Proxy) Query(ctx context.Context, sql string, args ...any) (*Rows, error) {
	rows, err := p.call(ctx, sql, args, MethodAll)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = &Rows{Values: [][]any{}}
	}
	return rows, nil
}

// FindMany implements Handle.
func (p *Proxy) FindMany(ctx context.Context, table string, limit int) (*Rows, error) {
	stmt, err := findManySQL(p.schema, table, limit)
	if err != nil {
		return nil, err
	}
	return p.Query(ctx, stmt)
}

// ExecRaw implements Handle.
func (p *Proxy) ExecRaw(ctx context.Context, script string) error {
	_, err := p.call(ctx, script, nil, MethodRun)
	return err
}

// MigrateBatch implements Handle. Proxied databases are migrated by their
// backend, never through the handle.
func (p *Proxy) MigrateBatch(context.Context, migration.Log) error {
	return &persistence.UnsupportedOperationError{
		Op:     "migrate",
		Name:   p.name,
		Mode:   persistence.ModeProxy,
		Reason: "proxied databases are migrated by their backend",
	}
}

func (p *Proxy) call(ctx context.Context, sql string, args []any, method Method) (*Rows, error) {
	rows, err := p.fn(ctx, p.name, sql, args, method)
	if err != nil {
		return nil, fmt.Errorf("proxy %s: %w", method, err)
	}
	return rows, nil
}
