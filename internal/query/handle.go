// Package query provides the handle callers use to talk to a managed
// database, whether it is backed by an embedded engine or proxied to a remote
// backend.
package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/example/clientdb/internal/persistence"
	"github.com/example/clientdb/internal/persistence/sqlite/migration"
)

// Handle is the query surface of a managed database.
type Handle interface {
	Mode() persistence.Mode
	// Exec runs a statement that returns no rows.
	Exec(ctx context.Context, sql string, args ...any) (Result, error)
	// Query runs a statement and collects every row.
	Query(ctx context.Context, sql string, args ...any) (*Rows, error)
	// FindMany reads rows of a table declared in the handle's schema.
	FindMany(ctx context.Context, table string, limit int) (*Rows, error)
	// ExecRaw sends a script as-is, without statement handling.
	ExecRaw(ctx context.Context, script string) error
	// MigrateBatch applies a migration log in one driver-level call.
	MigrateBatch(ctx context.Context, log migration.Log) error
}

var _ migration.Handle = Handle(nil)

// Result describes the effect of Exec.
type Result struct {
	RowsAffected int64 `json:"rowsAffected"`
	LastInsertID int64 `json:"lastInsertId,omitempty"`
}

// Rows is a fully materialised result set.
type Rows struct {
	Columns      []string `json:"columns"`
	Values       [][]any  `json:"values"`
	RowsAffected int64    `json:"rowsAffected,omitempty"`
}

// Maps returns each row keyed by column name.
func (r *Rows) Maps() []map[string]any {
	if r == nil {
		return nil
	}
	out := make([]map[string]any, 0, len(r.Values))
	for _, row := range r.Values {
		m := make(map[string]any, len(r.Columns))
		for i, col := range r.Columns {
			if i < len(row) {
				m[col] = row[i]
			}
		}
		out = append(out, m)
	}
	return out
}

// Table declares a table reachable through FindMany.
type Table struct {
	Name    string
	Columns []string
}

// Schema is the set of tables a handle knows about.
type Schema struct {
	Tables []Table
}

// Lookup returns the named table.
func (s *Schema) Lookup(name string) (Table, bool) {
	if s == nil {
		return Table{}, false
	}
	for _, t := range s.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

// findManySQL builds the SELECT used by FindMany.
func findManySQL(schema *Schema, table string, limit int) (string, error) {
	t, ok := schema.Lookup(table)
	if !ok {
		return "", fmt.Errorf("%w: table %q is not in the schema", persistence.ErrNotFound, table)
	}
	columns := "*"
	if len(t.Columns) > 0 {
		quoted := make([]string, len(t.Columns))
		for i, c := range t.Columns {
			quoted[i] = quoteIdent(c)
		}
		columns = strings.Join(quoted, ", ")
	}
	stmt := fmt.Sprintf("SELECT %s FROM %s", columns, quoteIdent(t.Name))
	if limit > 0 {
		stmt += fmt.Sprintf(" LIMIT %d", limit)
	}
	return stmt, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
