package query

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/example/clientdb/internal/persistence"
	"github.com/example/clientdb/internal/persistence/sqlite"
	"github.com/example/clientdb/internal/persistence/sqlite/migration"
)

func newLocal(t *testing.T, schema *Schema) *Local {
	t.Helper()
	store := sqlite.NewStore(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	engine, err := store.OpenDirect(context.Background(), sqlite.FileLocation("q.db"), sqlite.EngineOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })
	return NewLocal(engine, schema)
}

func TestLocalHandle(t *testing.T) {
	ctx := context.Background()
	schema := &Schema{Tables: []Table{{Name: "users", Columns: []string{"id", "name"}}}}
	h := newLocal(t, schema)

	require.Equal(t, persistence.ModeLocal, h.Mode())

	require.NoError(t, h.ExecRaw(ctx, `CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT, secret TEXT);
		CREATE INDEX idx_users_name ON users(name);`))

	res, err := h.Exec(ctx, `INSERT INTO users (name, secret) VALUES (?, ?)`, "ada", "x")
	require.NoError(t, err)
	require.EqualValues(t, 1, res.RowsAffected)
	require.EqualValues(t, 1, res.LastInsertID)

	_, err = h.Exec(ctx, `INSERT INTO users (name, secret) VALUES (?, ?)`, "grace", "y")
	require.NoError(t, err)

	rows, err := h.Query(ctx, `SELECT name FROM users ORDER BY id`)
	require.NoError(t, err)
	require.Equal(t, []string{"name"}, rows.Columns)
	require.Equal(t, [][]any{{"ada"}, {"grace"}}, rows.Values)

	found, err := h.FindMany(ctx, "users", 1)
	require.NoError(t, err)
	require.Equal(t, []string{"id", "name"}, found.Columns)
	require.Len(t, found.Values, 1)
	require.Equal(t, "ada", found.Maps()[0]["name"])

	_, err = h.FindMany(ctx, "rooms", 0)
	require.ErrorIs(t, err, persistence.ErrNotFound)

	_, err = h.Query(ctx, `SELECT * FROM missing`)
	require.Error(t, err)
}

func TestLocalHandle_MigrateBatch(t *testing.T) {
	ctx := context.Background()
	h := newLocal(t, nil)

	log := migration.Log{
		{SQL: []string{"CREATE TABLE a (id INTEGER PRIMARY KEY)"}, FolderMillis: 1, Hash: "1"},
		{SQL: []string{"CREATE TABLE b (id INTEGER PRIMARY KEY)"}, FolderMillis: 2, Hash: "2"},
	}
	require.NoError(t, h.MigrateBatch(ctx, log))
	require.NoError(t, h.MigrateBatch(ctx, log), "re-applying an applied log is a no-op")

	rows, err := h.Query(ctx, `SELECT hash FROM `+migration.TableName+` ORDER BY id`)
	require.NoError(t, err)
	require.Equal(t, [][]any{{"1"}, {"2"}}, rows.Values)
}

type proxyCall struct {
	name, sql string
	params    []any
	method    Method
}

func TestProxyHandle(t *testing.T) {
	ctx := context.Background()
	var calls []proxyCall
	fn := func(ctx context.Context, name, sql string, params []any, method Method) (*Rows, error) {
		calls = append(calls, proxyCall{name, sql, params, method})
		if method == MethodRun {
			return &Rows{RowsAffected: 3}, nil
		}
		return &Rows{Columns: []string{"id"}, Values: [][]any{{int64(1)}}}, nil
	}
	schema := &Schema{Tables: []Table{{Name: "users"}}}
	h := NewProxy("remote", fn, schema)

	require.Equal(t, persistence.ModeProxy, h.Mode())

	res, err := h.Exec(ctx, "UPDATE users SET x = $1", 1)
	require.NoError(t, err)
	require.EqualValues(t, 3, res.RowsAffected)

	rows, err := h.Query(ctx, "SELECT id FROM users")
	require.NoError(t, err)
	require.Equal(t, [][]any{{int64(1)}}, rows.Values)

	_, err = h.FindMany(ctx, "users", 10)
	require.NoError(t, err)

	require.NoError(t, h.ExecRaw(ctx, "SELECT 1"))

	require.Len(t, calls, 4)
	for _, c := range calls {
		require.Equal(t, "remote", c.name, "proxy must receive the database name")
	}
	require.Equal(t, MethodRun, calls[0].method)
	require.Equal(t, []any{1}, calls[0].params)
	require.Equal(t, MethodAll, calls[1].method)
	require.Equal(t, `SELECT * FROM "users" LIMIT 10`, calls[2].sql)

	err = h.MigrateBatch(ctx, migration.Log{{Hash: "a"}})
	require.ErrorIs(t, err, persistence.ErrUnsupportedOperation)
}

func TestProxyHandle_PropagatesErrors(t *testing.T) {
	boom := errors.New("backend down")
	h := NewProxy("remote", func(context.Context, string, string, []any, Method) (*Rows, error) {
		return nil, boom
	}, nil)

	_, err := h.Query(context.Background(), "SELECT 1")
	require.ErrorIs(t, err, boom)
}

type fakePgxRows struct {
	fields []pgconn.FieldDescription
	values [][]any
	pos    int
	closed bool
}

func (r *fakePgxRows) Close()                                       { r.closed = true }
func (r *fakePgxRows) Err() error                                   { return nil }
func (r *fakePgxRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT 2") }
func (r *fakePgxRows) FieldDescriptions() []pgconn.FieldDescription { return r.fields }
func (r *fakePgxRows) Scan(...any) error                            { return errors.New("not supported") }
func (r *fakePgxRows) RawValues() [][]byte                          { return nil }
func (r *fakePgxRows) Conn() *pgx.Conn                              { return nil }

func (r *fakePgxRows) Next() bool {
	if r.pos >= len(r.values) {
		return false
	}
	r.pos++
	return true
}

func (r *fakePgxRows) Values() ([]any, error) {
	return r.values[r.pos-1], nil
}

type fakeQuerier struct {
	rows     *fakePgxRows
	lastSQL  string
	lastArgs []any
}

func (q *fakeQuerier) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	q.lastSQL, q.lastArgs = sql, args
	return q.rows, nil
}

func (q *fakeQuerier) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	q.lastSQL, q.lastArgs = sql, args
	return pgconn.NewCommandTag("UPDATE 4"), nil
}

func TestPostgresProxy(t *testing.T) {
	ctx := context.Background()
	newQuerier := func() *fakeQuerier {
		return &fakeQuerier{rows: &fakePgxRows{
			fields: []pgconn.FieldDescription{{Name: "id"}, {Name: "name"}},
			values: [][]any{{int32(1), "ada"}, {int32(2), "grace"}},
		}}
	}

	t.Run("all", func(t *testing.T) {
		q := newQuerier()
		rows, err := PostgresProxy(q)(ctx, "client", "SELECT id, name FROM users WHERE id > $1", []any{0}, MethodAll)
		require.NoError(t, err)
		require.Equal(t, []string{"id", "name"}, rows.Columns)
		require.Len(t, rows.Values, 2)
		require.Equal(t, []any{0}, q.lastArgs)
		require.True(t, q.rows.closed)
	})

	t.Run("get", func(t *testing.T) {
		rows, err := PostgresProxy(newQuerier())(ctx, "client", "SELECT 1", nil, MethodGet)
		require.NoError(t, err)
		require.Len(t, rows.Values, 1)
	})

	t.Run("values", func(t *testing.T) {
		rows, err := PostgresProxy(newQuerier())(ctx, "client", "SELECT 1", nil, MethodValues)
		require.NoError(t, err)
		require.Nil(t, rows.Columns)
		require.Len(t, rows.Values, 2)
	})

	t.Run("run", func(t *testing.T) {
		rows, err := PostgresProxy(newQuerier())(ctx, "client", "UPDATE users SET name = $1", []any{"x"}, MethodRun)
		require.NoError(t, err)
		require.EqualValues(t, 4, rows.RowsAffected)
	})

	t.Run("through a proxy handle", func(t *testing.T) {
		h := NewProxy("client", PostgresProxy(newQuerier()), nil)
		res, err := h.Exec(ctx, "DELETE FROM users")
		require.NoError(t, err)
		require.EqualValues(t, 4, res.RowsAffected)
	})
}
