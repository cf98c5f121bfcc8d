package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/example/clientdb/internal/persistence"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func createTable(t *testing.T, e Engine) {
	t.Helper()
	err := e.Do(context.Background(), func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx, `CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT)`)
		return err
	})
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
}

func TestParseLocation(t *testing.T) {
	tests := []struct {
		raw     string
		want    Location
		wantErr bool
	}{
		{raw: "file://client.db", want: FileLocation("client.db")},
		{raw: "memory://client", want: MemoryLocation("client")},
		{raw: "idb://client", wantErr: true},
		{raw: "client.db", wantErr: true},
		{raw: "file://", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseLocation(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
			if got.String() != tt.raw {
				t.Fatalf("String() = %q, want %q", got.String(), tt.raw)
			}
		})
	}
}

func TestStore_ResolveRejectsEscapes(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Resolve(FileLocation("../outside.db")); !errors.Is(err, persistence.ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if _, err := store.Resolve(MemoryLocation("x")); err == nil {
		t.Fatal("expected memory location to be rejected")
	}
	outside := filepath.Join(t.TempDir(), "outside.db")
	if _, err := store.Resolve(FileLocation(outside)); !errors.Is(err, persistence.ErrStorage) {
		t.Fatalf("expected absolute path outside the root to be rejected, got %v", err)
	}
	inside := filepath.Join(store.Root(), "abs.db")
	if got, err := store.Resolve(FileLocation(inside)); err != nil || got != inside {
		t.Fatalf("expected absolute path under the root to resolve, got %q (err=%v)", got, err)
	}

	path, err := store.Resolve(FileLocation("nested/client.db"))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if path != filepath.Join(store.Root(), "nested", "client.db") {
		t.Fatalf("unexpected path %s", path)
	}
}

func TestDirectEngine_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	loc := FileLocation("client.db")

	engine, err := store.OpenDirect(ctx, loc, EngineOptions{})
	if err != nil {
		t.Fatalf("OpenDirect failed: %v", err)
	}
	if engine.Mode() != persistence.ModeLocal {
		t.Fatalf("expected local mode, got %s", engine.Mode())
	}
	if engine.ID() == "" {
		t.Fatal("expected engine id")
	}
	createTable(t, engine)

	if store.Refs(loc) != 1 {
		t.Fatalf("expected 1 ref, got %d", store.Refs(loc))
	}

	if err := engine.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := engine.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got %v", err)
	}
	if !engine.Closed() {
		t.Fatal("expected engine to report closed")
	}
	if store.Refs(loc) != 0 {
		t.Fatalf("expected refs released, got %d", store.Refs(loc))
	}

	err = engine.Do(ctx, func(context.Context, *sql.DB) error { return nil })
	if !errors.Is(err, persistence.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestMemoryEnginesAreIsolated(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	a, err := store.OpenDirect(ctx, MemoryLocation("a"), EngineOptions{})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, err := store.OpenDirect(ctx, MemoryLocation("a"), EngineOptions{})
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	createTable(t, a)
	createTable(t, b)
}

func TestWorkerEngine(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	var booted bool
	boot := func(ctx context.Context, db *sql.DB) error {
		booted = true
		_, err := db.ExecContext(ctx, `CREATE TABLE boot (id INTEGER)`)
		return err
	}

	engine, err := store.OpenWorker(ctx, FileLocation("worker.db"), EngineOptions{
		Extensions: map[string]Extension{
			LiveExtension: ExtensionFunc(func(context.Context, *sql.DB) error { return nil }),
		},
	}, boot)
	if err != nil {
		t.Fatalf("OpenWorker failed: %v", err)
	}
	defer engine.Close()

	if !booted {
		t.Fatal("expected bootstrap to run before the engine is returned")
	}
	if engine.Mode() != persistence.ModeWorker {
		t.Fatalf("expected worker mode, got %s", engine.Mode())
	}
	createTable(t, engine)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := engine.Do(ctx, func(ctx context.Context, db *sql.DB) error {
				_, err := db.ExecContext(ctx, `INSERT INTO items (id, name) VALUES (?, ?)`, i, "x")
				return err
			})
			if err != nil {
				t.Errorf("insert %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	var count int
	err = engine.Do(ctx, func(ctx context.Context, db *sql.DB) error {
		return db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&count)
	})
	if err != nil || count != 20 {
		t.Fatalf("expected 20 rows, got %d (err=%v)", count, err)
	}

	t.Run("panicking job becomes an error", func(t *testing.T) {
		err := engine.Do(ctx, func(context.Context, *sql.DB) error { panic("boom") })
		if err == nil {
			t.Fatal("expected error from panicking job")
		}
	})
}

func TestWorkerEngine_RejectsExtensions(t *testing.T) {
	store := newTestStore(t)
	_, err := store.OpenWorker(context.Background(), FileLocation("w.db"), EngineOptions{
		Extensions: map[string]Extension{
			"vector": ExtensionFunc(func(context.Context, *sql.DB) error { return nil }),
		},
	}, nil)
	if !errors.Is(err, ErrUnsupportedExtension) {
		t.Fatalf("expected ErrUnsupportedExtension, got %v", err)
	}
}

func TestWorkerEngine_BootstrapFailure(t *testing.T) {
	store := newTestStore(t)
	loc := FileLocation("w.db")
	_, err := store.OpenWorker(context.Background(), loc, EngineOptions{}, func(context.Context, *sql.DB) error {
		return errors.New("bad script")
	})
	if !errors.Is(err, persistence.ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if store.Refs(loc) != 0 {
		t.Fatalf("expected reference released, got %d", store.Refs(loc))
	}
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("closed location is deleted", func(t *testing.T) {
		store := newTestStore(t)
		loc := FileLocation("client.db")
		engine, err := store.OpenDirect(ctx, loc, EngineOptions{})
		if err != nil {
			t.Fatal(err)
		}
		createTable(t, engine)
		engine.Close()

		path, _ := store.Resolve(loc)
		if !fileExists(path) {
			t.Fatal("expected database file on disk")
		}

		outcome, err := store.Delete(ctx, loc)
		if err != nil || outcome != Deleted {
			t.Fatalf("expected Deleted, got %s (err=%v)", outcome, err)
		}
		if fileExists(path) {
			t.Fatal("expected database file removed")
		}
	})

	t.Run("open location is deleted after last close", func(t *testing.T) {
		store := newTestStore(t)
		loc := FileLocation("shared.db")
		first, err := store.OpenDirect(ctx, loc, EngineOptions{})
		if err != nil {
			t.Fatal(err)
		}
		second, err := store.OpenDirect(ctx, loc, EngineOptions{})
		if err != nil {
			t.Fatal(err)
		}
		createTable(t, first)
		first.Close()

		outcome, err := store.Delete(ctx, loc)
		if err != nil || outcome != DeletedPendingClose {
			t.Fatalf("expected DeletedPendingClose, got %s (err=%v)", outcome, err)
		}

		path, _ := store.Resolve(loc)
		if !fileExists(path) {
			t.Fatal("files must stay while a handle is open")
		}
		second.Close()
		if fileExists(path) {
			t.Fatal("expected files removed once the last handle closed")
		}
	})

	t.Run("open waits for a pending delete", func(t *testing.T) {
		store := newTestStore(t)
		loc := FileLocation("queued.db")
		holder, err := store.OpenDirect(ctx, loc, EngineOptions{})
		if err != nil {
			t.Fatal(err)
		}
		createTable(t, holder)

		if outcome, err := store.Delete(ctx, loc); err != nil || outcome != DeletedPendingClose {
			t.Fatalf("expected DeletedPendingClose, got %s (err=%v)", outcome, err)
		}
		if !store.PendingDelete(loc) {
			t.Fatal("expected the delete to be pending")
		}

		short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		if _, err := store.OpenDirect(short, loc, EngineOptions{}); !errors.Is(err, context.DeadlineExceeded) || !errors.Is(err, persistence.ErrStorage) {
			t.Fatalf("expected the open to time out behind the delete, got %v", err)
		}
		if store.Refs(loc) != 1 {
			t.Fatalf("a timed out open must not hold a reference, got %d", store.Refs(loc))
		}

		opened := make(chan *DirectEngine, 1)
		go func() {
			engine, err := store.OpenDirect(ctx, loc, EngineOptions{})
			if err != nil {
				t.Error(err)
			}
			opened <- engine
		}()

		select {
		case <-opened:
			t.Fatal("open returned before the pending delete ran")
		case <-time.After(20 * time.Millisecond):
		}

		holder.Close()
		fresh := <-opened
		if fresh == nil {
			t.FailNow()
		}
		defer fresh.Close()

		if store.PendingDelete(loc) {
			t.Fatal("expected the pending delete to be done")
		}
		var tables int
		err = fresh.Do(ctx, func(ctx context.Context, db *sql.DB) error {
			return db.QueryRowContext(ctx, `SELECT count(*) FROM sqlite_master WHERE type = 'table'`).Scan(&tables)
		})
		if err != nil {
			t.Fatal(err)
		}
		if tables != 0 {
			t.Fatalf("expected a clean database, found %d tables", tables)
		}
	})

	t.Run("missing files count as deleted", func(t *testing.T) {
		store := newTestStore(t)
		outcome, err := store.Delete(ctx, FileLocation("never.db"))
		if err != nil || outcome != Deleted {
			t.Fatalf("expected Deleted, got %s (err=%v)", outcome, err)
		}
	})
}
