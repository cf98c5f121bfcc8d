package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// sidecar files SQLite may create next to a database file.
var sidecarSuffixes = []string{"", "-wal", "-shm", "-journal"}

// Store maps storage locations to database files under a root directory and
// reference-counts open locations so deletion can wait for the last close.
// Opening a location whose deletion is pending blocks until the deletion
// has run, so a new engine never sees the files it replaced.
type Store struct {
	root   string
	logger *slog.Logger

	mu      sync.Mutex
	refs    map[string]int
	pending map[string]*pendingDelete
}

// pendingDelete is a deletion waiting for the last engine on a location to
// close. done is closed once the files are gone or the removal failed.
type pendingDelete struct {
	loc  Location
	done chan struct{}
}

// NewStore returns a store rooted at root. The directory is created on the
// first persistent open.
func NewStore(root string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		root:    root,
		logger:  logger.With("component", "store"),
		refs:    make(map[string]int),
		pending: make(map[string]*pendingDelete),
	}
}

// Root returns the directory persistent locations are resolved against.
func (s *Store) Root() string {
	return s.root
}

// Resolve returns the file path for a persistent location. Relative paths
// are joined to the root; absolute paths are accepted only when they lie
// under it.
func (s *Store) Resolve(loc Location) (string, error) {
	if !loc.Persistent() {
		return "", &StorageError{Location: loc, Op: "resolve", Err: fmt.Errorf("location is not persistent")}
	}
	path := loc.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.root, path)
	}
	path = filepath.Clean(path)
	if !s.contains(path) {
		return "", &StorageError{Location: loc, Op: "resolve", Err: fmt.Errorf("path escapes store root")}
	}
	return path, nil
}

func (s *Store) contains(path string) bool {
	root, err := filepath.Abs(s.root)
	if err != nil {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return true
}

// OpenDirect opens an engine used directly by callers.
func (s *Store) OpenDirect(ctx context.Context, loc Location, opts EngineOptions) (*DirectEngine, error) {
	db, release, err := s.open(ctx, loc, opts)
	if err != nil {
		return nil, err
	}
	return &DirectEngine{
		id:       uuid.NewString(),
		location: loc,
		db:       db,
		release:  release,
	}, nil
}

// OpenWorker opens an engine owned by a background worker goroutine. boot,
// when set, runs on the worker before it serves any job.
func (s *Store) OpenWorker(ctx context.Context, loc Location, opts EngineOptions, boot WorkerBootstrap) (*WorkerEngine, error) {
	if unsupported := opts.UnsupportedWorkerExtensions(); len(unsupported) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedExtension, strings.Join(unsupported, ", "))
	}
	db, release, err := s.open(ctx, loc, opts)
	if err != nil {
		return nil, err
	}
	w, err := startWorker(ctx, loc, db, release, boot, s.logger)
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (s *Store) open(ctx context.Context, loc Location, opts EngineOptions) (*sql.DB, func(), error) {
	if !loc.Persistent() {
		db, err := s.connect(ctx, loc, "", true, opts)
		if err != nil {
			return nil, nil, err
		}
		return db, func() {}, nil
	}

	path, err := s.Resolve(loc)
	if err != nil {
		return nil, nil, err
	}
	if err := s.acquire(ctx, loc, path); err != nil {
		return nil, nil, err
	}

	var once sync.Once
	release := func() {
		once.Do(func() { s.release(path) })
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		release()
		return nil, nil, &StorageError{Location: loc, Op: "open", Err: err}
	}
	db, err := s.connect(ctx, loc, path, false, opts)
	if err != nil {
		release()
		return nil, nil, err
	}
	return db, release, nil
}

func (s *Store) connect(ctx context.Context, loc Location, path string, memory bool, opts EngineOptions) (*sql.DB, error) {
	db, err := openDB(ctx, path, memory, opts.connection())
	if err != nil {
		return nil, &StorageError{Location: loc, Op: "open", Err: err}
	}
	if err := opts.setup(ctx, db); err != nil {
		_ = db.Close()
		return nil, &StorageError{Location: loc, Op: "open", Err: err}
	}
	return db, nil
}

// acquire takes a reference on path, first waiting for a pending deletion of
// it to finish.
func (s *Store) acquire(ctx context.Context, loc Location, path string) error {
	for {
		s.mu.Lock()
		pending, ok := s.pending[path]
		if !ok {
			s.refs[path]++
			s.mu.Unlock()
			return nil
		}
		s.mu.Unlock()

		s.logger.Info("open waiting for pending delete", "location", loc.String())
		select {
		case <-pending.done:
		case <-ctx.Done():
			return &StorageError{Location: loc, Op: "open", Err: fmt.Errorf("waiting for pending delete: %w", ctx.Err())}
		}
	}
}

func (s *Store) release(path string) {
	s.mu.Lock()
	s.refs[path]--
	if s.refs[path] > 0 {
		s.mu.Unlock()
		return
	}
	delete(s.refs, path)
	pending, ok := s.pending[path]
	s.mu.Unlock()

	if !ok {
		return
	}
	// The entry stays in pending until the files are gone so that opens keep
	// waiting behind the removal.
	err := removeFiles(path)

	s.mu.Lock()
	delete(s.pending, path)
	s.mu.Unlock()
	close(pending.done)

	if err != nil {
		s.logger.Error("deferred delete failed", "location", pending.loc.String(), "error", err)
		return
	}
	s.logger.Info("deferred delete completed", "location", pending.loc.String())
}

// PendingDelete reports whether a deletion of loc is waiting for open
// engines to close.
func (s *Store) PendingDelete(loc Location) bool {
	path, err := s.Resolve(loc)
	if err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[path]
	return ok
}

// Refs returns how many engines currently hold the location open.
func (s *Store) Refs(loc Location) int {
	path, err := s.Resolve(loc)
	if err != nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs[path]
}

// Delete removes the database files for a persistent location. When the
// location is still open the removal is deferred until the last engine is
// closed and DeletedPendingClose is returned; opens of the location wait for
// the removal in the meantime.
func (s *Store) Delete(ctx context.Context, loc Location) (DeleteOutcome, error) {
	if err := ctx.Err(); err != nil {
		return DeleteFailed, err
	}
	path, err := s.Resolve(loc)
	if err != nil {
		return DeleteFailed, err
	}

	s.mu.Lock()
	if s.refs[path] > 0 {
		if _, ok := s.pending[path]; !ok {
			s.pending[path] = &pendingDelete{loc: loc, done: make(chan struct{})}
		}
		s.mu.Unlock()
		s.logger.Warn("delete blocked by open handles; deferring", "location", loc.String())
		return DeletedPendingClose, nil
	}
	s.mu.Unlock()

	if err := removeFiles(path); err != nil {
		return DeleteFailed, &StorageError{Location: loc, Op: "delete", Err: err}
	}
	return Deleted, nil
}

func removeFiles(path string) error {
	var errs []error
	for _, suffix := range sidecarSuffixes {
		if err := os.Remove(path + suffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
