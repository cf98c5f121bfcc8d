package migration

import (
	"context"
	"log/slog"
	"sync"

	"github.com/example/clientdb/internal/persistence"
	"github.com/example/clientdb/internal/persistence/kv"
)

// Step is one migration folder compiled into statements.
type Step struct {
	SQL          []string `json:"sql"`          // Statements in execution order
	Breakpoints  bool     `json:"bps"`          // Run statements one by one, outside the batch transaction
	FolderMillis int64    `json:"folderMillis"` // Creation time of the migration folder
	Hash         string   `json:"hash"`         // Cumulative fingerprint up to and including this step
}

// Log is an ordered migration log. The zero value is not a valid log.
type Log []Step

// Last returns the final step of the log. It must only be called on a log
// that passed Validate.
func (l Log) Last() Step {
	return l[len(l)-1]
}

// Handle is the part of a query handle the runner needs.
type Handle interface {
	// Mode reports what backs the handle.
	Mode() persistence.Mode
	// ExecRaw sends a script to the engine as-is, without statement handling.
	ExecRaw(ctx context.Context, script string) error
	// MigrateBatch applies the log in one driver-level call.
	MigrateBatch(ctx context.Context, log Log) error
}

// Options controls a migration run.
type Options struct {
	// Log is the migration log to apply. A nil log disables migration.
	Log Log
	// PreMigrationScript runs before the log is applied, for example to create
	// extensions. It does not run when the stored hash shows the database is
	// current. Failures are logged and ignored.
	PreMigrationScript string
	// Force skips both the attempted-once guard and the hash comparison.
	Force bool
	// StorageKey is the key prefix for the last applied hash. The database
	// name is appended as ":name". Defaults to DefaultStorageKey.
	StorageKey string
	// Storage keeps the last applied hash. When nil the state's storage is used.
	Storage kv.Storage
	// Logger receives migration progress. Defaults to the runner's logger.
	Logger *slog.Logger
}

// State is the per-database migration state. The runner mutates it; callers
// only read it.
type State struct {
	mu sync.Mutex

	AttemptedMigration bool
	Skip               bool
	Storage            kv.Storage
}

// Snapshot returns the flags under the state lock.
func (s *State) Snapshot() (attempted, skip bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.AttemptedMigration, s.Skip
}

// MarkSkipped records that migration was decided against without an attempt
// against the engine, e.g. because no log was configured.
func (s *State) MarkSkipped() {
	s.mu.Lock()
	s.Skip = true
	s.mu.Unlock()
}

// Observer receives migration outcomes. Implementations must be safe for
// concurrent use.
type Observer interface {
	MigrationApplied(name string)
	MigrationSkipped(name string)
	MigrationFailed(name string)
}
