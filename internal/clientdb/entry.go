package clientdb

import (
	"log/slog"
	"time"

	"github.com/example/clientdb/internal/persistence"
	"github.com/example/clientdb/internal/persistence/sqlite"
	"github.com/example/clientdb/internal/persistence/sqlite/migration"
	"github.com/example/clientdb/internal/query"
)

// Config describes how a database is built. It is kept on the entry so the
// database can be rebuilt identically.
type Config struct {
	// UseWorker runs the engine on a dedicated worker goroutine.
	UseWorker bool
	// Worker runs on the worker before it serves jobs. Only used with UseWorker.
	Worker sqlite.WorkerBootstrap
	// UsePersistentStore places the default location in the store directory
	// instead of memory.
	UsePersistentStore bool
	// Location overrides the default location, e.g. "file://app/client.db".
	// File paths resolve under the store root; absolute paths outside it
	// are rejected.
	Location string
	// Engine configures the connection and extensions.
	Engine sqlite.EngineOptions
	// Migration is applied automatically by UseDB.
	Migration migration.Options
	// Proxy forwards all statements to a remote backend; no engine is created.
	Proxy query.ProxyFunc
	// Schema declares the tables reachable through FindMany.
	Schema *query.Schema
	// RequireSchema rejects non-proxy databases without a Schema.
	RequireSchema bool
	// DisableAutoMigrate stops UseDB from running the migration.
	DisableAutoMigrate bool
}

// InitOptions are caller preferences that do not affect how the database is
// built.
type InitOptions struct {
	Logger *slog.Logger
	// ExposeInDev lists the database in the dev inspector.
	ExposeInDev bool
}

// Entry is one registered database.
type Entry struct {
	id        string
	name      string
	mode      persistence.Mode
	engine    sqlite.Engine
	handle    query.Handle
	state     *migration.State
	location  sqlite.Location
	config    Config
	init      InitOptions
	createdAt time.Time
}

// ID identifies this incarnation of the database; a reinitialised database
// gets a new one.
func (e *Entry) ID() string { return e.id }

// Name returns the registry name.
func (e *Entry) Name() string { return e.name }

// Mode reports what backs the database.
func (e *Entry) Mode() persistence.Mode { return e.mode }

// Engine returns the embedded engine, or nil for proxied databases.
func (e *Entry) Engine() sqlite.Engine { return e.engine }

// Handle returns the query handle.
func (e *Entry) Handle() query.Handle { return e.handle }

// MigrationState returns the migration flags for this database.
func (e *Entry) MigrationState() *migration.State { return e.state }

// Location returns the storage location. It is the zero Location for
// proxied databases.
func (e *Entry) Location() sqlite.Location { return e.location }

// Config returns the configuration the database was built with.
func (e *Entry) Config() Config { return e.config }

// InitOptions returns the options the database was registered with.
func (e *Entry) InitOptions() InitOptions { return e.init }

// CreatedAt returns when the entry was built.
func (e *Entry) CreatedAt() time.Time { return e.createdAt }
