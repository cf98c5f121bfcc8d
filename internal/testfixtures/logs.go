package testfixtures

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/clientdb/internal/persistence/sqlite/migration"
	"github.com/example/clientdb/internal/query"
)

// UsersStep creates a users table.
func UsersStep(hash string) migration.Step {
	return migration.Step{
		SQL:          []string{"CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT NOT NULL)"},
		FolderMillis: referenceTime.UnixMilli(),
		Hash:         hash,
	}
}

// NotesStep creates a notes table with breakpoints between statements.
func NotesStep(hash string) migration.Step {
	return migration.Step{
		SQL: []string{
			"CREATE TABLE notes (id INTEGER PRIMARY KEY, user_id INTEGER REFERENCES users(id), body TEXT)",
			"CREATE INDEX idx_notes_user ON notes(user_id)",
		},
		Breakpoints:  true,
		FolderMillis: referenceTime.UnixMilli() + 1000,
		Hash:         hash,
	}
}

// SampleLog returns a two-step log: users, then notes.
func SampleLog() migration.Log {
	return migration.Log{UsersStep("users-v1"), NotesStep("notes-v1")}
}

// SingleStepLog returns a log whose only step has the given hash.
func SingleStepLog(hash string) migration.Log {
	return migration.Log{UsersStep(hash)}
}

// SampleSchema declares the tables created by SampleLog.
func SampleSchema() *query.Schema {
	return &query.Schema{Tables: []query.Table{
		{Name: "users", Columns: []string{"id", "name"}},
		{Name: "notes", Columns: []string{"id", "user_id", "body"}},
	}}
}

// WriteMigrationDir writes numbered migration files into a new temporary
// directory and returns it. Each file gets a Created header one minute apart.
func WriteMigrationDir(tb testing.TB, files ...string) string {
	tb.Helper()
	dir := tb.TempDir()
	for i, content := range files {
		name := fmt.Sprintf("%03d_step_%d.sql", i+1, i+1)
		created := referenceTime.Add(time.Duration(i) * time.Minute).UnixMilli()
		body := fmt.Sprintf("-- Created: %d\n%s\n", created, content)
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			tb.Fatalf("write migration %s: %v", name, err)
		}
	}
	return dir
}
