package testfixtures

import (
	"context"
	"testing"

	"github.com/example/clientdb/internal/clientdb"
	"github.com/example/clientdb/internal/persistence/sqlite/migration"
)

func TestManagerHarnessUsesDeterministicIDs(t *testing.T) {
	h := NewManagerHarness(t)

	entry, err := h.Manager.Init(context.Background(), "", PersistentConfig(), clientdb.InitOptions{})
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if entry.ID() != "entry-1" {
		t.Fatalf("expected entry-1, got %q", entry.ID())
	}
	if !entry.CreatedAt().Equal(ReferenceTime()) {
		t.Fatalf("expected creation at ReferenceTime, got %v", entry.CreatedAt())
	}
}

func TestWriteMigrationDirCompiles(t *testing.T) {
	dir := WriteMigrationDir(t,
		"CREATE TABLE a (id INTEGER PRIMARY KEY);",
		"CREATE TABLE b (id INTEGER PRIMARY KEY);",
	)

	log, err := migration.Compile(dir)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if len(log) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(log))
	}
	if log[1].FolderMillis-log[0].FolderMillis != 60_000 {
		t.Fatalf("expected steps one minute apart, got %d and %d", log[0].FolderMillis, log[1].FolderMillis)
	}
}

func TestSampleLogIsValid(t *testing.T) {
	if err := SampleLog().Validate(); err != nil {
		t.Fatalf("sample log invalid: %v", err)
	}
}
