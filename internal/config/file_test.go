package config

import (
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	t.Run("decodes every field", func(t *testing.T) {
		raw := []byte(`
databases:
  - name: client
    persistent: true
    worker: true
    migrations: /srv/migrations.json
    pre_migration_script: "PRAGMA foreign_keys = ON;"
    auto_migrate: false
    default: true
    expose: true
    storage_key: app:hash
    tables:
      - name: users
        columns: [id, name]
  - name: reporting
    postgres_dsn: postgres://localhost/reporting
`)
		file, err := Parse(raw)
		if err != nil {
			t.Fatalf("Parse returned error: %v", err)
		}
		if len(file.Databases) != 2 {
			t.Fatalf("expected 2 databases, got %d", len(file.Databases))
		}

		client := file.Databases[0]
		if !client.Persistent || !client.Worker || !client.Expose || client.StorageKey != "app:hash" {
			t.Fatalf("unexpected flags: %+v", client)
		}
		if client.Migrates() {
			t.Fatal("auto_migrate: false must disable migration")
		}
		if len(client.Tables) != 1 || client.Tables[0].Columns[1] != "name" {
			t.Fatalf("unexpected tables: %+v", client.Tables)
		}
		if name, ok := file.Default(); !ok || name != "client" {
			t.Fatalf("expected client default, got %q %v", name, ok)
		}
		if file.Databases[1].PostgresDSN == "" {
			t.Fatal("expected postgres dsn")
		}
	})

	t.Run("auto migrate defaults on", func(t *testing.T) {
		file, err := Parse([]byte("databases:\n  - name: client\n    migrations: log.json\n"))
		if err != nil {
			t.Fatalf("Parse returned error: %v", err)
		}
		if !file.Databases[0].Migrates() {
			t.Fatal("expected migration to be enabled")
		}
	})

	t.Run("empty document", func(t *testing.T) {
		file, err := Parse(nil)
		if err != nil {
			t.Fatalf("Parse returned error: %v", err)
		}
		if len(file.Databases) != 0 {
			t.Fatalf("expected no databases, got %+v", file.Databases)
		}
	})

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "unknown key", raw: "databases:\n  - name: a\n    colour: blue\n", want: "decode yaml"},
		{name: "missing name", raw: "databases:\n  - persistent: true\n", want: "name is required"},
		{name: "duplicate", raw: "databases:\n  - name: a\n  - name: a\n", want: `duplicate name "a"`},
		{name: "two defaults", raw: "databases:\n  - name: a\n    default: true\n  - name: b\n    default: true\n", want: "at most one database"},
		{name: "proxy with worker", raw: "databases:\n  - name: a\n    worker: true\n    postgres_dsn: postgres://x\n", want: "postgres_dsn cannot be combined"},
		{name: "unnamed table", raw: "databases:\n  - name: a\n    tables:\n      - columns: [id]\n", want: "tables[0]: name is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.raw))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
