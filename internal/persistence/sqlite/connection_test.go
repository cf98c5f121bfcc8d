package sqlite

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestConnectionConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ConnectionConfig)
		wantErr string
	}{
		{name: "defaults", mutate: func(*ConnectionConfig) {}},
		{name: "lowercase journal mode", mutate: func(c *ConnectionConfig) { c.JournalMode = "delete" }},
		{name: "negative busy timeout", mutate: func(c *ConnectionConfig) { c.BusyTimeout = -time.Second }, wantErr: "busy timeout"},
		{name: "unknown journal mode", mutate: func(c *ConnectionConfig) { c.JournalMode = "FAST" }, wantErr: "journal mode"},
		{name: "unknown synchronous", mutate: func(c *ConnectionConfig) { c.Synchronous = "SOMETIMES" }, wantErr: "synchronous"},
		{name: "negative connections", mutate: func(c *ConnectionConfig) { c.MaxOpenConns = -1 }, wantErr: "max open connections"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConnectionConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("expected valid config, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestConnectionConfigDSN(t *testing.T) {
	cfg := DefaultConnectionConfig()

	file := cfg.dsn("/tmp/app.db", false)
	if !strings.HasPrefix(file, "file:/tmp/app.db?") {
		t.Fatalf("unexpected file DSN %q", file)
	}
	for _, want := range []string{"busy_timeout%285000%29", "foreign_keys%281%29", "journal_mode%28WAL%29", "synchronous%28NORMAL%29"} {
		if !strings.Contains(file, want) {
			t.Fatalf("file DSN %q missing %q", file, want)
		}
	}

	memory := cfg.dsn("", true)
	if !strings.HasPrefix(memory, ":memory:?") || strings.Contains(memory, "journal_mode") {
		t.Fatalf("memory DSN must skip the journal mode, got %q", memory)
	}

	if got := (ConnectionConfig{}).dsn("/tmp/bare.db", false); got != "file:/tmp/bare.db" {
		t.Fatalf("expected bare DSN, got %q", got)
	}
}

func TestWithRetry(t *testing.T) {
	fast := RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, BackoffFactor: 2}

	t.Run("retries busy errors", func(t *testing.T) {
		calls := 0
		err := withRetry(context.Background(), fast, func() error {
			calls++
			if calls < 3 {
				return errors.New("database is locked (5) (SQLITE_BUSY)")
			}
			return nil
		})
		if err != nil || calls != 3 {
			t.Fatalf("expected success on third call, got %v after %d calls", err, calls)
		}
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		calls := 0
		err := withRetry(context.Background(), fast, func() error {
			calls++
			return errors.New("SQLITE_BUSY")
		})
		if err == nil || calls != fast.MaxRetries+1 {
			t.Fatalf("expected failure after %d calls, got %v after %d", fast.MaxRetries+1, err, calls)
		}
	})

	t.Run("does not retry other errors", func(t *testing.T) {
		calls := 0
		boom := errors.New("no such table: users")
		err := withRetry(context.Background(), fast, func() error {
			calls++
			return boom
		})
		if !errors.Is(err, boom) || calls != 1 {
			t.Fatalf("expected a single call returning boom, got %v after %d", err, calls)
		}
	})

	t.Run("stops when the context ends", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := withRetry(ctx, fast, func() error { return errors.New("database is locked") })
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	})
}

func TestIsBusy(t *testing.T) {
	if IsBusy(nil) || IsBusy(context.DeadlineExceeded) || IsBusy(errors.New("syntax error")) {
		t.Fatal("only lock contention counts as busy")
	}
	if !IsBusy(errors.New("database is locked")) {
		t.Fatal("expected lock errors to be busy")
	}
}
