package testfixtures

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/example/attendance-tracker/internal/persistence"
	"github.com/example/attendance-tracker/internal/persistence/memory"
	"github.com/example/attendance-tracker/internal/persistence/sqlite"
)

// StoreFactory opens an empty store for a test.
type StoreFactory func(tb testing.TB) persistence.Store

// StoreFactories returns every store implementation keyed by name so contract
// tests can run against each of them.
func StoreFactories() map[string]StoreFactory {
	return map[string]StoreFactory{
		"memory": NewMemoryStore,
		"sqlite": NewSQLiteStore,
	}
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore(tb testing.TB) persistence.Store {
	tb.Helper()
	store := memory.New()
	tb.Cleanup(func() { _ = store.Close() })
	return store
}

// NewSQLiteStore opens a migrated SQLite database in a temporary directory. The
// store is closed automatically when the test finishes.
func NewSQLiteStore(tb testing.TB) persistence.Store {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "attendance.db")
	store, err := sqlite.OpenMigrated(context.Background(), sqlite.DefaultConfig(path), DiscardLogger())
	if err != nil {
		tb.Fatalf("failed to open sqlite store: %v", err)
	}
	tb.Cleanup(func() { _ = store.Close() })
	return store
}

// DiscardLogger returns a logger that drops every record.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
