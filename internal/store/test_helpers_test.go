package store

import (
	"context"
	"path/filepath"
	"testing"
)

// createTestStore creates a new on-disk store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := OpenAndInitialize(context.Background(), path, SchemaVersion, nil)
	if err != nil {
		t.Fatalf("OpenAndInitialize() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createMemoryStore creates a new in-memory store for testing.
func createMemoryStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "unused.db")
	s, err := OpenAndInitialize(context.Background(), path, SchemaVersion, MemoryConnector)
	if err != nil {
		t.Fatalf("OpenAndInitialize() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}
