package testsupport

import (
	"context"
	"testing"

	"backhaul/internal/config"
	"backhaul/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// MustCreatePartition registers a partition or fails the test.
func MustCreatePartition(t testing.TB, st *store.Store, name string) {
	t.Helper()

	if err := st.CreatePartition(context.Background(), name); err != nil {
		t.Fatalf("store.CreatePartition(%q): %v", name, err)
	}
}

// MustCommitPut writes a single record through a transaction or fails the test.
func MustCommitPut(t testing.TB, st *store.Store, partition, key string, value []byte) {
	t.Helper()

	ctx := context.Background()
	tx, err := st.Begin(ctx, store.ModeReadWrite, partition)
	if err != nil {
		t.Fatalf("store.Begin: %v", err)
	}
	if err := tx.Put(partition, key, value); err != nil {
		t.Fatalf("tx.Put: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("tx.Commit: %v", err)
	}
}
