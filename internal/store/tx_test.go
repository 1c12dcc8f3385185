package store_test

import (
	"context"
	"errors"
	"testing"

	"backhaul/internal/store"
	"backhaul/internal/testsupport"
)

func TestCommitAppliesMutationsAtomically(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.MustCreatePartition(t, st, "workouts")
	testsupport.MustCreatePartition(t, st, "meals")

	ctx := context.Background()
	tx, err := st.Begin(ctx, store.ModeReadWrite, "workouts", "meals")
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := tx.Add("workouts", "w-1", []byte(`{"name":"squat"}`)); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := tx.Put("meals", "m-1", []byte(`{"name":"oats"}`)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// Nothing visible before commit.
	if count, err := st.Count(ctx, "workouts"); err != nil || count != 0 {
		t.Fatalf("expected empty partition before commit, count=%d err=%v", count, err)
	}

	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	for _, partition := range []string{"workouts", "meals"} {
		count, err := st.Count(ctx, partition)
		if err != nil {
			t.Fatalf("Count(%s) failed: %v", partition, err)
		}
		if count != 1 {
			t.Fatalf("expected 1 record in %s, got %d", partition, count)
		}
	}
}

func TestAbortDiscardsMutations(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.MustCreatePartition(t, st, "workouts")

	ctx := context.Background()
	tx, err := st.Begin(ctx, store.ModeReadWrite, "workouts")
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := tx.Put("workouts", "w-1", []byte(`{}`)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	tx.Abort()

	if count, err := st.Count(ctx, "workouts"); err != nil || count != 0 {
		t.Fatalf("expected no records after abort, count=%d err=%v", count, err)
	}
	if err := tx.Commit(ctx); !errors.Is(err, store.ErrTxDone) {
		t.Fatalf("expected ErrTxDone after abort, got %v", err)
	}
}

func TestTransactionHandleIsTerminalAfterCommit(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.MustCreatePartition(t, st, "workouts")

	ctx := context.Background()
	tx, err := st.Begin(ctx, store.ModeReadWrite, "workouts")
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if err := tx.Put("workouts", "w-1", []byte(`{}`)); !errors.Is(err, store.ErrTxDone) {
		t.Fatalf("expected ErrTxDone, got %v", err)
	}
	if err := tx.Commit(ctx); !errors.Is(err, store.ErrTxDone) {
		t.Fatalf("expected ErrTxDone on double commit, got %v", err)
	}
}

func TestBeginRejectsMissingPartition(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.MustCreatePartition(t, st, "workouts")

	_, err := st.Begin(context.Background(), store.ModeReadWrite, "workouts", "ghost")
	if !errors.Is(err, store.ErrPartitionNotFound) {
		t.Fatalf("expected ErrPartitionNotFound, got %v", err)
	}
}

func TestMutationsOutsideScopeRejected(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.MustCreatePartition(t, st, "workouts")
	testsupport.MustCreatePartition(t, st, "meals")

	tx, err := st.Begin(context.Background(), store.ModeReadWrite, "workouts")
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	defer tx.Abort()

	if err := tx.Put("meals", "m-1", []byte(`{}`)); !errors.Is(err, store.ErrPartitionNotFound) {
		t.Fatalf("expected scope violation, got %v", err)
	}
}

func TestReadOnlyTransactionRejectsWrites(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.MustCreatePartition(t, st, "workouts")

	tx, err := st.Begin(context.Background(), store.ModeReadOnly, "workouts")
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	defer tx.Abort()

	if err := tx.Put("workouts", "w-1", []byte(`{}`)); !errors.Is(err, store.ErrReadOnly) {
		t.Fatalf("expected ErrReadOnly, got %v", err)
	}
}

func TestAddDuplicateKeyFailsCommitAsValidation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.MustCreatePartition(t, st, "workouts")
	testsupport.MustCommitPut(t, st, "workouts", "w-1", []byte(`{"v":1}`))

	ctx := context.Background()
	tx, err := st.Begin(ctx, store.ModeReadWrite, "workouts")
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := tx.Add("workouts", "w-1", []byte(`{"v":2}`)); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := tx.Commit(ctx); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error on duplicate add, got %v", err)
	}

	// The original value survives the failed commit.
	record, err := st.Get(ctx, "workouts", "w-1")
	if err != nil || record == nil {
		t.Fatalf("Get after failed commit: record=%v err=%v", record, err)
	}
	if string(record.Value) != `{"v":1}` {
		t.Fatalf("expected original value preserved, got %s", record.Value)
	}
}

func TestCommitRejectsInvalidJSON(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.MustCreatePartition(t, st, "workouts")

	ctx := context.Background()
	tx, err := st.Begin(ctx, store.ModeReadWrite, "workouts")
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := tx.Put("workouts", "w-1", []byte(`{not json`)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := tx.Commit(ctx); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for invalid JSON, got %v", err)
	}
}

func TestPutUpdatesAndDeleteRemoves(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.MustCreatePartition(t, st, "workouts")
	testsupport.MustCommitPut(t, st, "workouts", "w-1", []byte(`{"v":1}`))

	ctx := context.Background()
	tx, err := st.Begin(ctx, store.ModeReadWrite, "workouts")
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := tx.Put("workouts", "w-1", []byte(`{"v":2}`)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	record, err := st.Get(ctx, "workouts", "w-1")
	if err != nil || record == nil {
		t.Fatalf("Get failed: record=%v err=%v", record, err)
	}
	if string(record.Value) != `{"v":2}` {
		t.Fatalf("expected updated value, got %s", record.Value)
	}

	tx, err = st.Begin(ctx, store.ModeReadWrite, "workouts")
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := tx.Delete("workouts", "w-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if count, err := st.Count(ctx, "workouts"); err != nil || count != 0 {
		t.Fatalf("expected empty partition after delete, count=%d err=%v", count, err)
	}
}

func TestClearEmptiesOnlyTargetPartition(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.MustCreatePartition(t, st, "workouts")
	testsupport.MustCreatePartition(t, st, "meals")
	testsupport.MustCommitPut(t, st, "workouts", "w-1", []byte(`{}`))
	testsupport.MustCommitPut(t, st, "meals", "m-1", []byte(`{}`))

	ctx := context.Background()
	tx, err := st.Begin(ctx, store.ModeReadWrite, "workouts")
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := tx.Clear("workouts"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if count, _ := st.Count(ctx, "workouts"); count != 0 {
		t.Fatalf("expected workouts cleared, got %d", count)
	}
	if count, _ := st.Count(ctx, "meals"); count != 1 {
		t.Fatalf("expected meals untouched, got %d", count)
	}
}
