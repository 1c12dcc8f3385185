package store_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"backhaul/internal/store"
	"backhaul/internal/testsupport"
)

func TestOpenCreatesSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	if err := st.CreatePartition(ctx, "operations"); err != nil {
		t.Fatalf("CreatePartition failed: %v", err)
	}

	names, err := st.Partitions(ctx)
	if err != nil {
		t.Fatalf("Partitions failed: %v", err)
	}
	if len(names) != 1 || names[0] != "operations" {
		t.Fatalf("unexpected partitions: %v", names)
	}
}

func TestCreatePartitionIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := st.CreatePartition(ctx, "workouts"); err != nil {
			t.Fatalf("CreatePartition attempt %d failed: %v", i+1, err)
		}
	}

	names, err := st.Partitions(ctx)
	if err != nil {
		t.Fatalf("Partitions failed: %v", err)
	}
	if len(names) != 1 {
		t.Fatalf("expected single partition, got %v", names)
	}
}

func TestGetAllReturnsDecodedValuesInInsertionOrder(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.MustCreatePartition(t, st, "workouts")

	type workout struct {
		Name string `json:"name"`
		Reps int    `json:"reps"`
	}

	ctx := context.Background()
	tx, err := st.Begin(ctx, store.ModeReadWrite, "workouts")
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	for i, name := range []string{"squat", "bench", "row"} {
		value := []byte(fmt.Sprintf(`{"name":%q,"reps":%d}`, name, (i+1)*5))
		if err := tx.Add("workouts", fmt.Sprintf("w-%d", i), value); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	values, err := store.GetAll[workout](ctx, st, "workouts")
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(values) != 3 {
		t.Fatalf("expected 3 workouts, got %d", len(values))
	}
	if values[0].Name != "squat" || values[2].Reps != 15 {
		t.Fatalf("unexpected decode order/content: %#v", values)
	}
}

func TestReadsOnMissingPartitionReturnNotFound(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	if _, err := st.GetAllRaw(ctx, "ghost"); !errors.Is(err, store.ErrPartitionNotFound) {
		t.Fatalf("GetAllRaw: expected ErrPartitionNotFound, got %v", err)
	}
	if _, err := st.Get(ctx, "ghost", "k"); !errors.Is(err, store.ErrPartitionNotFound) {
		t.Fatalf("Get: expected ErrPartitionNotFound, got %v", err)
	}
	if _, err := st.Count(ctx, "ghost"); !errors.Is(err, store.ErrPartitionNotFound) {
		t.Fatalf("Count: expected ErrPartitionNotFound, got %v", err)
	}
}

func TestGetReturnsNilForAbsentKey(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.MustCreatePartition(t, st, "meals")

	record, err := st.Get(context.Background(), "meals", "missing")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if record != nil {
		t.Fatalf("expected nil record, got %#v", record)
	}
}

func TestCheckHealthReportsPartitionsAndIntegrity(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.MustCreatePartition(t, st, "operations")
	testsupport.MustCommitPut(t, st, "operations", "op-1", []byte(`{"id":"op-1"}`))

	health, err := st.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth failed: %v", err)
	}
	if !health.DatabaseExists || !health.DatabaseReadable {
		t.Fatalf("expected healthy database, got %#v", health)
	}
	if health.SchemaVersion != 1 {
		t.Fatalf("unexpected schema version: %d", health.SchemaVersion)
	}
	if len(health.Partitions) != 1 || health.TotalRecords != 1 {
		t.Fatalf("unexpected health counts: %#v", health)
	}
	if !health.IntegrityCheck {
		t.Fatal("expected integrity check to pass")
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want store.Kind
	}{
		{"unavailable", fmt.Errorf("wrap: %w", store.ErrUnavailable), store.KindUnavailable},
		{"quota", fmt.Errorf("wrap: %w", store.ErrQuotaExceeded), store.KindQuotaExceeded},
		{"not found", fmt.Errorf("wrap: %w", store.ErrPartitionNotFound), store.KindPartitionNotFound},
		{"validation", fmt.Errorf("wrap: %w", store.ErrValidation), store.KindValidation},
		{"read only", store.ErrReadOnly, store.KindValidation},
		{"unknown", errors.New("boom"), store.KindUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := store.Classify(tc.err); got != tc.want {
				t.Fatalf("Classify(%v) = %q, want %q", tc.err, got, tc.want)
			}
		})
	}
}
