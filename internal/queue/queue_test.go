package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"backhaul/internal/queue"
	"backhaul/internal/store"
	"backhaul/internal/testsupport"
)

// newTestQueue builds a queue over a fresh store with connectivity controlled
// by the returned flag. The flag starts offline so enqueues do not trigger
// background drains and tests stay deterministic.
func newTestQueue(t *testing.T) (*queue.Queue, *store.Store, *atomic.Bool) {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	var online atomic.Bool
	q, err := queue.New(st, queue.NewRegistry(), queue.SettingsFromConfig(cfg), nil,
		queue.WithOnlineCheck(online.Load))
	if err != nil {
		t.Fatalf("queue.New: %v", err)
	}
	return q, st, &online
}

func TestEnqueueAssignsDefaults(t *testing.T) {
	q, _, _ := newTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, "http.post", json.RawMessage(`{"path":"/items"}`), queue.PriorityMedium)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if id == "" {
		t.Fatal("expected a generated operation ID")
	}

	op, ok := q.Get(id)
	if !ok {
		t.Fatalf("operation %s not found", id)
	}
	if op.Status != queue.StatusPending {
		t.Fatalf("status = %s, want pending", op.Status)
	}
	if op.Attempts != 0 {
		t.Fatalf("attempts = %d, want 0", op.Attempts)
	}
	if op.MaxAttempts != 3 {
		t.Fatalf("max attempts = %d, want config default 3", op.MaxAttempts)
	}
	if op.CreatedAt.IsZero() {
		t.Fatal("expected created_at to be set")
	}
}

func TestEnqueueRejectsEmptyType(t *testing.T) {
	q, _, _ := newTestQueue(t)
	if _, err := q.Enqueue(context.Background(), "", nil, queue.PriorityHigh); err == nil {
		t.Fatal("expected error for empty operation type")
	}
}

func TestEnqueueMaxAttemptsOverride(t *testing.T) {
	q, _, _ := newTestQueue(t)

	id, err := q.Enqueue(context.Background(), "http.post", nil, queue.PriorityLow, queue.WithMaxAttempts(7))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	op, _ := q.Get(id)
	if op.MaxAttempts != 7 {
		t.Fatalf("max attempts = %d, want 7", op.MaxAttempts)
	}
}

func TestPriorityOrderingWithinClassFIFO(t *testing.T) {
	q, _, _ := newTestQueue(t)
	ctx := context.Background()

	first, _ := q.Enqueue(ctx, "http.post", json.RawMessage(`"a"`), queue.PriorityHigh)
	second, _ := q.Enqueue(ctx, "http.post", json.RawMessage(`"b"`), queue.PriorityLow)
	third, _ := q.Enqueue(ctx, "http.post", json.RawMessage(`"c"`), queue.PriorityHigh)

	ops := q.Operations()
	if len(ops) != 3 {
		t.Fatalf("expected 3 operations, got %d", len(ops))
	}
	want := []string{first, third, second}
	for i, id := range want {
		if ops[i].ID != id {
			t.Fatalf("position %d = %s, want %s (order %v)", i, ops[i].ID, id, want)
		}
	}
}

func TestSubscribeSnapshotAndNotifications(t *testing.T) {
	q, _, _ := newTestQueue(t)
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, "http.post", nil, queue.PriorityMedium); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	var calls [][]queue.Operation
	unsubscribe := q.Subscribe(func(ops []queue.Operation) {
		calls = append(calls, ops)
	})

	if len(calls) != 1 {
		t.Fatalf("expected immediate snapshot, got %d calls", len(calls))
	}
	if len(calls[0]) != 1 {
		t.Fatalf("immediate snapshot has %d operations, want 1", len(calls[0]))
	}

	if _, err := q.Enqueue(ctx, "http.post", nil, queue.PriorityHigh); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if len(calls) != 2 {
		t.Fatalf("expected notification after enqueue, got %d calls", len(calls))
	}
	if len(calls[1]) != 2 {
		t.Fatalf("second snapshot has %d operations, want 2", len(calls[1]))
	}

	unsubscribe()
	if _, err := q.Enqueue(ctx, "http.post", nil, queue.PriorityLow); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if len(calls) != 2 {
		t.Fatalf("expected no calls after unsubscribe, got %d", len(calls))
	}
}

func TestLoadRestoresPersistedOperations(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	var offline atomic.Bool
	q1, err := queue.New(st, queue.NewRegistry(), queue.SettingsFromConfig(cfg), nil,
		queue.WithOnlineCheck(offline.Load))
	if err != nil {
		t.Fatalf("queue.New: %v", err)
	}
	payload := json.RawMessage(`{"path":"/items","body":{"n":1}}`)
	id, err := q1.Enqueue(ctx, "http.post", payload, queue.PriorityHigh)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	// Simulates a process restart: a second queue over the same store.
	q2, err := queue.New(st, queue.NewRegistry(), queue.SettingsFromConfig(cfg), nil,
		queue.WithOnlineCheck(offline.Load))
	if err != nil {
		t.Fatalf("queue.New: %v", err)
	}
	if err := q2.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}

	op, ok := q2.Get(id)
	if !ok {
		t.Fatalf("operation %s not restored", id)
	}
	if op.Status != queue.StatusPending {
		t.Fatalf("restored status = %s, want pending", op.Status)
	}
	if op.Priority != queue.PriorityHigh {
		t.Fatalf("restored priority = %v, want high", op.Priority)
	}
	if string(op.Payload) != string(payload) {
		t.Fatalf("restored payload = %s, want %s", op.Payload, payload)
	}
}

func TestLoadResetsInProgressToPending(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.MustCreatePartition(t, st, queue.OperationsPartition)

	// A record stuck IN_PROGRESS is what a crash mid-dispatch leaves behind.
	stuck := queue.Operation{
		ID:          "stuck-op",
		Type:        "http.post",
		Priority:    queue.PriorityMedium,
		Status:      queue.StatusInProgress,
		Attempts:    1,
		MaxAttempts: 3,
		CreatedAt:   time.Now().UTC(),
	}
	data, err := json.Marshal(stuck)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	testsupport.MustCommitPut(t, st, queue.OperationsPartition, stuck.ID, data)

	q, err := queue.New(st, queue.NewRegistry(), queue.SettingsFromConfig(cfg), nil,
		queue.WithOnlineCheck(func() bool { return false }))
	if err != nil {
		t.Fatalf("queue.New: %v", err)
	}
	if err := q.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}

	op, ok := q.Get(stuck.ID)
	if !ok {
		t.Fatal("stuck operation not restored")
	}
	if op.Status != queue.StatusPending {
		t.Fatalf("status = %s, want pending after hydration", op.Status)
	}
	if op.Attempts != 1 {
		t.Fatalf("attempts = %d, want prior count preserved", op.Attempts)
	}
}

func TestClearEmptiesMemoryAndStore(t *testing.T) {
	q, st, _ := newTestQueue(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := q.Enqueue(ctx, "http.post", nil, queue.PriorityMedium); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	removed, err := q.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if removed != 3 {
		t.Fatalf("removed = %d, want 3", removed)
	}
	if q.PendingCount() != 0 {
		t.Fatalf("pending count = %d after clear", q.PendingCount())
	}

	count, err := st.Count(ctx, queue.OperationsPartition)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 0 {
		t.Fatalf("store still holds %d records after clear", count)
	}
}

func TestRegistryRejectsDuplicateRegistration(t *testing.T) {
	registry := queue.NewRegistry()
	noop := func(context.Context, json.RawMessage) error { return nil }

	if err := registry.Register("http.post", noop); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	err := registry.Register("http.post", noop)
	if !errors.Is(err, queue.ErrDuplicateHandler) {
		t.Fatalf("second Register error = %v, want ErrDuplicateHandler", err)
	}

	if err := registry.Override("http.post", noop); err != nil {
		t.Fatalf("Override: %v", err)
	}
	if _, ok := registry.Resolve("http.post"); !ok {
		t.Fatal("expected handler to resolve after override")
	}
}

func TestRegistryValidation(t *testing.T) {
	registry := queue.NewRegistry()
	if err := registry.Register("", func(context.Context, json.RawMessage) error { return nil }); err == nil {
		t.Fatal("expected error for empty type")
	}
	if err := registry.Register("x", nil); err == nil {
		t.Fatal("expected error for nil handler")
	}
	if _, ok := registry.Resolve("missing"); ok {
		t.Fatal("expected miss for unregistered type")
	}
}

func TestStatsGroupsByStatus(t *testing.T) {
	q, _, _ := newTestQueue(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := q.Enqueue(ctx, "http.post", nil, queue.PriorityMedium); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	stats := q.Stats()
	if stats[queue.StatusPending] != 2 {
		t.Fatalf("pending = %d, want 2", stats[queue.StatusPending])
	}
	if stats[queue.StatusFailed] != 0 {
		t.Fatalf("failed = %d, want 0", stats[queue.StatusFailed])
	}
}
