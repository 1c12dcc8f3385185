package daemon_test

import (
	"context"
	"encoding/json"
	"testing"

	"backhaul/internal/config"
	"backhaul/internal/daemon"
	"backhaul/internal/queue"
	"backhaul/internal/reconciler"
	"backhaul/internal/testsupport"
)

func newTestDaemon(t *testing.T, cfg *config.Config) (*daemon.Daemon, *queue.Queue) {
	t.Helper()

	st := testsupport.MustOpenStore(t, cfg)
	q, err := queue.New(st, queue.NewRegistry(), queue.SettingsFromConfig(cfg), nil,
		queue.WithOnlineCheck(func() bool { return false }))
	if err != nil {
		t.Fatalf("queue.New: %v", err)
	}
	coordinator, err := reconciler.New(q, nil)
	if err != nil {
		t.Fatalf("reconciler.New: %v", err)
	}

	d, err := daemon.New(cfg, st, q, coordinator, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { d.Stop() })
	return d, q
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	d, _ := newTestDaemon(t, cfg)
	ctx := context.Background()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !d.Running() {
		t.Fatal("expected daemon to report running")
	}
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected error starting twice")
	}

	d.Stop()
	if d.Running() {
		t.Fatal("expected daemon stopped")
	}
	if err := d.Start(ctx); err != nil {
		t.Fatalf("restart: %v", err)
	}
}

func TestDaemonLockPreventsSecondInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	ctx := context.Background()

	first, _ := newTestDaemon(t, cfg)
	if err := first.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}

	second, _ := newTestDaemon(t, cfg)
	if err := second.Start(ctx); err == nil {
		t.Fatal("expected second instance to fail on the lock")
	}

	first.Stop()
	if err := second.Start(ctx); err != nil {
		t.Fatalf("second Start after release: %v", err)
	}
}

func TestDaemonStartHydratesQueue(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	ctx := context.Background()

	// Seed an operation through a throwaway queue over the same store.
	st := testsupport.MustOpenStore(t, cfg)
	seed, err := queue.New(st, queue.NewRegistry(), queue.SettingsFromConfig(cfg), nil,
		queue.WithOnlineCheck(func() bool { return false }))
	if err != nil {
		t.Fatalf("queue.New: %v", err)
	}
	id, err := seed.Enqueue(ctx, "http.post", json.RawMessage(`{"path":"/x"}`), queue.PriorityHigh)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close seed store: %v", err)
	}

	d, q := newTestDaemon(t, cfg)
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, ok := q.Get(id); !ok {
		t.Fatalf("operation %s not hydrated on start", id)
	}
	status := d.Status(ctx)
	if status.QueueStats[queue.StatusPending] != 1 {
		t.Fatalf("queue stats = %v, want one pending", status.QueueStats)
	}
	if status.StorePath != cfg.StorePath() {
		t.Fatalf("store path = %q, want %q", status.StorePath, cfg.StorePath())
	}
}

func TestDaemonQueueMaintenance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	d, q := newTestDaemon(t, cfg)
	ctx := context.Background()

	first, _ := q.Enqueue(ctx, "http.post", nil, queue.PriorityHigh)
	q.Enqueue(ctx, "http.delete", nil, queue.PriorityLow)

	ops := d.ListQueue(ctx, nil)
	if len(ops) != 2 {
		t.Fatalf("ListQueue returned %d operations, want 2", len(ops))
	}
	pendingOnly := d.ListQueue(ctx, []queue.Status{queue.StatusPending})
	if len(pendingOnly) != 2 {
		t.Fatalf("pending filter returned %d operations, want 2", len(pendingOnly))
	}
	if none := d.ListQueue(ctx, []queue.Status{queue.StatusFailed}); len(none) != 0 {
		t.Fatalf("failed filter returned %d operations, want 0", len(none))
	}

	if op, ok := d.GetOperation(ctx, first); !ok || op.ID != first {
		t.Fatalf("GetOperation(%s) = %v, %v", first, op, ok)
	}

	removed, err := d.ClearQueue(ctx)
	if err != nil {
		t.Fatalf("ClearQueue: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
}

func TestDaemonTestNotificationUnconfigured(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	d, _ := newTestDaemon(t, cfg)

	sent, message, err := d.TestNotification(context.Background())
	if err != nil {
		t.Fatalf("TestNotification: %v", err)
	}
	if sent {
		t.Fatal("expected no notification without a topic")
	}
	if message == "" {
		t.Fatal("expected an explanatory message")
	}
}

func TestDaemonStoreHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	d, _ := newTestDaemon(t, cfg)

	health, err := d.StoreHealth(context.Background())
	if err != nil {
		t.Fatalf("StoreHealth: %v", err)
	}
	if !health.DatabaseExists || !health.IntegrityCheck {
		t.Fatalf("unexpected health: %+v", health)
	}
}
