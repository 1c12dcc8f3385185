// Package reconciler exposes the sync façade domain code talks to. It
// composes the retry queue and a connectivity source behind a single status
// and syncNow surface.
package reconciler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"log/slog"

	"backhaul/internal/connectivity"
	"backhaul/internal/logging"
	"backhaul/internal/notifications"
	"backhaul/internal/queue"
)

// State is the coarse coordinator status surfaced to callers.
type State string

const (
	StateIdle    State = "idle"
	StateSyncing State = "syncing"
	StateError   State = "error"
)

// Status is a point-in-time view of reconciliation for UIs and IPC clients.
// SyncProgress is advisory only; it is derived from the pending count at the
// start of the current sync and says nothing about correctness.
type Status struct {
	State        State      `json:"state"`
	Online       bool       `json:"online"`
	PendingCount int        `json:"pending_count"`
	FailedCount  int        `json:"failed_count"`
	SyncProgress float64    `json:"sync_progress"`
	LastSyncTime *time.Time `json:"last_sync_time,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
}

// Coordinator drives explicit syncs and aggregates queue state.
type Coordinator struct {
	queue    *queue.Queue
	source   connectivity.Source
	notifier notifications.Service
	logger   *slog.Logger

	mu       sync.Mutex
	state    State
	baseline int
	lastSync time.Time
	lastErr  string
}

// Option configures optional Coordinator collaborators.
type Option func(*Coordinator)

// WithSource lets Status report the connectivity level.
func WithSource(source connectivity.Source) Option {
	return func(c *Coordinator) { c.source = source }
}

// WithNotifier enables push notifications on sync completion and terminal
// operation failure.
func WithNotifier(svc notifications.Service) Option {
	return func(c *Coordinator) { c.notifier = svc }
}

// New builds a coordinator over the given queue.
func New(q *queue.Queue, logger *slog.Logger, opts ...Option) (*Coordinator, error) {
	if q == nil {
		return nil, fmt.Errorf("coordinator requires a queue")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	c := &Coordinator{
		queue:  q,
		logger: logging.NewComponentLogger(logger, "reconciler"),
		state:  StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// PendingCount returns the number of active operations.
func (c *Coordinator) PendingCount() int {
	return c.queue.PendingCount()
}

// LastSyncTime returns the completion time of the last full reconciliation.
func (c *Coordinator) LastSyncTime() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSync, !c.lastSync.IsZero()
}

// Status reports the current reconciliation view.
func (c *Coordinator) Status() Status {
	pending := c.queue.PendingCount()
	failed := len(c.queue.FailedOperations())

	c.mu.Lock()
	defer c.mu.Unlock()

	status := Status{
		State:        c.state,
		PendingCount: pending,
		FailedCount:  failed,
		LastError:    c.lastErr,
	}
	if c.source != nil {
		status.Online = c.source.Online()
	}
	if !c.lastSync.IsZero() {
		t := c.lastSync
		status.LastSyncTime = &t
	}
	if c.state == StateSyncing && c.baseline > 0 {
		done := c.baseline - pending
		if done < 0 {
			done = 0
		}
		status.SyncProgress = float64(done) / float64(c.baseline)
	}
	return status
}

// SyncNow drains the queue and updates the coordinator state when the drain
// finishes. A call while a sync is already running is a no-op. The drain
// itself is shared with the scheduler, so a concurrent auto-drain simply makes
// this call observe its result.
func (c *Coordinator) SyncNow(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateSyncing {
		c.mu.Unlock()
		c.logger.Debug("sync already running; ignoring syncNow")
		return nil
	}
	c.state = StateSyncing
	c.baseline = c.queue.PendingCount()
	baseline := c.baseline
	c.lastErr = ""
	c.mu.Unlock()

	started := time.Now()
	failedBefore := len(c.queue.FailedOperations())
	c.logger.Info("sync started", logging.Int("pending_operations", baseline))

	c.queue.Drain(ctx)

	pending := c.queue.PendingCount()
	failed := c.queue.FailedOperations()
	var newFailed []queue.Operation
	if len(failed) > failedBefore {
		newFailed = failed[failedBefore:]
	}
	completed := baseline - pending - len(newFailed)
	if completed < 0 {
		completed = 0
	}

	c.mu.Lock()
	switch {
	case len(failed) > 0:
		c.state = StateError
		c.lastErr = fmt.Sprintf("%d operations exhausted retries", len(failed))
	default:
		c.state = StateIdle
	}
	if pending == 0 {
		c.lastSync = time.Now().UTC()
	}
	c.baseline = 0
	c.mu.Unlock()

	c.logger.Info("sync finished",
		logging.Int("completed_operations", completed),
		logging.Int("pending_operations", pending),
		logging.Int("failed_operations", len(failed)),
		logging.Duration("elapsed", time.Since(started)),
	)
	c.notifyOutcome(ctx, completed, pending, newFailed, time.Since(started))

	if len(newFailed) > 0 {
		return fmt.Errorf("sync finished with %d failed operations", len(newFailed))
	}
	return nil
}

func (c *Coordinator) notifyOutcome(ctx context.Context, completed, pending int, failed []queue.Operation, elapsed time.Duration) {
	if c.notifier == nil {
		return
	}

	if completed > 0 && pending == 0 && len(failed) == 0 {
		if err := c.notifier.NotifySyncCompleted(ctx, completed, elapsed); err != nil {
			c.logger.Warn("sync notification failed", logging.Error(err))
		}
	}
	for _, op := range failed {
		if err := c.notifier.NotifyOperationFailed(ctx, op.Type, op.Error); err != nil {
			c.logger.Warn("failure notification failed", logging.Error(err))
			break
		}
	}
}
