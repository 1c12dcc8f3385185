package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"log/slog"

	"github.com/gofrs/flock"

	"backhaul/internal/config"
	"backhaul/internal/connectivity"
	"backhaul/internal/logging"
	"backhaul/internal/notifications"
	"backhaul/internal/queue"
	"backhaul/internal/reconciler"
	"backhaul/internal/store"
)

// Daemon coordinates the background services and enforces single-instance
// execution through a file lock.
type Daemon struct {
	cfg         *config.Config
	logger      *slog.Logger
	store       *store.Store
	queue       *queue.Queue
	coordinator *reconciler.Coordinator
	monitor     *connectivity.Monitor
	scheduler   *connectivity.Scheduler
	notifier    notifications.Service
	logPath     string

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Online       bool
	Reconciler   reconciler.Status
	QueueStats   map[queue.Status]int
	StorePath    string
	LockFilePath string
}

// New constructs a daemon with initialized dependencies. Monitor and
// scheduler may be nil when the host supplies its own connectivity signal.
func New(cfg *config.Config, st *store.Store, q *queue.Queue, coordinator *reconciler.Coordinator,
	monitor *connectivity.Monitor, scheduler *connectivity.Scheduler,
	notifier notifications.Service, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || st == nil || q == nil || coordinator == nil {
		return nil, errors.New("daemon requires config, store, queue, and coordinator")
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:         cfg,
		logger:      logger,
		store:       st,
		queue:       q,
		coordinator: coordinator,
		monitor:     monitor,
		scheduler:   scheduler,
		notifier:    notifier,
		logPath:     filepath.Join(cfg.Paths.LogDir, "backhaul.log"),
		lockPath:    lockPath,
		lock:        flock.New(lockPath),
	}, nil
}

// Start hydrates the queue, launches the connectivity services, and acquires
// the daemon lock.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another backhaul daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	if err := d.queue.Load(d.ctx); err != nil {
		d.releaseStart()
		return fmt.Errorf("hydrate queue: %w", err)
	}

	if d.monitor != nil {
		if err := d.monitor.Start(d.ctx); err != nil {
			d.releaseStart()
			return fmt.Errorf("start connectivity monitor: %w", err)
		}
	}
	if d.scheduler != nil {
		if err := d.scheduler.Start(d.ctx); err != nil {
			if d.monitor != nil {
				d.monitor.Stop()
			}
			d.releaseStart()
			return fmt.Errorf("start scheduler: %w", err)
		}
	}

	// The scheduler catches the first online transition; this covers hosts
	// that are already online before the first probe completes.
	if d.cfg.Queue.DrainOnStart {
		go d.queue.Drain(d.ctx)
	}

	d.running.Store(true)
	d.logger.Info("backhaul daemon started",
		logging.String("lock", d.lockPath),
		logging.Int("pending_operations", d.queue.PendingCount()),
	)
	return nil
}

func (d *Daemon) releaseStart() {
	_ = d.lock.Unlock()
	if d.cancel != nil {
		d.cancel()
	}
	d.ctx = nil
	d.cancel = nil
}

// Stop halts background services and releases the daemon lock. In-flight
// handlers are left to finish through context cancellation semantics; nothing
// is aborted forcefully.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.scheduler != nil {
		d.scheduler.Stop()
	}
	if d.monitor != nil {
		d.monitor.Stop()
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("backhaul daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether the daemon has been started.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// LogPath returns the daemon log file location.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns combined runtime information for IPC clients.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Reconciler:   d.coordinator.Status(),
		QueueStats:   d.queue.Stats(),
		StorePath:    d.cfg.StorePath(),
		LockFilePath: d.lockPath,
	}
	if d.monitor != nil {
		status.Online = d.monitor.Online()
	} else {
		status.Online = status.Reconciler.Online
	}
	return status
}

// SyncNow triggers an explicit reconciliation pass.
func (d *Daemon) SyncNow(ctx context.Context) error {
	return d.coordinator.SyncNow(ctx)
}

// ListQueue returns operations filtered by optional statuses, active set
// first in dispatch order, then terminally failed ones.
func (d *Daemon) ListQueue(ctx context.Context, statuses []queue.Status) []queue.Operation {
	ops := append(d.queue.Operations(), d.queue.FailedOperations()...)
	if len(statuses) == 0 {
		return ops
	}

	wanted := make(map[queue.Status]struct{}, len(statuses))
	for _, status := range statuses {
		wanted[status] = struct{}{}
	}
	filtered := ops[:0]
	for _, op := range ops {
		if _, ok := wanted[op.Status]; ok {
			filtered = append(filtered, op)
		}
	}
	return filtered
}

// GetOperation returns a single operation by ID.
func (d *Daemon) GetOperation(ctx context.Context, id string) (queue.Operation, bool) {
	return d.queue.Get(strings.TrimSpace(id))
}

// ClearQueue removes every queued operation.
func (d *Daemon) ClearQueue(ctx context.Context) (int, error) {
	return d.queue.Clear(ctx)
}

// RetryFailed moves failed operations back to pending.
func (d *Daemon) RetryFailed(ctx context.Context, ids []string) int {
	return d.queue.RetryFailed(ctx, ids...)
}

// StoreHealth returns detailed store diagnostics.
func (d *Daemon) StoreHealth(ctx context.Context) (store.DatabaseHealth, error) {
	return d.store.CheckHealth(ctx)
}

// HandlerTypes lists the registered operation types in stable order.
func (d *Daemon) HandlerTypes() []string {
	types := d.queue.Registry().Types()
	sort.Strings(types)
	return types
}

// TestNotification triggers a test notification using the current
// configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, err.Error(), err
	}
	return true, "test notification sent", nil
}
