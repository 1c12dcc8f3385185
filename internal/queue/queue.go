package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"backhaul/internal/config"
	"backhaul/internal/logging"
	"backhaul/internal/store"
)

// OperationsPartition is the store partition holding queue metadata.
const OperationsPartition = "operations"

// Settings tunes dispatch and backoff behavior.
type Settings struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
}

// SettingsFromConfig derives queue settings from application config.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		MaxAttempts:    cfg.Queue.MaxAttempts,
		InitialBackoff: time.Duration(cfg.Queue.InitialBackoff) * time.Millisecond,
		MaxBackoff:     time.Duration(cfg.Queue.MaxBackoff) * time.Millisecond,
		BackoffFactor:  cfg.Queue.BackoffFactor,
	}
}

func (s Settings) withDefaults() Settings {
	if s.MaxAttempts <= 0 {
		s.MaxAttempts = 3
	}
	if s.InitialBackoff <= 0 {
		s.InitialBackoff = time.Second
	}
	if s.MaxBackoff < s.InitialBackoff {
		s.MaxBackoff = 30 * time.Second
	}
	if s.BackoffFactor < 1 {
		s.BackoffFactor = 2
	}
	return s
}

// Subscriber receives the full active-operation snapshot on every queue
// mutation and once immediately upon subscribing.
type Subscriber func(ops []Operation)

// Queue is the persisted retry queue. All state mutations are serialized
// through an internal mutex; dispatch is serialized through a single drain
// loop guarded by the draining flag.
type Queue struct {
	store    *store.Store
	registry *Registry
	settings Settings
	logger   *slog.Logger
	online   func() bool

	mu        sync.Mutex
	active    []*Operation
	failed    []*Operation
	seq       uint64
	clearGen  uint64
	draining  bool
	drainDone chan struct{}

	subMu       sync.Mutex
	subscribers map[int]Subscriber
	nextSubID   int
}

// Option configures optional Queue behavior.
type Option func(*Queue)

// WithOnlineCheck installs the connectivity check consulted before dispatch.
// Without one the queue assumes it is always online.
func WithOnlineCheck(fn func() bool) Option {
	return func(q *Queue) { q.online = fn }
}

// New constructs a queue backed by the given store. The operations partition
// is created when absent.
func New(st *store.Store, registry *Registry, settings Settings, logger *slog.Logger, opts ...Option) (*Queue, error) {
	if st == nil {
		return nil, fmt.Errorf("queue requires a store")
	}
	if registry == nil {
		registry = NewRegistry()
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	q := &Queue{
		store:       st,
		registry:    registry,
		settings:    settings.withDefaults(),
		logger:      logging.NewComponentLogger(logger, "retry-queue"),
		subscribers: make(map[int]Subscriber),
	}
	for _, opt := range opts {
		opt(q)
	}

	if err := st.CreatePartition(context.Background(), OperationsPartition); err != nil {
		return nil, fmt.Errorf("ensure operations partition: %w", err)
	}
	return q, nil
}

// Registry returns the handler registry for this queue.
func (q *Queue) Registry() *Registry {
	return q.registry
}

// EnqueueOption customizes a single enqueued operation.
type EnqueueOption func(*Operation)

// WithMaxAttempts overrides the default retry ceiling for one operation.
func WithMaxAttempts(n int) EnqueueOption {
	return func(op *Operation) {
		if n > 0 {
			op.MaxAttempts = n
		}
	}
}

// Enqueue persists a new operation and inserts it into the priority-ordered
// queue. When online, a drain is triggered asynchronously. The returned ID
// identifies the operation for later queries.
func (q *Queue) Enqueue(ctx context.Context, opType string, payload json.RawMessage, priority Priority, opts ...EnqueueOption) (string, error) {
	if opType == "" {
		return "", fmt.Errorf("operation type must not be empty")
	}

	op := &Operation{
		ID:          uuid.NewString(),
		Type:        opType,
		Payload:     payload,
		Priority:    priority,
		Status:      StatusPending,
		MaxAttempts: q.settings.MaxAttempts,
		CreatedAt:   time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(op)
	}

	// Persist before the in-memory insert so a crash after this point is
	// recoverable via Load.
	q.persistNew(ctx, op)

	q.mu.Lock()
	op.seq = q.nextSeq()
	q.active = append(q.active, op)
	q.sortActiveLocked()
	q.mu.Unlock()

	q.logger.Info("operation enqueued",
		logging.String(logging.FieldOperationID, op.ID),
		logging.String(logging.FieldOpType, op.Type),
		logging.String(logging.FieldPriority, op.Priority.String()),
	)
	q.notify()

	if q.isOnline() {
		go q.Drain(context.WithoutCancel(ctx))
	}
	return op.ID, nil
}

// Load rebuilds the in-memory queue from the store. Operations found
// IN_PROGRESS are reset to PENDING: a crash mid-dispatch may or may not have
// delivered the write, and handlers are required to tolerate at-least-once
// delivery.
func (q *Queue) Load(ctx context.Context) error {
	ops, err := store.GetAll[Operation](ctx, q.store, OperationsPartition)
	if err != nil {
		return fmt.Errorf("load pending operations: %w", err)
	}

	q.mu.Lock()
	q.active = q.active[:0]
	q.failed = q.failed[:0]
	for i := range ops {
		op := ops[i]
		switch op.Status {
		case StatusCompleted:
			// Crash window between handler success and record removal.
			q.deleteOp(ctx, op.ID)
		case StatusFailed:
			cp := op
			q.failed = append(q.failed, &cp)
		default:
			cp := op
			if cp.Status == StatusInProgress {
				cp.Status = StatusPending
				q.persistBestEffort(ctx, &cp)
			}
			cp.seq = q.nextSeq()
			q.active = append(q.active, &cp)
		}
	}
	q.sortActiveLocked()
	loaded := len(q.active)
	q.mu.Unlock()

	q.logger.Info("queue hydrated from store", logging.Int("active_operations", loaded))
	q.notify()
	return nil
}

// Clear removes every operation from both store and memory. It exists as an
// explicit escape hatch for unrecoverable storage errors, so in-memory state
// is dropped even when the store write fails. Bumping the generation makes an
// in-flight dispatch discard its result instead of writing the operation back.
func (q *Queue) Clear(ctx context.Context) (int, error) {
	q.mu.Lock()
	removed := len(q.active) + len(q.failed)
	q.active = nil
	q.failed = nil
	q.clearGen++
	q.mu.Unlock()
	q.notify()

	tx, err := q.store.Begin(ctx, store.ModeReadWrite, OperationsPartition)
	if err != nil {
		return removed, fmt.Errorf("clear queue: %w", err)
	}
	if err := tx.Clear(OperationsPartition); err != nil {
		tx.Abort()
		return removed, fmt.Errorf("clear queue: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return removed, fmt.Errorf("clear queue: %w", err)
	}
	return removed, nil
}

// RetryFailed moves terminally failed operations back to pending. With no IDs
// every failed operation is retried. It returns the number of operations
// requeued.
func (q *Queue) RetryFailed(ctx context.Context, ids ...string) int {
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}

	q.mu.Lock()
	var kept []*Operation
	var requeued int
	for _, op := range q.failed {
		if len(wanted) > 0 {
			if _, ok := wanted[op.ID]; !ok {
				kept = append(kept, op)
				continue
			}
		}
		op.Status = StatusPending
		op.Attempts = 0
		op.Error = ""
		op.seq = q.nextSeq()
		q.active = append(q.active, op)
		q.persistBestEffort(ctx, op)
		requeued++
	}
	q.failed = kept
	q.sortActiveLocked()
	q.mu.Unlock()

	if requeued > 0 {
		q.notify()
		if q.isOnline() {
			go q.Drain(context.WithoutCancel(ctx))
		}
	}
	return requeued
}

// Subscribe registers a callback for queue changes. The callback fires once
// immediately with the current snapshot so late subscribers see correct state.
// The returned function removes the subscription.
func (q *Queue) Subscribe(fn Subscriber) func() {
	q.subMu.Lock()
	id := q.nextSubID
	q.nextSubID++
	q.subscribers[id] = fn
	q.subMu.Unlock()

	fn(q.Operations())

	return func() {
		q.subMu.Lock()
		delete(q.subscribers, id)
		q.subMu.Unlock()
	}
}

// Operations returns a snapshot of active operations in dispatch order.
func (q *Queue) Operations() []Operation {
	q.mu.Lock()
	defer q.mu.Unlock()
	return snapshotLocked(q.active)
}

// FailedOperations returns a snapshot of terminally failed operations.
func (q *Queue) FailedOperations() []Operation {
	q.mu.Lock()
	defer q.mu.Unlock()
	return snapshotLocked(q.failed)
}

// Get returns a single operation by ID from the active or failed sets.
func (q *Queue) Get(id string) (Operation, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, op := range q.active {
		if op.ID == id {
			return *op, true
		}
	}
	for _, op := range q.failed {
		if op.ID == id {
			return *op, true
		}
	}
	return Operation{}, false
}

// PendingCount returns the number of active operations.
func (q *Queue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.active)
}

// Stats returns operation counts grouped by status.
func (q *Queue) Stats() map[Status]int {
	q.mu.Lock()
	defer q.mu.Unlock()
	stats := make(map[Status]int, len(allStatuses))
	for _, op := range q.active {
		stats[op.Status]++
	}
	stats[StatusFailed] = len(q.failed)
	return stats
}

func (q *Queue) isOnline() bool {
	if q.online == nil {
		return true
	}
	return q.online()
}

func (q *Queue) nextSeq() uint64 {
	q.seq++
	return q.seq
}

func (q *Queue) sortActiveLocked() {
	sort.SliceStable(q.active, func(i, j int) bool {
		if q.active[i].Priority != q.active[j].Priority {
			return q.active[i].Priority < q.active[j].Priority
		}
		return q.active[i].seq < q.active[j].seq
	})
}

func snapshotLocked(ops []*Operation) []Operation {
	out := make([]Operation, 0, len(ops))
	for _, op := range ops {
		out = append(out, *op)
	}
	return out
}

func (q *Queue) notify() {
	snapshot := q.Operations()

	q.subMu.Lock()
	subs := make([]Subscriber, 0, len(q.subscribers))
	for _, fn := range q.subscribers {
		subs = append(subs, fn)
	}
	q.subMu.Unlock()

	for _, fn := range subs {
		fn(snapshot)
	}
}

// persistNew writes a freshly enqueued operation. Failures follow the
// availability-over-durability policy: log and keep the in-memory operation.
func (q *Queue) persistNew(ctx context.Context, op *Operation) {
	q.writeOp(ctx, op, true)
}

// persistBestEffort writes an operation status change under the same policy.
func (q *Queue) persistBestEffort(ctx context.Context, op *Operation) {
	q.writeOp(ctx, op, false)
}

func (q *Queue) writeOp(ctx context.Context, op *Operation, isNew bool) {
	data, err := json.Marshal(op)
	if err != nil {
		q.logOpStoreFailure(op, fmt.Errorf("encode operation: %w", err))
		return
	}

	tx, err := q.store.Begin(ctx, store.ModeReadWrite, OperationsPartition)
	if err != nil {
		q.logOpStoreFailure(op, err)
		return
	}
	if isNew {
		err = tx.Add(OperationsPartition, op.ID, data)
	} else {
		err = tx.Put(OperationsPartition, op.ID, data)
	}
	if err != nil {
		tx.Abort()
		q.logOpStoreFailure(op, err)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		q.logOpStoreFailure(op, err)
	}
}

func (q *Queue) deleteOp(ctx context.Context, id string) {
	tx, err := q.store.Begin(ctx, store.ModeReadWrite, OperationsPartition)
	if err != nil {
		q.logger.Warn("failed to remove operation record",
			logging.String(logging.FieldOperationID, id), logging.Error(err))
		return
	}
	if err := tx.Delete(OperationsPartition, id); err != nil {
		tx.Abort()
		q.logger.Warn("failed to remove operation record",
			logging.String(logging.FieldOperationID, id), logging.Error(err))
		return
	}
	if err := tx.Commit(ctx); err != nil {
		q.logger.Warn("failed to remove operation record",
			logging.String(logging.FieldOperationID, id), logging.Error(err))
	}
}

func (q *Queue) logOpStoreFailure(op *Operation, err error) {
	q.logger.Warn("operation metadata write failed; keeping in-memory state",
		logging.String(logging.FieldOperationID, op.ID),
		logging.String(logging.FieldOpType, op.Type),
		logging.String("store_error_kind", string(store.Classify(err))),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check store capacity and permissions"),
	)
}
