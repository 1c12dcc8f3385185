package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"backhaul/internal/logging"
)

// Drain processes the queue sequentially until it is empty, connectivity is
// lost, or the context is canceled. Only one drain loop runs at a time: a
// call while a drain is already running does not start a second loop, it
// waits until the running pass finishes so every returned Drain reflects a
// completed pass. Exactly one operation is in flight at any time, and a
// retryable failure suspends the whole loop for the computed backoff delay
// before dispatch continues.
func (q *Queue) Drain(ctx context.Context) {
	q.mu.Lock()
	if q.draining {
		done := q.drainDone
		q.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	q.draining = true
	q.drainDone = make(chan struct{})
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.draining = false
		close(q.drainDone)
		q.mu.Unlock()
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		if !q.isOnline() {
			q.logger.Debug("drain paused: connectivity lost")
			return
		}

		op, gen := q.takeHead(ctx)
		if op == nil {
			return
		}

		opCtx := logging.WithOperation(ctx, op.ID, op.Type)
		opLogger := logging.WithContext(opCtx, q.logger)
		opLogger.Info("dispatching operation",
			logging.Int(logging.FieldAttempt, op.Attempts),
			logging.Int("max_attempts", op.MaxAttempts),
			logging.String(logging.FieldEventType, "dispatch_start"),
		)

		err := q.dispatch(opCtx, op)
		if err == nil {
			q.complete(opCtx, op, gen, opLogger)
			continue
		}
		if ctx.Err() != nil {
			// Shutdown mid-handler: leave the operation pending for the next run.
			q.requeue(opCtx, op, gen)
			return
		}

		if op.Attempts >= op.MaxAttempts {
			q.fail(opCtx, op, gen, err, opLogger)
			continue
		}

		delay := backoffDelay(op.Attempts, q.settings)
		q.requeue(opCtx, op, gen)
		opLogger.Warn("operation failed; retry scheduled",
			logging.Int(logging.FieldAttempt, op.Attempts),
			logging.Duration("backoff", delay),
			logging.Error(err),
			logging.String(logging.FieldEventType, "dispatch_retry"),
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

// takeHead pops the highest-priority pending operation into IN_PROGRESS and
// persists the transition. The returned generation ties the dispatch to the
// queue state it was taken from; a Clear underneath the handler invalidates it.
func (q *Queue) takeHead(ctx context.Context) (*Operation, uint64) {
	q.mu.Lock()
	var op *Operation
	for _, candidate := range q.active {
		if candidate.Status == StatusPending {
			op = candidate
			break
		}
	}
	if op == nil {
		q.mu.Unlock()
		return nil, 0
	}
	now := time.Now().UTC()
	op.Status = StatusInProgress
	op.Attempts++
	op.LastAttempt = &now
	gen := q.clearGen
	q.persistBestEffort(ctx, op)
	q.mu.Unlock()

	q.notify()
	return op, gen
}

// dispatch resolves and invokes the handler for one operation. Handler panics
// and missing registrations are converted into failed attempts; nothing
// escapes the dispatch boundary.
func (q *Queue) dispatch(ctx context.Context, op *Operation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	handler, ok := q.registry.Resolve(op.Type)
	if !ok {
		return fmt.Errorf("no handler registered for type %q", op.Type)
	}
	return handler(ctx, op.Payload)
}

func (q *Queue) complete(ctx context.Context, op *Operation, gen uint64, opLogger *slog.Logger) {
	q.mu.Lock()
	if gen != q.clearGen {
		q.mu.Unlock()
		opLogger.Debug("queue cleared mid-dispatch; result discarded")
		return
	}
	op.Status = StatusCompleted
	q.removeActiveLocked(op.ID)
	q.deleteOp(ctx, op.ID)
	q.mu.Unlock()

	opLogger.Info("operation completed",
		logging.Int(logging.FieldAttempt, op.Attempts),
		logging.String(logging.FieldEventType, "dispatch_complete"),
	)
	q.notify()
}

func (q *Queue) fail(ctx context.Context, op *Operation, gen uint64, cause error, opLogger *slog.Logger) {
	q.mu.Lock()
	if gen != q.clearGen {
		q.mu.Unlock()
		opLogger.Debug("queue cleared mid-dispatch; failure discarded")
		return
	}
	op.SetFailed(cause.Error())
	q.removeActiveLocked(op.ID)
	q.failed = append(q.failed, op)
	q.persistBestEffort(ctx, op)
	q.mu.Unlock()

	opLogger.Error("operation exhausted retries",
		logging.Int(logging.FieldAttempt, op.Attempts),
		logging.Error(cause),
		logging.String(logging.FieldEventType, "dispatch_failed"),
		logging.String(logging.FieldErrorHint, "inspect the payload and retry via queue retry"),
	)
	q.notify()
}

// requeue returns a failed-but-retryable operation to pending, placed behind
// its priority peers so equal-priority work is not starved by a failing item.
func (q *Queue) requeue(ctx context.Context, op *Operation, gen uint64) {
	q.mu.Lock()
	if gen != q.clearGen {
		q.mu.Unlock()
		return
	}
	op.Status = StatusPending
	op.seq = q.nextSeq()
	q.sortActiveLocked()
	q.persistBestEffort(ctx, op)
	q.mu.Unlock()

	q.notify()
}

func (q *Queue) removeActiveLocked(id string) {
	for i, op := range q.active {
		if op.ID == id {
			q.active = append(q.active[:i], q.active[i+1:]...)
			return
		}
	}
}
