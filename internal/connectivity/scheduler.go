package connectivity

import (
	"context"
	"errors"
	"sync"

	"log/slog"

	"backhaul/internal/logging"
)

// Drainer is the queue surface the scheduler needs: a drain trigger and the
// active-operation count. Satisfied by *queue.Queue.
type Drainer interface {
	Drain(ctx context.Context)
	PendingCount() int
}

// Scheduler turns online transitions into queue drains. Offline transitions
// do nothing here: in-flight work is never aborted, and the queue's own
// online check stops future dispatch.
type Scheduler struct {
	source    Source
	queue     Drainer
	autoRetry bool
	logger    *slog.Logger

	mu          sync.Mutex
	running     bool
	unsubscribe func()
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewScheduler wires a connectivity source to a queue. With autoRetry
// disabled the scheduler observes transitions but never triggers a drain.
func NewScheduler(source Source, queue Drainer, autoRetry bool, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Scheduler{
		source:    source,
		queue:     queue,
		autoRetry: autoRetry,
		logger:    logging.NewComponentLogger(logger, "scheduler"),
	}
}

// Start subscribes to the source. A source that is already online is treated
// as a fresh transition so pending work left from a previous run drains
// without waiting for the level to flap.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.source == nil || s.queue == nil {
		return errors.New("scheduler requires a source and a queue")
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("scheduler already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.ctx = runCtx
	s.cancel = cancel
	s.running = true
	s.unsubscribe = s.source.Subscribe(s.onTransition)
	s.mu.Unlock()

	if s.source.Online() {
		s.onTransition(true)
	}
	return nil
}

// Stop detaches from the source and waits for any drain it started. Draining
// operations finish on their own; only the trigger goroutine is awaited.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	unsubscribe := s.unsubscribe
	cancel := s.cancel
	s.running = false
	s.unsubscribe = nil
	s.cancel = nil
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) onTransition(online bool) {
	if !online {
		s.logger.Debug("connectivity lost; dispatch suspended")
		return
	}
	if !s.autoRetry {
		s.logger.Debug("connectivity restored; auto retry disabled")
		return
	}

	pending := s.queue.PendingCount()
	if pending == 0 {
		return
	}

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	ctx := s.ctx
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Info("connectivity restored; draining queue",
		logging.Int("pending_operations", pending),
	)
	go func() {
		defer s.wg.Done()
		s.queue.Drain(ctx)
	}()
}
