package aggregator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/storm-risk-service/internal/observability"
	"github.com/jonboulle/clockwork"
)

// Task is a repeating unit of work.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context)
}

// Scheduler runs each task once at start and then every Interval until
// stopped. Every task has its own goroutine, so a slow run delays only the
// next run of the same task.
type Scheduler struct {
	clock   clockwork.Clock
	metrics *observability.Metrics
	logger  *slog.Logger
	tasks   []Task

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a Scheduler for tasks. Nothing runs until Start.
func NewScheduler(clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger, tasks ...Task) *Scheduler {
	return &Scheduler{
		clock:   clock,
		metrics: metrics,
		logger:  logger,
		tasks:   tasks,
	}
}

// Start launches the tasks. Calling Start on a running scheduler does nothing.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.metrics.SchedulerRunning.Set(1)
	for _, t := range s.tasks {
		s.wg.Add(1)
		go s.loop(ctx, t)
	}
	s.logger.Info("scheduler started", "tasks", len(s.tasks))
}

// Stop cancels the tasks and waits for running ones to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}

	cancel()
	s.wg.Wait()
	s.metrics.SchedulerRunning.Set(0)
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, t Task) {
	defer s.wg.Done()

	ticker := s.clock.NewTicker(t.Interval)
	defer ticker.Stop()

	for {
		s.logger.Debug("task run", "task", t.Name)
		t.Run(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		}
	}
}
