// Package scheduler runs push followed by pull on a fixed interval until
// stopped. A failed tick is logged and the schedule keeps going.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/catchkeeper/internal/client/syncer"
	"github.com/dmitrijs2005/catchkeeper/internal/logging"
)

const DefaultInterval = 5 * time.Minute

// Runner is the part of the sync engine a tick drives.
type Runner interface {
	Push(ctx context.Context) (syncer.PushResult, error)
	Pull(ctx context.Context, limit int) (int, error)
}

type Scheduler struct {
	runner    Runner
	pullLimit int
	logger    logging.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	loopWG  sync.WaitGroup
	ticksWG sync.WaitGroup
}

// New builds a stopped scheduler. pullLimit <= 0 leaves the limit to the runner.
func New(runner Runner, pullLimit int, logger logging.Logger) *Scheduler {
	return &Scheduler{
		runner:    runner,
		pullLimit: pullLimit,
		logger:    logger.With("module", "scheduler"),
	}
}

// Start begins ticking every interval (DefaultInterval when <= 0). It does
// nothing if the scheduler is already running.
func (s *Scheduler) Start(interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	if interval <= 0 {
		interval = DefaultInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.loopWG.Add(1)
	go s.loop(ctx, interval)
	s.logger.Info(ctx, "background sync started", "interval", interval.String())
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration) {
	defer s.loopWG.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Ticks run detached so a slow remote cannot delay the next one;
			// overlapping pushes are turned away by the engine.
			s.ticksWG.Add(1)
			go func() {
				defer s.ticksWG.Done()
				s.Tick(ctx)
			}()
		}
	}
}

// Tick runs one push then one pull, logging failures.
func (s *Scheduler) Tick(ctx context.Context) {
	res, err := s.runner.Push(ctx)
	switch {
	case err != nil:
		s.logger.Warn(ctx, "scheduled push failed", "error", err)
	case res.Skipped:
		s.logger.Debug(ctx, "scheduled push skipped, another is running")
	}

	if ctx.Err() != nil {
		return
	}
	if _, err := s.runner.Pull(ctx, s.pullLimit); err != nil {
		s.logger.Warn(ctx, "scheduled pull failed", "error", err)
	}
}

// Stop cancels the schedule and waits for in-flight ticks. It is safe to
// call when not running.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}

	cancel()
	s.loopWG.Wait()
	s.ticksWG.Wait()
	s.logger.Info(context.Background(), "background sync stopped")
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}
