package capture

import (
	"context"
	"sync"
	"time"

	logx "lockwatch/pkg/logx"
)

// Scheduler requests one snapshot capture per interval while started.
//
// Contract:
//   - Start and Stop are idempotent and safe to call concurrently; if a Stop
//     overlaps a Start, the scheduler ends in the stopped state.
//   - The first tick fires after one full interval, not immediately.
//   - No tick fires after Stop() returns.
//   - A tick only requests a capture; it never waits for the capture or any
//     downstream delivery before the next tick.
type Scheduler struct {
	run func(ctx context.Context)
	log logx.Logger

	mu       sync.Mutex
	stopCh   chan struct{}
	done     chan struct{}
	stopping bool
	interval time.Duration
}

func NewScheduler(run func(ctx context.Context), log logx.Logger) *Scheduler {
	return &Scheduler{run: run, log: log}
}

// Running reports whether the cadence is currently active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopCh != nil
}

func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// A racing Stop() wins: don't start while one is in progress.
	if s.stopping || s.stopCh != nil {
		return
	}
	stopCh := make(chan struct{})
	done := make(chan struct{})
	s.stopCh = stopCh
	s.done = done
	s.interval = interval

	go s.loop(ctx, interval, stopCh, done)
	s.log.Info("capture cadence started", logx.Duration("interval", interval))
}

// Stop cancels the cadence. When it returns, no further tick will fire.
// An in-flight capture request is not aborted.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	stopCh := s.stopCh
	done := s.done
	if stopCh == nil {
		s.mu.Unlock()
		return
	}
	s.stopCh = nil
	s.done = nil
	s.stopping = true
	s.mu.Unlock()

	close(stopCh)
	<-done

	s.mu.Lock()
	s.stopping = false
	s.mu.Unlock()
	s.log.Info("capture cadence stopped")
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		// Fast-exit check so a closed stopCh wins over a due tick.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			s.run(ctx)
		}
	}
}
