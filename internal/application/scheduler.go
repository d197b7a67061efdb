package application

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ericfisherdev/lmsnotify/internal/domain/model"
)

// CycleRunner runs one check cycle for one user.
type CycleRunner interface {
	RunCycle(ctx context.Context, userID string) (model.CheckResult, error)
}

// UserLister enumerates the users a sweep covers.
type UserLister interface {
	ListUserIDs(ctx context.Context) ([]string, error)
}

// SweepSummary reports the outcome of one sweep over all users.
type SweepSummary struct {
	Users     int
	NewEvents int
	Failures  map[model.ErrorKind]int
	Duration  time.Duration
}

// Scheduler periodically sweeps every registered user through a CycleRunner.
// Cycles for different users run concurrently up to a limit; a failure for
// one user never stops the sweep for the others.
type Scheduler struct {
	runner       CycleRunner
	users        UserLister
	interval     time.Duration
	initialDelay time.Duration
	concurrency  int
	sweepCh      chan sweepRequest
}

// sweepRequest represents a manual sweep trigger.
type sweepRequest struct {
	done chan SweepSummary
}

// NewScheduler creates a Scheduler. concurrency below 1 is treated as 1.
func NewScheduler(runner CycleRunner, users UserLister, interval, initialDelay time.Duration, concurrency int) *Scheduler {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Scheduler{
		runner:       runner,
		users:        users,
		interval:     interval,
		initialDelay: initialDelay,
		concurrency:  concurrency,
		sweepCh:      make(chan sweepRequest),
	}
}

// Start waits for the initial delay, sweeps, then sweeps on the configured
// interval. Manual sweep requests are served throughout, including during
// the initial delay. Start blocks until the context is canceled.
func (s *Scheduler) Start(ctx context.Context) {
	if !s.awaitInitialDelay(ctx) {
		slog.Info("scheduler stopped")
		return
	}

	s.RunAll(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.RunAll(ctx)
		case req := <-s.sweepCh:
			req.done <- s.RunAll(ctx)
		}
	}
}

// awaitInitialDelay blocks until the initial delay elapses, answering manual
// sweeps meanwhile. It reports false if ctx was canceled first.
func (s *Scheduler) awaitInitialDelay(ctx context.Context) bool {
	if s.initialDelay <= 0 {
		return true
	}
	timer := time.NewTimer(s.initialDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return true
		case req := <-s.sweepCh:
			req.done <- s.RunAll(ctx)
		}
	}
}

// TriggerSweep asks a running scheduler for an immediate sweep and waits for
// its summary. It blocks until the sweep completes or ctx is canceled.
func (s *Scheduler) TriggerSweep(ctx context.Context) (SweepSummary, error) {
	req := sweepRequest{done: make(chan SweepSummary, 1)}

	select {
	case s.sweepCh <- req:
	case <-ctx.Done():
		return SweepSummary{}, ctx.Err()
	}

	select {
	case summary := <-req.done:
		return summary, nil
	case <-ctx.Done():
		return SweepSummary{}, ctx.Err()
	}
}

// RunAll runs one cycle for every registered user and waits for all of them.
func (s *Scheduler) RunAll(ctx context.Context) SweepSummary {
	start := time.Now()
	summary := SweepSummary{Failures: make(map[model.ErrorKind]int)}

	userIDs, err := s.users.ListUserIDs(ctx)
	if err != nil {
		slog.Error("list users failed", "error", err)
		summary.Failures[model.KindOf(err)]++
		return summary
	}
	summary.Users = len(userIDs)

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.concurrency)

	for _, userID := range userIDs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			result, err := s.runner.RunCycle(ctx, userID)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Failures[model.KindOf(err)]++
				return nil
			}
			summary.NewEvents += len(result.NewEvents)
			return nil
		})
	}
	_ = g.Wait()

	summary.Duration = time.Since(start)

	failures := 0
	for _, n := range summary.Failures {
		failures += n
	}
	slog.Info("sweep complete",
		"users", summary.Users,
		"new_events", summary.NewEvents,
		"failures", failures,
		"duration", summary.Duration.Round(time.Millisecond),
	)

	return summary
}
