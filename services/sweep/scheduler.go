package sweep

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweeper is one periodic reconciliation pass over persisted deadlines.
// Implementations must be safe to run repeatedly; a pass that finds
// nothing to do is the steady state.
type Sweeper interface {
	// Name identifies the sweeper in logs
	Name() string

	// Sweep applies every due transition once and returns how many it
	// applied. Errors abort the pass; the next tick retries.
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// Func adapts a plain sweep function into a named Sweeper.
type Func struct {
	name string
	fn   func(ctx context.Context, now time.Time) (int, error)
}

// NewFunc wraps fn as a Sweeper
func NewFunc(name string, fn func(ctx context.Context, now time.Time) (int, error)) Func {
	return Func{name: name, fn: fn}
}

// Name implements Sweeper
func (f Func) Name() string { return f.name }

// Sweep implements Sweeper
func (f Func) Sweep(ctx context.Context, now time.Time) (int, error) {
	return f.fn(ctx, now)
}

// Scheduler runs the registered sweepers on a cron schedule. Deadlines
// live in the database, so the schedule only bounds how stale a due
// transition can get; a restart never loses one.
type Scheduler struct {
	sweepers []Sweeper
	schedule string
	cron     *cron.Cron
	logger   *zap.Logger
	mu       sync.Mutex
	running  bool
}

// NewScheduler creates a scheduler for the given cron schedule
func NewScheduler(schedule string, logger *zap.Logger, sweepers ...Sweeper) *Scheduler {
	return &Scheduler{
		sweepers: sweepers,
		schedule: schedule,
		cron:     cron.New(),
		logger:   logger,
	}
}

// Start begins scheduled sweeping. An empty schedule disables the
// scheduler; sweeps can still be invoked directly.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" {
		s.logger.Info("sweep schedule not configured, skipping scheduler")
		return nil
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.schedule, err)
	}

	_, err := s.cron.AddFunc(s.schedule, func() {
		s.runPass(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("sweep scheduler started",
		zap.String("schedule", s.schedule),
		zap.Int("sweepers", len(s.sweepers)))

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// runPass executes one pass of every registered sweeper.
func (s *Scheduler) runPass(ctx context.Context) {
	now := time.Now()
	for _, sweeper := range s.sweepers {
		applied, err := sweeper.Sweep(ctx, now)
		if err != nil {
			s.logger.Error("sweep pass failed",
				zap.String("sweeper", sweeper.Name()),
				zap.Error(err))
			continue
		}
		if applied > 0 {
			s.logger.Info("sweep pass applied transitions",
				zap.String("sweeper", sweeper.Name()),
				zap.Int("applied", applied))
		}
	}
}

// Stop stops the scheduler and waits for a running pass to complete.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil && s.running {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.running = false
		s.logger.Info("sweep scheduler stopped")
	}
}

// IsRunning reports whether the scheduler is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
