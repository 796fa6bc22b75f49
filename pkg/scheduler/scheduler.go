// Package scheduler bridges the engine to the job queue: it re-enqueues an
// execution for its next step, optionally after a delay.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/reachcrm/flowd/pkg/queue"
)

// Scheduler enqueues continuation jobs. Retry policy lives in the queue; the
// scheduler only supplies the bounds.
type Scheduler struct {
	queue       queue.Queue
	logger      *slog.Logger
	attempts    int
	backoffBase time.Duration
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithRetryPolicy overrides the queue delivery bounds for scheduled steps.
func WithRetryPolicy(attempts int, backoffBase time.Duration) Option {
	return func(s *Scheduler) {
		s.attempts = attempts
		s.backoffBase = backoffBase
	}
}

// NewScheduler creates a continuation scheduler over the given queue.
func NewScheduler(q queue.Queue, logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		queue:       q,
		logger:      logger.With("module", "scheduler"),
		attempts:    queue.DefaultAttempts,
		backoffBase: queue.DefaultBackoffBase,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Schedule enqueues the next advance of the execution after the given delay.
// A zero delay means the next step runs as soon as a worker is free.
func (s *Scheduler) Schedule(ctx context.Context, executionID string, delay time.Duration) error {
	err := s.queue.Enqueue(ctx, executionID, queue.Options{
		Delay:       delay,
		Attempts:    s.attempts,
		BackoffBase: s.backoffBase,
	})
	if err != nil {
		return fmt.Errorf("failed to schedule execution %s: %w", executionID, err)
	}

	s.logger.Debug("Scheduled execution step", "execution_id", executionID, "delay", delay)

	return nil
}
