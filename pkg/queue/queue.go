// Package queue provides the job queue contract the engine schedules
// continuations on, with Redis-backed and in-memory implementations.
//
// Jobs carry only the execution id; all mutable run state lives in the
// persisted execution. Delivery is at-least-once: a handler crash or a missed
// acknowledgment redelivers the job, and retry policy (bounded attempts with
// exponential backoff) belongs to the queue, not to the code enqueueing.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Job is one unit of work: advance the given execution by one step.
type Job struct {
	ID          string        `json:"id"`
	ExecutionID string        `json:"execution_id"`
	Attempt     int           `json:"attempt"`
	MaxAttempts int           `json:"max_attempts"`
	BackoffBase time.Duration `json:"backoff_base"`
	EnqueuedAt  time.Time     `json:"enqueued_at"`
}

// Options control delivery of an enqueued job.
type Options struct {
	Delay       time.Duration
	Attempts    int           // max delivery attempts, default 3
	BackoffBase time.Duration // base for exponential backoff, default 1s
}

const (
	DefaultAttempts    = 3
	DefaultBackoffBase = time.Second
)

// Handler processes one delivered job. Returning an error triggers the
// queue's retry policy.
type Handler func(ctx context.Context, job Job) error

// EventType classifies delivery events the surrounding system logs.
type EventType string

const (
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
	EventStalled   EventType = "stalled"
)

// Event reports the outcome of one delivery attempt.
type Event struct {
	Type    EventType
	Job     Job
	Err     error
	WillTry bool // true when the job will be retried
}

// EventFunc receives delivery events. May be nil.
type EventFunc func(Event)

type Queue interface {
	// Enqueue schedules a job, optionally after a delay.
	Enqueue(ctx context.Context, executionID string, opts Options) error

	// Consume delivers jobs to the handler until the context is cancelled.
	Consume(ctx context.Context, handler Handler) error

	Close() error
}

// NewJob builds a job with delivery policy resolved from the options.
func NewJob(executionID string, opts Options) Job {
	attempts := opts.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}

	backoff := opts.BackoffBase
	if backoff <= 0 {
		backoff = DefaultBackoffBase
	}

	return Job{
		ID:          fmt.Sprintf("job-%s", uuid.New().String()[:8]),
		ExecutionID: executionID,
		Attempt:     1,
		MaxAttempts: attempts,
		BackoffBase: backoff,
		EnqueuedAt:  time.Now().UTC(),
	}
}

// RetryDelay returns the exponential backoff before the next attempt of a
// failed job: base * 2^(attempt-1).
func (j Job) RetryDelay() time.Duration {
	delay := j.BackoffBase
	for i := 1; i < j.Attempt; i++ {
		delay *= 2
	}

	return delay
}

// Exhausted reports whether the job has used up its delivery attempts.
func (j Job) Exhausted() bool {
	return j.Attempt >= j.MaxAttempts
}
