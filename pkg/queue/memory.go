package queue

import (
	"context"
	"sync"
	"time"
)

// MemoryQueue is an in-process queue for development and tests. It applies
// the same retry policy as the Redis queue but keeps everything in channels
// and timers.
type MemoryQueue struct {
	ready  chan Job
	done   chan struct{}
	events EventFunc

	mu     sync.Mutex
	timers []*time.Timer
	closed bool
}

// NewMemoryQueue creates an in-memory queue with the given buffer size.
func NewMemoryQueue(buffer int, events EventFunc) *MemoryQueue {
	if buffer <= 0 {
		buffer = 128
	}

	return &MemoryQueue{
		ready:  make(chan Job, buffer),
		done:   make(chan struct{}),
		events: events,
	}
}

func (q *MemoryQueue) Enqueue(_ context.Context, executionID string, opts Options) error {
	q.push(NewJob(executionID, opts), opts.Delay)

	return nil
}

func (q *MemoryQueue) push(job Job, delay time.Duration) {
	if delay <= 0 {
		q.send(job)

		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	timer := time.AfterFunc(delay, func() { q.send(job) })
	q.timers = append(q.timers, timer)
}

// send pushes onto the ready channel without holding the mutex, so a full
// buffer blocks only the caller and Close can still unblock it.
func (q *MemoryQueue) send(job Job) {
	select {
	case q.ready <- job:
	case <-q.done:
	}
}

func (q *MemoryQueue) Consume(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-q.done:
			return nil
		case job := <-q.ready:
			q.deliver(ctx, handler, job)
		}
	}
}

func (q *MemoryQueue) deliver(ctx context.Context, handler Handler, job Job) {
	err := handler(ctx, job)
	if err == nil {
		q.emit(Event{Type: EventCompleted, Job: job})

		return
	}

	if job.Exhausted() {
		q.emit(Event{Type: EventFailed, Job: job, Err: err})

		return
	}

	retry := job
	retry.Attempt++
	q.push(retry, job.RetryDelay())

	q.emit(Event{Type: EventFailed, Job: job, Err: err, WillTry: true})
}

func (q *MemoryQueue) emit(event Event) {
	if q.events != nil {
		q.events(event)
	}
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	q.closed = true

	for _, timer := range q.timers {
		timer.Stop()
	}

	close(q.done)

	return nil
}
