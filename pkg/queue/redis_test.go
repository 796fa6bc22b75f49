package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) record(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) byType(eventType EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []Event

	for _, event := range r.events {
		if event.Type == eventType {
			matched = append(matched, event)
		}
	}

	return matched
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestRedisQueue(t *testing.T, events EventFunc) (*RedisQueue, *miniredis.Miniredis) {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})

	return NewRedisQueue(client, "test", testLogger(), events), server
}

// consumeUntil runs Consume in the background until the condition holds or
// the deadline passes.
func consumeUntil(t *testing.T, q Queue, handler Handler, condition func() bool) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})

	go func() {
		defer close(done)

		_ = q.Consume(ctx, handler)
	}()

	deadline := time.After(5 * time.Second)

	for !condition() {
		select {
		case <-deadline:
			t.Fatal("condition not reached before deadline")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	<-done
}

func TestRedisQueue_DeliversJob(t *testing.T) {
	recorder := &eventRecorder{}
	q, _ := newTestRedisQueue(t, recorder.record)

	require.NoError(t, q.Enqueue(context.Background(), "exec-1", Options{}))

	var (
		mu      sync.Mutex
		handled []Job
	)

	consumeUntil(t, q, func(_ context.Context, job Job) error {
		mu.Lock()
		defer mu.Unlock()
		handled = append(handled, job)

		return nil
	}, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(handled) == 1
	})

	assert.Equal(t, "exec-1", handled[0].ExecutionID)
	assert.Equal(t, 1, handled[0].Attempt)
	assert.Len(t, recorder.byType(EventCompleted), 1)
}

func TestRedisQueue_DelayedJobIsPromoted(t *testing.T) {
	q, server := newTestRedisQueue(t, nil)

	start := time.Now()
	require.NoError(t, q.Enqueue(context.Background(), "exec-1", Options{Delay: 300 * time.Millisecond}))

	// The job sits on the delayed set, not the ready list.
	members, err := server.ZMembers("flowd:queue:test:delayed")
	require.NoError(t, err)
	assert.Len(t, members, 1)

	var deliveredAt time.Time

	var mu sync.Mutex

	consumeUntil(t, q, func(_ context.Context, _ Job) error {
		mu.Lock()
		defer mu.Unlock()
		deliveredAt = time.Now()

		return nil
	}, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return !deliveredAt.IsZero()
	})

	assert.GreaterOrEqual(t, deliveredAt.Sub(start), 300*time.Millisecond)
}

func TestRedisQueue_RetriesWithBackoff(t *testing.T) {
	recorder := &eventRecorder{}
	q, _ := newTestRedisQueue(t, recorder.record)

	require.NoError(t, q.Enqueue(context.Background(), "exec-1", Options{
		Attempts:    3,
		BackoffBase: time.Millisecond,
	}))

	var (
		mu       sync.Mutex
		attempts []int
	)

	consumeUntil(t, q, func(_ context.Context, job Job) error {
		mu.Lock()
		defer mu.Unlock()
		attempts = append(attempts, job.Attempt)

		if len(attempts) < 3 {
			return errors.New("transient failure")
		}

		return nil
	}, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(attempts) == 3
	})

	assert.Equal(t, []int{1, 2, 3}, attempts)
	assert.Len(t, recorder.byType(EventCompleted), 1)

	failed := recorder.byType(EventFailed)
	require.Len(t, failed, 2)
	assert.True(t, failed[0].WillTry)
}

func TestRedisQueue_ExhaustedJobGoesToDeadList(t *testing.T) {
	recorder := &eventRecorder{}
	q, server := newTestRedisQueue(t, recorder.record)

	require.NoError(t, q.Enqueue(context.Background(), "exec-1", Options{
		Attempts:    2,
		BackoffBase: time.Millisecond,
	}))

	var (
		mu       sync.Mutex
		failures int
	)

	consumeUntil(t, q, func(_ context.Context, _ Job) error {
		mu.Lock()
		defer mu.Unlock()
		failures++

		return errors.New("permanent failure")
	}, func() bool {
		return len(recorder.byType(EventFailed)) == 2
	})

	mu.Lock()
	assert.Equal(t, 2, failures)
	mu.Unlock()

	dead, err := server.List("flowd:queue:test:dead")
	require.NoError(t, err)
	require.Len(t, dead, 1)

	var job Job
	require.NoError(t, json.Unmarshal([]byte(dead[0]), &job))
	assert.Equal(t, "exec-1", job.ExecutionID)

	final := recorder.byType(EventFailed)[1]
	assert.False(t, final.WillTry)
}

func TestRedisQueue_RecoversStalledJobs(t *testing.T) {
	recorder := &eventRecorder{}
	q, server := newTestRedisQueue(t, recorder.record)

	// Simulate a consumer that crashed mid-delivery.
	job := NewJob("exec-stalled", Options{})
	payload, err := json.Marshal(job)
	require.NoError(t, err)
	server.Lpush("flowd:queue:test:processing", string(payload))

	var (
		mu      sync.Mutex
		handled int
	)

	consumeUntil(t, q, func(_ context.Context, delivered Job) error {
		mu.Lock()
		defer mu.Unlock()
		handled++

		assert.Equal(t, "exec-stalled", delivered.ExecutionID)

		return nil
	}, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return handled == 1
	})

	assert.Len(t, recorder.byType(EventStalled), 1)
}

func TestJob_RetryDelay(t *testing.T) {
	job := NewJob("exec-1", Options{BackoffBase: time.Second})

	assert.Equal(t, time.Second, job.RetryDelay())

	job.Attempt = 2
	assert.Equal(t, 2*time.Second, job.RetryDelay())

	job.Attempt = 3
	assert.Equal(t, 4*time.Second, job.RetryDelay())
}
