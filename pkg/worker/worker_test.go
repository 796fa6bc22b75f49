package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reachcrm/flowd/pkg/queue"
)

type countingAdvancer struct {
	mu       sync.Mutex
	advanced []string
	failFor  map[string]error
}

func (a *countingAdvancer) Advance(_ context.Context, executionID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.failFor[executionID]; err != nil {
		return err
	}

	a.advanced = append(a.advanced, executionID)

	return nil
}

func (a *countingAdvancer) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return len(a.advanced)
}

func TestWorker_ProcessesQueuedJobs(t *testing.T) {
	q := queue.NewMemoryQueue(16, nil)
	defer func() { _ = q.Close() }()

	advancer := &countingAdvancer{}
	w := New("worker-test", q, advancer, slog.Default(), WithConcurrency(3))

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})

	go func() {
		_ = w.Run(ctx)
		close(done)
	}()

	for _, id := range []string{"exec-1", "exec-2", "exec-3"} {
		require.NoError(t, q.Enqueue(ctx, id, queue.Options{}))
	}

	require.Eventually(t, func() bool {
		return advancer.count() == 3
	}, 5*time.Second, 10*time.Millisecond)

	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

func TestWorker_FailedJobFollowsQueueRetryPolicy(t *testing.T) {
	var events []queue.Event

	var mu sync.Mutex

	q := queue.NewMemoryQueue(16, func(e queue.Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	})
	defer func() { _ = q.Close() }()

	advancer := &countingAdvancer{failFor: map[string]error{"exec-bad": errors.New("step failed")}}
	w := New("worker-test", q, advancer, slog.Default(), WithConcurrency(1))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = w.Run(ctx) }()

	require.NoError(t, q.Enqueue(ctx, "exec-bad", queue.Options{
		Attempts:    2,
		BackoffBase: time.Millisecond,
	}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		for _, e := range events {
			if e.Type == queue.EventFailed && !e.WillTry {
				return true
			}
		}

		return false
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, 0, advancer.count())
}
