package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueue_DeliversJob(t *testing.T) {
	q := NewMemoryQueue(8, nil)
	defer func() { _ = q.Close() }()

	require.NoError(t, q.Enqueue(context.Background(), "exec-1", Options{}))

	var (
		mu      sync.Mutex
		handled []string
	)

	consumeUntil(t, q, func(_ context.Context, job Job) error {
		mu.Lock()
		defer mu.Unlock()
		handled = append(handled, job.ExecutionID)

		return nil
	}, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(handled) == 1
	})

	assert.Equal(t, []string{"exec-1"}, handled)
}

func TestMemoryQueue_DelayedDelivery(t *testing.T) {
	q := NewMemoryQueue(8, nil)
	defer func() { _ = q.Close() }()

	start := time.Now()
	require.NoError(t, q.Enqueue(context.Background(), "exec-1", Options{Delay: 200 * time.Millisecond}))

	var (
		mu          sync.Mutex
		deliveredAt time.Time
	)

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

	assert.GreaterOrEqual(t, deliveredAt.Sub(start), 200*time.Millisecond)
}

func TestMemoryQueue_RetryPolicy(t *testing.T) {
	recorder := &eventRecorder{}
	q := NewMemoryQueue(8, recorder.record)

	defer func() { _ = q.Close() }()

	require.NoError(t, q.Enqueue(context.Background(), "exec-1", Options{
		Attempts:    2,
		BackoffBase: time.Millisecond,
	}))

	consumeUntil(t, q, func(_ context.Context, _ Job) error {
		return errors.New("always failing")
	}, func() bool {
		failed := recorder.byType(EventFailed)

		return len(failed) == 2 && !failed[len(failed)-1].WillTry
	})
}

func TestMemoryQueue_CloseUnblocksFullBuffer(t *testing.T) {
	q := NewMemoryQueue(1, nil)

	require.NoError(t, q.Enqueue(context.Background(), "exec-1", Options{}))

	blocked := make(chan struct{})

	go func() {
		// The buffer is full and nobody is consuming, so this enqueue
		// blocks until Close.
		_ = q.Enqueue(context.Background(), "exec-2", Options{})
		close(blocked)
	}()

	select {
	case <-blocked:
		t.Fatal("enqueue should block on a full buffer")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, q.Close())

	select {
	case <-blocked:
	case <-time.After(time.Second):
		t.Fatal("close did not unblock the pending enqueue")
	}
}

func TestMemoryQueue_CloseStopsPendingTimers(t *testing.T) {
	q := NewMemoryQueue(8, nil)

	require.NoError(t, q.Enqueue(context.Background(), "exec-1", Options{Delay: time.Hour}))
	require.NoError(t, q.Close())

	// Closing twice is fine.
	require.NoError(t, q.Close())
}
