package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reachcrm/flowd/pkg/queue"
)

type captureQueue struct {
	executionIDs []string
	options      []queue.Options
	err          error
}

func (q *captureQueue) Enqueue(_ context.Context, executionID string, opts queue.Options) error {
	if q.err != nil {
		return q.err
	}

	q.executionIDs = append(q.executionIDs, executionID)
	q.options = append(q.options, opts)

	return nil
}

func (q *captureQueue) Consume(_ context.Context, _ queue.Handler) error { return nil }
func (q *captureQueue) Close() error                                     { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestScheduler_Schedule(t *testing.T) {
	q := &captureQueue{}
	s := NewScheduler(q, testLogger())

	require.NoError(t, s.Schedule(context.Background(), "exec-1", 0))
	require.NoError(t, s.Schedule(context.Background(), "exec-2", 2*time.Minute))

	require.Len(t, q.executionIDs, 2)
	assert.Equal(t, "exec-1", q.executionIDs[0])
	assert.Equal(t, time.Duration(0), q.options[0].Delay)
	assert.Equal(t, 2*time.Minute, q.options[1].Delay)
	assert.Equal(t, queue.DefaultAttempts, q.options[0].Attempts)
	assert.Equal(t, queue.DefaultBackoffBase, q.options[0].BackoffBase)
}

func TestScheduler_WithRetryPolicy(t *testing.T) {
	q := &captureQueue{}
	s := NewScheduler(q, testLogger(), WithRetryPolicy(5, 250*time.Millisecond))

	require.NoError(t, s.Schedule(context.Background(), "exec-1", 0))

	assert.Equal(t, 5, q.options[0].Attempts)
	assert.Equal(t, 250*time.Millisecond, q.options[0].BackoffBase)
}

func TestScheduler_PropagatesEnqueueError(t *testing.T) {
	q := &captureQueue{err: errors.New("redis down")}
	s := NewScheduler(q, testLogger())

	err := s.Schedule(context.Background(), "exec-1", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exec-1")
}
