package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	promoteInterval = 250 * time.Millisecond
	popTimeout      = time.Second
)

// RedisQueue is a Redis-backed job queue. Due jobs sit on a ready list;
// delayed jobs sit on a sorted set scored by their ready time and are
// promoted onto the list by the consumer loop. In-flight jobs are parked on a
// processing list so a crashed consumer leaves evidence: leftovers found at
// startup are requeued and reported stalled.
type RedisQueue struct {
	client redis.UniversalClient
	name   string
	logger *slog.Logger
	events EventFunc
}

// NewRedisQueue creates a queue on the given Redis client. The name
// namespaces all keys, so independent queues can share one Redis.
func NewRedisQueue(client redis.UniversalClient, name string, logger *slog.Logger, events EventFunc) *RedisQueue {
	return &RedisQueue{
		client: client,
		name:   name,
		logger: logger.With("module", "redis_queue", "queue", name),
		events: events,
	}
}

func (q *RedisQueue) readyKey() string      { return "flowd:queue:" + q.name + ":ready" }
func (q *RedisQueue) delayedKey() string    { return "flowd:queue:" + q.name + ":delayed" }
func (q *RedisQueue) processingKey() string { return "flowd:queue:" + q.name + ":processing" }
func (q *RedisQueue) deadKey() string       { return "flowd:queue:" + q.name + ":dead" }

func (q *RedisQueue) Enqueue(ctx context.Context, executionID string, opts Options) error {
	return q.push(ctx, NewJob(executionID, opts), opts.Delay)
}

func (q *RedisQueue) push(ctx context.Context, job Job, delay time.Duration) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	if delay > 0 {
		readyAt := float64(time.Now().Add(delay).UnixMilli())

		err = q.client.ZAdd(ctx, q.delayedKey(), redis.Z{Score: readyAt, Member: payload}).Err()
		if err != nil {
			return fmt.Errorf("failed to enqueue delayed job: %w", err)
		}

		return nil
	}

	err = q.client.LPush(ctx, q.readyKey(), payload).Err()
	if err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	return nil
}

// Consume delivers jobs until the context is cancelled. It first requeues any
// jobs a previous consumer left in flight.
func (q *RedisQueue) Consume(ctx context.Context, handler Handler) error {
	err := q.recoverStalled(ctx)
	if err != nil {
		return err
	}

	var lastPromote time.Time

	for {
		if ctx.Err() != nil {
			return nil
		}

		// Promotion is throttled so a hot ready list does not turn every
		// pop into a ZSET scan.
		if time.Since(lastPromote) >= promoteInterval {
			err := q.promoteDue(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				q.logger.Error("Failed to promote delayed jobs", "error", err)
			}

			lastPromote = time.Now()
		}

		payload, err := q.client.BRPopLPush(ctx, q.readyKey(), q.processingKey(), popTimeout).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
				continue
			}

			return fmt.Errorf("failed to pop job: %w", err)
		}

		q.deliver(ctx, handler, payload)
	}
}

func (q *RedisQueue) deliver(ctx context.Context, handler Handler, payload string) {
	defer q.ack(ctx, payload)

	var job Job

	err := json.Unmarshal([]byte(payload), &job)
	if err != nil {
		q.logger.Error("Dropping undecodable job payload", "error", err)

		return
	}

	err = handler(ctx, job)
	if err == nil {
		q.emit(Event{Type: EventCompleted, Job: job})

		return
	}

	if job.Exhausted() {
		q.bury(ctx, job)
		q.emit(Event{Type: EventFailed, Job: job, Err: err})

		return
	}

	retry := job
	retry.Attempt++

	pushErr := q.push(ctx, retry, job.RetryDelay())
	if pushErr != nil {
		q.logger.Error("Failed to requeue job for retry", "job_id", job.ID, "error", pushErr)
	}

	q.emit(Event{Type: EventFailed, Job: job, Err: err, WillTry: pushErr == nil})
}

func (q *RedisQueue) ack(ctx context.Context, payload string) {
	err := q.client.LRem(ctx, q.processingKey(), 1, payload).Err()
	if err != nil {
		q.logger.Error("Failed to acknowledge job", "error", err)
	}
}

func (q *RedisQueue) bury(ctx context.Context, job Job) {
	payload, err := json.Marshal(job)
	if err != nil {
		return
	}

	err = q.client.LPush(ctx, q.deadKey(), payload).Err()
	if err != nil {
		q.logger.Error("Failed to move job to dead list", "job_id", job.ID, "error", err)
	}
}

// promoteDue moves delayed jobs whose ready time has passed onto the ready
// list.
func (q *RedisQueue) promoteDue(ctx context.Context) error {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)

	due, err := q.client.ZRangeByScore(ctx, q.delayedKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to read delayed jobs: %w", err)
	}

	for _, payload := range due {
		removed, err := q.client.ZRem(ctx, q.delayedKey(), payload).Result()
		if err != nil {
			return fmt.Errorf("failed to remove promoted job: %w", err)
		}

		// Another consumer already promoted it.
		if removed == 0 {
			continue
		}

		err = q.client.LPush(ctx, q.readyKey(), payload).Err()
		if err != nil {
			return fmt.Errorf("failed to promote job: %w", err)
		}
	}

	return nil
}

// recoverStalled requeues jobs a crashed consumer left on the processing
// list.
func (q *RedisQueue) recoverStalled(ctx context.Context) error {
	for {
		payload, err := q.client.RPopLPush(ctx, q.processingKey(), q.readyKey()).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil
			}

			return fmt.Errorf("failed to recover stalled jobs: %w", err)
		}

		var job Job
		if err := json.Unmarshal([]byte(payload), &job); err == nil {
			q.emit(Event{Type: EventStalled, Job: job})
			q.logger.Warn("Requeued stalled job", "job_id", job.ID, "execution_id", job.ExecutionID)
		}
	}
}

func (q *RedisQueue) emit(event Event) {
	if q.events != nil {
		q.events(event)
	}
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
