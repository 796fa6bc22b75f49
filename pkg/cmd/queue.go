// Package cmd provides common initialization functions for command-line
// applications.
package cmd

import (
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/reachcrm/flowd/pkg/queue"
)

const continuationQueueName = "executions"

// NewQueue builds the continuation queue. A redis:// URL selects the
// Redis-backed queue; an empty URL falls back to the in-process queue, which
// only makes sense when a single binary runs both the API and the worker.
func NewQueue(redisURL string, logger *slog.Logger, events queue.EventFunc) queue.Queue {
	if redisURL == "" {
		return queue.NewMemoryQueue(1024, events)
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Error("Invalid redis URL", "error", err)
		panic(err)
	}

	client := redis.NewClient(opts)

	return queue.NewRedisQueue(client, continuationQueueName, logger, events)
}
