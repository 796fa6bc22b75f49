// Package worker runs the pool of queue consumers that advance executions
// one step at a time.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/reachcrm/flowd/pkg/otelhelper"
	"github.com/reachcrm/flowd/pkg/queue"
)

const DefaultConcurrency = 5

// Advancer performs one step of an execution. *engine.Engine satisfies it.
type Advancer interface {
	Advance(ctx context.Context, executionID string) error
}

type Worker struct {
	id          string
	queue       queue.Queue
	advancer    Advancer
	tracer      trace.Tracer
	logger      *slog.Logger
	concurrency int
}

type Option func(*Worker)

func WithConcurrency(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(w *Worker) {
		w.tracer = tracer
	}
}

func New(id string, q queue.Queue, advancer Advancer, logger *slog.Logger, opts ...Option) *Worker {
	w := &Worker{
		id:          id,
		queue:       q,
		advancer:    advancer,
		logger:      logger.With("module", "worker", "worker_id", id),
		concurrency: DefaultConcurrency,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Run consumes jobs until the context is cancelled. Each consumer slot is an
// independent goroutine pulling from the shared queue.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Worker started", "concurrency", w.concurrency)

	var wg sync.WaitGroup

	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			err := w.queue.Consume(ctx, w.handle)
			if err != nil && !errors.Is(err, context.Canceled) {
				w.logger.ErrorContext(ctx, "Consumer stopped", "error", err)
			}
		}()
	}

	wg.Wait()
	w.logger.Info("Worker stopped")

	return nil
}

func (w *Worker) handle(ctx context.Context, job queue.Job) error {
	if w.tracer != nil {
		var span trace.Span

		ctx, span = otelhelper.StartSpan(ctx, w.tracer, "flowd.worker.advance",
			attribute.String(otelhelper.ExecutionIDKey, job.ExecutionID),
			attribute.String(otelhelper.WorkerIDKey, w.id),
			attribute.Int("flowd.job.attempt", job.Attempt),
		)
		defer span.End()

		err := w.advancer.Advance(ctx, job.ExecutionID)
		if err != nil {
			otelhelper.SetError(span, err,
				attribute.String(otelhelper.ExecutionIDKey, job.ExecutionID))
		}

		return err
	}

	return w.advancer.Advance(ctx, job.ExecutionID)
}
