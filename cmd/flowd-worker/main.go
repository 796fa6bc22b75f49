package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/reachcrm/flowd/pkg/cmd"
	"github.com/reachcrm/flowd/pkg/engine"
	"github.com/reachcrm/flowd/pkg/log"
	"github.com/reachcrm/flowd/pkg/otelhelper"
	"github.com/reachcrm/flowd/pkg/queue"
	"github.com/reachcrm/flowd/pkg/scheduler"
	"github.com/reachcrm/flowd/pkg/services/crm"
	"github.com/reachcrm/flowd/pkg/worker"
)

func main() {
	app := &cli.Command{
		Name:                  "flowd-worker",
		EnableShellCompletion: true,
		Usage:                 "Start workers to advance flow executions",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the continuation queue (in-process queue if empty)",
				Value:   "",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:     "crm-api-url",
				Usage:    "Base URL of the CRM internal API",
				Required: true,
				Sources:  cli.EnvVars("CRM_API_URL"),
			},
			&cli.StringFlag{
				Name:    "crm-api-token",
				Usage:   "Bearer token for the CRM internal API",
				Value:   "",
				Sources: cli.EnvVars("CRM_API_TOKEN"),
			},
			&cli.IntFlag{
				Name:    "concurrency",
				Usage:   "Number of concurrent queue consumers",
				Value:   worker.DefaultConcurrency,
				Sources: cli.EnvVars("WORKER_CONCURRENCY"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: run,
	}

	err := app.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerID := command.String("worker-id")
	if workerID == "" {
		workerID = "worker-" + uuid.New().String()[:8]
	}

	logger := log.WithModule("flowd-worker").With("worker_id", workerID)
	logger.InfoContext(ctx, "Initializing flowd worker")

	store := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	defer func() {
		err := store.Close(ctx)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	q := cmd.NewQueue(command.String("redis-url"), logger, func(event queue.Event) {
		switch event.Type {
		case queue.EventFailed:
			if event.WillTry {
				logger.Warn("Step failed, will retry",
					"execution_id", event.Job.ExecutionID,
					"attempt", event.Job.Attempt,
					"error", event.Err)
			} else {
				logger.Error("Step failed, moved to dead list",
					"execution_id", event.Job.ExecutionID,
					"error", event.Err)
			}
		case queue.EventStalled:
			logger.Warn("Recovered stalled job", "execution_id", event.Job.ExecutionID)
		case queue.EventCompleted:
		}
	})
	defer func() {
		err := q.Close()
		if err != nil {
			logger.ErrorContext(ctx, "Failed to close queue", "error", err)
		}
	}()

	eventBus := cmd.NewEventBus(command.String("event-bus"), "flowd-worker", logger)
	defer func() {
		err := eventBus.Close()
		if err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	crmClient := crm.NewClient(command.String("crm-api-url"), command.String("crm-api-token"), logger)

	eng := engine.New(engine.Config{
		Persistence: store,
		Contacts:    crmClient,
		Messenger:   crmClient,
		Scheduler:   scheduler.NewScheduler(q, logger),
		EventBus:    eventBus,
		Logger:      logger,
	})

	opts := []worker.Option{worker.WithConcurrency(command.Int("concurrency"))}

	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" {
		tracer, err := otelhelper.NewTracer(ctx, "flowd-worker")
		if err != nil {
			logger.ErrorContext(ctx, "Failed to initialize tracer", "error", err)
		} else {
			opts = append(opts, worker.WithTracer(tracer))
		}
	}

	cron, err := startScheduleSource(ctx, store, eng, eventBus, logger)
	if err != nil {
		return err
	}
	defer cron.Stop()

	w := worker.New(workerID, q, eng, logger, opts...)

	return w.Run(ctx)
}
