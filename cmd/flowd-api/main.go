package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/reachcrm/flowd/pkg/cmd"
	"github.com/reachcrm/flowd/pkg/engine"
	"github.com/reachcrm/flowd/pkg/log"
	"github.com/reachcrm/flowd/pkg/scheduler"
	"github.com/reachcrm/flowd/pkg/services/crm"
	"github.com/reachcrm/flowd/pkg/trigger"
)

func main() {
	app := &cli.Command{
		Name:                  "flowd-api",
		EnableShellCompletion: true,
		Usage:                 "Start the flow engine HTTP API",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Usage:   "Port to listen on",
				Value:   8081,
				Sources: cli.EnvVars("PORT"),
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
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("flowd-api")
			logger.InfoContext(ctx, "Initializing flowd API")

			store := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				err := store.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			q := cmd.NewQueue(command.String("redis-url"), logger, nil)
			defer func() {
				err := q.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close queue", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), "flowd-api", logger)
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

			registry := trigger.NewRegistry(store, logger)

			err := registry.Initialize(ctx)
			if err != nil {
				return err
			}

			firing := trigger.NewFiring(registry, eng, logger)

			api := NewAPI(logger, store, eng, firing, registry, eventBus)

			return api.Start(command.Int("port"))
		},
	}

	err := app.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
