package main

import (
	"context"
	"log/slog"

	"github.com/reachcrm/flowd/pkg/engine"
	"github.com/reachcrm/flowd/pkg/eventbus"
	"github.com/reachcrm/flowd/pkg/events"
	"github.com/reachcrm/flowd/pkg/persistence"
	"github.com/reachcrm/flowd/pkg/schedule"
)

// startScheduleSource boots the cron source for scheduled flows and keeps it
// in sync with flow activation events coming over the event bus.
func startScheduleSource(
	ctx context.Context,
	store persistence.Persistence,
	eng *engine.Engine,
	bus eventbus.EventBus,
	logger *slog.Logger,
) (*schedule.Source, error) {
	source := schedule.NewSource(eng, logger)

	resync := func(ctx context.Context, _ any) error {
		flows, err := store.ActiveFlows(ctx)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to load active flows for schedule sync", "error", err)

			return err
		}

		return source.Sync(ctx, flows)
	}

	err := resync(ctx, nil)
	if err != nil {
		return nil, err
	}

	err = bus.Handle(events.FlowActivatedEvent, resync)
	if err != nil {
		return nil, err
	}

	err = bus.Handle(events.FlowDeactivatedEvent, resync)
	if err != nil {
		return nil, err
	}

	go func() {
		err := bus.Subscribe(ctx)
		if err != nil && ctx.Err() == nil {
			logger.ErrorContext(ctx, "Event bus subscription stopped", "error", err)
		}
	}()

	source.Start()
	logger.InfoContext(ctx, "Schedule source started", "scheduled_flows", source.Size())

	return source, nil
}
