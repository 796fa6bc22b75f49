package schedule

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reachcrm/flowd/pkg/models"
)

type recordingStarter struct {
	mu      sync.Mutex
	started []string
}

func (r *recordingStarter) Start(_ context.Context, flowID, _ string, _ map[string]any, _ string) (*models.Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, flowID)

	return &models.Execution{ID: "exec-1", FlowID: flowID}, nil
}

func scheduledFlow(id, spec string) *models.Flow {
	return &models.Flow{
		ID:            id,
		TeamID:        "team-1",
		Name:          "scheduled " + id,
		TriggerType:   models.TriggerScheduled,
		TriggerConfig: map[string]any{"cron": spec},
		Active:        true,
	}
}

func TestSource_SyncRegistersActiveScheduledFlows(t *testing.T) {
	source := NewSource(&recordingStarter{}, slog.Default())

	inactive := scheduledFlow("flow-off", "@hourly")
	inactive.Active = false

	manual := &models.Flow{ID: "flow-manual", TriggerType: models.TriggerManual, Active: true}

	err := source.Sync(context.Background(), []*models.Flow{
		scheduledFlow("flow-a", "@hourly"),
		scheduledFlow("flow-b", "*/5 * * * *"),
		inactive,
		manual,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, source.Size())
}

func TestSource_SyncRemovesDroppedFlows(t *testing.T) {
	source := NewSource(&recordingStarter{}, slog.Default())

	require.NoError(t, source.Sync(context.Background(), []*models.Flow{
		scheduledFlow("flow-a", "@hourly"),
		scheduledFlow("flow-b", "@daily"),
	}))

	require.NoError(t, source.Sync(context.Background(), []*models.Flow{
		scheduledFlow("flow-a", "@hourly"),
	}))

	assert.Equal(t, 1, source.Size())
}

func TestSource_AddRejectsInvalidCron(t *testing.T) {
	source := NewSource(&recordingStarter{}, slog.Default())

	err := source.Add(context.Background(), scheduledFlow("flow-a", "not a cron"))
	require.Error(t, err)

	err = source.Add(context.Background(), &models.Flow{
		ID:          "flow-b",
		TriggerType: models.TriggerScheduled,
		Active:      true,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no cron expression")
}

func TestSource_AddReplacesExistingEntry(t *testing.T) {
	source := NewSource(&recordingStarter{}, slog.Default())

	require.NoError(t, source.Add(context.Background(), scheduledFlow("flow-a", "@hourly")))
	require.NoError(t, source.Add(context.Background(), scheduledFlow("flow-a", "@daily")))

	assert.Equal(t, 1, source.Size())
}

func TestSource_FireStartsFlow(t *testing.T) {
	starter := &recordingStarter{}
	source := NewSource(starter, slog.Default())

	source.fire(context.Background(), "flow-a", "team-1")

	require.Len(t, starter.started, 1)
	assert.Equal(t, "flow-a", starter.started[0])
}
