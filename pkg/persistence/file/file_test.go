package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reachcrm/flowd/pkg/models"
	"github.com/reachcrm/flowd/pkg/persistence"
)

func testFlow(id string, active bool) *models.Flow {
	return &models.Flow{
		ID:          id,
		TeamID:      "team-1",
		Name:        "welcome flow",
		TriggerType: models.TriggerKeywordMatch,
		Nodes: []*models.FlowNode{
			{ID: "n1", Kind: models.NodeKindTrigger},
			{ID: "n2", Kind: models.NodeKindEnd},
		},
		Edges:  []*models.FlowEdge{{Source: "n1", Target: "n2"}},
		Active: active,
	}
}

func TestPersistence_FlowRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewPersistence(t.TempDir())

	require.NoError(t, store.SaveFlow(ctx, testFlow("flow-1", true)))

	flow, err := store.FlowByID(ctx, "flow-1")
	require.NoError(t, err)
	assert.Equal(t, "welcome flow", flow.Name)
	assert.Len(t, flow.Nodes, 2)
}

func TestPersistence_SaveFlow_ReplacesWithoutLeftovers(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store := NewPersistence(root)

	require.NoError(t, store.SaveFlow(ctx, testFlow("flow-1", true)))

	updated := testFlow("flow-1", true)
	updated.Name = "renamed flow"
	require.NoError(t, store.SaveFlow(ctx, updated))

	flow, err := store.FlowByID(ctx, "flow-1")
	require.NoError(t, err)
	assert.Equal(t, "renamed flow", flow.Name)

	// The temp file used for the rename must not stay behind.
	entries, err := os.ReadDir(filepath.Join(root, flowsDir))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "flow-1.json", entries[0].Name())
}

func TestPersistence_FlowByID_NotFound(t *testing.T) {
	store := NewPersistence(t.TempDir())

	_, err := store.FlowByID(context.Background(), "missing")
	assert.True(t, persistence.IsFlowNotFound(err))
}

func TestPersistence_SaveFlow_RejectsInvalid(t *testing.T) {
	store := NewPersistence(t.TempDir())

	flow := testFlow("flow-1", true)
	flow.Nodes = flow.Nodes[1:] // drop the trigger node

	err := store.SaveFlow(context.Background(), flow)
	require.Error(t, err)
	assert.ErrorIs(t, err, persistence.ErrFlowInvalid)
}

func TestPersistence_ActiveFlows(t *testing.T) {
	ctx := context.Background()
	store := NewPersistence(t.TempDir())

	require.NoError(t, store.SaveFlow(ctx, testFlow("flow-1", true)))
	require.NoError(t, store.SaveFlow(ctx, testFlow("flow-2", false)))
	require.NoError(t, store.SaveFlow(ctx, testFlow("flow-3", true)))

	active, err := store.ActiveFlows(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestPersistence_ExecutionRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewPersistence(t.TempDir())

	execution := models.NewExecution(testFlow("flow-1", true), "contact-1", "conv-1",
		map[string]any{"message": "hello"})

	require.NoError(t, store.SaveExecution(ctx, execution))

	loaded, err := store.ExecutionByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusRunning, loaded.Status)
	assert.Equal(t, "contact-1", loaded.ContactID)

	loaded.CurrentNodeID = "n2"
	loaded.StepSeq = 1
	require.NoError(t, store.SaveExecution(ctx, loaded))

	reloaded, err := store.ExecutionByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, "n2", reloaded.CurrentNodeID)
	assert.Equal(t, 1, reloaded.StepSeq)
}

func TestPersistence_ExecutionsByFlow(t *testing.T) {
	ctx := context.Background()
	store := NewPersistence(t.TempDir())

	flow1 := testFlow("flow-1", true)
	flow2 := testFlow("flow-2", true)

	require.NoError(t, store.SaveExecution(ctx, models.NewExecution(flow1, "c1", "", nil)))
	require.NoError(t, store.SaveExecution(ctx, models.NewExecution(flow1, "c2", "", nil)))
	require.NoError(t, store.SaveExecution(ctx, models.NewExecution(flow2, "c3", "", nil)))

	executions, err := store.ExecutionsByFlow(ctx, "flow-1")
	require.NoError(t, err)
	assert.Len(t, executions, 2)
}

func TestPersistence_RejectsPathTraversal(t *testing.T) {
	store := NewPersistence(t.TempDir())

	_, err := store.FlowByID(context.Background(), "../escape")
	require.Error(t, err)

	_, err = store.ExecutionByID(context.Background(), "a/b")
	require.Error(t, err)
}
