// Package engine implements the stepwise execution state machine. Every unit
// of work is one Advance call: resolve the next node from persisted state,
// dispatch it, persist the outcome, and hand continuation back to the
// scheduler. All mutable run state lives in the persisted execution, which
// makes progress crash-safe at the cost of at-least-once node dispatch.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/reachcrm/flowd/pkg/eventbus"
	"github.com/reachcrm/flowd/pkg/events"
	"github.com/reachcrm/flowd/pkg/models"
	"github.com/reachcrm/flowd/pkg/persistence"
	"github.com/reachcrm/flowd/pkg/protocol"
)

var ErrContactNotFound = errors.New("contact not found")

// Scheduler enqueues the next Advance for an execution. *scheduler.Scheduler
// satisfies it.
type Scheduler interface {
	Schedule(ctx context.Context, executionID string, delay time.Duration) error
}

// Config wires the engine's collaborators. Persistence, Contacts, Messenger
// and Scheduler are required; EventBus and HTTPClient are optional.
type Config struct {
	Persistence persistence.Persistence
	Contacts    protocol.ContactStore
	Messenger   protocol.Messenger
	Scheduler   Scheduler
	EventBus    eventbus.EventPublisher
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

type Engine struct {
	persistence persistence.Persistence
	contacts    protocol.ContactStore
	messenger   protocol.Messenger
	scheduler   Scheduler
	eventBus    eventbus.EventPublisher
	httpClient  *http.Client
	logger      *slog.Logger
}

func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Engine{
		persistence: cfg.Persistence,
		contacts:    cfg.Contacts,
		messenger:   cfg.Messenger,
		scheduler:   cfg.Scheduler,
		eventBus:    cfg.EventBus,
		httpClient:  httpClient,
		logger:      logger.With("module", "engine"),
	}
}

// Start creates a running execution for the flow and schedules its first
// step. It rejects inactive flows.
func (e *Engine) Start(ctx context.Context, flowID, contactID string, payload map[string]any, conversationID string) (*models.Execution, error) {
	flow, err := e.persistence.FlowByID(ctx, flowID)
	if err != nil {
		return nil, err
	}

	if !flow.Active {
		return nil, persistence.NewFlowError("start", flowID, persistence.ErrFlowNotActive)
	}

	execution := models.NewExecution(flow, contactID, conversationID, payload)

	err = e.persistence.SaveExecution(ctx, execution)
	if err != nil {
		return nil, fmt.Errorf("failed to persist execution: %w", err)
	}

	e.logger.InfoContext(ctx, "Execution started",
		"execution_id", execution.ID,
		"flow_id", flowID,
		"contact_id", contactID)

	e.publishStarted(ctx, execution)

	err = e.scheduler.Schedule(ctx, execution.ID, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule first step: %w", err)
	}

	return execution, nil
}

// StartManual starts a flow from the API or authoring surface rather than
// from a trigger event. The contact is verified to exist first, and the run
// can be flagged test-mode so message sends are stubbed.
func (e *Engine) StartManual(ctx context.Context, flowID, contactID string, payload map[string]any, testMode bool) (*models.Execution, error) {
	contact, err := e.contacts.Contact(ctx, contactID)
	if err != nil || contact == nil {
		return nil, fmt.Errorf("%w: %s", ErrContactNotFound, contactID)
	}

	flow, err := e.persistence.FlowByID(ctx, flowID)
	if err != nil {
		return nil, err
	}

	if !flow.Active {
		return nil, persistence.NewFlowError("start", flowID, persistence.ErrFlowNotActive)
	}

	execution := models.NewExecution(flow, contactID, "", payload)
	execution.TestMode = testMode

	err = e.persistence.SaveExecution(ctx, execution)
	if err != nil {
		return nil, fmt.Errorf("failed to persist execution: %w", err)
	}

	e.publishStarted(ctx, execution)

	err = e.scheduler.Schedule(ctx, execution.ID, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule first step: %w", err)
	}

	return execution, nil
}

// Advance performs one step of an execution. It is the unit of work a worker
// runs for one queued job and is safe to call again on redelivery: terminal
// executions no-op, and an already-dispatched step is detected through its
// recorded result instead of being repeated.
func (e *Engine) Advance(ctx context.Context, executionID string) error {
	execution, err := e.persistence.ExecutionByID(ctx, executionID)
	if err != nil {
		return err
	}

	if !execution.Running() {
		e.logger.InfoContext(ctx, "Skipping job for terminal execution",
			"execution_id", executionID,
			"status", execution.Status)

		return nil
	}

	flow, err := e.persistence.FlowByID(ctx, execution.FlowID)
	if err != nil {
		return e.fail(ctx, execution, err)
	}

	node, err := e.resolveNext(execution, flow)
	if err != nil {
		return e.fail(ctx, execution, err)
	}

	if node == nil {
		return e.complete(ctx, execution)
	}

	// Persist the resolved node before dispatching so a crash mid-step
	// resumes at the same node instead of skipping it.
	execution.CurrentNodeID = node.ID
	execution.Touch()

	err = e.persistence.SaveExecution(ctx, execution)
	if err != nil {
		return e.fail(ctx, execution, err)
	}

	result, dispatched := execution.StepResults[execution.StepKey()]
	if !dispatched || result.NodeID != node.ID {
		outcome, err := e.dispatch(ctx, flow, node, execution)
		if err != nil {
			return e.fail(ctx, execution, err)
		}

		result = models.StepResult{
			NodeID:      node.ID,
			Variables:   outcome.variables,
			NextNodeID:  outcome.nextNodeID,
			CompletedAt: time.Now().UTC(),
		}
		execution.StepResults[execution.StepKey()] = result

		for k, v := range outcome.variables {
			execution.Variables[k] = v
		}

		execution.Touch()

		err = e.persistence.SaveExecution(ctx, execution)
		if err != nil {
			return e.fail(ctx, execution, err)
		}

		if outcome.complete {
			return e.complete(ctx, execution)
		}

		if outcome.delay > 0 {
			e.logger.DebugContext(ctx, "Delaying execution",
				"execution_id", execution.ID,
				"node_id", node.ID,
				"delay", outcome.delay)

			return e.scheduler.Schedule(ctx, execution.ID, outcome.delay)
		}
	}

	return e.scheduler.Schedule(ctx, execution.ID, 0)
}

// resolveNext picks the node to dispatch. A nil node with nil error means the
// run reached the end of the graph.
func (e *Engine) resolveNext(execution *models.Execution, flow *models.Flow) (*models.FlowNode, error) {
	if execution.CurrentNodeID == "" {
		node, err := flow.TriggerNode()
		if err != nil {
			return nil, err
		}

		execution.StepSeq++

		return node, nil
	}

	previous, ok := execution.StepResults[execution.StepKey()]
	if !ok || previous.NodeID != execution.CurrentNodeID {
		// The current node was persisted but never finished dispatching.
		node := flow.NodeByID(execution.CurrentNodeID)
		if node == nil {
			return nil, fmt.Errorf("node %s not found in flow %s", execution.CurrentNodeID, flow.ID)
		}

		return node, nil
	}

	var nextID string

	if previous.NextNodeID != "" {
		nextID = previous.NextNodeID
	} else {
		edges := flow.EdgesFrom(execution.CurrentNodeID)
		if len(edges) == 0 {
			return nil, nil
		}

		nextID = edges[0].Target
	}

	node := flow.NodeByID(nextID)
	if node == nil {
		return nil, fmt.Errorf("node %s not found in flow %s", nextID, flow.ID)
	}

	execution.StepSeq++

	return node, nil
}

func (e *Engine) complete(ctx context.Context, execution *models.Execution) error {
	execution.MarkCompleted()

	err := e.persistence.SaveExecution(ctx, execution)
	if err != nil {
		return err
	}

	e.logger.InfoContext(ctx, "Execution completed",
		"execution_id", execution.ID,
		"flow_id", execution.FlowID,
		"steps", execution.StepSeq)

	if e.eventBus != nil {
		event := events.ExecutionCompleted{
			BaseEvent:   events.NewBaseEvent(events.ExecutionCompletedEvent, execution.FlowID),
			ExecutionID: execution.ID,
			Duration:    execution.CompletedAt.Sub(execution.StartedAt),
		}
		event.TeamID = execution.TeamID

		_ = e.eventBus.Publish(ctx, execution.FlowID, event)
	}

	return nil
}

// fail marks the execution failed and returns the original error so the
// queue's retry policy sees the step as failed.
func (e *Engine) fail(ctx context.Context, execution *models.Execution, cause error) error {
	execution.MarkFailed(cause)

	err := e.persistence.SaveExecution(ctx, execution)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to persist failed execution",
			"execution_id", execution.ID,
			"error", err)
	}

	e.logger.ErrorContext(ctx, "Execution failed",
		"execution_id", execution.ID,
		"flow_id", execution.FlowID,
		"node_id", execution.CurrentNodeID,
		"error", cause)

	if e.eventBus != nil {
		event := events.ExecutionFailed{
			BaseEvent:   events.NewBaseEvent(events.ExecutionFailedEvent, execution.FlowID),
			ExecutionID: execution.ID,
			NodeID:      execution.CurrentNodeID,
			Error:       cause.Error(),
		}
		event.TeamID = execution.TeamID

		_ = e.eventBus.Publish(ctx, execution.FlowID, event)
	}

	return cause
}

func (e *Engine) publishStarted(ctx context.Context, execution *models.Execution) {
	if e.eventBus == nil {
		return
	}

	event := events.ExecutionStarted{
		BaseEvent:   events.NewBaseEvent(events.ExecutionStartedEvent, execution.FlowID),
		ExecutionID: execution.ID,
		ContactID:   execution.ContactID,
	}
	event.TeamID = execution.TeamID

	_ = e.eventBus.Publish(ctx, execution.FlowID, event)
}
