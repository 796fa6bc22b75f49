package models

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// ExecutionStatus is the lifecycle state of one run of a flow.
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// TriggerVariable is the key under which the trigger event payload is seeded
// into the execution's variable map.
const TriggerVariable = "trigger"

// StepResult records the outcome of one dispatched step. Results are keyed by
// step sequence so a redelivered job can detect an already-performed side
// effect instead of repeating it.
type StepResult struct {
	NodeID      string         `json:"node_id"`
	Variables   map[string]any `json:"variables,omitempty"`
	NextNodeID  string         `json:"next_node_id,omitempty"`
	CompletedAt time.Time      `json:"completed_at"`
}

// Execution is one run of a flow against one contact. All mutable run state
// lives here and is persisted between steps, so execution survives process
// restarts and queued jobs only need to carry the execution id.
type Execution struct {
	ID             string                `json:"id"`
	FlowID         string                `json:"flow_id"`
	TeamID         string                `json:"team_id"`
	ContactID      string                `json:"contact_id"`
	ConversationID string                `json:"conversation_id,omitempty"`
	Status         ExecutionStatus       `json:"status"`
	CurrentNodeID  string                `json:"current_node_id,omitempty"`
	StepSeq        int                   `json:"step_seq"`
	Variables      map[string]any        `json:"variables"`
	StepResults    map[string]StepResult `json:"step_results,omitempty"`
	TestMode       bool                  `json:"test_mode,omitempty"`
	StartedAt      time.Time             `json:"started_at"`
	LastActivityAt time.Time             `json:"last_activity_at"`
	CompletedAt    *time.Time            `json:"completed_at,omitempty"`
	Error          string                `json:"error,omitempty"`
}

// NewExecution creates a running execution for the given flow, seeding its
// variables from the flow's initial variables plus the trigger payload.
func NewExecution(flow *Flow, contactID, conversationID string, triggerData map[string]any) *Execution {
	variables := make(map[string]any, len(flow.Variables)+1)
	for k, v := range flow.Variables {
		variables[k] = v
	}

	if triggerData == nil {
		triggerData = map[string]any{}
	}

	variables[TriggerVariable] = triggerData

	now := time.Now().UTC()

	return &Execution{
		ID:             GenerateExecutionID(),
		FlowID:         flow.ID,
		TeamID:         flow.TeamID,
		ContactID:      contactID,
		ConversationID: conversationID,
		Status:         ExecutionStatusRunning,
		Variables:      variables,
		StepResults:    make(map[string]StepResult),
		StartedAt:      now,
		LastActivityAt: now,
	}
}

// StepKey is the deterministic idempotency key of the current step.
func (e *Execution) StepKey() string {
	return strconv.Itoa(e.StepSeq)
}

// Running reports whether the execution is still advanceable. A stale job
// redelivered for a terminal execution must be a no-op.
func (e *Execution) Running() bool {
	return e.Status == ExecutionStatusRunning
}

// MarkCompleted transitions the execution to its successful terminal state.
func (e *Execution) MarkCompleted() {
	now := time.Now().UTC()
	e.Status = ExecutionStatusCompleted
	e.CompletedAt = &now
	e.LastActivityAt = now
}

// MarkFailed transitions the execution to its failed terminal state with the
// captured error message. Terminal states are never reopened; retrying a flow
// for the same contact means creating a new execution.
func (e *Execution) MarkFailed(err error) {
	now := time.Now().UTC()
	e.Status = ExecutionStatusFailed
	e.Error = err.Error()
	e.CompletedAt = &now
	e.LastActivityAt = now
}

// Touch refreshes the last-activity timestamp.
func (e *Execution) Touch() {
	e.LastActivityAt = time.Now().UTC()
}

// GenerateExecutionID generates a unique execution id.
func GenerateExecutionID() string {
	return fmt.Sprintf("exec-%s", uuid.New().String()[:8])
}

// GenerateFlowID generates a unique flow id.
func GenerateFlowID() string {
	return fmt.Sprintf("flow-%s", uuid.New().String()[:8])
}
