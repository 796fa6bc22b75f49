package web

import (
	"github.com/reachcrm/flowd/pkg/models"
)

// CreateFlowRequest is the payload for creating a flow definition.
type CreateFlowRequest struct {
	TeamID        string             `json:"team_id"       validate:"required"`
	Name          string             `json:"name"          validate:"required,min=3"`
	TriggerType   models.TriggerType `json:"trigger_type"  validate:"required"`
	TriggerConfig map[string]any     `json:"trigger_config"`
	Nodes         []*models.FlowNode `json:"nodes"         validate:"required,min=1"`
	Edges         []*models.FlowEdge `json:"edges"`
	Variables     map[string]any     `json:"variables"`
	Active        bool               `json:"active"`
}

// StartFlowRequest is the payload for a manual flow start.
type StartFlowRequest struct {
	ContactID string         `json:"contact_id" validate:"required"`
	Payload   map[string]any `json:"payload"`
	TestMode  bool           `json:"test_mode"`
}

// FireEventRequest is the payload for dispatching an external trigger event.
type FireEventRequest struct {
	TriggerType models.TriggerType `json:"trigger_type" validate:"required"`
	Data        map[string]any     `json:"data"`
}

// FireEventResponse reports which executions an event started.
type FireEventResponse struct {
	Matched    int      `json:"matched"`
	Executions []string `json:"executions"`
}
