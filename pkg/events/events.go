// Package events defines the lifecycle events the engine publishes for the
// surrounding system to log and observe.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic carries all engine lifecycle events.
const Topic = "flowd.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	TriggerFiredEvent       EventType = "trigger.fired"
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
	FlowActivatedEvent      EventType = "flow.activated"
	FlowDeactivatedEvent    EventType = "flow.deactivated"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	FlowID    string         `json:"flow_id"`
	TeamID    string         `json:"team_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, flowID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		FlowID:    flowID,
		Metadata:  make(map[string]any),
	}
}

type TriggerFired struct {
	BaseEvent

	TriggerType string         `json:"trigger_type"`
	EventData   map[string]any `json:"event_data,omitempty"`
	Matched     int            `json:"matched"`
}

func (e TriggerFired) GetType() EventType {
	return TriggerFiredEvent
}

type ExecutionStarted struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	ContactID   string `json:"contact_id"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

type ExecutionCompleted struct {
	BaseEvent

	ExecutionID string        `json:"execution_id"`
	Duration    time.Duration `json:"duration"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

type ExecutionFailed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	NodeID      string `json:"node_id,omitempty"`
	Error       string `json:"error"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

type FlowActivated struct {
	BaseEvent
}

func (e FlowActivated) GetType() EventType {
	return FlowActivatedEvent
}

type FlowDeactivated struct {
	BaseEvent
}

func (e FlowDeactivated) GetType() EventType {
	return FlowDeactivatedEvent
}
