// Package web provides the HTTP surface of the flow engine: flow CRUD,
// activation, trigger event dispatch and execution lookup.
package web

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/reachcrm/flowd/pkg/engine"
	"github.com/reachcrm/flowd/pkg/eventbus"
	"github.com/reachcrm/flowd/pkg/events"
	"github.com/reachcrm/flowd/pkg/models"
	"github.com/reachcrm/flowd/pkg/persistence"
	"github.com/reachcrm/flowd/pkg/trigger"
)

type APIHandlers struct {
	persistence persistence.Persistence
	engine      *engine.Engine
	firing      *trigger.Firing
	registry    *trigger.Registry
	eventBus    eventbus.EventPublisher
	validator   *validator.Validate
	logger      *slog.Logger
}

func NewAPIHandlers(
	persistence persistence.Persistence,
	eng *engine.Engine,
	firing *trigger.Firing,
	registry *trigger.Registry,
	eventBus eventbus.EventPublisher,
	validator *validator.Validate,
	logger *slog.Logger,
) *APIHandlers {
	return &APIHandlers{
		persistence: persistence,
		engine:      eng,
		firing:      firing,
		registry:    registry,
		eventBus:    eventBus,
		validator:   validator,
		logger:      logger.With("module", "web"),
	}
}

func (h *APIHandlers) GetFlows(c fiber.Ctx) error {
	flows, err := h.persistence.Flows(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"flows": flows, "count": len(flows)})
}

func (h *APIHandlers) GetFlow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Flow ID is required")
	}

	flow, err := h.persistence.FlowByID(c.Context(), id)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(flow)
}

func (h *APIHandlers) CreateFlow(c fiber.Ctx) error {
	var req CreateFlowRequest

	err := c.Bind().JSON(&req)
	if err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	err = h.validator.Struct(req)
	if err != nil {
		return badRequest(c, err.Error())
	}

	now := time.Now().UTC()
	flow := &models.Flow{
		ID:            models.GenerateFlowID(),
		TeamID:        req.TeamID,
		Name:          req.Name,
		TriggerType:   req.TriggerType,
		TriggerConfig: req.TriggerConfig,
		Nodes:         req.Nodes,
		Edges:         req.Edges,
		Variables:     req.Variables,
		Active:        req.Active,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = h.persistence.SaveFlow(c.Context(), flow)
	if err != nil {
		return handleEngineError(c, err)
	}

	if flow.Active {
		h.registry.Register(flow.ID, flow.TeamID, flow.TriggerType, flow.TriggerConfig)
	}

	return c.Status(fiber.StatusCreated).JSON(flow)
}

func (h *APIHandlers) DeleteFlow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Flow ID is required")
	}

	flow, err := h.persistence.FlowByID(c.Context(), id)
	if err != nil {
		return handleEngineError(c, err)
	}

	err = h.persistence.DeleteFlow(c.Context(), id)
	if err != nil {
		return handleEngineError(c, err)
	}

	h.registry.Unregister(flow.ID, flow.TriggerType)

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ActivateFlow(c fiber.Ctx) error {
	return h.setFlowActive(c, true)
}

func (h *APIHandlers) DeactivateFlow(c fiber.Ctx) error {
	return h.setFlowActive(c, false)
}

func (h *APIHandlers) setFlowActive(c fiber.Ctx, active bool) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Flow ID is required")
	}

	flow, err := h.persistence.FlowByID(c.Context(), id)
	if err != nil {
		return handleEngineError(c, err)
	}

	if flow.Active != active {
		flow.Active = active
		flow.UpdatedAt = time.Now().UTC()

		err = h.persistence.SaveFlow(c.Context(), flow)
		if err != nil {
			return handleEngineError(c, err)
		}

		eventType := events.FlowActivatedEvent
		if active {
			h.registry.Register(flow.ID, flow.TeamID, flow.TriggerType, flow.TriggerConfig)
		} else {
			h.registry.Unregister(flow.ID, flow.TriggerType)
			eventType = events.FlowDeactivatedEvent
		}

		h.publishFlowEvent(c, eventType, flow)
	}

	return c.JSON(flow)
}

// StartFlow starts one execution of a flow for a contact, outside of trigger
// matching.
func (h *APIHandlers) StartFlow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Flow ID is required")
	}

	var req StartFlowRequest

	err := c.Bind().JSON(&req)
	if err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	err = h.validator.Struct(req)
	if err != nil {
		return badRequest(c, err.Error())
	}

	execution, err := h.engine.StartManual(c.Context(), id, req.ContactID, req.Payload, req.TestMode)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(execution)
}

// FireEvent dispatches an external trigger event against the registry and
// starts executions for every matching flow.
func (h *APIHandlers) FireEvent(c fiber.Ctx) error {
	var req FireEventRequest

	err := c.Bind().JSON(&req)
	if err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	err = h.validator.Struct(req)
	if err != nil {
		return badRequest(c, err.Error())
	}

	started := h.firing.Fire(c.Context(), req.TriggerType, req.Data)

	ids := make([]string, 0, len(started))
	for _, execution := range started {
		ids = append(ids, execution.ID)
	}

	if h.eventBus != nil {
		event := events.TriggerFired{
			BaseEvent:   events.NewBaseEvent(events.TriggerFiredEvent, ""),
			TriggerType: string(req.TriggerType),
			EventData:   req.Data,
			Matched:     len(started),
		}

		_ = h.eventBus.Publish(c.Context(), event.ID, event)
	}

	return c.Status(fiber.StatusAccepted).JSON(FireEventResponse{
		Matched:    len(started),
		Executions: ids,
	})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	execution, err := h.persistence.ExecutionByID(c.Context(), id)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) GetFlowExecutions(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Flow ID is required")
	}

	executions, err := h.persistence.ExecutionsByFlow(c.Context(), id)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(fiber.Map{"executions": executions, "count": len(executions)})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	err := h.persistence.HealthCheck(c.Context())

	status := "healthy"
	httpStatus := http.StatusOK

	if err != nil {
		status = "unhealthy"
		httpStatus = http.StatusInternalServerError
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":           status,
		"registered_flows": h.registry.Size(),
		"timestamp":        time.Now().UTC(),
	})
}

func (h *APIHandlers) publishFlowEvent(c fiber.Ctx, eventType events.EventType, flow *models.Flow) {
	if h.eventBus == nil {
		return
	}

	base := events.NewBaseEvent(eventType, flow.ID)
	base.TeamID = flow.TeamID

	var event eventbus.Event
	if eventType == events.FlowActivatedEvent {
		event = events.FlowActivated{BaseEvent: base}
	} else {
		event = events.FlowDeactivated{BaseEvent: base}
	}

	err := h.eventBus.Publish(c.Context(), flow.ID, event)
	if err != nil {
		h.logger.Warn("Failed to publish flow event",
			"flow_id", flow.ID,
			"event_type", eventType,
			"error", err)
	}
}
