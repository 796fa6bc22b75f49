package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/reachcrm/flowd/pkg/condition"
	"github.com/reachcrm/flowd/pkg/models"
	"github.com/reachcrm/flowd/pkg/template"
)

// ErrUnknownNodeKind is fatal for the execution. It can only come from a flow
// saved without validation.
var ErrUnknownNodeKind = errors.New("unknown node kind")

const maxHTTPResponseBytes = 64 * 1024

// stepOutcome is what one dispatched node hands back to the state machine.
type stepOutcome struct {
	variables  map[string]any
	nextNodeID string
	delay      time.Duration
	complete   bool
}

// dispatch runs a single node. Handlers must tolerate at-least-once delivery:
// a worker crash after dispatch but before the result is persisted means the
// handler runs again on redelivery.
func (e *Engine) dispatch(ctx context.Context, flow *models.Flow, node *models.FlowNode, execution *models.Execution) (stepOutcome, error) {
	e.logger.DebugContext(ctx, "Dispatching node",
		"execution_id", execution.ID,
		"node_id", node.ID,
		"node_kind", node.Kind)

	switch node.Kind {
	case models.NodeKindTrigger, models.NodeKindAIChatbot, models.NodeKindBranch, models.NodeKindJoin:
		// Pass-through. The trigger node marks graph entry; the others are
		// reserved for future extension.
		return stepOutcome{}, nil
	case models.NodeKindWait:
		return e.dispatchWait(node)
	case models.NodeKindSendMessage:
		return e.dispatchSendMessage(ctx, node, execution)
	case models.NodeKindCondition:
		return e.dispatchCondition(ctx, flow, node, execution)
	case models.NodeKindAddTag, models.NodeKindRemoveTag:
		return e.dispatchTag(ctx, node, execution)
	case models.NodeKindUpdateField:
		return e.dispatchUpdateField(ctx, node, execution)
	case models.NodeKindHTTPRequest:
		return e.dispatchHTTPRequest(ctx, node, execution)
	case models.NodeKindEnd:
		return stepOutcome{complete: true}, nil
	default:
		return stepOutcome{}, fmt.Errorf("%w: %s", ErrUnknownNodeKind, node.Kind)
	}
}

func (e *Engine) dispatchWait(node *models.FlowNode) (stepOutcome, error) {
	config, err := node.WaitConfig()
	if err != nil {
		return stepOutcome{}, err
	}

	return stepOutcome{delay: config.Delay()}, nil
}

func (e *Engine) dispatchSendMessage(ctx context.Context, node *models.FlowNode, execution *models.Execution) (stepOutcome, error) {
	config, err := node.SendMessageConfig()
	if err != nil {
		return stepOutcome{}, err
	}

	contact := e.loadContact(ctx, execution.ContactID)

	content := template.Substitute(config.Message, contact, execution.Variables)

	mediaURL := config.MediaURL
	if mediaURL != "" {
		mediaURL = template.Substitute(mediaURL, contact, execution.Variables)
	}

	if execution.TestMode {
		return stepOutcome{variables: map[string]any{"lastMessageId": "test-" + node.ID}}, nil
	}

	messageID, err := e.messenger.Send(ctx, config.AccountID, execution.ContactID, config.MessageType, content, mediaURL)
	if err != nil {
		return stepOutcome{}, fmt.Errorf("failed to send message: %w", err)
	}

	return stepOutcome{variables: map[string]any{"lastMessageId": messageID}}, nil
}

func (e *Engine) dispatchCondition(ctx context.Context, flow *models.Flow, node *models.FlowNode, execution *models.Execution) (stepOutcome, error) {
	config, err := node.ConditionConfig()
	if err != nil {
		return stepOutcome{}, err
	}

	contact := e.loadContact(ctx, execution.ContactID)

	result := condition.EvaluateAll(config.Predicates, config.Combinator, contact, execution.Variables)
	label := strconv.FormatBool(result)

	outcome := stepOutcome{variables: map[string]any{"conditionResult": result}}

	for _, edge := range flow.EdgesFrom(node.ID) {
		if edge.Label == label {
			outcome.nextNodeID = edge.Target

			break
		}
	}

	return outcome, nil
}

func (e *Engine) dispatchTag(ctx context.Context, node *models.FlowNode, execution *models.Execution) (stepOutcome, error) {
	config, err := node.TagConfig()
	if err != nil {
		return stepOutcome{}, err
	}

	for _, tag := range config.Tags {
		if node.Kind == models.NodeKindAddTag {
			err = e.contacts.AddTag(ctx, execution.ContactID, tag, execution.TeamID)
		} else {
			err = e.contacts.RemoveTag(ctx, execution.ContactID, tag, execution.TeamID)
		}

		if err != nil {
			return stepOutcome{}, fmt.Errorf("failed to update tag %q: %w", tag, err)
		}
	}

	return stepOutcome{}, nil
}

func (e *Engine) dispatchUpdateField(ctx context.Context, node *models.FlowNode, execution *models.Execution) (stepOutcome, error) {
	config, err := node.UpdateFieldConfig()
	if err != nil {
		return stepOutcome{}, err
	}

	contact := e.loadContact(ctx, execution.ContactID)
	value := template.Substitute(config.Value, contact, execution.Variables)

	if name, ok := strings.CutPrefix(config.Field, "custom_"); ok {
		err = e.contacts.UpdateCustomField(ctx, execution.ContactID, name, value)
	} else {
		err = e.contacts.UpdateField(ctx, execution.ContactID, config.Field, value)
	}

	if err != nil {
		return stepOutcome{}, fmt.Errorf("failed to update field %q: %w", config.Field, err)
	}

	return stepOutcome{}, nil
}

// dispatchHTTPRequest never fails the run. Transport errors are recorded in
// the variables as httpError with httpStatus 0 so downstream condition nodes
// can branch on them.
func (e *Engine) dispatchHTTPRequest(ctx context.Context, node *models.FlowNode, execution *models.Execution) (stepOutcome, error) {
	config, err := node.HTTPRequestConfig()
	if err != nil {
		return stepOutcome{}, err
	}

	contact := e.loadContact(ctx, execution.ContactID)

	url := template.Substitute(config.URL, contact, execution.Variables)

	var body io.Reader
	if config.Body != "" {
		body = strings.NewReader(template.Substitute(config.Body, contact, execution.Variables))
	}

	reqCtx, cancel := context.WithTimeout(ctx, config.Timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, config.Method, url, body)
	if err != nil {
		return stepOutcome{variables: map[string]any{
			"httpError":  err.Error(),
			"httpStatus": 0,
		}}, nil
	}

	for name, value := range config.Headers {
		req.Header.Set(name, value)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return stepOutcome{variables: map[string]any{
			"httpError":  err.Error(),
			"httpStatus": 0,
		}}, nil
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxHTTPResponseBytes))
	if err != nil {
		return stepOutcome{variables: map[string]any{
			"httpError":  err.Error(),
			"httpStatus": resp.StatusCode,
		}}, nil
	}

	var parsed any
	if json.Unmarshal(data, &parsed) != nil {
		parsed = string(data)
	}

	return stepOutcome{variables: map[string]any{
		"httpStatus":   resp.StatusCode,
		"httpResponse": parsed,
	}}, nil
}

// loadContact is best-effort for substitution and condition evaluation. Both
// tolerate a nil contact, so a lookup failure degrades to unresolved contact
// tokens instead of failing the step.
func (e *Engine) loadContact(ctx context.Context, contactID string) *models.Contact {
	if contactID == "" {
		return nil
	}

	contact, err := e.contacts.Contact(ctx, contactID)
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to load contact",
			"contact_id", contactID,
			"error", err)

		return nil
	}

	return contact
}
