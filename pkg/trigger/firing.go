package trigger

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/reachcrm/flowd/pkg/models"
)

// Starter starts a new execution for a matched flow. *engine.Engine
// satisfies it.
type Starter interface {
	Start(ctx context.Context, flowID, contactID string, payload map[string]any, conversationID string) (*models.Execution, error)
}

// Firing matches incoming events against the registry and starts executions
// for every flow whose trigger conditions hold.
type Firing struct {
	registry *Registry
	starter  Starter
	logger   *slog.Logger
}

func NewFiring(registry *Registry, starter Starter, logger *slog.Logger) *Firing {
	return &Firing{
		registry: registry,
		starter:  starter,
		logger:   logger.With("module", "trigger_firing"),
	}
}

// Fire evaluates every registration for triggerType against the event and
// starts one execution per match. A failure starting one flow is logged and
// does not prevent other matching flows from starting. The successfully
// started executions are returned.
func (f *Firing) Fire(ctx context.Context, triggerType models.TriggerType, event map[string]any) []*models.Execution {
	registrations := f.registry.Registrations(triggerType)

	sort.Slice(registrations, func(i, j int) bool {
		return registrations[i].FlowID < registrations[j].FlowID
	})

	eventTeamID := stringField(event, "teamId")
	contactID := stringField(event, "contactId")
	conversationID := stringField(event, "conversationId")

	started := make([]*models.Execution, 0)

	for _, reg := range registrations {
		// Cross-tenant triggers must never fire.
		if eventTeamID != "" && eventTeamID != reg.TeamID {
			continue
		}

		if !matches(reg, event) {
			continue
		}

		execution, err := f.starter.Start(ctx, reg.FlowID, contactID, event, conversationID)
		if err != nil {
			f.logger.ErrorContext(ctx, "Failed to start flow for trigger",
				"flow_id", reg.FlowID,
				"trigger_type", triggerType,
				"error", err)

			continue
		}

		started = append(started, execution)
	}

	return started
}

func matches(reg Registration, event map[string]any) bool {
	switch reg.Type {
	case models.TriggerKeywordMatch:
		return matchesKeyword(reg.Config, event)
	case models.TriggerTagAdded, models.TriggerTagRemoved:
		return matchesTag(reg.Config, event)
	case models.TriggerMessageReceived:
		return matchesMessage(reg.Config, event)
	default:
		return true
	}
}

func matchesKeyword(config, event map[string]any) bool {
	keywords := stringList(config, "keywords")
	if len(keywords) == 0 {
		return true
	}

	message := strings.ToLower(stringField(event, "message"))

	matchType := stringField(config, "matchType")
	if matchType == "" {
		matchType = "contains"
	}

	for _, keyword := range keywords {
		keyword = strings.ToLower(keyword)

		var ok bool

		switch matchType {
		case "exact":
			ok = message == keyword
		case "starts_with":
			ok = strings.HasPrefix(message, keyword)
		case "ends_with":
			ok = strings.HasSuffix(message, keyword)
		default:
			ok = strings.Contains(message, keyword)
		}

		if ok {
			return true
		}
	}

	return false
}

func matchesTag(config, event map[string]any) bool {
	tags := stringList(config, "tags")
	if len(tags) == 0 {
		return true
	}

	tagName := stringField(event, "tagName")

	for _, tag := range tags {
		if tag == tagName {
			return true
		}
	}

	return false
}

func matchesMessage(config, event map[string]any) bool {
	messageTypes := stringList(config, "messageTypes")
	if len(messageTypes) > 0 {
		messageType := stringField(event, "messageType")

		found := false

		for _, mt := range messageTypes {
			if mt == messageType {
				found = true

				break
			}
		}

		if !found {
			return false
		}
	}

	if accountID := stringField(config, "accountId"); accountID != "" {
		if accountID != stringField(event, "accountId") {
			return false
		}
	}

	return true
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}

	if value, ok := m[key].(string); ok {
		return value
	}

	return ""
}

func stringList(m map[string]any, key string) []string {
	if m == nil {
		return nil
	}

	switch value := m[key].(type) {
	case []string:
		return value
	case []any:
		result := make([]string, 0, len(value))

		for _, item := range value {
			if s, ok := item.(string); ok {
				result = append(result, s)
			}
		}

		return result
	default:
		return nil
	}
}
