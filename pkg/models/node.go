// Package models defines core node models for flow graph execution.
package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// NodeKind represents the type of a flow step. Dispatch over node kinds is a
// single switch in the engine, so an unknown kind can only come from an
// unvalidated flow definition.
type NodeKind string

const (
	NodeKindTrigger     NodeKind = "trigger"
	NodeKindWait        NodeKind = "wait"
	NodeKindSendMessage NodeKind = "send_message"
	NodeKindCondition   NodeKind = "condition"
	NodeKindAddTag      NodeKind = "add_tag"
	NodeKindRemoveTag   NodeKind = "remove_tag"
	NodeKindUpdateField NodeKind = "update_field"
	NodeKindHTTPRequest NodeKind = "http_request"
	NodeKindAIChatbot   NodeKind = "ai_chatbot"
	NodeKindBranch      NodeKind = "branch"
	NodeKindJoin        NodeKind = "join"
	NodeKindEnd         NodeKind = "end"
)

// Known reports whether the kind is one the dispatcher understands.
func (k NodeKind) Known() bool {
	switch k {
	case NodeKindTrigger, NodeKindWait, NodeKindSendMessage, NodeKindCondition,
		NodeKindAddTag, NodeKindRemoveTag, NodeKindUpdateField, NodeKindHTTPRequest,
		NodeKindAIChatbot, NodeKindBranch, NodeKindJoin, NodeKindEnd:
		return true
	}

	return false
}

// FlowNode represents one typed step in a flow. Nodes are immutable once the
// flow is saved; editing the graph bumps the flow version.
type FlowNode struct {
	ID     string         `json:"id"   validate:"required"`
	Kind   NodeKind       `json:"kind" validate:"required"`
	Name   string         `json:"name,omitempty"`
	Config map[string]any `json:"config,omitempty"`
}

// decodeConfig round-trips the loosely-typed configuration map through JSON
// into a typed struct, so every node kind reads exactly one shape.
func decodeConfig(config map[string]any, out any) error {
	data, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal node config: %w", err)
	}

	err = json.Unmarshal(data, out)
	if err != nil {
		return fmt.Errorf("failed to decode node config: %w", err)
	}

	return nil
}

// WaitConfig configures a wait node.
type WaitConfig struct {
	Duration float64 `json:"duration"`
	Unit     string  `json:"unit"` // seconds, minutes, hours, days
}

// Delay converts the configured duration and unit to a time.Duration.
func (c WaitConfig) Delay() time.Duration {
	var unit time.Duration

	switch strings.ToLower(c.Unit) {
	case "minutes":
		unit = time.Minute
	case "hours":
		unit = time.Hour
	case "days":
		unit = 24 * time.Hour
	default:
		unit = time.Second
	}

	return time.Duration(c.Duration * float64(unit))
}

// SendMessageConfig configures a send_message node. Message and MediaURL are
// templates substituted against the execution's variables before sending.
type SendMessageConfig struct {
	AccountID   string `json:"account_id"`
	MessageType string `json:"message_type"`
	Message     string `json:"message"`
	MediaURL    string `json:"media_url,omitempty"`
}

// Predicate is one comparison inside a condition node.
type Predicate struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

// ConditionConfig configures a condition node.
type ConditionConfig struct {
	Predicates []Predicate `json:"predicates"`
	Combinator string      `json:"combinator,omitempty"` // AND (default) or OR
}

// TagConfig configures add_tag and remove_tag nodes.
type TagConfig struct {
	Tags []string `json:"tags"`
}

// UpdateFieldConfig configures an update_field node. Field names prefixed
// "custom_" route to the contact's custom-field container.
type UpdateFieldConfig struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// HTTPRequestConfig configures an http_request node.
type HTTPRequestConfig struct {
	Method         string            `json:"method,omitempty"`
	URL            string            `json:"url"`
	Headers        map[string]string `json:"headers,omitempty"`
	Body           string            `json:"body,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty"`
}

// Timeout returns the bounded wait for the request, defaulting to 30s.
func (c HTTPRequestConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}

	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (n *FlowNode) WaitConfig() (WaitConfig, error) {
	var config WaitConfig

	err := decodeConfig(n.Config, &config)

	return config, err
}

func (n *FlowNode) SendMessageConfig() (SendMessageConfig, error) {
	var config SendMessageConfig

	err := decodeConfig(n.Config, &config)

	return config, err
}

func (n *FlowNode) ConditionConfig() (ConditionConfig, error) {
	var config ConditionConfig

	err := decodeConfig(n.Config, &config)

	if config.Combinator == "" {
		config.Combinator = "AND"
	}

	return config, err
}

func (n *FlowNode) TagConfig() (TagConfig, error) {
	var config TagConfig

	err := decodeConfig(n.Config, &config)

	return config, err
}

func (n *FlowNode) UpdateFieldConfig() (UpdateFieldConfig, error) {
	var config UpdateFieldConfig

	err := decodeConfig(n.Config, &config)

	return config, err
}

func (n *FlowNode) HTTPRequestConfig() (HTTPRequestConfig, error) {
	var config HTTPRequestConfig

	err := decodeConfig(n.Config, &config)

	if config.Method == "" {
		config.Method = "GET"
	} else {
		config.Method = strings.ToUpper(config.Method)
	}

	return config, err
}
