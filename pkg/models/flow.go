// Package models defines the core domain models for the automation flow engine.
package models

import (
	"errors"
	"fmt"
	"time"
)

// TriggerType classifies the external event that can start executions of a flow.
type TriggerType string

const (
	TriggerManual          TriggerType = "manual"
	TriggerMessageReceived TriggerType = "message_received"
	TriggerKeywordMatch    TriggerType = "keyword_match"
	TriggerTagAdded        TriggerType = "tag_added"
	TriggerTagRemoved      TriggerType = "tag_removed"
	TriggerScheduled       TriggerType = "scheduled"
)

var (
	ErrNoTriggerNode        = errors.New("flow has no trigger node")
	ErrMultipleTriggerNodes = errors.New("flow has more than one trigger node")
)

// Flow represents a versioned automation definition: a directed graph of typed
// nodes owned by one team, started by events of its trigger type.
type Flow struct {
	ID            string         `json:"id"`
	TeamID        string         `json:"team_id"       validate:"required"`
	Name          string         `json:"name"          validate:"required,min=3"`
	TriggerType   TriggerType    `json:"trigger_type"  validate:"required"`
	TriggerConfig map[string]any `json:"trigger_config,omitempty"`
	Nodes         []*FlowNode    `json:"nodes"`
	Edges         []*FlowEdge    `json:"edges"`
	Variables     map[string]any `json:"variables,omitempty"`
	Active        bool           `json:"active"`
	Version       int            `json:"version"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// FlowEdge is a directed connection between two nodes. Label selects the
// outgoing edge of a condition node ("true"/"false"); unlabeled otherwise.
type FlowEdge struct {
	Source string `json:"source" validate:"required"`
	Target string `json:"target" validate:"required"`
	Label  string `json:"label,omitempty"`
}

// TriggerNode returns the single entry node of the flow graph.
func (f *Flow) TriggerNode() (*FlowNode, error) {
	var found *FlowNode

	for _, node := range f.Nodes {
		if node.Kind == NodeKindTrigger {
			if found != nil {
				return nil, ErrMultipleTriggerNodes
			}

			found = node
		}
	}

	if found == nil {
		return nil, ErrNoTriggerNode
	}

	return found, nil
}

// NodeByID returns the node with the given id, or nil.
func (f *Flow) NodeByID(id string) *FlowNode {
	for _, node := range f.Nodes {
		if node.ID == id {
			return node
		}
	}

	return nil
}

// EdgesFrom returns all edges whose source is the given node, preserving the
// order in which they were authored.
func (f *Flow) EdgesFrom(nodeID string) []*FlowEdge {
	var edges []*FlowEdge

	for _, edge := range f.Edges {
		if edge.Source == nodeID {
			edges = append(edges, edge)
		}
	}

	return edges
}

// Validate checks the structural invariants of the flow graph: exactly one
// trigger node, every edge endpoint resolvable, every non-trigger node
// reachable from the trigger, and every node configuration well formed
// against its kind's schema. Malformed flows are rejected here, at save
// time, never at execution time.
func (f *Flow) Validate() error {
	trigger, err := f.TriggerNode()
	if err != nil {
		return err
	}

	seen := make(map[string]bool, len(f.Nodes))

	for _, node := range f.Nodes {
		if seen[node.ID] {
			return fmt.Errorf("duplicate node id %q", node.ID)
		}

		seen[node.ID] = true

		if err := ValidateNodeConfig(node.Kind, node.Config); err != nil {
			return fmt.Errorf("node %q: %w", node.ID, err)
		}
	}

	for _, edge := range f.Edges {
		if !seen[edge.Source] {
			return fmt.Errorf("edge source %q is not a node in the flow", edge.Source)
		}

		if !seen[edge.Target] {
			return fmt.Errorf("edge target %q is not a node in the flow", edge.Target)
		}
	}

	reachable := f.reachableFrom(trigger.ID)
	for _, node := range f.Nodes {
		if !reachable[node.ID] {
			return fmt.Errorf("node %q is not reachable from the trigger node", node.ID)
		}
	}

	return nil
}

func (f *Flow) reachableFrom(nodeID string) map[string]bool {
	reachable := map[string]bool{nodeID: true}
	stack := []string{nodeID}

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, edge := range f.EdgesFrom(current) {
			if !reachable[edge.Target] {
				reachable[edge.Target] = true
				stack = append(stack, edge.Target)
			}
		}
	}

	return reachable
}
