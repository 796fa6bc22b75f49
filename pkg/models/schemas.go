package models

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Per-kind JSON Schemas for node configuration maps. Validation happens when
// a flow is saved, so a malformed configuration never reaches the dispatcher.
var nodeConfigSchemas = map[NodeKind]string{
	NodeKindWait: `{
		"type": "object",
		"properties": {
			"duration": {"type": "number", "minimum": 0},
			"unit": {"type": "string", "enum": ["seconds", "minutes", "hours", "days"]}
		},
		"required": ["duration"]
	}`,
	NodeKindSendMessage: `{
		"type": "object",
		"properties": {
			"account_id": {"type": "string"},
			"message_type": {"type": "string"},
			"message": {"type": "string", "minLength": 1},
			"media_url": {"type": "string"}
		},
		"required": ["message"]
	}`,
	NodeKindCondition: `{
		"type": "object",
		"properties": {
			"predicates": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"field": {"type": "string", "minLength": 1},
						"operator": {"type": "string", "minLength": 1},
						"value": {"type": "string"}
					},
					"required": ["field", "operator"]
				}
			},
			"combinator": {"type": "string", "enum": ["AND", "OR"]}
		},
		"required": ["predicates"]
	}`,
	NodeKindAddTag: `{
		"type": "object",
		"properties": {
			"tags": {"type": "array", "items": {"type": "string", "minLength": 1}}
		},
		"required": ["tags"]
	}`,
	NodeKindRemoveTag: `{
		"type": "object",
		"properties": {
			"tags": {"type": "array", "items": {"type": "string", "minLength": 1}}
		},
		"required": ["tags"]
	}`,
	NodeKindUpdateField: `{
		"type": "object",
		"properties": {
			"field": {"type": "string", "minLength": 1},
			"value": {"type": "string"}
		},
		"required": ["field"]
	}`,
	NodeKindHTTPRequest: `{
		"type": "object",
		"properties": {
			"method": {"type": "string"},
			"url": {"type": "string", "minLength": 1},
			"headers": {"type": "object", "additionalProperties": {"type": "string"}},
			"body": {"type": "string"},
			"timeout_seconds": {"type": "integer", "minimum": 1}
		},
		"required": ["url"]
	}`,
}

// ValidateNodeConfig validates a node configuration map against the schema of
// its kind. Kinds without configuration (trigger, end, placeholders) accept
// anything; an unknown kind is rejected here rather than at execution time.
func ValidateNodeConfig(kind NodeKind, config map[string]any) error {
	if !kind.Known() {
		return fmt.Errorf("unknown node kind %q", kind)
	}

	schema, ok := nodeConfigSchemas[kind]
	if !ok {
		return nil
	}

	if config == nil {
		config = map[string]any{}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schema),
		gojsonschema.NewGoLoader(config),
	)
	if err != nil {
		return fmt.Errorf("failed to validate %s config: %w", kind, err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}

		return fmt.Errorf("invalid %s config: %s", kind, strings.Join(details, "; "))
	}

	return nil
}
