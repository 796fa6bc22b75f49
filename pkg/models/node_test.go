package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitConfig_Delay(t *testing.T) {
	tests := []struct {
		name     string
		duration float64
		unit     string
		want     time.Duration
	}{
		{"two minutes", 2, "minutes", 2 * time.Minute},
		{"thirty seconds", 30, "seconds", 30 * time.Second},
		{"one hour", 1, "hours", time.Hour},
		{"three days", 3, "days", 72 * time.Hour},
		{"defaults to seconds", 5, "", 5 * time.Second},
		{"fractional", 1.5, "minutes", 90 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := WaitConfig{Duration: tt.duration, Unit: tt.unit}
			assert.Equal(t, tt.want, config.Delay())
		})
	}
}

func TestWaitConfig_DelayMilliseconds(t *testing.T) {
	config := WaitConfig{Duration: 2, Unit: "minutes"}
	assert.Equal(t, int64(120000), config.Delay().Milliseconds())
}

func TestFlowNode_ConditionConfig_DefaultCombinator(t *testing.T) {
	node := &FlowNode{
		ID:   "c1",
		Kind: NodeKindCondition,
		Config: map[string]any{
			"predicates": []any{
				map[string]any{"field": "contact.engagement_score", "operator": "greater_than", "value": "50"},
			},
		},
	}

	config, err := node.ConditionConfig()
	require.NoError(t, err)
	assert.Equal(t, "AND", config.Combinator)
	require.Len(t, config.Predicates, 1)
	assert.Equal(t, "greater_than", config.Predicates[0].Operator)
}

func TestFlowNode_HTTPRequestConfig_Defaults(t *testing.T) {
	node := &FlowNode{
		ID:     "h1",
		Kind:   NodeKindHTTPRequest,
		Config: map[string]any{"url": "https://example.com/hook", "method": "post"},
	}

	config, err := node.HTTPRequestConfig()
	require.NoError(t, err)
	assert.Equal(t, "POST", config.Method)
	assert.Equal(t, 30*time.Second, config.Timeout())
}

func TestFlowNode_SendMessageConfig(t *testing.T) {
	node := &FlowNode{
		ID:   "m1",
		Kind: NodeKindSendMessage,
		Config: map[string]any{
			"account_id": "acc-1",
			"message":    "Hi {{contact.firstName}}",
			"media_url":  "https://cdn.example.com/img.png",
		},
	}

	config, err := node.SendMessageConfig()
	require.NoError(t, err)
	assert.Equal(t, "acc-1", config.AccountID)
	assert.Equal(t, "Hi {{contact.firstName}}", config.Message)
	assert.Equal(t, "https://cdn.example.com/img.png", config.MediaURL)
}

func TestValidateNodeConfig(t *testing.T) {
	tests := []struct {
		name    string
		kind    NodeKind
		config  map[string]any
		wantErr bool
	}{
		{"valid wait", NodeKindWait, map[string]any{"duration": 2, "unit": "minutes"}, false},
		{"wait missing duration", NodeKindWait, map[string]any{"unit": "minutes"}, true},
		{"wait bad unit", NodeKindWait, map[string]any{"duration": 2, "unit": "fortnights"}, true},
		{"valid send_message", NodeKindSendMessage, map[string]any{"message": "hi"}, false},
		{"send_message empty message", NodeKindSendMessage, map[string]any{"message": ""}, true},
		{"valid http_request", NodeKindHTTPRequest, map[string]any{"url": "https://x.test"}, false},
		{"http_request missing url", NodeKindHTTPRequest, map[string]any{"method": "GET"}, true},
		{"valid add_tag", NodeKindAddTag, map[string]any{"tags": []any{"vip"}}, false},
		{"add_tag wrong type", NodeKindAddTag, map[string]any{"tags": "vip"}, true},
		{"trigger accepts anything", NodeKindTrigger, nil, false},
		{"end accepts anything", NodeKindEnd, map[string]any{"whatever": true}, false},
		{"unknown kind", NodeKind("teleport"), nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNodeConfig(tt.kind, tt.config)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
