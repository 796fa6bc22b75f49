package template

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/reachcrm/flowd/pkg/models"
)

func testContact() *models.Contact {
	return &models.Contact{
		ID:     "contact-1",
		TeamID: "team-1",
		Fields: map[string]any{
			"firstName": "Ana",
			"email":     "ana@example.com",
		},
		CustomFields: map[string]any{
			"plan": "pro",
		},
	}
}

func TestSubstitute(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		variables map[string]any
		want      string
	}{
		{
			name:      "contact field and variable",
			input:     "Hi {{contact.firstName}}, score {{score}}",
			variables: map[string]any{"score": 7},
			want:      "Hi Ana, score 7",
		},
		{
			name:  "unresolved token stays literal",
			input: "Hi {{missing}}",
			want:  "Hi {{missing}}",
		},
		{
			name:  "unresolved contact field stays literal",
			input: "Hi {{contact.nickname}}",
			want:  "Hi {{contact.nickname}}",
		},
		{
			name:  "custom field fallback",
			input: "Plan: {{contact.plan}}",
			want:  "Plan: pro",
		},
		{
			name:      "json decoded float prints as integer",
			input:     "score {{score}}",
			variables: map[string]any{"score": float64(42)},
			want:      "score 42",
		},
		{
			name:      "substituted value is not rescanned",
			input:     "{{wrapped}}",
			variables: map[string]any{"wrapped": "{{contact.firstName}}"},
			want:      "{{contact.firstName}}",
		},
		{
			name:  "no tokens",
			input: "plain text",
			want:  "plain text",
		},
		{
			name:  "unterminated token",
			input: "Hi {{contact.firstName",
			want:  "Hi {{contact.firstName",
		},
		{
			name:      "token with surrounding whitespace",
			input:     "Hi {{ contact.firstName }}",
			variables: nil,
			want:      "Hi Ana",
		},
		{
			name:      "multiple tokens",
			input:     "{{contact.firstName}} <{{contact.email}}> score={{score}}",
			variables: map[string]any{"score": 1.5},
			want:      "Ana <ana@example.com> score=1.5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Substitute(tt.input, testContact(), tt.variables)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSubstitute_NilContact(t *testing.T) {
	got := Substitute("Hi {{contact.firstName}}, {{greeting}}", nil,
		map[string]any{"greeting": "welcome"})
	assert.Equal(t, "Hi {{contact.firstName}}, welcome", got)
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "", Stringify(nil))
	assert.Equal(t, "text", Stringify("text"))
	assert.Equal(t, "true", Stringify(true))
	assert.Equal(t, "3.25", Stringify(3.25))
	assert.Equal(t, "7", Stringify(float64(7)))
	assert.Equal(t, `{"a":1}`, Stringify(map[string]any{"a": 1}))
}
