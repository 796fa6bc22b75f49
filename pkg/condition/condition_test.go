package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/reachcrm/flowd/pkg/models"
)

func scoredContact(score any) *models.Contact {
	return &models.Contact{
		ID:     "contact-1",
		Fields: map[string]any{"firstName": "Ana"},
		CustomFields: map[string]any{
			"engagement_score": score,
		},
	}
}

func TestEvaluate(t *testing.T) {
	contact := scoredContact(float64(80))
	variables := map[string]any{"plan": "pro", "count": 3}

	tests := []struct {
		name      string
		predicate models.Predicate
		want      bool
	}{
		{"equals true", models.Predicate{Field: "plan", Operator: "equals", Value: "pro"}, true},
		{"equals false", models.Predicate{Field: "plan", Operator: "equals", Value: "free"}, false},
		{"not_equals", models.Predicate{Field: "plan", Operator: "not_equals", Value: "free"}, true},
		{"contains", models.Predicate{Field: "contact.firstName", Operator: "contains", Value: "n"}, true},
		{"not_contains", models.Predicate{Field: "contact.firstName", Operator: "not_contains", Value: "z"}, true},
		{"starts_with", models.Predicate{Field: "contact.firstName", Operator: "starts_with", Value: "An"}, true},
		{"ends_with", models.Predicate{Field: "contact.firstName", Operator: "ends_with", Value: "na"}, true},
		{"greater_than true", models.Predicate{Field: "contact.engagement_score", Operator: "greater_than", Value: "50"}, true},
		{"greater_than false", models.Predicate{Field: "contact.engagement_score", Operator: "greater_than", Value: "90"}, false},
		{"less_than", models.Predicate{Field: "count", Operator: "less_than", Value: "5"}, true},
		{"greater_than_or_equal boundary", models.Predicate{Field: "contact.engagement_score", Operator: "greater_than_or_equal", Value: "80"}, true},
		{"less_than_or_equal boundary", models.Predicate{Field: "contact.engagement_score", Operator: "less_than_or_equal", Value: "80"}, true},
		{"numeric with non numeric side", models.Predicate{Field: "plan", Operator: "greater_than", Value: "1"}, false},
		{"is_empty on missing variable", models.Predicate{Field: "nothing", Operator: "is_empty"}, true},
		{"is_not_empty", models.Predicate{Field: "plan", Operator: "is_not_empty"}, true},
		{"unknown operator is false", models.Predicate{Field: "plan", Operator: "matches_regex", Value: ".*"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.predicate, contact, variables))
		})
	}
}

func TestEvaluateAll(t *testing.T) {
	contact := scoredContact(float64(80))

	high := models.Predicate{Field: "contact.engagement_score", Operator: "greater_than", Value: "50"}
	named := models.Predicate{Field: "contact.firstName", Operator: "equals", Value: "Ana"}
	wrong := models.Predicate{Field: "contact.firstName", Operator: "equals", Value: "Bob"}

	assert.True(t, EvaluateAll([]models.Predicate{high, named}, CombinatorAnd, contact, nil))
	assert.False(t, EvaluateAll([]models.Predicate{high, wrong}, CombinatorAnd, contact, nil))
	assert.True(t, EvaluateAll([]models.Predicate{wrong, high}, CombinatorOr, contact, nil))
	assert.False(t, EvaluateAll([]models.Predicate{wrong}, CombinatorOr, contact, nil))

	// Empty predicate list matches everything; combinator casing is lenient.
	assert.True(t, EvaluateAll(nil, CombinatorAnd, contact, nil))
	assert.True(t, EvaluateAll([]models.Predicate{high}, "or", contact, nil))
}

func TestEvaluate_IntegerScore(t *testing.T) {
	// Scores stored as ints compare the same as floats.
	contact := scoredContact(10)

	low := models.Predicate{Field: "contact.engagement_score", Operator: "greater_than", Value: "50"}
	assert.False(t, Evaluate(low, contact, nil))

	lte := models.Predicate{Field: "contact.engagement_score", Operator: "less_than_or_equal", Value: "10"}
	assert.True(t, Evaluate(lte, contact, nil))
}
