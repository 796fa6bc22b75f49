// Package condition evaluates the comparison predicates of condition nodes.
package condition

import (
	"strconv"
	"strings"

	"github.com/reachcrm/flowd/pkg/models"
	"github.com/reachcrm/flowd/pkg/template"
)

// Combinators for predicate lists.
const (
	CombinatorAnd = "AND"
	CombinatorOr  = "OR"
)

const contactPrefix = "contact."

// Evaluate evaluates one predicate against the contact and variable map.
// Field references of the form "contact.X" resolve against the contact;
// anything else is a variable name. An operator outside the supported set
// evaluates to false rather than erroring, so a typo in an authored flow
// routes down the "false" edge instead of failing the run.
func Evaluate(predicate models.Predicate, contact *models.Contact, variables map[string]any) bool {
	actual := resolveField(predicate.Field, contact, variables)
	left := template.Stringify(actual)
	right := predicate.Value

	switch predicate.Operator {
	case "equals":
		return left == right
	case "not_equals":
		return left != right
	case "contains":
		return strings.Contains(left, right)
	case "not_contains":
		return !strings.Contains(left, right)
	case "starts_with":
		return strings.HasPrefix(left, right)
	case "ends_with":
		return strings.HasSuffix(left, right)
	case "greater_than":
		l, r, ok := numeric(left, right)
		return ok && l > r
	case "less_than":
		l, r, ok := numeric(left, right)
		return ok && l < r
	case "greater_than_or_equal":
		l, r, ok := numeric(left, right)
		return ok && l >= r
	case "less_than_or_equal":
		l, r, ok := numeric(left, right)
		return ok && l <= r
	case "is_empty":
		return left == ""
	case "is_not_empty":
		return left != ""
	default:
		return false
	}
}

// EvaluateAll combines a predicate list with AND (default) or OR. An empty
// predicate list evaluates to true.
func EvaluateAll(predicates []models.Predicate, combinator string, contact *models.Contact, variables map[string]any) bool {
	if len(predicates) == 0 {
		return true
	}

	if strings.EqualFold(combinator, CombinatorOr) {
		for _, predicate := range predicates {
			if Evaluate(predicate, contact, variables) {
				return true
			}
		}

		return false
	}

	for _, predicate := range predicates {
		if !Evaluate(predicate, contact, variables) {
			return false
		}
	}

	return true
}

func resolveField(field string, contact *models.Contact, variables map[string]any) any {
	if name, isContact := strings.CutPrefix(field, contactPrefix); isContact {
		value, _ := contact.Field(name)

		return value
	}

	return variables[field]
}

// numeric coerces both sides to float64; comparison fails closed when either
// side is not a number.
func numeric(left, right string) (float64, float64, bool) {
	l, err := strconv.ParseFloat(strings.TrimSpace(left), 64)
	if err != nil {
		return 0, 0, false
	}

	r, err := strconv.ParseFloat(strings.TrimSpace(right), 64)
	if err != nil {
		return 0, 0, false
	}

	return l, r, true
}
