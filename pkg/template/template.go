// Package template provides variable substitution for message texts and node
// configuration values.
//
// Substitution is a single, non-recursive pass over the input: values spliced
// in are never re-scanned, so a variable containing "{{...}}" cannot trigger
// double substitution. Two token classes are supported: {{contact.FIELD}}
// resolves against the contact (direct field, then custom field), {{NAME}}
// resolves against the execution's variables. Unresolved tokens stay in the
// output verbatim.
package template

import (
	"strconv"
	"strings"

	"github.com/reachcrm/flowd/pkg/models"
)

const contactPrefix = "contact."

// Substitute renders the template against the contact and variable map.
func Substitute(text string, contact *models.Contact, variables map[string]any) string {
	var out strings.Builder

	rest := text

	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			out.WriteString(rest)

			break
		}

		end := strings.Index(rest[start:], "}}")
		if end < 0 {
			out.WriteString(rest)

			break
		}

		end += start

		out.WriteString(rest[:start])

		token := rest[start : end+2]
		name := strings.TrimSpace(rest[start+2 : end])

		value, ok := resolve(name, contact, variables)
		if ok {
			out.WriteString(value)
		} else {
			out.WriteString(token)
		}

		rest = rest[end+2:]
	}

	return out.String()
}

func resolve(name string, contact *models.Contact, variables map[string]any) (string, bool) {
	if field, isContact := strings.CutPrefix(name, contactPrefix); isContact {
		value, ok := contact.Field(field)
		if !ok {
			return "", false
		}

		return Stringify(value), true
	}

	value, ok := variables[name]
	if !ok {
		return "", false
	}

	return Stringify(value), true
}

// Stringify renders a variable value the way it should appear in message
// text. JSON-decoded numbers arrive as float64, so integral floats must not
// grow a decimal point.
func Stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return stringifyFallback(value)
	}
}
