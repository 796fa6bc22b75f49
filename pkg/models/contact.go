package models

// Contact is the engine's read model of a CRM contact. Contact storage is an
// external collaborator; only the fields the engine substitutes and compares
// against are carried here.
type Contact struct {
	ID           string         `json:"id"`
	TeamID       string         `json:"team_id"`
	Fields       map[string]any `json:"fields,omitempty"`
	CustomFields map[string]any `json:"custom_fields,omitempty"`
}

// Field resolves a contact field by name, falling back to the custom-field
// container.
func (c *Contact) Field(name string) (any, bool) {
	if c == nil {
		return nil, false
	}

	if value, ok := c.Fields[name]; ok {
		return value, true
	}

	value, ok := c.CustomFields[name]

	return value, ok
}
