// Package protocol defines the collaborator contracts the flow engine
// consumes. The engine depends only on these narrow interfaces; the
// surrounding CRM wires its messaging, contact and storage services in
// through constructors.
package protocol

import (
	"context"

	"github.com/reachcrm/flowd/pkg/models"
)

// Messenger dispatches outbound messages through the messaging subsystem.
type Messenger interface {
	// Send delivers a message to a contact and returns the provider message id.
	Send(ctx context.Context, accountID, contactID, messageType, content, mediaURL string) (string, error)
}

// ContactStore reads and mutates contacts and their tags.
type ContactStore interface {
	Contact(ctx context.Context, contactID string) (*models.Contact, error)
	AddTag(ctx context.Context, contactID, tag, teamID string) error
	RemoveTag(ctx context.Context, contactID, tag, teamID string) error
	UpdateField(ctx context.Context, contactID, field string, value any) error
	UpdateCustomField(ctx context.Context, contactID, field string, value any) error
}
