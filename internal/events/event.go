// Package events defines the inbound event shape and the publisher surface
// used to forward events to the message topic.
package events

import (
	"context"
	"encoding/json"

	"github.com/jfaulkner/crm-bridge/internal/uow"
)

// Event is a platform event accepted on the ingestion endpoint and forwarded
// downstream as-is.
type Event struct {
	Type    string          `json:"eventType"`
	Source  string          `json:"source,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// Validate checks the required event fields.
func (e Event) Validate() error {
	if e.Type == "" {
		return &uow.ValidationError{Field: "eventType", Reason: "must not be empty"}
	}
	if len(e.Payload) == 0 {
		return &uow.ValidationError{Field: "payload", Reason: "must not be empty"}
	}
	if !json.Valid(e.Payload) {
		return &uow.ValidationError{Field: "payload", Reason: "must be valid JSON"}
	}
	return nil
}

// Publisher forwards events to the configured topic and returns the
// broker-assigned message id.
type Publisher interface {
	Publish(ctx context.Context, event Event) (string, error)
}
