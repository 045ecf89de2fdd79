// Package memory provides an in-process events.Publisher for development and
// tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/jfaulkner/crm-bridge/internal/events"
)

// Publisher records published events in memory.
type Publisher struct {
	mu     sync.Mutex
	events []events.Event
}

// New creates an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish stores the event and returns a synthetic message id.
func (p *Publisher) Publish(_ context.Context, event events.Event) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return fmt.Sprintf("mem-%d", len(p.events)), nil
}

// Events returns a copy of everything published so far.
func (p *Publisher) Events() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Event, len(p.events))
	copy(out, p.events)
	return out
}
