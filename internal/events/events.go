// Package events publishes domain events after the ledger commits.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type names a domain event.
type Type string

const (
	BetPlaced      Type = "bet.placed"
	MarketClosed   Type = "market.closed"
	MarketResolved Type = "market.resolved"
)

// Event is the envelope written to the bus.
type Event struct {
	ID         uuid.UUID `json:"id"`
	Type       Type      `json:"type"`
	MarketID   uuid.UUID `json:"market_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data,omitempty"`
}

// New builds an event with a fresh id.
func New(t Type, marketID uuid.UUID, at time.Time, data any) Event {
	return Event{
		ID:         uuid.New(),
		Type:       t,
		MarketID:   marketID,
		OccurredAt: at.UTC(),
		Data:       data,
	}
}

// Encode marshals the event envelope.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Publisher delivers events to downstream consumers. Implementations must be
// safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// NopPublisher drops every event. Used when no bus is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// MemoryPublisher keeps published events in memory.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (m *MemoryPublisher) Publish(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

// Events returns a copy of everything published so far.
func (m *MemoryPublisher) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// OfType returns the published events of one type, in order.
func (m *MemoryPublisher) OfType(t Type) []Event {
	var out []Event
	for _, e := range m.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
