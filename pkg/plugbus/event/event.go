package event

import (
	"maps"
	"time"
)

// Event is a published message. Events are immutable by convention:
// the bus never mutates one after construction, and every handler
// receives its own copy of Data so one handler's writes are invisible
// to the next.
type Event struct {
	// Topic is the concrete hierarchical subject, e.g. "orders/created".
	Topic string

	// SenderID identifies the publishing module.
	SenderID string

	// Data is the payload.
	Data map[string]any

	// Timestamp records when the event was published.
	Timestamp time.Time
}

// NewEvent constructs an event stamped with the current time.
func NewEvent(topic string, data map[string]any, senderID string) Event {
	return Event{
		Topic:     topic,
		SenderID:  senderID,
		Data:      data,
		Timestamp: time.Now(),
	}
}

// withClonedData returns a copy of the event carrying its own shallow
// clone of Data. Each handler invocation gets one.
func (e Event) withClonedData() Event {
	e.Data = maps.Clone(e.Data)
	return e
}

// Handler consumes a delivered event.
type Handler func(Event)

// RequestHandler answers a request for an exact topic. A returned error
// is reported to the requester as "no response".
type RequestHandler func(Event) (map[string]any, error)
