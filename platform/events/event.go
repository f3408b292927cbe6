// Package events carries the in-process event bus used for decoupled
// communication between modules. Domain event types live with the modules
// that publish them; this package only defines the contracts.
package events

import (
	"context"
	"time"
)

// Event is implemented by every domain event published on the bus.
type Event interface {
	// EventName identifies the event type; subscribers key on it.
	EventName() string
	// OccurredAt reports when the event happened.
	OccurredAt() time.Time
}

// BaseEvent carries the timestamp shared by all events. Embed it and
// implement EventName on the concrete type.
type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// NewBaseEvent stamps a base event with the current time.
func NewBaseEvent() BaseEvent {
	return BaseEvent{Timestamp: time.Now()}
}

// Handler consumes events of one registered type.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a plain function into a Handler.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus publishes domain events to subscribed handlers.
type Bus interface {
	// Publish fans the event out to its handlers without waiting on them.
	Publish(ctx context.Context, event Event)

	// PublishSync runs the handlers inline and returns the first failure.
	PublishSync(ctx context.Context, event Event) error

	// Subscribe registers a handler under an event name, matching the
	// value the event's EventName returns.
	Subscribe(eventName string, handler Handler)
}
