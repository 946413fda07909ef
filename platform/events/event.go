// Package events carries the in-process event bus the routing modules use to
// talk to each other without importing one another. Domain event types live
// with their owning module; this package only defines the contract.
package events

import (
	"context"
	"time"
)

// Event is implemented by every domain event.
type Event interface {
	// EventName identifies the event type, e.g. "routing.proposal.applied".
	EventName() string
	OccurredAt() time.Time
}

// BaseEvent supplies the timestamp every event embeds.
type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// NewBaseEvent stamps a fresh event with the current time.
func NewBaseEvent() BaseEvent {
	return BaseEvent{Timestamp: time.Now()}
}

// Handler processes events of a specific type.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus publishes domain events to subscribed handlers.
type Bus interface {
	// Publish fans the event out asynchronously; the caller does not wait.
	Publish(ctx context.Context, event Event)

	// PublishSync runs every handler before returning, collecting errors.
	PublishSync(ctx context.Context, event Event) error

	// Subscribe registers a handler under the name the event reports from
	// EventName().
	Subscribe(eventName string, handler Handler)
}
