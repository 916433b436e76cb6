// Package events is the in-process event plumbing shared by the lead
// booking modules. Domain event types live in internal/events.
package events

import (
	"context"
	"time"
)

// Event is anything published on a Bus.
type Event interface {
	EventName() string
	OccurredAt() time.Time
}

// BaseEvent carries the time the transition happened.
type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }

// NewBaseEvent stamps the event with the wall clock.
func NewBaseEvent() BaseEvent {
	return NewBaseEventAt(time.Now())
}

// NewBaseEventAt stamps the event with at, normally the caller's injected
// clock. A zero at falls back to the wall clock.
func NewBaseEventAt(at time.Time) BaseEvent {
	if at.IsZero() {
		at = time.Now()
	}
	return BaseEvent{Timestamp: at}
}

type Handler interface {
	Handle(ctx context.Context, event Event) error
}

type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus publishes events to subscribers by event name.
type Bus interface {
	// Publish does not wait for handlers and never fails the caller.
	Publish(ctx context.Context, event Event)
	// PublishSync runs every handler before returning.
	PublishSync(ctx context.Context, event Event) error
	Subscribe(eventName string, handler Handler)
}

// OrderedSubscriber is implemented by buses that can run a handler inline
// with Publish, so it observes events in the order each publisher raised
// them. Ordered handlers must not block.
type OrderedSubscriber interface {
	SubscribeOrdered(eventName string, handler Handler)
}
