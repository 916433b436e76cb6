// Package eventstest provides a synchronous recording bus for tests.
package eventstest

import (
	"context"
	"sync"

	"leadbooking_backend/internal/events"
)

// Recorder is an events.Bus that keeps every published event in order.
type Recorder struct {
	mu     sync.Mutex
	events []events.Event
}

var _ events.Bus = (*Recorder)(nil)

func (r *Recorder) Publish(_ context.Context, e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *Recorder) PublishSync(ctx context.Context, e events.Event) error {
	r.Publish(ctx, e)
	return nil
}

func (r *Recorder) Subscribe(string, events.Handler) {}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

// States returns the State of every recorded LeadStateChanged event.
func (r *Recorder) States() []string {
	var out []string
	for _, e := range r.Events() {
		if sc, ok := e.(events.LeadStateChanged); ok {
			out = append(out, sc.State)
		}
	}
	return out
}

// Has reports whether an event with the given name was published.
func (r *Recorder) Has(name string) bool {
	for _, e := range r.Events() {
		if e.EventName() == name {
			return true
		}
	}
	return false
}
