package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type pingEvent struct {
	BaseEvent
}

func (pingEvent) EventName() string { return "test.ping" }

func TestInMemoryBusPublishSyncJoinsErrors(t *testing.T) {
	bus := NewInMemoryBus(nil)
	var calls int32
	bus.Subscribe("test.ping", HandlerFunc(func(context.Context, Event) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("boom")
	}))
	bus.Subscribe("test.ping", HandlerFunc(func(context.Context, Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}))

	err := bus.PublishSync(context.Background(), pingEvent{BaseEvent: NewBaseEvent()})
	if err == nil {
		t.Fatal("expected joined handler error")
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected both handlers to run, got %d", got)
	}
}

func TestInMemoryBusPublishRecoversPanics(t *testing.T) {
	bus := NewInMemoryBus(nil)
	done := make(chan struct{})
	bus.Subscribe("test.ping", HandlerFunc(func(context.Context, Event) error {
		panic("handler exploded")
	}))
	bus.Subscribe("test.ping", HandlerFunc(func(context.Context, Event) error {
		close(done)
		return nil
	}))

	bus.Publish(context.Background(), pingEvent{BaseEvent: NewBaseEvent()})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second handler did not run")
	}
	bus.Wait()
}

func TestInMemoryBusOrderedHandlerRunsBeforePublishReturns(t *testing.T) {
	bus := NewInMemoryBus(nil)
	var seen []int
	bus.SubscribeOrdered("test.ping", HandlerFunc(func(_ context.Context, e Event) error {
		seen = append(seen, e.OccurredAt().Second())
		return nil
	}))

	base := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		bus.Publish(context.Background(), pingEvent{BaseEvent: NewBaseEventAt(base.Add(time.Duration(i) * time.Second))})
	}

	if len(seen) != 5 {
		t.Fatalf("expected 5 inline deliveries, got %d", len(seen))
	}
	for i, s := range seen {
		if s != i {
			t.Fatalf("expected publish order, got %v", seen)
		}
	}
}

func TestNewBaseEventAtUsesCallerClock(t *testing.T) {
	at := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	if got := NewBaseEventAt(at).OccurredAt(); !got.Equal(at) {
		t.Fatalf("expected %s, got %s", at, got)
	}
	if NewBaseEventAt(time.Time{}).OccurredAt().IsZero() {
		t.Fatal("zero time must fall back to the wall clock")
	}
}
