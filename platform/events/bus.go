package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"leadbooking_backend/platform/logger"
)

// InMemoryBus dispatches events to handlers registered in this process.
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	ordered  map[string][]Handler
	log      *logger.Logger
	wg       sync.WaitGroup
}

var _ OrderedSubscriber = (*InMemoryBus)(nil)

// NewInMemoryBus creates an empty bus.
func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	if log == nil {
		log = logger.Nop()
	}
	return &InMemoryBus{
		handlers: make(map[string][]Handler),
		ordered:  make(map[string][]Handler),
		log:      log,
	}
}

// Subscribe registers a handler for a specific event type.
func (b *InMemoryBus) Subscribe(eventName string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventName] = append(b.handlers[eventName], handler)
}

// SubscribeOrdered registers a handler that Publish runs on the caller's
// goroutine before returning.
func (b *InMemoryBus) SubscribeOrdered(eventName string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ordered[eventName] = append(b.ordered[eventName], handler)
}

// Publish runs ordered handlers inline, then every other handler in its own
// goroutine. Handler errors and panics are logged, never propagated.
func (b *InMemoryBus) Publish(ctx context.Context, event Event) {
	ctx = context.WithoutCancel(ctx)
	ordered, async := b.snapshot(event.EventName())
	for _, h := range ordered {
		if err := b.invoke(ctx, h, event); err != nil {
			b.logFailure(event, err)
		}
	}
	for _, h := range async {
		b.wg.Add(1)
		go func(h Handler) {
			defer b.wg.Done()
			if err := b.invoke(ctx, h, event); err != nil {
				b.logFailure(event, err)
			}
		}(h)
	}
}

// PublishSync runs handlers sequentially and joins their errors.
func (b *InMemoryBus) PublishSync(ctx context.Context, event Event) error {
	var errs []error
	ordered, async := b.snapshot(event.EventName())
	for _, h := range append(ordered, async...) {
		if err := b.invoke(ctx, h, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Wait blocks until in-flight asynchronous handlers have returned.
func (b *InMemoryBus) Wait() {
	b.wg.Wait()
}

func (b *InMemoryBus) snapshot(name string) (ordered, async []Handler) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ordered = append([]Handler(nil), b.ordered[name]...)
	async = append([]Handler(nil), b.handlers[name]...)
	return ordered, async
}

func (b *InMemoryBus) logFailure(event Event, err error) {
	b.log.Error("event handler failed",
		slog.String("event", event.EventName()),
		slog.String("error", err.Error()),
	)
}

func (b *InMemoryBus) invoke(ctx context.Context, h Handler, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Handle(ctx, event)
}
