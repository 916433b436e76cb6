// Package fanout broadcasts tenant events to live SSE and WebSocket channels
// and retains them in a bounded ring for audit flushing.
package fanout

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"leadbooking_backend/internal/events"
	"leadbooking_backend/platform/logger"
	"leadbooking_backend/platform/metrics"
)

// Channel is one live subscriber connection. Send must not block; an error
// means the channel is gone and it will be removed.
type Channel interface {
	ID() string
	Send(rec Record) error
	Close()
}

// Hub maps tenants to their live channels.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]map[string]Channel
	ring     *Ring
	log      *logger.Logger
	now      func() time.Time
}

func NewHub(ringSize int, log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{
		channels: make(map[string]map[string]Channel),
		ring:     NewRing(ringSize),
		log:      log,
		now:      time.Now,
	}
}

func (h *Hub) Ring() *Ring { return h.ring }

// Register adds ch to tenantID's channels.
func (h *Hub) Register(tenantID string, ch Channel) {
	h.mu.Lock()
	set, ok := h.channels[tenantID]
	if !ok {
		set = make(map[string]Channel)
		h.channels[tenantID] = set
	}
	set[ch.ID()] = ch
	n := h.countLocked()
	h.mu.Unlock()

	metrics.SetFanoutChannels(n)
}

// Unregister removes ch and closes it. Unknown channels are ignored.
func (h *Hub) Unregister(tenantID string, ch Channel) {
	h.mu.Lock()
	set := h.channels[tenantID]
	_, ok := set[ch.ID()]
	if ok {
		delete(set, ch.ID())
		if len(set) == 0 {
			delete(h.channels, tenantID)
		}
	}
	n := h.countLocked()
	h.mu.Unlock()

	if ok {
		ch.Close()
		metrics.SetFanoutChannels(n)
	}
}

// Count returns the number of live channels for tenantID.
func (h *Hub) Count(tenantID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[tenantID])
}

func (h *Hub) countLocked() int {
	n := 0
	for _, set := range h.channels {
		n += len(set)
	}
	return n
}

// Publish records the event and broadcasts it to every channel of the
// tenant. Channels whose send fails are unregistered.
func (h *Hub) Publish(tenantID, name string, payload any, occurredAt time.Time) Record {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Error("fanout marshal failed", "event", name, "error", err)
		data = json.RawMessage(`{}`)
	}
	if occurredAt.IsZero() {
		occurredAt = h.now()
	}
	rec := h.ring.Append(Record{TenantID: tenantID, Name: name, Payload: data, OccurredAt: occurredAt})

	h.mu.RLock()
	targets := make([]Channel, 0, len(h.channels[tenantID]))
	for _, ch := range h.channels[tenantID] {
		targets = append(targets, ch)
	}
	h.mu.RUnlock()

	for _, ch := range targets {
		if err := ch.Send(rec); err != nil {
			h.log.Debug("fanout channel dropped", "tenant_id", tenantID, "channel", ch.ID(), "error", err)
			h.Unregister(tenantID, ch)
		}
	}
	return rec
}

// Subscribe forwards every fanned-out domain event from bus into the hub.
// On a bus that supports it the hub is fed inline, so one lead's
// transitions reach the ring in the order they were published.
func (h *Hub) Subscribe(bus events.Bus) {
	handler := events.HandlerFunc(func(_ context.Context, e events.Event) error {
		te, ok := e.(events.TenantEvent)
		if !ok {
			return nil
		}
		h.Publish(te.Tenant(), e.EventName(), e, e.OccurredAt())
		return nil
	})
	subscribe := bus.Subscribe
	if ob, ok := bus.(events.OrderedSubscriber); ok {
		subscribe = ob.SubscribeOrdered
	}
	for _, name := range events.FanoutEventNames {
		subscribe(name, handler)
	}
}

// Close closes every channel.
func (h *Hub) Close() {
	h.mu.Lock()
	all := h.channels
	h.channels = make(map[string]map[string]Channel)
	h.mu.Unlock()

	for _, set := range all {
		for _, ch := range set {
			ch.Close()
		}
	}
	metrics.SetFanoutChannels(0)
}
