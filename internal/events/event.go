// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"leadbooking_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event             = events.Event
	Bus               = events.Bus
	Handler           = events.Handler
	HandlerFunc       = events.HandlerFunc
	BaseEvent         = events.BaseEvent
	OrderedSubscriber = events.OrderedSubscriber
)

// Re-export platform functions
var (
	NewBaseEvent   = events.NewBaseEvent
	NewBaseEventAt = events.NewBaseEventAt
)

// TenantEvent is implemented by events that are fanned out to a tenant's
// live channels.
type TenantEvent interface {
	Event
	Tenant() string
}

// Dispatcher states published on every outreach transition.
const (
	StateNew             = "NEW"
	StateCallAttempted   = "CALL_ATTEMPTED"
	StateCallSucceeded   = "CALL_SUCCEEDED"
	StateCallFailed      = "CALL_FAILED"
	StateSMSFallbackSent = "SMS_FALLBACK_SENT"
	StateAwaitingReply   = "AWAITING_REPLY"
	StateSlotChosen      = "SLOT_CHOSEN"
	StateOptedOut        = "OPTED_OUT"
	StateExpired         = "EXPIRED"
)

// =============================================================================
// Outreach Domain Events
// =============================================================================

// LeadStateChanged is published on every outreach state machine transition.
type LeadStateChanged struct {
	BaseEvent
	TenantID string    `json:"tenantId"`
	LeadID   uuid.UUID `json:"leadId"`
	State    string    `json:"state"`
	Attempt  int       `json:"attempt,omitempty"`
	Detail   string    `json:"detail,omitempty"`
}

func (e LeadStateChanged) EventName() string { return "outreach.lead.state_changed" }
func (e LeadStateChanged) Tenant() string    { return e.TenantID }

// OfferSlot is the wire shape of an offered slot.
type OfferSlot struct {
	Key   int       `json:"key"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// OfferSent is published when slot options are delivered to a lead.
type OfferSent struct {
	BaseEvent
	TenantID  string      `json:"tenantId"`
	LeadID    uuid.UUID   `json:"leadId"`
	Slots     []OfferSlot `json:"slots"`
	ExpiresAt time.Time   `json:"expiresAt"`
}

func (e OfferSent) EventName() string { return "outreach.offer.sent" }
func (e OfferSent) Tenant() string    { return e.TenantID }

// =============================================================================
// Booking Domain Events
// =============================================================================

// BookingCommitted is published after the external event was created.
type BookingCommitted struct {
	BaseEvent
	TenantID        string    `json:"tenantId"`
	LeadID          uuid.UUID `json:"leadId"`
	BookingID       uuid.UUID `json:"bookingId"`
	Service         string    `json:"service"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	ExternalEventID string    `json:"externalEventId"`
	Persisted       bool      `json:"persisted"`
}

func (e BookingCommitted) EventName() string { return "booking.committed" }
func (e BookingCommitted) Tenant() string    { return e.TenantID }

// BookingConflicted is published when revalidation or persistence rejects a slot.
type BookingConflicted struct {
	BaseEvent
	TenantID string    `json:"tenantId"`
	LeadID   uuid.UUID `json:"leadId"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Reason   string    `json:"reason"`
}

func (e BookingConflicted) EventName() string { return "booking.slot_conflict" }
func (e BookingConflicted) Tenant() string    { return e.TenantID }

// =============================================================================
// Inbound & Scheduler Domain Events
// =============================================================================

// InboundInterpreted is published for every non-duplicate inbound message.
type InboundInterpreted struct {
	BaseEvent
	TenantID string     `json:"tenantId"`
	LeadID   *uuid.UUID `json:"leadId,omitempty"`
	Command  string     `json:"command"`
}

func (e InboundInterpreted) EventName() string { return "inbound.message.interpreted" }
func (e InboundInterpreted) Tenant() string    { return e.TenantID }

// RetryEntryExpired is published when a retry entry reaches a terminal expiry.
type RetryEntryExpired struct {
	BaseEvent
	TenantID string     `json:"tenantId"`
	EntryID  uuid.UUID  `json:"entryId"`
	LeadID   *uuid.UUID `json:"leadId,omitempty"`
	Reason   string     `json:"reason"`
	Cause    string     `json:"cause"`
}

func (e RetryEntryExpired) EventName() string { return "retry.entry.expired" }
func (e RetryEntryExpired) Tenant() string    { return e.TenantID }

// FanoutEventNames lists every event forwarded to tenant channels.
var FanoutEventNames = []string{
	LeadStateChanged{}.EventName(),
	OfferSent{}.EventName(),
	BookingCommitted{}.EventName(),
	BookingConflicted{}.EventName(),
	InboundInterpreted{}.EventName(),
	RetryEntryExpired{}.EventName(),
}
