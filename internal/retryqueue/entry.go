// Package retryqueue is the durable store of timed follow-ups and retries.
//
// Entry status only moves forward: pending -> in_flight -> {sent, failed},
// failed -> in_flight on a later attempt, and any non-terminal status ->
// expired. Nothing ever returns to pending.
package retryqueue

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusInFlight Status = "in_flight"
	StatusSent     Status = "sent"
	StatusFailed   Status = "failed"
	StatusExpired  Status = "expired"
)

// Reason tags. Executors dispatch on the prefix before the first '_' group.
const (
	ReasonFollowUpNudge        = "follow_up_nudge"
	ReasonFollowUpRecall       = "follow_up_recall"
	ReasonFollowUpOffer        = "follow_up_offer"
	ReasonFollowUpExpire       = "follow_up_expire"
	ReasonReminder24h          = "appointment_reminder_24h"
	ReasonReminder2h           = "appointment_reminder_2h"
	ReasonReconcileBooking     = "reconcile_booking"
	ReasonReconcileOrphanEvent = "reconcile_orphan_event"
)

// FollowUpReasons are made moot once a lead books or opts out.
var FollowUpReasons = []string{
	ReasonFollowUpNudge,
	ReasonFollowUpRecall,
	ReasonFollowUpOffer,
	ReasonFollowUpExpire,
}

// IsReminder reports whether reason is an appointment reminder.
func IsReminder(reason string) bool {
	return strings.HasPrefix(reason, "appointment_reminder")
}

// Entry is one scheduled follow-up or retry.
type Entry struct {
	ID           uuid.UUID
	TenantID     string
	LeadID       *uuid.UUID
	Reason       string
	ScheduledFor time.Time
	Status       Status
	Attempts     int
	MaxAttempts  int
	Payload      json.RawMessage
	LastError    *string
	ClaimedAt    *time.Time
}

// Payload carries reason-specific data. Unused fields are omitted.
type Payload struct {
	// Attempt is the outreach attempt a recall should start.
	Attempt int `json:"attempt,omitempty"`
	// Nudge counts follow-up nudges already sent in this chain.
	Nudge int `json:"nudge,omitempty"`

	BookingID       *uuid.UUID `json:"bookingId,omitempty"`
	ExternalEventID string     `json:"externalEventId,omitempty"`
	CalendarID      string     `json:"calendarId,omitempty"`
	Service         string     `json:"service,omitempty"`
	SlotStart       *time.Time `json:"slotStart,omitempty"`
	SlotEnd         *time.Time `json:"slotEnd,omitempty"`
}

// DecodePayload unmarshals the entry payload. An empty payload decodes to
// the zero value.
func (e Entry) DecodePayload() (Payload, error) {
	var p Payload
	if len(e.Payload) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return Payload{}, err
	}
	return p, nil
}

// Exhausted reports whether no further attempt is allowed.
func (e Entry) Exhausted() bool {
	return e.Attempts >= e.MaxAttempts
}

// Backoff returns base doubled per previous failure, capped at a day.
func Backoff(base time.Duration, attempts int) time.Duration {
	if base <= 0 {
		base = time.Minute
	}
	const ceiling = 24 * time.Hour
	d := base
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= ceiling {
			return ceiling
		}
	}
	return d
}
