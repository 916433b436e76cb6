// Package domain provides core business rules for the leads bounded context.
package domain

import (
	"time"

	"leadbooking_backend/internal/slots"

	"github.com/google/uuid"
)

// Status is the persisted lifecycle status of a lead.
type Status string

const (
	StatusNew           Status = "new"
	StatusCallAttempted Status = "call_attempted"
	StatusAwaitingReply Status = "awaiting_reply"
	StatusBooked        Status = "booked"
	StatusOptedOut      Status = "opted_out"
	StatusExpired       Status = "expired"
)

// OutreachStatuses are the statuses from which outreach may (re)start.
var OutreachStatuses = []Status{StatusNew, StatusCallAttempted, StatusAwaitingReply}

// BookableStatuses are the statuses from which a booking may be committed.
var BookableStatuses = []Status{StatusNew, StatusCallAttempted, StatusAwaitingReply, StatusExpired}

// IsTerminal reports whether no further outreach happens for the status.
func (s Status) IsTerminal() bool {
	return s == StatusBooked || s == StatusOptedOut || s == StatusExpired
}

// In reports whether s is one of candidates.
func (s Status) In(candidates ...Status) bool {
	for _, c := range candidates {
		if s == c {
			return true
		}
	}
	return false
}

// Lead is a prospective customer being driven towards an appointment.
type Lead struct {
	ID        uuid.UUID
	TenantID  string
	Phone     string
	Name      string
	Service   string
	Status    Status
	Attempts  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Offer is the ordered slot list last sent to a lead. Reply key N selects
// Slots[N-1].
type Offer struct {
	LeadID    uuid.UUID
	TenantID  string
	Slots     []slots.Candidate
	OfferedAt time.Time
	ExpiresAt time.Time
}

// NewOffer records candidates offered at now, valid for ttl.
func NewOffer(lead Lead, candidates []slots.Candidate, now time.Time, ttl time.Duration) Offer {
	return Offer{
		LeadID:    lead.ID,
		TenantID:  lead.TenantID,
		Slots:     candidates,
		OfferedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// Expired reports whether the offer can no longer be answered.
func (o Offer) Expired(now time.Time) bool {
	return !now.Before(o.ExpiresAt)
}

// Choose returns the slot for reply key n, or false when the offer is
// expired, empty or shorter than n.
func (o Offer) Choose(n int, now time.Time) (slots.Candidate, bool) {
	if o.Expired(now) || n < 1 || n > len(o.Slots) {
		return slots.Candidate{}, false
	}
	return o.Slots[n-1], true
}
