// Package booking commits a chosen slot to the tenant calendar and records
// the resulting appointment.
package booking

import (
	"time"

	"leadbooking_backend/internal/slots"
	"leadbooking_backend/internal/tenants"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
)

// Booking is the local record of an appointment. The external calendar event
// is the source of truth; this row is a cache of it.
type Booking struct {
	ID              uuid.UUID
	TenantID        string
	LeadID          uuid.UUID
	Service         string
	Slot            slots.Candidate
	ExternalEventID string
	Status          Status
	CreatedAt       time.Time
	// Persisted is false when the event exists externally but the local
	// write failed and was handed to reconciliation.
	Persisted bool
}

type CommitRequest struct {
	Tenant  *tenants.Tenant
	LeadID  uuid.UUID
	Service string
	Slot    slots.Candidate
}
