package repository

import (
	"context"

	"leadbooking_backend/internal/leads/domain"

	"github.com/google/uuid"
)

// =====================================
// Segregated Interfaces (Interface Segregation Principle)
// =====================================

// LeadReader provides read-only access to lead data.
type LeadReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	FindLatestByPhone(ctx context.Context, tenantID, phone string) (domain.Lead, error)
}

// LeadWriter provides lead creation and guarded status transitions.
type LeadWriter interface {
	FindOrCreateLead(ctx context.Context, params CreateLeadParams) (domain.Lead, bool, error)
	BeginAttempt(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from []domain.Status, to domain.Status) (bool, error)
	MarkBooked(ctx context.Context, id uuid.UUID) (bool, error)
}

// OfferStore persists the slot list last offered to a lead.
type OfferStore interface {
	StoreProposedChoice(ctx context.Context, offer domain.Offer) error
	GetOffer(ctx context.Context, leadID uuid.UUID) (domain.Offer, error)
}

// OptOutStore is the sticky per-phone opt-out set.
type OptOutStore interface {
	IsOptedOut(ctx context.Context, phone string) (bool, error)
	SetOptStatus(ctx context.Context, phone string, optedOut bool) error
}

// DeliveryInbox deduplicates provider webhook deliveries. A delivery whose
// handling failed is forgotten so the provider's redelivery is processed.
type DeliveryInbox interface {
	RecordDelivery(ctx context.Context, messageID, tenantID string) (bool, error)
	ForgetDelivery(ctx context.Context, messageID string) error
	// RecordOptStatus stores the delivery and the opt flag atomically.
	RecordOptStatus(ctx context.Context, messageID, tenantID, phone string, optedOut bool) (bool, error)
}

// LeadStore is the full persistence surface used by the orchestrator.
type LeadStore interface {
	LeadReader
	LeadWriter
	OfferStore
	OptOutStore
	DeliveryInbox
}

var _ LeadStore = (*Repository)(nil)
