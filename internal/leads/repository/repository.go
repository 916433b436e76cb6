package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"leadbooking_backend/internal/leads/domain"
	"leadbooking_backend/internal/slots"
	"leadbooking_backend/platform/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound      = errors.New("lead not found")
	ErrOfferNotFound = errors.New("offer not found")
	// ErrInvalidTransition is returned when a guarded update matched no row.
	ErrInvalidTransition = errors.New("lead status does not allow this transition")
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type CreateLeadParams struct {
	TenantID string
	Phone    string
	Name     string
	Service  string
}

const leadColumns = `id, tenant_id, phone, name, service, status, attempts, created_at, updated_at`

func scanLead(row pgx.Row) (domain.Lead, error) {
	var lead domain.Lead
	var status string
	err := row.Scan(&lead.ID, &lead.TenantID, &lead.Phone, &lead.Name, &lead.Service,
		&status, &lead.Attempts, &lead.CreatedAt, &lead.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, ErrNotFound
	}
	if err != nil {
		return domain.Lead{}, err
	}
	lead.Status = domain.Status(status)
	return lead, nil
}

// FindOrCreateLead returns the open lead for (tenant, phone), creating one
// in status new when none exists. The bool reports creation.
func (r *Repository) FindOrCreateLead(ctx context.Context, params CreateLeadParams) (domain.Lead, bool, error) {
	lead, err := scanLead(r.pool.QueryRow(ctx, `
		INSERT INTO leads (id, tenant_id, phone, name, service, status)
		VALUES ($1, $2, $3, $4, $5, 'new')
		ON CONFLICT (tenant_id, phone) WHERE status NOT IN ('booked', 'expired') DO NOTHING
		RETURNING `+leadColumns,
		uuid.New(), params.TenantID, params.Phone, params.Name, params.Service,
	))
	if err == nil {
		return lead, true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return domain.Lead{}, false, err
	}

	lead, err = scanLead(r.pool.QueryRow(ctx, `
		UPDATE leads
		SET name = CASE WHEN $3 <> '' THEN $3 ELSE name END,
			service = CASE WHEN $4 <> '' THEN $4 ELSE service END,
			updated_at = now()
		WHERE tenant_id = $1 AND phone = $2 AND status NOT IN ('booked', 'expired')
		RETURNING `+leadColumns,
		params.TenantID, params.Phone, params.Name, params.Service,
	))
	if err != nil {
		return domain.Lead{}, false, fmt.Errorf("load open lead: %w", err)
	}
	return lead, false, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	return scanLead(r.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id))
}

// FindLatestByPhone returns the most recently created lead for the phone.
func (r *Repository) FindLatestByPhone(ctx context.Context, tenantID, phone string) (domain.Lead, error) {
	return scanLead(r.pool.QueryRow(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE tenant_id = $1 AND phone = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, tenantID, phone))
}

// BeginAttempt moves a lead into call_attempted and increments its attempt
// counter, guarded by the outreach statuses.
func (r *Repository) BeginAttempt(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	lead, err := scanLead(r.pool.QueryRow(ctx, `
		UPDATE leads
		SET status = 'call_attempted', attempts = attempts + 1, updated_at = now()
		WHERE id = $1 AND status = ANY($2)
		RETURNING `+leadColumns,
		id, statusStrings(domain.OutreachStatuses),
	))
	if errors.Is(err, ErrNotFound) {
		return domain.Lead{}, ErrInvalidTransition
	}
	return lead, err
}

// TransitionStatus sets status to `to` only when the current status is in
// from. It reports whether a row changed.
func (r *Repository) TransitionStatus(ctx context.Context, id uuid.UUID, from []domain.Status, to domain.Status) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads SET status = $3, updated_at = now()
		WHERE id = $1 AND status = ANY($2)
	`, id, statusStrings(from), string(to))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) MarkBooked(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.TransitionStatus(ctx, id, domain.BookableStatuses, domain.StatusBooked)
}

type offerSlot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// StoreProposedChoice replaces the lead's current offer.
func (r *Repository) StoreProposedChoice(ctx context.Context, offer domain.Offer) error {
	encoded := make([]offerSlot, 0, len(offer.Slots))
	for _, s := range offer.Slots {
		encoded = append(encoded, offerSlot{Start: s.Start, End: s.End})
	}
	raw, err := json.Marshal(encoded)
	if err != nil {
		return fmt.Errorf("marshal offer: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO lead_offers (lead_id, tenant_id, slots, offered_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (lead_id) DO UPDATE
		SET slots = EXCLUDED.slots, offered_at = EXCLUDED.offered_at, expires_at = EXCLUDED.expires_at
	`, offer.LeadID, offer.TenantID, raw, offer.OfferedAt, offer.ExpiresAt)
	return err
}

func (r *Repository) GetOffer(ctx context.Context, leadID uuid.UUID) (domain.Offer, error) {
	var offer domain.Offer
	var raw []byte
	err := r.pool.QueryRow(ctx, `
		SELECT lead_id, tenant_id, slots, offered_at, expires_at
		FROM lead_offers WHERE lead_id = $1
	`, leadID).Scan(&offer.LeadID, &offer.TenantID, &raw, &offer.OfferedAt, &offer.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Offer{}, ErrOfferNotFound
	}
	if err != nil {
		return domain.Offer{}, err
	}

	var decoded []offerSlot
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return domain.Offer{}, fmt.Errorf("decode offer: %w", err)
	}
	offer.Slots = make([]slots.Candidate, 0, len(decoded))
	for _, s := range decoded {
		offer.Slots = append(offer.Slots, slots.Candidate{Start: s.Start, End: s.End})
	}
	return offer, nil
}

func (r *Repository) IsOptedOut(ctx context.Context, phone string) (bool, error) {
	var optedOut bool
	err := r.pool.QueryRow(ctx, `SELECT opted_out FROM opt_outs WHERE phone = $1`, phone).Scan(&optedOut)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return optedOut, err
}

// SetOptStatus records the opt-out flag and moves the phone's leads in one
// transaction: opting out stops every open lead, opting in reopens them.
func (r *Repository) SetOptStatus(ctx context.Context, phone string, optedOut bool) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := setOptStatus(ctx, tx, phone, optedOut); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// RecordOptStatus stores the delivery and applies the opt flag in one
// transaction. It returns false, changing nothing, for a known message id.
func (r *Repository) RecordOptStatus(ctx context.Context, messageID, tenantID, phone string, optedOut bool) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		INSERT INTO inbound_deliveries (message_id, tenant_id)
		VALUES ($1, $2)
		ON CONFLICT (message_id) DO NOTHING
	`, messageID, tenantID)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	if err := setOptStatus(ctx, tx, phone, optedOut); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func setOptStatus(ctx context.Context, tx pgx.Tx, phone string, optedOut bool) error {
	if _, err := tx.Exec(ctx, `
		INSERT INTO opt_outs (phone, opted_out, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (phone) DO UPDATE SET opted_out = EXCLUDED.opted_out, updated_at = now()
	`, phone, optedOut); err != nil {
		return err
	}

	var err error
	if optedOut {
		_, err = tx.Exec(ctx, `
			UPDATE leads SET status = 'opted_out', updated_at = now()
			WHERE phone = $1 AND status = ANY($2)
		`, phone, statusStrings(domain.OutreachStatuses))
	} else {
		_, err = tx.Exec(ctx, `
			UPDATE leads SET status = 'new', updated_at = now()
			WHERE phone = $1 AND status = 'opted_out'
		`, phone)
	}
	return err
}

// RecordDelivery stores a provider message id. It returns false when the
// id was already recorded.
func (r *Repository) RecordDelivery(ctx context.Context, messageID, tenantID string) (bool, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO inbound_deliveries (message_id, tenant_id)
		VALUES ($1, $2)
	`, messageID, tenantID)
	if err == nil {
		return true, nil
	}
	if db.IsUniqueViolation(err) {
		return false, nil
	}
	return false, err
}

func (r *Repository) ForgetDelivery(ctx context.Context, messageID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM inbound_deliveries WHERE message_id = $1`, messageID)
	return err
}

func statusStrings(in []domain.Status) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}
