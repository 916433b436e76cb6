package booking

import (
	"context"
	"errors"

	"leadbooking_backend/platform/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound = errors.New("booking not found")
	// ErrActiveBookingExists is returned when the lead already holds an
	// active booking.
	ErrActiveBookingExists = errors.New("lead already has an active booking")
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const bookingColumns = `id, tenant_id, lead_id, service, starts_at, ends_at, external_event_id, status, created_at`

func scanBooking(row pgx.Row) (Booking, error) {
	var b Booking
	var status string
	err := row.Scan(&b.ID, &b.TenantID, &b.LeadID, &b.Service, &b.Slot.Start, &b.Slot.End,
		&b.ExternalEventID, &status, &b.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Booking{}, ErrNotFound
	}
	if err != nil {
		return Booking{}, err
	}
	b.Status = Status(status)
	b.Persisted = true
	return b, nil
}

// Create inserts an active booking. The partial unique index on lead_id
// turns a concurrent second commit into ErrActiveBookingExists.
func (r *Repository) Create(ctx context.Context, b Booking) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO bookings (id, tenant_id, lead_id, service, starts_at, ends_at, external_event_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'active')
	`, b.ID, b.TenantID, b.LeadID, b.Service, b.Slot.Start, b.Slot.End, b.ExternalEventID)
	if db.IsUniqueViolation(err) {
		return ErrActiveBookingExists
	}
	return err
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Booking, error) {
	return scanBooking(r.pool.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
}

func (r *Repository) GetActiveForLead(ctx context.Context, leadID uuid.UUID) (Booking, error) {
	return scanBooking(r.pool.QueryRow(ctx, `
		SELECT `+bookingColumns+` FROM bookings WHERE lead_id = $1 AND status = 'active'
	`, leadID))
}
