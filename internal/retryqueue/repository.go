package retryqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const errRepoNotConfigured = "retry queue repository not configured"

var ErrNotFound = errors.New("retry entry not found")

type InsertParams struct {
	TenantID     string
	LeadID       *uuid.UUID
	Reason       string
	ScheduledFor time.Time
	MaxAttempts  int // optional; defaults to the repository default
	Payload      Payload
}

type Repository struct {
	pool        *pgxpool.Pool
	maxAttempts int
}

func New(pool *pgxpool.Pool, defaultMaxAttempts int) *Repository {
	if defaultMaxAttempts < 1 {
		defaultMaxAttempts = 5
	}
	return &Repository{pool: pool, maxAttempts: defaultMaxAttempts}
}

const entryColumns = `id, tenant_id, lead_id, reason, scheduled_for, status, attempts, max_attempts, payload, last_error, claimed_at`

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	var status string
	err := row.Scan(&e.ID, &e.TenantID, &e.LeadID, &e.Reason, &e.ScheduledFor, &status,
		&e.Attempts, &e.MaxAttempts, &e.Payload, &e.LastError, &e.ClaimedAt)
	if err != nil {
		return Entry{}, err
	}
	e.Status = Status(status)
	return e, nil
}

func (r *Repository) Insert(ctx context.Context, p InsertParams) (uuid.UUID, error) {
	if r == nil || r.pool == nil {
		return uuid.Nil, errors.New(errRepoNotConfigured)
	}
	if p.TenantID == "" {
		return uuid.Nil, fmt.Errorf("tenantId is required")
	}
	if p.Reason == "" {
		return uuid.Nil, fmt.Errorf("reason is required")
	}
	if p.ScheduledFor.IsZero() {
		p.ScheduledFor = time.Now().UTC()
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = r.maxAttempts
	}

	payloadBytes, err := json.Marshal(p.Payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal payload: %w", err)
	}

	id := uuid.New()
	_, err = r.pool.Exec(ctx, `
		INSERT INTO retry_queue_entries (id, tenant_id, lead_id, reason, scheduled_for, status, max_attempts, payload)
		VALUES ($1, $2, $3, $4, $5, 'pending', $6, $7)
	`, id, p.TenantID, p.LeadID, p.Reason, p.ScheduledFor, maxAttempts, payloadBytes)
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Entry, error) {
	if r == nil || r.pool == nil {
		return Entry{}, errors.New(errRepoNotConfigured)
	}
	e, err := scanEntry(r.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM retry_queue_entries WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return e, err
}

// ClaimDue moves up to limit pending or failed entries scheduled at or
// before horizon to in_flight and returns them. Rows locked by a concurrent
// sweep are skipped, so overlapping sweeps never claim the same entry.
func (r *Repository) ClaimDue(ctx context.Context, horizon time.Time, limit int) ([]Entry, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New(errRepoNotConfigured)
	}
	if limit < 1 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx, `
		WITH due AS (
			SELECT id
			FROM retry_queue_entries
			WHERE status IN ('pending', 'failed')
			  AND scheduled_for <= $1
			  AND attempts < max_attempts
			ORDER BY scheduled_for ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE retry_queue_entries e
		SET status = 'in_flight', claimed_at = now(), updated_at = now()
		FROM due
		WHERE e.id = due.id AND e.status IN ('pending', 'failed')
		RETURNING e.id, e.tenant_id, e.lead_id, e.reason, e.scheduled_for, e.status, e.attempts,
			e.max_attempts, e.payload, e.last_error, e.claimed_at
	`, horizon, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return results, nil
}

// MarkSent completes an in-flight entry. It reports whether the entry was
// still in flight.
func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID) (bool, error) {
	if r == nil || r.pool == nil {
		return false, errors.New(errRepoNotConfigured)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE retry_queue_entries
		SET status = 'sent', attempts = attempts + 1, last_error = NULL, updated_at = now()
		WHERE id = $1 AND status = 'in_flight'
	`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkFailed records a failed attempt. The entry becomes failed and is
// rescheduled to nextAt, or expired when this was its last attempt. The
// resulting status is returned.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, lastError string, nextAt time.Time) (Status, error) {
	if r == nil || r.pool == nil {
		return "", errors.New(errRepoNotConfigured)
	}
	var status string
	err := r.pool.QueryRow(ctx, `
		UPDATE retry_queue_entries
		SET attempts = attempts + 1,
			status = CASE WHEN attempts + 1 >= max_attempts THEN 'expired' ELSE 'failed' END,
			scheduled_for = CASE WHEN attempts + 1 >= max_attempts THEN scheduled_for ELSE $3 END,
			last_error = $2,
			updated_at = now()
		WHERE id = $1 AND status = 'in_flight'
		RETURNING status
	`, id, lastError, nextAt).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return Status(status), nil
}

// ReturnUnsent hands an in-flight entry that never reached a worker back to
// the queue as failed at nextAt. Attempts are left unchanged.
func (r *Repository) ReturnUnsent(ctx context.Context, id uuid.UUID, lastError string, nextAt time.Time) (bool, error) {
	if r == nil || r.pool == nil {
		return false, errors.New(errRepoNotConfigured)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE retry_queue_entries
		SET status = 'failed', scheduled_for = $3, last_error = $2, claimed_at = NULL, updated_at = now()
		WHERE id = $1 AND status = 'in_flight'
	`, id, lastError, nextAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkExpired terminates a non-terminal entry without further attempts.
func (r *Repository) MarkExpired(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	if r == nil || r.pool == nil {
		return false, errors.New(errRepoNotConfigured)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE retry_queue_entries
		SET status = 'expired', last_error = $2, updated_at = now()
		WHERE id = $1 AND status IN ('pending', 'in_flight', 'failed')
	`, id, reason)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ExpirePendingForLead expires not-yet-running entries of the given
// reasons for a lead, e.g. follow-ups after the lead booked.
func (r *Repository) ExpirePendingForLead(ctx context.Context, leadID uuid.UUID, reasons []string, cause string) (int64, error) {
	if r == nil || r.pool == nil {
		return 0, errors.New(errRepoNotConfigured)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE retry_queue_entries
		SET status = 'expired', last_error = $3, updated_at = now()
		WHERE lead_id = $1 AND reason = ANY($2) AND status IN ('pending', 'failed')
	`, leadID, reasons, cause)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ReleaseStale fails in-flight entries claimed longer ago than lease. The
// release counts as an attempt, so a crashing entry eventually expires.
func (r *Repository) ReleaseStale(ctx context.Context, lease time.Duration) (int64, error) {
	if r == nil || r.pool == nil {
		return 0, errors.New(errRepoNotConfigured)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE retry_queue_entries
		SET attempts = attempts + 1,
			status = CASE WHEN attempts + 1 >= max_attempts THEN 'expired' ELSE 'failed' END,
			last_error = 'claim lease expired',
			updated_at = now()
		WHERE status = 'in_flight' AND claimed_at < now() - make_interval(secs => $1)
	`, lease.Seconds())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteFinishedBefore removes sent entries last touched before sentBefore and
// expired entries last touched before expiredBefore.
func (r *Repository) DeleteFinishedBefore(ctx context.Context, sentBefore, expiredBefore time.Time) (int64, error) {
	if r == nil || r.pool == nil {
		return 0, errors.New(errRepoNotConfigured)
	}
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM retry_queue_entries
		WHERE (status = 'sent' AND updated_at < $1)
			OR (status = 'expired' AND updated_at < $2)
	`, sentBefore, expiredBefore)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
