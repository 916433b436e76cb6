// Package audit persists flushed fan-out records.
package audit

import (
	"context"
	"errors"

	"leadbooking_backend/internal/notification/fanout"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const errRepoNotConfigured = "audit repository not configured"

// Repository stores fan-out records in the fanout_events table.
type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Write inserts records in one transaction, so a failed batch leaves no
// partial rows behind.
func (r *Repository) Write(ctx context.Context, records []fanout.Record) error {
	if r == nil || r.pool == nil {
		return errors.New(errRepoNotConfigured)
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(`
			INSERT INTO fanout_events (seq, tenant_id, event_name, payload, occurred_at)
			VALUES ($1, $2, $3, $4, $5)
		`, int64(rec.Seq), rec.TenantID, rec.Name, []byte(rec.Payload), rec.OccurredAt)
	}
	results := tx.SendBatch(ctx, batch)
	for range records {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return err
		}
	}
	if err := results.Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ListRecent returns the tenant's newest audited records, newest first.
func (r *Repository) ListRecent(ctx context.Context, tenantID string, limit int) ([]fanout.Record, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New(errRepoNotConfigured)
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx, `
		SELECT seq, tenant_id, event_name, payload, occurred_at
		FROM fanout_events
		WHERE tenant_id = $1
		ORDER BY occurred_at DESC, id DESC
		LIMIT $2
	`, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []fanout.Record
	for rows.Next() {
		var (
			rec fanout.Record
			seq int64
		)
		if err := rows.Scan(&seq, &rec.TenantID, &rec.Name, &rec.Payload, &rec.OccurredAt); err != nil {
			return nil, err
		}
		rec.Seq = uint64(seq)
		out = append(out, rec)
	}
	return out, rows.Err()
}
