package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"leadbooking_backend/internal/events"
	"leadbooking_backend/internal/followup"
	"leadbooking_backend/internal/retryqueue"
	"leadbooking_backend/platform/apperr"
	"leadbooking_backend/platform/logger"
	"leadbooking_backend/platform/metrics"

	"github.com/google/uuid"
)

// EntryStore records the outcome of a claimed entry.
type EntryStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (retryqueue.Entry, error)
	MarkSent(ctx context.Context, id uuid.UUID) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string, nextAt time.Time) (retryqueue.Status, error)
	MarkExpired(ctx context.Context, id uuid.UUID, reason string) (bool, error)
}

type Executor interface {
	Execute(ctx context.Context, entry retryqueue.Entry) error
}

// Runner executes in-flight entries and moves them to their next status.
type Runner struct {
	store   EntryStore
	exec    Executor
	bus     events.Bus
	log     *logger.Logger
	backoff time.Duration
	now     func() time.Time
}

func NewRunner(store EntryStore, exec Executor, bus events.Bus, backoff time.Duration, log *logger.Logger) *Runner {
	if log == nil {
		log = logger.Nop()
	}
	return &Runner{store: store, exec: exec, bus: bus, log: log, backoff: backoff, now: time.Now}
}

// Process loads entry id and finishes it. Entries that are no longer in
// flight were handled elsewhere and are skipped.
func (r *Runner) Process(ctx context.Context, id uuid.UUID) error {
	entry, err := r.store.GetByID(ctx, id)
	if errors.Is(err, retryqueue.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if entry.Status != retryqueue.StatusInFlight {
		return nil
	}
	return r.Finish(ctx, entry)
}

// Finish executes entry once and records the outcome. The returned error
// only reports a failure to record it.
func (r *Runner) Finish(ctx context.Context, entry retryqueue.Entry) error {
	log := r.log.WithContext(ctx).WithTenant(entry.TenantID)

	execErr := r.execute(ctx, entry)
	switch {
	case execErr == nil:
		if _, err := r.store.MarkSent(ctx, entry.ID); err != nil {
			return err
		}
		metrics.RecordRetryEntry(entry.Reason, string(retryqueue.StatusSent))

	case errors.Is(execErr, followup.ErrObsolete) || apperr.Is(execErr, apperr.KindCompliance):
		if _, err := r.store.MarkExpired(ctx, entry.ID, execErr.Error()); err != nil {
			return err
		}
		r.expired(ctx, entry, execErr.Error())

	default:
		next := r.now().Add(retryqueue.Backoff(r.backoff, entry.Attempts+1))
		status, err := r.store.MarkFailed(ctx, entry.ID, execErr.Error(), next)
		if errors.Is(err, retryqueue.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		log.Warn("retry entry failed",
			"entry_id", entry.ID.String(), "reason", entry.Reason, "attempt", entry.Attempts+1, "error", execErr.Error())
		if status == retryqueue.StatusExpired {
			r.expired(ctx, entry, execErr.Error())
			return nil
		}
		metrics.RecordRetryEntry(entry.Reason, string(retryqueue.StatusFailed))
	}
	return nil
}

func (r *Runner) execute(ctx context.Context, entry retryqueue.Entry) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return r.exec.Execute(ctx, entry)
}

func (r *Runner) expired(ctx context.Context, entry retryqueue.Entry, cause string) {
	metrics.RecordRetryEntry(entry.Reason, string(retryqueue.StatusExpired))
	if r.bus == nil {
		return
	}
	r.bus.Publish(ctx, events.RetryEntryExpired{
		BaseEvent: events.NewBaseEventAt(r.now()),
		TenantID:  entry.TenantID,
		EntryID:   entry.ID,
		LeadID:    entry.LeadID,
		Reason:    entry.Reason,
		Cause:     cause,
	})
}

// InlineDispatcher runs claimed entries in the sweeping process. It ignores
// the scheduled time, so pair it with a zero lookahead.
type InlineDispatcher struct {
	runner *Runner
}

func NewInlineDispatcher(runner *Runner) *InlineDispatcher {
	return &InlineDispatcher{runner: runner}
}

func (d *InlineDispatcher) Dispatch(ctx context.Context, entry retryqueue.Entry) error {
	return d.runner.Finish(ctx, entry)
}
