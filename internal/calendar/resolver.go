package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"leadbooking_backend/platform/apperr"
	"leadbooking_backend/platform/logger"
	"leadbooking_backend/platform/metrics"

	"golang.org/x/sync/singleflight"
)

const providerName = "calendar"

// ErrProviderNotConfigured is wrapped as transient when no provider is wired.
var ErrProviderNotConfigured = errors.New("calendar provider not configured")

// Resolver answers availability questions for the orchestrator. Snapshot
// reads may come from the cache; Revalidate and CreateEvent always reach the
// provider.
type Resolver struct {
	provider Provider
	cache    SnapshotCache
	cacheTTL time.Duration
	timeout  time.Duration
	group    singleflight.Group
	log      *logger.Logger
}

// ResolverOption customizes a Resolver.
type ResolverOption func(*Resolver)

// WithCache enables the advisory snapshot cache.
func WithCache(cache SnapshotCache, ttl time.Duration) ResolverOption {
	return func(r *Resolver) {
		r.cache = cache
		r.cacheTTL = ttl
	}
}

// WithTimeout sets the per-call provider deadline.
func WithTimeout(timeout time.Duration) ResolverOption {
	return func(r *Resolver) {
		r.timeout = timeout
	}
}

// NewResolver wraps provider. A nil provider makes every call transient.
func NewResolver(provider Provider, log *logger.Logger, opts ...ResolverOption) *Resolver {
	if log == nil {
		log = logger.Nop()
	}
	r := &Resolver{
		provider: provider,
		timeout:  10 * time.Second,
		log:      log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FreeBusy returns merged busy intervals for [start, end).
func (r *Resolver) FreeBusy(ctx context.Context, calendarID string, start, end time.Time) ([]Interval, error) {
	if !end.After(start) {
		return nil, apperr.Validation("free/busy window must end after it starts")
	}

	key := fmt.Sprintf("%s|%d|%d", calendarID, start.Unix(), end.Unix())
	if r.cache != nil {
		busy, ok, err := r.cache.Get(ctx, key)
		if err != nil {
			r.log.Warn("availability cache read failed", slog.String("error", err.Error()))
		} else if ok {
			return busy, nil
		}
	}

	// Collapsed callers share one provider call; none of them may cancel it.
	shared := context.WithoutCancel(ctx)
	v, err, _ := r.group.Do(key, func() (any, error) {
		return r.fetch(shared, "freeBusy", calendarID, start, end)
	})
	if err != nil {
		return nil, err
	}
	busy := v.([]Interval)

	if r.cache != nil && r.cacheTTL > 0 {
		if err := r.cache.Set(ctx, key, busy, r.cacheTTL); err != nil {
			r.log.Warn("availability cache write failed", slog.String("error", err.Error()))
		}
	}
	return busy, nil
}

// Revalidate asks the provider whether slot is still entirely free.
func (r *Resolver) Revalidate(ctx context.Context, calendarID string, slot Interval) (bool, error) {
	if !slot.Valid() {
		return false, apperr.Validation("slot must end after it starts")
	}
	busy, err := r.fetch(ctx, "revalidate", calendarID, slot.Start, slot.End)
	if err != nil {
		return false, err
	}
	return !AnyOverlap(busy, slot), nil
}

// CreateEvent creates the booking event at the provider.
func (r *Resolver) CreateEvent(ctx context.Context, calendarID string, details EventDetails) (string, error) {
	if r.provider == nil {
		return "", apperr.Transient(providerName, ErrProviderNotConfigured).WithOp("calendar.CreateEvent")
	}
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	id, err := r.provider.CreateEvent(callCtx, calendarID, details)
	if err != nil {
		r.log.ProviderFailure(providerName, "createEvent", err)
		metrics.RecordProviderError(providerName, "createEvent")
		return "", apperr.Transient(providerName, err).WithOp("calendar.CreateEvent")
	}
	return id, nil
}

func (r *Resolver) fetch(ctx context.Context, op, calendarID string, start, end time.Time) ([]Interval, error) {
	if r.provider == nil {
		return nil, apperr.Transient(providerName, ErrProviderNotConfigured).WithOp("calendar." + op)
	}
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	busy, err := r.provider.FreeBusy(callCtx, calendarID, start, end)
	if err != nil {
		r.log.ProviderFailure(providerName, op, err)
		metrics.RecordProviderError(providerName, op)
		return nil, apperr.Transient(providerName, err).WithOp("calendar." + op)
	}
	return Merge(busy), nil
}
