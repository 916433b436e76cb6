package scheduler

import (
	"context"
	"time"

	"leadbooking_backend/internal/retryqueue"
	"leadbooking_backend/platform/config"
	"leadbooking_backend/platform/logger"
	"leadbooking_backend/platform/metrics"

	"github.com/google/uuid"
)

// Claimer is the queue side of a sweep.
type Claimer interface {
	ClaimDue(ctx context.Context, horizon time.Time, limit int) ([]retryqueue.Entry, error)
	ReturnUnsent(ctx context.Context, id uuid.UUID, lastError string, nextAt time.Time) (bool, error)
	ReleaseStale(ctx context.Context, lease time.Duration) (int64, error)
}

// Dispatcher takes ownership of a claimed entry.
type Dispatcher interface {
	Dispatch(ctx context.Context, entry retryqueue.Entry) error
}

type SweepOptions struct {
	Interval  time.Duration
	Lookahead time.Duration
	BatchSize int
	Lease     time.Duration
}

func SweepOptionsFromConfig(cfg config.SchedulerConfig) SweepOptions {
	return SweepOptions{
		Interval:  cfg.GetSweepInterval(),
		Lookahead: cfg.GetSweepLookahead(),
		BatchSize: cfg.GetSweepBatchSize(),
		Lease:     cfg.GetClaimLease(),
	}
}

// Sweeper periodically claims due entries and dispatches them.
type Sweeper struct {
	store      Claimer
	dispatcher Dispatcher
	opts       SweepOptions
	log        *logger.Logger
	now        func() time.Time
}

func NewSweeper(store Claimer, dispatcher Dispatcher, opts SweepOptions, log *logger.Logger) *Sweeper {
	if opts.Interval <= 0 {
		opts.Interval = 2 * time.Second
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = 50
	}
	if opts.Lease <= 0 {
		opts.Lease = 10 * time.Minute
	}
	if opts.Lookahead < 0 {
		opts.Lookahead = 0
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Sweeper{store: store, dispatcher: dispatcher, opts: opts, log: log, now: time.Now}
}

func (s *Sweeper) Run(ctx context.Context) {
	if s == nil || s.store == nil || s.dispatcher == nil {
		return
	}

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.log.Warn("retry queue sweep failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce releases stale claims, then claims and dispatches one batch. A
// failing dispatch returns that entry to the queue at its scheduled time
// without spending an attempt or affecting the rest of the batch.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	released, err := s.store.ReleaseStale(ctx, s.opts.Lease)
	if err != nil {
		s.log.Warn("release stale claims failed", "error", err)
	} else if released > 0 {
		s.log.Info("released stale retry claims", "released", released)
	}

	entries, err := s.store.ClaimDue(ctx, s.now().Add(s.opts.Lookahead), s.opts.BatchSize)
	if err != nil {
		return 0, err
	}
	metrics.RecordSweep(len(entries))

	for _, entry := range entries {
		if err := s.dispatcher.Dispatch(ctx, entry); err != nil {
			s.log.Warn("dispatch retry entry failed", "entry_id", entry.ID.String(), "reason", entry.Reason, "error", err)
			if _, err := s.store.ReturnUnsent(ctx, entry.ID, "dispatch: "+err.Error(), entry.ScheduledFor); err != nil {
				s.log.Warn("return retry entry failed", "entry_id", entry.ID.String(), "error", err)
			}
		}
	}
	return len(entries), nil
}
