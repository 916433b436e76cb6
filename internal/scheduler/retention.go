package scheduler

import (
	"context"
	"time"

	"leadbooking_backend/platform/logger"
)

const (
	defaultRetentionInterval = time.Hour
	defaultSentRetention     = 14 * 24 * time.Hour
	defaultExpiredRetention  = 30 * 24 * time.Hour
)

type FinishedEntryDeleter interface {
	DeleteFinishedBefore(ctx context.Context, sentBefore, expiredBefore time.Time) (int64, error)
}

// RetentionCleanup periodically removes old finished retry entries.
type RetentionCleanup struct {
	repo             FinishedEntryDeleter
	log              *logger.Logger
	interval         time.Duration
	sentRetention    time.Duration
	expiredRetention time.Duration
}

func NewRetentionCleanup(repo FinishedEntryDeleter, log *logger.Logger, interval, sentRetention, expiredRetention time.Duration) *RetentionCleanup {
	if interval <= 0 {
		interval = defaultRetentionInterval
	}
	if sentRetention <= 0 {
		sentRetention = defaultSentRetention
	}
	if expiredRetention <= 0 {
		expiredRetention = defaultExpiredRetention
	}

	return &RetentionCleanup{
		repo:             repo,
		log:              log,
		interval:         interval,
		sentRetention:    sentRetention,
		expiredRetention: expiredRetention,
	}
}

func (c *RetentionCleanup) Run(ctx context.Context) {
	if c == nil || c.repo == nil {
		return
	}

	c.cleanup(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.cleanup(ctx)
		}
	}
}

func (c *RetentionCleanup) cleanup(ctx context.Context) {
	now := time.Now()
	deleted, err := c.repo.DeleteFinishedBefore(ctx, now.Add(-c.sentRetention), now.Add(-c.expiredRetention))
	if err != nil {
		c.log.Warn("retry entry cleanup failed", "error", err)
		return
	}

	if deleted > 0 {
		c.log.Info("retry entry cleanup deleted finished entries", "deleted", deleted)
	}
}
