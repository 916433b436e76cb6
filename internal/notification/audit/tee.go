package audit

import (
	"context"

	"leadbooking_backend/internal/notification/fanout"
	"leadbooking_backend/platform/logger"
)

// Tee writes to a primary sink and mirrors to secondaries. Only a primary
// failure is returned; the flusher retries the batch, so a secondary
// failure is logged to keep the primary free of duplicates.
type Tee struct {
	primary     fanout.Sink
	secondaries []fanout.Sink
	log         *logger.Logger
}

func NewTee(primary fanout.Sink, log *logger.Logger, secondaries ...fanout.Sink) *Tee {
	if log == nil {
		log = logger.Nop()
	}
	return &Tee{primary: primary, secondaries: secondaries, log: log}
}

func (t *Tee) Write(ctx context.Context, records []fanout.Record) error {
	if err := t.primary.Write(ctx, records); err != nil {
		return err
	}
	for _, s := range t.secondaries {
		if err := s.Write(ctx, records); err != nil {
			t.log.Warn("audit mirror write failed", "records", len(records), "error", err)
		}
	}
	return nil
}
