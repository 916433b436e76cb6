package fanout

import (
	"context"
	"time"

	"leadbooking_backend/platform/logger"
	"leadbooking_backend/platform/metrics"
)

// Sink persists flushed records.
type Sink interface {
	Write(ctx context.Context, records []Record) error
}

// Flusher drains the ring into a sink on a fixed interval. Publishing never
// waits on it; records overwritten before a flush are counted as dropped.
type Flusher struct {
	ring     *Ring
	sink     Sink
	interval time.Duration
	batch    int
	flushed  uint64
	log      *logger.Logger
}

func NewFlusher(ring *Ring, sink Sink, interval time.Duration, batch int, log *logger.Logger) *Flusher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if batch < 1 {
		batch = 100
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Flusher{ring: ring, sink: sink, interval: interval, batch: batch, log: log}
}

// Flushed returns the sequence of the last record written to the sink.
func (f *Flusher) Flushed() uint64 { return f.flushed }

// FlushOnce writes everything appended since the last successful flush.
// On a sink error the failed batch stays pending for the next call.
func (f *Flusher) FlushOnce(ctx context.Context) error {
	for {
		records, dropped := f.ring.ReadAfter(f.flushed, f.batch)
		if dropped > 0 {
			f.log.Warn("fanout records overwritten before flush", "dropped", dropped)
			metrics.RecordFanoutDropped(dropped)
			f.flushed += dropped
		}
		if len(records) == 0 {
			return nil
		}
		if err := f.sink.Write(ctx, records); err != nil {
			return err
		}
		f.flushed = records[len(records)-1].Seq
	}
}

func (f *Flusher) Run(ctx context.Context) {
	if f == nil || f.sink == nil {
		return
	}

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			if err := f.FlushOnce(final); err != nil {
				f.log.Warn("final fanout flush failed", "error", err)
			}
			cancel()
			return
		case <-ticker.C:
			if err := f.FlushOnce(ctx); err != nil {
				f.log.Warn("fanout flush failed", "error", err)
			}
		}
	}
}
