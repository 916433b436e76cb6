package calendar

import (
	"context"
	"time"
)

// EventDetails describes the calendar event created for a booking.
type EventDetails struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	Timezone    string
	// RequestID lets the provider deduplicate retried creates.
	RequestID string
}

// Provider is the external calendar.
type Provider interface {
	FreeBusy(ctx context.Context, calendarID string, start, end time.Time) ([]Interval, error)
	CreateEvent(ctx context.Context, calendarID string, details EventDetails) (string, error)
}
