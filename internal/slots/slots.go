// Package slots turns business hours and busy intervals into bookable
// appointment candidates.
package slots

import (
	"sort"
	"time"

	"leadbooking_backend/internal/calendar"
)

// DefaultLimit is the number of candidates offered to a lead.
const DefaultLimit = 3

// Window is a business-hours window as offsets from local midnight.
type Window struct {
	Start time.Duration
	End   time.Duration
}

// Hours maps a weekday to its business-hours windows.
type Hours map[time.Weekday][]Window

// Candidate is a bookable [Start, End) slot.
type Candidate struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Interval returns the candidate as a calendar interval.
func (c Candidate) Interval() calendar.Interval {
	return calendar.Interval{Start: c.Start, End: c.End}
}

// Request describes one candidate computation.
type Request struct {
	Duration time.Duration
	Hours    Hours
	Busy     []calendar.Interval
	From     time.Time
	Horizon  time.Duration
	Location *time.Location
	// Limit caps the number of candidates; zero means DefaultLimit.
	Limit int
}

// Generate returns the earliest free candidates inside business hours.
// Every candidate lies within one window and overlaps no busy interval.
// An empty result is valid.
func Generate(req Request) []Candidate {
	if req.Duration <= 0 || req.Horizon <= 0 || len(req.Hours) == 0 {
		return nil
	}
	loc := req.Location
	if loc == nil {
		loc = time.UTC
	}
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	busy := calendar.Merge(req.Busy)
	from := req.From.In(loc)
	until := req.From.Add(req.Horizon)

	out := make([]Candidate, 0, limit)
	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, loc)
	for day.Before(until) && len(out) < limit {
		for _, w := range sortedWindows(req.Hours[day.Weekday()]) {
			if w.End <= w.Start {
				continue
			}
			window := calendar.Interval{Start: clockOn(day, w.Start, loc), End: clockOn(day, w.End, loc)}
			for _, span := range subtract(window, busy) {
				for start := span.Start; !start.Add(req.Duration).After(span.End); start = start.Add(req.Duration) {
					if start.Before(req.From) || !start.Before(until) {
						continue
					}
					out = append(out, Candidate{Start: start.UTC(), End: start.Add(req.Duration).UTC()})
				}
			}
		}
		day = time.Date(day.Year(), day.Month(), day.Day()+1, 0, 0, 0, 0, loc)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	out = dedupe(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// clockOn resolves a wall-clock offset on day in loc, so DST days keep
// their local opening hours.
func clockOn(day time.Time, offset time.Duration, loc *time.Location) time.Time {
	h := int(offset / time.Hour)
	m := int((offset % time.Hour) / time.Minute)
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, loc)
}

func sortedWindows(in []Window) []Window {
	out := make([]Window, len(in))
	copy(out, in)
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// subtract removes merged busy intervals from window.
func subtract(window calendar.Interval, busy []calendar.Interval) []calendar.Interval {
	free := []calendar.Interval{window}
	for _, b := range busy {
		if !b.Overlaps(window) {
			continue
		}
		next := free[:0:0]
		for _, f := range free {
			if !b.Overlaps(f) {
				next = append(next, f)
				continue
			}
			if f.Start.Before(b.Start) {
				next = append(next, calendar.Interval{Start: f.Start, End: b.Start})
			}
			if b.End.Before(f.End) {
				next = append(next, calendar.Interval{Start: b.End, End: f.End})
			}
		}
		free = next
	}
	return free
}

func dedupe(in []Candidate) []Candidate {
	if len(in) < 2 {
		return in
	}
	out := in[:1]
	for _, c := range in[1:] {
		if c.Start.Equal(out[len(out)-1].Start) {
			continue
		}
		out = append(out, c)
	}
	return out
}
