// Package tenants holds the read-only tenant registry: calendar, timezone,
// business hours, channel credentials and inbound numbers per tenant.
package tenants

import (
	"strings"
	"time"

	"leadbooking_backend/internal/slots"
	"leadbooking_backend/platform/validator"
)

// Window is a business-hours window in tenant-local wall clock time.
type Window struct {
	Start string `yaml:"start" validate:"required,hhmm"`
	End   string `yaml:"end" validate:"required,hhmm"`
}

// Credentials identify the tenant on the voice and messaging providers.
type Credentials struct {
	MessagingSenderID string `yaml:"messaging_sender_id"`
	VoiceAgentID      string `yaml:"voice_agent_id"`
}

// Tenant is a business whose calendar is being filled.
type Tenant struct {
	ID              string                   `yaml:"id" validate:"required"`
	Name            string                   `yaml:"name" validate:"required"`
	CalendarID      string                   `yaml:"calendar_id" validate:"required"`
	Timezone        string                   `yaml:"timezone" validate:"required"`
	PhoneNumbers    []string                 `yaml:"phone_numbers" validate:"dive,e164"`
	InternalPhone   string                   `yaml:"internal_phone" validate:"omitempty,e164"`
	InternalEmail   string                   `yaml:"internal_email" validate:"omitempty,email"`
	BusinessHours   map[string][]Window      `yaml:"business_hours" validate:"required,dive,keys,oneof=monday tuesday wednesday thursday friday saturday sunday,endkeys,dive"`
	Services        map[string]time.Duration `yaml:"services"`
	DefaultDuration time.Duration            `yaml:"default_duration"`
	Credentials     Credentials              `yaml:"credentials"`

	location *time.Location
	hours    slots.Hours
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// Location returns the tenant's IANA location. Defaults to UTC before load.
func (t *Tenant) Location() *time.Location {
	if t.location == nil {
		return time.UTC
	}
	return t.location
}

// Hours returns the parsed business hours.
func (t *Tenant) Hours() slots.Hours {
	return t.hours
}

// DurationFor returns the appointment length for a service, falling back to
// the tenant default and then to 30 minutes.
func (t *Tenant) DurationFor(service string) time.Duration {
	if d, ok := t.Services[strings.ToLower(strings.TrimSpace(service))]; ok && d > 0 {
		return d
	}
	if t.DefaultDuration > 0 {
		return t.DefaultDuration
	}
	return 30 * time.Minute
}

// prepare resolves the timezone and converts business hours, rejecting
// windows that end at or before they start.
func (t *Tenant) prepare() error {
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		return err
	}
	t.location = loc

	normalized := make(map[string]time.Duration, len(t.Services))
	for name, d := range t.Services {
		normalized[strings.ToLower(strings.TrimSpace(name))] = d
	}
	t.Services = normalized

	hours := make(slots.Hours, len(t.BusinessHours))
	for day, windows := range t.BusinessHours {
		weekday := weekdays[day]
		for _, w := range windows {
			sh, sm, _ := validator.ParseClock(w.Start)
			eh, em, _ := validator.ParseClock(w.End)
			start := time.Duration(sh)*time.Hour + time.Duration(sm)*time.Minute
			end := time.Duration(eh)*time.Hour + time.Duration(em)*time.Minute
			if end <= start {
				return &windowError{day: day, window: w}
			}
			hours[weekday] = append(hours[weekday], slots.Window{Start: start, End: end})
		}
	}
	t.hours = hours
	return nil
}

type windowError struct {
	day    string
	window Window
}

func (e *windowError) Error() string {
	return "business hours on " + e.day + " " + e.window.Start + "-" + e.window.End + " must end after they start"
}
