package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"leadbooking_backend/platform/config"
)

// Client talks to a Google-Calendar-shaped REST API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

type freeBusyRequest struct {
	TimeMin string         `json:"timeMin"`
	TimeMax string         `json:"timeMax"`
	Items   []calendarItem `json:"items"`
}

type calendarItem struct {
	ID string `json:"id"`
}

type freeBusyResponse struct {
	Calendars map[string]struct {
		Busy   []busyPeriod `json:"busy"`
		Errors []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"calendars"`
}

type busyPeriod struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type eventTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone,omitempty"`
}

type eventRequest struct {
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Start       eventTime `json:"start"`
	End         eventTime `json:"end"`
}

type eventResponse struct {
	ID string `json:"id"`
}

// NewClient returns nil when no calendar API is configured.
func NewClient(cfg config.CalendarConfig) *Client {
	if cfg.GetCalendarAPIURL() == "" {
		return nil
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.GetCalendarAPIURL(), "/"),
		apiKey:  cfg.GetCalendarAPIKey(),
		http:    &http.Client{Timeout: cfg.GetProviderTimeout()},
	}
}

// FreeBusy returns the busy periods of calendarID within [start, end).
func (c *Client) FreeBusy(ctx context.Context, calendarID string, start, end time.Time) ([]Interval, error) {
	payload := freeBusyRequest{
		TimeMin: start.UTC().Format(time.RFC3339),
		TimeMax: end.UTC().Format(time.RFC3339),
		Items:   []calendarItem{{ID: calendarID}},
	}

	var out freeBusyResponse
	if err := c.post(ctx, "/freeBusy", payload, &out); err != nil {
		return nil, err
	}

	cal, ok := out.Calendars[calendarID]
	if !ok {
		return nil, fmt.Errorf("calendar %s missing from freeBusy response", calendarID)
	}
	if len(cal.Errors) > 0 {
		return nil, fmt.Errorf("calendar %s freeBusy error: %s", calendarID, cal.Errors[0].Reason)
	}

	busy := make([]Interval, 0, len(cal.Busy))
	for _, p := range cal.Busy {
		busy = append(busy, Interval{Start: p.Start, End: p.End})
	}
	return busy, nil
}

// CreateEvent inserts an event and returns the provider's event id.
func (c *Client) CreateEvent(ctx context.Context, calendarID string, details EventDetails) (string, error) {
	payload := eventRequest{
		Summary:     details.Summary,
		Description: details.Description,
		Start:       eventTime{DateTime: details.Start.Format(time.RFC3339), TimeZone: details.Timezone},
		End:         eventTime{DateTime: details.End.Format(time.RFC3339), TimeZone: details.Timezone},
	}

	path := "/calendars/" + url.PathEscape(calendarID) + "/events"
	if details.RequestID != "" {
		path += "?requestId=" + url.QueryEscape(details.RequestID)
	}

	var out eventResponse
	if err := c.post(ctx, path, payload, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("calendar returned an event without id")
	}
	return out.ID, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal calendar payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calendar request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("calendar service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode calendar response: %w", err)
	}
	return nil
}
