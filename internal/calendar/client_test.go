package calendar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type clientTestConfig struct {
	url string
}

func (c clientTestConfig) GetCalendarAPIURL() string              { return c.url }
func (c clientTestConfig) GetCalendarAPIKey() string              { return "cal-key" }
func (c clientTestConfig) GetProviderTimeout() time.Duration      { return 2 * time.Second }
func (c clientTestConfig) GetAvailabilityCacheTTL() time.Duration { return time.Minute }

func TestClientFreeBusy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/freeBusy" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer cal-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req freeBusyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = w.Write([]byte(`{"calendars":{"cal-1":{"busy":[{"start":"2026-03-02T10:00:00Z","end":"2026-03-02T10:30:00Z"}]}}}`))
	}))
	defer srv.Close()

	client := NewClient(clientTestConfig{url: srv.URL})
	busy, err := client.FreeBusy(context.Background(), "cal-1", at("09:00"), at("17:00"))
	if err != nil {
		t.Fatalf("free busy: %v", err)
	}
	if len(busy) != 1 || !busy[0].Start.Equal(at("10:00")) {
		t.Fatalf("unexpected busy %v", busy)
	}
}

func TestClientCreateEventSurfacesHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend down", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(clientTestConfig{url: srv.URL})
	_, err := client.CreateEvent(context.Background(), "cal-1", EventDetails{
		Summary: "Cleaning",
		Start:   at("10:00"),
		End:     at("10:30"),
	})
	if err == nil {
		t.Fatal("expected error for 502 response")
	}
}

func TestNewClientWithoutURLIsNil(t *testing.T) {
	if NewClient(clientTestConfig{}) != nil {
		t.Fatal("expected nil client without url")
	}
}
