package voice

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"leadbooking_backend/internal/slots"

	"github.com/google/uuid"
)

type voiceTestConfig struct{ url string }

func (c voiceTestConfig) GetVoiceAPIURL() string { return c.url }
func (c voiceTestConfig) GetVoiceAPIKey() string { return "voice-key" }

func TestClientPlaceCallSendsSlotsAsMetadata(t *testing.T) {
	start := time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)
	var got placeCallRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = w.Write([]byte(`{"callId":"call-42"}`))
	}))
	defer srv.Close()

	client := NewClient(voiceTestConfig{url: srv.URL}, time.Second)
	callID, err := client.PlaceCall(context.Background(), CallRequest{
		TenantID:   "acme",
		AgentID:    "agent-1",
		LeadID:     uuid.New(),
		Phone:      "+447700900123",
		Attempt:    1,
		Candidates: []slots.Candidate{{Start: start, End: start.Add(30 * time.Minute)}},
	})
	if err != nil {
		t.Fatalf("place call: %v", err)
	}
	if callID != "call-42" {
		t.Fatalf("expected call-42, got %s", callID)
	}
	if len(got.Metadata.Slots) != 1 || got.Metadata.Slots[0].Index != 1 {
		t.Fatalf("expected one indexed slot in metadata, got %+v", got.Metadata.Slots)
	}
}

func TestClientPlaceCallHonoursDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	client := NewClient(voiceTestConfig{url: srv.URL}, 5*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := client.PlaceCall(ctx, CallRequest{LeadID: uuid.New()}); err == nil {
		t.Fatal("expected deadline error")
	}
}
