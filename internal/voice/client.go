// Package voice places outbound AI voice calls through the voice provider.
package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"leadbooking_backend/internal/slots"
	"leadbooking_backend/platform/config"

	"github.com/google/uuid"
)

// ErrNotConfigured is returned by a dispatcher with no provider behind it.
var ErrNotConfigured = errors.New("voice provider not configured")

// CallRequest is everything the voice agent needs to run the call.
type CallRequest struct {
	TenantID   string
	AgentID    string
	CallerID   string
	LeadID     uuid.UUID
	LeadName   string
	Phone      string
	Service    string
	Attempt    int
	Candidates []slots.Candidate
}

// Dispatcher places a call and returns the provider call id.
type Dispatcher interface {
	PlaceCall(ctx context.Context, req CallRequest) (string, error)
}

// Client is an HTTP JSON voice provider client.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

type placeCallRequest struct {
	AgentID  string       `json:"agentId"`
	To       string       `json:"to"`
	From     string       `json:"from,omitempty"`
	Metadata callMetadata `json:"metadata"`
}

type callMetadata struct {
	TenantID string        `json:"tenantId"`
	LeadID   string        `json:"leadId"`
	LeadName string        `json:"leadName,omitempty"`
	Service  string        `json:"service,omitempty"`
	Attempt  int           `json:"attempt"`
	Slots    []offeredSlot `json:"slots"`
}

type offeredSlot struct {
	Index int       `json:"index"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type placeCallResponse struct {
	CallID string `json:"callId"`
}

// NewClient returns nil when no voice provider is configured.
func NewClient(cfg config.VoiceConfig, timeout time.Duration) *Client {
	if cfg.GetVoiceAPIURL() == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.GetVoiceAPIURL(), "/"),
		apiKey:  cfg.GetVoiceAPIKey(),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) PlaceCall(ctx context.Context, req CallRequest) (string, error) {
	meta := callMetadata{
		TenantID: req.TenantID,
		LeadID:   req.LeadID.String(),
		LeadName: req.LeadName,
		Service:  req.Service,
		Attempt:  req.Attempt,
		Slots:    make([]offeredSlot, 0, len(req.Candidates)),
	}
	for i, cand := range req.Candidates {
		meta.Slots = append(meta.Slots, offeredSlot{Index: i + 1, Start: cand.Start, End: cand.End})
	}

	body, err := json.Marshal(placeCallRequest{
		AgentID:  req.AgentID,
		To:       req.Phone,
		From:     req.CallerID,
		Metadata: meta,
	})
	if err != nil {
		return "", fmt.Errorf("marshal call payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/calls", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("voice request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("voice service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var out placeCallResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode voice response: %w", err)
	}
	if out.CallID == "" {
		return "", errors.New("voice service returned no call id")
	}
	return out.CallID, nil
}

// Unavailable always fails, sending every lead down the SMS path.
type Unavailable struct{}

func (Unavailable) PlaceCall(context.Context, CallRequest) (string, error) {
	return "", ErrNotConfigured
}
