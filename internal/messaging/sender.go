// Package messaging sends outbound text messages through the configured
// provider. Every outbound body is rendered from the templates in this
// package, and every send passes the opt-out guard.
package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"leadbooking_backend/platform/config"
	"leadbooking_backend/platform/logger"
)

// Receipt acknowledges that a provider accepted a message.
type Receipt struct {
	Provider   string
	MessageID  string
	AcceptedAt time.Time
}

// Sender delivers a text message to an E.164 number.
type Sender interface {
	SendMessage(ctx context.Context, to, body string) (Receipt, error)
}

// NewSender picks the SMS webhook, then WhatsApp, then a logging no-op.
func NewSender(cfg config.MessagingConfig, log *logger.Logger) Sender {
	if cfg.GetSMSWebhookURL() != "" {
		return NewWebhookSender(cfg.GetSMSWebhookURL(), cfg.GetSMSWebhookToken(), cfg.GetProviderTimeout())
	}
	if wa := NewWhatsAppClient(cfg, log); wa != nil {
		return wa
	}
	return NewNoopSender(log)
}

// WebhookSender posts {to, body} to an SMS gateway.
type WebhookSender struct {
	url   string
	token string
	http  *http.Client
}

type webhookResponse struct {
	ID string `json:"id"`
}

func NewWebhookSender(url, token string, timeout time.Duration) *WebhookSender {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookSender{
		url:   strings.TrimSpace(url),
		token: strings.TrimSpace(token),
		http:  &http.Client{Timeout: timeout},
	}
}

func (s *WebhookSender) SendMessage(ctx context.Context, to, body string) (Receipt, error) {
	raw, err := json.Marshal(map[string]string{
		"to":   to,
		"body": body,
	})
	if err != nil {
		return Receipt{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(raw))
	if err != nil {
		return Receipt{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return Receipt{}, fmt.Errorf("sms webhook request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Receipt{}, fmt.Errorf("sms webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var out webhookResponse
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return Receipt{Provider: "sms-webhook", MessageID: out.ID, AcceptedAt: time.Now()}, nil
}

// NoopSender logs messages instead of sending them. Used in development.
type NoopSender struct {
	log *logger.Logger
}

func NewNoopSender(log *logger.Logger) *NoopSender {
	if log == nil {
		log = logger.Nop()
	}
	return &NoopSender{log: log}
}

func (s *NoopSender) SendMessage(_ context.Context, to, body string) (Receipt, error) {
	s.log.Info("message not sent, no provider configured", "to", to, "chars", len(body))
	return Receipt{Provider: "noop", AcceptedAt: time.Now()}, nil
}
