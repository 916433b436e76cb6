package messaging

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"leadbooking_backend/platform/config"
	"leadbooking_backend/platform/logger"
)

// WhatsAppClient sends text messages through a GOWA-compatible gateway.
type WhatsAppClient struct {
	baseURL  string
	apiKey   string
	deviceID string
	http     *http.Client
	log      *logger.Logger
}

type gowaRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

type gowaResponse struct {
	Results struct {
		MessageID string `json:"message_id"`
	} `json:"results"`
}

// NewWhatsAppClient returns nil when no gateway is configured.
func NewWhatsAppClient(cfg config.MessagingConfig, log *logger.Logger) *WhatsAppClient {
	if cfg.GetWhatsAppURL() == "" {
		return nil
	}
	if log == nil {
		log = logger.Nop()
	}
	timeout := cfg.GetProviderTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &WhatsAppClient{
		baseURL:  strings.TrimRight(cfg.GetWhatsAppURL(), "/"),
		apiKey:   cfg.GetWhatsAppKey(),
		deviceID: cfg.GetWhatsAppDeviceID(),
		http:     &http.Client{Timeout: timeout},
		log:      log,
	}
}

func (c *WhatsAppClient) SendMessage(ctx context.Context, to, body string) (Receipt, error) {
	payload := gowaRequest{
		Phone:   strings.TrimPrefix(to, "+"),
		Message: body,
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return Receipt{}, fmt.Errorf("marshal whatsapp payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/send/message", bytes.NewReader(raw))
	if err != nil {
		return Receipt{}, err
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", formatAuthHeader(c.apiKey))
	}
	if c.deviceID != "" {
		req.Header.Set("X-Device-Id", c.deviceID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Receipt{}, fmt.Errorf("whatsapp request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Receipt{}, fmt.Errorf("whatsapp service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var out gowaResponse
	_ = json.NewDecoder(resp.Body).Decode(&out)

	c.log.Debug("whatsapp sent via gowa", "message_id", out.Results.MessageID)
	return Receipt{Provider: "whatsapp", MessageID: out.Results.MessageID, AcceptedAt: time.Now()}, nil
}

func formatAuthHeader(apiKey string) string {
	if strings.HasPrefix(strings.ToLower(apiKey), "basic ") {
		return apiKey
	}

	encoded := base64.StdEncoding.EncodeToString([]byte(apiKey))
	return "Basic " + encoded
}
