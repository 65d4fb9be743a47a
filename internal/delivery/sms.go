package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// SMSSender sends a short text message to an E.164 number. Reminders
// are the only caller. SMS never participates in document delivery
// fallback.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// SMSConfig holds the reminder SMS gateway connection.
type SMSConfig struct {
	URL    string `env:"SMS_GATEWAY_URL"`
	APIKey string `env:"SMS_GATEWAY_API_KEY"`
	From   string `env:"SMS_FROM" envDefault:"TradeDesk"`
}

// Configured reports whether a gateway is deployed.
func (c SMSConfig) Configured() bool {
	return c.URL != "" && c.APIKey != ""
}

// HTTPSMS posts messages to a JSON SMS gateway.
type HTTPSMS struct {
	config SMSConfig
	client *http.Client
}

var _ SMSSender = (*HTTPSMS)(nil)

func NewHTTPSMS(cfg SMSConfig) *HTTPSMS {
	return &HTTPSMS{
		config: cfg,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

type smsRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
	Body string `json:"body"`
}

// SendSMS implements SMSSender. Each message carries a unique request ID
// so gateway-side logs can be correlated with the reminder run.
func (s *HTTPSMS) SendSMS(ctx context.Context, to, body string) error {
	payload, err := json.Marshal(smsRequest{
		From: s.config.From,
		To:   to,
		Body: body,
	})
	if err != nil {
		return fmt.Errorf("sms: encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("sms: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.config.APIKey)
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms: gateway request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sms: gateway returned %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}

	return nil
}
