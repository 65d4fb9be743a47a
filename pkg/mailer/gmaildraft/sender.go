// Package gmaildraft implements the draft-review email provider.
// Instead of sending, it creates a draft in the business owner's Gmail
// account so a human can review, tweak, and send it themselves. Used when
// the business prefers manual review over automatic sending.
package gmaildraft

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/tradedesk/billing/pkg/cache"
	"github.com/tradedesk/billing/pkg/mailer"
)

const draftsEndpoint = "https://gmail.googleapis.com/gmail/v1/users/me/drafts"

// ErrNotConnected is returned when the business has no Gmail connection.
var ErrNotConnected = errors.New("gmaildraft: account not connected")

// TokenStore caches short-lived access tokens per business so each
// orchestrator run does not redeem the refresh token again. Injected, not
// package-level: token state is an explicit dependency.
type TokenStore = cache.Cache[oauth2.Token]

// Config holds the OAuth client used to redeem business refresh tokens.
type Config struct {
	ClientID     string `env:"GMAIL_CLIENT_ID"`
	ClientSecret string `env:"GMAIL_CLIENT_SECRET"`
	TokenURL     string `env:"GMAIL_TOKEN_URL" envDefault:"https://oauth2.googleapis.com/token"`
	Endpoint     string `env:"GMAIL_DRAFTS_ENDPOINT"` // override for tests
}

// Configured reports whether the OAuth client credentials are present.
func (c Config) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// Sender implements mailer.Sender by creating a reviewable draft.
type Sender struct {
	config       Config
	httpClient   *http.Client
	tokens       TokenStore
	refreshToken string
	accountKey   string // token cache key, scoped per business
}

// New creates a draft sender for one business's connected account.
func New(cfg Config, refreshToken, accountKey string, tokens TokenStore) *Sender {
	if cfg.Endpoint == "" {
		cfg.Endpoint = draftsEndpoint
	}
	return &Sender{
		config:       cfg,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		tokens:       tokens,
		refreshToken: refreshToken,
		accountKey:   accountKey,
	}
}

// Send implements mailer.Sender. The "send" creates a draft; delivery to
// the client happens when the business owner reviews and sends it.
func (s *Sender) Send(ctx context.Context, email *mailer.Email) error {
	if s.refreshToken == "" {
		return ErrNotConnected
	}

	token, err := s.accessToken(ctx)
	if err != nil {
		return fmt.Errorf("gmaildraft: failed to obtain access token: %w", err)
	}

	raw, err := buildRawMessage(email)
	if err != nil {
		return fmt.Errorf("gmaildraft: failed to build message: %w", err)
	}

	payload, err := json.Marshal(map[string]any{
		"message": map[string]string{
			"raw": base64.URLEncoding.EncodeToString(raw),
		},
	})
	if err != nil {
		return fmt.Errorf("gmaildraft: failed to encode draft: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("gmaildraft: failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gmaildraft: draft creation failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("gmaildraft: draft creation failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return nil
}

// accessToken returns a cached access token or redeems the refresh token.
func (s *Sender) accessToken(ctx context.Context) (*oauth2.Token, error) {
	if s.tokens != nil {
		if tok, err := s.tokens.Get(ctx, s.accountKey); err == nil && tok.Valid() {
			return &tok, nil
		}
	}

	conf := &oauth2.Config{
		ClientID:     s.config.ClientID,
		ClientSecret: s.config.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: s.config.TokenURL},
	}

	src := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: s.refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, err
	}

	if s.tokens != nil {
		ttl := time.Until(tok.Expiry) - time.Minute
		if ttl > 0 {
			// Best-effort: a cold cache just means another token exchange.
			_ = s.tokens.Set(ctx, s.accountKey, *tok, ttl)
		}
	}

	return tok, nil
}

// buildRawMessage assembles the RFC 822 message Gmail stores as the draft.
func buildRawMessage(email *mailer.Email) ([]byte, error) {
	var buf bytes.Buffer
	mixed := multipart.NewWriter(&buf)

	headers := []string{
		"To: " + strings.Join(email.To, ", "),
		"Subject: " + mime.QEncoding.Encode("utf-8", email.Subject),
		"MIME-Version: 1.0",
		`Content-Type: multipart/mixed; boundary="` + mixed.Boundary() + `"`,
	}
	if email.ReplyTo != "" {
		headers = append(headers, "Reply-To: "+email.ReplyTo)
	}
	buf.WriteString(strings.Join(headers, "\r\n") + "\r\n\r\n")

	htmlHeader := textproto.MIMEHeader{}
	htmlHeader.Set("Content-Type", `text/html; charset="utf-8"`)
	p, err := mixed.CreatePart(htmlHeader)
	if err != nil {
		return nil, err
	}
	if _, err := p.Write([]byte(email.HTML)); err != nil {
		return nil, err
	}

	for _, a := range email.Attachments {
		attHeader := textproto.MIMEHeader{}
		attHeader.Set("Content-Type", a.ContentType)
		attHeader.Set("Content-Transfer-Encoding", "base64")
		attHeader.Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, a.Filename))
		p, err := mixed.CreatePart(attHeader)
		if err != nil {
			return nil, err
		}
		enc := base64.NewEncoder(base64.StdEncoding, p)
		if _, err := enc.Write(a.Content); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
	}

	if err := mixed.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
