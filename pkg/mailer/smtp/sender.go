// Package smtp implements the business-owned mailbox email provider.
// Sending through the business's own SMTP account preserves sender identity
// best, so the delivery orchestrator tries this channel first whenever the
// business has connected one.
package smtp

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"strings"

	"github.com/tradedesk/billing/pkg/mailer"
)

// Config holds the connection details for a business's SMTP account.
// These come from the business profile's email connection, not from env:
// every business brings its own mailbox.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string // sender address, usually the business email
}

// Configured reports whether the connection is usable.
func (c Config) Configured() bool {
	return c.Host != "" && c.Username != "" && c.From != ""
}

// Sender implements mailer.Sender over plain authenticated SMTP submission.
type Sender struct {
	config Config

	// sendMail is swappable for tests; defaults to net/smtp.SendMail.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// New creates a new SMTP sender for a business mailbox.
func New(cfg Config) *Sender {
	return &Sender{
		config:   cfg,
		sendMail: smtp.SendMail,
	}
}

// Send implements mailer.Sender.
// The context is consulted before dialing; net/smtp itself does not take
// one, so a caller-level timeout wraps the whole submission.
func (s *Sender) Send(ctx context.Context, email *mailer.Email) error {
	if !s.config.Configured() {
		return errors.New("smtp: connection not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	from := email.From
	if from == "" {
		from = s.config.From
	}

	msg, err := buildMessage(from, email)
	if err != nil {
		return fmt.Errorf("smtp: failed to build message: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	auth := smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)

	recipients := make([]string, 0, len(email.To)+len(email.CC)+len(email.BCC))
	recipients = append(recipients, email.To...)
	recipients = append(recipients, email.CC...)
	recipients = append(recipients, email.BCC...)

	done := make(chan error, 1)
	go func() {
		done <- s.sendMail(addr, auth, s.config.From, recipients, msg)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp: failed to send email: %w", err)
		}
		return nil
	}
}

// buildMessage assembles a multipart/mixed MIME message: an alternative
// part for text+HTML bodies plus base64 parts for each attachment.
func buildMessage(from string, email *mailer.Email) ([]byte, error) {
	var buf bytes.Buffer
	mixed := multipart.NewWriter(&buf)

	headers := []string{
		"From: " + from,
		"To: " + strings.Join(email.To, ", "),
		"Subject: " + mime.QEncoding.Encode("utf-8", email.Subject),
		"MIME-Version: 1.0",
		`Content-Type: multipart/mixed; boundary="` + mixed.Boundary() + `"`,
	}
	if len(email.CC) > 0 {
		headers = append(headers, "Cc: "+strings.Join(email.CC, ", "))
	}
	if email.ReplyTo != "" {
		headers = append(headers, "Reply-To: "+email.ReplyTo)
	}
	for k, v := range email.Headers {
		headers = append(headers, k+": "+v)
	}
	// Nothing has been written through the multipart writer yet, so the
	// headers land at the top of the buffer.
	buf.WriteString(strings.Join(headers, "\r\n") + "\r\n\r\n")

	// Body: multipart/alternative inside the mixed envelope.
	altBoundary := multipart.NewWriter(nil).Boundary()
	bodyHeader := textproto.MIMEHeader{}
	bodyHeader.Set("Content-Type", `multipart/alternative; boundary="`+altBoundary+`"`)
	bodyPart, err := mixed.CreatePart(bodyHeader)
	if err != nil {
		return nil, err
	}

	alt := multipart.NewWriter(bodyPart)
	if err := alt.SetBoundary(altBoundary); err != nil {
		return nil, err
	}

	if email.Text != "" {
		textHeader := textproto.MIMEHeader{}
		textHeader.Set("Content-Type", `text/plain; charset="utf-8"`)
		p, err := alt.CreatePart(textHeader)
		if err != nil {
			return nil, err
		}
		if _, err := p.Write([]byte(email.Text)); err != nil {
			return nil, err
		}
	}

	htmlHeader := textproto.MIMEHeader{}
	htmlHeader.Set("Content-Type", `text/html; charset="utf-8"`)
	p, err := alt.CreatePart(htmlHeader)
	if err != nil {
		return nil, err
	}
	if _, err := p.Write([]byte(email.HTML)); err != nil {
		return nil, err
	}
	if err := alt.Close(); err != nil {
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
