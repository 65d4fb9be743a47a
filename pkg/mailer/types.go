package mailer

import "fmt"

// Tags represents email tags/categories. Values may be presence-only
// (struct{}{}) or key-value pairs; provider adapters convert as needed.
type Tags map[string]any

// SimpleTags creates presence-only tags from a list of tag names.
func SimpleTags(names ...string) Tags {
	t := make(Tags, len(names))
	for _, n := range names {
		t[n] = struct{}{}
	}
	return t
}

// Recipient formats a name and email into RFC 5322 address format.
// Returns "Name <email>" if name is provided, otherwise just the email.
func Recipient(name, email string) string {
	if name == "" {
		return email
	}
	return fmt.Sprintf("%s <%s>", name, email)
}

// Email represents a fully-prepared message ready for a provider.
type Email struct {
	Headers     map[string]string // custom headers
	Tags        Tags              // provider-specific tags/categories
	Subject     string
	HTML        string
	Text        string // plain text alternative
	From        string // overrides the provider default sender
	ReplyTo     string
	To          []string // at least one required
	CC          []string
	BCC         []string
	Attachments []Attachment
}

// Attachment represents an email attachment.
type Attachment struct {
	Filename    string // display name
	ContentType string // MIME type, e.g. "application/pdf"
	Content     []byte // raw content
}
