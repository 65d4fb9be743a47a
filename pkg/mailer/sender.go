package mailer

import "context"

// Sender is the minimal interface an email provider implements.
// The billing delivery channels (business SMTP, draft provider, direct
// provider) are all Senders; the delivery orchestrator decides which one
// a given send goes through.
type Sender interface {
	// Send delivers an email message.
	// The Email must have To, Subject, and HTML already set.
	Send(ctx context.Context, email *Email) error
}
