// Package delivery gets a finished email to the client through one of
// three channels, in a fixed preference order with sequential fallback.
// Channel failures are classified so the caller can tell the business
// owner what broke and how to fix it.
package delivery

import (
	"github.com/tradedesk/billing/internal/billing"
	"github.com/tradedesk/billing/pkg/mailer"
	"github.com/tradedesk/billing/pkg/mailer/gmaildraft"
	"github.com/tradedesk/billing/pkg/mailer/smtp"
)

// Channel identifies how an email left (or tried to leave) the system.
type Channel string

const (
	// ChannelSMTP sends from the business-owned mailbox, so replies
	// land where the owner already works.
	ChannelSMTP Channel = "smtp"
	// ChannelDraft files the message as a draft in the owner's Gmail
	// for them to review and send.
	ChannelDraft Channel = "draft"
	// ChannelDirect sends via the platform's transactional provider.
	ChannelDirect Channel = "direct"
	// ChannelSMS is reminder-only and never part of document delivery.
	ChannelSMS Channel = "sms"
)

// ChannelSender pairs a channel name with the provider that serves it.
type ChannelSender struct {
	Channel Channel
	Sender  mailer.Sender
}

// ChannelSet holds the channels available to one business. Nil entries
// are unconfigured.
type ChannelSet struct {
	SMTP   *ChannelSender
	Draft  *ChannelSender
	Direct *ChannelSender
}

// Order returns the channels to try, best first. SMTP leads whenever
// the business has its own mailbox. After that the delivery mode
// decides: manual review prefers a reviewable draft over an automatic
// platform send; automatic send skips the draft step entirely.
func (s ChannelSet) Order(mode billing.DeliveryMode) []ChannelSender {
	var order []ChannelSender
	if s.SMTP != nil {
		order = append(order, *s.SMTP)
	}
	if mode == billing.ModeManualReview && s.Draft != nil {
		order = append(order, *s.Draft)
	}
	if s.Direct != nil {
		order = append(order, *s.Direct)
	}
	return order
}

// Factory builds the per-business channel set. SMTP and draft senders
// are constructed per call because their credentials live on the
// business profile; the direct sender is platform-wide and shared.
type Factory struct {
	direct   mailer.Sender
	draftCfg gmaildraft.Config
	tokens   gmaildraft.TokenStore
}

func NewFactory(direct mailer.Sender, draftCfg gmaildraft.Config, tokens gmaildraft.TokenStore) *Factory {
	return &Factory{
		direct:   direct,
		draftCfg: draftCfg,
		tokens:   tokens,
	}
}

// ForBusiness assembles the channels this business can use right now.
func (f *Factory) ForBusiness(b *billing.BusinessProfile) ChannelSet {
	var set ChannelSet

	if b.SMTPConfigured() {
		set.SMTP = &ChannelSender{
			Channel: ChannelSMTP,
			Sender: smtp.New(smtp.Config{
				Host:     b.SMTP.Host,
				Port:     b.SMTP.Port,
				Username: b.SMTP.Username,
				Password: b.SMTP.Password,
				From:     b.SMTP.From,
			}),
		}
	}

	if b.DraftConfigured() && f.draftCfg.Configured() {
		set.Draft = &ChannelSender{
			Channel: ChannelDraft,
			Sender:  gmaildraft.New(f.draftCfg, b.GmailRefreshToken, b.ID, f.tokens),
		}
	}

	if f.direct != nil {
		set.Direct = &ChannelSender{
			Channel: ChannelDirect,
			Sender:  f.direct,
		}
	}

	return set
}
