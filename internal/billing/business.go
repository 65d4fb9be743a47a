package billing

import (
	"strings"
	"time"
)

// DeliveryMode controls how outbound email degrades when the
// business-owned mailbox is unavailable.
type DeliveryMode string

const (
	// ModeManualReview prefers leaving a draft in the owner's mailbox
	// so they can read it before it goes out.
	ModeManualReview DeliveryMode = "manual_review"
	// ModeAutomaticSend goes straight to platform-sent email.
	ModeAutomaticSend DeliveryMode = "automatic_send"
)

// ReminderTone selects the wording family for overdue reminders.
type ReminderTone string

const (
	ToneFriendly     ReminderTone = "friendly"
	ToneProfessional ReminderTone = "professional"
	ToneFirm         ReminderTone = "firm"
)

// SMTPSettings are the business-owned mailbox credentials. These are
// per-business data, not process configuration, so they live on the
// profile rather than in the environment.
type SMTPSettings struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// BusinessProfile is the issuing side of every document: identity on
// the artifact, payment details, and delivery preferences.
type BusinessProfile struct {
	ID           string
	OwnerUserID  string
	Name         string
	ABN          string
	Email        string
	Phone        string
	Address      string
	LogoKey      string
	BankName     string
	BankBSB      string
	BankAccount  string
	PaymentTerms string

	DeliveryMode   DeliveryMode
	EmailSignature string

	SMTP *SMTPSettings
	// GmailRefreshToken enables the mailbox-draft channel when the
	// owner has connected their Google account.
	GmailRefreshToken string
	// AccountingTenantID is set when the business is connected to an
	// external bookkeeping system.
	AccountingTenantID string

	RemindersEnabled    bool
	SMSRemindersEnabled bool
	ReminderTone        ReminderTone

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Complete reports whether the profile has the minimum identity needed
// to appear on an outbound document.
func (b *BusinessProfile) Complete() bool {
	return b != nil && strings.TrimSpace(b.Name) != ""
}

// SMTPConfigured reports whether the business-owned mailbox channel is
// available.
func (b *BusinessProfile) SMTPConfigured() bool {
	return b.SMTP != nil && b.SMTP.Host != "" && b.SMTP.From != ""
}

// DraftConfigured reports whether the mailbox-draft channel is
// available.
func (b *BusinessProfile) DraftConfigured() bool {
	return b.GmailRefreshToken != ""
}

// Tone returns the configured reminder tone, defaulting to friendly.
func (b *BusinessProfile) Tone() ReminderTone {
	switch b.ReminderTone {
	case ToneProfessional, ToneFirm:
		return b.ReminderTone
	default:
		return ToneFriendly
	}
}
