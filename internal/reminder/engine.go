package reminder

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/tradedesk/billing/internal/billing"
	"github.com/tradedesk/billing/internal/billing/store"
	"github.com/tradedesk/billing/internal/delivery"
	"github.com/tradedesk/billing/pkg/mailer"
)

//go:embed templates
var templatesFS embed.FS

// Deliverer runs the ordered-fallback email delivery.
type Deliverer interface {
	Deliver(ctx context.Context, senders []delivery.ChannelSender, email *mailer.Email) (*delivery.Receipt, error)
}

// ChannelFactory builds the per-business channel set.
type ChannelFactory interface {
	ForBusiness(b *billing.BusinessProfile) delivery.ChannelSet
}

// Effects records reminder and expiry outcomes in the audit trail.
type Effects interface {
	ReminderSent(ctx context.Context, doc *billing.Document, tier int, channels []string)
	QuoteExpired(ctx context.Context, doc *billing.Document)
}

// Deps are the engine's collaborators. SMS may be nil when no gateway
// is deployed; email reminders still go out.
type Deps struct {
	Documents  store.DocumentStore
	Clients    store.ClientStore
	Businesses store.BusinessStore
	Reminders  store.ReminderStore
	Channels   ChannelFactory
	Deliverer  Deliverer
	SMS        delivery.SMSSender
	Effects    Effects
	Log        *slog.Logger
}

// Engine walks every business once per run and sends whatever tier
// each overdue invoice has crossed. A failure on one invoice or one
// business never stops the sweep.
type Engine struct {
	deps     Deps
	renderer *mailer.Renderer
	now      func() time.Time
}

func NewEngine(deps Deps) *Engine {
	sub, err := fs.Sub(templatesFS, "templates")
	if err != nil {
		panic(err)
	}
	return &Engine{
		deps:     deps,
		renderer: mailer.NewRenderer(sub),
		now:      time.Now,
	}
}

// Run sweeps all businesses.
func (e *Engine) Run(ctx context.Context) error {
	businesses, err := e.deps.Businesses.ListBusinesses(ctx)
	if err != nil {
		return fmt.Errorf("reminder: list businesses: %w", err)
	}

	for i := range businesses {
		b := &businesses[i]
		if err := e.RunBusiness(ctx, b); err != nil {
			e.deps.Log.ErrorContext(ctx, "reminder sweep failed for business",
				slog.String("business_id", b.ID),
				slog.Any("error", err),
			)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// RunBusiness expires lapsed quotes and escalates overdue invoices for
// one business.
func (e *Engine) RunBusiness(ctx context.Context, b *billing.BusinessProfile) error {
	now := e.now()

	e.expireQuotes(ctx, b, now)

	if !b.RemindersEnabled {
		return nil
	}

	overdue, err := e.deps.Documents.ListOverdue(ctx, b.ID, now)
	if err != nil {
		return fmt.Errorf("list overdue: %w", err)
	}

	for i := range overdue {
		doc := &overdue[i]
		if err := e.remind(ctx, b, doc, now); err != nil {
			e.deps.Log.ErrorContext(ctx, "reminder failed",
				slog.String("document_id", doc.ID),
				slog.Any("error", err),
			)
		}
	}
	return nil
}

func (e *Engine) remind(ctx context.Context, b *billing.BusinessProfile, doc *billing.Document, now time.Time) error {
	tier := TierFor(doc.DaysPastDue(now))
	if tier == 0 {
		return nil
	}

	// Load the client before claiming, so a failed lookup leaves the
	// tier unclaimed for the next run instead of burning it with no
	// send attempted.
	client, err := e.deps.Clients.GetClient(ctx, doc.ClientID)
	if err != nil {
		return fmt.Errorf("load client: %w", err)
	}

	// Claim before sending. If we crash between here and the send, the
	// invoice skips this tier rather than ever reminding twice.
	claimed, err := e.deps.Reminders.Claim(ctx, doc.ID, tier, now)
	if err != nil {
		return fmt.Errorf("claim tier %d: %w", tier, err)
	}
	if !claimed {
		return nil
	}

	var used []string

	if client.HasEmail() {
		channel, err := e.sendEmail(ctx, b, doc, client, tier, now)
		if err != nil {
			e.deps.Log.WarnContext(ctx, "reminder email failed",
				slog.String("document_id", doc.ID),
				slog.Int("tier", tier),
				slog.Any("error", err),
			)
		} else {
			used = append(used, string(channel))
		}
	}

	if e.deps.SMS != nil && b.SMSRemindersEnabled {
		if mobile, ok := client.MobileE164(); ok {
			if err := e.deps.SMS.SendSMS(ctx, mobile, smsBody(b, doc, client, now)); err != nil {
				e.deps.Log.WarnContext(ctx, "reminder sms failed",
					slog.String("document_id", doc.ID),
					slog.Any("error", err),
				)
			} else {
				used = append(used, string(delivery.ChannelSMS))
			}
		}
	}

	if err := e.deps.Reminders.RecordChannels(ctx, doc.ID, tier, used); err != nil {
		e.deps.Log.WarnContext(ctx, "recording reminder channels failed",
			slog.String("document_id", doc.ID),
			slog.Any("error", err),
		)
	}
	e.deps.Effects.ReminderSent(ctx, doc, tier, used)
	return nil
}

type reminderData struct {
	ClientName   string
	BusinessName string
	Number       string
	Total        string
	DueDate      string
	DaysOverdue  int
	BankDetails  string
}

func (e *Engine) sendEmail(ctx context.Context, b *billing.BusinessProfile, doc *billing.Document, client *billing.Client, tier int, now time.Time) (delivery.Channel, error) {
	data := reminderData{
		ClientName:   client.Name,
		BusinessName: b.Name,
		Number:       doc.Number,
		Total:        doc.Total.Format(doc.Currency),
		DaysOverdue:  doc.DaysPastDue(now),
	}
	if doc.DueAt != nil {
		data.DueDate = doc.DueAt.Format("2 Jan 2006")
	}
	if b.BankBSB != "" && b.BankAccount != "" {
		data.BankDetails = fmt.Sprintf("BSB: %s  \nAccount: %s", b.BankBSB, b.BankAccount)
	}

	template := fmt.Sprintf("%s_%d.md", b.Tone(), tier)
	result, err := e.renderer.Render("base.html", template, data)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", template, err)
	}

	subjectRaw, _ := result.Metadata["Subject"].(string)
	subject, err := mailer.RenderSubject(subjectRaw, data)
	if err != nil {
		return "", fmt.Errorf("render subject: %w", err)
	}

	email := &mailer.Email{
		To:      []string{mailer.Recipient(client.Name, client.Email)},
		ReplyTo: b.Email,
		Subject: subject,
		HTML:    result.HTML,
		Text:    result.Text,
		Tags:    mailer.SimpleTags("reminder"),
	}

	order := e.deps.Channels.ForBusiness(b).Order(b.DeliveryMode)
	receipt, err := e.deps.Deliverer.Deliver(ctx, order, email)
	if err != nil {
		return "", err
	}
	return receipt.Channel, nil
}

// smsBody keeps reminders inside one SMS segment where names allow.
func smsBody(b *billing.BusinessProfile, doc *billing.Document, client *billing.Client, now time.Time) string {
	return fmt.Sprintf("Hi %s, a reminder that invoice %s (%s) from %s is %d days overdue. Please reply or call if you have any questions.",
		client.Name, doc.Number, doc.Total.Format(doc.Currency), b.Name, doc.DaysPastDue(now))
}

func (e *Engine) expireQuotes(ctx context.Context, b *billing.BusinessProfile, now time.Time) {
	lapsed, err := e.deps.Documents.ListLapsedQuotes(ctx, b.ID, now)
	if err != nil {
		e.deps.Log.ErrorContext(ctx, "listing lapsed quotes failed",
			slog.String("business_id", b.ID),
			slog.Any("error", err),
		)
		return
	}

	for i := range lapsed {
		doc := &lapsed[i]
		updated, err := e.deps.Documents.Transition(ctx, doc.ID, billing.StatusSent, billing.StatusExpired, store.Stamp{})
		if err != nil {
			// A client accepting right at the validity boundary wins;
			// the quote is theirs, not expired.
			continue
		}
		e.deps.Effects.QuoteExpired(ctx, updated)
	}
}
