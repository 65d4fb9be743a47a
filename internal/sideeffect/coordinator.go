// Package sideeffect runs everything that should happen after a
// lifecycle transition commits but must never block or fail it:
// activity records, owner notifications, bookkeeping sync. Effects go
// through the durable job queue so a crashed worker retries them; an
// enqueue failure is logged and swallowed.
package sideeffect

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tradedesk/billing/internal/billing"
	"github.com/tradedesk/billing/pkg/job"
)

// Task names dispatched through the job queue.
const (
	TaskActivity          = "activity.append"
	TaskNotify            = "notify.owner"
	TaskAccountingInvoice = "accounting.sync_invoice"
	TaskAccountingPayment = "accounting.record_payment"
)

// ActivityPayload appends one audit trail entry.
type ActivityPayload struct {
	BusinessID string         `json:"business_id"`
	DocumentID string         `json:"document_id"`
	Action     billing.Action `json:"action"`
	Channel    string         `json:"channel,omitempty"`
	Detail     string         `json:"detail,omitempty"`
}

// NotifyPayload pushes one owner notification.
type NotifyPayload struct {
	BusinessID string `json:"business_id"`
	DocumentID string `json:"document_id"`
	Category   string `json:"category"`
	Title      string `json:"title"`
	Body       string `json:"body"`
}

// AccountingPayload targets a document for bookkeeping sync.
type AccountingPayload struct {
	DocumentID string `json:"document_id"`
}

// Enqueuer is the slice of the job manager the coordinator needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, name string, payload any, opts ...job.EnqueueOption) error
}

// Coordinator fans a committed transition out into queued effects.
// None of its methods return errors: by the time they run, the
// transition is already durable and the user already got their answer.
type Coordinator struct {
	jobs Enqueuer
	log  *slog.Logger
}

func NewCoordinator(jobs Enqueuer, log *slog.Logger) *Coordinator {
	return &Coordinator{jobs: jobs, log: log}
}

// DocumentSent records the send and, for invoices, queues the
// bookkeeping mirror.
func (c *Coordinator) DocumentSent(ctx context.Context, doc *billing.Document, channel string) {
	c.enqueue(ctx, TaskActivity, ActivityPayload{
		BusinessID: doc.BusinessID,
		DocumentID: doc.ID,
		Action:     billing.ActionSend,
		Channel:    channel,
	})
	c.enqueue(ctx, TaskNotify, NotifyPayload{
		BusinessID: doc.BusinessID,
		DocumentID: doc.ID,
		Category:   "document_sent",
		Title:      fmt.Sprintf("%s %s sent", titleKind(doc.Kind), doc.Number),
		Body:       fmt.Sprintf("Delivered via %s.", channel),
	})

	if doc.Kind == billing.KindInvoice {
		c.enqueue(ctx, TaskAccountingInvoice, AccountingPayload{DocumentID: doc.ID},
			job.MaxAttempts(5),
			job.UniqueFor(time.Hour),
			job.UniqueKey("acct-invoice:"+doc.ID),
		)
	}
}

// DocumentPaid records the payment and queues the remote payment sync.
func (c *Coordinator) DocumentPaid(ctx context.Context, doc *billing.Document) {
	c.enqueue(ctx, TaskActivity, ActivityPayload{
		BusinessID: doc.BusinessID,
		DocumentID: doc.ID,
		Action:     billing.ActionMarkPaid,
	})
	c.enqueue(ctx, TaskNotify, NotifyPayload{
		BusinessID: doc.BusinessID,
		DocumentID: doc.ID,
		Category:   "payment_recorded",
		Title:      fmt.Sprintf("Invoice %s paid", doc.Number),
		Body:       doc.Total.Format(doc.Currency) + " received.",
	})
	c.enqueue(ctx, TaskAccountingPayment, AccountingPayload{DocumentID: doc.ID},
		job.MaxAttempts(5),
		job.UniqueFor(time.Hour),
		job.UniqueKey("acct-payment:"+doc.ID),
	)
}

// QuoteResolved records a client's accept or decline.
func (c *Coordinator) QuoteResolved(ctx context.Context, doc *billing.Document, action billing.Action) {
	c.enqueue(ctx, TaskActivity, ActivityPayload{
		BusinessID: doc.BusinessID,
		DocumentID: doc.ID,
		Action:     action,
	})

	title := fmt.Sprintf("Quote %s declined", doc.Number)
	category := "quote_declined"
	if action == billing.ActionAccept {
		title = fmt.Sprintf("Quote %s accepted", doc.Number)
		category = "quote_accepted"
	}
	c.enqueue(ctx, TaskNotify, NotifyPayload{
		BusinessID: doc.BusinessID,
		DocumentID: doc.ID,
		Category:   category,
		Title:      title,
		Body:       doc.Total.Format(doc.Currency),
	})
}

// DocumentCancelled records a manual cancellation.
func (c *Coordinator) DocumentCancelled(ctx context.Context, doc *billing.Document) {
	c.enqueue(ctx, TaskActivity, ActivityPayload{
		BusinessID: doc.BusinessID,
		DocumentID: doc.ID,
		Action:     billing.ActionCancel,
	})
}

// DeliveryFailed leaves an audit record of an exhausted delivery.
func (c *Coordinator) DeliveryFailed(ctx context.Context, doc *billing.Document, detail string) {
	c.enqueue(ctx, TaskActivity, ActivityPayload{
		BusinessID: doc.BusinessID,
		DocumentID: doc.ID,
		Action:     billing.ActionSend,
		Detail:     "delivery failed: " + detail,
	})
}

// ReminderSent records which channels an escalation reminder used.
func (c *Coordinator) ReminderSent(ctx context.Context, doc *billing.Document, tier int, channels []string) {
	c.enqueue(ctx, TaskActivity, ActivityPayload{
		BusinessID: doc.BusinessID,
		DocumentID: doc.ID,
		Action:     "remind",
		Detail:     fmt.Sprintf("tier %d via %v", tier, channels),
	})
}

// QuoteExpired records an automatic validity lapse.
func (c *Coordinator) QuoteExpired(ctx context.Context, doc *billing.Document) {
	c.enqueue(ctx, TaskActivity, ActivityPayload{
		BusinessID: doc.BusinessID,
		DocumentID: doc.ID,
		Action:     billing.ActionExpire,
	})
}

func (c *Coordinator) enqueue(ctx context.Context, name string, payload any, opts ...job.EnqueueOption) {
	if err := c.jobs.Enqueue(ctx, name, payload, opts...); err != nil {
		c.log.ErrorContext(ctx, "side effect dropped",
			slog.String("task", name),
			slog.Any("error", err),
		)
	}
}

func titleKind(k billing.Kind) string {
	if k == billing.KindQuote {
		return "Quote"
	}
	return "Invoice"
}
