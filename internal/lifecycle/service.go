// Package lifecycle drives documents through their state machine:
// send, payment, quote resolution, cancellation. Every operation runs
// the same shape: load, guard, do the external work, commit the status
// with a compare-and-set write, then hand side effects to the queue.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tradedesk/billing/internal/artifact"
	"github.com/tradedesk/billing/internal/billing"
	"github.com/tradedesk/billing/internal/billing/store"
	"github.com/tradedesk/billing/internal/delivery"
	"github.com/tradedesk/billing/pkg/mailer"
)

// AttachmentPipeline renders and stores the document artifact.
type AttachmentPipeline interface {
	Prepare(ctx context.Context, doc *billing.Document, b *billing.BusinessProfile, client *billing.Client, items []billing.LineItem) (*artifact.Artifact, error)
}

// ChannelFactory builds the per-business channel set.
type ChannelFactory interface {
	ForBusiness(b *billing.BusinessProfile) delivery.ChannelSet
}

// Deliverer runs the ordered-fallback delivery.
type Deliverer interface {
	Deliver(ctx context.Context, senders []delivery.ChannelSender, email *mailer.Email) (*delivery.Receipt, error)
}

// Composer builds outbound emails for documents and receipts.
type Composer interface {
	Document(doc *billing.Document, b *billing.BusinessProfile, client *billing.Client, note, viewURL string, attachments []mailer.Attachment) (*mailer.Email, error)
	Receipt(doc *billing.Document, b *billing.BusinessProfile, client *billing.Client) (*mailer.Email, error)
}

// Effects is the post-commit side effect surface. Its methods never
// fail; failures inside are queued-retry or logged-and-dropped.
type Effects interface {
	DocumentSent(ctx context.Context, doc *billing.Document, channel string)
	DocumentPaid(ctx context.Context, doc *billing.Document)
	QuoteResolved(ctx context.Context, doc *billing.Document, action billing.Action)
	DocumentCancelled(ctx context.Context, doc *billing.Document)
	DeliveryFailed(ctx context.Context, doc *billing.Document, detail string)
}

// Deps are the collaborators a Service needs. All required.
type Deps struct {
	Documents   store.DocumentStore
	Clients     store.ClientStore
	Businesses  store.BusinessStore
	Attachments AttachmentPipeline
	Channels    ChannelFactory
	Deliverer   Deliverer
	Composer    Composer
	Effects     Effects
	Log         *slog.Logger
}

// Service is the document lifecycle orchestrator.
type Service struct {
	deps Deps
	now  func() time.Time
}

func New(deps Deps) *Service {
	return &Service{deps: deps, now: time.Now}
}

// SendOptions tune a send.
type SendOptions struct {
	// Force re-delivers an already-sent document instead of rejecting
	// the duplicate.
	Force bool
	// Note overrides the document's stored cover note for this send.
	Note string
	// AllowMissingAttachment sends the email without the rendered
	// artifact when rendering fails, instead of aborting.
	AllowMissingAttachment bool
}

// SendResult reports a completed send.
type SendResult struct {
	Document    *billing.Document
	Channel     delivery.Channel
	ArtifactKey string
	// Warnings are degradations the caller should surface: fallback
	// channels used, missing attachment, and the like.
	Warnings []string
}

// PaymentResult reports a completed payment recording.
type PaymentResult struct {
	Document *billing.Document
	Warnings []string
}

// Signature carries the client's acceptance evidence.
type Signature struct {
	SignerName   string
	SignatureRef string
}

// Send delivers a document to its client and moves it to sent.
// The guard runs before any rendering or network work, so a duplicate
// click costs one database read and nothing else.
func (s *Service) Send(ctx context.Context, documentID string, opts SendOptions) (*SendResult, error) {
	doc, err := s.load(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if err := billing.Guard(doc, billing.ActionSend, opts.Force); err != nil {
		return nil, err
	}

	b, err := s.deps.Businesses.GetBusiness(ctx, doc.BusinessID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if !b.Complete() {
		return nil, billing.MissingBusinessProfile()
	}

	client, err := s.deps.Clients.GetClient(ctx, doc.ClientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, billing.NotFound()
		}
		return nil, err
	}
	if !client.HasEmail() {
		return nil, billing.MissingContactInfo(client.Name)
	}

	items, err := s.deps.Documents.LineItems(ctx, doc.ID)
	if err != nil {
		return nil, err
	}

	var warnings []string
	var attachments []mailer.Attachment
	var viewURL, artifactKey string

	art, err := s.deps.Attachments.Prepare(ctx, doc, b, client, items)
	switch {
	case err == nil:
		attachments = append(attachments, mailer.Attachment{
			Filename:    art.Filename,
			ContentType: art.ContentType,
			Content:     art.Content,
		})
		viewURL = art.URL
		artifactKey = art.Key
	case opts.AllowMissingAttachment:
		warnings = append(warnings, "document attachment could not be prepared; email sent without it")
		s.deps.Log.WarnContext(ctx, "sending without attachment",
			slog.String("document_id", doc.ID),
			slog.Any("error", err),
		)
	default:
		return nil, err
	}

	email, err := s.deps.Composer.Document(doc, b, client, opts.Note, viewURL, attachments)
	if err != nil {
		return nil, err
	}

	order := s.deps.Channels.ForBusiness(b).Order(b.DeliveryMode)
	if len(order) == 0 {
		return nil, delivery.NotConfiguredError()
	}

	receipt, err := s.deps.Deliverer.Deliver(ctx, order, email)
	if err != nil {
		// Nothing reached the client; the document stays where it was.
		var exhausted *delivery.ExhaustedError
		if errors.As(err, &exhausted) && exhausted.Last() != nil {
			s.deps.Effects.DeliveryFailed(ctx, doc, string(exhausted.Last().Category))
		}
		return nil, err
	}

	for _, attempt := range receipt.Attempts {
		if attempt.Err != nil {
			warnings = append(warnings, fmt.Sprintf("%s channel failed (%s), fell back", attempt.Channel, attempt.Err.Category))
		}
	}

	now := s.now()
	updated, err := s.deps.Documents.Transition(ctx, doc.ID, doc.Status, billing.StatusSent, store.Stamp{SentAt: &now})
	if err != nil {
		return nil, s.conflictRejection(ctx, err, doc.ID, billing.ActionSend)
	}

	s.deps.Effects.DocumentSent(ctx, updated, string(receipt.Channel))

	return &SendResult{
		Document:    updated,
		Channel:     receipt.Channel,
		ArtifactKey: artifactKey,
		Warnings:    warnings,
	}, nil
}

// MarkPaid records a payment against an invoice. The transition always
// succeeds or rejects on its own terms; the thank-you receipt email is
// strictly best-effort and degrades to a warning.
func (s *Service) MarkPaid(ctx context.Context, documentID string) (*PaymentResult, error) {
	doc, err := s.load(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if err := billing.Guard(doc, billing.ActionMarkPaid, false); err != nil {
		return nil, err
	}

	now := s.now()
	updated, err := s.deps.Documents.Transition(ctx, doc.ID, doc.Status, billing.StatusPaid, store.Stamp{PaidAt: &now})
	if err != nil {
		return nil, s.conflictRejection(ctx, err, doc.ID, billing.ActionMarkPaid)
	}

	s.deps.Effects.DocumentPaid(ctx, updated)

	result := &PaymentResult{Document: updated}
	if warning := s.sendReceipt(ctx, updated); warning != "" {
		result.Warnings = append(result.Warnings, warning)
	}
	return result, nil
}

// Accept records the client accepting a quote, with their signature.
func (s *Service) Accept(ctx context.Context, documentID string, sig Signature) (*billing.Document, error) {
	return s.resolveQuote(ctx, documentID, billing.ActionAccept, sig)
}

// Decline records the client declining a quote, with their signature.
func (s *Service) Decline(ctx context.Context, documentID string, sig Signature) (*billing.Document, error) {
	return s.resolveQuote(ctx, documentID, billing.ActionDecline, sig)
}

func (s *Service) resolveQuote(ctx context.Context, documentID string, action billing.Action, sig Signature) (*billing.Document, error) {
	doc, err := s.load(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if err := billing.Guard(doc, action, false); err != nil {
		return nil, err
	}

	// Both outcomes need the client's signature on record before the
	// terminal status commits.
	if sig.SignerName == "" || sig.SignatureRef == "" {
		return nil, billing.MissingSignature()
	}

	now := s.now()
	stamp := store.Stamp{
		SignerName:   sig.SignerName,
		SignatureRef: sig.SignatureRef,
	}
	target := billing.StatusDeclined
	if action == billing.ActionAccept {
		target = billing.StatusAccepted
		stamp.AcceptedAt = &now
	} else {
		stamp.DeclinedAt = &now
	}

	updated, err := s.deps.Documents.Transition(ctx, doc.ID, doc.Status, target, stamp)
	if err != nil {
		return nil, s.conflictRejection(ctx, err, doc.ID, action)
	}

	s.deps.Effects.QuoteResolved(ctx, updated, action)
	return updated, nil
}

// Cancel voids a document that has not reached a terminal state.
func (s *Service) Cancel(ctx context.Context, documentID string) (*billing.Document, error) {
	doc, err := s.load(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if err := billing.Guard(doc, billing.ActionCancel, false); err != nil {
		return nil, err
	}

	updated, err := s.deps.Documents.Transition(ctx, doc.ID, doc.Status, billing.StatusCancelled, store.Stamp{})
	if err != nil {
		return nil, s.conflictRejection(ctx, err, doc.ID, billing.ActionCancel)
	}

	s.deps.Effects.DocumentCancelled(ctx, updated)
	return updated, nil
}

func (s *Service) load(ctx context.Context, documentID string) (*billing.Document, error) {
	doc, err := s.deps.Documents.Get(ctx, documentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, billing.NotFound()
		}
		return nil, err
	}
	return doc, nil
}

// conflictRejection turns a lost compare-and-set race into the same
// typed rejection a pre-check would have produced, by re-reading the
// document and re-running the guard against its fresh status.
func (s *Service) conflictRejection(ctx context.Context, err error, documentID string, action billing.Action) error {
	if !errors.Is(err, store.ErrStatusConflict) {
		return err
	}
	fresh, getErr := s.load(ctx, documentID)
	if getErr != nil {
		return getErr
	}
	if guardErr := billing.Guard(fresh, action, false); guardErr != nil {
		return guardErr
	}
	// Status moved but the action is still legal from the new state;
	// tell the caller to retry rather than guessing.
	return err
}

func (s *Service) sendReceipt(ctx context.Context, doc *billing.Document) string {
	b, err := s.deps.Businesses.GetBusiness(ctx, doc.BusinessID)
	if err != nil {
		return "receipt email skipped: business profile unavailable"
	}
	client, err := s.deps.Clients.GetClient(ctx, doc.ClientID)
	if err != nil || !client.HasEmail() {
		return "receipt email skipped: client has no email"
	}

	email, err := s.deps.Composer.Receipt(doc, b, client)
	if err != nil {
		return "receipt email could not be prepared"
	}

	order := s.deps.Channels.ForBusiness(b).Order(b.DeliveryMode)
	if _, err := s.deps.Deliverer.Deliver(ctx, order, email); err != nil {
		s.deps.Log.WarnContext(ctx, "receipt email failed",
			slog.String("document_id", doc.ID),
			slog.Any("error", err),
		)
		return "payment recorded, but the receipt email could not be delivered"
	}
	return ""
}
