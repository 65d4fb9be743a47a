package sideeffect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tradedesk/billing/internal/accounting"
	"github.com/tradedesk/billing/internal/billing/store"
	"github.com/tradedesk/billing/internal/notify"
)

// ActivityTask appends audit trail entries.
type ActivityTask struct {
	store store.ActivityStore
}

func NewActivityTask(s store.ActivityStore) *ActivityTask {
	return &ActivityTask{store: s}
}

func (t *ActivityTask) Name() string { return TaskActivity }

func (t *ActivityTask) Handle(ctx context.Context, p ActivityPayload) error {
	return t.store.Append(ctx, store.ActivityEntry{
		BusinessID: p.BusinessID,
		DocumentID: p.DocumentID,
		Action:     p.Action,
		Channel:    p.Channel,
		Detail:     p.Detail,
	})
}

// NotifyTask pushes owner notifications.
type NotifyTask struct {
	notifier   notify.Notifier
	businesses store.BusinessStore
}

func NewNotifyTask(n notify.Notifier, businesses store.BusinessStore) *NotifyTask {
	return &NotifyTask{notifier: n, businesses: businesses}
}

func (t *NotifyTask) Name() string { return TaskNotify }

func (t *NotifyTask) Handle(ctx context.Context, p NotifyPayload) error {
	b, err := t.businesses.GetBusiness(ctx, p.BusinessID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Business deleted since the event fired; nothing to notify.
			return nil
		}
		return err
	}

	return t.notifier.Notify(ctx, notify.Notification{
		UserID:   b.OwnerUserID,
		Category: p.Category,
		Title:    p.Title,
		Body:     p.Body,
		Data:     map[string]string{"document_id": p.DocumentID},
	})
}

// AccountingInvoiceTask mirrors a sent invoice into the business's
// bookkeeping system and stores the remote ID.
type AccountingInvoiceTask struct {
	syncer     accounting.Syncer
	docs       store.DocumentStore
	businesses store.BusinessStore
	log        *slog.Logger
}

func NewAccountingInvoiceTask(syncer accounting.Syncer, docs store.DocumentStore, businesses store.BusinessStore, log *slog.Logger) *AccountingInvoiceTask {
	return &AccountingInvoiceTask{syncer: syncer, docs: docs, businesses: businesses, log: log}
}

func (t *AccountingInvoiceTask) Name() string { return TaskAccountingInvoice }

func (t *AccountingInvoiceTask) Handle(ctx context.Context, p AccountingPayload) error {
	doc, err := t.docs.Get(ctx, p.DocumentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	if doc.AccountingID != nil {
		// A retried job after a crash between sync and SetAccountingID
		// would duplicate the remote invoice; this check plus the
		// unique enqueue key keeps that window small.
		return nil
	}

	b, err := t.businesses.GetBusiness(ctx, doc.BusinessID)
	if err != nil {
		return err
	}
	if b.AccountingTenantID == "" {
		t.log.DebugContext(ctx, "accounting sync skipped, business not connected",
			slog.String("document_id", doc.ID),
		)
		return nil
	}

	items, err := t.docs.LineItems(ctx, doc.ID)
	if err != nil {
		return err
	}

	remoteID, err := t.syncer.CreateInvoice(ctx, b.AccountingTenantID, doc, items)
	if err != nil {
		if errors.Is(err, accounting.ErrNotConnected) {
			return nil
		}
		return fmt.Errorf("sync invoice %s: %w", doc.ID, err)
	}

	return t.docs.SetAccountingID(ctx, doc.ID, remoteID)
}

// AccountingPaymentTask records a payment against the mirrored
// invoice. Unsynced documents are skipped, not failed: a missing
// mirror is an expected state for businesses without a connection.
type AccountingPaymentTask struct {
	syncer     accounting.Syncer
	docs       store.DocumentStore
	businesses store.BusinessStore
	log        *slog.Logger
}

func NewAccountingPaymentTask(syncer accounting.Syncer, docs store.DocumentStore, businesses store.BusinessStore, log *slog.Logger) *AccountingPaymentTask {
	return &AccountingPaymentTask{syncer: syncer, docs: docs, businesses: businesses, log: log}
}

func (t *AccountingPaymentTask) Name() string { return TaskAccountingPayment }

func (t *AccountingPaymentTask) Handle(ctx context.Context, p AccountingPayload) error {
	doc, err := t.docs.Get(ctx, p.DocumentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	if doc.AccountingID == nil {
		t.log.DebugContext(ctx, "payment sync skipped, invoice not mirrored",
			slog.String("document_id", doc.ID),
		)
		return nil
	}

	b, err := t.businesses.GetBusiness(ctx, doc.BusinessID)
	if err != nil {
		return err
	}
	if b.AccountingTenantID == "" {
		return nil
	}

	if err := t.syncer.RecordPayment(ctx, b.AccountingTenantID, *doc.AccountingID, doc.Total); err != nil {
		if errors.Is(err, accounting.ErrNotConnected) {
			return nil
		}
		return fmt.Errorf("sync payment %s: %w", doc.ID, err)
	}
	return nil
}
