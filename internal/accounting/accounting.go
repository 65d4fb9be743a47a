// Package accounting mirrors billing activity into the business's
// external bookkeeping system. Everything here is best-effort: the
// platform's own record is authoritative and a sync failure never
// blocks a lifecycle transition.
package accounting

import (
	"context"
	"errors"

	"github.com/tradedesk/billing/internal/billing"
)

// ErrNotConnected means the business has no bookkeeping connection.
var ErrNotConnected = errors.New("accounting: not connected")

// Syncer pushes invoices and payments to the external system.
type Syncer interface {
	// CreateInvoice mirrors a sent invoice and returns the remote ID.
	CreateInvoice(ctx context.Context, tenantID string, doc *billing.Document, items []billing.LineItem) (string, error)
	// RecordPayment marks the mirrored invoice paid.
	RecordPayment(ctx context.Context, tenantID, remoteID string, amount billing.Money) error
}

// Disabled is the Syncer used when no bookkeeping integration is
// deployed. Sync tasks treat ErrNotConnected as a clean skip.
type Disabled struct{}

func (Disabled) CreateInvoice(context.Context, string, *billing.Document, []billing.LineItem) (string, error) {
	return "", ErrNotConnected
}

func (Disabled) RecordPayment(context.Context, string, string, billing.Money) error {
	return ErrNotConnected
}
