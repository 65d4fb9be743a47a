// Package store persists billing state in Postgres. The document
// status column is only ever written through compare-and-set updates,
// which is what makes lifecycle transitions safe under concurrent
// callers.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/tradedesk/billing/internal/billing"
)

var (
	ErrNotFound = errors.New("store: not found")
	// ErrStatusConflict means the document's status changed between
	// read and write; the caller lost a transition race.
	ErrStatusConflict = errors.New("store: document status changed concurrently")
)

// Stamp carries the timestamps and signature fields a transition sets.
// Nil fields are left untouched, so a stamp never clears history.
type Stamp struct {
	SentAt       *time.Time
	PaidAt       *time.Time
	AcceptedAt   *time.Time
	DeclinedAt   *time.Time
	SignerName   string
	SignatureRef string
}

// DocumentStore is the persistence surface for documents.
type DocumentStore interface {
	Get(ctx context.Context, id string) (*billing.Document, error)
	LineItems(ctx context.Context, documentID string) ([]billing.LineItem, error)
	// Transition atomically moves the document from one status to
	// another. It fails with ErrStatusConflict if the stored status no
	// longer matches from.
	Transition(ctx context.Context, id string, from, to billing.Status, stamp Stamp) (*billing.Document, error)
	SetAccountingID(ctx context.Context, id, remoteID string) error
	ListOverdue(ctx context.Context, businessID string, asOf time.Time) ([]billing.Document, error)
	ListLapsedQuotes(ctx context.Context, businessID string, asOf time.Time) ([]billing.Document, error)
}

// ClientStore reads client records.
type ClientStore interface {
	GetClient(ctx context.Context, id string) (*billing.Client, error)
}

// BusinessStore reads business profiles.
type BusinessStore interface {
	GetBusiness(ctx context.Context, id string) (*billing.BusinessProfile, error)
	ListBusinesses(ctx context.Context) ([]billing.BusinessProfile, error)
}

// ReminderStore tracks which escalation tiers have fired per document.
type ReminderStore interface {
	// Claim inserts the (document, tier) row and reports whether this
	// caller won it. A false return means the tier already fired, or
	// another worker holds it right now; either way the caller must
	// not send.
	Claim(ctx context.Context, documentID string, tier int, at time.Time) (bool, error)
	// RecordChannels notes which channels the reminder actually went
	// out on after a successful claim.
	RecordChannels(ctx context.Context, documentID string, tier int, channels []string) error
}

// ActivityEntry is one row in a document's audit trail.
type ActivityEntry struct {
	ID         string
	BusinessID string
	DocumentID string
	Action     billing.Action
	Channel    string
	Detail     string
	At         time.Time
}

// ActivityStore appends and reads the audit trail.
type ActivityStore interface {
	Append(ctx context.Context, e ActivityEntry) error
	ListForDocument(ctx context.Context, documentID string, limit int) ([]ActivityEntry, error)
}
