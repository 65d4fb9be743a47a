package billing

import "time"

// Kind distinguishes the two document families sharing one lifecycle.
type Kind string

const (
	KindQuote   Kind = "quote"
	KindInvoice Kind = "invoice"
)

// Status is the stored lifecycle state of a document. Overdue is
// deliberately absent: it is computed from DueAt at read time so an
// invoice becomes overdue the moment the clock passes the due date,
// with no sweeper job involved.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSent      Status = "sent"
	StatusAccepted  Status = "accepted"
	StatusDeclined  Status = "declined"
	StatusExpired   Status = "expired"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
)

// Document is a quote or invoice issued by a business to a client.
// Amounts are minor units; timestamps are set exactly once when the
// corresponding transition commits.
type Document struct {
	ID           string
	BusinessID   string
	ClientID     string
	Number       string
	Kind         Kind
	Status       Status
	Currency     string
	Total        Money
	Note         string
	IssuedAt     time.Time
	DueAt        *time.Time
	ValidUntil   *time.Time
	SentAt       *time.Time
	PaidAt       *time.Time
	AcceptedAt   *time.Time
	DeclinedAt   *time.Time
	JobID        *string
	AccountingID *string
	SignerName   string
	SignatureRef string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// LineItem is a single row on a document.
type LineItem struct {
	ID          string
	DocumentID  string
	Description string
	Quantity    float64
	UnitPrice   Money
	Total       Money
	Position    int
}

var transitions = map[Kind]map[Status][]Status{
	KindQuote: {
		StatusDraft: {StatusSent, StatusCancelled},
		// A forced resend is sent -> sent; quotes resolve or lapse from there.
		StatusSent: {StatusSent, StatusAccepted, StatusDeclined, StatusExpired, StatusCancelled},
	},
	KindInvoice: {
		// Unsent invoices still get paid over the counter sometimes;
		// payment is a fact to record, not a step to enforce.
		StatusDraft: {StatusSent, StatusPaid, StatusCancelled},
		StatusSent:  {StatusSent, StatusPaid, StatusCancelled},
	},
}

// CanTransition reports whether moving the document to the given status
// is legal for its kind and current state. Terminal states have no
// outgoing edges; there is no backward transition.
func (d *Document) CanTransition(to Status) bool {
	for _, s := range transitions[d.Kind][d.Status] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the document can no longer change state.
func (d *Document) IsTerminal() bool {
	return len(transitions[d.Kind][d.Status]) == 0
}

// Overdue reports whether the invoice is past due and unpaid as of now.
// Never stored; derived on every read.
func (d *Document) Overdue(now time.Time) bool {
	if d.Kind != KindInvoice || d.Status != StatusSent || d.DueAt == nil {
		return false
	}
	return now.After(*d.DueAt)
}

// DaysPastDue returns whole days elapsed since the due date, 0 if not
// overdue.
func (d *Document) DaysPastDue(now time.Time) int {
	if !d.Overdue(now) {
		return 0
	}
	return int(now.Sub(*d.DueAt).Hours() / 24)
}

// ExpiredQuote reports whether a sent quote's validity window has
// lapsed without a client decision.
func (d *Document) ExpiredQuote(now time.Time) bool {
	if d.Kind != KindQuote || d.Status != StatusSent || d.ValidUntil == nil {
		return false
	}
	return now.After(*d.ValidUntil)
}
