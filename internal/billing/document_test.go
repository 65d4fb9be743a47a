package billing_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tradedesk/billing/internal/billing"
)

func TestDocumentCanTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		kind billing.Kind
		from billing.Status
		to   billing.Status
		want bool
	}{
		{"draft quote can be sent", billing.KindQuote, billing.StatusDraft, billing.StatusSent, true},
		{"sent quote can be accepted", billing.KindQuote, billing.StatusSent, billing.StatusAccepted, true},
		{"sent quote can be declined", billing.KindQuote, billing.StatusSent, billing.StatusDeclined, true},
		{"sent quote can expire", billing.KindQuote, billing.StatusSent, billing.StatusExpired, true},
		{"sent quote can be resent", billing.KindQuote, billing.StatusSent, billing.StatusSent, true},
		{"accepted quote is terminal", billing.KindQuote, billing.StatusAccepted, billing.StatusSent, false},
		{"declined quote cannot be accepted", billing.KindQuote, billing.StatusDeclined, billing.StatusAccepted, false},
		{"quote cannot be paid", billing.KindQuote, billing.StatusSent, billing.StatusPaid, false},
		{"draft invoice can be sent", billing.KindInvoice, billing.StatusDraft, billing.StatusSent, true},
		{"draft invoice can be paid directly", billing.KindInvoice, billing.StatusDraft, billing.StatusPaid, true},
		{"sent invoice can be paid", billing.KindInvoice, billing.StatusSent, billing.StatusPaid, true},
		{"sent invoice can be cancelled", billing.KindInvoice, billing.StatusSent, billing.StatusCancelled, true},
		{"paid invoice is terminal", billing.KindInvoice, billing.StatusPaid, billing.StatusSent, false},
		{"cancelled invoice cannot be paid", billing.KindInvoice, billing.StatusCancelled, billing.StatusPaid, false},
		{"invoice cannot be accepted", billing.KindInvoice, billing.StatusSent, billing.StatusAccepted, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			doc := &billing.Document{Kind: tt.kind, Status: tt.from}
			assert.Equal(t, tt.want, doc.CanTransition(tt.to))
		})
	}
}

func TestDocumentIsTerminal(t *testing.T) {
	t.Parallel()

	terminal := []billing.Status{billing.StatusAccepted, billing.StatusDeclined, billing.StatusExpired, billing.StatusCancelled}
	for _, status := range terminal {
		doc := &billing.Document{Kind: billing.KindQuote, Status: status}
		assert.True(t, doc.IsTerminal(), "quote %s should be terminal", status)
	}

	live := &billing.Document{Kind: billing.KindInvoice, Status: billing.StatusSent}
	assert.False(t, live.IsTerminal())
}

func TestDocumentOverdue(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC)
	due := now.Add(-48 * time.Hour)

	t.Run("sent invoice past due", func(t *testing.T) {
		t.Parallel()

		doc := &billing.Document{Kind: billing.KindInvoice, Status: billing.StatusSent, DueAt: &due}
		assert.True(t, doc.Overdue(now))
		assert.Equal(t, 2, doc.DaysPastDue(now))
	})

	t.Run("paid invoice never overdue", func(t *testing.T) {
		t.Parallel()

		doc := &billing.Document{Kind: billing.KindInvoice, Status: billing.StatusPaid, DueAt: &due}
		assert.False(t, doc.Overdue(now))
		assert.Zero(t, doc.DaysPastDue(now))
	})

	t.Run("no due date means never overdue", func(t *testing.T) {
		t.Parallel()

		doc := &billing.Document{Kind: billing.KindInvoice, Status: billing.StatusSent}
		assert.False(t, doc.Overdue(now))
	})

	t.Run("quotes do not go overdue", func(t *testing.T) {
		t.Parallel()

		doc := &billing.Document{Kind: billing.KindQuote, Status: billing.StatusSent, DueAt: &due}
		assert.False(t, doc.Overdue(now))
	})

	t.Run("due this morning not yet overdue at issue time", func(t *testing.T) {
		t.Parallel()

		future := now.Add(time.Hour)
		doc := &billing.Document{Kind: billing.KindInvoice, Status: billing.StatusSent, DueAt: &future}
		assert.False(t, doc.Overdue(now))
	})
}

func TestDocumentExpiredQuote(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)

	sent := &billing.Document{Kind: billing.KindQuote, Status: billing.StatusSent, ValidUntil: &past}
	assert.True(t, sent.ExpiredQuote(now))

	draft := &billing.Document{Kind: billing.KindQuote, Status: billing.StatusDraft, ValidUntil: &past}
	assert.False(t, draft.ExpiredQuote(now))

	invoice := &billing.Document{Kind: billing.KindInvoice, Status: billing.StatusSent, ValidUntil: &past}
	assert.False(t, invoice.ExpiredQuote(now))
}
