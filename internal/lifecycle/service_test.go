package lifecycle_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tradedesk/billing/internal/artifact"
	"github.com/tradedesk/billing/internal/billing"
	"github.com/tradedesk/billing/internal/billing/store"
	"github.com/tradedesk/billing/internal/delivery"
	"github.com/tradedesk/billing/internal/lifecycle"
	"github.com/tradedesk/billing/pkg/logger"
	"github.com/tradedesk/billing/pkg/mailer"
)

type mockDocs struct{ mock.Mock }

func (m *mockDocs) Get(ctx context.Context, id string) (*billing.Document, error) {
	args := m.Called(ctx, id)
	if doc := args.Get(0); doc != nil {
		return doc.(*billing.Document), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDocs) LineItems(ctx context.Context, documentID string) ([]billing.LineItem, error) {
	args := m.Called(ctx, documentID)
	if items := args.Get(0); items != nil {
		return items.([]billing.LineItem), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDocs) Transition(ctx context.Context, id string, from, to billing.Status, stamp store.Stamp) (*billing.Document, error) {
	args := m.Called(ctx, id, from, to, stamp)
	if doc := args.Get(0); doc != nil {
		return doc.(*billing.Document), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDocs) SetAccountingID(ctx context.Context, id, remoteID string) error {
	return m.Called(ctx, id, remoteID).Error(0)
}

func (m *mockDocs) ListOverdue(ctx context.Context, businessID string, asOf time.Time) ([]billing.Document, error) {
	args := m.Called(ctx, businessID, asOf)
	if docs := args.Get(0); docs != nil {
		return docs.([]billing.Document), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDocs) ListLapsedQuotes(ctx context.Context, businessID string, asOf time.Time) ([]billing.Document, error) {
	args := m.Called(ctx, businessID, asOf)
	if docs := args.Get(0); docs != nil {
		return docs.([]billing.Document), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockClients struct{ mock.Mock }

func (m *mockClients) GetClient(ctx context.Context, id string) (*billing.Client, error) {
	args := m.Called(ctx, id)
	if c := args.Get(0); c != nil {
		return c.(*billing.Client), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockBusinesses struct{ mock.Mock }

func (m *mockBusinesses) GetBusiness(ctx context.Context, id string) (*billing.BusinessProfile, error) {
	args := m.Called(ctx, id)
	if b := args.Get(0); b != nil {
		return b.(*billing.BusinessProfile), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockBusinesses) ListBusinesses(ctx context.Context) ([]billing.BusinessProfile, error) {
	args := m.Called(ctx)
	if bs := args.Get(0); bs != nil {
		return bs.([]billing.BusinessProfile), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockPipeline struct{ mock.Mock }

func (m *mockPipeline) Prepare(ctx context.Context, doc *billing.Document, b *billing.BusinessProfile, client *billing.Client, items []billing.LineItem) (*artifact.Artifact, error) {
	args := m.Called(ctx, doc, b, client, items)
	if a := args.Get(0); a != nil {
		return a.(*artifact.Artifact), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockFactory struct {
	set delivery.ChannelSet
}

func (m *mockFactory) ForBusiness(*billing.BusinessProfile) delivery.ChannelSet {
	return m.set
}

type mockDeliverer struct{ mock.Mock }

func (m *mockDeliverer) Deliver(ctx context.Context, senders []delivery.ChannelSender, email *mailer.Email) (*delivery.Receipt, error) {
	args := m.Called(ctx, senders, email)
	if r := args.Get(0); r != nil {
		return r.(*delivery.Receipt), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockComposer struct{ mock.Mock }

func (m *mockComposer) Document(doc *billing.Document, b *billing.BusinessProfile, client *billing.Client, note, viewURL string, attachments []mailer.Attachment) (*mailer.Email, error) {
	args := m.Called(doc, b, client, note, viewURL, attachments)
	if e := args.Get(0); e != nil {
		return e.(*mailer.Email), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockComposer) Receipt(doc *billing.Document, b *billing.BusinessProfile, client *billing.Client) (*mailer.Email, error) {
	args := m.Called(doc, b, client)
	if e := args.Get(0); e != nil {
		return e.(*mailer.Email), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockEffects struct{ mock.Mock }

func (m *mockEffects) DocumentSent(ctx context.Context, doc *billing.Document, channel string) {
	m.Called(ctx, doc, channel)
}

func (m *mockEffects) DocumentPaid(ctx context.Context, doc *billing.Document) {
	m.Called(ctx, doc)
}

func (m *mockEffects) QuoteResolved(ctx context.Context, doc *billing.Document, action billing.Action) {
	m.Called(ctx, doc, action)
}

func (m *mockEffects) DocumentCancelled(ctx context.Context, doc *billing.Document) {
	m.Called(ctx, doc)
}

func (m *mockEffects) DeliveryFailed(ctx context.Context, doc *billing.Document, detail string) {
	m.Called(ctx, doc, detail)
}

type fixture struct {
	docs       *mockDocs
	clients    *mockClients
	businesses *mockBusinesses
	pipeline   *mockPipeline
	factory    *mockFactory
	deliverer  *mockDeliverer
	composer   *mockComposer
	effects    *mockEffects
	svc        *lifecycle.Service
}

type nopSender struct{}

func (nopSender) Send(context.Context, *mailer.Email) error { return nil }

func newFixture() *fixture {
	f := &fixture{
		docs:       new(mockDocs),
		clients:    new(mockClients),
		businesses: new(mockBusinesses),
		pipeline:   new(mockPipeline),
		factory: &mockFactory{set: delivery.ChannelSet{
			Direct: &delivery.ChannelSender{Channel: delivery.ChannelDirect, Sender: nopSender{}},
		}},
		deliverer: new(mockDeliverer),
		composer:  new(mockComposer),
		effects:   new(mockEffects),
	}
	f.svc = lifecycle.New(lifecycle.Deps{
		Documents:   f.docs,
		Clients:     f.clients,
		Businesses:  f.businesses,
		Attachments: f.pipeline,
		Channels:    f.factory,
		Deliverer:   f.deliverer,
		Composer:    f.composer,
		Effects:     f.effects,
		Log:         logger.NewNope(),
	})
	return f
}

func draftInvoice() *billing.Document {
	return &billing.Document{
		ID:         "doc_1",
		BusinessID: "biz_1",
		ClientID:   "cl_1",
		Number:     "INV-0042",
		Kind:       billing.KindInvoice,
		Status:     billing.StatusDraft,
		Currency:   "AUD",
		Total:      billing.Money(185000),
	}
}

func testBusiness() *billing.BusinessProfile {
	return &billing.BusinessProfile{
		ID:           "biz_1",
		Name:         "Apex Plumbing",
		Email:        "office@apexplumbing.com.au",
		DeliveryMode: billing.ModeAutomaticSend,
	}
}

func testClient() *billing.Client {
	return &billing.Client{ID: "cl_1", Name: "Jordan Reeve", Email: "jordan@example.com"}
}

func (f *fixture) expectSendPlumbing(doc *billing.Document) {
	f.docs.On("Get", mock.Anything, doc.ID).Return(doc, nil).Once()
	f.businesses.On("GetBusiness", mock.Anything, "biz_1").Return(testBusiness(), nil)
	f.clients.On("GetClient", mock.Anything, "cl_1").Return(testClient(), nil)
	f.docs.On("LineItems", mock.Anything, doc.ID).Return([]billing.LineItem{}, nil)
}

func TestServiceSend(t *testing.T) {
	t.Parallel()

	t.Run("happy path moves draft to sent", func(t *testing.T) {
		t.Parallel()

		f := newFixture()
		doc := draftInvoice()
		f.expectSendPlumbing(doc)
		f.pipeline.On("Prepare", mock.Anything, doc, mock.Anything, mock.Anything, mock.Anything).
			Return(&artifact.Artifact{Key: "artifacts/biz_1/a.pdf", URL: "https://signed", Filename: "invoice-INV-0042.pdf", ContentType: "application/pdf", Content: []byte("%PDF")}, nil)
		f.composer.On("Document", doc, mock.Anything, mock.Anything, "", "https://signed", mock.Anything).
			Return(&mailer.Email{To: []string{"jordan@example.com"}, Subject: "s", HTML: "<p/>"}, nil)
		f.deliverer.On("Deliver", mock.Anything, mock.Anything, mock.Anything).
			Return(&delivery.Receipt{Channel: delivery.ChannelDirect, Attempts: []delivery.Attempt{{Channel: delivery.ChannelDirect}}}, nil)

		sent := *doc
		sent.Status = billing.StatusSent
		f.docs.On("Transition", mock.Anything, "doc_1", billing.StatusDraft, billing.StatusSent, mock.MatchedBy(func(st store.Stamp) bool {
			return st.SentAt != nil
		})).Return(&sent, nil)
		f.effects.On("DocumentSent", mock.Anything, &sent, "direct").Return()

		result, err := f.svc.Send(context.Background(), "doc_1", lifecycle.SendOptions{})
		require.NoError(t, err)
		assert.Equal(t, delivery.ChannelDirect, result.Channel)
		assert.Equal(t, "artifacts/biz_1/a.pdf", result.ArtifactKey)
		assert.Empty(t, result.Warnings)
		f.effects.AssertExpectations(t)
	})

	t.Run("duplicate send rejected before any work", func(t *testing.T) {
		t.Parallel()

		f := newFixture()
		doc := draftInvoice()
		sentAt := time.Now().Add(-time.Hour)
		doc.Status = billing.StatusSent
		doc.SentAt = &sentAt
		f.docs.On("Get", mock.Anything, "doc_1").Return(doc, nil)

		_, err := f.svc.Send(context.Background(), "doc_1", lifecycle.SendOptions{})

		rej, ok := billing.AsRejection(err)
		require.True(t, ok)
		assert.Equal(t, billing.RejectAlreadyInTargetState, rej.Code)
		f.pipeline.AssertNotCalled(t, "Prepare", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		f.deliverer.AssertNotCalled(t, "Deliver", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("forced resend delivers again", func(t *testing.T) {
		t.Parallel()

		f := newFixture()
		doc := draftInvoice()
		sentAt := time.Now().Add(-time.Hour)
		doc.Status = billing.StatusSent
		doc.SentAt = &sentAt
		f.expectSendPlumbing(doc)
		f.pipeline.On("Prepare", mock.Anything, doc, mock.Anything, mock.Anything, mock.Anything).
			Return(&artifact.Artifact{Content: []byte("x"), ContentType: "application/pdf"}, nil)
		f.composer.On("Document", doc, mock.Anything, mock.Anything, "", "", mock.Anything).
			Return(&mailer.Email{To: []string{"jordan@example.com"}, Subject: "s", HTML: "<p/>"}, nil)
		f.deliverer.On("Deliver", mock.Anything, mock.Anything, mock.Anything).
			Return(&delivery.Receipt{Channel: delivery.ChannelDirect, Attempts: []delivery.Attempt{{Channel: delivery.ChannelDirect}}}, nil)

		resent := *doc
		f.docs.On("Transition", mock.Anything, "doc_1", billing.StatusSent, billing.StatusSent, mock.Anything).
			Return(&resent, nil)
		f.effects.On("DocumentSent", mock.Anything, &resent, "direct").Return()

		_, err := f.svc.Send(context.Background(), "doc_1", lifecycle.SendOptions{Force: true})
		require.NoError(t, err)
	})

	t.Run("client without email rejected", func(t *testing.T) {
		t.Parallel()

		f := newFixture()
		doc := draftInvoice()
		f.docs.On("Get", mock.Anything, "doc_1").Return(doc, nil)
		f.businesses.On("GetBusiness", mock.Anything, "biz_1").Return(testBusiness(), nil)
		f.clients.On("GetClient", mock.Anything, "cl_1").
			Return(&billing.Client{ID: "cl_1", Name: "Jordan Reeve"}, nil)

		_, err := f.svc.Send(context.Background(), "doc_1", lifecycle.SendOptions{})

		rej, ok := billing.AsRejection(err)
		require.True(t, ok)
		assert.Equal(t, billing.RejectMissingContactInfo, rej.Code)
		assert.Contains(t, rej.Message, "Jordan Reeve")
	})

	t.Run("incomplete business profile rejected", func(t *testing.T) {
		t.Parallel()

		f := newFixture()
		f.docs.On("Get", mock.Anything, "doc_1").Return(draftInvoice(), nil)
		f.businesses.On("GetBusiness", mock.Anything, "biz_1").Return(nil, store.ErrNotFound)

		_, err := f.svc.Send(context.Background(), "doc_1", lifecycle.SendOptions{})

		rej, ok := billing.AsRejection(err)
		require.True(t, ok)
		assert.Equal(t, billing.RejectMissingProfile, rej.Code)
	})

	t.Run("render failure aborts the send", func(t *testing.T) {
		t.Parallel()

		f := newFixture()
		doc := draftInvoice()
		f.expectSendPlumbing(doc)
		f.pipeline.On("Prepare", mock.Anything, doc, mock.Anything, mock.Anything, mock.Anything).
			Return(nil, artifact.ErrPrepareFailed)

		_, err := f.svc.Send(context.Background(), "doc_1", lifecycle.SendOptions{})

		require.ErrorIs(t, err, artifact.ErrPrepareFailed)
		f.deliverer.AssertNotCalled(t, "Deliver", mock.Anything, mock.Anything, mock.Anything)
		f.docs.AssertNotCalled(t, "Transition", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("render failure tolerated when allowed", func(t *testing.T) {
		t.Parallel()

		f := newFixture()
		doc := draftInvoice()
		f.expectSendPlumbing(doc)
		f.pipeline.On("Prepare", mock.Anything, doc, mock.Anything, mock.Anything, mock.Anything).
			Return(nil, artifact.ErrPrepareFailed)
		f.composer.On("Document", doc, mock.Anything, mock.Anything, "", "", mock.MatchedBy(func(atts []mailer.Attachment) bool {
			return len(atts) == 0
		})).Return(&mailer.Email{To: []string{"jordan@example.com"}, Subject: "s", HTML: "<p/>"}, nil)
		f.deliverer.On("Deliver", mock.Anything, mock.Anything, mock.Anything).
			Return(&delivery.Receipt{Channel: delivery.ChannelDirect, Attempts: []delivery.Attempt{{Channel: delivery.ChannelDirect}}}, nil)

		sent := *doc
		sent.Status = billing.StatusSent
		f.docs.On("Transition", mock.Anything, "doc_1", billing.StatusDraft, billing.StatusSent, mock.Anything).Return(&sent, nil)
		f.effects.On("DocumentSent", mock.Anything, &sent, "direct").Return()

		result, err := f.svc.Send(context.Background(), "doc_1", lifecycle.SendOptions{AllowMissingAttachment: true})
		require.NoError(t, err)
		require.Len(t, result.Warnings, 1)
		assert.Contains(t, result.Warnings[0], "attachment")
	})

	t.Run("exhausted delivery leaves status untouched", func(t *testing.T) {
		t.Parallel()

		f := newFixture()
		doc := draftInvoice()
		f.expectSendPlumbing(doc)
		f.pipeline.On("Prepare", mock.Anything, doc, mock.Anything, mock.Anything, mock.Anything).
			Return(&artifact.Artifact{Content: []byte("x"), ContentType: "application/pdf"}, nil)
		f.composer.On("Document", doc, mock.Anything, mock.Anything, "", "", mock.Anything).
			Return(&mailer.Email{To: []string{"jordan@example.com"}, Subject: "s", HTML: "<p/>"}, nil)

		receipt := &delivery.Receipt{Attempts: []delivery.Attempt{
			{Channel: delivery.ChannelDirect, Err: delivery.Classify(errors.New("status 429"))},
		}}
		f.deliverer.On("Deliver", mock.Anything, mock.Anything, mock.Anything).
			Return(receipt, &delivery.ExhaustedError{Receipt: receipt})
		f.effects.On("DeliveryFailed", mock.Anything, doc, "rate_limited").Return()

		_, err := f.svc.Send(context.Background(), "doc_1", lifecycle.SendOptions{})

		var exhausted *delivery.ExhaustedError
		require.ErrorAs(t, err, &exhausted)
		f.docs.AssertNotCalled(t, "Transition", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		f.effects.AssertExpectations(t)
	})

	t.Run("fallback success reports warning and winning channel", func(t *testing.T) {
		t.Parallel()

		f := newFixture()
		doc := draftInvoice()
		f.expectSendPlumbing(doc)
		f.pipeline.On("Prepare", mock.Anything, doc, mock.Anything, mock.Anything, mock.Anything).
			Return(&artifact.Artifact{Content: []byte("x"), ContentType: "application/pdf"}, nil)
		f.composer.On("Document", doc, mock.Anything, mock.Anything, "", "", mock.Anything).
			Return(&mailer.Email{To: []string{"jordan@example.com"}, Subject: "s", HTML: "<p/>"}, nil)
		f.deliverer.On("Deliver", mock.Anything, mock.Anything, mock.Anything).
			Return(&delivery.Receipt{
				Channel: delivery.ChannelDirect,
				Attempts: []delivery.Attempt{
					{Channel: delivery.ChannelSMTP, Err: delivery.Classify(errors.New("connection refused"))},
					{Channel: delivery.ChannelDirect},
				},
			}, nil)

		sent := *doc
		sent.Status = billing.StatusSent
		f.docs.On("Transition", mock.Anything, "doc_1", billing.StatusDraft, billing.StatusSent, mock.Anything).Return(&sent, nil)
		f.effects.On("DocumentSent", mock.Anything, &sent, "direct").Return()

		result, err := f.svc.Send(context.Background(), "doc_1", lifecycle.SendOptions{})
		require.NoError(t, err)
		assert.Equal(t, delivery.ChannelDirect, result.Channel)
		require.Len(t, result.Warnings, 1)
		assert.Contains(t, result.Warnings[0], "smtp")
	})

	t.Run("lost transition race maps to typed rejection", func(t *testing.T) {
		t.Parallel()

		f := newFixture()
		doc := draftInvoice()
		f.expectSendPlumbing(doc)
		f.pipeline.On("Prepare", mock.Anything, doc, mock.Anything, mock.Anything, mock.Anything).
			Return(&artifact.Artifact{Content: []byte("x"), ContentType: "application/pdf"}, nil)
		f.composer.On("Document", doc, mock.Anything, mock.Anything, "", "", mock.Anything).
			Return(&mailer.Email{To: []string{"jordan@example.com"}, Subject: "s", HTML: "<p/>"}, nil)
		f.deliverer.On("Deliver", mock.Anything, mock.Anything, mock.Anything).
			Return(&delivery.Receipt{Channel: delivery.ChannelDirect, Attempts: []delivery.Attempt{{Channel: delivery.ChannelDirect}}}, nil)

		f.docs.On("Transition", mock.Anything, "doc_1", billing.StatusDraft, billing.StatusSent, mock.Anything).
			Return(nil, store.ErrStatusConflict).Once()

		now := time.Now()
		raced := *doc
		raced.Status = billing.StatusSent
		raced.SentAt = &now
		f.docs.On("Get", mock.Anything, "doc_1").Return(&raced, nil)

		_, err := f.svc.Send(context.Background(), "doc_1", lifecycle.SendOptions{})

		rej, ok := billing.AsRejection(err)
		require.True(t, ok)
		assert.Equal(t, billing.RejectAlreadyInTargetState, rej.Code)
	})
}

func TestServiceMarkPaid(t *testing.T) {
	t.Parallel()

	t.Run("records payment and sends receipt", func(t *testing.T) {
		t.Parallel()

		f := newFixture()
		doc := draftInvoice()
		doc.Status = billing.StatusSent
		f.docs.On("Get", mock.Anything, "doc_1").Return(doc, nil)

		paid := *doc
		paid.Status = billing.StatusPaid
		f.docs.On("Transition", mock.Anything, "doc_1", billing.StatusSent, billing.StatusPaid, mock.MatchedBy(func(st store.Stamp) bool {
			return st.PaidAt != nil
		})).Return(&paid, nil)
		f.effects.On("DocumentPaid", mock.Anything, &paid).Return()

		f.businesses.On("GetBusiness", mock.Anything, "biz_1").Return(testBusiness(), nil)
		f.clients.On("GetClient", mock.Anything, "cl_1").Return(testClient(), nil)
		f.composer.On("Receipt", &paid, mock.Anything, mock.Anything).
			Return(&mailer.Email{To: []string{"jordan@example.com"}, Subject: "s", HTML: "<p/>"}, nil)
		f.deliverer.On("Deliver", mock.Anything, mock.Anything, mock.Anything).
			Return(&delivery.Receipt{Channel: delivery.ChannelDirect}, nil)

		result, err := f.svc.MarkPaid(context.Background(), "doc_1")
		require.NoError(t, err)
		assert.Empty(t, result.Warnings)
		f.effects.AssertExpectations(t)
	})

	t.Run("receipt failure is a warning, not an error", func(t *testing.T) {
		t.Parallel()

		f := newFixture()
		doc := draftInvoice()
		doc.Status = billing.StatusSent
		f.docs.On("Get", mock.Anything, "doc_1").Return(doc, nil)

		paid := *doc
		paid.Status = billing.StatusPaid
		f.docs.On("Transition", mock.Anything, "doc_1", billing.StatusSent, billing.StatusPaid, mock.Anything).Return(&paid, nil)
		f.effects.On("DocumentPaid", mock.Anything, &paid).Return()

		f.businesses.On("GetBusiness", mock.Anything, "biz_1").Return(testBusiness(), nil)
		f.clients.On("GetClient", mock.Anything, "cl_1").Return(testClient(), nil)
		f.composer.On("Receipt", &paid, mock.Anything, mock.Anything).
			Return(&mailer.Email{To: []string{"jordan@example.com"}, Subject: "s", HTML: "<p/>"}, nil)
		receipt := &delivery.Receipt{Attempts: []delivery.Attempt{{Channel: delivery.ChannelDirect, Err: delivery.Classify(errors.New("boom"))}}}
		f.deliverer.On("Deliver", mock.Anything, mock.Anything, mock.Anything).
			Return(receipt, &delivery.ExhaustedError{Receipt: receipt})

		result, err := f.svc.MarkPaid(context.Background(), "doc_1")
		require.NoError(t, err)
		require.Len(t, result.Warnings, 1)
		assert.Contains(t, result.Warnings[0], "receipt")
	})

	t.Run("paying twice rejected", func(t *testing.T) {
		t.Parallel()

		f := newFixture()
		doc := draftInvoice()
		paidAt := time.Now().Add(-time.Hour)
		doc.Status = billing.StatusPaid
		doc.PaidAt = &paidAt
		f.docs.On("Get", mock.Anything, "doc_1").Return(doc, nil)

		_, err := f.svc.MarkPaid(context.Background(), "doc_1")

		rej, ok := billing.AsRejection(err)
		require.True(t, ok)
		assert.Equal(t, billing.RejectAlreadyInTargetState, rej.Code)
		require.NotNil(t, rej.PriorAt)
	})

	t.Run("unknown document rejected", func(t *testing.T) {
		t.Parallel()

		f := newFixture()
		f.docs.On("Get", mock.Anything, "gone").Return(nil, store.ErrNotFound)

		_, err := f.svc.MarkPaid(context.Background(), "gone")

		rej, ok := billing.AsRejection(err)
		require.True(t, ok)
		assert.Equal(t, billing.RejectNotFound, rej.Code)
	})
}

func TestServiceQuoteResolution(t *testing.T) {
	t.Parallel()

	sentQuote := func() *billing.Document {
		doc := draftInvoice()
		doc.Kind = billing.KindQuote
		doc.Status = billing.StatusSent
		return doc
	}

	t.Run("accept stamps signature", func(t *testing.T) {
		t.Parallel()

		f := newFixture()
		doc := sentQuote()
		f.docs.On("Get", mock.Anything, "doc_1").Return(doc, nil)

		accepted := *doc
		accepted.Status = billing.StatusAccepted
		f.docs.On("Transition", mock.Anything, "doc_1", billing.StatusSent, billing.StatusAccepted, mock.MatchedBy(func(st store.Stamp) bool {
			return st.AcceptedAt != nil && st.SignerName == "Jordan Reeve" && st.SignatureRef == "sig_123"
		})).Return(&accepted, nil)
		f.effects.On("QuoteResolved", mock.Anything, &accepted, billing.ActionAccept).Return()

		_, err := f.svc.Accept(context.Background(), "doc_1", lifecycle.Signature{SignerName: "Jordan Reeve", SignatureRef: "sig_123"})
		require.NoError(t, err)
		f.effects.AssertExpectations(t)
	})

	t.Run("decline stamps declined at and signature", func(t *testing.T) {
		t.Parallel()

		f := newFixture()
		doc := sentQuote()
		f.docs.On("Get", mock.Anything, "doc_1").Return(doc, nil)

		declined := *doc
		declined.Status = billing.StatusDeclined
		f.docs.On("Transition", mock.Anything, "doc_1", billing.StatusSent, billing.StatusDeclined, mock.MatchedBy(func(st store.Stamp) bool {
			return st.DeclinedAt != nil && st.AcceptedAt == nil && st.SignerName == "Jordan Reeve" && st.SignatureRef == "sig_456"
		})).Return(&declined, nil)
		f.effects.On("QuoteResolved", mock.Anything, &declined, billing.ActionDecline).Return()

		_, err := f.svc.Decline(context.Background(), "doc_1", lifecycle.Signature{SignerName: "Jordan Reeve", SignatureRef: "sig_456"})
		require.NoError(t, err)
	})

	t.Run("accept without signature rejected before commit", func(t *testing.T) {
		t.Parallel()

		f := newFixture()
		f.docs.On("Get", mock.Anything, "doc_1").Return(sentQuote(), nil)

		_, err := f.svc.Accept(context.Background(), "doc_1", lifecycle.Signature{SignerName: "Jordan Reeve"})

		rej, ok := billing.AsRejection(err)
		require.True(t, ok)
		assert.Equal(t, billing.RejectMissingSignature, rej.Code)
		f.docs.AssertNotCalled(t, "Transition", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("decline without signature rejected before commit", func(t *testing.T) {
		t.Parallel()

		f := newFixture()
		f.docs.On("Get", mock.Anything, "doc_1").Return(sentQuote(), nil)

		_, err := f.svc.Decline(context.Background(), "doc_1", lifecycle.Signature{})

		rej, ok := billing.AsRejection(err)
		require.True(t, ok)
		assert.Equal(t, billing.RejectMissingSignature, rej.Code)
		f.docs.AssertNotCalled(t, "Transition", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("accepting an invoice rejected", func(t *testing.T) {
		t.Parallel()

		f := newFixture()
		doc := draftInvoice()
		doc.Status = billing.StatusSent
		f.docs.On("Get", mock.Anything, "doc_1").Return(doc, nil)

		_, err := f.svc.Accept(context.Background(), "doc_1", lifecycle.Signature{})

		rej, ok := billing.AsRejection(err)
		require.True(t, ok)
		assert.Equal(t, billing.RejectInvalidTransition, rej.Code)
	})

	t.Run("concurrent decline surfaces as already done", func(t *testing.T) {
		t.Parallel()

		f := newFixture()
		doc := sentQuote()
		f.docs.On("Get", mock.Anything, "doc_1").Return(doc, nil).Once()
		f.docs.On("Transition", mock.Anything, "doc_1", billing.StatusSent, billing.StatusAccepted, mock.Anything).
			Return(nil, store.ErrStatusConflict)

		now := time.Now()
		raced := *doc
		raced.Status = billing.StatusDeclined
		raced.DeclinedAt = &now
		f.docs.On("Get", mock.Anything, "doc_1").Return(&raced, nil)

		_, err := f.svc.Accept(context.Background(), "doc_1", lifecycle.Signature{SignerName: "Jordan Reeve", SignatureRef: "sig_123"})

		rej, ok := billing.AsRejection(err)
		require.True(t, ok)
		assert.Equal(t, billing.RejectInvalidTransition, rej.Code)
	})
}

func TestServiceCancel(t *testing.T) {
	t.Parallel()

	f := newFixture()
	doc := draftInvoice()
	doc.Status = billing.StatusSent
	f.docs.On("Get", mock.Anything, "doc_1").Return(doc, nil)

	cancelled := *doc
	cancelled.Status = billing.StatusCancelled
	f.docs.On("Transition", mock.Anything, "doc_1", billing.StatusSent, billing.StatusCancelled, store.Stamp{}).
		Return(&cancelled, nil)
	f.effects.On("DocumentCancelled", mock.Anything, &cancelled).Return()

	_, err := f.svc.Cancel(context.Background(), "doc_1")
	require.NoError(t, err)
	f.effects.AssertExpectations(t)
}
