package sideeffect_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tradedesk/billing/internal/billing"
	"github.com/tradedesk/billing/internal/billing/store"
	"github.com/tradedesk/billing/internal/sideeffect"
	"github.com/tradedesk/billing/pkg/logger"
)

type mockDocumentStore struct {
	mock.Mock
}

func (m *mockDocumentStore) Get(ctx context.Context, id string) (*billing.Document, error) {
	args := m.Called(ctx, id)
	if doc := args.Get(0); doc != nil {
		return doc.(*billing.Document), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDocumentStore) LineItems(ctx context.Context, documentID string) ([]billing.LineItem, error) {
	args := m.Called(ctx, documentID)
	if items := args.Get(0); items != nil {
		return items.([]billing.LineItem), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDocumentStore) Transition(ctx context.Context, id string, from, to billing.Status, stamp store.Stamp) (*billing.Document, error) {
	args := m.Called(ctx, id, from, to, stamp)
	if doc := args.Get(0); doc != nil {
		return doc.(*billing.Document), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDocumentStore) SetAccountingID(ctx context.Context, id, remoteID string) error {
	return m.Called(ctx, id, remoteID).Error(0)
}

func (m *mockDocumentStore) ListOverdue(ctx context.Context, businessID string, asOf time.Time) ([]billing.Document, error) {
	args := m.Called(ctx, businessID, asOf)
	if docs := args.Get(0); docs != nil {
		return docs.([]billing.Document), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDocumentStore) ListLapsedQuotes(ctx context.Context, businessID string, asOf time.Time) ([]billing.Document, error) {
	args := m.Called(ctx, businessID, asOf)
	if docs := args.Get(0); docs != nil {
		return docs.([]billing.Document), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockBusinessStore struct {
	mock.Mock
}

func (m *mockBusinessStore) GetBusiness(ctx context.Context, id string) (*billing.BusinessProfile, error) {
	args := m.Called(ctx, id)
	if b := args.Get(0); b != nil {
		return b.(*billing.BusinessProfile), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockBusinessStore) ListBusinesses(ctx context.Context) ([]billing.BusinessProfile, error) {
	args := m.Called(ctx)
	if bs := args.Get(0); bs != nil {
		return bs.([]billing.BusinessProfile), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockSyncer struct {
	mock.Mock
}

func (m *mockSyncer) CreateInvoice(ctx context.Context, tenantID string, doc *billing.Document, items []billing.LineItem) (string, error) {
	args := m.Called(ctx, tenantID, doc, items)
	return args.String(0), args.Error(1)
}

func (m *mockSyncer) RecordPayment(ctx context.Context, tenantID, remoteID string, amount billing.Money) error {
	return m.Called(ctx, tenantID, remoteID, amount).Error(0)
}

func TestAccountingInvoiceTask(t *testing.T) {
	t.Parallel()

	t.Run("mirrors invoice and stores remote id", func(t *testing.T) {
		t.Parallel()

		doc := sentInvoice()
		docs := new(mockDocumentStore)
		businesses := new(mockBusinessStore)
		syncer := new(mockSyncer)

		docs.On("Get", mock.Anything, "doc_1").Return(doc, nil)
		businesses.On("GetBusiness", mock.Anything, "biz_1").
			Return(&billing.BusinessProfile{ID: "biz_1", AccountingTenantID: "tenant_9"}, nil)
		docs.On("LineItems", mock.Anything, "doc_1").Return([]billing.LineItem{}, nil)
		syncer.On("CreateInvoice", mock.Anything, "tenant_9", doc, mock.Anything).Return("remote_42", nil)
		docs.On("SetAccountingID", mock.Anything, "doc_1", "remote_42").Return(nil)

		task := sideeffect.NewAccountingInvoiceTask(syncer, docs, businesses, logger.NewNope())
		require.NoError(t, task.Handle(context.Background(), sideeffect.AccountingPayload{DocumentID: "doc_1"}))
		docs.AssertExpectations(t)
		syncer.AssertExpectations(t)
	})

	t.Run("already mirrored is a no-op", func(t *testing.T) {
		t.Parallel()

		doc := sentInvoice()
		remote := "remote_42"
		doc.AccountingID = &remote

		docs := new(mockDocumentStore)
		docs.On("Get", mock.Anything, "doc_1").Return(doc, nil)
		syncer := new(mockSyncer)

		task := sideeffect.NewAccountingInvoiceTask(syncer, docs, new(mockBusinessStore), logger.NewNope())
		require.NoError(t, task.Handle(context.Background(), sideeffect.AccountingPayload{DocumentID: "doc_1"}))
		syncer.AssertNotCalled(t, "CreateInvoice", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unconnected business is a clean skip", func(t *testing.T) {
		t.Parallel()

		docs := new(mockDocumentStore)
		businesses := new(mockBusinessStore)
		docs.On("Get", mock.Anything, "doc_1").Return(sentInvoice(), nil)
		businesses.On("GetBusiness", mock.Anything, "biz_1").
			Return(&billing.BusinessProfile{ID: "biz_1"}, nil)

		task := sideeffect.NewAccountingInvoiceTask(new(mockSyncer), docs, businesses, logger.NewNope())
		assert.NoError(t, task.Handle(context.Background(), sideeffect.AccountingPayload{DocumentID: "doc_1"}))
	})

	t.Run("deleted document is a clean skip", func(t *testing.T) {
		t.Parallel()

		docs := new(mockDocumentStore)
		docs.On("Get", mock.Anything, "gone").Return(nil, store.ErrNotFound)

		task := sideeffect.NewAccountingInvoiceTask(new(mockSyncer), docs, new(mockBusinessStore), logger.NewNope())
		assert.NoError(t, task.Handle(context.Background(), sideeffect.AccountingPayload{DocumentID: "gone"}))
	})
}

func TestAccountingPaymentTask(t *testing.T) {
	t.Parallel()

	t.Run("records payment against mirrored invoice", func(t *testing.T) {
		t.Parallel()

		doc := sentInvoice()
		remote := "remote_42"
		doc.AccountingID = &remote

		docs := new(mockDocumentStore)
		businesses := new(mockBusinessStore)
		syncer := new(mockSyncer)
		docs.On("Get", mock.Anything, "doc_1").Return(doc, nil)
		businesses.On("GetBusiness", mock.Anything, "biz_1").
			Return(&billing.BusinessProfile{ID: "biz_1", AccountingTenantID: "tenant_9"}, nil)
		syncer.On("RecordPayment", mock.Anything, "tenant_9", "remote_42", doc.Total).Return(nil)

		task := sideeffect.NewAccountingPaymentTask(syncer, docs, businesses, logger.NewNope())
		require.NoError(t, task.Handle(context.Background(), sideeffect.AccountingPayload{DocumentID: "doc_1"}))
		syncer.AssertExpectations(t)
	})

	t.Run("unmirrored invoice skipped without error", func(t *testing.T) {
		t.Parallel()

		docs := new(mockDocumentStore)
		docs.On("Get", mock.Anything, "doc_1").Return(sentInvoice(), nil)
		syncer := new(mockSyncer)

		task := sideeffect.NewAccountingPaymentTask(syncer, docs, new(mockBusinessStore), logger.NewNope())
		assert.NoError(t, task.Handle(context.Background(), sideeffect.AccountingPayload{DocumentID: "doc_1"}))
		syncer.AssertNotCalled(t, "RecordPayment", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}
