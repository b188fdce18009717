package transactions

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enterprise/fraud-detection/internal/models"
	"github.com/enterprise/fraud-detection/internal/repositories"
)

type fakeStore struct {
	txs     []*models.Transaction
	filters []repositories.TransactionFilter
	err     error
}

func (f *fakeStore) List(_ context.Context, filter repositories.TransactionFilter) ([]*models.Transaction, int, error) {
	f.filters = append(f.filters, filter)
	if f.err != nil {
		return nil, 0, f.err
	}

	start := (filter.Page - 1) * filter.PageSize
	if start >= len(f.txs) {
		return nil, len(f.txs), nil
	}
	end := start + filter.PageSize
	if end > len(f.txs) {
		end = len(f.txs)
	}
	return f.txs[start:end], len(f.txs), nil
}

func (f *fakeStore) GetByID(_ context.Context, _ uuid.UUID, id uuid.UUID) (*models.Transaction, error) {
	for _, tx := range f.txs {
		if tx.ID == id {
			return tx, nil
		}
	}
	return nil, repositories.ErrTransactionNotFound
}

func (f *fakeStore) GetByTransactionID(_ context.Context, _ uuid.UUID, transactionID string) (*models.Transaction, error) {
	for _, tx := range f.txs {
		if tx.TransactionID == transactionID {
			return tx, nil
		}
	}
	return nil, repositories.ErrTransactionNotFound
}

func (f *fakeStore) Summary(_ context.Context, _ uuid.UUID, days int) (*models.TransactionSummary, error) {
	return &models.TransactionSummary{PeriodDays: days}, nil
}

func sampleTx(id string) *models.Transaction {
	return &models.Transaction{
		ID:              uuid.New(),
		TransactionID:   id,
		Amount:          1234.5,
		SenderAccount:   "user@upi",
		ReceiverAccount: "shop@upi",
		TransactionType: models.TypeP2M,
		FraudScore:      0.12,
		RiskLevel:       models.RiskLevelLow,
		Recommendation:  models.RecommendationApprove,
		RulesViolated:   []string{},
		TransactionTime: time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC),
	}
}

func TestListAppliesDefaultsAndDateFilters(t *testing.T) {
	store := &fakeStore{txs: []*models.Transaction{sampleTx("tx-1")}}
	svc := NewService(store)

	resp, err := svc.List(context.Background(), uuid.New(), ListQuery{
		StartDate: "2024-01-01",
		EndDate:   "2024-01-31",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Pagination.Page)
	assert.Equal(t, 20, resp.Pagination.PageSize)
	assert.Equal(t, 1, resp.Pagination.Total)

	require.Len(t, store.filters, 1)
	filter := store.filters[0]
	require.NotNil(t, filter.StartDate)
	require.NotNil(t, filter.EndDate)
	assert.True(t, filter.EndDate.After(*filter.StartDate))
}

func TestListRejectsBadDates(t *testing.T) {
	svc := NewService(&fakeStore{})

	_, err := svc.List(context.Background(), uuid.New(), ListQuery{StartDate: "01-01-2024"})
	assert.Error(t, err)
}

func TestGetResolvesBothIdentifierKinds(t *testing.T) {
	tx := sampleTx("UPI123")
	store := &fakeStore{txs: []*models.Transaction{tx}}
	svc := NewService(store)

	byUUID, err := svc.Get(context.Background(), uuid.New(), tx.ID.String())
	require.NoError(t, err)
	assert.Equal(t, tx.TransactionID, byUUID.TransactionID)

	byExternal, err := svc.Get(context.Background(), uuid.New(), "UPI123")
	require.NoError(t, err)
	assert.Equal(t, tx.ID, byExternal.ID)

	_, err = svc.Get(context.Background(), uuid.New(), "missing")
	assert.ErrorIs(t, err, repositories.ErrTransactionNotFound)
}

func TestExportCSVPagesThroughHistory(t *testing.T) {
	store := &fakeStore{}
	for i := 0; i < 750; i++ {
		store.txs = append(store.txs, sampleTx("tx-"+uuid.NewString()))
	}
	svc := NewService(store)

	var buf bytes.Buffer
	err := svc.ExportCSV(context.Background(), &buf, uuid.New(), ListQuery{})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 751) // header + all rows
	assert.True(t, strings.HasPrefix(lines[0], "transaction_id,amount"))
	// Two pages of 500 were requested.
	assert.Len(t, store.filters, 2)
}

func TestExportCSVPropagatesStoreError(t *testing.T) {
	store := &fakeStore{err: errors.New("db down")}
	svc := NewService(store)

	var buf bytes.Buffer
	err := svc.ExportCSV(context.Background(), &buf, uuid.New(), ListQuery{})
	assert.Error(t, err)
}
