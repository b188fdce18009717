package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enterprise/fraud-detection/internal/models"
)

type fakeStore struct {
	trends []models.FraudTrendPoint
	hourly []models.HourlyPattern
	bands  []models.AmountBandPattern
	types  []models.TypePattern
	err    error
	calls  int
}

func (f *fakeStore) FraudTrends(context.Context, uuid.UUID, int) ([]models.FraudTrendPoint, error) {
	f.calls++
	return f.trends, f.err
}

func (f *fakeStore) HourlyPatterns(context.Context, uuid.UUID) ([]models.HourlyPattern, error) {
	f.calls++
	return f.hourly, f.err
}

func (f *fakeStore) AmountBandPatterns(context.Context, uuid.UUID) ([]models.AmountBandPattern, error) {
	f.calls++
	return f.bands, f.err
}

func (f *fakeStore) TypePatterns(context.Context, uuid.UUID) ([]models.TypePattern, error) {
	f.calls++
	return f.types, f.err
}

type fakeCache struct {
	data map[string][]byte
}

func (f *fakeCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	if f.data == nil {
		f.data = map[string][]byte{}
	}
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.data[key] = b
	return nil
}

func (f *fakeCache) Get(_ context.Context, key string, dest interface{}) error {
	b, ok := f.data[key]
	if !ok {
		return errors.New("cache miss")
	}
	return json.Unmarshal(b, dest)
}

func TestGetFraudTrendsDefaultsAndCaches(t *testing.T) {
	store := &fakeStore{trends: []models.FraudTrendPoint{
		{Date: "2024-01-15", TotalCount: 10, FraudCount: 2, FraudRate: 0.2},
	}}
	svc := NewService(store, &fakeCache{})
	userID := uuid.New()

	report, err := svc.GetFraudTrends(context.Background(), userID, 0)
	require.NoError(t, err)
	assert.Equal(t, 30, report.PeriodDays)
	require.Len(t, report.Trends, 1)

	// Second call hits the cache.
	store.err = errors.New("db down")
	cached, err := svc.GetFraudTrends(context.Background(), userID, 0)
	require.NoError(t, err)
	assert.Equal(t, report.Trends, cached.Trends)
	assert.Equal(t, 1, store.calls)
}

func TestGetRiskPatternsCombinesGroupings(t *testing.T) {
	store := &fakeStore{
		hourly: []models.HourlyPattern{{Hour: 2, TotalCount: 5, FraudCount: 3, FraudRate: 0.6}},
		bands:  []models.AmountBandPattern{{Band: "100k+", TotalCount: 4, FraudCount: 4, FraudRate: 1}},
		types:  []models.TypePattern{{TransactionType: models.TypeP2P, TotalCount: 9, FraudCount: 1}},
	}
	svc := NewService(store, nil)

	report, err := svc.GetRiskPatterns(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Len(t, report.HourlyPatterns, 1)
	assert.Len(t, report.AmountBands, 1)
	assert.Len(t, report.TypePatterns, 1)
}

func TestGetRiskPatternsStoreError(t *testing.T) {
	store := &fakeStore{err: errors.New("db down")}
	svc := NewService(store, nil)

	_, err := svc.GetRiskPatterns(context.Background(), uuid.New())
	assert.Error(t, err)
}
