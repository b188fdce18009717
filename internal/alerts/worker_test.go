package alerts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enterprise/fraud-detection/configs"
	"github.com/enterprise/fraud-detection/internal/models"
	"github.com/enterprise/fraud-detection/internal/queue"
)

type fakeStream struct {
	messages    []queue.StreamMessage
	republished []*models.FraudEvent
	deadLetters []*models.FraudEvent
	acked       []string
}

func (f *fakeStream) Consume(context.Context, string, int64, time.Duration) ([]queue.StreamMessage, error) {
	msgs := f.messages
	f.messages = nil
	return msgs, nil
}

func (f *fakeStream) Publish(_ context.Context, event *models.FraudEvent) (string, error) {
	f.republished = append(f.republished, event)
	return "msg-requeued", nil
}

func (f *fakeStream) AcknowledgeBatch(_ context.Context, ids []string) error {
	f.acked = append(f.acked, ids...)
	return nil
}

func (f *fakeStream) SendToDeadLetter(_ context.Context, event *models.FraudEvent, _ error) error {
	f.deadLetters = append(f.deadLetters, event)
	return nil
}

type fakeAlertStore struct {
	alerts []*models.FraudAlert
	err    error
}

func (f *fakeAlertStore) Create(_ context.Context, alert *models.FraudAlert) error {
	if f.err != nil {
		return f.err
	}
	f.alerts = append(f.alerts, alert)
	return nil
}

type fakeDedup struct {
	seen map[string]bool
}

func (f *fakeDedup) SetNX(_ context.Context, key string, _ interface{}, _ time.Duration) (bool, error) {
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	if f.seen[key] {
		return false, nil
	}
	f.seen[key] = true
	return true, nil
}

func (f *fakeDedup) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.seen, key)
	}
	return nil
}

type fakeVelocity struct {
	totals map[string]float64
}

func (f *fakeVelocity) IncrDailyAmount(_ context.Context, account string, _ time.Time, amount float64) (float64, error) {
	if f.totals == nil {
		f.totals = map[string]float64{}
	}
	f.totals[account] += amount
	return f.totals[account], nil
}

func fraudEvent(id string, fraudulent bool) *models.FraudEvent {
	return &models.FraudEvent{
		TransactionID:   id,
		UserID:          "7a3e9f2c-0000-0000-0000-000000000001",
		Amount:          75000,
		SenderAccount:   "user@upi",
		ReceiverAccount: "shop@upi",
		TransactionType: models.TypeP2P,
		FraudScore:      0.85,
		IsFraudulent:    fraudulent,
		RiskLevel:       models.RiskLevelCritical,
		Recommendation:  models.RecommendationBlock,
		Reason:          "Unusually high amount",
		Timestamp:       time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC),
	}
}

func workerConfig() configs.WorkerConfig {
	return configs.WorkerConfig{
		Concurrency:   1,
		BatchSize:     10,
		PollInterval:  time.Millisecond,
		RetryAttempts: 2,
	}
}

func newTestWorker(stream *fakeStream, store *fakeAlertStore) (*Worker, *fakeDedup, *fakeVelocity) {
	dedup := &fakeDedup{}
	velocity := &fakeVelocity{}
	return NewWorker("test", stream, store, dedup, velocity, workerConfig()), dedup, velocity
}

func TestProcessBatchRaisesAlertForFraud(t *testing.T) {
	stream := &fakeStream{messages: []queue.StreamMessage{
		{ID: "1-0", Event: fraudEvent("tx-fraud", true)},
		{ID: "1-1", Event: fraudEvent("tx-clean", false)},
	}}
	store := &fakeAlertStore{}
	worker, _, velocity := newTestWorker(stream, store)

	worker.ProcessBatch(context.Background(), "c-0")

	require.Len(t, store.alerts, 1)
	alert := store.alerts[0]
	assert.Equal(t, "fraud_detected", alert.AlertType)
	assert.Equal(t, "critical", alert.Severity)
	assert.Equal(t, models.AlertStatusOpen, alert.Status)

	// Both events count toward velocity and are acknowledged.
	assert.InDelta(t, 150000, velocity.totals["user@upi"], 0.001)
	assert.Equal(t, []string{"1-0", "1-1"}, stream.acked)

	m := worker.GetMetrics()
	assert.EqualValues(t, 2, m.ProcessedCount)
	assert.EqualValues(t, 1, m.AlertsCreated)
}

func TestProcessBatchDeduplicatesRedelivery(t *testing.T) {
	stream := &fakeStream{messages: []queue.StreamMessage{
		{ID: "1-0", Event: fraudEvent("tx-dup", true)},
		{ID: "1-1", Event: fraudEvent("tx-dup", true)},
	}}
	store := &fakeAlertStore{}
	worker, _, _ := newTestWorker(stream, store)

	worker.ProcessBatch(context.Background(), "c-0")

	assert.Len(t, store.alerts, 1)
}

func TestProcessBatchRetriesThenDeadLetters(t *testing.T) {
	event := fraudEvent("tx-fail", true)
	stream := &fakeStream{messages: []queue.StreamMessage{{ID: "1-0", Event: event}}}
	store := &fakeAlertStore{err: errors.New("db down")}
	worker, _, _ := newTestWorker(stream, store)

	worker.ProcessBatch(context.Background(), "c-0")
	require.Len(t, stream.republished, 1)
	assert.Equal(t, 1, stream.republished[0].RetryCount)
	assert.Empty(t, stream.deadLetters)

	// Exhaust the configured retries.
	event.RetryCount = 2
	stream.messages = []queue.StreamMessage{{ID: "2-0", Event: event}}
	worker.ProcessBatch(context.Background(), "c-0")
	assert.Len(t, stream.deadLetters, 1)

	m := worker.GetMetrics()
	assert.EqualValues(t, 2, m.FailedCount)
}

func TestRaiseAlertDerivesUUIDFromExternalID(t *testing.T) {
	stream := &fakeStream{messages: []queue.StreamMessage{
		{ID: "1-0", Event: fraudEvent("UPI-20240115-XYZ", true)},
	}}
	store := &fakeAlertStore{}
	worker, _, _ := newTestWorker(stream, store)

	worker.ProcessBatch(context.Background(), "c-0")

	require.Len(t, store.alerts, 1)
	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", store.alerts[0].TransactionID.String())
}
