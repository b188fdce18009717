package detection

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enterprise/fraud-detection/internal/fraud"
	"github.com/enterprise/fraud-detection/internal/models"
)

type fakeTxStore struct {
	created  []*models.Transaction
	batches  [][]*models.Transaction
	verdicts map[string]bool
	summary  *models.TransactionSummary
	err      error
}

func (f *fakeTxStore) Create(_ context.Context, tx *models.Transaction) error {
	f.created = append(f.created, tx)
	return f.err
}

func (f *fakeTxStore) CreateBatch(_ context.Context, txs []*models.Transaction) error {
	f.batches = append(f.batches, txs)
	return f.err
}

func (f *fakeTxStore) SetAnalystVerdict(_ context.Context, _ uuid.UUID, transactionID string, verdict bool) error {
	if f.err != nil {
		return f.err
	}
	if f.verdicts == nil {
		f.verdicts = map[string]bool{}
	}
	f.verdicts[transactionID] = verdict
	return nil
}

func (f *fakeTxStore) Summary(_ context.Context, _ uuid.UUID, days int) (*models.TransactionSummary, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.summary != nil {
		return f.summary, nil
	}
	return &models.TransactionSummary{PeriodDays: days}, nil
}

type fakeAuditStore struct {
	entries []*models.AuditLog
}

func (f *fakeAuditStore) Create(_ context.Context, entry *models.AuditLog) error {
	f.entries = append(f.entries, entry)
	return nil
}

type fakePublisher struct {
	published []*models.FraudEvent
	batches   [][]*models.FraudEvent
}

func (f *fakePublisher) Publish(_ context.Context, event *models.FraudEvent) (string, error) {
	f.published = append(f.published, event)
	return "msg-1", nil
}

func (f *fakePublisher) PublishBatch(_ context.Context, events []*models.FraudEvent) ([]string, error) {
	f.batches = append(f.batches, events)
	ids := make([]string, len(events))
	return ids, nil
}

type fakeVelocity struct {
	amount float64
	err    error
}

func (f *fakeVelocity) GetDailyAmount(context.Context, string, time.Time) (float64, error) {
	return f.amount, f.err
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

type testEnv struct {
	svc      *Service
	txStore  *fakeTxStore
	audit    *fakeAuditStore
	events   *fakePublisher
	velocity *fakeVelocity
	cache    *fakeCache
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := fraud.DefaultConfig()
	adapter := fraud.NewModelAdapter(cfg.Threshold)
	pipeline := fraud.NewPipeline(adapter, fraud.NewRuleEngine(cfg), cfg)

	env := &testEnv{
		txStore:  &fakeTxStore{},
		audit:    &fakeAuditStore{},
		events:   &fakePublisher{},
		velocity: &fakeVelocity{},
		cache:    &fakeCache{},
	}
	env.svc = NewService(pipeline, adapter, env.txStore, env.audit, env.events, env.velocity, env.cache, t.TempDir())
	return env
}

func checkRequest(id string) *CheckRequest {
	return &CheckRequest{
		TransactionID:   id,
		Amount:          1234,
		SenderAccount:   "user@upi",
		ReceiverAccount: "shop@upi",
		TransactionType: models.TypeP2M,
		Timestamp:       time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC),
	}
}

func TestCheckPersistsPublishesAndAudits(t *testing.T) {
	env := newTestEnv(t)
	userID := uuid.New()

	decision, err := env.svc.Check(context.Background(), userID, checkRequest("tx-1"), "req-1", "10.0.0.1")
	require.NoError(t, err)
	require.NotNil(t, decision)
	assert.Equal(t, "tx-1", decision.TransactionID)
	assert.False(t, decision.IsFraudulent)

	require.Len(t, env.txStore.created, 1)
	stored := env.txStore.created[0]
	assert.Equal(t, userID, stored.UserID)
	assert.Equal(t, decision.FraudScore, stored.FraudScore)
	assert.Equal(t, decision.RiskLevel, stored.RiskLevel)

	require.Len(t, env.events.published, 1)
	assert.Equal(t, "tx-1", env.events.published[0].TransactionID)
	assert.Equal(t, userID.String(), env.events.published[0].UserID)

	require.Len(t, env.audit.entries, 1)
	assert.Equal(t, models.AuditActionFraudCheck, env.audit.entries[0].Action)
	assert.Equal(t, "req-1", env.audit.entries[0].RequestID)
}

func TestCheckValidationErrorDoesNotPersist(t *testing.T) {
	env := newTestEnv(t)

	req := checkRequest("tx-bad")
	req.Amount = 250000

	_, err := env.svc.Check(context.Background(), uuid.New(), req, "req-1", "")
	require.Error(t, err)

	var vErr *fraud.ValidationError
	assert.ErrorAs(t, err, &vErr)
	assert.Empty(t, env.txStore.created)
	assert.Empty(t, env.events.published)
}

func TestCheckResolvesVelocityWhenOmitted(t *testing.T) {
	env := newTestEnv(t)
	env.velocity.amount = 150000

	decision, err := env.svc.Check(context.Background(), uuid.New(), checkRequest("tx-vel"), "req-1", "")
	require.NoError(t, err)

	rules := make([]string, 0, len(decision.RulesViolated))
	for _, v := range decision.RulesViolated {
		rules = append(rules, v.Rule)
	}
	assert.Contains(t, rules, "velocity_check")
}

func TestCheckCallerValueOverridesVelocity(t *testing.T) {
	env := newTestEnv(t)
	env.velocity.amount = 150000

	req := checkRequest("tx-explicit")
	zero := 0.0
	req.DailyTransactionAmount = &zero

	decision, err := env.svc.Check(context.Background(), uuid.New(), req, "req-1", "")
	require.NoError(t, err)

	for _, v := range decision.RulesViolated {
		assert.NotEqual(t, "velocity_check", v.Rule)
	}
}

func TestCheckBatchStoresOnlySucceeded(t *testing.T) {
	env := newTestEnv(t)
	userID := uuid.New()

	bad := *checkRequest("tx-bad")
	bad.Amount = -5

	req := &BatchCheckRequest{Transactions: []CheckRequest{
		*checkRequest("tx-a"),
		bad,
		*checkRequest("tx-b"),
	}}

	result, err := env.svc.CheckBatch(context.Background(), userID, req, "req-batch", "")
	require.NoError(t, err)
	assert.Equal(t, 3, result.Summary.Total)
	assert.Equal(t, 2, result.Summary.Succeeded)
	assert.Equal(t, 1, result.Summary.Failed)

	require.Len(t, env.txStore.batches, 1)
	assert.Len(t, env.txStore.batches[0], 2)
	require.Len(t, env.events.batches, 1)
	assert.Len(t, env.events.batches[0], 2)

	require.Len(t, env.audit.entries, 1)
	assert.Equal(t, models.AuditActionBatchCheck, env.audit.entries[0].Action)
}

func TestFeedbackRecordsVerdict(t *testing.T) {
	env := newTestEnv(t)
	userID := uuid.New()

	verdict := true
	err := env.svc.Feedback(context.Background(), userID, &FeedbackRequest{
		TransactionID: "tx-1",
		IsFraudulent:  &verdict,
		Notes:         "confirmed with customer",
	}, "req-1", "")
	require.NoError(t, err)

	assert.True(t, env.txStore.verdicts["tx-1"])
	require.Len(t, env.audit.entries, 1)
	assert.Equal(t, models.AuditActionFeedback, env.audit.entries[0].Action)
}

func TestStatisticsCachesSummary(t *testing.T) {
	env := newTestEnv(t)
	userID := uuid.New()
	env.txStore.summary = &models.TransactionSummary{
		PeriodDays:        30,
		TotalTransactions: 42,
		FraudCount:        3,
	}

	first, err := env.svc.Statistics(context.Background(), userID, 30)
	require.NoError(t, err)
	assert.Equal(t, 42, first.TotalTransactions)

	// Second call must come from the cache, not the store.
	env.txStore.err = errors.New("db down")
	second, err := env.svc.Statistics(context.Background(), userID, 30)
	require.NoError(t, err)
	assert.Equal(t, 42, second.TotalTransactions)
}

func TestReloadModelWithoutArtifacts(t *testing.T) {
	env := newTestEnv(t)

	err := env.svc.ReloadModel(context.Background(), uuid.New(), "req-1", "")
	require.NoError(t, err)

	info := env.svc.ModelInfo()
	assert.Equal(t, false, info["primary_model_loaded"])
}
