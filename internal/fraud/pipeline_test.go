package fraud

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enterprise/fraud-detection/internal/models"
)

func newTestPipeline() *Pipeline {
	cfg := DefaultConfig()
	return NewPipeline(NewModelAdapter(cfg.Threshold), NewRuleEngine(cfg), cfg)
}

func validTx(id string) TransactionInput {
	return TransactionInput{
		TransactionID:   id,
		Amount:          1234,
		SenderAccount:   "alice@upi",
		ReceiverAccount: "bob@upi",
		TransactionType: "P2P",
		TransactionTime: daytime(),
	}
}

func TestValidateRejections(t *testing.T) {
	p := newTestPipeline()

	tests := []struct {
		name      string
		mutate    func(*TransactionInput)
		wantField string
	}{
		{"missing transaction id", func(tx *TransactionInput) { tx.TransactionID = "" }, "transaction_id"},
		{"missing sender", func(tx *TransactionInput) { tx.SenderAccount = "" }, "sender_account"},
		{"missing receiver", func(tx *TransactionInput) { tx.ReceiverAccount = "" }, "receiver_account"},
		{"missing type", func(tx *TransactionInput) { tx.TransactionType = "" }, "transaction_type"},
		{"zero amount", func(tx *TransactionInput) { tx.Amount = 0 }, "amount"},
		{"negative amount", func(tx *TransactionInput) { tx.Amount = -10 }, "amount"},
		{"over limit", func(tx *TransactionInput) { tx.Amount = 250000 }, "amount"},
		{"unknown type", func(tx *TransactionInput) { tx.TransactionType = "WIRE" }, "transaction_type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := validTx("TXN001")
			tt.mutate(&tx)

			_, err := p.Check(context.Background(), &tx)
			require.Error(t, err)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.wantField, verr.Field)
		})
	}
}

func TestCheckCleanTransactionApproved(t *testing.T) {
	p := newTestPipeline()

	decision, err := p.Check(context.Background(), &TransactionInput{
		TransactionID:   "TXN010",
		Amount:          1234,
		SenderAccount:   "alice@upi",
		ReceiverAccount: "bob@upi",
		TransactionType: "P2P",
		TransactionTime: daytime(),
	})
	require.NoError(t, err)

	assert.InDelta(t, 0.0, decision.FraudScore, 1e-9)
	assert.False(t, decision.IsFraudulent)
	assert.Equal(t, models.RiskLevelLow, decision.RiskLevel)
	assert.Equal(t, models.RecommendationApprove, decision.Recommendation)
	assert.Empty(t, decision.RulesViolated)
	assert.False(t, decision.Error)
}

func TestCheckSameAccountEscalatesToHigh(t *testing.T) {
	p := newTestPipeline()

	decision, err := p.Check(context.Background(), &TransactionInput{
		TransactionID:   "TXN011",
		Amount:          5001,
		SenderAccount:   "x@upi",
		ReceiverAccount: "x@upi",
		TransactionType: "P2P",
		TransactionTime: daytime(),
	})
	require.NoError(t, err)

	// Fallback scores 0.4 for the identical accounts; the HIGH same_account
	// violation forces the fraud verdict and boosts the score by 0.2.
	assert.True(t, decision.IsFraudulent)
	assert.Equal(t, models.RiskLevelHigh, decision.RiskLevel)
	assert.Equal(t, models.RecommendationManualReview, decision.Recommendation)
	assert.InDelta(t, 0.6, decision.FraudScore, 1e-9)
	require.Len(t, decision.RulesViolated, 1)
	assert.Equal(t, "same_account", decision.RulesViolated[0].Rule)
	assert.False(t, decision.ModelUsed)
}

func TestCheckScoreAlwaysInRange(t *testing.T) {
	p := newTestPipeline()

	txs := []TransactionInput{
		validTx("TXN020"),
		{
			TransactionID: "TXN021", Amount: 199000,
			SenderAccount: "x@upi", ReceiverAccount: "x@upi",
			TransactionType: "P2M",
			TransactionTime: time.Date(2024, 1, 15, 2, 0, 0, 0, time.UTC),
		},
		{
			TransactionID: "TXN022", Amount: 60000,
			SenderAccount: "a@upi", ReceiverAccount: "b@upi",
			TransactionType: "BILL_PAYMENT",
			TransactionTime: time.Date(2024, 1, 20, 23, 30, 0, 0, time.UTC),
		},
	}

	for _, tx := range txs {
		decision, err := p.Check(context.Background(), &tx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, decision.FraudScore, 0.0)
		assert.LessOrEqual(t, decision.FraudScore, 1.0)
	}
}

func TestCheckIdempotence(t *testing.T) {
	p := newTestPipeline()
	tx := TransactionInput{
		TransactionID:   "TXN030",
		Amount:          75000,
		SenderAccount:   "a@upi",
		ReceiverAccount: "b@upi",
		TransactionType: "P2M",
		TransactionTime: time.Date(2024, 1, 15, 23, 30, 0, 0, time.UTC),
	}

	first, err := p.Check(context.Background(), &tx)
	require.NoError(t, err)
	second, err := p.Check(context.Background(), &tx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestCheckPanicYieldsUnknownDecision(t *testing.T) {
	// A nil adapter makes the model goroutine panic; the pipeline must still
	// return a safe decision instead of an error.
	cfg := DefaultConfig()
	p := NewPipeline(nil, NewRuleEngine(cfg), cfg)

	tx := validTx("TXN040")
	decision, err := p.Check(context.Background(), &tx)
	require.NoError(t, err)

	assert.True(t, decision.Error)
	assert.Equal(t, models.RiskLevelUnknown, decision.RiskLevel)
	assert.Equal(t, models.RecommendationManualReview, decision.Recommendation)
	assert.False(t, decision.IsFraudulent)
	assert.Equal(t, "TXN040", decision.TransactionID)
}

func TestCheckBatchIsolation(t *testing.T) {
	p := newTestPipeline()

	txs := []TransactionInput{
		validTx("TXN050"),
		{TransactionID: "TXN051", Amount: -5, SenderAccount: "a@upi", ReceiverAccount: "b@upi", TransactionType: "P2P"},
		validTx("TXN052"),
	}

	result, err := p.CheckBatch(context.Background(), txs)
	require.NoError(t, err)

	require.Len(t, result.Results, 3)
	assert.Equal(t, "TXN050", result.Results[0].TransactionID)
	assert.NotNil(t, result.Results[0].Decision)
	assert.Empty(t, result.Results[0].Error)

	assert.Equal(t, "TXN051", result.Results[1].TransactionID)
	assert.Nil(t, result.Results[1].Decision)
	assert.NotEmpty(t, result.Results[1].Error)

	assert.NotNil(t, result.Results[2].Decision)

	assert.Equal(t, 3, result.Summary.Total)
	assert.Equal(t, 2, result.Summary.Succeeded)
	assert.Equal(t, 1, result.Summary.Failed)
}

func TestCheckBatchCountsFraud(t *testing.T) {
	p := newTestPipeline()

	txs := []TransactionInput{
		validTx("TXN060"),
		{
			TransactionID: "TXN061", Amount: 5001,
			SenderAccount: "x@upi", ReceiverAccount: "x@upi",
			TransactionType: "P2P", TransactionTime: daytime(),
		},
	}

	result, err := p.CheckBatch(context.Background(), txs)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Summary.FraudDetected)
}

func TestCheckBatchLimits(t *testing.T) {
	p := newTestPipeline()

	_, err := p.CheckBatch(context.Background(), nil)
	assert.Error(t, err)

	txs := make([]TransactionInput, 101)
	for i := range txs {
		txs[i] = validTx("TXN")
	}
	_, err = p.CheckBatch(context.Background(), txs)
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Message, "exceeds the limit")
}
