package fraud

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/enterprise/fraud-detection/internal/models"
)

func TestCombineNoViolations(t *testing.T) {
	pred := Prediction{
		FraudScore: 0.2, RiskLevel: models.RiskLevelLow,
		Confidence: 0.7, Reason: "Transaction appears normal",
		Recommendation: models.RecommendationApprove, ModelUsed: true,
	}
	tx := TransactionInput{TransactionID: "TXN001"}

	decision := Combine(pred, nil, &tx)

	assert.Equal(t, "TXN001", decision.TransactionID)
	assert.InDelta(t, 0.2, decision.FraudScore, 1e-9)
	assert.False(t, decision.IsFraudulent)
	assert.Equal(t, models.RiskLevelLow, decision.RiskLevel)
	assert.Equal(t, models.RecommendationApprove, decision.Recommendation)
	assert.Equal(t, "Transaction appears normal", decision.Reason)
	assert.True(t, decision.ModelUsed)
	assert.Empty(t, decision.RulesViolated)
}

func TestCombineCriticalOverride(t *testing.T) {
	pred := Prediction{FraudScore: 0.1, RiskLevel: models.RiskLevelLow, Reason: "model reason", Recommendation: models.RecommendationApprove}
	violations := []RuleViolation{
		{Rule: "amount_limit", Severity: models.RiskLevelCritical, Reason: "Amount exceeds the limit"},
		{Rule: "round_amount_pattern", Severity: models.RiskLevelLow, Reason: "Round amount"},
	}

	decision := Combine(pred, violations, &TransactionInput{TransactionID: "TXN002"})

	assert.True(t, decision.IsFraudulent)
	assert.Equal(t, models.RiskLevelCritical, decision.RiskLevel)
	assert.Equal(t, models.RecommendationBlock, decision.Recommendation)
	assert.Equal(t, "Amount exceeds the limit", decision.Reason)
	assert.InDelta(t, 0.4, decision.FraudScore, 1e-9)
	assert.Len(t, decision.RulesViolated, 2)
}

func TestCombineHighOverrideReplacesReasonWhenModelClean(t *testing.T) {
	pred := Prediction{FraudScore: 0.4, IsFraudulent: false, RiskLevel: models.RiskLevelMedium, Reason: "model reason", Recommendation: models.RecommendationApprove}
	violations := []RuleViolation{
		{Rule: "same_account", Severity: models.RiskLevelHigh, Reason: "Sender and receiver accounts are identical"},
	}

	decision := Combine(pred, violations, &TransactionInput{TransactionID: "TXN003"})

	assert.True(t, decision.IsFraudulent)
	assert.Equal(t, models.RiskLevelHigh, decision.RiskLevel)
	assert.Equal(t, models.RecommendationManualReview, decision.Recommendation)
	assert.Equal(t, "Sender and receiver accounts are identical", decision.Reason)
	assert.InDelta(t, 0.6, decision.FraudScore, 1e-9)
}

func TestCombineHighOverrideKeepsModelReasonWhenModelFlagged(t *testing.T) {
	pred := Prediction{FraudScore: 0.7, IsFraudulent: true, RiskLevel: models.RiskLevelHigh, Reason: "model reason", Recommendation: models.RecommendationManualReview}
	violations := []RuleViolation{
		{Rule: "night_high_amount", Severity: models.RiskLevelHigh, Reason: "High-value transaction during night hours"},
	}

	decision := Combine(pred, violations, &TransactionInput{TransactionID: "TXN004"})

	assert.Equal(t, "model reason", decision.Reason)
	assert.Equal(t, models.RiskLevelHigh, decision.RiskLevel)
	assert.InDelta(t, 0.9, decision.FraudScore, 1e-9)
}

func TestCombineMediumLowViolationsNeverOverride(t *testing.T) {
	pred := Prediction{FraudScore: 0.2, RiskLevel: models.RiskLevelLow, Reason: "model reason", Recommendation: models.RecommendationApprove}
	violations := []RuleViolation{
		{Rule: "velocity_check", Severity: models.RiskLevelMedium, Reason: "Velocity"},
		{Rule: "round_amount_pattern", Severity: models.RiskLevelLow, Reason: "Round"},
	}

	decision := Combine(pred, violations, &TransactionInput{TransactionID: "TXN005"})

	assert.False(t, decision.IsFraudulent)
	assert.Equal(t, models.RiskLevelLow, decision.RiskLevel)
	assert.Equal(t, models.RecommendationApprove, decision.Recommendation)
	assert.Equal(t, "model reason", decision.Reason)
	// no CRITICAL or HIGH violations, so the boost is zero
	assert.InDelta(t, 0.2, decision.FraudScore, 1e-9)
	assert.Len(t, decision.RulesViolated, 2)
}

func TestCombineBoostIsClamped(t *testing.T) {
	pred := Prediction{FraudScore: 0.9, IsFraudulent: true, RiskLevel: models.RiskLevelCritical, Recommendation: models.RecommendationBlock}
	violations := []RuleViolation{
		{Rule: "amount_limit", Severity: models.RiskLevelCritical, Reason: "over limit"},
		{Rule: "same_account", Severity: models.RiskLevelHigh, Reason: "same account"},
	}

	decision := Combine(pred, violations, &TransactionInput{TransactionID: "TXN006"})

	assert.InDelta(t, 1.0, decision.FraudScore, 1e-9)
}

func TestCombineMultipleCriticalReasonsJoined(t *testing.T) {
	pred := Prediction{FraudScore: 0.1, Reason: "model reason"}
	violations := []RuleViolation{
		{Rule: "a", Severity: models.RiskLevelCritical, Reason: "first"},
		{Rule: "b", Severity: models.RiskLevelCritical, Reason: "second"},
	}

	decision := Combine(pred, violations, &TransactionInput{TransactionID: "TXN007"})

	assert.Equal(t, "first; second", decision.Reason)
	assert.InDelta(t, 0.7, decision.FraudScore, 1e-9)
}
