package fraud

import (
	"strings"

	"github.com/enterprise/fraud-detection/internal/models"
)

// FraudDecision is the final pipeline output. It extends the model prediction
// with the rule violations and the escalation policy applied on top.
type FraudDecision struct {
	TransactionID    string          `json:"transaction_id"`
	FraudScore       float64         `json:"fraud_score"`
	IsFraudulent     bool            `json:"is_fraudulent"`
	RiskLevel        string          `json:"risk_level"`
	Confidence       float64         `json:"confidence"`
	Reason           string          `json:"reason"`
	Recommendation   string          `json:"recommendation"`
	FeaturesAnalyzed []string        `json:"features_analyzed"`
	RulesViolated    []RuleViolation `json:"rules_violated"`
	ModelUsed        bool            `json:"model_used"`
	Error            bool            `json:"error,omitempty"`
}

// Combine merges the model prediction and the rule violations into the final
// decision. Severity escalation is rule-driven (CRITICAL forces a block, HIGH
// forces review); the score boost is applied whenever any violation exists so
// a violation is never silently dropped from the score.
func Combine(pred Prediction, violations []RuleViolation, tx *TransactionInput) *FraudDecision {
	decision := &FraudDecision{
		TransactionID:    tx.TransactionID,
		FraudScore:       pred.FraudScore,
		IsFraudulent:     pred.IsFraudulent,
		RiskLevel:        pred.RiskLevel,
		Confidence:       pred.Confidence,
		Reason:           pred.Reason,
		Recommendation:   pred.Recommendation,
		FeaturesAnalyzed: pred.FeaturesAnalyzed,
		RulesViolated:    violations,
		ModelUsed:        pred.ModelUsed,
	}

	var critical, high []RuleViolation
	for _, v := range violations {
		switch v.Severity {
		case models.RiskLevelCritical:
			critical = append(critical, v)
		case models.RiskLevelHigh:
			high = append(high, v)
		}
	}

	if len(critical) > 0 {
		decision.IsFraudulent = true
		decision.RiskLevel = models.RiskLevelCritical
		decision.Recommendation = models.RecommendationBlock
		decision.Reason = joinReasons(critical)
	} else if len(high) > 0 {
		decision.IsFraudulent = true
		decision.RiskLevel = models.RiskLevelHigh
		decision.Recommendation = models.RecommendationManualReview
		if !pred.IsFraudulent {
			decision.Reason = joinReasons(high)
		}
	}

	if len(violations) > 0 {
		boost := 0.3*float64(len(critical)) + 0.2*float64(len(high))
		decision.FraudScore = clamp01(decision.FraudScore + boost)
	}

	return decision
}

func joinReasons(violations []RuleViolation) string {
	reasons := make([]string, len(violations))
	for i, v := range violations {
		reasons[i] = v.Reason
	}
	return strings.Join(reasons, "; ")
}
