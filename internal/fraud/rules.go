package fraud

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/enterprise/fraud-detection/internal/models"
)

// RuleViolation is a deterministic business-policy breach independent of the
// statistical model.
type RuleViolation struct {
	Rule           string `json:"rule"`
	Severity       string `json:"severity"`
	Reason         string `json:"reason"`
	Recommendation string `json:"recommendation"`
}

type businessRule struct {
	name           string
	severity       string
	recommendation string
	evaluate       func(tx *TransactionInput, fv FeatureVector, cfg Config) (bool, string)
}

// RuleEngine evaluates the fixed business rule set against a transaction and
// its features. Evaluation is pure and deterministic; a rule that panics is
// skipped and logged, never propagated.
type RuleEngine struct {
	cfg   Config
	rules []businessRule
}

func NewRuleEngine(cfg Config) *RuleEngine {
	return &RuleEngine{
		cfg: cfg,
		rules: []businessRule{
			{
				name:           "amount_limit",
				severity:       models.RiskLevelCritical,
				recommendation: models.RecommendationBlock,
				evaluate: func(tx *TransactionInput, fv FeatureVector, cfg Config) (bool, string) {
					if tx.Amount > cfg.AmountLimit {
						return true, fmt.Sprintf("Amount %.2f exceeds the transaction limit of %.0f", tx.Amount, cfg.AmountLimit)
					}
					return false, ""
				},
			},
			{
				name:           "night_high_amount",
				severity:       models.RiskLevelHigh,
				recommendation: models.RecommendationManualReview,
				evaluate: func(tx *TransactionInput, fv FeatureVector, cfg Config) (bool, string) {
					if fv["is_night"] == 1 && tx.Amount > 50000 {
						return true, "High-value transaction during night hours"
					}
					return false, ""
				},
			},
			{
				name:           "same_account",
				severity:       models.RiskLevelHigh,
				recommendation: models.RecommendationBlock,
				evaluate: func(tx *TransactionInput, fv FeatureVector, cfg Config) (bool, string) {
					if tx.SenderAccount == tx.ReceiverAccount {
						return true, "Sender and receiver accounts are identical"
					}
					return false, ""
				},
			},
			{
				name:           "velocity_check",
				severity:       models.RiskLevelMedium,
				recommendation: models.RecommendationManualReview,
				evaluate: func(tx *TransactionInput, fv FeatureVector, cfg Config) (bool, string) {
					if fv["daily_transaction_amount"] > 100000 {
						return true, fmt.Sprintf("Daily transaction volume %.2f exceeds 100000", fv["daily_transaction_amount"])
					}
					return false, ""
				},
			},
			{
				name:           "round_amount_pattern",
				severity:       models.RiskLevelLow,
				recommendation: models.RecommendationMonitor,
				evaluate: func(tx *TransactionInput, fv FeatureVector, cfg Config) (bool, string) {
					if fv["round_amount"] == 1 && tx.Amount >= 10000 {
						return true, "Large round amount transaction"
					}
					return false, ""
				},
			},
		},
	}
}

// Evaluate returns the triggered violations in rule-definition order.
func (e *RuleEngine) Evaluate(tx *TransactionInput, fv FeatureVector) []RuleViolation {
	violations := make([]RuleViolation, 0)
	for _, rule := range e.rules {
		triggered, reason := e.safeEvaluate(rule, tx, fv)
		if !triggered {
			continue
		}
		violations = append(violations, RuleViolation{
			Rule:           rule.name,
			Severity:       rule.severity,
			Reason:         reason,
			Recommendation: rule.recommendation,
		})
	}
	return violations
}

func (e *RuleEngine) safeEvaluate(rule businessRule, tx *TransactionInput, fv FeatureVector) (triggered bool, reason string) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("rule", rule.name).
				Str("transaction_id", tx.TransactionID).
				Msg("Rule evaluation panicked, skipping rule")
			triggered = false
		}
	}()
	return rule.evaluate(tx, fv, e.cfg)
}
