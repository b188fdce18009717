package fraud

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/enterprise/fraud-detection/internal/models"
)

// Config holds the pipeline thresholds.
type Config struct {
	Threshold   float64
	AmountLimit float64
	BatchLimit  int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Threshold:   0.5,
		AmountLimit: 200000,
		BatchLimit:  100,
	}
}

var transactionTypes = map[string]bool{
	models.TypeP2P:         true,
	models.TypeP2M:         true,
	models.TypeM2P:         true,
	models.TypeBillPayment: true,
	models.TypeRecharge:    true,
}

// Pipeline orchestrates feature extraction, model scoring, rule evaluation
// and decision combination for one transaction at a time.
type Pipeline struct {
	adapter *ModelAdapter
	rules   *RuleEngine
	cfg     Config
}

func NewPipeline(adapter *ModelAdapter, rules *RuleEngine, cfg Config) *Pipeline {
	return &Pipeline{adapter: adapter, rules: rules, cfg: cfg}
}

// Validate rejects transactions that must not enter the pipeline. This is the
// only hard failure; everything past this gate degrades instead of erroring.
func (p *Pipeline) Validate(tx *TransactionInput) error {
	if tx.TransactionID == "" {
		return newValidationError("transaction_id", "is required")
	}
	if tx.SenderAccount == "" {
		return newValidationError("sender_account", "is required")
	}
	if tx.ReceiverAccount == "" {
		return newValidationError("receiver_account", "is required")
	}
	if tx.TransactionType == "" {
		return newValidationError("transaction_type", "is required")
	}
	if tx.Amount <= 0 {
		return newValidationError("amount", "must be a positive number")
	}
	if tx.Amount > p.cfg.AmountLimit {
		return newValidationError("amount", fmt.Sprintf("exceeds the transaction limit of %.0f", p.cfg.AmountLimit))
	}
	if !transactionTypes[tx.TransactionType] {
		return newValidationError("transaction_type", "must be one of P2P, P2M, M2P, BILL_PAYMENT, RECHARGE")
	}
	return nil
}

// Check validates and scores a single transaction. Only validation failures
// return an error; any other failure yields a safe unknown-risk decision.
func (p *Pipeline) Check(ctx context.Context, tx *TransactionInput) (*FraudDecision, error) {
	if err := p.Validate(tx); err != nil {
		return nil, err
	}
	return p.score(ctx, tx), nil
}

func (p *Pipeline) score(ctx context.Context, tx *TransactionInput) *FraudDecision {
	fv := ExtractFeatures(*tx)

	// Model scoring and rule evaluation only read the immutable feature
	// vector, so both run concurrently.
	var (
		pred       Prediction
		violations []RuleViolation
		modelFail  bool
		rulesFail  bool
		wg         sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Interface("panic", r).
					Str("transaction_id", tx.TransactionID).
					Msg("Model scoring panicked")
				modelFail = true
			}
		}()
		pred = p.adapter.Score(fv)
	}()
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Interface("panic", r).
					Str("transaction_id", tx.TransactionID).
					Msg("Rule evaluation panicked")
				rulesFail = true
			}
		}()
		violations = p.rules.Evaluate(tx, fv)
	}()
	wg.Wait()

	if modelFail || rulesFail {
		return unknownDecision(tx)
	}
	return Combine(pred, violations, tx)
}

// unknownDecision is the safe output when scoring fails unexpectedly. A
// scoring failure must never block recording the surrounding transaction.
func unknownDecision(tx *TransactionInput) *FraudDecision {
	return &FraudDecision{
		TransactionID:  tx.TransactionID,
		FraudScore:     0,
		IsFraudulent:   false,
		RiskLevel:      models.RiskLevelUnknown,
		Confidence:     0,
		Reason:         "Scoring failed, manual review required",
		Recommendation: models.RecommendationManualReview,
		RulesViolated:  []RuleViolation{},
		Error:          true,
	}
}

// BatchItemResult is one entry of a batch check, either a decision or an
// error message.
type BatchItemResult struct {
	TransactionID string         `json:"transaction_id"`
	Decision      *FraudDecision `json:"decision,omitempty"`
	Error         string         `json:"error,omitempty"`
}

// BatchSummary aggregates a batch check run.
type BatchSummary struct {
	Total         int `json:"total"`
	Succeeded     int `json:"succeeded"`
	Failed        int `json:"failed"`
	FraudDetected int `json:"fraud_detected"`
}

// BatchResult is the ordered batch output plus its summary.
type BatchResult struct {
	Results []BatchItemResult `json:"results"`
	Summary BatchSummary      `json:"summary"`
}

// CheckBatch scores up to BatchLimit independent transactions. A failing
// item becomes an error entry; it never aborts its siblings.
func (p *Pipeline) CheckBatch(ctx context.Context, txs []TransactionInput) (*BatchResult, error) {
	if len(txs) == 0 {
		return nil, newValidationError("transactions", "batch must contain at least one transaction")
	}
	if len(txs) > p.cfg.BatchLimit {
		return nil, newValidationError("transactions", fmt.Sprintf("batch size %d exceeds the limit of %d", len(txs), p.cfg.BatchLimit))
	}

	result := &BatchResult{Results: make([]BatchItemResult, 0, len(txs))}
	for i := range txs {
		tx := &txs[i]
		item := BatchItemResult{TransactionID: tx.TransactionID}

		decision, err := p.Check(ctx, tx)
		if err != nil {
			item.Error = err.Error()
			result.Summary.Failed++
		} else {
			item.Decision = decision
			result.Summary.Succeeded++
			if decision.IsFraudulent {
				result.Summary.FraudDetected++
			}
		}

		result.Results = append(result.Results, item)
		result.Summary.Total++
	}
	return result, nil
}
