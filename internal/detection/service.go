// Package detection exposes the fraud scoring pipeline as an application
// service: it validates API input, scores it, persists the outcome and fans
// the decision out to the event stream.
package detection

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/enterprise/fraud-detection/internal/fraud"
	"github.com/enterprise/fraud-detection/internal/metrics"
	"github.com/enterprise/fraud-detection/internal/models"
)

// CheckRequest represents an incoming fraud check request
type CheckRequest struct {
	TransactionID   string    `json:"transaction_id" binding:"required"`
	Amount          float64   `json:"amount" binding:"required,gt=0"`
	SenderAccount   string    `json:"sender_account" binding:"required"`
	ReceiverAccount string    `json:"receiver_account" binding:"required"`
	TransactionType string    `json:"transaction_type" binding:"required"`
	Timestamp       time.Time `json:"timestamp"`
	DeviceID        string    `json:"device_id"`
	IPAddress       string    `json:"ip_address"`
	Location        string    `json:"location"`

	// Optional behavioral signals. Omitted values are resolved from the
	// velocity counters where possible, otherwise default to zero.
	UserAgeDays            *float64 `json:"user_age_days"`
	RecentTransactionCount *float64 `json:"recent_transaction_count"`
	DailyTransactionAmount *float64 `json:"daily_transaction_amount"`
}

// BatchCheckRequest represents a batch of fraud check requests
type BatchCheckRequest struct {
	Transactions []CheckRequest `json:"transactions" binding:"required,min=1,max=100"`
}

// FeedbackRequest records an analyst verdict on a past decision
type FeedbackRequest struct {
	TransactionID string `json:"transaction_id" binding:"required"`
	IsFraudulent  *bool  `json:"is_fraudulent" binding:"required"`
	Notes         string `json:"notes"`
}

// TransactionStore persists scored transactions.
type TransactionStore interface {
	Create(ctx context.Context, tx *models.Transaction) error
	CreateBatch(ctx context.Context, txs []*models.Transaction) error
	SetAnalystVerdict(ctx context.Context, userID uuid.UUID, transactionID string, verdict bool) error
	Summary(ctx context.Context, userID uuid.UUID, days int) (*models.TransactionSummary, error)
}

// AuditStore records audit trail entries.
type AuditStore interface {
	Create(ctx context.Context, entry *models.AuditLog) error
}

// EventPublisher fans decisions out to the alert workers.
type EventPublisher interface {
	Publish(ctx context.Context, event *models.FraudEvent) (string, error)
	PublishBatch(ctx context.Context, events []*models.FraudEvent) ([]string, error)
}

// VelocityReader reads rolling per-account daily amounts.
type VelocityReader interface {
	GetDailyAmount(ctx context.Context, account string, day time.Time) (float64, error)
}

// StatsCache caches expensive statistics queries.
type StatsCache interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
}

// Service wires the scoring pipeline to storage, the event stream and the
// velocity counters.
type Service struct {
	pipeline *fraud.Pipeline
	adapter  *fraud.ModelAdapter
	txStore  TransactionStore
	audit    AuditStore
	events   EventPublisher
	velocity VelocityReader
	cache    StatsCache

	modelPath string
}

// NewService creates a new detection service
func NewService(
	pipeline *fraud.Pipeline,
	adapter *fraud.ModelAdapter,
	txStore TransactionStore,
	audit AuditStore,
	events EventPublisher,
	velocity VelocityReader,
	cache StatsCache,
	modelPath string,
) *Service {
	return &Service{
		pipeline:  pipeline,
		adapter:   adapter,
		txStore:   txStore,
		audit:     audit,
		events:    events,
		velocity:  velocity,
		cache:     cache,
		modelPath: modelPath,
	}
}

// Check scores a single transaction, persists it and publishes the decision.
func (s *Service) Check(ctx context.Context, userID uuid.UUID, req *CheckRequest, requestID, clientIP string) (*fraud.FraudDecision, error) {
	startTime := time.Now()

	input := s.toInput(ctx, req)
	decision, err := s.pipeline.Check(ctx, input)
	if err != nil {
		return nil, err
	}

	s.persistDecision(ctx, userID, input, decision)
	s.publishDecision(ctx, userID, input, decision)
	s.createAuditLog(ctx, userID, models.AuditActionFraudCheck, "transaction", input.TransactionID, requestID, clientIP, models.JSONB{
		"amount":         input.Amount,
		"fraud_score":    decision.FraudScore,
		"is_fraudulent":  decision.IsFraudulent,
		"risk_level":     decision.RiskLevel,
		"recommendation": decision.Recommendation,
	})

	metrics.ObserveCheck(decision.RiskLevel, decision.Recommendation, decision.IsFraudulent, time.Since(startTime))

	log.Info().
		Str("transaction_id", input.TransactionID).
		Float64("amount", input.Amount).
		Float64("fraud_score", decision.FraudScore).
		Str("risk_level", decision.RiskLevel).
		Bool("is_fraudulent", decision.IsFraudulent).
		Dur("processing_time", time.Since(startTime)).
		Msg("Fraud check completed")

	return decision, nil
}

// CheckBatch scores up to 100 transactions. Item failures never abort the
// batch; storage and publishing happen once for all succeeded items.
func (s *Service) CheckBatch(ctx context.Context, userID uuid.UUID, req *BatchCheckRequest, requestID, clientIP string) (*fraud.BatchResult, error) {
	startTime := time.Now()

	inputs := make([]fraud.TransactionInput, len(req.Transactions))
	for i := range req.Transactions {
		inputs[i] = *s.toInput(ctx, &req.Transactions[i])
	}

	result, err := s.pipeline.CheckBatch(ctx, inputs)
	if err != nil {
		return nil, err
	}

	var transactions []*models.Transaction
	var events []*models.FraudEvent
	for i, item := range result.Results {
		if item.Decision == nil {
			continue
		}
		input := &inputs[i]
		transactions = append(transactions, s.toTransaction(userID, input, item.Decision))
		events = append(events, s.toEvent(userID, input, item.Decision))
		metrics.ObserveCheck(item.Decision.RiskLevel, item.Decision.Recommendation, item.Decision.IsFraudulent, 0)
	}

	if len(transactions) > 0 {
		if err := s.txStore.CreateBatch(ctx, transactions); err != nil {
			log.Error().Err(err).Int("count", len(transactions)).Msg("Failed to batch insert scored transactions")
		}
		if _, err := s.events.PublishBatch(ctx, events); err != nil {
			log.Error().Err(err).Int("count", len(events)).Msg("Failed to batch publish decisions")
		}
	}

	s.createAuditLog(ctx, userID, models.AuditActionBatchCheck, "batch", requestID, requestID, clientIP, models.JSONB{
		"total":          result.Summary.Total,
		"succeeded":      result.Summary.Succeeded,
		"failed":         result.Summary.Failed,
		"fraud_detected": result.Summary.FraudDetected,
	})

	log.Info().
		Int("total", result.Summary.Total).
		Int("succeeded", result.Summary.Succeeded).
		Int("failed", result.Summary.Failed).
		Int("fraud_detected", result.Summary.FraudDetected).
		Dur("processing_time", time.Since(startTime)).
		Msg("Batch fraud check completed")

	return result, nil
}

// Feedback stores an analyst verdict on a previously scored transaction.
func (s *Service) Feedback(ctx context.Context, userID uuid.UUID, req *FeedbackRequest, requestID, clientIP string) error {
	if err := s.txStore.SetAnalystVerdict(ctx, userID, req.TransactionID, *req.IsFraudulent); err != nil {
		return err
	}

	s.createAuditLog(ctx, userID, models.AuditActionFeedback, "transaction", req.TransactionID, requestID, clientIP, models.JSONB{
		"is_fraudulent": *req.IsFraudulent,
		"notes":         req.Notes,
	})

	log.Info().
		Str("transaction_id", req.TransactionID).
		Bool("is_fraudulent", *req.IsFraudulent).
		Msg("Analyst feedback recorded")

	return nil
}

// Statistics aggregates the caller's transactions over the last N days. The
// result is cached for a minute since the underlying queries scan the window.
func (s *Service) Statistics(ctx context.Context, userID uuid.UUID, days int) (*models.TransactionSummary, error) {
	if days < 1 {
		days = 30
	}

	cacheKey := fmt.Sprintf("stats:%s:%d", userID, days)
	if s.cache != nil {
		var cached models.TransactionSummary
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	summary, err := s.txStore.Summary(ctx, userID, days)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, summary, time.Minute); err != nil {
			log.Warn().Err(err).Msg("Failed to cache statistics")
		}
	}
	return summary, nil
}

// ModelInfo describes the currently loaded model artifacts.
func (s *Service) ModelInfo() map[string]interface{} {
	return s.adapter.Info()
}

// ModelHealth probes the loaded model with a synthetic transaction.
func (s *Service) ModelHealth() fraud.HealthReport {
	return s.adapter.Health()
}

// ReloadModel re-reads artifacts from disk and atomically swaps them in.
// In-flight checks keep scoring against the previous artifacts.
func (s *Service) ReloadModel(ctx context.Context, userID uuid.UUID, requestID, clientIP string) error {
	artifacts, err := fraud.LoadArtifacts(s.modelPath)
	if err != nil {
		metrics.ModelReloadsTotal.WithLabelValues("error").Inc()
		return err
	}

	s.adapter.Reload(artifacts)
	metrics.ModelReloadsTotal.WithLabelValues("success").Inc()

	s.createAuditLog(ctx, userID, models.AuditActionModelReload, "model", s.modelPath, requestID, clientIP, models.JSONB{
		"model_path": s.modelPath,
	})

	log.Info().Str("model_path", s.modelPath).Msg("Model artifacts reloaded")
	return nil
}

// toInput converts an API request into a pipeline input, resolving the daily
// amount from the velocity counters when the caller omitted it.
func (s *Service) toInput(ctx context.Context, req *CheckRequest) *fraud.TransactionInput {
	input := &fraud.TransactionInput{
		TransactionID:          req.TransactionID,
		Amount:                 req.Amount,
		SenderAccount:          req.SenderAccount,
		ReceiverAccount:        req.ReceiverAccount,
		TransactionType:        req.TransactionType,
		TransactionTime:        req.Timestamp,
		DeviceID:               req.DeviceID,
		IPAddress:              req.IPAddress,
		Location:               req.Location,
		UserAgeDays:            req.UserAgeDays,
		RecentTransactionCount: req.RecentTransactionCount,
		DailyTransactionAmount: req.DailyTransactionAmount,
	}

	if input.DailyTransactionAmount == nil && s.velocity != nil {
		amount, err := s.velocity.GetDailyAmount(ctx, req.SenderAccount, time.Now().UTC())
		if err != nil {
			log.Warn().Err(err).Str("account", req.SenderAccount).Msg("Failed to read velocity counter")
		} else if amount > 0 {
			input.DailyTransactionAmount = &amount
		}
	}
	return input
}

func (s *Service) toTransaction(userID uuid.UUID, input *fraud.TransactionInput, d *fraud.FraudDecision) *models.Transaction {
	rules := make([]string, 0, len(d.RulesViolated))
	for _, v := range d.RulesViolated {
		rules = append(rules, v.Rule)
	}

	txTime := input.TransactionTime
	if txTime.IsZero() {
		txTime = time.Now().UTC()
	}

	return &models.Transaction{
		UserID:           userID,
		TransactionID:    input.TransactionID,
		Amount:           input.Amount,
		SenderAccount:    input.SenderAccount,
		ReceiverAccount:  input.ReceiverAccount,
		TransactionType:  input.TransactionType,
		DeviceID:         input.DeviceID,
		IPAddress:        input.IPAddress,
		Location:         input.Location,
		FraudScore:       d.FraudScore,
		IsFraudulent:     d.IsFraudulent,
		RiskLevel:        d.RiskLevel,
		Recommendation:   d.Recommendation,
		FraudReason:      d.Reason,
		RulesViolated:    rules,
		FeaturesAnalyzed: d.FeaturesAnalyzed,
		ModelUsed:        d.ModelUsed,
		TransactionTime:  txTime,
	}
}

func (s *Service) toEvent(userID uuid.UUID, input *fraud.TransactionInput, d *fraud.FraudDecision) *models.FraudEvent {
	return &models.FraudEvent{
		TransactionID:   input.TransactionID,
		UserID:          userID.String(),
		Amount:          input.Amount,
		SenderAccount:   input.SenderAccount,
		ReceiverAccount: input.ReceiverAccount,
		TransactionType: input.TransactionType,
		FraudScore:      d.FraudScore,
		IsFraudulent:    d.IsFraudulent,
		RiskLevel:       d.RiskLevel,
		Recommendation:  d.Recommendation,
		Reason:          d.Reason,
		Timestamp:       time.Now().UTC(),
	}
}

// persistDecision stores the scored transaction. Storage failures are logged
// and never surface to the caller; the decision itself is the product.
func (s *Service) persistDecision(ctx context.Context, userID uuid.UUID, input *fraud.TransactionInput, d *fraud.FraudDecision) {
	if err := s.txStore.Create(ctx, s.toTransaction(userID, input, d)); err != nil {
		log.Error().Err(err).
			Str("transaction_id", input.TransactionID).
			Msg("Failed to persist scored transaction")
	}
}

func (s *Service) publishDecision(ctx context.Context, userID uuid.UUID, input *fraud.TransactionInput, d *fraud.FraudDecision) {
	if _, err := s.events.Publish(ctx, s.toEvent(userID, input, d)); err != nil {
		log.Error().Err(err).
			Str("transaction_id", input.TransactionID).
			Msg("Failed to publish decision event")
		return
	}
	metrics.EventsPublishedTotal.Inc()
}

func (s *Service) createAuditLog(ctx context.Context, userID uuid.UUID, action, entityType, entityID, requestID, clientIP string, payload models.JSONB) {
	entry := &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Payload:    payload,
		IPAddress:  clientIP,
		RequestID:  requestID,
	}

	if err := s.audit.Create(ctx, entry); err != nil {
		log.Error().Err(err).
			Str("action", action).
			Str("entity_id", entityID).
			Msg("Failed to create audit log")
	}
}
