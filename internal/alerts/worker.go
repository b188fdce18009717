// Package alerts turns fraud decision events into persisted alerts. A worker
// pool consumes the decision stream, deduplicates per transaction and keeps
// the per-account velocity counters current.
package alerts

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/enterprise/fraud-detection/configs"
	"github.com/enterprise/fraud-detection/internal/metrics"
	"github.com/enterprise/fraud-detection/internal/models"
	"github.com/enterprise/fraud-detection/internal/queue"
)

// StreamConsumer reads and acknowledges decision events.
type StreamConsumer interface {
	Consume(ctx context.Context, consumerName string, count int64, blockDuration time.Duration) ([]queue.StreamMessage, error)
	Publish(ctx context.Context, event *models.FraudEvent) (string, error)
	AcknowledgeBatch(ctx context.Context, messageIDs []string) error
	SendToDeadLetter(ctx context.Context, event *models.FraudEvent, err error) error
}

// AlertStore persists fraud alerts.
type AlertStore interface {
	Create(ctx context.Context, alert *models.FraudAlert) error
}

// Deduper claims a transaction so only one worker raises its alert.
type Deduper interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
	Delete(ctx context.Context, keys ...string) error
}

// VelocityCounter tracks rolling per-account daily amounts.
type VelocityCounter interface {
	IncrDailyAmount(ctx context.Context, account string, day time.Time, amount float64) (float64, error)
}

const dedupTTL = 24 * time.Hour

// Worker processes fraud decision events from the stream
type Worker struct {
	id       string
	stream   StreamConsumer
	alerts   AlertStore
	dedup    Deduper
	velocity VelocityCounter
	config   configs.WorkerConfig
	wg       sync.WaitGroup
	stopCh   chan struct{}
	metrics  *WorkerMetrics
}

// WorkerMetrics tracks worker performance
type WorkerMetrics struct {
	mu              sync.RWMutex
	ProcessedCount  int64
	FailedCount     int64
	AlertsCreated   int64
	LastProcessedAt time.Time
}

// NewWorker creates a new alert worker
func NewWorker(
	id string,
	stream StreamConsumer,
	alerts AlertStore,
	dedup Deduper,
	velocity VelocityCounter,
	config configs.WorkerConfig,
) *Worker {
	return &Worker{
		id:       id,
		stream:   stream,
		alerts:   alerts,
		dedup:    dedup,
		velocity: velocity,
		config:   config,
		stopCh:   make(chan struct{}),
		metrics:  &WorkerMetrics{},
	}
}

// Start launches the consumer goroutines and blocks until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	log.Info().
		Str("worker_id", w.id).
		Int("concurrency", w.config.Concurrency).
		Msg("Starting alert worker")

	for i := 0; i < w.config.Concurrency; i++ {
		w.wg.Add(1)
		go w.processLoop(ctx, fmt.Sprintf("%s-%d", w.id, i))
	}

	<-ctx.Done()
	return w.Stop()
}

// Stop stops the worker gracefully
func (w *Worker) Stop() error {
	log.Info().Str("worker_id", w.id).Msg("Stopping worker...")
	close(w.stopCh)
	w.wg.Wait()
	log.Info().Str("worker_id", w.id).Msg("Worker stopped")
	return nil
}

func (w *Worker) processLoop(ctx context.Context, consumerName string) {
	defer w.wg.Done()

	log.Info().Str("consumer", consumerName).Msg("Worker goroutine started")

	for {
		select {
		case <-w.stopCh:
			log.Info().Str("consumer", consumerName).Msg("Worker goroutine stopping")
			return
		case <-ctx.Done():
			return
		default:
			w.ProcessBatch(ctx, consumerName)
		}
	}
}

// ProcessBatch consumes one batch of decision events. Failures requeue the
// event with an incremented retry count until it lands in the dead letter
// stream; every message is acknowledged so the group never stalls.
func (w *Worker) ProcessBatch(ctx context.Context, consumerName string) {
	messages, err := w.stream.Consume(ctx, consumerName, int64(w.config.BatchSize), w.config.PollInterval)
	if err != nil {
		log.Error().Err(err).Str("consumer", consumerName).Msg("Failed to consume messages")
		time.Sleep(time.Second) // Back off on error
		return
	}

	if len(messages) == 0 {
		return
	}

	var ackIDs []string
	for _, msg := range messages {
		if err := w.processMessage(ctx, msg); err != nil {
			log.Error().
				Err(err).
				Str("message_id", msg.ID).
				Str("transaction_id", msg.Event.TransactionID).
				Msg("Failed to process decision event")

			if msg.Event.RetryCount < w.config.RetryAttempts {
				msg.Event.RetryCount++
				if _, err := w.stream.Publish(ctx, msg.Event); err != nil {
					log.Error().Err(err).Msg("Failed to requeue event")
				}
			} else {
				if err := w.stream.SendToDeadLetter(ctx, msg.Event, err); err != nil {
					log.Error().Err(err).Msg("Failed to send to dead letter queue")
				}
			}

			metrics.EventsConsumedTotal.WithLabelValues("error").Inc()
			w.metrics.mu.Lock()
			w.metrics.FailedCount++
			w.metrics.mu.Unlock()
		} else {
			metrics.EventsConsumedTotal.WithLabelValues("ok").Inc()
		}

		ackIDs = append(ackIDs, msg.ID)
	}

	if len(ackIDs) > 0 {
		if err := w.stream.AcknowledgeBatch(ctx, ackIDs); err != nil {
			log.Error().Err(err).Msg("Failed to acknowledge messages")
		}
	}
}

func (w *Worker) processMessage(ctx context.Context, msg queue.StreamMessage) error {
	event := msg.Event

	// Velocity counters feed the next check's daily_transaction_amount.
	if w.velocity != nil {
		if _, err := w.velocity.IncrDailyAmount(ctx, event.SenderAccount, event.Timestamp, event.Amount); err != nil {
			log.Warn().Err(err).
				Str("account", event.SenderAccount).
				Msg("Failed to update velocity counter")
		}
	}

	if event.IsFraudulent {
		if err := w.raiseAlert(ctx, event); err != nil {
			return err
		}
	}

	w.metrics.mu.Lock()
	w.metrics.ProcessedCount++
	w.metrics.LastProcessedAt = time.Now()
	w.metrics.mu.Unlock()

	return nil
}

// raiseAlert creates one alert per fraudulent transaction. Redelivered
// events lose the SetNX race and are skipped.
func (w *Worker) raiseAlert(ctx context.Context, event *models.FraudEvent) error {
	dedupKey := "alert:dedup:" + event.TransactionID
	acquired, err := w.dedup.SetNX(ctx, dedupKey, 1, dedupTTL)
	if err != nil {
		return fmt.Errorf("dedup check failed: %w", err)
	}
	if !acquired {
		log.Debug().Str("transaction_id", event.TransactionID).Msg("Alert already raised")
		return nil
	}

	txID, err := uuid.Parse(event.TransactionID)
	if err != nil {
		// External identifiers are not UUIDs; key the alert to a derived one.
		txID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(event.TransactionID))
	}

	alert := &models.FraudAlert{
		TransactionID: txID,
		AlertType:     "fraud_detected",
		Severity:      strings.ToLower(event.RiskLevel),
		Description:   fmt.Sprintf("%s risk transaction %s (score=%.2f): %s", event.RiskLevel, event.TransactionID, event.FraudScore, event.Reason),
		Status:        models.AlertStatusOpen,
	}

	if err := w.alerts.Create(ctx, alert); err != nil {
		// Release the claim so a retry of this event can raise the alert.
		if delErr := w.dedup.Delete(ctx, dedupKey); delErr != nil {
			log.Warn().Err(delErr).Str("key", dedupKey).Msg("Failed to release dedup claim")
		}
		return fmt.Errorf("failed to create alert: %w", err)
	}

	metrics.AlertsCreatedTotal.WithLabelValues(alert.Severity).Inc()
	w.metrics.mu.Lock()
	w.metrics.AlertsCreated++
	w.metrics.mu.Unlock()

	log.Info().
		Str("transaction_id", event.TransactionID).
		Str("severity", alert.Severity).
		Float64("fraud_score", event.FraudScore).
		Msg("Fraud alert raised")

	return nil
}

// GetMetrics returns a snapshot of the worker metrics
func (w *Worker) GetMetrics() WorkerMetrics {
	w.metrics.mu.RLock()
	defer w.metrics.mu.RUnlock()
	return WorkerMetrics{
		ProcessedCount:  w.metrics.ProcessedCount,
		FailedCount:     w.metrics.FailedCount,
		AlertsCreated:   w.metrics.AlertsCreated,
		LastProcessedAt: w.metrics.LastProcessedAt,
	}
}
