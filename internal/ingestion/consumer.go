// Package ingestion consumes raw UPI transactions from the payment switch's
// Kafka topic and pushes them through the fraud check path.
package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/enterprise/fraud-detection/internal/detection"
	"github.com/enterprise/fraud-detection/internal/fraud"
	"github.com/enterprise/fraud-detection/internal/metrics"
)

// SwitchMessage is the raw transaction payload published by the payment
// switch. user_id is optional; messages without one are attributed to the
// ingest service account.
type SwitchMessage struct {
	TransactionID   string    `json:"transaction_id"`
	UserID          string    `json:"user_id"`
	Amount          float64   `json:"amount"`
	SenderAccount   string    `json:"sender_account"`
	ReceiverAccount string    `json:"receiver_account"`
	TransactionType string    `json:"transaction_type"`
	Timestamp       time.Time `json:"timestamp"`
	DeviceID        string    `json:"device_id"`
	IPAddress       string    `json:"ip_address"`
	Location        string    `json:"location"`
}

// Checker scores one transaction end to end.
type Checker interface {
	Check(ctx context.Context, userID uuid.UUID, req *detection.CheckRequest, requestID, clientIP string) (*fraud.FraudDecision, error)
}

// Consumer implements sarama.ConsumerGroupHandler over the switch topic.
type Consumer struct {
	checker       Checker
	serviceUserID uuid.UUID
}

// NewConsumer creates a new Kafka consumer handler
func NewConsumer(checker Checker, serviceUserID uuid.UUID) *Consumer {
	return &Consumer{checker: checker, serviceUserID: serviceUserID}
}

func (c *Consumer) Setup(sarama.ConsumerGroupSession) error {
	log.Info().Msg("Kafka consumer session started")
	return nil
}

func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	log.Info().Msg("Kafka consumer session ended")
	return nil
}

func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			c.ProcessMessage(session.Context(), message)
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

// ProcessMessage scores one switch message. Malformed payloads and rejected
// transactions are dropped with a log line; the offset always advances so a
// poison message cannot wedge the partition.
func (c *Consumer) ProcessMessage(ctx context.Context, message *sarama.ConsumerMessage) {
	var msg SwitchMessage
	if err := json.Unmarshal(message.Value, &msg); err != nil {
		log.Error().Err(err).
			Int64("offset", message.Offset).
			Int32("partition", message.Partition).
			Msg("Failed to parse switch message")
		metrics.KafkaMessagesTotal.WithLabelValues("parse_error").Inc()
		return
	}

	userID := c.serviceUserID
	if msg.UserID != "" {
		if parsed, err := uuid.Parse(msg.UserID); err == nil {
			userID = parsed
		}
	}

	req := &detection.CheckRequest{
		TransactionID:   msg.TransactionID,
		Amount:          msg.Amount,
		SenderAccount:   msg.SenderAccount,
		ReceiverAccount: msg.ReceiverAccount,
		TransactionType: msg.TransactionType,
		Timestamp:       msg.Timestamp,
		DeviceID:        msg.DeviceID,
		IPAddress:       msg.IPAddress,
		Location:        msg.Location,
	}

	requestID := requestIDFor(message)
	decision, err := c.checker.Check(ctx, userID, req, requestID, "")
	if err != nil {
		log.Warn().Err(err).
			Str("transaction_id", msg.TransactionID).
			Msg("Switch transaction rejected")
		metrics.KafkaMessagesTotal.WithLabelValues("rejected").Inc()
		return
	}

	metrics.KafkaMessagesTotal.WithLabelValues("ok").Inc()
	log.Debug().
		Str("transaction_id", msg.TransactionID).
		Float64("fraud_score", decision.FraudScore).
		Str("risk_level", decision.RiskLevel).
		Msg("Switch transaction scored")
}

// requestIDFor derives a stable request id from the message coordinates so
// redelivered messages audit under the same id.
func requestIDFor(message *sarama.ConsumerMessage) string {
	key := fmt.Sprintf("%s/%d/%d", message.Topic, message.Partition, message.Offset)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
}
