package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enterprise/fraud-detection/internal/detection"
	"github.com/enterprise/fraud-detection/internal/fraud"
	"github.com/enterprise/fraud-detection/internal/models"
)

type fakeChecker struct {
	requests []*detection.CheckRequest
	userIDs  []uuid.UUID
	err      error
}

func (f *fakeChecker) Check(_ context.Context, userID uuid.UUID, req *detection.CheckRequest, _, _ string) (*fraud.FraudDecision, error) {
	f.requests = append(f.requests, req)
	f.userIDs = append(f.userIDs, userID)
	if f.err != nil {
		return nil, f.err
	}
	return &fraud.FraudDecision{
		TransactionID: req.TransactionID,
		RiskLevel:     models.RiskLevelLow,
	}, nil
}

func kafkaMessage(t *testing.T, msg SwitchMessage) *sarama.ConsumerMessage {
	t.Helper()
	value, err := json.Marshal(msg)
	require.NoError(t, err)
	return &sarama.ConsumerMessage{
		Topic:     "upi-transactions",
		Partition: 0,
		Offset:    42,
		Value:     value,
	}
}

func TestProcessMessageScoresTransaction(t *testing.T) {
	checker := &fakeChecker{}
	serviceUser := uuid.New()
	consumer := NewConsumer(checker, serviceUser)

	consumer.ProcessMessage(context.Background(), kafkaMessage(t, SwitchMessage{
		TransactionID:   "tx-switch-1",
		Amount:          2500,
		SenderAccount:   "user@upi",
		ReceiverAccount: "shop@upi",
		TransactionType: models.TypeP2M,
		Timestamp:       time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC),
	}))

	require.Len(t, checker.requests, 1)
	assert.Equal(t, "tx-switch-1", checker.requests[0].TransactionID)
	assert.Equal(t, serviceUser, checker.userIDs[0])
}

func TestProcessMessageUsesEmbeddedUserID(t *testing.T) {
	checker := &fakeChecker{}
	consumer := NewConsumer(checker, uuid.New())
	embedded := uuid.New()

	consumer.ProcessMessage(context.Background(), kafkaMessage(t, SwitchMessage{
		TransactionID:   "tx-switch-2",
		UserID:          embedded.String(),
		Amount:          100,
		SenderAccount:   "a@upi",
		ReceiverAccount: "b@upi",
		TransactionType: models.TypeP2P,
	}))

	require.Len(t, checker.userIDs, 1)
	assert.Equal(t, embedded, checker.userIDs[0])
}

func TestProcessMessageDropsMalformedPayload(t *testing.T) {
	checker := &fakeChecker{}
	consumer := NewConsumer(checker, uuid.New())

	consumer.ProcessMessage(context.Background(), &sarama.ConsumerMessage{
		Topic: "upi-transactions",
		Value: []byte("{not json"),
	})

	assert.Empty(t, checker.requests)
}

func TestProcessMessageToleratesRejection(t *testing.T) {
	checker := &fakeChecker{err: errors.New("invalid transaction: amount must be a positive number")}
	consumer := NewConsumer(checker, uuid.New())

	// Must not panic and must advance past the message.
	consumer.ProcessMessage(context.Background(), kafkaMessage(t, SwitchMessage{
		TransactionID:   "tx-bad",
		Amount:          -1,
		SenderAccount:   "a@upi",
		ReceiverAccount: "b@upi",
		TransactionType: models.TypeP2P,
	}))

	assert.Len(t, checker.requests, 1)
}
