package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// User represents a system user
type User struct {
	ID           uuid.UUID  `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	FullName     string     `json:"full_name"`
	Role         string     `json:"role"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// Role enum values
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Transaction is a scored UPI transaction as persisted
type Transaction struct {
	ID               uuid.UUID `json:"id"`
	UserID           uuid.UUID `json:"user_id"`
	TransactionID    string    `json:"transaction_id"`
	Amount           float64   `json:"amount"`
	SenderAccount    string    `json:"sender_account"`
	ReceiverAccount  string    `json:"receiver_account"`
	TransactionType  string    `json:"transaction_type"`
	DeviceID         string    `json:"device_id,omitempty"`
	IPAddress        string    `json:"ip_address,omitempty"`
	Location         string    `json:"location,omitempty"`
	FraudScore       float64   `json:"fraud_score"`
	IsFraudulent     bool      `json:"is_fraudulent"`
	RiskLevel        string    `json:"risk_level"`
	Recommendation   string    `json:"recommendation"`
	FraudReason      string    `json:"fraud_reason"`
	RulesViolated    []string  `json:"rules_violated"`
	FeaturesAnalyzed []string  `json:"features_analyzed"`
	ModelUsed        bool      `json:"model_used"`
	// AnalystVerdict is set through the feedback endpoint after review.
	AnalystVerdict  *bool     `json:"analyst_verdict,omitempty"`
	Metadata        JSONB     `json:"metadata,omitempty"`
	TransactionTime time.Time `json:"transaction_time"`
	CreatedAt       time.Time `json:"created_at"`
}

// TransactionType enum values
const (
	TypeP2P         = "P2P"
	TypeP2M         = "P2M"
	TypeM2P         = "M2P"
	TypeBillPayment = "BILL_PAYMENT"
	TypeRecharge    = "RECHARGE"
)

// RiskLevel enum values
const (
	RiskLevelLow      = "LOW"
	RiskLevelMedium   = "MEDIUM"
	RiskLevelHigh     = "HIGH"
	RiskLevelCritical = "CRITICAL"
	RiskLevelUnknown  = "UNKNOWN"
)

// Recommendation enum values
const (
	RecommendationApprove      = "APPROVE"
	RecommendationManualReview = "MANUAL_REVIEW"
	RecommendationBlock        = "BLOCK"
	RecommendationMonitor      = "MONITOR"
)

// FraudAlert is raised for transactions flagged as fraudulent
type FraudAlert struct {
	ID            uuid.UUID  `json:"id"`
	TransactionID uuid.UUID  `json:"transaction_id"`
	AlertType     string     `json:"alert_type"`
	Severity      string     `json:"severity"`
	Description   string     `json:"description"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
}

// AlertStatus enum values
const (
	AlertStatusOpen         = "open"
	AlertStatusAcknowledged = "acknowledged"
	AlertStatusResolved     = "resolved"
)

// AuditLog represents an audit trail entry
type AuditLog struct {
	ID         uuid.UUID  `json:"id"`
	UserID     *uuid.UUID `json:"user_id,omitempty"`
	Action     string     `json:"action"`
	EntityType string     `json:"entity_type"`
	EntityID   string     `json:"entity_id"`
	Payload    JSONB      `json:"payload"`
	IPAddress  string     `json:"ip_address"`
	RequestID  string     `json:"request_id"`
	CreatedAt  time.Time  `json:"created_at"`
}

// AuditAction enum values
const (
	AuditActionFraudCheck  = "fraud_check"
	AuditActionBatchCheck  = "batch_check"
	AuditActionFeedback    = "feedback"
	AuditActionModelReload = "model_reload"
	AuditActionUserLogin   = "user_login"
	AuditActionUserSignup  = "user_signup"
)

// FraudEvent is the decision event published to Redis Streams
type FraudEvent struct {
	TransactionID   string    `json:"transaction_id"`
	UserID          string    `json:"user_id"`
	Amount          float64   `json:"amount"`
	SenderAccount   string    `json:"sender_account"`
	ReceiverAccount string    `json:"receiver_account"`
	TransactionType string    `json:"transaction_type"`
	FraudScore      float64   `json:"fraud_score"`
	IsFraudulent    bool      `json:"is_fraudulent"`
	RiskLevel       string    `json:"risk_level"`
	Recommendation  string    `json:"recommendation"`
	Reason          string    `json:"reason"`
	Timestamp       time.Time `json:"timestamp"`
	RetryCount      int       `json:"retry_count"`
}

// JSONB is a helper type for PostgreSQL JSONB columns
type JSONB map[string]interface{}

func (j JSONB) Value() ([]byte, error) {
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// Pagination represents pagination parameters
type Pagination struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	Total    int `json:"total"`
}

// PaginatedResponse wraps paginated results
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Pagination Pagination  `json:"pagination"`
}

// TransactionSummary represents aggregated transaction statistics over a window
type TransactionSummary struct {
	PeriodDays        int                `json:"period_days"`
	TotalTransactions int                `json:"total_transactions"`
	TotalAmount       float64            `json:"total_amount"`
	AvgAmount         float64            `json:"avg_amount"`
	MaxAmount         float64            `json:"max_amount"`
	FraudCount        int                `json:"fraud_count"`
	FraudRate         float64            `json:"fraud_rate"`
	AvgFraudScore     float64            `json:"avg_fraud_score"`
	RiskDistribution  map[string]int     `json:"risk_distribution"`
	TypeBreakdown     map[string]int     `json:"type_breakdown"`
}

// FraudTrendPoint is one day in a fraud trend series
type FraudTrendPoint struct {
	Date          string  `json:"date"`
	TotalCount    int     `json:"total_count"`
	FraudCount    int     `json:"fraud_count"`
	FraudRate     float64 `json:"fraud_rate"`
	TotalAmount   float64 `json:"total_amount"`
	AvgFraudScore float64 `json:"avg_fraud_score"`
}

// HourlyPattern is fraud incidence grouped by hour of day
type HourlyPattern struct {
	Hour       int     `json:"hour"`
	TotalCount int     `json:"total_count"`
	FraudCount int     `json:"fraud_count"`
	FraudRate  float64 `json:"fraud_rate"`
}

// AmountBandPattern is fraud incidence grouped by amount range
type AmountBandPattern struct {
	Band       string  `json:"band"`
	TotalCount int     `json:"total_count"`
	FraudCount int     `json:"fraud_count"`
	FraudRate  float64 `json:"fraud_rate"`
}

// TypePattern is fraud incidence grouped by transaction type
type TypePattern struct {
	TransactionType string  `json:"transaction_type"`
	TotalCount      int     `json:"total_count"`
	FraudCount      int     `json:"fraud_count"`
	FraudRate       float64 `json:"fraud_rate"`
}
