package fraud

import (
	"math"
	"time"
)

// TransactionInput is the unit of work for the scoring pipeline. It is
// constructed once per API call or batch item and never mutated afterwards.
type TransactionInput struct {
	TransactionID   string
	Amount          float64
	SenderAccount   string
	ReceiverAccount string
	TransactionType string
	TransactionTime time.Time
	DeviceID        string
	IPAddress       string
	Location        string

	// Optional behavioral signals supplied by the caller. Nil means unknown
	// and defaults to 0 during feature extraction.
	UserAgeDays            *float64
	RecentTransactionCount *float64
	DailyTransactionAmount *float64
}

// FeatureVector maps feature names to numeric values. Every name in
// FeatureNames is always present.
type FeatureVector map[string]float64

// FeatureNames is the canonical ordered feature set produced by
// ExtractFeatures. Model artifacts may override the ordering but default
// to this one.
var FeatureNames = []string{
	"amount",
	"amount_log",
	"amount_normalized",
	"hour",
	"day_of_week",
	"is_weekend",
	"is_night",
	"is_business_hours",
	"is_p2p",
	"is_p2m",
	"is_m2p",
	"is_bill_payment",
	"is_recharge",
	"same_account",
	"sender_length",
	"receiver_length",
	"account_length_diff",
	"has_device_id",
	"has_ip_address",
	"has_location",
	"user_age_days",
	"recent_transaction_count",
	"daily_transaction_amount",
	"high_amount",
	"round_amount",
}

// ExtractFeatures derives the full feature vector from a validated
// transaction. It is a total function: missing optional inputs default to 0
// and a zero timestamp falls back to the current time.
func ExtractFeatures(tx TransactionInput) FeatureVector {
	fv := make(FeatureVector, len(FeatureNames))

	fv["amount"] = tx.Amount
	fv["amount_log"] = math.Log1p(tx.Amount)
	fv["amount_normalized"] = math.Min(tx.Amount/100000, 1.0)

	txTime := tx.TransactionTime
	if txTime.IsZero() {
		txTime = time.Now().UTC()
	}
	hour := txTime.Hour()
	// 0=Monday .. 6=Sunday
	dayOfWeek := (int(txTime.Weekday()) + 6) % 7

	fv["hour"] = float64(hour)
	fv["day_of_week"] = float64(dayOfWeek)
	fv["is_weekend"] = boolToFloat(dayOfWeek >= 5)
	fv["is_night"] = boolToFloat(hour < 6 || hour > 22)
	fv["is_business_hours"] = boolToFloat(hour >= 9 && hour <= 17)

	fv["is_p2p"] = boolToFloat(tx.TransactionType == "P2P")
	fv["is_p2m"] = boolToFloat(tx.TransactionType == "P2M")
	fv["is_m2p"] = boolToFloat(tx.TransactionType == "M2P")
	fv["is_bill_payment"] = boolToFloat(tx.TransactionType == "BILL_PAYMENT")
	fv["is_recharge"] = boolToFloat(tx.TransactionType == "RECHARGE")

	fv["same_account"] = boolToFloat(tx.SenderAccount == tx.ReceiverAccount)
	fv["sender_length"] = float64(len(tx.SenderAccount))
	fv["receiver_length"] = float64(len(tx.ReceiverAccount))
	fv["account_length_diff"] = math.Abs(float64(len(tx.SenderAccount)) - float64(len(tx.ReceiverAccount)))

	fv["has_device_id"] = boolToFloat(tx.DeviceID != "")
	fv["has_ip_address"] = boolToFloat(tx.IPAddress != "")
	fv["has_location"] = boolToFloat(tx.Location != "")

	fv["user_age_days"] = floatOrZero(tx.UserAgeDays)
	fv["recent_transaction_count"] = floatOrZero(tx.RecentTransactionCount)
	fv["daily_transaction_amount"] = floatOrZero(tx.DailyTransactionAmount)

	fv["high_amount"] = boolToFloat(tx.Amount > 50000)
	fv["round_amount"] = boolToFloat(math.Mod(tx.Amount, 1000) == 0)

	return fv
}

// Slice reindexes the vector into the given feature order. Names absent from
// the vector default to 0.
func (fv FeatureVector) Slice(order []string) []float64 {
	out := make([]float64, len(order))
	for i, name := range order {
		out[i] = fv[name]
	}
	return out
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func floatOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
