package fraud

import (
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/enterprise/fraud-detection/internal/models"
)

// Estimator is the capability every concrete model wrapper implements:
// given a numeric feature vector, return a fraud probability in [0,1].
type Estimator interface {
	PredictProba(features []float64) (float64, error)
	Name() string
}

// LogisticEstimator is a logistic regression classifier loaded from a JSON
// artifact.
type LogisticEstimator struct {
	ModelName string    `json:"name"`
	Weights   []float64 `json:"weights"`
	Intercept float64   `json:"intercept"`
}

func (e *LogisticEstimator) Name() string {
	if e.ModelName == "" {
		return "logistic"
	}
	return e.ModelName
}

func (e *LogisticEstimator) PredictProba(features []float64) (float64, error) {
	if len(features) != len(e.Weights) {
		return 0, fmt.Errorf("feature count mismatch: got %d, model expects %d", len(features), len(e.Weights))
	}
	z := e.Intercept
	for i, w := range e.Weights {
		z += w * features[i]
	}
	return sigmoid(z), nil
}

// StandardScaler applies the (x - mean) / scale transform stored alongside
// the model artifacts.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

func (s *StandardScaler) Transform(features []float64) []float64 {
	out := make([]float64, len(features))
	for i, v := range features {
		if i >= len(s.Mean) || i >= len(s.Scale) {
			out[i] = v
			continue
		}
		scale := s.Scale[i]
		if scale == 0 {
			scale = 1
		}
		out[i] = (v - s.Mean[i]) / scale
	}
	return out
}

// Prediction is the Model Adapter output consumed by the combiner.
type Prediction struct {
	FraudScore       float64  `json:"fraud_score"`
	IsFraudulent     bool     `json:"is_fraudulent"`
	RiskLevel        string   `json:"risk_level"`
	Confidence       float64  `json:"confidence"`
	Reason           string   `json:"reason"`
	Recommendation   string   `json:"recommendation"`
	FeaturesAnalyzed []string `json:"features_analyzed"`
	ModelUsed        bool     `json:"model_used"`
}

// HealthReport is the model health-check result.
type HealthReport struct {
	Healthy bool     `json:"healthy"`
	Issues  []string `json:"issues"`
}

// modelState holds a fully-built set of estimators. It is immutable once
// published so concurrent scorers never observe a half-loaded model.
type modelState struct {
	primary      Estimator
	ensemble     []Estimator
	scaler       *StandardScaler
	featureNames []string
	metadata     map[string]interface{}
	loadedAt     time.Time
}

func (s *modelState) vectorize(fv FeatureVector) []float64 {
	order := s.featureNames
	if len(order) == 0 {
		order = FeatureNames
	}
	vec := fv.Slice(order)
	if s.scaler != nil {
		vec = s.scaler.Transform(vec)
	}
	return vec
}

// ModelAdapter wraps the loaded estimators behind a uniform scoring call.
// Reload publishes a complete replacement state atomically.
type ModelAdapter struct {
	state     atomic.Pointer[modelState]
	threshold float64
}

func NewModelAdapter(threshold float64) *ModelAdapter {
	m := &ModelAdapter{threshold: threshold}
	m.state.Store(&modelState{})
	return m
}

// Reload swaps in a new model state built from the given artifacts. In-flight
// scorers keep the state they loaded; later calls observe the replacement.
func (m *ModelAdapter) Reload(a *Artifacts) {
	state := &modelState{
		primary:      a.Primary,
		ensemble:     a.Ensemble,
		scaler:       a.Scaler,
		featureNames: a.FeatureNames,
		metadata:     a.Metadata,
		loadedAt:     time.Now().UTC(),
	}
	m.state.Store(state)

	primaryName := "none"
	if a.Primary != nil {
		primaryName = a.Primary.Name()
	}
	log.Info().
		Str("primary_model", primaryName).
		Int("ensemble_models", len(a.Ensemble)).
		Bool("has_scaler", a.Scaler != nil).
		Int("feature_count", len(a.FeatureNames)).
		Msg("Model state published")
}

// Score produces a prediction for the feature vector. Inference failures
// never propagate; the adapter degrades to the rule-based fallback scorer.
func (m *ModelAdapter) Score(fv FeatureVector) Prediction {
	state := m.state.Load()
	if state == nil || state.primary == nil {
		return m.fallbackScore(fv)
	}

	vec := state.vectorize(fv)
	score, err := state.primary.PredictProba(vec)
	if err != nil {
		log.Warn().
			Err(err).
			Str("model", state.primary.Name()).
			Msg("Primary model inference failed, using fallback scorer")
		return m.fallbackScore(fv)
	}

	if len(state.ensemble) > 0 {
		var sum float64
		var ok int
		for _, member := range state.ensemble {
			memberScore, err := member.PredictProba(vec)
			if err != nil {
				log.Warn().
					Err(err).
					Str("model", member.Name()).
					Msg("Ensemble member failed, skipping")
				continue
			}
			sum += memberScore
			ok++
		}
		if ok > 0 {
			score = (score + sum/float64(ok)) / 2
		}
	}

	score = clamp01(score)
	return Prediction{
		FraudScore:       score,
		IsFraudulent:     score >= m.threshold,
		RiskLevel:        riskLevelForScore(score),
		Confidence:       math.Min(1.0, 0.5+math.Abs(score-0.5)),
		Reason:           m.describeScore(score, fv),
		Recommendation:   recommendationForScore(score, m.threshold),
		FeaturesAnalyzed: append([]string(nil), FeatureNames...),
		ModelUsed:        true,
	}
}

// fallbackScore is the deterministic rule-based scorer used when no model is
// loaded or the primary model fails.
func (m *ModelAdapter) fallbackScore(fv FeatureVector) Prediction {
	score := 0.0
	var reasons []string

	if fv["amount"] > 100000 {
		score += 0.3
		reasons = append(reasons, "Very high transaction amount")
	}
	if fv["is_night"] == 1 {
		score += 0.2
		reasons = append(reasons, "Transaction during night hours")
	}
	if fv["same_account"] == 1 {
		score += 0.4
		reasons = append(reasons, "Sender and receiver accounts are identical")
	}
	if fv["round_amount"] == 1 {
		score += 0.1
		reasons = append(reasons, "Round amount pattern")
	}
	score = clamp01(score)

	reason := "Transaction appears normal"
	if len(reasons) > 0 {
		reason = strings.Join(reasons, "; ")
	}

	return Prediction{
		FraudScore:       score,
		IsFraudulent:     score >= m.threshold,
		RiskLevel:        riskLevelForScore(score),
		Confidence:       0.6,
		Reason:           reason,
		Recommendation:   recommendationForScore(score, m.threshold),
		FeaturesAnalyzed: append([]string(nil), FeatureNames...),
		ModelUsed:        false,
	}
}

// describeScore explains a model score in terms of the salient features.
func (m *ModelAdapter) describeScore(score float64, fv FeatureVector) string {
	var reasons []string
	if fv["high_amount"] == 1 {
		reasons = append(reasons, "Unusually high transaction amount")
	}
	if fv["is_night"] == 1 {
		reasons = append(reasons, "Transaction during night hours")
	}
	if fv["same_account"] == 1 {
		reasons = append(reasons, "Sender and receiver accounts are identical")
	}
	if fv["round_amount"] == 1 {
		reasons = append(reasons, "Round amount pattern")
	}
	if fv["is_weekend"] == 1 && fv["high_amount"] == 1 {
		reasons = append(reasons, "High-value weekend transaction")
	}
	if len(reasons) > 0 {
		return strings.Join(reasons, "; ")
	}
	if score < 0.3 {
		return "Transaction appears normal"
	}
	return fmt.Sprintf("Model detected suspicious patterns (score=%.2f)", score)
}

// Health probes the full scoring path with a synthetic low-risk transaction.
func (m *ModelAdapter) Health() HealthReport {
	report := HealthReport{Healthy: true, Issues: []string{}}

	state := m.state.Load()
	if state == nil || state.primary == nil {
		report.Healthy = false
		report.Issues = append(report.Issues, "no primary model loaded")
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				report.Healthy = false
				report.Issues = append(report.Issues, fmt.Sprintf("scoring path panicked: %v", r))
			}
		}()

		probe := TransactionInput{
			TransactionID:   "health-probe",
			Amount:          100,
			SenderAccount:   "probe-sender@upi",
			ReceiverAccount: "probe-receiver@upi",
			TransactionType: "P2P",
			TransactionTime: time.Date(2024, 1, 15, 11, 0, 0, 0, time.UTC),
		}
		fv := ExtractFeatures(probe)

		if state != nil && state.primary != nil {
			if _, err := state.primary.PredictProba(state.vectorize(fv)); err != nil {
				report.Healthy = false
				report.Issues = append(report.Issues, fmt.Sprintf("model prediction test failed: %v", err))
				return
			}
		}
		_ = m.Score(fv)
	}()

	return report
}

// Info reports the currently loaded model state for operational monitoring.
func (m *ModelAdapter) Info() map[string]interface{} {
	state := m.state.Load()
	info := map[string]interface{}{
		"primary_model_loaded":  false,
		"ensemble_models_count": 0,
		"has_scaler":            false,
		"feature_count":         len(FeatureNames),
		"fraud_threshold":       m.threshold,
		"last_updated":          nil,
	}
	if state == nil {
		return info
	}

	if state.primary != nil {
		info["primary_model_loaded"] = true
		info["primary_model_name"] = state.primary.Name()
	}
	info["ensemble_models_count"] = len(state.ensemble)
	info["has_scaler"] = state.scaler != nil
	if len(state.featureNames) > 0 {
		info["feature_count"] = len(state.featureNames)
	}
	if !state.loadedAt.IsZero() {
		info["last_updated"] = state.loadedAt.Format(time.RFC3339)
	}
	for k, v := range state.metadata {
		info[k] = v
	}
	return info
}

func riskLevelForScore(score float64) string {
	switch {
	case score >= 0.8:
		return models.RiskLevelCritical
	case score >= 0.6:
		return models.RiskLevelHigh
	case score >= 0.3:
		return models.RiskLevelMedium
	default:
		return models.RiskLevelLow
	}
}

func recommendationForScore(score, threshold float64) string {
	switch {
	case score >= 0.8:
		return models.RecommendationBlock
	case score >= threshold:
		return models.RecommendationManualReview
	default:
		return models.RecommendationApprove
	}
}

func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
