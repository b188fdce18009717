// Package analytics aggregates scored transactions into trends and pattern
// reports for dashboards.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/enterprise/fraud-detection/internal/models"
	"github.com/enterprise/fraud-detection/internal/queue"
)

// PatternStore reads aggregated fraud patterns from storage.
type PatternStore interface {
	FraudTrends(ctx context.Context, userID uuid.UUID, days int) ([]models.FraudTrendPoint, error)
	HourlyPatterns(ctx context.Context, userID uuid.UUID) ([]models.HourlyPattern, error)
	AmountBandPatterns(ctx context.Context, userID uuid.UUID) ([]models.AmountBandPattern, error)
	TypePatterns(ctx context.Context, userID uuid.UUID) ([]models.TypePattern, error)
}

// Cache caches report payloads between identical requests.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
}

// Service provides analytics and reporting over scored transactions.
type Service struct {
	store PatternStore
	cache Cache
}

// NewService creates a new analytics service
func NewService(store PatternStore, cache Cache) *Service {
	return &Service{store: store, cache: cache}
}

// FraudTrendsReport is a per-day fraud series over a window
type FraudTrendsReport struct {
	PeriodDays int                      `json:"period_days"`
	Trends     []models.FraudTrendPoint `json:"trends"`
}

// RiskPatternsReport groups fraud incidence by hour, amount band and type
type RiskPatternsReport struct {
	HourlyPatterns []models.HourlyPattern     `json:"hourly_patterns"`
	AmountBands    []models.AmountBandPattern `json:"amount_bands"`
	TypePatterns   []models.TypePattern       `json:"type_patterns"`
}

// GetFraudTrends returns the daily fraud series for the last N days.
func (s *Service) GetFraudTrends(ctx context.Context, userID uuid.UUID, days int) (*FraudTrendsReport, error) {
	if days < 1 || days > 365 {
		days = 30
	}

	cacheKey := fmt.Sprintf("fraud_trends:%s:%d", userID, days)
	var cached FraudTrendsReport
	if s.cache != nil {
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	trends, err := s.store.FraudTrends(ctx, userID, days)
	if err != nil {
		return nil, fmt.Errorf("failed to get fraud trends: %w", err)
	}

	report := &FraudTrendsReport{PeriodDays: days, Trends: trends}
	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, report, 5*time.Minute); err != nil {
			log.Warn().Err(err).Msg("Failed to cache fraud trends")
		}
	}
	return report, nil
}

// GetRiskPatterns returns fraud incidence grouped by hour of day, amount
// band and transaction type.
func (s *Service) GetRiskPatterns(ctx context.Context, userID uuid.UUID) (*RiskPatternsReport, error) {
	cacheKey := fmt.Sprintf("risk_patterns:%s", userID)
	var cached RiskPatternsReport
	if s.cache != nil {
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	hourly, err := s.store.HourlyPatterns(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get hourly patterns: %w", err)
	}
	bands, err := s.store.AmountBandPatterns(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get amount band patterns: %w", err)
	}
	types, err := s.store.TypePatterns(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get type patterns: %w", err)
	}

	report := &RiskPatternsReport{
		HourlyPatterns: hourly,
		AmountBands:    bands,
		TypePatterns:   types,
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, report, 5*time.Minute); err != nil {
			log.Warn().Err(err).Msg("Failed to cache risk patterns")
		}
	}
	return report, nil
}

// SystemMetrics is a point-in-time snapshot of platform health
type SystemMetrics struct {
	Timestamp           time.Time `json:"timestamp"`
	DBConnectionsActive int       `json:"db_connections_active"`
	DBConnectionsIdle   int       `json:"db_connections_idle"`
	QueueDepth          int       `json:"queue_depth"`
}

// PoolStats exposes connection pool counters.
type PoolStats interface {
	AcquiredConns() int32
	IdleConns() int32
}

// GetSystemMetrics snapshots pool usage and stream backlog.
func (s *Service) GetSystemMetrics(ctx context.Context, stats PoolStats, streamClient *queue.RedisStreamClient) *SystemMetrics {
	m := &SystemMetrics{Timestamp: time.Now().UTC()}

	if stats != nil {
		m.DBConnectionsActive = int(stats.AcquiredConns())
		m.DBConnectionsIdle = int(stats.IdleConns())
	}

	if streamClient != nil {
		info, err := streamClient.GetStreamInfo(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to read stream info")
		} else {
			m.QueueDepth = int(info.PendingCount)
		}
	}
	return m
}
