// Package transactions serves scored transaction history: filtered listings,
// lookups, summaries and CSV export.
package transactions

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/enterprise/fraud-detection/internal/models"
	"github.com/enterprise/fraud-detection/internal/repositories"
)

// Store reads scored transactions from storage.
type Store interface {
	List(ctx context.Context, filter repositories.TransactionFilter) ([]*models.Transaction, int, error)
	GetByID(ctx context.Context, userID, id uuid.UUID) (*models.Transaction, error)
	GetByTransactionID(ctx context.Context, userID uuid.UUID, transactionID string) (*models.Transaction, error)
	Summary(ctx context.Context, userID uuid.UUID, days int) (*models.TransactionSummary, error)
}

// Service provides transaction history operations.
type Service struct {
	store Store
}

// NewService creates a new transactions service
func NewService(store Store) *Service {
	return &Service{store: store}
}

// ListQuery carries the query parameters of a history request
type ListQuery struct {
	StartDate    string   `form:"start_date"`
	EndDate      string   `form:"end_date"`
	IsFraudulent *bool    `form:"is_fraudulent"`
	Type         string   `form:"type"`
	MinAmount    *float64 `form:"min_amount"`
	MaxAmount    *float64 `form:"max_amount"`
	Search       string   `form:"search"`
	Page         int      `form:"page"`
	PageSize     int      `form:"page_size"`
}

// List returns filtered, paginated transaction history.
func (s *Service) List(ctx context.Context, userID uuid.UUID, q ListQuery) (*models.PaginatedResponse, error) {
	filter, err := s.toFilter(userID, q)
	if err != nil {
		return nil, err
	}

	txs, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	if txs == nil {
		txs = []*models.Transaction{}
	}
	return &models.PaginatedResponse{
		Data: txs,
		Pagination: models.Pagination{
			Page:     filter.Page,
			PageSize: filter.PageSize,
			Total:    total,
		},
	}, nil
}

// Get retrieves one transaction by internal UUID or external identifier.
func (s *Service) Get(ctx context.Context, userID uuid.UUID, id string) (*models.Transaction, error) {
	if parsed, err := uuid.Parse(id); err == nil {
		return s.store.GetByID(ctx, userID, parsed)
	}
	return s.store.GetByTransactionID(ctx, userID, id)
}

// Summary aggregates the caller's transactions over the last N days.
func (s *Service) Summary(ctx context.Context, userID uuid.UUID, days int) (*models.TransactionSummary, error) {
	if days < 1 || days > 365 {
		days = 30
	}
	return s.store.Summary(ctx, userID, days)
}

var csvHeader = []string{
	"transaction_id", "amount", "sender_account", "receiver_account",
	"transaction_type", "fraud_score", "is_fraudulent", "risk_level",
	"recommendation", "fraud_reason", "rules_violated", "model_used",
	"transaction_time",
}

// ExportCSV streams the filtered history as CSV. It pages through storage so
// arbitrarily large exports never buffer fully in memory.
func (s *Service) ExportCSV(ctx context.Context, w io.Writer, userID uuid.UUID, q ListQuery) error {
	filter, err := s.toFilter(userID, q)
	if err != nil {
		return err
	}
	filter.Page = 1
	filter.PageSize = 500

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	exported := 0
	for {
		txs, total, err := s.store.List(ctx, filter)
		if err != nil {
			return fmt.Errorf("failed to export transactions: %w", err)
		}

		for _, tx := range txs {
			record := []string{
				tx.TransactionID,
				strconv.FormatFloat(tx.Amount, 'f', 2, 64),
				tx.SenderAccount,
				tx.ReceiverAccount,
				tx.TransactionType,
				strconv.FormatFloat(tx.FraudScore, 'f', 4, 64),
				strconv.FormatBool(tx.IsFraudulent),
				tx.RiskLevel,
				tx.Recommendation,
				tx.FraudReason,
				strings.Join(tx.RulesViolated, "|"),
				strconv.FormatBool(tx.ModelUsed),
				tx.TransactionTime.UTC().Format(time.RFC3339),
			}
			if err := cw.Write(record); err != nil {
				return err
			}
		}

		exported += len(txs)
		if exported >= total || len(txs) == 0 {
			break
		}
		filter.Page++
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}

	log.Info().
		Str("user_id", userID.String()).
		Int("count", exported).
		Msg("Transaction history exported")
	return nil
}

func (s *Service) toFilter(userID uuid.UUID, q ListQuery) (repositories.TransactionFilter, error) {
	filter := repositories.TransactionFilter{
		UserID:       userID,
		IsFraudulent: q.IsFraudulent,
		Type:         q.Type,
		MinAmount:    q.MinAmount,
		MaxAmount:    q.MaxAmount,
		Search:       q.Search,
		Page:         q.Page,
		PageSize:     q.PageSize,
	}

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 || filter.PageSize > 100 {
		filter.PageSize = 20
	}

	if q.StartDate != "" {
		start, err := time.Parse("2006-01-02", q.StartDate)
		if err != nil {
			return filter, fmt.Errorf("invalid start_date: %w", err)
		}
		filter.StartDate = &start
	}
	if q.EndDate != "" {
		end, err := time.Parse("2006-01-02", q.EndDate)
		if err != nil {
			return filter, fmt.Errorf("invalid end_date: %w", err)
		}
		// Include the whole end day.
		end = end.Add(24*time.Hour - time.Nanosecond)
		filter.EndDate = &end
	}
	return filter, nil
}
