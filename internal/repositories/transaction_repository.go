package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/enterprise/fraud-detection/internal/models"
)

var (
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrDuplicateTransaction = errors.New("duplicate transaction id")
)

// TransactionFilter narrows transaction history queries.
type TransactionFilter struct {
	UserID       uuid.UUID
	StartDate    *time.Time
	EndDate      *time.Time
	IsFraudulent *bool
	Type         string
	MinAmount    *float64
	MaxAmount    *float64
	Search       string
	Page         int
	PageSize     int
}

// TransactionRepository handles transaction database operations
type TransactionRepository struct {
	db *Database
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *Database) *TransactionRepository {
	return &TransactionRepository{db: db}
}

const transactionColumns = `
	id, user_id, transaction_id, amount, sender_account, receiver_account,
	transaction_type, device_id, ip_address, location, fraud_score,
	is_fraudulent, risk_level, recommendation, fraud_reason, rules_violated,
	features_analyzed, model_used, analyst_verdict, metadata,
	transaction_time, created_at`

// Create persists a scored transaction
func (r *TransactionRepository) Create(ctx context.Context, tx *models.Transaction) error {
	query := `
		INSERT INTO transactions (
			id, user_id, transaction_id, amount, sender_account, receiver_account,
			transaction_type, device_id, ip_address, location, fraud_score,
			is_fraudulent, risk_level, recommendation, fraud_reason, rules_violated,
			features_analyzed, model_used, metadata, transaction_time, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`

	tx.ID = uuid.New()
	tx.CreatedAt = time.Now()

	metadataBytes, _ := tx.Metadata.Value()

	_, err := r.db.Pool.Exec(ctx, query,
		tx.ID,
		tx.UserID,
		tx.TransactionID,
		tx.Amount,
		tx.SenderAccount,
		tx.ReceiverAccount,
		tx.TransactionType,
		tx.DeviceID,
		tx.IPAddress,
		tx.Location,
		tx.FraudScore,
		tx.IsFraudulent,
		tx.RiskLevel,
		tx.Recommendation,
		tx.FraudReason,
		pq.Array(tx.RulesViolated),
		pq.Array(tx.FeaturesAnalyzed),
		tx.ModelUsed,
		metadataBytes,
		tx.TransactionTime,
		tx.CreatedAt,
	)

	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateTransaction
		}
		return err
	}

	return nil
}

// CreateBatch persists multiple scored transactions in a batch
func (r *TransactionRepository) CreateBatch(ctx context.Context, transactions []*models.Transaction) error {
	if len(transactions) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO transactions (
			id, user_id, transaction_id, amount, sender_account, receiver_account,
			transaction_type, device_id, ip_address, location, fraud_score,
			is_fraudulent, risk_level, recommendation, fraud_reason, rules_violated,
			features_analyzed, model_used, metadata, transaction_time, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		ON CONFLICT (user_id, transaction_id) DO NOTHING
	`

	for _, tx := range transactions {
		tx.ID = uuid.New()
		tx.CreatedAt = time.Now()
		metadataBytes, _ := tx.Metadata.Value()

		batch.Queue(query,
			tx.ID,
			tx.UserID,
			tx.TransactionID,
			tx.Amount,
			tx.SenderAccount,
			tx.ReceiverAccount,
			tx.TransactionType,
			tx.DeviceID,
			tx.IPAddress,
			tx.Location,
			tx.FraudScore,
			tx.IsFraudulent,
			tx.RiskLevel,
			tx.Recommendation,
			tx.FraudReason,
			pq.Array(tx.RulesViolated),
			pq.Array(tx.FeaturesAnalyzed),
			tx.ModelUsed,
			metadataBytes,
			tx.TransactionTime,
			tx.CreatedAt,
		)
	}

	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()

	for range transactions {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}

	return nil
}

// GetByID retrieves a transaction by its internal ID, scoped to a user
func (r *TransactionRepository) GetByID(ctx context.Context, userID, id uuid.UUID) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM transactions
		WHERE id = $1 AND user_id = $2
	`
	return r.queryOne(ctx, query, id, userID)
}

// GetByTransactionID retrieves a transaction by its external identifier
func (r *TransactionRepository) GetByTransactionID(ctx context.Context, userID uuid.UUID, transactionID string) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM transactions
		WHERE transaction_id = $1 AND user_id = $2
	`
	return r.queryOne(ctx, query, transactionID, userID)
}

// SetAnalystVerdict records reviewer feedback on a scored transaction
func (r *TransactionRepository) SetAnalystVerdict(ctx context.Context, userID uuid.UUID, transactionID string, verdict bool) error {
	query := `
		UPDATE transactions
		SET analyst_verdict = $3
		WHERE transaction_id = $1 AND user_id = $2
	`

	result, err := r.db.Pool.Exec(ctx, query, transactionID, userID, verdict)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// List retrieves filtered transaction history with pagination
func (r *TransactionRepository) List(ctx context.Context, filter TransactionFilter) ([]*models.Transaction, int, error) {
	where := []string{"user_id = $1"}
	args := []interface{}{filter.UserID}

	addArg := func(clause string, value interface{}) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if filter.StartDate != nil {
		addArg("transaction_time >= $%d", *filter.StartDate)
	}
	if filter.EndDate != nil {
		addArg("transaction_time <= $%d", *filter.EndDate)
	}
	if filter.IsFraudulent != nil {
		addArg("is_fraudulent = $%d", *filter.IsFraudulent)
	}
	if filter.Type != "" {
		addArg("transaction_type = $%d", filter.Type)
	}
	if filter.MinAmount != nil {
		addArg("amount >= $%d", *filter.MinAmount)
	}
	if filter.MaxAmount != nil {
		addArg("amount <= $%d", *filter.MaxAmount)
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		where = append(where, fmt.Sprintf("(transaction_id ILIKE $%d OR sender_account ILIKE $%d OR receiver_account ILIKE $%d)", len(args), len(args), len(args)))
	}

	whereClause := strings.Join(where, " AND ")

	var total int
	countQuery := `SELECT COUNT(*) FROM transactions WHERE ` + whereClause
	if err := r.db.Pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 20
	}

	args = append(args, pageSize, (page-1)*pageSize)
	query := fmt.Sprintf(`SELECT %s
		FROM transactions
		WHERE %s
		ORDER BY transaction_time DESC
		LIMIT $%d OFFSET $%d`, transactionColumns, whereClause, len(args)-1, len(args))

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	transactions, err := r.scanTransactions(rows)
	return transactions, total, err
}

// Summary aggregates a user's transactions over the last N days
func (r *TransactionRepository) Summary(ctx context.Context, userID uuid.UUID, days int) (*models.TransactionSummary, error) {
	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(amount), 0),
			COALESCE(AVG(amount), 0),
			COALESCE(MAX(amount), 0),
			COUNT(*) FILTER (WHERE is_fraudulent),
			COALESCE(AVG(fraud_score), 0)
		FROM transactions
		WHERE user_id = $1 AND transaction_time >= NOW() - ($2 || ' days')::interval
	`

	summary := &models.TransactionSummary{PeriodDays: days}
	daysStr := fmt.Sprintf("%d", days)

	err := r.db.Pool.QueryRow(ctx, query, userID, daysStr).Scan(
		&summary.TotalTransactions,
		&summary.TotalAmount,
		&summary.AvgAmount,
		&summary.MaxAmount,
		&summary.FraudCount,
		&summary.AvgFraudScore,
	)
	if err != nil {
		return nil, err
	}

	if summary.TotalTransactions > 0 {
		summary.FraudRate = float64(summary.FraudCount) / float64(summary.TotalTransactions)
	}

	summary.RiskDistribution = map[string]int{}
	riskQuery := `
		SELECT risk_level, COUNT(*)
		FROM transactions
		WHERE user_id = $1 AND transaction_time >= NOW() - ($2 || ' days')::interval
		GROUP BY risk_level
	`
	rows, err := r.db.Pool.Query(ctx, riskQuery, userID, daysStr)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var level string
		var count int
		if err := rows.Scan(&level, &count); err != nil {
			return nil, err
		}
		summary.RiskDistribution[level] = count
	}

	summary.TypeBreakdown = map[string]int{}
	typeQuery := `
		SELECT transaction_type, COUNT(*)
		FROM transactions
		WHERE user_id = $1 AND transaction_time >= NOW() - ($2 || ' days')::interval
		GROUP BY transaction_type
	`
	typeRows, err := r.db.Pool.Query(ctx, typeQuery, userID, daysStr)
	if err != nil {
		return nil, err
	}
	defer typeRows.Close()
	for typeRows.Next() {
		var txType string
		var count int
		if err := typeRows.Scan(&txType, &count); err != nil {
			return nil, err
		}
		summary.TypeBreakdown[txType] = count
	}

	return summary, nil
}

// FraudTrends returns a per-day fraud series for the last N days
func (r *TransactionRepository) FraudTrends(ctx context.Context, userID uuid.UUID, days int) ([]models.FraudTrendPoint, error) {
	query := `
		SELECT
			TO_CHAR(DATE(transaction_time), 'YYYY-MM-DD'),
			COUNT(*),
			COUNT(*) FILTER (WHERE is_fraudulent),
			COALESCE(SUM(amount), 0),
			COALESCE(AVG(fraud_score), 0)
		FROM transactions
		WHERE user_id = $1 AND transaction_time >= NOW() - ($2 || ' days')::interval
		GROUP BY DATE(transaction_time)
		ORDER BY DATE(transaction_time)
	`

	rows, err := r.db.Pool.Query(ctx, query, userID, fmt.Sprintf("%d", days))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	trends := make([]models.FraudTrendPoint, 0)
	for rows.Next() {
		var p models.FraudTrendPoint
		if err := rows.Scan(&p.Date, &p.TotalCount, &p.FraudCount, &p.TotalAmount, &p.AvgFraudScore); err != nil {
			return nil, err
		}
		if p.TotalCount > 0 {
			p.FraudRate = float64(p.FraudCount) / float64(p.TotalCount)
		}
		trends = append(trends, p)
	}
	return trends, nil
}

// HourlyPatterns returns fraud incidence grouped by hour of day
func (r *TransactionRepository) HourlyPatterns(ctx context.Context, userID uuid.UUID) ([]models.HourlyPattern, error) {
	query := `
		SELECT
			EXTRACT(HOUR FROM transaction_time)::int,
			COUNT(*),
			COUNT(*) FILTER (WHERE is_fraudulent)
		FROM transactions
		WHERE user_id = $1
		GROUP BY 1
		ORDER BY 1
	`

	rows, err := r.db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	patterns := make([]models.HourlyPattern, 0)
	for rows.Next() {
		var p models.HourlyPattern
		if err := rows.Scan(&p.Hour, &p.TotalCount, &p.FraudCount); err != nil {
			return nil, err
		}
		if p.TotalCount > 0 {
			p.FraudRate = float64(p.FraudCount) / float64(p.TotalCount)
		}
		patterns = append(patterns, p)
	}
	return patterns, nil
}

// AmountBandPatterns returns fraud incidence grouped by amount range
func (r *TransactionRepository) AmountBandPatterns(ctx context.Context, userID uuid.UUID) ([]models.AmountBandPattern, error) {
	query := `
		SELECT
			CASE
				WHEN amount < 1000 THEN '0-1k'
				WHEN amount < 10000 THEN '1k-10k'
				WHEN amount < 50000 THEN '10k-50k'
				WHEN amount < 100000 THEN '50k-100k'
				ELSE '100k+'
			END AS band,
			COUNT(*),
			COUNT(*) FILTER (WHERE is_fraudulent)
		FROM transactions
		WHERE user_id = $1
		GROUP BY band
		ORDER BY MIN(amount)
	`

	rows, err := r.db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	patterns := make([]models.AmountBandPattern, 0)
	for rows.Next() {
		var p models.AmountBandPattern
		if err := rows.Scan(&p.Band, &p.TotalCount, &p.FraudCount); err != nil {
			return nil, err
		}
		if p.TotalCount > 0 {
			p.FraudRate = float64(p.FraudCount) / float64(p.TotalCount)
		}
		patterns = append(patterns, p)
	}
	return patterns, nil
}

// TypePatterns returns fraud incidence grouped by transaction type
func (r *TransactionRepository) TypePatterns(ctx context.Context, userID uuid.UUID) ([]models.TypePattern, error) {
	query := `
		SELECT transaction_type, COUNT(*), COUNT(*) FILTER (WHERE is_fraudulent)
		FROM transactions
		WHERE user_id = $1
		GROUP BY transaction_type
		ORDER BY transaction_type
	`

	rows, err := r.db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	patterns := make([]models.TypePattern, 0)
	for rows.Next() {
		var p models.TypePattern
		if err := rows.Scan(&p.TransactionType, &p.TotalCount, &p.FraudCount); err != nil {
			return nil, err
		}
		if p.TotalCount > 0 {
			p.FraudRate = float64(p.FraudCount) / float64(p.TotalCount)
		}
		patterns = append(patterns, p)
	}
	return patterns, nil
}

func (r *TransactionRepository) queryOne(ctx context.Context, query string, args ...interface{}) (*models.Transaction, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions, err := r.scanTransactions(rows)
	if err != nil {
		return nil, err
	}
	if len(transactions) == 0 {
		return nil, ErrTransactionNotFound
	}
	return transactions[0], nil
}

func (r *TransactionRepository) scanTransactions(rows pgx.Rows) ([]*models.Transaction, error) {
	var transactions []*models.Transaction
	for rows.Next() {
		tx := &models.Transaction{}
		var metadataBytes []byte

		if err := rows.Scan(
			&tx.ID,
			&tx.UserID,
			&tx.TransactionID,
			&tx.Amount,
			&tx.SenderAccount,
			&tx.ReceiverAccount,
			&tx.TransactionType,
			&tx.DeviceID,
			&tx.IPAddress,
			&tx.Location,
			&tx.FraudScore,
			&tx.IsFraudulent,
			&tx.RiskLevel,
			&tx.Recommendation,
			&tx.FraudReason,
			pq.Array(&tx.RulesViolated),
			pq.Array(&tx.FeaturesAnalyzed),
			&tx.ModelUsed,
			&tx.AnalystVerdict,
			&metadataBytes,
			&tx.TransactionTime,
			&tx.CreatedAt,
		); err != nil {
			return nil, err
		}

		tx.Metadata.Scan(metadataBytes)
		transactions = append(transactions, tx)
	}

	return transactions, rows.Err()
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
