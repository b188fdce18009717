package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/enterprise/fraud-detection/internal/models"
)

var (
	ErrAlertNotFound = errors.New("alert not found")
)

// AlertRepository handles fraud alert database operations
type AlertRepository struct {
	db *Database
}

// NewAlertRepository creates a new alert repository
func NewAlertRepository(db *Database) *AlertRepository {
	return &AlertRepository{db: db}
}

// Create creates a new fraud alert
func (r *AlertRepository) Create(ctx context.Context, alert *models.FraudAlert) error {
	query := `
		INSERT INTO fraud_alerts (id, transaction_id, alert_type, severity, description, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	alert.ID = uuid.New()
	alert.CreatedAt = time.Now()
	if alert.Status == "" {
		alert.Status = models.AlertStatusOpen
	}

	_, err := r.db.Pool.Exec(ctx, query,
		alert.ID,
		alert.TransactionID,
		alert.AlertType,
		alert.Severity,
		alert.Description,
		alert.Status,
		alert.CreatedAt,
	)

	return err
}

// GetByID retrieves an alert by ID
func (r *AlertRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.FraudAlert, error) {
	query := `
		SELECT id, transaction_id, alert_type, severity, description, status, created_at, resolved_at
		FROM fraud_alerts
		WHERE id = $1
	`

	alert := &models.FraudAlert{}
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&alert.ID,
		&alert.TransactionID,
		&alert.AlertType,
		&alert.Severity,
		&alert.Description,
		&alert.Status,
		&alert.CreatedAt,
		&alert.ResolvedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAlertNotFound
		}
		return nil, err
	}

	return alert, nil
}

// List retrieves alerts with optional status filter and pagination
func (r *AlertRepository) List(ctx context.Context, status string, page, pageSize int) ([]*models.FraudAlert, int, error) {
	offset := (page - 1) * pageSize

	countQuery := `SELECT COUNT(*) FROM fraud_alerts WHERE ($1 = '' OR status = $1)`
	var total int
	if err := r.db.Pool.QueryRow(ctx, countQuery, status).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT id, transaction_id, alert_type, severity, description, status, created_at, resolved_at
		FROM fraud_alerts
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Pool.Query(ctx, query, status, pageSize, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var alerts []*models.FraudAlert
	for rows.Next() {
		alert := &models.FraudAlert{}
		if err := rows.Scan(
			&alert.ID,
			&alert.TransactionID,
			&alert.AlertType,
			&alert.Severity,
			&alert.Description,
			&alert.Status,
			&alert.CreatedAt,
			&alert.ResolvedAt,
		); err != nil {
			return nil, 0, err
		}
		alerts = append(alerts, alert)
	}

	return alerts, total, rows.Err()
}

// UpdateStatus transitions an alert's status; resolved alerts record the time
func (r *AlertRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	query := `
		UPDATE fraud_alerts
		SET status = $2,
			resolved_at = CASE WHEN $2 = 'resolved' THEN NOW() ELSE resolved_at END
		WHERE id = $1
	`

	result, err := r.db.Pool.Exec(ctx, query, id, status)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrAlertNotFound
	}
	return nil
}

// CountBySeverity counts open alerts grouped by severity
func (r *AlertRepository) CountBySeverity(ctx context.Context) (map[string]int, error) {
	query := `
		SELECT severity, COUNT(*)
		FROM fraud_alerts
		WHERE status = 'open'
		GROUP BY severity
	`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var severity string
		var count int
		if err := rows.Scan(&severity, &count); err != nil {
			return nil, err
		}
		counts[severity] = count
	}
	return counts, rows.Err()
}
