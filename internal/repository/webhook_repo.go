package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nimbushost/provision-service/internal/models"
)

type WebhookDeliveryRepository struct {
	pool *pgxpool.Pool
}

func NewWebhookDeliveryRepository(pool *pgxpool.Pool) *WebhookDeliveryRepository {
	return &WebhookDeliveryRepository{pool: pool}
}

func (r *WebhookDeliveryRepository) Insert(ctx context.Context, d *models.WebhookDelivery) error {
	query := `
		INSERT INTO provisioning.webhook_deliveries (id, payload)
		VALUES ($1, $2)
	`
	_, err := r.pool.Exec(ctx, query, d.ID, d.Payload)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert webhook delivery: %w", err)
	}
	return nil
}

func (r *WebhookDeliveryRepository) GetByID(ctx context.Context, id string) (*models.WebhookDelivery, error) {
	query := `
		SELECT id, payload, processed_at, result, created_at
		FROM provisioning.webhook_deliveries
		WHERE id = $1
	`
	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

// MarkProcessed sets processed_at and the terminal result. The predicate on
// processed_at makes the transition write-once; a second attempt gets
// ErrAlreadyProcessed instead of overwriting the recorded outcome.
func (r *WebhookDeliveryRepository) MarkProcessed(ctx context.Context, id string, result *models.ProcessResult) error {
	query := `
		UPDATE provisioning.webhook_deliveries
		SET processed_at = NOW(), result = $1
		WHERE id = $2 AND processed_at IS NULL
	`
	tag, err := r.pool.Exec(ctx, query, result, id)
	if err != nil {
		return fmt.Errorf("mark delivery processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyProcessed
	}
	return nil
}

func (r *WebhookDeliveryRepository) List(ctx context.Context, limit int) ([]*models.WebhookDelivery, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `
		SELECT id, payload, processed_at, result, created_at
		FROM provisioning.webhook_deliveries
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query webhook deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []*models.WebhookDelivery
	for rows.Next() {
		d := &models.WebhookDelivery{}
		if err := rows.Scan(&d.ID, &d.Payload, &d.ProcessedAt, &d.Result, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan webhook delivery row: %w", err)
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}

func (r *WebhookDeliveryRepository) scanOne(row pgx.Row) (*models.WebhookDelivery, error) {
	d := &models.WebhookDelivery{}
	err := row.Scan(&d.ID, &d.Payload, &d.ProcessedAt, &d.Result, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan webhook delivery: %w", err)
	}
	return d, nil
}
