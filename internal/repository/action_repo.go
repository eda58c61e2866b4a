package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nimbushost/provision-service/internal/models"
)

type ActionRepository struct {
	pool *pgxpool.Pool
}

func NewActionRepository(pool *pgxpool.Pool) *ActionRepository {
	return &ActionRepository{pool: pool}
}

// Insert records the intent to perform a lifecycle operation, before the
// provider call is made. Two unique constraints back it: the global
// idempotency key, and a partial index that blocks a second running action of
// the same kind against the same service.
func (r *ActionRepository) Insert(ctx context.Context, a *models.ActionRequest) error {
	query := `
		INSERT INTO provisioning.action_requests (id, external_service_id, action, status, idempotency_key, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.pool.Exec(ctx, query,
		a.ID, a.ExternalServiceID, a.Action, a.Status, a.IdempotencyKey, a.StartedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert action request: %w", err)
	}
	return nil
}

func (r *ActionRepository) MarkSucceeded(ctx context.Context, id string) error {
	query := `
		UPDATE provisioning.action_requests
		SET status = $1, completed_at = NOW()
		WHERE id = $2
	`
	if _, err := r.pool.Exec(ctx, query, models.ActionStatusSucceeded, id); err != nil {
		return fmt.Errorf("mark action succeeded: %w", err)
	}
	return nil
}

func (r *ActionRepository) MarkFailed(ctx context.Context, id, errorMsg string) error {
	query := `
		UPDATE provisioning.action_requests
		SET status = $1, completed_at = NOW(), error = $2
		WHERE id = $3
	`
	if _, err := r.pool.Exec(ctx, query, models.ActionStatusFailed, errorMsg, id); err != nil {
		return fmt.Errorf("mark action failed: %w", err)
	}
	return nil
}

func (r *ActionRepository) ListByServiceID(ctx context.Context, serviceID int64, limit int) ([]*models.ActionRequest, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `
		SELECT id, external_service_id, action, status, idempotency_key, started_at, completed_at, error
		FROM provisioning.action_requests
		WHERE external_service_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, serviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("query action requests: %w", err)
	}
	defer rows.Close()

	var actions []*models.ActionRequest
	for rows.Next() {
		a := &models.ActionRequest{}
		err := rows.Scan(
			&a.ID, &a.ExternalServiceID, &a.Action, &a.Status,
			&a.IdempotencyKey, &a.StartedAt, &a.CompletedAt, &a.Error,
		)
		if err != nil {
			return nil, fmt.Errorf("scan action request row: %w", err)
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}
