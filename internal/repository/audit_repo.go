package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/nimbushost/provision-service/internal/models"
)

// AuditRepository is the append-only audit sink. Record is fire-and-forget:
// a failed audit write is logged but never fails the caller's own transition.
type AuditRepository struct {
	pool *pgxpool.Pool
	log  *logrus.Logger
}

func NewAuditRepository(pool *pgxpool.Pool, log *logrus.Logger) *AuditRepository {
	return &AuditRepository{pool: pool, log: log}
}

func (r *AuditRepository) Record(ctx context.Context, actorType, action, targetType, targetID string, details map[string]interface{}) {
	entry := &models.AuditEntry{
		ID:         uuid.New().String(),
		ActorType:  actorType,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Details:    details,
	}
	if err := r.create(ctx, entry); err != nil {
		r.log.WithFields(logrus.Fields{
			"action":    action,
			"target_id": targetID,
		}).WithError(err).Warn("audit write failed")
	}
}

func (r *AuditRepository) create(ctx context.Context, e *models.AuditEntry) error {
	query := `
		INSERT INTO provisioning.audit_log (id, actor_type, action, target_type, target_id, details)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.pool.Exec(ctx, query, e.ID, e.ActorType, e.Action, e.TargetType, e.TargetID, e.Details)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (r *AuditRepository) List(ctx context.Context, limit int) ([]*models.AuditEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `
		SELECT id, actor_type, action, target_type, target_id, details, created_at
		FROM provisioning.audit_log
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var entries []*models.AuditEntry
	for rows.Next() {
		e := &models.AuditEntry{}
		err := rows.Scan(&e.ID, &e.ActorType, &e.Action, &e.TargetType, &e.TargetID, &e.Details, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
