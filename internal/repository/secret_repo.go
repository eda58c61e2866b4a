package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nimbushost/provision-service/internal/models"
)

type SecretRepository struct {
	pool *pgxpool.Pool
}

func NewSecretRepository(pool *pgxpool.Pool) *SecretRepository {
	return &SecretRepository{pool: pool}
}

func (r *SecretRepository) Insert(ctx context.Context, s *models.Secret) error {
	query := `
		INSERT INTO provisioning.secrets (id, scope, name, version, is_active, ciphertext, key_id, aad)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.pool.Exec(ctx, query,
		s.ID, s.Scope, s.Name, s.Version, s.IsActive, s.Ciphertext, s.KeyID, s.AAD,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert secret: %w", err)
	}
	return nil
}

func (r *SecretRepository) GetByID(ctx context.Context, id string) (*models.Secret, error) {
	query := `
		SELECT id, scope, name, version, is_active, ciphertext, key_id, aad, created_at
		FROM provisioning.secrets
		WHERE id = $1
	`
	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

func (r *SecretRepository) GetActive(ctx context.Context, scope, name string) (*models.Secret, error) {
	query := `
		SELECT id, scope, name, version, is_active, ciphertext, key_id, aad, created_at
		FROM provisioning.secrets
		WHERE scope = $1 AND name = $2 AND is_active
	`
	return r.scanOne(r.pool.QueryRow(ctx, query, scope, name))
}

// Rotate deactivates the current active version and inserts the next one in a
// single transaction, so readers only ever see zero or one active version.
func (r *SecretRepository) Rotate(ctx context.Context, deactivateID string, next *models.Secret) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin rotate: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE provisioning.secrets SET is_active = FALSE WHERE id = $1 AND is_active`,
		deactivateID,
	)
	if err != nil {
		return fmt.Errorf("deactivate secret: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO provisioning.secrets (id, scope, name, version, is_active, ciphertext, key_id, aad)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, next.ID, next.Scope, next.Name, next.Version, next.IsActive, next.Ciphertext, next.KeyID, next.AAD)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert rotated secret: %w", err)
	}

	return tx.Commit(ctx)
}

func (r *SecretRepository) scanOne(row pgx.Row) (*models.Secret, error) {
	s := &models.Secret{}
	err := row.Scan(
		&s.ID, &s.Scope, &s.Name, &s.Version, &s.IsActive, &s.Ciphertext, &s.KeyID, &s.AAD, &s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan secret: %w", err)
	}
	return s, nil
}
