package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nimbushost/provision-service/internal/models"
)

type CredentialRepository struct {
	pool *pgxpool.Pool
}

func NewCredentialRepository(pool *pgxpool.Pool) *CredentialRepository {
	return &CredentialRepository{pool: pool}
}

func (r *CredentialRepository) Create(ctx context.Context, c *models.ProviderCredential) error {
	query := `
		INSERT INTO provisioning.provider_credentials (id, provider_id, label, secret_id, created_by)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.pool.Exec(ctx, query, c.ID, c.ProviderID, c.Label, c.SecretID, c.CreatedBy)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert credential: %w", err)
	}
	return nil
}

func (r *CredentialRepository) GetByID(ctx context.Context, id string) (*models.ProviderCredential, error) {
	query := `
		SELECT id, provider_id, label, secret_id, created_by, created_at
		FROM provisioning.provider_credentials
		WHERE id = $1
	`
	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

func (r *CredentialRepository) ListByProvider(ctx context.Context, providerID string) ([]*models.ProviderCredential, error) {
	query := `
		SELECT id, provider_id, label, secret_id, created_by, created_at
		FROM provisioning.provider_credentials
		WHERE provider_id = $1
		ORDER BY created_at
	`
	rows, err := r.pool.Query(ctx, query, providerID)
	if err != nil {
		return nil, fmt.Errorf("query credentials: %w", err)
	}
	defer rows.Close()

	var creds []*models.ProviderCredential
	for rows.Next() {
		c := &models.ProviderCredential{}
		if err := rows.Scan(&c.ID, &c.ProviderID, &c.Label, &c.SecretID, &c.CreatedBy, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan credential row: %w", err)
		}
		creds = append(creds, c)
	}
	return creds, rows.Err()
}

// UpdateSecretID repoints the credential at a rotated secret version.
func (r *CredentialRepository) UpdateSecretID(ctx context.Context, id, secretID string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE provisioning.provider_credentials SET secret_id = $1 WHERE id = $2`,
		secretID, id,
	)
	if err != nil {
		return fmt.Errorf("update credential secret: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *CredentialRepository) scanOne(row pgx.Row) (*models.ProviderCredential, error) {
	c := &models.ProviderCredential{}
	err := row.Scan(&c.ID, &c.ProviderID, &c.Label, &c.SecretID, &c.CreatedBy, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan credential: %w", err)
	}
	return c, nil
}
