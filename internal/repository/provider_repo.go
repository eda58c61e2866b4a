package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nimbushost/provision-service/internal/models"
)

type ProviderRepository struct {
	pool *pgxpool.Pool
}

func NewProviderRepository(pool *pgxpool.Pool) *ProviderRepository {
	return &ProviderRepository{pool: pool}
}

func (r *ProviderRepository) Create(ctx context.Context, p *models.Provider) error {
	query := `
		INSERT INTO provisioning.providers (id, type, display_name, enabled)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.pool.Exec(ctx, query, p.ID, p.Type, p.DisplayName, p.Enabled)
	if err != nil {
		return fmt.Errorf("insert provider: %w", err)
	}
	return nil
}

func (r *ProviderRepository) GetByID(ctx context.Context, id string) (*models.Provider, error) {
	query := `
		SELECT id, type, display_name, enabled, created_at, updated_at
		FROM provisioning.providers
		WHERE id = $1
	`
	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

func (r *ProviderRepository) List(ctx context.Context) ([]*models.Provider, error) {
	query := `
		SELECT id, type, display_name, enabled, created_at, updated_at
		FROM provisioning.providers
		ORDER BY created_at
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query providers: %w", err)
	}
	defer rows.Close()

	var providers []*models.Provider
	for rows.Next() {
		p := &models.Provider{}
		if err := rows.Scan(&p.ID, &p.Type, &p.DisplayName, &p.Enabled, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan provider row: %w", err)
		}
		providers = append(providers, p)
	}
	return providers, rows.Err()
}

// Update changes the mutable fields only; type is immutable once created.
func (r *ProviderRepository) Update(ctx context.Context, id string, displayName *string, enabled *bool) error {
	query := `
		UPDATE provisioning.providers SET
			display_name = COALESCE($1, display_name),
			enabled = COALESCE($2, enabled),
			updated_at = NOW()
		WHERE id = $3
	`
	tag, err := r.pool.Exec(ctx, query, displayName, enabled, id)
	if err != nil {
		return fmt.Errorf("update provider: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ProviderRepository) scanOne(row pgx.Row) (*models.Provider, error) {
	p := &models.Provider{}
	err := row.Scan(&p.ID, &p.Type, &p.DisplayName, &p.Enabled, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan provider: %w", err)
	}
	return p, nil
}
