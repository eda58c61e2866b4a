package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nimbushost/provision-service/internal/models"
)

type MappingRepository struct {
	pool *pgxpool.Pool
}

func NewMappingRepository(pool *pgxpool.Pool) *MappingRepository {
	return &MappingRepository{pool: pool}
}

func (r *MappingRepository) Create(ctx context.Context, m *models.ProductMapping) error {
	query := `
		INSERT INTO provisioning.product_mappings (id, whmcs_product_id, provider_id, credential_id, plan_ref)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.pool.Exec(ctx, query, m.ID, m.WHMCSProductID, m.ProviderID, m.CredentialID, m.PlanRef)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert product mapping: %w", err)
	}
	return nil
}

func (r *MappingRepository) GetByProductID(ctx context.Context, productID int64) (*models.ProductMapping, error) {
	query := `
		SELECT id, whmcs_product_id, provider_id, credential_id, plan_ref, created_at, updated_at
		FROM provisioning.product_mappings
		WHERE whmcs_product_id = $1
	`
	return r.scanOne(r.pool.QueryRow(ctx, query, productID))
}

func (r *MappingRepository) List(ctx context.Context) ([]*models.ProductMapping, error) {
	query := `
		SELECT id, whmcs_product_id, provider_id, credential_id, plan_ref, created_at, updated_at
		FROM provisioning.product_mappings
		ORDER BY whmcs_product_id
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query product mappings: %w", err)
	}
	defer rows.Close()

	var mappings []*models.ProductMapping
	for rows.Next() {
		m := &models.ProductMapping{}
		err := rows.Scan(&m.ID, &m.WHMCSProductID, &m.ProviderID, &m.CredentialID, &m.PlanRef, &m.CreatedAt, &m.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan product mapping row: %w", err)
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

func (r *MappingRepository) scanOne(row pgx.Row) (*models.ProductMapping, error) {
	m := &models.ProductMapping{}
	err := row.Scan(&m.ID, &m.WHMCSProductID, &m.ProviderID, &m.CredentialID, &m.PlanRef, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan product mapping: %w", err)
	}
	return m, nil
}
