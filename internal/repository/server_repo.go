package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nimbushost/provision-service/internal/models"
)

type ServerRepository struct {
	pool *pgxpool.Pool
}

func NewServerRepository(pool *pgxpool.Pool) *ServerRepository {
	return &ServerRepository{pool: pool}
}

// Insert persists a new instance. The unique constraint on
// external_service_id turns a lost provisioning race into ErrDuplicate
// instead of a second row.
func (r *ServerRepository) Insert(ctx context.Context, s *models.ServerInstance) error {
	query := `
		INSERT INTO provisioning.server_instances (
			id, external_service_id, provider_id, credential_id,
			provider_resource_id, status, ip, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.pool.Exec(ctx, query,
		s.ID, s.ExternalServiceID, s.ProviderID, s.CredentialID,
		s.ProviderResourceID, s.Status, s.IP, s.Metadata,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert server instance: %w", err)
	}
	return nil
}

func (r *ServerRepository) GetByID(ctx context.Context, id string) (*models.ServerInstance, error) {
	return r.scanOne(r.pool.QueryRow(ctx, r.selectQuery()+` WHERE id = $1`, id))
}

func (r *ServerRepository) GetByExternalServiceID(ctx context.Context, serviceID int64) (*models.ServerInstance, error) {
	return r.scanOne(r.pool.QueryRow(ctx, r.selectQuery()+` WHERE external_service_id = $1`, serviceID))
}

func (r *ServerRepository) UpdateStatus(ctx context.Context, id, status string) error {
	query := `UPDATE provisioning.server_instances SET status = $1, updated_at = NOW() WHERE id = $2`
	tag, err := r.pool.Exec(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("update server status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ServerRepository) List(ctx context.Context, limit int) ([]*models.ServerInstance, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, r.selectQuery()+` ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query server instances: %w", err)
	}
	defer rows.Close()

	var servers []*models.ServerInstance
	for rows.Next() {
		s := &models.ServerInstance{}
		err := rows.Scan(
			&s.ID, &s.ExternalServiceID, &s.ProviderID, &s.CredentialID,
			&s.ProviderResourceID, &s.Status, &s.IP, &s.Metadata, &s.CreatedAt, &s.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan server instance row: %w", err)
		}
		servers = append(servers, s)
	}
	return servers, rows.Err()
}

func (r *ServerRepository) selectQuery() string {
	return `
		SELECT id, external_service_id, provider_id, credential_id,
		       provider_resource_id, status, ip, metadata, created_at, updated_at
		FROM provisioning.server_instances`
}

func (r *ServerRepository) scanOne(row pgx.Row) (*models.ServerInstance, error) {
	s := &models.ServerInstance{}
	err := row.Scan(
		&s.ID, &s.ExternalServiceID, &s.ProviderID, &s.CredentialID,
		&s.ProviderResourceID, &s.Status, &s.IP, &s.Metadata, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan server instance: %w", err)
	}
	return s, nil
}
