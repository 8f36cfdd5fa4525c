package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"dsodesk/internal/db"
	"dsodesk/internal/dso/domain"
)

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns a DSO repository bound to conn (pool or transaction).
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// GetByID returns the DSO for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.DSO, error) {
	var d domain.DSO
	err := r.db.QueryRowContext(ctx, `SELECT id, org_id, name, created_at FROM dsos WHERE id = $1`, id).
		Scan(&d.ID, &d.OrgID, &d.Name, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get dso %s: %w", id, err)
	}
	return &d, nil
}

// GetOwningOrg returns the owning org id, or "" if the DSO does not exist.
func (r *PostgresRepository) GetOwningOrg(ctx context.Context, dsoID string) (string, error) {
	var orgID string
	err := r.db.QueryRowContext(ctx, `SELECT org_id FROM dsos WHERE id = $1`, dsoID).Scan(&orgID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get owning org for dso %s: %w", dsoID, err)
	}
	return orgID, nil
}

// ListByOrg returns the org's DSOs ordered by name.
func (r *PostgresRepository) ListByOrg(ctx context.Context, orgID string) ([]*domain.DSO, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, org_id, name, created_at FROM dsos WHERE org_id = $1 ORDER BY name, id`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.DSO
	for rows.Next() {
		var d domain.DSO
		if err := rows.Scan(&d.ID, &d.OrgID, &d.Name, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

// Create persists the DSO. The DSO must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, d *domain.DSO) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO dsos (id, org_id, name, created_at) VALUES ($1, $2, $3, $4)`,
		d.ID, d.OrgID, d.Name, d.CreatedAt)
	return err
}
