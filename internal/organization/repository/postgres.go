package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"dsodesk/internal/db"
	"dsodesk/internal/organization/domain"
)

const orgColumns = `id, name, slug, status, created_at, updated_at`

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns an organization repository bound to conn (pool or transaction).
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// GetOrganizationByID returns the organization for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetOrganizationByID(ctx context.Context, id string) (*domain.Org, error) {
	return r.getOne(ctx, `SELECT `+orgColumns+` FROM organizations WHERE id = $1`, id)
}

// GetOrganizationBySlug returns the organization with the given slug, or nil if not found.
func (r *PostgresRepository) GetOrganizationBySlug(ctx context.Context, slug string) (*domain.Org, error) {
	return r.getOne(ctx, `SELECT `+orgColumns+` FROM organizations WHERE slug = $1`, slug)
}

// CreateOrganization persists the organization. The organization must have ID and Slug set.
func (r *PostgresRepository) CreateOrganization(ctx context.Context, o *domain.Org) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO organizations (id, name, slug, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		o.ID, o.Name, o.Slug, string(o.Status), o.CreatedAt, o.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("create organization %q: %w", o.Slug, domain.ErrSlugTaken)
	}
	return err
}

// UpdateOrganization updates name and status of the existing organization.
func (r *PostgresRepository) UpdateOrganization(ctx context.Context, o *domain.Org) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE organizations SET name = $2, status = $3, updated_at = $4 WHERE id = $1`,
		o.ID, o.Name, string(o.Status), o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update organization %s: %w", o.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update organization %s: %w", o.ID, domain.ErrNotFound)
	}
	return nil
}

func (r *PostgresRepository) getOne(ctx context.Context, query, arg string) (*domain.Org, error) {
	var o domain.Org
	var status string
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&o.ID, &o.Name, &o.Slug, &status, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	o.Status = domain.OrgStatus(status)
	return &o, nil
}
