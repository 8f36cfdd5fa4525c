package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"dsodesk/internal/db"
	"dsodesk/internal/membership/domain"
)

const membershipColumns = `id, org_id, user_id, role, created_at, updated_at`

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns a membership repository bound to conn, which may be a pool or a transaction.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// GetMembershipByUserAndOrg returns the membership for the given user and org, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetMembershipByUserAndOrg(ctx context.Context, userID, orgID string) (*domain.Membership, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+membershipColumns+` FROM memberships WHERE user_id = $1 AND org_id = $2`, userID, orgID)
	m, err := scanMembership(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get membership %s/%s: %w", orgID, userID, err)
	}
	return m, nil
}

// ListMembershipsByOrg returns all memberships for the given org, oldest first.
func (r *PostgresRepository) ListMembershipsByOrg(ctx context.Context, orgID string) ([]*domain.Membership, error) {
	return r.list(ctx, `SELECT `+membershipColumns+` FROM memberships WHERE org_id = $1 ORDER BY created_at, id`, orgID)
}

// ListMembershipsByUser returns every membership the user holds, oldest first.
func (r *PostgresRepository) ListMembershipsByUser(ctx context.Context, userID string) ([]*domain.Membership, error) {
	return r.list(ctx, `SELECT `+membershipColumns+` FROM memberships WHERE user_id = $1 ORDER BY created_at, id`, userID)
}

// CreateMembership persists the membership. The membership must have ID set.
func (r *PostgresRepository) CreateMembership(ctx context.Context, m *domain.Membership) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO memberships (id, org_id, user_id, role, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.OrgID, m.UserID, string(m.Role), m.CreatedAt, m.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return domain.ErrAlreadyMember
	}
	return err
}

// EnsureMembership inserts m unless the (org, user) pair already exists. The unique index decides races;
// the loser reads back the winner's row.
func (r *PostgresRepository) EnsureMembership(ctx context.Context, m *domain.Membership) (*domain.Membership, bool, error) {
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO memberships (id, org_id, user_id, role, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (org_id, user_id) DO NOTHING
		 RETURNING `+membershipColumns,
		m.ID, m.OrgID, m.UserID, string(m.Role), m.CreatedAt, m.UpdatedAt)
	inserted, err := scanMembership(row)
	if err == nil {
		return inserted, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("ensure membership %s/%s: %w", m.OrgID, m.UserID, err)
	}
	existing, err := r.GetMembershipByUserAndOrg(ctx, m.UserID, m.OrgID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("ensure membership %s/%s: conflicting row vanished", m.OrgID, m.UserID)
	}
	return existing, false, nil
}

// UpsertMembership inserts m or overwrites the role of the existing (org, user) row.
func (r *PostgresRepository) UpsertMembership(ctx context.Context, m *domain.Membership) (*domain.Membership, error) {
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO memberships (id, org_id, user_id, role, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (org_id, user_id) DO UPDATE SET role = EXCLUDED.role, updated_at = EXCLUDED.updated_at
		 RETURNING `+membershipColumns,
		m.ID, m.OrgID, m.UserID, string(m.Role), m.CreatedAt, m.UpdatedAt)
	out, err := scanMembership(row)
	if err != nil {
		return nil, fmt.Errorf("upsert membership %s/%s: %w", m.OrgID, m.UserID, err)
	}
	return out, nil
}

// DeleteByUserAndOrg removes the membership for the user in the org.
func (r *PostgresRepository) DeleteByUserAndOrg(ctx context.Context, userID, orgID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM memberships WHERE user_id = $1 AND org_id = $2`, userID, orgID)
	if err != nil {
		return false, fmt.Errorf("delete membership %s/%s: %w", orgID, userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CountOwnersByOrg locks the org's owner rows (FOR UPDATE) and returns how many there are.
func (r *PostgresRepository) CountOwnersByOrg(ctx context.Context, orgID string) (int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM memberships WHERE org_id = $1 AND role = 'owner' FOR UPDATE`, orgID)
	if err != nil {
		return 0, fmt.Errorf("count owners %s: %w", orgID, err)
	}
	defer rows.Close()
	var n int64
	for rows.Next() {
		n++
	}
	return n, rows.Err()
}

func (r *PostgresRepository) list(ctx context.Context, query string, arg string) ([]*domain.Membership, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMembership(s rowScanner) (*domain.Membership, error) {
	var m domain.Membership
	var role string
	if err := s.Scan(&m.ID, &m.OrgID, &m.UserID, &role, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.Role = domain.Role(role)
	return &m, nil
}
