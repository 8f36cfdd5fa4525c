package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"dsodesk/internal/db"
	"dsodesk/internal/invitation/domain"
)

const invitationColumns = `id, org_id, email, token_hash, invited_by, issued_at, expires_at, consumed_at, consumed_by`

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns an invitation repository bound to conn (pool or transaction).
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// Create persists the invitation. The invitation must have ID and TokenHash set.
func (r *PostgresRepository) Create(ctx context.Context, inv *domain.Invitation) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO invitations (id, org_id, email, token_hash, invited_by, issued_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		inv.ID, inv.OrgID, inv.Email, inv.TokenHash, inv.InvitedBy, inv.IssuedAt, inv.ExpiresAt)
	if err != nil {
		return fmt.Errorf("create invitation: %w", err)
	}
	return nil
}

// GetByTokenHash returns the invitation with the given token hash, or nil if not found.
func (r *PostgresRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Invitation, error) {
	return r.getOne(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE token_hash = $1`, tokenHash)
}

// GetByTokenHashForUpdate is GetByTokenHash with a row lock (SELECT ... FOR UPDATE).
func (r *PostgresRepository) GetByTokenHashForUpdate(ctx context.Context, tokenHash string) (*domain.Invitation, error) {
	return r.getOne(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE token_hash = $1 FOR UPDATE`, tokenHash)
}

// MarkConsumed consumes the invitation if nobody has yet.
func (r *PostgresRepository) MarkConsumed(ctx context.Context, id, userID string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE invitations SET consumed_at = $3, consumed_by = $2 WHERE id = $1 AND consumed_at IS NULL`,
		id, userID, at)
	if err != nil {
		return false, fmt.Errorf("consume invitation %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListPendingByOrg returns unconsumed, unexpired invitations for the org, newest first.
func (r *PostgresRepository) ListPendingByOrg(ctx context.Context, orgID string, now time.Time) ([]*domain.Invitation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+invitationColumns+` FROM invitations
		 WHERE org_id = $1 AND consumed_at IS NULL AND expires_at >= $2
		 ORDER BY issued_at DESC, id`, orgID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) getOne(ctx context.Context, query, arg string) (*domain.Invitation, error) {
	inv, err := scanInvitation(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get invitation: %w", err)
	}
	return inv, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvitation(s rowScanner) (*domain.Invitation, error) {
	var inv domain.Invitation
	var consumedAt sql.NullTime
	var consumedBy sql.NullString
	if err := s.Scan(&inv.ID, &inv.OrgID, &inv.Email, &inv.TokenHash, &inv.InvitedBy,
		&inv.IssuedAt, &inv.ExpiresAt, &consumedAt, &consumedBy); err != nil {
		return nil, err
	}
	if consumedAt.Valid {
		t := consumedAt.Time
		inv.ConsumedAt = &t
	}
	inv.ConsumedBy = consumedBy.String
	return &inv, nil
}
