package repository

import (
	"context"
	"time"

	"dsodesk/internal/invitation/domain"
)

// Repository defines persistence for invitations. Missing rows are reported as (nil, nil).
type Repository interface {
	Create(ctx context.Context, inv *domain.Invitation) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Invitation, error)
	// GetByTokenHashForUpdate reads the invitation and, inside a transaction, locks it until commit.
	GetByTokenHashForUpdate(ctx context.Context, tokenHash string) (*domain.Invitation, error)
	// MarkConsumed sets consumed_at/consumed_by only if the invitation is still unconsumed.
	// It reports whether this call consumed it.
	MarkConsumed(ctx context.Context, id, userID string, at time.Time) (bool, error)
	ListPendingByOrg(ctx context.Context, orgID string, now time.Time) ([]*domain.Invitation, error)
}
