package repository

import (
	"context"

	"dsodesk/internal/membership/domain"
)

// Repository defines persistence for memberships.
// Lookups return (nil, nil) when no row exists; errors are reserved for storage failures.
type Repository interface {
	GetMembershipByUserAndOrg(ctx context.Context, userID, orgID string) (*domain.Membership, error)
	ListMembershipsByOrg(ctx context.Context, orgID string) ([]*domain.Membership, error)
	ListMembershipsByUser(ctx context.Context, userID string) ([]*domain.Membership, error)
	// CreateMembership inserts m. Returns domain.ErrAlreadyMember if (org, user) already has a row.
	CreateMembership(ctx context.Context, m *domain.Membership) error
	// EnsureMembership inserts m unless (org, user) already has a row, in which case the existing row is
	// returned unchanged. created reports whether m was inserted.
	EnsureMembership(ctx context.Context, m *domain.Membership) (out *domain.Membership, created bool, err error)
	// UpsertMembership creates the membership or overwrites its role. Atomic per (org, user); last writer wins.
	UpsertMembership(ctx context.Context, m *domain.Membership) (*domain.Membership, error)
	// DeleteByUserAndOrg removes the membership and reports whether a row was deleted.
	DeleteByUserAndOrg(ctx context.Context, userID, orgID string) (bool, error)
	// CountOwnersByOrg counts owners. Inside a transaction the owner rows stay locked until commit.
	CountOwnersByOrg(ctx context.Context, orgID string) (int64, error)
}
