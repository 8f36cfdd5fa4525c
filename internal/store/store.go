// Package store groups the repositories behind one transactional boundary.
// Postgres backs production; Memory backs local development and tests.
package store

import (
	"context"

	auditrepo "dsodesk/internal/audit/repository"
	dsorepo "dsodesk/internal/dso/repository"
	invitationrepo "dsodesk/internal/invitation/repository"
	membershiprepo "dsodesk/internal/membership/repository"
	orgrepo "dsodesk/internal/organization/repository"
)

// Repos is the set of repositories bound to one connection or transaction.
type Repos struct {
	Organizations orgrepo.Repository
	Memberships   membershiprepo.Repository
	DSOs          dsorepo.Repository
	Invitations   invitationrepo.Repository
	AuditLogs     auditrepo.Repository
}

// Store hands out repositories and runs multi-row writes atomically.
type Store interface {
	// Repos returns repositories that run each call on its own.
	Repos() Repos
	// WithTx runs fn with repositories bound to one transaction. The transaction commits when fn returns nil
	// and the context is still live; otherwise every write made through the Repos is discarded.
	// WithTx is not reentrant: fn must use only the Repos it is given.
	WithTx(ctx context.Context, fn func(Repos) error) error
	Ping(ctx context.Context) error
	Close() error
}
