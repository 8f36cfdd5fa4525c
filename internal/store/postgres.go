package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	auditrepo "dsodesk/internal/audit/repository"
	"dsodesk/internal/db"
	dsorepo "dsodesk/internal/dso/repository"
	invitationrepo "dsodesk/internal/invitation/repository"
	membershiprepo "dsodesk/internal/membership/repository"
	orgrepo "dsodesk/internal/organization/repository"
)

// Postgres is a Store over a database/sql pool.
type Postgres struct {
	db *sql.DB
}

// NewPostgres wraps an open pool. Close closes the pool.
func NewPostgres(conn *sql.DB) *Postgres {
	return &Postgres{db: conn}
}

func reposFor(conn db.DBTX) Repos {
	return Repos{
		Organizations: orgrepo.NewPostgresRepository(conn),
		Memberships:   membershiprepo.NewPostgresRepository(conn),
		DSOs:          dsorepo.NewPostgresRepository(conn),
		Invitations:   invitationrepo.NewPostgresRepository(conn),
		AuditLogs:     auditrepo.NewPostgresRepository(conn),
	}
}

func (p *Postgres) Repos() Repos {
	return reposFor(p.db)
}

// WithTx runs fn in a READ COMMITTED transaction. Row locks taken by the repositories
// (FOR UPDATE) are held until commit or rollback.
func (p *Postgres) WithTx(ctx context.Context, fn func(Repos) error) (err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
			}
		}
	}()
	if err = fn(reposFor(tx)); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Postgres) Close() error {
	return p.db.Close()
}
