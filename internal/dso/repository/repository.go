package repository

import (
	"context"

	"dsodesk/internal/dso/domain"
)

// Repository defines persistence for DSOs. Missing rows are reported as (nil, nil) or ("", nil).
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.DSO, error)
	// GetOwningOrg returns the org id of the DSO, or "" if the DSO does not exist.
	GetOwningOrg(ctx context.Context, dsoID string) (string, error)
	ListByOrg(ctx context.Context, orgID string) ([]*domain.DSO, error)
	Create(ctx context.Context, d *domain.DSO) error
}
