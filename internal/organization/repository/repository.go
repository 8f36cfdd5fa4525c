package repository

import (
	"context"

	"dsodesk/internal/organization/domain"
)

// Repository defines persistence for organizations. Missing rows are reported as (nil, nil).
type Repository interface {
	GetOrganizationByID(ctx context.Context, id string) (*domain.Org, error)
	GetOrganizationBySlug(ctx context.Context, slug string) (*domain.Org, error)
	// CreateOrganization inserts o. Returns domain.ErrSlugTaken when the slug is already used.
	CreateOrganization(ctx context.Context, o *domain.Org) error
	// UpdateOrganization persists name and status. The slug column is never rewritten.
	UpdateOrganization(ctx context.Context, o *domain.Org) error
}
