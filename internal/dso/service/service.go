// Package service creates and reads DSOs on behalf of their managing organization.
package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"dsodesk/internal/audit"
	"dsodesk/internal/dso/domain"
	"dsodesk/internal/events"
	identitydomain "dsodesk/internal/identity/domain"
	membershipdomain "dsodesk/internal/membership/domain"
	"dsodesk/internal/platform/rbac"
	"dsodesk/internal/policy/engine"
	"dsodesk/internal/store"
)

// Access is the part of the rbac evaluator the service needs.
type Access interface {
	RequireOrgAccess(ctx context.Context, caller *identitydomain.Caller, orgID string, requireElevated bool) (*rbac.Decision, error)
	RequireDsoAccess(ctx context.Context, caller *identitydomain.Caller, dsoID string) (*rbac.Decision, error)
}

// DSOWithRole is a DSO together with the caller's role in its managing organization.
type DSOWithRole struct {
	DSO  *domain.DSO           `json:"dso"`
	Role membershipdomain.Role `json:"role"`
}

type Service struct {
	store  store.Store
	access Access
	policy engine.Authorizer
	audit  audit.AuditLogger
	events events.Publisher
	now    func() time.Time
}

// NewService returns a Service. policy, auditLogger and publisher may be nil.
func NewService(st store.Store, access Access, policy engine.Authorizer, auditLogger audit.AuditLogger, publisher events.Publisher) *Service {
	if auditLogger == nil {
		auditLogger = audit.NopLogger{}
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Service{store: st, access: access, policy: policy, audit: auditLogger, events: publisher, now: time.Now}
}

// Create registers a DSO managed by orgID.
func (s *Service) Create(ctx context.Context, caller *identitydomain.Caller, orgID, name string) (*domain.DSO, error) {
	d, err := s.access.RequireOrgAccess(ctx, caller, orgID, true)
	if err != nil {
		return nil, err
	}
	if err := engine.Enforce(ctx, s.policy, engine.Input{
		Operation: engine.OpDSOCreate,
		Actor:     engine.Principal{UserID: d.UserID, Role: d.Role},
	}); err != nil {
		return nil, err
	}
	x := &domain.DSO{
		ID:        uuid.New().String(),
		OrgID:     orgID,
		Name:      strings.TrimSpace(name),
		CreatedAt: s.now().UTC(),
	}
	if err := x.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.Repos().DSOs.Create(ctx, x); err != nil {
		return nil, rbac.StoreUnavailable("create dso", err)
	}
	s.audit.LogEvent(ctx, orgID, d.UserID, audit.ActionDSOCreated, audit.ResourceDSO, x.ID)
	events.PublishAsync(s.events, ctx, events.New(events.DSOCreated, orgID, d.UserID, x.ID,
		map[string]string{"name": x.Name}))
	return x, nil
}

// List returns the DSOs managed by orgID. Any member may list.
func (s *Service) List(ctx context.Context, caller *identitydomain.Caller, orgID string) ([]*domain.DSO, error) {
	if _, err := s.access.RequireOrgAccess(ctx, caller, orgID, false); err != nil {
		return nil, err
	}
	out, err := s.store.Repos().DSOs.ListByOrg(ctx, orgID)
	if err != nil {
		return nil, rbac.StoreUnavailable("list dsos", err)
	}
	return out, nil
}

// Get returns the DSO if the caller is a member of its managing organization.
func (s *Service) Get(ctx context.Context, caller *identitydomain.Caller, dsoID string) (*DSOWithRole, error) {
	d, err := s.access.RequireDsoAccess(ctx, caller, dsoID)
	if err != nil {
		return nil, err
	}
	x, err := s.store.Repos().DSOs.GetByID(ctx, dsoID)
	if err != nil {
		return nil, rbac.StoreUnavailable("get dso", err)
	}
	if x == nil {
		return nil, rbac.Deny(rbac.ReasonResourceNotFound, "dso not found")
	}
	return &DSOWithRole{DSO: x, Role: d.Role}, nil
}
