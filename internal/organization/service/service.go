// Package service implements organization creation, lookup, rename and the org audit trail.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"dsodesk/internal/audit"
	auditdomain "dsodesk/internal/audit/domain"
	"dsodesk/internal/events"
	identitydomain "dsodesk/internal/identity/domain"
	membershipdomain "dsodesk/internal/membership/domain"
	"dsodesk/internal/organization/domain"
	"dsodesk/internal/platform/rbac"
	"dsodesk/internal/policy/engine"
	"dsodesk/internal/store"
)

const (
	defaultAuditPageSize = 50
	maxAuditPageSize     = 500
)

// Access is the part of the rbac evaluator the service needs.
type Access interface {
	RequireOrgAccess(ctx context.Context, caller *identitydomain.Caller, orgID string, requireElevated bool) (*rbac.Decision, error)
}

// OrgWithRole is an organization together with the caller's role in it.
type OrgWithRole struct {
	Org  *domain.Org           `json:"organization"`
	Role membershipdomain.Role `json:"role"`
}

// Service owns organization lifecycle.
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

// Create creates an organization named name and makes the caller its owner in the same transaction.
// The slug is derived from name once; an existing slug yields domain.ErrSlugTaken.
func (s *Service) Create(ctx context.Context, caller *identitydomain.Caller, name string) (*OrgWithRole, error) {
	if !caller.Authenticated() {
		return nil, rbac.Deny(rbac.ReasonUnauthenticated, "caller identity required")
	}
	now := s.now().UTC()
	org := &domain.Org{
		ID:        uuid.New().String(),
		Name:      strings.TrimSpace(name),
		Slug:      domain.Slugify(name),
		Status:    domain.OrgStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := org.Validate(); err != nil {
		return nil, err
	}
	owner := &membershipdomain.Membership{
		ID:        uuid.New().String(),
		OrgID:     org.ID,
		UserID:    caller.UserID,
		Role:      membershipdomain.RoleOwner,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.store.WithTx(ctx, func(r store.Repos) error {
		if err := r.Organizations.CreateOrganization(ctx, org); err != nil {
			return err
		}
		return r.Memberships.CreateMembership(ctx, owner)
	})
	if err != nil {
		return nil, rbac.Classify("create organization", err, domain.ErrSlugTaken)
	}
	s.audit.LogEvent(ctx, org.ID, caller.UserID, audit.ActionOrgCreated, audit.ResourceOrganization, org.Slug)
	events.PublishAsync(s.events, ctx, events.New(events.OrgCreated, org.ID, caller.UserID, org.ID,
		map[string]string{"slug": org.Slug}))
	return &OrgWithRole{Org: org, Role: owner.Role}, nil
}

// Get returns the organization if the caller is a member of it.
func (s *Service) Get(ctx context.Context, caller *identitydomain.Caller, orgID string) (*OrgWithRole, error) {
	d, err := s.access.RequireOrgAccess(ctx, caller, orgID, false)
	if err != nil {
		return nil, err
	}
	org, err := s.load(ctx, s.store.Repos(), orgID)
	if err != nil {
		return nil, err
	}
	return &OrgWithRole{Org: org, Role: d.Role}, nil
}

// Rename changes the display name. The slug is kept so existing links stay valid.
func (s *Service) Rename(ctx context.Context, caller *identitydomain.Caller, orgID, name string) (*domain.Org, error) {
	d, err := s.access.RequireOrgAccess(ctx, caller, orgID, true)
	if err != nil {
		return nil, err
	}
	if err := engine.Enforce(ctx, s.policy, engine.Input{
		Operation: engine.OpOrgRename,
		Actor:     engine.Principal{UserID: d.UserID, Role: d.Role},
	}); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	var org *domain.Org
	err = s.store.WithTx(ctx, func(r store.Repos) error {
		o, err := s.load(ctx, r, orgID)
		if err != nil {
			return err
		}
		o.Name = name
		o.UpdatedAt = s.now().UTC()
		if err := o.Validate(); err != nil {
			return err
		}
		if err := r.Organizations.UpdateOrganization(ctx, o); err != nil {
			return err
		}
		org = o
		return nil
	})
	if err != nil {
		return nil, rbac.Classify("rename organization", err, domain.ErrInvalidName, domain.ErrNotFound)
	}
	s.audit.LogEvent(ctx, orgID, d.UserID, audit.ActionOrgRenamed, audit.ResourceOrganization, org.Name)
	events.PublishAsync(s.events, ctx, events.New(events.OrgRenamed, orgID, d.UserID, orgID,
		map[string]string{"name": org.Name}))
	return org, nil
}

// ListForCaller returns every organization the caller belongs to, with the caller's role in each.
func (s *Service) ListForCaller(ctx context.Context, caller *identitydomain.Caller) ([]OrgWithRole, error) {
	if !caller.Authenticated() {
		return nil, rbac.Deny(rbac.ReasonUnauthenticated, "caller identity required")
	}
	repos := s.store.Repos()
	memberships, err := repos.Memberships.ListMembershipsByUser(ctx, caller.UserID)
	if err != nil {
		return nil, rbac.StoreUnavailable("list memberships", err)
	}
	out := make([]OrgWithRole, 0, len(memberships))
	for _, m := range memberships {
		org, err := repos.Organizations.GetOrganizationByID(ctx, m.OrgID)
		if err != nil {
			return nil, rbac.StoreUnavailable("get organization", err)
		}
		if org == nil {
			continue
		}
		out = append(out, OrgWithRole{Org: org, Role: m.Role})
	}
	return out, nil
}

// AuditLog returns the org's audit entries, newest first. Requires elevated access and the audit.read policy.
func (s *Service) AuditLog(ctx context.Context, caller *identitydomain.Caller, orgID string, limit, offset int32) ([]*auditdomain.AuditLog, error) {
	d, err := s.access.RequireOrgAccess(ctx, caller, orgID, true)
	if err != nil {
		return nil, err
	}
	if err := engine.Enforce(ctx, s.policy, engine.Input{
		Operation: engine.OpAuditRead,
		Actor:     engine.Principal{UserID: d.UserID, Role: d.Role},
	}); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultAuditPageSize
	}
	if limit > maxAuditPageSize {
		limit = maxAuditPageSize
	}
	if offset < 0 {
		offset = 0
	}
	entries, err := s.store.Repos().AuditLogs.ListByOrg(ctx, orgID, limit, offset)
	if err != nil {
		return nil, rbac.StoreUnavailable("list audit logs", err)
	}
	return entries, nil
}

func (s *Service) load(ctx context.Context, r store.Repos, orgID string) (*domain.Org, error) {
	org, err := r.Organizations.GetOrganizationByID(ctx, orgID)
	if err != nil {
		return nil, rbac.StoreUnavailable("get organization", err)
	}
	if org == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, orgID)
	}
	return org, nil
}
