// Package service manages organization members: direct adds, role changes and removals.
package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"dsodesk/internal/audit"
	"dsodesk/internal/events"
	identitydomain "dsodesk/internal/identity/domain"
	"dsodesk/internal/membership/domain"
	"dsodesk/internal/platform/rbac"
	"dsodesk/internal/policy/engine"
	"dsodesk/internal/store"
)

// Access is the part of the rbac evaluator the service needs.
type Access interface {
	RequireOrgAccess(ctx context.Context, caller *identitydomain.Caller, orgID string, requireElevated bool) (*rbac.Decision, error)
}

// Service applies membership changes after org access and the operation policy allow them.
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

// List returns the org's members. Any member may list.
func (s *Service) List(ctx context.Context, caller *identitydomain.Caller, orgID string) ([]*domain.Membership, error) {
	if _, err := s.access.RequireOrgAccess(ctx, caller, orgID, false); err != nil {
		return nil, err
	}
	ms, err := s.store.Repos().Memberships.ListMembershipsByOrg(ctx, orgID)
	if err != nil {
		return nil, rbac.StoreUnavailable("list memberships", err)
	}
	return ms, nil
}

// Add grants userID the given role in orgID. A user who already belongs to the org yields domain.ErrAlreadyMember.
func (s *Service) Add(ctx context.Context, caller *identitydomain.Caller, orgID, userID string, role domain.Role) (*domain.Membership, error) {
	d, err := s.access.RequireOrgAccess(ctx, caller, orgID, true)
	if err != nil {
		return nil, err
	}
	role, err = domain.ParseRole(string(role))
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(userID) == "" {
		return nil, domain.ErrInvalidUserID
	}
	if err := engine.Enforce(ctx, s.policy, engine.Input{
		Operation: engine.OpMemberAdd,
		Actor:     engine.Principal{UserID: d.UserID, Role: d.Role},
		Target:    &engine.Principal{UserID: userID},
		NewRole:   role,
	}); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	m := &domain.Membership{
		ID:        uuid.New().String(),
		OrgID:     orgID,
		UserID:    userID,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Repos().Memberships.CreateMembership(ctx, m); err != nil {
		return nil, rbac.Classify("add member", err, domain.ErrAlreadyMember)
	}
	s.audit.LogEvent(ctx, orgID, d.UserID, audit.ActionMemberAdded, audit.ResourceMembership, userID+":"+string(role))
	events.PublishAsync(s.events, ctx, events.New(events.MemberAdded, orgID, d.UserID, userID,
		map[string]string{"role": string(role)}))
	return m, nil
}

// ChangeRole sets userID's role in orgID. Concurrent changes to one member are last-writer-wins.
// Demoting the only owner yields domain.ErrLastOwner.
func (s *Service) ChangeRole(ctx context.Context, caller *identitydomain.Caller, orgID, userID string, role domain.Role) (*domain.Membership, error) {
	d, err := s.access.RequireOrgAccess(ctx, caller, orgID, true)
	if err != nil {
		return nil, err
	}
	role, err = domain.ParseRole(string(role))
	if err != nil {
		return nil, err
	}
	target, err := s.target(ctx, s.store.Repos(), orgID, userID)
	if err != nil {
		return nil, err
	}
	if err := s.enforce(ctx, engine.OpMemberRoleChange, d, target, role); err != nil {
		return nil, err
	}

	var updated *domain.Membership
	previous := target.Role
	err = s.store.WithTx(ctx, func(r store.Repos) error {
		current, err := s.target(ctx, r, orgID, userID)
		if err != nil {
			return err
		}
		// The target may have been promoted since the first check.
		if err := s.enforce(ctx, engine.OpMemberRoleChange, d, current, role); err != nil {
			return err
		}
		previous = current.Role
		if current.Role == domain.RoleOwner && role != domain.RoleOwner {
			if err := s.keepAnOwner(ctx, r, orgID); err != nil {
				return err
			}
		}
		updated, err = r.Memberships.UpsertMembership(ctx, &domain.Membership{
			ID:        current.ID,
			OrgID:     orgID,
			UserID:    userID,
			Role:      role,
			CreatedAt: current.CreatedAt,
			UpdatedAt: s.now().UTC(),
		})
		return err
	})
	if err != nil {
		return nil, rbac.Classify("change role", err, domain.ErrMembershipNotFound, domain.ErrLastOwner)
	}
	s.audit.LogEvent(ctx, orgID, d.UserID, audit.ActionRoleChanged, audit.ResourceMembership,
		userID+":"+string(previous)+"->"+string(role))
	events.PublishAsync(s.events, ctx, events.New(events.RoleChanged, orgID, d.UserID, userID,
		map[string]string{"role": string(role), "previous_role": string(previous)}))
	return updated, nil
}

// Remove deletes userID's membership. Members may always remove themselves; removing the only owner
// yields domain.ErrLastOwner.
func (s *Service) Remove(ctx context.Context, caller *identitydomain.Caller, orgID, userID string) error {
	d, err := s.access.RequireOrgAccess(ctx, caller, orgID, false)
	if err != nil {
		return err
	}
	target, err := s.target(ctx, s.store.Repos(), orgID, userID)
	if err != nil {
		return err
	}
	if err := s.enforce(ctx, engine.OpMemberRemove, d, target, ""); err != nil {
		return err
	}
	removed := target.Role
	err = s.store.WithTx(ctx, func(r store.Repos) error {
		current, err := s.target(ctx, r, orgID, userID)
		if err != nil {
			return err
		}
		if err := s.enforce(ctx, engine.OpMemberRemove, d, current, ""); err != nil {
			return err
		}
		removed = current.Role
		if current.Role == domain.RoleOwner {
			if err := s.keepAnOwner(ctx, r, orgID); err != nil {
				return err
			}
		}
		deleted, err := r.Memberships.DeleteByUserAndOrg(ctx, userID, orgID)
		if err != nil {
			return err
		}
		if !deleted {
			return domain.ErrMembershipNotFound
		}
		return nil
	})
	if err != nil {
		return rbac.Classify("remove member", err, domain.ErrMembershipNotFound, domain.ErrLastOwner)
	}
	s.audit.LogEvent(ctx, orgID, d.UserID, audit.ActionMemberRemoved, audit.ResourceMembership, userID)
	events.PublishAsync(s.events, ctx, events.New(events.MemberRemoved, orgID, d.UserID, userID,
		map[string]string{"role": string(removed)}))
	return nil
}

// enforce runs the operation policy with the actor's decision and the target's role as read by the caller.
func (s *Service) enforce(ctx context.Context, op engine.Operation, d *rbac.Decision, target *domain.Membership, newRole domain.Role) error {
	return engine.Enforce(ctx, s.policy, engine.Input{
		Operation: op,
		Actor:     engine.Principal{UserID: d.UserID, Role: d.Role},
		Target:    &engine.Principal{UserID: target.UserID, Role: target.Role},
		NewRole:   newRole,
	})
}

func (s *Service) target(ctx context.Context, r store.Repos, orgID, userID string) (*domain.Membership, error) {
	m, err := r.Memberships.GetMembershipByUserAndOrg(ctx, userID, orgID)
	if err != nil {
		return nil, rbac.StoreUnavailable("get membership", err)
	}
	if m == nil {
		return nil, domain.ErrMembershipNotFound
	}
	return m, nil
}

// keepAnOwner fails unless another owner remains. Inside the transaction the owner rows stay locked,
// so two racing demotions cannot both pass.
func (s *Service) keepAnOwner(ctx context.Context, r store.Repos, orgID string) error {
	n, err := r.Memberships.CountOwnersByOrg(ctx, orgID)
	if err != nil {
		return rbac.StoreUnavailable("count owners", err)
	}
	if n <= 1 {
		return domain.ErrLastOwner
	}
	return nil
}
