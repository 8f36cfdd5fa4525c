package rbac

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	identitydomain "dsodesk/internal/identity/domain"
	"dsodesk/internal/membership/domain"
)

// RequireOrgAccess allows the caller if they hold a membership in orgID, and, when requireElevated is set,
// that membership is admin or owner. On allow it returns the caller's role.
//
// Denies: ReasonUnauthenticated (no caller), ReasonNotAMember (no membership), ReasonInsufficientRole.
// A failed membership lookup returns ErrStoreUnavailable.
func (e *Evaluator) RequireOrgAccess(ctx context.Context, caller *identitydomain.Caller, orgID string, requireElevated bool) (*Decision, error) {
	ctx, span := e.tracer.Start(ctx, "rbac.RequireOrgAccess", trace.WithAttributes(
		attribute.String("org.id", orgID),
		attribute.String("user.id", callerID(caller)),
		attribute.Bool("authz.elevated", requireElevated),
	))
	defer span.End()

	d, err := e.requireOrgAccess(ctx, caller, orgID, requireElevated)
	e.record(ctx, span, "org", err)
	return d, err
}

func (e *Evaluator) requireOrgAccess(ctx context.Context, caller *identitydomain.Caller, orgID string, requireElevated bool) (*Decision, error) {
	if !caller.Authenticated() {
		return nil, Deny(ReasonUnauthenticated, "caller identity required")
	}
	if orgID == "" {
		return nil, Deny(ReasonNotAMember, "not a member of this organization")
	}
	m, err := e.memberships.GetMembershipByUserAndOrg(ctx, caller.UserID, orgID)
	if err != nil {
		return nil, StoreUnavailable("resolve membership", err)
	}
	if m == nil {
		return nil, Deny(ReasonNotAMember, "not a member of this organization")
	}
	required := domain.RoleMember
	if requireElevated {
		required = domain.RoleAdmin
	}
	if !domain.Satisfies(m.Role, required) {
		return nil, Deny(ReasonInsufficientRole, "organization "+string(required)+" role required")
	}
	return &Decision{UserID: caller.UserID, OrgID: orgID, Role: m.Role}, nil
}

// RequireOrgMember is RequireOrgAccess without elevation.
func (e *Evaluator) RequireOrgMember(ctx context.Context, caller *identitydomain.Caller, orgID string) (*Decision, error) {
	return e.RequireOrgAccess(ctx, caller, orgID, false)
}
