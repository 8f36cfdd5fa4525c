package rbac

import (
	"context"

	identitydomain "dsodesk/internal/identity/domain"
)

// RequireOrgAdmin ensures the caller is owner or admin of orgID.
func (e *Evaluator) RequireOrgAdmin(ctx context.Context, caller *identitydomain.Caller, orgID string) (*Decision, error) {
	return e.RequireOrgAccess(ctx, caller, orgID, true)
}
