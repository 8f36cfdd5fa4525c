package engine

import (
	"context"
	"fmt"

	"dsodesk/internal/platform/rbac"
)

// Enforce runs the operation policy and turns a deny into rbac.ReasonInsufficientRole.
// A nil Authorizer allows everything that already passed the org access check.
func Enforce(ctx context.Context, a Authorizer, in Input) error {
	if a == nil {
		return nil
	}
	ok, err := a.Authorize(ctx, in)
	if err != nil {
		return fmt.Errorf("%s: %w", in.Operation, err)
	}
	if !ok {
		return rbac.Deny(rbac.ReasonInsufficientRole, "operation "+string(in.Operation)+" not permitted for role "+string(in.Actor.Role))
	}
	return nil
}
