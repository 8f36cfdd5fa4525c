package engine

import (
	"context"
	"errors"

	membershipdomain "dsodesk/internal/membership/domain"
)

// Operation names a mutation guarded by the operation policy.
type Operation string

const (
	OpOrgRename        Operation = "org.rename"
	OpMemberAdd        Operation = "member.add"
	OpMemberRoleChange Operation = "member.role_change"
	OpMemberRemove     Operation = "member.remove"
	OpInvitationIssue  Operation = "invitation.issue"
	OpDSOCreate        Operation = "dso.create"
	OpAuditRead        Operation = "audit.read"
)

// Principal is one side of an operation: who acts, or whom it affects.
type Principal struct {
	UserID string
	Role   membershipdomain.Role
}

// Input is what a policy decides on. Target and NewRole are set only for operations that have them.
type Input struct {
	Operation Operation
	Actor     Principal
	Target    *Principal
	NewRole   membershipdomain.Role
}

// ErrPolicyEvaluation wraps failures to evaluate (not denials).
var ErrPolicyEvaluation = errors.New("policy evaluation failed")

// Authorizer decides whether an already org-authorized actor may perform an operation.
type Authorizer interface {
	Authorize(ctx context.Context, in Input) (bool, error)
}

func (in Input) toMap() map[string]any {
	m := map[string]any{
		"operation": string(in.Operation),
		"actor": map[string]any{
			"user_id": in.Actor.UserID,
			"role":    string(in.Actor.Role),
		},
	}
	if in.Target != nil {
		m["target"] = map[string]any{
			"user_id": in.Target.UserID,
			"role":    string(in.Target.Role),
		}
	}
	if in.NewRole != "" {
		m["new_role"] = string(in.NewRole)
	}
	return m
}
