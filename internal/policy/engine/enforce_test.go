package engine

import (
	"context"
	"errors"
	"testing"

	"dsodesk/internal/platform/rbac"
)

type stubAuthorizer struct {
	allow bool
	err   error
}

func (s stubAuthorizer) Authorize(context.Context, Input) (bool, error) { return s.allow, s.err }

func TestEnforce(t *testing.T) {
	in := Input{Operation: OpDSOCreate, Actor: actor(member)}
	if err := Enforce(context.Background(), nil, in); err != nil {
		t.Errorf("nil authorizer: %v", err)
	}
	if err := Enforce(context.Background(), stubAuthorizer{allow: true}, in); err != nil {
		t.Errorf("allow: %v", err)
	}
	err := Enforce(context.Background(), stubAuthorizer{}, in)
	if rbac.ReasonOf(err) != rbac.ReasonInsufficientRole {
		t.Errorf("deny = %v, want insufficient_role", err)
	}
	boom := errors.New("boom")
	err = Enforce(context.Background(), stubAuthorizer{err: boom}, in)
	if !errors.Is(err, boom) || rbac.ReasonOf(err) != "" {
		t.Errorf("evaluation failure = %v, want wrapped cause and no deny", err)
	}
}

func TestEnforce_DefaultPolicy(t *testing.T) {
	a := newTestAuthorizer(t)
	err := Enforce(context.Background(), a, Input{Operation: OpInvitationIssue, Actor: actor(admin), NewRole: owner})
	if rbac.ReasonOf(err) != rbac.ReasonInsufficientRole {
		t.Errorf("admin inviting an owner = %v, want insufficient_role", err)
	}
}
