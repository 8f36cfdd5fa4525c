package service

import (
	"context"
	"testing"

	"dsodesk/internal/audit"
	dsoservice "dsodesk/internal/dso/service"
	membershipdomain "dsodesk/internal/membership/domain"
	orgservice "dsodesk/internal/organization/service"
	"dsodesk/internal/platform/rbac"
	"dsodesk/internal/policy/engine"
	"dsodesk/internal/security"
	"dsodesk/internal/store"
)

// Owner creates "Acme Dental, LLC", registers a DSO and invites Bob; Bob redeems and gets member access only.
func TestAcmeDentalOnboarding(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	repos := st.Repos()
	evaluator := rbac.NewEvaluator(repos.Memberships, repos.DSOs)
	policy, err := engine.NewOPAAuthorizer(ctx, "")
	if err != nil {
		t.Fatalf("NewOPAAuthorizer: %v", err)
	}
	auditLogger := audit.NewLogger(repos.AuditLogs, nil)
	orgs := orgservice.NewService(st, evaluator, policy, auditLogger, nil)
	dsos := dsoservice.NewService(st, evaluator, policy, auditLogger, nil)
	invitations := NewService(st, evaluator, policy, security.NewInvitationTokens("s3cret"), auditLogger, nil, Config{})

	alice := caller("alice", "alice@acme.example")
	bob := caller("bob", "bob@acme.example")

	created, err := orgs.Create(ctx, alice, "Acme Dental, LLC")
	if err != nil {
		t.Fatalf("Create org: %v", err)
	}
	if created.Org.Slug != "acme-dental-llc" {
		t.Fatalf("slug = %q, want acme-dental-llc", created.Org.Slug)
	}
	orgID := created.Org.ID

	north, err := dsos.Create(ctx, alice, orgID, "Acme North")
	if err != nil {
		t.Fatalf("Create dso: %v", err)
	}

	if _, err := evaluator.RequireOrgAccess(ctx, bob, orgID, false); rbac.ReasonOf(err) != rbac.ReasonNotAMember {
		t.Fatalf("bob before redeeming = %v, want not_a_member", err)
	}
	if _, err := evaluator.RequireDsoAccess(ctx, bob, north.ID); rbac.ReasonOf(err) != rbac.ReasonNotAMember {
		t.Fatalf("bob dso access before redeeming = %v, want not_a_member", err)
	}

	issued, err := invitations.Issue(ctx, alice, orgID, "Bob@Acme.example")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	m, err := invitations.Redeem(ctx, issued.Token, bob)
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if m.Role != membershipdomain.RoleMember {
		t.Fatalf("role = %s, want member", m.Role)
	}
	again, err := invitations.Redeem(ctx, issued.Token, bob)
	if err != nil || again.ID != m.ID {
		t.Fatalf("replay = %+v, %v", again, err)
	}

	d, err := evaluator.RequireOrgAccess(ctx, bob, orgID, false)
	if err != nil || d.Role != membershipdomain.RoleMember {
		t.Fatalf("bob member access = %+v, %v", d, err)
	}
	if _, err := evaluator.RequireOrgAccess(ctx, bob, orgID, true); rbac.ReasonOf(err) != rbac.ReasonInsufficientRole {
		t.Errorf("bob elevated access = %v, want insufficient_role", err)
	}
	got, err := dsos.Get(ctx, bob, north.ID)
	if err != nil || got.DSO.OrgID != orgID || got.Role != membershipdomain.RoleMember {
		t.Errorf("bob dso = %+v, %v", got, err)
	}
	if _, err := orgs.Rename(ctx, bob, orgID, "Bob's Dental"); rbac.ReasonOf(err) != rbac.ReasonInsufficientRole {
		t.Errorf("bob rename = %v, want insufficient_role", err)
	}

	list, err := orgs.ListForCaller(ctx, bob)
	if err != nil || len(list) != 1 || list[0].Org.ID != orgID {
		t.Errorf("bob orgs = %+v, %v", list, err)
	}
	members, _ := repos.Memberships.ListMembershipsByOrg(ctx, orgID)
	if len(members) != 2 {
		t.Errorf("org has %d members, want 2", len(members))
	}
}
