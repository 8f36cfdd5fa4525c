package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"dsodesk/internal/audit"
	identitydomain "dsodesk/internal/identity/domain"
	"dsodesk/internal/invitation/domain"
	membershipdomain "dsodesk/internal/membership/domain"
	orgdomain "dsodesk/internal/organization/domain"
	"dsodesk/internal/platform/rbac"
	"dsodesk/internal/policy/engine"
	"dsodesk/internal/security"
	"dsodesk/internal/store"
)

const orgID = "org-acme"

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store *store.Memory
	clock *clock
	svc   *Service
}

const ttl = 72 * time.Hour

// newFixture seeds org-acme with owner "olivia", admin "adam" and member "mia".
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemory()
	clk := &clock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	if err := st.Repos().Organizations.CreateOrganization(ctx, &orgdomain.Org{
		ID: orgID, Name: "Acme Dental, LLC", Slug: "acme-dental-llc", Status: orgdomain.OrgStatusActive,
		CreatedAt: clk.Now(), UpdatedAt: clk.Now(),
	}); err != nil {
		t.Fatalf("CreateOrganization: %v", err)
	}
	f := &fixture{store: st, clock: clk}
	f.seed(t, "olivia", membershipdomain.RoleOwner)
	f.seed(t, "adam", membershipdomain.RoleAdmin)
	f.seed(t, "mia", membershipdomain.RoleMember)
	f.svc = f.newService(t, st)
	return f
}

func (f *fixture) newService(t *testing.T, st store.Store) *Service {
	t.Helper()
	policy, err := engine.NewOPAAuthorizer(context.Background(), "")
	if err != nil {
		t.Fatalf("NewOPAAuthorizer: %v", err)
	}
	repos := f.store.Repos()
	return NewService(st, rbac.NewEvaluator(repos.Memberships, repos.DSOs), policy,
		security.NewInvitationTokens("test-secret"), audit.NewLogger(repos.AuditLogs, nil), nil,
		Config{TTL: ttl, Now: f.clock.Now})
}

func (f *fixture) seed(t *testing.T, userID string, role membershipdomain.Role) {
	t.Helper()
	now := f.clock.Now()
	if err := f.store.Repos().Memberships.CreateMembership(context.Background(), &membershipdomain.Membership{
		ID: uuid.New().String(), OrgID: orgID, UserID: userID, Role: role, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("CreateMembership: %v", err)
	}
}

func (f *fixture) issue(t *testing.T, email string) string {
	t.Helper()
	issued, err := f.svc.Issue(context.Background(), caller("adam", ""), orgID, email)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return issued.Token
}

func (f *fixture) memberships(t *testing.T, userID string) []*membershipdomain.Membership {
	t.Helper()
	ms, err := f.store.Repos().Memberships.ListMembershipsByUser(context.Background(), userID)
	if err != nil {
		t.Fatalf("ListMembershipsByUser: %v", err)
	}
	return ms
}

func caller(id, email string) *identitydomain.Caller {
	return &identitydomain.Caller{UserID: id, Email: email}
}

func TestIssue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	issued, err := f.svc.Issue(ctx, caller("adam", ""), orgID, " Bob@Example.com ")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	inv := issued.Invitation
	if issued.Token == "" || inv.TokenHash == "" || inv.TokenHash == issued.Token {
		t.Fatalf("token %q / hash %q: the raw token must not be stored", issued.Token, inv.TokenHash)
	}
	if inv.Email != "bob@example.com" || inv.InvitedBy != "adam" {
		t.Errorf("invitation = %+v", inv)
	}
	if !inv.ExpiresAt.Equal(f.clock.Now().Add(ttl)) {
		t.Errorf("ExpiresAt = %v, want issue time + ttl", inv.ExpiresAt)
	}
	if inv.State(f.clock.Now()) != domain.StateIssued {
		t.Errorf("state = %s", inv.State(f.clock.Now()))
	}
	if len(f.memberships(t, "bob")) != 0 {
		t.Error("issuing must not create a membership")
	}
	pending, err := f.svc.ListPending(ctx, caller("olivia", ""), orgID)
	if err != nil || len(pending) != 1 || pending[0].ID != inv.ID {
		t.Errorf("ListPending = %+v, %v", pending, err)
	}
}

func TestIssue_Denied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	testCases := []struct {
		name   string
		caller *identitydomain.Caller
		email  string
		reason rbac.Reason
	}{
		{"member", caller("mia", ""), "bob@example.com", rbac.ReasonInsufficientRole},
		{"outsider", caller("zed", ""), "bob@example.com", rbac.ReasonNotAMember},
		{"anonymous", nil, "bob@example.com", rbac.ReasonUnauthenticated},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Issue(ctx, tc.caller, orgID, tc.email)
			if rbac.ReasonOf(err) != tc.reason {
				t.Errorf("Issue = %v, want %s", err, tc.reason)
			}
		})
	}
	if _, err := f.svc.Issue(ctx, caller("adam", ""), orgID, "not-an-email"); err != domain.ErrInvalidEmail {
		t.Errorf("bad email = %v", err)
	}
}

func TestRedeem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	token := f.issue(t, "bob@example.com")

	m, err := f.svc.Redeem(ctx, token, caller("bob", "BOB@example.com"))
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if m.OrgID != orgID || m.UserID != "bob" || m.Role != membershipdomain.RoleMember {
		t.Errorf("membership = %+v", m)
	}
	hash, _ := security.NewInvitationTokens("test-secret").Hash(token)
	inv, _ := f.store.Repos().Invitations.GetByTokenHash(ctx, hash)
	if inv.ConsumedAt == nil || inv.ConsumedBy != "bob" {
		t.Errorf("invitation not consumed: %+v", inv)
	}
	entries, _ := f.store.Repos().AuditLogs.ListByOrg(ctx, orgID, 1, 0)
	if len(entries) != 1 || entries[0].Action != audit.ActionInvitationRedeemed || entries[0].UserID != "bob" {
		t.Errorf("audit = %+v", entries)
	}
}

func TestRedeem_GrantsMemberOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, issuer := range []string{"adam", "olivia"} {
		t.Run(issuer, func(t *testing.T) {
			email := "eve-" + issuer + "@example.com"
			issued, err := f.svc.Issue(ctx, caller(issuer, ""), orgID, email)
			if err != nil {
				t.Fatalf("Issue: %v", err)
			}
			eve := caller("eve-"+issuer, email)
			m, err := f.svc.Redeem(ctx, issued.Token, eve)
			if err != nil {
				t.Fatalf("Redeem: %v", err)
			}
			if m.Role != membershipdomain.RoleMember {
				t.Errorf("redeemed role = %s, want member", m.Role)
			}
			evaluator := rbac.NewEvaluator(f.store.Repos().Memberships, f.store.Repos().DSOs)
			if _, err := evaluator.RequireOrgAccess(ctx, eve, orgID, true); rbac.ReasonOf(err) != rbac.ReasonInsufficientRole {
				t.Errorf("elevated access after redeeming = %v, want insufficient_role", err)
			}
		})
	}
}

func TestRedeem_Twice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	token := f.issue(t, "bob@example.com")
	bob := caller("bob", "bob@example.com")

	first, err := f.svc.Redeem(ctx, token, bob)
	if err != nil {
		t.Fatalf("first Redeem: %v", err)
	}
	f.clock.Advance(ttl + time.Hour)
	second, err := f.svc.Redeem(ctx, token, bob)
	if err != nil {
		t.Fatalf("second Redeem (after expiry): %v", err)
	}
	if first.ID != second.ID || first.Role != second.Role {
		t.Errorf("replay returned %+v, want %+v", second, first)
	}
	if n := len(f.memberships(t, "bob")); n != 1 {
		t.Errorf("bob has %d memberships, want 1", n)
	}
}

func TestRedeem_Concurrent(t *testing.T) {
	f := newFixture(t)
	token := f.issue(t, "bob@example.com")
	bob := caller("bob", "bob@example.com")

	const n = 16
	var wg sync.WaitGroup
	results := make([]*membershipdomain.Membership, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.Redeem(context.Background(), token, bob)
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("Redeem[%d]: %v", i, errs[i])
		}
		if results[i].ID != results[0].ID {
			t.Errorf("Redeem[%d] = %s, want %s", i, results[i].ID, results[0].ID)
		}
	}
	if got := len(f.memberships(t, "bob")); got != 1 {
		t.Errorf("bob has %d memberships, want 1", got)
	}
}

func TestRedeem_Denied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	token := f.issue(t, "bob@example.com")

	testCases := []struct {
		name   string
		token  string
		caller *identitydomain.Caller
		reason rbac.Reason
	}{
		{"anonymous", token, nil, rbac.ReasonUnauthenticated},
		{"malformed", "%%%", caller("bob", "bob@example.com"), rbac.ReasonTokenInvalid},
		{"empty", "", caller("bob", "bob@example.com"), rbac.ReasonTokenInvalid},
		{"unknown", strings.Repeat("A", 43), caller("bob", "bob@example.com"), rbac.ReasonTokenInvalid},
		{"other email", token, caller("eve", "eve@example.com"), rbac.ReasonEmailMismatch},
		{"unverified email", token, caller("bob", ""), rbac.ReasonEmailMismatch},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Redeem(ctx, tc.token, tc.caller)
			if rbac.ReasonOf(err) != tc.reason {
				t.Errorf("Redeem = %v, want %s", err, tc.reason)
			}
		})
	}
	if len(f.memberships(t, "bob")) != 0 || len(f.memberships(t, "eve")) != 0 {
		t.Error("denied redemptions must not create memberships")
	}
}

func TestRedeem_Expiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bob := caller("bob", "bob@example.com")

	expired := f.issue(t, "bob@example.com")
	f.clock.Advance(ttl + time.Nanosecond)
	if _, err := f.svc.Redeem(ctx, expired, bob); rbac.ReasonOf(err) != rbac.ReasonTokenExpired {
		t.Fatalf("expired Redeem = %v", err)
	}
	if len(f.memberships(t, "bob")) != 0 {
		t.Fatal("expired redemption created a membership")
	}

	atDeadline := f.issue(t, "bob@example.com")
	f.clock.Advance(ttl)
	if _, err := f.svc.Redeem(ctx, atDeadline, bob); err != nil {
		t.Errorf("Redeem exactly at expiry: %v", err)
	}
}

func TestRedeem_ConsumedByAnotherUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	token := f.issue(t, "shared@example.com")

	if _, err := f.svc.Redeem(ctx, token, caller("bob", "shared@example.com")); err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if _, err := f.svc.Redeem(ctx, token, caller("bob2", "shared@example.com")); rbac.ReasonOf(err) != rbac.ReasonTokenInvalid {
		t.Errorf("second user = %v, want token_invalid", err)
	}
	if len(f.memberships(t, "bob2")) != 0 {
		t.Error("second user must not get a membership")
	}
}

func TestRedeem_ExistingMemberKeepsRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	token := f.issue(t, "adam@example.com")

	m, err := f.svc.Redeem(ctx, token, caller("adam", "adam@example.com"))
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if m.Role != membershipdomain.RoleAdmin {
		t.Errorf("role = %s, redemption must not downgrade an admin", m.Role)
	}
}

func TestRedeem_AfterRemovalDoesNotRegrant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	token := f.issue(t, "bob@example.com")
	bob := caller("bob", "bob@example.com")
	if _, err := f.svc.Redeem(ctx, token, bob); err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if _, err := f.store.Repos().Memberships.DeleteByUserAndOrg(ctx, "bob", orgID); err != nil {
		t.Fatalf("DeleteByUserAndOrg: %v", err)
	}
	if _, err := f.svc.Redeem(ctx, token, bob); rbac.ReasonOf(err) != rbac.ReasonTokenInvalid {
		t.Errorf("replay after removal = %v, want token_invalid", err)
	}
	if len(f.memberships(t, "bob")) != 0 {
		t.Error("replay must not re-create the membership")
	}
}

// cancelingStore cancels the request context after the transaction body ran, before commit.
type cancelingStore struct {
	store.Store
	cancel context.CancelFunc
}

func (s cancelingStore) WithTx(ctx context.Context, fn func(store.Repos) error) error {
	return s.Store.WithTx(ctx, func(r store.Repos) error {
		err := fn(r)
		s.cancel()
		return err
	})
}

func TestRedeem_CanceledBeforeCommitLeavesNoState(t *testing.T) {
	f := newFixture(t)
	token := f.issue(t, "bob@example.com")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc := f.newService(t, cancelingStore{Store: f.store, cancel: cancel})

	_, err := svc.Redeem(ctx, token, caller("bob", "bob@example.com"))
	if !rbac.IsRetryable(err) {
		t.Fatalf("canceled Redeem = %v, want store unavailable", err)
	}
	if len(f.memberships(t, "bob")) != 0 {
		t.Error("rolled back redemption left a membership")
	}
	if _, err := f.svc.Redeem(context.Background(), token, caller("bob", "bob@example.com")); err != nil {
		t.Errorf("retry after rollback: %v", err)
	}
}

func TestRedeem_RecordsOutcomes(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	defer otel.SetMeterProvider(prev)

	f := newFixture(t)
	ctx := context.Background()
	token := f.issue(t, "bob@example.com")
	bob := caller("bob", "bob@example.com")
	_, _ = f.svc.Redeem(ctx, token, bob)
	_, _ = f.svc.Redeem(ctx, token, bob)
	_, _ = f.svc.Redeem(ctx, "nope", bob)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	counts := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "dsodesk.invitation.redemptions" {
				continue
			}
			for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
				outcome, _ := dp.Attributes.Value(attribute.Key("outcome"))
				counts[outcome.AsString()] += dp.Value
			}
		}
	}
	want := map[string]int64{"redeemed": 1, "replayed": 1, "token_invalid": 1}
	for k, v := range want {
		if counts[k] != v {
			t.Errorf("count[%s] = %d, want %d (all: %v)", k, counts[k], v, counts)
		}
	}
}
