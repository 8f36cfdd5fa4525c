// Package service issues invitations and redeems them into memberships exactly once.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"dsodesk/internal/audit"
	"dsodesk/internal/events"
	identitydomain "dsodesk/internal/identity/domain"
	"dsodesk/internal/invitation/domain"
	membershipdomain "dsodesk/internal/membership/domain"
	"dsodesk/internal/platform/rbac"
	"dsodesk/internal/policy/engine"
	"dsodesk/internal/security"
	"dsodesk/internal/store"
)

const (
	instrumentationName = "dsodesk/internal/invitation/service"
	// DefaultTTL is how long an invitation stays redeemable when no TTL is configured.
	DefaultTTL = 7 * 24 * time.Hour
)

// Redemption outcomes recorded on dsodesk.invitation.redemptions besides the deny reasons.
const (
	outcomeRedeemed = "redeemed"
	outcomeReplayed = "replayed"
	outcomeError    = "error"
)

// errLostRace aborts a redemption transaction whose invitation was consumed between lock and update.
var errLostRace = errors.New("invitation consumed concurrently")

// Access is the part of the rbac evaluator the service needs.
type Access interface {
	RequireOrgAccess(ctx context.Context, caller *identitydomain.Caller, orgID string, requireElevated bool) (*rbac.Decision, error)
}

// Tokens generates invitation tokens and derives their stored digests.
type Tokens interface {
	Generate() (raw, hash string, err error)
	Hash(raw string) (string, error)
}

// Config tunes the service. Zero values select the defaults.
type Config struct {
	TTL time.Duration
	Now func() time.Time
}

// Service owns the invitation lifecycle: Issued, then Redeemed or Expired.
type Service struct {
	store       store.Store
	access      Access
	policy      engine.Authorizer
	tokens      Tokens
	audit       audit.AuditLogger
	events      events.Publisher
	ttl         time.Duration
	now         func() time.Time
	tracer      trace.Tracer
	redemptions metric.Int64Counter
}

// NewService returns a Service. policy, auditLogger and publisher may be nil.
func NewService(st store.Store, access Access, policy engine.Authorizer, tokens Tokens, auditLogger audit.AuditLogger, publisher events.Publisher, cfg Config) *Service {
	if auditLogger == nil {
		auditLogger = audit.NopLogger{}
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	s := &Service{
		store:  st,
		access: access,
		policy: policy,
		tokens: tokens,
		audit:  auditLogger,
		events: publisher,
		ttl:    cfg.TTL,
		now:    cfg.Now,
		tracer: otel.Tracer(instrumentationName),
	}
	counter, err := otel.Meter(instrumentationName).Int64Counter("dsodesk.invitation.redemptions",
		metric.WithDescription("Invitation redemption attempts by outcome"))
	if err == nil {
		s.redemptions = counter
	}
	return s
}

// Issued is the result of Issue. Token is the raw secret; it is never stored and cannot be recovered later.
type Issued struct {
	Invitation *domain.Invitation `json:"invitation"`
	Token      string             `json:"token"`
}

// Issue invites email into orgID. The caller needs elevated access and the invitation.issue policy.
// No membership is created until the invitation is redeemed, and redemption always grants member.
func (s *Service) Issue(ctx context.Context, caller *identitydomain.Caller, orgID, email string) (*Issued, error) {
	d, err := s.access.RequireOrgAccess(ctx, caller, orgID, true)
	if err != nil {
		return nil, err
	}
	email, err = domain.ParseEmail(email)
	if err != nil {
		return nil, err
	}
	if err := engine.Enforce(ctx, s.policy, engine.Input{
		Operation: engine.OpInvitationIssue,
		Actor:     engine.Principal{UserID: d.UserID, Role: d.Role},
		NewRole:   membershipdomain.RoleMember,
	}); err != nil {
		return nil, err
	}
	raw, hash, err := s.tokens.Generate()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	inv := &domain.Invitation{
		ID:        uuid.New().String(),
		OrgID:     orgID,
		Email:     email,
		TokenHash: hash,
		InvitedBy: d.UserID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.store.Repos().Invitations.Create(ctx, inv); err != nil {
		return nil, rbac.StoreUnavailable("create invitation", err)
	}
	s.audit.LogEvent(ctx, orgID, d.UserID, audit.ActionInvitationIssued, audit.ResourceInvitation, inv.ID)
	events.PublishAsync(s.events, ctx, events.New(events.InvitationIssued, orgID, d.UserID, inv.ID, nil))
	return &Issued{Invitation: inv, Token: raw}, nil
}

// ListPending returns the org's invitations that are neither redeemed nor expired.
func (s *Service) ListPending(ctx context.Context, caller *identitydomain.Caller, orgID string) ([]*domain.Invitation, error) {
	if _, err := s.access.RequireOrgAccess(ctx, caller, orgID, true); err != nil {
		return nil, err
	}
	out, err := s.store.Repos().Invitations.ListPendingByOrg(ctx, orgID, s.now().UTC())
	if err != nil {
		return nil, rbac.StoreUnavailable("list invitations", err)
	}
	return out, nil
}

// Redeem turns the invitation behind rawToken into a membership for the caller, at most once.
//
// A token that was already redeemed by the same caller returns their current membership unchanged, so
// retries and concurrent duplicates are safe. Denies: ReasonUnauthenticated, ReasonTokenInvalid (unknown,
// malformed, or redeemed by someone else), ReasonTokenExpired, ReasonEmailMismatch. The membership and the
// consumption mark are written in one transaction; on any failure neither exists. The membership is
// created with role member; a caller who already belongs to the org keeps their current role.
func (s *Service) Redeem(ctx context.Context, rawToken string, caller *identitydomain.Caller) (m *membershipdomain.Membership, err error) {
	ctx, span := s.tracer.Start(ctx, "invitation.Redeem", trace.WithAttributes(
		attribute.String("user.id", callerID(caller)),
	))
	outcome := outcomeRedeemed
	defer func() {
		switch {
		case err == nil:
		case rbac.ReasonOf(err) != "":
			outcome = string(rbac.ReasonOf(err))
		default:
			outcome = outcomeError
			span.RecordError(err)
			span.SetStatus(codes.Error, "redeem failed")
		}
		span.SetAttributes(attribute.String("invitation.outcome", outcome))
		if s.redemptions != nil {
			s.redemptions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
		}
		span.End()
	}()

	if !caller.Authenticated() {
		return nil, rbac.Deny(rbac.ReasonUnauthenticated, "caller identity required")
	}
	hash, err := s.tokens.Hash(rawToken)
	if err != nil {
		return nil, rbac.Deny(rbac.ReasonTokenInvalid, "invitation token not recognized")
	}
	inv, err := s.store.Repos().Invitations.GetByTokenHash(ctx, hash)
	if err != nil {
		return nil, rbac.StoreUnavailable("get invitation", err)
	}
	now := s.now().UTC()
	if err := check(inv, caller, now); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("org.id", inv.OrgID), attribute.String("invitation.id", inv.ID))
	if inv.ConsumedAt != nil {
		outcome = outcomeReplayed
		return s.replay(ctx, inv, caller)
	}

	var (
		created  bool
		consumed *domain.Invitation
	)
	err = s.store.WithTx(ctx, func(r store.Repos) error {
		locked, err := r.Invitations.GetByTokenHashForUpdate(ctx, hash)
		if err != nil {
			return rbac.StoreUnavailable("lock invitation", err)
		}
		if err := check(locked, caller, now); err != nil {
			return err
		}
		if locked.ConsumedAt != nil {
			consumed = locked
			return nil
		}
		m, created, err = r.Memberships.EnsureMembership(ctx, &membershipdomain.Membership{
			ID:        uuid.New().String(),
			OrgID:     locked.OrgID,
			UserID:    caller.UserID,
			Role:      membershipdomain.RoleMember,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return rbac.StoreUnavailable("ensure membership", err)
		}
		ok, err := r.Invitations.MarkConsumed(ctx, locked.ID, caller.UserID, now)
		if err != nil {
			return rbac.StoreUnavailable("consume invitation", err)
		}
		if !ok {
			return errLostRace
		}
		return nil
	})
	switch {
	case errors.Is(err, errLostRace):
		consumed, err = s.reload(ctx, hash)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, rbac.Classify("redeem invitation", err)
	}
	if consumed != nil {
		outcome = outcomeReplayed
		return s.replay(ctx, consumed, caller)
	}

	s.audit.LogEvent(ctx, inv.OrgID, caller.UserID, audit.ActionInvitationRedeemed, audit.ResourceInvitation, inv.ID)
	attrs := map[string]string{"invitation_id": inv.ID, "role": string(m.Role)}
	if !created {
		attrs["existing_member"] = "true"
	}
	events.PublishAsync(s.events, ctx, events.New(events.InvitationRedeemed, inv.OrgID, caller.UserID, caller.UserID, attrs))
	return m, nil
}

// check applies the per-request gates in order: known token, not expired (unless already consumed),
// matching email.
func check(inv *domain.Invitation, caller *identitydomain.Caller, now time.Time) error {
	if inv == nil {
		return rbac.Deny(rbac.ReasonTokenInvalid, "invitation token not recognized")
	}
	if inv.State(now) == domain.StateExpired {
		return rbac.Deny(rbac.ReasonTokenExpired, "invitation expired")
	}
	if !inv.MatchesEmail(caller.Email) {
		return rbac.Deny(rbac.ReasonEmailMismatch, "invitation was issued to a different email")
	}
	return nil
}

// replay answers a redemption of an already consumed invitation.
func (s *Service) replay(ctx context.Context, inv *domain.Invitation, caller *identitydomain.Caller) (*membershipdomain.Membership, error) {
	if inv.ConsumedBy != caller.UserID {
		return nil, rbac.Deny(rbac.ReasonTokenInvalid, "invitation already used")
	}
	m, err := s.store.Repos().Memberships.GetMembershipByUserAndOrg(ctx, caller.UserID, inv.OrgID)
	if err != nil {
		return nil, rbac.StoreUnavailable("get membership", err)
	}
	if m == nil {
		// Redeemed earlier, membership since removed. The token does not grant access twice.
		return nil, rbac.Deny(rbac.ReasonTokenInvalid, "invitation already used")
	}
	return m, nil
}

func (s *Service) reload(ctx context.Context, hash string) (*domain.Invitation, error) {
	inv, err := s.store.Repos().Invitations.GetByTokenHash(ctx, hash)
	if err != nil {
		return nil, rbac.StoreUnavailable("get invitation", err)
	}
	if inv == nil || inv.ConsumedAt == nil {
		return nil, rbac.Deny(rbac.ReasonTokenInvalid, "invitation token not recognized")
	}
	return inv, nil
}

func callerID(c *identitydomain.Caller) string {
	if c == nil {
		return ""
	}
	return c.UserID
}

var _ Tokens = (*security.InvitationTokens)(nil)
