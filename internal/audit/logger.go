package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dsodesk/internal/audit/domain"
	auditrepo "dsodesk/internal/audit/repository"
	"dsodesk/internal/logger"
)

// SentinelOrgID is the org_id used for audit events that have no org.
const SentinelOrgID = "_system"

// Actions recorded by the services.
const (
	ActionOrgCreated         = "org_created"
	ActionOrgRenamed         = "org_renamed"
	ActionMemberAdded        = "member_added"
	ActionRoleChanged        = "role_changed"
	ActionMemberRemoved      = "member_removed"
	ActionInvitationIssued   = "invitation_issued"
	ActionInvitationRedeemed = "invitation_redeemed"
	ActionDSOCreated         = "dso_created"
)

// Resources the actions apply to.
const (
	ResourceOrganization = "organization"
	ResourceMembership   = "membership"
	ResourceInvitation   = "invitation"
	ResourceDSO          = "dso"
)

// IPExtractor returns the client IP from the request context.
type IPExtractor func(context.Context) string

// AuditLogger writes a single audit event with explicit action/resource.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, orgID, userID, action, resource, metadata string)
}

// Logger implements AuditLogger using the audit repository and an optional IP extractor.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
	now         func() time.Time
}

// NewLogger returns an AuditLogger that persists to repo and uses ipExtractor for client IP.
// ipExtractor may be nil; then IP is recorded as "unknown".
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor) *Logger {
	return &Logger{repo: repo, ipExtractor: ipExtractor, now: time.Now}
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, orgID, userID, action, resource, metadata string) {
	if l == nil || l.repo == nil {
		return
	}
	ip := "unknown"
	if l.ipExtractor != nil {
		if v := l.ipExtractor(ctx); v != "" {
			ip = v
		}
	}
	if orgID == "" {
		orgID = SentinelOrgID
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		OrgID:     orgID,
		UserID:    userID,
		Action:    action,
		Resource:  resource,
		IP:        ip,
		Metadata:  metadata,
		CreatedAt: l.now().UTC(),
	}
	// The change being recorded has already committed; a canceled request must not drop the entry.
	if err := l.repo.Create(context.WithoutCancel(ctx), entry); err != nil {
		logger.FromContext(ctx).Warn("audit: failed to log event",
			zap.String("action", action), zap.String("resource", resource), zap.Error(err))
	}
}

// NopLogger discards every event.
type NopLogger struct{}

func (NopLogger) LogEvent(context.Context, string, string, string, string, string) {}
