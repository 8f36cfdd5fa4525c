// Package rbac decides whether a caller may act on an organization or on a DSO owned by one.
// Evaluation is read-only and safe to run concurrently.
package rbac

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	identitydomain "dsodesk/internal/identity/domain"
	"dsodesk/internal/membership/domain"
)

const instrumentationName = "dsodesk/internal/platform/rbac"

// OrgMembershipGetter returns a user's membership in an org, or (nil, nil) if there is none.
type OrgMembershipGetter interface {
	GetMembershipByUserAndOrg(ctx context.Context, userID, orgID string) (*domain.Membership, error)
}

// DSOResolver returns the org owning a DSO, or "" if the DSO does not exist.
type DSOResolver interface {
	GetOwningOrg(ctx context.Context, dsoID string) (string, error)
}

// Decision is the result of an allowed evaluation.
type Decision struct {
	UserID string
	OrgID  string
	Role   domain.Role
}

// Evaluator renders access decisions from membership data.
type Evaluator struct {
	memberships OrgMembershipGetter
	dsos        DSOResolver
	tracer      trace.Tracer
	decisions   metric.Int64Counter
}

// NewEvaluator returns an Evaluator reading memberships and DSO ownership from the given sources.
// Spans and the dsodesk.authz.decisions counter go to the global OpenTelemetry providers.
func NewEvaluator(memberships OrgMembershipGetter, dsos DSOResolver) *Evaluator {
	e := &Evaluator{
		memberships: memberships,
		dsos:        dsos,
		tracer:      otel.Tracer(instrumentationName),
	}
	counter, err := otel.Meter(instrumentationName).Int64Counter("dsodesk.authz.decisions",
		metric.WithDescription("Authorization decisions by scope, outcome and reason"))
	if err == nil {
		e.decisions = counter
	}
	return e
}

func (e *Evaluator) record(ctx context.Context, span trace.Span, scope string, err error) {
	outcome, reason := "allow", ""
	switch {
	case err == nil:
	case IsRetryable(err):
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, "store unavailable")
	default:
		outcome = "deny"
		reason = string(ReasonOf(err))
	}
	span.SetAttributes(attribute.String("authz.outcome", outcome), attribute.String("authz.reason", reason))
	if e.decisions != nil {
		e.decisions.Add(ctx, 1, metric.WithAttributes(
			attribute.String("scope", scope),
			attribute.String("outcome", outcome),
			attribute.String("reason", reason),
		))
	}
}

func callerID(caller *identitydomain.Caller) string {
	if caller == nil {
		return ""
	}
	return caller.UserID
}
