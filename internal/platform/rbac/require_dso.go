package rbac

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	identitydomain "dsodesk/internal/identity/domain"
)

// RequireDsoAccess resolves the DSO's owning organization and applies RequireOrgAccess (no elevation) to it.
// An unknown DSO is ReasonResourceNotFound. The returned Decision carries the owning org id.
func (e *Evaluator) RequireDsoAccess(ctx context.Context, caller *identitydomain.Caller, dsoID string) (*Decision, error) {
	ctx, span := e.tracer.Start(ctx, "rbac.RequireDsoAccess", trace.WithAttributes(
		attribute.String("dso.id", dsoID),
		attribute.String("user.id", callerID(caller)),
	))
	defer span.End()

	d, err := e.requireDsoAccess(ctx, caller, dsoID)
	e.record(ctx, span, "dso", err)
	return d, err
}

func (e *Evaluator) requireDsoAccess(ctx context.Context, caller *identitydomain.Caller, dsoID string) (*Decision, error) {
	if !caller.Authenticated() {
		return nil, Deny(ReasonUnauthenticated, "caller identity required")
	}
	if dsoID == "" {
		return nil, Deny(ReasonResourceNotFound, "dso not found")
	}
	orgID, err := e.dsos.GetOwningOrg(ctx, dsoID)
	if err != nil {
		return nil, StoreUnavailable("resolve dso owner", err)
	}
	if orgID == "" {
		return nil, Deny(ReasonResourceNotFound, "dso not found")
	}
	return e.requireOrgAccess(ctx, caller, orgID, false)
}
