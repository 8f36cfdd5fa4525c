// Package httpapi serves the /v1 JSON API over chi.
package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	dsoservice "dsodesk/internal/dso/service"
	invitationservice "dsodesk/internal/invitation/service"
	membershipservice "dsodesk/internal/membership/service"
	orgservice "dsodesk/internal/organization/service"
	"dsodesk/internal/server/middleware"
)

// Services are the domain services behind the routes.
type Services struct {
	Organizations *orgservice.Service
	Memberships   *membershipservice.Service
	DSOs          *dsoservice.Service
	Invitations   *invitationservice.Service
}

// Readiness reports whether the process can serve traffic (health handler).
type Readiness interface {
	Ready(ctx context.Context) error
}

// Options tune error presentation.
type Options struct {
	// HideTenantExistence answers 404 instead of 403 for organizations the caller cannot access.
	HideTenantExistence bool
}

// API holds the handlers.
type API struct {
	svc   Services
	ready Readiness
	log   *zap.Logger
	opts  Options
}

// NewRouter returns the instrumented HTTP handler for the whole API.
func NewRouter(svc Services, verifier middleware.Verifier, ready Readiness, log *zap.Logger, opts Options) http.Handler {
	a := &API{svc: svc, ready: ready, log: log, opts: opts}

	r := chi.NewRouter()
	r.Use(
		chimiddleware.RequestID,
		middleware.ClientIP,
		chimiddleware.Recoverer,
		middleware.Authenticate(verifier),
		middleware.RequestLogger(log, "/healthz"),
	)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not_found", Message: "no such route"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method_not_allowed"})
	})

	r.Get("/healthz", a.health)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/organizations", func(r chi.Router) {
			r.Post("/", a.createOrganization)
			r.Get("/", a.listOrganizations)
			r.Route("/{orgID}", func(r chi.Router) {
				r.Get("/", a.getOrganization)
				r.Patch("/", a.renameOrganization)
				r.Get("/audit-logs", a.listAuditLogs)

				r.Get("/members", a.listMembers)
				r.Post("/members", a.addMember)
				r.Put("/members/{userID}", a.changeRole)
				r.Delete("/members/{userID}", a.removeMember)

				r.Post("/invitations", a.issueInvitation)
				r.Get("/invitations", a.listInvitations)

				r.Post("/dsos", a.createDSO)
				r.Get("/dsos", a.listDSOs)
			})
		})
		r.Post("/invitations/redeem", a.redeemInvitation)
		r.Get("/dsos/{dsoID}", a.getDSO)
	})

	return otelhttp.NewHandler(r, "dsodesk.http",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	if a.ready != nil {
		if err := a.ready.Ready(r.Context()); err != nil {
			a.log.Warn("readiness check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
