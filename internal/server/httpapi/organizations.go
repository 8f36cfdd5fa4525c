package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"dsodesk/internal/server/middleware"
)

type nameRequest struct {
	Name string `json:"name"`
}

func (a *API) createOrganization(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := decode(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	out, err := a.svc.Organizations.Create(r.Context(), middleware.CallerFrom(r.Context()), req.Name)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (a *API) listOrganizations(w http.ResponseWriter, r *http.Request) {
	out, err := a.svc.Organizations.ListForCaller(r.Context(), middleware.CallerFrom(r.Context()))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"organizations": out})
}

func (a *API) getOrganization(w http.ResponseWriter, r *http.Request) {
	out, err := a.svc.Organizations.Get(r.Context(), middleware.CallerFrom(r.Context()), chi.URLParam(r, "orgID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) renameOrganization(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := decode(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	org, err := a.svc.Organizations.Rename(r.Context(), middleware.CallerFrom(r.Context()), chi.URLParam(r, "orgID"), req.Name)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, org)
}

func (a *API) listAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt32(r, "limit")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	offset, err := queryInt32(r, "offset")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	logs, err := a.svc.Organizations.AuditLog(r.Context(), middleware.CallerFrom(r.Context()), chi.URLParam(r, "orgID"), limit, offset)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"audit_logs": logs})
}
