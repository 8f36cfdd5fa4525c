package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"dsodesk/internal/server/middleware"
)

func (a *API) createDSO(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := decode(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	d, err := a.svc.DSOs.Create(r.Context(), middleware.CallerFrom(r.Context()), chi.URLParam(r, "orgID"), req.Name)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (a *API) listDSOs(w http.ResponseWriter, r *http.Request) {
	out, err := a.svc.DSOs.List(r.Context(), middleware.CallerFrom(r.Context()), chi.URLParam(r, "orgID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"dsos": out})
}

func (a *API) getDSO(w http.ResponseWriter, r *http.Request) {
	out, err := a.svc.DSOs.Get(r.Context(), middleware.CallerFrom(r.Context()), chi.URLParam(r, "dsoID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
