package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	membershipdomain "dsodesk/internal/membership/domain"
	"dsodesk/internal/server/middleware"
)

type addMemberRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

type roleRequest struct {
	Role string `json:"role"`
}

func (a *API) listMembers(w http.ResponseWriter, r *http.Request) {
	out, err := a.svc.Memberships.List(r.Context(), middleware.CallerFrom(r.Context()), chi.URLParam(r, "orgID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": out})
}

func (a *API) addMember(w http.ResponseWriter, r *http.Request) {
	var req addMemberRequest
	if err := decode(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	m, err := a.svc.Memberships.Add(r.Context(), middleware.CallerFrom(r.Context()),
		chi.URLParam(r, "orgID"), req.UserID, membershipdomain.Role(req.Role))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (a *API) changeRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := decode(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	m, err := a.svc.Memberships.ChangeRole(r.Context(), middleware.CallerFrom(r.Context()),
		chi.URLParam(r, "orgID"), chi.URLParam(r, "userID"), membershipdomain.Role(req.Role))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (a *API) removeMember(w http.ResponseWriter, r *http.Request) {
	err := a.svc.Memberships.Remove(r.Context(), middleware.CallerFrom(r.Context()),
		chi.URLParam(r, "orgID"), chi.URLParam(r, "userID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
