package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"dsodesk/internal/server/middleware"
)

type issueInvitationRequest struct {
	Email string `json:"email"`
}

type redeemRequest struct {
	Token string `json:"token"`
}

func (a *API) issueInvitation(w http.ResponseWriter, r *http.Request) {
	var req issueInvitationRequest
	if err := decode(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	out, err := a.svc.Invitations.Issue(r.Context(), middleware.CallerFrom(r.Context()),
		chi.URLParam(r, "orgID"), req.Email)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusCreated, out)
}

func (a *API) listInvitations(w http.ResponseWriter, r *http.Request) {
	out, err := a.svc.Invitations.ListPending(r.Context(), middleware.CallerFrom(r.Context()), chi.URLParam(r, "orgID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invitations": out})
}

// redeemInvitation answers 200 with the membership for both first and repeated redemption.
func (a *API) redeemInvitation(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if err := decode(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	m, err := a.svc.Invitations.Redeem(r.Context(), req.Token, middleware.CallerFrom(r.Context()))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}
