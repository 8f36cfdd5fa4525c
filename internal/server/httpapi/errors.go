package httpapi

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	dsodomain "dsodesk/internal/dso/domain"
	invitationdomain "dsodesk/internal/invitation/domain"
	"dsodesk/internal/logger"
	membershipdomain "dsodesk/internal/membership/domain"
	orgdomain "dsodesk/internal/organization/domain"
	"dsodesk/internal/platform/rbac"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// domainErrors maps validation and conflict sentinels to a status and code.
var domainErrors = []struct {
	err    error
	status int
	code   string
}{
	{orgdomain.ErrInvalidName, http.StatusBadRequest, "invalid_argument"},
	{dsodomain.ErrInvalidName, http.StatusBadRequest, "invalid_argument"},
	{membershipdomain.ErrInvalidRole, http.StatusBadRequest, "invalid_argument"},
	{membershipdomain.ErrInvalidUserID, http.StatusBadRequest, "invalid_argument"},
	{invitationdomain.ErrInvalidEmail, http.StatusBadRequest, "invalid_argument"},
	{orgdomain.ErrSlugTaken, http.StatusConflict, "slug_taken"},
	{membershipdomain.ErrAlreadyMember, http.StatusConflict, "already_member"},
	{membershipdomain.ErrLastOwner, http.StatusConflict, "last_owner"},
	{membershipdomain.ErrMembershipNotFound, http.StatusNotFound, "not_found"},
	{orgdomain.ErrNotFound, http.StatusNotFound, "not_found"},
	{dsodomain.ErrNotFound, http.StatusNotFound, "not_found"},
}

// writeError renders err. Denies map by reason; store failures are 503 and retryable; unknown errors are 500.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var denied *rbac.DeniedError
	switch {
	case errors.As(err, &denied):
		status, code, msg := a.denyStatus(denied)
		writeJSON(w, status, errorBody{Error: code, Message: msg})
		return
	case rbac.IsRetryable(err):
		logger.FromContext(r.Context()).Warn("store unavailable", zap.Error(err))
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "store_unavailable", Message: "try again"})
		return
	case errors.Is(err, errBadRequest):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_request", Message: err.Error()})
		return
	}
	for _, d := range domainErrors {
		if errors.Is(err, d.err) {
			writeJSON(w, d.status, errorBody{Error: d.code, Message: d.err.Error()})
			return
		}
	}
	logger.FromContext(r.Context()).Error("unhandled error", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal", Message: "internal error"})
}

func (a *API) denyStatus(d *rbac.DeniedError) (int, string, string) {
	switch d.Reason {
	case rbac.ReasonUnauthenticated:
		return http.StatusUnauthorized, string(d.Reason), d.Detail
	case rbac.ReasonNotAMember, rbac.ReasonInsufficientRole:
		if a.opts.HideTenantExistence {
			return http.StatusNotFound, string(rbac.ReasonResourceNotFound), "not found"
		}
		return http.StatusForbidden, string(d.Reason), d.Detail
	case rbac.ReasonResourceNotFound:
		return http.StatusNotFound, string(d.Reason), d.Detail
	case rbac.ReasonTokenExpired:
		return http.StatusGone, string(d.Reason), d.Detail
	case rbac.ReasonTokenInvalid, rbac.ReasonEmailMismatch:
		return http.StatusBadRequest, string(d.Reason), d.Detail
	default:
		return http.StatusForbidden, string(d.Reason), d.Detail
	}
}
