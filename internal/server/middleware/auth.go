package middleware

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	identitydomain "dsodesk/internal/identity/domain"
	"dsodesk/internal/logger"
)

const bearerPrefix = "bearer "

// Verifier validates a session token issued by the identity provider.
type Verifier interface {
	Verify(token string) (*identitydomain.Caller, error)
}

// Authenticate attaches the caller named by a valid Bearer session token. Requests without a valid
// token continue anonymously; the access evaluator then denies them as unauthenticated.
func Authenticate(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearer(r.Header.Get("Authorization"))
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			caller, err := v.Verify(token)
			if err != nil {
				logger.FromContext(r.Context()).Debug("rejected session token", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}

// extractBearer returns the token from an Authorization header value, or "" if missing or malformed.
func extractBearer(h string) string {
	v := strings.TrimSpace(h)
	if len(v) < len(bearerPrefix) || !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
