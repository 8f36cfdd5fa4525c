package middleware

import (
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"dsodesk/internal/logger"
)

// RequestLogger puts a request-scoped logger (request_id, user_id) in the context and logs each request
// with its status and duration once it completes. Paths in quiet are logged only on 5xx.
func RequestLogger(base *zap.Logger, quiet ...string) func(http.Handler) http.Handler {
	skip := make(map[string]bool, len(quiet))
	for _, p := range quiet {
		skip[p] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			fields := []zap.Field{zap.String("request_id", chimiddleware.GetReqID(r.Context()))}
			if c := CallerFrom(r.Context()); c != nil {
				fields = append(fields, zap.String("user_id", c.UserID))
			}
			l := base.With(fields...)
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(logger.WithLogger(r.Context(), l)))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			if skip[r.URL.Path] && status < 500 {
				return
			}
			done := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("client_ip", ClientIPFrom(r.Context())),
			}
			if status >= 500 {
				l.Error("http request", done...)
				return
			}
			l.Info("http request", done...)
		})
	}
}
