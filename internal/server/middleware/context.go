// Package middleware holds the HTTP middleware shared by every route: caller identity, client IP and
// request logging.
package middleware

import (
	"context"

	identitydomain "dsodesk/internal/identity/domain"
)

type contextKey struct{ name string }

var (
	callerKey   = contextKey{"caller"}
	clientIPKey = contextKey{"client_ip"}
)

// WithCaller returns a context carrying the verified caller.
func WithCaller(ctx context.Context, c *identitydomain.Caller) context.Context {
	return context.WithValue(ctx, callerKey, c)
}

// CallerFrom returns the verified caller, or nil for anonymous requests.
func CallerFrom(ctx context.Context) *identitydomain.Caller {
	c, _ := ctx.Value(callerKey).(*identitydomain.Caller)
	return c
}

// WithClientIP returns a context carrying the client IP.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// ClientIPFrom returns the client IP recorded by ClientIP, or "".
// It matches audit.IPExtractor.
func ClientIPFrom(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey).(string)
	return ip
}
