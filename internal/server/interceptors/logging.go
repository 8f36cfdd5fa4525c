// Package interceptors holds the gRPC server interceptors.
package interceptors

import (
	"context"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"dsodesk/internal/logger"
)

// LoggingUnary logs each RPC with its code and duration and puts a request-scoped logger in the context.
// Methods in skipMethods (e.g. frequent health probes) are only logged when they fail.
func LoggingUnary(base *zap.Logger, skipMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		l := base.With(zap.String("grpc.method", info.FullMethod))
		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			l = l.With(zap.String("peer", p.Addr.String()))
		}
		ctx = logger.WithLogger(ctx, l)
		resp, err := handler(ctx, req)
		code := status.Code(err)
		if skipMethods[info.FullMethod] && code == codes.OK {
			return resp, err
		}
		fields := []zap.Field{zap.String("grpc.code", code.String()), zap.Duration("duration", time.Since(start))}
		if err != nil {
			l.Warn("grpc request failed", append(fields, zap.Error(err))...)
		} else {
			l.Info("grpc request", fields...)
		}
		return resp, err
	}
}

// RecoveryUnary turns a handler panic into codes.Internal and logs the stack.
func RecoveryUnary(base *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				base.Error("grpc handler panic",
					zap.String("grpc.method", info.FullMethod), zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}
