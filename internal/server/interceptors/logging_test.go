package interceptors

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"dsodesk/internal/logger"
)

const healthMethod = "/grpc.health.v1.Health/Check"

func TestLoggingUnary(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	interceptor := LoggingUnary(zap.New(core), map[string]bool{healthMethod: true})

	var scoped *zap.Logger
	ok := func(ctx context.Context, req any) (any, error) {
		scoped = logger.FromContext(ctx)
		return "ok", nil
	}
	fail := func(ctx context.Context, req any) (any, error) {
		return nil, status.Error(codes.Unavailable, "down")
	}

	if _, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Method"}, ok); err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if scoped == nil {
		t.Fatal("handler did not get a request logger")
	}
	if _, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: healthMethod}, ok); err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if _, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: healthMethod}, fail); status.Code(err) != codes.Unavailable {
		t.Fatalf("interceptor must return the handler error, got %v", err)
	}

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("logged %d entries, want 2 (successful health probe skipped)", len(entries))
	}
	if entries[0].Message != "grpc request" || entries[0].ContextMap()["grpc.method"] != "/svc/Method" {
		t.Errorf("first entry = %+v", entries[0])
	}
	if entries[1].Level != zapcore.WarnLevel || entries[1].ContextMap()["grpc.code"] != "Unavailable" {
		t.Errorf("second entry = %+v", entries[1])
	}
}

func TestRecoveryUnary(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	interceptor := RecoveryUnary(zap.New(core))
	panicking := func(ctx context.Context, req any) (any, error) {
		panic("boom")
	}
	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Panic"}, panicking)
	if status.Code(err) != codes.Internal {
		t.Errorf("code = %v, want Internal", status.Code(err))
	}
	if logs.Len() != 1 {
		t.Errorf("logged %d entries, want 1", logs.Len())
	}

	plain := errors.New("plain")
	_, err = interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Err"}, func(ctx context.Context, req any) (any, error) {
		return nil, plain
	})
	if !errors.Is(err, plain) {
		t.Errorf("err = %v, want handler error unchanged", err)
	}
}
