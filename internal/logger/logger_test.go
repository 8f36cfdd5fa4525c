package logger

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_Levels(t *testing.T) {
	testCases := []struct {
		level   string
		want    zapcore.Level
		wantErr bool
	}{
		{"", zapcore.InfoLevel, false},
		{"debug", zapcore.DebugLevel, false},
		{"warn", zapcore.WarnLevel, false},
		{" error ", zapcore.ErrorLevel, false},
		{"loud", 0, true},
	}
	for _, tc := range testCases {
		t.Run(tc.level, func(t *testing.T) {
			l, err := New(tc.level, "test")
			if tc.wantErr {
				if err == nil {
					t.Fatalf("New(%q) should fail", tc.level)
				}
				return
			}
			if err != nil {
				t.Fatalf("New(%q): %v", tc.level, err)
			}
			if !l.Core().Enabled(tc.want) {
				t.Errorf("level %v not enabled", tc.want)
			}
			if tc.want > zapcore.DebugLevel && l.Core().Enabled(tc.want-1) {
				t.Errorf("level %v should be disabled", tc.want-1)
			}
			if zap.L() != l {
				t.Error("New should install the logger globally")
			}
		})
	}
}

func TestFromContext(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core).With(zap.String("request_id", "req-1"))

	ctx := WithLogger(context.Background(), base)
	FromContext(ctx).Info("hello")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["request_id"]; got != "req-1" {
		t.Errorf("request_id = %v, want %q", got, "req-1")
	}
}

func TestFromContext_FallsBackToGlobal(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext should never return nil")
	}
}
