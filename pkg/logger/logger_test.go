package logger

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestToZapLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"warn":    zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"info":    zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
		"verbose": zapcore.InfoLevel,
	}
	for in, want := range tests {
		if got := toZapLevel(in); got != want {
			t.Errorf("toZapLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestFromContext(t *testing.T) {
	l := newZapLogger(zap.NewNop())
	ctx := WithLogger(context.Background(), l)
	if got := FromContext(ctx); got != l {
		t.Fatalf("expected stored logger back")
	}
	if FromContext(context.Background()) == nil {
		t.Fatalf("expected no-op fallback, got nil")
	}
}

func TestZapLoggerWith(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := newZapLogger(zap.New(core))

	child := l.With("request_id", "abc")
	child.Info("tile fetched", "tile", "5/10/12")
	l.Warn("no fields")

	entries := logs.AllUntimed()
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}

	fields := entries[0].ContextMap()
	if fields["request_id"] != "abc" || fields["tile"] != "5/10/12" {
		t.Errorf("fields = %v", fields)
	}
	if _, ok := entries[1].ContextMap()["request_id"]; ok {
		t.Errorf("parent logger picked up child fields")
	}
	if entries[1].Level != zapcore.WarnLevel {
		t.Errorf("level = %s", entries[1].Level)
	}
}
