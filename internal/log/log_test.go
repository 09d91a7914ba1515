package log

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestToFields(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name     string
		input    []any
		wantKeys []string
	}{
		{"empty", nil, nil},
		{"pairs", []any{"chargePointId", "CP-1", "connectorId", 1, "ok", true}, []string{"chargePointId", "connectorId", "ok"}},
		{"bare error", []any{boom}, []string{"error"}},
		{"zap field passthrough", []any{zap.String("action", "Heartbeat"), "n", 2}, []string{"action", "n"}},
		{"dangling key", []any{"k1", "v1", "k2"}, []string{"k1", "arg#2"}},
		{"non-string key", []any{42, "v"}, []string{"badkey#0"}},
		{"raw json", []any{"payload", json.RawMessage(`{"a":1}`)}, []string{"payload"}},
		{"duration and time", []any{"took", time.Second, "at", time.Unix(0, 0)}, []string{"took", "at"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := toFields(tt.input...)
			if len(fields) != len(tt.wantKeys) {
				t.Fatalf("got %d fields, want %d", len(fields), len(tt.wantKeys))
			}
			for i, f := range fields {
				if f.Key != tt.wantKeys[i] {
					t.Errorf("field %d key = %q, want %q", i, f.Key, tt.wantKeys[i])
				}
			}
		})
	}
}

func TestLoggerWithValues(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := FromZap(zap.New(core)).WithName("dispatch").WithValues("chargePointId", "CP-7")

	l.Info("call handled", "action", "Heartbeat")
	l.Error(errors.New("db down"), "store failure")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].LoggerName != "dispatch" {
		t.Errorf("logger name = %q", entries[0].LoggerName)
	}
	ctx := entries[0].ContextMap()
	if ctx["chargePointId"] != "CP-7" || ctx["action"] != "Heartbeat" {
		t.Errorf("unexpected context %v", ctx)
	}
	if entries[1].ContextMap()["error"] != "db down" {
		t.Errorf("error field missing: %v", entries[1].ContextMap())
	}
}

func TestLogrSharesCore(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	lr := FromZap(zap.New(core)).WithValues("chargePointId", "CP-7").Logr()

	lr.Info("request", "path", "/api/chargers")
	lr.V(1).Info("verbose")
	lr.Error(errors.New("boom"), "failed")

	entries := logs.All()
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	if entries[0].Level != zapcore.InfoLevel || entries[1].Level != zapcore.DebugLevel || entries[2].Level != zapcore.ErrorLevel {
		t.Fatalf("levels = %s %s %s", entries[0].Level, entries[1].Level, entries[2].Level)
	}
	if entries[0].ContextMap()["chargePointId"] != "CP-7" || entries[0].ContextMap()["path"] != "/api/chargers" {
		t.Fatalf("fields = %v", entries[0].ContextMap())
	}
}

func TestOptionsValidate(t *testing.T) {
	o := NewOptions()
	if errs := o.Validate(); len(errs) != 0 {
		t.Fatalf("defaults should validate, got %v", errs)
	}
	o.Level = "loud"
	o.Format = "xml"
	if errs := o.Validate(); len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %v", errs)
	}
}
