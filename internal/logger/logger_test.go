package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func resetLogger() {
	InitWithWriter(bytes.NewBuffer(nil), "INFO", "text", false)
}

func TestSetLevel_FiltersLowerLevels(t *testing.T) {
	defer resetLogger()

	var buf bytes.Buffer
	InitWithWriter(&buf, "WARN", "text", false)

	Debug("debug message")
	Info("info message")
	Warn("warn message")
	Error("error message")

	out := buf.String()
	if strings.Contains(out, "debug message") {
		t.Errorf("debug message should be filtered at WARN level")
	}
	if strings.Contains(out, "info message") {
		t.Errorf("info message should be filtered at WARN level")
	}
	if !strings.Contains(out, "warn message") {
		t.Errorf("warn message missing from output: %q", out)
	}
	if !strings.Contains(out, "error message") {
		t.Errorf("error message missing from output: %q", out)
	}
}

func TestSetLevel_InvalidLevelIgnored(t *testing.T) {
	defer resetLogger()

	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text", false)
	SetLevel("VERBOSE") // not a real level

	Info("still info")
	if !strings.Contains(buf.String(), "still info") {
		t.Errorf("invalid SetLevel should not change the current level")
	}
}

func TestJSONFormat_EmitsStructuredFields(t *testing.T) {
	defer resetLogger()

	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "json", false)

	Info("boot requested", KeyWorldID, "w-123", KeyTenantKey, "guild:42")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if record["msg"] != "boot requested" {
		t.Errorf("expected msg 'boot requested', got %v", record["msg"])
	}
	if record[KeyWorldID] != "w-123" {
		t.Errorf("expected world_id 'w-123', got %v", record[KeyWorldID])
	}
	if record[KeyTenantKey] != "guild:42" {
		t.Errorf("expected tenant_key 'guild:42', got %v", record[KeyTenantKey])
	}
}

func TestInfoCtx_InjectsLogContextFields(t *testing.T) {
	defer resetLogger()

	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "json", false)

	lc := NewLogContext("w-ctx").WithEvent("boot").WithRequestID("req-1")
	ctx := WithContext(context.Background(), lc)

	InfoCtx(ctx, "transition started")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if record[KeyWorldID] != "w-ctx" {
		t.Errorf("expected world_id from context, got %v", record[KeyWorldID])
	}
	if record[KeyEvent] != "boot" {
		t.Errorf("expected event from context, got %v", record[KeyEvent])
	}
	if record[KeyRequestID] != "req-1" {
		t.Errorf("expected request_id from context, got %v", record[KeyRequestID])
	}
}

func TestInfoCtx_NoLogContext(t *testing.T) {
	defer resetLogger()

	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text", false)

	InfoCtx(context.Background(), "plain message")
	if !strings.Contains(buf.String(), "plain message") {
		t.Errorf("message without LogContext should still be logged")
	}
}

func TestLogContext_Clone(t *testing.T) {
	lc := NewLogContext("w-1").WithTenant("guild:1")
	clone := lc.WithEvent("stop")

	if lc.Event != "" {
		t.Errorf("WithEvent must not mutate the original context")
	}
	if clone.Event != "stop" || clone.WorldID != "w-1" || clone.TenantKey != "guild:1" {
		t.Errorf("clone lost fields: %+v", clone)
	}
}

func TestErr_NilError(t *testing.T) {
	attr := Err(nil)
	if !attr.Equal(Err(nil)) {
		t.Errorf("Err(nil) should produce an empty attr")
	}
}
