package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"
)

func TestWithContextAddsTraceAndUser(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithOutput("test", "debug", "json", &buf)

	ctx := WithTraceID(context.Background(), "trace-1")
	ctx = WithUserID(ctx, "user-1")
	logger.WithContext(ctx).Info("hello")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log entry: %v", err)
	}
	if entry["trace_id"] != "trace-1" {
		t.Errorf("trace_id = %v, want trace-1", entry["trace_id"])
	}
	if entry["user_id"] != "user-1" {
		t.Errorf("user_id = %v, want user-1", entry["user_id"])
	}
	if entry["service"] != "test" {
		t.Errorf("service = %v, want test", entry["service"])
	}
}

func TestLogRequestLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithOutput("test", "info", "json", &buf)

	logger.LogRequest(context.Background(), http.MethodGet, "/api/settings", http.StatusInternalServerError, 5*time.Millisecond)

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log entry: %v", err)
	}
	if entry["level"] != "error" {
		t.Errorf("level = %v, want error", entry["level"])
	}
	if entry["status"] != float64(500) {
		t.Errorf("status = %v, want 500", entry["status"])
	}
}

func TestInvalidLevelFallsBackToInfo(t *testing.T) {
	logger := New("test", "loud", "text")
	if got := logger.GetLevel().String(); got != "info" {
		t.Errorf("level = %s, want info", got)
	}
}

func TestContextAccessorsEmpty(t *testing.T) {
	ctx := context.Background()
	if GetTraceID(ctx) != "" || GetUserID(ctx) != "" || GetRole(ctx) != "" {
		t.Error("expected empty values from bare context")
	}
	if NewTraceID() == NewTraceID() {
		t.Error("expected unique trace ids")
	}
}
