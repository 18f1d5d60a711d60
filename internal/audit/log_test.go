package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"consorcia.org/internal/auth"
	"consorcia.org/internal/obs"
)

func TestLogEvent(t *testing.T) {
	logger := obs.Logger()
	original := logger.Out
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(original)

	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-123")
	ctx = auth.ContextWithIdentity(ctx, auth.Identity{UserID: 42, Role: auth.RoleTenantAdmin})

	if err := LogEvent(ctx, "assignment.created", map[string]any{"consortium_id": 7}); err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["type"] != "audit" {
		t.Fatalf("unexpected type: %v", entry["type"])
	}
	if entry["event"] != "assignment.created" {
		t.Fatalf("unexpected event: %v", entry["event"])
	}
	if entry["request_id"] != "req-123" {
		t.Fatalf("unexpected request id: %v", entry["request_id"])
	}
	if entry["user_id"] != float64(42) {
		t.Fatalf("unexpected user id: %v", entry["user_id"])
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["consortium_id"] != float64(7) {
		t.Fatalf("fields missing or incorrect: %v", entry["fields"])
	}
}

func TestLogEventRequiresName(t *testing.T) {
	if err := LogEvent(context.Background(), "  ", nil); err == nil {
		t.Fatal("expected error for empty event")
	}
}
