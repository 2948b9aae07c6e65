package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"", slog.LevelInfo},
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{" info ", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSetOutputForTest(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutputForTest(&buf)
	defer restore()

	Info("export stored", "key", "exports/abc/conversations.json")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["msg"] != "export stored" {
		t.Errorf("msg = %v, want %q", entry["msg"], "export stored")
	}
	if entry["key"] != "exports/abc/conversations.json" {
		t.Errorf("key = %v, want export key", entry["key"])
	}
}

func TestCtx_FallsBackToDefault(t *testing.T) {
	if Ctx(context.Background()) != slog.Default() {
		t.Error("expected default logger when none stored in context")
	}
}

func TestMiddleware_AttachesRequestID(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutputForTest(&buf)
	defer restore()

	handler := middleware.RequestID(Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		Ctx(r.Context()).Info("inside handler")
	})))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-42")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v", err)
	}
	if entry["req_id"] != "req-42" {
		t.Errorf("req_id = %v, want req-42", entry["req_id"])
	}
}
