package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestInMemoryRateLimiter_Burst(t *testing.T) {
	l := NewInMemoryRateLimiter(0.001, 3)
	defer l.Stop()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if !l.Allow(ctx, "a") {
			t.Fatalf("request %d within burst was rejected", i+1)
		}
	}
	if l.Allow(ctx, "a") {
		t.Error("request over burst was allowed")
	}
	if !l.Allow(ctx, "b") {
		t.Error("independent key was rejected")
	}
	if got := l.ActiveKeys(); got != 2 {
		t.Errorf("ActiveKeys = %d, want 2", got)
	}
}

func TestInMemoryRateLimiter_RetryAfter(t *testing.T) {
	l := NewInMemoryRateLimiter(0.5, 1)
	defer l.Stop()

	l.Allow(context.Background(), "a")
	got := l.RetryAfter("a")
	if got < time.Second || got > 2*time.Second {
		t.Errorf("RetryAfter = %v, want 1s..2s at 0.5 rps", got)
	}
	// Asking must not consume the token it reports on.
	if again := l.RetryAfter("a"); again > got {
		t.Errorf("RetryAfter grew from %v to %v", got, again)
	}
}

func TestInMemoryRateLimiter_Cleanup(t *testing.T) {
	l := NewInMemoryRateLimiter(1, 1)
	defer l.Stop()

	l.Allow(context.Background(), "old")
	l.Allow(context.Background(), "fresh")
	l.lastAccess.Store("old", time.Now().UTC().Add(-time.Hour))

	if n := l.cleanupOldLimiters(time.Now().UTC()); n != 1 {
		t.Errorf("cleaned %d limiters, want 1", n)
	}
	if got := l.ActiveKeys(); got != 1 {
		t.Errorf("ActiveKeys = %d, want 1", got)
	}
	l.Stop()
}

func TestMiddleware(t *testing.T) {
	l := NewInMemoryRateLimiter(0.001, 1)
	defer l.Stop()

	rejected := 0
	h := Middleware(l, func(w http.ResponseWriter, r *http.Request) {
		rejected++
		w.WriteHeader(http.StatusTooManyRequests)
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/insights", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	if w := do("192.0.2.1:1000"); w.Code != http.StatusNoContent {
		t.Fatalf("first request status = %d", w.Code)
	}
	w := do("192.0.2.1:2000")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
	if rejected != 1 {
		t.Errorf("reject called %d times, want 1", rejected)
	}
	if w := do("192.0.2.2:1000"); w.Code != http.StatusNoContent {
		t.Errorf("other client status = %d", w.Code)
	}
}

func TestClientKey(t *testing.T) {
	tests := []struct {
		addr, want string
	}{
		{"192.0.2.1:1234", "192.0.2.1"},
		{"[2001:db8::1]:8080", "2001:db8::1"},
		{"203.0.113.9", "203.0.113.9"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tt.addr
		if got := ClientKey(req); got != tt.want {
			t.Errorf("ClientKey(%q) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}
