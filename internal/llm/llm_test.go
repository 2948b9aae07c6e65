package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status    int
		kind      Kind
		retryable bool
	}{
		{http.StatusTooManyRequests, RateLimited, true},
		{http.StatusBadRequest, InvalidRequest, false},
		{http.StatusRequestEntityTooLarge, InvalidRequest, false},
		{http.StatusNotFound, InvalidRequest, false},
		{http.StatusUnauthorized, ServiceUnavailable, false},
		{http.StatusForbidden, ServiceUnavailable, false},
		{http.StatusRequestTimeout, ServiceUnavailable, true},
		{http.StatusInternalServerError, ServiceUnavailable, true},
		{http.StatusBadGateway, ServiceUnavailable, true},
		{529, ServiceUnavailable, true}, // Anthropic "overloaded"
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status %d", tt.status), func(t *testing.T) {
			e := ClassifyStatus("test", tt.status, "boom", nil)
			if e.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v", e.Kind, tt.kind)
			}
			if e.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", e.Retryable, tt.retryable)
			}
			if e.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", e.StatusCode, tt.status)
			}
		})
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"seconds", "30", 30 * time.Second},
		{"zero", "0", 0},
		{"http date", now.Add(2 * time.Minute).Format(http.TimeFormat), 2 * time.Minute},
		{"date in the past", now.Add(-time.Minute).Format(http.TimeFormat), 0},
		{"garbage", "soon", 0},
		{"empty", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.value != "" {
				h.Set("Retry-After", tt.value)
			}
			if got := ParseRetryAfter(h, now); got != tt.want {
				t.Errorf("ParseRetryAfter(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestTransport(t *testing.T) {
	e := Transport("test", fmt.Errorf("post: %w", context.DeadlineExceeded))
	if e.Kind != ServiceUnavailable || !e.Retryable {
		t.Errorf("deadline: got kind %v retryable %v", e.Kind, e.Retryable)
	}
	if !errors.Is(e, context.DeadlineExceeded) {
		t.Error("expected the deadline error to stay reachable through errors.Is")
	}

	e = Transport("test", context.Canceled)
	if e.Retryable {
		t.Error("canceled request should not be retryable")
	}
}

func TestAsError(t *testing.T) {
	wrapped := fmt.Errorf("analyze: %w", &Error{Kind: RateLimited, Provider: "p"})
	le, ok := AsError(wrapped)
	if !ok || le.Kind != RateLimited {
		t.Errorf("AsError = %v, %v", le, ok)
	}
	if _, ok := AsError(errors.New("plain")); ok {
		t.Error("AsError matched a plain error")
	}
}

func TestModelFamily(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"claude-opus-4-5-20251101", "opus-4-5"},
		{"claude-sonnet-4-20250514", "sonnet-4"},
		{"claude-haiku-4-5-20251001", "haiku-4-5"},
		{"sonnet-4-5", "sonnet-4-5"},
		{"gpt-4o-2024-08-06", "gpt-4o"},
		{"gpt-4o-mini-2024-07-18", "gpt-4o-mini"},
		{"gpt-3.5-turbo", "gpt-3.5-turbo"},
		{"unknown-model", "unknown-model"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := modelFamily(tt.input); got != tt.expected {
				t.Errorf("modelFamily(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestEstimateCost(t *testing.T) {
	tests := []struct {
		name string
		c    *Completion
		want string
	}{
		{"sonnet input", &Completion{Model: "claude-sonnet-4-5-20250929", InputTokens: 1_000_000}, "3"},
		{"sonnet mixed", &Completion{Model: "claude-sonnet-4-5-20250929", InputTokens: 10_000, OutputTokens: 2_000}, "0.06"},
		{"gpt-4o-mini", &Completion{Model: "gpt-4o-mini", InputTokens: 1_000_000, OutputTokens: 1_000_000}, "0.75"},
		{"unknown model", &Completion{Model: "mystery", InputTokens: 5000}, "0"},
		{"nil", nil, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EstimateCost(tt.c)
			want := decimal.RequireFromString(tt.want)
			if !got.Equal(want) {
				t.Errorf("EstimateCost() = %s, want %s", got, want)
			}
		})
	}
}
