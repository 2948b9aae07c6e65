// Package llm defines the analysis requester contract shared by the
// completion providers.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Requester sends one system instruction plus one user payload to a language
// model and returns the generated text. Implementations make a single attempt.
type Requester interface {
	Complete(ctx context.Context, system, user string) (*Completion, error)
}

// Completion is a provider response.
type Completion struct {
	Text         string
	Model        string
	InputTokens  int64
	OutputTokens int64
}

// Kind classifies a requester failure.
type Kind int

const (
	// ServiceUnavailable covers transport failures, 5xx, timeouts and auth problems.
	ServiceUnavailable Kind = iota
	// RateLimited means the provider asked us to back off (HTTP 429).
	RateLimited
	// InvalidRequest means the provider rejected the request itself (4xx).
	InvalidRequest
)

func (k Kind) String() string {
	switch k {
	case RateLimited:
		return "rate_limited"
	case InvalidRequest:
		return "invalid_request"
	default:
		return "service_unavailable"
	}
}

// Error is the classified failure every provider returns.
type Error struct {
	Kind       Kind
	Provider   string
	StatusCode int // 0 when no HTTP response was received
	Message    string
	Retryable  bool
	RetryAfter time.Duration // From the Retry-After header, if any
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (status %d): %s", e.Provider, e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// AsError extracts an *Error from err.
func AsError(err error) (*Error, bool) {
	var le *Error
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}

// ClassifyStatus builds an *Error for an HTTP error response.
//
//	429           -> RateLimited, retryable
//	401, 403      -> ServiceUnavailable, not retryable (credentials are wrong)
//	408, 409, 5xx -> ServiceUnavailable, retryable
//	other 4xx     -> InvalidRequest, not retryable
func ClassifyStatus(provider string, status int, message string, header http.Header) *Error {
	e := &Error{
		Provider:   provider,
		StatusCode: status,
		Message:    message,
		RetryAfter: ParseRetryAfter(header, time.Now()),
	}
	switch {
	case status == http.StatusTooManyRequests:
		e.Kind, e.Retryable = RateLimited, true
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		e.Kind, e.Retryable = ServiceUnavailable, false
	case status == http.StatusRequestTimeout, status == http.StatusConflict, status >= 500:
		e.Kind, e.Retryable = ServiceUnavailable, true
	default:
		e.Kind, e.Retryable = InvalidRequest, false
	}
	return e
}

// Transport wraps a failure that happened before any response arrived.
// Deadline and cancellation errors keep their identity for errors.Is.
func Transport(provider string, err error) *Error {
	return &Error{
		Kind:      ServiceUnavailable,
		Provider:  provider,
		Message:   err.Error(),
		Retryable: !errors.Is(err, context.Canceled),
		Err:       err,
	}
}

// ParseRetryAfter reads a Retry-After header given in seconds or as an HTTP date.
func ParseRetryAfter(header http.Header, now time.Time) time.Duration {
	if header == nil {
		return 0
	}
	v := strings.TrimSpace(header.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
