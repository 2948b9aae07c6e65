package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/minio/minio-go/v7"
)

// TestContainsAny tests the helper function for network error detection
func TestContainsAny(t *testing.T) {
	tests := []struct {
		name     string
		s        string
		substrs  []string
		expected bool
	}{
		{"contains first", "connection refused", []string{"connection", "timeout"}, true},
		{"contains second", "request timeout", []string{"connection", "timeout"}, true},
		{"contains none", "success", []string{"connection", "timeout"}, false},
		{"empty string", "", []string{"connection"}, false},
		{"empty substrs", "connection", []string{}, false},
		{"case sensitive - no match", "TIMEOUT", []string{"timeout"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := containsAny(tt.s, tt.substrs)
			if result != tt.expected {
				t.Errorf("containsAny(%q, %v) = %v, want %v", tt.s, tt.substrs, result, tt.expected)
			}
		})
	}
}

func TestClassifyStorageError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		operation string
		want      error // nil means "wrapped, but no sentinel"
	}{
		{"NoSuchKey", minio.ErrorResponse{Code: "NoSuchKey"}, "download", ErrObjectNotFound},
		{"NoSuchBucket", minio.ErrorResponse{Code: "NoSuchBucket"}, "list", ErrObjectNotFound},
		{"AccessDenied", minio.ErrorResponse{Code: "AccessDenied"}, "upload", ErrAccessDenied},
		{"InvalidAccessKeyId", minio.ErrorResponse{Code: "InvalidAccessKeyId"}, "upload", ErrAccessDenied},
		{"SignatureDoesNotMatch", minio.ErrorResponse{Code: "SignatureDoesNotMatch"}, "download", ErrAccessDenied},
		{"wrapped minio error", fmt.Errorf("read: %w", minio.ErrorResponse{Code: "NoSuchKey"}), "download", ErrObjectNotFound},
		{"connection refused", errors.New("dial tcp: connection refused"), "upload", ErrNetworkError},
		{"network unreachable", errors.New("network unreachable"), "list", ErrNetworkError},
		{"deadline", fmt.Errorf("put: %w", context.DeadlineExceeded), "upload", ErrNetworkError},
		{"unknown", errors.New("some unknown error"), "upload", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := classifyStorageError(tt.err, tt.operation)
			if result == nil {
				t.Fatal("expected a non-nil error")
			}
			if tt.want == nil {
				if !errors.Is(result, tt.err) {
					t.Errorf("expected original error to stay wrapped, got %v", result)
				}
				for _, sentinel := range []error{ErrObjectNotFound, ErrAccessDenied, ErrNetworkError} {
					if errors.Is(result, sentinel) {
						t.Errorf("unknown error classified as %v", sentinel)
					}
				}
				return
			}
			if !errors.Is(result, tt.want) {
				t.Errorf("classifyStorageError(%v, %q) = %v, want wrapping %v", tt.err, tt.operation, result, tt.want)
			}
		})
	}
}

func TestClassifyStorageError_Nil(t *testing.T) {
	if err := classifyStorageError(nil, "upload"); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestSentinelErrors(t *testing.T) {
	sentinels := []error{ErrObjectNotFound, ErrAccessDenied, ErrNetworkError, ErrUnavailable, ErrTooManyObjects}
	messages := make(map[string]bool)
	for _, err := range sentinels {
		msg := err.Error()
		if messages[msg] {
			t.Errorf("duplicate error message: %s", msg)
		}
		messages[msg] = true
	}
}
