package insights

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ConfabulousDev/confab-insights/internal/llm"
	"github.com/ConfabulousDev/confab-insights/internal/storage"
)

// Sentinel errors returned by Service. Callers map them with errors.Is.
var (
	// ErrValidation indicates a bad request: empty body, malformed export, bad selection.
	ErrValidation = errors.New("validation error")

	// ErrUnsupportedMediaType is the validation error for a rejected content type.
	ErrUnsupportedMediaType = fmt.Errorf("%w: unsupported media type", ErrValidation)

	// ErrStructural indicates an export that cannot be turned into any analyzable transcript.
	ErrStructural = errors.New("structural error")

	// ErrNotFound indicates a missing export or conversation.
	ErrNotFound = errors.New("not found")

	// ErrStorage indicates the blob store failed.
	ErrStorage = errors.New("storage error")

	// ErrUpstream indicates the analysis requester failed. See UpstreamError.
	ErrUpstream = errors.New("upstream error")
)

// UpstreamError carries the retry distinction of a requester failure.
type UpstreamError struct {
	Kind        llm.Kind
	StatusCode  int
	Retryable   bool
	RateLimited bool
	RetryAfter  time.Duration
	Err         error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", ErrUpstream, e.Err)
}

// Unwrap exposes both ErrUpstream and the provider error.
func (e *UpstreamError) Unwrap() []error {
	return []error{ErrUpstream, e.Err}
}

func newUpstreamError(err error) *UpstreamError {
	ue := &UpstreamError{Kind: llm.ServiceUnavailable, Err: err}
	if le, ok := llm.AsError(err); ok {
		ue.Kind = le.Kind
		ue.StatusCode = le.StatusCode
		ue.Retryable = le.Retryable
		ue.RateLimited = le.Kind == llm.RateLimited
		ue.RetryAfter = le.RetryAfter
		return ue
	}
	// Unclassified failures: a deadline is worth retrying, anything else is not.
	ue.Retryable = errors.Is(err, context.DeadlineExceeded)
	return ue
}

// StorageUnavailable reports whether err is a transient blob store failure.
func StorageUnavailable(err error) bool {
	return errors.Is(err, storage.ErrNetworkError) ||
		errors.Is(err, storage.ErrUnavailable) ||
		(errors.Is(err, ErrStorage) && errors.Is(err, context.DeadlineExceeded))
}
