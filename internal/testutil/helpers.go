package testutil

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
)

// ParseJSONResponse decodes JSON response body into v
func ParseJSONResponse(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()

	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v. Body: %s", err, w.Body.String())
	}
}

// AssertStatus checks HTTP status code matches expected
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()

	if w.Code != expected {
		t.Errorf("expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// ErrorBody is the JSON error shape returned by the API.
type ErrorBody struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
	Reason    string `json:"reason,omitempty"`
}

// AssertErrorResponse checks the status and that the body is a JSON error
// with the expected retryable flag. It returns the decoded body.
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedRetryable bool) ErrorBody {
	t.Helper()

	AssertStatus(t, w, expectedStatus)

	var resp ErrorBody
	ParseJSONResponse(t, w, &resp)

	if resp.Error == "" {
		t.Errorf("expected an error message, got none")
	}
	if resp.Retryable != expectedRetryable {
		t.Errorf("expected retryable=%v, got %v (error %q)", expectedRetryable, resp.Retryable, resp.Error)
	}
	return resp
}
