package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ConfabulousDev/confab-insights/internal/insights"
	"github.com/ConfabulousDev/confab-insights/internal/logger"
)

// errorResponse is the body of every error.
type errorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
	// Reason tells retryable failures apart so clients know how to back off.
	Reason string `json:"reason,omitempty"`
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes an error JSON response
func respondError(w http.ResponseWriter, status int, message string, retryable bool) {
	respondJSON(w, status, errorResponse{Error: message, Retryable: retryable})
}

func rejectRateLimited(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusTooManyRequests, errorResponse{
		Error:     "rate limit exceeded, try again later",
		Retryable: true,
		Reason:    reasonRateLimited,
	})
}

// Reasons not taken from an upstream failure kind.
const (
	reasonRateLimited        = "rate_limited"
	reasonStorageUnavailable = "storage_unavailable"
)

// failure is how one service error is reported over HTTP.
type failure struct {
	status     int
	retryable  bool
	retryAfter int    // Seconds; 0 omits the header
	outcome    string // Metrics label
	reason     string
}

// classify maps service errors onto HTTP statuses.
func classify(err error) failure {
	var maxBytes *http.MaxBytesError
	var upstream *insights.UpstreamError

	switch {
	case errors.As(err, &maxBytes):
		return failure{status: http.StatusRequestEntityTooLarge, outcome: "too_large"}
	case errors.Is(err, insights.ErrUnsupportedMediaType):
		return failure{status: http.StatusUnsupportedMediaType, outcome: "validation"}
	case errors.Is(err, insights.ErrValidation):
		return failure{status: http.StatusBadRequest, outcome: "validation"}
	case errors.Is(err, insights.ErrNotFound):
		return failure{status: http.StatusNotFound, outcome: "not_found"}
	case errors.Is(err, insights.ErrStructural):
		return failure{status: http.StatusUnprocessableEntity, outcome: "structural"}
	case errors.As(err, &upstream):
		if upstream.Retryable {
			secs := int(upstream.RetryAfter.Seconds())
			if upstream.RetryAfter > 0 && secs == 0 {
				secs = 1
			}
			return failure{status: http.StatusServiceUnavailable, retryable: true, retryAfter: secs, outcome: "upstream_retryable", reason: upstream.Kind.String()}
		}
		return failure{status: http.StatusBadGateway, outcome: "upstream_fatal", reason: upstream.Kind.String()}
	case errors.Is(err, insights.ErrStorage):
		if insights.StorageUnavailable(err) {
			return failure{status: http.StatusServiceUnavailable, retryable: true, outcome: "storage", reason: reasonStorageUnavailable}
		}
		return failure{status: http.StatusInternalServerError, outcome: "storage"}
	default:
		return failure{status: http.StatusInternalServerError, outcome: "internal"}
	}
}

// respondServiceError logs err and writes the mapped error response. Client
// errors carry the error text; server errors get a generic message.
func (s *Server) respondServiceError(w http.ResponseWriter, r *http.Request, err error) failure {
	f := classify(err)
	log := logger.Ctx(r.Context())

	message := err.Error()
	switch {
	case f.status == http.StatusRequestEntityTooLarge:
		message = "request body too large"
		log.Info("request rejected", "status", f.status, "error", err)
	case f.status < 500:
		log.Info("request rejected", "status", f.status, "error", err)
	case f.status == http.StatusInternalServerError:
		message = "internal error"
		log.Error("request failed", "status", f.status, "error", err)
	default:
		if f.outcome == "storage" {
			message = "storage temporarily unavailable"
		}
		log.Error("request failed", "status", f.status, "retryable", f.retryable, "error", err)
	}

	if f.retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(f.retryAfter))
	}
	respondJSON(w, f.status, errorResponse{Error: message, Retryable: f.retryable, Reason: f.reason})
	return f
}
