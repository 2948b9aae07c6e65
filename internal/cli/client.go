package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/ConfabulousDev/confab-insights/internal/insights"
)

const (
	// compressionThreshold is the minimum payload size to compress.
	// Below this, compression overhead isn't worth it.
	compressionThreshold = 1024 // 1KB

	// maxErrorBody bounds how much of an error response is read.
	maxErrorBody = 64 << 10
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
	Retryable  bool
	RetryAfter time.Duration
	// Reason is set on retryable failures, e.g. "rate_limited" or
	// "service_unavailable".
	Reason string
}

// RateLimited reports whether the server or its model provider asked the
// caller to slow down.
func (e *APIError) RateLimited() bool {
	return e.Reason == "rate_limited"
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
	if e.Retryable {
		msg += " (retryable"
		if e.Reason != "" {
			msg += ", " + e.Reason
		}
		if e.RetryAfter > 0 {
			msg += ", retry after " + e.RetryAfter.String()
		}
		msg += ")"
	}
	return msg
}

// Client talks to a confab-insights server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	encoder    *zstd.Encoder
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	// Create zstd encoder with default compression level (good balance of speed/ratio)
	encoder, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		encoder: encoder,
	}
}

// body wraps payload, compressing it when compress is set and it is large enough.
func (c *Client) body(payload []byte, compress bool) (io.Reader, string) {
	if compress && len(payload) >= compressionThreshold {
		return bytes.NewReader(c.encoder.EncodeAll(payload, make([]byte, 0, len(payload)/2))), "zstd"
	}
	return bytes.NewReader(payload), ""
}

func (c *Client) do(req *http.Request, want int, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var body struct {
		Error     string `json:"error"`
		Retryable bool   `json:"retryable"`
		Reason    string `json:"reason"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		apiErr.Message = body.Error
		apiErr.Retryable = body.Retryable
		apiErr.Reason = body.Reason
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
	}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		apiErr.RetryAfter = time.Duration(secs) * time.Second
	}
	return apiErr
}

// Upload stores data on the server. The content type is detected from the bytes.
func (c *Client) Upload(ctx context.Context, data []byte, filename string, compress bool) (*insights.UploadResult, error) {
	u := c.baseURL + "/api/v1/upload"
	if filename != "" {
		u += "?" + url.Values{"filename": {filename}}.Encode()
	}

	body, encoding := c.body(data, compress)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", insights.DetectMediaType(data))
	if encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}

	var result insights.UploadResult
	if err := c.do(req, http.StatusCreated, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// AnalyzeParams selects what the server analyzes. Export, when set, is a
// JSON export sent inline instead of a stored key.
type AnalyzeParams struct {
	Key            string          `json:"key,omitempty"`
	Conversation   *int            `json:"conversation,omitempty"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Branch         string          `json:"branch,omitempty"`
	Export         json.RawMessage `json:"export,omitempty"`
}

// AnalyzeResult is the JSON form of an insight.
type AnalyzeResult struct {
	insights.Insight
	DurationMS int64 `json:"duration_ms"`
}

// Analyze asks the server for insights.
func (c *Client) Analyze(ctx context.Context, params AnalyzeParams, compress bool) (*AnalyzeResult, error) {
	payload, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	body, encoding := c.body(payload, compress)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/insights", body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", insights.MediaTypeJSON)
	req.Header.Set("Accept", "application/json")
	if encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}

	var result AnalyzeResult
	if err := c.do(req, http.StatusOK, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ExportInfo is one stored upload.
type ExportInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// ListExports returns stored uploads, newest first.
func (c *Client) ListExports(ctx context.Context) ([]ExportInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/exports", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var result struct {
		Exports []ExportInfo `json:"exports"`
	}
	if err := c.do(req, http.StatusOK, &result); err != nil {
		return nil, err
	}
	return result.Exports, nil
}
