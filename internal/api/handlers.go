package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ConfabulousDev/confab-insights/internal/insights"
	"github.com/ConfabulousDev/confab-insights/internal/logger"
	"github.com/ConfabulousDev/confab-insights/internal/metrics"
	"github.com/ConfabulousDev/confab-insights/internal/transcript"
)

// Response headers carrying insight metadata for text/plain responses.
const (
	headerKey          = "X-Insights-Key"
	headerTruncated    = "X-Insights-Truncated"
	headerConversation = "X-Insights-Conversation"
)

// uploadFormField is the multipart field holding the file.
const uploadFormField = "file"

// handleUpload stores an export. It accepts a multipart form with a "file"
// part, whose own Content-Type is the declared type, or a raw body with an
// optional ?filename=.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadSize)

	req, err := s.readUpload(r)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	result, err := s.svc.Upload(r.Context(), *req)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	s.cfg.Metrics.ObserveUpload(result.ContentType, result.Size)
	respondJSON(w, http.StatusCreated, result)
}

func (s *Server) readUpload(r *http.Request) (*insights.UploadRequest, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		// Reject before reading the body.
		if _, err := insights.ParseMediaType(r.Header.Get("Content-Type")); err != nil {
			return nil, err
		}
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		return &insights.UploadRequest{
			ContentType: r.Header.Get("Content-Type"),
			Filename:    r.URL.Query().Get("filename"),
			Data:        data,
		}, nil
	}

	mr, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", insights.ErrValidation, err)
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, fmt.Errorf("%w: multipart form has no %q field", insights.ErrValidation, uploadFormField)
		}
		if err != nil {
			var maxBytes *http.MaxBytesError
			if errors.As(err, &maxBytes) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", insights.ErrValidation, err)
		}
		if part.FormName() != uploadFormField {
			part.Close()
			continue
		}

		contentType := part.Header.Get("Content-Type")
		if _, err := insights.ParseMediaType(contentType); err != nil {
			return nil, err
		}
		data, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			return nil, fmt.Errorf("read %q part: %w", uploadFormField, err)
		}
		return &insights.UploadRequest{ContentType: contentType, Filename: part.FileName(), Data: data}, nil
	}
}

// analyzeOptions is the JSON body form of an analysis request.
type analyzeOptions struct {
	Key            string          `json:"key"`
	Conversation   *int            `json:"conversation"`
	ConversationID string          `json:"conversation_id"`
	Branch         string          `json:"branch"`
	Export         json.RawMessage `json:"export"` // Inline export; nothing is read from storage
}

// insightResponse is the JSON form of an insight.
type insightResponse struct {
	*insights.Insight
	DurationMS int64 `json:"duration_ms"`
}

// handleInsights analyzes a stored or inline export. Options come from the
// query string (key, conversation, conversation_id, branch) or a JSON body.
// A JSON body that is itself an export is analyzed inline.
func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadSize)

	req, err := s.readAnalyzeRequest(r)
	if err != nil {
		f := s.respondServiceError(w, r, err)
		s.cfg.Metrics.ObserveAnalysisFailure(f.outcome)
		return
	}

	insight, err := s.svc.Analyze(r.Context(), *req)
	if err != nil {
		f := s.respondServiceError(w, r, err)
		s.cfg.Metrics.ObserveAnalysisFailure(f.outcome)
		return
	}
	s.observeAnalysis(insight)

	w.Header().Set(headerTruncated, strconv.FormatBool(insight.Truncated))
	w.Header().Set(headerConversation, strconv.Itoa(insight.ConversationIndex))
	if insight.Key != "" {
		w.Header().Set(headerKey, insight.Key)
	}

	if wantsJSON(r) {
		respondJSON(w, http.StatusOK, insightResponse{Insight: insight, DurationMS: insight.Duration.Milliseconds()})
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, insight.Text)
}

func (s *Server) readAnalyzeRequest(r *http.Request) (*insights.AnalyzeRequest, error) {
	q := r.URL.Query()
	opts := analyzeOptions{
		Key:            q.Get("key"),
		ConversationID: q.Get("conversation_id"),
		Branch:         q.Get("branch"),
	}
	if v := q.Get("conversation"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%w: conversation must be an integer, got %q", insights.ErrValidation, v)
		}
		opts.Conversation = &n
	}

	var inline []byte
	if r.Method == http.MethodPost {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		if len(bytes.TrimSpace(body)) > 0 {
			mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
			if mediaType != insights.MediaTypeJSON {
				return nil, fmt.Errorf("%w: analysis body must be %s", insights.ErrUnsupportedMediaType, insights.MediaTypeJSON)
			}
			inline, err = mergeBody(body, &opts)
			if err != nil {
				return nil, err
			}
		}
	}

	req := &insights.AnalyzeRequest{Key: opts.Key, Data: inline}
	req.Selection.Index = opts.Conversation
	req.Selection.ID = opts.ConversationID
	switch opts.Branch {
	case "", "all":
	case transcript.BranchCurrent:
		req.Selection.Branch = transcript.BranchCurrent
	default:
		return nil, fmt.Errorf("%w: branch must be \"all\" or \"current\", got %q", insights.ErrValidation, opts.Branch)
	}
	if req.Data != nil && req.Key != "" {
		return nil, fmt.Errorf("%w: key and an inline export are mutually exclusive", insights.ErrValidation)
	}
	return req, nil
}

// mergeBody applies a JSON body to opts. Body fields win over the query
// string. It returns the inline export, if the body carries one.
func mergeBody(body []byte, opts *analyzeOptions) ([]byte, error) {
	trimmed := bytes.TrimSpace(body)
	if trimmed[0] == '[' {
		return trimmed, nil
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &keys); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON body: %v", insights.ErrValidation, err)
	}
	if _, ok := keys["mapping"]; ok {
		return trimmed, nil
	}
	if _, ok := keys["conversations"]; ok {
		return trimmed, nil
	}

	var fromBody analyzeOptions
	if err := json.Unmarshal(trimmed, &fromBody); err != nil {
		return nil, fmt.Errorf("%w: invalid analysis options: %v", insights.ErrValidation, err)
	}
	if fromBody.Key != "" {
		opts.Key = fromBody.Key
	}
	if fromBody.Conversation != nil {
		opts.Conversation = fromBody.Conversation
	}
	if fromBody.ConversationID != "" {
		opts.ConversationID = fromBody.ConversationID
	}
	if fromBody.Branch != "" {
		opts.Branch = fromBody.Branch
	}
	if len(fromBody.Export) > 0 && string(fromBody.Export) != "null" {
		return fromBody.Export, nil
	}
	return nil, nil
}

func (s *Server) observeAnalysis(insight *insights.Insight) {
	if s.cfg.Metrics == nil {
		return
	}
	counts := transcript.CountWarnings(insight.Warnings)
	warnings := make(map[string]int, len(counts))
	for kind, n := range counts {
		warnings[string(kind)] = n
	}
	s.cfg.Metrics.ObserveAnalysis(metrics.Analysis{
		Duration:     insight.Duration,
		PayloadChars: insight.PayloadChars,
		Truncated:    insight.Truncated,
		Warnings:     warnings,
		Model:        insight.Model,
		InputTokens:  insight.InputTokens,
		OutputTokens: insight.OutputTokens,
		Cost:         insight.EstimatedCost,
	})
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// exportInfo is one entry of the exports listing.
type exportInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// handleListExports lists stored uploads, newest first.
func (s *Server) handleListExports(w http.ResponseWriter, r *http.Request) {
	objects, err := s.svc.ListExports(r.Context())
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	out := make([]exportInfo, 0, len(objects))
	for _, o := range objects {
		out = append(out, exportInfo{Key: o.Key, Size: o.Size, LastModified: o.LastModified.UTC()})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastModified.After(out[j].LastModified)
	})
	respondJSON(w, http.StatusOK, map[string]any{"exports": out})
}

// handleGetExport returns the raw bytes of a stored upload.
func (s *Server) handleGetExport(w http.ResponseWriter, r *http.Request) {
	key := s.cfg.KeyPrefix + chi.URLParam(r, "*")

	data, err := s.svc.Export(r.Context(), key)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	logger.Ctx(r.Context()).Debug("export downloaded", "key", key, "size", len(data))
	w.Header().Set("Content-Type", insights.DetectMediaType(data))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
