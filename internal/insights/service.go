// Package insights orchestrates upload and analysis of conversation exports.
package insights

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ConfabulousDev/confab-insights/internal/llm"
	"github.com/ConfabulousDev/confab-insights/internal/logger"
	"github.com/ConfabulousDev/confab-insights/internal/storage"
	"github.com/ConfabulousDev/confab-insights/internal/transcript"
)

var tracer = otel.Tracer("confab-insights/insights")

// SystemInstruction is sent with every analysis request.
const SystemInstruction = "Analyze the following conversation for patterns, common mistakes, and learning improvements:"

// DefaultKeyPrefix is where uploads are stored.
const DefaultKeyPrefix = "exports/"

// BlobStore is the subset of the storage backends the service needs.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error)
}

// Config holds service limits and timeouts.
type Config struct {
	MaxPayloadChars      int           // Linearized payload budget in characters
	MaxArchiveMemberSize int64         // Decompressed size cap for the analyzed ZIP member
	StorageTimeout       time.Duration // Per blob store call
	GenerationTimeout    time.Duration // Per requester call
	KeyPrefix            string
}

// DefaultConfig returns the defaults used when a field is zero.
func DefaultConfig() Config {
	return Config{
		MaxPayloadChars:      transcript.DefaultMaxChars,
		MaxArchiveMemberSize: 256 << 20,
		StorageTimeout:       30 * time.Second,
		GenerationTimeout:    120 * time.Second,
		KeyPrefix:            DefaultKeyPrefix,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxPayloadChars <= 0 {
		c.MaxPayloadChars = d.MaxPayloadChars
	}
	if c.MaxArchiveMemberSize <= 0 {
		c.MaxArchiveMemberSize = d.MaxArchiveMemberSize
	}
	if c.StorageTimeout <= 0 {
		c.StorageTimeout = d.StorageTimeout
	}
	if c.GenerationTimeout <= 0 {
		c.GenerationTimeout = d.GenerationTimeout
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = d.KeyPrefix
	}
	if !strings.HasSuffix(c.KeyPrefix, "/") {
		c.KeyPrefix += "/"
	}
	return c
}

// Service implements upload and analyze. It holds no per-request state.
type Service struct {
	store     BlobStore
	requester llm.Requester
	cfg       Config
}

// NewService creates a Service. Zero Config fields take their defaults.
func NewService(store BlobStore, requester llm.Requester, cfg Config) *Service {
	return &Service{store: store, requester: requester, cfg: cfg.withDefaults()}
}

// Config returns the effective configuration.
func (s *Service) Config() Config {
	return s.cfg
}

// AnalyzeRequest selects what to analyze. Data, when set, is an export
// posted inline and nothing is read from the store.
type AnalyzeRequest struct {
	Key       string
	Data      []byte
	Selection transcript.Selection
}

// Insight is the result of one analysis.
type Insight struct {
	Text string `json:"insight"`

	Key               string `json:"key,omitempty"`
	Member            string `json:"member,omitempty"` // ZIP member analyzed
	ConversationTitle string `json:"conversation_title,omitempty"`
	ConversationID    string `json:"conversation_id,omitempty"`
	ConversationIndex int    `json:"conversation_index"`
	ConversationCount int    `json:"conversation_count"`

	Truncated    bool                 `json:"truncated"`
	PayloadChars int                  `json:"payload_chars"`
	Lines        int                  `json:"lines"`
	SkippedLines int                  `json:"skipped_lines"`
	Warnings     []transcript.Warning `json:"warnings,omitempty"`

	Model         string          `json:"model"`
	InputTokens   int64           `json:"input_tokens"`
	OutputTokens  int64           `json:"output_tokens"`
	EstimatedCost decimal.Decimal `json:"estimated_cost_usd"`
	Duration      time.Duration   `json:"-"`
}

// Analyze resolves the export, linearizes the selected conversation and asks
// the requester for insights. The store is only read, so a failed analysis
// leaves the upload in place for a retry.
func (s *Service) Analyze(ctx context.Context, req AnalyzeRequest) (*Insight, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "insights.analyze",
		trace.WithAttributes(attribute.String("export.key", req.Key)))
	defer span.End()

	insight, err := s.analyze(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	insight.Duration = time.Since(start)

	span.SetAttributes(
		attribute.Int("payload.chars", insight.PayloadChars),
		attribute.Bool("payload.truncated", insight.Truncated),
		attribute.Int("tree.warnings", len(insight.Warnings)),
	)
	logger.Ctx(ctx).Info("analysis complete",
		"key", insight.Key,
		"conversation_index", insight.ConversationIndex,
		"payload_chars", humanize.Comma(int64(insight.PayloadChars)),
		"truncated", insight.Truncated,
		"model", insight.Model,
		"input_tokens", insight.InputTokens,
		"output_tokens", insight.OutputTokens,
		"estimated_cost_usd", insight.EstimatedCost.StringFixed(4),
		"duration_ms", insight.Duration.Milliseconds())
	return insight, nil
}

func (s *Service) analyze(ctx context.Context, req AnalyzeRequest) (*Insight, error) {
	var (
		data []byte
		key  string
	)
	if req.Data != nil {
		if len(req.Data) == 0 {
			return nil, fmt.Errorf("%w: empty export", ErrValidation)
		}
		data = req.Data
	} else {
		var err error
		key, err = s.resolveKey(ctx, req.Key)
		if err != nil {
			return nil, err
		}
		data, err = s.get(ctx, key)
		if err != nil {
			return nil, err
		}
		ctx = logger.WithLogger(ctx, logger.Ctx(ctx).With("key", key))
	}

	prepared, err := s.prepare(ctx, data, req.Selection)
	if err != nil {
		return nil, err
	}

	genCtx, cancel := context.WithTimeout(ctx, s.cfg.GenerationTimeout)
	defer cancel()
	completion, err := s.requester.Complete(genCtx, SystemInstruction, prepared.payload.Text)
	if err != nil {
		ue := newUpstreamError(err)
		logger.Ctx(ctx).Error("analysis request failed",
			"error", err,
			"retryable", ue.Retryable,
			"rate_limited", ue.RateLimited)
		return nil, ue
	}

	return &Insight{
		Text:              completion.Text,
		Key:               key,
		Member:            prepared.member,
		ConversationTitle: prepared.title,
		ConversationID:    prepared.conversationID,
		ConversationIndex: prepared.index,
		ConversationCount: prepared.count,
		Truncated:         prepared.payload.Truncated,
		PayloadChars:      prepared.payload.Chars(),
		Lines:             prepared.payload.Lines,
		SkippedLines:      prepared.payload.Skipped,
		Warnings:          prepared.warnings,
		Model:             completion.Model,
		InputTokens:       completion.InputTokens,
		OutputTokens:      completion.OutputTokens,
		EstimatedCost:     llm.EstimateCost(completion),
	}, nil
}

// resolveKey validates an explicit key, or finds the latest upload.
func (s *Service) resolveKey(ctx context.Context, key string) (string, error) {
	if key != "" {
		if err := s.checkKey(key); err != nil {
			return "", err
		}
		return key, nil
	}

	listCtx, cancel := context.WithTimeout(ctx, s.cfg.StorageTimeout)
	defer cancel()
	objects, err := s.store.List(listCtx, s.cfg.KeyPrefix)
	if err != nil {
		return "", fmt.Errorf("%w: list exports: %w", ErrStorage, err)
	}
	latest, ok := storage.Latest(objects)
	if !ok {
		return "", fmt.Errorf("%w: no export has been uploaded yet", ErrNotFound)
	}
	return latest.Key, nil
}

// checkKey keeps callers inside the upload prefix.
func (s *Service) checkKey(key string) error {
	if !strings.HasPrefix(key, s.cfg.KeyPrefix) || strings.Contains(key, "..") {
		return fmt.Errorf("%w: key must start with %q", ErrValidation, s.cfg.KeyPrefix)
	}
	return nil
}

func (s *Service) get(ctx context.Context, key string) ([]byte, error) {
	getCtx, cancel := context.WithTimeout(ctx, s.cfg.StorageTimeout)
	defer cancel()
	data, err := s.store.Get(getCtx, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: export %q: %w", ErrNotFound, key, err)
		}
		return nil, fmt.Errorf("%w: read %q: %w", ErrStorage, key, err)
	}
	return data, nil
}

// Export returns the raw bytes of a stored upload.
func (s *Service) Export(ctx context.Context, key string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "insights.export",
		trace.WithAttributes(attribute.String("export.key", key)))
	defer span.End()

	if err := s.checkKey(key); err != nil {
		return nil, err
	}
	data, err := s.get(ctx, key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return data, nil
}

// ListExports returns stored uploads sorted by key.
func (s *Service) ListExports(ctx context.Context) ([]storage.ObjectInfo, error) {
	listCtx, cancel := context.WithTimeout(ctx, s.cfg.StorageTimeout)
	defer cancel()
	objects, err := s.store.List(listCtx, s.cfg.KeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("%w: list exports: %w", ErrStorage, err)
	}
	return objects, nil
}
