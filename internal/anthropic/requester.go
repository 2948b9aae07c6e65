package anthropic

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ConfabulousDev/confab-insights/internal/llm"
)

const (
	providerName = "anthropic"

	// DefaultModel is used when no model is configured.
	DefaultModel = "claude-sonnet-4-5-20250929"

	// DefaultMaxTokens bounds the generated insight.
	DefaultMaxTokens = 4096
)

var tracer = otel.Tracer("confab-insights/anthropic")

// Requester adapts Client to llm.Requester.
type Requester struct {
	client    *Client
	model     string
	maxTokens int
}

// NewRequester returns a requester for model. Empty model and non-positive
// maxTokens fall back to the defaults.
func NewRequester(client *Client, model string, maxTokens int) *Requester {
	if model == "" {
		model = DefaultModel
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Requester{client: client, model: model, maxTokens: maxTokens}
}

// Complete sends one system instruction and one user message. Temperature is
// pinned to 0 so repeated analyses of the same export stay comparable.
func (r *Requester) Complete(ctx context.Context, system, user string) (*llm.Completion, error) {
	ctx, span := tracer.Start(ctx, "anthropic.complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", r.model),
		attribute.Int("llm.prompt_chars", len(user)),
	)

	temperature := 0.0
	resp, err := r.client.CreateMessage(ctx, &MessagesRequest{
		Model:       r.model,
		MaxTokens:   r.maxTokens,
		Temperature: &temperature,
		System:      system,
		Messages:    []Message{{Role: "user", Content: user}},
	})
	if err != nil {
		le := classify(err)
		span.RecordError(le)
		span.SetStatus(codes.Error, le.Error())
		return nil, le
	}

	text := strings.TrimSpace(resp.GetTextContent())
	if text == "" {
		le := &llm.Error{
			Kind:      llm.ServiceUnavailable,
			Provider:  providerName,
			Message:   "empty response (stop_reason " + resp.StopReason + ")",
			Retryable: true,
		}
		span.RecordError(le)
		span.SetStatus(codes.Error, le.Error())
		return nil, le
	}

	model := resp.Model
	if model == "" {
		model = r.model
	}
	span.SetAttributes(
		attribute.Int("llm.input_tokens", resp.Usage.InputTokens),
		attribute.Int("llm.output_tokens", resp.Usage.OutputTokens),
	)
	return &llm.Completion{
		Text:         text,
		Model:        model,
		InputTokens:  int64(resp.Usage.InputTokens),
		OutputTokens: int64(resp.Usage.OutputTokens),
	}, nil
}

func classify(err error) *llm.Error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		le := llm.ClassifyStatus(providerName, apiErr.StatusCode, apiErr.ErrorDetail.Message, apiErr.Header)
		le.Err = apiErr
		return le
	}
	return llm.Transport(providerName, err)
}
