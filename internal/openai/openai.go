// Package openai is a minimal OpenAI-compatible chat completions client.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ConfabulousDev/confab-insights/internal/llm"
)

const (
	providerName = "openai"

	// DefaultURL is the chat completions endpoint.
	DefaultURL = "https://api.openai.com/v1/chat/completions"

	// DefaultModel is used when no model is configured.
	DefaultModel = "gpt-4o-mini"
)

var tracer = otel.Tracer("confab-insights/openai")

// Client is a minimal OpenAI chat completions client. It implements llm.Requester.
type Client struct {
	apiKey     string
	url        string
	model      string
	maxTokens  int
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithTransport sends requests through rt, e.g. an otelhttp transport.
// The client timeout is kept.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.httpClient.Transport = rt
	}
}

// NewClient creates an OpenAI client. Empty url and model use the defaults;
// maxTokens <= 0 leaves the limit to the server.
func NewClient(apiKey, url, model string, maxTokens int, timeout time.Duration, opts ...Option) *Client {
	if url == "" {
		url = DefaultURL
	}
	if model == "" {
		model = DefaultModel
	}
	c := &Client{
		apiKey:    apiKey,
		url:       url,
		model:     model,
		maxTokens: maxTokens,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float32   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *usage `json:"usage"`
}

type usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete sends a system and a user message and returns the first choice.
func (c *Client) Complete(ctx context.Context, system, user string) (*llm.Completion, error) {
	ctx, span := tracer.Start(ctx, "openai.complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", c.model),
		attribute.Int("llm.prompt_chars", len(user)),
	)

	completion, err := c.complete(ctx, system, user)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int64("llm.input_tokens", completion.InputTokens),
		attribute.Int64("llm.output_tokens", completion.OutputTokens),
	)
	return completion, nil
}

func (c *Client) complete(ctx context.Context, system, user string) (*llm.Completion, error) {
	payload, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens: c.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal openai request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create openai request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, llm.Transport(providerName, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, llm.Transport(providerName, fmt.Errorf("failed reading openai response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := truncate(strings.TrimSpace(string(body)), 400)
		var parsed errorResponse
		if json.Unmarshal(body, &parsed) == nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		return nil, llm.ClassifyStatus(providerName, resp.StatusCode, msg, resp.Header)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &llm.Error{
			Kind:      llm.ServiceUnavailable,
			Provider:  providerName,
			Message:   "failed to parse response: " + truncate(string(body), 400),
			Retryable: true,
			Err:       err,
		}
	}

	var content string
	if len(parsed.Choices) > 0 {
		content = strings.TrimSpace(parsed.Choices[0].Message.Content)
	}
	if content == "" {
		return nil, &llm.Error{
			Kind:      llm.ServiceUnavailable,
			Provider:  providerName,
			Message:   "empty model response",
			Retryable: true,
		}
	}

	result := &llm.Completion{Text: content, Model: parsed.Model}
	if result.Model == "" {
		result.Model = c.model
	}
	if parsed.Usage != nil {
		result.InputTokens = parsed.Usage.PromptTokens
		result.OutputTokens = parsed.Usage.CompletionTokens
	}
	return result, nil
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
