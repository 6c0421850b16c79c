package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

// defaultCompletionTimeout bounds the single highest-latency stage. A
// timeout surfaces as a BackendError like any other backend failure.
const defaultCompletionTimeout = 60 * time.Second

// Completer invokes the LLM backend with a rendered prompt. Single
// attempt, no internal retry.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// GeminiClient is the Gemini-backed Completer.
type GeminiClient struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewGeminiClient creates a Gemini completion client.
func NewGeminiClient(ctx context.Context, apiKey, model string, timeout time.Duration, logger *slog.Logger) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("pipeline: Gemini API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	if timeout <= 0 {
		timeout = defaultCompletionTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline: creating Gemini client: %w", err)
	}

	return &GeminiClient{
		client:  client,
		model:   model,
		timeout: timeout,
		logger:  logger.With("component", "completion"),
	}, nil
}

// Complete sends the prompt and returns the generated text. Fails with a
// BackendError on any backend failure and with ErrEmptyCompletion when the
// call succeeds but yields no text.
func (c *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), nil)
	if err != nil {
		return "", wrapBackendError(err)
	}

	text, err := normalizeCompletion(resp.Text())
	if err != nil {
		return "", err
	}

	c.logger.Info("completion done",
		"model", c.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_chars", len(prompt),
		"reply_chars", len(text),
	)

	return text, nil
}

// normalizeCompletion trims the backend's text and enforces the non-empty
// response policy.
func normalizeCompletion(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

// wrapBackendError converts an SDK failure into a BackendError, tagging
// quota rejections with ErrRateLimited so callers can tell them apart
// without ever touching the SDK's error types.
func wrapBackendError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
		return &BackendError{Cause: fmt.Errorf("%w: %s", ErrRateLimited, apiErr.Message)}
	}
	return &BackendError{Cause: err}
}

var _ Completer = (*GeminiClient)(nil)
