package model

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/voxbookapp/voxbook-server/internal/errors"
)

const (
	openAIDefaultTimeout    = 300 * time.Second
	openAIDefaultMaxRetries = 3
)

// OpenAIConfig holds configuration for an OpenAI-compatible backend.
type OpenAIConfig struct {
	APIKey         string
	Model          string        // required: which model to request
	BaseURL        string        // optional: point at a compatible server
	RequestTimeout time.Duration // HTTP timeout
	MaxRetries     int           // SDK transport retries
	HTTPClient     *http.Client  // optional (tests)
}

// OpenAIClient implements LanguageModel using the official OpenAI SDK.
// It works against api.openai.com or any compatible server via BaseURL.
type OpenAIClient struct {
	client openai.Client
	model  string
	logger *slog.Logger

	loaded atomic.Bool
}

// NewOpenAIClient creates an OpenAI-compatible backend client.
func NewOpenAIClient(cfg OpenAIConfig, logger *slog.Logger) *OpenAIClient {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = openAIDefaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = openAIDefaultMaxRetries
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.RequestTimeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIClient{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
		logger: logger,
	}
}

// Name returns the configured model name.
func (c *OpenAIClient) Name() string {
	return c.model
}

// IsLoaded reports whether the last readiness probe succeeded.
func (c *OpenAIClient) IsLoaded() bool {
	return c.loaded.Load()
}

// Load verifies the API is reachable and the key is valid.
func (c *OpenAIClient) Load(ctx context.Context) error {
	page, err := c.client.Models.List(ctx)
	if err != nil {
		return mapOpenAIError(err, "models list failed")
	}
	if page == nil {
		return errors.ModelUnavailable("models list returned nil response")
	}

	c.loaded.Store(true)
	c.logger.Info("model backend ready", "backend", "openai", "model", c.model)
	return nil
}

// Generate runs one chat completion. The chat API handles turn framing
// itself, so no stop sequences are sent.
func (c *OpenAIClient) Generate(ctx context.Context, genReq GenerateRequest) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(genReq.System),
			openai.UserMessage(genReq.Prompt),
		},
		Temperature: openai.Float(genReq.Temperature),
	}
	if genReq.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(genReq.MaxTokens))
	}

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		if ctx.Err() != nil {
			return "", errors.Wrap(ctx.Err(), errors.CodeCancelled, "completion cancelled")
		}
		return "", mapOpenAIError(err, "chat completion failed")
	}
	if len(resp.Choices) == 0 {
		return "", errors.Internal("no choices in response")
	}

	content := resp.Choices[0].Message.Content
	c.logger.Debug("completion finished",
		"backend", "openai",
		"model", resp.Model,
		"duration", time.Since(start),
		"completion_tokens", resp.Usage.CompletionTokens,
	)

	return strings.TrimSpace(content), nil
}

// Release drops the ready flag; there is nothing to unload remotely.
func (c *OpenAIClient) Release(_ context.Context) error {
	c.loaded.Store(false)
	return nil
}

// mapOpenAIError classifies SDK errors: throttling and server-side failures
// are retryable backend unavailability, everything else is terminal.
func mapOpenAIError(err error, msg string) *errors.Error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500 {
			return errors.Wrapf(err, errors.CodeModelUnavailable,
				"%s: status %d", msg, apiErr.StatusCode)
		}
		return errors.Wrapf(err, errors.CodeInternal, "%s: status %d", msg, apiErr.StatusCode)
	}
	// Transport-level failure: connection refused, DNS, timeout.
	return errors.Wrap(err, errors.CodeModelUnavailable, msg)
}

var _ LanguageModel = (*OpenAIClient)(nil)
