package model

import (
	"bytes"
	"context"
	"encoding/json/v2"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/voxbookapp/voxbook-server/internal/errors"
)

const (
	llamaCompletionPath = "/completion"
	llamaHealthPath     = "/health"

	llamaDefaultBaseURL        = "http://127.0.0.1:8081"
	llamaDefaultRequestTimeout = 300 * time.Second
	llamaDefaultHealthTimeout  = 5 * time.Second

	// Sampling settings tuned for structured extraction output.
	llamaRepeatPenalty = 1.1
	llamaRepeatLastN   = 64
)

// chatMLStop terminates generation at the end of the assistant turn.
//
//nolint:gochecknoglobals // Static stop sequence list
var chatMLStop = []string{"<|im_end|>", "<|endoftext|>"}

// LlamaConfig holds configuration for the llama-server client.
type LlamaConfig struct {
	BaseURL        string
	Model          string        // reported name; server loads whatever it was started with
	RequestTimeout time.Duration // full completion call budget
	HealthTimeout  time.Duration // readiness probe budget
	HTTPClient     *http.Client  // optional (tests)
}

// LlamaClient talks to a llama.cpp llama-server over its native HTTP API.
// The server owns the weights; Load only verifies readiness and Release
// drops this client's ready flag without unloading anything remotely.
type LlamaClient struct {
	baseURL       string
	model         string
	healthTimeout time.Duration
	httpClient    *http.Client
	logger        *slog.Logger

	loaded atomic.Bool
}

// NewLlamaClient creates a llama-server client.
func NewLlamaClient(cfg LlamaConfig, logger *slog.Logger) *LlamaClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = llamaDefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "llama"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = llamaDefaultRequestTimeout
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = llamaDefaultHealthTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.RequestTimeout}
	}

	return &LlamaClient{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		model:         cfg.Model,
		healthTimeout: cfg.HealthTimeout,
		httpClient:    httpClient,
		logger:        logger,
	}
}

// Name returns the configured model name.
func (c *LlamaClient) Name() string {
	return c.model
}

// IsLoaded reports whether the last readiness probe succeeded.
func (c *LlamaClient) IsLoaded() bool {
	return c.loaded.Load()
}

// Load probes /health until the server reports ready or the budget runs
// out. llama-server returns 503 while the model is still loading into
// memory, so a few one-second retries cover normal startup.
func (c *LlamaClient) Load(ctx context.Context) error {
	attempts := uint(c.healthTimeout / time.Second)
	if attempts < 1 {
		attempts = 1
	}

	err := retry.Do(
		func() error { return c.checkHealth(ctx) },
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(1*time.Second),
	)
	if err != nil {
		return errors.Wrapf(err, errors.CodeModelUnavailable,
			"llama-server at %s is not ready", c.baseURL)
	}

	c.loaded.Store(true)
	c.logger.Info("model backend ready", "backend", "llama", "url", c.baseURL, "model", c.model)
	return nil
}

func (c *LlamaClient) checkHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+llamaHealthPath, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy status: %d", resp.StatusCode)
	}
	return nil
}

// Generate runs one completion. The system and user prompts are framed
// with the ChatML template llama-server expects for instruct models.
func (c *LlamaClient) Generate(ctx context.Context, genReq GenerateRequest) (string, error) {
	stop := genReq.Stop
	if len(stop) == 0 {
		stop = chatMLStop
	}
	nPredict := genReq.MaxTokens
	if nPredict <= 0 {
		nPredict = -1
	}

	payload := completionRequest{
		Prompt:        chatML(genReq.System, genReq.Prompt),
		NPredict:      nPredict,
		Temperature:   genReq.Temperature,
		Stop:          stop,
		CachePrompt:   true,
		RepeatPenalty: llamaRepeatPenalty,
		RepeatLastN:   llamaRepeatLastN,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeInternal, "encode completion request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+llamaCompletionPath, bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, errors.CodeInternal, "create completion request")
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", errors.Wrap(ctx.Err(), errors.CodeCancelled, "completion cancelled")
		}
		c.loaded.Store(false)
		return "", errors.Wrap(err, errors.CodeModelUnavailable, "llama-server unreachable")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusServiceUnavailable:
		c.loaded.Store(false)
		return "", errors.ModelUnavailable("llama-server is still loading the model")
	case resp.StatusCode != http.StatusOK:
		return "", errors.Internalf("completion failed: status %d", resp.StatusCode)
	}

	var cr completionResponse
	if err := json.UnmarshalRead(resp.Body, &cr); err != nil {
		return "", errors.Wrap(err, errors.CodeInternal, "parse completion response")
	}

	c.logger.Debug("completion finished",
		"backend", "llama",
		"duration", time.Since(start),
		"prompt_chars", len(payload.Prompt),
		"output_chars", len(cr.Content),
	)

	return strings.TrimSpace(cr.Content), nil
}

// Release drops the ready flag. The server process keeps the weights
// resident; reclaiming that memory is its operator's call, not ours.
func (c *LlamaClient) Release(_ context.Context) error {
	c.loaded.Store(false)
	return nil
}

type completionRequest struct {
	Prompt        string   `json:"prompt"`
	NPredict      int      `json:"n_predict"`
	Temperature   float64  `json:"temperature"`
	Stop          []string `json:"stop"`
	CachePrompt   bool     `json:"cache_prompt"`
	RepeatPenalty float64  `json:"repeat_penalty"`
	RepeatLastN   int      `json:"repeat_last_n"`
}

type completionResponse struct {
	Content string `json:"content"`
}

// chatML wraps the system and user prompts in the ChatML chat template.
func chatML(system, prompt string) string {
	var sb strings.Builder
	sb.Grow(len(system) + len(prompt) + 64)
	sb.WriteString("<|im_start|>system\n")
	sb.WriteString(system)
	sb.WriteString("<|im_end|>\n<|im_start|>user\n")
	sb.WriteString(prompt)
	sb.WriteString("<|im_end|>\n<|im_start|>assistant\n")
	return sb.String()
}

var _ LanguageModel = (*LlamaClient)(nil)
