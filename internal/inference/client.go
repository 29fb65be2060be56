// Package inference talks to an OpenAI-compatible chat-completions service.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"doubtdesk/internal/config"
	"doubtdesk/internal/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

var (
	// ErrNotConfigured is returned when no API key is set.
	ErrNotConfigured = errors.New("inference: API key is not configured")
	// ErrEmptyResponse is returned when the service answers without content.
	ErrEmptyResponse = errors.New("inference: empty response")
)

// StatusError reports a non-2xx reply.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("inference: status %d: %s", e.StatusCode, e.Body)
}

// HTTPClient is the subset of *http.Client the client needs.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options configures a Client.
type Options struct {
	BaseURL       string
	APIKey        string
	Model         string
	RatePerSecond float64
	Burst         int
	HTTPClient    HTTPClient
}

// Client sends chat-completion requests. It is safe for concurrent use.
type Client struct {
	endpoint string
	apiKey   string
	model    string
	http     HTTPClient
	limiter  *rate.Limiter
}

// CompletionRequest is one single-turn completion.
type CompletionRequest struct {
	System      string
	Prompt      string
	JSON        bool
	Temperature float64
}

// New builds a Client from opts.
func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "gemini-2.5-flash"
	}

	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		endpoint: normalizeEndpoint(opts.BaseURL),
		apiKey:   strings.TrimSpace(opts.APIKey),
		model:    model,
		http:     httpClient,
		limiter:  rate.NewLimiter(limit, burst),
	}
}

// NewFromConfig builds a Client from application config.
func NewFromConfig(cfg *config.Config) *Client {
	return New(Options{
		BaseURL:       cfg.AIBaseURL,
		APIKey:        cfg.AIAPIKey,
		Model:         cfg.AIModel,
		RatePerSecond: cfg.AIRatePerSecond,
		Burst:         cfg.AIBurst,
	})
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool {
	return c != nil && c.apiKey != ""
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// Complete returns the text content of the first choice.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}

	ctx, span := observability.Tracer.Start(ctx, "inference.Complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("inference.model", c.model),
		attribute.Bool("inference.json", req.JSON),
	)

	out, err := c.complete(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return out, nil
}

func (c *Client) complete(ctx context.Context, req CompletionRequest) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("inference: rate limit wait: %w", err)
	}

	messages := make([]map[string]string, 0, 2)
	if req.System != "" {
		messages = append(messages, map[string]string{"role": "system", "content": req.System})
	}
	messages = append(messages, map[string]string{"role": "user", "content": req.Prompt})

	payload := map[string]any{
		"model":       c.model,
		"temperature": req.Temperature,
		"messages":    messages,
	}
	if req.JSON {
		payload["response_format"] = map[string]string{"type": "json_object"}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("inference: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&cc); err != nil {
		return "", fmt.Errorf("inference: decode response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	content := strings.TrimSpace(cc.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}

// normalizeEndpoint turns a base URL into the chat-completions URL.
func normalizeEndpoint(base string) string {
	endpoint := strings.TrimRight(strings.TrimSpace(base), "/")
	if endpoint == "" {
		endpoint = "https://generativelanguage.googleapis.com/v1beta/openai"
	}
	switch {
	case strings.HasSuffix(endpoint, "/chat/completions"):
		return endpoint
	case strings.HasSuffix(endpoint, "/v1"), strings.HasSuffix(endpoint, "/openai"):
		return endpoint + "/chat/completions"
	default:
		return endpoint + "/v1/chat/completions"
	}
}
