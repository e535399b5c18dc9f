package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/dotcommander/vbook/internal/core"
)

const jsonOnlyInstruction = "\n\nIMPORTANT: You MUST respond with valid JSON only. Your entire response must be a single JSON object with no additional text, markdown, or explanations."

type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	retry      core.ResilienceConfig
	limiter    *rate.Limiter
	apiType    string // "anthropic" or "openai"
	logger     *slog.Logger
}

type Option func(*Client)

func WithRetry(maxRetries int, baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retry.MaxRetries = maxRetries
		c.retry.BaseDelay = baseDelay
		c.retry.MaxDelay = maxDelay
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		// Preserve existing transport if any
		transport := c.httpClient.Transport
		c.httpClient = &http.Client{
			Timeout:   timeout,
			Transport: transport,
		}
	}
}

// WithRateLimit paces consecutive calls. The limiter is the deliberate delay
// between external calls; it never affects correctness.
func WithRateLimit(requestsPerMinute int, burst int) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), burst)
	}
}

func WithAPIConfig(baseURL, model string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
		c.model = model
		// Detect API type based on base URL
		if strings.Contains(baseURL, "openai") {
			c.apiType = "openai"
		} else {
			c.apiType = "anthropic"
		}
	}
}

// WithAPIType forces the wire format, for proxies whose URL says nothing.
func WithAPIType(apiType string) Option {
	return func(c *Client) {
		c.apiType = apiType
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func NewClient(apiKey string, opts ...Option) *Client {
	// Configure transport with connection pooling
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     10,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	c := &Client{
		apiKey:  apiKey,
		baseURL: "https://api.anthropic.com/v1",
		model:   "claude-3-5-sonnet-20241022",
		httpClient: &http.Client{
			Timeout:   300 * time.Second,
			Transport: transport,
		},
		retry:   core.DefaultResilienceConfig(),
		limiter: rate.NewLimiter(rate.Limit(0.5), 1), // Default: 30 req/min
		apiType: "anthropic",
		logger:  slog.Default().With("component", "ai_client"),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.logger.Debug("AI client initialized",
		"api_type", c.apiType,
		"base_url", c.baseURL,
		"model", c.model,
		"max_retries", c.retry.MaxRetries,
		"rate_limit", fmt.Sprintf("%v req/s", c.limiter.Limit()))

	return c
}

// Generate sends one request, waiting on the pacing limiter before every
// attempt and retrying transient failures with exponential backoff.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	requestID := uuid.NewString()
	startTime := time.Now()
	logger := c.logger.With("request_id", requestID, "operation", req.Operation)

	if req.MaxTokens <= 0 {
		req.MaxTokens = 4096
	}

	retrier := core.NewRetrier(c.retry, core.IsTransient)
	var response string
	attempt := 0
	err := retrier.ExecuteWithRetry(ctx, req.Operation, func(ctx context.Context) error {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait failed: %w", err)
		}

		logger.Debug("attempting AI generation request",
			"attempt", attempt,
			"system_prompt_length", len(req.System),
			"user_prompt_length", len(req.User),
			"max_tokens", req.MaxTokens,
			"force_json", req.JSON,
			"api_type", c.apiType,
			"model", c.model)

		var err error
		if c.apiType == "openai" {
			response, err = c.doOpenAIRequest(ctx, logger, req)
		} else {
			response, err = c.doAnthropicRequest(ctx, logger, req)
		}
		return err
	})

	duration := time.Since(startTime)
	if err != nil {
		core.RecordLLMCall(req.Operation, "error", duration.Milliseconds())
		logger.Error("AI generation request failed",
			"attempts", attempt,
			"total_duration_ms", duration.Milliseconds(),
			"error", err)
		return "", err
	}

	core.RecordLLMCall(req.Operation, "success", duration.Milliseconds())
	logger.Info("API request successful",
		"attempts", attempt,
		"response_length", len(response),
		"total_duration_ms", duration.Milliseconds())

	return response, nil
}

func (c *Client) doOpenAIRequest(ctx context.Context, logger *slog.Logger, r Request) (string, error) {
	system := r.System
	if r.JSON {
		system += jsonOnlyInstruction
	}

	messages := []map[string]string{}
	if system != "" {
		messages = append(messages, map[string]string{"role": "system", "content": system})
	}
	messages = append(messages, map[string]string{"role": "user", "content": r.User})

	requestBody := map[string]interface{}{
		"model":      c.model,
		"messages":   messages,
		"max_tokens": r.MaxTokens,
	}
	if r.JSON {
		requestBody["response_format"] = map[string]string{"type": "json_object"}
	}

	respBody, err := c.post(ctx, logger, "/chat/completions", requestBody, func(h http.Header) {
		h.Set("Authorization", "Bearer "+c.apiKey)
	})
	if err != nil {
		return "", err
	}

	var response struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	}

	if err := json.Unmarshal(respBody, &response); err != nil {
		logger.Error("failed to parse OpenAI response", "error", err)
		return "", &core.TransientError{Op: r.Operation, Err: fmt.Errorf("parsing response envelope: %w", err)}
	}

	if len(response.Choices) == 0 || strings.TrimSpace(response.Choices[0].Message.Content) == "" {
		return "", &core.TransientError{Op: r.Operation, Err: errors.New("empty response")}
	}

	logger.Debug("OpenAI request completed",
		"prompt_tokens", response.Usage.PromptTokens,
		"completion_tokens", response.Usage.CompletionTokens,
		"total_tokens", response.Usage.TotalTokens)

	return response.Choices[0].Message.Content, nil
}

func (c *Client) doAnthropicRequest(ctx context.Context, logger *slog.Logger, r Request) (string, error) {
	system := r.System
	if r.JSON {
		system += jsonOnlyInstruction
	}

	requestBody := map[string]interface{}{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "user", "content": r.User},
		},
		"max_tokens": r.MaxTokens,
	}
	if system != "" {
		requestBody["system"] = system
	}

	respBody, err := c.post(ctx, logger, "/messages", requestBody, func(h http.Header) {
		h.Set("x-api-key", c.apiKey)
		h.Set("anthropic-version", "2023-06-01")
	})
	if err != nil {
		return "", err
	}

	var response struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}

	if err := json.Unmarshal(respBody, &response); err != nil {
		logger.Error("failed to parse Anthropic response", "error", err)
		return "", &core.TransientError{Op: r.Operation, Err: fmt.Errorf("parsing response envelope: %w", err)}
	}

	var text strings.Builder
	for _, block := range response.Content {
		if block.Type == "" || block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return "", &core.TransientError{Op: r.Operation, Err: errors.New("empty response")}
	}

	logger.Debug("Anthropic request completed",
		"input_tokens", response.Usage.InputTokens,
		"output_tokens", response.Usage.OutputTokens,
		"total_tokens", response.Usage.InputTokens+response.Usage.OutputTokens)

	return text.String(), nil
}

// post sends a JSON body and classifies failures: network errors, 429 and
// 5xx are transient; other non-200 statuses are returned as plain errors.
func (c *Client) post(ctx context.Context, logger *slog.Logger, endpoint string, payload any, auth func(http.Header)) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	auth(req.Header)

	httpStart := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn("HTTP request failed", "endpoint", endpoint, "error", err)
		return nil, &core.TransientError{Op: endpoint, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &core.TransientError{Op: endpoint, Err: fmt.Errorf("reading response: %w", err)}
	}

	logger.Debug("HTTP response received",
		"endpoint", endpoint,
		"status_code", resp.StatusCode,
		"duration_ms", time.Since(httpStart).Milliseconds(),
		"body_size", len(respBody))

	switch {
	case resp.StatusCode == http.StatusOK:
		return respBody, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &core.TransientError{
			Op:         endpoint,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("API error: %s", truncate(string(respBody), 500)),
		}
	default:
		logger.Error("API error", "status_code", resp.StatusCode, "response_body", truncate(string(respBody), 500))
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, truncate(string(respBody), 500))
	}
}

func truncate(s string, n int) string {
	if t := core.Truncate(s, n); t != s {
		return t + "..."
	}
	return s
}
