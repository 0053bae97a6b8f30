// Package llm is the single gateway to the external chat-completion
// service. Every pipeline stage that talks to the model goes through
// Client; JSON extraction and the stale-role post-edit live here so no
// caller sees raw model output.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tessera-intel/tessera/pkg/config"
)

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// Options overrides per-call generation parameters. A nil Temperature
// falls back to the configured default; Temp(0) forces deterministic
// output.
type Options struct {
	MaxTokens   int
	Temperature *float64
}

// Temp returns a Temperature override for Options.
func Temp(v float64) *float64 { return &v }

// Client calls an OpenAI-compatible chat-completion endpoint.
type Client struct {
	cfg        config.LLMConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Client from configuration.
func NewClient(cfg config.LLMConfig, logger *slog.Logger) *Client {
	if logger == nil {
		panic("NewClient: logger must not be nil")
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With("component", "llm"),
	}
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete sends a system+user prompt and returns the post-edited
// completion text.
func (c *Client) Complete(ctx context.Context, system, user string, opts Options) (string, error) {
	return c.ChatCompletion(ctx, []Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}, opts)
}

// ChatCompletion is the multi-turn form of Complete.
func (c *Client) ChatCompletion(ctx context.Context, messages []Message, opts Options) (string, error) {
	req := chatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}
	if opts.Temperature != nil {
		req.Temperature = *opts.Temperature
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("chat completion request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read chat response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat completion returned status %d: %s", resp.StatusCode, truncate(string(respBody), 300))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode chat response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("chat completion error (%s): %s", parsed.Error.Type, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	out := PostEdit(parsed.Choices[0].Message.Content)
	c.logger.DebugContext(ctx, "chat completion",
		"model", req.Model,
		"messages", len(messages),
		"duration", time.Since(start),
		"response_chars", len(out))
	return out, nil
}

// CompleteJSON sends a system+user prompt expected to yield JSON. A JSON
// instruction is appended when the prompt lacks one; the response is
// recovered into a Result rather than an error so callers can distinguish
// retryable parse failures from schema failures.
func (c *Client) CompleteJSON(ctx context.Context, system, user string, opts Options) (Result, error) {
	if !strings.Contains(strings.ToUpper(system), "JSON") && !strings.Contains(strings.ToUpper(user), "JSON") {
		user += "\n\nRespond with valid JSON only, no prose."
	}
	raw, err := c.Complete(ctx, system, user, opts)
	if err != nil {
		return Result{}, err
	}
	return Recover(raw), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
