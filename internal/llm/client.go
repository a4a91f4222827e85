// Package llm provides the text completion client used for answer
// composition and query rewriting.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/deckardhq/deckard/internal/limit"
	"github.com/deckardhq/deckard/internal/retry"
	"github.com/deckardhq/deckard/pkg/utils"
)

// Client produces a text completion for a prompt.
type Client interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
	Close() error
}

// Default configuration values.
const (
	DefaultBaseURL   = "https://api.anthropic.com"
	DefaultModel     = "claude-sonnet-4-20250514"
	DefaultTimeout   = 120 * time.Second
	DefaultMaxTokens = 1024

	anthropicVersion = "2023-06-01"
)

// Config holds configuration for the Anthropic completion client.
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
	Retry     retry.Policy
	Gate      *limit.Gate
}

// AnthropicClient implements Client against the Anthropic messages API.
type AnthropicClient struct {
	client    *http.Client
	baseURL   string
	apiKey    string
	model     string
	maxTokens int
	policy    retry.Policy
	gate      *limit.Gate
}

// messagesRequest is the Anthropic /v1/messages request format.
type messagesRequest struct {
	Model     string            `json:"model"`
	MaxTokens int               `json:"max_tokens"`
	System    string            `json:"system,omitempty"`
	Messages  []messagesMessage `json:"messages"`
}

type messagesMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// messagesResponse is the Anthropic /v1/messages response format.
type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewAnthropicClient creates a completion client.
func NewAnthropicClient(cfg Config) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.NewPolicy(3, 500*time.Millisecond)
	}
	return &AnthropicClient{
		client:    &http.Client{Timeout: cfg.Timeout},
		baseURL:   cfg.BaseURL,
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		policy:    cfg.Retry,
		gate:      cfg.Gate,
	}, nil
}

// Complete sends one user message and returns the concatenated text blocks.
func (c *AnthropicClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	var out string
	err := c.policy.Do(ctx, func(ctx context.Context) error {
		text, callErr := c.call(ctx, system, prompt)
		if callErr != nil {
			return callErr
		}
		out = text
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("llm completion: %w", err)
	}
	return out, nil
}

func (c *AnthropicClient) call(ctx context.Context, system, prompt string) (string, error) {
	if c.gate != nil {
		release, err := c.gate.Acquire(ctx)
		if err != nil {
			return "", retry.Permanent(err)
		}
		defer release()
	}

	reqBody := messagesRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    system,
		Messages:  []messagesMessage{{Role: "user", Content: prompt}},
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(jsonBody))
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", fmt.Errorf("llm status %d: %s", resp.StatusCode, utils.Truncate(string(body), 200))
	}
	if resp.StatusCode != http.StatusOK {
		return "", retry.Permanent(fmt.Errorf("llm status %d: %s", resp.StatusCode, utils.Truncate(string(body), 200)))
	}

	var msgResp messagesResponse
	if err := json.Unmarshal(body, &msgResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if msgResp.Error != nil {
		return "", retry.Permanent(fmt.Errorf("llm: %s", msgResp.Error.Message))
	}
	if len(msgResp.Content) == 0 {
		return "", retry.Permanent(fmt.Errorf("llm: empty response content"))
	}

	var result strings.Builder
	for _, block := range msgResp.Content {
		if block.Type == "text" {
			result.WriteString(block.Text)
		}
	}
	return result.String(), nil
}

// Close releases resources.
func (c *AnthropicClient) Close() error {
	return nil
}

// ScriptedClient replays canned completions in order. Used in tests.
type ScriptedClient struct {
	Replies []string
	Err     error
	Calls   int
}

func (s *ScriptedClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	s.Calls++
	if s.Err != nil {
		return "", s.Err
	}
	if len(s.Replies) == 0 {
		return "", fmt.Errorf("scripted client: no replies left")
	}
	reply := s.Replies[0]
	s.Replies = s.Replies[1:]
	return reply, nil
}

func (s *ScriptedClient) Close() error { return nil }
