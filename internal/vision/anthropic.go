package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/deckardhq/deckard/internal/limit"
	"github.com/deckardhq/deckard/internal/models"
	"github.com/deckardhq/deckard/internal/retry"
	"github.com/deckardhq/deckard/pkg/utils"
)

// Default configuration values.
const (
	DefaultBaseURL   = "https://api.anthropic.com"
	DefaultModel     = "claude-sonnet-4-20250514"
	DefaultTimeout   = 120 * time.Second
	DefaultMaxTokens = 1024

	anthropicVersion = "2023-06-01"
)

const describePrompt = `Describe this slide image for a retrieval system. If it is a chart or graph, state the chart type, what it measures, and read off the data points you can see. Respond with JSON only:
{"description": "<two to four sentences>", "series": [{"label": "<category>", "value": <number>}], "confidence": <0.0 to 1.0>}
Omit "series" if no data values are legible. Set confidence to how certain you are of the reading.`

// Config holds configuration for the Anthropic vision describer.
type Config struct {
	// APIKey is the Anthropic API key (required).
	APIKey string
	// BaseURL is the API base URL (default: https://api.anthropic.com).
	BaseURL string
	// Model is the vision-capable model to use.
	Model string
	// MaxTokens caps the response length.
	MaxTokens int
	// Timeout is the per-request timeout (default: 120s).
	Timeout time.Duration
	// Retry bounds transient-failure retries.
	Retry retry.Policy
	// Gate bounds concurrent outstanding calls; nil disables admission control.
	Gate *limit.Gate
}

// AnthropicDescriber describes images via the Anthropic messages API.
type AnthropicDescriber struct {
	client    *http.Client
	baseURL   string
	apiKey    string
	model     string
	maxTokens int
	policy    retry.Policy
	gate      *limit.Gate
}

// visionRequest is the Anthropic /v1/messages request format with an image block.
type visionRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	Messages  []visionMessage `json:"messages"`
}

type visionMessage struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// visionResponse is the Anthropic /v1/messages response format.
type visionResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewAnthropicDescriber creates a vision describer backed by the Anthropic API.
func NewAnthropicDescriber(cfg Config) (*AnthropicDescriber, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("vision: API key is required")
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
	return &AnthropicDescriber{
		client:    &http.Client{Timeout: cfg.Timeout},
		baseURL:   cfg.BaseURL,
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		policy:    cfg.Retry,
		gate:      cfg.Gate,
	}, nil
}

// Describe sends the image and parses the structured description. After retry
// exhaustion it returns ErrVisionService; callers degrade to Placeholder.
func (d *AnthropicDescriber) Describe(ctx context.Context, image []byte, mediaType string) (*models.ChartPayload, error) {
	var payload *models.ChartPayload
	err := d.policy.Do(ctx, func(ctx context.Context) error {
		p, callErr := d.call(ctx, image, mediaType)
		if callErr != nil {
			return callErr
		}
		payload = p
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", models.ErrVisionService, err)
	}
	return payload, nil
}

func (d *AnthropicDescriber) call(ctx context.Context, image []byte, mediaType string) (*models.ChartPayload, error) {
	if d.gate != nil {
		release, err := d.gate.Acquire(ctx)
		if err != nil {
			return nil, retry.Permanent(err)
		}
		defer release()
	}

	reqBody := visionRequest{
		Model:     d.model,
		MaxTokens: d.maxTokens,
		Messages: []visionMessage{{
			Role: "user",
			Content: []contentBlock{
				{Type: "image", Source: &imageSource{
					Type:      "base64",
					MediaType: mediaType,
					Data:      base64.StdEncoding.EncodeToString(image),
				}},
				{Type: "text", Text: describePrompt},
			},
		}},
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/v1/messages", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", d.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, fmt.Errorf("vision service status %d: %s", resp.StatusCode, utils.Truncate(string(body), 200))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, retry.Permanent(fmt.Errorf("vision service status %d: %s", resp.StatusCode, utils.Truncate(string(body), 200)))
	}

	var msgResp visionResponse
	if err := json.Unmarshal(body, &msgResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if msgResp.Error != nil {
		return nil, retry.Permanent(fmt.Errorf("vision service: %s", msgResp.Error.Message))
	}

	var text strings.Builder
	for _, block := range msgResp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return parseDescription(text.String())
}

// rawReplyConfidence is assigned when the model answers in prose instead of
// the requested JSON; the text is still a usable description.
const rawReplyConfidence = 0.5

// parseDescription decodes the model's JSON reply. Models sometimes wrap JSON
// in code fences or prose; we extract the outermost object before decoding.
// A reply that carries no JSON (or broken JSON) degrades to the raw text as
// the description; only an empty reply is a permanent failure.
func parseDescription(text string) (*models.ChartPayload, error) {
	raw := extractJSONObject(text)
	if raw == "" {
		return rawTextPayload(text)
	}
	var parsed struct {
		Description string `json:"description"`
		Series      []struct {
			Label string  `json:"label"`
			Value float64 `json:"value"`
		} `json:"series"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return rawTextPayload(text)
	}
	if strings.TrimSpace(parsed.Description) == "" {
		return rawTextPayload(text)
	}

	payload := &models.ChartPayload{
		Description: strings.TrimSpace(parsed.Description),
		Confidence:  clamp01(parsed.Confidence),
	}
	for _, s := range parsed.Series {
		if strings.TrimSpace(s.Label) == "" {
			continue
		}
		payload.Series = append(payload.Series, models.SeriesPoint{
			Label: strings.TrimSpace(s.Label),
			Value: s.Value,
		})
	}
	return payload, nil
}

// rawTextPayload salvages a prose-only reply as the description.
func rawTextPayload(text string) (*models.ChartPayload, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, retry.Permanent(fmt.Errorf("empty vision reply"))
	}
	return &models.ChartPayload{
		Description: trimmed,
		Confidence:  rawReplyConfidence,
	}, nil
}

func extractJSONObject(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Close releases resources.
func (d *AnthropicDescriber) Close() error {
	return nil
}
