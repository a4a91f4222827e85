package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/deckardhq/deckard/internal/limit"
	"github.com/deckardhq/deckard/internal/models"
	"github.com/deckardhq/deckard/internal/retry"
	"github.com/deckardhq/deckard/pkg/utils"
)

// Default configuration values for the remote embedder.
const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "text-embedding-3-small"
	DefaultTimeout = 60 * time.Second
)

// RemoteConfig holds configuration for the remote embedding service.
type RemoteConfig struct {
	// APIKey is the service API key (required).
	APIKey string
	// BaseURL is the API base URL (default: https://api.openai.com/v1).
	// Can be changed for Azure OpenAI or compatible APIs.
	BaseURL string
	// Model is the embedding model to use (default: text-embedding-3-small).
	Model string
	// Dimensions is the embedding size requested from the model (required;
	// must match the vector index's process-wide dimensionality).
	Dimensions int
	// Timeout is the per-request timeout (default: 60s).
	Timeout time.Duration
	// Retry bounds transient-failure retries.
	Retry retry.Policy
	// Gate bounds concurrent outstanding calls; nil disables admission control.
	Gate *limit.Gate
	// CacheSize is the LRU cache capacity; 0 disables caching.
	CacheSize int
}

// RemoteEmbedder generates embeddings via an OpenAI-compatible HTTP API.
type RemoteEmbedder struct {
	client     *http.Client
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	policy     retry.Policy
	gate       *limit.Gate
	cache      *EmbeddingCache
}

// embeddingRequest is the OpenAI API request format.
type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

// embeddingResponse is the OpenAI API response format.
type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// NewRemoteEmbedder creates a remote embedding client.
func NewRemoteEmbedder(cfg RemoteConfig) (*RemoteEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("embedding: API key is required")
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("embedding: dimensions must be positive")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.NewPolicy(3, 500*time.Millisecond)
	}
	e := &RemoteEmbedder{
		client:     &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		policy:     cfg.Retry,
		gate:       cfg.Gate,
	}
	if cfg.CacheSize > 0 {
		e.cache = NewEmbeddingCache(cfg.CacheSize)
	}
	return e, nil
}

// Embed generates a vector embedding for the given text.
func (e *RemoteEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.cache != nil {
		if v, ok := e.cache.Get(text); ok {
			return v, nil
		}
	}
	embeddings, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("%w: no embedding returned", models.ErrEmbeddingService)
	}
	return embeddings[0], nil
}

// EmbedBatch generates embeddings for multiple texts in one call, retrying
// transient failures. After retry exhaustion it returns ErrEmbeddingService.
func (e *RemoteEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var out [][]float32
	err := e.policy.Do(ctx, func(ctx context.Context) error {
		vecs, callErr := e.call(ctx, texts)
		if callErr != nil {
			return callErr
		}
		out = vecs
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", models.ErrEmbeddingService, err)
	}
	if e.cache != nil {
		for i, t := range texts {
			e.cache.Set(t, out[i])
		}
	}
	return out, nil
}

func (e *RemoteEmbedder) call(ctx context.Context, texts []string) ([][]float32, error) {
	if e.gate != nil {
		release, err := e.gate.Acquire(ctx)
		if err != nil {
			return nil, retry.Permanent(err)
		}
		defer release()
	}

	reqBody := embeddingRequest{
		Model:      e.model,
		Input:      texts,
		Dimensions: e.dimensions,
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	// 429 and 5xx are transient; other non-200s will not improve on retry.
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, fmt.Errorf("embedding service status %d: %s", resp.StatusCode, utils.Truncate(string(body), 200))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, retry.Permanent(fmt.Errorf("embedding service status %d: %s", resp.StatusCode, utils.Truncate(string(body), 200)))
	}

	var embedResp embeddingResponse
	if err := json.Unmarshal(body, &embedResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if embedResp.Error != nil {
		return nil, retry.Permanent(fmt.Errorf("embedding service: %s", embedResp.Error.Message))
	}
	if len(embedResp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding service returned %d vectors for %d inputs", len(embedResp.Data), len(texts))
	}

	embeddings := make([][]float32, len(texts))
	for _, data := range embedResp.Data {
		if data.Index < 0 || data.Index >= len(texts) {
			return nil, fmt.Errorf("embedding service returned out-of-range index %d", data.Index)
		}
		if len(data.Embedding) != e.dimensions {
			return nil, retry.Permanent(fmt.Errorf("embedding dimension mismatch: got %d, expected %d", len(data.Embedding), e.dimensions))
		}
		vec := make([]float32, len(data.Embedding))
		for i, v := range data.Embedding {
			vec[i] = float32(v)
		}
		utils.NormalizeL2(vec)
		embeddings[data.Index] = vec
	}
	return embeddings, nil
}

// Dimensions returns the embedding vector size.
func (e *RemoteEmbedder) Dimensions() int {
	return e.dimensions
}

// Close releases resources.
func (e *RemoteEmbedder) Close() error {
	return nil
}
