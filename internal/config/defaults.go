package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/deckard/data/db/decks.db"
	}
	if cfg.Storage.VectorIndexPath == "" {
		cfg.Storage.VectorIndexPath = "/usr/local/var/deckard/data/indices/vectors.bin"
	}
	if cfg.Storage.KeywordIndexPath == "" {
		cfg.Storage.KeywordIndexPath = "/usr/local/var/deckard/data/indices/bleve"
	}
	if cfg.Vector.Dimensions == 0 {
		cfg.Vector.Dimensions = 384
	}
	if cfg.Vector.Metric == "" {
		cfg.Vector.Metric = "cosine"
	}

	applyServiceDefaults(&cfg.Embedding, "https://api.openai.com/v1", "text-embedding-3-small", "OPENAI_API_KEY", 60*time.Second)
	applyServiceDefaults(&cfg.Vision, "https://api.anthropic.com", "claude-sonnet-4-20250514", "ANTHROPIC_API_KEY", 120*time.Second)
	applyServiceDefaults(&cfg.LLM, "https://api.anthropic.com", "claude-sonnet-4-20250514", "ANTHROPIC_API_KEY", 120*time.Second)
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}

	if cfg.Planner.K == 0 {
		cfg.Planner.K = 8
	}
	if cfg.Planner.MinSimilarity == 0 {
		cfg.Planner.MinSimilarity = 0.15
	}
	if cfg.Planner.NumericBoost == 0 {
		cfg.Planner.NumericBoost = 1.25
	}
	if cfg.Planner.KeywordBoost == 0 {
		cfg.Planner.KeywordBoost = 1.15
	}
	if cfg.Normalize.OverlapThreshold == 0 {
		cfg.Normalize.OverlapThreshold = 0.8
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".pptx", ".pdf"}
	}
}

func applyServiceDefaults(svc *ServiceConfig, baseURL, model, keyEnv string, timeout time.Duration) {
	if svc.BaseURL == "" {
		svc.BaseURL = baseURL
	}
	if svc.Model == "" {
		svc.Model = model
	}
	if svc.APIKeyEnv == "" {
		svc.APIKeyEnv = keyEnv
	}
	if svc.Timeout == 0 {
		svc.Timeout = timeout
	}
	if svc.MaxAttempts == 0 {
		svc.MaxAttempts = 3
	}
	if svc.BackoffBase == 0 {
		svc.BackoffBase = 500 * time.Millisecond
	}
	if svc.MaxConcurrent == 0 {
		svc.MaxConcurrent = 4
	}
}
