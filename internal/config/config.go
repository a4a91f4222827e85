// Package config provides configuration loading and structs for the Deckard server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Vector    VectorConfig    `yaml:"vector"`
	Embedding ServiceConfig   `yaml:"embedding"`
	Vision    ServiceConfig   `yaml:"vision"`
	LLM       ServiceConfig   `yaml:"llm"`
	Planner   PlannerConfig   `yaml:"planner"`
	Normalize NormalizeConfig `yaml:"normalize"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the database and index snapshots.
type StorageConfig struct {
	DatabasePath     string `yaml:"database_path"`
	VectorIndexPath  string `yaml:"vector_index_path"`
	KeywordIndexPath string `yaml:"keyword_index_path"`
}

// VectorConfig holds vector index settings. Dimensions is fixed process-wide;
// a unit embedded at a different dimensionality is a fatal configuration error.
type VectorConfig struct {
	Dimensions int    `yaml:"dimensions"`
	Metric     string `yaml:"metric"` // "cosine" or "inner_product"
}

// ServiceConfig holds settings for one external model service: endpoint,
// retry discipline, and admission control.
type ServiceConfig struct {
	BaseURL       string        `yaml:"base_url"`
	Model         string        `yaml:"model"`
	APIKeyEnv     string        `yaml:"api_key_env"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxAttempts   int           `yaml:"max_attempts"`
	BackoffBase   time.Duration `yaml:"backoff_base"`
	MaxConcurrent int           `yaml:"max_concurrent"`
	// RatePerSecond is an optional proactive throttle; 0 disables it.
	RatePerSecond float64 `yaml:"rate_per_second"`
	// CacheSize applies to the embedding service only.
	CacheSize int `yaml:"cache_size"`
	// ModelPath applies to the local ONNX embedder only.
	ModelPath string `yaml:"model_path"`
	MaxTokens int    `yaml:"max_tokens"`
}

// PlannerConfig holds query-time retrieval settings.
type PlannerConfig struct {
	K             int     `yaml:"k"`
	MinSimilarity float64 `yaml:"min_similarity"`
	// NumericBoost multiplies table/chart unit scores when the question
	// carries numeric or comparison vocabulary.
	NumericBoost float64 `yaml:"numeric_boost"`
	// KeywordBoost multiplies scores of units that are also BM25 hits.
	KeywordBoost float64 `yaml:"keyword_boost"`
	// RewriteEnabled turns on LLM query rewriting when an API key is set.
	RewriteEnabled bool `yaml:"rewrite_enabled"`
}

// NormalizeConfig holds content normalization settings.
type NormalizeConfig struct {
	// OverlapThreshold is the area-overlap ratio above which two detected
	// image regions collapse into one (the larger survives).
	OverlapThreshold float64 `yaml:"overlap_threshold"`
}

// WatchConfig holds automatic drop-directory ingestion settings.
type WatchConfig struct {
	Directory  string   `yaml:"directory"`
	Extensions []string `yaml:"extensions"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.VectorIndexPath = expandPath(cfg.Storage.VectorIndexPath, configDir)
	cfg.Storage.KeywordIndexPath = expandPath(cfg.Storage.KeywordIndexPath, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	if cfg.Watch.Directory != "" {
		cfg.Watch.Directory = expandPath(cfg.Watch.Directory, configDir)
	}

	return &cfg, nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
