package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  port: 9090
storage:
  database_path: ./data/decks.db
planner:
  k: 5
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true")
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port=%d", cfg.Server.Port)
	}
	if cfg.Server.Host != "localhost" {
		t.Errorf("host default=%q", cfg.Server.Host)
	}
	if cfg.Planner.K != 5 {
		t.Errorf("k=%d", cfg.Planner.K)
	}
	if cfg.Planner.MinSimilarity != 0.15 {
		t.Errorf("min_similarity default=%v", cfg.Planner.MinSimilarity)
	}
	if cfg.Normalize.OverlapThreshold != 0.8 {
		t.Errorf("overlap_threshold default=%v", cfg.Normalize.OverlapThreshold)
	}
	if cfg.Vector.Dimensions != 384 || cfg.Vector.Metric != "cosine" {
		t.Errorf("vector defaults=%+v", cfg.Vector)
	}
	if cfg.Embedding.MaxAttempts != 3 {
		t.Errorf("embedding max_attempts default=%d", cfg.Embedding.MaxAttempts)
	}
	// "./" paths expand relative to the config dir.
	want := filepath.Join(dir, "data/decks.db")
	if cfg.Storage.DatabasePath != want {
		t.Errorf("database_path=%q, want %q", cfg.Storage.DatabasePath, want)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing config")
	}
}
