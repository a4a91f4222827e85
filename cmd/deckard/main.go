// Package main is the Deckard CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/deckardhq/deckard/internal/compose"
	"github.com/deckardhq/deckard/internal/config"
	"github.com/deckardhq/deckard/internal/embedding"
	"github.com/deckardhq/deckard/internal/ingest"
	"github.com/deckardhq/deckard/internal/keyword"
	"github.com/deckardhq/deckard/internal/limit"
	"github.com/deckardhq/deckard/internal/llm"
	"github.com/deckardhq/deckard/internal/models"
	"github.com/deckardhq/deckard/internal/normalize"
	"github.com/deckardhq/deckard/internal/planner"
	"github.com/deckardhq/deckard/internal/retry"
	"github.com/deckardhq/deckard/internal/server"
	"github.com/deckardhq/deckard/internal/storage"
	"github.com/deckardhq/deckard/internal/vector"
	"github.com/deckardhq/deckard/internal/vision"
	"github.com/deckardhq/deckard/internal/watcher"
	"github.com/deckardhq/deckard/pkg/utils"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/deckard/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used,
// so that "deckard server" from the project dir uses the project's config.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	// API keys commonly live in a .env next to the config during development.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ingest":
		runIngest()
	case "ask":
		runAsk()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("deckard version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (per-slide extraction, vision calls, etc.)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	var watchSvc *watcher.Watcher
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if cfg.Watch.Directory != "" {
		watchOpts := []watcher.Option{}
		if debugMode {
			watchOpts = append(watchOpts, watcher.WithLogger(logger))
		}
		pipeline := components.Pipeline
		watchSvc = watcher.New(
			[]string{cfg.Watch.Directory},
			cfg.Watch.Extensions,
			func(path string) {
				report, ingErr := pipeline.IngestFile(context.Background(), path)
				if ingErr != nil {
					logger.Warn("watch ingest failed", zap.String("path", path), zap.Error(ingErr))
					return
				}
				logger.Info("watch ingest complete",
					zap.String("path", path),
					zap.String("document_id", report.DocumentID),
					zap.Int("indexed", report.Indexed),
				)
			},
			watchOpts...,
		)
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
	}

	srv := server.NewServer(
		components.Pipeline,
		components.Planner,
		components.Composer,
		components.Storage,
		components.VectorIndex,
		&cfg.Server,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if cfg.Storage.VectorIndexPath != "" {
		if err := components.VectorIndex.Save(cfg.Storage.VectorIndexPath); err != nil {
			logger.Warn("vector index save failed", zap.String("path", cfg.Storage.VectorIndexPath), zap.Error(err))
		}
	}
	if watchSvc != nil {
		watchSvc.Stop()
	}
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: deckard ingest [flags] <file.pptx|file.pdf>")
		os.Exit(1)
	}
	path := fs.Arg(0)

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	report, err := components.Pipeline.IngestFile(context.Background(), path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", err)
		os.Exit(1)
	}
	if cfg.Storage.VectorIndexPath != "" {
		if err := components.VectorIndex.Save(cfg.Storage.VectorIndexPath); err != nil {
			logger.Warn("vector index save failed", zap.String("path", cfg.Storage.VectorIndexPath), zap.Error(err))
		}
	}
	fmt.Printf("document_id: %s\n", report.DocumentID)
	fmt.Printf("slides:      %d\n", report.Slides)
	fmt.Printf("indexed:     %d\n", report.Indexed)
	if report.Skipped > 0 {
		fmt.Printf("skipped:     %d   # units pending re-index\n", report.Skipped)
	}
	if len(report.Gaps) > 0 {
		fmt.Printf("gaps:        %v   # slide indices dropped due to extraction errors\n", report.Gaps)
	}
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	k := fs.Int("k", 0, "number of evidence units to retrieve (0 = server default)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: deckard ask [flags] <question>")
		os.Exit(1)
	}
	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" {
		fmt.Println("Usage: deckard ask [flags] <question>")
		os.Exit(1)
	}

	answer, err := askViaHTTP(*serverURL, &models.Ask{Question: question, K: *k})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
		os.Exit(1)
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(answer); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		fmt.Println(answer.Text)
		if len(answer.Citations) > 0 {
			fmt.Println()
			fmt.Println("citations:")
			for _, c := range answer.Citations {
				fmt.Printf("  %s\n", c)
			}
		}
		if !answer.NoMatch {
			fmt.Printf("\nconfidence: %.2f\n", answer.Confidence)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func askViaHTTP(serverURL string, ask *models.Ask) (*models.Answer, error) {
	body, err := json.Marshal(ask)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/ask", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var answer models.Answer
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &answer, nil
}

// statusResponse is the shape of GET /api/v1/status.
type statusResponse struct {
	Documents       int64 `json:"documents"`
	UnitsIndexed    int64 `json:"units_indexed"`
	UnitsPending    int64 `json:"units_pending"`
	VectorIndexSize int   `json:"vector_index_size"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	status, err := statusViaHTTP(*serverURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		fmt.Printf("documents:          %d\n", status.Documents)
		fmt.Printf("units_indexed:      %d\n", status.UnitsIndexed)
		fmt.Printf("units_pending:      %d\n", status.UnitsPending)
		fmt.Printf("vector_index_size:  %d\n", status.VectorIndexSize)
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func statusViaHTTP(serverURL string) (*statusResponse, error) {
	resp, err := http.Get(serverURL + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var s statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

// Components holds all initialized parts of the system.
type Components struct {
	Storage      storage.Storage
	Embedder     embedding.Embedder
	VectorIndex  *vector.MemoryIndex
	KeywordIndex *keyword.BleveIndex
	Pipeline     *ingest.Pipeline
	Planner      *planner.Planner
	Composer     *compose.Composer
}

// Close releases all resources.
func (c *Components) Close() {
	if c.Embedder != nil {
		c.Embedder.Close()
	}
	if c.KeywordIndex != nil {
		c.KeywordIndex.Close()
	}
	if c.VectorIndex != nil {
		c.VectorIndex.Close()
	}
	if c.Storage != nil {
		c.Storage.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	metric, err := vector.ParseMetric(cfg.Vector.Metric)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}
	vectorIndex, err := vector.NewMemoryIndex(cfg.Vector.Dimensions, metric)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}
	if cfg.Storage.VectorIndexPath != "" {
		if loadErr := vectorIndex.Load(cfg.Storage.VectorIndexPath); loadErr != nil {
			logger.Warn("vector index load skipped",
				zap.String("path", cfg.Storage.VectorIndexPath), zap.Error(loadErr))
		}
	}
	logger.Info("vector index initialized",
		zap.Int("dimensions", cfg.Vector.Dimensions),
		zap.Int("size", vectorIndex.Size()),
	)

	keywordIndex, err := keyword.NewBleveIndex(cfg.Storage.KeywordIndexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
	}

	embedder, err := buildEmbedder(cfg, logger)
	if err != nil {
		return nil, err
	}

	describer := buildDescriber(cfg, logger)
	llmClient := buildLLMClient(cfg, logger)

	pipeline := ingest.New(ingest.Config{
		Describer:  describer,
		Normalizer: normalize.New(cfg.Normalize.OverlapThreshold),
		Embedder:   embedder,
		Index:      vectorIndex,
		Keywords:   keywordIndex,
		Store:      store,
		Logger:     logger,
	})

	var rewriter llm.Client
	if cfg.Planner.RewriteEnabled && llmClient != nil {
		rewriter = llmClient
	}
	pln := planner.New(planner.Config{
		Embedder:      embedder,
		Index:         vectorIndex,
		Keywords:      keywordIndex,
		Store:         store,
		Rewriter:      rewriter,
		Logger:        logger,
		MinSimilarity: cfg.Planner.MinSimilarity,
		NumericBoost:  cfg.Planner.NumericBoost,
		KeywordBoost:  cfg.Planner.KeywordBoost,
	})

	composer := compose.New(compose.Config{
		Client: llmClient,
		Store:  store,
		Logger: logger,
	})

	return &Components{
		Storage:      store,
		Embedder:     embedder,
		VectorIndex:  vectorIndex,
		KeywordIndex: keywordIndex,
		Pipeline:     pipeline,
		Planner:      pln,
		Composer:     composer,
	}, nil
}

// buildEmbedder picks the embedding backend: a local ONNX model when
// configured, a remote API when a key is present, else the deterministic
// mock so the rest of the system stays usable in development.
func buildEmbedder(cfg *config.Config, logger *zap.Logger) (embedding.Embedder, error) {
	if cfg.Embedding.ModelPath != "" {
		onnxEmbedder, err := embedding.NewONNXEmbedder(embedding.ONNXConfig{
			ModelPath:  cfg.Embedding.ModelPath,
			Dimensions: cfg.Vector.Dimensions,
			CacheSize:  cfg.Embedding.CacheSize,
		})
		if err == nil {
			logger.Info("embedding backend: local onnx", zap.String("model_path", cfg.Embedding.ModelPath))
			return onnxEmbedder, nil
		}
		logger.Warn("local onnx embedder unavailable", zap.Error(err))
	}
	if apiKey := os.Getenv(cfg.Embedding.APIKeyEnv); apiKey != "" {
		gate, err := limit.NewGate(cfg.Embedding.MaxConcurrent, cfg.Embedding.RatePerSecond)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedding gate: %w", err)
		}
		remote, err := embedding.NewRemoteEmbedder(embedding.RemoteConfig{
			APIKey:     apiKey,
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Vector.Dimensions,
			Timeout:    cfg.Embedding.Timeout,
			Retry:      retry.NewPolicy(cfg.Embedding.MaxAttempts, cfg.Embedding.BackoffBase),
			Gate:       gate,
			CacheSize:  cfg.Embedding.CacheSize,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize remote embedder: %w", err)
		}
		logger.Info("embedding backend: remote", zap.String("model", cfg.Embedding.Model))
		return remote, nil
	}
	logger.Warn("no embedding backend configured; using deterministic mock",
		zap.String("api_key_env", cfg.Embedding.APIKeyEnv))
	return embedding.NewMockEmbedder(cfg.Vector.Dimensions), nil
}

// buildDescriber returns a vision describer when an API key is present.
// Without one, ingestion stores placeholder descriptions for chart images.
func buildDescriber(cfg *config.Config, logger *zap.Logger) vision.Describer {
	apiKey := os.Getenv(cfg.Vision.APIKeyEnv)
	if apiKey == "" {
		logger.Warn("vision service not configured; chart images get placeholder descriptions",
			zap.String("api_key_env", cfg.Vision.APIKeyEnv))
		return nil
	}
	gate, err := limit.NewGate(cfg.Vision.MaxConcurrent, cfg.Vision.RatePerSecond)
	if err != nil {
		logger.Warn("vision gate misconfigured; vision disabled", zap.Error(err))
		return nil
	}
	describer, err := vision.NewAnthropicDescriber(vision.Config{
		APIKey:    apiKey,
		BaseURL:   cfg.Vision.BaseURL,
		Model:     cfg.Vision.Model,
		MaxTokens: cfg.Vision.MaxTokens,
		Timeout:   cfg.Vision.Timeout,
		Retry:     retry.NewPolicy(cfg.Vision.MaxAttempts, cfg.Vision.BackoffBase),
		Gate:      gate,
	})
	if err != nil {
		logger.Warn("vision service misconfigured; vision disabled", zap.Error(err))
		return nil
	}
	return describer
}

// buildLLMClient returns a completion client when an API key is present.
// Without one, answers are extractive and query rewriting is off.
func buildLLMClient(cfg *config.Config, logger *zap.Logger) llm.Client {
	apiKey := os.Getenv(cfg.LLM.APIKeyEnv)
	if apiKey == "" {
		logger.Warn("llm service not configured; answers are extractive",
			zap.String("api_key_env", cfg.LLM.APIKeyEnv))
		return nil
	}
	gate, err := limit.NewGate(cfg.LLM.MaxConcurrent, cfg.LLM.RatePerSecond)
	if err != nil {
		logger.Warn("llm gate misconfigured; llm disabled", zap.Error(err))
		return nil
	}
	client, err := llm.NewAnthropicClient(llm.Config{
		APIKey:    apiKey,
		BaseURL:   cfg.LLM.BaseURL,
		Model:     cfg.LLM.Model,
		MaxTokens: cfg.LLM.MaxTokens,
		Timeout:   cfg.LLM.Timeout,
		Retry:     retry.NewPolicy(cfg.LLM.MaxAttempts, cfg.LLM.BackoffBase),
		Gate:      gate,
	})
	if err != nil {
		logger.Warn("llm service misconfigured; llm disabled", zap.Error(err))
		return nil
	}
	return client
}

func printUsage() {
	fmt.Println(`deckard - slide deck ingestion and question answering

Usage:
  deckard server [flags]            Start the HTTP server
  deckard ingest [flags] <file>     Ingest a deck (.pptx or .pdf)
  deckard ask [flags] <question>    Ask a question against a running server
  deckard status [flags]            Show index status from a running server
  deckard version                   Show version
  deckard help                      Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/deckard/config.yaml)
  --debug            Enable debug logging (per-slide extraction, vision calls, etc.)

Ingest Flags:
  --config string    Config file path

Ask Flags:
  --server string    Server URL (default: http://localhost:8080)
  --k int            Number of evidence units to retrieve (0 = server default)
  --output string    Output format: text or json (default: text)

Status Flags:
  --server string    Server URL (default: http://localhost:8080)
  --output string    Output format: text or json (default: text)

Examples:
  deckard server
  deckard ingest quarterly-review.pptx
  deckard ask "How did EMEA revenue change quarter over quarter?"
  deckard ask --output json "Which region grew fastest?"
  deckard status`)
}
