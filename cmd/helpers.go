package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/studyforge/studyforge/internal/chunker"
	"github.com/studyforge/studyforge/internal/config"
	"github.com/studyforge/studyforge/internal/embeddings"
	"github.com/studyforge/studyforge/internal/ingest"
	"github.com/studyforge/studyforge/internal/kv"
	"github.com/studyforge/studyforge/internal/llm"
	"github.com/studyforge/studyforge/internal/rag"
	"github.com/studyforge/studyforge/internal/semcache"
	"github.com/studyforge/studyforge/internal/vectorstore"
)

// loadConfig loads and validates the config, providing a user-friendly error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `studyforge init` to create a config file", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// createEmbedderFromConfig creates an embeddings.Embedder based on config.
// This is the shared version used by the ingest, ask, serve, and mcp commands.
func createEmbedderFromConfig(cfg *config.Config) (embeddings.Embedder, error) {
	provider := cfg.EmbeddingProvider
	if provider == "" {
		provider = cfg.Provider
	}
	model := cfg.EmbeddingModel
	if model == "" {
		preset := config.GetPreset(provider, cfg.Quality)
		model = preset.EmbeddingModel
	}

	switch provider {
	case config.ProviderOpenAI:
		apiKey := os.Getenv(config.APIKeyEnvVar(config.ProviderOpenAI))
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable is required for OpenAI embeddings")
		}
		return embeddings.NewOpenAIEmbedder(apiKey, embeddings.OpenAIModel(model)), nil
	case config.ProviderGoogle:
		apiKey := os.Getenv(config.APIKeyEnvVar(config.ProviderGoogle))
		if apiKey == "" {
			return nil, fmt.Errorf("GOOGLE_API_KEY environment variable is required for Google embeddings")
		}
		return embeddings.NewGoogleEmbedder(apiKey, embeddings.GoogleModel(model)), nil
	case config.ProviderOllama:
		return embeddings.NewOllamaEmbedder(model, 768, ""), nil
	default:
		// Anthropic, OpenRouter, and Minimax have no embeddings endpoint;
		// fall back to OpenAI.
		apiKey := os.Getenv(config.APIKeyEnvVar(config.ProviderOpenAI))
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required (used for embeddings when provider is %s)", provider)
		}
		return embeddings.NewOpenAIEmbedder(apiKey, embeddings.OpenAIModel(model)), nil
	}
}

// createProviderFromConfig creates the generation provider, wrapped with
// rate limiting when the config asks for it.
func createProviderFromConfig(cfg *config.Config) (llm.Provider, error) {
	provider, err := llm.NewProvider(string(cfg.Provider), cfg.Model)
	if err != nil {
		return nil, err
	}
	if cfg.RequestsPerMinute > 0 {
		provider = llm.NewRateLimitedProvider(provider, cfg.RequestsPerMinute)
	}
	return provider, nil
}

// stack bundles the wired retrieval pipeline with the resources it owns.
type stack struct {
	cfg   *config.Config
	svc   *rag.Service
	cache *semcache.Cache
	kv    kv.Store
}

// Close stops the cache janitor and closes the underlying store.
func (s *stack) Close() {
	if s.cache != nil {
		s.cache.Close()
	}
	if s.kv != nil {
		s.kv.Close()
	}
}

// buildStack wires the full retrieval pipeline from config: the
// sqlite-backed kv store, cached embedder, vector store, semantic answer
// cache, and the rate-limited LLM provider.
func buildStack() (*stack, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	embedder, err := createEmbedderFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	provider, err := createProviderFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating LLM provider: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	store, err := kv.Open(filepath.Join(cfg.DataDir, "studyforge.db"))
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	cached := embeddings.NewCachingEmbedder(embedder, store,
		time.Duration(cfg.Embedding.CacheTTLHours)*time.Hour)

	vectors := vectorstore.New(vectorstore.Config{
		MaxCollections: cfg.Retrieval.MaxCollections,
		SnapshotTTL:    time.Duration(cfg.Retrieval.SnapshotTTLHours) * time.Hour,
	}, store)

	cache := semcache.New(semcache.Config{
		Capacity:            cfg.Cache.Capacity,
		DefaultTTL:          time.Duration(cfg.Cache.TTLSeconds) * time.Second,
		SimilarityThreshold: cfg.Cache.SimilarityThreshold,
		CleanupInterval:     time.Duration(cfg.Cache.CleanupSeconds) * time.Second,
	}, cached, store)

	var limiter *rate.Limiter
	if cfg.Embedding.BatchesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Embedding.BatchesPerSecond), 1)
	}

	svc := rag.New(rag.Options{
		Chunking: chunker.Options{
			MaxChunkTokens: cfg.Chunking.MaxChunkTokens,
			OverlapTokens:  cfg.Chunking.OverlapTokens,
			Semantic:       cfg.Chunking.Semantic,
			Analysis:       cfg.Chunking.AnalysisLevel,
		},
		TopK:             cfg.Retrieval.TopK,
		MinSimilarity:    cfg.Retrieval.MinSimilarity,
		MaxContextTokens: cfg.Retrieval.MaxContextTokens,
		Batch: embeddings.BatchOptions{
			BatchSize: cfg.Embedding.BatchSize,
			Limiter:   limiter,
		},
		CacheTTL: time.Duration(cfg.Cache.TTLSeconds) * time.Second,
		Persist:  store,
	}, cached, vectors, cache, provider)

	return &stack{cfg: cfg, svc: svc, cache: cache, kv: store}, nil
}

// resolveDocID accepts either a document id or a notes-relative path and
// returns the document id. Paths map to the same stable ids the ingest
// command assigns.
func resolveDocID(arg string) string {
	if strings.HasPrefix(arg, "doc-") {
		return arg
	}
	return ingest.DocumentID(arg)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
