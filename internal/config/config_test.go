package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Provider != ProviderOpenAI {
		t.Errorf("expected default provider %q, got %q", ProviderOpenAI, cfg.Provider)
	}
	if cfg.Quality != QualityNormal {
		t.Errorf("expected default quality %q, got %q", QualityNormal, cfg.Quality)
	}
	if cfg.DataDir != ".studyforge" {
		t.Errorf("expected default data_dir %q, got %q", ".studyforge", cfg.DataDir)
	}
	if cfg.Chunking.MaxChunkTokens != 512 {
		t.Errorf("expected default max_chunk_tokens 512, got %d", cfg.Chunking.MaxChunkTokens)
	}
	if cfg.Retrieval.TopK != 10 {
		t.Errorf("expected default top_k 10, got %d", cfg.Retrieval.TopK)
	}
	if cfg.Cache.Capacity != 1000 {
		t.Errorf("expected default cache capacity 1000, got %d", cfg.Cache.Capacity)
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.studyforge.yml")

	original := DefaultConfig()
	original.Provider = ProviderAnthropic
	original.Model = "claude-sonnet-4-5-20250929"
	original.Quality = QualityMax
	original.Include = []string{"notes/**/*.md", "docs/**/*.txt"}
	original.DataDir = "state"
	original.Retrieval.MinSimilarity = 0.35
	original.Cache.SimilarityThreshold = 0.8

	// Save.
	if err := original.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Load back.
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// Verify round-trip.
	if loaded.Provider != original.Provider {
		t.Errorf("provider: got %q, want %q", loaded.Provider, original.Provider)
	}
	if loaded.Model != original.Model {
		t.Errorf("model: got %q, want %q", loaded.Model, original.Model)
	}
	if loaded.Quality != original.Quality {
		t.Errorf("quality: got %q, want %q", loaded.Quality, original.Quality)
	}
	if loaded.DataDir != original.DataDir {
		t.Errorf("data_dir: got %q, want %q", loaded.DataDir, original.DataDir)
	}
	if loaded.Retrieval.MinSimilarity != original.Retrieval.MinSimilarity {
		t.Errorf("min_similarity: got %f, want %f", loaded.Retrieval.MinSimilarity, original.Retrieval.MinSimilarity)
	}
	if loaded.Cache.SimilarityThreshold != original.Cache.SimilarityThreshold {
		t.Errorf("similarity_threshold: got %f, want %f", loaded.Cache.SimilarityThreshold, original.Cache.SimilarityThreshold)
	}
	if len(loaded.Include) != len(original.Include) {
		t.Errorf("include length: got %d, want %d", len(loaded.Include), len(original.Include))
	}
	for i, v := range loaded.Include {
		if v != original.Include[i] {
			t.Errorf("include[%d]: got %q, want %q", i, v, original.Include[i])
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nonexistent.yml")

	// Loading a missing file should return defaults, not an error.
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load should not fail for missing file: %v", err)
	}
	if cfg.Provider != ProviderOpenAI {
		t.Errorf("expected default provider, got %q", cfg.Provider)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yml")

	cfg := DefaultConfig()
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Override provider via env var.
	os.Setenv("STUDYFORGE_PROVIDER", "anthropic")
	defer os.Unsetenv("STUDYFORGE_PROVIDER")

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Provider != ProviderAnthropic {
		t.Errorf("env override failed: got %q, want %q", loaded.Provider, ProviderAnthropic)
	}
}

func TestLoadNestedEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yml")

	cfg := DefaultConfig()
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	os.Setenv("STUDYFORGE_RETRIEVAL__TOP_K", "25")
	defer os.Unsetenv("STUDYFORGE_RETRIEVAL__TOP_K")

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Retrieval.TopK != 25 {
		t.Errorf("nested env override failed: got %d, want 25", loaded.Retrieval.TopK)
	}
}

func TestValidateValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig should be valid, got: %v", err)
	}
}

func TestValidateInvalidProvider(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Provider = "invalid"
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for invalid provider")
	}
}

func TestValidateEmptyProvider(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Provider = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for empty provider")
	}
}

func TestValidateEmptyModel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Model = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for empty model")
	}
}

func TestValidateInvalidQuality(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Quality = "ultra"
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for invalid quality")
	}
}

func TestValidateOverlapExceedsChunkSize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Chunking.OverlapTokens = cfg.Chunking.MaxChunkTokens
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error when overlap >= chunk size")
	}
}

func TestValidateSimilarityBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Retrieval.MinSimilarity = 1.5
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for min_similarity > 1")
	}

	cfg = DefaultConfig()
	cfg.Cache.SimilarityThreshold = -0.1
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for negative similarity_threshold")
	}
}

func TestValidateNegativeRate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequestsPerMinute = -1
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for negative requests_per_minute")
	}
}

func TestGetPreset(t *testing.T) {
	p := GetPreset(ProviderAnthropic, QualityLite)
	if p.Model != "claude-haiku-4-5-20251001" {
		t.Errorf("expected haiku model, got %q", p.Model)
	}

	p = GetPreset(ProviderOpenAI, QualityMax)
	if p.Model != "gpt-4" {
		t.Errorf("expected gpt-4, got %q", p.Model)
	}

	// Unknown combination falls back.
	p = GetPreset("unknown", QualityLite)
	if p.Model != "gpt-4o" {
		t.Errorf("expected fallback to gpt-4o, got %q", p.Model)
	}
}

func TestAPIKeyEnvVar(t *testing.T) {
	tests := []struct {
		provider ProviderType
		want     string
	}{
		{ProviderAnthropic, "ANTHROPIC_API_KEY"},
		{ProviderOpenAI, "OPENAI_API_KEY"},
		{ProviderGoogle, "GOOGLE_API_KEY"},
		{ProviderOpenRouter, "OPENROUTER_API_KEY"},
		{ProviderMinimax, "MINIMAX_API_KEY"},
		{ProviderOllama, ""},
	}
	for _, tt := range tests {
		got := APIKeyEnvVar(tt.provider)
		if got != tt.want {
			t.Errorf("APIKeyEnvVar(%q) = %q, want %q", tt.provider, got, tt.want)
		}
	}
}

func TestSplitAndTrim(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"a,b,c", []string{"a", "b", "c"}},
		{" a , b , c ", []string{"a", "b", "c"}},
		{"**/*.md", []string{"**/*.md"}},
		{"", nil},
		{"  ,  , ", nil},
	}
	for _, tt := range tests {
		got := splitAndTrim(tt.input)
		if len(got) != len(tt.want) {
			t.Errorf("splitAndTrim(%q) len = %d, want %d", tt.input, len(got), len(tt.want))
			continue
		}
		for i, v := range got {
			if v != tt.want[i] {
				t.Errorf("splitAndTrim(%q)[%d] = %q, want %q", tt.input, i, v, tt.want[i])
			}
		}
	}
}
