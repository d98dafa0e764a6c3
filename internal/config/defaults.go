package config

// QualityPreset describes the models to use for a given quality tier.
type QualityPreset struct {
	Model          string
	EmbeddingModel string
}

// qualityPresets maps each provider+quality combination to its model choices.
var qualityPresets = map[ProviderType]map[QualityTier]QualityPreset{
	ProviderAnthropic: {
		QualityLite:   {Model: "claude-haiku-4-5-20251001", EmbeddingModel: "text-embedding-3-small"},
		QualityNormal: {Model: "claude-sonnet-4-5-20250929", EmbeddingModel: "text-embedding-3-small"},
		QualityMax:    {Model: "claude-opus-4-6", EmbeddingModel: "text-embedding-3-large"},
	},
	ProviderOpenAI: {
		QualityLite:   {Model: "gpt-4o-mini", EmbeddingModel: "text-embedding-3-small"},
		QualityNormal: {Model: "gpt-4o", EmbeddingModel: "text-embedding-3-small"},
		QualityMax:    {Model: "gpt-4", EmbeddingModel: "text-embedding-3-large"},
	},
	ProviderGoogle: {
		QualityLite:   {Model: "gemini-2.0-flash", EmbeddingModel: "gemini-embedding-001"},
		QualityNormal: {Model: "gemini-1.5-pro", EmbeddingModel: "gemini-embedding-001"},
		QualityMax:    {Model: "gemini-1.5-pro", EmbeddingModel: "gemini-embedding-001"},
	},
	ProviderOllama: {
		QualityLite:   {Model: "llama3", EmbeddingModel: "nomic-embed-text"},
		QualityNormal: {Model: "llama3", EmbeddingModel: "nomic-embed-text"},
		QualityMax:    {Model: "llama3:70b", EmbeddingModel: "nomic-embed-text"},
	},
}

// DefaultIncludes are glob patterns ingested by default.
var DefaultIncludes = []string{
	"**/*.md",
	"**/*.markdown",
	"**/*.txt",
	"**/*.rst",
	"**/*.org",
}

// DefaultExcludes are glob patterns excluded from ingestion by default.
var DefaultExcludes = []string{
	"vendor/**",
	"node_modules/**",
	".git/**",
	"dist/**",
	"build/**",
	"*.min.js",
	"*.min.css",
	"*.lock",
	"go.sum",
	"package-lock.json",
	"yarn.lock",
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Provider:          ProviderOpenAI,
		Model:             "gpt-4o-mini",
		EmbeddingProvider: ProviderOpenAI,
		EmbeddingModel:    "text-embedding-3-small",
		Quality:           QualityNormal,
		DataDir:           ".studyforge",
		Include:           DefaultIncludes,
		Exclude:           DefaultExcludes,
		RequestsPerMinute: 30,
		Chunking: ChunkingConfig{
			MaxChunkTokens: 512,
			OverlapTokens:  50,
			Semantic:       true,
			AnalysisLevel:  AnalysisDeep,
		},
		Embedding: EmbeddingConfig{
			BatchSize:        10,
			BatchesPerSecond: 5,
			CacheTTLHours:    24,
		},
		Retrieval: RetrievalConfig{
			TopK:             10,
			MinSimilarity:    0.2,
			MaxContextTokens: 2000,
			MaxCollections:   100,
			SnapshotTTLHours: 168,
		},
		Cache: CacheConfig{
			Capacity:            1000,
			TTLSeconds:          3600,
			SimilarityThreshold: 0.9,
			CleanupSeconds:      3600,
		},
		Server: ServerConfig{
			Port:            8080,
			AllowAllOrigins: true,
		},
	}
}

// GetPreset returns the quality preset for the given provider and tier.
// Returns the Normal OpenAI preset if the combination is not found.
func GetPreset(provider ProviderType, tier QualityTier) QualityPreset {
	if tiers, ok := qualityPresets[provider]; ok {
		if preset, ok := tiers[tier]; ok {
			return preset
		}
	}
	return qualityPresets[ProviderOpenAI][QualityNormal]
}
