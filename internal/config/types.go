package config

// QualityTier controls the model selection and trade-off between speed/cost and quality.
type QualityTier string

const (
	QualityLite   QualityTier = "lite"
	QualityNormal QualityTier = "normal"
	QualityMax    QualityTier = "max"
)

// ProviderType identifies an LLM provider.
type ProviderType string

const (
	ProviderAnthropic  ProviderType = "anthropic"
	ProviderOpenAI     ProviderType = "openai"
	ProviderGoogle     ProviderType = "google"
	ProviderOllama     ProviderType = "ollama"
	ProviderOpenRouter ProviderType = "openrouter"
	ProviderMinimax    ProviderType = "minimax"
)

// AnalysisLevel controls how much structural analysis the chunker performs.
type AnalysisLevel string

const (
	AnalysisBasic AnalysisLevel = "basic"
	AnalysisDeep  AnalysisLevel = "deep"
)

// Config is the top-level studyforge configuration, corresponding to .studyforge.yml.
type Config struct {
	Provider          ProviderType    `yaml:"provider" koanf:"provider"`
	Model             string          `yaml:"model" koanf:"model"`
	EmbeddingProvider ProviderType    `yaml:"embedding_provider" koanf:"embedding_provider"`
	EmbeddingModel    string          `yaml:"embedding_model" koanf:"embedding_model"`
	Quality           QualityTier     `yaml:"quality" koanf:"quality"`
	DataDir           string          `yaml:"data_dir" koanf:"data_dir"`
	Include           []string        `yaml:"include" koanf:"include"`
	Exclude           []string        `yaml:"exclude" koanf:"exclude"`
	Chunking          ChunkingConfig  `yaml:"chunking" koanf:"chunking"`
	Embedding         EmbeddingConfig `yaml:"embedding" koanf:"embedding"`
	Retrieval         RetrievalConfig `yaml:"retrieval" koanf:"retrieval"`
	Cache             CacheConfig     `yaml:"cache" koanf:"cache"`
	Server            ServerConfig    `yaml:"server" koanf:"server"`
	RequestsPerMinute int             `yaml:"requests_per_minute" koanf:"requests_per_minute"`
}

// ChunkingConfig controls how documents are split before embedding.
type ChunkingConfig struct {
	MaxChunkTokens int           `yaml:"max_chunk_tokens" koanf:"max_chunk_tokens"`
	OverlapTokens  int           `yaml:"overlap_tokens" koanf:"overlap_tokens"`
	Semantic       bool          `yaml:"semantic" koanf:"semantic"`
	AnalysisLevel  AnalysisLevel `yaml:"analysis_level" koanf:"analysis_level"`
}

// EmbeddingConfig controls embedding batching and the embedding cache.
type EmbeddingConfig struct {
	BatchSize        int `yaml:"batch_size" koanf:"batch_size"`
	BatchesPerSecond int `yaml:"batches_per_second" koanf:"batches_per_second"`
	CacheTTLHours    int `yaml:"cache_ttl_hours" koanf:"cache_ttl_hours"`
}

// RetrievalConfig controls semantic search and collection retention.
type RetrievalConfig struct {
	TopK             int     `yaml:"top_k" koanf:"top_k"`
	MinSimilarity    float64 `yaml:"min_similarity" koanf:"min_similarity"`
	MaxContextTokens int     `yaml:"max_context_tokens" koanf:"max_context_tokens"`
	MaxCollections   int     `yaml:"max_collections" koanf:"max_collections"`
	SnapshotTTLHours int     `yaml:"snapshot_ttl_hours" koanf:"snapshot_ttl_hours"`
}

// CacheConfig controls the semantic response cache.
type CacheConfig struct {
	Capacity            int     `yaml:"capacity" koanf:"capacity"`
	TTLSeconds          int     `yaml:"ttl_seconds" koanf:"ttl_seconds"`
	SimilarityThreshold float64 `yaml:"similarity_threshold" koanf:"similarity_threshold"`
	CleanupSeconds      int     `yaml:"cleanup_seconds" koanf:"cleanup_seconds"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int  `yaml:"port" koanf:"port"`
	AllowAllOrigins bool `yaml:"allow_all_origins" koanf:"allow_all_origins"`
}
