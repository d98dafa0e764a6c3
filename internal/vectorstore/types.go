package vectorstore

import (
	"errors"
	"time"

	"github.com/studyforge/studyforge/internal/chunker"
)

var (
	// ErrCollectionNotFound is returned when a collection id resolves to
	// nothing, in memory or in the snapshot store.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrChunkNotFound is returned when a chunk id is absent from its
	// collection.
	ErrChunkNotFound = errors.New("chunk not found")
)

// Collection is a named set of embedded chunks. The Chunks map is owned
// by the store; callers must not mutate it.
type Collection struct {
	ID          string                   `json:"id"`
	Name        string                   `json:"name"`
	Chunks      map[string]chunker.Chunk `json:"chunks"`
	CreatedAt   time.Time                `json:"created_at"`
	LastUpdated time.Time                `json:"last_updated"`
}

// SearchResult pairs a chunk with its query similarity. Relevance equals
// Similarity for plain searches; reranked searches blend in the chunk's
// significance. Results are ordered by Relevance descending.
type SearchResult struct {
	Chunk      chunker.Chunk `json:"chunk"`
	Similarity float64       `json:"similarity"`
	Relevance  float64       `json:"relevance"`
}

// SearchOptions controls a semantic search.
type SearchOptions struct {
	// TopK bounds the number of results. Zero or less uses 10.
	TopK int
	// MinSimilarity drops results scoring below it.
	MinSimilarity float64
	// Rerank blends significance into the ranking:
	// 0.7*similarity + 0.3*significance.
	Rerank bool
}

const (
	defaultTopK = 10

	rerankSimilarityWeight   = 0.7
	rerankSignificanceWeight = 0.3
)
