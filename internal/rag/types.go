package rag

import (
	"errors"
	"time"
)

// ContextState tracks a document context through its lifecycle.
type ContextState string

const (
	StateUnindexed   ContextState = "unindexed"
	StateIndexing    ContextState = "indexing"
	StateReady       ContextState = "ready"
	StateInvalidated ContextState = "invalidated"
	StateDeleted     ContextState = "deleted"
)

// ErrContextNotFound reports a query against a document with neither a
// resident collection nor a restorable snapshot. The caller must
// reinitialize the document context before querying again.
var ErrContextNotFound = errors.New("document context not found")

// DocumentContext is the handle for one indexed document. Service
// methods return copies, so fields are safe to read without locking.
type DocumentContext struct {
	DocumentID   string       `json:"document_id"`
	CollectionID string       `json:"collection_id"`
	Title        string       `json:"title,omitempty"`
	Outline      []string     `json:"outline,omitempty"`
	State        ContextState `json:"state"`
	ChunkCount   int          `json:"chunk_count"`
	// Fingerprint identifies the indexed content, so callers can skip
	// reindexing unchanged documents.
	Fingerprint string `json:"fingerprint,omitempty"`
	// Degraded marks a context whose indexing fell back to an empty
	// collection. Queries against it still work, without sources.
	Degraded    bool      `json:"degraded,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
}

// Source is one retrieved chunk backing an answer.
type Source struct {
	ChunkID    string  `json:"chunk_id"`
	Content    string  `json:"content"`
	Type       string  `json:"type"`
	Similarity float64 `json:"similarity"`
	Relevance  float64 `json:"relevance"`
}

// Answer is the result of a retrieval-augmented generation call.
type Answer struct {
	Answer       string   `json:"answer"`
	Sources      []Source `json:"sources"`
	Confidence   float64  `json:"confidence"`
	UsedContext  bool     `json:"used_context"`
	Model        string   `json:"model,omitempty"`
	Cached       bool     `json:"cached,omitempty"`
	Degraded     bool     `json:"degraded,omitempty"`
	InputTokens  int      `json:"input_tokens,omitempty"`
	OutputTokens int      `json:"output_tokens,omitempty"`
}

// StudyQuestion pairs a generated question with its expected answer.
type StudyQuestion struct {
	Question    string `json:"question"`
	Answer      string `json:"answer"`
	Difficulty  string `json:"difficulty"`
	SourceChunk string `json:"source_chunk,omitempty"`
}

// AskOptions tunes a single AnswerQuestion call. Zero values fall back
// to the service defaults.
type AskOptions struct {
	MaxContextTokens    int
	SimilarityThreshold float64
	SkipCache           bool
	// Tags are attached to the cached answer alongside the document tag.
	Tags []string
}

// EnhanceOptions tunes self-retrieval enrichment of ad hoc content.
type EnhanceOptions struct {
	// Focus steers retrieval; empty falls back to the content's title.
	Focus            string
	MaxContextTokens int
}
