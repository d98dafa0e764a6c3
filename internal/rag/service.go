// Package rag composes the chunker, embedder, vector store, semantic
// cache and generation provider into the retrieval pipeline: index a
// document, answer questions from it inside a token budget, derive
// study questions and enrich ad hoc content.
//
// The error policy is deliberate: once a document context resolves,
// every downstream failure (embedding, search, generation) degrades to
// an apology answer instead of an error. Only a missing context
// surfaces, because only the caller can fix that by reinitializing.
package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/studyforge/studyforge/internal/chunker"
	"github.com/studyforge/studyforge/internal/embeddings"
	"github.com/studyforge/studyforge/internal/kv"
	"github.com/studyforge/studyforge/internal/llm"
	"github.com/studyforge/studyforge/internal/semcache"
	"github.com/studyforge/studyforge/internal/vectorstore"
)

const (
	defaultTopK             = 10
	defaultMinSimilarity    = 0.2
	defaultMaxContextTokens = 2000

	// degradedConfidence is reported with an apology answer.
	degradedConfidence = 0.1

	// contextTTL bounds persisted context handles; it matches the
	// default collection snapshot TTL.
	contextTTL = 7 * 24 * time.Hour
)

const apologyText = "I'm sorry, I couldn't generate an answer for this question right now. Please try again."

// Options configures a Service. Zero values fall back to defaults.
type Options struct {
	Chunking         chunker.Options
	TopK             int
	MinSimilarity    float64
	MaxContextTokens int
	Batch            embeddings.BatchOptions
	// CacheTTL bounds the lifetime of cached answers. Zero uses the
	// semantic cache's own default.
	CacheTTL time.Duration
	// Persist stores context handles so later processes can recognize
	// already-indexed documents. Nil keeps handles in memory only.
	Persist kv.Store
}

// Service is the retrieval pipeline. All collaborators are injected;
// cache may be nil, which disables semantic answer caching.
type Service struct {
	opts     Options
	embedder embeddings.Embedder
	store    *vectorstore.Store
	cache    *semcache.Cache
	provider llm.Provider
	est      chunker.TokenEstimator

	mu       sync.RWMutex
	contexts map[string]*DocumentContext
}

// New wires the retrieval pipeline.
func New(opts Options, embedder embeddings.Embedder, store *vectorstore.Store, cache *semcache.Cache, provider llm.Provider) *Service {
	if opts.Chunking == (chunker.Options{}) {
		opts.Chunking = chunker.DefaultOptions()
	}
	if opts.TopK <= 0 {
		opts.TopK = defaultTopK
	}
	if opts.MinSimilarity <= 0 {
		opts.MinSimilarity = defaultMinSimilarity
	}
	if opts.MaxContextTokens <= 0 {
		opts.MaxContextTokens = defaultMaxContextTokens
	}
	est := opts.Chunking.Estimator
	if est == nil {
		est = chunker.CharEstimator{}
	}
	return &Service{
		opts:     opts,
		embedder: embedder,
		store:    store,
		cache:    cache,
		provider: provider,
		est:      est,
		contexts: make(map[string]*DocumentContext),
	}
}

func collectionName(docID string) string { return "doc:" + docID }

func documentTag(docID string) string { return "doc:" + docID }

func contextKey(docID string) string { return "rag:ctx:" + docID }

// Fingerprint identifies document content for change detection.
func Fingerprint(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:8])
}

// InitializeDocumentContext chunks, embeds and indexes content for a
// document. It never fails: chunking falls back to fixed windows,
// failed embeddings degrade to zero vectors, and an indexing failure
// yields a usable context over an empty collection, marked degraded.
func (s *Service) InitializeDocumentContext(ctx context.Context, docID, content string) DocumentContext {
	colID := s.store.CreateCollection(collectionName(docID))

	dc := &DocumentContext{
		DocumentID:   docID,
		CollectionID: colID,
		State:        StateIndexing,
		LastUpdated:  time.Now(),
	}
	s.mu.Lock()
	s.contexts[docID] = dc
	s.mu.Unlock()

	result := chunker.Split(content, s.opts.Chunking)
	s.embedChunks(ctx, result.Chunks)

	degraded := false
	if err := s.store.AddChunks(ctx, colID, result.Chunks); err != nil {
		// The collection was evicted mid-indexing; recreate and retry once.
		s.store.CreateCollection(collectionName(docID))
		if err := s.store.AddChunks(ctx, colID, result.Chunks); err != nil {
			log.Printf("rag: indexing %s failed: %v", docID, err)
			degraded = true
		}
	}

	s.mu.Lock()
	dc.Title = result.Title
	dc.Outline = result.Outline
	dc.State = StateReady
	dc.ChunkCount = len(result.Chunks)
	dc.Fingerprint = Fingerprint(content)
	if degraded {
		dc.ChunkCount = 0
		dc.Degraded = true
	}
	dc.LastUpdated = time.Now()
	snapshot := *dc
	s.mu.Unlock()

	s.persistHandle(ctx, snapshot)
	return snapshot
}

// persistHandle writes a context handle through the persistence store,
// best-effort.
func (s *Service) persistHandle(ctx context.Context, dc DocumentContext) {
	if s.opts.Persist == nil {
		return
	}
	data, err := json.Marshal(dc)
	if err != nil {
		return
	}
	if err := s.opts.Persist.Set(ctx, contextKey(dc.DocumentID), data, contextTTL); err != nil {
		log.Printf("rag: persisting context %s failed: %v", dc.DocumentID, err)
	}
}

// restoreHandle loads a context handle persisted by an earlier process.
// The caller decides whether to adopt it; nothing is inserted into the
// resident map here.
func (s *Service) restoreHandle(ctx context.Context, docID string) (DocumentContext, bool) {
	if s.opts.Persist == nil {
		return DocumentContext{}, false
	}
	data, ok, err := s.opts.Persist.Get(ctx, contextKey(docID))
	if err != nil || !ok {
		return DocumentContext{}, false
	}
	var dc DocumentContext
	if err := json.Unmarshal(data, &dc); err != nil || dc.DocumentID != docID {
		return DocumentContext{}, false
	}
	return dc, true
}

func (s *Service) dropHandle(ctx context.Context, docID string) {
	if s.opts.Persist != nil {
		s.opts.Persist.Delete(ctx, contextKey(docID))
	}
}

// embedChunks attaches an embedding to every chunk, batched and never
// failing; chunks whose embedding errored carry a zero vector.
func (s *Service) embedChunks(ctx context.Context, chunks []chunker.Chunk) {
	if len(chunks) == 0 {
		return
	}
	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Content
	}
	vectors := embeddings.EmbedAll(ctx, s.embedder, texts, s.opts.Batch)
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}
}

// resolveContext maps a document id to its collection, restoring the
// collection from its snapshot if it was evicted. This is the one
// failure that surfaces to callers.
func (s *Service) resolveContext(ctx context.Context, docID string) (string, error) {
	s.mu.RLock()
	dc, known := s.contexts[docID]
	var colID string
	invalidated := false
	if known {
		colID = dc.CollectionID
		invalidated = dc.State == StateInvalidated
	}
	s.mu.RUnlock()

	if invalidated {
		return "", ErrContextNotFound
	}
	if known {
		if s.store.Has(colID) || s.store.RestoreCollection(ctx, colID) {
			return colID, nil
		}
		return "", ErrContextNotFound
	}

	// Not resident; a handle persisted by an earlier process still
	// carries the title, outline and fingerprint.
	handle, persisted := s.restoreHandle(ctx, docID)
	if persisted && handle.State == StateInvalidated {
		return "", ErrContextNotFound
	}
	if !persisted {
		handle = DocumentContext{
			DocumentID:   docID,
			CollectionID: vectorstore.CollectionID(collectionName(docID)),
			State:        StateReady,
		}
	}
	colID = handle.CollectionID
	if !s.store.Has(colID) && !s.store.RestoreCollection(ctx, colID) {
		return "", ErrContextNotFound
	}
	if handle.ChunkCount == 0 {
		chunks, _ := s.store.Chunks(colID)
		handle.ChunkCount = len(chunks)
	}
	if handle.LastUpdated.IsZero() {
		handle.LastUpdated = time.Now()
	}
	s.mu.Lock()
	if _, exists := s.contexts[docID]; !exists {
		h := handle
		s.contexts[docID] = &h
	}
	s.mu.Unlock()
	return colID, nil
}

// IsCurrent reports whether docID is already indexed for exactly this
// content, counting handles persisted by earlier processes. A handle
// whose chunks are neither resident nor restorable is not current.
func (s *Service) IsCurrent(ctx context.Context, docID, content string) bool {
	handle, ok := s.Context(docID)
	if !ok {
		if handle, ok = s.restoreHandle(ctx, docID); !ok {
			return false
		}
	}
	if handle.State != StateReady || handle.Fingerprint != Fingerprint(content) {
		return false
	}
	return s.store.Has(handle.CollectionID) || s.store.RestoreCollection(ctx, handle.CollectionID)
}

// AnswerQuestion answers a question from a document's indexed content.
// The semantic cache is consulted first; on a miss the top chunks are
// retrieved, packed whole-chunk by whole-chunk into the token budget
// and sent to the generation provider.
func (s *Service) AnswerQuestion(ctx context.Context, docID, question string, opts AskOptions) (*Answer, error) {
	colID, err := s.resolveContext(ctx, docID)
	if err != nil {
		return nil, err
	}

	docTag := documentTag(docID)
	if s.cache != nil && !opts.SkipCache {
		if hit := s.cachedAnswer(ctx, question, docTag); hit != nil {
			return hit, nil
		}
	}

	answer := s.answerFromRetrieval(ctx, colID, question, opts)
	if s.cache != nil && !answer.Degraded {
		s.storeAnswer(ctx, question, answer, append(opts.Tags, docTag))
	}
	return answer, nil
}

func (s *Service) cachedAnswer(ctx context.Context, question, docTag string) *Answer {
	matches, err := s.cache.Get(ctx, question, semcache.GetOptions{TagFilter: []string{docTag}})
	if err != nil || len(matches) == 0 {
		return nil
	}
	var answer Answer
	if err := json.Unmarshal(matches[0].Entry.Payload, &answer); err != nil {
		return nil
	}
	answer.Cached = true
	return &answer
}

func (s *Service) storeAnswer(ctx context.Context, question string, answer *Answer, tags []string) {
	payload, err := json.Marshal(answer)
	if err != nil {
		return
	}
	s.cache.Set(ctx, question, payload, semcache.SetOptions{
		Model:      answer.Model,
		Confidence: answer.Confidence,
		Tags:       tags,
		TTL:        s.opts.CacheTTL,
	})
}

func (s *Service) answerFromRetrieval(ctx context.Context, colID, question string, opts AskOptions) *Answer {
	minSim := opts.SimilarityThreshold
	if minSim <= 0 {
		minSim = s.opts.MinSimilarity
	}
	budget := opts.MaxContextTokens
	if budget <= 0 {
		budget = s.opts.MaxContextTokens
	}

	vecs, err := s.embedder.Embed(ctx, []string{question})
	if err != nil || len(vecs) == 0 {
		log.Printf("rag: embedding question failed: %v", err)
		return degradedAnswer()
	}

	results, err := s.store.SemanticSearch(colID, vecs[0], vectorstore.SearchOptions{
		TopK:          s.opts.TopK,
		MinSimilarity: minSim,
		Rerank:        true,
	})
	if err != nil {
		// Collection lost between resolve and search.
		return degradedAnswer()
	}

	sources, contextText := s.assembleContext(results, budget)

	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		Messages:    answerMessages(contextText, question),
		MaxTokens:   1024,
		Temperature: 0.2,
	})
	if err != nil {
		log.Printf("rag: generation failed: %v", err)
		return degradedAnswer()
	}

	return &Answer{
		Answer:       strings.TrimSpace(resp.Content),
		Sources:      sources,
		Confidence:   blendConfidence(sources, resp.Confidence),
		UsedContext:  len(sources) > 0,
		Model:        resp.Model,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
	}
}

// assembleContext packs ranked chunks into the token budget. Chunks go
// in whole: the first one that would overflow stops the assembly, so a
// chunk is never truncated mid-text.
func (s *Service) assembleContext(results []vectorstore.SearchResult, budget int) ([]Source, string) {
	sources := make([]Source, 0, len(results))
	var parts []string
	used := 0
	for _, r := range results {
		cost := s.est.Estimate(r.Chunk.Content)
		if used+cost > budget {
			break
		}
		used += cost
		parts = append(parts, r.Chunk.Content)
		sources = append(sources, toSource(r))
	}
	return sources, strings.Join(parts, "\n\n")
}

func toSource(r vectorstore.SearchResult) Source {
	return Source{
		ChunkID:    r.Chunk.ID,
		Content:    r.Chunk.Content,
		Type:       string(r.Chunk.Type),
		Similarity: r.Similarity,
		Relevance:  r.Relevance,
	}
}

// blendConfidence combines average source similarity with the
// provider's own confidence, capped at 1.
func blendConfidence(sources []Source, providerConfidence float64) float64 {
	confidence := providerConfidence
	if len(sources) > 0 {
		var sum float64
		for _, src := range sources {
			sum += src.Similarity
		}
		confidence += sum / float64(len(sources))
	}
	if confidence > 1 {
		confidence = 1
	}
	return confidence
}

func degradedAnswer() *Answer {
	return &Answer{
		Answer:     apologyText,
		Sources:    []Source{},
		Confidence: degradedConfidence,
		Degraded:   true,
	}
}

// GetSimilarContent returns the chunks most similar to a query,
// reranked by relevance. Embedding failures degrade to an empty
// result rather than an error.
func (s *Service) GetSimilarContent(ctx context.Context, docID, query string, limit int) ([]Source, error) {
	colID, err := s.resolveContext(ctx, docID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.opts.TopK
	}

	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil || len(vecs) == 0 {
		return []Source{}, nil
	}
	results, err := s.store.SemanticSearch(colID, vecs[0], vectorstore.SearchOptions{
		TopK:          limit,
		MinSimilarity: s.opts.MinSimilarity,
		Rerank:        true,
	})
	if err != nil {
		return []Source{}, nil
	}

	out := make([]Source, 0, len(results))
	for _, r := range results {
		out = append(out, toSource(r))
	}
	return out, nil
}

// InvalidateDocument marks a context as needing reindexing and drops
// the document's cached answers. Returns the number of cache entries
// removed.
func (s *Service) InvalidateDocument(ctx context.Context, docID string) int {
	s.mu.Lock()
	var handle DocumentContext
	if dc, ok := s.contexts[docID]; ok {
		dc.State = StateInvalidated
		dc.LastUpdated = time.Now()
		handle = *dc
	} else {
		handle = DocumentContext{
			DocumentID:   docID,
			CollectionID: vectorstore.CollectionID(collectionName(docID)),
			State:        StateInvalidated,
			LastUpdated:  time.Now(),
		}
	}
	s.mu.Unlock()

	// Invalidation outlives this process: later runs must reindex
	// instead of restoring the stale snapshot.
	s.persistHandle(ctx, handle)

	if s.cache == nil {
		return 0
	}
	return s.cache.Invalidate(ctx, semcache.InvalidateOptions{Tags: []string{documentTag(docID)}})
}

// DeleteDocumentContext drops a document's context, its collection,
// any persisted snapshot and its cached answers.
func (s *Service) DeleteDocumentContext(ctx context.Context, docID string) {
	s.mu.Lock()
	colID := ""
	if dc, ok := s.contexts[docID]; ok {
		colID = dc.CollectionID
		dc.State = StateDeleted
		delete(s.contexts, docID)
	}
	s.mu.Unlock()

	if colID == "" {
		colID = vectorstore.CollectionID(collectionName(docID))
	}
	s.store.DeleteCollection(ctx, colID)
	s.dropHandle(ctx, docID)
	if s.cache != nil {
		s.cache.Invalidate(ctx, semcache.InvalidateOptions{Tags: []string{documentTag(docID)}})
	}
}

// Context returns a snapshot of one document's context handle.
func (s *Service) Context(docID string) (DocumentContext, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dc, ok := s.contexts[docID]
	if !ok {
		return DocumentContext{}, false
	}
	return *dc, true
}

// Contexts lists all resident context handles, sorted by document id.
func (s *Service) Contexts() []DocumentContext {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]DocumentContext, 0, len(s.contexts))
	for _, dc := range s.contexts {
		out = append(out, *dc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DocumentID < out[j].DocumentID })
	return out
}
