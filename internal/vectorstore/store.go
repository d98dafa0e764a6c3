package vectorstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/studyforge/studyforge/internal/chunker"
	"github.com/studyforge/studyforge/internal/kv"
)

// Config controls collection retention and snapshot persistence.
type Config struct {
	// MaxCollections caps resident collections; reaching it evicts the
	// least recently updated 20%. Zero uses 100.
	MaxCollections int
	// SnapshotTTL bounds snapshot lifetime in the kv store. Zero uses
	// seven days.
	SnapshotTTL time.Duration
}

const (
	defaultMaxCollections = 100
	defaultSnapshotTTL    = 7 * 24 * time.Hour
)

// Store holds embedded chunk collections in memory and mirrors them to
// an optional kv store so evicted collections can be restored later.
// All methods are safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	cfg  Config
	kv   kv.Store
	cols map[string]*Collection
}

// New creates a Store. persist may be nil, which disables snapshots and
// degrades restore to a miss.
func New(cfg Config, persist kv.Store) *Store {
	if cfg.MaxCollections <= 0 {
		cfg.MaxCollections = defaultMaxCollections
	}
	if cfg.SnapshotTTL <= 0 {
		cfg.SnapshotTTL = defaultSnapshotTTL
	}
	return &Store{
		cfg:  cfg,
		kv:   persist,
		cols: make(map[string]*Collection),
	}
}

// CollectionID derives the stable collection id for a name.
func CollectionID(name string) string {
	sum := sha256.Sum256([]byte(name))
	return "col-" + hex.EncodeToString(sum[:8])
}

func snapshotKey(id string) string {
	return "vs:snapshot:" + id
}

// CreateCollection registers a collection for name and returns its id.
// Creating the same name twice returns the existing collection untouched.
// At capacity, the least recently updated 20% of collections are evicted
// first; their snapshots stay restorable until the snapshot TTL runs out.
func (s *Store) CreateCollection(name string) string {
	id := CollectionID(name)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cols[id]; ok {
		return id
	}

	s.evictLocked()

	now := time.Now()
	s.cols[id] = &Collection{
		ID:          id,
		Name:        name,
		Chunks:      make(map[string]chunker.Chunk),
		CreatedAt:   now,
		LastUpdated: now,
	}
	return id
}

// evictLocked drops the oldest fifth of collections once the cap is hit.
func (s *Store) evictLocked() {
	if len(s.cols) < s.cfg.MaxCollections {
		return
	}

	type aged struct {
		id      string
		updated time.Time
	}
	all := make([]aged, 0, len(s.cols))
	for id, col := range s.cols {
		all = append(all, aged{id: id, updated: col.LastUpdated})
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].updated.Before(all[j].updated)
	})

	evict := (len(all) + 4) / 5
	for i := 0; i < evict; i++ {
		delete(s.cols, all[i].id)
	}
}

// AddChunks upserts chunks by id into the collection and writes a fresh
// snapshot to the kv store. Snapshot failures are swallowed; the
// in-memory collection is already updated.
func (s *Store) AddChunks(ctx context.Context, id string, chunks []chunker.Chunk) error {
	s.mu.Lock()
	col, ok := s.cols[id]
	if !ok {
		s.mu.Unlock()
		return ErrCollectionNotFound
	}
	for _, c := range chunks {
		col.Chunks[c.ID] = c
	}
	col.LastUpdated = time.Now()
	snapshot, err := json.Marshal(col)
	s.mu.Unlock()

	if s.kv != nil && err == nil {
		s.kv.Set(ctx, snapshotKey(id), snapshot, s.cfg.SnapshotTTL)
	}
	return nil
}

// SemanticSearch ranks the collection's chunks against the query vector.
// Similarities are clamped to [0,1]; results below MinSimilarity are
// dropped, the rest are ordered by Relevance descending and cut to TopK.
func (s *Store) SemanticSearch(id string, query []float32, opts SearchOptions) ([]SearchResult, error) {
	if opts.TopK <= 0 {
		opts.TopK = defaultTopK
	}

	s.mu.RLock()
	col, ok := s.cols[id]
	if !ok {
		s.mu.RUnlock()
		return nil, ErrCollectionNotFound
	}

	results := make([]SearchResult, 0, len(col.Chunks))
	for _, c := range col.Chunks {
		sim := clamp01(cosineSimilarity(query, c.Embedding))
		if sim < opts.MinSimilarity {
			continue
		}
		rel := sim
		if opts.Rerank {
			rel = rerankSimilarityWeight*sim + rerankSignificanceWeight*clamp01(c.Metadata.Significance)
		}
		results = append(results, SearchResult{Chunk: c, Similarity: sim, Relevance: rel})
	}
	s.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool {
		if results[i].Relevance != results[j].Relevance {
			return results[i].Relevance > results[j].Relevance
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})

	if len(results) > opts.TopK {
		results = results[:opts.TopK]
	}
	return results, nil
}

// FindSimilarChunks ranks the collection against one of its own chunks,
// excluding that chunk from the results.
func (s *Store) FindSimilarChunks(id, chunkID string, topK int) ([]SearchResult, error) {
	if topK <= 0 {
		topK = defaultTopK
	}

	s.mu.RLock()
	col, ok := s.cols[id]
	if !ok {
		s.mu.RUnlock()
		return nil, ErrCollectionNotFound
	}
	ref, ok := col.Chunks[chunkID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrChunkNotFound
	}

	results, err := s.SemanticSearch(id, ref.Embedding, SearchOptions{TopK: topK + 1})
	if err != nil {
		return nil, err
	}

	out := results[:0]
	for _, r := range results {
		if r.Chunk.ID == chunkID {
			continue
		}
		out = append(out, r)
	}
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

// Chunks returns the collection's chunks in document order.
func (s *Store) Chunks(id string) ([]chunker.Chunk, error) {
	s.mu.RLock()
	col, ok := s.cols[id]
	if !ok {
		s.mu.RUnlock()
		return nil, ErrCollectionNotFound
	}
	out := make([]chunker.Chunk, 0, len(col.Chunks))
	for _, c := range col.Chunks {
		out = append(out, c)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartOffset != out[j].StartOffset {
			return out[i].StartOffset < out[j].StartOffset
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Has reports whether the collection is resident in memory.
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.cols[id]
	return ok
}

// Count reports the number of resident collections.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cols)
}

// RestoreCollection loads an evicted collection back from its snapshot.
// It reports whether the collection is resident afterwards and never
// fails: a missing snapshot, a decode error, or an absent kv store all
// just report false.
func (s *Store) RestoreCollection(ctx context.Context, id string) bool {
	s.mu.RLock()
	_, ok := s.cols[id]
	s.mu.RUnlock()
	if ok {
		return true
	}

	if s.kv == nil {
		return false
	}
	data, ok, err := s.kv.Get(ctx, snapshotKey(id))
	if err != nil || !ok {
		return false
	}

	var col Collection
	if err := json.Unmarshal(data, &col); err != nil || col.ID == "" {
		return false
	}
	if col.Chunks == nil {
		col.Chunks = make(map[string]chunker.Chunk)
	}

	s.mu.Lock()
	if _, ok := s.cols[id]; !ok {
		s.evictLocked()
		s.cols[id] = &col
	}
	s.mu.Unlock()
	return true
}

// DeleteCollection removes the collection from memory and its snapshot
// from the kv store.
func (s *Store) DeleteCollection(ctx context.Context, id string) {
	s.mu.Lock()
	delete(s.cols, id)
	s.mu.Unlock()

	if s.kv != nil {
		s.kv.Delete(ctx, snapshotKey(id))
	}
}
