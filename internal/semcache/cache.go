// Package semcache caches generation results keyed by what a query
// means rather than its exact text. Lookups embed the incoming query
// and match it against stored query embeddings by cosine similarity,
// so a rephrased question can reuse an earlier answer.
package semcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/studyforge/studyforge/internal/embeddings"
	"github.com/studyforge/studyforge/internal/kv"
)

const (
	defaultCapacity        = 1000
	defaultTTL             = time.Hour
	defaultThreshold       = 0.9
	defaultCleanupInterval = time.Hour

	// invalidateSimilarity is the cutoff above which an entry counts as
	// matching an Invalidate reference query.
	invalidateSimilarity = 0.9

	// Cleanup evicts least-hit entries once the cache fills past the
	// high water mark, and stops once it is back under the low one.
	highWaterRatio = 0.8
	lowWaterRatio  = 0.7

	topTagLimit = 5

	keyPrefix = "sc:entry:"
)

// Entry is one cached generation result.
type Entry struct {
	ID             string          `json:"id"`
	Query          string          `json:"query"`
	QueryEmbedding []float32       `json:"query_embedding"`
	Payload        json.RawMessage `json:"payload"`
	Model          string          `json:"model"`
	Confidence     float64         `json:"confidence"`
	Tags           []string        `json:"tags,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	TTL            time.Duration   `json:"ttl"`
	HitCount       int64           `json:"hit_count"`
}

// Expired reports whether the entry's TTL has elapsed at now.
func (e *Entry) Expired(now time.Time) bool {
	return e.TTL > 0 && now.Sub(e.CreatedAt) > e.TTL
}

// Match pairs an entry with its similarity to the looked-up query.
type Match struct {
	Entry      Entry
	Similarity float64
}

// Config carries the cache's capacity and timing knobs. Zero values
// fall back to defaults; a negative CleanupInterval disables the
// background janitor.
type Config struct {
	Capacity            int
	DefaultTTL          time.Duration
	SimilarityThreshold float64
	CleanupInterval     time.Duration
}

// Cache is a capacity-bounded semantic result cache. Entries live in
// memory; when a key/value store is supplied they are also written
// through to it so external consumers can observe them. The store is
// optional and every persistence call is best effort.
type Cache struct {
	cfg      Config
	embedder embeddings.Embedder
	kv       kv.Store

	mu      sync.Mutex
	entries map[string]*Entry
	lookups int64
	hits    int64
	simSum  float64

	done      chan struct{}
	closeOnce sync.Once
}

// New builds a cache around the given embedder. persist may be nil.
func New(cfg Config, embedder embeddings.Embedder, persist kv.Store) *Cache {
	if cfg.Capacity <= 0 {
		cfg.Capacity = defaultCapacity
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = defaultTTL
	}
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = defaultThreshold
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = defaultCleanupInterval
	}

	c := &Cache{
		cfg:      cfg,
		embedder: embedder,
		kv:       persist,
		entries:  make(map[string]*Entry),
		done:     make(chan struct{}),
	}
	if cfg.CleanupInterval > 0 {
		go c.janitor()
	}
	return c
}

// Close stops the background janitor. Safe to call more than once.
func (c *Cache) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Cache) janitor() {
	ticker := time.NewTicker(c.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.Cleanup(context.Background())
		case <-c.done:
			return
		}
	}
}

func entryID(query string, ts time.Time) string {
	sum := sha256.Sum256([]byte(query + "@" + strconv.FormatInt(ts.UnixNano(), 10)))
	return "sce-" + hex.EncodeToString(sum[:8])
}

// SetOptions describes the entry built by Set. A zero TTL falls back
// to the cache default.
type SetOptions struct {
	Model      string
	Confidence float64
	Tags       []string
	TTL        time.Duration
}

// Set stores a generation result under the query's embedding and
// returns the new entry's id. When the cache is at capacity a cleanup
// pass runs first so the insert always lands.
func (c *Cache) Set(ctx context.Context, query string, payload json.RawMessage, opts SetOptions) (string, error) {
	vecs, err := c.embedder.Embed(ctx, []string{query})
	if err != nil {
		return "", fmt.Errorf("embedding cache query: %w", err)
	}
	if len(vecs) == 0 {
		return "", fmt.Errorf("embedder returned no vector for cache query")
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = c.cfg.DefaultTTL
	}
	now := time.Now()
	entry := &Entry{
		ID:             entryID(query, now),
		Query:          query,
		QueryEmbedding: vecs[0],
		Payload:        payload,
		Model:          opts.Model,
		Confidence:     opts.Confidence,
		Tags:           opts.Tags,
		CreatedAt:      now,
		TTL:            ttl,
	}

	c.mu.Lock()
	if len(c.entries) >= c.cfg.Capacity {
		c.cleanupLocked(now)
	}
	c.entries[entry.ID] = entry
	data, merr := json.Marshal(entry)
	c.mu.Unlock()

	if c.kv != nil && merr == nil {
		c.kv.Set(ctx, keyPrefix+entry.ID, data, ttl)
	}
	return entry.ID, nil
}

// GetOptions tunes a lookup. A zero Threshold falls back to the cache
// default and a zero MaxResults returns at most one match. TagFilter
// keeps only entries carrying at least one of the listed tags.
type GetOptions struct {
	Threshold      float64
	MaxResults     int
	TagFilter      []string
	IncludeExpired bool
}

// Get looks up entries semantically similar to query, best first. The
// top match has its hit count incremented. An empty result is a miss,
// not an error; errors only report embedding failures.
func (c *Cache) Get(ctx context.Context, query string, opts GetOptions) ([]Match, error) {
	c.mu.Lock()
	c.lookups++
	c.mu.Unlock()

	vecs, err := c.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding cache query: %w", err)
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("embedder returned no vector for cache query")
	}
	queryVec := vecs[0]

	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = c.cfg.SimilarityThreshold
	}
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = 1
	}
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	var matches []Match
	for _, e := range c.entries {
		if !opts.IncludeExpired && e.Expired(now) {
			continue
		}
		if len(opts.TagFilter) > 0 && !hasAnyTag(e.Tags, opts.TagFilter) {
			continue
		}
		sim := embeddings.CosineSimilarity(queryVec, e.QueryEmbedding)
		if sim < threshold {
			continue
		}
		matches = append(matches, Match{Entry: *e, Similarity: sim})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Entry.ID < matches[j].Entry.ID
	})
	if len(matches) > maxResults {
		matches = matches[:maxResults]
	}

	if len(matches) > 0 {
		winner := c.entries[matches[0].Entry.ID]
		winner.HitCount++
		matches[0].Entry.HitCount = winner.HitCount
		c.hits++
		c.simSum += matches[0].Similarity
	}
	return matches, nil
}

// InvalidateOptions selects entries for removal. Criteria combine as
// any-of: an entry matching one of them is removed.
type InvalidateOptions struct {
	// Tags removes entries carrying at least one of these tags.
	Tags []string
	// Model removes entries produced by this model.
	Model string
	// CreatedBefore removes entries created before this instant.
	CreatedBefore time.Time
	// SimilarTo removes entries whose stored query scores above the
	// invalidation similarity cutoff against this reference query.
	SimilarTo string
}

// Invalidate removes every entry matching any criterion and returns
// how many were removed. A failed embedding of the reference query
// just disables the similarity criterion.
func (c *Cache) Invalidate(ctx context.Context, opts InvalidateOptions) int {
	var refVec []float32
	if opts.SimilarTo != "" {
		if vecs, err := c.embedder.Embed(ctx, []string{opts.SimilarTo}); err == nil && len(vecs) > 0 {
			refVec = vecs[0]
		}
	}

	c.mu.Lock()
	var removed []string
	for id, e := range c.entries {
		match := len(opts.Tags) > 0 && hasAnyTag(e.Tags, opts.Tags)
		if !match && opts.Model != "" && e.Model == opts.Model {
			match = true
		}
		if !match && !opts.CreatedBefore.IsZero() && e.CreatedAt.Before(opts.CreatedBefore) {
			match = true
		}
		if !match && refVec != nil && embeddings.CosineSimilarity(refVec, e.QueryEmbedding) > invalidateSimilarity {
			match = true
		}
		if match {
			delete(c.entries, id)
			removed = append(removed, id)
		}
	}
	c.mu.Unlock()

	if c.kv != nil {
		for _, id := range removed {
			c.kv.Delete(ctx, keyPrefix+id)
		}
	}
	return len(removed)
}

// Cleanup drops expired entries, then evicts the least-hit entries if
// the cache is still over its high water mark. Returns the number of
// entries removed. Runs hourly via the janitor and on demand when Set
// finds the cache full.
func (c *Cache) Cleanup(ctx context.Context) int {
	c.mu.Lock()
	removed := c.cleanupLocked(time.Now())
	c.mu.Unlock()

	if c.kv != nil {
		for _, id := range removed {
			c.kv.Delete(ctx, keyPrefix+id)
		}
	}
	return len(removed)
}

func (c *Cache) cleanupLocked(now time.Time) []string {
	var removed []string
	for id, e := range c.entries {
		if e.Expired(now) {
			delete(c.entries, id)
			removed = append(removed, id)
		}
	}

	high := int(float64(c.cfg.Capacity) * highWaterRatio)
	if len(c.entries) <= high {
		return removed
	}

	low := int(float64(c.cfg.Capacity) * lowWaterRatio)
	live := make([]*Entry, 0, len(c.entries))
	for _, e := range c.entries {
		live = append(live, e)
	}
	sort.Slice(live, func(i, j int) bool {
		if live[i].HitCount != live[j].HitCount {
			return live[i].HitCount < live[j].HitCount
		}
		return live[i].CreatedAt.Before(live[j].CreatedAt)
	})
	for _, e := range live {
		if len(c.entries) <= low {
			break
		}
		delete(c.entries, e.ID)
		removed = append(removed, e.ID)
	}
	return removed
}

// Len returns the number of resident entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func hasAnyTag(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}
