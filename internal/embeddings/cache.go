package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/studyforge/studyforge/internal/kv"
)

// DefaultCacheTTL is how long cached embeddings stay valid.
const DefaultCacheTTL = 24 * time.Hour

// CachingEmbedder wraps an Embedder with a content-addressed cache.
// Vectors live in process memory and, when a kv store is configured,
// are also persisted under SHA-256 keys with a TTL. The kv store is
// best effort: its failures never fail an Embed call.
type CachingEmbedder struct {
	inner Embedder
	store kv.Store
	ttl   time.Duration

	mu  sync.RWMutex
	mem map[string][]float32

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCachingEmbedder wraps inner with a cache. store may be nil, which
// keeps the cache purely in memory. A ttl of zero uses DefaultCacheTTL.
func NewCachingEmbedder(inner Embedder, store kv.Store, ttl time.Duration) *CachingEmbedder {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachingEmbedder{
		inner: inner,
		store: store,
		ttl:   ttl,
		mem:   make(map[string][]float32),
	}
}

func (c *CachingEmbedder) Name() string {
	return c.inner.Name()
}

func (c *CachingEmbedder) Dimensions() int {
	return c.inner.Dimensions()
}

func (c *CachingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	var missing []int
	for i, text := range texts {
		if vec, ok := c.lookup(ctx, c.key(text)); ok {
			out[i] = vec
			c.hits.Add(1)
			continue
		}
		missing = append(missing, i)
		c.misses.Add(1)
	}
	if len(missing) == 0 {
		return out, nil
	}

	batch := make([]string, len(missing))
	for j, i := range missing {
		batch[j] = texts[i]
	}

	vecs, err := c.inner.Embed(ctx, batch)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(batch) {
		return nil, fmt.Errorf("embedder returned %d vectors, expected %d", len(vecs), len(batch))
	}

	for j, i := range missing {
		out[i] = vecs[j]
		c.remember(ctx, c.key(texts[i]), vecs[j])
	}
	return out, nil
}

// key derives the cache key from the model name and input text.
func (c *CachingEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "emb:" + c.inner.Name() + ":" + hex.EncodeToString(sum[:])
}

func (c *CachingEmbedder) lookup(ctx context.Context, key string) ([]float32, bool) {
	c.mu.RLock()
	vec, ok := c.mem[key]
	c.mu.RUnlock()
	if ok {
		return vec, true
	}

	if c.store == nil {
		return nil, false
	}
	data, ok, err := c.store.Get(ctx, key)
	if err != nil || !ok {
		return nil, false
	}
	if err := json.Unmarshal(data, &vec); err != nil {
		return nil, false
	}

	// Promote to the in-process map.
	c.mu.Lock()
	c.mem[key] = vec
	c.mu.Unlock()
	return vec, true
}

func (c *CachingEmbedder) remember(ctx context.Context, key string, vec []float32) {
	c.mu.Lock()
	c.mem[key] = vec
	c.mu.Unlock()

	if c.store == nil {
		return
	}
	if data, err := json.Marshal(vec); err == nil {
		c.store.Set(ctx, key, data, c.ttl)
	}
}

// CacheStats reports hit counters for the embedding cache.
type CacheStats struct {
	Hits   int64
	Misses int64
}

func (c *CachingEmbedder) Stats() CacheStats {
	return CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}
}
