package embeddings

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// defaultWaveSize is how many embedding requests run concurrently.
const defaultWaveSize = 10

// BatchOptions controls batched embedding.
type BatchOptions struct {
	// BatchSize is the number of concurrent requests per wave.
	BatchSize int
	// Limiter paces waves against provider rate limits. Nil disables pacing.
	Limiter *rate.Limiter
}

// EmbedAll embeds every text, a wave of concurrent requests at a time.
// It never fails: an item whose embedding errors degrades to a zero
// vector of the embedder's dimension, and a canceled context zero-fills
// the remainder.
func EmbedAll(ctx context.Context, e Embedder, texts []string, opts BatchOptions) [][]float32 {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultWaveSize
	}

	out := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += opts.BatchSize {
		if start > 0 && opts.Limiter != nil {
			if err := opts.Limiter.Wait(ctx); err != nil {
				zeroFill(out, start, e.Dimensions())
				return out
			}
		}

		end := start + opts.BatchSize
		if end > len(texts) {
			end = len(texts)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				vecs, err := e.Embed(ctx, []string{texts[i]})
				if err != nil || len(vecs) != 1 {
					out[i] = ZeroVector(e.Dimensions())
					return
				}
				out[i] = vecs[0]
			}(i)
		}
		wg.Wait()
	}
	return out
}

func zeroFill(out [][]float32, from int, dim int) {
	for i := from; i < len(out); i++ {
		if out[i] == nil {
			out[i] = ZeroVector(dim)
		}
	}
}
