package embeddings

import (
	"context"
	"math"
)

// Embedder defines the interface for generating text embeddings.
type Embedder interface {
	// Embed generates embeddings for one or more texts.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the number of dimensions in the embedding vectors.
	Dimensions() int

	// Name returns the name/identifier of the embedding model.
	Name() string
}

// maxInputChars bounds a single embedding input. Roughly 8000 tokens at
// four characters per token, under every supported provider's limit.
const maxInputChars = 32000

// truncateInput clips text to the provider input limit.
func truncateInput(text string) string {
	if len(text) <= maxInputChars {
		return text
	}
	return text[:maxInputChars]
}

// ZeroVector returns an all-zero embedding of the given dimension, the
// degraded stand-in for a failed embedding. Zero vectors score zero
// cosine similarity against everything, so they never surface in search.
func ZeroVector(dim int) []float32 {
	return make([]float32, dim)
}

// CosineSimilarity returns the cosine of the angle between a and b in
// [-1,1]. Zero vectors and mismatched dimensions score 0, which keeps
// degraded embeddings out of every thresholded comparison.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
