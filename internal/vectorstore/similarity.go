package vectorstore

import "github.com/studyforge/studyforge/internal/embeddings"

func cosineSimilarity(a, b []float32) float64 {
	return embeddings.CosineSimilarity(a, b)
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
