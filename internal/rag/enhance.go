package rag

import (
	"context"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/studyforge/studyforge/internal/chunker"
	"github.com/studyforge/studyforge/internal/llm"
	"github.com/studyforge/studyforge/internal/vectorstore"
)

// focusClipChars bounds a focus line derived from chunk content.
const focusClipChars = 200

// EnhanceContent enriches ad hoc, non-persisted content by retrieving
// against itself: the content is chunked into a throwaway collection,
// the chunks most relevant to the focus are packed as material, and
// the provider rewrites them into a richer note. The collection is
// deleted before return so repeated calls do not grow memory.
func (s *Service) EnhanceContent(ctx context.Context, content string, opts EnhanceOptions) (*Answer, error) {
	name := "enhance:" + uuid.NewString()
	colID := s.store.CreateCollection(name)
	defer s.store.DeleteCollection(ctx, colID)

	result := chunker.Split(content, s.opts.Chunking)
	s.embedChunks(ctx, result.Chunks)
	if err := s.store.AddChunks(ctx, colID, result.Chunks); err != nil {
		log.Printf("rag: enhance indexing failed: %v", err)
		return degradedAnswer(), nil
	}

	focus := opts.Focus
	if focus == "" {
		focus = result.Title
	}
	if focus == "" && len(result.Chunks) > 0 {
		focus = clipFocus(result.Chunks[0].Content)
	}

	budget := opts.MaxContextTokens
	if budget <= 0 {
		budget = s.opts.MaxContextTokens
	}

	var sources []Source
	material := ""
	if focus != "" {
		if vecs, err := s.embedder.Embed(ctx, []string{focus}); err == nil && len(vecs) > 0 {
			results, serr := s.store.SemanticSearch(colID, vecs[0], vectorstore.SearchOptions{
				TopK:          s.opts.TopK,
				MinSimilarity: s.opts.MinSimilarity,
				Rerank:        true,
			})
			if serr == nil {
				sources, material = s.assembleContext(results, budget)
			}
		}
	}
	if material == "" {
		// Retrieval came up empty; enhance the raw content directly.
		material = content
		sources = []Source{}
	}

	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		Messages:    enhanceMessages(material, focus),
		MaxTokens:   2048,
		Temperature: 0.4,
	})
	if err != nil {
		log.Printf("rag: enhance generation failed: %v", err)
		return degradedAnswer(), nil
	}

	return &Answer{
		Answer:       strings.TrimSpace(resp.Content),
		Sources:      sources,
		Confidence:   blendConfidence(sources, resp.Confidence),
		UsedContext:  len(sources) > 0,
		Model:        resp.Model,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
	}, nil
}

func clipFocus(text string) string {
	text = strings.TrimSpace(text)
	if len(text) <= focusClipChars {
		return text
	}
	return text[:focusClipChars]
}
