package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/studyforge/studyforge/internal/llm"
)

const (
	defaultQuestionCount = 5
	// questionSampleFactor is how many chunk candidates are taken per
	// requested question. Sampling is in document order, not diversity
	// driven.
	questionSampleFactor = 2
)

// GenerateStudyQuestions produces up to count question/answer pairs
// from a document's chunks. Samples that fail to generate or parse are
// skipped rather than failing the batch, so the result may be shorter
// than requested.
func (s *Service) GenerateStudyQuestions(ctx context.Context, docID string, count int, difficulty string) ([]StudyQuestion, error) {
	if count <= 0 {
		count = defaultQuestionCount
	}
	if difficulty == "" {
		difficulty = "medium"
	}

	colID, err := s.resolveContext(ctx, docID)
	if err != nil {
		return nil, err
	}
	chunks, err := s.store.Chunks(colID)
	if err != nil {
		return nil, ErrContextNotFound
	}
	if limit := questionSampleFactor * count; len(chunks) > limit {
		chunks = chunks[:limit]
	}

	questions := make([]StudyQuestion, 0, count)
	for _, chunk := range chunks {
		if len(questions) >= count {
			break
		}
		resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
			Messages:    studyQuestionMessages(chunk.Content, difficulty),
			MaxTokens:   512,
			Temperature: 0.7,
			JSONMode:    true,
		})
		if err != nil {
			log.Printf("rag: study question generation failed: %v", err)
			continue
		}
		q, err := parseStudyQuestion(resp.Content)
		if err != nil || q.Question == "" || q.Answer == "" {
			continue
		}
		q.Difficulty = difficulty
		q.SourceChunk = chunk.ID
		questions = append(questions, *q)
	}
	return questions, nil
}

// parseStudyQuestion parses an LLM JSON response into a StudyQuestion.
func parseStudyQuestion(raw string) (*StudyQuestion, error) {
	raw = strings.TrimSpace(raw)

	// Strip markdown code fences if present.
	if strings.HasPrefix(raw, "```") {
		lines := strings.Split(raw, "\n")
		if len(lines) >= 2 {
			start := 1
			end := len(lines)
			if strings.TrimSpace(lines[end-1]) == "```" {
				end--
			}
			raw = strings.Join(lines[start:end], "\n")
		}
	}

	var q StudyQuestion
	if err := json.Unmarshal([]byte(raw), &q); err != nil {
		return nil, fmt.Errorf("json parse: %w", err)
	}
	return &q, nil
}
