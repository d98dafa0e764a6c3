package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/studyforge/studyforge/internal/rag"
)

// handleAskDocument answers a question grounded in an indexed document.
func (s *Server) handleAskDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docID, err := request.RequireString("document_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: document_id"), nil
	}
	question, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: question"), nil
	}

	answer, err := s.svc.AnswerQuestion(ctx, docID, question, rag.AskOptions{})
	if err != nil {
		if errors.Is(err, rag.ErrContextNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf(
				"Document %q is not indexed. Run `studyforge ingest` to index it.",
				docID,
			)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("question failed: %v", err)), nil
	}

	return mcp.NewToolResultText(formatAnswer(answer)), nil
}

// handleSearchDocument performs semantic search over one document's chunks.
func (s *Server) handleSearchDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docID, err := request.RequireString("document_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: document_id"), nil
	}
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}

	limit := request.GetInt("limit", 5)
	if limit <= 0 {
		limit = 5
	}

	sources, err := s.svc.GetSimilarContent(ctx, docID, query, limit)
	if err != nil {
		if errors.Is(err, rag.ErrContextNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf(
				"Document %q is not indexed. Run `studyforge ingest` to index it.",
				docID,
			)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	if len(sources) == 0 {
		return mcp.NewToolResultText("No matching content found in the document."), nil
	}

	return mcp.NewToolResultText(formatSources(sources)), nil
}

// handleStudyQuestions generates question/answer pairs from a document.
func (s *Server) handleStudyQuestions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docID, err := request.RequireString("document_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: document_id"), nil
	}

	count := request.GetInt("count", 5)
	difficulty := request.GetString("difficulty", "")

	questions, err := s.svc.GenerateStudyQuestions(ctx, docID, count, difficulty)
	if err != nil {
		if errors.Is(err, rag.ErrContextNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf(
				"Document %q is not indexed. Run `studyforge ingest` to index it.",
				docID,
			)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("question generation failed: %v", err)), nil
	}

	if len(questions) == 0 {
		return mcp.NewToolResultText("No study questions could be generated from the document."), nil
	}

	return mcp.NewToolResultText(formatQuestions(questions)), nil
}

// handleListDocuments lists the indexed documents and their states.
func (s *Server) handleListDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	contexts := s.svc.Contexts()
	if len(contexts) == 0 {
		return mcp.NewToolResultText("No documents indexed. Run `studyforge ingest` to index some."), nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d document(s) indexed:\n", len(contexts)))
	for _, dc := range contexts {
		sb.WriteString(fmt.Sprintf("\n- %s", dc.DocumentID))
		if dc.Title != "" {
			sb.WriteString(fmt.Sprintf(" (%s)", dc.Title))
		}
		sb.WriteString(fmt.Sprintf(": %s, %d chunks", dc.State, dc.ChunkCount))
		if dc.Degraded {
			sb.WriteString(", degraded")
		}
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// formatAnswer converts an answer into a rich text format optimized for
// AI agent consumption.
func formatAnswer(answer *rag.Answer) string {
	var sb strings.Builder
	sb.WriteString(answer.Answer)
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("\nConfidence: %.0f%%", answer.Confidence*100))
	if answer.Cached {
		sb.WriteString(" (cached)")
	}
	sb.WriteString("\n")

	if len(answer.Sources) > 0 {
		sb.WriteString(fmt.Sprintf("\nGrounded in %d source(s):\n", len(answer.Sources)))
		for i, src := range answer.Sources {
			sb.WriteString(fmt.Sprintf("\n--- Source %d ---\n", i+1))
			sb.WriteString(fmt.Sprintf("Chunk: %s\n", src.ChunkID))
			sb.WriteString(fmt.Sprintf("Similarity: %.1f%%\n", src.Similarity*100))
			sb.WriteString(src.Content)
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

func formatSources(sources []rag.Source) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d result(s):\n", len(sources)))

	for i, src := range sources {
		sb.WriteString(fmt.Sprintf("\n--- Result %d ---\n", i+1))
		sb.WriteString(fmt.Sprintf("Chunk: %s\n", src.ChunkID))
		if src.Type != "" {
			sb.WriteString(fmt.Sprintf("Type: %s\n", src.Type))
		}
		sb.WriteString(fmt.Sprintf("Relevance: %.1f%%\n", src.Relevance*100))
		sb.WriteString("\n")
		sb.WriteString(src.Content)
		sb.WriteString("\n")
	}

	return sb.String()
}

func formatQuestions(questions []rag.StudyQuestion) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d study question(s):\n", len(questions)))

	for i, q := range questions {
		sb.WriteString(fmt.Sprintf("\n%d. %s\n", i+1, q.Question))
		sb.WriteString(fmt.Sprintf("   Answer: %s\n", q.Answer))
		if q.Difficulty != "" {
			sb.WriteString(fmt.Sprintf("   Difficulty: %s\n", q.Difficulty))
		}
	}

	return sb.String()
}
