package mcp

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/studyforge/studyforge/internal/llm"
	"github.com/studyforge/studyforge/internal/rag"
	"github.com/studyforge/studyforge/internal/vectorstore"
)

var testVocab = []string{"photosynthesis", "light", "glucose", "mitochondria", "respiration", "energy"}

// wordEmbedder embeds by normalized vocabulary word counts.
type wordEmbedder struct{}

func (wordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		lower := strings.ToLower(t)
		v := make([]float32, len(testVocab))
		var norm float64
		for j, w := range testVocab {
			c := float32(strings.Count(lower, w))
			v[j] = c
			norm += float64(c * c)
		}
		if norm > 0 {
			n := float32(math.Sqrt(norm))
			for j := range v {
				v[j] /= n
			}
		}
		out[i] = v
	}
	return out, nil
}

func (wordEmbedder) Dimensions() int { return len(testVocab) }
func (wordEmbedder) Name() string    { return "mock" }

type mockProvider struct {
	content string
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) Complete(_ context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return &llm.CompletionResponse{
		Content:      m.content,
		Model:        "mock-model",
		FinishReason: "stop",
		Confidence:   0.5,
	}, nil
}

const studyNotes = `# Cell Energy

Photosynthesis converts light energy into glucose.

Mitochondria run respiration and burn glucose for energy.
`

func setupServer(t *testing.T, provider llm.Provider) *Server {
	t.Helper()
	store := vectorstore.New(vectorstore.Config{}, nil)
	svc := rag.New(rag.Options{}, wordEmbedder{}, store, nil, provider)
	return NewServer(svc)
}

func TestToolDefinitions(t *testing.T) {
	tests := []struct {
		name     string
		tool     mcp.Tool
		wantName string
	}{
		{"ask_document", askDocumentTool, "ask_document"},
		{"search_document", searchDocumentTool, "search_document"},
		{"study_questions", studyQuestionsTool, "study_questions"},
		{"list_documents", listDocumentsTool, "list_documents"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.tool.Name != tt.wantName {
				t.Errorf("tool name = %q, want %q", tt.tool.Name, tt.wantName)
			}
			if tt.tool.Description == "" {
				t.Error("tool description should not be empty")
			}
		})
	}
}

func TestNewServer(t *testing.T) {
	srv := setupServer(t, &mockProvider{content: "ok"})

	if srv == nil {
		t.Fatal("NewServer returned nil")
	}
	if srv.mcp == nil {
		t.Fatal("MCP server not initialized")
	}
	if srv.svc == nil {
		t.Fatal("retrieval service not set")
	}
}

func TestHandleAskDocument(t *testing.T) {
	srv := setupServer(t, &mockProvider{content: "Light becomes glucose."})
	ctx := context.Background()
	srv.svc.InitializeDocumentContext(ctx, "bio-101", studyNotes)

	t.Run("answered", func(t *testing.T) {
		req := mcp.CallToolRequest{}
		req.Params.Arguments = map[string]any{
			"document_id": "bio-101",
			"question":    "How does photosynthesis use light?",
		}

		result, err := srv.handleAskDocument(ctx, req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.IsError {
			t.Fatalf("unexpected tool error: %v", result.Content)
		}
	})

	t.Run("missing question", func(t *testing.T) {
		req := mcp.CallToolRequest{}
		req.Params.Arguments = map[string]any{"document_id": "bio-101"}

		result, err := srv.handleAskDocument(ctx, req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.IsError {
			t.Error("expected error for missing question")
		}
	})

	t.Run("unknown document", func(t *testing.T) {
		req := mcp.CallToolRequest{}
		req.Params.Arguments = map[string]any{
			"document_id": "ghost",
			"question":    "anything?",
		}

		result, err := srv.handleAskDocument(ctx, req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.IsError {
			t.Error("expected error for unknown document")
		}
	})
}

func TestHandleSearchDocument(t *testing.T) {
	srv := setupServer(t, &mockProvider{content: "ok"})
	ctx := context.Background()
	srv.svc.InitializeDocumentContext(ctx, "bio-101", studyNotes)

	t.Run("basic search", func(t *testing.T) {
		req := mcp.CallToolRequest{}
		req.Params.Arguments = map[string]any{
			"document_id": "bio-101",
			"query":       "mitochondria respiration",
			"limit":       2,
		}

		result, err := srv.handleSearchDocument(ctx, req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.IsError {
			t.Fatalf("unexpected tool error: %v", result.Content)
		}
	})

	t.Run("no matches", func(t *testing.T) {
		req := mcp.CallToolRequest{}
		req.Params.Arguments = map[string]any{
			"document_id": "bio-101",
			"query":       "completely unrelated topic",
		}

		result, err := srv.handleSearchDocument(ctx, req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.IsError {
			t.Error("empty results should not be an error")
		}
	})

	t.Run("missing query", func(t *testing.T) {
		req := mcp.CallToolRequest{}
		req.Params.Arguments = map[string]any{"document_id": "bio-101"}

		result, err := srv.handleSearchDocument(ctx, req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.IsError {
			t.Error("expected error for missing query")
		}
	})
}

func TestHandleStudyQuestions(t *testing.T) {
	srv := setupServer(t, &mockProvider{content: `{"question": "What makes glucose?", "answer": "Photosynthesis."}`})
	ctx := context.Background()
	srv.svc.InitializeDocumentContext(ctx, "bio-101", studyNotes)

	t.Run("generated", func(t *testing.T) {
		req := mcp.CallToolRequest{}
		req.Params.Arguments = map[string]any{
			"document_id": "bio-101",
			"count":       2,
			"difficulty":  "easy",
		}

		result, err := srv.handleStudyQuestions(ctx, req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.IsError {
			t.Fatalf("unexpected tool error: %v", result.Content)
		}
	})

	t.Run("unknown document", func(t *testing.T) {
		req := mcp.CallToolRequest{}
		req.Params.Arguments = map[string]any{"document_id": "ghost"}

		result, err := srv.handleStudyQuestions(ctx, req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.IsError {
			t.Error("expected error for unknown document")
		}
	})
}

func TestHandleListDocuments(t *testing.T) {
	srv := setupServer(t, &mockProvider{content: "ok"})
	ctx := context.Background()

	t.Run("empty", func(t *testing.T) {
		result, err := srv.handleListDocuments(ctx, mcp.CallToolRequest{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.IsError {
			t.Fatalf("unexpected tool error: %v", result.Content)
		}
	})

	t.Run("with documents", func(t *testing.T) {
		srv.svc.InitializeDocumentContext(ctx, "bio-101", studyNotes)

		result, err := srv.handleListDocuments(ctx, mcp.CallToolRequest{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.IsError {
			t.Fatalf("unexpected tool error: %v", result.Content)
		}
	})
}

func TestFormatAnswer(t *testing.T) {
	answer := &rag.Answer{
		Answer:     "Photosynthesis converts light into glucose.",
		Confidence: 0.75,
		Cached:     true,
		Sources: []rag.Source{
			{ChunkID: "chunk-1", Content: "Photosynthesis converts light energy into glucose.", Similarity: 0.9523},
		},
	}

	out := formatAnswer(answer)
	for _, want := range []string{
		"Photosynthesis converts light into glucose.",
		"Confidence: 75%",
		"(cached)",
		"--- Source 1 ---",
		"chunk-1",
		"Similarity: 95.2%",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatSources(t *testing.T) {
	sources := []rag.Source{
		{ChunkID: "chunk-0", Content: "First chunk", Type: "heading", Relevance: 0.8},
		{ChunkID: "chunk-1", Content: "Second chunk", Relevance: 0.6},
	}

	out := formatSources(sources)
	for _, want := range []string{
		"Found 2 result(s):",
		"--- Result 1 ---",
		"Type: heading",
		"Relevance: 80.0%",
		"Second chunk",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatQuestions(t *testing.T) {
	questions := []rag.StudyQuestion{
		{Question: "What absorbs light?", Answer: "Chlorophyll.", Difficulty: "easy"},
		{Question: "What burns glucose?", Answer: "Mitochondria.", Difficulty: "easy"},
	}

	out := formatQuestions(questions)
	for _, want := range []string{
		"2 study question(s):",
		"1. What absorbs light?",
		"Answer: Chlorophyll.",
		"Difficulty: easy",
		"2. What burns glucose?",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
