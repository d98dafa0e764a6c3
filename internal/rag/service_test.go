package rag

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/studyforge/studyforge/internal/chunker"
	"github.com/studyforge/studyforge/internal/kv"
	"github.com/studyforge/studyforge/internal/llm"
	"github.com/studyforge/studyforge/internal/semcache"
	"github.com/studyforge/studyforge/internal/vectorstore"
)

// testVocab is the term space of the test embedder. Texts sharing
// vocabulary words score high cosine similarity; texts with none embed
// to the zero vector.
var testVocab = []string{
	"photosynthesis", "light", "chlorophyll", "energy", "glucose",
	"mitochondria", "respiration", "oxygen", "membrane", "cell",
}

type wordEmbedder struct {
	mu  sync.Mutex
	err error
}

func (e *wordEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	err := e.err
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = wordVec(t)
	}
	return out, nil
}

func (e *wordEmbedder) Dimensions() int { return len(testVocab) }
func (e *wordEmbedder) Name() string    { return "word-test" }

func wordVec(text string) []float32 {
	lower := strings.ToLower(text)
	v := make([]float32, len(testVocab))
	var norm float64
	for i, w := range testVocab {
		c := float32(strings.Count(lower, w))
		v[i] = c
		norm += float64(c * c)
	}
	if norm == 0 {
		return v
	}
	n := float32(math.Sqrt(norm))
	for i := range v {
		v[i] /= n
	}
	return v
}

// mockProvider returns scripted responses in order, the last one
// sticking, and records every request.
type mockProvider struct {
	mu        sync.Mutex
	calls     []llm.CompletionRequest
	responses []string
	err       error
}

func newMockProvider(responses ...string) *mockProvider {
	if len(responses) == 0 {
		responses = []string{"mock answer"}
	}
	return &mockProvider{responses: responses}
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)
	if m.err != nil {
		return nil, m.err
	}
	content := m.responses[0]
	if len(m.responses) > 1 {
		m.responses = m.responses[1:]
	}
	return &llm.CompletionResponse{
		Content:      content,
		InputTokens:  10,
		OutputTokens: 20,
		Model:        "mock-model",
		FinishReason: "stop",
		Confidence:   0.5,
	}, nil
}

func (m *mockProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockProvider) lastCall() llm.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[len(m.calls)-1]
}

func (m *mockProvider) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

const biologyNotes = `# Cell Energy Notes

## Photosynthesis

Photosynthesis converts light energy into glucose. Chlorophyll absorbs light in the leaf.

## Respiration

Mitochondria run cellular respiration. Respiration burns glucose with oxygen and releases energy for the cell.
`

func newTestService(provider llm.Provider) (*Service, *vectorstore.Store, *semcache.Cache) {
	emb := &wordEmbedder{}
	store := vectorstore.New(vectorstore.Config{}, nil)
	cache := semcache.New(semcache.Config{CleanupInterval: -1}, emb, nil)
	return New(Options{}, emb, store, cache, provider), store, cache
}

func TestInitializeDocumentContext(t *testing.T) {
	svc, store, _ := newTestService(newMockProvider())
	ctx := context.Background()

	dc := svc.InitializeDocumentContext(ctx, "bio-101", biologyNotes)
	if dc.State != StateReady {
		t.Errorf("state = %q, want %q", dc.State, StateReady)
	}
	if dc.ChunkCount == 0 {
		t.Error("no chunks indexed")
	}
	if dc.Title != "Cell Energy Notes" {
		t.Errorf("title = %q", dc.Title)
	}
	if dc.CollectionID == "" || !store.Has(dc.CollectionID) {
		t.Error("collection missing after initialization")
	}

	got, ok := svc.Context("bio-101")
	if !ok || got.ChunkCount != dc.ChunkCount {
		t.Errorf("Context lookup = %+v, %v", got, ok)
	}
}

func TestInitializeIsIdempotentPerDocument(t *testing.T) {
	svc, store, _ := newTestService(newMockProvider())
	ctx := context.Background()

	first := svc.InitializeDocumentContext(ctx, "bio-101", biologyNotes)
	second := svc.InitializeDocumentContext(ctx, "bio-101", biologyNotes)

	if first.CollectionID != second.CollectionID {
		t.Error("reindexing changed the collection id")
	}
	if first.ChunkCount != second.ChunkCount {
		t.Errorf("chunk count drifted: %d then %d", first.ChunkCount, second.ChunkCount)
	}
	if store.Count() != 1 {
		t.Errorf("store holds %d collections, want 1", store.Count())
	}
}

func TestAnswerQuestionRetrievesRelevantChunks(t *testing.T) {
	provider := newMockProvider("Light drives the reaction.")
	svc, _, _ := newTestService(provider)
	ctx := context.Background()

	svc.InitializeDocumentContext(ctx, "bio-101", biologyNotes)

	answer, err := svc.AnswerQuestion(ctx, "bio-101", "How does photosynthesis use light?", AskOptions{})
	if err != nil {
		t.Fatalf("AnswerQuestion failed: %v", err)
	}
	if answer.Answer != "Light drives the reaction." {
		t.Errorf("answer = %q", answer.Answer)
	}
	if !answer.UsedContext || len(answer.Sources) == 0 {
		t.Fatalf("expected retrieved sources, got %+v", answer)
	}
	var sawPhotosynthesis bool
	for _, src := range answer.Sources {
		lower := strings.ToLower(src.Content)
		if strings.Contains(lower, "photosynthesis") {
			sawPhotosynthesis = true
		}
		if strings.Contains(lower, "mitochondria") {
			t.Errorf("irrelevant chunk retrieved: %q", src.Content)
		}
	}
	if !sawPhotosynthesis {
		t.Error("no photosynthesis chunk among sources")
	}
	if answer.Confidence <= 0.5 || answer.Confidence > 1 {
		t.Errorf("confidence = %f, want in (0.5, 1]", answer.Confidence)
	}

	prompt := provider.lastCall().Messages[1].Content
	if !strings.Contains(prompt, "## Context") || !strings.Contains(prompt, "How does photosynthesis use light?") {
		t.Errorf("prompt missing context or question:\n%s", prompt)
	}
}

func TestAnswerQuestionUsesSemanticCache(t *testing.T) {
	provider := newMockProvider()
	svc, _, _ := newTestService(provider)
	ctx := context.Background()

	svc.InitializeDocumentContext(ctx, "bio-101", biologyNotes)

	first, err := svc.AnswerQuestion(ctx, "bio-101", "What is photosynthesis?", AskOptions{})
	if err != nil {
		t.Fatalf("first ask failed: %v", err)
	}
	if first.Cached {
		t.Error("first answer should not be cached")
	}

	second, err := svc.AnswerQuestion(ctx, "bio-101", "What is photosynthesis?", AskOptions{})
	if err != nil {
		t.Fatalf("second ask failed: %v", err)
	}
	if !second.Cached {
		t.Error("second identical ask should hit the cache")
	}
	if second.Answer != first.Answer {
		t.Errorf("cached answer differs: %q vs %q", second.Answer, first.Answer)
	}
	if provider.callCount() != 1 {
		t.Errorf("provider called %d times, want 1", provider.callCount())
	}
}

func TestAnswerCacheIsScopedPerDocument(t *testing.T) {
	provider := newMockProvider()
	svc, _, _ := newTestService(provider)
	ctx := context.Background()

	svc.InitializeDocumentContext(ctx, "doc-one", biologyNotes)
	svc.InitializeDocumentContext(ctx, "doc-two", biologyNotes)

	svc.AnswerQuestion(ctx, "doc-one", "What is photosynthesis?", AskOptions{})
	answer, err := svc.AnswerQuestion(ctx, "doc-two", "What is photosynthesis?", AskOptions{})
	if err != nil {
		t.Fatalf("AnswerQuestion failed: %v", err)
	}
	if answer.Cached {
		t.Error("cache entry leaked across documents")
	}
	if provider.callCount() != 2 {
		t.Errorf("provider called %d times, want 2", provider.callCount())
	}
}

func TestAnswerQuestionDegradesOnProviderFailure(t *testing.T) {
	provider := newMockProvider()
	provider.setErr(fmt.Errorf("provider unreachable"))
	svc, _, _ := newTestService(provider)
	ctx := context.Background()

	svc.InitializeDocumentContext(ctx, "bio-101", biologyNotes)

	answer, err := svc.AnswerQuestion(ctx, "bio-101", "What is photosynthesis?", AskOptions{})
	if err != nil {
		t.Fatalf("degraded path should not error: %v", err)
	}
	if !answer.Degraded {
		t.Error("answer should be marked degraded")
	}
	if answer.Confidence != 0.1 {
		t.Errorf("degraded confidence = %f, want 0.1", answer.Confidence)
	}
	if answer.Sources == nil || len(answer.Sources) != 0 {
		t.Errorf("degraded answer should carry empty sources, got %+v", answer.Sources)
	}

	// Degraded answers are not cached: once the provider recovers, the
	// same question reaches it.
	provider.setErr(nil)
	recovered, err := svc.AnswerQuestion(ctx, "bio-101", "What is photosynthesis?", AskOptions{})
	if err != nil || recovered.Degraded {
		t.Errorf("recovery ask = %+v, %v", recovered, err)
	}
}

func TestAnswerQuestionUnknownDocument(t *testing.T) {
	svc, _, _ := newTestService(newMockProvider())
	_, err := svc.AnswerQuestion(context.Background(), "ghost", "anything?", AskOptions{})
	if err != ErrContextNotFound {
		t.Errorf("expected ErrContextNotFound, got %v", err)
	}
}

func TestAnswerQuestionEmptyDocument(t *testing.T) {
	svc, _, _ := newTestService(newMockProvider())
	ctx := context.Background()

	dc := svc.InitializeDocumentContext(ctx, "empty-doc", "")
	if dc.State != StateReady || dc.ChunkCount != 0 {
		t.Fatalf("empty document context = %+v", dc)
	}

	answer, err := svc.AnswerQuestion(ctx, "empty-doc", "What is photosynthesis?", AskOptions{})
	if err != nil {
		t.Fatalf("zero-chunk context should still answer: %v", err)
	}
	if answer.Sources == nil || len(answer.Sources) != 0 {
		t.Errorf("sources = %+v, want empty", answer.Sources)
	}
	if answer.UsedContext {
		t.Error("UsedContext should be false with no chunks")
	}
}

func TestAnswerQuestionHonorsTokenBudget(t *testing.T) {
	// Six near-identical sentences, each its own chunk at ~18 tokens.
	var b strings.Builder
	for i := 0; i < 6; i++ {
		b.WriteString("Photosynthesis light makes glucose energy for the plant cell every day. ")
	}

	emb := &wordEmbedder{}
	store := vectorstore.New(vectorstore.Config{}, nil)
	svc := New(Options{
		Chunking: chunker.Options{MaxChunkTokens: 30, OverlapTokens: 0, Semantic: true},
	}, emb, store, nil, newMockProvider())
	ctx := context.Background()

	dc := svc.InitializeDocumentContext(ctx, "repeat-doc", b.String())
	if dc.ChunkCount < 3 {
		t.Fatalf("expected several small chunks, got %d", dc.ChunkCount)
	}

	tight, err := svc.AnswerQuestion(ctx, "repeat-doc", "photosynthesis light glucose energy cell", AskOptions{MaxContextTokens: 20})
	if err != nil {
		t.Fatalf("tight budget ask failed: %v", err)
	}
	if len(tight.Sources) != 1 {
		t.Errorf("budget 20 admitted %d sources, want 1", len(tight.Sources))
	}

	wide, err := svc.AnswerQuestion(ctx, "repeat-doc", "photosynthesis light glucose energy cell", AskOptions{MaxContextTokens: 40, SkipCache: true})
	if err != nil {
		t.Fatalf("wide budget ask failed: %v", err)
	}
	if len(wide.Sources) != 2 {
		t.Errorf("budget 40 admitted %d sources, want 2", len(wide.Sources))
	}
}

func TestGenerateStudyQuestions(t *testing.T) {
	provider := newMockProvider(`{"question": "What absorbs light?", "answer": "Chlorophyll."}`)
	svc, _, _ := newTestService(provider)
	ctx := context.Background()

	svc.InitializeDocumentContext(ctx, "bio-101", biologyNotes)

	questions, err := svc.GenerateStudyQuestions(ctx, "bio-101", 2, "easy")
	if err != nil {
		t.Fatalf("GenerateStudyQuestions failed: %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("got %d questions, want 2", len(questions))
	}
	for _, q := range questions {
		if q.Question == "" || q.Answer == "" {
			t.Errorf("incomplete question: %+v", q)
		}
		if q.Difficulty != "easy" {
			t.Errorf("difficulty = %q, want easy", q.Difficulty)
		}
		if q.SourceChunk == "" {
			t.Error("missing source chunk id")
		}
	}
	if provider.callCount() != 2 {
		t.Errorf("provider called %d times, want 2", provider.callCount())
	}
	if !provider.lastCall().JSONMode {
		t.Error("study question requests should use JSON mode")
	}
}

func TestGenerateStudyQuestionsSkipsBadSamples(t *testing.T) {
	// Twice the requested count is sampled, so two bad responses still
	// leave room for two good ones.
	provider := newMockProvider(
		"not json at all",
		`{"question": "Only a question"}`,
		`{"question": "What burns glucose?", "answer": "Mitochondria."}`,
	)
	svc, _, _ := newTestService(provider)
	ctx := context.Background()

	svc.InitializeDocumentContext(ctx, "bio-101", biologyNotes)

	questions, err := svc.GenerateStudyQuestions(ctx, "bio-101", 2, "")
	if err != nil {
		t.Fatalf("GenerateStudyQuestions failed: %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("got %d questions, want 2", len(questions))
	}
	if questions[0].Answer != "Mitochondria." {
		t.Errorf("wrong surviving question: %+v", questions[0])
	}
	if questions[0].Difficulty != "medium" {
		t.Errorf("default difficulty = %q, want medium", questions[0].Difficulty)
	}
	if provider.callCount() != 4 {
		t.Errorf("provider called %d times, want 4", provider.callCount())
	}
}

func TestGenerateStudyQuestionsParsesFencedJSON(t *testing.T) {
	provider := newMockProvider("```json\n{\"question\": \"Q?\", \"answer\": \"A.\"}\n```")
	svc, _, _ := newTestService(provider)
	ctx := context.Background()

	svc.InitializeDocumentContext(ctx, "bio-101", biologyNotes)

	questions, err := svc.GenerateStudyQuestions(ctx, "bio-101", 1, "hard")
	if err != nil || len(questions) != 1 {
		t.Fatalf("questions = %+v, err = %v", questions, err)
	}
	if questions[0].Question != "Q?" || questions[0].Answer != "A." {
		t.Errorf("fenced JSON parsed wrong: %+v", questions[0])
	}
}

func TestGetSimilarContent(t *testing.T) {
	svc, _, _ := newTestService(newMockProvider())
	ctx := context.Background()

	svc.InitializeDocumentContext(ctx, "bio-101", biologyNotes)

	sources, err := svc.GetSimilarContent(ctx, "bio-101", "chlorophyll light absorption", 3)
	if err != nil {
		t.Fatalf("GetSimilarContent failed: %v", err)
	}
	if len(sources) == 0 || len(sources) > 3 {
		t.Fatalf("got %d sources, want 1..3", len(sources))
	}
	for i := 1; i < len(sources); i++ {
		if sources[i].Relevance > sources[i-1].Relevance {
			t.Error("sources not sorted by relevance")
		}
	}
	if !strings.Contains(strings.ToLower(sources[0].Content), "chlorophyll") {
		t.Errorf("top source should mention chlorophyll: %q", sources[0].Content)
	}

	_, err = svc.GetSimilarContent(ctx, "ghost", "anything", 3)
	if err != ErrContextNotFound {
		t.Errorf("expected ErrContextNotFound, got %v", err)
	}
}

func TestDeleteDocumentContext(t *testing.T) {
	svc, store, _ := newTestService(newMockProvider())
	ctx := context.Background()

	dc := svc.InitializeDocumentContext(ctx, "bio-101", biologyNotes)
	svc.DeleteDocumentContext(ctx, "bio-101")

	if _, ok := svc.Context("bio-101"); ok {
		t.Error("context handle survived delete")
	}
	if store.Has(dc.CollectionID) {
		t.Error("collection survived delete")
	}
	if _, err := svc.AnswerQuestion(ctx, "bio-101", "anything?", AskOptions{}); err != ErrContextNotFound {
		t.Errorf("expected ErrContextNotFound after delete, got %v", err)
	}
}

func TestInvalidateDocumentDropsCachedAnswers(t *testing.T) {
	provider := newMockProvider()
	svc, _, cache := newTestService(provider)
	ctx := context.Background()

	svc.InitializeDocumentContext(ctx, "bio-101", biologyNotes)
	svc.AnswerQuestion(ctx, "bio-101", "What is photosynthesis?", AskOptions{})
	if cache.Len() != 1 {
		t.Fatalf("cache should hold the answer, Len = %d", cache.Len())
	}

	if n := svc.InvalidateDocument(ctx, "bio-101"); n != 1 {
		t.Errorf("invalidated %d cache entries, want 1", n)
	}
	if cache.Len() != 0 {
		t.Errorf("cache Len = %d after invalidation, want 0", cache.Len())
	}

	// An invalidated context requires reinitialization.
	if _, err := svc.AnswerQuestion(ctx, "bio-101", "anything?", AskOptions{}); err != ErrContextNotFound {
		t.Errorf("expected ErrContextNotFound after invalidation, got %v", err)
	}
	svc.InitializeDocumentContext(ctx, "bio-101", biologyNotes)
	if _, err := svc.AnswerQuestion(ctx, "bio-101", "What is photosynthesis?", AskOptions{}); err != nil {
		t.Errorf("reinitialized document should answer again: %v", err)
	}
}

func TestEnhanceContentUsesThrowawayCollection(t *testing.T) {
	provider := newMockProvider("# Enhanced\n\nRicher notes.")
	svc, store, _ := newTestService(provider)
	ctx := context.Background()

	answer, err := svc.EnhanceContent(ctx, biologyNotes, EnhanceOptions{})
	if err != nil {
		t.Fatalf("EnhanceContent failed: %v", err)
	}
	if answer.Degraded {
		t.Fatal("enhancement degraded unexpectedly")
	}
	if answer.Answer != "# Enhanced\n\nRicher notes." {
		t.Errorf("answer = %q", answer.Answer)
	}
	if !answer.UsedContext || len(answer.Sources) == 0 {
		t.Error("self-retrieval should ground the enhancement in sources")
	}
	if store.Count() != 0 {
		t.Errorf("throwaway collection leaked, store holds %d", store.Count())
	}
}

func TestContextSurvivesEvictionViaSnapshot(t *testing.T) {
	emb := &wordEmbedder{}
	persist := kv.NewMemoryStore()
	store := vectorstore.New(vectorstore.Config{MaxCollections: 2}, persist)
	svc := New(Options{}, emb, store, nil, newMockProvider())
	ctx := context.Background()

	svc.InitializeDocumentContext(ctx, "doc-a", biologyNotes)
	svc.InitializeDocumentContext(ctx, "doc-b", biologyNotes)
	svc.InitializeDocumentContext(ctx, "doc-c", biologyNotes)

	if store.Count() != 2 {
		t.Fatalf("store holds %d collections, want 2 after eviction", store.Count())
	}

	// doc-a was evicted; answering restores it from its snapshot.
	answer, err := svc.AnswerQuestion(ctx, "doc-a", "What is photosynthesis?", AskOptions{})
	if err != nil {
		t.Fatalf("AnswerQuestion after eviction failed: %v", err)
	}
	if !answer.UsedContext {
		t.Error("restored collection should still provide sources")
	}
}

func TestIsCurrentAcrossProcesses(t *testing.T) {
	persist := kv.NewMemoryStore()
	emb := &wordEmbedder{}
	ctx := context.Background()

	first := New(Options{Persist: persist}, emb, vectorstore.New(vectorstore.Config{}, persist), nil, newMockProvider())
	first.InitializeDocumentContext(ctx, "bio-101", biologyNotes)

	// A fresh service over the same persistence stands in for a new
	// process.
	second := New(Options{Persist: persist}, emb, vectorstore.New(vectorstore.Config{}, persist), nil, newMockProvider())
	if !second.IsCurrent(ctx, "bio-101", biologyNotes) {
		t.Error("unchanged document should be current in a new process")
	}
	if second.IsCurrent(ctx, "bio-101", biologyNotes+"\nEdited.") {
		t.Error("edited document should not be current")
	}
	if second.IsCurrent(ctx, "never-indexed", biologyNotes) {
		t.Error("unknown document should not be current")
	}

	answer, err := second.AnswerQuestion(ctx, "bio-101", "What is photosynthesis?", AskOptions{})
	if err != nil {
		t.Fatalf("AnswerQuestion in new process failed: %v", err)
	}
	if !answer.UsedContext {
		t.Error("restored collection should provide sources")
	}
	got, ok := second.Context("bio-101")
	if !ok || got.Title != "Cell Energy Notes" || got.Fingerprint != Fingerprint(biologyNotes) {
		t.Errorf("restored handle lost metadata: %+v, %v", got, ok)
	}
}

func TestInvalidationOutlivesTheProcess(t *testing.T) {
	persist := kv.NewMemoryStore()
	emb := &wordEmbedder{}
	ctx := context.Background()

	first := New(Options{Persist: persist}, emb, vectorstore.New(vectorstore.Config{}, persist), nil, newMockProvider())
	first.InitializeDocumentContext(ctx, "bio-101", biologyNotes)
	first.InvalidateDocument(ctx, "bio-101")

	second := New(Options{Persist: persist}, emb, vectorstore.New(vectorstore.Config{}, persist), nil, newMockProvider())
	if second.IsCurrent(ctx, "bio-101", biologyNotes) {
		t.Error("invalidated document should not be current in a new process")
	}
	if _, err := second.AnswerQuestion(ctx, "bio-101", "anything?", AskOptions{}); err != ErrContextNotFound {
		t.Errorf("expected ErrContextNotFound, got %v", err)
	}

	// Deleting removes the handle and the snapshot, so the document is
	// simply unknown afterwards.
	first.InitializeDocumentContext(ctx, "bio-101", biologyNotes)
	first.DeleteDocumentContext(ctx, "bio-101")

	third := New(Options{Persist: persist}, emb, vectorstore.New(vectorstore.Config{}, persist), nil, newMockProvider())
	if third.IsCurrent(ctx, "bio-101", biologyNotes) {
		t.Error("deleted document should not be current")
	}
	if _, err := third.AnswerQuestion(ctx, "bio-101", "anything?", AskOptions{}); err != ErrContextNotFound {
		t.Errorf("expected ErrContextNotFound after delete, got %v", err)
	}
}
