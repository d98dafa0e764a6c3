package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/studyforge/studyforge/internal/rag"
	"github.com/studyforge/studyforge/internal/semcache"
)

// createDocumentRequest is the body for indexing a document.
type createDocumentRequest struct {
	DocumentID string `json:"document_id"`
	Content    string `json:"content"`
}

// askRequest is the body for asking a question against a document.
type askRequest struct {
	Question            string   `json:"question"`
	MaxContextTokens    int      `json:"max_context_tokens,omitempty"`
	SimilarityThreshold float64  `json:"similarity_threshold,omitempty"`
	SkipCache           bool     `json:"skip_cache,omitempty"`
	Tags                []string `json:"tags,omitempty"`
}

// questionsRequest is the body for generating study questions.
type questionsRequest struct {
	Count      int    `json:"count,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`
}

type questionsResponse struct {
	Questions []rag.StudyQuestion `json:"questions"`
}

type similarResponse struct {
	Sources []rag.Source `json:"sources"`
}

// enhanceRequest is the body for enriching ad hoc content.
type enhanceRequest struct {
	Content          string `json:"content"`
	Focus            string `json:"focus,omitempty"`
	MaxContextTokens int    `json:"max_context_tokens,omitempty"`
}

// cacheInvalidateRequest selects cached answers to drop. OlderThan is a
// Go duration string; any matching criterion removes an entry.
type cacheInvalidateRequest struct {
	Tags      string `json:"tags,omitempty"` // comma-separated
	Model     string `json:"model,omitempty"`
	OlderThan string `json:"older_than,omitempty"`
	SimilarTo string `json:"similar_to,omitempty"`
}

func (s *Server) registerRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/documents", s.handleListDocuments)
		r.Post("/documents", s.handleCreateDocument)
		r.Route("/documents/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetDocument)
			r.Delete("/", s.handleDeleteDocument)
			r.Post("/ask", s.handleAsk)
			r.Post("/questions", s.handleQuestions)
			r.Get("/similar", s.handleSimilar)
			r.Post("/invalidate", s.handleInvalidateDocument)
		})
		r.Post("/notes/enhance", s.handleEnhance)
		r.Get("/cache/stats", s.handleCacheStats)
		r.Post("/cache/invalidate", s.handleCacheInvalidate)
	})
	r.Get("/ws/ask", s.handleWebSocket)
}

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var req createDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DocumentID == "" {
		writeError(w, http.StatusBadRequest, "document_id is required")
		return
	}

	dc := s.svc.InitializeDocumentContext(r.Context(), req.DocumentID, req.Content)
	writeJSON(w, http.StatusOK, dc)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Contexts())
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	dc, ok := s.svc.Context(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	writeJSON(w, http.StatusOK, dc)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	s.svc.DeleteDocumentContext(r.Context(), chi.URLParam(r, "id"))
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleInvalidateDocument(w http.ResponseWriter, r *http.Request) {
	n := s.svc.InvalidateDocument(r.Context(), chi.URLParam(r, "id"))
	writeJSON(w, http.StatusOK, map[string]int{"invalidated": n})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	answer, err := s.svc.AnswerQuestion(r.Context(), chi.URLParam(r, "id"), req.Question, rag.AskOptions{
		MaxContextTokens:    req.MaxContextTokens,
		SimilarityThreshold: req.SimilarityThreshold,
		SkipCache:           req.SkipCache,
		Tags:                req.Tags,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (s *Server) handleQuestions(w http.ResponseWriter, r *http.Request) {
	var req questionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	questions, err := s.svc.GenerateStudyQuestions(r.Context(), chi.URLParam(r, "id"), req.Count, req.Difficulty)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if questions == nil {
		questions = []rag.StudyQuestion{}
	}
	writeJSON(w, http.StatusOK, questionsResponse{Questions: questions})
}

func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	sources, err := s.svc.GetSimilarContent(r.Context(), chi.URLParam(r, "id"), query, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, similarResponse{Sources: sources})
}

func (s *Server) handleEnhance(w http.ResponseWriter, r *http.Request) {
	var req enhanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	answer, err := s.svc.EnhanceContent(r.Context(), req.Content, rag.EnhanceOptions{
		Focus:            req.Focus,
		MaxContextTokens: req.MaxContextTokens,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		writeError(w, http.StatusServiceUnavailable, "semantic cache disabled")
		return
	}
	writeJSON(w, http.StatusOK, s.cache.Stats())
}

func (s *Server) handleCacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		writeError(w, http.StatusServiceUnavailable, "semantic cache disabled")
		return
	}

	var req cacheInvalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	opts := semcache.InvalidateOptions{
		Model:     req.Model,
		SimilarTo: req.SimilarTo,
	}
	if req.Tags != "" {
		opts.Tags = splitTags(req.Tags)
	}
	if req.OlderThan != "" {
		d, err := time.ParseDuration(req.OlderThan)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid older_than duration")
			return
		}
		opts.CreatedBefore = time.Now().Add(-d)
	}

	n := s.cache.Invalidate(r.Context(), opts)
	writeJSON(w, http.StatusOK, map[string]int{"invalidated": n})
}

func splitTags(csv string) []string {
	var tags []string
	for _, t := range strings.Split(csv, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func writeServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, rag.ErrContextNotFound) {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
