package server

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/studyforge/studyforge/internal/rag"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsRequest is the incoming WebSocket message format.
type wsRequest struct {
	Type       string `json:"type"` // "ask" or "similar"
	DocumentID string `json:"document_id"`
	Question   string `json:"question"`
	Limit      int    `json:"limit,omitempty"`
}

// wsResponse is the outgoing WebSocket message format.
type wsResponse struct {
	Type       string       `json:"type"` // "answer", "sources" or "error"
	DocumentID string       `json:"document_id"`
	Content    string       `json:"content"`
	Sources    []rag.Source `json:"sources,omitempty"`
	Confidence float64      `json:"confidence,omitempty"`
	Cached     bool         `json:"cached,omitempty"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("server: websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("server: websocket read: %v", err)
			}
			return
		}

		var req wsRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			s.sendError(conn, "", "invalid message format")
			continue
		}

		if req.DocumentID == "" {
			s.sendError(conn, "", "document_id is required")
			continue
		}
		if req.Question == "" {
			s.sendError(conn, req.DocumentID, "question is required")
			continue
		}

		switch req.Type {
		case "ask":
			s.handleAskMessage(conn, r, req)
		case "similar":
			s.handleSimilarMessage(conn, r, req)
		default:
			s.sendError(conn, req.DocumentID, "unknown message type: "+req.Type)
		}
	}
}

func (s *Server) handleAskMessage(conn *websocket.Conn, r *http.Request, req wsRequest) {
	answer, err := s.svc.AnswerQuestion(r.Context(), req.DocumentID, req.Question, rag.AskOptions{})
	if err != nil {
		s.sendError(conn, req.DocumentID, "question failed: "+err.Error())
		return
	}

	s.sendResponse(conn, wsResponse{
		Type:       "answer",
		DocumentID: req.DocumentID,
		Content:    answer.Answer,
		Sources:    answer.Sources,
		Confidence: answer.Confidence,
		Cached:     answer.Cached,
	})
}

func (s *Server) handleSimilarMessage(conn *websocket.Conn, r *http.Request, req wsRequest) {
	sources, err := s.svc.GetSimilarContent(r.Context(), req.DocumentID, req.Question, req.Limit)
	if err != nil {
		s.sendError(conn, req.DocumentID, "search failed: "+err.Error())
		return
	}

	s.sendResponse(conn, wsResponse{
		Type:       "sources",
		DocumentID: req.DocumentID,
		Sources:    sources,
	})
}

func (s *Server) sendResponse(conn *websocket.Conn, resp wsResponse) {
	if err := conn.WriteJSON(resp); err != nil {
		log.Printf("server: websocket write: %v", err)
	}
}

func (s *Server) sendError(conn *websocket.Conn, documentID, message string) {
	resp := wsResponse{
		Type:       "error",
		DocumentID: documentID,
		Content:    message,
	}
	if err := conn.WriteJSON(resp); err != nil {
		log.Printf("server: websocket write error: %v", err)
	}
}
