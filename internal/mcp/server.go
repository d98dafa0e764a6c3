package mcp

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/studyforge/studyforge/internal/rag"
)

// Version is reported to MCP clients; the CLI overrides it at startup.
var Version = "dev"

// Server wraps an MCP server that exposes document Q&A tools.
type Server struct {
	svc *rag.Service
	mcp *server.MCPServer
}

// NewServer creates a new MCP server around the retrieval service.
func NewServer(svc *rag.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"studyforge",
		Version,
		server.WithToolCapabilities(false),
	)

	s.registerTools()

	return s
}

// registerTools adds all tool definitions and their handlers to the MCP server.
func (s *Server) registerTools() {
	s.mcp.AddTool(askDocumentTool, s.handleAskDocument)
	s.mcp.AddTool(searchDocumentTool, s.handleSearchDocument)
	s.mcp.AddTool(studyQuestionsTool, s.handleStudyQuestions)
	s.mcp.AddTool(listDocumentsTool, s.handleListDocuments)
}

// Serve starts the MCP server on stdio. Stdout is used for MCP protocol
// messages; all logging must go to stderr.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}
