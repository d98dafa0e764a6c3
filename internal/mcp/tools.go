package mcp

import "github.com/mark3labs/mcp-go/mcp"

// askDocumentTool defines the ask_document MCP tool.
var askDocumentTool = mcp.NewTool("ask_document",
	mcp.WithDescription("Ask a question about an indexed document. Answers are grounded in the document's most relevant chunks and cite their sources."),
	mcp.WithString("document_id",
		mcp.Required(),
		mcp.Description("ID of the indexed document"),
	),
	mcp.WithString("question",
		mcp.Required(),
		mcp.Description("Natural language question about the document"),
	),
)

// searchDocumentTool defines the search_document MCP tool.
var searchDocumentTool = mcp.NewTool("search_document",
	mcp.WithDescription("Search an indexed document semantically. Returns the chunks most similar to the query, ranked by relevance."),
	mcp.WithString("document_id",
		mcp.Required(),
		mcp.Description("ID of the indexed document"),
	),
	mcp.WithString("query",
		mcp.Required(),
		mcp.Description("Natural language search query"),
	),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of chunks to return (default 5)"),
	),
)

// studyQuestionsTool defines the study_questions MCP tool.
var studyQuestionsTool = mcp.NewTool("study_questions",
	mcp.WithDescription("Generate study questions with answers from an indexed document."),
	mcp.WithString("document_id",
		mcp.Required(),
		mcp.Description("ID of the indexed document"),
	),
	mcp.WithNumber("count",
		mcp.Description("Number of questions to generate (default 5)"),
	),
	mcp.WithString("difficulty",
		mcp.Description("Question difficulty"),
		mcp.Enum("easy", "medium", "hard"),
	),
)

// listDocumentsTool defines the list_documents MCP tool.
var listDocumentsTool = mcp.NewTool("list_documents",
	mcp.WithDescription("List the indexed documents and their states."),
)
