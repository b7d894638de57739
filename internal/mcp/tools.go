package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"callbot/internal/domain"
	"callbot/internal/service"
)

// Knowledge is what the tools need from the knowledge base.
type Knowledge interface {
	Search(ctx context.Context, query string, k int) ([]domain.Match, error)
	LastReport() (service.IngestReport, bool)
	TopK() int
}

// Responder answers one caller turn.
type Responder interface {
	Respond(ctx context.Context, sessionID, text string) (service.Reply, error)
}

// DefaultSessionID is used by the chat tool when no session_id is given.
const DefaultSessionID = "mcp"

// NewServer creates an MCP server with every callbot tool registered.
func NewServer(version string, kb Knowledge, responder Responder, logger *zap.Logger) *mcpserver.MCPServer {
	server := mcpserver.NewMCPServer("callbot", version)
	RegisterTools(server, kb, responder, logger)
	return server
}

// RegisterTools registers the knowledge and chat tools with the server.
func RegisterTools(server *mcpserver.MCPServer, kb Knowledge, responder Responder, logger *zap.Logger) *Handlers {
	h := NewHandlers(kb, responder, logger)

	server.AddTool(mcp.Tool{
		Name:        "search_knowledge",
		Description: "Semantic search over the call assistant's knowledge base. Returns the best matching passages with scores.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "What to look up",
				},
				"top_k": map[string]any{
					"type":        "number",
					"description": "Maximum number of passages (default: configured top-k)",
				},
			},
			Required: []string{"query"},
		},
	}, h.SearchKnowledge)

	server.AddTool(mcp.Tool{
		Name:        "chat",
		Description: "Send one caller message to the assistant and get its reply. Conversation state is kept per session_id.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"message": map[string]any{
					"type":        "string",
					"description": "What the caller said",
				},
				"session_id": map[string]any{
					"type":        "string",
					"description": "Conversation to continue (default: \"mcp\")",
				},
			},
			Required: []string{"message"},
		},
	}, h.Chat)

	server.AddTool(mcp.Tool{
		Name:        "knowledge_summary",
		Description: "Summary and size of the last knowledge base build.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}, h.KnowledgeSummary)

	return h
}
