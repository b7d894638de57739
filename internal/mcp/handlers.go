package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"
)

// Handlers contains the handler functions for all MCP tools
type Handlers struct {
	kb        Knowledge
	responder Responder
	logger    *zap.Logger
}

func NewHandlers(kb Knowledge, responder Responder, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{kb: kb, responder: responder, logger: logger}
}

type searchResult struct {
	Context string  `json:"context"`
	Score   float64 `json:"score"`
}

type searchResponse struct {
	Query   string         `json:"query"`
	Results []searchResult `json:"results"`
}

type chatResponse struct {
	SessionID string `json:"session_id"`
	Response  string `json:"response"`
	Ended     bool   `json:"ended"`
}

type summaryResponse struct {
	Built     bool   `json:"built"`
	Documents int    `json:"documents"`
	Chunks    int    `json:"chunks"`
	Summary   string `json:"summary,omitempty"`
	BuiltAt   string `json:"built_at,omitempty"`
}

// SearchKnowledge handles the search_knowledge tool
func (h *Handlers) SearchKnowledge(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil || query == "" {
		return mcp.NewToolResultError("query argument is required and must be a string"), nil
	}
	k := request.GetInt("top_k", h.kb.TopK())
	if k < 1 {
		return mcp.NewToolResultError("top_k must be at least 1"), nil
	}

	matches, err := h.kb.Search(ctx, query, k)
	if err != nil {
		h.logger.Error("search_knowledge failed", zap.Error(err))
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	resp := searchResponse{Query: query, Results: make([]searchResult, 0, len(matches))}
	for _, m := range matches {
		resp.Results = append(resp.Results, searchResult{Context: m.Payload.Context, Score: m.Score})
	}
	return jsonResult(resp)
}

// Chat handles the chat tool
func (h *Handlers) Chat(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	message, err := request.RequireString("message")
	if err != nil {
		return mcp.NewToolResultError("message argument is required and must be a string"), nil
	}
	sessionID := request.GetString("session_id", DefaultSessionID)

	reply, err := h.responder.Respond(ctx, sessionID, message)
	if err != nil {
		h.logger.Error("chat failed", zap.String("session_id", sessionID), zap.Error(err))
		return mcp.NewToolResultError(fmt.Sprintf("chat failed: %v", err)), nil
	}
	return jsonResult(chatResponse{SessionID: reply.SessionID, Response: reply.Response, Ended: reply.Ended})
}

// KnowledgeSummary handles the knowledge_summary tool
func (h *Handlers) KnowledgeSummary(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, ok := h.kb.LastReport()
	resp := summaryResponse{Built: ok}
	if ok {
		resp.Documents = report.Documents
		resp.Chunks = report.Chunks
		resp.Summary = report.Summary
		resp.BuiltAt = report.At.Format(time.RFC3339)
	}
	return jsonResult(resp)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
