package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/candidate-rag/internal/core/domain"
)

// handleAskCandidates handles the ask_candidates tool invocation
func (s *Server) handleAskCandidates(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := request.RequireString("question")
	if err != nil || strings.TrimSpace(question) == "" {
		return mcp.NewToolResultError("question parameter is required and cannot be empty"), nil
	}

	req := domain.QueryRequest{
		Text: question,
		Scope: domain.Scope{
			SessionID:   request.GetString("session_id", ""),
			DocumentIDs: request.GetStringSlice("document_ids", nil),
		},
		TopK:      request.GetInt("top_k", 0),
		Structure: request.GetString("structure", ""),
	}

	result, err := s.query.RunQuery(ctx, req)
	if err != nil {
		if domain.IsKind(err, domain.ErrInvalidInput) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		s.logger.Error("mcp_ask_candidates_failed", "error_kind", domain.KindOf(err), "error", err)
		return nil, fmt.Errorf("ask_candidates: %w", err)
	}

	summary := map[string]any{
		"run_id":     result.RunID,
		"decision":   result.Decision,
		"query_type": result.QueryType,
		"confidence": result.Confidence.Overall,
		"attempts":   result.Attempts,
		"cache_hit":  result.CacheHit,
		"sources":    result.Sources,
	}
	if result.DeclineReason != "" {
		summary["decline_reason"] = result.DeclineReason
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(result.Answer),
			mcp.NewTextContent(formatJSON(summary)),
		},
	}, nil
}

// handleGetRun handles the get_run tool invocation
func (s *Server) handleGetRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("run_id")
	if err != nil || strings.TrimSpace(id) == "" {
		return mcp.NewToolResultError("run_id parameter is required"), nil
	}

	run, err := s.runs.GetRun(ctx, strings.TrimSpace(id))
	if err != nil {
		if domain.IsKind(err, domain.ErrRunNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("run %q not found", id)), nil
		}
		return nil, fmt.Errorf("get_run: %w", err)
	}

	payload, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode run: %w", err)
	}
	return mcp.NewToolResultText(string(payload)), nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]any) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}
