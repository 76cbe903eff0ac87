package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.listClaimsTool(),
		s.getClaimStatusTool(),
		s.getDecisionTool(),
		s.listActiveReviewsTool(),
	)
}

func (s *Server) listClaimsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_claims",
		mcplib.WithDescription("List all claims known to ClaimPilot"),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleListClaims,
	}
}

func (s *Server) getClaimStatusTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_claim_status",
		mcplib.WithDescription("Get a claim and its processing status by ID"),
		mcplib.WithString("claim_id",
			mcplib.Required(),
			mcplib.Description("The claim ID to look up"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleGetClaimStatus,
	}
}

func (s *Server) getDecisionTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_decision",
		mcplib.WithDescription("Get the automated decision recorded for a claim"),
		mcplib.WithString("claim_id",
			mcplib.Required(),
			mcplib.Description("The claim ID the decision belongs to"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleGetDecision,
	}
}

func (s *Server) listActiveReviewsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_active_reviews",
		mcplib.WithDescription("List claims currently waiting on a human reviewer"),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleListActiveReviews,
	}
}

func (s *Server) handleListClaims(ctx context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Claims == nil {
		return mcplib.NewToolResultError("claim reader not configured"), nil
	}
	claims, err := s.deps.Claims.ListClaims(ctx)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to list claims", err), nil
	}
	data, err := json.Marshal(claims)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal claims", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleGetClaimStatus(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Claims == nil {
		return mcplib.NewToolResultError("claim reader not configured"), nil
	}
	args := req.GetArguments()
	claimID, ok := args["claim_id"].(string)
	if !ok || claimID == "" {
		return mcplib.NewToolResultError("claim_id is required"), nil
	}
	c, err := s.deps.Claims.GetClaim(ctx, claimID)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to get claim %s", claimID), err,
		), nil
	}
	data, err := json.Marshal(c)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal claim", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleGetDecision(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Decisions == nil {
		return mcplib.NewToolResultError("decision reader not configured"), nil
	}
	args := req.GetArguments()
	claimID, ok := args["claim_id"].(string)
	if !ok || claimID == "" {
		return mcplib.NewToolResultError("claim_id is required"), nil
	}
	d, err := s.deps.Decisions.GetDecision(ctx, claimID)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to get decision for claim %s", claimID), err,
		), nil
	}
	data, err := json.Marshal(d)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal decision", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleListActiveReviews(ctx context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Reviews == nil {
		return mcplib.NewToolResultError("review lister not configured"), nil
	}
	claims, err := s.deps.Reviews.ActiveReviews(ctx)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to list active reviews", err), nil
	}
	data, err := json.Marshal(claims)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal reviews", err), nil
	}
	return toolResultJSON(string(data)), nil
}

// toolResultJSON wraps a JSON document in a text tool result.
func toolResultJSON(text string) *mcplib.CallToolResult {
	return mcplib.NewToolResultText(text)
}
