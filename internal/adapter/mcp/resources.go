package mcp

import (
	"context"
	"encoding/json"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

// registerResources registers all MCP resources on the server.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"claimpilot://claims",
			"Claim List",
			mcplib.WithResourceDescription("List of all claims"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleClaimsResource,
	)

	s.mcpServer.AddResource(
		mcplib.NewResource(
			"claimpilot://reviews/active",
			"Active Reviews",
			mcplib.WithResourceDescription("Claims waiting on a human reviewer"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleActiveReviewsResource,
	)
}

func (s *Server) handleClaimsResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.Claims == nil {
		return []mcplib.ResourceContents{
			mcplib.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     `{"error":"claim reader not configured"}`,
			},
		}, nil
	}
	claims, err := s.deps.Claims.ListClaims(ctx)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(claims)
	if err != nil {
		return nil, err
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleActiveReviewsResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.Reviews == nil {
		return []mcplib.ResourceContents{
			mcplib.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     `{"error":"review lister not configured"}`,
			},
		}, nil
	}
	claims, err := s.deps.Reviews.ActiveReviews(ctx)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(claims)
	if err != nil {
		return nil, err
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
