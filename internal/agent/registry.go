// Package agent implements the claim processing loop: the model turn
// client contract, tool catalog, tool execution, stream parsing, and
// decision extraction.
package agent

import (
	"encoding/json"
	"fmt"

	"github.com/claimpilot/claimpilot/internal/config"
	"github.com/claimpilot/claimpilot/internal/domain/tool"
)

// TerminalToolName is the tool whose invocation ends a run and carries
// the final decision in its arguments.
const TerminalToolName = "make_final_decision"

// Catalog returns the built-in tool definitions with endpoints resolved
// from config. The terminal decision tool has no endpoint: it is handled
// inside the loop and never dispatched over HTTP.
func Catalog(cfg config.Tools) []tool.Definition {
	return []tool.Definition{
		{
			Name:        "ocr_document",
			Description: "Extract structured text and fields from a claim document image or PDF.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"document_path": {"type": "string", "description": "Storage path of the claim document"}
				},
				"required": ["document_path"]
			}`),
			Endpoint: cfg.OCRServerURL,
			Path:     "/ocr",
			Timeout:  cfg.DefaultTimeout,
		},
		{
			Name:        "check_guardrails",
			Description: "Run fraud and policy guardrail checks over the extracted claim content.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"claim_text": {"type": "string", "description": "Extracted claim text to validate"}
				},
				"required": ["claim_text"]
			}`),
			Endpoint: cfg.GuardrailsServerURL,
			Path:     "/check",
			Timeout:  cfg.DefaultTimeout,
		},
		{
			Name:        "retrieve_user_info",
			Description: "Look up the claimant's contract, coverage limits and claim history.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"user_id": {"type": "string", "description": "Identifier of the claimant"}
				},
				"required": ["user_id"]
			}`),
			Endpoint: cfg.RAGServerURL,
			Path:     "/user_info",
			Timeout:  cfg.DefaultTimeout,
		},
		{
			Name:        "retrieve_similar_claims",
			Description: "Search historical claims similar to this one to ground the decision in precedent.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"query": {"type": "string", "description": "Summary of the claim to search with"},
					"top_k": {"type": "integer", "description": "Number of similar claims to return"}
				},
				"required": ["query"]
			}`),
			Endpoint: cfg.RAGServerURL,
			Path:     "/similar_claims",
			Timeout:  cfg.DefaultTimeout,
		},
		{
			Name:        "make_final_decision",
			Description: "Record the final recommendation for this claim. Call exactly once, after gathering evidence.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"recommendation": {"type": "string", "enum": ["approve", "deny", "manual_review"]},
					"confidence": {"type": "number", "description": "Confidence in the recommendation, 0.0 to 1.0"},
					"reasoning": {"type": "string", "description": "Explanation referencing the evidence gathered"},
					"relevant_policies": {"type": "array", "items": {"type": "string"}},
					"estimated_amount": {"type": "number", "description": "Estimated payout if approved"}
				},
				"required": ["recommendation", "confidence", "reasoning"]
			}`),
			Terminal: true,
		},
	}
}

// WireFunction is the function descriptor inside a chat-completion tool entry.
type WireFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// WireTool is one entry of the "tools" array sent to the model endpoint.
type WireTool struct {
	Type     string       `json:"type"`
	Function WireFunction `json:"function"`
}

// WireTools converts the selected registry subset into the chat-completion
// tool format. An empty names slice selects the full catalog.
func WireTools(reg *tool.Registry, names []string) ([]WireTool, error) {
	defs, err := reg.Select(names)
	if err != nil {
		return nil, fmt.Errorf("select tools: %w", err)
	}

	out := make([]WireTool, 0, len(defs))
	for _, d := range defs {
		out = append(out, WireTool{
			Type: "function",
			Function: WireFunction{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.Parameters,
			},
		})
	}
	return out, nil
}
