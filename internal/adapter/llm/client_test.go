package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/claimpilot/claimpilot/internal/agent"
	"github.com/claimpilot/claimpilot/internal/config"
	"github.com/claimpilot/claimpilot/internal/domain/orchestration"
)

func testModelConfig(endpoint string) config.Model {
	return config.Model{
		Endpoint:    endpoint,
		Name:        "test-model",
		Temperature: 0.3,
		MaxTokens:   1000,
		Timeout:     5 * time.Second,
	}
}

func TestTurnNonStreaming(t *testing.T) {
	var gotReq map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"choices": [{
				"message": {
					"content": "",
					"tool_calls": [{
						"id": "call_abc",
						"type": "function",
						"function": {"name": "ocr_document", "arguments": "{\"document_path\":\"d.pdf\"}"}
					}]
				},
				"finish_reason": "tool_calls"
			}]
		}`))
	}))
	defer srv.Close()

	c := NewClient(testModelConfig(srv.URL))
	resp, err := c.Turn(context.Background(), agent.TurnRequest{
		Messages: []orchestration.Message{
			{Role: orchestration.RoleSystem, Content: "sys"},
			{Role: orchestration.RoleUser, Content: "user"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(resp.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(resp.ToolCalls))
	}
	tc := resp.ToolCalls[0]
	if tc.ID != "call_abc" || tc.Name != "ocr_document" {
		t.Errorf("unexpected tool call: %+v", tc)
	}
	// Double-encoded arguments must come back as plain JSON.
	if string(tc.Arguments) != `{"document_path":"d.pdf"}` {
		t.Errorf("arguments not unwrapped: %s", tc.Arguments)
	}

	if gotReq["model"] != "test-model" {
		t.Errorf("expected model name in request, got %v", gotReq["model"])
	}
	if gotReq["stream"] != false {
		t.Errorf("expected stream false, got %v", gotReq["stream"])
	}
	msgs, ok := gotReq["messages"].([]any)
	if !ok || len(msgs) != 2 {
		t.Errorf("expected 2 messages in request, got %v", gotReq["messages"])
	}
}

func TestTurnNormalizesFlatShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"choices": [{
				"message": {
					"content": "",
					"tool_calls": [{"call_id": "c9", "tool_name": "check_guardrails", "arguments": {"claim_text": "x"}}]
				}
			}]
		}`))
	}))
	defer srv.Close()

	c := NewClient(testModelConfig(srv.URL))
	resp, err := c.Turn(context.Background(), agent.TurnRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "check_guardrails" {
		t.Fatalf("flat shape not normalized: %+v", resp.ToolCalls)
	}
	if resp.ToolCalls[0].ID != "c9" {
		t.Errorf("expected call id c9, got %s", resp.ToolCalls[0].ID)
	}
}

func TestTurnErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"overloaded"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(testModelConfig(srv.URL))
	_, err := c.Turn(context.Background(), agent.TurnRequest{})
	if err == nil {
		t.Fatal("expected error for 503")
	}
	if !strings.Contains(err.Error(), "503") {
		t.Errorf("expected status in error, got %v", err)
	}
}

func TestTurnNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	}))
	defer srv.Close()

	c := NewClient(testModelConfig(srv.URL))
	_, err := c.Turn(context.Background(), agent.TurnRequest{})
	if err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestTurnStreaming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		if req["stream"] != true {
			t.Errorf("expected stream true in request")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		frames := []string{
			`data: {"step_type":"inference","event_type":"step_progress","delta":{"text":"The claim "}}`,
			`data: {"step_type":"inference","event_type":"step_progress","delta":{"text":"should be approved."}}`,
			`data: {"event_type":"turn_complete"}`,
		}
		for _, f := range frames {
			w.Write([]byte(f + "\n\n"))
		}
	}))
	defer srv.Close()

	c := NewClient(testModelConfig(srv.URL))
	c.SetStreaming(true)

	resp, err := c.Turn(context.Background(), agent.TurnRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "The claim should be approved." {
		t.Errorf("unexpected streamed content: %q", resp.Content)
	}
	if len(resp.ToolCalls) != 0 {
		t.Errorf("streamed turns carry no executable tool calls, got %d", len(resp.ToolCalls))
	}
}
