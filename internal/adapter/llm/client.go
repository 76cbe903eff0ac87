// Package llm provides the HTTP client for the model turn endpoint.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/claimpilot/claimpilot/internal/agent"
	"github.com/claimpilot/claimpilot/internal/config"
	"github.com/claimpilot/claimpilot/internal/domain/orchestration"
	"github.com/claimpilot/claimpilot/internal/resilience"
)

// Client sends conversation turns to a chat-completion style model
// endpoint. It implements agent.ModelClient.
type Client struct {
	cfg        config.Model
	httpClient *http.Client
	breaker    *resilience.Breaker
	stream     bool
}

// NewClient creates a model turn client.
func NewClient(cfg config.Model) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing turn calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// SetStreaming switches the client to the streaming response mode, for
// endpoints that execute tools server-side and stream step frames back.
func (c *Client) SetStreaming(on bool) {
	c.stream = on
}

// turnRequest is the wire shape of one turn call.
type turnRequest struct {
	Model       string           `json:"model"`
	Messages    []wireMessage    `json:"messages"`
	Tools       []agent.WireTool `json:"tools,omitempty"`
	ToolChoice  string           `json:"tool_choice,omitempty"`
	Temperature float64          `json:"temperature"`
	MaxTokens   int              `json:"max_tokens"`
	Stream      bool             `json:"stream"`
}

// wireMessage mirrors orchestration.Message with the tool_calls entries
// re-encoded into the chat-completion function shape the endpoint expects.
type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// turnResponse is the non-streaming chat-completion response shape.
// Tool calls are kept raw and normalized through the adapter layer since
// the endpoint has shipped several incompatible shapes over time.
type turnResponse struct {
	Choices []struct {
		Message struct {
			Content   string            `json:"content"`
			ToolCalls []json.RawMessage `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Turn sends the conversation and tool catalog, returning the model's
// next action.
func (c *Client) Turn(ctx context.Context, req agent.TurnRequest) (*agent.TurnResponse, error) {
	body, err := json.Marshal(turnRequest{
		Model:       c.cfg.Name,
		Messages:    toWireMessages(req.Messages),
		Tools:       req.Tools,
		ToolChoice:  "auto",
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
		Stream:      c.stream,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal turn request: %w", err)
	}

	var resp *agent.TurnResponse
	call := func() error {
		r, err := c.doTurn(ctx, body)
		if err != nil {
			return err
		}
		resp = r
		return nil
	}

	if c.breaker != nil {
		if err := c.breaker.Execute(call); err != nil {
			return nil, err
		}
		return resp, nil
	}
	if err := call(); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) doTurn(ctx context.Context, body []byte) (*agent.TurnResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("model request: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	if httpResp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		return nil, fmt.Errorf("model API error %d: %s", httpResp.StatusCode, string(data))
	}

	if c.stream {
		return c.readStreamed(httpResp.Body)
	}
	return c.readSingle(httpResp.Body)
}

// readSingle parses a non-streaming turn response.
func (c *Client) readSingle(body io.Reader) (*agent.TurnResponse, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var tr turnResponse
	if err := json.Unmarshal(data, &tr); err != nil {
		return nil, fmt.Errorf("unmarshal turn response: %w", err)
	}
	if len(tr.Choices) == 0 {
		return nil, fmt.Errorf("turn response has no choices")
	}

	msg := tr.Choices[0].Message
	return &agent.TurnResponse{
		Content:   msg.Content,
		ToolCalls: orchestration.NormalizeToolCalls(msg.ToolCalls),
	}, nil
}

// readStreamed folds a step-frame event stream into a turn response. A
// streaming endpoint runs its tools server-side, so only narrative
// content comes back for the loop to act on.
func (c *Client) readStreamed(body io.Reader) (*agent.TurnResponse, error) {
	state, err := agent.ReadStream(body)
	if err != nil {
		return nil, fmt.Errorf("read stream: %w", err)
	}
	return &agent.TurnResponse{Content: state.Text()}, nil
}

func toWireMessages(messages []orchestration.Message) []wireMessage {
	out := make([]wireMessage, 0, len(messages))
	for _, m := range messages {
		wm := wireMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			var wtc wireToolCall
			wtc.ID = tc.ID
			wtc.Type = "function"
			wtc.Function.Name = tc.Name
			wtc.Function.Arguments = string(tc.Arguments)
			wm.ToolCalls = append(wm.ToolCalls, wtc)
		}
		out = append(out, wm)
	}
	return out
}
