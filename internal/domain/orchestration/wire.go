package orchestration

import (
	"encoding/json"
	"strconv"
)

// The model endpoint has shipped tool calls in at least three incompatible
// shapes over time: the chat-completion function shape, a flat agent-runtime
// shape, and a completion_message wrapper around the flat shape. Each adapter
// below maps one upstream shape onto the normalized ToolCall so the rest of
// the engine only ever sees one type.

// functionCallWire is the chat-completion shape:
// {"id":..., "function":{"name":..., "arguments":"<json string>"}}.
type functionCallWire struct {
	ID       string `json:"id"`
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

// flatCallWire is the agent-runtime shape:
// {"call_id":..., "tool_name":..., "arguments":{...}}.
type flatCallWire struct {
	CallID    string          `json:"call_id"`
	ToolName  string          `json:"tool_name"`
	Arguments json.RawMessage `json:"arguments"`
}

// NormalizeToolCall decodes one raw tool-call object in any known upstream
// shape. The second return is false when no tool name could be recovered.
func NormalizeToolCall(raw json.RawMessage, fallbackSeq int) (ToolCall, bool) {
	var fn functionCallWire
	if err := json.Unmarshal(raw, &fn); err == nil && fn.Function.Name != "" {
		return ToolCall{
			ID:        orSeqID(fn.ID, fallbackSeq),
			Name:      fn.Function.Name,
			Arguments: normalizeArguments(fn.Function.Arguments),
		}, true
	}

	var flat flatCallWire
	if err := json.Unmarshal(raw, &flat); err == nil && flat.ToolName != "" {
		return ToolCall{
			ID:        orSeqID(flat.CallID, fallbackSeq),
			Name:      flat.ToolName,
			Arguments: normalizeArguments(flat.Arguments),
		}, true
	}

	return ToolCall{}, false
}

// NormalizeToolCalls decodes a raw array of tool-call objects, dropping
// entries that match no known shape.
func NormalizeToolCalls(raw []json.RawMessage) []ToolCall {
	calls := make([]ToolCall, 0, len(raw))
	for i, r := range raw {
		if tc, ok := NormalizeToolCall(r, i); ok {
			calls = append(calls, tc)
		}
	}
	return calls
}

// normalizeArguments unwraps double-encoded arguments: chat-completion
// responses carry arguments as a JSON string containing JSON.
func normalizeArguments(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{}`)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if json.Valid([]byte(s)) {
			return json.RawMessage(s)
		}
		return json.RawMessage(`{}`)
	}
	return raw
}

func orSeqID(id string, seq int) string {
	if id != "" {
		return id
	}
	return "call_" + strconv.Itoa(seq)
}
