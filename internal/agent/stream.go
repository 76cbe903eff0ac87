package agent

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

// Frame step types.
const (
	StepToolExecution = "tool_execution"
	StepInference     = "inference"
)

// Frame event types.
const (
	EventStepStart    = "step_start"
	EventStepProgress = "step_progress"
	EventStepComplete = "step_complete"
	EventTurnComplete = "turn_complete"
)

// CompletedCall is a tool invocation observed on the stream, with the
// output the executing side reported for it.
type CompletedCall struct {
	ToolName string          `json:"tool_name"`
	Output   json.RawMessage `json:"output,omitempty"`
}

// frame is the wire shape of one stream event.
type frame struct {
	StepType  string `json:"step_type"`
	EventType string `json:"event_type"`
	Delta     struct {
		Text string `json:"text"`
	} `json:"delta"`
	Content   string          `json:"content"`
	ToolCalls []CompletedCall `json:"tool_calls"`
}

// TurnState accumulates one model turn from a sequence of frames.
// Apply is a pure reducer over the frame sequence: replaying the same
// frames in the same order always produces the same final state.
type TurnState struct {
	text       strings.Builder
	override   string // full content from a terminal inference frame, wins over deltas
	overridden bool
	calls      []CompletedCall
	started    int
	done       bool
}

// Apply folds one raw frame into the state. Malformed frames (non-JSON,
// missing keys) are skipped without error so a noisy stream cannot abort
// the turn.
func (s *TurnState) Apply(raw []byte) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return
	}

	if f.EventType == EventTurnComplete {
		s.done = true
		return
	}

	switch f.StepType {
	case StepInference:
		switch f.EventType {
		case EventStepStart:
			s.started++
		case EventStepProgress:
			s.text.WriteString(f.Delta.Text)
		case EventStepComplete:
			// A complete inference frame carrying its own full copy is the
			// source of truth; deltas already seen would double-count it.
			if f.Content != "" {
				s.override = f.Content
				s.overridden = true
			}
		}
	case StepToolExecution:
		switch f.EventType {
		case EventStepStart:
			s.started++
		case EventStepComplete:
			s.calls = append(s.calls, f.ToolCalls...)
		}
	}
}

// Text returns the accumulated assistant text.
func (s *TurnState) Text() string {
	if s.overridden {
		return s.override
	}
	return s.text.String()
}

// ToolCalls returns the completed tool calls in arrival order.
func (s *TurnState) ToolCalls() []CompletedCall { return s.calls }

// Done reports whether a turn_complete frame was seen.
func (s *TurnState) Done() bool { return s.done }

// StepsStarted returns the number of step_start frames seen.
func (s *TurnState) StepsStarted() int { return s.started }

// ReadStream consumes a server-sent event body until turn completion or
// EOF, folding every data payload into a TurnState. Lines other than
// "data:" (event names, comments, blanks) carry no state.
func ReadStream(r io.Reader) (*TurnState, error) {
	state := &TurnState{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "" || data == "[DONE]" {
			if data == "[DONE]" {
				break
			}
			continue
		}
		state.Apply([]byte(data))
		if state.Done() {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return state, err
	}
	return state, nil
}
