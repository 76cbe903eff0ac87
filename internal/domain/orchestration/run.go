package orchestration

import (
	"time"

	"github.com/claimpilot/claimpilot/internal/domain/claim"
)

// Status represents the terminal state of an orchestration run.
// A run that produced a manual_review decision is still "completed": callers
// must be able to tell "the agent could not run" apart from "the agent ran
// and was unsure".
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Step records one executed tool call within a run.
type Step struct {
	Name        string        `json:"step_name"`
	Agent       string        `json:"agent_name"`
	Status      string        `json:"status"` // "completed" or "failed"
	Duration    time.Duration `json:"duration"`
	Output      string        `json:"output,omitempty"`
	Error       string        `json:"error,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
}

// State is the mutable working state of one orchestration run. It is owned
// exclusively by that run and discarded when the run ends.
type State struct {
	ClaimID        string
	Iteration      int
	Messages       []Message
	CompletedTools map[string]bool
	CollectedData  map[string]string // tool name -> last successful output
	Warnings       []string
}

// NewState initializes run state with the opening system and user messages.
func NewState(claimID string, system, user string) *State {
	return &State{
		ClaimID: claimID,
		Messages: []Message{
			{Role: RoleSystem, Content: system},
			{Role: RoleUser, Content: user},
		},
		CompletedTools: make(map[string]bool),
		CollectedData:  make(map[string]string),
	}
}

// Append adds a message to the run history.
func (s *State) Append(m Message) {
	s.Messages = append(s.Messages, m)
}

// RecordResult marks a tool completed and retains its latest output.
func (s *State) RecordResult(res *ToolResult) {
	if !res.OK() {
		return
	}
	s.CompletedTools[res.Tool] = true
	s.CollectedData[res.Tool] = string(res.Output)
}

// Warn appends a warning to the run, preserving order.
func (s *State) Warn(msg string) {
	s.Warnings = append(s.Warnings, msg)
}

// RunResult is the outcome of one orchestration run handed back to the caller.
type RunResult struct {
	ClaimID    string          `json:"claim_id"`
	Status     Status          `json:"status"`
	Decision   *claim.Decision `json:"decision,omitempty"`
	Steps      []Step          `json:"steps"`
	Warnings   []string        `json:"warnings,omitempty"`
	Iterations int             `json:"iterations"`
	Duration   time.Duration   `json:"duration"`
	Error      string          `json:"error,omitempty"`
}
