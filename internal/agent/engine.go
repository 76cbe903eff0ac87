package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/claimpilot/claimpilot/internal/config"
	"github.com/claimpilot/claimpilot/internal/domain/claim"
	"github.com/claimpilot/claimpilot/internal/domain/orchestration"
	"github.com/claimpilot/claimpilot/internal/domain/tool"
	"github.com/claimpilot/claimpilot/internal/resilience"
)

// agentName tags processing steps recorded by the engine.
const agentName = "claims-agent"

// TurnRequest carries one turn's conversation state and tool catalog.
type TurnRequest struct {
	Messages []orchestration.Message
	Tools    []WireTool
}

// TurnResponse is the model's reply to one turn: narrative content,
// tool invocations, or both.
type TurnResponse struct {
	Content   string
	ToolCalls []orchestration.ToolCall
}

// ModelClient sends one turn to the model endpoint.
type ModelClient interface {
	Turn(ctx context.Context, req TurnRequest) (*TurnResponse, error)
}

// StepFunc observes each processing step as it completes. Used to
// persist steps and push live progress while a run is in flight.
type StepFunc func(ctx context.Context, claimID string, step orchestration.Step)

// Engine drives the iterative tool-calling loop for one claim at a
// time. Engines are safe for concurrent Run calls; all per-run state
// lives in the run's OrchestrationState.
type Engine struct {
	model    ModelClient
	exec     *Executor
	registry *tool.Registry
	log      *slog.Logger

	maxIterations        int
	toolFailureThreshold int
	modelRetries         int
	modelRetryBase       time.Duration

	onStep StepFunc
}

// NewEngine creates an orchestration engine.
func NewEngine(model ModelClient, exec *Executor, reg *tool.Registry, log *slog.Logger, orch config.Orchestrator, mdl config.Model) *Engine {
	return &Engine{
		model:                model,
		exec:                 exec,
		registry:             reg,
		log:                  log,
		maxIterations:        orch.MaxIterations,
		toolFailureThreshold: orch.ToolFailureThreshold,
		modelRetries:         mdl.Retries,
		modelRetryBase:       mdl.RetryBase,
	}
}

// OnStep registers a step observer. Must be called before Run.
func (e *Engine) OnStep(fn StepFunc) { e.onStep = fn }

// Run processes one claim to a terminal outcome. The returned error is
// reserved for caller mistakes (invalid context, unknown tool in the
// whitelist); every run-level failure is reported through
// RunResult.Status so callers can tell "the agent could not run" from
// "the agent ran and was unsure".
func (e *Engine) Run(ctx context.Context, c claim.Context, toolNames []string) (*orchestration.RunResult, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("claim context: %w", err)
	}
	wireTools, err := WireTools(e.registry, toolNames)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	state := orchestration.NewState(c.ClaimID, SystemPrompt(), UserPrompt(c))
	result := &orchestration.RunResult{ClaimID: c.ClaimID}

	log := e.log.With("claim_id", c.ClaimID)
	log.Info("run started", "tools", len(wireTools))

	lastFailedTool := ""
	failStreak := 0

	for state.Iteration < e.maxIterations {
		resp, err := e.turn(ctx, state.Messages, wireTools)
		if err != nil {
			return e.fail(result, state, start, fmt.Errorf("model turn %d: %w", state.Iteration+1, err), log), nil
		}
		state.Iteration++

		if len(resp.ToolCalls) == 0 {
			// Tool-free content is the final narrative. Extraction is
			// total, so this path always yields a decision.
			state.Append(orchestration.Message{Role: orchestration.RoleAssistant, Content: resp.Content})
			decision := Extract(resp.Content)
			e.emitStep(ctx, c.ClaimID, inferenceStep(resp.Content, start))
			return e.complete(result, state, start, &decision, log), nil
		}

		call := resp.ToolCalls[0]
		if len(resp.ToolCalls) > 1 {
			state.Warn(fmt.Sprintf("model requested %d tools in one turn; executing only %s", len(resp.ToolCalls), call.Name))
		}
		state.Append(orchestration.Message{
			Role:      orchestration.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: []orchestration.ToolCall{call},
		})

		if def, derr := e.registry.Get(call.Name); derr == nil && def.Terminal {
			decision := DecisionFromArguments(call.Arguments)
			state.Append(orchestration.Message{
				Role:       orchestration.RoleTool,
				Content:    "Decision recorded.",
				ToolCallID: call.ID,
			})
			e.emitStep(ctx, c.ClaimID, decisionStep(&decision, start))
			return e.complete(result, state, start, &decision, log), nil
		}

		stepStart := time.Now()
		res := e.exec.Execute(ctx, call)
		state.RecordResult(&res)
		state.Append(orchestration.Message{
			Role:       orchestration.RoleTool,
			Content:    res.Content(),
			ToolCallID: call.ID,
		})

		step := stepFromResult(res, stepStart)
		result.Steps = append(result.Steps, step)
		e.emitStep(ctx, c.ClaimID, step)

		if res.OK() {
			lastFailedTool = ""
			failStreak = 0
			continue
		}

		if call.Name == lastFailedTool {
			failStreak++
		} else {
			lastFailedTool = call.Name
			failStreak = 1
		}
		if failStreak >= e.toolFailureThreshold {
			return e.fail(result, state, start,
				fmt.Errorf("tool %s failed %d consecutive times: %s", call.Name, failStreak, res.Err), log), nil
		}
	}

	// Budget exhausted without a terminal signal. The agent ran, so
	// this is a completed run that a human must finish.
	state.Warn(fmt.Sprintf("iteration budget of %d exhausted without a final decision", e.maxIterations))
	decision := claim.Decision{
		Recommendation: claim.RecommendManualReview,
		Confidence:     0,
		Reasoning:      "The automated run used its full iteration budget without reaching a decision.",
		DecidedAt:      time.Now().UTC(),
	}
	decision.Normalize()
	return e.complete(result, state, start, &decision, log), nil
}

// turn sends the conversation to the model with retry on transport
// failure. A context deadline aborts the retry loop immediately.
func (e *Engine) turn(ctx context.Context, messages []orchestration.Message, tools []WireTool) (*TurnResponse, error) {
	var resp *TurnResponse
	err := resilience.Retry(ctx, e.modelRetries, e.modelRetryBase, func() error {
		r, err := e.model.Turn(ctx, TurnRequest{Messages: messages, Tools: tools})
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	return resp, err
}

func (e *Engine) complete(result *orchestration.RunResult, state *orchestration.State, start time.Time, decision *claim.Decision, log *slog.Logger) *orchestration.RunResult {
	result.Status = orchestration.StatusCompleted
	result.Decision = decision
	result.Warnings = state.Warnings
	result.Iterations = state.Iteration
	result.Duration = time.Since(start)
	log.Info("run completed",
		"recommendation", decision.Recommendation,
		"confidence", decision.Confidence,
		"iterations", result.Iterations,
		"duration_ms", result.Duration.Milliseconds())
	return result
}

func (e *Engine) fail(result *orchestration.RunResult, state *orchestration.State, start time.Time, err error, log *slog.Logger) *orchestration.RunResult {
	result.Status = orchestration.StatusFailed
	result.Error = err.Error()
	result.Warnings = state.Warnings
	result.Iterations = state.Iteration
	result.Duration = time.Since(start)
	log.Error("run failed",
		"iterations", result.Iterations,
		"duration_ms", result.Duration.Milliseconds(),
		"error", err)
	return result
}

func (e *Engine) emitStep(ctx context.Context, claimID string, step orchestration.Step) {
	if e.onStep != nil {
		e.onStep(ctx, claimID, step)
	}
}

// stepFromResult converts a tool result into a recorded processing step.
func stepFromResult(res orchestration.ToolResult, startedAt time.Time) orchestration.Step {
	step := orchestration.Step{
		Name:        res.Tool,
		Agent:       agentName,
		Duration:    res.Duration,
		StartedAt:   startedAt,
		CompletedAt: startedAt.Add(res.Duration),
	}
	if res.OK() {
		step.Status = "completed"
		step.Output = string(res.Output)
	} else {
		step.Status = "failed"
		step.Error = res.Err
	}
	return step
}

func inferenceStep(content string, runStart time.Time) orchestration.Step {
	now := time.Now()
	return orchestration.Step{
		Name:        "llm_decision",
		Agent:       agentName,
		Status:      "completed",
		Output:      content,
		Duration:    now.Sub(runStart),
		StartedAt:   runStart,
		CompletedAt: now,
	}
}

func decisionStep(d *claim.Decision, runStart time.Time) orchestration.Step {
	now := time.Now()
	return orchestration.Step{
		Name:        "llm_decision",
		Agent:       agentName,
		Status:      "completed",
		Output:      fmt.Sprintf("recommendation=%s confidence=%.2f", d.Recommendation, d.Confidence),
		Duration:    now.Sub(runStart),
		StartedAt:   runStart,
		CompletedAt: now,
	}
}
