package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/claimpilot/claimpilot/internal/config"
	"github.com/claimpilot/claimpilot/internal/domain/claim"
	"github.com/claimpilot/claimpilot/internal/domain/orchestration"
	"github.com/claimpilot/claimpilot/internal/domain/tool"
)

// scriptedModel returns one queued response per turn, or err for every
// turn when set.
type scriptedModel struct {
	turns []TurnResponse
	err   error
	calls int
}

func (m *scriptedModel) Turn(_ context.Context, _ TurnRequest) (*TurnResponse, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if len(m.turns) == 0 {
		return &TurnResponse{Content: "nothing left to say"}, nil
	}
	next := m.turns[0]
	m.turns = m.turns[1:]
	return &next, nil
}

func testContext() claim.Context {
	return claim.Context{
		ClaimID:      "claim-1",
		ClaimNumber:  "CLM-2026-0001",
		UserID:       "user-1",
		ClaimType:    "auto",
		DocumentPath: "claims/claim-1.pdf",
	}
}

func newTestEngine(t *testing.T, model ModelClient, toolEndpoint string) *Engine {
	t.Helper()
	cfg := config.Defaults()
	if toolEndpoint != "" {
		cfg.Tools.OCRServerURL = toolEndpoint
		cfg.Tools.RAGServerURL = toolEndpoint
		cfg.Tools.GuardrailsServerURL = toolEndpoint
	}
	cfg.Model.Retries = 2
	cfg.Model.RetryBase = time.Millisecond

	reg, err := tool.NewRegistry(Catalog(cfg.Tools))
	if err != nil {
		t.Fatal(err)
	}
	exec := NewExecutor(reg, discardLogger(), cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	return NewEngine(model, exec, reg, discardLogger(), cfg.Orchestrator, cfg.Model)
}

func TestEngineTerminalToolEndsRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	model := &scriptedModel{turns: []TurnResponse{
		{ToolCalls: []orchestration.ToolCall{{ID: "c1", Name: "ocr_document", Arguments: json.RawMessage(`{"document_path":"claims/claim-1.pdf"}`)}}},
		{ToolCalls: []orchestration.ToolCall{{ID: "c2", Name: "make_final_decision", Arguments: json.RawMessage(`{"recommendation":"approve","confidence":0.9,"reasoning":"all good"}`)}}},
	}}

	engine := newTestEngine(t, model, srv.URL)
	result, err := engine.Run(context.Background(), testContext(), nil)
	if err != nil {
		t.Fatal(err)
	}

	if result.Status != orchestration.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", result.Status, result.Error)
	}
	if result.Decision == nil || result.Decision.Recommendation != claim.RecommendApprove {
		t.Fatalf("expected approve decision, got %+v", result.Decision)
	}
	if result.Iterations != 2 {
		t.Errorf("expected 2 iterations, got %d", result.Iterations)
	}
	if len(result.Steps) != 1 || result.Steps[0].Name != "ocr_document" {
		t.Errorf("expected one ocr step, got %+v", result.Steps)
	}
}

func TestEngineToolFreeContentExtractsDecision(t *testing.T) {
	model := &scriptedModel{turns: []TurnResponse{
		{Content: "Based on the evidence this claim should be denied. " + `{"recommendation":"deny","confidence":0.8,"reasoning":"excluded"}`},
	}}

	engine := newTestEngine(t, model, "")
	result, err := engine.Run(context.Background(), testContext(), nil)
	if err != nil {
		t.Fatal(err)
	}

	if result.Status != orchestration.StatusCompleted {
		t.Fatalf("expected completed, got %s", result.Status)
	}
	if result.Decision.Recommendation != claim.RecommendDeny {
		t.Errorf("expected deny, got %s", result.Decision.Recommendation)
	}
}

func TestEngineBudgetExhaustionIsManualReviewNotFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	// The model alternates tools forever and never decides.
	var turns []TurnResponse
	for i := 0; i < 50; i++ {
		name := "ocr_document"
		if i%2 == 1 {
			name = "check_guardrails"
		}
		turns = append(turns, TurnResponse{ToolCalls: []orchestration.ToolCall{{ID: "c", Name: name, Arguments: json.RawMessage(`{}`)}}})
	}
	model := &scriptedModel{turns: turns}

	engine := newTestEngine(t, model, srv.URL)
	result, err := engine.Run(context.Background(), testContext(), nil)
	if err != nil {
		t.Fatal(err)
	}

	if result.Status != orchestration.StatusCompleted {
		t.Fatalf("budget exhaustion must not be a failed run, got %s", result.Status)
	}
	if result.Decision.Recommendation != claim.RecommendManualReview {
		t.Errorf("expected manual_review, got %s", result.Decision.Recommendation)
	}
	if result.Decision.Confidence != 0 {
		t.Errorf("expected confidence 0, got %v", result.Decision.Confidence)
	}
	if result.Iterations != 10 {
		t.Errorf("expected exactly maxIterations turns, got %d", result.Iterations)
	}
	if len(result.Warnings) == 0 {
		t.Error("expected a budget warning")
	}
}

func TestEngineModelUnreachableIsFailed(t *testing.T) {
	model := &scriptedModel{err: errors.New("connection refused")}

	engine := newTestEngine(t, model, "")
	result, err := engine.Run(context.Background(), testContext(), nil)
	if err != nil {
		t.Fatal(err)
	}

	if result.Status != orchestration.StatusFailed {
		t.Fatalf("unreachable model must fail the run, got %s", result.Status)
	}
	if result.Decision != nil {
		t.Error("failed run must not carry a decision")
	}
	if model.calls != 2 {
		t.Errorf("expected 2 attempts (configured retries), got %d", model.calls)
	}
}

func TestEngineConsecutiveToolFailuresAbort(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "ocr down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	var turns []TurnResponse
	for i := 0; i < 10; i++ {
		turns = append(turns, TurnResponse{ToolCalls: []orchestration.ToolCall{{ID: "c", Name: "ocr_document", Arguments: json.RawMessage(`{}`)}}})
	}
	model := &scriptedModel{turns: turns}

	engine := newTestEngine(t, model, srv.URL)
	result, err := engine.Run(context.Background(), testContext(), nil)
	if err != nil {
		t.Fatal(err)
	}

	if result.Status != orchestration.StatusFailed {
		t.Fatalf("expected failed after repeated tool failures, got %s", result.Status)
	}
	if !strings.Contains(result.Error, "3 consecutive times") {
		t.Errorf("expected consecutive failure error, got %q", result.Error)
	}
	if len(result.Steps) != 3 {
		t.Errorf("expected 3 recorded failed steps, got %d", len(result.Steps))
	}
}

func TestEngineToolFailureIsFedBackToModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/ocr") {
			http.Error(w, "ocr down", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	model := &scriptedModel{turns: []TurnResponse{
		{ToolCalls: []orchestration.ToolCall{{ID: "c1", Name: "ocr_document", Arguments: json.RawMessage(`{}`)}}},
		// The model adapts: skips OCR and decides.
		{ToolCalls: []orchestration.ToolCall{{ID: "c2", Name: "make_final_decision", Arguments: json.RawMessage(`{"recommendation":"manual_review","confidence":0.4,"reasoning":"document unreadable"}`)}}},
	}}

	engine := newTestEngine(t, model, srv.URL)
	result, err := engine.Run(context.Background(), testContext(), nil)
	if err != nil {
		t.Fatal(err)
	}

	if result.Status != orchestration.StatusCompleted {
		t.Fatalf("single tool failure must be non-fatal, got %s (%s)", result.Status, result.Error)
	}
	if result.Decision.Recommendation != claim.RecommendManualReview {
		t.Errorf("expected manual_review, got %s", result.Decision.Recommendation)
	}
	if len(result.Steps) != 1 || result.Steps[0].Status != "failed" {
		t.Errorf("expected one failed step recorded, got %+v", result.Steps)
	}
}

func TestEngineUnknownWhitelistedToolIsCallerError(t *testing.T) {
	engine := newTestEngine(t, &scriptedModel{}, "")
	_, err := engine.Run(context.Background(), testContext(), []string{"no_such_tool"})
	if err == nil {
		t.Fatal("expected error for unknown tool in whitelist")
	}
	if !errors.Is(err, tool.ErrUnknown) {
		t.Errorf("expected tool.ErrUnknown, got %v", err)
	}
}

func TestEngineStepObserver(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	model := &scriptedModel{turns: []TurnResponse{
		{ToolCalls: []orchestration.ToolCall{{ID: "c1", Name: "check_guardrails", Arguments: json.RawMessage(`{}`)}}},
		{ToolCalls: []orchestration.ToolCall{{ID: "c2", Name: "make_final_decision", Arguments: json.RawMessage(`{"recommendation":"approve","confidence":0.8,"reasoning":"clean"}`)}}},
	}}

	engine := newTestEngine(t, model, srv.URL)
	var observed []string
	engine.OnStep(func(_ context.Context, claimID string, step orchestration.Step) {
		if claimID != "claim-1" {
			t.Errorf("unexpected claim id %s", claimID)
		}
		observed = append(observed, step.Name)
	})

	if _, err := engine.Run(context.Background(), testContext(), nil); err != nil {
		t.Fatal(err)
	}

	if len(observed) != 2 || observed[0] != "check_guardrails" || observed[1] != "llm_decision" {
		t.Errorf("unexpected observed steps: %v", observed)
	}
}

func TestEngineCancelledContextFailsRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	model := &scriptedModel{err: errors.New("should not matter")}
	engine := newTestEngine(t, model, "")

	result, err := engine.Run(ctx, testContext(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != orchestration.StatusFailed {
		t.Fatalf("cancelled run must be failed, got %s", result.Status)
	}
}
