// Package service wires the claim processing and review workflows on top of
// the agent engine, the store, the message queue and the reviewer hub.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	internalotel "github.com/claimpilot/claimpilot/internal/adapter/otel"
	"github.com/claimpilot/claimpilot/internal/adapter/ws"
	"github.com/claimpilot/claimpilot/internal/config"
	"github.com/claimpilot/claimpilot/internal/domain/claim"
	"github.com/claimpilot/claimpilot/internal/domain/orchestration"
	"github.com/claimpilot/claimpilot/internal/port/broadcast"
	"github.com/claimpilot/claimpilot/internal/port/database"
	"github.com/claimpilot/claimpilot/internal/port/messagequeue"
)

// Runner is the slice of the agent engine the claim service depends on.
type Runner interface {
	Run(ctx context.Context, c claim.Context, toolNames []string) (*orchestration.RunResult, error)
}

// ClaimService owns the claim lifecycle: intake, automated processing and
// status reads.
type ClaimService struct {
	store   database.Store
	runner  Runner
	queue   messagequeue.Queue
	hub     broadcast.Broadcaster
	metrics *internalotel.Metrics
	log     *slog.Logger

	runTimeout          time.Duration
	confidenceThreshold float64
	toolNames           []string
}

// NewClaimService creates a ClaimService. metrics may be nil when telemetry
// is disabled.
func NewClaimService(
	store database.Store,
	runner Runner,
	queue messagequeue.Queue,
	hub broadcast.Broadcaster,
	metrics *internalotel.Metrics,
	log *slog.Logger,
	cfg config.Orchestrator,
	toolNames []string,
) *ClaimService {
	return &ClaimService{
		store:               store,
		runner:              runner,
		queue:               queue,
		hub:                 hub,
		metrics:             metrics,
		log:                 log,
		runTimeout:          cfg.RunTimeout,
		confidenceThreshold: cfg.ConfidenceThreshold,
		toolNames:           toolNames,
	}
}

// Submit validates and persists a new claim, then publishes a processing
// request so a worker picks it up.
func (s *ClaimService) Submit(ctx context.Context, c *claim.Claim) (*claim.Claim, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.ClaimNumber == "" {
		c.ClaimNumber = fmt.Sprintf("CLM-%.8s", c.ID)
	}
	c.Status = claim.StatusSubmitted

	if err := s.store.CreateClaim(ctx, c); err != nil {
		return nil, fmt.Errorf("create claim: %w", err)
	}

	payload, _ := json.Marshal(messagequeue.ProcessRequestedPayload{
		ClaimID:      c.ID,
		DocumentPath: c.DocumentPath,
	})
	if err := s.queue.Publish(ctx, messagequeue.SubjectProcessRequested, payload); err != nil {
		// The claim is stored; processing can be retriggered by hand.
		s.log.Error("publish process request", "claim_id", c.ID, "error", err)
	}
	return c, nil
}

// Get returns one claim by ID.
func (s *ClaimService) Get(ctx context.Context, id string) (*claim.Claim, error) {
	return s.store.GetClaim(ctx, id)
}

// List returns all claims, newest first.
func (s *ClaimService) List(ctx context.Context) ([]claim.Claim, error) {
	return s.store.ListClaims(ctx)
}

// Decision returns the stored automated decision for a claim.
func (s *ClaimService) Decision(ctx context.Context, claimID string) (*claim.Decision, error) {
	return s.store.GetDecision(ctx, claimID)
}

// ProcessingStatus reports a claim's status together with the steps recorded
// so far, for polling clients. Progress is a rough percentage derived from
// the last recorded step.
type ProcessingStatus struct {
	ClaimID  string               `json:"claim_id"`
	Status   claim.Status         `json:"status"`
	Progress int                  `json:"progress"`
	Steps    []orchestration.Step `json:"steps"`
}

var stepProgress = map[string]int{
	"ocr_document":            25,
	"check_guardrails":        45,
	"retrieve_user_info":      60,
	"retrieve_similar_claims": 75,
	"llm_decision":            90,
	"make_final_decision":     95,
}

func progressFor(status claim.Status, steps []orchestration.Step) int {
	switch status {
	case claim.StatusCompleted, claim.StatusFailed, claim.StatusManualReview, claim.StatusPendingInfo:
		return 100
	case claim.StatusSubmitted:
		return 0
	}
	progress := 10
	for _, st := range steps {
		if p, ok := stepProgress[st.Name]; ok && p > progress {
			progress = p
		}
	}
	return progress
}

// Status returns the processing status of a claim.
func (s *ClaimService) Status(ctx context.Context, claimID string) (*ProcessingStatus, error) {
	c, err := s.store.GetClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}
	steps, err := s.store.ListSteps(ctx, claimID)
	if err != nil {
		return nil, err
	}
	return &ProcessingStatus{
		ClaimID:  c.ID,
		Status:   c.Status,
		Progress: progressFor(c.Status, steps),
		Steps:    steps,
	}, nil
}

// HandleProcessRequested is the queue handler for claims.process.requested.
// The payload may carry an explicit tool whitelist for the run.
func (s *ClaimService) HandleProcessRequested(ctx context.Context, _ string, data []byte) error {
	var p messagequeue.ProcessRequestedPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode process request: %w", err)
	}
	if p.ClaimID == "" {
		return fmt.Errorf("decode process request: empty claim_id")
	}
	tools := p.Tools
	if len(tools) == 0 {
		tools = s.toolNames
	}
	return s.process(ctx, p.ClaimID, tools)
}

// Process runs the agent over one claim end to end: load context, run the
// tool-calling loop under the wall-clock budget, persist the decision and
// publish the outcome. A failed run is recorded on the claim, not returned
// as an error; errors indicate the run could not be attempted at all.
func (s *ClaimService) Process(ctx context.Context, claimID string) error {
	return s.process(ctx, claimID, s.toolNames)
}

func (s *ClaimService) process(ctx context.Context, claimID string, tools []string) error {
	cc, err := s.store.LoadClaimContext(ctx, claimID)
	if err != nil {
		return fmt.Errorf("load claim context: %w", err)
	}

	ctx, span := internalotel.StartRunSpan(ctx, claimID, cc.ClaimType)
	defer span.End()

	if err := s.store.UpdateClaimStatus(ctx, claimID, claim.StatusProcessing, 0); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	s.hub.BroadcastEvent(ctx, claimID, ws.EventClaimUpdated, ws.ClaimUpdatedEvent{
		ClaimID: claimID,
		Status:  string(claim.StatusProcessing),
	})
	if s.metrics != nil {
		s.metrics.RunsStarted.Add(ctx, 1)
	}

	runCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	result, err := s.runner.Run(runCtx, *cc, tools)
	if err != nil {
		return fmt.Errorf("run agent: %w", err)
	}

	// The run context may be exhausted; persistence and notifications use
	// the parent.
	if result.Status == orchestration.StatusFailed {
		return s.finishFailed(ctx, claimID, result)
	}
	return s.finishCompleted(ctx, claimID, result)
}

func (s *ClaimService) finishFailed(ctx context.Context, claimID string, result *orchestration.RunResult) error {
	durationMS := result.Duration.Milliseconds()
	if err := s.store.UpdateClaimStatus(ctx, claimID, claim.StatusFailed, durationMS); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	s.hub.BroadcastEvent(ctx, claimID, ws.EventClaimUpdated, ws.ClaimUpdatedEvent{
		ClaimID: claimID,
		Status:  string(claim.StatusFailed),
		Detail:  result.Error,
	})
	payload, _ := json.Marshal(messagequeue.RunFailedPayload{
		ClaimID:    claimID,
		Error:      result.Error,
		Iterations: result.Iterations,
		DurationMS: durationMS,
	})
	if err := s.queue.Publish(ctx, messagequeue.SubjectRunFailed, payload); err != nil {
		s.log.Error("publish run failed", "claim_id", claimID, "error", err)
	}
	if s.metrics != nil {
		s.metrics.RunsFailed.Add(ctx, 1)
		s.recordRun(ctx, result)
	}
	s.log.Error("claim run failed", "claim_id", claimID, "error", result.Error, "iterations", result.Iterations)
	return nil
}

func (s *ClaimService) finishCompleted(ctx context.Context, claimID string, result *orchestration.RunResult) error {
	decision := result.Decision
	if decision == nil {
		// A completed run always carries a decision; guard anyway.
		decision = &claim.Decision{
			Recommendation: claim.RecommendManualReview,
			Reasoning:      "run completed without a decision",
			DecidedAt:      time.Now().UTC(),
		}
	}
	if decision.Recommendation != claim.RecommendManualReview && decision.Confidence < s.confidenceThreshold {
		s.log.Warn("confidence below threshold, routing to manual review",
			"claim_id", claimID,
			"recommendation", decision.Recommendation,
			"confidence", decision.Confidence,
			"threshold", s.confidenceThreshold)
		decision.Reasoning = fmt.Sprintf("confidence %.2f below threshold %.2f (agent recommended %s): %s",
			decision.Confidence, s.confidenceThreshold, decision.Recommendation, decision.Reasoning)
		decision.Recommendation = claim.RecommendManualReview
	}

	if err := s.store.SaveDecision(ctx, claimID, decision); err != nil {
		return fmt.Errorf("save decision: %w", err)
	}

	status := decision.ClaimStatus()
	durationMS := result.Duration.Milliseconds()
	if err := s.store.UpdateClaimStatus(ctx, claimID, status, durationMS); err != nil {
		return fmt.Errorf("mark %s: %w", status, err)
	}

	s.hub.BroadcastEvent(ctx, claimID, ws.EventClaimUpdated, ws.ClaimUpdatedEvent{
		ClaimID: claimID,
		Status:  string(status),
		Detail:  string(decision.Recommendation),
	})
	if status == claim.StatusManualReview {
		s.hub.NotifyManualReviewRequired(ctx, claimID, decision.Reasoning)
	}

	payload, _ := json.Marshal(messagequeue.RunCompletedPayload{
		ClaimID:        claimID,
		Status:         string(status),
		Recommendation: string(decision.Recommendation),
		Confidence:     decision.Confidence,
		Iterations:     result.Iterations,
		DurationMS:     durationMS,
	})
	if err := s.queue.Publish(ctx, messagequeue.SubjectRunCompleted, payload); err != nil {
		s.log.Error("publish run completed", "claim_id", claimID, "error", err)
	}

	if s.metrics != nil {
		s.metrics.RunsCompleted.Add(ctx, 1)
		if status == claim.StatusManualReview {
			s.metrics.ManualReviews.Add(ctx, 1)
		}
		s.recordRun(ctx, result)
	}
	s.log.Info("claim run completed",
		"claim_id", claimID,
		"status", status,
		"recommendation", decision.Recommendation,
		"confidence", decision.Confidence,
		"iterations", result.Iterations,
		"duration", result.Duration)
	return nil
}

func (s *ClaimService) recordRun(ctx context.Context, result *orchestration.RunResult) {
	s.metrics.RunDuration.Record(ctx, result.Duration.Seconds())
	s.metrics.RunIterations.Record(ctx, int64(result.Iterations))
}

// RecordStep is the engine step hook: each executed step is persisted and
// pushed to reviewers watching the claim. A write failure must not abort the
// run, so it is only logged.
func (s *ClaimService) RecordStep(ctx context.Context, claimID string, step orchestration.Step) {
	if err := s.store.AppendStep(ctx, claimID, step); err != nil {
		s.log.Error("append step", "claim_id", claimID, "step", step.Name, "error", err)
	}
	if s.metrics != nil {
		s.metrics.ToolCalls.Add(ctx, 1)
	}
	s.hub.BroadcastEvent(ctx, claimID, ws.EventClaimUpdated, ws.ClaimUpdatedEvent{
		ClaimID: claimID,
		Status:  string(claim.StatusProcessing),
		Detail:  fmt.Sprintf("%s %s", step.Name, step.Status),
	})
}
