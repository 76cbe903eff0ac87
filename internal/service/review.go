package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	internalotel "github.com/claimpilot/claimpilot/internal/adapter/otel"
	"github.com/claimpilot/claimpilot/internal/adapter/ws"
	"github.com/claimpilot/claimpilot/internal/agent"
	"github.com/claimpilot/claimpilot/internal/domain"
	"github.com/claimpilot/claimpilot/internal/domain/claim"
	"github.com/claimpilot/claimpilot/internal/domain/orchestration"
	"github.com/claimpilot/claimpilot/internal/port/broadcast"
	"github.com/claimpilot/claimpilot/internal/port/database"
	"github.com/claimpilot/claimpilot/internal/port/messagequeue"
)

// Review actions accepted from human reviewers.
const (
	ActionApprove     = "approve"
	ActionReject      = "reject"
	ActionComment     = "comment"
	ActionRequestInfo = "request_info"
)

// Review log entry types written by AskAgent, alongside the action types.
const (
	entryQuestion = "question"
	entryAnswer   = "answer"
)

// agentIdentity names the agent in log entries and broadcasts it authors.
var agentIdentity = ws.Identity{ReviewerID: "claims-agent", ReviewerName: "Claims Agent"}

// ReviewService applies human review actions to claims and keeps the audit
// log and connected reviewers in sync. It also relays reviewer questions
// about a claim to the model.
type ReviewService struct {
	store database.Store
	hub   broadcast.Broadcaster
	queue messagequeue.Queue
	model agent.ModelClient
	log   *slog.Logger
}

// NewReviewService creates a ReviewService. model may be nil, in which
// case AskAgent reports that questions are unavailable.
func NewReviewService(store database.Store, hub broadcast.Broadcaster, queue messagequeue.Queue, model agent.ModelClient, log *slog.Logger) *ReviewService {
	return &ReviewService{store: store, hub: hub, queue: queue, model: model, log: log}
}

// statusForAction maps a review action to the claim status it results in.
// Comment leaves the status untouched.
func statusForAction(action string) (claim.Status, bool) {
	switch action {
	case ActionApprove:
		return claim.StatusCompleted, true
	case ActionReject:
		return claim.StatusFailed, true
	case ActionRequestInfo:
		return claim.StatusPendingInfo, true
	default:
		return "", false
	}
}

// Apply records a review action on a claim: validate, transition the claim
// status, append the audit entry, broadcast the change and publish it on the
// queue. It returns the claim status after the action.
func (s *ReviewService) Apply(ctx context.Context, claimID string, reviewer ws.Identity, action, comment string) (claim.Status, error) {
	if reviewer.ReviewerID == "" {
		return "", fmt.Errorf("%w: reviewer_id is required", domain.ErrValidation)
	}
	newStatus, transitions := statusForAction(action)
	if !transitions && action != ActionComment {
		return "", fmt.Errorf("%w: unknown review action %q", domain.ErrValidation, action)
	}
	if action == ActionComment && comment == "" {
		return "", fmt.Errorf("%w: comment text is required", domain.ErrValidation)
	}

	ctx, span := internalotel.StartReviewSpan(ctx, claimID, action)
	defer span.End()

	c, err := s.store.GetClaim(ctx, claimID)
	if err != nil {
		return "", fmt.Errorf("get claim: %w", err)
	}

	status := c.Status
	if transitions {
		if err := s.store.UpdateClaimStatus(ctx, claimID, newStatus, 0); err != nil {
			return "", fmt.Errorf("update status: %w", err)
		}
		status = newStatus
	}

	entry := &claim.ReviewEntry{
		ClaimID:      claimID,
		Type:         action,
		ReviewerID:   reviewer.ReviewerID,
		ReviewerName: reviewer.ReviewerName,
		Message:      comment,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.AppendReviewEntry(ctx, entry); err != nil {
		// The transition already happened; keep going but record the gap.
		s.log.Error("append review entry", "claim_id", claimID, "action", action, "error", err)
	}

	if transitions {
		s.hub.BroadcastEvent(ctx, claimID, ws.EventClaimUpdated, ws.ClaimUpdatedEvent{
			ClaimID: claimID,
			Status:  string(status),
			Detail:  fmt.Sprintf("review %s by %s", action, reviewer.ReviewerID),
		})
	}

	payload, _ := json.Marshal(messagequeue.ReviewActionPayload{
		ClaimID:      claimID,
		Action:       action,
		ReviewerID:   reviewer.ReviewerID,
		ReviewerName: reviewer.ReviewerName,
		Comment:      comment,
		NewStatus:    string(status),
	})
	if err := s.queue.Publish(ctx, messagequeue.SubjectReviewAction, payload); err != nil {
		s.log.Error("publish review action", "claim_id", claimID, "error", err)
	}

	s.log.Info("review action applied",
		"claim_id", claimID,
		"action", action,
		"reviewer_id", reviewer.ReviewerID,
		"status", status)
	return status, nil
}

// HandleAction adapts Apply to the reviewer channel's action callback shape.
func (s *ReviewService) HandleAction(ctx context.Context, claimID string, reviewer ws.Identity, action, comment string) (string, error) {
	status, err := s.Apply(ctx, claimID, reviewer, action, comment)
	if err != nil {
		return "", err
	}
	return string(status), nil
}

// AskAgent relays a reviewer's question about a claim under review to the
// model in a single tool-free turn. Question and answer are both appended
// to the review log and the answer is broadcast to connected reviewers.
func (s *ReviewService) AskAgent(ctx context.Context, claimID string, reviewer ws.Identity, question string) (string, error) {
	if s.model == nil {
		return "", fmt.Errorf("%w: agent questions are not available", domain.ErrValidation)
	}
	if reviewer.ReviewerID == "" {
		return "", fmt.Errorf("%w: reviewer_id is required", domain.ErrValidation)
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return "", fmt.Errorf("%w: question text is required", domain.ErrValidation)
	}

	c, err := s.store.GetClaim(ctx, claimID)
	if err != nil {
		return "", fmt.Errorf("get claim: %w", err)
	}
	if c.Status != claim.StatusManualReview && c.Status != claim.StatusPendingInfo {
		return "", fmt.Errorf("%w: claim %s is not under review (status %s)", domain.ErrConflict, claimID, c.Status)
	}

	cc, err := s.store.LoadClaimContext(ctx, claimID)
	if err != nil {
		return "", fmt.Errorf("load claim context: %w", err)
	}
	decision, err := s.store.GetDecision(ctx, claimID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return "", fmt.Errorf("get decision: %w", err)
	}

	resp, err := s.model.Turn(ctx, agent.TurnRequest{
		Messages: []orchestration.Message{
			{Role: orchestration.RoleSystem, Content: agent.QASystemPrompt()},
			{Role: orchestration.RoleUser, Content: agent.QAUserPrompt(*cc, decision, question)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("ask agent: %w", err)
	}
	answer := strings.TrimSpace(resp.Content)
	if answer == "" {
		answer = "The agent did not produce an answer for this question."
	}

	now := time.Now().UTC()
	for _, entry := range []*claim.ReviewEntry{
		{ClaimID: claimID, Type: entryQuestion, ReviewerID: reviewer.ReviewerID, ReviewerName: reviewer.ReviewerName, Message: question, CreatedAt: now},
		{ClaimID: claimID, Type: entryAnswer, ReviewerID: agentIdentity.ReviewerID, ReviewerName: agentIdentity.ReviewerName, Message: answer, CreatedAt: now},
	} {
		if err := s.store.AppendReviewEntry(ctx, entry); err != nil {
			s.log.Error("append review entry", "claim_id", claimID, "type", entry.Type, "error", err)
		}
	}

	s.hub.BroadcastEvent(ctx, claimID, ws.EventChatMessage, ws.ChatEvent{
		ClaimID:  claimID,
		Reviewer: agentIdentity,
		Message:  answer,
	})

	s.log.Info("agent answered reviewer question",
		"claim_id", claimID,
		"reviewer_id", reviewer.ReviewerID)
	return answer, nil
}

// Log returns the review audit log for a claim, oldest first.
func (s *ReviewService) Log(ctx context.Context, claimID string) ([]claim.ReviewEntry, error) {
	return s.store.ListReviewEntries(ctx, claimID)
}

// ActiveReviews returns the claims currently waiting on a human reviewer.
func (s *ReviewService) ActiveReviews(ctx context.Context) ([]claim.Claim, error) {
	claims, err := s.store.ListClaims(ctx)
	if err != nil {
		return nil, err
	}
	active := make([]claim.Claim, 0, len(claims))
	for _, c := range claims {
		if c.Status == claim.StatusManualReview || c.Status == claim.StatusPendingInfo {
			active = append(active, c)
		}
	}
	return active, nil
}
