package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/claimpilot/claimpilot/internal/adapter/ws"
	"github.com/claimpilot/claimpilot/internal/agent"
	"github.com/claimpilot/claimpilot/internal/domain"
	"github.com/claimpilot/claimpilot/internal/domain/claim"
	"github.com/claimpilot/claimpilot/internal/port/messagequeue"
)

// fakeModel answers single-turn requests with a scripted reply.
type fakeModel struct {
	content string
	err     error

	gotReq agent.TurnRequest
}

func (f *fakeModel) Turn(_ context.Context, req agent.TurnRequest) (*agent.TurnResponse, error) {
	f.gotReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &agent.TurnResponse{Content: f.content}, nil
}

func newReviewService(store *fakeStore, hub *fakeHub, queue *fakeQueue) *ReviewService {
	return NewReviewService(store, hub, queue, &fakeModel{content: "ok"}, testLogger())
}

func TestApplyTransitions(t *testing.T) {
	cases := []struct {
		action string
		want   claim.Status
	}{
		{ActionApprove, claim.StatusCompleted},
		{ActionReject, claim.StatusFailed},
		{ActionRequestInfo, claim.StatusPendingInfo},
	}
	for _, tc := range cases {
		t.Run(tc.action, func(t *testing.T) {
			store := newFakeStore()
			store.seed("c-1", claim.StatusManualReview)
			hub := &fakeHub{}
			queue := &fakeQueue{}
			svc := newReviewService(store, hub, queue)

			reviewer := ws.Identity{ReviewerID: "r-1", ReviewerName: "Pat"}
			status, err := svc.Apply(context.Background(), "c-1", reviewer, tc.action, "looked at the photos")
			if err != nil {
				t.Fatalf("Apply(%s): %v", tc.action, err)
			}
			if status != tc.want {
				t.Errorf("status = %q, want %q", status, tc.want)
			}
			if store.claims["c-1"].Status != tc.want {
				t.Errorf("stored status = %q, want %q", store.claims["c-1"].Status, tc.want)
			}

			entries := store.entries["c-1"]
			if len(entries) != 1 || entries[0].Type != tc.action || entries[0].ReviewerID != "r-1" {
				t.Errorf("audit entries = %+v", entries)
			}

			if len(hub.events) != 1 || hub.events[0].Type != ws.EventClaimUpdated {
				t.Errorf("hub events = %+v", hub.events)
			}

			acts := queue.bySubject(messagequeue.SubjectReviewAction)
			if len(acts) != 1 {
				t.Fatalf("expected 1 review action event, got %d", len(acts))
			}
			var p messagequeue.ReviewActionPayload
			if err := json.Unmarshal(acts[0], &p); err != nil {
				t.Fatalf("decode payload: %v", err)
			}
			if p.Action != tc.action || p.NewStatus != string(tc.want) {
				t.Errorf("payload = %+v", p)
			}
		})
	}
}

func TestApplyCommentKeepsStatus(t *testing.T) {
	store := newFakeStore()
	store.seed("c-2", claim.StatusManualReview)
	hub := &fakeHub{}
	svc := newReviewService(store, hub, &fakeQueue{})

	status, err := svc.Apply(context.Background(), "c-2",
		ws.Identity{ReviewerID: "r-1"}, ActionComment, "need the police report")
	if err != nil {
		t.Fatalf("Apply(comment): %v", err)
	}
	if status != claim.StatusManualReview {
		t.Errorf("status = %q, want manual_review", status)
	}
	if len(store.statusUpdates) != 0 {
		t.Errorf("a comment must not change the claim status, updates: %v", store.statusUpdates)
	}
	if len(store.entries["c-2"]) != 1 {
		t.Errorf("expected one audit entry, got %d", len(store.entries["c-2"]))
	}
	if len(hub.events) != 0 {
		t.Errorf("a comment must not broadcast a status change, got %+v", hub.events)
	}
}

func TestApplyValidation(t *testing.T) {
	store := newFakeStore()
	store.seed("c-3", claim.StatusManualReview)
	svc := newReviewService(store, &fakeHub{}, &fakeQueue{})

	cases := []struct {
		name     string
		reviewer ws.Identity
		action   string
		comment  string
	}{
		{"missing reviewer", ws.Identity{}, ActionApprove, ""},
		{"unknown action", ws.Identity{ReviewerID: "r-1"}, "escalate", ""},
		{"empty comment", ws.Identity{ReviewerID: "r-1"}, ActionComment, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Apply(context.Background(), "c-3", tc.reviewer, tc.action, tc.comment)
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestApplyUnknownClaim(t *testing.T) {
	svc := newReviewService(newFakeStore(), &fakeHub{}, &fakeQueue{})

	_, err := svc.Apply(context.Background(), "missing",
		ws.Identity{ReviewerID: "r-1"}, ActionApprove, "")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestHandleActionAdapts(t *testing.T) {
	store := newFakeStore()
	store.seed("c-4", claim.StatusManualReview)
	svc := newReviewService(store, &fakeHub{}, &fakeQueue{})

	status, err := svc.HandleAction(context.Background(), "c-4",
		ws.Identity{ReviewerID: "r-1"}, ActionApprove, "")
	if err != nil {
		t.Fatalf("HandleAction: %v", err)
	}
	if status != string(claim.StatusCompleted) {
		t.Errorf("status = %q, want completed", status)
	}
}

func TestActiveReviews(t *testing.T) {
	store := newFakeStore()
	store.seed("c-5", claim.StatusManualReview)
	store.seed("c-6", claim.StatusCompleted)
	store.seed("c-7", claim.StatusPendingInfo)
	svc := newReviewService(store, &fakeHub{}, &fakeQueue{})

	active, err := svc.ActiveReviews(context.Background())
	if err != nil {
		t.Fatalf("ActiveReviews: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("expected 2 active reviews, got %d", len(active))
	}
	for _, c := range active {
		if c.Status != claim.StatusManualReview && c.Status != claim.StatusPendingInfo {
			t.Errorf("unexpected status %q in active reviews", c.Status)
		}
	}
}

func TestAskAgentAnswersAndLogs(t *testing.T) {
	store := newFakeStore()
	store.seed("c-9", claim.StatusManualReview)
	store.decisions["c-9"] = &claim.Decision{Recommendation: claim.RecommendManualReview, Confidence: 0.4, Reasoning: "coverage unclear"}
	hub := &fakeHub{}
	model := &fakeModel{content: "The coverage limit is 5000 EUR per incident."}
	svc := NewReviewService(store, hub, &fakeQueue{}, model, testLogger())

	answer, err := svc.AskAgent(context.Background(), "c-9",
		ws.Identity{ReviewerID: "r-1", ReviewerName: "Pat"}, "What is the coverage limit?")
	if err != nil {
		t.Fatalf("AskAgent: %v", err)
	}
	if answer != "The coverage limit is 5000 EUR per incident." {
		t.Errorf("answer = %q", answer)
	}

	if len(model.gotReq.Messages) != 2 {
		t.Fatalf("expected a system and a user message, got %d", len(model.gotReq.Messages))
	}
	if len(model.gotReq.Tools) != 0 {
		t.Errorf("question turns must not offer tools, got %d", len(model.gotReq.Tools))
	}

	entries := store.entries["c-9"]
	if len(entries) != 2 {
		t.Fatalf("expected question and answer entries, got %d", len(entries))
	}
	if entries[0].Type != "question" || entries[0].Message != "What is the coverage limit?" {
		t.Errorf("question entry = %+v", entries[0])
	}
	if entries[1].Type != "answer" || entries[1].ReviewerID != "claims-agent" {
		t.Errorf("answer entry = %+v", entries[1])
	}

	if len(hub.events) != 1 || hub.events[0].Type != ws.EventChatMessage {
		t.Errorf("hub events = %+v", hub.events)
	}
}

func TestAskAgentRequiresReviewableStatus(t *testing.T) {
	store := newFakeStore()
	store.seed("c-10", claim.StatusCompleted)
	svc := newReviewService(store, &fakeHub{}, &fakeQueue{})

	_, err := svc.AskAgent(context.Background(), "c-10",
		ws.Identity{ReviewerID: "r-1"}, "why?")
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestAskAgentValidation(t *testing.T) {
	store := newFakeStore()
	store.seed("c-11", claim.StatusManualReview)
	svc := newReviewService(store, &fakeHub{}, &fakeQueue{})

	if _, err := svc.AskAgent(context.Background(), "c-11", ws.Identity{}, "why?"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("missing reviewer: expected ErrValidation, got %v", err)
	}
	if _, err := svc.AskAgent(context.Background(), "c-11", ws.Identity{ReviewerID: "r-1"}, "  "); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("blank question: expected ErrValidation, got %v", err)
	}
}

func TestAskAgentModelError(t *testing.T) {
	store := newFakeStore()
	store.seed("c-12", claim.StatusPendingInfo)
	svc := NewReviewService(store, &fakeHub{}, &fakeQueue{}, &fakeModel{err: errors.New("model unreachable")}, testLogger())

	_, err := svc.AskAgent(context.Background(), "c-12",
		ws.Identity{ReviewerID: "r-1"}, "status?")
	if err == nil {
		t.Fatal("expected an error when the model is unreachable")
	}
	if len(store.entries["c-12"]) != 0 {
		t.Errorf("no audit entries must be written on model failure, got %d", len(store.entries["c-12"]))
	}
}

func TestReviewLog(t *testing.T) {
	store := newFakeStore()
	store.seed("c-8", claim.StatusManualReview)
	svc := newReviewService(store, &fakeHub{}, &fakeQueue{})

	if _, err := svc.Apply(context.Background(), "c-8",
		ws.Identity{ReviewerID: "r-1"}, ActionComment, "first look"); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	entries, err := svc.Log(context.Background(), "c-8")
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	if len(entries) != 1 || entries[0].Message != "first look" {
		t.Errorf("entries = %+v", entries)
	}
}
