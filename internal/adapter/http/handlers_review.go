package http

import (
	"net/http"

	"github.com/claimpilot/claimpilot/internal/adapter/ws"
)

// reviewActionRequest is the body of POST /claims/{id}/review.
type reviewActionRequest struct {
	Action       string `json:"action"`
	ReviewerID   string `json:"reviewer_id"`
	ReviewerName string `json:"reviewer_name"`
	Comment      string `json:"comment"`
}

type reviewActionResponse struct {
	ClaimID string `json:"claim_id"`
	Action  string `json:"action"`
	Status  string `json:"status"`
}

// ApplyReviewAction handles POST /claims/{id}/review: the REST counterpart
// of the action message on the reviewer channel.
func (h *Handlers) ApplyReviewAction(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[reviewActionRequest](w, r)
	if !ok {
		return
	}

	claimID := urlParam(r, "id")
	status, err := h.reviews.Apply(r.Context(), claimID,
		ws.Identity{ReviewerID: req.ReviewerID, ReviewerName: req.ReviewerName},
		req.Action, req.Comment)
	if err != nil {
		writeDomainError(w, err, "claim not found")
		return
	}
	writeJSON(w, http.StatusOK, reviewActionResponse{
		ClaimID: claimID,
		Action:  req.Action,
		Status:  string(status),
	})
}

// ListReviewLog handles GET /claims/{id}/review: the audit log of human
// review actions on the claim.
func (h *Handlers) ListReviewLog(w http.ResponseWriter, r *http.Request) {
	entries, err := h.reviews.Log(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "claim not found")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// askAgentRequest is the body of POST /claims/{id}/ask-agent.
type askAgentRequest struct {
	Question     string `json:"question"`
	ReviewerID   string `json:"reviewer_id"`
	ReviewerName string `json:"reviewer_name"`
}

type askAgentResponse struct {
	ClaimID  string `json:"claim_id"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// AskAgent handles POST /claims/{id}/ask-agent: a reviewer question about a
// claim under review, answered by the model in a single turn.
func (h *Handlers) AskAgent(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[askAgentRequest](w, r)
	if !ok {
		return
	}

	claimID := urlParam(r, "id")
	answer, err := h.reviews.AskAgent(r.Context(), claimID,
		ws.Identity{ReviewerID: req.ReviewerID, ReviewerName: req.ReviewerName},
		req.Question)
	if err != nil {
		writeDomainError(w, err, "claim not found")
		return
	}
	writeJSON(w, http.StatusOK, askAgentResponse{
		ClaimID:  claimID,
		Question: req.Question,
		Answer:   answer,
	})
}

// ListActiveReviews handles GET /reviews/active: claims waiting on a human.
func (h *Handlers) ListActiveReviews(w http.ResponseWriter, r *http.Request) {
	claims, err := h.reviews.ActiveReviews(r.Context())
	if err != nil {
		writeDomainError(w, err, "claims not found")
		return
	}
	writeJSON(w, http.StatusOK, claims)
}
