package ws

import (
	"encoding/json"
	"time"
)

// Outbound event types on the reviewer channel.
const (
	EventReviewerJoined       = "reviewer_joined"
	EventReviewerLeft         = "reviewer_left"
	EventChatMessage          = "chat_message"
	EventActionTaken          = "action_taken"
	EventActionAcknowledged   = "action_acknowledged"
	EventClaimUpdated         = "claim_updated"
	EventManualReviewRequired = "manual_review_required"
	EventPong                 = "pong"
	EventError                = "error"
)

// Inbound message types from reviewers.
const (
	InboundChat   = "chat"
	InboundAction = "action"
	InboundPing   = "ping"
)

// Message is the envelope for all reviewer channel messages.
type Message struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewMessage builds an envelope with the payload marshaled and the
// timestamp stamped.
func NewMessage(eventType string, payload any) (Message, error) {
	msg := Message{Type: eventType, Timestamp: time.Now().UTC()}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Message{}, err
		}
		msg.Payload = data
	}
	return msg, nil
}

// Identity names one connected reviewer.
type Identity struct {
	ReviewerID   string `json:"reviewer_id"`
	ReviewerName string `json:"reviewer_name"`
}

// ReviewerEvent announces a reviewer joining or leaving a claim room.
type ReviewerEvent struct {
	ClaimID  string   `json:"claim_id"`
	Reviewer Identity `json:"reviewer"`
	Count    int      `json:"reviewer_count"`
}

// ChatEvent carries one chat message between reviewers of a claim.
type ChatEvent struct {
	ClaimID  string   `json:"claim_id"`
	Reviewer Identity `json:"reviewer"`
	Message  string   `json:"message"`
}

// ActionEvent announces a review action applied to a claim.
type ActionEvent struct {
	ClaimID   string   `json:"claim_id"`
	Reviewer  Identity `json:"reviewer"`
	Action    string   `json:"action"`
	Comment   string   `json:"comment,omitempty"`
	NewStatus string   `json:"new_status,omitempty"`
}

// ClaimUpdatedEvent announces a claim state change to watching reviewers.
type ClaimUpdatedEvent struct {
	ClaimID string `json:"claim_id"`
	Status  string `json:"status"`
	Detail  string `json:"detail,omitempty"`
}

// ManualReviewEvent asks reviewers to pick up a claim the automated run
// could not decide.
type ManualReviewEvent struct {
	ClaimID string `json:"claim_id"`
	Reason  string `json:"reason"`
}

// ErrorEvent reports a per-connection protocol problem.
type ErrorEvent struct {
	Detail string `json:"detail"`
}
