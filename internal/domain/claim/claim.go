// Package claim defines the Claim domain entity and the decision types
// produced by automated claim processing.
package claim

import (
	"fmt"
	"time"

	"github.com/claimpilot/claimpilot/internal/domain"
)

// Status represents the lifecycle state of a claim.
type Status string

const (
	StatusSubmitted    Status = "submitted"
	StatusProcessing   Status = "processing"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusManualReview Status = "manual_review"
	StatusPendingInfo  Status = "pending_info"
)

// validStatuses is the set of recognized claim statuses.
var validStatuses = map[Status]bool{
	StatusSubmitted:    true,
	StatusProcessing:   true,
	StatusCompleted:    true,
	StatusFailed:       true,
	StatusManualReview: true,
	StatusPendingInfo:  true,
}

// Claim represents a single insurance claim under processing.
type Claim struct {
	ID               string     `json:"id"`
	ClaimNumber      string     `json:"claim_number"`
	UserID           string     `json:"user_id"`
	ClaimType        string     `json:"claim_type,omitempty"`
	DocumentPath     string     `json:"document_path"`
	Status           Status     `json:"status"`
	ProcessingTimeMS int64      `json:"processing_time_ms,omitempty"`
	ProcessedAt      *time.Time `json:"processed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Validate checks that the claim has the fields required for processing.
func (c *Claim) Validate() error {
	if c.UserID == "" {
		return fmt.Errorf("%w: user_id is required", domain.ErrValidation)
	}
	if c.DocumentPath == "" {
		return fmt.Errorf("%w: document_path is required", domain.ErrValidation)
	}
	if c.Status != "" && !validStatuses[c.Status] {
		return fmt.Errorf("%w: invalid status %q", domain.ErrValidation, c.Status)
	}
	return nil
}

// Context is the minimal slice of claim state an orchestration run needs.
type Context struct {
	ClaimID      string `json:"claim_id"`
	ClaimNumber  string `json:"claim_number,omitempty"`
	UserID       string `json:"user_id"`
	ClaimType    string `json:"claim_type,omitempty"`
	DocumentPath string `json:"document_path"`
}

// Validate checks the context carries enough to form the first user message.
func (c *Context) Validate() error {
	if c.ClaimID == "" {
		return fmt.Errorf("%w: claim_id is required", domain.ErrValidation)
	}
	if c.UserID == "" {
		return fmt.Errorf("%w: user_id is required", domain.ErrValidation)
	}
	if c.DocumentPath == "" {
		return fmt.Errorf("%w: document_path is required", domain.ErrValidation)
	}
	return nil
}

// ReviewEntry is one line of the human review audit log for a claim.
type ReviewEntry struct {
	ID           string    `json:"id"`
	ClaimID      string    `json:"claim_id"`
	Type         string    `json:"type"` // "comment", "request_info", "approve", "reject"
	ReviewerID   string    `json:"reviewer_id"`
	ReviewerName string    `json:"reviewer_name"`
	Message      string    `json:"message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
