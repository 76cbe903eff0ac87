package claim

import (
	"strings"
	"time"
)

// Recommendation is the automated outcome for a claim.
type Recommendation string

const (
	RecommendApprove      Recommendation = "approve"
	RecommendDeny         Recommendation = "deny"
	RecommendManualReview Recommendation = "manual_review"
)

// ParseRecommendation maps free-form recommendation strings (including the
// synonyms seen in model output) onto a known Recommendation. Anything
// unrecognized resolves to manual_review; the system never defaults a claim
// to approve.
func ParseRecommendation(s string) Recommendation {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "approve", "approved", "accept", "accepted":
		return RecommendApprove
	case "deny", "denied", "reject", "rejected":
		return RecommendDeny
	default:
		return RecommendManualReview
	}
}

// Decision is the normalized final decision record for one claim run.
type Decision struct {
	Recommendation   Recommendation `json:"recommendation"`
	Confidence       float64        `json:"confidence"`
	Reasoning        string         `json:"reasoning"`
	RelevantPolicies []string       `json:"relevant_policies,omitempty"`
	EstimatedAmount  *float64       `json:"estimated_amount,omitempty"`
	DecidedAt        time.Time      `json:"decided_at,omitzero"`
}

// Normalize clamps confidence into [0,1] and resolves an empty or unknown
// recommendation to manual_review.
func (d *Decision) Normalize() {
	if d.Confidence < 0 {
		d.Confidence = 0
	}
	if d.Confidence > 1 {
		d.Confidence = 1
	}
	d.Recommendation = ParseRecommendation(string(d.Recommendation))
}

// ClaimStatus maps the recommendation onto the claim status it implies.
func (d *Decision) ClaimStatus() Status {
	switch d.Recommendation {
	case RecommendApprove, RecommendDeny:
		return StatusCompleted
	default:
		return StatusManualReview
	}
}
