package messagequeue

// ProcessRequestedPayload is the schema for claims.process.requested messages.
type ProcessRequestedPayload struct {
	ClaimID      string   `json:"claim_id"`
	DocumentPath string   `json:"document_path,omitempty"`
	Tools        []string `json:"tools,omitempty"` // optional tool whitelist for the run
}

// RunCompletedPayload is the schema for claims.run.completed messages.
type RunCompletedPayload struct {
	ClaimID        string  `json:"claim_id"`
	Status         string  `json:"status"`
	Recommendation string  `json:"recommendation"`
	Confidence     float64 `json:"confidence"`
	Iterations     int     `json:"iterations"`
	DurationMS     int64   `json:"duration_ms"`
}

// RunFailedPayload is the schema for claims.run.failed messages.
type RunFailedPayload struct {
	ClaimID    string `json:"claim_id"`
	Error      string `json:"error"`
	Iterations int    `json:"iterations"`
	DurationMS int64  `json:"duration_ms"`
}

// ReviewActionPayload is the schema for claims.review.action messages.
type ReviewActionPayload struct {
	ClaimID      string `json:"claim_id"`
	Action       string `json:"action"`
	ReviewerID   string `json:"reviewer_id"`
	ReviewerName string `json:"reviewer_name"`
	Comment      string `json:"comment,omitempty"`
	NewStatus    string `json:"new_status,omitempty"`
}
