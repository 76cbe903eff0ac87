// Package broadcast defines the port for pushing real-time review events to
// connected reviewers.
package broadcast

import "context"

// Broadcaster sends typed events to every reviewer subscribed to a claim.
type Broadcaster interface {
	// BroadcastEvent sends a typed event to all reviewers of the claim.
	BroadcastEvent(ctx context.Context, claimID, eventType string, payload any)

	// NotifyManualReviewRequired alerts connected reviewers that a claim
	// resolved to manual review. Called by the orchestration layer when a
	// run ends with that outcome.
	NotifyManualReviewRequired(ctx context.Context, claimID, reason string)
}
