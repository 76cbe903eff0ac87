// Package database defines the persistence port consumed by the orchestration
// and review layers. Storage mechanics live behind this interface.
package database

import (
	"context"

	"github.com/claimpilot/claimpilot/internal/domain/claim"
	"github.com/claimpilot/claimpilot/internal/domain/orchestration"
)

// Store is the narrow persistence surface the core requires.
type Store interface {
	// Claims
	GetClaim(ctx context.Context, id string) (*claim.Claim, error)
	ListClaims(ctx context.Context) ([]claim.Claim, error)
	CreateClaim(ctx context.Context, c *claim.Claim) error
	UpdateClaimStatus(ctx context.Context, id string, status claim.Status, processingTimeMS int64) error

	// Orchestration run state
	LoadClaimContext(ctx context.Context, id string) (*claim.Context, error)
	AppendStep(ctx context.Context, claimID string, step orchestration.Step) error
	ListSteps(ctx context.Context, claimID string) ([]orchestration.Step, error)
	SaveDecision(ctx context.Context, claimID string, d *claim.Decision) error
	GetDecision(ctx context.Context, claimID string) (*claim.Decision, error)

	// Review audit log
	AppendReviewEntry(ctx context.Context, e *claim.ReviewEntry) error
	ListReviewEntries(ctx context.Context, claimID string) ([]claim.ReviewEntry, error)
}
