package postgres

import (
	"context"
	"fmt"

	"github.com/claimpilot/claimpilot/internal/domain/claim"
)

// --- Review audit log ---

func (s *Store) AppendReviewEntry(ctx context.Context, e *claim.ReviewEntry) error {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO review_log (claim_id, entry_type, reviewer_id, reviewer_name, message)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		e.ClaimID, e.Type, e.ReviewerID, e.ReviewerName, e.Message)

	if err := row.Scan(&e.ID, &e.CreatedAt); err != nil {
		return fmt.Errorf("append review entry: %w", err)
	}
	return nil
}

func (s *Store) ListReviewEntries(ctx context.Context, claimID string) ([]claim.ReviewEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, claim_id, entry_type, reviewer_id, reviewer_name, message, created_at
		 FROM review_log WHERE claim_id = $1 ORDER BY created_at`, claimID)
	if err != nil {
		return nil, fmt.Errorf("list review entries: %w", err)
	}
	defer rows.Close()

	var entries []claim.ReviewEntry
	for rows.Next() {
		var e claim.ReviewEntry
		if err := rows.Scan(&e.ID, &e.ClaimID, &e.Type, &e.ReviewerID, &e.ReviewerName, &e.Message, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan review entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
