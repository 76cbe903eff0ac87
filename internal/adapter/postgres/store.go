package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/claimpilot/claimpilot/internal/domain"
	"github.com/claimpilot/claimpilot/internal/domain/claim"
	"github.com/claimpilot/claimpilot/internal/domain/orchestration"
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// --- Claims ---

func (s *Store) ListClaims(ctx context.Context) ([]claim.Claim, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, claim_number, user_id, claim_type, document_path, status, processing_time_ms, processed_at, created_at, updated_at
		 FROM claims ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	defer rows.Close()

	var claims []claim.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

func (s *Store) GetClaim(ctx context.Context, id string) (*claim.Claim, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, claim_number, user_id, claim_type, document_path, status, processing_time_ms, processed_at, created_at, updated_at
		 FROM claims WHERE id = $1`, id)

	c, err := scanClaim(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get claim %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get claim %s: %w", id, err)
	}
	return &c, nil
}

func (s *Store) CreateClaim(ctx context.Context, c *claim.Claim) error {
	if err := c.Validate(); err != nil {
		return err
	}
	status := c.Status
	if status == "" {
		status = claim.StatusSubmitted
	}

	// A caller-assigned ID (the service generates one so the claim number
	// can be derived from it before the insert) is kept; otherwise the
	// database generates the key.
	row := s.pool.QueryRow(ctx,
		`INSERT INTO claims (id, claim_number, user_id, claim_type, document_path, status)
		 VALUES (coalesce(nullif($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6)
		 RETURNING id, status, created_at, updated_at`,
		c.ID, c.ClaimNumber, c.UserID, c.ClaimType, c.DocumentPath, status)

	if err := row.Scan(&c.ID, &c.Status, &c.CreatedAt, &c.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("claim number %s: %w", c.ClaimNumber, domain.ErrConflict)
		}
		return fmt.Errorf("create claim: %w", err)
	}
	return nil
}

func (s *Store) UpdateClaimStatus(ctx context.Context, id string, status claim.Status, processingTimeMS int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE claims
		 SET status = $2,
		     processing_time_ms = CASE WHEN $3 > 0 THEN $3 ELSE processing_time_ms END,
		     processed_at = CASE WHEN $2 IN ('completed', 'failed', 'manual_review') THEN now() ELSE processed_at END,
		     updated_at = now()
		 WHERE id = $1`, id, status, processingTimeMS)
	if err != nil {
		return fmt.Errorf("update claim status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update claim %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// LoadClaimContext returns the minimal slice of claim state a processing
// run needs.
func (s *Store) LoadClaimContext(ctx context.Context, id string) (*claim.Context, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, claim_number, user_id, claim_type, document_path FROM claims WHERE id = $1`, id)

	var c claim.Context
	if err := row.Scan(&c.ClaimID, &c.ClaimNumber, &c.UserID, &c.ClaimType, &c.DocumentPath); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("load claim context %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("load claim context %s: %w", id, err)
	}
	return &c, nil
}

// --- Processing steps ---

func (s *Store) AppendStep(ctx context.Context, claimID string, step orchestration.Step) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO processing_steps (claim_id, step_name, agent_name, status, duration_ms, output, error, started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		claimID, step.Name, step.Agent, step.Status, step.Duration.Milliseconds(),
		step.Output, step.Error, step.StartedAt, step.CompletedAt)
	if err != nil {
		return fmt.Errorf("append step: %w", err)
	}
	return nil
}

func (s *Store) ListSteps(ctx context.Context, claimID string) ([]orchestration.Step, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT step_name, agent_name, status, duration_ms, output, error, started_at, completed_at
		 FROM processing_steps WHERE claim_id = $1 ORDER BY id`, claimID)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	var steps []orchestration.Step
	for rows.Next() {
		var step orchestration.Step
		var durationMS int64
		if err := rows.Scan(&step.Name, &step.Agent, &step.Status, &durationMS,
			&step.Output, &step.Error, &step.StartedAt, &step.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		step.Duration = msToDuration(durationMS)
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

// --- Decisions ---

func (s *Store) SaveDecision(ctx context.Context, claimID string, d *claim.Decision) error {
	policies, err := json.Marshal(d.RelevantPolicies)
	if err != nil {
		return fmt.Errorf("marshal policies: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO decisions (claim_id, recommendation, confidence, reasoning, relevant_policies, estimated_amount, decided_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (claim_id) DO UPDATE SET
		   recommendation = EXCLUDED.recommendation,
		   confidence = EXCLUDED.confidence,
		   reasoning = EXCLUDED.reasoning,
		   relevant_policies = EXCLUDED.relevant_policies,
		   estimated_amount = EXCLUDED.estimated_amount,
		   decided_at = EXCLUDED.decided_at`,
		claimID, d.Recommendation, d.Confidence, d.Reasoning, policies, d.EstimatedAmount, d.DecidedAt)
	if err != nil {
		return fmt.Errorf("save decision: %w", err)
	}
	return nil
}

func (s *Store) GetDecision(ctx context.Context, claimID string) (*claim.Decision, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT recommendation, confidence, reasoning, relevant_policies, estimated_amount, decided_at
		 FROM decisions WHERE claim_id = $1`, claimID)

	var d claim.Decision
	var policies []byte
	if err := row.Scan(&d.Recommendation, &d.Confidence, &d.Reasoning, &policies, &d.EstimatedAmount, &d.DecidedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get decision %s: %w", claimID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get decision %s: %w", claimID, err)
	}
	if err := json.Unmarshal(policies, &d.RelevantPolicies); err != nil {
		return nil, fmt.Errorf("unmarshal policies: %w", err)
	}
	return &d, nil
}

func msToDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// scanClaim works for both pgx.Row and pgx.Rows.
func scanClaim(row pgx.Row) (claim.Claim, error) {
	var c claim.Claim
	err := row.Scan(&c.ID, &c.ClaimNumber, &c.UserID, &c.ClaimType, &c.DocumentPath,
		&c.Status, &c.ProcessingTimeMS, &c.ProcessedAt, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}
