package claims

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	id "paylink/pkg/domain"
	"paylink/pkg/platform/sentinel"
)

// PostgresStore keeps claims in a settlement_claims table with a unique
// index on (escrow_id, purpose). Acquire is insert-on-conflict-do-nothing
// followed by a read, so exactly one caller ever creates the row.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const claimColumns = `id, escrow_id, purpose, state, refs, failure_reason, created_at, updated_at`

func (s *PostgresStore) Acquire(ctx context.Context, escrowID id.EscrowID, purpose string, now time.Time) (*Claim, bool, error) {
	insert := `
		INSERT INTO settlement_claims (` + claimColumns + `)
		VALUES ($1, $2, $3, 'pending', '{}', '', $4, $4)
		ON CONFLICT (escrow_id, purpose) DO NOTHING
	`
	claimID := id.NewClaimID()
	tag, err := s.pool.Exec(ctx, insert, uuid.UUID(claimID), uuid.UUID(escrowID), purpose, now)
	if err != nil {
		return nil, false, fmt.Errorf("claims: insert: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return &Claim{
			ID:        claimID,
			EscrowID:  escrowID,
			Purpose:   purpose,
			State:     StatePending,
			CreatedAt: now,
			UpdatedAt: now,
		}, true, nil
	}

	// Key exists. A failed claim may be reopened; the conditional update is
	// the race arbiter when two retriers arrive together.
	reopen := `
		UPDATE settlement_claims
		SET state = 'pending', failure_reason = '', updated_at = $3
		WHERE escrow_id = $1 AND purpose = $2 AND state = 'failed'
		RETURNING ` + claimColumns
	row := s.pool.QueryRow(ctx, reopen, uuid.UUID(escrowID), purpose, now)
	claim, err := scanClaim(row)
	if err == nil {
		return claim, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("claims: reopen: %w", err)
	}

	query := `SELECT ` + claimColumns + ` FROM settlement_claims WHERE escrow_id = $1 AND purpose = $2`
	row = s.pool.QueryRow(ctx, query, uuid.UUID(escrowID), purpose)
	claim, err = scanClaim(row)
	if err != nil {
		return nil, false, fmt.Errorf("claims: read existing: %w", err)
	}
	return claim, false, nil
}

func (s *PostgresStore) MarkCompleted(ctx context.Context, claimID id.ClaimID, refs []string, now time.Time) error {
	return s.finish(ctx, claimID, StateCompleted, refs, "", now)
}

func (s *PostgresStore) MarkFailed(ctx context.Context, claimID id.ClaimID, reason string, now time.Time) error {
	return s.finish(ctx, claimID, StateFailed, nil, reason, now)
}

func (s *PostgresStore) MarkPartial(ctx context.Context, claimID id.ClaimID, refs []string, reason string, now time.Time) error {
	return s.finish(ctx, claimID, StatePartial, refs, reason, now)
}

func (s *PostgresStore) finish(ctx context.Context, claimID id.ClaimID, state State, refs []string, reason string, now time.Time) error {
	query := `
		UPDATE settlement_claims
		SET state = $2, refs = $3, failure_reason = $4, updated_at = $5
		WHERE id = $1 AND state = 'pending'
	`
	if refs == nil {
		refs = []string{}
	}
	tag, err := s.pool.Exec(ctx, query, uuid.UUID(claimID), string(state), refs, reason, now)
	if err != nil {
		return fmt.Errorf("claims: finish: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		checkErr := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM settlement_claims WHERE id = $1)`,
			uuid.UUID(claimID)).Scan(&exists)
		if checkErr != nil {
			return fmt.Errorf("claims: finish check: %w", checkErr)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrInvalidState
	}
	return nil
}

func scanClaim(row pgx.Row) (*Claim, error) {
	var (
		c         Claim
		rawID     uuid.UUID
		rawEscrow uuid.UUID
		state     string
	)
	err := row.Scan(&rawID, &rawEscrow, &c.Purpose, &state, &c.Refs,
		&c.FailureReason, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.ID = id.ClaimID(rawID)
	c.EscrowID = id.EscrowID(rawEscrow)
	c.State = State(state)
	return &c, nil
}
