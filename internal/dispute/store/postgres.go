package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	id "paylink/pkg/domain"
	"paylink/pkg/platform/sentinel"

	"paylink/internal/dispute/models"
)

// PostgresStore persists disputes in a disputes table plus append-only
// dispute_evidence and admin_actions tables. The one-open-dispute-per-scope
// rule is a partial unique index on (escrow_id, milestone_id) over open
// statuses, so the gate holds across instances.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const disputeColumns = `
	id, escrow_id, milestone_id, raised_by, party_role, reason, description,
	status, priority, resolution_action, resolution_notes, resolved_by,
	resolved_at, created_at, updated_at`

func (s *PostgresStore) CreateIfNoneOpen(ctx context.Context, d *models.Dispute) error {
	query := `
		INSERT INTO disputes (` + disputeColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`
	var milestoneID *uuid.UUID
	if d.MilestoneID != nil {
		raw := uuid.UUID(*d.MilestoneID)
		milestoneID = &raw
	}
	_, err := s.pool.Exec(ctx, query,
		uuid.UUID(d.ID), uuid.UUID(d.EscrowID), milestoneID, d.RaisedBy,
		d.PartyRole, d.Reason, d.Description, string(d.Status), string(d.Priority),
		d.ResolutionAction, d.ResolutionNotes, d.ResolvedBy, d.ResolvedAt,
		d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("dispute: insert: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, disputeID id.DisputeID) (*models.Dispute, error) {
	query := `SELECT ` + disputeColumns + ` FROM disputes WHERE id = $1`
	row := s.pool.QueryRow(ctx, query, uuid.UUID(disputeID))
	d, err := scanDispute(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("dispute: find: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) UpdateIf(ctx context.Context, d *models.Dispute, expectedStatus models.DisputeStatus) error {
	query := `
		UPDATE disputes SET
			status = $2, resolution_action = $3, resolution_notes = $4,
			resolved_by = $5, resolved_at = $6, updated_at = $7
		WHERE id = $1 AND status = $8
	`
	tag, err := s.pool.Exec(ctx, query,
		uuid.UUID(d.ID), string(d.Status), d.ResolutionAction, d.ResolutionNotes,
		d.ResolvedBy, d.ResolvedAt, d.UpdatedAt, string(expectedStatus),
	)
	if err != nil {
		return fmt.Errorf("dispute: conditional update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, findErr := s.FindByID(ctx, d.ID); findErr != nil {
			return findErr
		}
		return sentinel.ErrConflict
	}
	return nil
}

func (s *PostgresStore) ListOpen(ctx context.Context) ([]*models.Dispute, error) {
	query := `SELECT ` + disputeColumns + `
		FROM disputes
		WHERE status IN ('open', 'under_review')
		ORDER BY
			CASE priority WHEN 'high' THEN 2 WHEN 'normal' THEN 1 ELSE 0 END DESC,
			created_at ASC`
	return s.list(ctx, query)
}

func (s *PostgresStore) ListByEscrow(ctx context.Context, escrowID id.EscrowID) ([]*models.Dispute, error) {
	query := `SELECT ` + disputeColumns + `
		FROM disputes
		WHERE escrow_id = $1
		ORDER BY created_at ASC`
	return s.list(ctx, query, uuid.UUID(escrowID))
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*models.Dispute, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("dispute: list: %w", err)
	}
	defer rows.Close()

	var out []*models.Dispute
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, fmt.Errorf("dispute: scan: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) AppendEvidence(ctx context.Context, e *models.Evidence) error {
	query := `
		INSERT INTO dispute_evidence (
			id, dispute_id, escrow_id, submitted_by, party_role, evidence_type,
			content, file_ref, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`
	_, err := s.pool.Exec(ctx, query,
		uuid.UUID(e.ID), uuid.UUID(e.DisputeID), uuid.UUID(e.EscrowID),
		e.SubmittedBy, e.PartyRole, string(e.Type), e.Content, e.FileRef,
		e.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		// 23503: the dispute row is gone.
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return sentinel.ErrNotFound
		}
		return fmt.Errorf("evidence: insert: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListEvidence(ctx context.Context, disputeID id.DisputeID) ([]*models.Evidence, error) {
	query := `
		SELECT id, dispute_id, escrow_id, submitted_by, party_role,
		       evidence_type, content, file_ref, created_at
		FROM dispute_evidence
		WHERE dispute_id = $1
		ORDER BY created_at ASC`
	rows, err := s.pool.Query(ctx, query, uuid.UUID(disputeID))
	if err != nil {
		return nil, fmt.Errorf("evidence: list: %w", err)
	}
	defer rows.Close()

	var out []*models.Evidence
	for rows.Next() {
		var (
			e          models.Evidence
			rawID      uuid.UUID
			rawDispute uuid.UUID
			rawEscrow  uuid.UUID
			kind       string
		)
		if err := rows.Scan(&rawID, &rawDispute, &rawEscrow, &e.SubmittedBy,
			&e.PartyRole, &kind, &e.Content, &e.FileRef, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("evidence: scan: %w", err)
		}
		e.ID = id.EvidenceID(rawID)
		e.DisputeID = id.DisputeID(rawDispute)
		e.EscrowID = id.EscrowID(rawEscrow)
		e.Type = models.EvidenceType(kind)
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) AppendAdminAction(ctx context.Context, a *models.AdminAction) error {
	query := `
		INSERT INTO admin_actions (
			id, escrow_id, dispute_id, admin_wallet, decision,
			amount_to_buyer, amount_to_seller, settlement_refs, notes, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`
	_, err := s.pool.Exec(ctx, query,
		uuid.UUID(a.ID), uuid.UUID(a.EscrowID), uuid.UUID(a.DisputeID),
		a.AdminWallet, string(a.Decision), a.AmountToBuyer, a.AmountToSeller,
		a.SettlementRefs, a.Notes, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("admin action: insert: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAdminActions(ctx context.Context, escrowID id.EscrowID) ([]*models.AdminAction, error) {
	query := `
		SELECT id, escrow_id, dispute_id, admin_wallet, decision,
		       amount_to_buyer, amount_to_seller, settlement_refs, notes, created_at
		FROM admin_actions
		WHERE escrow_id = $1
		ORDER BY created_at ASC`
	rows, err := s.pool.Query(ctx, query, uuid.UUID(escrowID))
	if err != nil {
		return nil, fmt.Errorf("admin action: list: %w", err)
	}
	defer rows.Close()

	var out []*models.AdminAction
	for rows.Next() {
		var (
			a          models.AdminAction
			rawID      uuid.UUID
			rawEscrow  uuid.UUID
			rawDispute uuid.UUID
			decision   string
		)
		if err := rows.Scan(&rawID, &rawEscrow, &rawDispute, &a.AdminWallet,
			&decision, &a.AmountToBuyer, &a.AmountToSeller, &a.SettlementRefs,
			&a.Notes, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("admin action: scan: %w", err)
		}
		a.ID = id.AdminActionID(rawID)
		a.EscrowID = id.EscrowID(rawEscrow)
		a.DisputeID = id.DisputeID(rawDispute)
		a.Decision = models.ResolutionAction(decision)
		out = append(out, &a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDispute(row rowScanner) (*models.Dispute, error) {
	var (
		d            models.Dispute
		rawID        uuid.UUID
		rawEscrow    uuid.UUID
		rawMilestone *uuid.UUID
		status       string
		priority     string
	)
	err := row.Scan(
		&rawID, &rawEscrow, &rawMilestone, &d.RaisedBy, &d.PartyRole,
		&d.Reason, &d.Description, &status, &priority, &d.ResolutionAction,
		&d.ResolutionNotes, &d.ResolvedBy, &d.ResolvedAt, &d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.ID = id.DisputeID(rawID)
	d.EscrowID = id.EscrowID(rawEscrow)
	if rawMilestone != nil {
		milestoneID := id.MilestoneID(*rawMilestone)
		d.MilestoneID = &milestoneID
	}
	d.Status = models.DisputeStatus(status)
	d.Priority = models.Priority(priority)
	return &d, nil
}
