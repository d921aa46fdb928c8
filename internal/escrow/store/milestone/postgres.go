package milestone

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	id "paylink/pkg/domain"
	"paylink/pkg/platform/sentinel"

	"paylink/internal/escrow/models"
)

// PostgresStore persists milestones in an escrow_milestones table. Writes are
// conditioned on the current status instead of a version column.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const milestoneColumns = `
	id, escrow_id, plan_order, percentage, amount, status, notes,
	evidence_refs, created_at, updated_at`

func (s *PostgresStore) CreateBatch(ctx context.Context, milestones []*models.Milestone) error {
	query := `
		INSERT INTO escrow_milestones (` + milestoneColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`
	batch := &pgx.Batch{}
	for _, m := range milestones {
		batch.Queue(query,
			uuid.UUID(m.ID), uuid.UUID(m.EscrowID), m.Order, m.Percentage,
			m.Amount, string(m.Status), m.Notes, m.EvidenceRefs,
			m.CreatedAt, m.UpdatedAt,
		)
	}
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range milestones {
		if _, err := results.Exec(); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return sentinel.ErrAlreadyUsed
			}
			return fmt.Errorf("milestone: insert batch: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, milestoneID id.MilestoneID) (*models.Milestone, error) {
	query := `SELECT ` + milestoneColumns + ` FROM escrow_milestones WHERE id = $1`
	row := s.pool.QueryRow(ctx, query, uuid.UUID(milestoneID))
	m, err := scanMilestone(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("milestone: find: %w", err)
	}
	return m, nil
}

// UpdateIf writes the milestone conditionally on the status the caller read.
func (s *PostgresStore) UpdateIf(ctx context.Context, m *models.Milestone, expectedStatus models.MilestoneStatus) error {
	query := `
		UPDATE escrow_milestones SET
			status = $2, notes = $3, evidence_refs = $4, updated_at = $5
		WHERE id = $1 AND status = $6
	`
	tag, err := s.pool.Exec(ctx, query,
		uuid.UUID(m.ID), string(m.Status), m.Notes, m.EvidenceRefs,
		m.UpdatedAt, string(expectedStatus),
	)
	if err != nil {
		return fmt.Errorf("milestone: conditional update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, findErr := s.FindByID(ctx, m.ID); findErr != nil {
			return findErr
		}
		return sentinel.ErrConflict
	}
	return nil
}

func (s *PostgresStore) ListByEscrow(ctx context.Context, escrowID id.EscrowID) ([]*models.Milestone, error) {
	query := `SELECT ` + milestoneColumns + `
		FROM escrow_milestones
		WHERE escrow_id = $1
		ORDER BY plan_order ASC`
	rows, err := s.pool.Query(ctx, query, uuid.UUID(escrowID))
	if err != nil {
		return nil, fmt.Errorf("milestone: list by escrow: %w", err)
	}
	defer rows.Close()

	var out []*models.Milestone
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, fmt.Errorf("milestone: scan: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMilestone(row rowScanner) (*models.Milestone, error) {
	var (
		m          models.Milestone
		rawID      uuid.UUID
		rawEscrow  uuid.UUID
		status     string
		percentage decimal.Decimal
		amount     decimal.Decimal
	)
	err := row.Scan(
		&rawID, &rawEscrow, &m.Order, &percentage, &amount, &status,
		&m.Notes, &m.EvidenceRefs, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.ID = id.MilestoneID(rawID)
	m.EscrowID = id.EscrowID(rawEscrow)
	m.Status = models.MilestoneStatus(status)
	m.Percentage = percentage
	m.Amount = amount
	return &m, nil
}
