package contract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	id "paylink/pkg/domain"
	"paylink/pkg/platform/sentinel"

	"paylink/internal/escrow/models"
)

// PostgresStore persists contracts in an escrow_contracts table. Conditional
// writes use `WHERE version = $n`; zero rows affected means the writer lost
// the race (or the row vanished, distinguished by a reload).
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const contractColumns = `
	id, kind, buyer_wallet, seller_wallet, token, seller_token,
	buyer_amount, seller_amount, status, buyer_deposited, seller_deposited,
	buyer_confirmed, seller_confirmed, swap_executed, swap_buyer_leg_ref,
	swap_seller_leg_ref, expires_at, version, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, c *models.Contract) error {
	query := `
		INSERT INTO escrow_contracts (` + contractColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
	`
	_, err := s.pool.Exec(ctx, query, contractArgs(c)...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("contract: insert: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, escrowID id.EscrowID) (*models.Contract, error) {
	query := `SELECT ` + contractColumns + ` FROM escrow_contracts WHERE id = $1`
	row := s.pool.QueryRow(ctx, query, uuid.UUID(escrowID))
	c, err := scanContract(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("contract: find: %w", err)
	}
	return c, nil
}

// UpdateIf writes the full aggregate conditionally on the version read.
func (s *PostgresStore) UpdateIf(ctx context.Context, c *models.Contract, expectedVersion int64) error {
	query := `
		UPDATE escrow_contracts SET
			status = $2, buyer_deposited = $3, seller_deposited = $4,
			buyer_confirmed = $5, seller_confirmed = $6, swap_executed = $7,
			swap_buyer_leg_ref = $8, swap_seller_leg_ref = $9,
			version = version + 1, updated_at = $10
		WHERE id = $1 AND version = $11
	`
	var buyerConfirmed, sellerConfirmed, swapExecuted bool
	var buyerLegRef, sellerLegRef string
	if c.Confirmations != nil {
		buyerConfirmed = c.Confirmations.Buyer
		sellerConfirmed = c.Confirmations.Seller
	}
	if c.Swap != nil {
		swapExecuted = c.Swap.Executed
		buyerLegRef = c.Swap.BuyerLegRef
		sellerLegRef = c.Swap.SellerLegRef
	}

	tag, err := s.pool.Exec(ctx, query,
		uuid.UUID(c.ID), string(c.Status), c.BuyerDeposited, c.SellerDeposited,
		buyerConfirmed, sellerConfirmed, swapExecuted, buyerLegRef, sellerLegRef,
		c.UpdatedAt, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("contract: conditional update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a lost race from a missing row.
		if _, findErr := s.FindByID(ctx, c.ID); findErr != nil {
			return findErr
		}
		return sentinel.ErrConflict
	}
	c.Version = expectedVersion + 1
	return nil
}

func (s *PostgresStore) ListByWallet(ctx context.Context, wallet string) ([]*models.Contract, error) {
	query := `SELECT ` + contractColumns + `
		FROM escrow_contracts
		WHERE buyer_wallet = $1 OR seller_wallet = $1
		ORDER BY created_at DESC`
	rows, err := s.pool.Query(ctx, query, wallet)
	if err != nil {
		return nil, fmt.Errorf("contract: list by wallet: %w", err)
	}
	defer rows.Close()
	return collectContracts(rows)
}

func (s *PostgresStore) ListSweepable(ctx context.Context, now time.Time, limit int) ([]*models.Contract, error) {
	query := `SELECT ` + contractColumns + `
		FROM escrow_contracts
		WHERE kind <> 'milestone'
		  AND status NOT IN ('active', 'disputed', 'completed', 'cancelled', 'refunded')
		  AND expires_at < $1
		ORDER BY expires_at ASC
		LIMIT $2`
	rows, err := s.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("contract: list sweepable: %w", err)
	}
	defer rows.Close()
	return collectContracts(rows)
}

func contractArgs(c *models.Contract) []any {
	var buyerConfirmed, sellerConfirmed, swapExecuted bool
	var buyerLegRef, sellerLegRef string
	if c.Confirmations != nil {
		buyerConfirmed = c.Confirmations.Buyer
		sellerConfirmed = c.Confirmations.Seller
	}
	if c.Swap != nil {
		swapExecuted = c.Swap.Executed
		buyerLegRef = c.Swap.BuyerLegRef
		sellerLegRef = c.Swap.SellerLegRef
	}
	return []any{
		uuid.UUID(c.ID), string(c.Kind), c.BuyerWallet, c.SellerWallet,
		c.Token, c.SellerToken, c.BuyerAmount, c.SellerAmount,
		string(c.Status), c.BuyerDeposited, c.SellerDeposited,
		buyerConfirmed, sellerConfirmed, swapExecuted, buyerLegRef, sellerLegRef,
		c.ExpiresAt, c.Version, c.CreatedAt, c.UpdatedAt,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContract(row rowScanner) (*models.Contract, error) {
	var (
		c               models.Contract
		rawID           uuid.UUID
		kind, status    string
		buyerAmount     decimal.Decimal
		sellerAmount    decimal.Decimal
		buyerConfirmed  bool
		sellerConfirmed bool
		swapExecuted    bool
		buyerLegRef     string
		sellerLegRef    string
	)
	err := row.Scan(
		&rawID, &kind, &c.BuyerWallet, &c.SellerWallet, &c.Token, &c.SellerToken,
		&buyerAmount, &sellerAmount, &status, &c.BuyerDeposited, &c.SellerDeposited,
		&buyerConfirmed, &sellerConfirmed, &swapExecuted, &buyerLegRef,
		&sellerLegRef, &c.ExpiresAt, &c.Version, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.ID = id.EscrowID(rawID)
	c.Kind = models.Kind(kind)
	c.Status = models.Status(status)
	c.BuyerAmount = buyerAmount
	c.SellerAmount = sellerAmount
	switch c.Kind {
	case models.KindMutual:
		c.Confirmations = &models.Confirmations{Buyer: buyerConfirmed, Seller: sellerConfirmed}
	case models.KindAtomicSwap:
		c.Swap = &models.SwapState{Executed: swapExecuted, BuyerLegRef: buyerLegRef, SellerLegRef: sellerLegRef}
	}
	return &c, nil
}

func collectContracts(rows pgx.Rows) ([]*models.Contract, error) {
	var out []*models.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, fmt.Errorf("contract: scan: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
