package service

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	id "paylink/pkg/domain"
	dErrors "paylink/pkg/domain-errors"
	"paylink/pkg/platform/audit"
	"paylink/pkg/platform/sentinel"

	"paylink/internal/escrow/models"
	"paylink/internal/notify"
)

// CreateInput carries everything needed to open a new escrow. Kind-specific
// fields are validated by the matching constructor.
type CreateInput struct {
	Kind         models.Kind
	BuyerWallet  string
	SellerWallet string
	Token        string
	// SellerToken is required for atomic swaps only.
	SellerToken string
	BuyerAmount decimal.Decimal
	// SellerAmount is the security deposit for mutual contracts and the
	// seller leg for swaps. Ignored for milestone escrows.
	SellerAmount decimal.Decimal
	ExpiresAt    time.Time
	// Milestones is required for milestone escrows and must be empty
	// otherwise.
	Milestones []models.MilestonePlan
}

// CreateEscrow opens a contract in created status. Milestone escrows get
// their installment rows in the same call; the split is immutable afterwards.
func (s *Service) CreateEscrow(ctx context.Context, input CreateInput) (*models.Contract, []*models.Milestone, error) {
	now := s.nowFn()
	escrowID := id.NewEscrowID()

	var (
		contract   *models.Contract
		milestones []*models.Milestone
		err        error
	)
	switch input.Kind {
	case models.KindMutual:
		if len(input.Milestones) > 0 {
			return nil, nil, dErrors.New(dErrors.CodeValidation, "mutual escrow does not take milestones")
		}
		contract, err = models.NewMutualContract(escrowID, input.BuyerWallet, input.SellerWallet,
			input.Token, input.BuyerAmount, input.SellerAmount, input.ExpiresAt, now)
	case models.KindMilestone:
		contract, err = models.NewMilestoneContract(escrowID, input.BuyerWallet, input.SellerWallet,
			input.Token, input.BuyerAmount, input.ExpiresAt, now)
		if err == nil {
			milestones, err = models.BuildMilestones(escrowID, input.BuyerAmount, input.Milestones, now)
		}
	case models.KindAtomicSwap:
		if len(input.Milestones) > 0 {
			return nil, nil, dErrors.New(dErrors.CodeValidation, "atomic swap does not take milestones")
		}
		contract, err = models.NewAtomicSwapContract(escrowID, input.BuyerWallet, input.SellerWallet,
			input.Token, input.SellerToken, input.BuyerAmount, input.SellerAmount, input.ExpiresAt, now)
	default:
		return nil, nil, dErrors.Newf(dErrors.CodeValidation, "unknown escrow kind %q", input.Kind)
	}
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, nil, err
	}

	if err := s.contracts.Create(ctx, contract); err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create escrow")
	}
	if len(milestones) > 0 {
		if err := s.milestones.CreateBatch(ctx, milestones); err != nil {
			return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create milestones")
		}
	}

	s.logAudit(ctx, escrowID, input.BuyerWallet, audit.ActionEscrowCreated, "",
		map[string]string{
			"kind":         string(input.Kind),
			"buyer_amount": input.BuyerAmount.String(),
			"token":        input.Token,
		})
	s.notifyParty(ctx, input.SellerWallet, notify.EventDepositReceived, map[string]string{
		"escrow_id": escrowID.String(),
		"status":    string(contract.Status),
	})
	if s.metrics != nil {
		s.metrics.IncrementCreated(string(input.Kind))
	}
	return contract, milestones, nil
}

// GetEscrow returns the contract and, for milestone escrows, its
// installments. Only parties may read.
func (s *Service) GetEscrow(ctx context.Context, escrowID id.EscrowID, wallet string) (*models.Contract, []*models.Milestone, error) {
	contract, err := s.findContract(ctx, escrowID)
	if err != nil {
		return nil, nil, err
	}
	if _, err := contract.RoleOf(wallet); err != nil {
		return nil, nil, err
	}
	if contract.Kind != models.KindMilestone {
		return contract, nil, nil
	}
	milestones, err := s.milestones.ListByEscrow(ctx, escrowID)
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load milestones")
	}
	return contract, milestones, nil
}

// ListEscrows returns every contract the wallet participates in.
func (s *Service) ListEscrows(ctx context.Context, wallet string) ([]*models.Contract, error) {
	contracts, err := s.contracts.ListByWallet(ctx, wallet)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list escrows")
	}
	return contracts, nil
}

func (s *Service) findContract(ctx context.Context, escrowID id.EscrowID) (*models.Contract, error) {
	contract, err := s.contracts.FindByID(ctx, escrowID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "escrow not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load escrow")
	}
	return contract, nil
}
