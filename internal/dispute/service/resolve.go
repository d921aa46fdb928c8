package service

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	id "paylink/pkg/domain"
	dErrors "paylink/pkg/domain-errors"
	"paylink/pkg/platform/audit"
	"paylink/pkg/platform/sentinel"

	dmodels "paylink/internal/dispute/models"
	emodels "paylink/internal/escrow/models"
	"paylink/internal/notify"
	"paylink/internal/settlement"
)

// ResolveInput carries an admin decision.
type ResolveInput struct {
	Action dmodels.ResolutionAction
	// AmountToBuyer and AmountToSeller are required for partial_split and
	// ignored otherwise.
	AmountToBuyer  decimal.Decimal
	AmountToSeller decimal.Decimal
	Notes          string
}

// ResolveDispute executes an admin decision: funds move under the dispute's
// own claim, an immutable admin action records the decision, the dispute
// resolves, and the scope unfreezes. The "other" decision moves no funds and
// leaves the escrow frozen for a follow-up resolution.
func (s *Service) ResolveDispute(ctx context.Context, disputeID id.DisputeID, adminWallet string, input ResolveInput) (*dmodels.AdminAction, error) {
	if !input.Action.Valid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown resolution action %q", input.Action)
	}
	if len(strings.TrimSpace(input.Notes)) < dmodels.MinJustificationLen {
		return nil, dErrors.Newf(dErrors.CodeInsufficientJustification,
			"resolution notes must be at least %d characters", dmodels.MinJustificationLen)
	}

	dispute, err := s.findDispute(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if !dispute.Open() {
		return nil, dErrors.Newf(dErrors.CodeInvalidTransition, "dispute is already %s", dispute.Status)
	}
	contract, err := s.findContract(ctx, dispute.EscrowID)
	if err != nil {
		return nil, err
	}

	// The pot is what the dispute scope holds: the escrow principal, or a
	// single milestone's installment.
	pot := contract.BuyerAmount
	var milestone *emodels.Milestone
	if dispute.MilestoneID != nil {
		if milestone, err = s.findMilestone(ctx, dispute.EscrowID, *dispute.MilestoneID); err != nil {
			return nil, err
		}
		pot = milestone.Amount
	}

	legs, toBuyer, toSeller, err := s.resolutionLegs(contract, input, pot)
	if err != nil {
		return nil, err
	}

	var refs []string
	if len(legs) > 0 {
		result, err := s.settler.Settle(ctx, dispute.EscrowID, "admin:"+disputeID.String(), legs)
		if err != nil {
			s.logAudit(ctx, dispute.EscrowID, adminWallet, audit.ActionSettlementFailed, err.Error(),
				map[string]string{"dispute_id": disputeID.String()})
			return nil, err
		}
		refs = result.Refs
	}

	action := &dmodels.AdminAction{
		ID:             id.NewAdminActionID(),
		EscrowID:       dispute.EscrowID,
		DisputeID:      disputeID,
		AdminWallet:    adminWallet,
		Decision:       input.Action,
		AmountToBuyer:  toBuyer,
		AmountToSeller: toSeller,
		SettlementRefs: refs,
		Notes:          input.Notes,
		CreatedAt:      s.nowFn(),
	}
	if err := s.disputes.AppendAdminAction(ctx, action); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record admin action")
	}

	expectedStatus := dispute.Status
	if err := dispute.Resolve(input.Action, input.Notes, adminWallet, s.nowFn()); err != nil {
		return nil, err
	}
	if err := s.disputes.UpdateIf(ctx, dispute, expectedStatus); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConcurrentModification, "dispute was resolved concurrently")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve dispute")
	}

	// "other" leaves the scope frozen: the decision is recorded but the
	// escrow waits for a follow-up dispute round.
	if input.Action != dmodels.ResolutionOther {
		if milestone != nil {
			err = s.unfreezeMilestone(ctx, contract, milestone)
		} else {
			err = s.closeEscrow(ctx, contract, input.Action)
		}
		if err != nil {
			return nil, err
		}
	}

	s.logAudit(ctx, dispute.EscrowID, adminWallet, audit.ActionAdminDecision, input.Notes,
		map[string]string{
			"dispute_id":      disputeID.String(),
			"decision":        string(input.Action),
			"settlement_refs": strings.Join(refs, ","),
		})
	s.logAudit(ctx, dispute.EscrowID, adminWallet, audit.ActionDisputeResolved, "",
		map[string]string{"dispute_id": disputeID.String()})

	payload := map[string]string{
		"escrow_id":  dispute.EscrowID.String(),
		"dispute_id": disputeID.String(),
		"decision":   string(input.Action),
	}
	s.notifyParty(ctx, contract.BuyerWallet, notify.EventDisputeResolved, payload)
	s.notifyParty(ctx, contract.SellerWallet, notify.EventDisputeResolved, payload)
	return action, nil
}

// resolutionLegs maps a decision to fund movements. The escrow-scoped seller
// security deposit always returns to the seller; the decision splits only the
// pot in dispute.
func (s *Service) resolutionLegs(contract *emodels.Contract, input ResolveInput, pot decimal.Decimal) ([]settlement.Leg, decimal.Decimal, decimal.Decimal, error) {
	zero := decimal.Zero
	var toBuyer, toSeller decimal.Decimal

	switch input.Action {
	case dmodels.ResolutionReleaseToSeller:
		toBuyer, toSeller = zero, pot
	case dmodels.ResolutionRefundToBuyer:
		toBuyer, toSeller = pot, zero
	case dmodels.ResolutionPartialSplit:
		if input.AmountToBuyer.IsNegative() || input.AmountToSeller.IsNegative() {
			return nil, zero, zero, dErrors.New(dErrors.CodeValidation, "split amounts must not be negative")
		}
		if input.AmountToBuyer.Add(input.AmountToSeller).GreaterThan(pot) {
			return nil, zero, zero, dErrors.Newf(dErrors.CodeSplitExceedsEscrow,
				"split total %s exceeds disputed amount %s",
				input.AmountToBuyer.Add(input.AmountToSeller), pot)
		}
		toBuyer, toSeller = input.AmountToBuyer, input.AmountToSeller
	case dmodels.ResolutionOther:
		return nil, zero, zero, nil
	}

	var legs []settlement.Leg
	if toBuyer.IsPositive() {
		legs = append(legs, settlement.Leg{
			From: s.vaultWallet, To: contract.BuyerWallet, Amount: toBuyer, Token: contract.Token,
		})
	}
	if toSeller.IsPositive() {
		legs = append(legs, settlement.Leg{
			From: s.vaultWallet, To: contract.SellerWallet, Amount: toSeller, Token: contract.Token,
		})
	}
	// An escrow-scoped decision also unwinds the seller's security deposit.
	if contract.Kind == emodels.KindMutual && contract.SellerDeposited && contract.SellerAmount.IsPositive() {
		legs = append(legs, settlement.Leg{
			From: s.vaultWallet, To: contract.SellerWallet, Amount: contract.SellerAmount, Token: contract.Token,
		})
	}
	return legs, toBuyer, toSeller, nil
}

// unfreezeMilestone terminates the disputed installment and returns the
// escrow to active service, unless every installment is now settled.
func (s *Service) unfreezeMilestone(ctx context.Context, contract *emodels.Contract, milestone *emodels.Milestone) error {
	milestone.Status = emodels.MilestoneApproved
	milestone.UpdatedAt = s.nowFn()
	if err := s.milestones.UpdateIf(ctx, milestone, emodels.MilestoneDisputed); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to settle disputed milestone")
	}

	milestones, err := s.milestones.ListByEscrow(ctx, contract.ID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load milestones")
	}
	allDone := true
	for _, m := range milestones {
		if m.Status != emodels.MilestoneApproved {
			allDone = false
			break
		}
	}

	for attempt := 0; ; attempt++ {
		expectedVersion := contract.Version
		if allDone {
			contract.Complete(s.nowFn())
		} else {
			contract.Activate(s.nowFn())
		}
		err := s.contracts.UpdateIf(ctx, contract, expectedVersion)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to unfreeze escrow")
		}
		if attempt >= conflictRetries {
			return dErrors.New(dErrors.CodeConcurrentModification, "escrow was modified concurrently")
		}
		reloaded, err := s.findContract(ctx, contract.ID)
		if err != nil {
			return err
		}
		*contract = *reloaded
	}
}

// closeEscrow terminates an escrow-scoped dispute's contract: refunds end in
// refunded, everything else in completed.
func (s *Service) closeEscrow(ctx context.Context, contract *emodels.Contract, action dmodels.ResolutionAction) error {
	for attempt := 0; ; attempt++ {
		if contract.Status.IsTerminal() {
			return nil
		}
		expectedVersion := contract.Version
		if action == dmodels.ResolutionRefundToBuyer {
			contract.Refund(s.nowFn())
		} else {
			contract.Complete(s.nowFn())
		}
		err := s.contracts.UpdateIf(ctx, contract, expectedVersion)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to close escrow")
		}
		if attempt >= conflictRetries {
			return dErrors.New(dErrors.CodeConcurrentModification, "escrow was modified concurrently")
		}
		reloaded, err := s.findContract(ctx, contract.ID)
		if err != nil {
			return err
		}
		*contract = *reloaded
	}
}
