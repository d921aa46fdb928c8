package service

import (
	"context"
	"errors"

	id "paylink/pkg/domain"
	dErrors "paylink/pkg/domain-errors"
	"paylink/pkg/platform/audit"
	"paylink/pkg/platform/sentinel"

	"paylink/internal/escrow/models"
	"paylink/internal/notify"
	"paylink/internal/settlement"
)

// SubmitMilestoneWork records the seller's deliverable on a pending
// milestone.
func (s *Service) SubmitMilestoneWork(ctx context.Context, escrowID id.EscrowID, milestoneID id.MilestoneID, wallet, notes string, evidenceRefs []string) (*models.Milestone, error) {
	contract, milestone, err := s.loadMilestone(ctx, escrowID, milestoneID)
	if err != nil {
		return nil, err
	}
	role, err := contract.RoleOf(wallet)
	if err != nil {
		return nil, err
	}
	if role != models.RoleSeller {
		return nil, dErrors.New(dErrors.CodeForbidden, "only the seller submits milestone work")
	}
	if err := s.requireActive(contract); err != nil {
		return nil, err
	}
	if err := milestone.CanSubmitWork(); err != nil {
		return nil, err
	}

	milestone.SubmitWork(notes, evidenceRefs, s.nowFn())
	if err := s.milestones.UpdateIf(ctx, milestone, models.MilestonePending); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			s.incrementConflict()
			return nil, dErrors.New(dErrors.CodeConcurrentModification, "milestone was modified concurrently, retry")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist milestone submission")
	}

	s.logAudit(ctx, escrowID, wallet, audit.ActionMilestoneSubmitted, notes,
		map[string]string{"milestone_id": milestoneID.String()})
	s.notifyParty(ctx, contract.BuyerWallet, notify.EventMilestoneUpdate, map[string]string{
		"escrow_id":    escrowID.String(),
		"milestone_id": milestoneID.String(),
		"status":       string(milestone.Status),
	})
	return milestone, nil
}

// ApproveMilestone releases one installment to the seller. Each milestone
// settles under its own claim, so approving one never waits on or double
// pays a sibling. When the last milestone is approved the escrow completes.
func (s *Service) ApproveMilestone(ctx context.Context, escrowID id.EscrowID, milestoneID id.MilestoneID, wallet string) (*models.Milestone, error) {
	contract, milestone, err := s.loadMilestone(ctx, escrowID, milestoneID)
	if err != nil {
		return nil, err
	}
	role, err := contract.RoleOf(wallet)
	if err != nil {
		return nil, err
	}
	if role != models.RoleBuyer {
		return nil, dErrors.New(dErrors.CodeForbidden, "only the buyer approves milestones")
	}
	if err := s.requireActive(contract); err != nil {
		return nil, err
	}
	if err := milestone.CanApprove(); err != nil {
		return nil, err
	}

	result, err := s.settler.Settle(ctx, escrowID, "milestone:"+milestoneID.String(),
		[]settlement.Leg{{
			From: s.vaultWallet, To: contract.SellerWallet,
			Amount: milestone.Amount, Token: contract.Token,
		}})
	if err != nil {
		s.logAudit(ctx, escrowID, audit.SystemActor, audit.ActionSettlementFailed, err.Error(),
			map[string]string{"milestone_id": milestoneID.String()})
		return nil, err
	}

	milestone.Approve(s.nowFn())
	if err := s.milestones.UpdateIf(ctx, milestone, models.MilestoneWorkSubmitted); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// Funds moved under the claim; a concurrent approval of the
			// same milestone settled the same claim, so the slower writer
			// simply observes the done state.
			s.incrementConflict()
			reloaded, findErr := s.milestones.FindByID(ctx, milestoneID)
			if findErr == nil && reloaded.Status == models.MilestoneApproved {
				return reloaded, nil
			}
			return nil, dErrors.New(dErrors.CodeConcurrentModification, "milestone was modified concurrently, retry")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist milestone approval")
	}

	s.logAudit(ctx, escrowID, wallet, audit.ActionMilestoneApproved, "",
		map[string]string{
			"milestone_id":    milestoneID.String(),
			"amount":          milestone.Amount.String(),
			"settlement_refs": joinRefs(result.Refs),
		})
	s.notifyParty(ctx, contract.SellerWallet, notify.EventMilestoneUpdate, map[string]string{
		"escrow_id":    escrowID.String(),
		"milestone_id": milestoneID.String(),
		"status":       string(models.MilestoneApproved),
	})

	if err := s.completeIfAllApproved(ctx, contract); err != nil {
		return nil, err
	}
	return milestone, nil
}

func (s *Service) completeIfAllApproved(ctx context.Context, contract *models.Contract) error {
	milestones, err := s.milestones.ListByEscrow(ctx, contract.ID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load milestones")
	}
	for _, m := range milestones {
		if m.Status != models.MilestoneApproved {
			return nil
		}
	}

	if err := s.completeContract(ctx, contract); err != nil {
		return err
	}
	s.logAudit(ctx, contract.ID, audit.SystemActor, audit.ActionEscrowCompleted, "all milestones approved", nil)
	s.notifyParty(ctx, contract.BuyerWallet, notify.EventEscrowCompleted, map[string]string{"escrow_id": contract.ID.String()})
	s.notifyParty(ctx, contract.SellerWallet, notify.EventEscrowCompleted, map[string]string{"escrow_id": contract.ID.String()})
	if s.metrics != nil {
		s.metrics.IncrementCompleted(string(models.StatusCompleted))
	}
	return nil
}

func (s *Service) loadMilestone(ctx context.Context, escrowID id.EscrowID, milestoneID id.MilestoneID) (*models.Contract, *models.Milestone, error) {
	contract, err := s.findContract(ctx, escrowID)
	if err != nil {
		return nil, nil, err
	}
	if contract.Kind != models.KindMilestone {
		return nil, nil, dErrors.New(dErrors.CodeInvalidTransition, "escrow has no milestones")
	}
	milestone, err := s.milestones.FindByID(ctx, milestoneID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil, dErrors.New(dErrors.CodeNotFound, "milestone not found")
		}
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load milestone")
	}
	if milestone.EscrowID != escrowID {
		return nil, nil, dErrors.New(dErrors.CodeNotFound, "milestone not found")
	}
	return contract, milestone, nil
}

func (s *Service) requireActive(contract *models.Contract) error {
	if contract.Status == models.StatusDisputed {
		return dErrors.New(dErrors.CodeFrozenByDispute, "escrow is frozen by an open dispute")
	}
	if contract.Status != models.StatusActive {
		return dErrors.Newf(dErrors.CodeInvalidTransition, "escrow is %s, not active", contract.Status)
	}
	return nil
}
