package service

import (
	"context"
	"errors"
	"strings"

	id "paylink/pkg/domain"
	dErrors "paylink/pkg/domain-errors"
	"paylink/pkg/platform/audit"
	"paylink/pkg/platform/sentinel"

	"paylink/internal/escrow/models"
	"paylink/internal/notify"
	"paylink/internal/settlement"
)

// ConfirmCompletion records one party's confirmation on a mutual escrow.
// A repeat confirmation by the same party is a no-op. When the second side
// confirms, the buyer's funds release to the seller, the security deposit
// returns, and the escrow completes.
func (s *Service) ConfirmCompletion(ctx context.Context, escrowID id.EscrowID, wallet string) (*models.Contract, error) {
	contract, err := s.findContract(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	role, err := contract.RoleOf(wallet)
	if err != nil {
		return nil, err
	}

	var both bool
	for attempt := 0; ; attempt++ {
		if err := contract.CanConfirm(); err != nil {
			return nil, err
		}
		expectedVersion := contract.Version
		var already bool
		both, already = contract.ApplyConfirmation(role, s.nowFn())
		if already {
			return contract, nil
		}

		err := s.contracts.UpdateIf(ctx, contract, expectedVersion)
		if err == nil {
			break
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist confirmation")
		}
		s.incrementConflict()
		if attempt >= conflictRetries {
			return nil, dErrors.New(dErrors.CodeConcurrentModification, "escrow was modified concurrently, retry")
		}
		if contract, err = s.findContract(ctx, escrowID); err != nil {
			return nil, err
		}
	}

	s.logAudit(ctx, escrowID, wallet, audit.ActionConfirmationRecorded, "",
		map[string]string{"role": string(role)})

	other := contract.SellerWallet
	if role == models.RoleSeller {
		other = contract.BuyerWallet
	}
	s.notifyParty(ctx, other, notify.EventConfirmationMade, map[string]string{
		"escrow_id": escrowID.String(),
		"role":      string(role),
	})

	if !both {
		return contract, nil
	}
	return s.releaseMutual(ctx, contract)
}

// releaseMutual settles a mutually confirmed escrow: the principal goes to
// the seller, the seller's own security deposit comes back to them.
func (s *Service) releaseMutual(ctx context.Context, contract *models.Contract) (*models.Contract, error) {
	legs := []settlement.Leg{
		{From: s.vaultWallet, To: contract.SellerWallet, Amount: contract.BuyerAmount, Token: contract.Token},
	}
	if contract.SellerAmount.IsPositive() {
		legs = append(legs, settlement.Leg{
			From: s.vaultWallet, To: contract.SellerWallet,
			Amount: contract.SellerAmount, Token: contract.Token,
		})
	}

	result, err := s.settler.Settle(ctx, contract.ID, "release", legs)
	if err != nil {
		s.logAudit(ctx, contract.ID, audit.SystemActor, audit.ActionSettlementFailed, err.Error(), nil)
		return nil, err
	}

	if err := s.completeContract(ctx, contract); err != nil {
		return nil, err
	}

	s.logAudit(ctx, contract.ID, audit.SystemActor, audit.ActionEscrowCompleted, "",
		map[string]string{"settlement_refs": joinRefs(result.Refs)})
	s.notifyParty(ctx, contract.BuyerWallet, notify.EventEscrowCompleted, map[string]string{"escrow_id": contract.ID.String()})
	s.notifyParty(ctx, contract.SellerWallet, notify.EventEscrowCompleted, map[string]string{"escrow_id": contract.ID.String()})
	if s.metrics != nil {
		s.metrics.IncrementCompleted(string(models.StatusCompleted))
	}
	return contract, nil
}

// completeContract marks the aggregate completed with the usual conflict
// retry. Settlement has already happened under its claim, so a lost race
// here just means rereading and reapplying the terminal state.
func (s *Service) completeContract(ctx context.Context, contract *models.Contract) error {
	// Swap leg refs set by the caller must survive a reload.
	var swap *models.SwapState
	if contract.Swap != nil {
		copied := *contract.Swap
		swap = &copied
	}
	for attempt := 0; ; attempt++ {
		if contract.Status.IsTerminal() {
			return nil
		}
		if swap != nil {
			contract.Swap = swap
		}
		expectedVersion := contract.Version
		contract.Complete(s.nowFn())

		err := s.contracts.UpdateIf(ctx, contract, expectedVersion)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to complete escrow")
		}
		s.incrementConflict()
		if attempt >= conflictRetries {
			return dErrors.New(dErrors.CodeConcurrentModification, "escrow was modified concurrently, retry")
		}
		reloaded, err := s.findContract(ctx, contract.ID)
		if err != nil {
			return err
		}
		*contract = *reloaded
	}
}

func joinRefs(refs []string) string {
	return strings.Join(refs, ",")
}
