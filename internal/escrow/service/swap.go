package service

import (
	"context"

	id "paylink/pkg/domain"
	dErrors "paylink/pkg/domain-errors"
	"paylink/pkg/platform/audit"

	"paylink/internal/escrow/models"
	"paylink/internal/notify"
	"paylink/internal/settlement"
)

// RetrySwap re-attempts the settlement of a fully funded swap whose earlier
// execution failed before any leg moved. Partially executed swaps stay
// locked for an operator.
func (s *Service) RetrySwap(ctx context.Context, escrowID id.EscrowID) (*models.Contract, error) {
	contract, err := s.findContract(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	if contract.Kind != models.KindAtomicSwap {
		return nil, dErrors.New(dErrors.CodeInvalidTransition, "escrow is not an atomic swap")
	}
	if contract.Status == models.StatusCompleted {
		return contract, nil
	}
	if contract.Status != models.StatusFullyFunded {
		return nil, dErrors.Newf(dErrors.CodeInvalidTransition, "cannot execute swap while escrow is %s", contract.Status)
	}
	return s.executeSwap(ctx, contract)
}

// executeSwap settles both legs of a funded swap and completes the escrow.
// Both legs run under one "swap" claim: either both execute, or nothing
// moved and the claim reopens, or the claim locks partial for an operator.
func (s *Service) executeSwap(ctx context.Context, contract *models.Contract) (*models.Contract, error) {
	legs := []settlement.Leg{
		{From: s.vaultWallet, To: contract.SellerWallet, Amount: contract.BuyerAmount, Token: contract.Token},
		{From: s.vaultWallet, To: contract.BuyerWallet, Amount: contract.SellerAmount, Token: contract.SellerToken},
	}

	result, err := s.settler.Settle(ctx, contract.ID, "swap", legs)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodePartialSwapFailure) {
			s.logAudit(ctx, contract.ID, audit.SystemActor, audit.ActionSwapPartialFailure, err.Error(),
				map[string]string{"settlement_refs": joinRefs(result.Refs)})
			s.notifyParty(ctx, contract.BuyerWallet, notify.EventSettlementProblem, map[string]string{"escrow_id": contract.ID.String()})
			s.notifyParty(ctx, contract.SellerWallet, notify.EventSettlementProblem, map[string]string{"escrow_id": contract.ID.String()})
		} else {
			s.logAudit(ctx, contract.ID, audit.SystemActor, audit.ActionSettlementFailed, err.Error(), nil)
		}
		return nil, err
	}

	contract.Swap.Executed = true
	if len(result.Refs) >= 2 {
		contract.Swap.BuyerLegRef = result.Refs[0]
		contract.Swap.SellerLegRef = result.Refs[1]
	}
	if err := s.completeContract(ctx, contract); err != nil {
		return nil, err
	}

	s.logAudit(ctx, contract.ID, audit.SystemActor, audit.ActionSwapExecuted, "",
		map[string]string{"settlement_refs": joinRefs(result.Refs)})
	s.notifyParty(ctx, contract.BuyerWallet, notify.EventEscrowCompleted, map[string]string{"escrow_id": contract.ID.String()})
	s.notifyParty(ctx, contract.SellerWallet, notify.EventEscrowCompleted, map[string]string{"escrow_id": contract.ID.String()})
	if s.metrics != nil {
		s.metrics.IncrementCompleted(string(models.StatusCompleted))
	}
	return contract, nil
}
