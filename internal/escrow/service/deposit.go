package service

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	id "paylink/pkg/domain"
	dErrors "paylink/pkg/domain-errors"
	"paylink/pkg/platform/audit"
	"paylink/pkg/platform/sentinel"

	"paylink/internal/escrow/models"
	"paylink/internal/notify"
)

// RecordDeposit applies a confirmed deposit observation. Observations are
// deduplicated by (escrow, role, tx ref), a set deposit flag makes replays a
// no-op, and the final write is conditional on the version read, so any
// interleaving of duplicate observers leaves each flag set exactly once.
func (s *Service) RecordDeposit(ctx context.Context, escrowID id.EscrowID, wallet string, amount decimal.Decimal, token, txRef string) (*models.Contract, error) {
	if txRef == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "transaction reference is required")
	}

	contract, err := s.findContract(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	role, err := contract.RoleOf(wallet)
	if err != nil {
		return nil, err
	}

	first, err := s.observations.MarkObserved(ctx, escrowID, string(role), txRef, observationTTL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record deposit observation")
	}
	if !first {
		if s.metrics != nil {
			s.metrics.DepositsDuplicate.Inc()
		}
		s.logger.InfoContext(ctx, "duplicate deposit observation dropped",
			"escrow_id", escrowID, "role", role, "tx_ref", txRef)
		return contract, nil
	}

	for attempt := 0; ; attempt++ {
		if contract.Deposited(role) {
			// Another observation landed the flag first.
			return contract, nil
		}
		if err := contract.CanDeposit(role); err != nil {
			return nil, err
		}
		expectedAmount, expectedToken := contract.ExpectedDeposit(role)
		if token != expectedToken {
			return nil, dErrors.Newf(dErrors.CodeValidation, "deposit token %s does not match expected %s", token, expectedToken)
		}
		if !amount.Equal(expectedAmount) {
			return nil, dErrors.Newf(dErrors.CodeValidation, "deposit amount %s does not match expected %s", amount, expectedAmount)
		}

		expectedVersion := contract.Version
		fullyFunded := contract.ApplyDeposit(role, s.nowFn())
		if fullyFunded && contract.Kind != models.KindAtomicSwap {
			contract.Activate(s.nowFn())
		}

		err := s.contracts.UpdateIf(ctx, contract, expectedVersion)
		if err == nil {
			break
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist deposit")
		}
		s.incrementConflict()
		if attempt >= conflictRetries {
			return nil, dErrors.New(dErrors.CodeConcurrentModification, "escrow was modified concurrently, retry")
		}
		if contract, err = s.findContract(ctx, escrowID); err != nil {
			return nil, err
		}
	}

	if s.metrics != nil {
		s.metrics.DepositsRecorded.Inc()
	}
	s.logAudit(ctx, escrowID, wallet, audit.ActionDepositRecorded, "",
		map[string]string{"role": string(role), "tx_ref": txRef, "amount": amount.String(), "token": token})

	other := contract.SellerWallet
	if role == models.RoleSeller {
		other = contract.BuyerWallet
	}
	s.notifyParty(ctx, other, notify.EventDepositReceived, map[string]string{
		"escrow_id": escrowID.String(),
		"status":    string(contract.Status),
	})

	if contract.FullyFunded() {
		s.logAudit(ctx, escrowID, audit.SystemActor, audit.ActionFullyFunded, "", nil)
		s.notifyParty(ctx, contract.BuyerWallet, notify.EventFullyFunded, map[string]string{"escrow_id": escrowID.String()})
		s.notifyParty(ctx, contract.SellerWallet, notify.EventFullyFunded, map[string]string{"escrow_id": escrowID.String()})

		if contract.Kind == models.KindAtomicSwap {
			return s.executeSwap(ctx, contract)
		}
	}
	return contract, nil
}
