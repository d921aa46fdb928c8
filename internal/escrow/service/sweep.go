package service

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	dErrors "paylink/pkg/domain-errors"
	"paylink/pkg/platform/audit"
	"paylink/pkg/platform/sentinel"

	"paylink/internal/escrow/models"
	"paylink/internal/notify"
	"paylink/internal/settlement"
)

const (
	sweepBatchSize   = 100
	sweepConcurrency = 4
)

// SweepResult summarizes one sweeper pass.
type SweepResult struct {
	Refunded  int
	Cancelled int
	Failed    int
}

// SweepExpired closes every expired, under-funded escrow: deposits held in
// the vault go back to their depositors and the contract terminates as
// refunded, or cancelled when it never held funds. Each escrow is swept
// independently so one failure never blocks the batch.
func (s *Service) SweepExpired(ctx context.Context) (SweepResult, error) {
	now := s.nowFn()
	expired, err := s.contracts.ListSweepable(ctx, now, sweepBatchSize)
	if err != nil {
		return SweepResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list expired escrows")
	}

	var (
		mu     sync.Mutex
		result SweepResult
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)
	for _, contract := range expired {
		g.Go(func() error {
			outcome, err := s.sweepOne(ctx, contract)
			mu.Lock()
			switch {
			case err != nil:
				result.Failed++
			case outcome == models.StatusRefunded:
				result.Refunded++
			default:
				result.Cancelled++
			}
			mu.Unlock()
			if err != nil {
				s.logger.ErrorContext(ctx, "sweep failed",
					"escrow_id", contract.ID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if s.metrics != nil {
		s.metrics.SweepOutcomes.WithLabelValues("refunded").Add(float64(result.Refunded))
		s.metrics.SweepOutcomes.WithLabelValues("cancelled").Add(float64(result.Cancelled))
		s.metrics.SweepOutcomes.WithLabelValues("failed").Add(float64(result.Failed))
	}
	s.logger.InfoContext(ctx, "sweep pass finished",
		"refunded", result.Refunded, "cancelled", result.Cancelled, "failed", result.Failed)
	return result, nil
}

func (s *Service) sweepOne(ctx context.Context, contract *models.Contract) (models.Status, error) {
	var legs []settlement.Leg
	if contract.BuyerDeposited {
		legs = append(legs, settlement.Leg{
			From: s.vaultWallet, To: contract.BuyerWallet,
			Amount: contract.BuyerAmount, Token: contract.Token,
		})
	}
	if contract.SellerDeposited {
		amount, token := contract.ExpectedDeposit(models.RoleSeller)
		legs = append(legs, settlement.Leg{
			From: s.vaultWallet, To: contract.SellerWallet,
			Amount: amount, Token: token,
		})
	}

	var refs []string
	target := models.StatusCancelled
	if len(legs) > 0 {
		target = models.StatusRefunded
		result, err := s.settler.Settle(ctx, contract.ID, "sweep", legs)
		if err != nil {
			s.logAudit(ctx, contract.ID, audit.SystemActor, audit.ActionSettlementFailed, err.Error(),
				map[string]string{"purpose": "sweep"})
			return "", err
		}
		refs = result.Refs
	}

	for attempt := 0; ; attempt++ {
		// A deposit or dispute that landed since listing disqualifies the
		// sweep; the next pass re-evaluates.
		if !contract.Sweepable(s.nowFn()) && len(refs) == 0 {
			return "", dErrors.New(dErrors.CodeConflict, "escrow no longer sweepable")
		}
		expectedVersion := contract.Version
		if target == models.StatusRefunded {
			contract.Refund(s.nowFn())
		} else {
			contract.Cancel(s.nowFn())
		}

		err := s.contracts.UpdateIf(ctx, contract, expectedVersion)
		if err == nil {
			break
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to close swept escrow")
		}
		s.incrementConflict()
		if attempt >= conflictRetries {
			return "", dErrors.New(dErrors.CodeConcurrentModification, "escrow was modified concurrently")
		}
		reloaded, err := s.findContract(ctx, contract.ID)
		if err != nil {
			return "", err
		}
		if reloaded.Status.IsTerminal() {
			return reloaded.Status, nil
		}
		contract = reloaded
	}

	action := audit.ActionSweepCancelled
	if target == models.StatusRefunded {
		action = audit.ActionSweepRefunded
	}
	s.logAudit(ctx, contract.ID, audit.SystemActor, action, "",
		map[string]string{"settlement_refs": joinRefs(refs)})
	s.notifyParty(ctx, contract.BuyerWallet, notify.EventEscrowExpired, map[string]string{
		"escrow_id": contract.ID.String(),
		"status":    string(target),
	})
	s.notifyParty(ctx, contract.SellerWallet, notify.EventEscrowExpired, map[string]string{
		"escrow_id": contract.ID.String(),
		"status":    string(target),
	})
	if s.metrics != nil {
		s.metrics.IncrementCompleted(string(target))
	}
	return target, nil
}
