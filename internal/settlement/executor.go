// Package settlement executes fund movements against the custody ledger.
// Every settlement runs under an idempotency claim, so callers may retry
// freely and funds still move at most once per (escrow, purpose).
package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	id "paylink/pkg/domain"
	dErrors "paylink/pkg/domain-errors"

	"paylink/internal/settlement/claims"
)

//go:generate mockgen -source=executor.go -destination=mocks/mocks.go -package=mocks Ledger

// Ledger moves funds between custody wallets. Implementations must be safe
// for concurrent use; they are not required to be idempotent, which is why
// the executor claims before transferring.
type Ledger interface {
	Transfer(ctx context.Context, from, to string, amount decimal.Decimal, token string) (ref string, err error)
}

// Leg is one directed fund movement.
type Leg struct {
	From   string
	To     string
	Amount decimal.Decimal
	Token  string
}

// Result reports the outcome of a settlement. Reused means a prior completed
// claim was returned and no funds moved in this call.
type Result struct {
	Refs   []string
	Reused bool
}

var hundred = decimal.NewFromInt(100)

// Executor owns the claim-then-transfer sequence.
type Executor struct {
	ledger     Ledger
	claims     claims.Store
	logger     *slog.Logger
	tracer     trace.Tracer
	feePercent decimal.Decimal
	feeWallet  string
	// retryBudget bounds re-attempts of a failing leg once an earlier leg
	// has already executed. Zero means no retries.
	retryBudget int
	nowFn       func() time.Time
}

// Option configures an Executor.
type Option func(*Executor)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithFee routes feePercent of every outbound leg to the fee wallet.
func WithFee(feePercent decimal.Decimal, feeWallet string) Option {
	return func(e *Executor) {
		e.feePercent = feePercent
		e.feeWallet = feeWallet
	}
}

func WithRetryBudget(budget int) Option {
	return func(e *Executor) {
		if budget >= 0 {
			e.retryBudget = budget
		}
	}
}

func WithClock(nowFn func() time.Time) Option {
	return func(e *Executor) {
		if nowFn != nil {
			e.nowFn = nowFn
		}
	}
}

func NewExecutor(ledger Ledger, claimStore claims.Store, opts ...Option) *Executor {
	e := &Executor{
		ledger:      ledger,
		claims:      claimStore,
		logger:      slog.Default(),
		tracer:      otel.Tracer("paylink/settlement"),
		feePercent:  decimal.Zero,
		retryBudget: 2,
		nowFn:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Settle executes the legs under the (escrowID, purpose) claim. Concurrent
// callers with the same key get exactly one execution: the owner transfers,
// everyone else observes the claim.
func (e *Executor) Settle(ctx context.Context, escrowID id.EscrowID, purpose string, legs []Leg) (Result, error) {
	ctx, span := e.tracer.Start(ctx, "settlement.Settle", trace.WithAttributes(
		attribute.String("escrow_id", escrowID.String()),
		attribute.String("purpose", purpose),
		attribute.Int("legs", len(legs)),
	))
	defer span.End()

	if len(legs) == 0 {
		return Result{}, dErrors.New(dErrors.CodeInternal, "settlement requires at least one leg")
	}

	now := e.nowFn()
	claim, acquired, err := e.claims.Acquire(ctx, escrowID, purpose, now)
	if err != nil {
		return Result{}, dErrors.Wrap(err, dErrors.CodeInternal, "acquire settlement claim")
	}
	if !acquired {
		switch claim.State {
		case claims.StateCompleted:
			return Result{Refs: claim.Refs, Reused: true}, nil
		case claims.StatePartial:
			return Result{}, dErrors.Newf(dErrors.CodePartialSwapFailure,
				"settlement %s/%s is partially executed and locked for operator review", escrowID, purpose)
		default:
			return Result{}, dErrors.New(dErrors.CodeConflict, "settlement already in flight")
		}
	}

	refs, executed, execErr := e.execute(ctx, e.withFees(legs))
	if execErr == nil {
		if markErr := e.claims.MarkCompleted(ctx, claim.ID, refs, e.nowFn()); markErr != nil {
			return Result{}, dErrors.Wrap(markErr, dErrors.CodeInternal, "record settlement completion")
		}
		e.logger.InfoContext(ctx, "settlement completed",
			"escrow_id", escrowID, "purpose", purpose, "legs", len(refs))
		return Result{Refs: refs}, nil
	}

	if executed > 0 {
		// Some funds moved. A blind retry could double-pay the executed
		// legs, so the claim locks until an operator reconciles.
		if markErr := e.claims.MarkPartial(ctx, claim.ID, refs, execErr.Error(), e.nowFn()); markErr != nil {
			e.logger.ErrorContext(ctx, "failed to record partial settlement",
				"escrow_id", escrowID, "purpose", purpose, "error", markErr)
		}
		e.logger.ErrorContext(ctx, "settlement partially executed",
			"escrow_id", escrowID, "purpose", purpose,
			"executed", executed, "total", len(legs), "error", execErr)
		return Result{Refs: refs}, dErrors.Wrapf(execErr, dErrors.CodePartialSwapFailure,
			"settlement %s/%s executed %d of %d legs", escrowID, purpose, executed, len(legs))
	}

	if markErr := e.claims.MarkFailed(ctx, claim.ID, execErr.Error(), e.nowFn()); markErr != nil {
		e.logger.ErrorContext(ctx, "failed to record settlement failure",
			"escrow_id", escrowID, "purpose", purpose, "error", markErr)
	}
	return Result{}, dErrors.Wrap(execErr, dErrors.CodeSettlementFailure, "settlement failed")
}

// withFees splits feePercent off every leg not already destined for the fee
// wallet, appending the fee legs after the principal legs.
func (e *Executor) withFees(legs []Leg) []Leg {
	if !e.feePercent.IsPositive() || e.feeWallet == "" {
		return legs
	}
	out := make([]Leg, 0, len(legs)*2)
	var fees []Leg
	for _, leg := range legs {
		if leg.To == e.feeWallet {
			out = append(out, leg)
			continue
		}
		fee := leg.Amount.Mul(e.feePercent).Div(hundred)
		if !fee.IsPositive() {
			out = append(out, leg)
			continue
		}
		leg.Amount = leg.Amount.Sub(fee)
		out = append(out, leg)
		fees = append(fees, Leg{From: leg.From, To: e.feeWallet, Amount: fee, Token: leg.Token})
	}
	return append(out, fees...)
}

// execute runs legs in order. The first leg gets no retry: if nothing has
// moved yet, failing fast keeps the claim reclaimable. Later legs retry
// within the budget because giving up there strands a partial settlement.
func (e *Executor) execute(ctx context.Context, legs []Leg) (refs []string, executed int, err error) {
	for i, leg := range legs {
		attempts := 1
		if i > 0 {
			attempts += e.retryBudget
		}

		var ref string
		var legErr error
		for attempt := 0; attempt < attempts; attempt++ {
			ref, legErr = e.ledger.Transfer(ctx, leg.From, leg.To, leg.Amount, leg.Token)
			if legErr == nil {
				break
			}
			e.logger.WarnContext(ctx, "transfer attempt failed",
				"from", leg.From, "to", leg.To, "token", leg.Token,
				"attempt", attempt+1, "error", legErr)
		}
		if legErr != nil {
			return refs, executed, fmt.Errorf("leg %d (%s -> %s): %w", i+1, leg.From, leg.To, legErr)
		}
		refs = append(refs, ref)
		executed++
	}
	return refs, executed, nil
}
