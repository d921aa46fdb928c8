package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "paylink/pkg/domain"
	dErrors "paylink/pkg/domain-errors"
	"paylink/pkg/platform/audit"
	"paylink/pkg/platform/audit/publisher"
	auditmemory "paylink/pkg/platform/audit/store/memory"

	"paylink/internal/escrow/models"
	"paylink/internal/escrow/service"
	contractstore "paylink/internal/escrow/store/contract"
	milestonestore "paylink/internal/escrow/store/milestone"
	observationstore "paylink/internal/escrow/store/observation"
	"paylink/internal/notify"
	"paylink/internal/settlement"
	"paylink/internal/settlement/claims"
	"paylink/internal/settlement/ledger"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type env struct {
	svc        *service.Service
	contracts  *contractstore.InMemory
	milestones *milestonestore.InMemory
	ledger     *ledger.Memory
	notifier   *notify.Memory
	auditStore *auditmemory.InMemoryStore
	clock      *fakeClock
}

func newEnv(t *testing.T) *env {
	t.Helper()
	return newEnvWithLedger(t, ledger.NewMemory())
}

func newEnvWithLedger(t *testing.T, l settlement.Ledger) *env {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	e := &env{
		contracts:  contractstore.NewInMemory(),
		milestones: milestonestore.NewInMemory(),
		notifier:   notify.NewMemory(),
		auditStore: auditmemory.NewInMemoryStore(),
		clock:      clock,
	}
	if mem, ok := l.(*ledger.Memory); ok {
		e.ledger = mem
	}
	exec := settlement.NewExecutor(l, claims.NewInMemory(), settlement.WithClock(clock.Now))
	e.svc = service.New(e.contracts, e.milestones, observationstore.NewInMemory(), exec, "vault",
		service.WithClock(clock.Now),
		service.WithAuditPublisher(publisher.NewPublisher(e.auditStore)),
		service.WithNotifier(e.notifier),
	)
	return e
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func (e *env) createMutual(t *testing.T, sellerDeposit int64) *models.Contract {
	t.Helper()
	contract, _, err := e.svc.CreateEscrow(context.Background(), service.CreateInput{
		Kind:         models.KindMutual,
		BuyerWallet:  "0xbuyer",
		SellerWallet: "0xseller",
		Token:        "USDC",
		BuyerAmount:  dec(100),
		SellerAmount: dec(sellerDeposit),
		ExpiresAt:    e.clock.Now().Add(24 * time.Hour),
	})
	require.NoError(t, err)
	return contract
}

func (e *env) createSwap(t *testing.T) *models.Contract {
	t.Helper()
	contract, _, err := e.svc.CreateEscrow(context.Background(), service.CreateInput{
		Kind:         models.KindAtomicSwap,
		BuyerWallet:  "0xbuyer",
		SellerWallet: "0xseller",
		Token:        "USDC",
		SellerToken:  "ETH",
		BuyerAmount:  dec(100),
		SellerAmount: dec(5),
		ExpiresAt:    e.clock.Now().Add(24 * time.Hour),
	})
	require.NoError(t, err)
	return contract
}

func (e *env) createMilestone(t *testing.T) (*models.Contract, []*models.Milestone) {
	t.Helper()
	contract, milestones, err := e.svc.CreateEscrow(context.Background(), service.CreateInput{
		Kind:         models.KindMilestone,
		BuyerWallet:  "0xbuyer",
		SellerWallet: "0xseller",
		Token:        "USDC",
		BuyerAmount:  dec(100),
		ExpiresAt:    e.clock.Now().Add(24 * time.Hour),
		Milestones: []models.MilestonePlan{
			{Order: 1, Percentage: dec(60)},
			{Order: 2, Percentage: dec(40)},
		},
	})
	require.NoError(t, err)
	require.Len(t, milestones, 2)
	return contract, milestones
}

func (e *env) auditActions(t *testing.T, escrowID id.EscrowID) []string {
	t.Helper()
	events, err := e.auditStore.ListByEscrow(context.Background(), escrowID)
	require.NoError(t, err)
	actions := make([]string, 0, len(events))
	for _, ev := range events {
		actions = append(actions, ev.Action)
	}
	return actions
}

func TestMutualLifecycle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	contract := e.createMutual(t, 20)
	assert.Equal(t, models.StatusCreated, contract.Status)

	contract, err := e.svc.RecordDeposit(ctx, contract.ID, "0xbuyer", dec(100), "USDC", "tx-buyer")
	require.NoError(t, err)
	assert.Equal(t, models.StatusBuyerDeposited, contract.Status)
	assert.True(t, contract.BuyerDeposited)

	contract, err = e.svc.RecordDeposit(ctx, contract.ID, "0xseller", dec(20), "USDC", "tx-seller")
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, contract.Status)

	contract, err = e.svc.ConfirmCompletion(ctx, contract.ID, "0xbuyer")
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, contract.Status)
	require.NotNil(t, contract.Confirmations)
	assert.True(t, contract.Confirmations.Buyer)
	assert.Empty(t, e.ledger.Transfers(), "no funds move on the first confirmation")

	contract, err = e.svc.ConfirmCompletion(ctx, contract.ID, "0xseller")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, contract.Status)

	transfers := e.ledger.Transfers()
	require.Len(t, transfers, 2)
	assert.Equal(t, "vault", transfers[0].From)
	assert.Equal(t, "0xseller", transfers[0].To)
	assert.True(t, transfers[0].Amount.Equal(dec(100)))
	assert.Equal(t, "0xseller", transfers[1].To, "security deposit returns to the seller")
	assert.True(t, transfers[1].Amount.Equal(dec(20)))

	actions := e.auditActions(t, contract.ID)
	assert.Contains(t, actions, string(audit.ActionEscrowCreated))
	assert.Contains(t, actions, string(audit.ActionEscrowCompleted))

	completed := e.notifier.List("0xbuyer")
	require.NotEmpty(t, completed)
	assert.Equal(t, notify.EventEscrowCompleted, completed[len(completed)-1].EventType)
}

func TestMutualWithoutSellerDeposit(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	contract := e.createMutual(t, 0)

	// With no security deposit the buyer leg alone fully funds the escrow.
	contract, err := e.svc.RecordDeposit(ctx, contract.ID, "0xbuyer", dec(100), "USDC", "tx-buyer")
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, contract.Status)

	_, err = e.svc.ConfirmCompletion(ctx, contract.ID, "0xbuyer")
	require.NoError(t, err)
	contract, err = e.svc.ConfirmCompletion(ctx, contract.ID, "0xseller")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, contract.Status)
	assert.Len(t, e.ledger.Transfers(), 1)
}

func TestRecordDeposit_Validation(t *testing.T) {
	ctx := context.Background()

	t.Run("empty tx ref", func(t *testing.T) {
		e := newEnv(t)
		contract := e.createMutual(t, 20)
		_, err := e.svc.RecordDeposit(ctx, contract.ID, "0xbuyer", dec(100), "USDC", "")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("outsider wallet", func(t *testing.T) {
		e := newEnv(t)
		contract := e.createMutual(t, 20)
		_, err := e.svc.RecordDeposit(ctx, contract.ID, "0xstranger", dec(100), "USDC", "tx-1")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	t.Run("wrong amount", func(t *testing.T) {
		e := newEnv(t)
		contract := e.createMutual(t, 20)
		_, err := e.svc.RecordDeposit(ctx, contract.ID, "0xbuyer", dec(99), "USDC", "tx-1")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("wrong token", func(t *testing.T) {
		e := newEnv(t)
		contract := e.createMutual(t, 20)
		_, err := e.svc.RecordDeposit(ctx, contract.ID, "0xbuyer", dec(100), "DAI", "tx-1")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("milestone seller has no deposit leg", func(t *testing.T) {
		e := newEnv(t)
		contract, _ := e.createMilestone(t)
		_, err := e.svc.RecordDeposit(ctx, contract.ID, "0xseller", dec(100), "USDC", "tx-1")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})
}

func TestRecordDeposit_ReplayIsNoOp(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	contract := e.createMutual(t, 20)

	first, err := e.svc.RecordDeposit(ctx, contract.ID, "0xbuyer", dec(100), "USDC", "tx-buyer")
	require.NoError(t, err)

	// Same tx ref delivered again, e.g. a webhook retry.
	replay, err := e.svc.RecordDeposit(ctx, contract.ID, "0xbuyer", dec(100), "USDC", "tx-buyer")
	require.NoError(t, err)
	assert.Equal(t, first.Status, replay.Status)
	assert.Equal(t, first.Version, replay.Version)

	// A different tx ref for a leg that is already funded is also absorbed.
	again, err := e.svc.RecordDeposit(ctx, contract.ID, "0xbuyer", dec(100), "USDC", "tx-buyer-2")
	require.NoError(t, err)
	assert.Equal(t, first.Version, again.Version)
}

func TestRecordDeposit_FrozenByDispute(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	contract := e.createMutual(t, 20)

	stored, err := e.contracts.FindByID(ctx, contract.ID)
	require.NoError(t, err)
	require.NoError(t, stored.MarkDisputed(e.clock.Now()))
	require.NoError(t, e.contracts.UpdateIf(ctx, stored, stored.Version))

	_, err = e.svc.RecordDeposit(ctx, contract.ID, "0xbuyer", dec(100), "USDC", "tx-1")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeFrozenByDispute))
}

func TestConfirmCompletion_Gating(t *testing.T) {
	ctx := context.Background()

	t.Run("non-mutual kind", func(t *testing.T) {
		e := newEnv(t)
		contract, _ := e.createMilestone(t)
		_, err := e.svc.ConfirmCompletion(ctx, contract.ID, "0xbuyer")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})

	t.Run("before active", func(t *testing.T) {
		e := newEnv(t)
		contract := e.createMutual(t, 20)
		_, err := e.svc.ConfirmCompletion(ctx, contract.ID, "0xbuyer")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})

	t.Run("outsider", func(t *testing.T) {
		e := newEnv(t)
		contract := e.createMutual(t, 20)
		_, err := e.svc.ConfirmCompletion(ctx, contract.ID, "0xstranger")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	t.Run("repeat confirmation is a no-op", func(t *testing.T) {
		e := newEnv(t)
		contract := e.createMutual(t, 0)
		_, err := e.svc.RecordDeposit(ctx, contract.ID, "0xbuyer", dec(100), "USDC", "tx-1")
		require.NoError(t, err)

		_, err = e.svc.ConfirmCompletion(ctx, contract.ID, "0xbuyer")
		require.NoError(t, err)
		contract, err = e.svc.ConfirmCompletion(ctx, contract.ID, "0xbuyer")
		require.NoError(t, err)
		assert.Equal(t, models.StatusActive, contract.Status)
		assert.Empty(t, e.ledger.Transfers())
	})
}

func TestMilestoneLifecycle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	contract, milestones := e.createMilestone(t)
	first, second := milestones[0], milestones[1]
	assert.True(t, first.Amount.Equal(dec(60)))
	assert.True(t, second.Amount.Equal(dec(40)))

	contract, err := e.svc.RecordDeposit(ctx, contract.ID, "0xbuyer", dec(100), "USDC", "tx-buyer")
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, contract.Status, "milestone escrows activate on the buyer deposit alone")

	// Approval is gated on submitted work.
	_, err = e.svc.ApproveMilestone(ctx, contract.ID, first.ID, "0xbuyer")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))

	// Only the seller submits.
	_, err = e.svc.SubmitMilestoneWork(ctx, contract.ID, first.ID, "0xbuyer", "done", nil)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))

	submitted, err := e.svc.SubmitMilestoneWork(ctx, contract.ID, first.ID, "0xseller",
		"design handed over", []string{"https://files.example/design.pdf"})
	require.NoError(t, err)
	assert.Equal(t, models.MilestoneWorkSubmitted, submitted.Status)

	approved, err := e.svc.ApproveMilestone(ctx, contract.ID, first.ID, "0xbuyer")
	require.NoError(t, err)
	assert.Equal(t, models.MilestoneApproved, approved.Status)

	transfers := e.ledger.Transfers()
	require.Len(t, transfers, 1)
	assert.Equal(t, "0xseller", transfers[0].To)
	assert.True(t, transfers[0].Amount.Equal(dec(60)))

	loaded, _, err := e.svc.GetEscrow(ctx, contract.ID, "0xbuyer")
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, loaded.Status, "escrow stays active until the last installment")

	_, err = e.svc.SubmitMilestoneWork(ctx, contract.ID, second.ID, "0xseller", "final delivery", nil)
	require.NoError(t, err)
	_, err = e.svc.ApproveMilestone(ctx, contract.ID, second.ID, "0xbuyer")
	require.NoError(t, err)

	transfers = e.ledger.Transfers()
	require.Len(t, transfers, 2)
	assert.True(t, transfers[1].Amount.Equal(dec(40)))

	loaded, _, err = e.svc.GetEscrow(ctx, contract.ID, "0xbuyer")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, loaded.Status)
}

func TestMilestoneApproval_SellerCannotApprove(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	contract, milestones := e.createMilestone(t)
	_, err := e.svc.RecordDeposit(ctx, contract.ID, "0xbuyer", dec(100), "USDC", "tx-buyer")
	require.NoError(t, err)
	_, err = e.svc.SubmitMilestoneWork(ctx, contract.ID, milestones[0].ID, "0xseller", "done", nil)
	require.NoError(t, err)

	_, err = e.svc.ApproveMilestone(ctx, contract.ID, milestones[0].ID, "0xseller")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
}

func TestSwapLifecycle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	contract := e.createSwap(t)

	contract, err := e.svc.RecordDeposit(ctx, contract.ID, "0xbuyer", dec(100), "USDC", "tx-buyer")
	require.NoError(t, err)
	assert.Equal(t, models.StatusBuyerDeposited, contract.Status)

	// The second deposit fully funds the swap and triggers execution.
	contract, err = e.svc.RecordDeposit(ctx, contract.ID, "0xseller", dec(5), "ETH", "tx-seller")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, contract.Status)
	require.NotNil(t, contract.Swap)
	assert.True(t, contract.Swap.Executed)
	assert.NotEmpty(t, contract.Swap.BuyerLegRef)
	assert.NotEmpty(t, contract.Swap.SellerLegRef)

	transfers := e.ledger.Transfers()
	require.Len(t, transfers, 2)
	assert.Equal(t, "0xseller", transfers[0].To)
	assert.Equal(t, "USDC", transfers[0].Token)
	assert.Equal(t, "0xbuyer", transfers[1].To)
	assert.Equal(t, "ETH", transfers[1].Token)

	assert.Contains(t, e.auditActions(t, contract.ID), string(audit.ActionSwapExecuted))
}

// flakyLedger fails every transfer in a given token so one swap leg can be
// forced down while the other succeeds.
type flakyLedger struct {
	inner     *ledger.Memory
	failToken string
}

func (l *flakyLedger) Transfer(ctx context.Context, from, to string, amount decimal.Decimal, token string) (string, error) {
	if token == l.failToken {
		return "", dErrors.New(dErrors.CodeInternal, "chain halted")
	}
	return l.inner.Transfer(ctx, from, to, amount, token)
}

func TestSwapPartialFailure(t *testing.T) {
	flaky := &flakyLedger{inner: ledger.NewMemory(), failToken: "ETH"}
	e := newEnvWithLedger(t, flaky)
	ctx := context.Background()
	contract := e.createSwap(t)

	_, err := e.svc.RecordDeposit(ctx, contract.ID, "0xbuyer", dec(100), "USDC", "tx-buyer")
	require.NoError(t, err)
	_, err = e.svc.RecordDeposit(ctx, contract.ID, "0xseller", dec(5), "ETH", "tx-seller")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodePartialSwapFailure))

	// The escrow stays fully funded pending manual reconciliation; the claim
	// never reopens, so a retry reports the same stuck state.
	loaded, err := e.contracts.FindByID(ctx, contract.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFullyFunded, loaded.Status)

	_, err = e.svc.RetrySwap(ctx, contract.ID)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodePartialSwapFailure))

	assert.Contains(t, e.auditActions(t, contract.ID), string(audit.ActionSwapPartialFailure))
}

func TestRetrySwap_Gating(t *testing.T) {
	ctx := context.Background()

	t.Run("not a swap", func(t *testing.T) {
		e := newEnv(t)
		contract := e.createMutual(t, 20)
		_, err := e.svc.RetrySwap(ctx, contract.ID)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})

	t.Run("not fully funded", func(t *testing.T) {
		e := newEnv(t)
		contract := e.createSwap(t)
		_, err := e.svc.RetrySwap(ctx, contract.ID)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})

	t.Run("already completed", func(t *testing.T) {
		e := newEnv(t)
		contract := e.createSwap(t)
		_, err := e.svc.RecordDeposit(ctx, contract.ID, "0xbuyer", dec(100), "USDC", "tx-b")
		require.NoError(t, err)
		_, err = e.svc.RecordDeposit(ctx, contract.ID, "0xseller", dec(5), "ETH", "tx-s")
		require.NoError(t, err)

		done, err := e.svc.RetrySwap(ctx, contract.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCompleted, done.Status)
		assert.Len(t, e.ledger.Transfers(), 2, "no funds move on the repeat call")
	})
}

func TestSweepExpired(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	funded := e.createMutual(t, 20)
	_, err := e.svc.RecordDeposit(ctx, funded.ID, "0xbuyer", dec(100), "USDC", "tx-b")
	require.NoError(t, err)

	empty := e.createMutual(t, 20)

	// An active escrow never sweeps, expired or not.
	active := e.createMutual(t, 0)
	_, err = e.svc.RecordDeposit(ctx, active.ID, "0xbuyer", dec(100), "USDC", "tx-a")
	require.NoError(t, err)

	e.clock.Advance(25 * time.Hour)

	result, err := e.svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Refunded)
	assert.Equal(t, 1, result.Cancelled)
	assert.Equal(t, 0, result.Failed)

	swept, err := e.contracts.FindByID(ctx, funded.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRefunded, swept.Status)

	transfers := e.ledger.Transfers()
	require.Len(t, transfers, 1)
	assert.Equal(t, "0xbuyer", transfers[0].To, "held deposit returns to its depositor")
	assert.True(t, transfers[0].Amount.Equal(dec(100)))

	cancelled, err := e.contracts.FindByID(ctx, empty.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)

	untouched, err := e.contracts.FindByID(ctx, active.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, untouched.Status)

	// A second pass finds nothing left to do.
	result, err = e.svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, service.SweepResult{}, result)
}

func TestCreateEscrow_Validation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		input service.CreateInput
	}{
		{
			name: "same wallet both sides",
			input: service.CreateInput{
				Kind: models.KindMutual, BuyerWallet: "0xsame", SellerWallet: "0xsame",
				Token: "USDC", BuyerAmount: dec(100), ExpiresAt: e.clock.Now().Add(time.Hour),
			},
		},
		{
			name: "expiry in the past",
			input: service.CreateInput{
				Kind: models.KindMutual, BuyerWallet: "0xbuyer", SellerWallet: "0xseller",
				Token: "USDC", BuyerAmount: dec(100), ExpiresAt: e.clock.Now().Add(-time.Hour),
			},
		},
		{
			name: "milestones on a mutual escrow",
			input: service.CreateInput{
				Kind: models.KindMutual, BuyerWallet: "0xbuyer", SellerWallet: "0xseller",
				Token: "USDC", BuyerAmount: dec(100), ExpiresAt: e.clock.Now().Add(time.Hour),
				Milestones: []models.MilestonePlan{{Order: 1, Percentage: dec(100)}},
			},
		},
		{
			name: "milestone percentages not summing to 100",
			input: service.CreateInput{
				Kind: models.KindMilestone, BuyerWallet: "0xbuyer", SellerWallet: "0xseller",
				Token: "USDC", BuyerAmount: dec(100), ExpiresAt: e.clock.Now().Add(time.Hour),
				Milestones: []models.MilestonePlan{{Order: 1, Percentage: dec(50)}},
			},
		},
		{
			name: "unknown kind",
			input: service.CreateInput{
				Kind: "barter", BuyerWallet: "0xbuyer", SellerWallet: "0xseller",
				Token: "USDC", BuyerAmount: dec(100), ExpiresAt: e.clock.Now().Add(time.Hour),
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := e.svc.CreateEscrow(ctx, tc.input)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation), "got %v", err)
		})
	}
}

func TestGetEscrow_PartyGate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	contract := e.createMutual(t, 20)

	_, _, err := e.svc.GetEscrow(ctx, contract.ID, "0xstranger")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))

	_, _, err = e.svc.GetEscrow(ctx, id.NewEscrowID(), "0xbuyer")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestListEscrows(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.createMutual(t, 20)
	e.createSwap(t)

	mine, err := e.svc.ListEscrows(ctx, "0xbuyer")
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	none, err := e.svc.ListEscrows(ctx, "0xstranger")
	require.NoError(t, err)
	assert.Empty(t, none)
}
