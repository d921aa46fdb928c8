// Package models defines the escrow contract aggregate and its children.
// The contract is owned exclusively by the lifecycle engine; all mutation
// goes through Can*/Apply* pairs so invariants hold at every persist point.
package models

import (
	"time"

	"github.com/shopspring/decimal"

	id "paylink/pkg/domain"
	dErrors "paylink/pkg/domain-errors"
)

// Kind tags the contract variant. Kind-specific state lives in optional
// sub-structs populated only for the matching kind, so a confirmation flag
// can never exist on an atomic swap.
type Kind string

const (
	KindMutual     Kind = "mutual_confirmation"
	KindMilestone  Kind = "milestone"
	KindAtomicSwap Kind = "atomic_swap"
)

// Status is the aggregate lifecycle state.
type Status string

const (
	StatusCreated         Status = "created"
	StatusBuyerDeposited  Status = "buyer_deposited"
	StatusSellerDeposited Status = "seller_deposited"
	StatusFullyFunded     Status = "fully_funded"
	StatusActive          Status = "active"
	StatusDisputed        Status = "disputed"
	StatusCompleted       Status = "completed"
	StatusCancelled       Status = "cancelled"
	StatusRefunded        Status = "refunded"
)

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusRefunded
}

// Role identifies which side of the contract a wallet is on.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
)

// Confirmations holds the mutual-confirmation and-gate. Present only on
// KindMutual contracts.
type Confirmations struct {
	Buyer  bool
	Seller bool
}

// Both reports whether the and-gate is satisfied.
func (c *Confirmations) Both() bool { return c != nil && c.Buyer && c.Seller }

// SwapState holds atomic-swap execution facts. Present only on
// KindAtomicSwap contracts.
type SwapState struct {
	Executed     bool
	BuyerLegRef  string
	SellerLegRef string
}

// Contract is the escrow aggregate. Version increases on every persisted
// mutation; conditional writes compare it so concurrent writers cannot both
// win.
type Contract struct {
	ID           id.EscrowID
	Kind         Kind
	BuyerWallet  string
	SellerWallet string

	// Token denominates BuyerAmount. For mutual contracts SellerAmount (the
	// security deposit) uses the same token; for atomic swaps the seller leg
	// uses SellerToken.
	Token        string
	SellerToken  string
	BuyerAmount  decimal.Decimal
	SellerAmount decimal.Decimal

	Status          Status
	BuyerDeposited  bool
	SellerDeposited bool

	Confirmations *Confirmations // KindMutual only
	Swap          *SwapState     // KindAtomicSwap only

	ExpiresAt time.Time
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

func validateCommon(buyer, seller, token string, buyerAmount decimal.Decimal, expiresAt, now time.Time) error {
	if buyer == "" || seller == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "buyer and seller wallets are required")
	}
	if buyer == seller {
		return dErrors.New(dErrors.CodeInvariantViolation, "buyer and seller must differ")
	}
	if token == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "token is required")
	}
	if !buyerAmount.IsPositive() {
		return dErrors.New(dErrors.CodeInvariantViolation, "buyer amount must be positive")
	}
	if !expiresAt.After(now) {
		return dErrors.New(dErrors.CodeInvariantViolation, "expiry must be in the future")
	}
	return nil
}

// NewMutualContract builds a mutual-confirmation escrow. SellerAmount is the
// seller's security deposit and may be zero.
func NewMutualContract(escrowID id.EscrowID, buyer, seller, token string, buyerAmount, sellerDeposit decimal.Decimal, expiresAt, now time.Time) (*Contract, error) {
	if err := validateCommon(buyer, seller, token, buyerAmount, expiresAt, now); err != nil {
		return nil, err
	}
	if sellerDeposit.IsNegative() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "seller deposit must not be negative")
	}
	return &Contract{
		ID:            escrowID,
		Kind:          KindMutual,
		BuyerWallet:   buyer,
		SellerWallet:  seller,
		Token:         token,
		BuyerAmount:   buyerAmount,
		SellerAmount:  sellerDeposit,
		Status:        StatusCreated,
		Confirmations: &Confirmations{},
		ExpiresAt:     expiresAt,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// NewMilestoneContract builds a milestone escrow. Milestones are created
// alongside from the plan; the buyer funds the full amount upfront and the
// seller never deposits.
func NewMilestoneContract(escrowID id.EscrowID, buyer, seller, token string, buyerAmount decimal.Decimal, expiresAt, now time.Time) (*Contract, error) {
	if err := validateCommon(buyer, seller, token, buyerAmount, expiresAt, now); err != nil {
		return nil, err
	}
	return &Contract{
		ID:           escrowID,
		Kind:         KindMilestone,
		BuyerWallet:  buyer,
		SellerWallet: seller,
		Token:        token,
		BuyerAmount:  buyerAmount,
		SellerAmount: decimal.Zero,
		Status:       StatusCreated,
		ExpiresAt:    expiresAt,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// NewAtomicSwapContract builds a two-asset swap: the buyer leg is buyerAmount
// of token, the seller leg sellerAmount of sellerToken.
func NewAtomicSwapContract(escrowID id.EscrowID, buyer, seller, token, sellerToken string, buyerAmount, sellerAmount decimal.Decimal, expiresAt, now time.Time) (*Contract, error) {
	if err := validateCommon(buyer, seller, token, buyerAmount, expiresAt, now); err != nil {
		return nil, err
	}
	if sellerToken == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "seller token is required for a swap")
	}
	if !sellerAmount.IsPositive() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "seller amount must be positive for a swap")
	}
	return &Contract{
		ID:           escrowID,
		Kind:         KindAtomicSwap,
		BuyerWallet:  buyer,
		SellerWallet: seller,
		Token:        token,
		SellerToken:  sellerToken,
		BuyerAmount:  buyerAmount,
		SellerAmount: sellerAmount,
		Status:       StatusCreated,
		Swap:         &SwapState{},
		ExpiresAt:    expiresAt,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// RoleOf resolves a wallet to its side of the contract.
func (c *Contract) RoleOf(wallet string) (Role, error) {
	switch wallet {
	case c.BuyerWallet:
		return RoleBuyer, nil
	case c.SellerWallet:
		return RoleSeller, nil
	default:
		return "", dErrors.New(dErrors.CodeForbidden, "wallet is not a party to this escrow")
	}
}

// ExpectedDeposit returns the amount and token the given role must deposit.
func (c *Contract) ExpectedDeposit(role Role) (decimal.Decimal, string) {
	if role == RoleBuyer {
		return c.BuyerAmount, c.Token
	}
	if c.Kind == KindAtomicSwap {
		return c.SellerAmount, c.SellerToken
	}
	return c.SellerAmount, c.Token
}

// Deposited reports whether the given role's deposit flag is set.
func (c *Contract) Deposited(role Role) bool {
	if role == RoleBuyer {
		return c.BuyerDeposited
	}
	return c.SellerDeposited
}

// RequiresDeposit reports whether the contract expects a deposit from the
// role at all. Milestone sellers never deposit; mutual sellers only when a
// security deposit was agreed.
func (c *Contract) RequiresDeposit(role Role) bool {
	if role == RoleBuyer {
		return true
	}
	switch c.Kind {
	case KindMilestone:
		return false
	case KindMutual:
		return c.SellerAmount.IsPositive()
	default:
		return true
	}
}

// CanDeposit validates that a deposit from the role is acceptable in the
// current state. Duplicate deposits are the caller's no-op, not an error
// here.
func (c *Contract) CanDeposit(role Role) error {
	if c.Status == StatusDisputed {
		return dErrors.New(dErrors.CodeFrozenByDispute, "escrow is frozen by an open dispute")
	}
	if c.Status.IsTerminal() {
		return dErrors.Newf(dErrors.CodeInvalidTransition, "cannot deposit on %s escrow", c.Status)
	}
	if !c.RequiresDeposit(role) {
		return dErrors.Newf(dErrors.CodeInvalidTransition, "%s has no deposit leg on this escrow", role)
	}
	return nil
}

// ApplyDeposit sets the role's deposit flag and advances the funding status.
// Returns true when this deposit made the contract fully funded.
func (c *Contract) ApplyDeposit(role Role, now time.Time) bool {
	if role == RoleBuyer {
		c.BuyerDeposited = true
	} else {
		c.SellerDeposited = true
	}
	c.UpdatedAt = now

	if c.FullyFunded() {
		c.Status = StatusFullyFunded
		return true
	}
	if role == RoleBuyer {
		c.Status = StatusBuyerDeposited
	} else {
		c.Status = StatusSellerDeposited
	}
	return false
}

// FullyFunded reports whether every required deposit flag is set.
func (c *Contract) FullyFunded() bool {
	if !c.BuyerDeposited {
		return false
	}
	if c.RequiresDeposit(RoleSeller) {
		return c.SellerDeposited
	}
	return true
}

// Activate moves a fully funded contract into active service.
func (c *Contract) Activate(now time.Time) {
	c.Status = StatusActive
	c.UpdatedAt = now
}

// CanConfirm validates a party confirmation on a mutual contract.
func (c *Contract) CanConfirm() error {
	if c.Kind != KindMutual {
		return dErrors.Newf(dErrors.CodeInvalidTransition, "%s escrow has no confirmation step", c.Kind)
	}
	if c.Status == StatusDisputed {
		return dErrors.New(dErrors.CodeFrozenByDispute, "escrow is frozen by an open dispute")
	}
	if c.Status != StatusActive {
		return dErrors.Newf(dErrors.CodeInvalidTransition, "cannot confirm while escrow is %s", c.Status)
	}
	return nil
}

// ApplyConfirmation records one side's confirmation. Returns true when both
// flags are now set. A repeat confirmation is reported via already.
func (c *Contract) ApplyConfirmation(role Role, now time.Time) (both, already bool) {
	if role == RoleBuyer {
		already = c.Confirmations.Buyer
		c.Confirmations.Buyer = true
	} else {
		already = c.Confirmations.Seller
		c.Confirmations.Seller = true
	}
	c.UpdatedAt = now
	return c.Confirmations.Both(), already
}

// Complete moves the contract to its successful terminal state.
func (c *Contract) Complete(now time.Time) {
	c.Status = StatusCompleted
	c.UpdatedAt = now
}

// Refund moves the contract to refunded after deposits were returned.
func (c *Contract) Refund(now time.Time) {
	c.Status = StatusRefunded
	c.UpdatedAt = now
}

// Cancel closes a contract that never held funds.
func (c *Contract) Cancel(now time.Time) {
	c.Status = StatusCancelled
	c.UpdatedAt = now
}

// MarkDisputed freezes the aggregate.
func (c *Contract) MarkDisputed(now time.Time) error {
	if c.Kind == KindAtomicSwap {
		return dErrors.New(dErrors.CodeInvalidTransition, "atomic swaps have no dispute path")
	}
	if c.Status.IsTerminal() {
		return dErrors.Newf(dErrors.CodeInvalidTransition, "cannot dispute %s escrow", c.Status)
	}
	if c.Status == StatusDisputed {
		return dErrors.New(dErrors.CodeConflict, "escrow is already disputed")
	}
	c.Status = StatusDisputed
	c.UpdatedAt = now
	return nil
}

// Expired reports whether the contract is past its deadline.
func (c *Contract) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// Sweepable reports whether the sweeper may act on this contract: expired,
// under-funded, not disputed, not terminal, and not a milestone escrow
// (milestones carry no overall expiry).
func (c *Contract) Sweepable(now time.Time) bool {
	if c.Kind == KindMilestone {
		return false
	}
	if c.Status.IsTerminal() || c.Status == StatusDisputed {
		return false
	}
	if c.Status == StatusActive {
		return false
	}
	return c.Expired(now)
}

// Clone returns a deep copy so store readers never share mutable state.
func (c *Contract) Clone() *Contract {
	clone := *c
	if c.Confirmations != nil {
		confirmations := *c.Confirmations
		clone.Confirmations = &confirmations
	}
	if c.Swap != nil {
		swap := *c.Swap
		clone.Swap = &swap
	}
	return &clone
}
