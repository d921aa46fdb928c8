// Package claims implements settlement idempotency. Every fund movement is
// keyed by (escrow, purpose); the first writer to claim a key owns the
// settlement and every later claimant sees the prior outcome instead of
// moving funds again.
package claims

import (
	"context"
	"time"

	id "paylink/pkg/domain"
)

// State tracks a claim through its settlement.
type State string

const (
	// StatePending means a settlement is in flight; nobody else may start one.
	StatePending State = "pending"
	// StateCompleted means every leg executed; Refs holds the ledger refs.
	StateCompleted State = "completed"
	// StateFailed means no leg executed; the claim may be retried.
	StateFailed State = "failed"
	// StatePartial means some legs executed and some did not. Retrying could
	// double-pay the executed legs, so partial claims stay locked for an
	// operator.
	StatePartial State = "partial"
)

// Claim is one settlement attempt record for an (escrow, purpose) key.
type Claim struct {
	ID       id.ClaimID
	EscrowID id.EscrowID
	// Purpose scopes the idempotency key: "release", "milestone:<id>",
	// "swap", "admin:<disputeID>", "sweep".
	Purpose       string
	State         State
	Refs          []string
	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Clone returns a deep copy.
func (c *Claim) Clone() *Claim {
	clone := *c
	clone.Refs = append([]string(nil), c.Refs...)
	return &clone
}

// Store is the claim table. Acquire is the only entry point that may create
// or reopen a claim; the Mark* methods record the outcome of an owned claim.
type Store interface {
	// Acquire attempts to own the (escrowID, purpose) key. When acquired is
	// true the caller holds a pending claim and must finish it with a Mark*
	// call. When false, the returned claim is the existing record: pending
	// (someone else is settling), completed (done, refs available), or
	// partial (locked for operator intervention). Failed claims are reopened
	// and returned with acquired = true.
	Acquire(ctx context.Context, escrowID id.EscrowID, purpose string, now time.Time) (claim *Claim, acquired bool, err error)

	MarkCompleted(ctx context.Context, claimID id.ClaimID, refs []string, now time.Time) error
	MarkFailed(ctx context.Context, claimID id.ClaimID, reason string, now time.Time) error
	MarkPartial(ctx context.Context, claimID id.ClaimID, refs []string, reason string, now time.Time) error
}
