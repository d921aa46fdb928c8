package audit

import (
	"context"
	"time"

	id "paylink/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose. This
// enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal/financial significance:
	// every fund movement, every privileged decision. These require
	// tamper-proof storage and long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to monitoring and forensics:
	// settlement failures, partial swaps, rejected admin resolutions.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine lifecycle activity useful for
	// debugging. These can be sampled with shorter retention.
	CategoryOperations EventCategory = "operations"
)

// Event is one immutable escrow action record. Exactly one event is appended
// per lifecycle transition; fund-affecting failures are appended too. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp time.Time
	EscrowID  id.EscrowID
	// Actor is the wallet that drove the transition, or "system" for
	// automated transitions (sweeper, deposit poller).
	Actor     string
	Action    string
	Notes     string
	RequestID string
	// Metadata carries transition-specific details: settlement references,
	// milestone ids, amounts, device summaries.
	Metadata map[string]string
}

// SystemActor marks transitions performed by the platform itself.
const SystemActor = "system"

// Action names. One constant per lifecycle transition.
type Action string

const (
	ActionEscrowCreated        Action = "escrow_created"
	ActionDepositRecorded      Action = "deposit_recorded"
	ActionFullyFunded          Action = "fully_funded"
	ActionConfirmationRecorded Action = "confirmation_recorded"
	ActionEscrowCompleted      Action = "escrow_completed"
	ActionMilestoneSubmitted   Action = "milestone_submitted"
	ActionMilestoneApproved    Action = "milestone_approved"
	ActionSwapExecuted         Action = "swap_executed"
	ActionDisputeRaised        Action = "dispute_raised"
	ActionEvidenceSubmitted    Action = "evidence_submitted"
	ActionDisputeResolved      Action = "dispute_resolved"
	ActionAdminDecision        Action = "admin_decision"
	ActionSweepRefunded        Action = "sweep_refunded"
	ActionSweepCancelled       Action = "sweep_cancelled"
	ActionSettlementFailed     Action = "settlement_failed"
	ActionSwapPartialFailure   Action = "swap_partial_failure"
)

// actionCategories maps each action to its category.
// Compliance: fund movement and privileged decisions, long retention.
// Security: failures that need operator attention.
// Operations: routine lifecycle activity.
var actionCategories = map[Action]EventCategory{
	ActionEscrowCompleted:   CategoryCompliance,
	ActionMilestoneApproved: CategoryCompliance,
	ActionSwapExecuted:      CategoryCompliance,
	ActionDisputeResolved:   CategoryCompliance,
	ActionAdminDecision:     CategoryCompliance,
	ActionSweepRefunded:     CategoryCompliance,

	ActionSettlementFailed:   CategorySecurity,
	ActionSwapPartialFailure: CategorySecurity,

	ActionEscrowCreated:        CategoryOperations,
	ActionDepositRecorded:      CategoryOperations,
	ActionFullyFunded:          CategoryOperations,
	ActionConfirmationRecorded: CategoryOperations,
	ActionMilestoneSubmitted:   CategoryOperations,
	ActionDisputeRaised:        CategoryOperations,
	ActionEvidenceSubmitted:    CategoryOperations,
	ActionSweepCancelled:       CategoryOperations,
}

// Category returns the EventCategory for this action.
// Unknown actions default to CategoryOperations.
func (a Action) Category() EventCategory {
	if cat, ok := actionCategories[a]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists events append-only.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByEscrow(ctx context.Context, escrowID id.EscrowID) ([]Event, error)
}
