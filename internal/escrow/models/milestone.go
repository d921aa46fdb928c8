package models

import (
	"time"

	"github.com/shopspring/decimal"

	id "paylink/pkg/domain"
	dErrors "paylink/pkg/domain-errors"
)

// MilestoneStatus is the per-milestone sub-state machine: pending →
// work_submitted → approved, with a disputed branch off work_submitted.
type MilestoneStatus string

const (
	MilestonePending       MilestoneStatus = "pending"
	MilestoneWorkSubmitted MilestoneStatus = "work_submitted"
	MilestoneApproved      MilestoneStatus = "approved"
	MilestoneDisputed      MilestoneStatus = "disputed"
)

// Milestone is a child row of a milestone escrow. Each milestone settles
// independently; sibling milestones never contend.
type Milestone struct {
	ID         id.MilestoneID
	EscrowID   id.EscrowID
	Order      int
	Percentage decimal.Decimal
	Amount     decimal.Decimal
	Status     MilestoneStatus
	Notes      string
	// EvidenceRefs are opaque pointers (URLs, file ids) attached on
	// submission.
	EvidenceRefs []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// MilestonePlan is the creation-time description of one installment.
type MilestonePlan struct {
	Order      int
	Percentage decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

// BuildMilestones expands a plan into milestone rows. Percentages must each
// be in (0,100] and sum to exactly 100; orders must be unique and ascending.
// The split is fixed at creation and never changes afterwards.
func BuildMilestones(escrowID id.EscrowID, buyerAmount decimal.Decimal, plan []MilestonePlan, now time.Time) ([]*Milestone, error) {
	if len(plan) == 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "milestone escrow requires at least one milestone")
	}

	total := decimal.Zero
	lastOrder := 0
	milestones := make([]*Milestone, 0, len(plan))
	for i, p := range plan {
		if p.Percentage.LessThanOrEqual(decimal.Zero) || p.Percentage.GreaterThan(hundred) {
			return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "milestone %d percentage must be in (0,100]", i+1)
		}
		if p.Order <= lastOrder {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, "milestone orders must be unique and ascending")
		}
		lastOrder = p.Order
		total = total.Add(p.Percentage)

		milestones = append(milestones, &Milestone{
			ID:         id.NewMilestoneID(),
			EscrowID:   escrowID,
			Order:      p.Order,
			Percentage: p.Percentage,
			Amount:     buyerAmount.Mul(p.Percentage).Div(hundred),
			Status:     MilestonePending,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}

	if !total.Equal(hundred) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "milestone percentages must sum to 100")
	}
	return milestones, nil
}

// CanSubmitWork validates the seller's submission transition.
func (m *Milestone) CanSubmitWork() error {
	switch m.Status {
	case MilestonePending:
		return nil
	case MilestoneDisputed:
		return dErrors.New(dErrors.CodeFrozenByDispute, "milestone is frozen by an open dispute")
	default:
		return dErrors.Newf(dErrors.CodeInvalidTransition, "cannot submit work on %s milestone", m.Status)
	}
}

// SubmitWork records the seller's deliverable.
func (m *Milestone) SubmitWork(notes string, evidenceRefs []string, now time.Time) {
	m.Status = MilestoneWorkSubmitted
	m.Notes = notes
	m.EvidenceRefs = append(m.EvidenceRefs, evidenceRefs...)
	m.UpdatedAt = now
}

// CanApprove validates the buyer's approval transition.
func (m *Milestone) CanApprove() error {
	switch m.Status {
	case MilestoneWorkSubmitted:
		return nil
	case MilestoneDisputed:
		return dErrors.New(dErrors.CodeFrozenByDispute, "milestone is frozen by an open dispute")
	case MilestoneApproved:
		return dErrors.New(dErrors.CodeInvalidTransition, "milestone is already approved")
	default:
		return dErrors.Newf(dErrors.CodeInvalidTransition, "cannot approve %s milestone", m.Status)
	}
}

// Approve marks the milestone released.
func (m *Milestone) Approve(now time.Time) {
	m.Status = MilestoneApproved
	m.UpdatedAt = now
}

// MarkDisputed freezes this milestone only; siblings are unaffected.
func (m *Milestone) MarkDisputed(now time.Time) error {
	if m.Status == MilestoneApproved {
		return dErrors.New(dErrors.CodeInvalidTransition, "cannot dispute an approved milestone")
	}
	if m.Status == MilestoneDisputed {
		return dErrors.New(dErrors.CodeConflict, "milestone is already disputed")
	}
	m.Status = MilestoneDisputed
	m.UpdatedAt = now
	return nil
}

// Clone returns a deep copy.
func (m *Milestone) Clone() *Milestone {
	clone := *m
	clone.EvidenceRefs = append([]string(nil), m.EvidenceRefs...)
	return &clone
}
