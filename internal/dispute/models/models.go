// Package models defines disputes, evidence, and privileged admin decisions.
package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	id "paylink/pkg/domain"
	dErrors "paylink/pkg/domain-errors"
)

// MinJustificationLen is the minimum length for dispute descriptions and
// admin resolution notes.
const MinJustificationLen = 20

// DisputeStatus tracks the dispute's own lifecycle, distinct from the escrow
// status it freezes.
type DisputeStatus string

const (
	DisputeOpen        DisputeStatus = "open"
	DisputeUnderReview DisputeStatus = "under_review"
	DisputeResolved    DisputeStatus = "resolved"
	DisputeClosed      DisputeStatus = "closed"
)

// Priority is derived from the escrow size at raise time so large contracts
// surface first in the admin queue.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// PriorityForAmount buckets an escrow amount into a queue priority.
func PriorityForAmount(amount decimal.Decimal) Priority {
	switch {
	case amount.GreaterThanOrEqual(decimal.NewFromInt(1000)):
		return PriorityHigh
	case amount.GreaterThanOrEqual(decimal.NewFromInt(100)):
		return PriorityNormal
	default:
		return PriorityLow
	}
}

// Dispute freezes its scope (whole escrow, or one milestone) until an admin
// resolves it. At most one open dispute may exist per scope.
type Dispute struct {
	ID          id.DisputeID
	EscrowID    id.EscrowID
	MilestoneID *id.MilestoneID // nil for escrow-scoped disputes
	RaisedBy    string
	PartyRole   string
	Reason      string
	Description string
	Status      DisputeStatus
	Priority    Priority

	ResolutionAction string
	ResolutionNotes  string
	ResolvedBy       string
	ResolvedAt       *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewDispute validates and builds an open dispute.
func NewDispute(escrowID id.EscrowID, milestoneID *id.MilestoneID, raisedBy, partyRole, reason, description string, escrowAmount decimal.Decimal, now time.Time) (*Dispute, error) {
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "dispute reason is required")
	}
	if len(strings.TrimSpace(description)) < MinJustificationLen {
		return nil, dErrors.Newf(dErrors.CodeValidation, "dispute description must be at least %d characters", MinJustificationLen)
	}
	return &Dispute{
		ID:          id.NewDisputeID(),
		EscrowID:    escrowID,
		MilestoneID: milestoneID,
		RaisedBy:    raisedBy,
		PartyRole:   partyRole,
		Reason:      reason,
		Description: description,
		Status:      DisputeOpen,
		Priority:    PriorityForAmount(escrowAmount),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Open reports whether the dispute still freezes its scope.
func (d *Dispute) Open() bool {
	return d.Status == DisputeOpen || d.Status == DisputeUnderReview
}

// Resolve records the admin decision on the dispute record itself.
func (d *Dispute) Resolve(action ResolutionAction, notes, adminWallet string, now time.Time) error {
	if !d.Open() {
		return dErrors.Newf(dErrors.CodeInvalidTransition, "dispute is already %s", d.Status)
	}
	d.Status = DisputeResolved
	d.ResolutionAction = string(action)
	d.ResolutionNotes = notes
	d.ResolvedBy = adminWallet
	resolvedAt := now
	d.ResolvedAt = &resolvedAt
	d.UpdatedAt = now
	return nil
}

// Clone returns a deep copy.
func (d *Dispute) Clone() *Dispute {
	clone := *d
	if d.MilestoneID != nil {
		milestoneID := *d.MilestoneID
		clone.MilestoneID = &milestoneID
	}
	if d.ResolvedAt != nil {
		resolvedAt := *d.ResolvedAt
		clone.ResolvedAt = &resolvedAt
	}
	return &clone
}

// EvidenceType enumerates accepted evidence payloads.
type EvidenceType string

const (
	EvidenceText       EvidenceType = "text"
	EvidenceImage      EvidenceType = "image"
	EvidenceDocument   EvidenceType = "document"
	EvidenceLink       EvidenceType = "link"
	EvidenceScreenshot EvidenceType = "screenshot"
)

func (t EvidenceType) valid() bool {
	switch t {
	case EvidenceText, EvidenceImage, EvidenceDocument, EvidenceLink, EvidenceScreenshot:
		return true
	}
	return false
}

// Evidence is an append-only attachment to a dispute. It never changes
// dispute or escrow state.
type Evidence struct {
	ID          id.EvidenceID
	DisputeID   id.DisputeID
	EscrowID    id.EscrowID
	SubmittedBy string
	PartyRole   string
	Type        EvidenceType
	// Content holds inline text; FileRef points at externally stored files.
	// Exactly one is set.
	Content   string
	FileRef   string
	CreatedAt time.Time
}

// NewEvidence validates and builds an evidence record.
func NewEvidence(disputeID id.DisputeID, escrowID id.EscrowID, submittedBy, partyRole string, evidenceType EvidenceType, content, fileRef string, now time.Time) (*Evidence, error) {
	if !evidenceType.valid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown evidence type %q", evidenceType)
	}
	if (content == "") == (fileRef == "") {
		return nil, dErrors.New(dErrors.CodeValidation, "evidence requires exactly one of content or file reference")
	}
	return &Evidence{
		ID:          id.NewEvidenceID(),
		DisputeID:   disputeID,
		EscrowID:    escrowID,
		SubmittedBy: submittedBy,
		PartyRole:   partyRole,
		Type:        evidenceType,
		Content:     content,
		FileRef:     fileRef,
		CreatedAt:   now,
	}, nil
}

// ResolutionAction enumerates admin decisions.
type ResolutionAction string

const (
	ResolutionReleaseToSeller ResolutionAction = "release_to_seller"
	ResolutionRefundToBuyer   ResolutionAction = "refund_to_buyer"
	ResolutionPartialSplit    ResolutionAction = "partial_split"
	// ResolutionOther records a decision without moving funds: the escape
	// hatch for disputes no automatic split can resolve.
	ResolutionOther ResolutionAction = "other"
)

// Valid reports whether the action is a known decision.
func (a ResolutionAction) Valid() bool {
	switch a {
	case ResolutionReleaseToSeller, ResolutionRefundToBuyer, ResolutionPartialSplit, ResolutionOther:
		return true
	}
	return false
}

// AdminAction is the immutable system of record for privileged decisions.
// One row per resolution; settlement references are recorded on the row.
type AdminAction struct {
	ID             id.AdminActionID
	EscrowID       id.EscrowID
	DisputeID      id.DisputeID
	AdminWallet    string
	Decision       ResolutionAction
	AmountToBuyer  decimal.Decimal
	AmountToSeller decimal.Decimal
	// SettlementRefs are the ledger references for each executed leg, in
	// leg order. Empty for the "other" decision.
	SettlementRefs []string
	Notes          string
	CreatedAt      time.Time
}
