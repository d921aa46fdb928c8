// Package domain defines strongly typed identifiers shared across modules.
// Each ID is a distinct UUID type so an escrow ID can never be passed where a
// dispute ID is expected.
package domain

import (
	"github.com/google/uuid"

	dErrors "paylink/pkg/domain-errors"
)

type (
	// EscrowID identifies an escrow contract aggregate.
	EscrowID uuid.UUID
	// MilestoneID identifies a milestone row under a milestone escrow.
	MilestoneID uuid.UUID
	// DisputeID identifies a dispute on an escrow or milestone.
	DisputeID uuid.UUID
	// EvidenceID identifies an appended evidence record.
	EvidenceID uuid.UUID
	// ActionID identifies an audit action record.
	ActionID uuid.UUID
	// AdminActionID identifies a privileged resolution record.
	AdminActionID uuid.UUID
	// ClaimID identifies a settlement idempotency claim.
	ClaimID uuid.UUID
)

func (id EscrowID) String() string      { return uuid.UUID(id).String() }
func (id MilestoneID) String() string   { return uuid.UUID(id).String() }
func (id DisputeID) String() string     { return uuid.UUID(id).String() }
func (id EvidenceID) String() string    { return uuid.UUID(id).String() }
func (id ActionID) String() string      { return uuid.UUID(id).String() }
func (id AdminActionID) String() string { return uuid.UUID(id).String() }
func (id ClaimID) String() string       { return uuid.UUID(id).String() }

func (id EscrowID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id MilestoneID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id DisputeID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }

// NewEscrowID returns a fresh random escrow ID.
func NewEscrowID() EscrowID { return EscrowID(uuid.New()) }

// NewMilestoneID returns a fresh random milestone ID.
func NewMilestoneID() MilestoneID { return MilestoneID(uuid.New()) }

// NewDisputeID returns a fresh random dispute ID.
func NewDisputeID() DisputeID { return DisputeID(uuid.New()) }

// NewEvidenceID returns a fresh random evidence ID.
func NewEvidenceID() EvidenceID { return EvidenceID(uuid.New()) }

// NewActionID returns a fresh random action ID.
func NewActionID() ActionID { return ActionID(uuid.New()) }

// NewAdminActionID returns a fresh random admin action ID.
func NewAdminActionID() AdminActionID { return AdminActionID(uuid.New()) }

// NewClaimID returns a fresh random claim ID.
func NewClaimID() ClaimID { return ClaimID(uuid.New()) }

func parseUUID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be empty")
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must be a valid UUID")
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be the nil UUID")
	}
	return parsed, nil
}

// ParseEscrowID validates and converts a raw string into an EscrowID.
func ParseEscrowID(raw string) (EscrowID, error) {
	parsed, err := parseUUID(raw)
	if err != nil {
		return EscrowID{}, err
	}
	return EscrowID(parsed), nil
}

// ParseMilestoneID validates and converts a raw string into a MilestoneID.
func ParseMilestoneID(raw string) (MilestoneID, error) {
	parsed, err := parseUUID(raw)
	if err != nil {
		return MilestoneID{}, err
	}
	return MilestoneID(parsed), nil
}

// ParseDisputeID validates and converts a raw string into a DisputeID.
func ParseDisputeID(raw string) (DisputeID, error) {
	parsed, err := parseUUID(raw)
	if err != nil {
		return DisputeID{}, err
	}
	return DisputeID(parsed), nil
}
