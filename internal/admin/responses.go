package admin

import (
	"time"

	"github.com/shopspring/decimal"

	dmodels "paylink/internal/dispute/models"
)

// DisputeResponse is the HTTP response DTO for one queued dispute.
type DisputeResponse struct {
	ID          string `json:"id"`
	EscrowID    string `json:"escrow_id"`
	MilestoneID string `json:"milestone_id,omitempty"`
	RaisedBy    string `json:"raised_by"`
	PartyRole   string `json:"party_role"`
	Reason      string `json:"reason"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Priority    string `json:"priority"`

	ResolutionAction string     `json:"resolution_action,omitempty"`
	ResolutionNotes  string     `json:"resolution_notes,omitempty"`
	ResolvedBy       string     `json:"resolved_by,omitempty"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DisputesListResponse wraps the admin queue for HTTP response.
type DisputesListResponse struct {
	Disputes []*DisputeResponse `json:"disputes"`
	Total    int                `json:"total"`
}

// AdminActionResponse is the HTTP response DTO for one recorded decision.
type AdminActionResponse struct {
	ID             string          `json:"id"`
	EscrowID       string          `json:"escrow_id"`
	DisputeID      string          `json:"dispute_id"`
	AdminWallet    string          `json:"admin_wallet"`
	Decision       string          `json:"decision"`
	AmountToBuyer  decimal.Decimal `json:"amount_to_buyer"`
	AmountToSeller decimal.Decimal `json:"amount_to_seller"`
	SettlementRefs []string        `json:"settlement_refs,omitempty"`
	Notes          string          `json:"notes"`
	CreatedAt      time.Time       `json:"created_at"`
}

// SweepResponse reports one manual sweep run.
type SweepResponse struct {
	Refunded  int `json:"refunded"`
	Cancelled int `json:"cancelled"`
	Failed    int `json:"failed"`
}

func toDisputeResponse(d *dmodels.Dispute) *DisputeResponse {
	resp := &DisputeResponse{
		ID:               d.ID.String(),
		EscrowID:         d.EscrowID.String(),
		RaisedBy:         d.RaisedBy,
		PartyRole:        d.PartyRole,
		Reason:           d.Reason,
		Description:      d.Description,
		Status:           string(d.Status),
		Priority:         string(d.Priority),
		ResolutionAction: d.ResolutionAction,
		ResolutionNotes:  d.ResolutionNotes,
		ResolvedBy:       d.ResolvedBy,
		ResolvedAt:       d.ResolvedAt,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
	if d.MilestoneID != nil {
		resp.MilestoneID = d.MilestoneID.String()
	}
	return resp
}

func toAdminActionResponse(a *dmodels.AdminAction) *AdminActionResponse {
	return &AdminActionResponse{
		ID:             a.ID.String(),
		EscrowID:       a.EscrowID.String(),
		DisputeID:      a.DisputeID.String(),
		AdminWallet:    a.AdminWallet,
		Decision:       string(a.Decision),
		AmountToBuyer:  a.AmountToBuyer,
		AmountToSeller: a.AmountToSeller,
		SettlementRefs: a.SettlementRefs,
		Notes:          a.Notes,
		CreatedAt:      a.CreatedAt,
	}
}
