package handler

import (
	"time"

	dmodels "paylink/internal/dispute/models"
)

type disputeResponse struct {
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

type evidenceResponse struct {
	ID          string    `json:"id"`
	DisputeID   string    `json:"dispute_id"`
	SubmittedBy string    `json:"submitted_by"`
	PartyRole   string    `json:"party_role"`
	Type        string    `json:"type"`
	Content     string    `json:"content,omitempty"`
	FileRef     string    `json:"file_ref,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type disputeDetailResponse struct {
	Dispute  disputeResponse    `json:"dispute"`
	Evidence []evidenceResponse `json:"evidence,omitempty"`
}

func toDisputeResponse(d *dmodels.Dispute) disputeResponse {
	resp := disputeResponse{
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

func toEvidenceResponses(evidence []*dmodels.Evidence) []evidenceResponse {
	if len(evidence) == 0 {
		return nil
	}
	out := make([]evidenceResponse, 0, len(evidence))
	for _, e := range evidence {
		out = append(out, toEvidenceResponse(e))
	}
	return out
}

func toEvidenceResponse(e *dmodels.Evidence) evidenceResponse {
	return evidenceResponse{
		ID:          e.ID.String(),
		DisputeID:   e.DisputeID.String(),
		SubmittedBy: e.SubmittedBy,
		PartyRole:   e.PartyRole,
		Type:        string(e.Type),
		Content:     e.Content,
		FileRef:     e.FileRef,
		CreatedAt:   e.CreatedAt,
	}
}
