package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"paylink/internal/escrow/models"
	"paylink/pkg/platform/audit"
)

// createEscrowRequest opens a contract. The authenticated wallet is the
// buyer; amounts travel as strings so decimal precision survives JSON.
type createEscrowRequest struct {
	Kind         string          `json:"kind"`
	SellerWallet string          `json:"seller_wallet"`
	Token        string          `json:"token"`
	SellerToken  string          `json:"seller_token,omitempty"`
	BuyerAmount  string          `json:"buyer_amount"`
	SellerAmount string          `json:"seller_amount,omitempty"`
	ExpiresAt    time.Time       `json:"expires_at"`
	Milestones   []milestonePlan `json:"milestones,omitempty"`
}

type milestonePlan struct {
	Order      int    `json:"order"`
	Percentage string `json:"percentage"`
}

type depositRequest struct {
	Amount string `json:"amount"`
	Token  string `json:"token"`
	TxRef  string `json:"tx_ref"`
}

type submitWorkRequest struct {
	Notes        string   `json:"notes,omitempty"`
	EvidenceRefs []string `json:"evidence_refs,omitempty"`
}

type confirmationsResponse struct {
	Buyer  bool `json:"buyer"`
	Seller bool `json:"seller"`
}

type swapResponse struct {
	Executed     bool   `json:"executed"`
	BuyerLegRef  string `json:"buyer_leg_ref,omitempty"`
	SellerLegRef string `json:"seller_leg_ref,omitempty"`
}

type contractResponse struct {
	ID              string                 `json:"id"`
	Kind            string                 `json:"kind"`
	BuyerWallet     string                 `json:"buyer_wallet"`
	SellerWallet    string                 `json:"seller_wallet"`
	Token           string                 `json:"token"`
	SellerToken     string                 `json:"seller_token,omitempty"`
	BuyerAmount     decimal.Decimal        `json:"buyer_amount"`
	SellerAmount    decimal.Decimal        `json:"seller_amount"`
	Status          string                 `json:"status"`
	BuyerDeposited  bool                   `json:"buyer_deposited"`
	SellerDeposited bool                   `json:"seller_deposited"`
	Confirmations   *confirmationsResponse `json:"confirmations,omitempty"`
	Swap            *swapResponse          `json:"swap,omitempty"`
	ExpiresAt       time.Time              `json:"expires_at"`
	Version         int64                  `json:"version"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

type milestoneResponse struct {
	ID           string          `json:"id"`
	EscrowID     string          `json:"escrow_id"`
	Order        int             `json:"order"`
	Percentage   decimal.Decimal `json:"percentage"`
	Amount       decimal.Decimal `json:"amount"`
	Status       string          `json:"status"`
	Notes        string          `json:"notes,omitempty"`
	EvidenceRefs []string        `json:"evidence_refs,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type escrowResponse struct {
	Contract   contractResponse    `json:"contract"`
	Milestones []milestoneResponse `json:"milestones,omitempty"`
}

type actionResponse struct {
	Timestamp time.Time         `json:"timestamp"`
	Actor     string            `json:"actor"`
	Action    string            `json:"action"`
	Notes     string            `json:"notes,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func toContractResponse(c *models.Contract) contractResponse {
	resp := contractResponse{
		ID:              c.ID.String(),
		Kind:            string(c.Kind),
		BuyerWallet:     c.BuyerWallet,
		SellerWallet:    c.SellerWallet,
		Token:           c.Token,
		SellerToken:     c.SellerToken,
		BuyerAmount:     c.BuyerAmount,
		SellerAmount:    c.SellerAmount,
		Status:          string(c.Status),
		BuyerDeposited:  c.BuyerDeposited,
		SellerDeposited: c.SellerDeposited,
		ExpiresAt:       c.ExpiresAt,
		Version:         c.Version,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
	if c.Confirmations != nil {
		resp.Confirmations = &confirmationsResponse{
			Buyer:  c.Confirmations.Buyer,
			Seller: c.Confirmations.Seller,
		}
	}
	if c.Swap != nil {
		resp.Swap = &swapResponse{
			Executed:     c.Swap.Executed,
			BuyerLegRef:  c.Swap.BuyerLegRef,
			SellerLegRef: c.Swap.SellerLegRef,
		}
	}
	return resp
}

func toMilestoneResponses(milestones []*models.Milestone) []milestoneResponse {
	if len(milestones) == 0 {
		return nil
	}
	out := make([]milestoneResponse, 0, len(milestones))
	for _, m := range milestones {
		out = append(out, toMilestoneResponse(m))
	}
	return out
}

func toMilestoneResponse(m *models.Milestone) milestoneResponse {
	return milestoneResponse{
		ID:           m.ID.String(),
		EscrowID:     m.EscrowID.String(),
		Order:        m.Order,
		Percentage:   m.Percentage,
		Amount:       m.Amount,
		Status:       string(m.Status),
		Notes:        m.Notes,
		EvidenceRefs: m.EvidenceRefs,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func toActionResponses(events []audit.Event) []actionResponse {
	out := make([]actionResponse, 0, len(events))
	for _, e := range events {
		out = append(out, actionResponse{
			Timestamp: e.Timestamp,
			Actor:     e.Actor,
			Action:    e.Action,
			Notes:     e.Notes,
			Metadata:  e.Metadata,
		})
	}
	return out
}
