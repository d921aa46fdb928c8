// Package handler exposes party-facing dispute endpoints. Admin resolution
// lives in the admin package behind the operator token.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	dmodels "paylink/internal/dispute/models"
	platformmetrics "paylink/internal/platform/metrics"
	"paylink/internal/platform/middleware"
	"paylink/internal/transport/http/shared"
	id "paylink/pkg/domain"
	dErrors "paylink/pkg/domain-errors"
	"paylink/pkg/requestcontext"
)

// Service defines the dispute operations the handler delegates to.
type Service interface {
	RaiseDispute(ctx context.Context, escrowID id.EscrowID, milestoneID *id.MilestoneID, wallet, reason, description string) (*dmodels.Dispute, error)
	SubmitEvidence(ctx context.Context, disputeID id.DisputeID, wallet string, evidenceType dmodels.EvidenceType, content, fileRef string) (*dmodels.Evidence, error)
	GetDispute(ctx context.Context, disputeID id.DisputeID) (*dmodels.Dispute, []*dmodels.Evidence, error)
	AssertParty(ctx context.Context, escrowID id.EscrowID, wallet string) error
}

// Handler handles dispute-related endpoints.
type Handler struct {
	logger       *slog.Logger
	disputes     Service
	httpMetrics  *platformmetrics.Metrics
	jwtValidator middleware.JWTValidator
}

// New creates a new dispute Handler.
func New(
	disputes Service,
	logger *slog.Logger,
	httpMetrics *platformmetrics.Metrics,
	jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		disputes:     disputes,
		httpMetrics:  httpMetrics,
		jwtValidator: jwtValidator,
	}
}

// Register registers the dispute routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(gr chi.Router) {
		gr.Use(middleware.Recovery(h.logger))
		gr.Use(middleware.RequestID)
		gr.Use(middleware.ClientMetadata)
		gr.Use(middleware.Logger(h.logger))
		gr.Use(middleware.RequestTime)
		gr.Use(middleware.Device)
		gr.Use(middleware.Timeout(30 * time.Second))
		gr.Use(middleware.ContentTypeJSON)
		gr.Use(middleware.Latency(h.httpMetrics))
		gr.Use(middleware.RequireAuth(h.jwtValidator, h.logger))

		gr.Post("/escrows/{escrowID}/disputes", h.handleRaiseDispute)
		gr.Get("/disputes/{disputeID}", h.handleGetDispute)
		gr.Post("/disputes/{disputeID}/evidence", h.handleSubmitEvidence)
	})
}

type raiseDisputeRequest struct {
	MilestoneID string `json:"milestone_id,omitempty"`
	Reason      string `json:"reason"`
	Description string `json:"description"`
}

type submitEvidenceRequest struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	FileRef string `json:"file_ref,omitempty"`
}

func (h *Handler) handleRaiseDispute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	wallet, ok := h.actorWallet(ctx, w)
	if !ok {
		return
	}
	escrowID, err := id.ParseEscrowID(chi.URLParam(r, "escrowID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req raiseDisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	var milestoneID *id.MilestoneID
	if req.MilestoneID != "" {
		parsed, err := id.ParseMilestoneID(req.MilestoneID)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		milestoneID = &parsed
	}

	dispute, err := h.disputes.RaiseDispute(ctx, escrowID, milestoneID, wallet, req.Reason, req.Description)
	if err != nil {
		h.logFailure(ctx, "failed to raise dispute", err)
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusCreated, toDisputeResponse(dispute))
}

func (h *Handler) handleGetDispute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	wallet, ok := h.actorWallet(ctx, w)
	if !ok {
		return
	}
	disputeID, err := id.ParseDisputeID(chi.URLParam(r, "disputeID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	dispute, evidence, err := h.disputes.GetDispute(ctx, disputeID)
	if err != nil {
		h.logFailure(ctx, "failed to get dispute", err)
		shared.WriteError(w, err)
		return
	}
	if err := h.disputes.AssertParty(ctx, dispute.EscrowID, wallet); err != nil {
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, disputeDetailResponse{
		Dispute:  toDisputeResponse(dispute),
		Evidence: toEvidenceResponses(evidence),
	})
}

func (h *Handler) handleSubmitEvidence(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	wallet, ok := h.actorWallet(ctx, w)
	if !ok {
		return
	}
	disputeID, err := id.ParseDisputeID(chi.URLParam(r, "disputeID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req submitEvidenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	evidence, err := h.disputes.SubmitEvidence(ctx, disputeID, wallet, dmodels.EvidenceType(req.Type), req.Content, req.FileRef)
	if err != nil {
		h.logFailure(ctx, "failed to submit evidence", err)
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusCreated, toEvidenceResponse(evidence))
}

func (h *Handler) actorWallet(ctx context.Context, w http.ResponseWriter) (string, bool) {
	wallet := requestcontext.ActorWallet(ctx)
	if wallet == "" {
		h.logger.ErrorContext(ctx, "wallet missing from context despite auth middleware",
			"request_id", requestcontext.RequestID(ctx),
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return "", false
	}
	return wallet, true
}

func (h *Handler) logFailure(ctx context.Context, msg string, err error) {
	logFn := h.logger.WarnContext
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		logFn = h.logger.ErrorContext
	}
	logFn(ctx, msg,
		"error", err.Error(),
		"request_id", requestcontext.RequestID(ctx),
	)
}
