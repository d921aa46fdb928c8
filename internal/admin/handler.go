// Package admin exposes the operator surface: the dispute queue, dispute
// resolution, the privileged decision history, and manual sweep runs. Every
// route sits behind the bcrypt-verified admin token.
package admin

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	dmodels "paylink/internal/dispute/models"
	disputeservice "paylink/internal/dispute/service"
	escrowservice "paylink/internal/escrow/service"
	platformmetrics "paylink/internal/platform/metrics"
	"paylink/internal/platform/middleware"
	"paylink/internal/transport/http/shared"
	id "paylink/pkg/domain"
	dErrors "paylink/pkg/domain-errors"
	"paylink/pkg/requestcontext"
)

// DisputeService defines the dispute operations the admin surface needs.
type DisputeService interface {
	ListOpenDisputes(ctx context.Context) ([]*dmodels.Dispute, error)
	GetDispute(ctx context.Context, disputeID id.DisputeID) (*dmodels.Dispute, []*dmodels.Evidence, error)
	ResolveDispute(ctx context.Context, disputeID id.DisputeID, adminWallet string, input disputeservice.ResolveInput) (*dmodels.AdminAction, error)
	ListAdminActions(ctx context.Context, escrowID id.EscrowID) ([]*dmodels.AdminAction, error)
}

// Sweeper triggers one expiry sweep pass.
type Sweeper interface {
	SweepExpired(ctx context.Context) (escrowservice.SweepResult, error)
}

// Handler handles admin endpoints.
type Handler struct {
	logger         *slog.Logger
	disputes       DisputeService
	sweeper        Sweeper
	httpMetrics    *platformmetrics.Metrics
	adminTokenHash string
}

// New creates a new admin Handler.
func New(
	disputes DisputeService,
	sweeper Sweeper,
	logger *slog.Logger,
	httpMetrics *platformmetrics.Metrics,
	adminTokenHash string) *Handler {
	return &Handler{
		logger:         logger,
		disputes:       disputes,
		sweeper:        sweeper,
		httpMetrics:    httpMetrics,
		adminTokenHash: adminTokenHash,
	}
}

// Register registers the admin routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	adminRouter := chi.NewRouter()
	adminRouter.Use(middleware.Recovery(h.logger))
	adminRouter.Use(middleware.RequestID)
	adminRouter.Use(middleware.ClientMetadata)
	adminRouter.Use(middleware.Logger(h.logger))
	adminRouter.Use(middleware.RequestTime)
	adminRouter.Use(middleware.Timeout(60 * time.Second))
	adminRouter.Use(middleware.ContentTypeJSON)
	adminRouter.Use(middleware.Latency(h.httpMetrics))
	adminRouter.Use(middleware.RequireAdminToken(h.adminTokenHash, h.logger))

	adminRouter.Get("/disputes", h.handleListDisputes)
	adminRouter.Get("/disputes/{disputeID}", h.handleGetDispute)
	adminRouter.Post("/disputes/{disputeID}/resolve", h.handleResolveDispute)
	adminRouter.Get("/escrows/{escrowID}/actions", h.handleListAdminActions)
	adminRouter.Post("/sweep", h.handleSweep)

	r.Mount("/admin", adminRouter)
}

type resolveRequest struct {
	Action         string `json:"action"`
	AmountToBuyer  string `json:"amount_to_buyer,omitempty"`
	AmountToSeller string `json:"amount_to_seller,omitempty"`
	Notes          string `json:"notes"`
}

func (h *Handler) handleListDisputes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	disputes, err := h.disputes.ListOpenDisputes(ctx)
	if err != nil {
		h.logFailure(ctx, "failed to list open disputes", err)
		shared.WriteError(w, err)
		return
	}

	out := make([]*DisputeResponse, 0, len(disputes))
	for _, d := range disputes {
		out = append(out, toDisputeResponse(d))
	}
	shared.WriteJSON(w, http.StatusOK, DisputesListResponse{Disputes: out, Total: len(out)})
}

func (h *Handler) handleGetDispute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	disputeID, err := id.ParseDisputeID(chi.URLParam(r, "disputeID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	dispute, _, err := h.disputes.GetDispute(ctx, disputeID)
	if err != nil {
		h.logFailure(ctx, "failed to get dispute", err)
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, toDisputeResponse(dispute))
}

func (h *Handler) handleResolveDispute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	adminWallet := requestcontext.AdminWallet(ctx)
	disputeID, err := id.ParseDisputeID(chi.URLParam(r, "disputeID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	input := disputeservice.ResolveInput{
		Action: dmodels.ResolutionAction(req.Action),
		Notes:  req.Notes,
	}
	if req.AmountToBuyer != "" {
		if input.AmountToBuyer, err = parseAmount(req.AmountToBuyer, "amount_to_buyer"); err != nil {
			shared.WriteError(w, err)
			return
		}
	}
	if req.AmountToSeller != "" {
		if input.AmountToSeller, err = parseAmount(req.AmountToSeller, "amount_to_seller"); err != nil {
			shared.WriteError(w, err)
			return
		}
	}

	action, err := h.disputes.ResolveDispute(ctx, disputeID, adminWallet, input)
	if err != nil {
		h.logFailure(ctx, "failed to resolve dispute", err)
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, toAdminActionResponse(action))
}

func (h *Handler) handleListAdminActions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	escrowID, err := id.ParseEscrowID(chi.URLParam(r, "escrowID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	actions, err := h.disputes.ListAdminActions(ctx, escrowID)
	if err != nil {
		h.logFailure(ctx, "failed to list admin actions", err)
		shared.WriteError(w, err)
		return
	}

	out := make([]*AdminActionResponse, 0, len(actions))
	for _, a := range actions {
		out = append(out, toAdminActionResponse(a))
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"actions": out})
}

func (h *Handler) handleSweep(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	result, err := h.sweeper.SweepExpired(ctx)
	if err != nil {
		h.logFailure(ctx, "sweep run failed", err)
		shared.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "manual sweep completed",
		"refunded", result.Refunded,
		"cancelled", result.Cancelled,
		"failed", result.Failed,
		"request_id", requestcontext.RequestID(ctx),
	)
	shared.WriteJSON(w, http.StatusOK, SweepResponse{
		Refunded:  result.Refunded,
		Cancelled: result.Cancelled,
		Failed:    result.Failed,
	})
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

func parseAmount(raw, field string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, dErrors.Newf(dErrors.CodeValidation, "%s must be a decimal string", field)
	}
	return d, nil
}
