// Package handler exposes the escrow lifecycle over HTTP. It stays thin:
// decode, delegate to the service, encode. All authorization beyond token
// validation lives in the service layer where party roles are known.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"paylink/internal/escrow/models"
	"paylink/internal/escrow/service"
	platformmetrics "paylink/internal/platform/metrics"
	"paylink/internal/platform/middleware"
	"paylink/internal/transport/http/shared"
	id "paylink/pkg/domain"
	dErrors "paylink/pkg/domain-errors"
	"paylink/pkg/platform/audit"
	"paylink/pkg/requestcontext"
)

// Service defines the escrow operations the handler delegates to.
type Service interface {
	CreateEscrow(ctx context.Context, input service.CreateInput) (*models.Contract, []*models.Milestone, error)
	GetEscrow(ctx context.Context, escrowID id.EscrowID, wallet string) (*models.Contract, []*models.Milestone, error)
	ListEscrows(ctx context.Context, wallet string) ([]*models.Contract, error)
	RecordDeposit(ctx context.Context, escrowID id.EscrowID, wallet string, amount decimal.Decimal, token, txRef string) (*models.Contract, error)
	ConfirmCompletion(ctx context.Context, escrowID id.EscrowID, wallet string) (*models.Contract, error)
	SubmitMilestoneWork(ctx context.Context, escrowID id.EscrowID, milestoneID id.MilestoneID, wallet, notes string, evidenceRefs []string) (*models.Milestone, error)
	ApproveMilestone(ctx context.Context, escrowID id.EscrowID, milestoneID id.MilestoneID, wallet string) (*models.Milestone, error)
	RetrySwap(ctx context.Context, escrowID id.EscrowID) (*models.Contract, error)
}

// AuditReader lists the append-only action trail for one escrow.
type AuditReader interface {
	List(ctx context.Context, escrowID id.EscrowID) ([]audit.Event, error)
}

// Handler handles party-facing escrow endpoints.
type Handler struct {
	logger       *slog.Logger
	escrow       Service
	actions      AuditReader
	httpMetrics  *platformmetrics.Metrics
	jwtValidator middleware.JWTValidator
}

// New creates a new escrow Handler.
func New(
	escrow Service,
	actions AuditReader,
	logger *slog.Logger,
	httpMetrics *platformmetrics.Metrics,
	jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		escrow:       escrow,
		actions:      actions,
		httpMetrics:  httpMetrics,
		jwtValidator: jwtValidator,
	}
}

// Register registers the escrow routes with the chi router.
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

		gr.Post("/escrows", h.handleCreateEscrow)
		gr.Get("/escrows", h.handleListEscrows)
		gr.Get("/escrows/{escrowID}", h.handleGetEscrow)
		gr.Get("/escrows/{escrowID}/actions", h.handleListActions)
		gr.Post("/escrows/{escrowID}/deposits", h.handleRecordDeposit)
		gr.Post("/escrows/{escrowID}/confirm", h.handleConfirm)
		gr.Post("/escrows/{escrowID}/swap/retry", h.handleRetrySwap)
		gr.Post("/escrows/{escrowID}/milestones/{milestoneID}/submit", h.handleSubmitWork)
		gr.Post("/escrows/{escrowID}/milestones/{milestoneID}/approve", h.handleApproveMilestone)
	})
}

func (h *Handler) handleCreateEscrow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	wallet, ok := h.actorWallet(ctx, w)
	if !ok {
		return
	}

	var req createEscrowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	input, err := h.toCreateInput(wallet, req)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	contract, milestones, err := h.escrow.CreateEscrow(ctx, input)
	if err != nil {
		h.logFailure(ctx, "failed to create escrow", err)
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusCreated, escrowResponse{
		Contract:   toContractResponse(contract),
		Milestones: toMilestoneResponses(milestones),
	})
}

func (h *Handler) handleListEscrows(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	wallet, ok := h.actorWallet(ctx, w)
	if !ok {
		return
	}

	contracts, err := h.escrow.ListEscrows(ctx, wallet)
	if err != nil {
		h.logFailure(ctx, "failed to list escrows", err)
		shared.WriteError(w, err)
		return
	}

	out := make([]contractResponse, 0, len(contracts))
	for _, c := range contracts {
		out = append(out, toContractResponse(c))
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"escrows": out})
}

func (h *Handler) handleGetEscrow(w http.ResponseWriter, r *http.Request) {
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

	contract, milestones, err := h.escrow.GetEscrow(ctx, escrowID, wallet)
	if err != nil {
		h.logFailure(ctx, "failed to get escrow", err)
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, escrowResponse{
		Contract:   toContractResponse(contract),
		Milestones: toMilestoneResponses(milestones),
	})
}

func (h *Handler) handleListActions(w http.ResponseWriter, r *http.Request) {
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

	// Party check happens in GetEscrow; outsiders cannot read the trail.
	if _, _, err := h.escrow.GetEscrow(ctx, escrowID, wallet); err != nil {
		shared.WriteError(w, err)
		return
	}

	events, err := h.actions.List(ctx, escrowID)
	if err != nil {
		h.logFailure(ctx, "failed to list escrow actions", err)
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to list escrow actions"))
		return
	}

	shared.WriteJSON(w, http.StatusOK, map[string]any{"actions": toActionResponses(events)})
}

func (h *Handler) handleRecordDeposit(w http.ResponseWriter, r *http.Request) {
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

	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	amount, err := parseAmount(req.Amount, "amount")
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	contract, err := h.escrow.RecordDeposit(ctx, escrowID, wallet, amount, req.Token, req.TxRef)
	if err != nil {
		h.logFailure(ctx, "failed to record deposit", err)
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, toContractResponse(contract))
}

func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
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

	contract, err := h.escrow.ConfirmCompletion(ctx, escrowID, wallet)
	if err != nil {
		h.logFailure(ctx, "failed to confirm completion", err)
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, toContractResponse(contract))
}

func (h *Handler) handleRetrySwap(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.actorWallet(ctx, w); !ok {
		return
	}
	escrowID, err := id.ParseEscrowID(chi.URLParam(r, "escrowID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	contract, err := h.escrow.RetrySwap(ctx, escrowID)
	if err != nil {
		h.logFailure(ctx, "failed to retry swap", err)
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, toContractResponse(contract))
}

func (h *Handler) handleSubmitWork(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	wallet, ok := h.actorWallet(ctx, w)
	if !ok {
		return
	}
	escrowID, milestoneID, err := milestoneParams(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req submitWorkRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
			return
		}
	}

	milestone, err := h.escrow.SubmitMilestoneWork(ctx, escrowID, milestoneID, wallet, req.Notes, req.EvidenceRefs)
	if err != nil {
		h.logFailure(ctx, "failed to submit milestone work", err)
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, toMilestoneResponse(milestone))
}

func (h *Handler) handleApproveMilestone(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	wallet, ok := h.actorWallet(ctx, w)
	if !ok {
		return
	}
	escrowID, milestoneID, err := milestoneParams(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	milestone, err := h.escrow.ApproveMilestone(ctx, escrowID, milestoneID, wallet)
	if err != nil {
		h.logFailure(ctx, "failed to approve milestone", err)
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, toMilestoneResponse(milestone))
}

// actorWallet pulls the authenticated wallet set by RequireAuth. A miss means
// the middleware chain is misconfigured, not a client error.
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

func (h *Handler) toCreateInput(buyerWallet string, req createEscrowRequest) (service.CreateInput, error) {
	buyerAmount, err := parseAmount(req.BuyerAmount, "buyer_amount")
	if err != nil {
		return service.CreateInput{}, err
	}

	sellerAmount := decimal.Zero
	if req.SellerAmount != "" {
		sellerAmount, err = parseAmount(req.SellerAmount, "seller_amount")
		if err != nil {
			return service.CreateInput{}, err
		}
	}

	plans := make([]models.MilestonePlan, 0, len(req.Milestones))
	for _, p := range req.Milestones {
		pct, err := parseAmount(p.Percentage, "milestone percentage")
		if err != nil {
			return service.CreateInput{}, err
		}
		plans = append(plans, models.MilestonePlan{Order: p.Order, Percentage: pct})
	}

	return service.CreateInput{
		Kind:         models.Kind(req.Kind),
		BuyerWallet:  buyerWallet,
		SellerWallet: req.SellerWallet,
		Token:        req.Token,
		SellerToken:  req.SellerToken,
		BuyerAmount:  buyerAmount,
		SellerAmount: sellerAmount,
		ExpiresAt:    req.ExpiresAt,
		Milestones:   plans,
	}, nil
}

func milestoneParams(r *http.Request) (id.EscrowID, id.MilestoneID, error) {
	escrowID, err := id.ParseEscrowID(chi.URLParam(r, "escrowID"))
	if err != nil {
		return id.EscrowID{}, id.MilestoneID{}, err
	}
	milestoneID, err := id.ParseMilestoneID(chi.URLParam(r, "milestoneID"))
	if err != nil {
		return id.EscrowID{}, id.MilestoneID{}, err
	}
	return escrowID, milestoneID, nil
}

func parseAmount(raw, field string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, dErrors.Newf(dErrors.CodeValidation, "%s is required", field)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, dErrors.Newf(dErrors.CodeValidation, "%s must be a decimal string", field)
	}
	return d, nil
}
