// Package service implements the escrow lifecycle engine. It owns every
// contract transition; stores persist, the settlement executor moves funds,
// and nothing else mutates escrow state.
package service

import (
	"context"
	"log/slog"
	"time"

	id "paylink/pkg/domain"
	"paylink/pkg/platform/audit"
	"paylink/pkg/requestcontext"

	"paylink/internal/escrow/metrics"
	"paylink/internal/escrow/models"
	"paylink/internal/notify"
	"paylink/internal/settlement"
)

// conflictRetries bounds read-modify-write retries after a lost conditional
// write. Past this the caller gets the conflict.
const conflictRetries = 3

// observationTTL bounds how long a deposit observation key lives in the
// dedupe set.
const observationTTL = 30 * 24 * time.Hour

type ContractStore interface {
	Create(ctx context.Context, c *models.Contract) error
	FindByID(ctx context.Context, escrowID id.EscrowID) (*models.Contract, error)
	UpdateIf(ctx context.Context, c *models.Contract, expectedVersion int64) error
	ListByWallet(ctx context.Context, wallet string) ([]*models.Contract, error)
	ListSweepable(ctx context.Context, now time.Time, limit int) ([]*models.Contract, error)
}

type MilestoneStore interface {
	CreateBatch(ctx context.Context, milestones []*models.Milestone) error
	FindByID(ctx context.Context, milestoneID id.MilestoneID) (*models.Milestone, error)
	UpdateIf(ctx context.Context, m *models.Milestone, expectedStatus models.MilestoneStatus) error
	ListByEscrow(ctx context.Context, escrowID id.EscrowID) ([]*models.Milestone, error)
}

type ObservationStore interface {
	MarkObserved(ctx context.Context, escrowID id.EscrowID, role, txRef string, ttl time.Duration) (bool, error)
}

// Settler executes fund movements under an idempotency claim.
type Settler interface {
	Settle(ctx context.Context, escrowID id.EscrowID, purpose string, legs []settlement.Leg) (settlement.Result, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service orchestrates escrow contracts, milestones, and settlements.
type Service struct {
	contracts    ContractStore
	milestones   MilestoneStore
	observations ObservationStore
	settler      Settler

	// vaultWallet is the custody wallet all deposits sit in and all
	// settlements pay out of.
	vaultWallet string

	logger         *slog.Logger
	auditPublisher AuditPublisher
	notifier       notify.Dispatcher
	metrics        *metrics.Metrics
	nowFn          func() time.Time
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithNotifier(dispatcher notify.Dispatcher) Option {
	return func(s *Service) {
		s.notifier = dispatcher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithClock(nowFn func() time.Time) Option {
	return func(s *Service) {
		if nowFn != nil {
			s.nowFn = nowFn
		}
	}
}

// New constructs a Service.
func New(contracts ContractStore, milestones MilestoneStore, observations ObservationStore, settler Settler, vaultWallet string, opts ...Option) *Service {
	s := &Service{
		contracts:    contracts,
		milestones:   milestones,
		observations: observations,
		settler:      settler,
		vaultWallet:  vaultWallet,
		logger:       slog.Default(),
		nowFn:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) logAudit(ctx context.Context, escrowID id.EscrowID, actor string, action audit.Action, notes string, metadata map[string]string) {
	args := []any{"escrow_id", escrowID, "actor", actor, "event", action, "log_type", "audit"}
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		args = append(args, "request_id", requestID)
	}
	s.logger.InfoContext(ctx, string(action), args...)

	if s.auditPublisher == nil {
		return
	}
	if device := requestcontext.Device(ctx); device != "" {
		if metadata == nil {
			metadata = map[string]string{}
		}
		metadata["device"] = device
	}
	_ = s.auditPublisher.Emit(ctx, audit.Event{
		Timestamp: s.nowFn(),
		EscrowID:  escrowID,
		Actor:     actor,
		Action:    string(action),
		Notes:     notes,
		RequestID: requestcontext.RequestID(ctx),
		Metadata:  metadata,
	})
}

// notifyParty delivers best-effort; a dead broker never fails a transition.
func (s *Service) notifyParty(ctx context.Context, recipient, eventType string, payload map[string]string) {
	if s.notifier == nil || recipient == "" {
		return
	}
	if err := s.notifier.Enqueue(ctx, recipient, eventType, payload); err != nil {
		s.logger.WarnContext(ctx, "notification delivery failed",
			"recipient", recipient, "event_type", eventType, "error", err)
	}
}

func (s *Service) incrementConflict() {
	if s.metrics != nil {
		s.metrics.ConflictRetries.Inc()
	}
}
