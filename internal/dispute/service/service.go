// Package service implements dispute intake, evidence collection, and the
// admin resolution path. Raising a dispute freezes its scope; only an admin
// decision unfreezes it.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	id "paylink/pkg/domain"
	dErrors "paylink/pkg/domain-errors"
	"paylink/pkg/platform/audit"
	"paylink/pkg/platform/sentinel"
	"paylink/pkg/requestcontext"

	dmodels "paylink/internal/dispute/models"
	emodels "paylink/internal/escrow/models"
	"paylink/internal/notify"
	"paylink/internal/settlement"
)

const conflictRetries = 3

type DisputeStore interface {
	CreateIfNoneOpen(ctx context.Context, d *dmodels.Dispute) error
	FindByID(ctx context.Context, disputeID id.DisputeID) (*dmodels.Dispute, error)
	UpdateIf(ctx context.Context, d *dmodels.Dispute, expectedStatus dmodels.DisputeStatus) error
	ListOpen(ctx context.Context) ([]*dmodels.Dispute, error)
	ListByEscrow(ctx context.Context, escrowID id.EscrowID) ([]*dmodels.Dispute, error)
	AppendEvidence(ctx context.Context, e *dmodels.Evidence) error
	ListEvidence(ctx context.Context, disputeID id.DisputeID) ([]*dmodels.Evidence, error)
	AppendAdminAction(ctx context.Context, a *dmodels.AdminAction) error
	ListAdminActions(ctx context.Context, escrowID id.EscrowID) ([]*dmodels.AdminAction, error)
}

type ContractStore interface {
	FindByID(ctx context.Context, escrowID id.EscrowID) (*emodels.Contract, error)
	UpdateIf(ctx context.Context, c *emodels.Contract, expectedVersion int64) error
}

type MilestoneStore interface {
	FindByID(ctx context.Context, milestoneID id.MilestoneID) (*emodels.Milestone, error)
	UpdateIf(ctx context.Context, m *emodels.Milestone, expectedStatus emodels.MilestoneStatus) error
	ListByEscrow(ctx context.Context, escrowID id.EscrowID) ([]*emodels.Milestone, error)
}

type Settler interface {
	Settle(ctx context.Context, escrowID id.EscrowID, purpose string, legs []settlement.Leg) (settlement.Result, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service orchestrates the dispute lifecycle.
type Service struct {
	disputes   DisputeStore
	contracts  ContractStore
	milestones MilestoneStore
	settler    Settler

	vaultWallet string

	logger         *slog.Logger
	auditPublisher AuditPublisher
	notifier       notify.Dispatcher
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

func WithClock(nowFn func() time.Time) Option {
	return func(s *Service) {
		if nowFn != nil {
			s.nowFn = nowFn
		}
	}
}

// New constructs a Service.
func New(disputes DisputeStore, contracts ContractStore, milestones MilestoneStore, settler Settler, vaultWallet string, opts ...Option) *Service {
	s := &Service{
		disputes:    disputes,
		contracts:   contracts,
		milestones:  milestones,
		settler:     settler,
		vaultWallet: vaultWallet,
		logger:      slog.Default(),
		nowFn:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RaiseDispute opens a dispute and freezes its scope. The store's scope gate
// guarantees at most one open dispute per scope even under concurrent raises.
func (s *Service) RaiseDispute(ctx context.Context, escrowID id.EscrowID, milestoneID *id.MilestoneID, wallet, reason, description string) (*dmodels.Dispute, error) {
	contract, err := s.findContract(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	role, err := contract.RoleOf(wallet)
	if err != nil {
		return nil, err
	}

	if milestoneID != nil {
		if contract.Kind != emodels.KindMilestone {
			return nil, dErrors.New(dErrors.CodeValidation, "escrow has no milestones to dispute")
		}
		milestone, err := s.findMilestone(ctx, escrowID, *milestoneID)
		if err != nil {
			return nil, err
		}
		if milestone.Status == emodels.MilestoneApproved {
			return nil, dErrors.New(dErrors.CodeInvalidTransition, "cannot dispute an approved milestone")
		}
	} else {
		if contract.Kind == emodels.KindAtomicSwap {
			return nil, dErrors.New(dErrors.CodeInvalidTransition, "atomic swaps have no dispute path")
		}
		if contract.Status.IsTerminal() {
			return nil, dErrors.Newf(dErrors.CodeInvalidTransition, "cannot dispute %s escrow", contract.Status)
		}
	}

	dispute, err := dmodels.NewDispute(escrowID, milestoneID, wallet, string(role),
		reason, description, contract.BuyerAmount, s.nowFn())
	if err != nil {
		return nil, err
	}

	if err := s.disputes.CreateIfNoneOpen(ctx, dispute); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "an open dispute already exists for this scope")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create dispute")
	}

	if milestoneID != nil {
		err = s.freezeMilestone(ctx, *milestoneID)
	} else {
		err = s.freezeEscrow(ctx, contract)
	}
	if err != nil {
		// The scope raced into an un-disputable state; close the record so
		// the gate reopens.
		s.closeDispute(ctx, dispute)
		return nil, err
	}

	s.logAudit(ctx, escrowID, wallet, audit.ActionDisputeRaised, description,
		map[string]string{"dispute_id": dispute.ID.String(), "reason": reason, "priority": string(dispute.Priority)})

	other := contract.SellerWallet
	if role == emodels.RoleSeller {
		other = contract.BuyerWallet
	}
	s.notifyParty(ctx, other, notify.EventDisputeRaised, map[string]string{
		"escrow_id":  escrowID.String(),
		"dispute_id": dispute.ID.String(),
	})
	return dispute, nil
}

// SubmitEvidence appends an evidence record to an open dispute. Evidence
// never mutates dispute or escrow state.
func (s *Service) SubmitEvidence(ctx context.Context, disputeID id.DisputeID, wallet string, evidenceType dmodels.EvidenceType, content, fileRef string) (*dmodels.Evidence, error) {
	dispute, err := s.findDispute(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if !dispute.Open() {
		return nil, dErrors.Newf(dErrors.CodeInvalidTransition, "cannot submit evidence on %s dispute", dispute.Status)
	}
	contract, err := s.findContract(ctx, dispute.EscrowID)
	if err != nil {
		return nil, err
	}
	role, err := contract.RoleOf(wallet)
	if err != nil {
		return nil, err
	}

	evidence, err := dmodels.NewEvidence(disputeID, dispute.EscrowID, wallet,
		string(role), evidenceType, content, fileRef, s.nowFn())
	if err != nil {
		return nil, err
	}
	if err := s.disputes.AppendEvidence(ctx, evidence); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "dispute not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store evidence")
	}

	s.logAudit(ctx, dispute.EscrowID, wallet, audit.ActionEvidenceSubmitted, "",
		map[string]string{"dispute_id": disputeID.String(), "evidence_id": evidence.ID.String(), "type": string(evidenceType)})
	return evidence, nil
}

// GetDispute returns the dispute with its evidence. Parties and admins read
// through the same path; the handler enforces who may call.
func (s *Service) GetDispute(ctx context.Context, disputeID id.DisputeID) (*dmodels.Dispute, []*dmodels.Evidence, error) {
	dispute, err := s.findDispute(ctx, disputeID)
	if err != nil {
		return nil, nil, err
	}
	evidence, err := s.disputes.ListEvidence(ctx, disputeID)
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list evidence")
	}
	return dispute, evidence, nil
}

// AssertParty fails CodeForbidden unless the wallet is the buyer or seller
// of the escrow. Transports use it to gate dispute reads.
func (s *Service) AssertParty(ctx context.Context, escrowID id.EscrowID, wallet string) error {
	contract, err := s.findContract(ctx, escrowID)
	if err != nil {
		return err
	}
	_, err = contract.RoleOf(wallet)
	return err
}

// ListOpenDisputes is the admin queue, high priority first.
func (s *Service) ListOpenDisputes(ctx context.Context) ([]*dmodels.Dispute, error) {
	disputes, err := s.disputes.ListOpen(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list disputes")
	}
	return disputes, nil
}

// ListAdminActions returns the privileged decision history for an escrow.
func (s *Service) ListAdminActions(ctx context.Context, escrowID id.EscrowID) ([]*dmodels.AdminAction, error) {
	actions, err := s.disputes.ListAdminActions(ctx, escrowID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list admin actions")
	}
	return actions, nil
}

func (s *Service) freezeEscrow(ctx context.Context, contract *emodels.Contract) error {
	for attempt := 0; ; attempt++ {
		expectedVersion := contract.Version
		if err := contract.MarkDisputed(s.nowFn()); err != nil {
			// An "other" resolution leaves the escrow frozen; a follow-up
			// round reuses the existing freeze.
			if dErrors.HasCode(err, dErrors.CodeConflict) {
				return nil
			}
			return err
		}
		err := s.contracts.UpdateIf(ctx, contract, expectedVersion)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to freeze escrow")
		}
		if attempt >= conflictRetries {
			return dErrors.New(dErrors.CodeConcurrentModification, "escrow was modified concurrently, retry")
		}
		reloaded, err := s.findContract(ctx, contract.ID)
		if err != nil {
			return err
		}
		*contract = *reloaded
	}
}

func (s *Service) freezeMilestone(ctx context.Context, milestoneID id.MilestoneID) error {
	for attempt := 0; ; attempt++ {
		milestone, err := s.milestones.FindByID(ctx, milestoneID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load milestone")
		}
		expectedStatus := milestone.Status
		if err := milestone.MarkDisputed(s.nowFn()); err != nil {
			if dErrors.HasCode(err, dErrors.CodeConflict) {
				return nil
			}
			return err
		}
		err = s.milestones.UpdateIf(ctx, milestone, expectedStatus)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to freeze milestone")
		}
		if attempt >= conflictRetries {
			return dErrors.New(dErrors.CodeConcurrentModification, "milestone was modified concurrently, retry")
		}
	}
}

func (s *Service) closeDispute(ctx context.Context, dispute *dmodels.Dispute) {
	dispute.Status = dmodels.DisputeClosed
	dispute.UpdatedAt = s.nowFn()
	if err := s.disputes.UpdateIf(ctx, dispute, dmodels.DisputeOpen); err != nil {
		s.logger.ErrorContext(ctx, "failed to close orphaned dispute",
			"dispute_id", dispute.ID, "error", err)
	}
}

func (s *Service) findDispute(ctx context.Context, disputeID id.DisputeID) (*dmodels.Dispute, error) {
	dispute, err := s.disputes.FindByID(ctx, disputeID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "dispute not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load dispute")
	}
	return dispute, nil
}

func (s *Service) findContract(ctx context.Context, escrowID id.EscrowID) (*emodels.Contract, error) {
	contract, err := s.contracts.FindByID(ctx, escrowID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "escrow not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load escrow")
	}
	return contract, nil
}

func (s *Service) findMilestone(ctx context.Context, escrowID id.EscrowID, milestoneID id.MilestoneID) (*emodels.Milestone, error) {
	milestone, err := s.milestones.FindByID(ctx, milestoneID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "milestone not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load milestone")
	}
	if milestone.EscrowID != escrowID {
		return nil, dErrors.New(dErrors.CodeNotFound, "milestone not found")
	}
	return milestone, nil
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

func (s *Service) notifyParty(ctx context.Context, recipient, eventType string, payload map[string]string) {
	if s.notifier == nil || recipient == "" {
		return
	}
	if err := s.notifier.Enqueue(ctx, recipient, eventType, payload); err != nil {
		s.logger.WarnContext(ctx, "notification delivery failed",
			"recipient", recipient, "event_type", eventType, "error", err)
	}
}
