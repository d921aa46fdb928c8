// Package store persists disputes, evidence, and admin actions. Disputes are
// created through a scope gate: at most one open dispute may exist for an
// escrow (or for a single milestone) at a time.
package store

import (
	"context"
	"sort"
	"sync"

	id "paylink/pkg/domain"
	"paylink/pkg/platform/sentinel"

	"paylink/internal/dispute/models"
)

// InMemory is the map-backed dispute store used by unit tests and the
// in-memory server mode.
type InMemory struct {
	mu           sync.RWMutex
	disputes     map[id.DisputeID]*models.Dispute
	evidence     map[id.DisputeID][]*models.Evidence
	adminActions map[id.EscrowID][]*models.AdminAction
}

func NewInMemory() *InMemory {
	return &InMemory{
		disputes:     make(map[id.DisputeID]*models.Dispute),
		evidence:     make(map[id.DisputeID][]*models.Evidence),
		adminActions: make(map[id.EscrowID][]*models.AdminAction),
	}
}

// CreateIfNoneOpen inserts the dispute unless its scope already has an open
// one, in which case ErrConflict is returned. The check and insert are one
// critical section so concurrent raisers cannot both win.
func (s *InMemory) CreateIfNoneOpen(_ context.Context, d *models.Dispute) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.disputes {
		if existing.EscrowID != d.EscrowID || !existing.Open() {
			continue
		}
		if sameScope(existing.MilestoneID, d.MilestoneID) {
			return sentinel.ErrConflict
		}
	}
	s.disputes[d.ID] = d.Clone()
	return nil
}

func sameScope(a, b *id.MilestoneID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (s *InMemory) FindByID(_ context.Context, disputeID id.DisputeID) (*models.Dispute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.disputes[disputeID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return d.Clone(), nil
}

// UpdateIf persists the dispute conditionally on the status the caller read.
func (s *InMemory) UpdateIf(_ context.Context, d *models.Dispute, expectedStatus models.DisputeStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.disputes[d.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Status != expectedStatus {
		return sentinel.ErrConflict
	}
	s.disputes[d.ID] = d.Clone()
	return nil
}

// ListOpen returns open and under-review disputes, high priority first, then
// oldest first within a priority.
func (s *InMemory) ListOpen(_ context.Context) ([]*models.Dispute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Dispute
	for _, d := range s.disputes {
		if d.Open() {
			out = append(out, d.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return priorityRank(out[i].Priority) > priorityRank(out[j].Priority)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func priorityRank(p models.Priority) int {
	switch p {
	case models.PriorityHigh:
		return 2
	case models.PriorityNormal:
		return 1
	default:
		return 0
	}
}

func (s *InMemory) ListByEscrow(_ context.Context, escrowID id.EscrowID) ([]*models.Dispute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Dispute
	for _, d := range s.disputes {
		if d.EscrowID == escrowID {
			out = append(out, d.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// AppendEvidence attaches a record; evidence is append-only.
func (s *InMemory) AppendEvidence(_ context.Context, e *models.Evidence) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.disputes[e.DisputeID]; !ok {
		return sentinel.ErrNotFound
	}
	copied := *e
	s.evidence[e.DisputeID] = append(s.evidence[e.DisputeID], &copied)
	return nil
}

func (s *InMemory) ListEvidence(_ context.Context, disputeID id.DisputeID) ([]*models.Evidence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.evidence[disputeID]
	out := make([]*models.Evidence, 0, len(records))
	for _, e := range records {
		copied := *e
		out = append(out, &copied)
	}
	return out, nil
}

// AppendAdminAction records a privileged decision. Rows are immutable.
func (s *InMemory) AppendAdminAction(_ context.Context, a *models.AdminAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *a
	copied.SettlementRefs = append([]string(nil), a.SettlementRefs...)
	s.adminActions[a.EscrowID] = append(s.adminActions[a.EscrowID], &copied)
	return nil
}

func (s *InMemory) ListAdminActions(_ context.Context, escrowID id.EscrowID) ([]*models.AdminAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.adminActions[escrowID]
	out := make([]*models.AdminAction, 0, len(records))
	for _, a := range records {
		copied := *a
		copied.SettlementRefs = append([]string(nil), a.SettlementRefs...)
		out = append(out, &copied)
	}
	return out, nil
}
