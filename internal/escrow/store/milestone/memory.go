// Package milestone persists milestone child rows. Milestones use a
// status-conditioned write rather than a version counter: each milestone has
// exactly one writer path per status, so the status itself is the fence.
package milestone

import (
	"context"
	"sort"
	"sync"

	id "paylink/pkg/domain"
	"paylink/pkg/platform/sentinel"

	"paylink/internal/escrow/models"
)

// InMemory is the map-backed milestone store used by unit tests and the
// in-memory server mode.
type InMemory struct {
	mu         sync.RWMutex
	milestones map[id.MilestoneID]*models.Milestone
}

func NewInMemory() *InMemory {
	return &InMemory{milestones: make(map[id.MilestoneID]*models.Milestone)}
}

// CreateBatch inserts all milestones of a new escrow. All-or-nothing.
func (s *InMemory) CreateBatch(_ context.Context, milestones []*models.Milestone) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range milestones {
		if _, exists := s.milestones[m.ID]; exists {
			return sentinel.ErrAlreadyUsed
		}
	}
	for _, m := range milestones {
		s.milestones[m.ID] = m.Clone()
	}
	return nil
}

func (s *InMemory) FindByID(_ context.Context, milestoneID id.MilestoneID) (*models.Milestone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.milestones[milestoneID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return m.Clone(), nil
}

// UpdateIf persists m only while the stored status still equals
// expectedStatus. A concurrent transition surfaces as ErrConflict.
func (s *InMemory) UpdateIf(_ context.Context, m *models.Milestone, expectedStatus models.MilestoneStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.milestones[m.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Status != expectedStatus {
		return sentinel.ErrConflict
	}
	s.milestones[m.ID] = m.Clone()
	return nil
}

// ListByEscrow returns the escrow's milestones in plan order.
func (s *InMemory) ListByEscrow(_ context.Context, escrowID id.EscrowID) ([]*models.Milestone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Milestone
	for _, m := range s.milestones {
		if m.EscrowID == escrowID {
			out = append(out, m.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}
