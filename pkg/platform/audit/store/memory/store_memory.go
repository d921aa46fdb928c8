package memory

import (
	"context"
	"sync"

	id "paylink/pkg/domain"
	audit "paylink/pkg/platform/audit"
)

// InMemoryStore keeps the action trail per escrow. Intended for tests and
// single-process deployments.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[id.EscrowID][]audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[id.EscrowID][]audit.Event)}
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.EscrowID] = append(s.events[event.EscrowID], event)
	return nil
}

func (s *InMemoryStore) ListByEscrow(_ context.Context, escrowID id.EscrowID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events[escrowID]...), nil
}

// ListAll returns all events across escrows (admin-only operation).
func (s *InMemoryStore) ListAll(_ context.Context) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []audit.Event
	for _, events := range s.events {
		all = append(all, events...)
	}
	return all, nil
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make(map[id.EscrowID][]audit.Event)
}
