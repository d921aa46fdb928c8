// Package contract persists the escrow aggregate. All writes after creation
// are conditional on the version read, which is what makes the lifecycle
// engine safe under concurrent triggers.
package contract

import (
	"context"
	"sync"
	"time"

	id "paylink/pkg/domain"
	"paylink/pkg/platform/sentinel"

	"paylink/internal/escrow/models"
)

// InMemory keeps contracts in a locked map. Intended for tests and
// single-process deployments; the version check mirrors the Postgres
// conditional write exactly.
type InMemory struct {
	mu        sync.RWMutex
	contracts map[id.EscrowID]*models.Contract
}

func NewInMemory() *InMemory {
	return &InMemory{contracts: make(map[id.EscrowID]*models.Contract)}
}

func (s *InMemory) Create(_ context.Context, c *models.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contracts[c.ID]; ok {
		return sentinel.ErrAlreadyUsed
	}
	s.contracts[c.ID] = c.Clone()
	return nil
}

func (s *InMemory) FindByID(_ context.Context, escrowID id.EscrowID) (*models.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.contracts[escrowID]; ok {
		return c.Clone(), nil
	}
	return nil, sentinel.ErrNotFound
}

// UpdateIf persists c only if the stored version still equals
// expectedVersion. On success the version is bumped both in the store and on
// c; on a lost race it returns sentinel.ErrConflict and the caller reloads.
func (s *InMemory) UpdateIf(_ context.Context, c *models.Contract, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.contracts[c.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if stored.Version != expectedVersion {
		return sentinel.ErrConflict
	}
	c.Version = expectedVersion + 1
	s.contracts[c.ID] = c.Clone()
	return nil
}

func (s *InMemory) ListByWallet(_ context.Context, wallet string) ([]*models.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Contract
	for _, c := range s.contracts {
		if c.BuyerWallet == wallet || c.SellerWallet == wallet {
			out = append(out, c.Clone())
		}
	}
	return out, nil
}

// ListSweepable returns expired, under-funded, non-disputed contracts the
// sweeper should act on.
func (s *InMemory) ListSweepable(_ context.Context, now time.Time, limit int) ([]*models.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Contract
	for _, c := range s.contracts {
		if c.Sweepable(now) {
			out = append(out, c.Clone())
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}
