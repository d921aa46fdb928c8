package claims

import (
	"context"
	"sync"
	"time"

	id "paylink/pkg/domain"
	"paylink/pkg/platform/sentinel"
)

type claimKey struct {
	escrowID id.EscrowID
	purpose  string
}

// InMemory is the map-backed claim table for unit tests and single-node runs.
type InMemory struct {
	mu    sync.Mutex
	byKey map[claimKey]*Claim
	byID  map[id.ClaimID]*Claim
}

func NewInMemory() *InMemory {
	return &InMemory{
		byKey: make(map[claimKey]*Claim),
		byID:  make(map[id.ClaimID]*Claim),
	}
}

func (s *InMemory) Acquire(_ context.Context, escrowID id.EscrowID, purpose string, now time.Time) (*Claim, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := claimKey{escrowID: escrowID, purpose: purpose}
	if existing, ok := s.byKey[k]; ok {
		if existing.State == StateFailed {
			existing.State = StatePending
			existing.FailureReason = ""
			existing.UpdatedAt = now
			return existing.Clone(), true, nil
		}
		return existing.Clone(), false, nil
	}

	claim := &Claim{
		ID:        id.NewClaimID(),
		EscrowID:  escrowID,
		Purpose:   purpose,
		State:     StatePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.byKey[k] = claim
	s.byID[claim.ID] = claim
	return claim.Clone(), true, nil
}

func (s *InMemory) MarkCompleted(_ context.Context, claimID id.ClaimID, refs []string, now time.Time) error {
	return s.finish(claimID, StateCompleted, refs, "", now)
}

func (s *InMemory) MarkFailed(_ context.Context, claimID id.ClaimID, reason string, now time.Time) error {
	return s.finish(claimID, StateFailed, nil, reason, now)
}

func (s *InMemory) MarkPartial(_ context.Context, claimID id.ClaimID, refs []string, reason string, now time.Time) error {
	return s.finish(claimID, StatePartial, refs, reason, now)
}

func (s *InMemory) finish(claimID id.ClaimID, state State, refs []string, reason string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	claim, ok := s.byID[claimID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if claim.State != StatePending {
		return sentinel.ErrInvalidState
	}
	claim.State = state
	claim.Refs = append([]string(nil), refs...)
	claim.FailureReason = reason
	claim.UpdatedAt = now
	return nil
}
