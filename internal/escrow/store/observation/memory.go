// Package observation deduplicates deposit observations. A deposit event may
// be delivered more than once (webhook retries, chain reorg replays); the
// first observer of a (escrow, role, tx ref) tuple wins and every replay is
// reported as already seen.
package observation

import (
	"context"
	"fmt"
	"sync"
	"time"

	id "paylink/pkg/domain"
)

func key(escrowID id.EscrowID, role, txRef string) string {
	return fmt.Sprintf("deposit:%s:%s:%s", escrowID, role, txRef)
}

// InMemory is the map-backed dedupe set for unit tests and single-node runs.
// Entries are never expired; the set is bounded by test lifetime.
type InMemory struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewInMemory() *InMemory {
	return &InMemory{seen: make(map[string]struct{})}
}

// MarkObserved records the observation and reports whether this caller was
// the first to see it.
func (s *InMemory) MarkObserved(_ context.Context, escrowID id.EscrowID, role, txRef string, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(escrowID, role, txRef)
	if _, ok := s.seen[k]; ok {
		return false, nil
	}
	s.seen[k] = struct{}{}
	return true, nil
}
