// Package notify delivers best-effort lifecycle notifications to escrow
// parties. Delivery failures are logged and never fail the transition that
// triggered them.
package notify

import (
	"context"
	"sync"
	"time"
)

// Event types published to parties.
const (
	EventDepositReceived   = "deposit_received"
	EventFullyFunded       = "fully_funded"
	EventConfirmationMade  = "confirmation_made"
	EventEscrowCompleted   = "escrow_completed"
	EventMilestoneUpdate   = "milestone_update"
	EventDisputeRaised     = "dispute_raised"
	EventDisputeResolved   = "dispute_resolved"
	EventEscrowExpired     = "escrow_expired"
	EventSettlementProblem = "settlement_problem"
)

// Notification is one message for one recipient wallet.
type Notification struct {
	Recipient string            `json:"recipient"`
	EventType string            `json:"event_type"`
	Payload   map[string]string `json:"payload,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Dispatcher is the delivery port. Implementations must not block the
// caller beyond the context deadline.
type Dispatcher interface {
	Enqueue(ctx context.Context, recipient, eventType string, payload map[string]string) error
}

// Memory collects notifications in process. Used by tests and the in-memory
// server mode; List exposes the queue for inspection.
type Memory struct {
	mu    sync.Mutex
	queue []Notification
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Enqueue(_ context.Context, recipient, eventType string, payload map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, Notification{
		Recipient: recipient,
		EventType: eventType,
		Payload:   payload,
		CreatedAt: time.Now(),
	})
	return nil
}

// List returns notifications for a recipient, oldest first.
func (m *Memory) List(recipient string) []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Notification
	for _, n := range m.queue {
		if n.Recipient == recipient {
			out = append(out, n)
		}
	}
	return out
}
