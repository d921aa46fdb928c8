// Package ledger provides an in-memory implementation of the settlement
// ledger port for development and tests. Production deployments swap in a
// chain or custodial backend behind the same interface.
package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dErrors "paylink/pkg/domain-errors"
)

// Transfer is one recorded fund movement.
type Transfer struct {
	Ref       string
	From      string
	To        string
	Amount    decimal.Decimal
	Token     string
	Timestamp time.Time
}

// Memory records transfers instead of moving real funds. Every call succeeds
// unless the amount is non-positive, mirroring what a custodial backend would
// reject outright.
type Memory struct {
	mu        sync.Mutex
	transfers []Transfer
	nowFn     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{nowFn: time.Now}
}

// Transfer records the movement and returns a unique ledger reference.
func (m *Memory) Transfer(_ context.Context, from, to string, amount decimal.Decimal, token string) (string, error) {
	if !amount.IsPositive() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "transfer amount must be positive")
	}
	ref := "xfer-" + uuid.NewString()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.transfers = append(m.transfers, Transfer{
		Ref:       ref,
		From:      from,
		To:        to,
		Amount:    amount,
		Token:     token,
		Timestamp: m.nowFn(),
	})
	return ref, nil
}

// Transfers returns a copy of everything recorded so far.
func (m *Memory) Transfers() []Transfer {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Transfer, len(m.transfers))
	copy(out, m.transfers)
	return out
}
