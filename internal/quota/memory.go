package quota

import (
	"context"
	"sync"

	"tutor/internal/domain"
)

// MemoryLedger keeps ledgers in process memory. It serves development and
// tests; a single mutex makes each Consume atomic.
type MemoryLedger struct {
	mu      sync.Mutex
	ledgers map[string]domain.UsageLedger
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{ledgers: make(map[string]domain.UsageLedger)}
}

func (m *MemoryLedger) Consume(ctx context.Context, req domain.ConsumeRequest) (domain.ConsumeResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.ConsumeResult{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.ledgers[req.UserID]
	if !ok {
		current = domain.UsageLedger{UserID: req.UserID}
	}
	next, res := current.Consume(req)
	m.ledgers[req.UserID] = next
	return res, nil
}

func (m *MemoryLedger) Get(ctx context.Context, userID string) (domain.UsageLedger, error) {
	if err := ctx.Err(); err != nil {
		return domain.UsageLedger{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.ledgers[userID]
	if !ok {
		return domain.UsageLedger{UserID: userID}, nil
	}
	return l, nil
}

func (m *MemoryLedger) Reset(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.ledgers[userID]
	l.UserID = userID
	l.Count = 0
	l.ResetAt = nil
	m.ledgers[userID] = l
	return nil
}

var _ domain.LedgerStore = (*MemoryLedger)(nil)
