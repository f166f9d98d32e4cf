package risk

import (
	"context"
	"fmt"
	"sync"

	"arbitron/internal/model"
)

// LedgerStore persists one LedgerEntry per UTC day. LoadLedger returns an
// error wrapping model.ErrNotFound when the day has no entry yet.
type LedgerStore interface {
	LoadLedger(ctx context.Context, day string) (model.LedgerEntry, error)
	SaveLedger(ctx context.Context, entry model.LedgerEntry) error
}

// MemoryLedger is a process-local LedgerStore.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[string]model.LedgerEntry
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[string]model.LedgerEntry)}
}

func (m *MemoryLedger) LoadLedger(_ context.Context, day string) (model.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[day]
	if !ok {
		return model.LedgerEntry{}, fmt.Errorf("ledger %s: %w", day, model.ErrNotFound)
	}
	return e, nil
}

func (m *MemoryLedger) SaveLedger(_ context.Context, entry model.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.Date] = entry
	return nil
}
