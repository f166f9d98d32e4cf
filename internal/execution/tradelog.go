package execution

import (
	"context"
	"sync"

	"arbitron/internal/model"
)

// TradeLog is an append-only store of trade records.
type TradeLog interface {
	LogTrade(ctx context.Context, trade model.TradeRecord) error
	RecentTrades(ctx context.Context, limit int) ([]model.TradeRecord, error)
}

// MemoryTradeLog keeps the most recent trades in a fixed-size ring.
type MemoryTradeLog struct {
	mu     sync.Mutex
	buf    []model.TradeRecord
	next   int
	filled bool
}

func NewMemoryTradeLog(capacity int) *MemoryTradeLog {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MemoryTradeLog{buf: make([]model.TradeRecord, capacity)}
}

func (l *MemoryTradeLog) LogTrade(_ context.Context, trade model.TradeRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf[l.next] = trade
	l.next = (l.next + 1) % len(l.buf)
	if l.next == 0 {
		l.filled = true
	}
	return nil
}

// RecentTrades returns up to limit trades, newest first.
func (l *MemoryTradeLog) RecentTrades(_ context.Context, limit int) ([]model.TradeRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	size := l.next
	if l.filled {
		size = len(l.buf)
	}
	if limit > size {
		limit = size
	}
	out := make([]model.TradeRecord, 0, max(limit, 0))
	for i := 0; i < limit; i++ {
		idx := (l.next - 1 - i + len(l.buf)) % len(l.buf)
		out = append(out, l.buf[idx])
	}
	return out, nil
}
