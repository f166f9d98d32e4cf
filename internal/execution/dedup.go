package execution

import (
	"context"
	"sync"
	"time"
)

// Dedup claims opportunity IDs. Claim returns false when id was already
// claimed within the retention window.
type Dedup interface {
	Claim(ctx context.Context, id string) (bool, error)
}

// MemoryDedup is a process-local Dedup. It is safe for concurrent use.
type MemoryDedup struct {
	seen map[string]time.Time // opportunity ID -> claimed at
	ttl  time.Duration
	now  func() time.Time
	mu   sync.Mutex
}

// NewMemoryDedup creates a MemoryDedup that remembers IDs for ttl.
func NewMemoryDedup(ttl time.Duration) *MemoryDedup {
	return &MemoryDedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

func (d *MemoryDedup) Claim(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if at, ok := d.seen[id]; ok && now.Sub(at) < d.ttl {
		return false, nil
	}
	d.seen[id] = now
	return true, nil
}

// Cleanup drops expired IDs. Call it periodically.
func (d *MemoryDedup) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for id, at := range d.seen {
		if now.Sub(at) >= d.ttl {
			delete(d.seen, id)
		}
	}
}

// Len is the number of IDs currently retained.
func (d *MemoryDedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
