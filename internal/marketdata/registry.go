package marketdata

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"arbitron/internal/exchange"
	"arbitron/internal/model"
)

// VenueStatus is the result of the last connection check against a venue.
type VenueStatus struct {
	Venue       string
	Connected   bool
	LastChecked time.Time
}

// Registry maps venue names to connectors. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	connectors map[string]exchange.ExchangeClient
	status     map[string]VenueStatus
	now        func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		connectors: make(map[string]exchange.ExchangeClient),
		status:     make(map[string]VenueStatus),
		now:        time.Now,
	}
}

// Register adds a connector under its own name, replacing any previous one.
func (r *Registry) Register(c exchange.ExchangeClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectors[c.GetName()] = c
}

// Get returns the connector for venue or an error wrapping
// model.ErrConnectorUnavailable.
func (r *Registry) Get(venue string) (exchange.ExchangeClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.connectors[venue]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrConnectorUnavailable, venue)
	}
	return c, nil
}

// Names returns the registered venues in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.connectors))
	for n := range r.connectors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// CheckAll runs TestConnection on every connector and records the outcome.
func (r *Registry) CheckAll(ctx context.Context) []VenueStatus {
	out := make([]VenueStatus, 0)
	for _, name := range r.Names() {
		c, err := r.Get(name)
		if err != nil {
			continue
		}
		st := VenueStatus{Venue: name, Connected: c.TestConnection(ctx), LastChecked: r.now()}
		r.mu.Lock()
		r.status[name] = st
		r.mu.Unlock()
		out = append(out, st)
	}
	return out
}

// Status returns the last recorded check for every venue; venues never
// checked report Connected false and a zero LastChecked.
func (r *Registry) Status() []VenueStatus {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]VenueStatus, 0, len(names))
	for _, name := range names {
		st, ok := r.status[name]
		if !ok {
			st = VenueStatus{Venue: name}
		}
		out = append(out, st)
	}
	return out
}
