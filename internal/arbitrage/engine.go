package arbitrage

import (
	"log/slog"

	"arbitron/internal/model"
)

// ArbitrageEngine holds the logic for identifying arbitrage opportunities.
// Detection is pure: it only reads the snapshot it is handed and may be
// called concurrently.
type ArbitrageEngine struct {
	logger            *slog.Logger
	fees              *FeeSchedule
	collapseRotations bool
}

// Option customises an ArbitrageEngine.
type Option func(*ArbitrageEngine)

// WithCollapsedRotations reports each triangular cycle once instead of once
// per starting asset.
func WithCollapsedRotations(on bool) Option {
	return func(e *ArbitrageEngine) { e.collapseRotations = on }
}

// NewArbitrageEngine creates a new instance of the ArbitrageEngine.
func NewArbitrageEngine(logger *slog.Logger, fees *FeeSchedule, opts ...Option) *ArbitrageEngine {
	e := &ArbitrageEngine{
		logger: logger,
		fees:   fees,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Fees returns the schedule the engine prices with.
func (e *ArbitrageEngine) Fees() *FeeSchedule { return e.fees }

// DetectAll runs the simple detector and the triangular detector for every
// venue of the snapshot. Simple opportunities come first, each group in its
// detector's order.
func (e *ArbitrageEngine) DetectAll(snap model.Snapshot, minProfitPercent float64) ([]model.Opportunity, error) {
	opps, err := e.DetectSimple(snap, minProfitPercent)
	if err != nil {
		return nil, err
	}
	for _, venue := range snap.Venues() {
		tri, err := e.DetectTriangular(snap, venue, minProfitPercent)
		if err != nil {
			return nil, err
		}
		opps = append(opps, tri...)
	}
	return opps, nil
}
