package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"arbitron/internal/arbitrage"
	"arbitron/internal/execution"
	"arbitron/internal/marketdata"
	"arbitron/internal/model"
)

// Request describes a synthetic backtest.
type Request struct {
	Venues         []string  `json:"venues"`
	Pairs          []string  `json:"pairs"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	InitialBalance float64   `json:"initial_balance"`
}

// Validate rejects requests that cannot produce a series.
func (r Request) Validate() error {
	switch {
	case len(r.Venues) == 0:
		return fmt.Errorf("%w: no venues", model.ErrInvalidRequest)
	case len(r.Pairs) == 0:
		return fmt.Errorf("%w: no pairs", model.ErrInvalidRequest)
	case r.End.Before(r.Start):
		return fmt.Errorf("%w: end %s before start %s", model.ErrInvalidRequest, r.End.Format(time.RFC3339), r.Start.Format(time.RFC3339))
	case !(r.InitialBalance > 0) || math.IsInf(r.InitialBalance, 0):
		return fmt.Errorf("%w: initial balance must be positive", model.ErrInvalidRequest)
	}
	for _, p := range r.Pairs {
		if _, _, ok := model.SplitPair(p); !ok {
			return fmt.Errorf("%w: malformed pair %q", model.ErrInvalidRequest, p)
		}
	}
	return nil
}

// Simulator replays snapshots through the detectors and a simulated
// dispatcher.
type Simulator struct {
	logger    *slog.Logger
	engine    *arbitrage.ArbitrageEngine
	gen       Generator
	minProfit float64
	volume    float64
}

func NewSimulator(logger *slog.Logger, engine *arbitrage.ArbitrageEngine, gen Generator, minProfitPercent, tradeVolume float64) *Simulator {
	return &Simulator{
		logger:    logger,
		engine:    engine,
		gen:       gen,
		minProfit: minProfitPercent,
		volume:    tradeVolume,
	}
}

// Run generates a synthetic series for req and replays it.
func (s *Simulator) Run(ctx context.Context, req Request) (model.BacktestResult, error) {
	if err := req.Validate(); err != nil {
		return model.BacktestResult{}, err
	}
	snaps := s.gen.Series(req.Venues, req.Pairs, req.Start, req.End)
	s.logger.Info("Backtest: running", "venues", req.Venues, "pairs", req.Pairs, "snapshots", len(snaps))
	return s.RunSeries(ctx, snaps, req.InitialBalance)
}

// RunSeries replays snaps in order. Every detected opportunity with a
// positive estimated profit is traded once.
func (s *Simulator) RunSeries(ctx context.Context, snaps []model.Snapshot, initialBalance float64) (model.BacktestResult, error) {
	if !(initialBalance > 0) {
		return model.BacktestResult{}, fmt.Errorf("%w: initial balance must be positive", model.ErrInvalidRequest)
	}

	feed := &replayFeed{}
	registry := marketdata.NewRegistry()
	registered := make(map[string]bool)
	for _, snap := range snaps {
		for _, venue := range snap.Venues() {
			if !registered[venue] {
				registry.Register(&syntheticVenue{name: venue, feed: feed})
				registered[venue] = true
			}
		}
	}

	var (
		current model.Snapshot
		seq     int
	)
	dispatcher := execution.NewDispatcher(s.logger, registry, execution.NewMemoryDedup(24*time.Hour), execution.NewMemoryTradeLog(1), execution.Config{
		Mode:        model.ModeSimulation,
		TradeVolume: s.volume,
		NewID: func() string {
			seq++
			return fmt.Sprintf("backtest-%d-%d", current.CapturedAt.Unix(), seq)
		},
		Now: func() time.Time { return current.CapturedAt },
	})

	result := model.BacktestResult{InitialBalance: initialBalance, Snapshots: len(snaps)}
	balance := initialBalance
	var returns []float64
	for _, snap := range snaps {
		if err := ctx.Err(); err != nil {
			return model.BacktestResult{}, err
		}
		current, seq = snap, 0
		feed.set(snap)

		opps, err := s.engine.DetectAll(snap, s.minProfit)
		if err != nil {
			return model.BacktestResult{}, fmt.Errorf("backtest: detect at %s: %w", snap.CapturedAt.Format(time.RFC3339), err)
		}
		for _, opp := range opps {
			if !(opp.EstimatedProfit() > 0) {
				continue
			}
			rec, err := dispatcher.Dispatch(ctx, opp)
			if errors.Is(err, model.ErrDuplicateOpportunity) {
				continue
			}
			if err != nil {
				return model.BacktestResult{}, fmt.Errorf("backtest: dispatch %s: %w", opp.ID, err)
			}
			result.Trades = append(result.Trades, rec)
			returns = append(returns, rec.RealizedProfit)
			balance += rec.RealizedProfit
		}
	}

	result.FinalBalance = balance
	result.TotalProfit = balance - initialBalance
	result.TotalTrades = len(result.Trades)
	result.WinRate = winRate(returns)
	result.MaxDrawdownPercent = maxDrawdownPercent(returns)
	result.SharpeRatio = sharpeRatio(returns)
	s.logger.Info("Backtest: finished", "trades", result.TotalTrades, "profit", result.TotalProfit, "sharpe", result.SharpeRatio)
	return result, nil
}

// replayFeed holds the snapshot currently being replayed.
type replayFeed struct {
	mu   sync.RWMutex
	snap model.Snapshot
}

func (f *replayFeed) set(s model.Snapshot) {
	f.mu.Lock()
	f.snap = s
	f.mu.Unlock()
}

func (f *replayFeed) quote(venue, pair string) (model.Quote, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.snap.Quote(venue, pair)
}

// syntheticVenue is a connector that quotes from the replayed snapshot.
type syntheticVenue struct {
	name string
	feed *replayFeed
}

func (v *syntheticVenue) GetName() string { return v.name }

func (v *syntheticVenue) FetchQuote(_ context.Context, pair string) (model.Quote, error) {
	q, ok := v.feed.quote(v.name, pair)
	if !ok {
		return model.Quote{}, fmt.Errorf("%w: %s %s", model.ErrQuoteUnavailable, v.name, pair)
	}
	return q, nil
}

func (v *syntheticVenue) TestConnection(context.Context) bool { return true }
