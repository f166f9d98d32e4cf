package bot

import (
	"context"
	"fmt"

	"arbitron/internal/backtest"
	"arbitron/internal/marketdata"
	"arbitron/internal/model"
)

// Scan runs the simple detector over pair on venues. An empty pair or venue
// list falls back to the configuration, as does a nil threshold. Zero and
// negative thresholds are honoured.
func (b *Bot) Scan(ctx context.Context, pair string, venues []string, minProfitPercent *float64) ([]model.Opportunity, error) {
	pairs := b.cfg.Pairs
	if pair != "" {
		pairs = []string{pair}
	}
	if len(venues) == 0 {
		venues = b.cfg.Venues
	}
	threshold := b.cfg.MinProfitPercent
	if minProfitPercent != nil {
		threshold = *minProfitPercent
	}

	snap, err := b.deps.Fetcher.Snapshot(ctx, venues, pairs)
	if err != nil {
		return nil, fmt.Errorf("bot: snapshot: %w", err)
	}
	opps, err := b.deps.Engine.DetectSimple(snap, threshold)
	if err != nil {
		return nil, fmt.Errorf("bot: detect: %w", err)
	}
	if len(opps) == 0 {
		return nil, fmt.Errorf("bot: no simple opportunity for %v: %w", pairs, model.ErrNotFound)
	}
	return opps, nil
}

// ScanTriangular runs the triangular detector on venue over the configured
// pairs.
func (b *Bot) ScanTriangular(ctx context.Context, venue string) ([]model.Opportunity, error) {
	snap, err := b.deps.Fetcher.Snapshot(ctx, []string{venue}, b.cfg.Pairs)
	if err != nil {
		return nil, fmt.Errorf("bot: snapshot: %w", err)
	}
	opps, err := b.deps.Engine.DetectTriangular(snap, venue, b.cfg.MinProfitPercent)
	if err != nil {
		return nil, fmt.Errorf("bot: detect: %w", err)
	}
	if len(opps) == 0 {
		return nil, fmt.Errorf("bot: no triangular opportunity on %s: %w", venue, model.ErrNotFound)
	}
	return opps, nil
}

func (b *Bot) RecentTrades(ctx context.Context, limit int) ([]model.TradeRecord, error) {
	return b.deps.Dispatcher.TradeLog().RecentTrades(ctx, limit)
}

// ExchangeStatus checks every registered venue.
func (b *Bot) ExchangeStatus(ctx context.Context) []marketdata.VenueStatus {
	return b.deps.Registry.CheckAll(ctx)
}

// RunBacktest runs a synthetic backtest and archives it when an archiver
// is configured. Archive failures are logged only.
func (b *Bot) RunBacktest(ctx context.Context, req backtest.Request) (model.BacktestResult, error) {
	if b.deps.Simulator == nil {
		return model.BacktestResult{}, fmt.Errorf("%w: bot: backtest simulator not configured", model.ErrConfiguration)
	}
	res, err := b.deps.Simulator.Run(ctx, req)
	if err != nil {
		return model.BacktestResult{}, err
	}
	if m := b.deps.Metrics; m != nil {
		m.BacktestTrades.Observe(float64(res.TotalTrades))
	}
	if b.deps.Archiver != nil {
		if key, err := b.deps.Archiver.Archive(ctx, req, res); err != nil {
			b.logger.Error("Bot: backtest archive failed", "error", err)
		} else {
			b.logger.Info("Bot: backtest archived", "key", key)
		}
	}
	return res, nil
}

// ResetRisk zeroes today's ledger and lifts a halt.
func (b *Bot) ResetRisk(ctx context.Context) error {
	if err := b.deps.Governor.Reset(ctx); err != nil {
		return err
	}
	if m := b.deps.Metrics; m != nil {
		m.ObserveRisk(b.deps.Governor.State(ctx))
	}
	return nil
}
