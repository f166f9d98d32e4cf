package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"arbitron/internal/exchange"
	"arbitron/internal/marketdata"
	"arbitron/internal/model"
)

// minFailureLoss keeps every failed execution a strictly positive loss.
const minFailureLoss = 1e-9

// FailureLoss is the amount charged to the daily loss when an execution of
// opp fails: estimate when positive, otherwise the absolute estimated
// profit of opp, with a tiny positive floor.
func FailureLoss(opp model.Opportunity, estimate float64) float64 {
	if estimate > 0 {
		return estimate
	}
	return math.Max(math.Abs(opp.EstimatedProfit()), minFailureLoss)
}

// Config controls a Dispatcher.
type Config struct {
	Mode                model.Mode
	TradeVolume         float64
	FailureLossEstimate float64

	// Optional overrides for trade IDs and timestamps.
	NewID func() string
	Now   func() time.Time
}

// Dispatcher turns opportunities into trades, simulated or live.
type Dispatcher struct {
	logger   *slog.Logger
	registry *marketdata.Registry
	dedup    Dedup
	log      TradeLog
	volume   float64
	failLoss float64
	mode     atomic.Value // model.Mode
	now      func() time.Time
	newID    func() string
}

// NewDispatcher creates a Dispatcher. A nil dedup or log falls back to the
// in-memory implementations.
func NewDispatcher(logger *slog.Logger, registry *marketdata.Registry, dedup Dedup, log TradeLog, cfg Config) *Dispatcher {
	if dedup == nil {
		dedup = NewMemoryDedup(24 * time.Hour)
	}
	if log == nil {
		log = NewMemoryTradeLog(0)
	}
	volume := cfg.TradeVolume
	if volume <= 0 {
		volume = 1
	}
	d := &Dispatcher{
		logger:   logger,
		registry: registry,
		dedup:    dedup,
		log:      log,
		volume:   volume,
		failLoss: cfg.FailureLossEstimate,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	if cfg.NewID != nil {
		d.newID = cfg.NewID
	}
	if cfg.Now != nil {
		d.now = cfg.Now
	}
	mode := cfg.Mode
	if mode == "" {
		mode = model.ModeSimulation
	}
	d.mode.Store(mode)
	return d
}

func (d *Dispatcher) Mode() model.Mode {
	return d.mode.Load().(model.Mode)
}

func (d *Dispatcher) SetMode(m model.Mode) {
	d.mode.Store(m)
	d.logger.Info("Dispatcher: mode changed", "mode", m)
}

// TradeLog exposes the log the dispatcher appends to.
func (d *Dispatcher) TradeLog() TradeLog {
	return d.log
}

// Dispatch executes opp once. Missing connectors and unsupported live
// executions are rejected before any order is placed; the returned record is
// not logged and carries only a failed status and -FailureLoss, so the caller
// still charges the rejection to the risk budget. Duplicate IDs return a zero
// record. When placing orders fails, the returned record has status failed and
// a negative RealizedProfit equal to FailureLoss, and is also appended to the
// trade log.
func (d *Dispatcher) Dispatch(ctx context.Context, opp model.Opportunity) (model.TradeRecord, error) {
	clients := make(map[string]exchange.ExchangeClient)
	for _, venue := range opp.Venues() {
		c, err := d.registry.Get(venue)
		if err != nil {
			return d.rejected(opp, err)
		}
		clients[venue] = c
	}

	mode := d.Mode()
	var legs livePlacers
	if mode == model.ModeLive {
		var err error
		if legs, err = resolvePlacers(opp, clients); err != nil {
			return d.rejected(opp, err)
		}
	}

	fresh, err := d.dedup.Claim(ctx, opp.ID)
	if err != nil {
		return model.TradeRecord{}, fmt.Errorf("execution: claim %s: %w", opp.ID, err)
	}
	if !fresh {
		return model.TradeRecord{}, fmt.Errorf("execution: %s: %w", opp.ID, model.ErrDuplicateOpportunity)
	}

	var realized float64
	if mode == model.ModeLive {
		realized, err = d.executeLive(ctx, opp.Simple, legs)
	} else {
		realized = opp.EstimatedProfit() * d.volume
	}

	rec := opp.Trade(d.newID(), d.now(), realized)
	if err != nil {
		rec.Status = model.TradeFailed
		rec.RealizedProfit = -FailureLoss(opp, d.failLoss)
		d.logger.Error("Dispatcher: execution failed", "opportunity", opp.ID, "error", err)
	} else {
		d.logger.Info("Dispatcher: trade completed", "opportunity", opp.ID, "mode", mode, "profit", realized)
	}
	if logErr := d.log.LogTrade(ctx, rec); logErr != nil {
		d.logger.Error("Dispatcher: failed to log trade", "trade", rec.ID, "error", logErr)
		err = errors.Join(err, logErr)
	}
	return rec, err
}

func (d *Dispatcher) rejected(opp model.Opportunity, err error) (model.TradeRecord, error) {
	d.logger.Warn("Dispatcher: opportunity rejected", "opportunity", opp.ID, "error", err)
	return model.TradeRecord{
		Kind:           opp.Kind,
		Status:         model.TradeFailed,
		RealizedProfit: -FailureLoss(opp, d.failLoss),
	}, fmt.Errorf("execution: %s: %w", opp.ID, err)
}

type livePlacers struct {
	buyer, seller exchange.OrderPlacer
}

func resolvePlacers(opp model.Opportunity, clients map[string]exchange.ExchangeClient) (livePlacers, error) {
	if opp.Simple == nil {
		return livePlacers{}, fmt.Errorf("live %s: %w", opp.Kind, model.ErrExecutionUnsupported)
	}
	buyer, ok := clients[opp.Simple.BuyVenue].(exchange.OrderPlacer)
	if !ok {
		return livePlacers{}, fmt.Errorf("%w: %s cannot place orders", model.ErrExecutionUnsupported, opp.Simple.BuyVenue)
	}
	seller, ok := clients[opp.Simple.SellVenue].(exchange.OrderPlacer)
	if !ok {
		return livePlacers{}, fmt.Errorf("%w: %s cannot place orders", model.ErrExecutionUnsupported, opp.Simple.SellVenue)
	}
	return livePlacers{buyer: buyer, seller: seller}, nil
}

func (d *Dispatcher) executeLive(ctx context.Context, s *model.SimpleArbitrage, legs livePlacers) (float64, error) {
	qty := d.volume
	for _, v := range []float64{s.BuyVolume, s.SellVolume} {
		if v > 0 && v < qty {
			qty = v
		}
	}

	bought, err := legs.buyer.PlaceOrder(ctx, exchange.OrderRequest{Pair: s.Pair, Side: exchange.SideBuy, Quantity: qty})
	if err != nil {
		return 0, fmt.Errorf("buy on %s: %w", s.BuyVenue, err)
	}
	sold, err := legs.seller.PlaceOrder(ctx, exchange.OrderRequest{Pair: s.Pair, Side: exchange.SideSell, Quantity: bought.FilledQuantity})
	if err != nil {
		return 0, fmt.Errorf("sell on %s after buy %s: %w", s.SellVenue, bought.OrderID, err)
	}
	return sold.Notional() - bought.Notional() - bought.Fee - sold.Fee, nil
}
