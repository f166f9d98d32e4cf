package risk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"arbitron/internal/model"
)

// Status of the governor.
type Status string

const (
	StatusOperating Status = "operating"
	StatusHalted    Status = "halted"
)

const (
	reasonProfitLimit = "daily profit limit reached"
	reasonLossLimit   = "daily loss limit reached"
	reasonNewDay      = "new trading day"
	reasonReset       = "manual reset"
)

// Limits caps the day's cumulative profit and loss. Zero disables a limit.
type Limits struct {
	DailyProfit float64
	DailyLoss   float64
}

// Transition is emitted whenever the governor changes status.
type Transition struct {
	From   Status
	To     Status
	Reason string
	Entry  model.LedgerEntry
	At     time.Time
}

// State is a point-in-time view of the governor.
type State struct {
	Status Status
	Reason string
	Entry  model.LedgerEntry
	Limits Limits
}

// Option configures a Governor.
type Option func(*Governor)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Governor) { g.now = now }
}

// WithListener registers a callback for status transitions. Listeners run
// after the governor lock is released.
func WithListener(fn func(Transition)) Option {
	return func(g *Governor) { g.listeners = append(g.listeners, fn) }
}

// Governor gates execution against daily profit and loss limits. The
// ledger is keyed by UTC date; a new day is picked up on the first access
// after midnight and clears any halt.
type Governor struct {
	logger    *slog.Logger
	store     LedgerStore
	limits    Limits
	now       func() time.Time
	listeners []func(Transition)

	mu      sync.Mutex
	entry   model.LedgerEntry
	loaded  bool
	status  Status
	reason  string
	pending []Transition
}

// NewGovernor creates a Governor in the operating state.
func NewGovernor(logger *slog.Logger, store LedgerStore, limits Limits, opts ...Option) *Governor {
	g := &Governor{
		logger: logger,
		store:  store,
		limits: limits,
		now:    time.Now,
		status: StatusOperating,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Governor) lock() {
	g.mu.Lock()
}

// unlock releases the lock and then delivers queued transitions.
func (g *Governor) unlock() {
	pending := g.pending
	g.pending = nil
	g.mu.Unlock()
	for _, t := range pending {
		for _, fn := range g.listeners {
			fn(t)
		}
	}
}

func (g *Governor) transition(to Status, reason string) {
	if g.status == to {
		return
	}
	t := Transition{From: g.status, To: to, Reason: reason, Entry: g.entry, At: g.now()}
	g.status, g.reason = to, reason
	if to == StatusOperating {
		g.reason = ""
	}
	g.logger.Info("RiskGovernor: status changed", "from", t.From, "to", t.To, "reason", reason,
		"profit", g.entry.CumulativeProfit, "loss", g.entry.CumulativeLoss)
	g.pending = append(g.pending, t)
}

// rollover makes g.entry the entry for the current UTC day.
func (g *Governor) rollover(ctx context.Context) error {
	day := model.LedgerDate(g.now())
	if g.loaded && g.entry.Date == day {
		return nil
	}

	entry, err := g.store.LoadLedger(ctx, day)
	switch {
	case errors.Is(err, model.ErrNotFound):
		entry = model.LedgerEntry{Date: day, UpdatedAt: g.now()}
	case err != nil:
		return fmt.Errorf("risk: load ledger %s: %w", day, err)
	}

	previous := g.loaded
	g.entry, g.loaded = entry, true
	if previous {
		g.logger.Info("RiskGovernor: new trading day", "day", day)
		g.transition(StatusOperating, reasonNewDay)
	}
	g.enforce()
	return nil
}

// enforce halts when the current entry has reached a limit.
func (g *Governor) enforce() {
	if g.limits.DailyProfit > 0 && g.entry.CumulativeProfit >= g.limits.DailyProfit {
		g.transition(StatusHalted, reasonProfitLimit)
		return
	}
	if g.limits.DailyLoss > 0 && g.entry.CumulativeLoss >= g.limits.DailyLoss {
		g.transition(StatusHalted, reasonLossLimit)
	}
}

func (g *Governor) permitted(ctx context.Context) bool {
	if err := g.rollover(ctx); err != nil {
		g.logger.Error("RiskGovernor: ledger unavailable, refusing execution", "error", err)
		return false
	}
	return g.status == StatusOperating
}

// MayExecute reports whether a new execution is currently allowed.
func (g *Governor) MayExecute(ctx context.Context) bool {
	g.lock()
	defer g.unlock()
	return g.permitted(ctx)
}

// RecordOutcome adds a realized profit (pnl > 0) or loss (pnl < 0) to
// today's ledger and persists it. Crossing a limit halts the governor; that
// is reported through listeners, not as an error.
func (g *Governor) RecordOutcome(ctx context.Context, pnl float64) error {
	g.lock()
	defer g.unlock()
	if err := g.rollover(ctx); err != nil {
		return err
	}
	return g.record(ctx, pnl)
}

func (g *Governor) record(ctx context.Context, pnl float64) error {
	switch {
	case pnl > 0:
		g.entry.CumulativeProfit += pnl
	case pnl < 0:
		g.entry.CumulativeLoss += -pnl
	default:
		return nil
	}
	g.entry.UpdatedAt = g.now()
	g.enforce()
	if err := g.store.SaveLedger(ctx, g.entry); err != nil {
		return fmt.Errorf("risk: save ledger %s: %w", g.entry.Date, err)
	}
	return nil
}

// Execute runs fn only if execution is permitted and records the pnl it
// returns, all under the governor lock, so concurrent callers cannot both
// pass a limit check. The pnl is recorded even when fn fails. Returns
// model.ErrLimitReached without calling fn when halted.
func (g *Governor) Execute(ctx context.Context, fn func(ctx context.Context) (float64, error)) error {
	g.lock()
	defer g.unlock()
	if !g.permitted(ctx) {
		reason := g.reason
		if reason == "" {
			reason = "ledger unavailable"
		}
		return fmt.Errorf("risk: %w: %s", model.ErrLimitReached, reason)
	}
	pnl, err := fn(ctx)
	if recErr := g.record(ctx, pnl); recErr != nil {
		return errors.Join(err, recErr)
	}
	return err
}

// Reset zeroes today's ledger and resumes operation.
func (g *Governor) Reset(ctx context.Context) error {
	g.lock()
	defer g.unlock()
	now := g.now()
	g.entry = model.LedgerEntry{Date: model.LedgerDate(now), UpdatedAt: now}
	g.loaded = true
	if err := g.store.SaveLedger(ctx, g.entry); err != nil {
		return fmt.Errorf("risk: reset ledger %s: %w", g.entry.Date, err)
	}
	g.logger.Info("RiskGovernor: daily ledger reset", "day", g.entry.Date)
	g.transition(StatusOperating, reasonReset)
	return nil
}

// State returns the current status and ledger entry.
func (g *Governor) State(ctx context.Context) State {
	g.lock()
	defer g.unlock()
	if err := g.rollover(ctx); err != nil {
		g.logger.Warn("RiskGovernor: ledger unavailable", "error", err)
	}
	return State{Status: g.status, Reason: g.reason, Entry: g.entry, Limits: g.limits}
}
