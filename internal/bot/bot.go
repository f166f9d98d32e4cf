// Package bot runs the scan loop and exposes its control surface.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"arbitron/internal/arbitrage"
	"arbitron/internal/backtest"
	"arbitron/internal/execution"
	"arbitron/internal/marketdata"
	"arbitron/internal/metrics"
	"arbitron/internal/model"
	"arbitron/internal/risk"
)

// Archiver stores backtest results.
type Archiver interface {
	Archive(ctx context.Context, req backtest.Request, res model.BacktestResult) (string, error)
}

// Config controls what the loop scans.
type Config struct {
	Venues           []string
	Pairs            []string
	MinProfitPercent float64
	Interval         time.Duration
}

// Deps are the collaborators of a Bot. Metrics and Archiver are optional.
type Deps struct {
	Registry   *marketdata.Registry
	Fetcher    *marketdata.Fetcher
	Engine     *arbitrage.ArbitrageEngine
	Governor   *risk.Governor
	Dispatcher *execution.Dispatcher
	Simulator  *backtest.Simulator
	Metrics    *metrics.Metrics
	Archiver   Archiver
}

// StatusReport is the externally visible state of the bot.
type StatusReport struct {
	Status    model.BotStatus `json:"status"`
	Mode      model.Mode      `json:"mode"`
	Governor  risk.State      `json:"governor"`
	StartedAt time.Time       `json:"started_at"`
	LastScan  time.Time       `json:"last_scan"`
	Uptime    time.Duration   `json:"uptime"`
}

// Bot owns the scan loop.
type Bot struct {
	logger *slog.Logger
	cfg    Config
	deps   Deps
	now    func() time.Time

	mu        sync.Mutex
	status    model.BotStatus
	startedAt time.Time
	lastScan  time.Time
	cancel    context.CancelFunc
	done      chan struct{}
}

func New(logger *slog.Logger, cfg Config, deps Deps) *Bot {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	return &Bot{
		logger: logger,
		cfg:    cfg,
		deps:   deps,
		now:    time.Now,
		status: model.BotStopped,
	}
}

// Start launches the scan loop, or resumes it when paused. The loop lives
// until Stop or until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) StatusReport {
	b.start(ctx)
	return b.Status(ctx)
}

func (b *Bot) start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.status {
	case model.BotRunning:
		return
	case model.BotPaused:
		b.status = model.BotRunning
		b.logger.Info("Bot: resumed")
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.done = make(chan struct{})
	b.status = model.BotRunning
	b.startedAt = b.now()
	go b.loop(loopCtx, b.done)
	b.logger.Info("Bot: started", "interval", b.cfg.Interval, "venues", b.cfg.Venues, "pairs", b.cfg.Pairs)
}

// Pause keeps the loop alive but skips scans.
func (b *Bot) Pause(ctx context.Context) StatusReport {
	b.mu.Lock()
	if b.status == model.BotRunning {
		b.status = model.BotPaused
		b.logger.Info("Bot: paused")
	}
	b.mu.Unlock()
	return b.Status(ctx)
}

// Stop ends the loop at its next iteration boundary and waits for it.
func (b *Bot) Stop(ctx context.Context) StatusReport {
	b.mu.Lock()
	if b.status == model.BotStopped {
		b.mu.Unlock()
		return b.Status(ctx)
	}
	b.status = model.BotStopped
	cancel, done := b.cancel, b.done
	b.cancel, b.done = nil, nil
	b.mu.Unlock()

	cancel()
	<-done
	b.logger.Info("Bot: stopped")
	return b.Status(ctx)
}

// Done is closed when the current loop exits. It is nil when stopped.
func (b *Bot) Done() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.done
}

// ToggleMode switches between live and simulated execution.
func (b *Bot) ToggleMode(ctx context.Context, mode model.Mode) StatusReport {
	b.deps.Dispatcher.SetMode(mode)
	return b.Status(ctx)
}

func (b *Bot) Status(ctx context.Context) StatusReport {
	gov := b.deps.Governor.State(ctx)
	b.mu.Lock()
	defer b.mu.Unlock()
	rep := StatusReport{
		Status:    b.status,
		Mode:      b.deps.Dispatcher.Mode(),
		Governor:  gov,
		StartedAt: b.startedAt,
		LastScan:  b.lastScan,
	}
	if b.status != model.BotStopped && !b.startedAt.IsZero() {
		rep.Uptime = b.now().Sub(b.startedAt)
	}
	return rep
}

func (b *Bot) currentStatus() model.BotStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

func (b *Bot) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer b.exited(done)
	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return
		}
		if b.currentStatus() == model.BotRunning {
			b.iterate(ctx)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// exited marks the bot stopped when its loop ends without Stop, so that
// Status tells the truth and Start can launch a fresh loop.
func (b *Bot) exited(done chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done != done {
		return
	}
	b.cancel()
	b.status = model.BotStopped
	b.cancel, b.done = nil, nil
	b.logger.Info("Bot: loop exited, context cancelled")
}

// iterate runs one scan and keeps the loop alive on panics.
func (b *Bot) iterate(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Bot: scan panicked", "panic", r)
			if b.deps.Metrics != nil {
				b.deps.Metrics.ScanErrors.Inc()
			}
		}
	}()
	if err := b.ScanOnce(ctx); err != nil && ctx.Err() == nil {
		b.logger.Error("Bot: scan failed", "error", err)
		if b.deps.Metrics != nil {
			b.deps.Metrics.ScanErrors.Inc()
		}
	}
}

// ScanOnce fetches a snapshot, detects opportunities and dispatches them in
// detector order through the governor.
func (b *Bot) ScanOnce(ctx context.Context) error {
	snap, err := b.deps.Fetcher.Snapshot(ctx, b.cfg.Venues, b.cfg.Pairs)
	if err != nil {
		return fmt.Errorf("bot: snapshot: %w", err)
	}
	opps, err := b.deps.Engine.DetectAll(snap, b.cfg.MinProfitPercent)
	if err != nil {
		return fmt.Errorf("bot: detect: %w", err)
	}

	b.mu.Lock()
	b.lastScan = snap.CapturedAt
	b.mu.Unlock()
	if m := b.deps.Metrics; m != nil {
		m.Scans.Inc()
		m.ObserveOpportunities(opps)
	}
	b.logger.Debug("Bot: scan complete", "quotes", snap.Len(), "opportunities", len(opps))

	live := b.deps.Dispatcher.Mode() == model.ModeLive
	for i, opp := range opps {
		if live && opp.Kind == model.KindTriangular {
			continue
		}
		err := b.deps.Governor.Execute(ctx, func(ctx context.Context) (float64, error) {
			rec, err := b.deps.Dispatcher.Dispatch(ctx, opp)
			if rec.ID != "" && b.deps.Metrics != nil {
				b.deps.Metrics.ObserveTrade(rec)
			}
			return rec.RealizedProfit, err
		})
		if errors.Is(err, model.ErrLimitReached) {
			b.logger.Info("Bot: execution halted by risk governor", "skipped", len(opps)-i)
			break
		}
		if err != nil {
			b.logger.Warn("Bot: dispatch failed", "opportunity", opp.ID, "error", err)
		}
	}

	if m := b.deps.Metrics; m != nil {
		m.ObserveRisk(b.deps.Governor.State(ctx))
	}
	return nil
}
