package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"arbitron/internal/arbitrage"
	"arbitron/internal/backtest"
	"arbitron/internal/bot"
	"arbitron/internal/cache"
	"arbitron/internal/config"
	"arbitron/internal/database"
	"arbitron/internal/exchange"
	"arbitron/internal/execution"
	"arbitron/internal/marketdata"
	"arbitron/internal/metrics"
	"arbitron/internal/model"
	"arbitron/internal/report"
	"arbitron/internal/risk"
)

// app is the wired object graph plus what has to be started or closed.
type app struct {
	bot       *bot.Bot
	metrics   *metrics.Metrics
	streamers []exchange.Streamer
	dedup     *execution.MemoryDedup
	closers   []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	a := &app{metrics: metrics.New()}

	fees, err := arbitrage.FeeScheduleFromConfig(cfg.Exchanges)
	if err != nil {
		return nil, err
	}
	engine := arbitrage.NewArbitrageEngine(logger, fees, arbitrage.WithCollapsedRotations(cfg.Arbitrage.CollapseRotations))

	registry := marketdata.NewRegistry()
	for _, venue := range cfg.Arbitrage.Venues {
		client, err := exchange.NewClient(venue, logger, cfg.Exchanges[venue], cfg.Arbitrage.Pairs)
		if err != nil {
			logger.Warn("main: no connector for venue, quotes will be skipped", "venue", venue, "error", err)
			continue
		}
		registry.Register(client)
		if s, ok := client.(exchange.Streamer); ok {
			a.streamers = append(a.streamers, s)
		}
	}
	fetcher := marketdata.NewFetcher(logger, registry, cfg.Arbitrage.FetchTimeout)
	fetcher.SetObserver(a.metrics)

	var (
		ledger   risk.LedgerStore = risk.NewMemoryLedger()
		tradeLog execution.TradeLog
		dedup    execution.Dedup
	)
	switch cfg.Risk.LedgerBackend {
	case "postgres":
		repo, err := database.NewPostgresRepository(ctx, cfg.Database.DSN())
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, repo.Close)
		if err := repo.Migrate(ctx); err != nil {
			a.Close()
			return nil, err
		}
		ledger, tradeLog = repo, repo
	case "redis":
		rc, err := cache.New(ctx, cfg.Redis)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = rc.Close() })
		ledger, dedup = cache.NewRedisLedger(rc), cache.NewRedisDedup(rc, 24*time.Hour)
	default:
		logger.Warn("main: using in-memory risk ledger, daily totals reset on restart")
	}
	if dedup == nil {
		a.dedup = execution.NewMemoryDedup(24 * time.Hour)
		dedup = a.dedup
	}

	m := a.metrics
	governor := risk.NewGovernor(logger, ledger, risk.Limits{
		DailyProfit: cfg.Risk.DailyProfitLimit,
		DailyLoss:   cfg.Risk.DailyLossLimit,
	}, risk.WithListener(func(t risk.Transition) {
		m.ObserveRisk(risk.State{Status: t.To, Reason: t.Reason, Entry: t.Entry})
	}))

	mode, _ := model.ParseMode(cfg.Arbitrage.Mode)
	dispatcher := execution.NewDispatcher(logger, registry, dedup, tradeLog, execution.Config{
		Mode:                mode,
		TradeVolume:         cfg.Arbitrage.TradeVolume,
		FailureLossEstimate: cfg.Risk.FailureLossEstimate,
	})

	var archiver bot.Archiver
	if cfg.Backtest.ArchiveBucket != "" {
		arch, err := report.NewS3Archiver(ctx, logger, cfg.Backtest.ArchiveBucket, cfg.Backtest.ArchivePrefix, cfg.Backtest.ArchiveRegion)
		if err != nil {
			a.Close()
			return nil, err
		}
		archiver = arch
	}

	simulator := backtest.NewSimulator(logger, engine, backtest.GeneratorFromConfig(cfg.Backtest),
		cfg.Arbitrage.MinProfitPercent, cfg.Arbitrage.TradeVolume)

	a.bot = bot.New(logger, bot.Config{
		Venues:           cfg.Arbitrage.Venues,
		Pairs:            cfg.Arbitrage.Pairs,
		MinProfitPercent: cfg.Arbitrage.MinProfitPercent,
		Interval:         cfg.Arbitrage.PollInterval,
	}, bot.Deps{
		Registry:   registry,
		Fetcher:    fetcher,
		Engine:     engine,
		Governor:   governor,
		Dispatcher: dispatcher,
		Simulator:  simulator,
		Metrics:    a.metrics,
		Archiver:   archiver,
	})
	return a, nil
}

// run starts the streams and the scan loop and blocks until ctx is done.
func (a *app) run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	metrics.Serve(ctx, cfg.Metrics.Addr, a.metrics.Registry, logger)

	for _, s := range a.streamers {
		go func() {
			if err := s.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("main: stream stopped", "error", err)
			}
		}()
	}
	if a.dedup != nil {
		go func() {
			ticker := time.NewTicker(time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					a.dedup.Cleanup()
				}
			}
		}()
	}

	for _, st := range a.bot.ExchangeStatus(ctx) {
		logger.Info("main: venue status", "venue", st.Venue, "connected", st.Connected)
	}

	a.bot.Start(ctx)
	<-ctx.Done()
	a.bot.Stop(context.Background())
	rep := a.bot.Status(context.Background())
	logger.Info("main: shutdown complete",
		"profit", rep.Governor.Entry.CumulativeProfit, "loss", rep.Governor.Entry.CumulativeLoss)
	return nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: bad date %q", model.ErrInvalidRequest, s)
}
