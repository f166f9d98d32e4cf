package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"arbitron/internal/backtest"
	"arbitron/internal/config"
)

func main() {
	configPath := flag.String("config", ".", "directory holding config.yaml")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-config dir] [run | backtest [flags]]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("cannot load config: %v", err)
	}
	logger := newLogger(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := build(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("cannot start: %v", err)
	}
	defer a.Close()

	switch cmd := flag.Arg(0); cmd {
	case "", "run":
		err = a.run(ctx, cfg, logger)
	case "backtest":
		err = runBacktest(ctx, a, cfg, flag.Args()[1:])
	default:
		flag.Usage()
		err = fmt.Errorf("unknown command %q", cmd)
	}
	if err != nil {
		logger.Error("main: exiting", "error", err)
		a.Close()
		os.Exit(1)
	}
}

func runBacktest(ctx context.Context, a *app, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("backtest", flag.ContinueOnError)
	venues := fs.String("venues", strings.Join(cfg.Arbitrage.Venues, ","), "comma separated venues")
	pairs := fs.String("pairs", strings.Join(cfg.Arbitrage.Pairs, ","), "comma separated pairs")
	start := fs.String("start", "2025-01-01", "first snapshot (RFC3339 or YYYY-MM-DD)")
	end := fs.String("end", "2025-01-31", "last snapshot (RFC3339 or YYYY-MM-DD)")
	balance := fs.Float64("balance", 10000, "initial balance")
	if err := fs.Parse(args); err != nil {
		return err
	}

	from, err := parseDate(*start)
	if err != nil {
		return err
	}
	to, err := parseDate(*end)
	if err != nil {
		return err
	}
	res, err := a.bot.RunBacktest(ctx, backtest.Request{
		Venues:         splitList(*venues),
		Pairs:          splitList(*pairs),
		Start:          from,
		End:            to,
		InitialBalance: *balance,
	})
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
