package backtest

import (
	"math/rand"
	"sort"
	"strings"
	"time"

	"arbitron/internal/config"
	"arbitron/internal/model"
)

// Generator produces synthetic quote series. Each (venue, pair) price is
// drawn from a normal distribution around the pair's base price; bid and ask
// sit SpreadPercent either side of it.
type Generator struct {
	Interval      time.Duration
	BasePrice     float64
	BasePrices    map[string]float64
	Volatility    float64 // standard deviation at BasePrice, scaled for other pairs
	SpreadPercent float64
	Seed          int64
}

// GeneratorFromConfig builds a Generator from the backtest settings. Pair
// keys are upper-cased since viper lower-cases map keys.
func GeneratorFromConfig(cfg config.BacktestConfig) Generator {
	prices := make(map[string]float64, len(cfg.BasePrices))
	for pair, p := range cfg.BasePrices {
		prices[strings.ToUpper(pair)] = p
	}
	return Generator{
		Interval:      cfg.Interval,
		BasePrice:     cfg.BasePrice,
		BasePrices:    prices,
		Volatility:    cfg.Volatility,
		SpreadPercent: cfg.SpreadPercent,
		Seed:          cfg.Seed,
	}
}

func (g Generator) base(pair string) (price, sigma float64) {
	price = g.BasePrice
	if p, ok := g.BasePrices[pair]; ok && p > 0 {
		price = p
	}
	sigma = g.Volatility
	if g.BasePrice > 0 {
		sigma = g.Volatility * price / g.BasePrice
	}
	return price, sigma
}

// Series returns one snapshot per interval from start to end inclusive. The
// same seed always yields the same series.
func (g Generator) Series(venues, pairs []string, start, end time.Time) []model.Snapshot {
	interval := g.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	venues = sortedCopy(venues)
	pairs = sortedCopy(pairs)
	rng := rand.New(rand.NewSource(g.Seed))
	spread := g.SpreadPercent / 100

	var snaps []model.Snapshot
	for ts := start; !ts.After(end); ts = ts.Add(interval) {
		quotes := make(map[string]map[string]model.Quote, len(venues))
		for _, venue := range venues {
			inner := make(map[string]model.Quote, len(pairs))
			for _, pair := range pairs {
				mean, sigma := g.base(pair)
				p := mean + rng.NormFloat64()*sigma
				inner[pair] = model.Quote{
					Venue:  venue,
					Pair:   pair,
					Bid:    p * (1 - spread),
					Ask:    p * (1 + spread),
					Volume: 10 + rng.Float64()*90,
				}
			}
			quotes[venue] = inner
		}
		snaps = append(snaps, model.NewSnapshot(ts, quotes))
	}
	return snaps
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
