package model

import (
	"math"
	"sort"
	"strings"
	"time"
)

// Quote represents the top of book for one pair on one venue.
type Quote struct {
	Venue  string  `json:"venue"`
	Pair   string  `json:"pair"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Volume float64 `json:"volume"`
}

// Valid reports whether the quote can be used for pricing. Crossed or
// non-positive quotes are rejected instead of producing bogus spreads.
func (q Quote) Valid() bool {
	if math.IsNaN(q.Bid) || math.IsNaN(q.Ask) || math.IsInf(q.Bid, 0) || math.IsInf(q.Ask, 0) {
		return false
	}
	return q.Bid > 0 && q.Ask > 0 && q.Bid <= q.Ask
}

// SplitPair splits "BASE/QUOTE" into its assets.
func SplitPair(pair string) (base, quote string, ok bool) {
	base, quote, ok = strings.Cut(pair, "/")
	if !ok || base == "" || quote == "" || strings.Contains(quote, "/") {
		return "", "", false
	}
	return base, quote, true
}

// Snapshot holds the quotes of every venue at one instant. It must not be
// mutated once built; use NewSnapshot to take a private copy.
type Snapshot struct {
	CapturedAt time.Time
	quotes     map[string]map[string]Quote
}

// NewSnapshot copies quotes (venue -> pair -> quote) into an immutable snapshot.
func NewSnapshot(capturedAt time.Time, quotes map[string]map[string]Quote) Snapshot {
	cp := make(map[string]map[string]Quote, len(quotes))
	for venue, pairs := range quotes {
		inner := make(map[string]Quote, len(pairs))
		for pair, q := range pairs {
			inner[pair] = q
		}
		cp[venue] = inner
	}
	return Snapshot{CapturedAt: capturedAt, quotes: cp}
}

// Venues returns the venues present in the snapshot, sorted.
func (s Snapshot) Venues() []string {
	venues := make([]string, 0, len(s.quotes))
	for v := range s.quotes {
		venues = append(venues, v)
	}
	sort.Strings(venues)
	return venues
}

// Pairs returns the pairs quoted on venue, sorted.
func (s Snapshot) Pairs(venue string) []string {
	pairs := make([]string, 0, len(s.quotes[venue]))
	for p := range s.quotes[venue] {
		pairs = append(pairs, p)
	}
	sort.Strings(pairs)
	return pairs
}

// Quote returns the quote for pair on venue.
func (s Snapshot) Quote(venue, pair string) (Quote, bool) {
	q, ok := s.quotes[venue][pair]
	return q, ok
}

// HasVenue reports whether venue contributed any quote.
func (s Snapshot) HasVenue(venue string) bool {
	_, ok := s.quotes[venue]
	return ok
}

// Len returns the total number of quotes.
func (s Snapshot) Len() int {
	n := 0
	for _, pairs := range s.quotes {
		n += len(pairs)
	}
	return n
}

// LedgerEntry is the running profit and loss of one UTC calendar day.
type LedgerEntry struct {
	Date             string    `json:"date" db:"day"`
	CumulativeProfit float64   `json:"cumulative_profit" db:"cumulative_profit"`
	CumulativeLoss   float64   `json:"cumulative_loss" db:"cumulative_loss"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// Net returns the signed profit of the day.
func (e LedgerEntry) Net() float64 {
	return e.CumulativeProfit - e.CumulativeLoss
}

// LedgerDate formats t as the ledger key for its UTC day.
func LedgerDate(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

// TradeStatus is the terminal state of a trade.
type TradeStatus string

const (
	TradeCompleted TradeStatus = "completed"
	TradeFailed    TradeStatus = "failed"
)

// TradeRecord represents an executed (or simulated) arbitrage trade.
type TradeRecord struct {
	ID             string          `json:"id" db:"id"`
	OpportunityID  string          `json:"opportunity_id" db:"opportunity_id"`
	Timestamp      time.Time       `json:"timestamp" db:"timestamp"`
	Kind           OpportunityKind `json:"kind" db:"kind"`
	Pair           string          `json:"pair" db:"pair"`
	BuyVenue       string          `json:"buy_venue" db:"buy_venue"`
	SellVenue      string          `json:"sell_venue" db:"sell_venue"`
	RealizedProfit float64         `json:"realized_profit" db:"realized_profit"`
	Status         TradeStatus     `json:"status" db:"status"`
}

// BacktestResult summarises a backtest run.
type BacktestResult struct {
	InitialBalance     float64       `json:"initial_balance"`
	FinalBalance       float64       `json:"final_balance"`
	TotalProfit        float64       `json:"total_profit"`
	TotalTrades        int           `json:"total_trades"`
	WinRate            float64       `json:"win_rate"`
	MaxDrawdownPercent float64       `json:"max_drawdown_percent"`
	SharpeRatio        float64       `json:"sharpe_ratio"`
	Snapshots          int           `json:"snapshots"`
	Trades             []TradeRecord `json:"trades"`
}

// Mode selects whether trades reach the venues.
type Mode string

const (
	ModeLive       Mode = "live"
	ModeSimulation Mode = "simulation"
)

// ParseMode accepts "live", "real" and "simulation".
func ParseMode(s string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "live", "real":
		return ModeLive, true
	case "simulation", "sim", "paper", "":
		return ModeSimulation, true
	}
	return "", false
}

// BotStatus is the lifecycle state of the scan loop.
type BotStatus string

const (
	BotRunning BotStatus = "running"
	BotPaused  BotStatus = "paused"
	BotStopped BotStatus = "stopped"
)
