package model

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestQuote_Valid(t *testing.T) {
	cases := []struct {
		name  string
		quote Quote
		want  bool
	}{
		{"normal", Quote{Bid: 100, Ask: 101}, true},
		{"locked", Quote{Bid: 100, Ask: 100}, true},
		{"crossed", Quote{Bid: 102, Ask: 101}, false},
		{"zero ask", Quote{Bid: 100, Ask: 0}, false},
		{"nan bid", Quote{Bid: math.NaN(), Ask: 1}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.quote.Valid())
		})
	}
}

func TestSplitPair(t *testing.T) {
	base, quote, ok := SplitPair("BTC/USDT")
	assert.True(t, ok)
	assert.Equal(t, "BTC", base)
	assert.Equal(t, "USDT", quote)

	for _, bad := range []string{"BTCUSDT", "/USDT", "BTC/", "A/B/C"} {
		_, _, ok := SplitPair(bad)
		assert.False(t, ok, bad)
	}
}

func TestSnapshot_IsolatedFromSource(t *testing.T) {
	src := map[string]map[string]Quote{
		"kraken": {"BTC/EUR": {Venue: "kraken", Pair: "BTC/EUR", Bid: 1, Ask: 2}},
	}
	snap := NewSnapshot(time.Unix(0, 0), src)
	src["kraken"]["BTC/EUR"] = Quote{Bid: 9, Ask: 9}
	src["binance"] = map[string]Quote{}

	q, ok := snap.Quote("kraken", "BTC/EUR")
	assert.True(t, ok)
	assert.Equal(t, 1.0, q.Bid)
	assert.Equal(t, []string{"kraken"}, snap.Venues())
	assert.Equal(t, 1, snap.Len())
}

func TestOpportunity_Trade(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	opp := NewTriangularOpportunity(TriangularArbitrage{
		Venue: "binance",
		Cycle: [3]string{"BTC", "ETH", "USDT"},
	}, at)

	assert.Equal(t, KindTriangular, opp.Kind)
	assert.Equal(t, "BTC/ETH/USDT", opp.Pair())
	assert.Equal(t, []string{"binance"}, opp.Venues())

	rec := opp.Trade("t1", at, 0.5)
	assert.Equal(t, "binance", rec.BuyVenue)
	assert.Equal(t, "binance", rec.SellVenue)
	assert.Equal(t, opp.ID, rec.OpportunityID)
	assert.Equal(t, TradeCompleted, rec.Status)
}

func TestParseMode(t *testing.T) {
	m, ok := ParseMode("real")
	assert.True(t, ok)
	assert.Equal(t, ModeLive, m)
	_, ok = ParseMode("yolo")
	assert.False(t, ok)
}
