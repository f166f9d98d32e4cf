package arbitrage

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arbitron/internal/model"
)

var capturedAt = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, fees map[string]Fee, opts ...Option) *ArbitrageEngine {
	t.Helper()
	schedule, err := NewFeeSchedule(fees)
	require.NoError(t, err)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return NewArbitrageEngine(logger, schedule, opts...)
}

func snapshot(quotes ...model.Quote) model.Snapshot {
	m := make(map[string]map[string]model.Quote)
	for _, q := range quotes {
		if m[q.Venue] == nil {
			m[q.Venue] = make(map[string]model.Quote)
		}
		m[q.Venue][q.Pair] = q
	}
	return model.NewSnapshot(capturedAt, m)
}

func TestArbitrageEngine_DetectSimple(t *testing.T) {
	engine := newTestEngine(t, map[string]Fee{
		"kraken":  {TakerPercent: 0.26},
		"binance": {TakerPercent: 0.1},
	})

	t.Run("no opportunity", func(t *testing.T) {
		snap := snapshot(
			model.Quote{Venue: "kraken", Pair: "BTC/EUR", Bid: 60000, Ask: 60050},
			model.Quote{Venue: "binance", Pair: "BTC/EUR", Bid: 60000, Ask: 60050},
		)
		opps, err := engine.DetectSimple(snap, 0.5)
		require.NoError(t, err)
		assert.Empty(t, opps)
	})

	t.Run("profitable opportunity", func(t *testing.T) {
		snap := snapshot(
			model.Quote{Venue: "kraken", Pair: "BTC/EUR", Bid: 60000, Ask: 60050, Volume: 2},
			model.Quote{Venue: "binance", Pair: "BTC/EUR", Bid: 61000, Ask: 61050, Volume: 3},
		)
		opps, err := engine.DetectSimple(snap, 0.5)
		require.NoError(t, err)
		require.Len(t, opps, 1)

		s := opps[0].Simple
		assert.Equal(t, "kraken", s.BuyVenue)
		assert.Equal(t, "binance", s.SellVenue)
		assert.Equal(t, 60050.0, s.BuyPrice)
		assert.Equal(t, 61000.0, s.SellPrice)
		assert.InDelta(t, (61000*0.999/(60050*1.0026)-1)*100, s.SpreadPercent, 1e-9)
		assert.InDelta(t, 61000-60050-60050*0.0026-61000*0.001, s.EstimatedProfitPerUnit, 1e-6)
		assert.Equal(t, 2.0, s.BuyVolume)
		assert.Equal(t, 3.0, s.SellVolume)
		assert.Equal(t, capturedAt, opps[0].DetectedAt)
	})

	t.Run("unprofitable due to fees", func(t *testing.T) {
		snap := snapshot(
			model.Quote{Venue: "kraken", Pair: "BTC/EUR", Bid: 60000, Ask: 60001},
			model.Quote{Venue: "binance", Pair: "BTC/EUR", Bid: 60002, Ask: 60003},
		)
		opps, err := engine.DetectSimple(snap, 0)
		require.NoError(t, err)
		assert.Empty(t, opps)
	})

	t.Run("pair on a single venue", func(t *testing.T) {
		snap := snapshot(
			model.Quote{Venue: "kraken", Pair: "BTC/EUR", Bid: 60000, Ask: 60001},
			model.Quote{Venue: "binance", Pair: "ETH/EUR", Bid: 3000, Ask: 3001},
		)
		opps, err := engine.DetectSimple(snap, -100)
		require.NoError(t, err)
		assert.Empty(t, opps)
	})

	t.Run("crossed quote is ignored", func(t *testing.T) {
		snap := snapshot(
			model.Quote{Venue: "kraken", Pair: "BTC/EUR", Bid: 70000, Ask: 50000},
			model.Quote{Venue: "binance", Pair: "BTC/EUR", Bid: 60000, Ask: 60001},
		)
		opps, err := engine.DetectSimple(snap, 0)
		require.NoError(t, err)
		assert.Empty(t, opps)
	})

	t.Run("venue without fee schedule", func(t *testing.T) {
		snap := snapshot(
			model.Quote{Venue: "kraken", Pair: "BTC/EUR", Bid: 60000, Ask: 60001},
			model.Quote{Venue: "bitstamp", Pair: "BTC/EUR", Bid: 61000, Ask: 61001},
		)
		_, err := engine.DetectSimple(snap, 0)
		assert.ErrorIs(t, err, model.ErrConfiguration)
	})
}

func TestArbitrageEngine_DetectSimple_ZeroFeeExamples(t *testing.T) {
	engine := newTestEngine(t, map[string]Fee{"A": {}, "B": {}, "C": {}})

	t.Run("identical quotes", func(t *testing.T) {
		snap := snapshot(
			model.Quote{Venue: "A", Pair: "X/Y", Bid: 100, Ask: 100},
			model.Quote{Venue: "B", Pair: "X/Y", Bid: 100, Ask: 100},
		)
		opps, err := engine.DetectSimple(snap, 0)
		require.NoError(t, err)
		assert.Empty(t, opps)
	})

	t.Run("two venue example", func(t *testing.T) {
		snap := snapshot(
			model.Quote{Venue: "A", Pair: "X/Y", Bid: 100, Ask: 101},
			model.Quote{Venue: "B", Pair: "X/Y", Bid: 103, Ask: 104},
		)
		opps, err := engine.DetectSimple(snap, 0.5)
		require.NoError(t, err)
		require.Len(t, opps, 1)
		assert.Equal(t, "A", opps[0].Simple.BuyVenue)
		assert.Equal(t, "B", opps[0].Simple.SellVenue)
		assert.InDelta(t, 1.98, opps[0].Simple.SpreadPercent, 0.005)
		assert.InDelta(t, 2.0, opps[0].Simple.EstimatedProfitPerUnit, 1e-9)
	})

	t.Run("sorted and idempotent", func(t *testing.T) {
		snap := snapshot(
			model.Quote{Venue: "A", Pair: "X/Y", Bid: 100, Ask: 101},
			model.Quote{Venue: "B", Pair: "X/Y", Bid: 103, Ask: 104},
			model.Quote{Venue: "C", Pair: "X/Y", Bid: 106, Ask: 107},
			model.Quote{Venue: "A", Pair: "Z/Y", Bid: 10, Ask: 10.1},
			model.Quote{Venue: "C", Pair: "Z/Y", Bid: 11, Ask: 11.1},
		)
		first, err := engine.DetectSimple(snap, 0)
		require.NoError(t, err)
		second, err := engine.DetectSimple(snap, 0)
		require.NoError(t, err)

		assert.Equal(t, first, second)
		require.NotEmpty(t, first)
		for i := 1; i < len(first); i++ {
			assert.GreaterOrEqual(t, first[i-1].Simple.SpreadPercent, first[i].Simple.SpreadPercent)
		}
	})
}

func TestArbitrageEngine_DetectTriangular(t *testing.T) {
	fees := map[string]Fee{"x": {}, "binance": {TakerPercent: 0.1}}

	// Bid equals ask so that both directions of the cycle are priced.
	cycleSnap := snapshot(
		model.Quote{Venue: "x", Pair: "A/B", Bid: 2.0, Ask: 2.0},
		model.Quote{Venue: "x", Pair: "B/C", Bid: 3.0, Ask: 3.0},
		model.Quote{Venue: "x", Pair: "C/A", Bid: 0.18, Ask: 0.18},
	)

	t.Run("losing direction is not emitted", func(t *testing.T) {
		engine := newTestEngine(t, fees)
		opps, err := engine.DetectTriangular(cycleSnap, "x", 0.5)
		require.NoError(t, err)

		for _, o := range opps {
			key := rotationKey(o.Triangular.Cycle)
			assert.NotEqual(t, rotationKey([3]string{"A", "B", "C"}), key)
		}
	})

	t.Run("forward legs compound to a loss", func(t *testing.T) {
		engine := newTestEngine(t, fees)
		opps, err := engine.DetectTriangular(cycleSnap, "x", -10)
		require.NoError(t, err)

		var found bool
		for _, o := range opps {
			if o.Triangular.Cycle == [3]string{"A", "B", "C"} {
				found = true
				assert.InDelta(t, (1.0/2/3/0.18-1)*100, o.Triangular.ProfitPercent, 1e-9)
				assert.InDelta(t, -7.407, o.Triangular.ProfitPercent, 0.01)
				for _, step := range o.Triangular.Steps {
					assert.Equal(t, model.Forward, step.Direction)
				}
			}
		}
		assert.True(t, found)
	})

	t.Run("profitable reverse cycle", func(t *testing.T) {
		engine := newTestEngine(t, fees)
		opps, err := engine.DetectTriangular(cycleSnap, "x", 0.5)
		require.NoError(t, err)
		require.Len(t, opps, 3)

		product := 0.18 * 3.0 * 2.0
		for _, o := range opps {
			assert.InDelta(t, (product-1)*100, o.Triangular.ProfitPercent, 1e-9)
			assert.InDelta(t, product-1, o.Triangular.EstimatedProfitPerUnit, 1e-9)
			assert.Len(t, o.Triangular.Steps, 3)
			assert.Equal(t, "x", o.Triangular.Venue)
		}
		first := opps[0].Triangular
		assert.Equal(t, [3]string{"A", "C", "B"}, first.Cycle)
		assert.Equal(t, []model.TriangularStep{
			{Pair: "C/A", Direction: model.Reverse, EffectiveRate: 0.18},
			{Pair: "B/C", Direction: model.Reverse, EffectiveRate: 3.0},
			{Pair: "A/B", Direction: model.Reverse, EffectiveRate: 2.0},
		}, first.Steps)
	})

	t.Run("collapsed rotations", func(t *testing.T) {
		engine := newTestEngine(t, fees, WithCollapsedRotations(true))
		opps, err := engine.DetectTriangular(cycleSnap, "x", 0.5)
		require.NoError(t, err)
		require.Len(t, opps, 1)
		assert.Equal(t, [3]string{"A", "C", "B"}, opps[0].Triangular.Cycle)
	})

	t.Run("fees reduce each leg", func(t *testing.T) {
		engine := newTestEngine(t, fees)
		snap := snapshot(
			model.Quote{Venue: "binance", Pair: "BTC/USDT", Bid: 50000, Ask: 50010},
			model.Quote{Venue: "binance", Pair: "ETH/BTC", Bid: 0.0625, Ask: 0.0626},
			model.Quote{Venue: "binance", Pair: "ETH/USDT", Bid: 3300, Ask: 3301},
		)
		opps, err := engine.DetectTriangular(snap, "binance", 0)
		require.NoError(t, err)
		require.NotEmpty(t, opps)
		for i := 1; i < len(opps); i++ {
			assert.GreaterOrEqual(t, opps[i-1].Triangular.ProfitPercent, opps[i].Triangular.ProfitPercent)
		}
		for _, step := range opps[0].Triangular.Steps {
			assert.Equal(t, 0.1, step.FeePercent)
		}
		// BTC -> USDT -> ETH -> BTC and its rotations
		best := opps[0].Triangular
		want := (1 / 50010.0) * 0.999 * (1 / 0.0626) * 0.999 * 3300 * 0.999
		assert.InDelta(t, (want-1)*100, best.ProfitPercent, 1e-9)
	})

	t.Run("missing leg skips triple", func(t *testing.T) {
		engine := newTestEngine(t, fees)
		snap := snapshot(
			model.Quote{Venue: "x", Pair: "A/B", Bid: 1, Ask: 1},
			model.Quote{Venue: "x", Pair: "B/C", Bid: 1, Ask: 1},
		)
		opps, err := engine.DetectTriangular(snap, "x", -100)
		require.NoError(t, err)
		assert.Empty(t, opps)
	})

	t.Run("zero ask falls back to no leg", func(t *testing.T) {
		engine := newTestEngine(t, fees)
		snap := snapshot(
			model.Quote{Venue: "x", Pair: "A/B", Bid: 0, Ask: 0},
			model.Quote{Venue: "x", Pair: "B/C", Bid: 3, Ask: 3},
			model.Quote{Venue: "x", Pair: "C/A", Bid: 0.18, Ask: 0.18},
		)
		opps, err := engine.DetectTriangular(snap, "x", -100)
		require.NoError(t, err)
		assert.Empty(t, opps)
	})

	t.Run("venue not in snapshot", func(t *testing.T) {
		engine := newTestEngine(t, fees)
		opps, err := engine.DetectTriangular(cycleSnap, "binance", 0)
		require.NoError(t, err)
		assert.Empty(t, opps)
	})

	t.Run("venue without fee schedule", func(t *testing.T) {
		engine := newTestEngine(t, fees)
		_, err := engine.DetectTriangular(cycleSnap, "kraken", 0)
		assert.ErrorIs(t, err, model.ErrConfiguration)
	})
}

func TestArbitrageEngine_DetectAll(t *testing.T) {
	engine := newTestEngine(t, map[string]Fee{"A": {}, "B": {}})
	snap := snapshot(
		model.Quote{Venue: "A", Pair: "X/Y", Bid: 100, Ask: 101},
		model.Quote{Venue: "B", Pair: "X/Y", Bid: 103, Ask: 104},
	)
	opps, err := engine.DetectAll(snap, 0.5)
	require.NoError(t, err)
	require.Len(t, opps, 1)
	assert.Equal(t, model.KindSimple, opps[0].Kind)
}

func TestNewFeeSchedule_RejectsNegative(t *testing.T) {
	_, err := NewFeeSchedule(map[string]Fee{"x": {TakerPercent: -0.1}})
	assert.ErrorIs(t, err, model.ErrConfiguration)
}
