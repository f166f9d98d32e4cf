package risk

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arbitron/internal/model"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type failingStore struct{}

func (failingStore) LoadLedger(context.Context, string) (model.LedgerEntry, error) {
	return model.LedgerEntry{}, errors.New("connection refused")
}

func (failingStore) SaveLedger(context.Context, model.LedgerEntry) error {
	return errors.New("connection refused")
}

func newTestGovernor(t *testing.T, store LedgerStore, limits Limits, opts ...Option) (*Governor, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]Option{WithClock(c.Now)}, opts...)
	return NewGovernor(logger, store, limits, opts...), c
}

func TestGovernorProfitLimitHoldsUntilNextDay(t *testing.T) {
	var transitions []Transition
	g, c := newTestGovernor(t, NewMemoryLedger(), Limits{DailyProfit: 100},
		WithListener(func(tr Transition) { transitions = append(transitions, tr) }))
	ctx := context.Background()

	assert.True(t, g.MayExecute(ctx))
	require.NoError(t, g.RecordOutcome(ctx, 60))
	assert.True(t, g.MayExecute(ctx))
	require.NoError(t, g.RecordOutcome(ctx, 50))

	assert.False(t, g.MayExecute(ctx))
	st := g.State(ctx)
	assert.Equal(t, StatusHalted, st.Status)
	assert.Equal(t, reasonProfitLimit, st.Reason)
	assert.InDelta(t, 110, st.Entry.CumulativeProfit, 1e-9)
	require.Len(t, transitions, 1)
	assert.Equal(t, StatusOperating, transitions[0].From)
	assert.Equal(t, StatusHalted, transitions[0].To)

	// a loss later the same day does not lift the halt
	require.NoError(t, g.RecordOutcome(ctx, -30))
	c.Set(time.Date(2024, 3, 10, 23, 59, 59, 0, time.UTC))
	assert.False(t, g.MayExecute(ctx))

	c.Set(time.Date(2024, 3, 11, 0, 0, 1, 0, time.UTC))
	assert.True(t, g.MayExecute(ctx))
	st = g.State(ctx)
	assert.Equal(t, "2024-03-11", st.Entry.Date)
	assert.Zero(t, st.Entry.CumulativeProfit)
	require.Len(t, transitions, 2)
	assert.Equal(t, reasonNewDay, transitions[1].Reason)
}

func TestGovernorLossLimit(t *testing.T) {
	g, _ := newTestGovernor(t, NewMemoryLedger(), Limits{DailyLoss: 10})
	ctx := context.Background()

	require.NoError(t, g.RecordOutcome(ctx, -4))
	require.NoError(t, g.RecordOutcome(ctx, 100))
	assert.True(t, g.MayExecute(ctx))
	require.NoError(t, g.RecordOutcome(ctx, -6))
	assert.False(t, g.MayExecute(ctx))

	st := g.State(ctx)
	assert.Equal(t, reasonLossLimit, st.Reason)
	assert.InDelta(t, 10, st.Entry.CumulativeLoss, 1e-9)
	assert.InDelta(t, 90, st.Entry.Net(), 1e-9)
}

func TestGovernorZeroLimitsAreUnlimited(t *testing.T) {
	g, _ := newTestGovernor(t, NewMemoryLedger(), Limits{})
	ctx := context.Background()
	require.NoError(t, g.RecordOutcome(ctx, 1e9))
	require.NoError(t, g.RecordOutcome(ctx, -1e9))
	assert.True(t, g.MayExecute(ctx))
}

func TestGovernorPersistsAndReloads(t *testing.T) {
	store := NewMemoryLedger()
	ctx := context.Background()

	g, _ := newTestGovernor(t, store, Limits{DailyProfit: 50})
	require.NoError(t, g.RecordOutcome(ctx, 70))

	saved, err := store.LoadLedger(ctx, "2024-03-10")
	require.NoError(t, err)
	assert.InDelta(t, 70, saved.CumulativeProfit, 1e-9)

	// a restarted process picks up the halted day
	restarted, _ := newTestGovernor(t, store, Limits{DailyProfit: 50})
	assert.False(t, restarted.MayExecute(ctx))
}

func TestGovernorReset(t *testing.T) {
	store := NewMemoryLedger()
	g, _ := newTestGovernor(t, store, Limits{DailyProfit: 10})
	ctx := context.Background()

	require.NoError(t, g.RecordOutcome(ctx, 20))
	require.False(t, g.MayExecute(ctx))

	require.NoError(t, g.Reset(ctx))
	assert.True(t, g.MayExecute(ctx))
	st := g.State(ctx)
	assert.Equal(t, StatusOperating, st.Status)
	assert.Zero(t, st.Entry.CumulativeProfit)

	saved, err := store.LoadLedger(ctx, "2024-03-10")
	require.NoError(t, err)
	assert.Zero(t, saved.CumulativeProfit)
}

func TestGovernorExecute(t *testing.T) {
	ctx := context.Background()

	t.Run("records pnl of a permitted run", func(t *testing.T) {
		g, _ := newTestGovernor(t, NewMemoryLedger(), Limits{DailyProfit: 5})
		calls := 0
		err := g.Execute(ctx, func(context.Context) (float64, error) {
			calls++
			return 6, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, calls)

		err = g.Execute(ctx, func(context.Context) (float64, error) {
			calls++
			return 1, nil
		})
		assert.True(t, errors.Is(err, model.ErrLimitReached))
		assert.Equal(t, 1, calls)
	})

	t.Run("failed run still charges its loss", func(t *testing.T) {
		g, _ := newTestGovernor(t, NewMemoryLedger(), Limits{DailyLoss: 1})
		boom := errors.New("order rejected")
		err := g.Execute(ctx, func(context.Context) (float64, error) {
			return -2, boom
		})
		assert.ErrorIs(t, err, boom)
		assert.False(t, g.MayExecute(ctx))
	})

	t.Run("concurrent callers cannot overshoot", func(t *testing.T) {
		g, _ := newTestGovernor(t, NewMemoryLedger(), Limits{DailyProfit: 10})
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			runs int
		)
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = g.Execute(ctx, func(context.Context) (float64, error) {
					mu.Lock()
					runs++
					mu.Unlock()
					return 1, nil
				})
			}()
		}
		wg.Wait()
		assert.Equal(t, 10, runs)
		assert.InDelta(t, 10, g.State(ctx).Entry.CumulativeProfit, 1e-9)
	})

	t.Run("unavailable ledger refuses", func(t *testing.T) {
		g, _ := newTestGovernor(t, failingStore{}, Limits{})
		err := g.Execute(ctx, func(context.Context) (float64, error) {
			t.Fatal("must not run")
			return 0, nil
		})
		assert.True(t, errors.Is(err, model.ErrLimitReached))
	})
}
