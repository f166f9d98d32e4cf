package marketdata

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"arbitron/internal/exchange"
	"arbitron/internal/model"
)

// FetchObserver receives per-quote outcomes; used for metrics.
type FetchObserver interface {
	ObserveFetch(venue string, d time.Duration, err error)
}

// Fetcher builds market snapshots by querying venues concurrently.
type Fetcher struct {
	logger   *slog.Logger
	registry *Registry
	timeout  time.Duration
	observer FetchObserver
	now      func() time.Time
}

// NewFetcher creates a Fetcher. timeout bounds each venue's fetch; zero means
// only the caller's context applies.
func NewFetcher(logger *slog.Logger, registry *Registry, timeout time.Duration) *Fetcher {
	return &Fetcher{logger: logger, registry: registry, timeout: timeout, now: time.Now}
}

func (f *Fetcher) SetObserver(o FetchObserver) {
	f.observer = o
}

// Snapshot fetches pairs from venues. Venues missing from the registry and
// quotes that fail are logged and left out; one venue failing never cancels
// the others.
func (f *Fetcher) Snapshot(ctx context.Context, venues, pairs []string) (model.Snapshot, error) {
	var (
		mu     sync.Mutex
		quotes = make(map[string]map[string]model.Quote, len(venues))
	)

	// plain Group: siblings keep running when one venue fails
	var g errgroup.Group
	for _, venue := range venues {
		client, err := f.registry.Get(venue)
		if err != nil {
			f.logger.Warn("Fetcher: skipping venue", "venue", venue, "error", err)
			continue
		}
		g.Go(func() error {
			got := f.fetchVenue(ctx, client, pairs)
			if len(got) == 0 {
				return nil
			}
			mu.Lock()
			quotes[venue] = got
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return model.Snapshot{}, err
	}
	return model.NewSnapshot(f.now(), quotes), nil
}

func (f *Fetcher) fetchVenue(ctx context.Context, client exchange.ExchangeClient, pairs []string) map[string]model.Quote {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	venue := client.GetName()
	out := make(map[string]model.Quote, len(pairs))
	for _, pair := range pairs {
		start := time.Now()
		q, err := client.FetchQuote(ctx, pair)
		if f.observer != nil {
			f.observer.ObserveFetch(venue, time.Since(start), err)
		}
		if err != nil {
			f.logger.Debug("Fetcher: quote unavailable", "venue", venue, "pair", pair, "error", err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		q.Venue, q.Pair = venue, pair
		out[pair] = q
	}
	return out
}
