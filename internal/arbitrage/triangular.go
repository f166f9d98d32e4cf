package arbitrage

import (
	"sort"
	"strings"

	"arbitron/internal/model"
)

type leg struct {
	pair      string
	direction model.Direction
	rate      float64 // net of fee
}

// DetectTriangular finds A->B->C->A cycles on one venue, sorted by profit
// descending. All ordered triples of distinct assets are evaluated; legs are
// resolved once per ordered asset pair.
func (e *ArbitrageEngine) DetectTriangular(snap model.Snapshot, venue string, minProfitPercent float64) ([]model.Opportunity, error) {
	fee, err := e.fees.Lookup(venue)
	if err != nil {
		return nil, err
	}
	if !snap.HasVenue(venue) {
		return nil, nil
	}

	book := make(map[string]model.Quote)
	assetSet := make(map[string]struct{})
	for _, pair := range snap.Pairs(venue) {
		q, _ := snap.Quote(venue, pair)
		base, quote, ok := model.SplitPair(pair)
		if !ok || !q.Valid() {
			continue
		}
		book[pair] = q
		assetSet[base] = struct{}{}
		assetSet[quote] = struct{}{}
	}
	assets := make([]string, 0, len(assetSet))
	for a := range assetSet {
		assets = append(assets, a)
	}
	sort.Strings(assets)

	taker := fee.Taker()
	legs := make(map[[2]string]leg)
	for _, from := range assets {
		for _, to := range assets {
			if from == to {
				continue
			}
			if q, ok := book[from+"/"+to]; ok {
				legs[[2]string{from, to}] = leg{pair: from + "/" + to, direction: model.Forward, rate: (1 / q.Ask) * (1 - taker)}
			} else if q, ok := book[to+"/"+from]; ok {
				legs[[2]string{from, to}] = leg{pair: to + "/" + from, direction: model.Reverse, rate: q.Bid * (1 - taker)}
			}
		}
	}

	var (
		opps []model.Opportunity
		seen map[string]struct{}
	)
	if e.collapseRotations {
		seen = make(map[string]struct{})
	}
	for _, a := range assets {
		for _, b := range assets {
			if a == b {
				continue
			}
			ab, ok := legs[[2]string{a, b}]
			if !ok {
				continue
			}
			for _, c := range assets {
				if c == a || c == b {
					continue
				}
				bc, ok := legs[[2]string{b, c}]
				if !ok {
					continue
				}
				ca, ok := legs[[2]string{c, a}]
				if !ok {
					continue
				}

				final := 1.0 * ab.rate * bc.rate * ca.rate
				profit := (final - 1) * 100
				if !(profit > minProfitPercent) {
					continue
				}
				cycle := [3]string{a, b, c}
				if seen != nil {
					key := rotationKey(cycle)
					if _, dup := seen[key]; dup {
						continue
					}
					seen[key] = struct{}{}
				}

				steps := make([]model.TriangularStep, 0, 3)
				for _, l := range []leg{ab, bc, ca} {
					steps = append(steps, model.TriangularStep{
						Pair:          l.pair,
						Direction:     l.direction,
						EffectiveRate: l.rate,
						FeePercent:    fee.TakerPercent,
					})
				}
				opps = append(opps, model.NewTriangularOpportunity(model.TriangularArbitrage{
					Venue:                  venue,
					Cycle:                  cycle,
					Steps:                  steps,
					ProfitPercent:          profit,
					EstimatedProfitPerUnit: final - 1,
				}, snap.CapturedAt))
			}
		}
	}

	sort.SliceStable(opps, func(i, j int) bool {
		return opps[i].Triangular.ProfitPercent > opps[j].Triangular.ProfitPercent
	})
	e.logger.Debug("ArbitrageEngine: triangular scan complete", "venue", venue, "assets", len(assets), "opportunities", len(opps))
	return opps, nil
}

// rotationKey identifies a directed cycle independent of its starting asset.
func rotationKey(cycle [3]string) string {
	start := 0
	for i := 1; i < len(cycle); i++ {
		if cycle[i] < cycle[start] {
			start = i
		}
	}
	return strings.Join([]string{cycle[start], cycle[(start+1)%3], cycle[(start+2)%3]}, ">")
}
