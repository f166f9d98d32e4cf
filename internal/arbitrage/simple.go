package arbitrage

import (
	"sort"

	"arbitron/internal/model"
)

// DetectSimple finds buy-low/sell-high pairs for the same trading pair across
// two venues, sorted by spread descending. Every venue in the snapshot must
// have a fee schedule entry.
func (e *ArbitrageEngine) DetectSimple(snap model.Snapshot, minProfitPercent float64) ([]model.Opportunity, error) {
	venues := snap.Venues()
	fees := make(map[string]Fee, len(venues))
	for _, venue := range venues {
		f, err := e.fees.Lookup(venue)
		if err != nil {
			return nil, err
		}
		fees[venue] = f
	}

	// pair -> valid quotes, in venue order
	byPair := make(map[string][]model.Quote)
	for _, venue := range venues {
		for _, pair := range snap.Pairs(venue) {
			q, _ := snap.Quote(venue, pair)
			if !q.Valid() {
				continue
			}
			q.Venue, q.Pair = venue, pair
			byPair[pair] = append(byPair[pair], q)
		}
	}
	pairs := make([]string, 0, len(byPair))
	for pair, quotes := range byPair {
		if len(quotes) >= 2 {
			pairs = append(pairs, pair)
		}
	}
	sort.Strings(pairs)

	var opps []model.Opportunity
	for _, pair := range pairs {
		quotes := byPair[pair]
		for _, buy := range quotes {
			for _, sell := range quotes {
				if buy.Venue == sell.Venue {
					continue
				}
				buyFee, sellFee := fees[buy.Venue], fees[sell.Venue]

				effectiveBuy := buy.Ask * (1 + buyFee.Taker())
				effectiveSell := sell.Bid * (1 - sellFee.Taker())
				spread := (effectiveSell/effectiveBuy - 1) * 100
				if !(spread > minProfitPercent) {
					continue
				}

				profit := sell.Bid - buy.Ask -
					buy.Ask*buyFee.Taker() - sell.Bid*sellFee.Taker() -
					buyFee.GasCost - sellFee.GasCost

				opps = append(opps, model.NewSimpleOpportunity(model.SimpleArbitrage{
					Pair:                   pair,
					BuyVenue:               buy.Venue,
					SellVenue:              sell.Venue,
					BuyPrice:               buy.Ask,
					SellPrice:              sell.Bid,
					SpreadPercent:          spread,
					EstimatedProfitPerUnit: profit,
					BuyVolume:              buy.Volume,
					SellVolume:             sell.Volume,
				}, snap.CapturedAt))
			}
		}
	}

	sort.SliceStable(opps, func(i, j int) bool {
		return opps[i].Simple.SpreadPercent > opps[j].Simple.SpreadPercent
	})
	e.logger.Debug("ArbitrageEngine: simple scan complete", "pairs", len(pairs), "opportunities", len(opps))
	return opps, nil
}
