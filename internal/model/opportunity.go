package model

import (
	"fmt"
	"strings"
	"time"
)

// OpportunityKind tags the variant carried by an Opportunity.
type OpportunityKind string

const (
	KindSimple     OpportunityKind = "simple"
	KindTriangular OpportunityKind = "triangular"
)

// Direction tells how a triangular leg uses its pair.
type Direction string

const (
	// Forward uses the pair as quoted, converting at 1/ask.
	Forward Direction = "forward"
	// Reverse uses the inverse pair, converting at bid.
	Reverse Direction = "reverse"
)

// SimpleArbitrage is a buy-low/sell-high across two venues.
type SimpleArbitrage struct {
	Pair                   string  `json:"pair"`
	BuyVenue               string  `json:"buy_venue"`
	SellVenue              string  `json:"sell_venue"`
	BuyPrice               float64 `json:"buy_price"`
	SellPrice              float64 `json:"sell_price"`
	SpreadPercent          float64 `json:"spread_percent"`
	EstimatedProfitPerUnit float64 `json:"estimated_profit_per_unit"`
	BuyVolume              float64 `json:"buy_volume"`
	SellVolume             float64 `json:"sell_volume"`
}

// TriangularStep is one conversion in a triangular cycle.
type TriangularStep struct {
	Pair          string    `json:"pair"`
	Direction     Direction `json:"direction"`
	EffectiveRate float64   `json:"effective_rate"`
	FeePercent    float64   `json:"fee_percent"`
}

// TriangularArbitrage is an A->B->C->A cycle inside one venue.
type TriangularArbitrage struct {
	Venue                  string           `json:"venue"`
	Cycle                  [3]string        `json:"cycle"`
	Steps                  []TriangularStep `json:"steps"`
	ProfitPercent          float64          `json:"profit_percent"`
	EstimatedProfitPerUnit float64          `json:"estimated_profit_per_unit"`
}

// Opportunity is a tagged union of the detectable arbitrage variants.
// Exactly one of Simple or Triangular is set, according to Kind.
type Opportunity struct {
	ID         string               `json:"id"`
	Kind       OpportunityKind      `json:"kind"`
	DetectedAt time.Time            `json:"detected_at"`
	Simple     *SimpleArbitrage     `json:"simple,omitempty"`
	Triangular *TriangularArbitrage `json:"triangular,omitempty"`
}

// NewSimpleOpportunity wraps s, deriving its identifier from the venues,
// the pair and the detection time.
func NewSimpleOpportunity(s SimpleArbitrage, at time.Time) Opportunity {
	return Opportunity{
		ID:         fmt.Sprintf("%s-%s-%s-%d", s.BuyVenue, s.SellVenue, s.Pair, at.UnixNano()),
		Kind:       KindSimple,
		DetectedAt: at,
		Simple:     &s,
	}
}

// NewTriangularOpportunity wraps t, deriving its identifier from the venue,
// the asset cycle and the detection time.
func NewTriangularOpportunity(t TriangularArbitrage, at time.Time) Opportunity {
	return Opportunity{
		ID:         fmt.Sprintf("%s-%s-%d", t.Venue, strings.Join(t.Cycle[:], "-"), at.UnixNano()),
		Kind:       KindTriangular,
		DetectedAt: at,
		Triangular: &t,
	}
}

// Pair returns the traded pair, or the asset cycle for triangular trades.
func (o Opportunity) Pair() string {
	switch {
	case o.Simple != nil:
		return o.Simple.Pair
	case o.Triangular != nil:
		return strings.Join(o.Triangular.Cycle[:], "/")
	}
	return ""
}

// Venues lists the venues an execution would touch.
func (o Opportunity) Venues() []string {
	switch {
	case o.Simple != nil:
		return []string{o.Simple.BuyVenue, o.Simple.SellVenue}
	case o.Triangular != nil:
		return []string{o.Triangular.Venue}
	}
	return nil
}

// ProfitPercent is the spread for simple trades and the cycle profit for
// triangular ones.
func (o Opportunity) ProfitPercent() float64 {
	switch {
	case o.Simple != nil:
		return o.Simple.SpreadPercent
	case o.Triangular != nil:
		return o.Triangular.ProfitPercent
	}
	return 0
}

// EstimatedProfit is the expected profit for one unit traded.
func (o Opportunity) EstimatedProfit() float64 {
	switch {
	case o.Simple != nil:
		return o.Simple.EstimatedProfitPerUnit
	case o.Triangular != nil:
		return o.Triangular.EstimatedProfitPerUnit
	}
	return 0
}

// Trade builds the record of a completed execution of o.
func (o Opportunity) Trade(id string, at time.Time, realized float64) TradeRecord {
	rec := TradeRecord{
		ID:             id,
		OpportunityID:  o.ID,
		Timestamp:      at,
		Kind:           o.Kind,
		Pair:           o.Pair(),
		RealizedProfit: realized,
		Status:         TradeCompleted,
	}
	switch {
	case o.Simple != nil:
		rec.BuyVenue, rec.SellVenue = o.Simple.BuyVenue, o.Simple.SellVenue
	case o.Triangular != nil:
		rec.BuyVenue, rec.SellVenue = o.Triangular.Venue, o.Triangular.Venue
	}
	return rec
}
