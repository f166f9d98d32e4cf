package exchange

import (
	"context"

	"arbitron/internal/model"
)

// ExchangeClient defines the standard interface for all exchange connectors.
// FetchQuote fails with an error wrapping model.ErrQuoteUnavailable when the
// venue cannot price the pair.
type ExchangeClient interface {
	GetName() string
	FetchQuote(ctx context.Context, pair string) (model.Quote, error)
	TestConnection(ctx context.Context) bool
}

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderRequest is a market order for Quantity units of the pair's base asset.
type OrderRequest struct {
	Pair     string
	Side     Side
	Quantity float64
}

// OrderResult reports the fill of an order. Fee is in quote currency.
type OrderResult struct {
	OrderID        string
	FilledQuantity float64
	AveragePrice   float64
	Fee            float64
}

// Notional returns the quote amount exchanged, before fees.
func (r OrderResult) Notional() float64 {
	return r.FilledQuantity * r.AveragePrice
}

// OrderPlacer is implemented by connectors that can trade for real.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
}

// Streamer is implemented by connectors that serve quotes from a live feed.
// Run blocks until ctx is cancelled.
type Streamer interface {
	Run(ctx context.Context) error
}
