package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	gbinance "github.com/adshao/go-binance/v2"

	"arbitron/internal/config"
	"arbitron/internal/model"
)

// BinanceClient implements the ExchangeClient interface for Binance over
// its REST API.
type BinanceClient struct {
	logger *slog.Logger
	client *gbinance.Client
}

// NewBinanceClient creates a new BinanceClient. Public endpoints work
// without credentials; PlaceOrder needs an API key.
func NewBinanceClient(logger *slog.Logger, cfg config.ExchangeConfig) *BinanceClient {
	client := gbinance.NewClient(cfg.APIKey, cfg.APISecret)
	client.HTTPClient = &http.Client{Timeout: 7 * time.Second}
	if cfg.BaseURL != "" {
		client.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &BinanceClient{logger: logger, client: client}
}

func (b *BinanceClient) GetName() string {
	return "binance"
}

// binanceSymbol maps "BTC/USDT" to "BTCUSDT".
func binanceSymbol(pair string) (string, error) {
	base, quote, ok := model.SplitPair(pair)
	if !ok {
		return "", fmt.Errorf("binance: malformed pair %q", pair)
	}
	return strings.ToUpper(base + quote), nil
}

// FetchQuote reads the top of the order book for pair.
func (b *BinanceClient) FetchQuote(ctx context.Context, pair string) (model.Quote, error) {
	symbol, err := binanceSymbol(pair)
	if err != nil {
		return model.Quote{}, fmt.Errorf("%w: %v", model.ErrQuoteUnavailable, err)
	}

	depth, err := b.client.NewDepthService().Symbol(symbol).Limit(5).Do(ctx)
	if err != nil {
		return model.Quote{}, fmt.Errorf("%w: binance %s: %v", model.ErrQuoteUnavailable, pair, err)
	}
	if len(depth.Bids) == 0 || len(depth.Asks) == 0 {
		return model.Quote{}, fmt.Errorf("%w: binance %s: empty book", model.ErrQuoteUnavailable, pair)
	}

	bid, bidQty, err := parseLevel(depth.Bids[0].Price, depth.Bids[0].Quantity)
	if err != nil {
		return model.Quote{}, fmt.Errorf("%w: binance %s bid: %v", model.ErrQuoteUnavailable, pair, err)
	}
	ask, askQty, err := parseLevel(depth.Asks[0].Price, depth.Asks[0].Quantity)
	if err != nil {
		return model.Quote{}, fmt.Errorf("%w: binance %s ask: %v", model.ErrQuoteUnavailable, pair, err)
	}

	return model.Quote{
		Venue:  b.GetName(),
		Pair:   pair,
		Bid:    bid,
		Ask:    ask,
		Volume: min(bidQty, askQty),
	}, nil
}

func parseLevel(price, qty string) (float64, float64, error) {
	p, err := strconv.ParseFloat(price, 64)
	if err != nil {
		return 0, 0, err
	}
	q, err := strconv.ParseFloat(qty, 64)
	if err != nil {
		return 0, 0, err
	}
	return p, q, nil
}

// TestConnection pings the REST API.
func (b *BinanceClient) TestConnection(ctx context.Context) bool {
	if err := b.client.NewPingService().Do(ctx); err != nil {
		b.logger.Warn("BinanceClient: ping failed", "error", err)
		return false
	}
	return true
}

// PlaceOrder submits a market order and aggregates its fills.
func (b *BinanceClient) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	symbol, err := binanceSymbol(req.Pair)
	if err != nil {
		return OrderResult{}, err
	}
	base, quote, _ := model.SplitPair(req.Pair)

	side := gbinance.SideTypeBuy
	if req.Side == SideSell {
		side = gbinance.SideTypeSell
	}

	res, err := b.client.NewCreateOrderService().
		Symbol(symbol).
		Side(side).
		Type(gbinance.OrderTypeMarket).
		Quantity(strconv.FormatFloat(req.Quantity, 'f', -1, 64)).
		Do(ctx)
	if err != nil {
		return OrderResult{}, fmt.Errorf("binance: place %s %s: %w", req.Side, req.Pair, err)
	}

	var result OrderResult
	result.OrderID = strconv.FormatInt(res.OrderID, 10)
	var notional float64
	for _, fill := range res.Fills {
		price, qty, err := parseLevel(fill.Price, fill.Quantity)
		if err != nil {
			return result, fmt.Errorf("binance: parse fill of order %s: %w", result.OrderID, err)
		}
		commission, _ := strconv.ParseFloat(fill.Commission, 64)
		switch strings.ToUpper(fill.CommissionAsset) {
		case strings.ToUpper(quote):
			result.Fee += commission
		case strings.ToUpper(base):
			result.Fee += commission * price
		default:
			b.logger.Warn("BinanceClient: commission paid in foreign asset", "asset", fill.CommissionAsset, "order", result.OrderID)
		}
		result.FilledQuantity += qty
		notional += price * qty
	}
	if result.FilledQuantity > 0 {
		result.AveragePrice = notional / result.FilledQuantity
	}
	b.logger.Info("BinanceClient: order filled", "pair", req.Pair, "side", req.Side, "qty", result.FilledQuantity, "avgPrice", result.AveragePrice)
	return result, nil
}
