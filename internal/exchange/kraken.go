package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"arbitron/internal/config"
	"arbitron/internal/model"
)

const (
	krakenWSURL     = "wss://ws.kraken.com"
	krakenMaxQuote  = 30 * time.Second
	krakenMaxBackof = 16 * time.Second
)

// KrakenClient implements the ExchangeClient interface for Kraken. Quotes are
// streamed over the public ticker WebSocket and served from a local cache, so
// Run must be active for FetchQuote to succeed.
type KrakenClient struct {
	logger *slog.Logger
	url    string
	pairs  []string
	maxAge time.Duration
	now    func() time.Time

	connected atomic.Bool

	mu     sync.RWMutex
	quotes map[string]krakenQuote
}

type krakenQuote struct {
	quote    model.Quote
	received time.Time
}

// NewKrakenClient creates a new KrakenClient streaming the given pairs.
func NewKrakenClient(logger *slog.Logger, cfg config.ExchangeConfig, pairs []string) *KrakenClient {
	url := cfg.WSURL
	if url == "" {
		url = krakenWSURL
	}
	return &KrakenClient{
		logger: logger,
		url:    url,
		pairs:  append([]string(nil), pairs...),
		maxAge: krakenMaxQuote,
		now:    time.Now,
		quotes: make(map[string]krakenQuote),
	}
}

func (k *KrakenClient) GetName() string {
	return "kraken"
}

// krakenPair maps "BTC/USDT" to Kraken's "XBT/USDT".
func krakenPair(pair string) string {
	base, quote, ok := model.SplitPair(pair)
	if !ok {
		return pair
	}
	conv := func(s string) string {
		if strings.EqualFold(s, "BTC") {
			return "XBT"
		}
		return strings.ToUpper(s)
	}
	return conv(base) + "/" + conv(quote)
}

// fromKrakenPair is the inverse of krakenPair.
func fromKrakenPair(pair string) string {
	base, quote, ok := model.SplitPair(pair)
	if !ok {
		return pair
	}
	conv := func(s string) string {
		if s == "XBT" {
			return "BTC"
		}
		return s
	}
	return conv(base) + "/" + conv(quote)
}

// FetchQuote returns the latest streamed ticker for pair.
func (k *KrakenClient) FetchQuote(_ context.Context, pair string) (model.Quote, error) {
	k.mu.RLock()
	cached, ok := k.quotes[pair]
	k.mu.RUnlock()
	if !ok {
		return model.Quote{}, fmt.Errorf("%w: kraken %s: no ticker received", model.ErrQuoteUnavailable, pair)
	}
	if age := k.now().Sub(cached.received); age > k.maxAge {
		return model.Quote{}, fmt.Errorf("%w: kraken %s: ticker is %s old", model.ErrQuoteUnavailable, pair, age.Round(time.Second))
	}
	return cached.quote, nil
}

// TestConnection reports whether the stream currently holds an open socket.
func (k *KrakenClient) TestConnection(context.Context) bool {
	return k.connected.Load()
}

// Run connects to the Kraken WebSocket API and keeps the quote cache fresh,
// reconnecting with exponential backoff until ctx is cancelled.
func (k *KrakenClient) Run(ctx context.Context) error {
	if len(k.pairs) == 0 {
		return fmt.Errorf("%w: kraken: no pairs to subscribe", model.ErrConfiguration)
	}
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			k.logger.Info("KrakenClient: context cancelled, shutting down")
			return nil
		}

		k.logger.Info("KrakenClient: connecting to WebSocket", "url", k.url, "backoff", backoff)
		err := k.session(ctx)
		if k.connected.Swap(false) {
			// subscription went through, start over from the shortest wait
			backoff = time.Second
		}
		if err != nil && ctx.Err() == nil {
			k.logger.Error("KrakenClient: stream interrupted", "error", err)
		}

		select {
		case <-ctx.Done():
			k.logger.Info("KrakenClient: context cancelled, shutting down")
			return nil
		case <-time.After(backoff):
			backoff *= 2
			if backoff > krakenMaxBackof {
				backoff = krakenMaxBackof
			}
		}
	}
}

// session runs a single connection until it fails or ctx is done.
func (k *KrakenClient) session(ctx context.Context) error {
	c, _, err := websocket.DefaultDialer.DialContext(ctx, k.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer c.Close()

	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	wirePairs := make([]string, 0, len(k.pairs))
	for _, p := range k.pairs {
		wirePairs = append(wirePairs, krakenPair(p))
	}
	subscription := map[string]interface{}{
		"event": "subscribe",
		"pair":  wirePairs,
		"subscription": map[string]string{
			"name": "ticker",
		},
	}
	if err := c.WriteJSON(subscription); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	k.connected.Store(true)
	k.logger.Info("KrakenClient: subscription sent successfully", "pairs", wirePairs)

	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		if err := k.handleMessage(message); err != nil {
			k.logger.Warn("KrakenClient: failed to parse message", "error", err)
		}
	}
}

var errNotTicker = errors.New("not a ticker message")

func (k *KrakenClient) handleMessage(message []byte) error {
	trimmed := strings.TrimSpace(string(message))
	if strings.HasPrefix(trimmed, "{") {
		var event struct {
			Event        string `json:"event"`
			Status       string `json:"status"`
			Pair         string `json:"pair"`
			ErrorMessage string `json:"errorMessage"`
		}
		if err := json.Unmarshal(message, &event); err != nil {
			return err
		}
		switch event.Event {
		case "subscriptionStatus":
			if event.Status == "error" {
				k.logger.Error("KrakenClient: subscription rejected", "pair", event.Pair, "error", event.ErrorMessage)
			} else {
				k.logger.Info("KrakenClient: subscription confirmed", "pair", event.Pair)
			}
		case "heartbeat", "systemStatus":
		default:
			k.logger.Debug("KrakenClient: unhandled event", "event", event.Event)
		}
		return nil
	}

	q, err := parseKrakenTicker(message)
	if err != nil {
		if errors.Is(err, errNotTicker) {
			return nil
		}
		return err
	}
	k.mu.Lock()
	k.quotes[q.Pair] = krakenQuote{quote: q, received: k.now()}
	k.mu.Unlock()
	k.logger.Debug("KrakenClient: ticker", "pair", q.Pair, "bid", q.Bid, "ask", q.Ask)
	return nil
}

// parseKrakenTicker decodes the array form
// [channelID, {"a":[price,whole,lot],"b":[...],...}, "ticker", "XBT/USD"].
func parseKrakenTicker(message []byte) (model.Quote, error) {
	var frame []json.RawMessage
	if err := json.Unmarshal(message, &frame); err != nil {
		return model.Quote{}, err
	}
	if len(frame) < 4 {
		return model.Quote{}, errNotTicker
	}
	var channel, pair string
	if err := json.Unmarshal(frame[len(frame)-2], &channel); err != nil || channel != "ticker" {
		return model.Quote{}, errNotTicker
	}
	if err := json.Unmarshal(frame[len(frame)-1], &pair); err != nil {
		return model.Quote{}, fmt.Errorf("ticker pair: %w", err)
	}
	var data struct {
		Ask []json.RawMessage `json:"a"`
		Bid []json.RawMessage `json:"b"`
	}
	if err := json.Unmarshal(frame[1], &data); err != nil {
		return model.Quote{}, fmt.Errorf("ticker body: %w", err)
	}

	bid, bidQty, err := krakenLevel(data.Bid)
	if err != nil {
		return model.Quote{}, fmt.Errorf("ticker %s bid: %w", pair, err)
	}
	ask, askQty, err := krakenLevel(data.Ask)
	if err != nil {
		return model.Quote{}, fmt.Errorf("ticker %s ask: %w", pair, err)
	}
	return model.Quote{
		Venue:  "kraken",
		Pair:   fromKrakenPair(pair),
		Bid:    bid,
		Ask:    ask,
		Volume: min(bidQty, askQty),
	}, nil
}

// krakenLevel reads price and lot volume from [price, wholeLotVolume, lotVolume].
func krakenLevel(level []json.RawMessage) (float64, float64, error) {
	if len(level) < 3 {
		return 0, 0, errors.New("short price level")
	}
	var price, qty string
	if err := json.Unmarshal(level[0], &price); err != nil {
		return 0, 0, fmt.Errorf("price: %w", err)
	}
	if err := json.Unmarshal(level[2], &qty); err != nil {
		return 0, 0, fmt.Errorf("volume: %w", err)
	}
	return parseLevel(price, qty)
}
