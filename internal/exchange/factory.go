package exchange

import (
	"fmt"
	"log/slog"

	"arbitron/internal/config"
	"arbitron/internal/model"
)

// NewClient creates a new exchange client based on the given name and
// configuration. Streaming connectors subscribe to pairs.
func NewClient(name string, logger *slog.Logger, cfg config.ExchangeConfig, pairs []string) (ExchangeClient, error) {
	switch name {
	case "kraken":
		return NewKrakenClient(logger, cfg, pairs), nil
	case "binance":
		return NewBinanceClient(logger, cfg), nil
	default:
		return nil, fmt.Errorf("%w: unknown exchange: %s", model.ErrConfiguration, name)
	}
}
