package database

import (
	"context"

	"arbitron/internal/model"
)

// Repository defines the standard interface for trade log persistence.
type Repository interface {
	LogTrade(ctx context.Context, trade model.TradeRecord) error
	RecentTrades(ctx context.Context, limit int) ([]model.TradeRecord, error)
}
