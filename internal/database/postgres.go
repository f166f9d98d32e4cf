package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"arbitron/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
	id TEXT PRIMARY KEY,
	opportunity_id TEXT NOT NULL,
	timestamp TIMESTAMPTZ NOT NULL,
	kind VARCHAR(20) NOT NULL,
	pair VARCHAR(40) NOT NULL,
	buy_venue VARCHAR(50) NOT NULL,
	sell_venue VARCHAR(50) NOT NULL,
	realized_profit DOUBLE PRECISION NOT NULL,
	status VARCHAR(20) NOT NULL
);
CREATE INDEX IF NOT EXISTS trades_timestamp_idx ON trades (timestamp DESC);

CREATE TABLE IF NOT EXISTS daily_ledger (
	day TEXT PRIMARY KEY,
	cumulative_profit DOUBLE PRECISION NOT NULL DEFAULT 0,
	cumulative_loss DOUBLE PRECISION NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

// PostgresRepository stores trades and the daily ledger in PostgreSQL. It
// satisfies both Repository and risk.LedgerStore.
type PostgresRepository struct {
	Pool *pgxpool.Pool
}

// NewPostgresRepository connects to dsn and verifies the connection.
func NewPostgresRepository(ctx context.Context, dsn string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("database: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database: ping: %w", err)
	}
	return &PostgresRepository{Pool: pool}, nil
}

// Migrate creates the tables if they do not exist.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("database: migrate: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Close() {
	r.Pool.Close()
}

func (r *PostgresRepository) LogTrade(ctx context.Context, trade model.TradeRecord) error {
	const query = `
		INSERT INTO trades (
			id, opportunity_id, timestamp, kind, pair,
			buy_venue, sell_venue, realized_profit, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`
	_, err := r.Pool.Exec(ctx, query,
		trade.ID, trade.OpportunityID, trade.Timestamp, string(trade.Kind), trade.Pair,
		trade.BuyVenue, trade.SellVenue, trade.RealizedProfit, string(trade.Status),
	)
	if err != nil {
		return fmt.Errorf("database: log trade %s: %w", trade.ID, err)
	}
	return nil
}

// RecentTrades returns up to limit trades, newest first.
func (r *PostgresRepository) RecentTrades(ctx context.Context, limit int) ([]model.TradeRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	const query = `
		SELECT id, opportunity_id, timestamp, kind, pair,
			buy_venue, sell_venue, realized_profit, status
		FROM trades
		ORDER BY timestamp DESC, id
		LIMIT $1`
	rows, err := r.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("database: recent trades: %w", err)
	}
	defer rows.Close()

	var trades []model.TradeRecord
	for rows.Next() {
		var (
			t            model.TradeRecord
			kind, status string
		)
		if err := rows.Scan(
			&t.ID, &t.OpportunityID, &t.Timestamp, &kind, &t.Pair,
			&t.BuyVenue, &t.SellVenue, &t.RealizedProfit, &status,
		); err != nil {
			return nil, fmt.Errorf("database: scan trade: %w", err)
		}
		t.Kind, t.Status = model.OpportunityKind(kind), model.TradeStatus(status)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func (r *PostgresRepository) LoadLedger(ctx context.Context, day string) (model.LedgerEntry, error) {
	const query = `
		SELECT day, cumulative_profit, cumulative_loss, updated_at
		FROM daily_ledger WHERE day = $1`
	var e model.LedgerEntry
	err := r.Pool.QueryRow(ctx, query, day).Scan(&e.Date, &e.CumulativeProfit, &e.CumulativeLoss, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.LedgerEntry{}, fmt.Errorf("database: ledger %s: %w", day, model.ErrNotFound)
	}
	if err != nil {
		return model.LedgerEntry{}, fmt.Errorf("database: load ledger %s: %w", day, err)
	}
	return e, nil
}

func (r *PostgresRepository) SaveLedger(ctx context.Context, entry model.LedgerEntry) error {
	const query = `
		INSERT INTO daily_ledger (day, cumulative_profit, cumulative_loss, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (day) DO UPDATE SET
			cumulative_profit = EXCLUDED.cumulative_profit,
			cumulative_loss = EXCLUDED.cumulative_loss,
			updated_at = EXCLUDED.updated_at`
	_, err := r.Pool.Exec(ctx, query, entry.Date, entry.CumulativeProfit, entry.CumulativeLoss, entry.UpdatedAt)
	if err != nil {
		return fmt.Errorf("database: save ledger %s: %w", entry.Date, err)
	}
	return nil
}
