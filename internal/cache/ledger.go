package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"arbitron/internal/model"
)

// RedisLedger stores each day's ledger entry as a hash at "ledger:{day}"
// with fields profit, loss and ts (Unix nanoseconds). Keys carry no expiry.
type RedisLedger struct {
	rdb *redis.Client
}

func NewRedisLedger(c *Client) *RedisLedger {
	return &RedisLedger{rdb: c.rdb}
}

func ledgerKey(day string) string {
	return "ledger:" + day
}

func (l *RedisLedger) LoadLedger(ctx context.Context, day string) (model.LedgerEntry, error) {
	vals, err := l.rdb.HGetAll(ctx, ledgerKey(day)).Result()
	if err != nil {
		return model.LedgerEntry{}, fmt.Errorf("redis: load ledger %s: %w", day, err)
	}
	if len(vals) == 0 {
		return model.LedgerEntry{}, fmt.Errorf("redis: ledger %s: %w", day, model.ErrNotFound)
	}

	entry := model.LedgerEntry{Date: day}
	if entry.CumulativeProfit, err = strconv.ParseFloat(vals["profit"], 64); err != nil {
		return model.LedgerEntry{}, fmt.Errorf("redis: parse profit %s: %w", day, err)
	}
	if entry.CumulativeLoss, err = strconv.ParseFloat(vals["loss"], 64); err != nil {
		return model.LedgerEntry{}, fmt.Errorf("redis: parse loss %s: %w", day, err)
	}
	if ts, err := strconv.ParseInt(vals["ts"], 10, 64); err == nil {
		entry.UpdatedAt = time.Unix(0, ts).UTC()
	}
	return entry, nil
}

func (l *RedisLedger) SaveLedger(ctx context.Context, entry model.LedgerEntry) error {
	key := ledgerKey(entry.Date)
	fields := map[string]interface{}{
		"profit": strconv.FormatFloat(entry.CumulativeProfit, 'f', -1, 64),
		"loss":   strconv.FormatFloat(entry.CumulativeLoss, 'f', -1, 64),
		"ts":     strconv.FormatInt(entry.UpdatedAt.UnixNano(), 10),
	}
	if err := l.rdb.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("redis: save ledger %s: %w", entry.Date, err)
	}
	return nil
}
