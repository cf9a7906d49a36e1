package clickhouse

import (
	"context"
	"fmt"

	"indicator-lab/internal/domain"
	"indicator-lab/internal/storage"
)

// BarCache implements storage.BarCache using ClickHouse.
// The bars table uses ReplacingMergeTree keyed by (symbol, timeframe,
// timestamp_ms); reads use FINAL so re-inserted timestamps deduplicate
// regardless of merge timing.
type BarCache struct {
	conn *Conn
}

// NewBarCache creates a new BarCache.
func NewBarCache(conn *Conn) *BarCache {
	return &BarCache{conn: conn}
}

// Compile-time interface check.
var _ storage.BarCache = (*BarCache)(nil)

// PutBars upserts bars for (symbol, timeframe) in a single batch.
func (c *BarCache) PutBars(ctx context.Context, symbol, timeframe string, bars []domain.Bar) error {
	if symbol == "" || timeframe == "" {
		return storage.ErrInvalidInput
	}
	if len(bars) == 0 {
		return nil
	}

	batch, err := c.conn.PrepareBatch(ctx, `
		INSERT INTO bars (
			symbol, timeframe, timestamp_ms, open, high, low, close, volume
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, b := range bars {
		err = batch.Append(
			symbol, timeframe, b.Timestamp,
			b.Open, b.High, b.Low, b.Close, b.Volume,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetBars retrieves bars within [from, to] inclusive, ordered by timestamp ASC.
func (c *BarCache) GetBars(ctx context.Context, symbol, timeframe string, from, to int64) ([]domain.Bar, error) {
	if symbol == "" || timeframe == "" {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT timestamp_ms, open, high, low, close, volume
		FROM bars FINAL
		WHERE symbol = ? AND timeframe = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := c.conn.Query(ctx, query, symbol, timeframe, from, to)
	if err != nil {
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	var bars []domain.Bar
	for rows.Next() {
		var b domain.Bar
		if err := rows.Scan(&b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar row: %w", err)
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bar rows: %w", err)
	}

	return bars, nil
}
