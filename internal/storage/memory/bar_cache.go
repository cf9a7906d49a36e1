package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"indicator-lab/internal/domain"
	"indicator-lab/internal/storage"
)

// BarCache is an in-memory implementation of storage.BarCache.
type BarCache struct {
	mu   sync.RWMutex
	data map[string]map[int64]domain.Bar // series key -> timestamp -> bar
}

// NewBarCache creates a new in-memory bar cache.
func NewBarCache() *BarCache {
	return &BarCache{
		data: make(map[string]map[int64]domain.Bar),
	}
}

// seriesKey generates a unique key for a (symbol, timeframe) series.
func seriesKey(symbol, timeframe string) string {
	return fmt.Sprintf("%s|%s", symbol, timeframe)
}

// PutBars upserts bars for (symbol, timeframe).
func (c *BarCache) PutBars(_ context.Context, symbol, timeframe string, bars []domain.Bar) error {
	if symbol == "" || timeframe == "" {
		return storage.ErrInvalidInput
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := seriesKey(symbol, timeframe)
	series, ok := c.data[key]
	if !ok {
		series = make(map[int64]domain.Bar, len(bars))
		c.data[key] = series
	}
	for _, bar := range bars {
		series[bar.Timestamp] = bar
	}
	return nil
}

// GetBars retrieves bars within [from, to] inclusive, ordered by timestamp ASC.
func (c *BarCache) GetBars(_ context.Context, symbol, timeframe string, from, to int64) ([]domain.Bar, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []domain.Bar
	for ts, bar := range c.data[seriesKey(symbol, timeframe)] {
		if ts >= from && ts <= to {
			out = append(out, bar)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp < out[j].Timestamp
	})
	return out, nil
}

var _ storage.BarCache = (*BarCache)(nil)
