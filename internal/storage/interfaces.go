package storage

import (
	"context"

	"indicator-lab/internal/domain"
)

// BundleStore is the durable per-run key/value store. Checkpoints replace
// the whole bundle so readers never see a partially updated run.
type BundleStore interface {
	// Put stores or fully replaces the bundle for runID.
	Put(ctx context.Context, runID string, bundle *domain.RunBundle) error

	// Get retrieves the bundle for runID. Returns ErrNotFound if not exists.
	Get(ctx context.Context, runID string) (*domain.RunBundle, error)

	// GetAll retrieves every stored bundle, ordered by creation time ASC.
	GetAll(ctx context.Context) ([]*domain.RunBundle, error)
}

// BarCache stores fetched OHLCV history so repeated runs avoid re-fetching
// from the exchange. Best effort: a miss or error only costs a refetch.
type BarCache interface {
	// PutBars upserts bars for (symbol, timeframe). Re-inserting the same
	// timestamps is not an error.
	PutBars(ctx context.Context, symbol, timeframe string, bars []domain.Bar) error

	// GetBars retrieves bars within [from, to] inclusive, ordered by
	// timestamp ASC.
	GetBars(ctx context.Context, symbol, timeframe string, from, to int64) ([]domain.Bar, error)
}
