// Package marketdata is the single I/O boundary of the lab: it selects the
// symbol universe and fetches OHLCV history from the exchange REST API with
// retry, rate limiting, and per-attempt diagnostics. Every other component
// operates on already-materialized in-memory series.
package marketdata

import (
	"context"
	"errors"

	"indicator-lab/internal/domain"
)

// Client is the market data contract consumed by the orchestrator.
type Client interface {
	// SelectUniverse ranks instruments by a composite of traded volume,
	// price-change magnitude, and trade count and returns the top topN
	// symbols. Leveraged-token and stable-asset symbols are filtered out;
	// ties break by symbol lexical order.
	SelectUniverse(ctx context.Context, topN int) ([]string, error)

	// FetchHistory returns up to days of OHLCV history for the symbol and
	// timeframe, oldest first, paginating forward in fixed-size windows
	// until the horizon is covered or the source returns an empty page.
	FetchHistory(ctx context.Context, symbol, timeframe string, days int) ([]domain.Bar, error)
}

// Client errors.
var (
	// ErrUniverseEmpty is returned when ranking yields no eligible symbols.
	ErrUniverseEmpty = errors.New("universe selection returned no symbols")

	// ErrUnknownTimeframe is returned for a timeframe outside the supported set.
	ErrUnknownTimeframe = errors.New("unknown timeframe")
)
