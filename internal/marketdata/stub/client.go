// Package stub provides a deterministic offline market data source for
// tests and --offline research passes.
package stub

import (
	"context"
	"fmt"
	"math"

	"indicator-lab/internal/domain"
	"indicator-lab/internal/marketdata"
)

// anchorMs fixes the stub's "now" so generated series are reproducible.
const anchorMs = int64(1_700_000_000_000)

// defaultSymbols is the stub universe, ranked.
var defaultSymbols = []string{
	"BTCUSDT", "ETHUSDT", "SOLUSDT", "BNBUSDT", "XRPUSDT",
	"ADAUSDT", "DOGEUSDT", "AVAXUSDT", "LINKUSDT", "DOTUSDT",
}

// Client is a deterministic in-memory implementation of marketdata.Client.
// Each symbol gets a distinct drift/wiggle profile derived from its name.
type Client struct {
	seed int64
}

// NewClient creates a stub client. seed varies the generated price paths.
func NewClient(seed int64) *Client {
	return &Client{seed: seed}
}

// SelectUniverse implements marketdata.Client.
func (c *Client) SelectUniverse(_ context.Context, topN int) ([]string, error) {
	if topN > len(defaultSymbols) {
		topN = len(defaultSymbols)
	}
	out := make([]string, topN)
	copy(out, defaultSymbols[:topN])
	return out, nil
}

// FetchHistory implements marketdata.Client.
func (c *Client) FetchHistory(_ context.Context, symbol, timeframe string, days int) ([]domain.Bar, error) {
	minutes, ok := domain.TimeframeMinutes[timeframe]
	if !ok {
		return nil, fmt.Errorf("%w: %s", marketdata.ErrUnknownTimeframe, timeframe)
	}

	n := days * 24 * 60 / minutes
	barMs := int64(minutes) * 60 * 1000
	start := anchorMs - int64(n)*barMs

	// Per-symbol profile: drift, wiggle period, and phase from a hash of
	// (seed, symbol) so paths differ but stay reproducible.
	h := hash(fmt.Sprintf("%d|%s", c.seed, symbol))
	drift := 0.0004 + float64(h%7)*0.0004
	period := 5.0 + float64((h>>8)%17)
	phase := float64((h >> 16) % 628) / 100

	bars := make([]domain.Bar, n)
	price := 50.0 + float64(h%1000)
	for i := 0; i < n; i++ {
		wave := 0.004 * math.Sin(float64(i)/period+phase)
		price *= 1 + drift + wave
		bars[i] = domain.Bar{
			Timestamp: start + int64(i)*barMs,
			Open:      price * (1 - 0.001),
			High:      price * (1 + 0.002),
			Low:       price * (1 - 0.002),
			Close:     price,
			Volume:    1000 + 200*math.Cos(float64(i)/period),
		}
	}
	return bars, nil
}

// hash is 64-bit FNV-1a.
func hash(s string) uint64 {
	h := uint64(14695981039346656037)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return h
}

var _ marketdata.Client = (*Client)(nil)
