package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"indicator-lab/internal/domain"
	"indicator-lab/internal/storage"
)

func sampleBundle(runID string, createdAt int64) *domain.RunBundle {
	return &domain.RunBundle{
		Record: &domain.RunRecord{
			RunID:     runID,
			Status:    domain.StatusCompleted,
			Stage:     domain.StageFinished,
			Progress:  1,
			CreatedAt: createdAt,
			UpdatedAt: createdAt + 60_000,
			Logs: []domain.LogEntry{
				{Timestamp: createdAt, Stage: domain.StageCreated, Message: "run created"},
			},
		},
		Config: domain.RunConfig{TopNSymbols: 3, Timeframes: []string{"1h"}, BudgetMinutes: 10, RandomSeed: 7},
		Summary: &domain.ResultSummary{
			RunID: runID,
			Recommendations: []domain.Recommendation{
				{Symbol: "BTCUSDT", Timeframe: "1h", Expression: "close/sma(close,21)", Horizon: 13, HitRate: 0.6, PnL: 0.04},
			},
		},
		Telemetry: []domain.TelemetrySnapshot{
			{Timestamp: createdAt, Stage: domain.StageUniverse, OverallProgress: 0.1},
		},
	}
}

func TestBundleStore_PutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewBundleStore()
	bundle := sampleBundle("run_a", 1000)

	require.NoError(t, store.Put(ctx, "run_a", bundle))

	got, err := store.Get(ctx, "run_a")
	require.NoError(t, err)
	assert.Equal(t, bundle, got)
}

func TestBundleStore_GetNotFound(t *testing.T) {
	store := NewBundleStore()

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestBundleStore_PutReplaces(t *testing.T) {
	ctx := context.Background()
	store := NewBundleStore()

	first := sampleBundle("run_a", 1000)
	require.NoError(t, store.Put(ctx, "run_a", first))

	second := sampleBundle("run_a", 1000)
	second.Record.Status = domain.StatusFailed
	second.Record.Error = "boom"
	second.Summary = nil
	require.NoError(t, store.Put(ctx, "run_a", second))

	got, err := store.Get(ctx, "run_a")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Record.Status)
	assert.Nil(t, got.Summary, "replace must drop fields absent from the new bundle")
}

func TestBundleStore_GetAllOrdered(t *testing.T) {
	ctx := context.Background()
	store := NewBundleStore()

	require.NoError(t, store.Put(ctx, "run_b", sampleBundle("run_b", 2000)))
	require.NoError(t, store.Put(ctx, "run_a", sampleBundle("run_a", 1000)))
	require.NoError(t, store.Put(ctx, "run_c", sampleBundle("run_c", 3000)))

	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "run_a", all[0].Record.RunID)
	assert.Equal(t, "run_b", all[1].Record.RunID)
	assert.Equal(t, "run_c", all[2].Record.RunID)
}

func TestBundleStore_CallerMutationIsolated(t *testing.T) {
	ctx := context.Background()
	store := NewBundleStore()

	bundle := sampleBundle("run_a", 1000)
	require.NoError(t, store.Put(ctx, "run_a", bundle))

	// Mutating the caller's copy must not affect the stored bundle.
	bundle.Record.Status = domain.StatusFailed

	got, err := store.Get(ctx, "run_a")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Record.Status)
}

func TestBundleStore_InvalidInput(t *testing.T) {
	ctx := context.Background()
	store := NewBundleStore()

	assert.ErrorIs(t, store.Put(ctx, "", sampleBundle("x", 1)), storage.ErrInvalidInput)
	assert.ErrorIs(t, store.Put(ctx, "x", nil), storage.ErrInvalidInput)
	assert.ErrorIs(t, store.Put(ctx, "x", &domain.RunBundle{}), storage.ErrInvalidInput)
}
