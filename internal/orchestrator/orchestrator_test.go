package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/creasty/defaults"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"indicator-lab/internal/domain"
	"indicator-lab/internal/marketdata"
	"indicator-lab/internal/marketdata/stub"
	"indicator-lab/internal/storage/memory"
)

func testConfig(t *testing.T) domain.RunConfig {
	t.Helper()
	cfg := domain.RunConfig{
		TopNSymbols:   1,
		Timeframes:    []string{"1h"},
		BudgetMinutes: 1,
		RandomSeed:    42,
	}
	require.NoError(t, defaults.Set(&cfg))
	return cfg
}

func newTestOrchestrator(client marketdata.Client) (*Orchestrator, *memory.BundleStore) {
	store := memory.NewBundleStore()
	o := New(Options{
		Store:  store,
		Market: client,
		Logger: zerolog.Nop(),
	})
	return o, store
}

func waitTerminal(t *testing.T, o *Orchestrator, runID string) *domain.RunRecord {
	t.Helper()
	var rec *domain.RunRecord
	require.Eventually(t, func() bool {
		r, err := o.GetRun(runID)
		if err != nil {
			return false
		}
		rec = r
		return r.Status.Terminal()
	}, 60*time.Second, 20*time.Millisecond, "run never reached a terminal state")
	return rec
}

func TestRun_CompletesWithStubClient(t *testing.T) {
	o, store := newTestOrchestrator(stub.NewClient(7))

	rec, err := o.CreateRun(context.Background(), testConfig(t))
	require.NoError(t, err)
	assert.NotEmpty(t, rec.RunID)

	final := waitTerminal(t, o, rec.RunID)
	require.Equal(t, domain.StatusCompleted, final.Status, "error: %s", final.Error)
	assert.Equal(t, domain.StageFinished, final.Stage)
	assert.Equal(t, 1.0, final.Progress)
	assert.Empty(t, final.Error)

	summary, err := o.Results(rec.RunID)
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, rec.RunID, summary.RunID)
	assert.Len(t, summary.Outcomes, 1)
	assert.NotEmpty(t, summary.Recommendations)

	// Terminal state must be checkpointed.
	persisted, err := store.Get(context.Background(), rec.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, persisted.Record.Status)
	assert.NotNil(t, persisted.Summary)
	assert.NotEmpty(t, persisted.Plots)
	assert.NotEmpty(t, persisted.Telemetry)
}

func TestResults_BeforeCompletion(t *testing.T) {
	gate := make(chan struct{})
	client := &blockingClient{inner: stub.NewClient(7), gate: gate}
	o, _ := newTestOrchestrator(client)

	rec, err := o.CreateRun(context.Background(), testConfig(t))
	require.NoError(t, err)

	_, err = o.Results(rec.RunID)
	assert.ErrorIs(t, err, ErrNotCompleted)

	close(gate)
	waitTerminal(t, o, rec.RunID)
}

func TestCreateRun_RejectedWhileActive(t *testing.T) {
	gate := make(chan struct{})
	client := &blockingClient{inner: stub.NewClient(7), gate: gate}
	o, _ := newTestOrchestrator(client)

	first, err := o.CreateRun(context.Background(), testConfig(t))
	require.NoError(t, err)

	// Let the run settle into running (it parks in universe selection).
	require.Eventually(t, func() bool {
		r, err := o.GetRun(first.RunID)
		return err == nil && r.Status == domain.StatusRunning
	}, 10*time.Second, 10*time.Millisecond)

	before, err := o.GetRun(first.RunID)
	require.NoError(t, err)

	_, err = o.CreateRun(context.Background(), testConfig(t))
	assert.ErrorIs(t, err, ErrRunActive)

	// The rejection must not touch the active run.
	after, err := o.GetRun(first.RunID)
	require.NoError(t, err)
	assert.Equal(t, before.Status, after.Status)
	assert.Equal(t, before.Stage, after.Stage)
	assert.Equal(t, len(before.Logs), len(after.Logs))

	close(gate)
	waitTerminal(t, o, first.RunID)

	// A terminal run frees the slot.
	_, err = o.CreateRun(context.Background(), testConfig(t))
	require.NoError(t, err)
}

func TestCancel_PreservesFinishedOutcomes(t *testing.T) {
	client := &holdSecondPairClient{
		inner:   stub.NewClient(7),
		reached: make(chan struct{}),
	}
	o, store := newTestOrchestrator(client)

	cfg := testConfig(t)
	rec, err := o.CreateRun(context.Background(), cfg)
	require.NoError(t, err)

	// Wait until the first pair is done and the second fetch is in flight.
	select {
	case <-client.reached:
	case <-time.After(60 * time.Second):
		t.Fatal("second pair fetch never started")
	}

	require.NoError(t, o.CancelRun(rec.RunID))

	final := waitTerminal(t, o, rec.RunID)
	require.Equal(t, domain.StatusCanceled, final.Status)

	// The finished pair's outcome survives cancellation.
	bundle, err := o.Bundle(rec.RunID)
	require.NoError(t, err)
	require.NotNil(t, bundle.Summary)
	require.Len(t, bundle.Summary.Outcomes, 1)
	assert.Equal(t, "AAAUSDT", bundle.Summary.Outcomes[0].Symbol)

	persisted, err := store.Get(context.Background(), rec.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCanceled, persisted.Record.Status)

	// Canceled runs do not serve results as if complete.
	_, err = o.Results(rec.RunID)
	assert.ErrorIs(t, err, ErrNotCompleted)
}

func TestCancelRun_Errors(t *testing.T) {
	o, _ := newTestOrchestrator(stub.NewClient(7))

	assert.ErrorIs(t, o.CancelRun("run_missing"), ErrRunNotFound)

	rec, err := o.CreateRun(context.Background(), testConfig(t))
	require.NoError(t, err)
	waitTerminal(t, o, rec.RunID)

	assert.ErrorIs(t, o.CancelRun(rec.RunID), ErrRunNotActive)
}

func TestDiagnostics_ScopedToRun(t *testing.T) {
	diags := marketdata.NewDiagnosticsRecorder()
	store := memory.NewBundleStore()
	o := New(Options{
		Store:  store,
		Market: stub.NewClient(7),
		Diags:  diags,
		Logger: zerolog.Nop(),
	})

	// Attempts left over from an earlier run on the shared recorder.
	diags.Record(domain.RequestDiagnostic{Timestamp: 1, Endpoint: "/stale"})

	rec, err := o.CreateRun(context.Background(), testConfig(t))
	require.NoError(t, err)
	waitTerminal(t, o, rec.RunID)

	persisted, err := store.Get(context.Background(), rec.RunID)
	require.NoError(t, err)
	for _, d := range persisted.Diagnostics {
		assert.NotEqual(t, "/stale", d.Endpoint, "earlier run's attempt leaked into the bundle")
	}
}

func TestRecover_DemotesInterruptedRuns(t *testing.T) {
	store := memory.NewBundleStore()
	ctx := context.Background()

	interrupted := &domain.RunBundle{
		Record: &domain.RunRecord{
			RunID:     "run_interrupted",
			Status:    domain.StatusRunning,
			Stage:     domain.StageOptimization,
			CreatedAt: 1000,
			UpdatedAt: 2000,
		},
	}
	finished := &domain.RunBundle{
		Record: &domain.RunRecord{
			RunID:     "run_done",
			Status:    domain.StatusCompleted,
			Stage:     domain.StageFinished,
			CreatedAt: 500,
			UpdatedAt: 900,
		},
	}
	require.NoError(t, store.Put(ctx, interrupted.Record.RunID, interrupted))
	require.NoError(t, store.Put(ctx, finished.Record.RunID, finished))

	o := New(Options{Store: store, Market: stub.NewClient(7), Logger: zerolog.Nop()})
	require.NoError(t, o.Recover(ctx))

	rec, err := o.GetRun("run_interrupted")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, rec.Status)
	assert.Equal(t, "interrupted by restart", rec.Error)

	done, err := o.GetRun("run_done")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, done.Status)

	// The demotion is durable.
	persisted, err := store.Get(ctx, "run_interrupted")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, persisted.Record.Status)

	// Recovered runs do not occupy the active slot.
	_, err = o.CreateRun(ctx, testConfig(t))
	require.NoError(t, err)
}

func TestRun_FailsWhenEveryPairSkipped(t *testing.T) {
	client := &emptyHistoryClient{}
	o, _ := newTestOrchestrator(client)

	rec, err := o.CreateRun(context.Background(), testConfig(t))
	require.NoError(t, err)

	final := waitTerminal(t, o, rec.RunID)
	assert.Equal(t, domain.StatusFailed, final.Status)
	assert.Contains(t, final.Error, "no usable outcomes")
}

func TestHistoryDays(t *testing.T) {
	// Daily bars need enough calendar days to clear the usable-row floor
	// even on a tiny budget.
	days := historyDays(1, 10, "1d", 600)
	assert.GreaterOrEqual(t, days, 600)

	// A generous budget is capped.
	assert.Equal(t, maxHistoryDays, historyDays(720, 1, "1h", 600))

	// Budget divides evenly across pairs.
	assert.Greater(t, historyDays(30, 2, "1h", 600), historyDays(30, 10, "1h", 600))
}

// blockingClient delays universe selection until gate closes.
type blockingClient struct {
	inner marketdata.Client
	gate  chan struct{}
}

func (c *blockingClient) SelectUniverse(ctx context.Context, topN int) ([]string, error) {
	select {
	case <-c.gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return c.inner.SelectUniverse(ctx, topN)
}

func (c *blockingClient) FetchHistory(ctx context.Context, symbol, timeframe string, days int) ([]domain.Bar, error) {
	return c.inner.FetchHistory(ctx, symbol, timeframe, days)
}

// holdSecondPairClient serves a two-symbol universe, answers the first
// symbol's fetch normally, and parks the second until the run context is
// canceled. reached closes when the second fetch starts.
type holdSecondPairClient struct {
	inner   marketdata.Client
	reached chan struct{}
}

func (c *holdSecondPairClient) SelectUniverse(context.Context, int) ([]string, error) {
	return []string{"AAAUSDT", "BBBUSDT"}, nil
}

func (c *holdSecondPairClient) FetchHistory(ctx context.Context, symbol, timeframe string, days int) ([]domain.Bar, error) {
	if symbol == "BBBUSDT" {
		close(c.reached)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return c.inner.FetchHistory(ctx, symbol, timeframe, days)
}

// emptyHistoryClient returns a universe but no bars, so every pair skips.
type emptyHistoryClient struct{}

func (c *emptyHistoryClient) SelectUniverse(context.Context, int) ([]string, error) {
	return []string{"AAAUSDT"}, nil
}

func (c *emptyHistoryClient) FetchHistory(context.Context, string, string, int) ([]domain.Bar, error) {
	return nil, nil
}
