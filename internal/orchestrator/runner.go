package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"indicator-lab/internal/artifacts"
	"indicator-lab/internal/domain"
	"indicator-lab/internal/walkforward"
)

const (
	// Overall progress is split across stages: universe selection, the
	// per-pair ingest/optimization loop, and ranking.
	universeWeight = 0.05
	pairsWeight    = 0.85

	// fetchDaysPerBudgetMinute sizes history to the time budget: each
	// budget-minute allotted to a pair buys this many calendar days.
	fetchDaysPerBudgetMinute = 60

	// maxHistoryDays caps a single pair's fetch at roughly four years.
	maxHistoryDays = 1500

	// cacheHitFraction is the share of expected rows the bar cache must
	// hold for a pair to skip the exchange entirely.
	cacheHitFraction = 0.9

	// checkpointTimeout bounds each persistence write. Checkpoints use a
	// detached context so a canceled run can still persist its final state.
	checkpointTimeout = 10 * time.Second
)

// pair is one (symbol, timeframe) unit of ingest/optimization work.
type pair struct {
	symbol    string
	timeframe string
}

// execute drives one run through the state machine. It is the only goroutine
// mutating this run's bundle; all mutation happens under o.mu.
func (o *Orchestrator) execute(ctx context.Context, st *runState) {
	defer close(st.done)
	defer st.tracker.Close()
	defer func() {
		o.mu.Lock()
		if o.activeID == st.bundle.Record.RunID {
			o.activeID = ""
		}
		st.cancel = nil
		o.mu.Unlock()
	}()
	defer func() {
		if r := recover(); r != nil {
			o.fail(st, fmt.Sprintf("panic: %v", r))
		}
	}()

	cfg := st.bundle.Config
	runID := st.bundle.Record.RunID
	startedAt := o.now()

	// The recorder is shared with the market client; only one run is ever
	// active, so clearing it here scopes diagnostics to this run.
	if o.diags != nil {
		o.diags.Reset()
	}

	o.transition(st, domain.StatusRunning, domain.StageUniverse, "selecting universe")
	st.tracker.BeginStage(domain.StageUniverse, 1)
	o.checkpoint(st)

	symbols, err := o.market.SelectUniverse(ctx, cfg.TopNSymbols)
	if err != nil {
		if ctx.Err() != nil {
			o.cancelled(st)
			return
		}
		o.fail(st, fmt.Sprintf("universe selection failed: %v", err))
		return
	}
	if o.metrics != nil {
		o.metrics.UniverseSize.Set(float64(len(symbols)))
	}
	st.tracker.Checkpoint(
		"universe selection",
		fmt.Sprintf("selected %d symbols", len(symbols)),
		fmt.Sprintf("%d pairs to evaluate", len(symbols)*len(cfg.Timeframes)),
		1, universeWeight,
	)

	pairs := make([]pair, 0, len(symbols)*len(cfg.Timeframes))
	for _, sym := range symbols {
		for _, tf := range cfg.Timeframes {
			pairs = append(pairs, pair{symbol: sym, timeframe: tf})
		}
	}

	o.transition(st, domain.StatusRunning, domain.StageIngest,
		fmt.Sprintf("ingesting %d pairs", len(pairs)))
	st.tracker.BeginStage(domain.StageOptimization, len(pairs))
	o.checkpoint(st)

	engine := walkforward.NewEngine(cfg.RandomSeed, cfg.Params)

	for i, p := range pairs {
		// Cancellation is cooperative, checked once per pair boundary. An
		// in-progress pair runs to completion; finished outcomes are kept.
		if ctx.Err() != nil {
			o.cancelled(st)
			return
		}

		stageStart := o.now()
		outcome, skipReason := o.evaluatePair(ctx, engine, cfg, p, len(pairs))
		if ctx.Err() != nil {
			o.cancelled(st)
			return
		}

		o.mu.Lock()
		if outcome != nil {
			st.outcomes = append(st.outcomes, *outcome)
		} else {
			st.skipped = append(st.skipped, domain.SkippedPair{
				Symbol: p.symbol, Timeframe: p.timeframe, Reason: skipReason,
			})
		}
		o.mu.Unlock()

		msg := fmt.Sprintf("evaluated %s %s", p.symbol, p.timeframe)
		if outcome == nil {
			msg = fmt.Sprintf("skipped %s %s: %s", p.symbol, p.timeframe, skipReason)
			if o.metrics != nil {
				o.metrics.PairsSkipped.WithLabelValues(skipKind(skipReason)).Inc()
			}
			o.log.Warn().Str("run_id", runID).Str("symbol", p.symbol).
				Str("timeframe", p.timeframe).Str("reason", skipReason).Msg("pair skipped")
		} else {
			if o.metrics != nil {
				o.metrics.PairsEvaluated.Inc()
				o.metrics.StageDuration.WithLabelValues(string(domain.StageOptimization)).
					Observe(o.now().Sub(stageStart).Seconds())
			}
			o.log.Info().Str("run_id", runID).Str("symbol", p.symbol).
				Str("timeframe", p.timeframe).
				Str("expression", outcome.Candidate.Expression).
				Int("horizon", outcome.Eval.Horizon).
				Float64("composite_error", outcome.Eval.CompositeError).
				Msg("pair evaluated")
		}

		// Stage moves to optimization once the first pair finishes and
		// never regresses; later fetches happen under it.
		done := i + 1
		overall := universeWeight + pairsWeight*float64(done)/float64(len(pairs))
		o.transition(st, domain.StatusRunning, domain.StageOptimization, msg)
		o.setProgress(st, overall)
		st.tracker.Checkpoint(
			fmt.Sprintf("%s %s", p.symbol, p.timeframe),
			fmt.Sprintf("%d/%d pairs evaluated", done, len(pairs)),
			fmt.Sprintf("%d pairs remaining", len(pairs)-done),
			done, overall,
		)
		o.checkpoint(st)
	}

	o.transition(st, domain.StatusRunning, domain.StageRanking, "ranking outcomes")
	st.tracker.BeginStage(domain.StageRanking, 1)
	o.checkpoint(st)

	o.mu.Lock()
	nOutcomes := len(st.outcomes)
	o.mu.Unlock()
	if nOutcomes == 0 {
		o.fail(st, "no usable outcomes: every pair was skipped")
		return
	}

	o.buildArtifacts(st)
	st.tracker.Checkpoint("ranking", "artifacts built", "none", 1, 1)

	o.transition(st, domain.StatusCompleted, domain.StageFinished, "run completed")
	o.setProgress(st, 1)
	o.checkpoint(st)

	if o.metrics != nil {
		o.metrics.RunsFinished.WithLabelValues(string(domain.StatusCompleted)).Inc()
		o.metrics.RunDuration.Observe(o.now().Sub(startedAt).Seconds())
	}
	o.log.Info().Str("run_id", runID).Int("outcomes", nOutcomes).
		Dur("took", o.now().Sub(startedAt)).Msg("run completed")
}

// evaluatePair fetches history for one pair and runs the full optimization
// pass. Returns the outcome, or a skip reason when the pair cannot produce
// one. Fetch failures and evaluation errors demote to skips, never run
// failures.
func (o *Orchestrator) evaluatePair(ctx context.Context, engine *walkforward.Engine, cfg domain.RunConfig, p pair, pairCount int) (*domain.Outcome, string) {
	days := historyDays(cfg.BudgetMinutes, pairCount, p.timeframe, cfg.Params.MinPairRows)

	bars, err := o.fetchBars(ctx, p, days)
	if err != nil {
		return nil, fmt.Sprintf("fetch failed: %v", err)
	}

	series := &domain.Series{Symbol: p.symbol, Timeframe: p.timeframe, Bars: bars}
	outcome, err := engine.OptimizePair(series)
	if err != nil {
		return nil, err.Error()
	}
	return outcome, ""
}

// fetchBars consults the bar cache before the exchange. Cache writes are
// best effort; a cache failure only costs a refetch next run.
func (o *Orchestrator) fetchBars(ctx context.Context, p pair, days int) ([]domain.Bar, error) {
	tfMin := domain.TimeframeMinutes[p.timeframe]
	expectedRows := days * 1440 / tfMin
	to := o.now().UnixMilli()
	from := to - int64(days)*24*60*60*1000

	if o.cache != nil {
		cached, err := o.cache.GetBars(ctx, p.symbol, p.timeframe, from, to)
		if err != nil {
			o.log.Warn().Err(err).Str("symbol", p.symbol).Str("timeframe", p.timeframe).
				Msg("bar cache read failed")
		} else if float64(len(cached)) >= cacheHitFraction*float64(expectedRows) {
			if o.metrics != nil {
				o.metrics.BarCacheHits.Inc()
			}
			return cached, nil
		}
		if o.metrics != nil {
			o.metrics.BarCacheMisses.Inc()
		}
	}

	bars, err := o.market.FetchHistory(ctx, p.symbol, p.timeframe, days)
	if err != nil {
		return nil, err
	}
	if o.metrics != nil {
		o.metrics.BarsFetched.Add(float64(len(bars)))
	}

	if o.cache != nil && len(bars) > 0 {
		if err := o.cache.PutBars(ctx, p.symbol, p.timeframe, bars); err != nil {
			o.log.Warn().Err(err).Str("symbol", p.symbol).Str("timeframe", p.timeframe).
				Msg("bar cache write failed")
		}
	}
	return bars, nil
}

// buildArtifacts assembles the summary, plots, and export scripts from the
// outcomes gathered so far.
func (o *Orchestrator) buildArtifacts(st *runState) {
	o.mu.Lock()
	outcomes := append([]domain.Outcome(nil), st.outcomes...)
	skipped := append([]domain.SkippedPair(nil), st.skipped...)
	runID := st.bundle.Record.RunID
	params := st.bundle.Config.Params
	o.mu.Unlock()

	summary := artifacts.BuildSummary(runID, o.now().UnixMilli(), outcomes, skipped, params)
	plots := artifacts.BuildPlots(summary)
	scripts := artifacts.BuildScripts(summary)

	o.mu.Lock()
	st.bundle.Summary = summary
	st.bundle.Plots = plots
	st.bundle.Scripts = scripts
	o.mu.Unlock()
}

// cancelled finalizes a canceled run. Outcomes computed before the cancel
// are preserved and, when any exist, summarized.
func (o *Orchestrator) cancelled(st *runState) {
	o.mu.Lock()
	hasOutcomes := len(st.outcomes) > 0
	o.mu.Unlock()

	if hasOutcomes {
		o.buildArtifacts(st)
	}

	o.transition(st, domain.StatusCanceled, st.bundle.Record.Stage, "run canceled")
	o.checkpoint(st)

	if o.metrics != nil {
		o.metrics.RunsFinished.WithLabelValues(string(domain.StatusCanceled)).Inc()
	}
	o.log.Info().Str("run_id", st.bundle.Record.RunID).Msg("run canceled")
}

// fail finalizes a failed run, preserving the error message on the record.
func (o *Orchestrator) fail(st *runState, msg string) {
	o.mu.Lock()
	st.bundle.Record.Error = msg
	o.mu.Unlock()

	o.transition(st, domain.StatusFailed, st.bundle.Record.Stage, msg)
	o.checkpoint(st)

	if o.metrics != nil {
		o.metrics.RunsFinished.WithLabelValues(string(domain.StatusFailed)).Inc()
	}
	o.log.Error().Str("run_id", st.bundle.Record.RunID).Str("error", msg).Msg("run failed")
}

// transition updates status and stage and appends one immutable log entry.
// Stage never regresses; a transition naming an earlier stage keeps the
// current one.
func (o *Orchestrator) transition(st *runState, status domain.RunStatus, stage domain.Stage, msg string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	rec := st.bundle.Record
	if stage.Before(rec.Stage) {
		stage = rec.Stage
	}
	rec.Status = status
	rec.Stage = stage
	rec.UpdatedAt = o.now().UnixMilli()
	rec.AppendLog(domain.LogEntry{Timestamp: rec.UpdatedAt, Stage: stage, Message: msg})
}

func (o *Orchestrator) setProgress(st *runState, p float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	st.bundle.Record.Progress = p
}

// checkpoint persists the full bundle. Every state transition is followed by
// one; the write replaces the whole bundle so readers never see a partial
// update. Uses a detached context so cancellation cannot lose the final state.
func (o *Orchestrator) checkpoint(st *runState) error {
	ctx, cancel := context.WithTimeout(context.Background(), checkpointTimeout)
	defer cancel()

	o.mu.Lock()
	b := *st.bundle
	b.Record = st.bundle.Record.Clone()
	if st.tracker != nil {
		b.Telemetry = st.tracker.Snapshots(0)
	}
	if o.diags != nil {
		b.Diagnostics = o.diags.Snapshot(0)
		st.bundle.Diagnostics = b.Diagnostics
	}
	st.bundle.Telemetry = b.Telemetry
	runID := b.Record.RunID
	o.mu.Unlock()

	start := o.now()
	err := o.store.Put(ctx, runID, &b)
	if o.metrics != nil {
		o.metrics.CheckpointDuration.Observe(o.now().Sub(start).Seconds())
		if err != nil {
			o.metrics.CheckpointErrors.Inc()
		}
	}
	if err != nil {
		o.log.Error().Err(err).Str("run_id", runID).Msg("checkpoint write failed")
	}
	return err
}

// historyDays sizes a pair's fetch window. The time budget divided evenly
// across pairs buys calendar days, floored at enough days to clear the
// usable-row threshold with margin for exchange gaps.
func historyDays(budgetMinutes, pairCount int, timeframe string, minRows int) int {
	tfMin := domain.TimeframeMinutes[timeframe]
	need := minRows*tfMin/1440 + 1
	need += need / 5

	perPair := float64(budgetMinutes) / float64(pairCount)
	days := int(perPair * fetchDaysPerBudgetMinute)
	if days < need {
		days = need
	}
	if days > maxHistoryDays {
		days = maxHistoryDays
	}
	return days
}

// skipKind maps a skip reason to a bounded metric label.
func skipKind(reason string) string {
	switch {
	case strings.HasPrefix(reason, "fetch failed"):
		return "fetch"
	case strings.Contains(reason, "insufficient data"):
		return "insufficient_data"
	case strings.Contains(reason, "no usable candidate"):
		return "no_candidate"
	default:
		return "other"
	}
}
