package walkforward

import (
	"errors"
	"fmt"
	"sort"

	"indicator-lab/internal/backtest"
	"indicator-lab/internal/domain"
	"indicator-lab/internal/synth"
)

// Engine errors. Both demote to a skipped pair at the orchestration level
// rather than failing the run.
var (
	// ErrInsufficientData indicates the series is too short to evaluate.
	ErrInsufficientData = errors.New("insufficient data for evaluation")

	// ErrNoUsableCandidate indicates every candidate was rejected at every
	// scanned horizon.
	ErrNoUsableCandidate = errors.New("no usable candidate at any horizon")
)

// frontierSize bounds the next-best candidate list kept per outcome.
const frontierSize = 5

// Engine runs the full candidate-discovery pass for one (symbol, timeframe)
// pair: synthesis, horizon-scanned evaluation, winner selection, backtest.
type Engine struct {
	params domain.EngineParams
	gen    *synth.Generator
	eval   *Evaluator
}

// NewEngine creates an Engine. seed keys candidate synthesis so identical
// seeds reproduce identical passes.
func NewEngine(seed int64, params domain.EngineParams) *Engine {
	return &Engine{
		params: params,
		gen:    synth.NewGenerator(seed, params.RandomPairCount),
		eval:   NewEvaluator(params),
	}
}

// scored pairs a candidate with its best-horizon evaluation.
type scored struct {
	cand domain.Candidate
	eval *domain.Evaluation
	scan domain.HorizonMetrics
}

// OptimizePair evaluates the full catalogue over the series and returns the
// winning outcome. The pass is pure: it reads only the series and shares no
// state across pairs.
func (e *Engine) OptimizePair(series *domain.Series) (*domain.Outcome, error) {
	if series.Len() < e.params.MinPairRows {
		return nil, fmt.Errorf("%w: %d rows, need %d", ErrInsufficientData, series.Len(), e.params.MinPairRows)
	}

	cands := e.gen.Synthesize(series)
	if len(cands) == 0 {
		return nil, fmt.Errorf("%w: catalogue empty for %d rows", ErrInsufficientData, series.Len())
	}

	close := series.Closes()

	var results []scored
	for i := range cands {
		best, scan, ok := e.eval.BestHorizon(&cands[i], close)
		if !ok {
			continue
		}
		results = append(results, scored{cand: cands[i], eval: best, scan: scan})
	}
	if len(results) == 0 {
		return nil, ErrNoUsableCandidate
	}

	// Expression breaks composite-error ties so the winner is deterministic.
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].eval.CompositeError != results[j].eval.CompositeError {
			return results[i].eval.CompositeError < results[j].eval.CompositeError
		}
		return results[i].cand.Expression < results[j].cand.Expression
	})

	winner := results[0]
	bt := backtest.Simulate(
		winner.eval.YTrue, winner.eval.YPred, winner.eval.CloseRef,
		e.params.SignalThreshold, e.params.FeeRate,
	)

	outcome := &domain.Outcome{
		Symbol:      series.Symbol,
		Timeframe:   series.Timeframe,
		Candidate:   winner.cand,
		Eval:        *winner.eval,
		Backtest:    bt,
		HorizonScan: winner.scan,
	}
	for _, r := range results[1:] {
		if len(outcome.Frontier) == frontierSize {
			break
		}
		outcome.Frontier = append(outcome.Frontier, domain.FrontierEntry{
			Expression:     r.cand.Expression,
			Horizon:        r.eval.Horizon,
			CompositeError: r.eval.CompositeError,
			HitRate:        r.eval.HitRate,
			Complexity:     r.cand.Complexity,
		})
	}

	return outcome, nil
}
