// Package artifacts turns run outcomes into their externally visible forms:
// the ranked result summary, plot payloads, export scripts, the Markdown
// report, and the manifest-led export bundle.
package artifacts

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"indicator-lab/internal/domain"
)

// BuildSummary aggregates outcomes into per-asset recommendations plus one
// universal recommendation. Recommendations are sorted by composite error
// ascending; ties break on symbol then timeframe for determinism.
func BuildSummary(runID string, generatedAt int64, outcomes []domain.Outcome, skipped []domain.SkippedPair, params domain.EngineParams) *domain.ResultSummary {
	summary := &domain.ResultSummary{
		RunID:        runID,
		GeneratedAt:  generatedAt,
		Outcomes:     append([]domain.Outcome(nil), outcomes...),
		SkippedPairs: append([]domain.SkippedPair(nil), skipped...),
	}

	for _, out := range outcomes {
		summary.Recommendations = append(summary.Recommendations, domain.Recommendation{
			Symbol:         out.Symbol,
			Timeframe:      out.Timeframe,
			Expression:     out.Candidate.Expression,
			Formula:        out.Candidate.Formula,
			Horizon:        out.Eval.Horizon,
			CompositeError: out.Eval.CompositeError,
			HitRate:        out.Eval.HitRate,
			PnL:            out.Backtest.PnL,
			MaxDrawdown:    out.Backtest.MaxDrawdown,
			Complexity:     out.Candidate.Complexity,
		})
	}
	sort.SliceStable(summary.Recommendations, func(i, j int) bool {
		a, b := summary.Recommendations[i], summary.Recommendations[j]
		if a.CompositeError != b.CompositeError {
			return a.CompositeError < b.CompositeError
		}
		if a.Symbol != b.Symbol {
			return a.Symbol < b.Symbol
		}
		return a.Timeframe < b.Timeframe
	})

	summary.Universal = selectUniversal(outcomes, params)
	return summary
}

// selectUniversal groups outcomes by winning expression and picks the group
// minimizing meanCompositeError + wHit*(1-meanHitRate) + wPnl*max(0,-meanPnl).
// The weights are empirical configuration, not derived values.
func selectUniversal(outcomes []domain.Outcome, params domain.EngineParams) *domain.UniversalRecommendation {
	if len(outcomes) == 0 {
		return nil
	}

	type group struct {
		formula   string
		symbols   map[string]struct{}
		composite []float64
		hitRate   []float64
		pnl       []float64
	}
	groups := make(map[string]*group)
	for _, out := range outcomes {
		g, ok := groups[out.Candidate.Expression]
		if !ok {
			g = &group{formula: out.Candidate.Formula, symbols: make(map[string]struct{})}
			groups[out.Candidate.Expression] = g
		}
		g.symbols[out.Symbol] = struct{}{}
		g.composite = append(g.composite, out.Eval.CompositeError)
		g.hitRate = append(g.hitRate, out.Eval.HitRate)
		g.pnl = append(g.pnl, out.Backtest.PnL)
	}

	var best *domain.UniversalRecommendation
	for expr, g := range groups {
		meanComposite := stat.Mean(g.composite, nil)
		meanHit := stat.Mean(g.hitRate, nil)
		meanPnl := stat.Mean(g.pnl, nil)

		penalty := 0.0
		if meanPnl < 0 {
			penalty = -meanPnl
		}
		score := meanComposite + params.WeightUniversalHit*(1-meanHit) + params.WeightUniversalPnl*penalty

		symbols := make([]string, 0, len(g.symbols))
		for s := range g.symbols {
			symbols = append(symbols, s)
		}
		sort.Strings(symbols)

		cand := &domain.UniversalRecommendation{
			Expression:         expr,
			Formula:            g.formula,
			Symbols:            symbols,
			MeanCompositeErr:   meanComposite,
			MeanHitRate:        meanHit,
			MeanPnL:            meanPnl,
			Score:              score,
			OutcomesConsidered: len(g.composite),
		}
		if best == nil || cand.Score < best.Score ||
			(cand.Score == best.Score && cand.Expression < best.Expression) {
			best = cand
		}
	}
	return best
}
