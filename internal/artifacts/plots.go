package artifacts

import (
	"fmt"
	"math"
	"sort"

	"indicator-lab/internal/domain"
)

const (
	equityCurveCount = 3
	histogramBins    = 20
)

// BuildPlots produces the fixed plot set for a summary: plain structured
// payloads, never rendered images. The set is stable so the UI can address
// plots by id.
func BuildPlots(summary *domain.ResultSummary) []domain.PlotPayload {
	return []domain.PlotPayload{
		horizonHeatmap(summary),
		forecastOverlay(summary),
		complexityScatter(summary),
		timeframeBars(summary),
		leaderboard(summary),
		equityCurves(summary),
		residualHistogram(summary),
	}
}

// horizonHeatmap is composite error per (pair, scanned horizon) for each
// winning candidate. Missing cells (horizon rejected for that pair) are nil
// so the payload stays JSON-encodable.
func horizonHeatmap(summary *domain.ResultSummary) domain.PlotPayload {
	horizonSet := make(map[int]struct{})
	for _, out := range summary.Outcomes {
		for h := range out.HorizonScan {
			horizonSet[h] = struct{}{}
		}
	}
	horizons := make([]int, 0, len(horizonSet))
	for h := range horizonSet {
		horizons = append(horizons, h)
	}
	sort.Ints(horizons)

	data := &domain.HeatmapData{}
	for _, h := range horizons {
		data.XLabels = append(data.XLabels, fmt.Sprintf("%d", h))
	}
	for _, out := range summary.Outcomes {
		data.YLabels = append(data.YLabels, pairLabel(out.Symbol, out.Timeframe))
		row := make([]*float64, len(horizons))
		for i, h := range horizons {
			if score, ok := out.HorizonScan[h]; ok {
				v := score.CompositeError
				row[i] = &v
			}
		}
		data.Values = append(data.Values, row)
	}

	return domain.PlotPayload{
		ID:      domain.PlotIDHorizonHeatmap,
		Kind:    domain.PlotHeatmap,
		Title:   "Composite error by horizon",
		Heatmap: data,
	}
}

// forecastOverlay shows actual vs predicted prices for the top outcome,
// indexed by pooled validation position.
func forecastOverlay(summary *domain.ResultSummary) domain.PlotPayload {
	data := &domain.OverlayData{}
	if top := topOutcome(summary); top != nil {
		data.Label = fmt.Sprintf("%s %s: %s (h=%d)",
			top.Symbol, top.Timeframe, top.Candidate.Expression, top.Eval.Horizon)
		data.Actual = top.Eval.YTrue
		data.Predicted = top.Eval.YPred
		data.Timestamps = make([]int64, len(top.Eval.YTrue))
		for i := range data.Timestamps {
			data.Timestamps[i] = int64(i)
		}
	}
	return domain.PlotPayload{
		ID:      domain.PlotIDForecastOverlay,
		Kind:    domain.PlotOverlay,
		Title:   "Forecast overlay (top outcome)",
		Overlay: data,
	}
}

// complexityScatter plots formula complexity against composite error for
// every winner and its frontier.
func complexityScatter(summary *domain.ResultSummary) domain.PlotPayload {
	data := &domain.ScatterData{XAxis: "complexity", YAxis: "composite error"}
	for _, out := range summary.Outcomes {
		data.Points = append(data.Points, domain.ScatterPoint{
			X:     float64(out.Candidate.Complexity),
			Y:     out.Eval.CompositeError,
			Label: fmt.Sprintf("%s %s %s", out.Symbol, out.Timeframe, out.Candidate.Expression),
		})
		for _, f := range out.Frontier {
			data.Points = append(data.Points, domain.ScatterPoint{
				X:     float64(f.Complexity),
				Y:     f.CompositeError,
				Label: fmt.Sprintf("%s %s %s", out.Symbol, out.Timeframe, f.Expression),
			})
		}
	}
	return domain.PlotPayload{
		ID:      domain.PlotIDComplexityScatter,
		Kind:    domain.PlotScatter,
		Title:   "Complexity vs error",
		Scatter: data,
	}
}

// timeframeBars is the mean composite error per timeframe.
func timeframeBars(summary *domain.ResultSummary) domain.PlotPayload {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, out := range summary.Outcomes {
		sums[out.Timeframe] += out.Eval.CompositeError
		counts[out.Timeframe]++
	}
	tfs := make([]string, 0, len(sums))
	for tf := range sums {
		tfs = append(tfs, tf)
	}
	sort.Slice(tfs, func(i, j int) bool {
		return domain.TimeframeMinutes[tfs[i]] < domain.TimeframeMinutes[tfs[j]]
	})

	data := &domain.BarsData{YAxis: "mean composite error"}
	for _, tf := range tfs {
		data.Labels = append(data.Labels, tf)
		data.Values = append(data.Values, sums[tf]/float64(counts[tf]))
	}
	return domain.PlotPayload{
		ID:    domain.PlotIDTimeframeBars,
		Kind:  domain.PlotBars,
		Title: "Error by timeframe",
		Bars:  data,
	}
}

// leaderboard is the ranked recommendation table.
func leaderboard(summary *domain.ResultSummary) domain.PlotPayload {
	data := &domain.TableData{
		Columns: []string{"Symbol", "Timeframe", "Expression", "Horizon", "CompositeError", "HitRate", "PnL", "MaxDrawdown"},
	}
	for _, rec := range summary.Recommendations {
		data.Rows = append(data.Rows, []string{
			rec.Symbol,
			rec.Timeframe,
			rec.Expression,
			fmt.Sprintf("%d", rec.Horizon),
			fmt.Sprintf("%.4f", rec.CompositeError),
			fmt.Sprintf("%.4f", rec.HitRate),
			fmt.Sprintf("%.4f", rec.PnL),
			fmt.Sprintf("%.4f", rec.MaxDrawdown),
		})
	}
	return domain.PlotPayload{
		ID:    domain.PlotIDLeaderboard,
		Kind:  domain.PlotTable,
		Title: "Leaderboard",
		Table: data,
	}
}

// equityCurves holds the top-ranked outcomes' backtest equity curves.
func equityCurves(summary *domain.ResultSummary) domain.PlotPayload {
	data := &domain.EquityData{}
	for _, rec := range summary.Recommendations {
		if len(data.Series) == equityCurveCount {
			break
		}
		out := findOutcome(summary, rec.Symbol, rec.Timeframe)
		if out == nil || len(out.Backtest.EquityCurve) == 0 {
			continue
		}
		data.Series = append(data.Series, domain.EquitySeries{
			Label:  pairLabel(rec.Symbol, rec.Timeframe),
			Equity: out.Backtest.EquityCurve,
		})
	}
	return domain.PlotPayload{
		ID:     domain.PlotIDEquityCurves,
		Kind:   domain.PlotEquity,
		Title:  "Equity curves (top outcomes)",
		Equity: data,
	}
}

// residualHistogram bins relative prediction residuals pooled across all
// outcomes.
func residualHistogram(summary *domain.ResultSummary) domain.PlotPayload {
	var residuals []float64
	for _, out := range summary.Outcomes {
		for i := range out.Eval.YTrue {
			if out.Eval.CloseRef[i] == 0 {
				continue
			}
			r := (out.Eval.YPred[i] - out.Eval.YTrue[i]) / out.Eval.CloseRef[i]
			if !math.IsNaN(r) && !math.IsInf(r, 0) {
				residuals = append(residuals, r)
			}
		}
	}

	data := &domain.HistogramData{XAxis: "relative residual"}
	if len(residuals) > 0 {
		lo, hi := residuals[0], residuals[0]
		for _, r := range residuals {
			if r < lo {
				lo = r
			}
			if r > hi {
				hi = r
			}
		}
		if lo == hi {
			hi = lo + 1e-9
		}
		width := (hi - lo) / histogramBins
		data.Counts = make([]int, histogramBins)
		for i := 0; i <= histogramBins; i++ {
			data.BinEdges = append(data.BinEdges, lo+float64(i)*width)
		}
		for _, r := range residuals {
			bin := int((r - lo) / width)
			if bin == histogramBins {
				bin--
			}
			data.Counts[bin]++
		}
	}
	return domain.PlotPayload{
		ID:        domain.PlotIDResidualHist,
		Kind:      domain.PlotHistogram,
		Title:     "Residual distribution",
		Histogram: data,
	}
}

// topOutcome returns the outcome behind the first recommendation.
func topOutcome(summary *domain.ResultSummary) *domain.Outcome {
	if len(summary.Recommendations) == 0 {
		return nil
	}
	rec := summary.Recommendations[0]
	return findOutcome(summary, rec.Symbol, rec.Timeframe)
}

func findOutcome(summary *domain.ResultSummary, symbol, timeframe string) *domain.Outcome {
	for i := range summary.Outcomes {
		if summary.Outcomes[i].Symbol == symbol && summary.Outcomes[i].Timeframe == timeframe {
			return &summary.Outcomes[i]
		}
	}
	return nil
}

func pairLabel(symbol, timeframe string) string {
	return symbol + " " + timeframe
}
