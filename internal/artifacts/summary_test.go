package artifacts

import (
	"encoding/json"
	"math"
	"reflect"
	"testing"

	"github.com/creasty/defaults"

	"indicator-lab/internal/domain"
)

func testParams(t *testing.T) domain.EngineParams {
	t.Helper()
	var p domain.EngineParams
	if err := defaults.Set(&p); err != nil {
		t.Fatalf("defaults.Set failed: %v", err)
	}
	return p
}

func makeOutcome(symbol, timeframe, expression string, composite, hitRate, pnl float64) domain.Outcome {
	return domain.Outcome{
		Symbol:    symbol,
		Timeframe: timeframe,
		Candidate: domain.Candidate{
			ID:         "c_" + symbol + timeframe,
			Expression: expression,
			Formula:    "ta.sma(close, 8) / ta.sma(close, 21)",
			Complexity: 6,
		},
		Eval: domain.Evaluation{
			Horizon:        13,
			CompositeError: composite,
			HitRate:        hitRate,
			YTrue:          []float64{101, 102, 103, 104, 105},
			YPred:          []float64{100.5, 102.2, 102.8, 104.4, 104.9},
			CloseRef:       []float64{100, 101, 102, 103, 104},
		},
		Backtest: domain.BacktestResult{
			PnL:         pnl,
			MaxDrawdown: -0.02,
			Turnover:    0.25,
			EquityCurve: []float64{1, 1.01, 1.02, 1.03},
		},
		HorizonScan: domain.HorizonMetrics{
			3:  {CompositeError: composite + 0.1},
			13: {CompositeError: composite},
		},
	}
}

func TestBuildSummary_RecommendationOrder(t *testing.T) {
	outcomes := []domain.Outcome{
		makeOutcome("ETHUSDT", "1h", "ret(1)", 0.9, 0.52, 0.05),
		makeOutcome("BTCUSDT", "1h", "close/sma(close,21)", 0.4, 0.61, 0.12),
		makeOutcome("SOLUSDT", "4h", "rsi(14)-50", 0.7, 0.55, -0.01),
	}

	summary := BuildSummary("run_test", 1000, outcomes, nil, testParams(t))

	if len(summary.Recommendations) != 3 {
		t.Fatalf("expected 3 recommendations, got %d", len(summary.Recommendations))
	}
	wantOrder := []string{"BTCUSDT", "SOLUSDT", "ETHUSDT"}
	for i, want := range wantOrder {
		if summary.Recommendations[i].Symbol != want {
			t.Errorf("recommendation %d: expected %s, got %s", i, want, summary.Recommendations[i].Symbol)
		}
	}
	if summary.Recommendations[0].Expression != "close/sma(close,21)" {
		t.Errorf("top recommendation carries wrong expression: %s", summary.Recommendations[0].Expression)
	}
}

func TestBuildSummary_UniversalSelection(t *testing.T) {
	// Expression A appears twice with low error; expression B once with a
	// lower single error but negative pnl pulling its score up.
	outcomes := []domain.Outcome{
		makeOutcome("BTCUSDT", "1h", "A", 0.50, 0.60, 0.10),
		makeOutcome("ETHUSDT", "1h", "A", 0.54, 0.58, 0.06),
		makeOutcome("SOLUSDT", "1h", "B", 0.48, 0.50, -2.0),
	}
	params := testParams(t)

	summary := BuildSummary("run_test", 1000, outcomes, nil, params)

	u := summary.Universal
	if u == nil {
		t.Fatal("expected a universal recommendation")
	}
	if u.Expression != "A" {
		t.Fatalf("expected expression A, got %s", u.Expression)
	}
	if u.OutcomesConsidered != 2 {
		t.Errorf("expected 2 outcomes considered, got %d", u.OutcomesConsidered)
	}
	if !reflect.DeepEqual(u.Symbols, []string{"BTCUSDT", "ETHUSDT"}) {
		t.Errorf("unexpected symbols: %v", u.Symbols)
	}

	// Score of A: mean(0.50,0.54) + 0.03*(1-mean(0.60,0.58)) + 0.05*max(0,-mean pnl)
	wantScore := 0.52 + params.WeightUniversalHit*(1-0.59)
	if math.Abs(u.Score-wantScore) > 1e-12 {
		t.Errorf("expected score %.6f, got %.6f", wantScore, u.Score)
	}

	// B's score must include the pnl penalty: 0.48 + 0.03*0.5 + 0.05*2.0 > A's.
	bScore := 0.48 + params.WeightUniversalHit*0.5 + params.WeightUniversalPnl*2.0
	if bScore <= wantScore {
		t.Fatalf("test setup broken: B score %.4f should exceed A score %.4f", bScore, wantScore)
	}
}

func TestBuildSummary_EmptyOutcomes(t *testing.T) {
	skipped := []domain.SkippedPair{{Symbol: "BTCUSDT", Timeframe: "1h", Reason: "insufficient data"}}
	summary := BuildSummary("run_test", 1000, nil, skipped, testParams(t))

	if summary.Universal != nil {
		t.Error("expected no universal recommendation for empty outcomes")
	}
	if len(summary.Recommendations) != 0 {
		t.Errorf("expected no recommendations, got %d", len(summary.Recommendations))
	}
	if len(summary.SkippedPairs) != 1 {
		t.Errorf("expected skipped pairs to be carried, got %d", len(summary.SkippedPairs))
	}
}

// A persisted bundle reloaded and re-summarized must reproduce the same
// summary.
func TestBuildSummary_RoundTripIdempotent(t *testing.T) {
	outcomes := []domain.Outcome{
		makeOutcome("BTCUSDT", "1h", "A", 0.50, 0.60, 0.10),
		makeOutcome("ETHUSDT", "4h", "B", 0.44, 0.57, 0.03),
	}
	params := testParams(t)
	first := BuildSummary("run_rt", 1000, outcomes, nil, params)

	raw, err := json.Marshal(first)
	if err != nil {
		t.Fatalf("marshal summary: %v", err)
	}
	var reloaded domain.ResultSummary
	if err := json.Unmarshal(raw, &reloaded); err != nil {
		t.Fatalf("unmarshal summary: %v", err)
	}

	second := BuildSummary("run_rt", 1000, reloaded.Outcomes, reloaded.SkippedPairs, params)
	if !reflect.DeepEqual(first, second) {
		t.Error("re-summarizing a reloaded bundle changed the summary")
	}
}
