package synth

import (
	"fmt"
	"math"

	talib "github.com/markcheno/go-talib"

	"indicator-lab/internal/domain"
	"indicator-lab/internal/idhash"
)

// MAWindows is the fixed moving-average window set shared by the ratio
// candidates and the randomized pair candidates.
var MAWindows = []int{5, 8, 13, 21, 34, 55}

// Catalogue parameters.
const (
	emaFast      = 8
	emaSlow      = 21
	rsiPeriod    = 14
	stddevWindow = 20
	volMAWindow  = 20

	// minRows is the shortest series the synthesizer accepts: the longest
	// window plus enough bars for at least one defined value everywhere.
	minRows = 60
)

// Generator derives candidate features for one (symbol, timeframe) series.
type Generator struct {
	baseSeed  int64
	pairCount int
}

// NewGenerator creates a Generator. pairCount is the number of randomized
// moving-average-pair candidates to emit.
func NewGenerator(baseSeed int64, pairCount int) *Generator {
	return &Generator{baseSeed: baseSeed, pairCount: pairCount}
}

// Synthesize emits the full candidate catalogue for the series. The result
// is deterministic for a fixed (baseSeed, symbol, timeframe, series).
// Returns nil if the series is too short to define any feature.
func (g *Generator) Synthesize(series *domain.Series) []domain.Candidate {
	n := series.Len()
	if n < minRows {
		return nil
	}

	close := series.Closes()
	high := series.Highs()
	low := series.Lows()
	volume := series.Volumes()

	var out []domain.Candidate
	add := func(expression, formula string, complexity int, feature []float64) {
		out = append(out, domain.Candidate{
			ID:         idhash.ComputeCandidateID(series.Symbol, series.Timeframe, expression),
			Expression: expression,
			Formula:    formula,
			Complexity: complexity,
			Feature:    feature,
		})
	}

	// Lagged returns.
	add("ret(1)", "close / close[1] - 1", 2, lagReturn(close, 1))
	add("ret(3)", "close / close[3] - 1", 2, lagReturn(close, 3))

	// Price-to-moving-average ratios.
	for _, w := range MAWindows {
		add(
			fmt.Sprintf("close/sma(close,%d)", w),
			fmt.Sprintf("close / ta.sma(close, %d)", w),
			3,
			ratio(close, maskWarmup(talib.Sma(close, w), w-1)),
		)
	}

	// EMA gap, normalized by the slow EMA magnitude.
	fast := maskWarmup(talib.Ema(close, emaFast), emaFast-1)
	slow := maskWarmup(talib.Ema(close, emaSlow), emaSlow-1)
	gap := make([]float64, n)
	for i := 0; i < n; i++ {
		gap[i] = (fast[i] - slow[i]) / math.Max(math.Abs(slow[i]), 1e-12)
	}
	add(
		fmt.Sprintf("emagap(%d,%d)", emaFast, emaSlow),
		fmt.Sprintf("(ta.ema(close, %d) - ta.ema(close, %d)) / math.abs(ta.ema(close, %d))", emaFast, emaSlow, emaSlow),
		4, gap,
	)

	// Centered RSI.
	rsi := maskWarmup(talib.Rsi(close, rsiPeriod), rsiPeriod)
	centered := make([]float64, n)
	for i := 0; i < n; i++ {
		centered[i] = rsi[i] - 50
	}
	add(
		fmt.Sprintf("rsi(%d)-50", rsiPeriod),
		fmt.Sprintf("ta.rsi(close, %d) - 50", rsiPeriod),
		4, centered,
	)

	// Rolling stddev of 1-bar returns.
	add(
		fmt.Sprintf("stddev(ret(1),%d)", stddevWindow),
		fmt.Sprintf("ta.stdev(close / close[1] - 1, %d)", stddevWindow),
		4,
		maskWarmup(talib.StdDev(lagReturnZeroFilled(close), stddevWindow, 1.0), stddevWindow),
	)

	// Bar range and its close-normalized form.
	rng := make([]float64, n)
	rngNorm := make([]float64, n)
	for i := 0; i < n; i++ {
		rng[i] = high[i] - low[i]
		rngNorm[i] = (high[i] - low[i]) / math.Max(close[i], 1e-12)
	}
	add("high-low", "high - low", 2, rng)
	add("(high-low)/close", "(high - low) / close", 3, rngNorm)

	// Volume-to-moving-average ratio.
	add(
		fmt.Sprintf("volume/sma(volume,%d)", volMAWindow),
		fmt.Sprintf("volume / ta.sma(volume, %d)", volMAWindow),
		3,
		ratio(volume, maskWarmup(talib.Sma(volume, volMAWindow), volMAWindow-1)),
	)

	// Randomized moving-average pair ratios. Precompute one SMA per window;
	// the pair draw order is what the seed fixes.
	smas := make(map[int][]float64, len(MAWindows))
	for _, w := range MAWindows {
		smas[w] = maskWarmup(talib.Sma(close, w), w-1)
	}
	rng2 := newSplitmix64(g.baseSeed, series.Symbol, series.Timeframe)
	for k := 0; k < g.pairCount; k++ {
		wa := MAWindows[rng2.intn(len(MAWindows))]
		wb := MAWindows[rng2.intn(len(MAWindows))]
		if wa == wb {
			wb = MAWindows[(indexOf(MAWindows, wb)+1)%len(MAWindows)]
		}
		add(
			fmt.Sprintf("sma(close,%d)/sma(close,%d)", wa, wb),
			fmt.Sprintf("ta.sma(close, %d) / ta.sma(close, %d)", wa, wb),
			6,
			ratio(smas[wa], smas[wb]),
		)
	}

	return out
}

// lagReturn computes x[i]/x[i-lag]-1 with NaN over the warmup.
func lagReturn(x []float64, lag int) []float64 {
	out := make([]float64, len(x))
	for i := range x {
		if i < lag || x[i-lag] == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = x[i]/x[i-lag] - 1
	}
	return out
}

// lagReturnZeroFilled computes the 1-bar return with 0 at index 0, as
// required by talib inputs which reject NaN.
func lagReturnZeroFilled(x []float64) []float64 {
	out := make([]float64, len(x))
	for i := 1; i < len(x); i++ {
		if x[i-1] != 0 {
			out[i] = x[i]/x[i-1] - 1
		}
	}
	return out
}

// ratio divides a by b elementwise, NaN where b is undefined or zero.
func ratio(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		if math.IsNaN(a[i]) || math.IsNaN(b[i]) || b[i] == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = a[i] / b[i]
	}
	return out
}

// maskWarmup replaces the first warmup positions with NaN. talib fills the
// lookback period with zeros, which would otherwise leak into fits.
func maskWarmup(x []float64, warmup int) []float64 {
	for i := 0; i < warmup && i < len(x); i++ {
		x[i] = math.NaN()
	}
	return x
}

func indexOf(xs []int, v int) int {
	for i, x := range xs {
		if x == v {
			return i
		}
	}
	return -1
}
