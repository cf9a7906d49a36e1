package domain

// Candidate is one synthesized predictive feature over an OHLCV series.
// Candidates are generated fresh per (symbol, timeframe, seed), owned by a
// single evaluation pass, and never mutated after creation.
type Candidate struct {
	ID         string `json:"id"`         // stable within the generating pass
	Expression string `json:"expression"` // human-readable formula
	Formula    string `json:"formula"`    // exportable charting-script fragment
	Complexity int    `json:"complexity"` // integer formula-size proxy, diagnostic only

	// Feature is aligned 1:1 with the generating series' bars. NaN marks
	// warmup positions where the feature is undefined.
	Feature []float64 `json:"-"`
}

// Fold is one walk-forward train/validation split. Both index sets are
// disjoint, strictly increasing positions into the same series, separated
// by an embargo gap of at least the target horizon.
type Fold struct {
	TrainIdx []int
	ValIdx   []int
}

// FitModel is a single-variable linear model mapping a feature value to a
// predicted relative price delta.
type FitModel struct {
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
}

// Evaluation holds pooled out-of-fold metrics for one (candidate, horizon).
type Evaluation struct {
	Horizon        int     `json:"horizon"`
	NormalizedRMSE float64 `json:"normalizedRmse"`
	NormalizedMAE  float64 `json:"normalizedMae"`
	HitRate        float64 `json:"hitRate"`
	CompositeError float64 `json:"compositeError"`

	// Aligned out-of-fold sequences pooled across all folds.
	YTrue    []float64 `json:"yTrue"`
	YPred    []float64 `json:"yPred"`
	CloseRef []float64 `json:"closeRef"`
}

// HorizonMetrics is the sparse per-horizon metric map retained for the
// horizon-vs-error heatmap. Keyed by scanned horizon.
type HorizonMetrics map[int]HorizonScore

// HorizonScore is the pooled score at one scanned horizon.
type HorizonScore struct {
	NormalizedRMSE float64 `json:"normalizedRmse"`
	NormalizedMAE  float64 `json:"normalizedMae"`
	HitRate        float64 `json:"hitRate"`
	CompositeError float64 `json:"compositeError"`
}

// BacktestResult summarizes a signal simulation over pooled predictions.
type BacktestResult struct {
	PnL         float64   `json:"pnl"`
	MaxDrawdown float64   `json:"maxDrawdown"`
	Turnover    float64   `json:"turnover"`
	EquityCurve []float64 `json:"equityCurve"`
}

// FrontierEntry is one next-best candidate kept for diagnostic display.
type FrontierEntry struct {
	Expression     string  `json:"expression"`
	Horizon        int     `json:"horizon"`
	CompositeError float64 `json:"compositeError"`
	HitRate        float64 `json:"hitRate"`
	Complexity     int     `json:"complexity"`
}

// Outcome is the winning (candidate, horizon) for one (symbol, timeframe)
// together with its evaluation, backtest, and the diagnostic frontier.
type Outcome struct {
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`

	Candidate Candidate      `json:"candidate"`
	Eval      Evaluation     `json:"evaluation"`
	Backtest  BacktestResult `json:"backtest"`

	// HorizonScan holds pooled metrics at every scanned horizon for the
	// winning candidate.
	HorizonScan HorizonMetrics `json:"horizonScan"`

	Frontier []FrontierEntry `json:"frontier"`
}
