package domain

// Recommendation is one ranked per-asset result inside a ResultSummary.
type Recommendation struct {
	Symbol         string  `json:"symbol"`
	Timeframe      string  `json:"timeframe"`
	Expression     string  `json:"expression"`
	Formula        string  `json:"formula"`
	Horizon        int     `json:"horizon"`
	CompositeError float64 `json:"compositeError"`
	HitRate        float64 `json:"hitRate"`
	PnL            float64 `json:"pnl"`
	MaxDrawdown    float64 `json:"maxDrawdown"`
	Complexity     int     `json:"complexity"`
}

// UniversalRecommendation is the single candidate expression performing
// best on average across all evaluated (symbol, timeframe) outcomes.
type UniversalRecommendation struct {
	Expression        string   `json:"expression"`
	Formula           string   `json:"formula"`
	Symbols           []string `json:"symbols"` // assets it was evaluated on
	MeanCompositeErr  float64  `json:"meanCompositeError"`
	MeanHitRate       float64  `json:"meanHitRate"`
	MeanPnL           float64  `json:"meanPnl"`
	Score             float64  `json:"score"` // selection objective, lower is better
	OutcomesConsidered int     `json:"outcomesConsidered"`
}

// ResultSummary aggregates all outcomes of a completed run.
type ResultSummary struct {
	RunID           string                   `json:"runId"`
	GeneratedAt     int64                    `json:"generatedAt"`
	Recommendations []Recommendation         `json:"recommendations"` // sorted by composite error ASC
	Universal       *UniversalRecommendation `json:"universal,omitempty"`
	Outcomes        []Outcome                `json:"outcomes"`
	SkippedPairs    []SkippedPair            `json:"skippedPairs,omitempty"`
}

// SkippedPair records a (symbol, timeframe) that produced no outcome and why.
type SkippedPair struct {
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
	Reason    string `json:"reason"`
}
