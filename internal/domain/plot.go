package domain

// PlotKind discriminates plot payload variants.
type PlotKind string

// Plot kind constants.
const (
	PlotHeatmap   PlotKind = "heatmap"
	PlotOverlay   PlotKind = "overlay"
	PlotScatter   PlotKind = "scatter"
	PlotBars      PlotKind = "bars"
	PlotTable     PlotKind = "table"
	PlotEquity    PlotKind = "equity"
	PlotHistogram PlotKind = "histogram"
)

// Well-known plot ids produced for every completed run.
const (
	PlotIDHorizonHeatmap    = "horizon_error_heatmap"
	PlotIDForecastOverlay   = "forecast_overlay"
	PlotIDComplexityScatter = "complexity_error_scatter"
	PlotIDTimeframeBars     = "timeframe_error_bars"
	PlotIDLeaderboard       = "leaderboard"
	PlotIDEquityCurves      = "equity_curves"
	PlotIDResidualHist      = "residual_histogram"
)

// PlotPayload is a tagged union: exactly one variant field matching Kind is
// populated. Payloads are plain structured data for the UI to render.
type PlotPayload struct {
	ID    string   `json:"id"`
	Kind  PlotKind `json:"kind"`
	Title string   `json:"title"`

	Heatmap   *HeatmapData   `json:"heatmap,omitempty"`
	Overlay   *OverlayData   `json:"overlay,omitempty"`
	Scatter   *ScatterData   `json:"scatter,omitempty"`
	Bars      *BarsData      `json:"bars,omitempty"`
	Table     *TableData     `json:"table,omitempty"`
	Equity    *EquityData    `json:"equity,omitempty"`
	Histogram *HistogramData `json:"histogram,omitempty"`
}

// HeatmapData is a dense row-major matrix with axis labels.
type HeatmapData struct {
	XLabels []string     `json:"xLabels"`
	YLabels []string     `json:"yLabels"`
	Values  [][]*float64 `json:"values"` // Values[y][x]; nil (JSON null) encodes a missing cell
}

// OverlayData is an actual-vs-predicted series pair on a shared axis.
type OverlayData struct {
	Timestamps []int64   `json:"timestamps"`
	Actual     []float64 `json:"actual"`
	Predicted  []float64 `json:"predicted"`
	Label      string    `json:"label"`
}

// ScatterPoint is one labeled scatter point.
type ScatterPoint struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Label string  `json:"label"`
}

// ScatterData is a labeled point cloud.
type ScatterData struct {
	XAxis  string         `json:"xAxis"`
	YAxis  string         `json:"yAxis"`
	Points []ScatterPoint `json:"points"`
}

// BarsData is a categorical bar chart.
type BarsData struct {
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
	YAxis  string    `json:"yAxis"`
}

// TableData is a rendered-as-is table.
type TableData struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// EquitySeries is one named equity curve.
type EquitySeries struct {
	Label  string    `json:"label"`
	Equity []float64 `json:"equity"`
}

// EquityData holds the top equity curves.
type EquityData struct {
	Series []EquitySeries `json:"series"`
}

// HistogramData is a pre-binned histogram.
type HistogramData struct {
	BinEdges []float64 `json:"binEdges"` // len = len(Counts)+1
	Counts   []int     `json:"counts"`
	XAxis    string    `json:"xAxis"`
}
