package domain

// Bar represents one OHLCV row for a (symbol, timeframe) series.
// Bars are immutable once ingested; a series is time-ordered with no
// duplicate timestamps.
type Bar struct {
	Timestamp int64   `json:"timestamp"` // bar open time, Unix milliseconds
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// Series is a time-ordered sequence of bars for one (symbol, timeframe).
type Series struct {
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
	Bars      []Bar  `json:"bars"`
}

// Len returns the number of bars.
func (s *Series) Len() int { return len(s.Bars) }

// Closes extracts the close column.
func (s *Series) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}

// Highs extracts the high column.
func (s *Series) Highs() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.High
	}
	return out
}

// Lows extracts the low column.
func (s *Series) Lows() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Low
	}
	return out
}

// Volumes extracts the volume column.
func (s *Series) Volumes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Volume
	}
	return out
}

// TimeframeMinutes maps supported timeframe labels to their bar length
// in minutes. Fetch sizing and ETA math use this table.
var TimeframeMinutes = map[string]int{
	"15m": 15,
	"1h":  60,
	"4h":  240,
	"1d":  1440,
}
