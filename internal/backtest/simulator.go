// Package backtest converts pooled out-of-fold predictions into a
// long/flat/short signal and simulates it with proportional transaction
// costs. The previous bar's signal is applied to the current bar's realized
// return, so the simulation itself cannot look ahead.
package backtest

import (
	"indicator-lab/internal/domain"
)

// minPoints is the minimum number of aligned points for a meaningful
// simulation; below it a zero result is returned.
const minPoints = 5

// Simulate runs the threshold signal over aligned (yTrue, yPred, closeRef)
// sequences. threshold is the minimum predicted relative move to open a
// position; fee is the proportional cost charged on every unit of signal
// change.
func Simulate(yTrue, yPred, closeRef []float64, threshold, fee float64) domain.BacktestResult {
	n := len(closeRef)
	if n < minPoints || len(yTrue) != n || len(yPred) != n {
		return domain.BacktestResult{}
	}

	signals := make([]int, n)
	for i := 0; i < n; i++ {
		if closeRef[i] == 0 {
			continue
		}
		move := (yPred[i] - closeRef[i]) / closeRef[i]
		switch {
		case move > threshold:
			signals[i] = 1
		case move < -threshold:
			signals[i] = -1
		}
	}

	equity := 1.0
	peak := 1.0
	maxDrawdown := 0.0
	turnoverSum := 0.0
	curve := make([]float64, 0, n)
	curve = append(curve, equity)

	for i := 1; i < n; i++ {
		var ret float64
		if closeRef[i-1] != 0 {
			ret = (closeRef[i] - closeRef[i-1]) / closeRef[i-1]
		}

		change := abs(signals[i] - signals[i-1])
		turnoverSum += float64(change)

		barPnl := float64(signals[i-1])*ret - fee*float64(change)
		equity *= 1 + barPnl
		curve = append(curve, equity)

		if equity > peak {
			peak = equity
		}
		if dd := (equity - peak) / peak; dd < maxDrawdown {
			maxDrawdown = dd
		}
	}

	return domain.BacktestResult{
		PnL:         equity - 1,
		MaxDrawdown: maxDrawdown,
		Turnover:    turnoverSum / float64(n-1),
		EquityCurve: curve,
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
