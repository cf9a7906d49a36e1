package walkforward

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"indicator-lab/internal/domain"
)

// Fit acceptance thresholds.
const (
	// minFitPairs is the minimum number of finite (feature, target) pairs
	// required for a usable fit.
	minFitPairs = 80

	// minFeatureVariance guards against numerically degenerate features.
	minFeatureVariance = 1e-9
)

// FitLinear1D performs ordinary least squares of targetDelta on feature,
// restricted to trainIdx. Non-finite pairs are dropped. Returns ok=false on
// too few usable pairs or degenerate feature variance; the caller excludes
// that fold rather than treating it as an error.
func FitLinear1D(feature, targetDelta []float64, trainIdx []int) (domain.FitModel, bool) {
	xs := make([]float64, 0, len(trainIdx))
	ys := make([]float64, 0, len(trainIdx))
	for _, i := range trainIdx {
		x, y := feature[i], targetDelta[i]
		if !finite(x) || !finite(y) {
			continue
		}
		xs = append(xs, x)
		ys = append(ys, y)
	}

	if len(xs) < minFitPairs {
		return domain.FitModel{}, false
	}
	if stat.Variance(xs, nil) < minFeatureVariance {
		return domain.FitModel{}, false
	}

	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	if !finite(alpha) || !finite(beta) {
		return domain.FitModel{}, false
	}
	return domain.FitModel{Alpha: alpha, Beta: beta}, true
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
