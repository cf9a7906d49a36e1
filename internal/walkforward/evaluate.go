package walkforward

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"indicator-lab/internal/domain"
)

// predictionClamp bounds the predicted relative delta before converting back
// to an absolute price.
const predictionClamp = 0.8

// Evaluator scores candidates at scanned horizons using the configured
// composite-error weights.
type Evaluator struct {
	params domain.EngineParams
}

// NewEvaluator creates an Evaluator.
func NewEvaluator(params domain.EngineParams) *Evaluator {
	return &Evaluator{params: params}
}

// TargetDeltas computes the realized relative price change horizon bars
// ahead; NaN where the future bar does not exist.
func TargetDeltas(close []float64, horizon int) []float64 {
	out := make([]float64, len(close))
	for i := range close {
		if i+horizon >= len(close) || close[i] == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = (close[i+horizon] - close[i]) / close[i]
	}
	return out
}

// EvaluateAtHorizon fits the candidate fold by fold and pools out-of-fold
// predictions at one horizon. Returns ok=false when no fold yields usable
// predictions (insufficient rows, degenerate fits).
func (e *Evaluator) EvaluateAtHorizon(cand *domain.Candidate, close []float64, horizon int) (*domain.Evaluation, bool) {
	folds := BuildFolds(len(close), horizon)
	if len(folds) == 0 {
		return nil, false
	}

	target := TargetDeltas(close, horizon)

	var yTrue, yPred, closeRef []float64
	for _, fold := range folds {
		model, ok := FitLinear1D(cand.Feature, target, fold.TrainIdx)
		if !ok {
			continue
		}
		for _, i := range fold.ValIdx {
			x := cand.Feature[i]
			if !finite(x) || !finite(target[i]) {
				continue
			}
			delta := clamp(model.Alpha+model.Beta*x, -predictionClamp, predictionClamp)
			yPred = append(yPred, close[i]*(1+delta))
			yTrue = append(yTrue, close[i+horizon])
			closeRef = append(closeRef, close[i])
		}
	}

	if len(yTrue) == 0 {
		return nil, false
	}

	ev := &domain.Evaluation{
		Horizon:  horizon,
		YTrue:    yTrue,
		YPred:    yPred,
		CloseRef: closeRef,
	}
	e.score(ev)
	return ev, true
}

// BestHorizon scans horizons from params.HorizonMin to params.HorizonMax in
// params.HorizonStep increments and returns the evaluation minimizing the
// composite error, plus the sparse per-horizon metric map for heatmaps.
func (e *Evaluator) BestHorizon(cand *domain.Candidate, close []float64) (*domain.Evaluation, domain.HorizonMetrics, bool) {
	scan := make(domain.HorizonMetrics)
	var best *domain.Evaluation

	for h := e.params.HorizonMin; h <= e.params.HorizonMax; h += e.params.HorizonStep {
		ev, ok := e.EvaluateAtHorizon(cand, close, h)
		if !ok {
			continue
		}
		scan[h] = domain.HorizonScore{
			NormalizedRMSE: ev.NormalizedRMSE,
			NormalizedMAE:  ev.NormalizedMAE,
			HitRate:        ev.HitRate,
			CompositeError: ev.CompositeError,
		}
		if best == nil || ev.CompositeError < best.CompositeError {
			best = ev
		}
	}

	if best == nil {
		return nil, nil, false
	}
	return best, scan, true
}

// score fills the pooled metric fields of ev in place.
func (e *Evaluator) score(ev *domain.Evaluation) {
	n := len(ev.YTrue)

	var sqSum, absSum, refAbsSum float64
	hits := 0
	for i := 0; i < n; i++ {
		errv := ev.YTrue[i] - ev.YPred[i]
		sqSum += errv * errv
		absSum += math.Abs(errv)
		refAbsSum += math.Abs(ev.YTrue[i] - ev.CloseRef[i])

		if sign(ev.YTrue[i]-ev.CloseRef[i]) == sign(ev.YPred[i]-ev.CloseRef[i]) {
			hits++
		}
	}

	rmse := math.Sqrt(sqSum / float64(n))
	mae := absSum / float64(n)

	yStd := stat.StdDev(ev.YTrue, nil)
	if math.IsNaN(yStd) {
		yStd = 0
	}

	ev.NormalizedRMSE = rmse / math.Max(yStd, 1e-9)
	ev.NormalizedMAE = mae / math.Max(refAbsSum/float64(n), 1e-9)
	ev.HitRate = float64(hits) / float64(n)
	ev.CompositeError = e.params.WeightRMSE*ev.NormalizedRMSE +
		e.params.WeightMAE*ev.NormalizedMAE +
		e.params.WeightHitRate*(1-ev.HitRate)
}

func sign(x float64) int {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
