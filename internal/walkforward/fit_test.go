package walkforward

import (
	"math"
	"testing"
)

func TestFitLinear1D_RecoversKnownLine(t *testing.T) {
	// y = 2x + 1, exactly.
	n := 100
	feature := make([]float64, n)
	target := make([]float64, n)
	idx := make([]int, n)
	for i := 0; i < n; i++ {
		feature[i] = float64(i) * 0.01
		target[i] = 2*feature[i] + 1
		idx[i] = i
	}

	model, ok := FitLinear1D(feature, target, idx)
	if !ok {
		t.Fatal("expected a usable fit")
	}
	if math.Abs(model.Alpha-1) > 1e-9 {
		t.Errorf("alpha = %v, want 1", model.Alpha)
	}
	if math.Abs(model.Beta-2) > 1e-9 {
		t.Errorf("beta = %v, want 2", model.Beta)
	}
}

func TestFitLinear1D_TooFewPairs(t *testing.T) {
	n := minFitPairs - 1
	feature := make([]float64, n)
	target := make([]float64, n)
	idx := make([]int, n)
	for i := 0; i < n; i++ {
		feature[i] = float64(i)
		target[i] = float64(i)
		idx[i] = i
	}

	if _, ok := FitLinear1D(feature, target, idx); ok {
		t.Error("expected rejection below the pair floor")
	}
}

func TestFitLinear1D_NaNPairsDropped(t *testing.T) {
	// Enough raw indices, but NaN holes push finite pairs below the floor.
	n := minFitPairs + 10
	feature := make([]float64, n)
	target := make([]float64, n)
	idx := make([]int, n)
	for i := 0; i < n; i++ {
		feature[i] = float64(i)
		target[i] = float64(i)
		idx[i] = i
		if i%2 == 0 {
			feature[i] = math.NaN()
		}
	}

	if _, ok := FitLinear1D(feature, target, idx); ok {
		t.Error("expected rejection after dropping non-finite pairs")
	}
}

func TestFitLinear1D_DegenerateVariance(t *testing.T) {
	n := 200
	feature := make([]float64, n)
	target := make([]float64, n)
	idx := make([]int, n)
	for i := 0; i < n; i++ {
		feature[i] = 3.14 // constant
		target[i] = float64(i)
		idx[i] = i
	}

	if _, ok := FitLinear1D(feature, target, idx); ok {
		t.Error("expected rejection for zero-variance feature")
	}
}
