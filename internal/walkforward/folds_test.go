package walkforward

import "testing"

func TestBuildFolds_TooShort(t *testing.T) {
	horizon := 10
	// One row short of the usable-row floor.
	n := minUsableRows + horizon - 1

	if folds := BuildFolds(n, horizon); folds != nil {
		t.Errorf("expected no folds for %d rows, got %d", n, len(folds))
	}
}

func TestBuildFolds_BoundaryExactlyUsable(t *testing.T) {
	horizon := 10
	n := minUsableRows + horizon

	folds := BuildFolds(n, horizon)
	if len(folds) == 0 {
		t.Fatalf("expected folds at the exact boundary, got none")
	}
}

func TestBuildFolds_EmbargoAndOrdering(t *testing.T) {
	n, horizon := 1000, 10

	folds := BuildFolds(n, horizon)
	if len(folds) != 4 {
		t.Fatalf("expected 4 folds for %d rows, got %d", n, len(folds))
	}

	prevTrainLen := 0
	for fi, fold := range folds {
		if len(fold.TrainIdx) < minTrainRows {
			t.Errorf("fold %d: train length %d below floor", fi, len(fold.TrainIdx))
		}
		if len(fold.ValIdx) < minValRows {
			t.Errorf("fold %d: validation length %d below floor", fi, len(fold.ValIdx))
		}

		// Training windows must grow across folds.
		if len(fold.TrainIdx) <= prevTrainLen {
			t.Errorf("fold %d: train window did not grow (%d <= %d)", fi, len(fold.TrainIdx), prevTrainLen)
		}
		prevTrainLen = len(fold.TrainIdx)

		// Every validation index sits at least horizon past the last
		// training index.
		maxTrain := fold.TrainIdx[len(fold.TrainIdx)-1]
		for _, v := range fold.ValIdx {
			if v < maxTrain+horizon {
				t.Fatalf("fold %d: validation index %d inside embargo (max train %d, horizon %d)",
					fi, v, maxTrain, horizon)
			}
			// Target at v must exist within the series.
			if v+horizon >= n {
				t.Fatalf("fold %d: validation index %d has no realized target", fi, v)
			}
		}

		// Indices strictly increase.
		for i := 1; i < len(fold.ValIdx); i++ {
			if fold.ValIdx[i] <= fold.ValIdx[i-1] {
				t.Fatalf("fold %d: validation indices not strictly increasing", fi)
			}
		}
	}
}

func TestBuildFolds_ValidationStaysInUsableRange(t *testing.T) {
	n, horizon := 500, 100
	usable := n - horizon

	for _, fold := range BuildFolds(n, horizon) {
		last := fold.ValIdx[len(fold.ValIdx)-1]
		if last >= usable {
			t.Errorf("validation index %d beyond usable range %d", last, usable)
		}
	}
}
