// Package walkforward implements leakage-resistant walk-forward validation:
// embargoed fold construction, per-fold linear fitting, and the horizon-scan
// evaluation that scores candidate features out of fold.
package walkforward

import "indicator-lab/internal/domain"

// Fold construction bounds.
const (
	// minUsableRows is the shortest usable range (rows minus the horizon
	// reservation) that yields any folds at all.
	minUsableRows = 320

	// foldChunks partitions the usable range; chunks 1..foldChunks-1 serve
	// cumulatively as training material, so up to foldChunks-1 folds result.
	foldChunks = 5

	// minTrainRows and minValRows discard degenerate folds.
	minTrainRows = 120
	minValRows   = 40
)

// BuildFolds splits a series of n rows into non-overlapping, horizon-embargoed
// train/validation folds. The last horizon positions are reserved so every
// validation row has a realized target. Later folds train on strictly more
// history, mimicking production retraining cadence. Returns nil when fewer
// than minUsableRows usable rows remain; callers skip that horizon.
func BuildFolds(n, horizon int) []domain.Fold {
	usable := n - horizon
	if usable < minUsableRows {
		return nil
	}

	chunk := usable / foldChunks

	var folds []domain.Fold
	for i := 0; i < foldChunks-1; i++ {
		trainEnd := chunk * (i + 1)
		valStart := trainEnd + horizon // embargo gap
		valEnd := valStart + chunk
		if valEnd > usable {
			valEnd = usable
		}

		if trainEnd < minTrainRows || valEnd-valStart < minValRows {
			continue
		}

		fold := domain.Fold{
			TrainIdx: makeRange(0, trainEnd),
			ValIdx:   makeRange(valStart, valEnd),
		}
		folds = append(folds, fold)
	}
	return folds
}

// makeRange returns [start, end) as an index slice.
func makeRange(start, end int) []int {
	idx := make([]int, end-start)
	for i := range idx {
		idx[i] = start + i
	}
	return idx
}
