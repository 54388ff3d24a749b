package imputer

import (
	"context"
	"fmt"
	"math"
	"sync"

	"golang.org/x/sync/errgroup"

	"ehrkit/internal/stats"
	"ehrkit/pkg/contracts/domain"
)

// imputeChained runs chained multiple imputation: masked entries start at
// the column mean, then each incomplete column is repeatedly re-modelled as
// a linear function of all other columns, cycling columns in fixed index
// order. The loop stops at the iteration cap or once the largest per-column
// change in a cycle falls below epsilon, whichever triggers first. Hitting
// the cap is not retried; the last iterate is kept and the run is flagged.
//
// Candidate updates within one iteration read a snapshot taken at the start
// of the cycle, so they can run concurrently; a barrier separates
// iterations because each cycle depends on the previous one's values.
func (im *Imputer) imputeChained(ctx context.Context, out *domain.Matrix, mask *domain.MissingnessMask, cols []int) ([]domain.QualityWarning, error) {
	// Initial fill so every predictor is dense from the first cycle.
	for _, col := range cols {
		mean := stats.Mean(observedValues(out, mask, col))
		for row := range out.Data {
			if mask.At(row, col) {
				out.Data[row][col] = mean
			}
		}
	}

	incomplete := make([]int, 0, len(cols))
	for _, col := range cols {
		if mask.CountColumn(col) > 0 {
			incomplete = append(incomplete, col)
		}
	}
	if len(incomplete) == 0 {
		return nil, nil
	}

	converged := false
	iterations := 0
	lastDelta := math.Inf(1)

	for iter := 0; iter < im.config.MaxIterations; iter++ {
		iterations = iter + 1
		snapshot := out.Clone()

		var mu sync.Mutex
		maxDelta := 0.0

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(im.config.Workers)
		for _, col := range incomplete {
			g.Go(func() error {
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}
				delta := updateColumn(snapshot, out, mask, col)
				mu.Lock()
				if delta > maxDelta {
					maxDelta = delta
				}
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		lastDelta = maxDelta
		if maxDelta < im.config.ConvergenceEpsilon {
			converged = true
			break
		}
	}

	if !converged {
		return []domain.QualityWarning{{
			Code: domain.WarningNonConvergence,
			Message: fmt.Sprintf("chained imputation stopped after %d iterations with max delta %.6g above epsilon %.6g",
				iterations, lastDelta, im.config.ConvergenceEpsilon),
		}}, nil
	}
	return nil, nil
}

// updateColumn refits the target column against all others on the snapshot
// and writes new fills for its masked rows into out. Returns the largest
// absolute change among the refilled entries.
func updateColumn(snapshot, out *domain.Matrix, mask *domain.MissingnessMask, target int) float64 {
	predictors := make([]int, 0, snapshot.NumCols()-1)
	for col := range snapshot.Columns {
		if col != target {
			predictors = append(predictors, col)
		}
	}

	var trainRows, fillRows []int
	for row := range snapshot.Data {
		if mask.At(row, target) {
			fillRows = append(fillRows, row)
		} else {
			trainRows = append(trainRows, row)
		}
	}

	beta, ok := fitLeastSquares(snapshot, predictors, target, trainRows)
	maxDelta := 0.0
	for _, row := range fillRows {
		var predicted float64
		if ok {
			predicted = beta[0]
			for k, col := range predictors {
				predicted += beta[k+1] * snapshot.At(row, col)
			}
		} else {
			// Degenerate design matrix; keep the mean-level fill.
			predicted = stats.Mean(columnValues(snapshot, target, trainRows))
		}
		delta := math.Abs(predicted - snapshot.At(row, target))
		if delta > maxDelta {
			maxDelta = delta
		}
		out.Data[row][target] = predicted
	}
	return maxDelta
}

func columnValues(matrix *domain.Matrix, col int, rows []int) []float64 {
	out := make([]float64, len(rows))
	for i, row := range rows {
		out[i] = matrix.At(row, col)
	}
	return out
}

// fitLeastSquares solves the normal equations for an ordinary least squares
// fit of the target column on the predictor columns plus an intercept.
// Returns false when the system is singular, e.g. fewer training rows than
// coefficients or collinear predictors.
func fitLeastSquares(matrix *domain.Matrix, predictors []int, target int, trainRows []int) ([]float64, bool) {
	p := len(predictors) + 1
	if len(trainRows) < p {
		return nil, false
	}

	// Accumulate X^T X and X^T y with the intercept as column zero.
	xtx := make([][]float64, p)
	for i := range xtx {
		xtx[i] = make([]float64, p)
	}
	xty := make([]float64, p)

	xrow := make([]float64, p)
	for _, row := range trainRows {
		xrow[0] = 1
		for k, col := range predictors {
			xrow[k+1] = matrix.At(row, col)
		}
		y := matrix.At(row, target)
		for i := 0; i < p; i++ {
			for j := 0; j < p; j++ {
				xtx[i][j] += xrow[i] * xrow[j]
			}
			xty[i] += xrow[i] * y
		}
	}

	return solveLinearSystem(xtx, xty)
}

// solveLinearSystem solves Ax = b by Gaussian elimination with partial
// pivoting. Returns false for singular systems.
func solveLinearSystem(a [][]float64, b []float64) ([]float64, bool) {
	n := len(b)
	for col := 0; col < n; col++ {
		pivot := col
		for row := col + 1; row < n; row++ {
			if math.Abs(a[row][col]) > math.Abs(a[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return nil, false
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]

		for row := col + 1; row < n; row++ {
			factor := a[row][col] / a[col][col]
			for k := col; k < n; k++ {
				a[row][k] -= factor * a[col][k]
			}
			b[row] -= factor * b[col]
		}
	}

	x := make([]float64, n)
	for row := n - 1; row >= 0; row-- {
		sum := b[row]
		for col := row + 1; col < n; col++ {
			sum -= a[row][col] * x[col]
		}
		x[row] = sum / a[row][row]
	}
	return x, true
}
