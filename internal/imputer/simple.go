package imputer

import (
	"context"

	"golang.org/x/sync/errgroup"

	"ehrkit/internal/stats"
	"ehrkit/pkg/contracts/domain"
)

// imputeSimple fills masked entries of the given columns with the column
// mean, median or mode, computed from observed entries only. Columns are
// independent, so they run concurrently; each worker owns a disjoint
// column slice of the shared output matrix.
func (im *Imputer) imputeSimple(ctx context.Context, out *domain.Matrix, mask *domain.MissingnessMask, cols []int, strategy Strategy) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(im.config.Workers)
	for _, col := range cols {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			fill := fillValue(observedValues(out, mask, col), strategy)
			for row := range out.Data {
				if mask.At(row, col) {
					out.Data[row][col] = fill
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// fillValue computes the per-column replacement under a simple strategy.
func fillValue(observed []float64, strategy Strategy) float64 {
	switch strategy {
	case StrategyMedian:
		return stats.Median(observed)
	case StrategyMode:
		return stats.Mode(observed)
	default:
		return stats.Mean(observed)
	}
}
