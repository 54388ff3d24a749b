package imputer

import (
	"math"
	"sort"
	"strings"

	"ehrkit/pkg/contracts/domain"
)

// neighbor pairs a candidate row with its distance to the target row.
type neighbor struct {
	row  int
	dist float64
}

// imputeKNN fills masked entries of the given columns from the k nearest
// rows. Distance is the root mean squared difference over the dimensions
// both rows observe; rows sharing no observed dimension are not candidates.
// Equidistant rows order by ascending row index, keeping fills stable and
// deterministic.
func (im *Imputer) imputeKNN(out *domain.Matrix, original *domain.Matrix, mask *domain.MissingnessMask, cols []int) error {
	for _, col := range cols {
		categorical := strings.HasPrefix(original.Columns[col], domain.EncodedColumnPrefix)
		for row := range original.Data {
			if !mask.At(row, col) {
				continue
			}
			neighbors := im.nearestNeighbors(original, mask, row, col)
			if len(neighbors) == 0 {
				// No row shares an observed dimension; fall back to the
				// column mean over observed entries.
				out.Data[row][col] = fillValue(observedValues(original, mask, col), StrategyMean)
				continue
			}
			if categorical {
				out.Data[row][col] = weightedMode(original, col, neighbors)
			} else {
				out.Data[row][col] = weightedMean(original, col, neighbors)
			}
		}
	}
	return nil
}

// nearestNeighbors returns up to k candidate rows observed at the target
// column, nearest first, ties broken by lowest row index.
func (im *Imputer) nearestNeighbors(matrix *domain.Matrix, mask *domain.MissingnessMask, targetRow, targetCol int) []neighbor {
	var candidates []neighbor
	for j := range matrix.Data {
		if j == targetRow || mask.At(j, targetCol) {
			continue
		}
		dist, shared := rowDistance(matrix, mask, targetRow, j)
		if shared == 0 {
			continue
		}
		candidates = append(candidates, neighbor{row: j, dist: dist})
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		if candidates[a].dist != candidates[b].dist {
			return candidates[a].dist < candidates[b].dist
		}
		return candidates[a].row < candidates[b].row
	})

	if len(candidates) > im.config.Neighbors {
		candidates = candidates[:im.config.Neighbors]
	}
	return candidates
}

// rowDistance computes the root mean squared difference over the dimensions
// observed in both rows, and the number of such shared dimensions.
func rowDistance(matrix *domain.Matrix, mask *domain.MissingnessMask, a, b int) (float64, int) {
	sum := 0.0
	shared := 0
	for col := range matrix.Columns {
		if mask.At(a, col) || mask.At(b, col) {
			continue
		}
		d := matrix.At(a, col) - matrix.At(b, col)
		sum += d * d
		shared++
	}
	if shared == 0 {
		return 0, 0
	}
	return math.Sqrt(sum / float64(shared)), shared
}

// weightedMean averages the neighbor values, weighting closer rows higher.
func weightedMean(matrix *domain.Matrix, col int, neighbors []neighbor) float64 {
	sum, weightSum := 0.0, 0.0
	for _, n := range neighbors {
		w := 1.0 / (n.dist + 1e-9)
		sum += w * matrix.At(n.row, col)
		weightSum += w
	}
	return sum / weightSum
}

// weightedMode picks the neighbor value with the largest summed weight.
// Weight ties resolve to the value of the nearest, lowest-index neighbor.
func weightedMode(matrix *domain.Matrix, col int, neighbors []neighbor) float64 {
	weights := make(map[float64]float64)
	best := matrix.At(neighbors[0].row, col)
	bestWeight := 0.0
	for _, n := range neighbors {
		v := matrix.At(n.row, col)
		weights[v] += 1.0 / (n.dist + 1e-9)
		if weights[v] > bestWeight {
			best = v
			bestWeight = weights[v]
		}
	}
	return best
}
