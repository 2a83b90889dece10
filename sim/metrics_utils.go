// sim/metrics_utils.go
package sim

import (
	"math"
	"sort"
)

type IntOrFloat64 interface {
	int | int64 | float64
}

// CalculatePercentile returns the p-th percentile (0-100) of sorted data using
// linear interpolation between closest ranks, rank = p/100*(n-1).
// Returns 0 for empty data.
func CalculatePercentile[T IntOrFloat64](data []T, p float64) float64 {
	n := len(data)
	if n == 0 {
		return 0
	}

	rank := p / 100.0 * float64(n-1)
	lowerIdx := int(math.Floor(rank))
	upperIdx := int(math.Ceil(rank))
	if lowerIdx < 0 {
		return float64(data[0])
	}
	if upperIdx >= n {
		return float64(data[n-1])
	}
	if lowerIdx == upperIdx {
		return float64(data[lowerIdx])
	}
	lowerVal := float64(data[lowerIdx])
	upperVal := float64(data[upperIdx])
	return lowerVal + (upperVal-lowerVal)*(rank-float64(lowerIdx))
}

// PercentileUnsorted sorts a copy of data and returns its p-th percentile.
func PercentileUnsorted(data []float64, p float64) float64 {
	sorted := append([]float64(nil), data...)
	sort.Float64s(sorted)
	return CalculatePercentile(sorted, p)
}

// RMSE returns the root-mean-square difference between observed and predicted.
func RMSE(observed, predicted []float64) float64 {
	if len(observed) == 0 {
		return 0
	}
	sum := 0.0
	for i := range observed {
		d := observed[i] - predicted[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(observed)))
}
