package models

import (
	"math"
	"sort"
)

// Percentile returns the p-th quantile (p in [0,1]) of an ascending slice
// using linear interpolation between closest ranks:
//
//	k = (n-1)*p, f = floor(k), c = min(f+1, n-1)
//	result = data[f] + (k-f)*(data[c]-data[f])
//
// An empty slice yields 0.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	k := float64(n-1) * p
	f := int(math.Floor(k))
	c := f + 1
	if c >= n {
		c = n - 1
	}
	return sorted[f] + (k-float64(f))*(sorted[c]-sorted[f])
}

// SortedCopy returns an ascending copy of data, leaving the input untouched.
func SortedCopy(data []float64) []float64 {
	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)
	return sorted
}

// CalculatePercentiles computes P50 and P95 of unsorted data. A single
// sample is both its own median and P95.
func CalculatePercentiles(data []float64) (float64, float64) {
	if len(data) == 0 {
		return 0, 0
	}
	sorted := SortedCopy(data)
	return Percentile(sorted, 0.50), Percentile(sorted, 0.95)
}
