// Package stats holds the descriptive statistics used by detection and
// reporting.
package stats

import (
	"math"
	"sort"
)

// Sum returns the sum of values.
func Sum(values []float64) float64 {
	var s float64
	for _, v := range values {
		s += v
	}
	return s
}

// Mean returns the arithmetic mean, or 0 for no values.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return Sum(values) / float64(len(values))
}

// PopStdDev returns the population standard deviation (divides by n).
func PopStdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := Mean(values)
	var ss float64
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(values)))
}

// Percentile returns the nearest-rank percentile p in [0, 100].
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}

// Max returns the largest value, or 0 for no values.
func Max(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// Summary holds the per-series figures shown in reports.
type Summary struct {
	Count int
	Sum   float64
	Mean  float64
	P50   float64
	P90   float64
	P99   float64
	Max   float64
}

// Summarize computes a Summary.
func Summarize(values []float64) Summary {
	return Summary{
		Count: len(values),
		Sum:   Sum(values),
		Mean:  Mean(values),
		P50:   Percentile(values, 50),
		P90:   Percentile(values, 90),
		P99:   Percentile(values, 99),
		Max:   Max(values),
	}
}
