package volumeprofile

import (
	"math"
	"sort"
)

// linspace returns n evenly spaced values from start to stop inclusive.
// For n == 1 the single value is start.
func linspace(start, stop float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	out := make([]float64, n)
	if n == 1 {
		out[0] = start
		return out
	}
	step := (stop - start) / float64(n-1)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	// avoid accumulated float drift on the endpoints
	out[0] = start
	out[n-1] = stop
	return out
}

// searchSortedLeft returns the leftmost insertion point for v in the
// ascending slice a: the index of the first element not less than v.
func searchSortedLeft(a []float64, v float64) int {
	return sort.Search(len(a), func(i int) bool { return a[i] >= v })
}

// searchSortedRight returns the rightmost insertion point for v in the
// ascending slice a: the index of the first element greater than v.
func searchSortedRight(a []float64, v float64) int {
	return sort.Search(len(a), func(i int) bool { return a[i] > v })
}

// percentile computes the p-th percentile (0..100) of values using linear
// interpolation between closest ranks. The input slice is not modified.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo < 0 {
		lo = 0
	}
	if hi > len(sorted)-1 {
		hi = len(sorted) - 1
	}
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
