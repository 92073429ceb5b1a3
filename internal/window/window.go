// Package window maps physical time bounds onto sample index ranges.
package window

import (
	"sort"

	"github.com/ghalamif/PulseFlow/internal/domain"
)

// Range is an inclusive index range [Low, High]. High < Low signals an empty
// window; callers must check Empty before indexing.
type Range struct {
	Low  int
	High int
}

func (r Range) Empty() bool { return r.High < r.Low }

// Len returns the number of selected samples.
func (r Range) Len() int {
	if r.Empty() {
		return 0
	}
	return r.High - r.Low + 1
}

// Slice returns the selected part of v, or nil when the range is empty.
func (r Range) Slice(v []float64) []float64 {
	if r.Empty() {
		return nil
	}
	return v[r.Low : r.High+1]
}

// Select returns the smallest index with axis[i] >= t0-tol and the largest
// index with axis[i] <= t1+tol. axis must be sorted ascending. When t0-tol is
// past every sample Low is len(axis); when t1+tol precedes every sample High
// is -1. Inverted bounds (t1 < t0) likewise come back as an empty Range.
func Select(axis []float64, t0, t1, tol float64) Range {
	lo := t0 - tol
	hi := t1 + tol
	low := sort.Search(len(axis), func(i int) bool { return axis[i] >= lo })
	high := sort.Search(len(axis), func(i int) bool { return axis[i] > hi }) - 1
	return Range{Low: low, High: high}
}

// SelectWindow is Select with the bounds taken from w.
func SelectWindow(axis []float64, w domain.Window) Range {
	return Select(axis, w.T0, w.T1, w.Tol)
}
