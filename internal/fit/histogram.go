package fit

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

const DefaultBins = 20

// Histogram uses equal-width bins spanning [min, max] of the data; the last
// bin is closed on the right.
type Histogram struct {
	Edges  []float64
	Counts []float64
}

func NewHistogram(values []float64, bins int) (Histogram, error) {
	if bins <= 0 {
		return Histogram{}, fmt.Errorf("bins %d must be > 0", bins)
	}
	if len(values) == 0 {
		return Histogram{}, fmt.Errorf("histogram: no values")
	}
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Histogram{}, fmt.Errorf("histogram: non-finite value %v", v)
		}
	}
	lo, hi := floats.Min(values), floats.Max(values)
	if lo == hi {
		lo -= 0.5
		hi += 0.5
	}
	h := Histogram{
		Edges:  floats.Span(make([]float64, bins+1), lo, hi),
		Counts: make([]float64, bins),
	}
	width := (hi - lo) / float64(bins)
	for _, v := range values {
		i := int((v - lo) / width)
		if i >= bins {
			i = bins - 1
		}
		if i < 0 {
			i = 0
		}
		// floating point can put a value on the wrong side of an edge
		for i > 0 && v < h.Edges[i] {
			i--
		}
		for i < bins-1 && v >= h.Edges[i+1] {
			i++
		}
		h.Counts[i]++
	}
	return h, nil
}

func (h Histogram) Bins() int { return len(h.Counts) }

func (h Histogram) Centers() []float64 {
	out := make([]float64, len(h.Counts))
	for i := range out {
		out[i] = (h.Edges[i] + h.Edges[i+1]) / 2
	}
	return out
}

// Peak returns the index of the fullest bin (first one on ties).
func (h Histogram) Peak() int {
	return floats.MaxIdx(h.Counts)
}
