// Package pulse derives per-pulse scalars (integrated charge, peak height)
// from waveforms restricted to a selected window.
package pulse

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"

	"github.com/ghalamif/PulseFlow/internal/domain"
	"github.com/ghalamif/PulseFlow/internal/window"
)

// Polarity picks which extremum counts as the pulse peak.
type Polarity int

const (
	Negative Polarity = iota // pulses go below baseline, peak is the minimum
	Positive
)

func (p Polarity) String() string {
	if p == Positive {
		return "positive"
	}
	return "negative"
}

func ParsePolarity(s string) (Polarity, error) {
	switch s {
	case "", "negative":
		return Negative, nil
	case "positive":
		return Positive, nil
	default:
		return Negative, fmt.Errorf("unknown polarity %q", s)
	}
}

// Baseline is the mean of the samples preceding the window.
func Baseline(v []float64, r window.Range) (float64, error) {
	if r.Low <= 0 {
		return 0, domain.ErrInsufficientBaseline
	}
	low := r.Low
	if low > len(v) {
		low = len(v)
	}
	return stat.Mean(v[:low], nil), nil
}

// Charge integrates v-baseline over t inside r with the trapezoid rule and
// returns |integral / resistance| in coulombs. A one-sample window has zero
// area.
func Charge(t, v []float64, r window.Range, resistance, baseline float64) (float64, error) {
	if r.Empty() {
		return 0, domain.ErrEmptyWindow
	}
	if !(resistance > 0) {
		return 0, fmt.Errorf("resistance %g must be > 0", resistance)
	}
	ts := r.Slice(t)
	if len(ts) < 2 {
		return 0, nil
	}
	vs := make([]float64, len(ts))
	copy(vs, r.Slice(v))
	if baseline != 0 {
		floats.AddConst(-baseline, vs)
	}
	return math.Abs(integrate.Trapezoidal(ts, vs) / resistance), nil
}

// Extremum is the signed sample picked as the pulse peak.
type Extremum struct {
	Index  int // absolute index into the waveform
	Signed float64
}

// Height is the peak amplitude reported to callers.
func (e Extremum) Height() float64 { return math.Abs(e.Signed) }

// Peak returns the minimum (Negative) or maximum (Positive) sample in r.
func Peak(v []float64, r window.Range, p Polarity) (Extremum, error) {
	if r.Empty() {
		return Extremum{}, domain.ErrEmptyWindow
	}
	vs := r.Slice(v)
	var idx int
	if p == Positive {
		idx = floats.MaxIdx(vs)
	} else {
		idx = floats.MinIdx(vs)
	}
	return Extremum{Index: r.Low + idx, Signed: vs[idx]}, nil
}
