package domain

import (
	"fmt"
	"time"
)

// Waveform is one captured pulse converted to physical units. Time is strictly
// increasing and both slices share the same length.
type Waveform struct {
	Time    []float64 `json:"time"`
	Voltage []float64 `json:"voltage"`
}

func (w Waveform) Len() int { return len(w.Voltage) }

// ScalingCoefficients are the instrument-reported constants that turn raw
// digitizer codes into seconds and volts.
type ScalingCoefficients struct {
	SampleInterval            float64 `json:"sample_interval"`
	HorizontalDelay           float64 `json:"horizontal_delay"`
	HorizontalPositionPercent float64 `json:"horizontal_position_percent"`
	VerticalScale             float64 `json:"vertical_scale"`
	VerticalOffset            float64 `json:"vertical_offset"`
	VerticalZero              float64 `json:"vertical_zero"`
}

func (c ScalingCoefficients) Validate() error {
	if !(c.SampleInterval > 0) {
		return fmt.Errorf("%w: sample interval %g must be > 0", ErrInvalidScaling, c.SampleInterval)
	}
	return nil
}

// Capture is a raw acquisition as pulled from the instrument, before scaling.
// It is the unit written to the capture journal.
// Session identifies the acquisition session that produced it; Seq restarts
// at 1 in every session.
type Capture struct {
	Session   string              `json:"session,omitempty"`
	Seq       uint64              `json:"seq"`
	Timestamp time.Time           `json:"ts"`
	Channel   string              `json:"channel"`
	Raw       []int32             `json:"raw"`
	Scaling   ScalingCoefficients `json:"scaling"`
}

// Window is an inclusive time range with a matching tolerance.
type Window struct {
	T0  float64 `yaml:"t0" json:"t0"`
	T1  float64 `yaml:"t1" json:"t1"`
	Tol float64 `yaml:"tol" json:"tol"`
}

func (w Window) Validate() error {
	if !(w.T0 < w.T1) {
		return fmt.Errorf("window t0=%g must be before t1=%g", w.T0, w.T1)
	}
	if w.Tol < 0 {
		return fmt.Errorf("window tolerance %g must be >= 0", w.Tol)
	}
	return nil
}
