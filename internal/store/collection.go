// Package store accumulates waveforms that share one time axis and persists
// them as a table with one time column and one voltage column per capture.
package store

import (
	"fmt"

	"github.com/ghalamif/PulseFlow/internal/domain"
)

// TimeColumn is the header of the shared time column.
const TimeColumn = "time"

// ShapeError reports a waveform whose length differs from the collection's.
type ShapeError struct {
	Want int
	Got  int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%v: expected %d samples, got %d", domain.ErrShapeMismatch, e.Want, e.Got)
}

func (e *ShapeError) Unwrap() error { return domain.ErrShapeMismatch }

// Collection holds waveforms in capture order. The time axis is taken from
// the first appended waveform and shared by all members.
type Collection struct {
	time     []float64
	voltages [][]float64
	names    []string
}

func NewCollection() *Collection {
	return &Collection{}
}

// Append adds a waveform under a generated column name.
func (c *Collection) Append(w domain.Waveform) error {
	return c.AppendNamed(fmt.Sprintf("waveform_%d", len(c.voltages)), w)
}

// AppendNamed adds a waveform under the given column name. A waveform whose
// length differs from the first one is rejected and the collection is left
// unchanged.
func (c *Collection) AppendNamed(name string, w domain.Waveform) error {
	if err := c.Check(w); err != nil {
		return err
	}
	if len(c.voltages) == 0 {
		c.time = append([]float64(nil), w.Time...)
	}
	c.voltages = append(c.voltages, append([]float64(nil), w.Voltage...))
	c.names = append(c.names, name)
	return nil
}

// Check reports whether w could be appended without changing anything.
func (c *Collection) Check(w domain.Waveform) error {
	if len(w.Time) != len(w.Voltage) {
		return &ShapeError{Want: len(w.Time), Got: len(w.Voltage)}
	}
	if len(c.voltages) > 0 && w.Len() != len(c.time) {
		return &ShapeError{Want: len(c.time), Got: w.Len()}
	}
	return nil
}

// Len returns the number of stored waveforms.
func (c *Collection) Len() int { return len(c.voltages) }

// Samples returns the number of samples per waveform.
func (c *Collection) Samples() int { return len(c.time) }

// TimeAxis returns the shared time axis. Callers must not modify it.
func (c *Collection) TimeAxis() []float64 { return c.time }

// Voltages returns the voltage column of waveform i. Callers must not modify it.
func (c *Collection) Voltages(i int) []float64 { return c.voltages[i] }

func (c *Collection) Name(i int) string { return c.names[i] }

func (c *Collection) Names() []string { return append([]string(nil), c.names...) }

// Waveform returns waveform i with the shared time axis.
func (c *Collection) Waveform(i int) domain.Waveform {
	return domain.Waveform{Time: c.time, Voltage: c.voltages[i]}
}
