package pulse

import (
	"fmt"

	"github.com/ghalamif/PulseFlow/internal/domain"
	"github.com/ghalamif/PulseFlow/internal/window"
)

// Member is one waveform taking part in an average, with the range selected
// for it.
type Member struct {
	Time    []float64
	Voltage []float64
	Range   window.Range
}

// Average returns the sample-by-sample mean of the window-selected voltages of
// all members. Every member must share the same range and time axis.
func Average(members []Member) (domain.Waveform, error) {
	if len(members) == 0 {
		return domain.Waveform{}, fmt.Errorf("average: no waveforms")
	}
	ref := members[0]
	if ref.Range.Empty() {
		return domain.Waveform{}, domain.ErrEmptyWindow
	}
	refTime := ref.Range.Slice(ref.Time)
	sum := make([]float64, len(refTime))
	for i, m := range members {
		if m.Range != ref.Range {
			return domain.Waveform{}, fmt.Errorf("%w: member %d range %+v, want %+v", domain.ErrWindowMismatch, i, m.Range, ref.Range)
		}
		if len(m.Time) != len(ref.Time) || len(m.Voltage) != len(ref.Voltage) {
			return domain.Waveform{}, fmt.Errorf("%w: member %d length differs", domain.ErrWindowMismatch, i)
		}
		ts := m.Range.Slice(m.Time)
		for j := range ts {
			if ts[j] != refTime[j] {
				return domain.Waveform{}, fmt.Errorf("%w: member %d time axis differs at %d", domain.ErrWindowMismatch, i, m.Range.Low+j)
			}
		}
		for j, x := range m.Range.Slice(m.Voltage) {
			sum[j] += x
		}
	}
	n := float64(len(members))
	for j := range sum {
		sum[j] /= n
	}
	t := make([]float64, len(refTime))
	copy(t, refTime)
	return domain.Waveform{Time: t, Voltage: sum}, nil
}
