package pulse

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ghalamif/PulseFlow/internal/domain"
	"github.com/ghalamif/PulseFlow/internal/ports"
	"github.com/ghalamif/PulseFlow/internal/store"
	"github.com/ghalamif/PulseFlow/internal/window"
)

type Options struct {
	Resistance      float64
	Polarity        Polarity
	BaselineCorrect bool
}

// Extractor computes one metric per waveform of a collection under a fixed
// window.
type Extractor struct {
	win  domain.Window
	opts Options
	warn func(msg string, err error, fields ...ports.Field)
}

// NewExtractor validates win and opts. Warnings go to obs, or to
// slog.Default when obs is nil.
func NewExtractor(win domain.Window, opts Options, obs ports.Observability) (*Extractor, error) {
	if err := win.Validate(); err != nil {
		return nil, err
	}
	if !(opts.Resistance > 0) {
		return nil, fmt.Errorf("resistance %g must be > 0", opts.Resistance)
	}
	ex := &Extractor{win: win, opts: opts}
	if obs != nil {
		ex.warn = obs.LogWarn
	} else {
		ex.warn = slogWarn
	}
	return ex, nil
}

func slogWarn(msg string, err error, fields ...ports.Field) {
	args := make([]any, 0, 2*len(fields)+2)
	args = append(args, "error", err)
	for _, f := range fields {
		args = append(args, f.Key, f.Value)
	}
	slog.Default().Warn(msg, args...)
}

// Extract returns metrics in collection order. Any empty window or failed
// computation aborts the whole extraction; no partial results are returned.
func (e *Extractor) Extract(c *store.Collection, kind domain.MetricKind) ([]domain.PulseMetric, error) {
	t := c.TimeAxis()
	r := window.SelectWindow(t, e.win)
	if r.Empty() {
		return nil, fmt.Errorf("%w: [%g, %g] tol %g outside axis", domain.ErrEmptyWindow, e.win.T0, e.win.T1, e.win.Tol)
	}

	out := make([]domain.PulseMetric, 0, c.Len())
	for i := 0; i < c.Len(); i++ {
		v := c.Voltages(i)
		m := domain.PulseMetric{Waveform: c.Name(i), Kind: kind}
		switch kind {
		case domain.MetricCharge:
			base := e.baseline(c.Name(i), v, r)
			q, err := Charge(t, v, r, e.opts.Resistance, base)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", c.Name(i), err)
			}
			m.Value = q
		case domain.MetricPeak:
			ext, err := Peak(v, r, e.opts.Polarity)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", c.Name(i), err)
			}
			m.Value = ext.Height()
		default:
			return nil, fmt.Errorf("unknown metric %q", kind)
		}
		out = append(out, m)
	}
	return out, nil
}

// Average selects the window on every waveform of c and returns their mean.
func (e *Extractor) Average(c *store.Collection) (domain.Waveform, error) {
	t := c.TimeAxis()
	r := window.SelectWindow(t, e.win)
	members := make([]Member, c.Len())
	for i := range members {
		members[i] = Member{Time: t, Voltage: c.Voltages(i), Range: r}
	}
	return Average(members)
}

// Summary holds the metrics of an averaged pulse.
type Summary struct {
	Charge float64
	Peak   Extremum
}

// Summarize computes charge and peak of one already window-selected pulse,
// such as the output of Average. Baseline correction does not apply since no
// samples precede the selection.
func (e *Extractor) Summarize(w domain.Waveform) (Summary, error) {
	r := window.Range{Low: 0, High: w.Len() - 1}
	q, err := Charge(w.Time, w.Voltage, r, e.opts.Resistance, 0)
	if err != nil {
		return Summary{}, err
	}
	pk, err := Peak(w.Voltage, r, e.opts.Polarity)
	if err != nil {
		return Summary{}, err
	}
	return Summary{Charge: q, Peak: pk}, nil
}

func (e *Extractor) baseline(name string, v []float64, r window.Range) float64 {
	if !e.opts.BaselineCorrect {
		return 0
	}
	b, err := Baseline(v, r)
	if errors.Is(err, domain.ErrInsufficientBaseline) {
		e.warn("baseline_substituted", err,
			ports.Field{Key: "waveform", Value: name},
			ports.Field{Key: "baseline", Value: 0.0})
		return 0
	}
	return b
}
