package pulse

import (
	"bytes"
	"errors"
	"log/slog"
	"math"
	"strings"
	"testing"

	"github.com/ghalamif/PulseFlow/internal/domain"
	"github.com/ghalamif/PulseFlow/internal/ports"
	"github.com/ghalamif/PulseFlow/internal/store"
	"github.com/ghalamif/PulseFlow/internal/window"
)

const (
	dt       = 1e-10
	nSamples = 2000
)

// triangle is a negative pulse starting at 0.5e-7, bottoming at -1 V at
// 0.75e-7 and back to zero at 1e-7.
func triangle(t float64) float64 {
	const (
		start = 0.5e-7
		apex  = 0.75e-7
		end   = 1e-7
	)
	switch {
	case t <= start || t >= end:
		return 0
	case t <= apex:
		return -(t - start) / (apex - start)
	default:
		return -(end - t) / (end - apex)
	}
}

func triangleCollection(t *testing.T, n int) *store.Collection {
	t.Helper()
	c := store.NewCollection()
	for k := 0; k < n; k++ {
		w := domain.Waveform{Time: make([]float64, nSamples), Voltage: make([]float64, nSamples)}
		for i := range w.Time {
			w.Time[i] = float64(i) * dt
			w.Voltage[i] = triangle(w.Time[i])
		}
		if err := c.Append(w); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	return c
}

func TestTrianglePulsesPeakAndCharge(t *testing.T) {
	c := triangleCollection(t, 10)
	win := domain.Window{T0: 0.5e-7, T1: 1e-7, Tol: 1e-12}
	ex, err := NewExtractor(win, Options{Resistance: 50, BaselineCorrect: true}, &logObs{})
	if err != nil {
		t.Fatalf("extractor: %v", err)
	}

	peaks, err := ex.Extract(c, domain.MetricPeak)
	if err != nil {
		t.Fatalf("peak: %v", err)
	}
	if len(peaks) != 10 {
		t.Fatalf("expected 10 peaks, got %d", len(peaks))
	}
	for _, p := range peaks {
		if math.Abs(p.Value-1.0) > 1e-6 {
			t.Fatalf("%s: expected peak 1.0, got %v", p.Waveform, p.Value)
		}
	}

	charges, err := ex.Extract(c, domain.MetricCharge)
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	want := 0.5 * 0.5e-7 * 1.0 / 50
	for _, q := range charges {
		if math.Abs(q.Value-want)/want > 0.01 {
			t.Fatalf("%s: expected charge %g within 1%%, got %g", q.Waveform, want, q.Value)
		}
		if q.Kind != domain.MetricCharge {
			t.Fatalf("unexpected kind %q", q.Kind)
		}
	}
}

func TestExtractRejectsWindowOutsideAxis(t *testing.T) {
	c := triangleCollection(t, 2)
	ex, err := NewExtractor(domain.Window{T0: 1e-3, T1: 2e-3}, Options{Resistance: 50}, nil)
	if err != nil {
		t.Fatalf("extractor: %v", err)
	}
	if _, err := ex.Extract(c, domain.MetricCharge); !errors.Is(err, domain.ErrEmptyWindow) {
		t.Fatalf("expected ErrEmptyWindow, got %v", err)
	}
}

func TestBaselineSubstitutionIsLogged(t *testing.T) {
	c := triangleCollection(t, 1)
	obs := &logObs{}
	ex, err := NewExtractor(domain.Window{T0: 0, T1: 1e-7}, Options{Resistance: 50, BaselineCorrect: true}, obs)
	if err != nil {
		t.Fatalf("extractor: %v", err)
	}
	if _, err := ex.Extract(c, domain.MetricCharge); err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(obs.warns) != 1 || obs.warns[0] != "baseline_substituted" {
		t.Fatalf("expected one baseline_substituted warning, got %v", obs.warns)
	}
}

func TestBaselineSubstitutionWithoutObserverUsesDefaultLogger(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	c := triangleCollection(t, 1)
	ex, err := NewExtractor(domain.Window{T0: 0, T1: 1e-7}, Options{Resistance: 50, BaselineCorrect: true}, nil)
	if err != nil {
		t.Fatalf("extractor: %v", err)
	}
	if _, err := ex.Extract(c, domain.MetricCharge); err != nil {
		t.Fatalf("extract: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "baseline_substituted") || !strings.Contains(out, "level=WARN") {
		t.Fatalf("expected a baseline_substituted warning, got %q", out)
	}
}

func TestBaselineAndChargeCorrection(t *testing.T) {
	tm := []float64{0, 1, 2, 3, 4}
	v := []float64{0.2, 0.2, 1.2, 1.2, 0.2}
	r := window.Range{Low: 2, High: 3}

	b, err := Baseline(v, r)
	if err != nil || math.Abs(b-0.2) > 1e-12 {
		t.Fatalf("expected baseline 0.2, got %v (%v)", b, err)
	}
	q, err := Charge(tm, v, r, 2, b)
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	if math.Abs(q-0.5) > 1e-12 {
		t.Fatalf("expected 0.5, got %v", q)
	}
	if _, err := Baseline(v, window.Range{Low: 0, High: 2}); !errors.Is(err, domain.ErrInsufficientBaseline) {
		t.Fatalf("expected ErrInsufficientBaseline, got %v", err)
	}
	if q, err := Charge(tm, v, window.Range{Low: 1, High: 1}, 50, 0); err != nil || q != 0 {
		t.Fatalf("single sample window must give 0, got %v (%v)", q, err)
	}
	if _, err := Charge(tm, v, window.Range{Low: 3, High: 2}, 50, 0); !errors.Is(err, domain.ErrEmptyWindow) {
		t.Fatalf("expected ErrEmptyWindow, got %v", err)
	}
}

func TestPeakPolarity(t *testing.T) {
	v := []float64{0, -0.3, 0.7, -0.9, 0.1}
	r := window.Range{Low: 1, High: 4}

	neg, err := Peak(v, r, Negative)
	if err != nil || neg.Index != 3 || neg.Signed != -0.9 {
		t.Fatalf("unexpected negative extremum %+v (%v)", neg, err)
	}
	pos, err := Peak(v, r, Positive)
	if err != nil || pos.Index != 2 || pos.Height() != 0.7 {
		t.Fatalf("unexpected positive extremum %+v (%v)", pos, err)
	}
}

func TestAverageRequiresSameWindow(t *testing.T) {
	tm := []float64{0, 1, 2, 3}
	a := Member{Time: tm, Voltage: []float64{0, -1, -2, 0}, Range: window.Range{Low: 1, High: 2}}
	b := Member{Time: tm, Voltage: []float64{0, -3, -4, 0}, Range: window.Range{Low: 1, High: 2}}

	avg, err := Average([]Member{a, b})
	if err != nil {
		t.Fatalf("average: %v", err)
	}
	if avg.Len() != 2 || avg.Voltage[0] != -2 || avg.Voltage[1] != -3 || avg.Time[0] != 1 {
		t.Fatalf("unexpected average %+v", avg)
	}

	b.Range = window.Range{Low: 0, High: 1}
	if _, err := Average([]Member{a, b}); !errors.Is(err, domain.ErrWindowMismatch) {
		t.Fatalf("expected ErrWindowMismatch, got %v", err)
	}
}

func TestSummarizeAveragedPulse(t *testing.T) {
	c := triangleCollection(t, 4)
	ex, err := NewExtractor(domain.Window{T0: 0.5e-7, T1: 1e-7, Tol: 1e-12}, Options{Resistance: 50}, nil)
	if err != nil {
		t.Fatalf("extractor: %v", err)
	}
	avg, err := ex.Average(c)
	if err != nil {
		t.Fatalf("average: %v", err)
	}
	s, err := ex.Summarize(avg)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if math.Abs(s.Peak.Height()-1) > 1e-6 {
		t.Fatalf("expected peak 1, got %v", s.Peak.Height())
	}
	want := 0.5 * 0.5e-7 / 50
	if math.Abs(s.Charge-want)/want > 0.01 {
		t.Fatalf("expected charge %g, got %g", want, s.Charge)
	}
}

type logObs struct {
	warns []string
}

func (l *logObs) LogInfo(string, ...ports.Field)               {}
func (l *logObs) LogWarn(msg string, _ error, _ ...ports.Field) { l.warns = append(l.warns, msg) }
func (l *logObs) LogError(string, error, ...ports.Field)       {}
func (l *logObs) LogCritical(string, error, ...ports.Field)    {}
func (l *logObs) IncCounter(string, float64)                   {}
func (l *logObs) ObserveLatency(string, float64)               {}
func (l *logObs) SetGauge(string, float64)                     {}
func (l *logObs) RecordFailedCapture(uint64, error)            {}
