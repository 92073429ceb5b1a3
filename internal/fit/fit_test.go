package fit

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/ghalamif/PulseFlow/internal/domain"
)

func TestGaussianRecoversChargeDistribution(t *testing.T) {
	const (
		mu    = 2e-11
		sigma = 3e-12
	)
	rng := rand.New(rand.NewSource(7))
	values := make([]float64, 10000)
	for i := range values {
		values[i] = mu + sigma*rng.NormFloat64()
	}

	res, err := Fit(values, DefaultBins, Gaussian{})
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	gotMu, muErr, _ := res.Param("mu")
	gotSigma, _, _ := res.Param("sigma")
	if math.Abs(gotMu-mu)/mu > 0.05 {
		t.Fatalf("expected mu %g within 5%%, got %g", mu, gotMu)
	}
	if math.Abs(gotSigma-sigma)/sigma > 0.05 {
		t.Fatalf("expected sigma %g within 5%%, got %g", sigma, gotSigma)
	}
	if res.RSquared <= 0.9 {
		t.Fatalf("expected R² > 0.9, got %v", res.RSquared)
	}
	if !(muErr > 0) || math.IsInf(muErr, 0) {
		t.Fatalf("expected finite positive mu uncertainty, got %v", muErr)
	}
	if len(res.Residuals) != DefaultBins || res.Histogram.Bins() != DefaultBins {
		t.Fatalf("expected %d residuals, got %d", DefaultBins, len(res.Residuals))
	}
	centers := res.Histogram.Centers()
	for i, r := range res.Residuals {
		want := res.Histogram.Counts[i] - Gaussian{}.Eval(centers[i], res.Params)
		if math.Abs(r-want) > 1e-9 {
			t.Fatalf("residual %d: expected %v, got %v", i, want, r)
		}
	}
}

func TestInitialGuessFollowsHistogram(t *testing.T) {
	values := []float64{0, 1, 1, 1, 2, 3, 4}
	h, err := NewHistogram(values, 4)
	if err != nil {
		t.Fatalf("histogram: %v", err)
	}
	p0 := Gaussian{}.InitialGuess(h, values)
	if p0[0] != 3 || p0[1] != 1.5 {
		t.Fatalf("expected A0=3 mu0=1.5, got %v", p0)
	}
	if math.Abs(p0[2]-popStd(values)/10) > 1e-15 {
		t.Fatalf("unexpected sigma0 %v", p0[2])
	}

	dg := DoubleGaussian{}.InitialGuess(h, values)
	if dg[3] != dg[0]/2 || dg[5] != dg[2] || math.Abs(dg[4]-(dg[1]+popStd(values)/3)) > 1e-15 {
		t.Fatalf("unexpected double gaussian guess %v", dg)
	}
}

func TestFitReportsNonConvergence(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	values := make([]float64, 2000)
	for i := range values {
		values[i] = 5 + rng.NormFloat64()
	}

	_, err := FitWith(values, DefaultBins, Gaussian{}, Options{MaxIterations: 1})
	if !errors.Is(err, domain.ErrFitDidNotConverge) {
		t.Fatalf("expected ErrFitDidNotConverge, got %v", err)
	}
	var fe *Error
	if !errors.As(err, &fe) {
		t.Fatalf("expected *fit.Error, got %T", err)
	}
	if fe.Model != "gaussian" || len(fe.Initial) != 3 {
		t.Fatalf("expected initial guesses in error, got %+v", fe)
	}

	_, err = Fit(values, DefaultBins, nanModel{})
	if !errors.Is(err, domain.ErrFitDidNotConverge) {
		t.Fatalf("expected ErrFitDidNotConverge for NaN model, got %v", err)
	}
}

func TestCurveRecoversExactParameters(t *testing.T) {
	want := []float64{120, 0.3, 0.05}
	x := make([]float64, 40)
	y := make([]float64, len(x))
	for i := range x {
		x[i] = 0.1 + float64(i)*0.01
		y[i] = Gaussian{}.Eval(x[i], want)
	}
	res, err := Curve(x, y, []float64{100, 0.28, 0.04}, Gaussian{}, Options{})
	if err != nil {
		t.Fatalf("curve: %v", err)
	}
	for i := range want {
		if math.Abs(res.Params[i]-want[i])/want[i] > 1e-6 {
			t.Fatalf("param %s: expected %v, got %v", res.ParamNames[i], want[i], res.Params[i])
		}
	}
	if res.RSquared < 0.999999 {
		t.Fatalf("expected R² ~ 1, got %v", res.RSquared)
	}
}

func TestHistogramEdges(t *testing.T) {
	h, err := NewHistogram([]float64{0, 1, 2, 3, 4}, 4)
	if err != nil {
		t.Fatalf("histogram: %v", err)
	}
	want := []float64{1, 1, 1, 2}
	for i := range want {
		if h.Counts[i] != want[i] {
			t.Fatalf("expected counts %v, got %v", want, h.Counts)
		}
	}

	flat, err := NewHistogram([]float64{2, 2, 2}, 4)
	if err != nil {
		t.Fatalf("histogram: %v", err)
	}
	if flat.Edges[0] != 1.5 || flat.Edges[4] != 2.5 || flat.Counts[2] != 3 {
		t.Fatalf("unexpected flat histogram %+v", flat)
	}
	if _, err := NewHistogram(nil, 20); err == nil {
		t.Fatalf("expected error for empty input")
	}
}

func TestModelByName(t *testing.T) {
	for _, name := range ModelNames() {
		m, err := ModelByName(name)
		if err != nil || m.Name() != name {
			t.Fatalf("model %q: got %v (%v)", name, m, err)
		}
	}
	if _, err := ModelByName("lorentzian"); err == nil {
		t.Fatalf("expected unknown model error")
	}
}

func TestPoissonGaussianPedestalOnly(t *testing.T) {
	m := PoissonGaussian{NMax: 10}
	// mu = 0 leaves only the n = 0 term: a normalised gaussian at Q0
	p := []float64{2, 0, 1, 5, 0.5}
	got := m.Eval(1, p)
	want := 2 / (0.5 * math.Sqrt(2*math.Pi))
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

type nanModel struct{ Gaussian }

func (nanModel) Name() string                      { return "nan" }
func (nanModel) Eval(x float64, p []float64) float64 { return math.NaN() }
