package fit

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Model is a parametric curve fitted to (bin center, count) pairs.
type Model interface {
	Name() string
	ParamNames() []string
	Eval(x float64, p []float64) float64
	// InitialGuess derives starting parameters from the histogram and the
	// raw values it was built from.
	InitialGuess(h Histogram, values []float64) []float64
}

// widths are parameters that enter the model squared; their sign is
// normalised after a fit.
type widths interface {
	WidthParams() []int
}

var models = map[string]Model{
	"gaussian":         Gaussian{},
	"double_gaussian":  DoubleGaussian{},
	"poisson_gaussian": PoissonGaussian{NMax: 10},
}

func ModelByName(name string) (Model, error) {
	if name == "" {
		return Gaussian{}, nil
	}
	m, ok := models[name]
	if !ok {
		return nil, fmt.Errorf("unknown fit model %q (known: %v)", name, ModelNames())
	}
	return m, nil
}

func ModelNames() []string {
	out := make([]string, 0, len(models))
	for k := range models {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func gauss(x, mu, sigma float64) float64 {
	z := (x - mu) / sigma
	return math.Exp(-0.5 * z * z)
}

func popStd(values []float64) float64 {
	_, v := stat.PopMeanVariance(values, nil)
	return math.Sqrt(v)
}

// Gaussian is A*exp(-0.5*((x-mu)/sigma)^2).
type Gaussian struct{}

func (Gaussian) Name() string         { return "gaussian" }
func (Gaussian) ParamNames() []string { return []string{"A", "mu", "sigma"} }
func (Gaussian) WidthParams() []int   { return []int{2} }

func (Gaussian) Eval(x float64, p []float64) float64 {
	return p[0] * gauss(x, p[1], p[2])
}

func (Gaussian) InitialGuess(h Histogram, values []float64) []float64 {
	pk := h.Peak()
	return []float64{h.Counts[pk], h.Centers()[pk], popStd(values) / 10}
}

// DoubleGaussian adds a second component, typically pedestal plus single
// photoelectron peak.
type DoubleGaussian struct{}

func (DoubleGaussian) Name() string { return "double_gaussian" }
func (DoubleGaussian) ParamNames() []string {
	return []string{"A0", "mu0", "sigma0", "A1", "mu1", "sigma1"}
}
func (DoubleGaussian) WidthParams() []int { return []int{2, 5} }

func (DoubleGaussian) Eval(x float64, p []float64) float64 {
	return p[0]*gauss(x, p[1], p[2]) + p[3]*gauss(x, p[4], p[5])
}

func (DoubleGaussian) InitialGuess(h Histogram, values []float64) []float64 {
	pk := h.Peak()
	std := popStd(values)
	a0, mu0, s0 := h.Counts[pk], h.Centers()[pk], std/10
	return []float64{a0, mu0, s0, a0 / 2, mu0 + std/3, s0}
}

// PoissonGaussian models pile-up as a Poisson-weighted sum of normalised
// Gaussians centred at Q0 + n*gain, n = 0..NMax.
type PoissonGaussian struct {
	NMax int
}

func (PoissonGaussian) Name() string { return "poisson_gaussian" }
func (PoissonGaussian) ParamNames() []string {
	return []string{"A", "mu", "Q0", "gain", "sigma"}
}
func (PoissonGaussian) WidthParams() []int { return []int{4} }

func (m PoissonGaussian) Eval(x float64, p []float64) float64 {
	a, mu, q0, gain, sigma := p[0], p[1], p[2], p[3], p[4]
	norm := 1 / (math.Abs(sigma) * math.Sqrt(2*math.Pi))
	weight := math.Exp(-mu) // mu^0 e^-mu / 0!
	var sum float64
	for n := 0; n <= m.NMax; n++ {
		if n > 0 {
			weight *= mu / float64(n)
		}
		sum += weight * gauss(x, q0+float64(n)*gain, sigma) * norm
	}
	return a * sum
}

func (PoissonGaussian) InitialGuess(h Histogram, values []float64) []float64 {
	pk := h.Peak()
	std := popStd(values)
	return []float64{h.Counts[pk], 0.5, h.Centers()[pk], std / 2, std / 10}
}
