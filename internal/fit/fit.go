// Package fit bins a population of pulse metrics and fits a parametric model
// to the histogram with Levenberg-Marquardt least squares.
package fit

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/ghalamif/PulseFlow/internal/domain"
)

// Error reports a fit that did not converge, with the guesses it started
// from.
type Error struct {
	Model      string
	Initial    []float64
	Iterations int
	Reason     string
}

func (e *Error) Error() string {
	return fmt.Sprintf("fit %s: %s after %d iterations (initial %v)", e.Model, e.Reason, e.Iterations, e.Initial)
}

func (e *Error) Unwrap() error { return domain.ErrFitDidNotConverge }

type Result struct {
	Model      string
	ParamNames []string
	Params     []float64
	// Errors are one-sigma uncertainties; +Inf when the covariance could not
	// be estimated.
	Errors     []float64
	Covariance *mat.SymDense
	Residuals  []float64
	RSquared   float64
	Initial    []float64
	Iterations int
	Histogram  Histogram
}

// Param returns a fitted parameter by name.
func (r *Result) Param(name string) (value, err float64, ok bool) {
	for i, n := range r.ParamNames {
		if n == name {
			return r.Params[i], r.Errors[i], true
		}
	}
	return 0, 0, false
}

type Options struct {
	MaxIterations int
	// FTol is the relative reduction of the residual sum of squares below
	// which an accepted step ends the fit.
	FTol float64
}

func (o *Options) applyDefaults(p int) {
	if o.MaxIterations <= 0 {
		o.MaxIterations = 200 * (p + 1)
	}
	if o.FTol <= 0 {
		o.FTol = 1.49012e-8
	}
}

// Fit histograms values into bins and fits m to the bin counts.
func Fit(values []float64, bins int, m Model) (*Result, error) {
	return FitWith(values, bins, m, Options{})
}

func FitWith(values []float64, bins int, m Model, opts Options) (*Result, error) {
	h, err := NewHistogram(values, bins)
	if err != nil {
		return nil, err
	}
	p0 := m.InitialGuess(h, values)
	res, err := Curve(h.Centers(), h.Counts, p0, m, opts)
	if err != nil {
		return nil, err
	}
	res.Histogram = h
	return res, nil
}

// Curve fits m to the points (x, y) starting from p0.
func Curve(x, y, p0 []float64, m Model, opts Options) (*Result, error) {
	if len(x) != len(y) {
		return nil, fmt.Errorf("fit: %d x values for %d y values", len(x), len(y))
	}
	n, p := len(x), len(p0)
	if p != len(m.ParamNames()) {
		return nil, fmt.Errorf("fit %s: %d initial parameters, want %d", m.Name(), p, len(m.ParamNames()))
	}
	opts.applyDefaults(p)
	fail := func(iter int, reason string) error {
		return &Error{Model: m.Name(), Initial: append([]float64(nil), p0...), Iterations: iter, Reason: reason}
	}

	params := append([]float64(nil), p0...)
	r := make([]float64, n)
	ssr, ok := residuals(m, x, y, params, r)
	if !ok {
		return nil, fail(0, "non-finite model value at initial guess")
	}

	var (
		lambda    = 1e-3
		scale     = make([]float64, p)
		jac       = mat.NewDense(n, p, nil)
		trial     = make([]float64, p)
		trialR    = make([]float64, n)
		accepted  int
		converged = ssr == 0
		iter      int
	)

	for !converged && iter < opts.MaxIterations {
		iter++
		jacobian(m, x, params, jac)
		for j := 0; j < p; j++ {
			d := mat.Norm(jac.ColView(j), 2)
			if d > scale[j] {
				scale[j] = d
			}
			if scale[j] == 0 {
				scale[j] = 1
			}
		}

		delta, ok := step(jac, r, scale, lambda)
		if !ok {
			lambda *= 10
			if lambda > 1e16 {
				break
			}
			continue
		}
		for j := range trial {
			trial[j] = params[j] + delta[j]
		}
		newSSR, finite := residuals(m, x, y, trial, trialR)
		if !finite || newSSR >= ssr {
			lambda *= 10
			if lambda > 1e16 {
				// no downhill direction left
				converged = accepted > 0
				break
			}
			continue
		}

		rel := (ssr - newSSR) / ssr
		copy(params, trial)
		copy(r, trialR)
		ssr = newSSR
		accepted++
		if lambda > 1e-12 {
			lambda /= 10
		}
		if rel < opts.FTol || ssr == 0 {
			converged = true
		}
	}
	if !converged {
		if accepted == 0 {
			return nil, fail(iter, "no step reduced the residuals")
		}
		return nil, fail(iter, "iteration limit reached")
	}

	if w, ok := m.(widths); ok {
		for _, i := range w.WidthParams() {
			params[i] = math.Abs(params[i])
		}
	}
	residuals(m, x, y, params, r)

	res := &Result{
		Model:      m.Name(),
		ParamNames: m.ParamNames(),
		Params:     params,
		Residuals:  r,
		RSquared:   rSquared(y, ssr),
		Initial:    append([]float64(nil), p0...),
		Iterations: iter,
	}
	jacobian(m, x, params, jac)
	res.Covariance, res.Errors = covariance(jac, ssr, n, p)
	return res, nil
}

// residuals fills r with y - f(x) and returns the sum of squares.
func residuals(m Model, x, y, params, r []float64) (float64, bool) {
	var ssr float64
	for i := range x {
		f := m.Eval(x[i], params)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		r[i] = y[i] - f
		ssr += r[i] * r[i]
	}
	return ssr, true
}

// jacobian fills jac with df/dp by central differences.
func jacobian(m Model, x, params []float64, jac *mat.Dense) {
	work := append([]float64(nil), params...)
	for j := range params {
		h := 1e-6 * math.Abs(params[j])
		if h == 0 {
			h = 1e-8
		}
		for i := range x {
			work[j] = params[j] + h
			up := m.Eval(x[i], work)
			work[j] = params[j] - h
			down := m.Eval(x[i], work)
			jac.Set(i, j, (up-down)/(2*h))
		}
		work[j] = params[j]
	}
}

// step solves min ||J D^-1 y - r||^2 + lambda ||y||^2 and returns D^-1 y.
func step(jac *mat.Dense, r, scale []float64, lambda float64) ([]float64, bool) {
	n, p := jac.Dims()
	a := mat.NewDense(n+p, p, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			a.Set(i, j, jac.At(i, j)/scale[j])
		}
	}
	sl := math.Sqrt(lambda)
	for j := 0; j < p; j++ {
		a.Set(n+j, j, sl)
	}
	b := mat.NewVecDense(n+p, nil)
	for i, v := range r {
		b.SetVec(i, v)
	}

	var sol mat.VecDense
	if err := sol.SolveVec(a, b); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, false
		}
	}
	delta := make([]float64, p)
	for j := range delta {
		delta[j] = sol.AtVec(j) / scale[j]
		if math.IsNaN(delta[j]) || math.IsInf(delta[j], 0) {
			return nil, false
		}
	}
	return delta, true
}

// covariance returns inv(JᵀJ)*SSR/(n-p) and the per-parameter errors.
func covariance(jac *mat.Dense, ssr float64, n, p int) (*mat.SymDense, []float64) {
	errs := make([]float64, p)
	inf := func() (*mat.SymDense, []float64) {
		for i := range errs {
			errs[i] = math.Inf(1)
		}
		return nil, errs
	}
	if n <= p {
		return inf()
	}

	// scale columns to keep the normal matrix well conditioned
	d := make([]float64, p)
	js := mat.DenseCopyOf(jac)
	for j := 0; j < p; j++ {
		d[j] = mat.Norm(jac.ColView(j), 2)
		if d[j] == 0 {
			return inf()
		}
		for i := 0; i < n; i++ {
			js.Set(i, j, js.At(i, j)/d[j])
		}
	}
	var jtj mat.SymDense
	jtj.SymOuterK(1, js.T())

	var inv mat.Dense
	if err := inv.Inverse(&jtj); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) || float64(cond) > 1e14 {
			return inf()
		}
	}

	s2 := ssr / float64(n-p)
	cov := mat.NewSymDense(p, nil)
	for i := 0; i < p; i++ {
		for j := i; j < p; j++ {
			cov.SetSym(i, j, inv.At(i, j)*s2/(d[i]*d[j]))
		}
		errs[i] = math.Sqrt(math.Abs(cov.At(i, i)))
	}
	return cov, errs
}

func rSquared(y []float64, ssr float64) float64 {
	var mean float64
	for _, v := range y {
		mean += v
	}
	mean /= float64(len(y))
	var sst float64
	for _, v := range y {
		sst += (v - mean) * (v - mean)
	}
	if sst == 0 {
		return math.NaN()
	}
	return 1 - ssr/sst
}
