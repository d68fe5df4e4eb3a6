// Package fit drives a gonum minimiser over a dispersion evaluator and
// estimates parameter errors by Monte-Carlo simulation.
package fit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/samcharles93/relaxdisp/internal/dispersion"
	"github.com/samcharles93/relaxdisp/internal/logger"
	"gonum.org/v1/gonum/optimize"
)

// boundPenalty is returned, scaled by the violation, for vectors outside
// the bounds. It exceeds the chi-squared of any sanitised back-calculation.
const boundPenalty = 1e250

// Settings tune the minimiser and the Monte-Carlo stage.
type Settings struct {
	// MaxEvaluations caps target function calls per minimisation.
	MaxEvaluations int
	// Tolerance is the chi-squared change below which the simplex is
	// considered converged.
	Tolerance float64
	// Simulations is the number of Monte-Carlo refits; zero skips error
	// estimation.
	Simulations int
	// Seed makes the Monte-Carlo noise reproducible.
	Seed uint64
	// Workers bounds the number of clusters fitted at once.
	Workers int
	// SimWorkers bounds the Monte-Carlo refits run at once per cluster.
	SimWorkers int
}

// DefaultSettings are used for zero fields.
var DefaultSettings = Settings{
	MaxEvaluations: 20000,
	Tolerance:      1e-12,
	Workers:        1,
	SimWorkers:     1,
}

func (s Settings) withDefaults() Settings {
	if s.MaxEvaluations <= 0 {
		s.MaxEvaluations = DefaultSettings.MaxEvaluations
	}
	if s.Tolerance <= 0 {
		s.Tolerance = DefaultSettings.Tolerance
	}
	if s.Workers <= 0 {
		s.Workers = DefaultSettings.Workers
	}
	if s.SimWorkers <= 0 {
		s.SimWorkers = DefaultSettings.SimWorkers
	}
	return s
}

// Problem is one cluster to fit.
type Problem struct {
	Name    string
	Data    *dispersion.Data
	Model   dispersion.Model
	Options []dispersion.Option
	// Start is the physical starting vector; nil uses DefaultStart.
	Start []float64
	// Bounds default to DefaultBounds of the model layout.
	Bounds Bounds
}

// Result is the outcome of one cluster fit.
type Result struct {
	Name        string               `json:"name,omitempty"`
	Model       string               `json:"model"`
	Chi2        float64              `json:"chi2"`
	Params      map[string][]float64 `json:"params"`
	Errors      map[string][]float64 `json:"errors,omitempty"`
	Evaluations int                  `json:"evaluations"`
	Iterations  int                  `json:"iterations"`
	Status      string               `json:"status"`
	Simulations int                  `json:"simulations,omitempty"`
	Elapsed     time.Duration        `json:"elapsed_ns"`

	// X is the optimiser-space solution.
	X []float64 `json:"-"`
}

// Minimize fits p without error estimation.
func Minimize(ctx context.Context, p Problem, s Settings) (*Result, error) {
	s = s.withDefaults()
	start := time.Now()
	ev, err := dispersion.NewModel(p.Data, p.Model, p.Options...)
	if err != nil {
		return nil, err
	}
	x0, err := startVector(ev, p.Start)
	if err != nil {
		return nil, err
	}
	bounds := p.Bounds
	if bounds == nil {
		bounds = DefaultBounds(ev.Layout())
	}
	if len(bounds) != ev.NumParams() {
		return nil, &dispersion.ParameterCountError{Got: len(bounds), Want: ev.NumParams()}
	}

	res, err := simplex(ctx, ev, x0, bounds, s)
	if err != nil {
		return nil, err
	}
	chi2, err := ev.Evaluate(res.X)
	if err != nil {
		return nil, err
	}
	params, err := ev.Decode(res.X)
	if err != nil {
		return nil, err
	}
	out := &Result{
		Name:        p.Name,
		Model:       p.Model.String(),
		Chi2:        chi2,
		Params:      params,
		Evaluations: res.Stats.FuncEvaluations,
		Iterations:  res.Stats.MajorIterations,
		Status:      res.Status.String(),
		X:           res.X,
		Elapsed:     time.Since(start),
	}
	logger.FromContext(ctx).Debug("minimised",
		"cluster", p.Name,
		"model", out.Model,
		"chi2", chi2,
		"evaluations", out.Evaluations,
		"status", out.Status,
	)
	return out, nil
}

func startVector(ev *dispersion.Evaluator, phys []float64) ([]float64, error) {
	if phys == nil {
		var err error
		if phys, err = DefaultStart(ev.Layout(), nil); err != nil {
			return nil, err
		}
	}
	blocks, err := ev.Layout().Unpack(phys)
	if err != nil {
		return nil, err
	}
	return ev.Encode(blocks)
}

// objective is chi-squared inside the bounds and a steep penalty outside.
func objective(ev *dispersion.Evaluator, b Bounds) func(x []float64) float64 {
	return func(x []float64) float64 {
		if v := b.Violation(ev.Physical(x)); v > 0 {
			return boundPenalty * (1 + v)
		}
		chi2, err := ev.Evaluate(x)
		if err != nil || math.IsNaN(chi2) {
			return math.Inf(1)
		}
		return chi2
	}
}

// simplex runs Nelder-Mead from x0 with a starting simplex scaled to each
// parameter's magnitude.
func simplex(ctx context.Context, ev *dispersion.Evaluator, x0 []float64, b Bounds, s Settings) (*optimize.Result, error) {
	f := objective(ev, b)
	vertices, values := initialSimplex(ev, f, x0, b)
	problem := optimize.Problem{
		Func: f,
		Status: func() (optimize.Status, error) {
			if err := ctx.Err(); err != nil {
				return optimize.Failure, err
			}
			return optimize.NotTerminated, nil
		},
	}
	settings := &optimize.Settings{
		FuncEvaluations: s.MaxEvaluations,
		Converger: &optimize.FunctionConverge{
			Absolute:   s.Tolerance,
			Relative:   s.Tolerance,
			Iterations: 10 * len(x0),
		},
		Concurrent: 1,
	}
	method := &optimize.NelderMead{InitialVertices: vertices, InitialValues: values}
	res, err := optimize.Minimize(problem, x0, settings, method)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if res == nil {
		return nil, fmt.Errorf("minimise: %w", err)
	}
	if err != nil {
		logger.FromContext(ctx).Warn("minimiser stopped early", "status", res.Status.String(), "error", err)
	}
	return res, nil
}

func initialSimplex(ev *dispersion.Evaluator, f func([]float64) float64, x0 []float64, b Bounds) ([][]float64, []float64) {
	n := len(x0)
	vertices := make([][]float64, n+1)
	values := make([]float64, n+1)
	vertices[0] = append([]float64(nil), x0...)
	values[0] = f(vertices[0])
	for i := range n {
		v := append([]float64(nil), x0...)
		step := 0.1 * math.Abs(x0[i])
		if step == 0 {
			step = 0.1
		}
		v[i] += step
		if b.Violation(ev.Physical(v)) > 0 {
			v[i] = x0[i] - step
		}
		vertices[i+1] = v
		values[i+1] = f(v)
	}
	return vertices, values
}
