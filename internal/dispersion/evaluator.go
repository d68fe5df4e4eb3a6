package dispersion

import (
	"fmt"

	"github.com/samcharles93/relaxdisp/internal/tensor"
	"gonum.org/v1/gonum/mat"
)

// Evaluator computes the chi-squared of one model against one Data for a
// flat parameter vector. It owns its back-calculation buffer and is not safe
// for concurrent use; create one Evaluator per goroutine.
type Evaluator struct {
	model  Model
	v      *variant
	data   *Data
	layout Layout

	params  *Params
	decode  []decodeOp
	eq      equationFunc
	scratch *scratch

	scaling *mat.Dense
	physBuf []float64
	phys    *mat.VecDense

	back tensor.Tensor
}

type evalConfig struct {
	r1Fit       bool
	scaling     mat.Matrix
	expmWorkers int
}

// Option configures New.
type Option func(*evalConfig)

// WithR1Fit adds an R1 block to the parameter vector.
func WithR1Fit(v bool) Option {
	return func(c *evalConfig) { c.r1Fit = v }
}

// WithScaling sets the optimiser-to-physical scaling matrix S. Parameters
// are mapped as x_phys = Sᵀ·x before decoding.
func WithScaling(s mat.Matrix) Option {
	return func(c *evalConfig) { c.scaling = s }
}

// WithDiagonalScaling is WithScaling for a diagonal matrix.
func WithDiagonalScaling(diag []float64) Option {
	return func(c *evalConfig) {
		if diag == nil {
			c.scaling = nil
			return
		}
		c.scaling = mat.NewDiagDense(len(diag), append([]float64(nil), diag...))
	}
}

// WithExpmWorkers sets how many pool workers batched matrix exponentials
// may use. The default of 1 keeps evaluation on the caller's goroutine.
func WithExpmWorkers(n int) Option {
	return func(c *evalConfig) { c.expmWorkers = n }
}

// New builds an evaluator for the model registered under name.
func New(d *Data, name string, opts ...Option) (*Evaluator, error) {
	m, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	return NewModel(d, m, opts...)
}

// NewModel builds an evaluator for m. All model-specific decisions are made
// here; Evaluate itself does not branch on the model.
func NewModel(d *Data, m Model, opts ...Option) (*Evaluator, error) {
	if !m.valid() {
		return nil, newInvalidModel(m.String(), "not a registered dispersion model")
	}
	cfg := evalConfig{expmWorkers: 1}
	for _, opt := range opts {
		opt(&cfg)
	}
	v := &variants[m]

	for e, t := range d.expTypes {
		if !v.class.accepts(t) {
			return nil, newInvalidModel(v.name, "experiment %d is %s, model needs %s data", e, t, v.class)
		}
	}
	if cfg.r1Fit && !v.r1 {
		return nil, newInvalidModel(v.name, "model does not use R1, it cannot be fitted")
	}
	if v.r1 && !cfg.r1Fit && !d.hasR1 {
		return nil, newInvalidModel(v.name, "R1 values are required for every spin when R1 is not fitted")
	}
	if v.offRes && !d.hasShift {
		return nil, newInvalidModel(v.name, "chemical shifts are required for every spin")
	}

	layout := newLayout(v, d.shape, cfg.r1Fit)
	params, decode := newDecoder(v, layout, d, cfg.r1Fit)
	ev := &Evaluator{
		model:   m,
		v:       v,
		data:    d,
		layout:  layout,
		params:  params,
		decode:  decode,
		eq:      v.eq,
		scratch: newScratch(cfg.expmWorkers),
		back:    tensor.NewTensor(d.shape),
	}

	if cfg.scaling != nil {
		n := layout.Len()
		r, c := cfg.scaling.Dims()
		if r != n || c != n {
			return nil, &ParameterCountError{Got: r, Want: n}
		}
		ev.scaling = mat.DenseCopyOf(cfg.scaling)
		ev.physBuf = make([]float64, n)
		ev.phys = mat.NewVecDense(n, ev.physBuf)
	}
	return ev, nil
}

// Evaluate back-calculates the model for params and returns chi-squared.
// The only error is a *ParameterCountError.
func (e *Evaluator) Evaluate(params []float64) (float64, error) {
	if len(params) != e.layout.Len() {
		return 0, &ParameterCountError{Got: len(params), Want: e.layout.Len()}
	}
	e.BackCalculate(params)
	d := e.data
	return Reduce(e.back.Data, d.values.Data, d.errors.Data, d.missing.Data), nil
}

// BackCalculate fills the back-calculation buffer for params without
// reducing it. It is a no-op for a vector of the wrong length.
func (e *Evaluator) BackCalculate(params []float64) {
	if len(params) != e.layout.Len() {
		return
	}
	x := params
	if e.scaling != nil {
		e.phys.MulVec(e.scaling.T(), mat.NewVecDense(len(params), params))
		x = e.physBuf
	}
	for _, op := range e.decode {
		op(x, e.params)
	}
	e.eq(e.params, e.data, e.scratch, e.back.Data)
	sanitize(e.back.Data, e.data.active.Data)
}

// BackCalc returns the last back-calculated values in the ragged layout of
// the construction input.
func (e *Evaluator) BackCalc() [][][][][]float64 {
	return e.data.Ragged(e.back)
}

// BackCalcTensor returns a copy of the dense back-calculation buffer.
func (e *Evaluator) BackCalcTensor() tensor.Tensor { return e.back.Clone() }

// Layout returns the parameter partition.
func (e *Evaluator) Layout() Layout { return e.layout }

// NumParams is the length of the parameter vector.
func (e *Evaluator) NumParams() int { return e.layout.Len() }

// Model returns the model being evaluated.
func (e *Evaluator) Model() Model { return e.model }

// Data returns the shared dataset.
func (e *Evaluator) Data() *Data { return e.data }

// Encode packs physical per-block values into an optimiser-space vector,
// inverting the scaling matrix when one is set.
func (e *Evaluator) Encode(values map[string][]float64) ([]float64, error) {
	phys, err := e.layout.Pack(values)
	if err != nil {
		return nil, err
	}
	if e.scaling == nil {
		return phys, nil
	}
	var x mat.VecDense
	if err := x.SolveVec(e.scaling.T(), mat.NewVecDense(len(phys), phys)); err != nil {
		return nil, fmt.Errorf("scaling matrix is not invertible: %w", err)
	}
	return mat.Col(nil, 0, &x), nil
}

// Decode maps an optimiser-space vector to named physical blocks.
func (e *Evaluator) Decode(params []float64) (map[string][]float64, error) {
	if len(params) != e.layout.Len() {
		return nil, &ParameterCountError{Got: len(params), Want: e.layout.Len()}
	}
	return e.layout.Unpack(e.Physical(params))
}

// Physical maps an optimiser-space vector through the scaling matrix. The
// result is a new slice.
func (e *Evaluator) Physical(params []float64) []float64 {
	out := append([]float64(nil), params...)
	if e.scaling == nil || len(params) != e.layout.Len() {
		return out
	}
	v := mat.NewVecDense(len(out), out)
	v.MulVec(e.scaling.T(), mat.NewVecDense(len(params), params))
	return out
}
