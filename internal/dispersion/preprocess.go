package dispersion

import (
	"math"

	"github.com/samcharles93/relaxdisp/internal/nucleus"
	"github.com/samcharles93/relaxdisp/internal/tensor"
)

const defaultIsotope = "15N"

// Data is the shape, measurements and derived physical tensors for one spin
// cluster. It is read-only after Prepare and may be shared by any number of
// evaluators.
type Data struct {
	shape    tensor.Shape
	expTypes []ExpType

	active  tensor.Mask // real, non-padding entries
	missing tensor.Mask // missing flag or padding
	values  tensor.Tensor
	errors  tensor.Tensor

	// ppm → rad/s factors per (e, s, m)
	frqX []float64
	frqH []float64

	cpmgFrq      tensor.Tensor
	tau          tensor.Tensor
	power        []int
	relaxTime    tensor.Tensor
	invRelaxTime tensor.Tensor
	omega1       tensor.Tensor
	omega1Sq     tensor.Tensor

	// rad/s
	shift      tensor.Tensor
	offset     tensor.Tensor
	deltaOmega tensor.Tensor
	theta      tensor.Tensor
	weff2      tensor.Tensor

	r1       tensor.Tensor
	hasR1    bool
	hasShift bool

	numOffsets []int // per (e, s, m)
	curveLen   []int // per (e, s, m, o)
	recalcTau  bool
}

type prepareConfig struct {
	recalcTau bool
	isotopes  nucleus.Registry
}

// PrepareOption configures Prepare.
type PrepareOption func(*prepareConfig)

// WithRecalcTau selects whether the CPMG delay is recomputed from the
// integer pulse count (the default) or taken as 1/(4ν).
func WithRecalcTau(v bool) PrepareOption {
	return func(c *prepareConfig) { c.recalcTau = v }
}

// WithIsotopes sets the gyromagnetic ratio registry.
func WithIsotopes(r nucleus.Registry) PrepareOption {
	return func(c *prepareConfig) { c.isotopes = r }
}

// Prepare validates in and builds the dense tensors shared by evaluators.
func Prepare(in Input, opts ...PrepareOption) (*Data, error) {
	cfg := prepareConfig{recalcTau: true, isotopes: nucleus.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	shape, err := buildShape(in)
	if err != nil {
		return nil, err
	}

	d := &Data{
		shape:        shape,
		expTypes:     append([]ExpType(nil), in.ExpTypes...),
		active:       tensor.NewMask(shape),
		missing:      tensor.NewMask(shape),
		values:       tensor.NewTensor(shape),
		errors:       tensor.Full(shape, 1),
		frqX:         make([]float64, shape.NE*shape.NS*shape.NM),
		frqH:         make([]float64, shape.NE*shape.NS*shape.NM),
		cpmgFrq:      tensor.NewTensor(shape),
		tau:          tensor.NewTensor(shape),
		power:        make([]int, shape.Size()),
		relaxTime:    tensor.NewTensor(shape),
		invRelaxTime: tensor.NewTensor(shape),
		omega1:       tensor.NewTensor(shape),
		omega1Sq:     tensor.NewTensor(shape),
		shift:        tensor.NewTensor(shape),
		offset:       tensor.NewTensor(shape),
		deltaOmega:   tensor.NewTensor(shape),
		theta:        tensor.NewTensor(shape),
		weff2:        tensor.NewTensor(shape),
		r1:           tensor.NewTensor(shape),
		hasR1:        true,
		hasShift:     true,
		numOffsets:   make([]int, shape.NE*shape.NS*shape.NM),
		curveLen:     make([]int, shape.NE*shape.NS*shape.NM*shape.NO),
		recalcTau:    cfg.recalcTau,
	}
	for i := range d.missing.Data {
		d.missing.Data[i] = true
	}
	for _, sp := range in.Spins {
		if sp.R1 == nil {
			d.hasR1 = false
		}
		if sp.ShiftPPM == nil {
			d.hasShift = false
		}
	}

	for e, expType := range in.ExpTypes {
		for si, spin := range in.Spins {
			isotope := spin.Isotope
			if isotope == "" {
				isotope = defaultIsotope
			}
			for m, field := range in.Fields {
				larmor, err := cfg.isotopes.LarmorHz(isotope, field.ProtonHz)
				if err != nil {
					return nil, newShapeError("spin", "spin %d: %v", si, err)
				}
				esm := (e*shape.NS+si)*shape.NM + m
				frq := nucleus.PPMToRadPerSec(larmor)
				d.frqX[esm] = frq
				d.frqH[esm] = nucleus.PPMToRadPerSec(field.ProtonHz)

				var shift, r1 float64
				if spin.ShiftPPM != nil {
					shift = *spin.ShiftPPM * frq
				}
				if spin.R1 != nil {
					r1 = spin.R1[m]
				}

				offsets := in.Curves[e][si][m]
				d.numOffsets[esm] = len(offsets)
				for o, c := range offsets {
					d.curveLen[esm*shape.NO+o] = len(c.Points)
					d.fillCurve(expType, c, e, si, m, o, frq, shift, r1)
				}
			}
		}
	}
	return d, nil
}

func (d *Data) fillCurve(expType ExpType, c Curve, e, si, m, o int, frq, shift, r1 float64) {
	offset := c.OffsetPPM * frq
	base := d.shape.Index(e, si, m, o, 0)
	for p, point := range c.Points {
		i := base + p
		d.active.Data[i] = true
		d.missing.Data[i] = c.Missing != nil && c.Missing[p]
		d.values.Data[i] = c.Values[p]
		if !d.missing.Data[i] {
			d.errors.Data[i] = c.Errors[p]
		}

		d.relaxTime.Data[i] = c.RelaxTime
		d.invRelaxTime.Data[i] = 1 / c.RelaxTime
		d.r1.Data[i] = r1
		d.shift.Data[i] = shift
		d.offset.Data[i] = offset

		if expType.IsCPMG() {
			d.cpmgFrq.Data[i] = point
			d.power[i] = int(math.Round(point * c.RelaxTime))
			d.tau.Data[i] = cpmgTau(point, c.RelaxTime, d.power[i], d.recalcTau)
			continue
		}

		w1 := 2 * math.Pi * point
		dOmega := shift - offset
		d.omega1.Data[i] = w1
		d.omega1Sq.Data[i] = w1 * w1
		d.deltaOmega.Data[i] = dOmega
		d.theta.Data[i] = math.Atan2(w1, dOmega)
		d.weff2.Data[i] = dOmega*dOmega + w1*w1
	}
}

// cpmgTau is the delay between the centre of the excitation and the first
// refocusing pulse: a quarter of the CPMG period.
func cpmgTau(nu, relaxTime float64, power int, recalc bool) float64 {
	if recalc && power > 0 {
		return 0.25 * relaxTime / float64(power)
	}
	if nu > 0 {
		return 0.25 / nu
	}
	return 0
}

// Shape returns the padded tensor shape.
func (d *Data) Shape() tensor.Shape { return d.shape }

// ExpTypes returns the experiment type of each experiment index.
func (d *Data) ExpTypes() []ExpType { return append([]ExpType(nil), d.expTypes...) }

// RecalcTau reports whether CPMG tau was recomputed from the pulse count.
func (d *Data) RecalcTau() bool { return d.recalcTau }

// ActivePoints is the number of real (non-padding) entries.
func (d *Data) ActivePoints() int { return d.active.Count() }

// FitPoints is the number of entries that contribute to chi-squared.
func (d *Data) FitPoints() int {
	n := 0
	for i, a := range d.active.Data {
		if a && !d.missing.Data[i] {
			n++
		}
	}
	return n
}

// Values returns a copy of the measured values tensor.
func (d *Data) Values() tensor.Tensor { return d.values.Clone() }

// Errors returns a copy of the measurement error tensor.
func (d *Data) Errors() tensor.Tensor { return d.errors.Clone() }

// WithValues returns a Data sharing every tensor with d except the measured
// values, which are replaced by a copy of values. Padding and missing
// entries keep their original values.
func (d *Data) WithValues(values tensor.Tensor) (*Data, error) {
	if values.Shape != d.shape || len(values.Data) != d.shape.Size() {
		return nil, newShapeError("dispersion", "values shape %v does not match %v", values.Shape, d.shape)
	}
	out := *d
	out.values = d.values.Clone()
	for i := range out.values.Data {
		if d.active.Data[i] && !d.missing.Data[i] {
			out.values.Data[i] = values.Data[i]
		}
	}
	return &out, nil
}

// Ragged converts a dense tensor back into the [E][S][M][O][D] layout of the
// construction input, dropping padding.
func (d *Data) Ragged(t tensor.Tensor) [][][][][]float64 {
	s := d.shape
	out := make([][][][][]float64, s.NE)
	for e := range s.NE {
		out[e] = make([][][][]float64, s.NS)
		for si := range s.NS {
			out[e][si] = make([][][]float64, s.NM)
			for m := range s.NM {
				esm := (e*s.NS+si)*s.NM + m
				offs := make([][]float64, d.numOffsets[esm])
				for o := range offs {
					n := d.curveLen[esm*s.NO+o]
					offs[o] = append([]float64(nil), t.Point(e, si, m, o)[:n]...)
				}
				out[e][si][m] = offs
			}
		}
	}
	return out
}
