package dispersion

import (
	"math"
	"testing"

	"github.com/samcharles93/relaxdisp/internal/nucleus"
)

const testProtonHz = 600e6

// frq15N is the ppm → rad/s factor of 15N at 600 MHz.
var frq15N = func() float64 {
	l, err := nucleus.Default().LarmorHz("15N", testProtonHz)
	if err != nil {
		panic(err)
	}
	return nucleus.PPMToRadPerSec(l)
}()

func ones(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1
	}
	return out
}

func cpmgCurve(t float64, nus []float64) Curve {
	return Curve{RelaxTime: t, Points: nus, Values: make([]float64, len(nus)), Errors: ones(len(nus))}
}

// cpmgInput is one 15N spin at one field with a single curve.
func cpmgInput(exp ExpType, t float64, nus []float64) Input {
	return Input{
		ExpTypes: []ExpType{exp},
		Fields:   []Field{{ProtonHz: testProtonHz}},
		Spins:    []Spin{{Name: "N1", Isotope: "15N"}},
		Curves:   [][][][]Curve{{{{cpmgCurve(t, nus)}}}},
	}
}

// r1rhoInput is one spin with a known shift and R1 at one field, with one
// curve per offset.
func r1rhoInput(shiftPPM, r1 float64, offsetsPPM, fieldsHz []float64) Input {
	shift := shiftPPM
	curves := make([]Curve, len(offsetsPPM))
	for o, off := range offsetsPPM {
		curves[o] = Curve{
			OffsetPPM: off, RelaxTime: 0.1, Points: fieldsHz,
			Values: make([]float64, len(fieldsHz)), Errors: ones(len(fieldsHz)),
		}
	}
	return Input{
		ExpTypes: []ExpType{ExpR1rho},
		Fields:   []Field{{ProtonHz: testProtonHz}},
		Spins:    []Spin{{Name: "N1", Isotope: "15N", ShiftPPM: &shift, R1: []float64{r1}}},
		Curves:   [][][][]Curve{{{curves}}},
	}
}

func mustPrepare(t testing.TB, in Input) *Data {
	t.Helper()
	d, err := Prepare(in)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	return d
}

func mustEvaluator(t testing.TB, d *Data, model string, opts ...Option) *Evaluator {
	t.Helper()
	ev, err := New(d, model, opts...)
	if err != nil {
		t.Fatalf("New(%q): %v", model, err)
	}
	return ev
}

// backCalc evaluates model at the named single-spin parameters and returns
// the first curve.
func backCalc(t testing.TB, d *Data, model string, params map[string]float64) []float64 {
	t.Helper()
	ev := mustEvaluator(t, d, model)
	blocks := make(map[string][]float64, len(params))
	for _, b := range ev.Layout().Blocks() {
		v, ok := params[b.Name]
		if !ok {
			t.Fatalf("%s: no value for parameter %q", model, b.Name)
		}
		vals := make([]float64, b.Len())
		for i := range vals {
			vals[i] = v
		}
		blocks[b.Name] = vals
	}
	x, err := ev.Layout().Pack(blocks)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	ev.BackCalculate(x)
	return ev.BackCalc()[0][0][0][0]
}

func relDiff(a, b float64) float64 {
	return math.Abs(a-b) / math.Max(math.Abs(b), 1e-300)
}
