package fit

import (
	"math"

	"github.com/samcharles93/relaxdisp/internal/dispersion"
)

// Interval is a closed parameter range; infinite ends are allowed.
type Interval struct {
	Lo, Hi float64
}

func (iv Interval) violation(x float64) float64 {
	switch {
	case x < iv.Lo:
		return iv.Lo - x
	case x > iv.Hi:
		return x - iv.Hi
	default:
		return 0
	}
}

var unbounded = Interval{math.Inf(-1), math.Inf(1)}

// paramBounds are the physical ranges enforced while minimising, in the
// units of the parameter vector.
var paramBounds = map[string]Interval{
	"r1":       {0, 200},
	"r2":       {0, 200},
	"r2a":      {0, 200},
	"r2b":      {0, 200},
	"pA":       {0.5, 1},
	"pB":       {0, 0.5},
	"phi_ex":   {0, math.Inf(1)},
	"phi_ex_B": {0, math.Inf(1)},
	"phi_ex_C": {0, math.Inf(1)},
	"dw":       {0, math.Inf(1)},
	"kex":      {0, 2e6},
	"kex_AB":   {0, 2e6},
	"kex_BC":   {0, 2e6},
	"kex_AC":   {0, 2e6},
	"kB":       {0, 2e6},
	"kC":       {0, 2e6},
	"k_AB":     {0, 100},
	"tex":      {0, math.Inf(1)},
}

// startValues are the default initial parameter values.
var startValues = map[string]float64{
	"r1":       1,
	"r2":       10,
	"r2a":      10,
	"r2b":      10,
	"pA":       0.9,
	"pB":       0.05,
	"phi_ex":   5,
	"phi_ex_B": 5,
	"phi_ex_C": 5,
	"dw":       1,
	"dw_AB":    1,
	"dw_BC":    1,
	"dwH":      1,
	"dwH_AB":   1,
	"dwH_BC":   1,
	"kex":      1000,
	"kex_AB":   1000,
	"kex_BC":   1000,
	"kex_AC":   1000,
	"kB":       1000,
	"kC":       1000,
	"k_AB":     10,
	"tex":      1e-3,
}

// Bounds holds one physical interval per parameter vector element.
type Bounds []Interval

// DefaultBounds expands the per-parameter ranges over a layout. Parameters
// without a range are unbounded.
func DefaultBounds(l dispersion.Layout) Bounds {
	b := make(Bounds, l.Len())
	for _, blk := range l.Blocks() {
		iv, ok := paramBounds[blk.Name]
		if !ok {
			iv = unbounded
		}
		for i := blk.Start; i < blk.End; i++ {
			b[i] = iv
		}
	}
	return b
}

// Violation is the summed distance of phys outside the bounds.
func (b Bounds) Violation(phys []float64) float64 {
	var v float64
	for i, iv := range b {
		v += iv.violation(phys[i])
	}
	return v
}

// Clamp moves phys inside the bounds in place.
func (b Bounds) Clamp(phys []float64) {
	for i, iv := range b {
		phys[i] = math.Min(math.Max(phys[i], iv.Lo), iv.Hi)
	}
}

// DefaultStart is the physical starting vector built from the default value
// of every block. Overrides replace defaults by block name.
func DefaultStart(l dispersion.Layout, overrides map[string]float64) ([]float64, error) {
	vals := make(map[string]float64, len(l.Blocks()))
	for _, blk := range l.Blocks() {
		vals[blk.Name] = startValues[blk.Name]
	}
	for name, v := range overrides {
		vals[name] = v
	}
	return l.Uniform(vals)
}
