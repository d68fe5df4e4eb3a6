package dispersion

import (
	"math"

	"github.com/samcharles93/relaxdisp/internal/tensor"
)

// buildShape computes the padded extents of in and validates that every
// ragged list agrees with the axis it indexes.
func buildShape(in Input) (tensor.Shape, error) {
	s := tensor.Shape{NE: len(in.ExpTypes), NS: len(in.Spins), NM: len(in.Fields)}
	if s.NE == 0 {
		return s, newShapeError("experiment", "no experiments supplied")
	}
	if s.NS == 0 {
		return s, newShapeError("spin", "no spins supplied")
	}
	if s.NM == 0 {
		return s, newShapeError("field", "no fields supplied")
	}
	for e, t := range in.ExpTypes {
		if !t.Valid() {
			return s, newShapeError("experiment", "experiment %d has unknown type %s", e, t)
		}
	}
	if len(in.Curves) != s.NE {
		return s, newShapeError("experiment", "curves cover %d experiments, want %d", len(in.Curves), s.NE)
	}

	for e, perSpin := range in.Curves {
		if len(perSpin) != s.NS {
			return s, newShapeError("spin", "experiment %d has curves for %d spins, want %d", e, len(perSpin), s.NS)
		}
		for si, perField := range perSpin {
			if len(perField) != s.NM {
				return s, newShapeError("field", "experiment %d spin %d has curves for %d fields, want %d", e, si, len(perField), s.NM)
			}
			for m, offsets := range perField {
				s.NO = max(s.NO, len(offsets))
				for o, c := range offsets {
					if err := checkCurve(c, e, si, m, o); err != nil {
						return s, err
					}
					s.ND = max(s.ND, len(c.Points))
				}
			}
		}
	}
	if s.NO == 0 {
		return s, newShapeError("offset", "no offsets supplied")
	}
	if s.ND == 0 {
		return s, newShapeError("dispersion", "no dispersion points supplied")
	}

	for si, spin := range in.Spins {
		if spin.R1 != nil && len(spin.R1) != s.NM {
			return s, newShapeError("field", "spin %d has %d R1 values, want %d", si, len(spin.R1), s.NM)
		}
	}
	for m, f := range in.Fields {
		if !(f.ProtonHz > 0) {
			return s, newShapeError("field", "field %d has non-positive proton frequency %g", m, f.ProtonHz)
		}
	}
	return s, nil
}

func checkCurve(c Curve, e, si, m, o int) error {
	n := len(c.Points)
	if len(c.Values) != n {
		return newShapeError("dispersion", "curve (%d,%d,%d,%d) has %d values for %d points", e, si, m, o, len(c.Values), n)
	}
	if len(c.Errors) != n {
		return newShapeError("dispersion", "curve (%d,%d,%d,%d) has %d errors for %d points", e, si, m, o, len(c.Errors), n)
	}
	if c.Missing != nil && len(c.Missing) != n {
		return newShapeError("dispersion", "curve (%d,%d,%d,%d) has %d missing flags for %d points", e, si, m, o, len(c.Missing), n)
	}
	if n > 0 && !(c.RelaxTime > 0) {
		return newShapeError("dispersion", "curve (%d,%d,%d,%d) has non-positive relaxation time %g", e, si, m, o, c.RelaxTime)
	}
	for d := range n {
		if c.Missing != nil && c.Missing[d] {
			continue
		}
		if !(c.Errors[d] > 0) || math.IsInf(c.Errors[d], 0) {
			return newShapeError("dispersion", "curve (%d,%d,%d,%d) point %d has invalid error %g", e, si, m, o, d, c.Errors[d])
		}
	}
	return nil
}
