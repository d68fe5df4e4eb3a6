package dispersion

import (
	"github.com/samcharles93/relaxdisp/internal/tensor"
)

// cpmgTrivial reports whether a CPMG entry sits on one of the limits where
// the propagator reduces to plain R20A relaxation.
func cpmgTrivial(p *Params, d *Data, i int) bool {
	return d.cpmgFrq.Data[i] == 0 || d.power[i] == 0 || p.Dw.Data[i] == 0 || p.Kex == 0 || p.PA == 1
}

// fillTrivial writes R20A into every active entry for which trivial is
// true.
func fillTrivial(p *Params, d *Data, back []float64, trivial func(i int) bool) {
	for i, a := range d.active.Data {
		if a && trivial(i) {
			back[i] = p.R20A.Data[i]
		}
	}
}

const bloch3D = 7

// r180x inverts y and z of both sites and leaves the constant and x.
var r180x = [bloch3D]float64{1, 1, -1, -1, 1, -1, -1}

func eqNSCPMG3D(p *Params, d *Data, s *scratch, back []float64) {
	trivial := func(i int) bool { return cpmgTrivial(p, d, i) }
	fillTrivial(p, d, back, trivial)
	idx := s.numericEntries(d, trivial)
	if len(idx) == 0 {
		return
	}

	const n = bloch3D
	pA := p.PA
	pB := 1 - pA
	kAB, kBA := pB*p.Kex, pA*p.Kex
	src, dst := s.realBuffers(len(idx), n)
	for k, i := range idx {
		m := realMat(src, k, n)
		r2a, r2b, dw := p.R20A.Data[i], p.R20B.Data[i], p.Dw.Data[i]
		var r1a, r1b float64 // no longitudinal relaxation in these models
		m.Set(1, 1, -r2a-kAB)
		m.Set(2, 2, -r2a-kAB)
		m.Set(3, 3, -r1a-kAB)
		m.Set(4, 4, -r2b-kBA)
		m.Set(5, 5, -r2b-kBA)
		m.Set(6, 6, -r1b-kBA)
		for c := 1; c <= 3; c++ {
			m.Set(c, c+3, kBA)
			m.Set(c+3, c, kAB)
		}
		m.Set(4, 5, -dw)
		m.Set(5, 4, dw)
		m.Set(3, 0, 2*r1a*pA)
		m.Set(6, 0, 2*r1b*pB)
		m.Scale(d.tau.Data[i])
	}
	s.batch(n).Real(dst, src)

	ms := s.realMats(4, n)
	half, echo, prop, tmp := &ms[0], &ms[1], &ms[2], &ms[3]
	m0 := [bloch3D]float64{0.5, pA, 0, 0, pB, 0, 0}
	var mt [bloch3D]float64
	for k, i := range idx {
		e := realMat(dst, k, n)
		// half = E·P180·E
		for r := range n {
			row := tmp.Row(r)
			for c := range n {
				row[c] = e.At(r, c) * r180x[c]
			}
		}
		tensor.MatMul(half, tmp, &e)
		tensor.MatMul(echo, half, half)
		s.pow.Pow(prop, echo, d.power[i])
		tensor.MatVec(mt[:], prop, m0[:])
		back[i] = rateFromMx(mt[1]/pA, d.invRelaxTime.Data[i])
	}
}

func eqNSCPMGStar(p *Params, d *Data, s *scratch, back []float64) {
	trivial := func(i int) bool { return cpmgTrivial(p, d, i) }
	fillTrivial(p, d, back, trivial)
	idx := s.numericEntries(d, trivial)
	if len(idx) == 0 {
		return
	}

	const n = 2
	pA := p.PA
	pB := 1 - pA
	kAB, kBA := pB*p.Kex, pA*p.Kex
	src, dst := s.complexBuffers(2*len(idx), n)
	for k, i := range idx {
		tau := d.tau.Data[i]
		g := [4]complex128{
			complex(-p.R20A.Data[i]-kAB, 0), complex(kBA, 0),
			complex(kAB, 0), complex(-p.R20B.Data[i]-kBA, -p.Dw.Data[i]),
		}
		r := src[2*k*4 : 2*k*4+4]
		cr := src[2*k*4+4 : 2*k*4+8]
		for j, v := range g {
			r[j] = v * complex(tau, 0)
			cr[j] = complex(real(v), -imag(v)) * complex(2*tau, 0)
		}
	}
	s.batch(n).Complex(dst, src)

	m0 := []complex128{complex(pA, 0), complex(pB, 0)}
	echo, prop, tmp := s.cmats(n)
	var mt [2]complex128
	for k, i := range idx {
		eR := complexMat(dst, 2*k, n)
		ecR2 := complexMat(dst, 2*k+1, n)
		tensor.CMatMulChain(echo, tmp, &eR, &ecR2, &eR)
		s.cpow.Pow(prop, echo, d.power[i])
		tensor.CMatVec(mt[:], prop, m0)
		back[i] = rateFromMx(real(mt[0])/pA, d.invRelaxTime.Data[i])
	}
}
