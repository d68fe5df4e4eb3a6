package dispersion

import (
	"math/cmplx"

	"github.com/samcharles93/relaxdisp/internal/tensor"
)

// acosh is the principal inverse hyperbolic cosine. cmplx.Acosh goes through
// Asin and loses all precision once |z| is large.
func acosh(z complex128) complex128 {
	return cmplx.Log(z + cmplx.Sqrt(z+1)*cmplx.Sqrt(z-1))
}

func eqMMQCR72(p *Params, d *Data, _ *scratch, back []float64) {
	pA := p.PA
	pB := 1 - pA
	kex := p.Kex
	for i, a := range d.active.Data {
		if !a {
			continue
		}
		r20, dw, dwH, nu := p.R20A.Data[i], p.Dw.Data[i], p.DwH.Data[i], d.cpmgFrq.Data[i]
		if nu == 0 || kex == 0 || pA == 1 || (dw == 0 && dwH == 0) {
			back[i] = r20
			continue
		}
		back[i] = mmqCR72(r20, pA, pB, dw, dwH, kex, nu)
	}
}

func mmqCR72(r20, pA, pB, dw, dwH, kex, nu float64) float64 {
	dw2 := complex(dw*dw, 0)
	c := complex((pA-pB)*kex, dwH)
	psi := c*c - dw2 + complex(4*pA*pB*kex*kex, 0)
	zeta := 2 * complex(dw, 0) * c
	root := cmplx.Sqrt(psi*psi + zeta*zeta)

	dPart := (0.5*psi + dw2) / root
	dPos := 0.5 + dPart
	dNeg := -0.5 + dPart

	scale := complex(0.35355339059327373/nu, 0)
	etaPos := scale * cmplx.Sqrt(psi+root)
	etaNeg := scale * cmplx.Sqrt(-psi+root)

	var ac complex128
	if real(etaPos) > coshLimit {
		ac = etaPos + cmplx.Log(dPos)
	} else {
		ac = acosh(dPos*cmplx.Cosh(etaPos) - dNeg*cmplx.Cos(etaNeg))
	}
	return real(complex(r20+0.5*kex, 0) - complex(nu, 0)*ac)
}

// mmqGenerator fills m with the tau-scaled two-site generator for a coherence
// precessing at delta rad/s in state B.
func mmqGenerator(m *tensor.CMat, r20a, r20b, kAB, kBA, delta, tau float64) {
	t := complex(tau, 0)
	m.Set(0, 0, complex(-kAB-r20a, 0)*t)
	m.Set(0, 1, complex(kBA, 0)*t)
	m.Set(1, 0, complex(kAB, 0)*t)
	m.Set(1, 1, complex(-kBA-r20b, delta)*t)
}

func mmqTrivial(p *Params, d *Data, i int) bool {
	return d.cpmgFrq.Data[i] == 0 || d.power[i] == 0 || p.Kex == 0 || p.PA == 1 ||
		(p.Dw.Data[i] == 0 && p.DwH.Data[i] == 0)
}

func eqNSMMQ2Site(p *Params, d *Data, s *scratch, back []float64) {
	trivial := func(i int) bool { return mmqTrivial(p, d, i) }
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
		r20a, r20b, dw, dwH, tau := p.R20A.Data[i], p.R20B.Data[i], p.Dw.Data[i], p.DwH.Data[i], d.tau.Data[i]
		m1, m2 := complexMat(src, 2*k, n), complexMat(src, 2*k+1, n)
		if d.expTypes[expOf(d, i)].IsMQ() {
			mmqGenerator(&m1, r20a, r20b, kAB, kBA, -dw-dwH, tau)
			mmqGenerator(&m2, r20a, r20b, kAB, kBA, dw-dwH, tau)
		} else {
			mmqGenerator(&m1, r20a, r20b, kAB, kBA, dw, tau)
			mmqGenerator(&m2, r20a, r20b, kAB, kBA, -dw, tau)
		}
	}
	s.batch(n).Complex(dst, src)

	m0 := []complex128{complex(pA, 0), complex(pB, 0)}
	for k, i := range idx {
		e1, e2 := complexMat(dst, 2*k, n), complexMat(dst, 2*k+1, n)
		mx := s.mmqEcho(&e1, &e2, m0, d.power[i], d.expTypes[expOf(d, i)].IsMQ())
		back[i] = rateFromMx(mx/pA, d.invRelaxTime.Data[i])
	}
}

// expOf returns the experiment index of flat entry i.
func expOf(d *Data, i int) int {
	return i / (d.shape.Size() / d.shape.NE)
}

// mmqEcho applies power CPMG blocks built from the propagators e1 and e2 to
// m0 and returns the real observable magnetisation of state A. Single
// quantum style coherences use the symmetric block e1·e2·e2·e1; MQ
// coherences average the four interleaved conjugate pathways.
func (s *scratch) mmqEcho(e1, e2 *tensor.CMat, m0 []complex128, power int, mq bool) float64 {
	n := e1.R
	ms := s.complexMats(12, n)
	tmp := &ms[11]
	out := s.vec(n)
	if !mq {
		block, prop := &ms[0], &ms[1]
		tensor.CMatMulChain(block, tmp, e1, e2, e2, e1)
		s.cpow.Pow(prop, block, power)
		tensor.CMatVec(out, prop, m0)
		return real(out[0])
	}

	e1c, e2c := &ms[0], &ms[1]
	e1c.ConjTo(e1)
	e2c.ConjTo(e2)
	m12, m21, m12c, m21c := &ms[2], &ms[3], &ms[4], &ms[5]
	tensor.CMatMul(m12, e1, e2)
	tensor.CMatMul(m21, e2, e1)
	tensor.CMatMul(m12c, e1c, e2c)
	tensor.CMatMul(m21c, e2c, e1c)

	A, B, C, D := &ms[6], &ms[7], &ms[8], &ms[9]
	switch {
	case power == 1:
		A.CopyFrom(m12)
		B.CopyFrom(m12c)
		C.CopyFrom(m21)
		D.CopyFrom(m21c)
	case power%2 == 0:
		half := power / 2
		s.chainPow(A, m12, m21, half)
		s.chainPow(B, m21c, m12c, half)
		s.chainPow(C, m21, m12, half)
		s.chainPow(D, m12c, m21c, half)
	default:
		half := (power - 1) / 2
		s.chainPow(A, m12, m21, half)
		s.chainPow(B, m12c, m21c, half)
		s.chainPow(C, m21, m12, half)
		s.chainPow(D, m21c, m12c, half)
		rightMul(A, m12, tmp)
		rightMul(B, m12c, tmp)
		rightMul(C, m21, tmp)
		rightMul(D, m21c, tmp)
	}

	sum := &ms[10]
	tensor.CMatMul(tmp, A, B)
	tensor.CMatMul(sum, C, D)
	for k := range sum.Data {
		sum.Data[k] += tmp.Data[k]
	}
	tensor.CMatVec(out, sum, m0)
	return 0.5 * real(out[0])
}

// chainPow writes (a·b)^k into dst.
func (s *scratch) chainPow(dst, a, b *tensor.CMat, k int) {
	if s.chain.R != a.R {
		s.chain = tensor.NewCMat(a.R, a.R)
	}
	tensor.CMatMul(&s.chain, a, b)
	s.cpow.Pow(dst, &s.chain, k)
}

// rightMul sets m = m·r.
func rightMul(m, r, tmp *tensor.CMat) {
	tensor.CMatMul(tmp, m, r)
	m.CopyFrom(tmp)
}

func eqNSMMQ3Site(p *Params, d *Data, s *scratch, back []float64) {
	trivial := func(i int) bool {
		return d.cpmgFrq.Data[i] == 0 || d.power[i] == 0
	}
	fillTrivial(p, d, back, trivial)
	idx := s.numericEntries(d, trivial)
	if len(idx) == 0 {
		return
	}

	const n = 3
	k := threeSiteRates(p.PA, p.PB, p.KexAB, p.KexBC, p.KexAC)
	src, dst := s.complexBuffers(2*len(idx), n)
	for j, i := range idx {
		dwAB, dwHAB := p.Dw.Data[i], p.DwH.Data[i]
		dwAC, dwHAC := dwAB+p.DwBC.Data[i], dwHAB+p.DwHBC.Data[i]
		r := [3]float64{p.R20A.Data[i], p.R20B.Data[i], p.R20C.Data[i]}
		tau := d.tau.Data[i]
		m1, m2 := complexMat(src, 2*j, n), complexMat(src, 2*j+1, n)
		if d.expTypes[expOf(d, i)].IsMQ() {
			k.generator(&m1, r, -dwAB-dwHAB, -dwAC-dwHAC, tau)
			k.generator(&m2, r, dwAB-dwHAB, dwAC-dwHAC, tau)
		} else {
			k.generator(&m1, r, dwAB, dwAC, tau)
			k.generator(&m2, r, -dwAB, -dwAC, tau)
		}
	}
	s.batch(n).Complex(dst, src)

	m0 := []complex128{complex(p.PA, 0), complex(p.PB, 0), complex(k.pC, 0)}
	for j, i := range idx {
		e1, e2 := complexMat(dst, 2*j, n), complexMat(dst, 2*j+1, n)
		mx := s.mmqEcho(&e1, &e2, m0, d.power[i], d.expTypes[expOf(d, i)].IsMQ())
		back[i] = rateFromMx(mx/p.PA, d.invRelaxTime.Data[i])
	}
}

// siteRates holds the microscopic rate constants of a three-site system.
type siteRates struct {
	pC                 float64
	kAB, kBA, kBC, kCB float64
	kAC, kCA           float64
}

// threeSiteRates splits pairwise exchange rates by population. A pair with
// no combined population exchanges at rate zero.
func threeSiteRates(pA, pB, kexAB, kexBC, kexAC float64) siteRates {
	pC := 1 - pA - pB
	split := func(pX, pY, kex float64) (kXY, kYX float64) {
		sum := pX + pY
		if sum == 0 {
			return 0, 0
		}
		return pY * kex / sum, pX * kex / sum
	}
	r := siteRates{pC: pC}
	r.kAB, r.kBA = split(pA, pB, kexAB)
	r.kBC, r.kCB = split(pB, pC, kexBC)
	r.kAC, r.kCA = split(pA, pC, kexAC)
	return r
}

// generator fills m with the tau-scaled three-site generator for B and C
// coherences precessing at dAB and dAC relative to A.
func (k siteRates) generator(m *tensor.CMat, r20 [3]float64, dAB, dAC, tau float64) {
	t := complex(tau, 0)
	m.Set(0, 0, complex(-k.kAB-k.kAC-r20[0], 0)*t)
	m.Set(0, 1, complex(k.kBA, 0)*t)
	m.Set(0, 2, complex(k.kCA, 0)*t)
	m.Set(1, 0, complex(k.kAB, 0)*t)
	m.Set(1, 1, complex(-k.kBA-k.kBC-r20[1], dAB)*t)
	m.Set(1, 2, complex(k.kCB, 0)*t)
	m.Set(2, 0, complex(k.kAC, 0)*t)
	m.Set(2, 1, complex(k.kBC, 0)*t)
	m.Set(2, 2, complex(-k.kCB-k.kCA-r20[2], dAC)*t)
}
