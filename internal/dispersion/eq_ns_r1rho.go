package dispersion

import (
	"math"

	"github.com/samcharles93/relaxdisp/internal/tensor"
)

// spinLockSite is one state of a spin-lock Bloch–McConnell system.
type spinLockSite struct {
	pop   float64
	r1    float64
	r2    float64
	omega float64 // offset from the carrier, rad/s
	kOut  float64 // total rate out of the state
}

// spinLockGenerator fills the 3n×3n generator, scaled by t, for the (x, y, z)
// magnetisation of n exchanging states under a spin-lock field w1 along x.
// rate(to, from) is the exchange rate from state from into state to.
func spinLockGenerator(m *tensor.Mat, sites []spinLockSite, rate func(to, from int) float64, w1, t float64) {
	for x, s := range sites {
		o := 3 * x
		m.Set(o, o, -s.r2-s.kOut)
		m.Set(o, o+1, -s.omega)
		m.Set(o+1, o, s.omega)
		m.Set(o+1, o+1, -s.r2-s.kOut)
		m.Set(o+1, o+2, -w1)
		m.Set(o+2, o+1, w1)
		m.Set(o+2, o+2, -s.r1-s.kOut)
		for y := range sites {
			if y == x {
				continue
			}
			k := rate(x, y)
			for c := range 3 {
				m.Set(o+c, 3*y+c, k)
			}
		}
	}
	m.Scale(t)
}

// spinLockDecay projects the propagated magnetisation back on the tilted
// effective field and converts the surviving fraction into a rate.
func spinLockDecay(e *tensor.Mat, sites []spinLockSite, theta, invT float64, m0, mt []float64) float64 {
	sin, cos := math.Sincos(theta)
	for x, s := range sites {
		m0[3*x] = s.pop * sin
		m0[3*x+1] = 0
		m0[3*x+2] = s.pop * cos
	}
	tensor.MatVec(mt, e, m0)
	var proj float64
	for x := range sites {
		proj += mt[3*x]*sin + mt[3*x+2]*cos
	}
	return rateFromMx(proj, invT)
}

func eqNSR1rho2Site(p *Params, d *Data, s *scratch, back []float64) {
	pA := p.PA
	pB := 1 - pA
	kAB, kBA := pB*p.Kex, pA*p.Kex
	rate := func(to, _ int) float64 {
		if to == 0 {
			return kBA
		}
		return kAB
	}
	sites := make([]spinLockSite, 2)
	site := func(i int) []spinLockSite {
		dOmega := d.deltaOmega.Data[i]
		sites[0] = spinLockSite{pop: pA, r1: p.R1.Data[i], r2: p.R20A.Data[i], omega: dOmega, kOut: kAB}
		sites[1] = spinLockSite{pop: pB, r1: p.R1.Data[i], r2: p.R20B.Data[i], omega: dOmega + p.Dw.Data[i], kOut: kBA}
		return sites
	}
	spinLock(d, s, back, 2, site, rate)
}

func eqNSR1rho3Site(p *Params, d *Data, s *scratch, back []float64) {
	k := threeSiteRates(p.PA, p.PB, p.KexAB, p.KexBC, p.KexAC)
	// rates[to][from]
	rates := [3][3]float64{
		{0, k.kBA, k.kCA},
		{k.kAB, 0, k.kCB},
		{k.kAC, k.kBC, 0},
	}
	rate := func(to, from int) float64 { return rates[to][from] }
	sites := make([]spinLockSite, 3)
	site := func(i int) []spinLockSite {
		dOmega, dwAB := d.deltaOmega.Data[i], p.Dw.Data[i]
		r1 := p.R1.Data[i]
		sites[0] = spinLockSite{pop: p.PA, r1: r1, r2: p.R20A.Data[i], omega: dOmega, kOut: k.kAB + k.kAC}
		sites[1] = spinLockSite{pop: p.PB, r1: r1, r2: p.R20B.Data[i], omega: dOmega + dwAB, kOut: k.kBA + k.kBC}
		sites[2] = spinLockSite{pop: k.pC, r1: r1, r2: p.R20C.Data[i], omega: dOmega + dwAB + p.DwBC.Data[i], kOut: k.kCA + k.kCB}
		return sites
	}
	spinLock(d, s, back, 3, site, rate)
}

func spinLock(d *Data, s *scratch, back []float64, nSites int, site func(i int) []spinLockSite, rate func(to, from int) float64) {
	idx := s.numericEntries(d, func(int) bool { return false })
	if len(idx) == 0 {
		return
	}
	n := 3 * nSites
	src, dst := s.realBuffers(len(idx), n)
	for k, i := range idx {
		m := realMat(src, k, n)
		spinLockGenerator(&m, site(i), rate, d.omega1.Data[i], d.relaxTime.Data[i])
	}
	s.batch(n).Real(dst, src)

	m0, mt := make([]float64, n), make([]float64, n)
	for k, i := range idx {
		e := realMat(dst, k, n)
		back[i] = spinLockDecay(&e, site(i), d.theta.Data[i], d.invRelaxTime.Data[i], m0, mt)
	}
}
