package dispersion

import (
	"math"
	"math/cmplx"

	"github.com/samcharles93/relaxdisp/internal/expm"
)

// coshLimit is the η+ above which acosh(D+·cosh η+ − D−·cos η−) is replaced
// by η+ + ln D+ to stay clear of cosh overflow.
const coshLimit = 350

func eqNoRex(p *Params, d *Data, _ *scratch, back []float64) {
	for i, a := range d.active.Data {
		if a {
			back[i] = p.R20A.Data[i]
		}
	}
}

// lm63Term is the fast-exchange contribution phi/k·(1 − tanh(x)/x) with
// x = k/(4ν).
func lm63Term(phi, k, nu float64) float64 {
	if phi == 0 || k == 0 {
		return 0
	}
	x := k / (4 * nu)
	return phi / k * (1 - math.Tanh(x)/x)
}

func eqLM63(p *Params, d *Data, _ *scratch, back []float64) {
	for i, a := range d.active.Data {
		if !a {
			continue
		}
		r20, nu := p.R20A.Data[i], d.cpmgFrq.Data[i]
		if nu == 0 {
			back[i] = r20
			continue
		}
		back[i] = r20 + lm63Term(p.PhiEx.Data[i], p.Kex, nu)
	}
}

func eqLM63ThreeSite(p *Params, d *Data, _ *scratch, back []float64) {
	for i, a := range d.active.Data {
		if !a {
			continue
		}
		r20, nu := p.R20A.Data[i], d.cpmgFrq.Data[i]
		if nu == 0 {
			back[i] = r20
			continue
		}
		back[i] = r20 + lm63Term(p.PhiExB.Data[i], p.KB, nu) + lm63Term(p.PhiExC.Data[i], p.KC, nu)
	}
}

// cr72 is the Carver–Richards equation for one point.
func cr72(r20a, r20b, pA, dw, kex, nu float64) float64 {
	if nu == 0 || dw == 0 || kex == 0 || pA == 1 {
		return r20a
	}
	pB := 1 - pA
	kAB, kBA := pB*kex, pA*kex
	dw2 := dw * dw

	fact := r20a - r20b - kBA + kAB
	zeta := 2 * dw * fact
	psi := fact*fact - dw2 + 4*pA*pB*kex*kex
	root := math.Sqrt(psi*psi + zeta*zeta)

	dPart := (0.5*psi + dw2) / root
	dPos := 0.5 + dPart
	dNeg := -0.5 + dPart

	const etaScale = 0.35355339059327373 // 2^-1.5
	etaPos := etaScale * math.Sqrt(psi+root) / nu
	etaNeg := etaScale * math.Sqrt(-psi+root) / nu

	var ac float64
	if etaPos > coshLimit {
		ac = etaPos + math.Log(dPos)
	} else {
		ac = math.Acosh(dPos*math.Cosh(etaPos) - dNeg*math.Cos(etaNeg))
	}
	return 0.5*(r20a+r20b+kex) - nu*ac
}

func eqCR72(p *Params, d *Data, _ *scratch, back []float64) {
	for i, a := range d.active.Data {
		if a {
			back[i] = cr72(p.R20A.Data[i], p.R20B.Data[i], p.PA, p.Dw.Data[i], p.Kex, d.cpmgFrq.Data[i])
		}
	}
}

func eqIT99(p *Params, d *Data, _ *scratch, back []float64) {
	pA, pB, tex := p.PA, 1-p.PA, p.Tex
	for i, a := range d.active.Data {
		if !a {
			continue
		}
		r20, dw, tau := p.R20A.Data[i], p.Dw.Data[i], d.tau.Data[i]
		if d.cpmgFrq.Data[i] == 0 || dw == 0 || tex == 0 || pA == 1 {
			back[i] = r20
			continue
		}
		dw2 := dw * dw
		pa2dw2 := pA * pA * dw2
		tau2 := tau * tau
		numer := pA * pB * dw2 * tex
		denom := 1 + tex*tex*math.Sqrt(pa2dw2*pa2dw2+144/(tau2*tau2))
		back[i] = r20 + numer/denom
	}
}

func eqTSMFK01(p *Params, d *Data, _ *scratch, back []float64) {
	k := p.KAB
	for i, a := range d.active.Data {
		if !a {
			continue
		}
		r20, dw := p.R20A.Data[i], p.Dw.Data[i]
		if d.cpmgFrq.Data[i] == 0 || dw == 0 || k == 0 {
			back[i] = r20
			continue
		}
		x := dw * d.tau.Data[i]
		var sinc float64
		if math.Abs(x) < 1e-6 {
			sinc = 1 - x*x/6
		} else {
			sinc = math.Sin(x) / x
		}
		back[i] = r20 + k - k*sinc
	}
}

// degenerateRel is the relative eigenvalue separation below which the
// Cayley–Hamilton power uses its repeated-root limit.
const degenerateRel = 1e-8

func eqB14(p *Params, d *Data, _ *scratch, back []float64) {
	pA := p.PA
	pB := 1 - pA
	kAB, kBA := pB*p.Kex, pA*p.Kex
	for i, a := range d.active.Data {
		if !a {
			continue
		}
		r20a, r20b, dw := p.R20A.Data[i], p.R20B.Data[i], p.Dw.Data[i]
		n := d.power[i]
		if d.cpmgFrq.Data[i] == 0 || n == 0 || dw == 0 || p.Kex == 0 || pA == 1 {
			back[i] = r20a
			continue
		}
		tau := complex(d.tau.Data[i], 0)
		g := [4]complex128{
			complex(-r20a-kAB, 0), complex(kBA, 0),
			complex(kAB, 0), complex(-r20b-kBA, -dw),
		}
		var half, conj2 [4]complex128
		for k, v := range g {
			half[k] = v * tau
			conj2[k] = complex(real(v), -imag(v)) * 2 * tau
		}
		eA := expm.Exp2(half)
		eC := expm.Exp2(conj2)
		echo := mul2(mul2(eA, eC), eA)
		pn := pow2(echo, n)
		mx := real(pn[0]*complex(pA, 0)+pn[1]*complex(pB, 0)) / pA
		back[i] = rateFromMx(mx, d.invRelaxTime.Data[i])
	}
}

func mul2(a, b [4]complex128) [4]complex128 {
	return [4]complex128{
		a[0]*b[0] + a[1]*b[2], a[0]*b[1] + a[1]*b[3],
		a[2]*b[0] + a[3]*b[2], a[2]*b[1] + a[3]*b[3],
	}
}

// pow2 raises a 2×2 matrix to the n-th power through Cayley–Hamilton:
// Mⁿ = α·M + β·I with μ1, μ2 the eigenvalues of M.
func pow2(m [4]complex128, n int) [4]complex128 {
	if n == 0 {
		return [4]complex128{1, 0, 0, 1}
	}
	if n == 1 {
		return m
	}
	tr := m[0] + m[3]
	det := m[0]*m[3] - m[1]*m[2]
	disc := cmplx.Sqrt(tr*tr - 4*det)
	mu1 := (tr + disc) / 2
	mu2 := (tr - disc) / 2
	nc := complex(float64(n), 0)

	var alpha, beta complex128
	scale := max(cmplx.Abs(mu1), cmplx.Abs(mu2))
	if scale == 0 {
		return [4]complex128{}
	}
	if cmplx.Abs(mu1-mu2) <= degenerateRel*scale {
		mu := (mu1 + mu2) / 2
		alpha = nc * cpowInt(mu, n-1)
		beta = -(nc - 1) * cpowInt(mu, n)
	} else {
		p1, p2 := cpowInt(mu1, n-1), cpowInt(mu2, n-1)
		alpha = (p1*mu1 - p2*mu2) / (mu1 - mu2)
		beta = -mu1 * mu2 * (p1 - p2) / (mu1 - mu2)
	}
	return [4]complex128{
		alpha*m[0] + beta, alpha * m[1],
		alpha * m[2], alpha*m[3] + beta,
	}
}

// cpowInt is z^n for n ≥ 0 by repeated squaring.
func cpowInt(z complex128, n int) complex128 {
	out := complex(1, 0)
	for n > 0 {
		if n&1 == 1 {
			out *= z
		}
		z *= z
		n >>= 1
	}
	return out
}
