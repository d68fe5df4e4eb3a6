package dispersion

import "math"

func eqM61(p *Params, d *Data, _ *scratch, back []float64) {
	kex := p.Kex
	for i, a := range d.active.Data {
		if !a {
			continue
		}
		r20, phi := p.R20A.Data[i], p.PhiEx.Data[i]
		if phi == 0 || kex == 0 {
			back[i] = r20
			continue
		}
		back[i] = r20 + phi*kex/(kex*kex+d.omega1Sq.Data[i])
	}
}

func eqM61Skew(p *Params, d *Data, _ *scratch, back []float64) {
	pA, kex := p.PA, p.Kex
	pB := 1 - pA
	for i, a := range d.active.Data {
		if !a {
			continue
		}
		r20, dw := p.R20A.Data[i], p.Dw.Data[i]
		if dw == 0 || kex == 0 || pA == 1 {
			back[i] = r20
			continue
		}
		dw2 := dw * dw
		back[i] = r20 + pA*pA*pB*dw2*kex/(kex*kex+pA*pA*dw2+d.omega1Sq.Data[i])
	}
}

func eqDPL94(p *Params, d *Data, _ *scratch, back []float64) {
	kex := p.Kex
	for i, a := range d.active.Data {
		if !a {
			continue
		}
		sin, cos := math.Sincos(d.theta.Data[i])
		sin2 := sin * sin
		r := p.R1.Data[i]*cos*cos + p.R20A.Data[i]*sin2
		if phi := p.PhiEx.Data[i]; phi != 0 && kex != 0 {
			r += sin2 * phi * kex / (kex*kex + d.weff2.Data[i])
		}
		back[i] = r
	}
}

// offResonance is the geometry shared by the two-site off-resonance R1rho
// equations, with every frequency measured from the spin-lock carrier.
type offResonance struct {
	sin2   float64 // sin²θ of the population-averaged effective field
	r1r2   float64 // R1·cos²θ + R20·sin²θ
	waeff2 float64
	wbeff2 float64
	weff2  float64
	numer  float64 // sin²θ·pA·pB·dw²·kex
}

func newOffResonance(p *Params, d *Data, i int) offResonance {
	pA := p.PA
	pB := 1 - pA
	dw := p.Dw.Data[i]
	w1, w1sq := d.omega1.Data[i], d.omega1Sq.Data[i]

	da := d.deltaOmega.Data[i]
	db := da + dw
	dAvg := pA*da + pB*db

	sin, cos := math.Sincos(math.Atan2(w1, dAvg))
	sin2 := sin * sin
	return offResonance{
		sin2:   sin2,
		r1r2:   p.R1.Data[i]*cos*cos + p.R20A.Data[i]*sin2,
		waeff2: w1sq + da*da,
		wbeff2: w1sq + db*db,
		weff2:  w1sq + dAvg*dAvg,
		numer:  sin2 * pA * pB * dw * dw * p.Kex,
	}
}

// offResTrivial reports whether a two-site R1rho entry has no exchange
// contribution.
func offResTrivial(p *Params, i int) bool {
	return p.Dw.Data[i] == 0 || p.Kex == 0 || p.PA == 1
}

func eqTP02(p *Params, d *Data, _ *scratch, back []float64) {
	kex2 := p.Kex * p.Kex
	for i, a := range d.active.Data {
		if !a {
			continue
		}
		g := newOffResonance(p, d, i)
		if offResTrivial(p, i) {
			back[i] = g.r1r2
			continue
		}
		back[i] = g.r1r2 + g.numer/(g.waeff2*g.wbeff2/g.weff2+kex2)
	}
}

func eqTAP03(p *Params, d *Data, _ *scratch, back []float64) {
	kex2 := p.Kex * p.Kex
	for i, a := range d.active.Data {
		if !a {
			continue
		}
		g := newOffResonance(p, d, i)
		if offResTrivial(p, i) {
			back[i] = g.r1r2
			continue
		}
		popDw2 := p.PA * (1 - p.PA) * p.Dw.Data[i] * p.Dw.Data[i]
		denom := g.waeff2*g.wbeff2/g.weff2 + kex2 - 2*g.sin2*popDw2
		back[i] = g.r1r2 + g.numer/denom
	}
}

func eqMP05(p *Params, d *Data, _ *scratch, back []float64) {
	pA := p.PA
	pB := 1 - pA
	kex2 := p.Kex * p.Kex
	for i, a := range d.active.Data {
		if !a {
			continue
		}
		g := newOffResonance(p, d, i)
		if offResTrivial(p, i) {
			back[i] = g.r1r2
			continue
		}
		ab := g.waeff2 * g.wbeff2
		f := 1 + 2*kex2*(pA*g.waeff2+pB*g.wbeff2)/(ab+g.weff2*kex2)
		popDw2 := pA * pB * p.Dw.Data[i] * p.Dw.Data[i]
		denom := ab/g.weff2 + kex2 - g.sin2*popDw2*f
		back[i] = g.r1r2 + g.numer/denom
	}
}
