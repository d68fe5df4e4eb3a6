package dispersion

import (
	"slices"

	"github.com/samcharles93/relaxdisp/internal/tensor"
)

// Params is the decoded parameter set, broadcast to the data shape. Shift
// differences are in rad/s and already aliased for each experiment type;
// phi_ex values are in rad²/s².
type Params struct {
	R1   tensor.Tensor
	R20A tensor.Tensor
	R20B tensor.Tensor
	R20C tensor.Tensor

	Dw    tensor.Tensor // dw or dw_AB
	DwH   tensor.Tensor // dwH or dwH_AB
	DwBC  tensor.Tensor
	DwHBC tensor.Tensor

	PhiEx  tensor.Tensor
	PhiExB tensor.Tensor
	PhiExC tensor.Tensor

	PA, PB                   float64
	Kex, KexAB, KexBC, KexAC float64
	KAB, Tex, KB, KC         float64
}

// decodeOp writes one parameter block into p.
type decodeOp func(x []float64, p *Params)

// newDecoder allocates the tensors v needs and returns the per-block decode
// steps for layout l. Everything model specific is resolved here.
func newDecoder(v *variant, l Layout, d *Data, r1Fit bool) (*Params, []decodeOp) {
	s := d.shape
	p := &Params{}
	has := func(name string) bool { return slices.Contains(v.params, name) }
	full := has("r2b")

	p.R20A = tensor.NewTensor(s)
	p.R20B = tensor.NewTensor(s)
	if v.sites == 3 {
		p.R20C = tensor.NewTensor(s)
	}
	if v.r1 && !r1Fit {
		p.R1 = d.r1
	} else if v.r1 {
		p.R1 = tensor.NewTensor(s)
	}

	var ops []decodeOp
	for _, b := range l.blocks {
		switch b.Name {
		case "r1":
			ops = append(ops, func(x []float64, p *Params) {
				blk := x[b.Start:b.End]
				for e := range s.NE {
					for si := range s.NS {
						for m := range s.NM {
							p.R1.FillBlock(e, si, m, blk[l.R1Index(si, m)])
						}
					}
				}
			})
		case "r2", "r2a":
			targets := []tensor.Tensor{p.R20A}
			if !full {
				targets = append(targets, p.R20B)
			}
			if v.sites == 3 {
				targets = append(targets, p.R20C)
			}
			ops = append(ops, rateOp(b, l, s, targets))
		case "r2b":
			ops = append(ops, rateOp(b, l, s, []tensor.Tensor{p.R20B}))
		case "phi_ex":
			p.PhiEx = tensor.NewTensor(s)
			ops = append(ops, phiOp(b, d, p.PhiEx))
		case "phi_ex_B":
			p.PhiExB = tensor.NewTensor(s)
			ops = append(ops, phiOp(b, d, p.PhiExB))
		case "phi_ex_C":
			p.PhiExC = tensor.NewTensor(s)
			ops = append(ops, phiOp(b, d, p.PhiExC))
		case "dw", "dw_AB":
			p.Dw, p.DwH = tensor.NewTensor(s), tensor.NewTensor(s)
			proton := "dwH"
			if b.Name == "dw_AB" {
				proton = "dwH_AB"
			}
			hb, _ := l.Block(proton)
			ops = append(ops, shiftOp(b, hb, d, p.Dw, p.DwH))
		case "dw_BC":
			p.DwBC, p.DwHBC = tensor.NewTensor(s), tensor.NewTensor(s)
			hb, _ := l.Block("dwH_BC")
			ops = append(ops, shiftOp(b, hb, d, p.DwBC, p.DwHBC))
		case "dwH", "dwH_AB", "dwH_BC":
			// folded into the matching dw block
		default:
			ops = append(ops, scalarOp(b, scalarField(p, b.Name)))
		}
	}
	return p, ops
}

func rateOp(b Block, l Layout, s tensor.Shape, targets []tensor.Tensor) decodeOp {
	return func(x []float64, _ *Params) {
		blk := x[b.Start:b.End]
		for e := range s.NE {
			for si := range s.NS {
				for m := range s.NM {
					v := blk[l.RateIndex(si, e, m)]
					for _, t := range targets {
						t.FillBlock(e, si, m, v)
					}
				}
			}
		}
	}
}

func phiOp(b Block, d *Data, dst tensor.Tensor) decodeOp {
	s := d.shape
	return func(x []float64, _ *Params) {
		blk := x[b.Start:b.End]
		for e := range s.NE {
			for si := range s.NS {
				for m := range s.NM {
					frq := d.frqX[(e*s.NS+si)*s.NM+m]
					dst.FillBlock(e, si, m, blk[si]*frq*frq)
				}
			}
		}
	}
}

// shiftOp decodes a heteronuclear shift block and its optional proton
// partner (hb is the zero Block when the model has none) through the
// experiment aliasing table.
func shiftOp(b, hb Block, d *Data, dw, dwH tensor.Tensor) decodeOp {
	s := d.shape
	hasProton := hb.Len() > 0
	return func(x []float64, _ *Params) {
		blk := x[b.Start:b.End]
		var hblk []float64
		if hasProton {
			hblk = x[hb.Start:hb.End]
		}
		for e, t := range d.expTypes {
			for si := range s.NS {
				var h float64
				if hasProton {
					h = hblk[si]
				}
				for m := range s.NM {
					esm := (e*s.NS+si)*s.NM + m
					effDw, effDwH := aliasShifts(t, blk[si], h, d.frqX[esm], d.frqH[esm])
					dw.FillBlock(e, si, m, effDw)
					dwH.FillBlock(e, si, m, effDwH)
				}
			}
		}
	}
}

func scalarOp(b Block, dst *float64) decodeOp {
	return func(x []float64, _ *Params) {
		*dst = x[b.Start]
	}
}

func scalarField(p *Params, name string) *float64 {
	switch name {
	case "pA":
		return &p.PA
	case "pB":
		return &p.PB
	case "kex":
		return &p.Kex
	case "kex_AB":
		return &p.KexAB
	case "kex_BC":
		return &p.KexBC
	case "kex_AC":
		return &p.KexAC
	case "k_AB":
		return &p.KAB
	case "tex":
		return &p.Tex
	case "kB":
		return &p.KB
	case "kC":
		return &p.KC
	}
	panic("dispersion: no scalar field for parameter " + name)
}
