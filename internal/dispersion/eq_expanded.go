package dispersion

import (
	"math"
	"math/cmplx"
)

func eqNSCPMGExpanded(p *Params, d *Data, _ *scratch, back []float64) {
	pA := p.PA
	ka, kb := (1-pA)*p.Kex, pA*p.Kex
	for i, a := range d.active.Data {
		if !a {
			continue
		}
		r20, dw := p.R20A.Data[i], p.Dw.Data[i]
		n := d.power[i]
		if d.cpmgFrq.Data[i] == 0 || n == 0 || dw == 0 || p.Kex == 0 || pA == 1 {
			back[i] = r20
			continue
		}
		intensity := real(expandedEcho(ka, kb, dw, d.tau.Data[i], n)) * math.Exp(-d.relaxTime.Data[i]*r20)
		back[i] = rateFromMx(intensity/pA, d.invRelaxTime.Data[i])
	}
}

// expandedEcho is the machine-expanded closed form of the transverse
// magnetisation left after n refocusing echoes of delay tcp in a two-site
// system with forward rate ka and reverse rate kb. Relaxation is factored
// out by the caller.
func expandedEcho(ka, kb, dw, tcp float64, n int) complex128 {
	Ka, Kb := complex(ka, 0), complex(kb, 0)
	t4 := complex(0, dw)
	t5 := Kb * Kb
	t8 := 2 * 1i * Kb * complex(dw, 0)
	t10 := 2 * Kb * Ka
	t11 := complex(dw*dw, 0)
	t14 := 2 * 1i * Ka * complex(dw, 0)
	t15 := Ka * Ka
	t17 := cmplx.Sqrt(t5 - t8 + t10 - t11 + t14 + t15)
	half := complex(tcp/2, 0)
	full := complex(tcp, 0)
	t21 := cmplx.Exp((-Kb + t4 - Ka + t17) * half)
	t22 := 1 / t17
	t28 := cmplx.Exp((-Kb + t4 - Ka - t17) * half)
	t31 := t21*t22*Ka - t28*t22*Ka
	t33 := cmplx.Sqrt(t5 + t8 + t10 - t11 - t14 + t15)
	t34 := Kb + t4 - Ka + t33
	t37 := cmplx.Exp((-Kb - t4 - Ka + t33) * full)
	t39 := 1 / t33
	t41 := Kb + t4 - Ka - t33
	t44 := cmplx.Exp((-Kb - t4 - Ka - t33) * full)
	t47 := t34*t37*t39/2 - t41*t44*t39/2
	t49 := Kb - t4 - Ka - t17
	t51 := t21 * t49 * t22
	t52 := Kb - t4 - Ka + t17
	t54 := t28 * t52 * t22
	t55 := -t51 + t54
	t60 := t37*t39*Ka - t44*t39*Ka
	t62 := t31*t47 + t55*t60/2
	t63 := 1 / Ka
	t68 := -t52*t63*t51/2 + t49*t63*t54/2
	t69 := t62 * t68 / 2
	t72 := t37 * t41 * t39
	t76 := t44 * t34 * t39
	t78 := -t34*t63*t72/2 + t41*t63*t76/2
	t80 := -t72 + t76
	t82 := t31*t78/2 + t55*t80/4
	t83 := t82 * t55 / 2
	t88 := t52*t21*t22/2 - t49*t28*t22/2
	t91 := t88*t47 + t68*t60/2
	t92 := t91 * t88
	t95 := t88*t78/2 + t68*t80/4
	t96 := t95 * t31
	t97 := t69 + t83
	t98 := t97 * t97
	t99 := t92 + t96
	t102 := t99 * t99
	t108 := t62*t88 + t82*t31
	t112 := cmplx.Sqrt(t98 - 2*t99*t97 + t102 + 4*(t91*t68/2+t95*t55/2)*t108)
	t113 := t69 + t83 - t92 - t96 - t112
	t116 := cpowInt(t69/2+t83/2+t92/2+t96/2+t112/2, n)
	t118 := 1 / t112
	t120 := t69 + t83 - t92 - t96 + t112
	t122 := cpowInt(t69/2+t83/2+t92/2+t96/2-t112/2, n)
	t127 := 1 / t108
	return 1 / (Ka + Kb) * ((-t113*t116*t118/2+t120*t122*t118/2)*Kb +
		(-t113*t127*t116*t120*t118/2+t120*t127*t122*t113*t118/2)*Ka/2)
}
