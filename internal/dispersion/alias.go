package dispersion

// shiftMix gives the effective heteronuclear and proton shift differences
// seen by an experiment as linear combinations of dw and dwH.
type shiftMix struct {
	dwFromDw, dwFromDwH   float64
	dwHFromDw, dwHFromDwH float64
}

var shiftAliases = [...]shiftMix{
	ExpCPMGSQ:       {dwFromDw: 1},
	ExpCPMGProtonSQ: {dwFromDwH: 1},
	ExpCPMGDQ:       {dwFromDw: 1, dwFromDwH: 1},
	ExpCPMGZQ:       {dwFromDw: 1, dwFromDwH: -1},
	ExpCPMGMQ:       {dwFromDw: 1, dwHFromDwH: 1},
	ExpCPMGProtonMQ: {dwFromDwH: 1, dwHFromDw: 1},
	ExpR1rho:        {dwFromDw: 1},
}

// aliasShifts converts dw and dwH (ppm) into the effective pair in rad/s for
// an experiment of type t, with frqX and frqH the heteronuclear and proton
// ppm → rad/s factors.
func aliasShifts(t ExpType, dw, dwH, frqX, frqH float64) (effDw, effDwH float64) {
	a := shiftAliases[t]
	x, h := dw*frqX, dwH*frqH
	return a.dwFromDw*x + a.dwFromDwH*h, a.dwHFromDw*x + a.dwHFromDwH*h
}
