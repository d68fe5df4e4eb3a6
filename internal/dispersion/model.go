package dispersion

import (
	"fmt"
	"slices"
)

// Model is the closed set of dispersion models the evaluator can compute.
type Model int

const (
	ModelNoRex Model = iota
	ModelLM63
	ModelLM63ThreeSite
	ModelCR72
	ModelCR72Full
	ModelIT99
	ModelTSMFK01
	ModelB14
	ModelB14Full
	ModelNSCPMG2SiteExpanded
	ModelNSCPMG2Site3D
	ModelNSCPMG2Site3DFull
	ModelNSCPMG2SiteStar
	ModelNSCPMG2SiteStarFull
	ModelMMQCR72
	ModelNSMMQ2Site
	ModelNSMMQ3SiteLinear
	ModelNSMMQ3Site
	ModelM61
	ModelM61Skew
	ModelDPL94
	ModelTP02
	ModelTAP03
	ModelMP05
	ModelNSR1rho2Site
	ModelNSR1rho3SiteLinear
	ModelNSR1rho3Site
	numModels
)

type expClass int

const (
	classAny expClass = iota
	classSQCPMG
	classCPMG
	classR1rho
)

func (c expClass) String() string {
	switch c {
	case classSQCPMG:
		return "SQ CPMG"
	case classCPMG:
		return "CPMG"
	case classR1rho:
		return "R1rho"
	default:
		return "any"
	}
}

func (c expClass) accepts(t ExpType) bool {
	switch c {
	case classSQCPMG:
		return t == ExpCPMGSQ
	case classCPMG:
		return t.IsCPMG()
	case classR1rho:
		return t == ExpR1rho
	default:
		return true
	}
}

// equationFunc writes back-calculated values for every active entry of d.
type equationFunc func(p *Params, d *Data, s *scratch, back []float64)

type variant struct {
	name    string
	desc    string
	year    int
	sites   int
	params  []string
	class   expClass
	r1      bool // R1 enters the equation
	offRes  bool // needs chemical shifts and spin-lock offsets
	numeric bool
	eq      equationFunc
}

var (
	paramsR2DwPAKex     = []string{"r2", "dw", "pA", "kex"}
	paramsR2FullDwPAKex = []string{"r2a", "r2b", "dw", "pA", "kex"}
	paramsR2PhiExKex    = []string{"r2", "phi_ex", "kex"}
	params3Site         = []string{"r2", "dw_AB", "dw_BC", "pA", "kex_AB", "pB", "kex_BC", "kex_AC"}
	params3SiteLinear   = []string{"r2", "dw_AB", "dw_BC", "pA", "kex_AB", "pB", "kex_BC"}
	paramsMMQ3Site      = []string{"r2", "dw_AB", "dw_BC", "dwH_AB", "dwH_BC", "pA", "kex_AB", "pB", "kex_BC", "kex_AC"}
	paramsMMQ3SiteLin   = []string{"r2", "dw_AB", "dw_BC", "dwH_AB", "dwH_BC", "pA", "kex_AB", "pB", "kex_BC"}
)

var variants = [numModels]variant{
	ModelNoRex: {
		name: "No Rex", desc: "No chemical exchange relaxation", sites: 1,
		params: []string{"r2"}, class: classAny, eq: eqNoRex,
	},
	ModelLM63: {
		name: "LM63", desc: "Luz and Meiboom fast exchange", year: 1963, sites: 2,
		params: paramsR2PhiExKex, class: classSQCPMG, eq: eqLM63,
	},
	ModelLM63ThreeSite: {
		name: "LM63 3-site", desc: "Luz and Meiboom fast exchange, 3 sites", year: 1963, sites: 3,
		params: []string{"r2", "phi_ex_B", "phi_ex_C", "kB", "kC"}, class: classSQCPMG, eq: eqLM63ThreeSite,
	},
	ModelCR72: {
		name: "CR72", desc: "Carver and Richards all time scales", year: 1972, sites: 2,
		params: paramsR2DwPAKex, class: classSQCPMG, eq: eqCR72,
	},
	ModelCR72Full: {
		name: "CR72 full", desc: "Carver and Richards with R20A != R20B", year: 1972, sites: 2,
		params: paramsR2FullDwPAKex, class: classSQCPMG, eq: eqCR72,
	},
	ModelIT99: {
		name: "IT99", desc: "Ishima and Torchia all time scales, skewed populations", year: 1999, sites: 2,
		params: []string{"r2", "dw", "pA", "tex"}, class: classSQCPMG, eq: eqIT99,
	},
	ModelTSMFK01: {
		name: "TSMFK01", desc: "Tollinger et al. slow exchange", year: 2001, sites: 2,
		params: []string{"r2a", "dw", "k_AB"}, class: classSQCPMG, eq: eqTSMFK01,
	},
	ModelB14: {
		name: "B14", desc: "Baldwin exact two-site solution", year: 2014, sites: 2,
		params: paramsR2DwPAKex, class: classSQCPMG, eq: eqB14,
	},
	ModelB14Full: {
		name: "B14 full", desc: "Baldwin exact two-site solution with R20A != R20B", year: 2014, sites: 2,
		params: paramsR2FullDwPAKex, class: classSQCPMG, eq: eqB14,
	},
	ModelNSCPMG2SiteExpanded: {
		name: "NS CPMG 2-site expanded", desc: "Numerical two-site solution, expanded symbolic form", year: 2001, sites: 2,
		params: paramsR2DwPAKex, class: classSQCPMG, eq: eqNSCPMGExpanded,
	},
	ModelNSCPMG2Site3D: {
		name: "NS CPMG 2-site 3D", desc: "Numerical two-site Bloch-McConnell, 3D magnetisation", year: 2004, sites: 2,
		params: paramsR2DwPAKex, class: classSQCPMG, numeric: true, eq: eqNSCPMG3D,
	},
	ModelNSCPMG2Site3DFull: {
		name: "NS CPMG 2-site 3D full", desc: "Numerical two-site Bloch-McConnell, 3D magnetisation, R20A != R20B", year: 2004, sites: 2,
		params: paramsR2FullDwPAKex, class: classSQCPMG, numeric: true, eq: eqNSCPMG3D,
	},
	ModelNSCPMG2SiteStar: {
		name: "NS CPMG 2-site star", desc: "Numerical two-site solution, complex conjugate refocusing", year: 2004, sites: 2,
		params: paramsR2DwPAKex, class: classSQCPMG, numeric: true, eq: eqNSCPMGStar,
	},
	ModelNSCPMG2SiteStarFull: {
		name: "NS CPMG 2-site star full", desc: "Numerical two-site solution, complex conjugate refocusing, R20A != R20B", year: 2004, sites: 2,
		params: paramsR2FullDwPAKex, class: classSQCPMG, numeric: true, eq: eqNSCPMGStar,
	},
	ModelMMQCR72: {
		name: "MMQ CR72", desc: "Carver and Richards extended to multiple quantum CPMG", year: 2004, sites: 2,
		params: []string{"r2", "dw", "dwH", "pA", "kex"}, class: classCPMG, eq: eqMMQCR72,
	},
	ModelNSMMQ2Site: {
		name: "NS MMQ 2-site", desc: "Numerical two-site multiple quantum CPMG", year: 2005, sites: 2,
		params: []string{"r2", "dw", "dwH", "pA", "kex"}, class: classCPMG, numeric: true, eq: eqNSMMQ2Site,
	},
	ModelNSMMQ3SiteLinear: {
		name: "NS MMQ 3-site linear", desc: "Numerical three-site linear multiple quantum CPMG", year: 2005, sites: 3,
		params: paramsMMQ3SiteLin, class: classCPMG, numeric: true, eq: eqNSMMQ3Site,
	},
	ModelNSMMQ3Site: {
		name: "NS MMQ 3-site", desc: "Numerical three-site multiple quantum CPMG", year: 2005, sites: 3,
		params: paramsMMQ3Site, class: classCPMG, numeric: true, eq: eqNSMMQ3Site,
	},
	ModelM61: {
		name: "M61", desc: "Meiboom on-resonance fast exchange", year: 1961, sites: 2,
		params: paramsR2PhiExKex, class: classR1rho, eq: eqM61,
	},
	ModelM61Skew: {
		name: "M61 skew", desc: "Meiboom on-resonance, skewed populations", year: 1961, sites: 2,
		params: paramsR2DwPAKex, class: classR1rho, eq: eqM61Skew,
	},
	ModelDPL94: {
		name: "DPL94", desc: "Davis, Perlman and London off-resonance fast exchange", year: 1994, sites: 2,
		params: paramsR2PhiExKex, class: classR1rho, r1: true, offRes: true, eq: eqDPL94,
	},
	ModelTP02: {
		name: "TP02", desc: "Trott and Palmer off-resonance, skewed populations", year: 2002, sites: 2,
		params: paramsR2DwPAKex, class: classR1rho, r1: true, offRes: true, eq: eqTP02,
	},
	ModelTAP03: {
		name: "TAP03", desc: "Trott, Abergel and Palmer off-resonance, all time scales", year: 2003, sites: 2,
		params: paramsR2DwPAKex, class: classR1rho, r1: true, offRes: true, eq: eqTAP03,
	},
	ModelMP05: {
		name: "MP05", desc: "Miloushev and Palmer off-resonance, all time scales", year: 2005, sites: 2,
		params: paramsR2DwPAKex, class: classR1rho, r1: true, offRes: true, eq: eqMP05,
	},
	ModelNSR1rho2Site: {
		name: "NS R1rho 2-site", desc: "Numerical two-site spin-lock Bloch-McConnell", year: 2005, sites: 2,
		params: paramsR2DwPAKex, class: classR1rho, r1: true, offRes: true, numeric: true, eq: eqNSR1rho2Site,
	},
	ModelNSR1rho3SiteLinear: {
		name: "NS R1rho 3-site linear", desc: "Numerical three-site linear spin-lock Bloch-McConnell", year: 2005, sites: 3,
		params: params3SiteLinear, class: classR1rho, r1: true, offRes: true, numeric: true, eq: eqNSR1rho3Site,
	},
	ModelNSR1rho3Site: {
		name: "NS R1rho 3-site", desc: "Numerical three-site spin-lock Bloch-McConnell", year: 2005, sites: 3,
		params: params3Site, class: classR1rho, r1: true, offRes: true, numeric: true, eq: eqNSR1rho3Site,
	},
}

// Info is the static description of a model.
type Info struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Year        int      `json:"year,omitempty"`
	Sites       int      `json:"sites"`
	Params      []string `json:"params"`
	Experiments string   `json:"experiments"`
	UsesR1      bool     `json:"uses_r1"`
	Numeric     bool     `json:"numeric"`
}

func (m Model) valid() bool { return m >= 0 && m < numModels }

func (m Model) String() string {
	if !m.valid() {
		return fmt.Sprintf("Model(%d)", int(m))
	}
	return variants[m].name
}

// Info returns the static description of m.
func (m Model) Info() Info {
	v := variants[m]
	return Info{
		Name:        v.name,
		Description: v.desc,
		Year:        v.year,
		Sites:       v.sites,
		Params:      slices.Clone(v.params),
		Experiments: v.class.String(),
		UsesR1:      v.r1,
		Numeric:     v.numeric,
	}
}

// Supports reports whether m can be evaluated on an experiment of type t.
func (m Model) Supports(t ExpType) bool {
	return m.valid() && variants[m].class.accepts(t)
}

// Lookup returns the model registered under name.
func Lookup(name string) (Model, error) {
	for m := range numModels {
		if variants[m].name == name {
			return m, nil
		}
	}
	return 0, newInvalidModel(name, "not a registered dispersion model")
}

// Models lists every registered model in registry order.
func Models() []Model {
	out := make([]Model, numModels)
	for i := range out {
		out[i] = Model(i)
	}
	return out
}
