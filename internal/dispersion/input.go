package dispersion

// Input is the ragged construction input for one spin cluster.
//
// Curves is indexed [experiment][spin][field][offset]. Offsets and dispersion
// points may differ in count between curves; shorter axes are padded.
type Input struct {
	ExpTypes []ExpType     `json:"exp_types" yaml:"exp_types"`
	Fields   []Field       `json:"fields" yaml:"fields"`
	Spins    []Spin        `json:"spins" yaml:"spins"`
	Curves   [][][][]Curve `json:"curves" yaml:"curves"`
}

// Field is one static magnetic field, identified by its proton frequency.
type Field struct {
	ProtonHz float64 `json:"proton_hz" yaml:"proton_hz"`
}

// Spin describes one observed nucleus.
type Spin struct {
	Name    string `json:"name" yaml:"name"`
	Isotope string `json:"isotope" yaml:"isotope"`
	// ShiftPPM is the observed chemical shift; required by off-resonance
	// R1rho models.
	ShiftPPM *float64 `json:"shift_ppm,omitempty" yaml:"shift_ppm,omitempty"`
	// R1 holds one longitudinal rate per field when it is not fitted.
	R1 []float64 `json:"r1,omitempty" yaml:"r1,omitempty"`
}

// Curve is one dispersion curve at a single experiment, spin, field and
// offset.
type Curve struct {
	OffsetPPM float64 `json:"offset_ppm" yaml:"offset_ppm"`
	// RelaxTime is the constant-time CPMG delay or the spin-lock period in
	// seconds.
	RelaxTime float64 `json:"relax_time" yaml:"relax_time"`
	// Points are CPMG frequencies or spin-lock field strengths in Hz.
	Points  []float64 `json:"points" yaml:"points"`
	Values  []float64 `json:"values" yaml:"values"`
	Errors  []float64 `json:"errors" yaml:"errors"`
	Missing []bool    `json:"missing,omitempty" yaml:"missing,omitempty"`
}
