package dispersion

import "fmt"

// ExpType identifies the pulse sequence of one experiment.
type ExpType int

const (
	ExpCPMGSQ ExpType = iota
	ExpCPMGZQ
	ExpCPMGDQ
	ExpCPMGMQ
	ExpCPMGProtonSQ
	ExpCPMGProtonMQ
	ExpR1rho
)

var expTypeNames = [...]string{
	ExpCPMGSQ:       "SQ CPMG",
	ExpCPMGZQ:       "ZQ CPMG",
	ExpCPMGDQ:       "DQ CPMG",
	ExpCPMGMQ:       "MQ CPMG",
	ExpCPMGProtonSQ: "1H SQ CPMG",
	ExpCPMGProtonMQ: "1H MQ CPMG",
	ExpR1rho:        "R1rho",
}

func (t ExpType) String() string {
	if t < 0 || int(t) >= len(expTypeNames) {
		return fmt.Sprintf("ExpType(%d)", int(t))
	}
	return expTypeNames[t]
}

// ParseExpType maps a wire name such as "SQ CPMG" to its ExpType.
func ParseExpType(s string) (ExpType, error) {
	for i, name := range expTypeNames {
		if name == s {
			return ExpType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown experiment type %q", s)
}

// Valid reports whether t names a known experiment.
func (t ExpType) Valid() bool {
	return t >= 0 && int(t) < len(expTypeNames)
}

// IsCPMG reports whether t is any of the CPMG variants.
func (t ExpType) IsCPMG() bool {
	return t >= ExpCPMGSQ && t <= ExpCPMGProtonMQ
}

// IsMQ reports whether both heteronuclear and proton shifts evolve
// independently during the CPMG block.
func (t ExpType) IsMQ() bool {
	return t == ExpCPMGMQ || t == ExpCPMGProtonMQ
}

// MarshalText and UnmarshalText let ExpType appear by name in JSON and YAML.
func (t ExpType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *ExpType) UnmarshalText(b []byte) error {
	v, err := ParseExpType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}
