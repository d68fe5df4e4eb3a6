// Package nucleus holds gyromagnetic ratios used to convert spectrometer
// proton frequencies into the Larmor frequency of the observed nucleus.
package nucleus

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
)

// ErrUnknownIsotope is returned for isotopes missing from a Registry.
var ErrUnknownIsotope = errors.New("unknown isotope")

// Gyromagnetic ratios in rad·s⁻¹·T⁻¹.
const (
	Gamma1H  = 26.7522212e7
	Gamma13C = 6.728284e7
	Gamma15N = -2.7126e7
	Gamma19F = 25.18148e7
	Gamma31P = 10.8394e7
)

// Registry is an immutable isotope → gyromagnetic ratio table.
type Registry struct {
	gamma map[string]float64
}

// NewRegistry copies ratios into a new registry. 1H is always present.
func NewRegistry(ratios map[string]float64) Registry {
	g := make(map[string]float64, len(ratios)+1)
	maps.Copy(g, ratios)
	if _, ok := g["1H"]; !ok {
		g["1H"] = Gamma1H
	}
	return Registry{gamma: g}
}

// Default returns the registry of the common biomolecular isotopes.
func Default() Registry {
	return NewRegistry(map[string]float64{
		"1H":  Gamma1H,
		"13C": Gamma13C,
		"15N": Gamma15N,
		"19F": Gamma19F,
		"31P": Gamma31P,
	})
}

// Gamma returns the gyromagnetic ratio of isotope.
func (r Registry) Gamma(isotope string) (float64, error) {
	g, ok := r.gamma[isotope]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownIsotope, isotope)
	}
	return g, nil
}

// Isotopes lists the registered isotope names in sorted order.
func (r Registry) Isotopes() []string {
	return slices.Sorted(maps.Keys(r.gamma))
}

// LarmorHz returns the Larmor frequency magnitude of isotope on a
// spectrometer whose proton frequency is protonHz.
func (r Registry) LarmorHz(isotope string, protonHz float64) (float64, error) {
	g, err := r.Gamma(isotope)
	if err != nil {
		return 0, err
	}
	return protonHz * math.Abs(g/r.gamma["1H"]), nil
}

// PPMToRadPerSec is the factor converting a shift in ppm to rad/s at the
// given Larmor frequency.
func PPMToRadPerSec(larmorHz float64) float64 {
	return 2 * math.Pi * larmorHz * 1e-6
}
