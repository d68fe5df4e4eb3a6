package dispersion

import "math"

const (
	// degenerateValue marks a numeric observable that cannot be converted
	// into a rate (non-positive or NaN magnetisation).
	degenerateValue = 1e99
	// invalidValue replaces any non-finite back-calculated value.
	invalidValue = 1e100
)

// Reduce returns the chi-squared of back against values. Entries flagged in
// missing are first overwritten in back with the measured value, so they
// contribute exactly zero whatever their error.
func Reduce(back, values, errors []float64, missing []bool) float64 {
	for i, m := range missing {
		if m {
			back[i] = values[i]
		}
	}
	return Chi2(values, back, errors)
}

// Chi2 is Σ((values − back)/errors)².
func Chi2(values, back, errors []float64) float64 {
	var sum float64
	for i, v := range values {
		r := (v - back[i]) / errors[i]
		sum += r * r
	}
	return sum
}

// sanitize replaces non-finite values at active entries with invalidValue.
func sanitize(back []float64, active []bool) {
	for i, a := range active {
		if !a {
			continue
		}
		if v := back[i]; math.IsNaN(v) || math.IsInf(v, 0) {
			back[i] = invalidValue
		}
	}
}

// rateFromMx converts a normalised magnetisation into -ln(Mx)/T.
func rateFromMx(mx, invRelaxTime float64) float64 {
	if mx <= 0 || math.IsNaN(mx) {
		return degenerateValue
	}
	return -invRelaxTime * math.Log(mx)
}
