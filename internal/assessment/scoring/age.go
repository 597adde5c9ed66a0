package scoring

import "math"

const (
	referenceAge = 25.0
	minNormAge   = 6.0
	maxNormAge   = 90.0
)

// AgeAdjustment returns the amount subtracted from a domain theta for a
// respondent of the given age. Gs declines earliest, Gc rises then
// plateaus, the rest decline mildly.
func AgeAdjustment(domain string, ageYears float64) float64 {
	if math.IsNaN(ageYears) {
		return 0
	}
	t := math.Max(minNormAge, math.Min(maxNormAge, ageYears)) - referenceAge
	switch domain {
	case "Gs":
		return -0.010 * t
	case "Gwm":
		return -0.006 * t
	case "Gc":
		return 0.006*t - 0.00012*t*t
	case "Gf", "Gv":
		return -0.004 * t
	case "Gq":
		return -0.003 * t
	}
	return 0
}

// AdjustTheta applies AgeAdjustment; a nil age leaves theta unchanged.
func AdjustTheta(domain string, theta float64, ageYears *float64) float64 {
	if ageYears == nil {
		return theta
	}
	return theta - AgeAdjustment(domain, *ageYears)
}
