// Package forecast holds the deterministic engine behind the dashboard:
// seasonality, forward projection, horizon slicing, KPI reduction and
// scenario shocks. Every function here is pure; randomness lives in the
// provider package.
package forecast

// PeriodsPerYear is the length of one seasonal cycle.
const PeriodsPerYear = 12

const holidayMultiplier = 1.4

// SeasonalityFactor returns the base demand multiplier for a period index.
// The first half of the year ramps 0.80 to 1.05, the second half ramps
// down from 1.20 to 1.05. Indices outside [0,11] wrap around the cycle.
func SeasonalityFactor(period int) float64 {
	i := normalizePeriod(period)
	if i < 6 {
		return 0.8 + 0.05*float64(i)
	}
	return 1.2 - 0.03*float64(i-6)
}

// HolidayMultiplier is 1.4 for the last two periods of the year and 1 otherwise.
func HolidayMultiplier(period int) float64 {
	if i := normalizePeriod(period); i >= 10 {
		return holidayMultiplier
	}
	return 1
}

// Multiplier combines the base factor with the holiday uplift.
func Multiplier(period int) float64 {
	return SeasonalityFactor(period) * HolidayMultiplier(period)
}

func normalizePeriod(period int) int {
	i := period % PeriodsPerYear
	if i < 0 {
		i += PeriodsPerYear
	}
	return i
}
