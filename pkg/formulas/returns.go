package formulas

import (
	"math"
)

// CalculateSimpleReturn calculates the percentage change between two values
//
// Simple Return Formula:
//
//	Return = (End - Start) / Start
//
// A zero start value returns 0 rather than dividing by zero.
func CalculateSimpleReturn(start, end float64) float64 {
	if start == 0 {
		return 0
	}
	return (end - start) / start
}

// CalculateCAGR calculates the compound annual growth rate
//
// CAGR Formula:
//
//	CAGR = (End / Start)^(1 / Years) - 1
//
// Args:
//
//	start: Starting value
//	end: Ending value
//	years: Holding period in years (fractional allowed)
//
// Returns:
//
//	Compound annual growth rate, or 0 when start or years is not positive
func CalculateCAGR(start, end, years float64) float64 {
	if start <= 0 || years <= 0 {
		return 0
	}
	return math.Pow(end/start, 1/years) - 1
}

// CalculateTimeWeightedReturn compounds sub-period returns into one return
//
// TWR Formula:
//
//	TWR = (1+r1) * (1+r2) * ... * (1+rn) - 1
//
// Empty input returns 0.
func CalculateTimeWeightedReturn(periodReturns []float64) float64 {
	if len(periodReturns) == 0 {
		return 0
	}

	compounded := 1.0
	for _, r := range periodReturns {
		compounded *= 1 + r
	}
	return compounded - 1
}

// CalculateRollingReturns calculates the simple return over every window of
// the given size in a value series. Output length is len(values) - window;
// insufficient data yields an empty slice.
func CalculateRollingReturns(values []float64, window int) []float64 {
	if window <= 0 || len(values) <= window {
		return []float64{}
	}

	returns := make([]float64, len(values)-window)
	for i := 0; i < len(values)-window; i++ {
		returns[i] = CalculateSimpleReturn(values[i], values[i+window])
	}
	return returns
}

// CalculateCumulativeReturns calculates the running compounded return after
// each sub-period, one output per input
func CalculateCumulativeReturns(periodReturns []float64) []float64 {
	cumulative := make([]float64, len(periodReturns))
	compounded := 1.0
	for i, r := range periodReturns {
		compounded *= 1 + r
		cumulative[i] = compounded - 1
	}
	return cumulative
}

// CalculateAnnualizedReturn annualizes a total return earned over a number
// of calendar days
//
// Annualization Formula:
//
//	Annualized = (1 + Total)^(365.25 / Days) - 1
//
// Returns 0 when days is not positive.
func CalculateAnnualizedReturn(totalReturn float64, days int) float64 {
	if days <= 0 {
		return 0
	}
	return math.Pow(1+totalReturn, 365.25/float64(days)) - 1
}

// CalculateGeometricMeanReturn calculates the geometric mean of (1+r) minus 1.
// Returns 0 on empty input or when compounding crosses zero.
func CalculateGeometricMeanReturn(periodReturns []float64) float64 {
	if len(periodReturns) == 0 {
		return 0
	}

	compounded := 1.0
	for _, r := range periodReturns {
		compounded *= 1 + r
	}
	if compounded <= 0 {
		return 0
	}
	return math.Pow(compounded, 1/float64(len(periodReturns))) - 1
}

// CalculateRealReturn adjusts a nominal return for inflation
//
// Fisher Formula:
//
//	Real = (1 + Nominal) / (1 + Inflation) - 1
func CalculateRealReturn(nominal, inflation float64) float64 {
	if inflation == -1 {
		return 0
	}
	return (1+nominal)/(1+inflation) - 1
}

// CalculateExcessReturn calculates the portfolio return above a benchmark
func CalculateExcessReturn(portfolio, benchmark float64) float64 {
	return portfolio - benchmark
}
