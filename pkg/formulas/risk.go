package formulas

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// CalculateHistoricalVaR calculates value-at-risk from the empirical return
// distribution
//
// Historical VaR Formula:
//
//	VaR(c) = -Quantile(returns, 1-c)
//
// Args:
//
//	returns: Array of periodic returns
//	confidence: Confidence level as decimal (e.g. 0.95 for 95%)
//
// Returns:
//
//	Loss magnitude as a positive number, or 0 on empty input or when the
//	tail quantile is a gain
func CalculateHistoricalVaR(returns []float64, confidence float64) float64 {
	if len(returns) == 0 {
		return 0
	}

	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	idx := int((1 - confidence) * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	if idx < 0 {
		idx = 0
	}

	return math.Max(0, -sorted[idx])
}

// CalculateMaximumDrawdown calculates the largest peak-to-trough decline in
// a value series
//
// Drawdown Formula:
//
//	Drawdown = (Peak - Trough) / Peak
//
// The peak is a running maximum, so every peak/trough pair in the series is
// considered, not just the first. Returns the largest drawdown as a positive
// fraction; a constant or rising series returns 0.
func CalculateMaximumDrawdown(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}

	maxDrawdown := 0.0
	peak := values[0]

	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			drawdown := (peak - v) / peak
			if drawdown > maxDrawdown {
				maxDrawdown = drawdown
			}
		}
	}

	return maxDrawdown
}

// CalculateDownsideDeviation calculates the standard deviation of returns
// below a minimum acceptable return. Returns 0 when no return falls below
// the MAR.
func CalculateDownsideDeviation(returns []float64, mar float64) float64 {
	var squaredSum float64
	count := 0

	for _, r := range returns {
		if r < mar {
			deviation := r - mar
			squaredSum += deviation * deviation
			count++
		}
	}

	if count == 0 {
		return 0
	}
	return math.Sqrt(squaredSum / float64(count))
}

// CalculateSortinoRatio calculates the mean return per unit of downside risk
//
// Sortino Formula:
//
//	Sortino = Mean(returns) / DownsideDeviation(returns, MAR)
//
// Returns:
//
//	Sortino ratio, or nil when the downside deviation is zero (the ratio is
//	undefined, never infinity)
func CalculateSortinoRatio(returns []float64, mar float64) *float64 {
	downside := CalculateDownsideDeviation(returns, mar)
	if downside == 0 {
		return nil
	}

	sortino := Mean(returns) / downside
	return &sortino
}

// CalculateCalmarRatio calculates annualized return per unit of maximum
// drawdown. Returns nil when the drawdown is zero.
func CalculateCalmarRatio(annualizedReturn, maxDrawdown float64) *float64 {
	if maxDrawdown == 0 {
		return nil
	}

	calmar := annualizedReturn / maxDrawdown
	return &calmar
}

// CalculateSkewness calculates the third standardized sample moment.
// Fewer than 3 observations returns 0.
func CalculateSkewness(returns []float64) float64 {
	if len(returns) < 3 {
		return 0
	}
	return stat.Skew(returns, nil)
}

// CalculateKurtosis calculates the excess kurtosis (fourth standardized
// sample moment minus 3). Fewer than 3 observations returns 0.
func CalculateKurtosis(returns []float64) float64 {
	if len(returns) < 3 {
		return 0
	}
	return stat.ExKurtosis(returns, nil)
}

// CalculateRollingVolatility calculates the sample standard deviation over
// every full window of a return series. Output length is
// len(returns) - window + 1; insufficient data yields an empty slice, never
// a partially filled window.
func CalculateRollingVolatility(returns []float64, window int) []float64 {
	if window <= 0 || len(returns) < window {
		return []float64{}
	}

	volatility := make([]float64, len(returns)-window+1)
	for i := range volatility {
		volatility[i] = StdDev(returns[i : i+window])
	}
	return volatility
}
