package formulas

import "math"

// SharpeRatio returns the annualized Sharpe ratio of a periodic return
// series: (mean return - periodic risk-free rate) / stddev, scaled by
// sqrt(periodsPerYear). The risk-free rate is annual. Returns nil when the
// series is too short or has zero dispersion.
func SharpeRatio(returns []float64, riskFreeRate float64, periodsPerYear int) *float64 {
	if len(returns) < 2 {
		return nil
	}

	stdDev := StdDev(returns)
	if stdDev == 0 {
		return nil
	}

	periodicRiskFree := riskFreeRate / float64(periodsPerYear)
	sharpe := (Mean(returns) - periodicRiskFree) / stdDev * math.Sqrt(float64(periodsPerYear))
	return &sharpe
}

// SortinoRatio is the downside-deviation variant of the Sharpe ratio: only
// returns below the target rate contribute to the risk term. Both rates are
// annual. Returns nil when the series is too short or never dips below the
// target.
func SortinoRatio(returns []float64, riskFreeRate, targetReturn float64, periodsPerYear int) *float64 {
	if len(returns) < 2 {
		return nil
	}

	periodicTarget := targetReturn / float64(periodsPerYear)

	var sumSquared float64
	count := 0
	for _, r := range returns {
		if r < periodicTarget {
			diff := r - periodicTarget
			sumSquared += diff * diff
			count++
		}
	}
	if count == 0 {
		return nil
	}

	downside := math.Sqrt(sumSquared / float64(count))
	if downside == 0 {
		return nil
	}

	periodicRiskFree := riskFreeRate / float64(periodsPerYear)
	sortino := (Mean(returns) - periodicRiskFree) / downside * math.Sqrt(float64(periodsPerYear))
	return &sortino
}
