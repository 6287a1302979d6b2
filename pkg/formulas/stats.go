package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// TradingDaysPerYear is the annualization basis for daily series.
const TradingDaysPerYear = 252

// Mean returns the arithmetic mean, 0 for an empty series
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev returns the sample standard deviation, 0 for an empty series
func StdDev(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// Returns converts a value series into period-over-period returns.
// Returns[i] = (v[i+1] - v[i]) / v[i]; a zero denominator yields a 0 return.
func Returns(values []float64) []float64 {
	if len(values) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] != 0 {
			returns[i-1] = (values[i] - values[i-1]) / values[i-1]
		}
	}
	return returns
}

// TotalReturn returns the overall growth of a value series.
// (last - first) / first, 0 when the series is too short or starts at 0.
func TotalReturn(values []float64) float64 {
	if len(values) < 2 || values[0] == 0 {
		return 0
	}
	return (values[len(values)-1] - values[0]) / values[0]
}

// AnnualizedReturn converts a total return over the given number of days into
// a compound annual rate. Periods under one day return 0.
func AnnualizedReturn(totalReturn float64, days int) float64 {
	if days < 1 {
		return 0
	}
	years := float64(days) / 365.0
	return math.Pow(1+totalReturn, 1/years) - 1
}

// AnnualizedVolatility scales the standard deviation of daily returns by
// sqrt(252)
func AnnualizedVolatility(dailyReturns []float64) float64 {
	if len(dailyReturns) == 0 {
		return 0
	}
	return StdDev(dailyReturns) * math.Sqrt(TradingDaysPerYear)
}

// WinRate returns the fraction of strictly positive returns in a series,
// 0 for an empty series
func WinRate(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	wins := 0
	for _, r := range returns {
		if r > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(returns))
}

// Correlation returns the Pearson correlation of two equal-length series
func Correlation(x, y []float64) float64 {
	if len(x) == 0 || len(x) != len(y) {
		return 0
	}
	return stat.Correlation(x, y, nil)
}

// Covariance returns the sample covariance of two equal-length series
func Covariance(x, y []float64) float64 {
	if len(x) == 0 || len(x) != len(y) {
		return 0
	}
	return stat.Covariance(x, y, nil)
}
