package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// ReturnStats summarizes a daily value series.
type ReturnStats struct {
	MeanDailyReturn      float64 `json:"mean_daily_return"`
	AnnualizedVolatility float64 `json:"annualized_volatility"`
	TotalReturn          float64 `json:"total_return"`
}

// CalculateReturns converts a value series into simple periodic returns.
// Zero values are skipped to avoid division by zero (an account that held
// no cash on a day simply contributes no return observation).
func CalculateReturns(values []float64) []float64 {
	returns := make([]float64, 0, len(values))
	for i := 1; i < len(values); i++ {
		if values[i-1] == 0 {
			continue
		}
		returns = append(returns, (values[i]-values[i-1])/values[i-1])
	}
	return returns
}

// CalculateReturnStats computes summary statistics over a daily value series.
// Returns nil when there are not enough observations.
func CalculateReturnStats(values []float64) *ReturnStats {
	returns := CalculateReturns(values)
	if len(returns) < 2 {
		return nil
	}

	mean := stat.Mean(returns, nil)
	stdDev := stat.StdDev(returns, nil)

	totalReturn := 0.0
	if values[0] != 0 {
		totalReturn = (values[len(values)-1] - values[0]) / values[0]
	}

	return &ReturnStats{
		MeanDailyReturn:      mean,
		AnnualizedVolatility: stdDev * math.Sqrt(365),
		TotalReturn:          totalReturn,
	}
}
