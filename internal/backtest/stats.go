package backtest

import "math"

const tradingDays = 252

// winRate is the fraction of strictly positive returns.
func winRate(returns []float64) float64 {
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

// maxDrawdownPercent treats each trade profit as a sequential return,
// compounds them and reports the deepest fall from a running peak. The curve
// is clamped to the finite range so later falls still register once absolute
// profits have compounded past float64.
func maxDrawdownPercent(returns []float64) float64 {
	var (
		cumulative = 1.0
		peak       = math.Inf(-1)
		worst      = 0.0
	)
	for _, r := range returns {
		cumulative = math.Max(-math.MaxFloat64, math.Min(cumulative*(1+r), math.MaxFloat64))
		peak = math.Max(peak, cumulative)
		if peak <= 0 {
			continue
		}
		if dd := (cumulative - peak) / peak; dd < worst {
			worst = dd
		}
	}
	return -worst * 100
}

// sharpeRatio annualizes the mean and sample standard deviation of returns.
func sharpeRatio(returns []float64) float64 {
	n := len(returns)
	if n < 2 {
		return 0
	}
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(n)
	var sq float64
	for _, r := range returns {
		sq += (r - mean) * (r - mean)
	}
	std := math.Sqrt(sq / float64(n-1))
	if std == 0 || math.IsNaN(std) {
		return 0
	}
	return (mean * tradingDays) / (std * math.Sqrt(tradingDays))
}
