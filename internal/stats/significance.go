package stats

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// TStatistic converts a correlation coefficient over n samples into the
// t statistic t = r*sqrt((n-2)/(1-r^2)).
func TStatistic(r float64, n int) float64 {
	df := float64(n - 2)
	if df <= 0 {
		return 0
	}
	denom := 1 - r*r
	if denom <= 0 {
		return math.Copysign(math.Inf(1), r)
	}
	return r * math.Sqrt(df/denom)
}

// ApproxTCDF is a closed-form stand-in for the Student's t CDF:
//
//	cdf(t) ≈ 1 - 0.5*(df/(df+t²))^(df/2)   for t >= 0
//
// It is NOT the exact distribution. It is monotone in |t|, equals 0.5 at
// t = 0 and tends to 1 as |t| grows, which is all the callers rely on.
// Accuracy for small df has not been characterised; callers needing
// rigorous p-values must not use it.
func ApproxTCDF(t float64, df float64) float64 {
	if df <= 0 {
		return 0.5
	}
	t = math.Abs(t)
	if math.IsInf(t, 1) {
		return 1
	}
	return 1 - 0.5*math.Pow(df/(df+t*t), df/2)
}

// ApproxPValue returns the approximate two-tailed significance of a
// correlation r measured over n samples, p = 2*(1 - ApproxTCDF(|t|)).
func ApproxPValue(r float64, n int) float64 {
	df := float64(n - 2)
	if df <= 0 {
		return 1
	}
	t := TStatistic(r, n)
	p := 2 * (1 - ApproxTCDF(t, df))
	return Clamp(p, 0, 1)
}

// ZForConfidence returns the two-sided standard normal critical value for
// a confidence level in (0,1), e.g. 0.95 -> 1.96.
func ZForConfidence(level float64) float64 {
	if level <= 0 || level >= 1 {
		level = 0.95
	}
	normal := distuv.Normal{Mu: 0, Sigma: 1}
	return normal.Quantile(1 - (1-level)/2)
}
