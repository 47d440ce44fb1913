// Package stats holds the numeric helpers shared by the analysis components.
//
// Everything here is a pure function of its arguments. Degenerate inputs
// (empty slices, zero variance) yield neutral values instead of errors.
package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Mean returns the arithmetic mean, 0 for an empty slice.
func Mean(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return stat.Mean(x, nil)
}

// MeanStdDev returns the mean and population standard deviation.
func MeanStdDev(x []float64) (float64, float64) {
	if len(x) == 0 {
		return 0, 0
	}
	mean, variance := stat.PopMeanVariance(x, nil)
	if variance < 0 {
		variance = 0
	}
	return mean, math.Sqrt(variance)
}

// Variance returns the population variance.
func Variance(x []float64) float64 {
	_, sd := MeanStdDev(x)
	return sd * sd
}

// Pearson computes the Pearson correlation of two equally long samples.
// Returns 0 when either side has zero variance or the lengths differ.
func Pearson(x, y []float64) float64 {
	n := len(x)
	if n == 0 || n != len(y) {
		return 0
	}

	mx, my := Mean(x), Mean(y)
	var cov, vx, vy float64
	for i := 0; i < n; i++ {
		dx := x[i] - mx
		dy := y[i] - my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}

	if vx == 0 || vy == 0 {
		return 0
	}

	r := cov / math.Sqrt(vx*vy)
	// Guard against rounding pushing |r| past 1
	return math.Max(-1, math.Min(1, r))
}

// LaggedCorrelation correlates cause[t] with effect[t+lag].
// Returns the coefficient and the number of aligned samples used.
func LaggedCorrelation(cause, effect []float64, lag int) (float64, int) {
	n := len(cause)
	if len(effect) < n {
		n = len(effect)
	}
	if lag < 0 || lag >= n {
		return 0, 0
	}
	m := n - lag
	return Pearson(cause[:m], effect[lag:n]), m
}

// LinearFit fits y = intercept + slope*i against the step index i = 0..n-1
// and returns the fit plus the share of variance explained (SSR/SST).
func LinearFit(y []float64) (intercept, slope, trendStrength float64) {
	n := len(y)
	if n == 0 {
		return 0, 0, 0
	}
	if n == 1 {
		return y[0], 0, 0
	}

	x := make([]float64, n)
	for i := range x {
		x[i] = float64(i)
	}
	intercept, slope = stat.LinearRegression(x, y, nil, false)

	mean := Mean(y)
	var ssr, sst float64
	for i, v := range y {
		fitted := intercept + slope*x[i]
		ssr += (fitted - mean) * (fitted - mean)
		sst += (v - mean) * (v - mean)
	}
	if sst == 0 {
		return intercept, slope, 0
	}
	return intercept, slope, ssr / sst
}

// CoefficientOfVariation returns stddev/|mean|. A zero mean with non-zero
// spread is reported as +Inf; a constant zero series as 0.
func CoefficientOfVariation(x []float64) float64 {
	mean, sd := MeanStdDev(x)
	if mean == 0 {
		if sd == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return sd / math.Abs(mean)
}

// Percentile returns the empirical p-quantile (p in [0,1]) of x.
// The input is not modified.
func Percentile(x []float64, p float64) float64 {
	if len(x) == 0 {
		return 0
	}
	sorted := make([]float64, len(x))
	copy(sorted, x)
	sort.Float64s(sorted)
	return PercentileSorted(sorted, p)
}

// PercentileSorted is Percentile for input already sorted ascending.
func PercentileSorted(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	p = math.Max(0, math.Min(1, p))
	return stat.Quantile(p, stat.Empirical, sorted, nil)
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
