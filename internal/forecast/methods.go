package forecast

import (
	"math"

	"github.com/fractal-lba/quantcore/internal/stats"
)

// Holt smoothing constants.
const (
	HoltAlpha = 0.3
	HoltBeta  = 0.1

	holtWidening = 0.2
)

// band is a point estimate and its symmetric half-width for one step.
type band struct {
	value     float64
	halfWidth float64
}

// movingAverage projects the mean of the trailing window and widens the
// band with sqrt(h).
func movingAverage(values []float64, horizon int, z float64) []band {
	w := movingAverageWindow(len(values))
	mean, sd := stats.MeanStdDev(values[len(values)-w:])

	out := make([]band, horizon)
	for h := 1; h <= horizon; h++ {
		out[h-1] = band{value: mean, halfWidth: z * sd * math.Sqrt(float64(h))}
	}
	return out
}

// holt runs Holt's linear smoothing through the history, collecting the
// one-step-ahead residuals, then extrapolates level + h*trend.
func holt(values []float64, horizon int, z float64) []band {
	level := values[0]
	trend := values[1] - values[0]

	var sse float64
	for t := 1; t < len(values); t++ {
		predicted := level + trend
		resid := values[t] - predicted
		sse += resid * resid

		next := HoltAlpha*values[t] + (1-HoltAlpha)*(level+trend)
		trend = HoltBeta*(next-level) + (1-HoltBeta)*trend
		level = next
	}
	rmse := math.Sqrt(sse / float64(len(values)-1))

	out := make([]band, horizon)
	for h := 1; h <= horizon; h++ {
		out[h-1] = band{
			value:     level + float64(h)*trend,
			halfWidth: z * rmse * math.Sqrt(1+float64(h-1)*holtWidening),
		}
	}
	return out
}

// linearRegression extrapolates the least-squares line with the standard
// prediction interval s*sqrt(1 + 1/n + (x0-mean)^2/Sxx).
func linearRegression(values []float64, horizon int, z float64) []band {
	n := len(values)
	intercept, slope, _ := stats.LinearFit(values)

	xMean := float64(n-1) / 2
	var sxx, sse float64
	for i, v := range values {
		dx := float64(i) - xMean
		sxx += dx * dx
		resid := v - (intercept + slope*float64(i))
		sse += resid * resid
	}
	s := 0.0
	if n > 2 {
		s = math.Sqrt(sse / float64(n-2))
	}

	out := make([]band, horizon)
	for h := 1; h <= horizon; h++ {
		x0 := float64(n - 1 + h)
		leverage := 0.0
		if sxx > 0 {
			leverage = (x0 - xMean) * (x0 - xMean) / sxx
		}
		out[h-1] = band{
			value:     intercept + slope*x0,
			halfWidth: z * s * math.Sqrt(1+1/float64(n)+leverage),
		}
	}
	return out
}

func project(method Method, values []float64, horizon int, z float64) []band {
	switch method {
	case MethodExponentialSmoothing:
		return holt(values, horizon, z)
	case MethodLinearRegression:
		return linearRegression(values, horizon, z)
	default:
		return movingAverage(values, horizon, z)
	}
}
