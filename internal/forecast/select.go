package forecast

import (
	"fmt"
	"math"
	"strings"

	"github.com/fractal-lba/quantcore/internal/stats"
)

// Selection thresholds for automatic mode.
const (
	LinearTrendThreshold   = 0.7
	SmoothingCVThreshold   = 0.3
	MaxMovingAverageWindow = 5
)

// ParseMethod resolves a method name. The short spellings used by older
// callers are accepted alongside the canonical ones.
func ParseMethod(name string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto":
		return MethodAuto, nil
	case "moving_average", "movingaverage", "ma":
		return MethodMovingAverage, nil
	case "exponential_smoothing", "expsmoothing", "holt":
		return MethodExponentialSmoothing, nil
	case "linear_regression", "linreg", "linear":
		return MethodLinearRegression, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMethod, name)
	}
}

// SelectMethod is the automatic-mode decision: a strong linear trend picks
// regression, a noisy series picks Holt smoothing, anything else the
// moving average.
func SelectMethod(values []float64) Selection {
	_, _, strength := stats.LinearFit(values)
	cv := stats.CoefficientOfVariation(values)

	sel := Selection{
		Automatic:     true,
		TrendStrength: strength,
	}
	if !math.IsInf(cv, 0) {
		sel.CoefficientOfVariation = &cv
	}
	switch {
	case strength > LinearTrendThreshold:
		sel.Method = MethodLinearRegression
		sel.Reason = fmt.Sprintf("trend strength %.2f > %.2f", strength, LinearTrendThreshold)
	case cv > SmoothingCVThreshold:
		sel.Method = MethodExponentialSmoothing
		if sel.CoefficientOfVariation == nil {
			sel.Reason = "zero mean with non-zero spread"
		} else {
			sel.Reason = fmt.Sprintf("coefficient of variation %.2f > %.2f", cv, SmoothingCVThreshold)
		}
	default:
		sel.Method = MethodMovingAverage
		sel.Reason = "no dominant trend or variability"
	}
	return sel
}

// movingAverageWindow returns min(5, n/2), never below 1.
func movingAverageWindow(n int) int {
	w := n / 2
	if w > MaxMovingAverageWindow {
		w = MaxMovingAverageWindow
	}
	if w < 1 {
		w = 1
	}
	return w
}
