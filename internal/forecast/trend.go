package forecast

import (
	"math"

	"github.com/fractal-lba/quantcore/internal/stats"
)

const (
	// VolatilityThreshold is the return volatility above which a series is
	// VOLATILE regardless of slope.
	VolatilityThreshold = 0.3
	// StableSlopeRatio is |slope|/|first value| below which a series is STABLE.
	StableSlopeRatio = 0.01
)

// ClassifyTrend labels the series by return volatility and regression slope.
func ClassifyTrend(values []float64) Trend {
	_, slope, strength := stats.LinearFit(values)
	vol := Volatility(values)

	t := Trend{Slope: slope, Volatility: vol, TrendStrength: strength}
	switch {
	case vol > VolatilityThreshold:
		t.Direction = TrendVolatile
	case negligibleSlope(slope, values):
		t.Direction = TrendStable
	case slope > 0:
		t.Direction = TrendIncreasing
	default:
		t.Direction = TrendDecreasing
	}
	return t
}

// Volatility is the population standard deviation of period-over-period
// returns. Steps from a zero value are skipped.
func Volatility(values []float64) float64 {
	returns := make([]float64, 0, len(values))
	for i := 1; i < len(values); i++ {
		if values[i-1] == 0 {
			continue
		}
		returns = append(returns, (values[i]-values[i-1])/math.Abs(values[i-1]))
	}
	if len(returns) < 2 {
		return 0
	}
	_, sd := stats.MeanStdDev(returns)
	return sd
}

func negligibleSlope(slope float64, values []float64) bool {
	if slope == 0 {
		return true
	}
	scale := 0.0
	if len(values) > 0 {
		scale = math.Abs(values[0])
	}
	if scale == 0 {
		// fall back to the mean magnitude when the series starts at zero
		for _, v := range values {
			scale += math.Abs(v)
		}
		scale /= float64(len(values))
	}
	if scale == 0 {
		return false
	}
	return math.Abs(slope)/scale < StableSlopeRatio
}
