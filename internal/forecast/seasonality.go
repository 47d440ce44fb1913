package forecast

import (
	"fmt"
	"math"
	"strings"

	"github.com/fractal-lba/quantcore/internal/stats"
)

var granularityPeriods = map[string]int{
	"hourly":    24,
	"daily":     7,
	"weekly":    52,
	"monthly":   12,
	"quarterly": 4,
}

// SeasonalPeriod resolves the cycle length for a seasonality request.
func SeasonalPeriod(s Seasonality) (int, error) {
	if s.Period < 0 {
		return 0, fmt.Errorf("%w: seasonal period must be positive", ErrInvalidOptions)
	}
	if s.Period > 0 {
		return s.Period, nil
	}
	p, ok := granularityPeriods[strings.ToLower(strings.TrimSpace(s.Granularity))]
	if !ok {
		return 0, fmt.Errorf("%w: unknown seasonal granularity %q", ErrInvalidOptions, s.Granularity)
	}
	return p, nil
}

// seasonalFactors averages value/mean per position in the cycle. It reports
// false when there are fewer than two full periods, the period is trivial
// or the mean is zero; callers then skip the overlay.
func seasonalFactors(values []float64, period int) ([]float64, bool) {
	if period < 2 || len(values) < 2*period {
		return nil, false
	}
	mean := stats.Mean(values)
	if mean == 0 {
		return nil, false
	}

	sums := make([]float64, period)
	counts := make([]int, period)
	for i, v := range values {
		sums[i%period] += v / mean
		counts[i%period]++
	}
	factors := make([]float64, period)
	for p := range factors {
		factors[p] = sums[p] / float64(counts[p])
	}
	return factors, true
}

// applySeasonality scales each step by the factor of its cycle position.
// Half-widths scale by |factor| and are then held to a running maximum so
// the band never narrows further out.
func applySeasonality(bands []band, factors []float64, historyLen int) {
	period := len(factors)
	widest := 0.0
	for h := range bands {
		f := factors[(historyLen+h)%period]
		bands[h].value *= f
		hw := math.Max(bands[h].halfWidth*math.Abs(f), widest)
		bands[h].halfWidth = hw
		widest = hw
	}
}
