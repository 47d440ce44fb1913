package forecast

import (
	"fmt"
	"sort"
	"time"

	"github.com/fractal-lba/quantcore/internal/stats"
)

const (
	DefaultHorizon         = 7
	DefaultConfidenceLevel = 0.95
	DefaultIterations      = 1000
	MaxIterations          = 1_000_000
	MaxHorizon             = 10_000

	defaultStep     = 24 * time.Hour
	confidenceDecay = 0.1
)

// Params holds the engine defaults applied to unset request fields.
type Params struct {
	Horizon         int
	ConfidenceLevel float64
	Iterations      int
	MaxIterations   int
}

// DefaultParams returns the documented defaults.
func DefaultParams() Params {
	return Params{
		Horizon:         DefaultHorizon,
		ConfidenceLevel: DefaultConfidenceLevel,
		Iterations:      DefaultIterations,
		MaxIterations:   MaxIterations,
	}
}

// Engine produces forecasts and scenario simulations. It holds only
// immutable defaults and is safe for concurrent use.
type Engine struct {
	params Params
}

// NewEngine creates an engine. Zero params fall back to DefaultParams.
func NewEngine(params Params) *Engine {
	def := DefaultParams()
	if params.Horizon <= 0 {
		params.Horizon = def.Horizon
	}
	if params.ConfidenceLevel <= 0 || params.ConfidenceLevel >= 1 {
		params.ConfidenceLevel = def.ConfidenceLevel
	}
	if params.Iterations <= 0 {
		params.Iterations = def.Iterations
	}
	if params.MaxIterations <= 0 || params.MaxIterations > MaxIterations {
		params.MaxIterations = def.MaxIterations
	}
	return &Engine{params: params}
}

// Params returns the engine defaults.
func (e *Engine) Params() Params {
	return e.params
}

// Forecast projects the series Horizon steps ahead.
func (e *Engine) Forecast(series []TimeSeriesPoint, opts Options) (*Result, error) {
	if len(series) < MinHistory {
		return nil, fmt.Errorf("%w: %d points (need at least %d)", ErrInsufficientData, len(series), MinHistory)
	}
	for i := 1; i < len(series); i++ {
		if series[i].Timestamp.Before(series[i-1].Timestamp) {
			return nil, fmt.Errorf("%w: point %d precedes point %d", ErrUnorderedSeries, i, i-1)
		}
	}

	method, err := ParseMethod(string(opts.Method))
	if err != nil {
		return nil, err
	}
	horizon := opts.Horizon
	if horizon == 0 {
		horizon = e.params.Horizon
	}
	if horizon < 0 || horizon > MaxHorizon {
		return nil, fmt.Errorf("%w: horizon must be in 1..%d, got %d", ErrInvalidOptions, MaxHorizon, horizon)
	}
	level := opts.ConfidenceLevel
	if level == 0 {
		level = e.params.ConfidenceLevel
	}
	if level <= 0 || level >= 1 {
		return nil, fmt.Errorf("%w: confidence level must be in (0,1), got %g", ErrInvalidOptions, level)
	}

	period := 0
	if opts.Seasonality != nil {
		if period, err = SeasonalPeriod(*opts.Seasonality); err != nil {
			return nil, err
		}
	}

	values := make([]float64, len(series))
	for i, p := range series {
		values[i] = p.Value
	}

	sel := SelectMethod(values)
	if method != MethodAuto {
		sel.Method = method
		sel.Automatic = false
		sel.Reason = "requested"
	}

	bands := project(sel.Method, values, horizon, stats.ZForConfidence(level))

	result := &Result{
		Method:          sel.Method,
		Selection:       sel,
		Accuracy:        Backtest(values),
		Trend:           ClassifyTrend(values),
		ConfidenceLevel: level,
	}
	if period > 0 {
		if factors, ok := seasonalFactors(values, period); ok {
			applySeasonality(bands, factors, len(values))
			result.SeasonalityApplied = true
			result.SeasonalPeriod = period
		}
	}

	step := StepSize(series)
	last := series[len(series)-1].Timestamp
	result.StepSize = step
	result.Points = make([]ForecastPoint, horizon)
	for i, b := range bands {
		h := i + 1
		result.Points[i] = ForecastPoint{
			Timestamp:  last.Add(time.Duration(h) * step),
			Step:       h,
			Value:      b.value,
			Lower:      b.value - b.halfWidth,
			Upper:      b.value + b.halfWidth,
			Confidence: level / (1 + confidenceDecay*float64(h-1)),
		}
	}

	return result, nil
}

// StepSize is the median spacing between consecutive timestamps, 24h when
// the spacing is not positive.
func StepSize(series []TimeSeriesPoint) time.Duration {
	if len(series) < 2 {
		return defaultStep
	}
	gaps := make([]time.Duration, 0, len(series)-1)
	for i := 1; i < len(series); i++ {
		gaps = append(gaps, series[i].Timestamp.Sub(series[i-1].Timestamp))
	}
	sort.Slice(gaps, func(i, j int) bool { return gaps[i] < gaps[j] })
	median := gaps[len(gaps)/2]
	if len(gaps)%2 == 0 {
		median = (gaps[len(gaps)/2-1] + gaps[len(gaps)/2]) / 2
	}
	if median <= 0 {
		return defaultStep
	}
	return median
}

// Confidence scores a forecast in [0,1]: mean per-point confidence scaled
// down by the backtest MAPE.
func Confidence(r *Result) float64 {
	if r == nil || len(r.Points) == 0 {
		return 0
	}
	var sum float64
	for _, p := range r.Points {
		sum += p.Confidence
	}
	penalty := r.Accuracy.MAPE / 100
	if penalty > 1 {
		penalty = 1
	}
	return stats.Clamp(sum/float64(len(r.Points))*(1-penalty), 0, 1)
}
