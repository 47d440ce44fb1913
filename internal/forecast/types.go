// Package forecast implements the forecast and scenario engine: method
// selection, moving-average, Holt and least-squares forecasts with widening
// confidence bands, a seasonal overlay, naive backtesting, trend
// classification and Monte Carlo scenario simulation.
package forecast

import (
	"errors"
	"time"
)

var (
	ErrInsufficientData  = errors.New("insufficient historical data")
	ErrUnorderedSeries   = errors.New("series is not in chronological order")
	ErrUnknownMethod     = errors.New("unknown forecast method")
	ErrInvalidOptions    = errors.New("invalid forecast options")
	ErrNoVariables       = errors.New("no scenario variables supplied")
	ErrInvalidVariable   = errors.New("invalid scenario variable")
	ErrTooManyIterations = errors.New("too many simulation iterations")
)

// MinHistory is the shortest series that can be forecast.
const MinHistory = 3

// Method names a forecasting technique.
type Method string

const (
	MethodAuto                 Method = "auto"
	MethodMovingAverage        Method = "moving_average"
	MethodExponentialSmoothing Method = "exponential_smoothing"
	MethodLinearRegression     Method = "linear_regression"
)

// Trend directions.
const (
	TrendIncreasing = "INCREASING"
	TrendDecreasing = "DECREASING"
	TrendStable     = "STABLE"
	TrendVolatile   = "VOLATILE"
)

// TimeSeriesPoint is one chronological observation.
type TimeSeriesPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// ForecastPoint is one projected step. Lower <= Value <= Upper always.
type ForecastPoint struct {
	Timestamp  time.Time `json:"timestamp"`
	Step       int       `json:"step"`
	Value      float64   `json:"value"`
	Lower      float64   `json:"lower_bound"`
	Upper      float64   `json:"upper_bound"`
	Confidence float64   `json:"confidence"`
}

// Width returns Upper - Lower.
func (p ForecastPoint) Width() float64 {
	return p.Upper - p.Lower
}

// Accuracy is the naive holdout backtest.
type Accuracy struct {
	MAE         float64 `json:"mae"`
	RMSE        float64 `json:"rmse"`
	MAPE        float64 `json:"mape"` // percent, zero actuals skipped
	HoldoutSize int     `json:"holdout_size"`
}

// Trend classifies the history.
type Trend struct {
	Direction     string  `json:"direction"`
	Slope         float64 `json:"slope"`
	Volatility    float64 `json:"volatility"`
	TrendStrength float64 `json:"trend_strength"`
}

// Seasonality requests a multiplicative seasonal overlay. Period wins over
// Granularity when both are set.
type Seasonality struct {
	Granularity string `json:"granularity,omitempty"`
	Period      int    `json:"period,omitempty"`
}

// Options configures one forecast. Zero values mean engine defaults.
type Options struct {
	Method          Method       `json:"method,omitempty"`
	Horizon         int          `json:"horizon,omitempty"`
	ConfidenceLevel float64      `json:"confidence_level,omitempty"`
	Seasonality     *Seasonality `json:"seasonality,omitempty"`
}

// Selection records why a method was chosen.
type Selection struct {
	Method                 Method   `json:"method"`
	Automatic              bool     `json:"automatic"`
	TrendStrength          float64  `json:"trend_strength"`
	CoefficientOfVariation *float64 `json:"coefficient_of_variation,omitempty"` // nil when the mean is zero
	Reason                 string   `json:"reason"`
}

// Result is the output of Engine.Forecast.
type Result struct {
	Method             Method          `json:"method"`
	Selection          Selection       `json:"selection"`
	Points             []ForecastPoint `json:"points"`
	Accuracy           Accuracy        `json:"accuracy"`
	Trend              Trend           `json:"trend"`
	SeasonalityApplied bool            `json:"seasonality_applied"`
	SeasonalPeriod     int             `json:"seasonal_period,omitempty"`
	StepSize           time.Duration   `json:"step_size"`
	ConfidenceLevel    float64         `json:"confidence_level"`
}
