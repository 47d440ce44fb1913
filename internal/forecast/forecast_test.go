package forecast

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func seriesOf(step time.Duration, values ...float64) []TimeSeriesPoint {
	out := make([]TimeSeriesPoint, len(values))
	for i, v := range values {
		out[i] = TimeSeriesPoint{Timestamp: epoch.Add(time.Duration(i) * step), Value: v}
	}
	return out
}

func linearValues(n int, intercept, slope float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = intercept + slope*float64(i) + math.Sin(float64(i))*0.5
	}
	return out
}

func noisyValues(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 100 + 60*math.Sin(float64(i)*2.3)
	}
	return out
}

func flatValues(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 50 + float64(i%3) - 1
	}
	return out
}

func seasonalValues(periods, period int) []float64 {
	out := make([]float64, periods*period)
	for i := range out {
		out[i] = 100 + 30*math.Sin(2*math.Pi*float64(i%period)/float64(period))
	}
	return out
}

func TestSelectMethod(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   Method
	}{
		{"strong trend", linearValues(30, 10, 2), MethodLinearRegression},
		{"noisy", noisyValues(30), MethodExponentialSmoothing},
		{"flat", flatValues(30), MethodMovingAverage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel := SelectMethod(tt.values)
			assert.Equal(t, tt.want, sel.Method)
			assert.True(t, sel.Automatic)
			assert.NotEmpty(t, sel.Reason)
		})
	}
}

func TestSelectMethodZeroMean(t *testing.T) {
	values := []float64{-2, 1, -1, 2, 0}
	sel := SelectMethod(values)
	assert.Equal(t, MethodExponentialSmoothing, sel.Method)
	assert.Nil(t, sel.CoefficientOfVariation)
	assert.Equal(t, "zero mean with non-zero spread", sel.Reason)

	res, err := NewEngine(DefaultParams()).Forecast(seriesOf(24*time.Hour, values...), Options{})
	require.NoError(t, err)
	body, err := json.Marshal(res)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "coefficient_of_variation")

	sel = SelectMethod(noisyValues(30))
	require.NotNil(t, sel.CoefficientOfVariation)
	assert.Greater(t, *sel.CoefficientOfVariation, SmoothingCVThreshold)
}

func TestParseMethod(t *testing.T) {
	for in, want := range map[string]Method{
		"":                      MethodAuto,
		"movingAverage":         MethodMovingAverage,
		"expSmoothing":          MethodExponentialSmoothing,
		"linReg":                MethodLinearRegression,
		"exponential_smoothing": MethodExponentialSmoothing,
	} {
		got, err := ParseMethod(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseMethod("arima")
	assert.ErrorIs(t, err, ErrUnknownMethod)
}

func TestForecastBoundsAndWidth(t *testing.T) {
	engine := NewEngine(DefaultParams())
	inputs := map[string][]float64{
		"trend":    linearValues(40, 5, 1.5),
		"noisy":    noisyValues(40),
		"flat":     flatValues(40),
		"seasonal": seasonalValues(4, 7),
	}
	methods := []Method{MethodAuto, MethodMovingAverage, MethodExponentialSmoothing, MethodLinearRegression}

	for name, values := range inputs {
		for _, m := range methods {
			for _, seasonal := range []bool{false, true} {
				opts := Options{Method: m, Horizon: 14}
				if seasonal {
					opts.Seasonality = &Seasonality{Granularity: "daily"}
				}

				res, err := engine.Forecast(seriesOf(24*time.Hour, values...), opts)
				require.NoError(t, err, "%s/%s", name, m)
				require.Len(t, res.Points, 14)

				prevWidth := 0.0
				for i, p := range res.Points {
					assert.LessOrEqual(t, p.Lower, p.Value, "%s/%s step %d", name, m, p.Step)
					assert.LessOrEqual(t, p.Value, p.Upper, "%s/%s step %d", name, m, p.Step)
					if i > 0 {
						assert.GreaterOrEqual(t, p.Width(), prevWidth-1e-9, "%s/%s step %d narrows", name, m, p.Step)
					}
					prevWidth = p.Width()
				}
			}
		}
	}
}

func TestForecastInsufficientData(t *testing.T) {
	engine := NewEngine(DefaultParams())
	for n := 0; n < MinHistory; n++ {
		_, err := engine.Forecast(seriesOf(time.Hour, make([]float64, n)...), Options{})
		assert.ErrorIs(t, err, ErrInsufficientData, "n=%d", n)
	}
}

func TestForecastRejectsUnorderedSeries(t *testing.T) {
	series := seriesOf(time.Hour, 1, 2, 3, 4)
	series[1], series[2] = series[2], series[1]

	_, err := NewEngine(DefaultParams()).Forecast(series, Options{})
	assert.ErrorIs(t, err, ErrUnorderedSeries)
}

func TestForecastOptionsValidation(t *testing.T) {
	engine := NewEngine(DefaultParams())
	series := seriesOf(time.Hour, 1, 2, 3, 4, 5)

	_, err := engine.Forecast(series, Options{ConfidenceLevel: 1.5})
	assert.ErrorIs(t, err, ErrInvalidOptions)

	_, err = engine.Forecast(series, Options{Horizon: -1})
	assert.ErrorIs(t, err, ErrInvalidOptions)

	_, err = engine.Forecast(series, Options{Seasonality: &Seasonality{Granularity: "fortnightly"}})
	assert.ErrorIs(t, err, ErrInvalidOptions)
}

func TestForecastTimestampsAndDefaults(t *testing.T) {
	series := seriesOf(time.Hour, flatValues(10)...)
	res, err := NewEngine(DefaultParams()).Forecast(series, Options{})
	require.NoError(t, err)

	require.Len(t, res.Points, DefaultHorizon)
	assert.Equal(t, time.Hour, res.StepSize)
	assert.Equal(t, series[9].Timestamp.Add(time.Hour), res.Points[0].Timestamp)
	assert.Equal(t, DefaultConfidenceLevel, res.Points[0].Confidence)
	assert.Less(t, res.Points[6].Confidence, res.Points[0].Confidence)

	c := Confidence(res)
	assert.Greater(t, c, 0.0)
	assert.LessOrEqual(t, c, 1.0)
}

func TestLinearRegressionExtrapolates(t *testing.T) {
	values := make([]float64, 10)
	for i := range values {
		values[i] = 3 + 2*float64(i)
	}
	res, err := NewEngine(DefaultParams()).Forecast(seriesOf(time.Hour, values...), Options{Method: MethodLinearRegression, Horizon: 3})
	require.NoError(t, err)

	assert.InDelta(t, 23.0, res.Points[0].Value, 1e-9)
	assert.InDelta(t, 27.0, res.Points[2].Value, 1e-9)
	// exact fit leaves no residual variance
	assert.InDelta(t, 0.0, res.Points[2].Width(), 1e-9)
}

func TestSeasonalityOverlay(t *testing.T) {
	engine := NewEngine(DefaultParams())

	t.Run("applied", func(t *testing.T) {
		values := seasonalValues(4, 4)
		res, err := engine.Forecast(seriesOf(time.Hour, values...), Options{
			Method:      MethodMovingAverage,
			Horizon:     4,
			Seasonality: &Seasonality{Period: 4},
		})
		require.NoError(t, err)
		assert.True(t, res.SeasonalityApplied)
		assert.Equal(t, 4, res.SeasonalPeriod)
		// positions 0..3 carry factors 1, 1.3, 1, 0.7
		assert.Greater(t, res.Points[1].Value, res.Points[3].Value)
	})

	t.Run("skipped_when_short", func(t *testing.T) {
		values := seasonalValues(1, 12)
		res, err := engine.Forecast(seriesOf(time.Hour, values...), Options{Seasonality: &Seasonality{Granularity: "monthly"}})
		require.NoError(t, err)
		assert.False(t, res.SeasonalityApplied)
	})
}

func TestBacktest(t *testing.T) {
	acc := Backtest([]float64{10, 10, 10, 10, 10, 10, 10, 10, 12, 8})
	assert.Equal(t, 2, acc.HoldoutSize)
	assert.InDelta(t, 2.0, acc.MAE, 1e-12)
	assert.InDelta(t, 2.0, acc.RMSE, 1e-12)
	assert.InDelta(t, 100*(2.0/12+2.0/8)/2, acc.MAPE, 1e-9)

	acc = Backtest([]float64{1, 0, 0})
	assert.Equal(t, 1, acc.HoldoutSize)
	assert.Equal(t, 0.0, acc.MAPE)
}

func TestClassifyTrend(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   string
	}{
		{"increasing", []float64{100, 102, 104, 106, 108, 110}, TrendIncreasing},
		{"decreasing", []float64{110, 108, 106, 104, 102, 100}, TrendDecreasing},
		{"stable", []float64{100, 100.1, 99.9, 100, 100.1, 99.9}, TrendStable},
		{"volatile", []float64{10, 20, 5, 30, 2, 25}, TrendVolatile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyTrend(tt.values).Direction)
		})
	}
}

func TestStepSizeFallsBack(t *testing.T) {
	same := []TimeSeriesPoint{{Timestamp: epoch}, {Timestamp: epoch}, {Timestamp: epoch}}
	assert.Equal(t, 24*time.Hour, StepSize(same))
	assert.Equal(t, 15*time.Minute, StepSize(seriesOf(15*time.Minute, 1, 2, 3, 4)))
}
