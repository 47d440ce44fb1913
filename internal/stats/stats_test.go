package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPearson(t *testing.T) {
	tests := []struct {
		name string
		x, y []float64
		want float64
	}{
		{"perfect_positive", []float64{1, 2, 3, 4}, []float64{2, 4, 6, 8}, 1},
		{"perfect_negative", []float64{1, 2, 3, 4}, []float64{8, 6, 4, 2}, -1},
		{"zero_variance", []float64{1, 2, 3, 4}, []float64{5, 5, 5, 5}, 0},
		{"length_mismatch", []float64{1, 2, 3}, []float64{1, 2}, 0},
		{"empty", nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Pearson(tt.x, tt.y), 1e-12)
		})
	}
}

func TestLaggedCorrelation(t *testing.T) {
	cause := []float64{1, 5, 2, 8, 3, 9, 4, 7}
	effect := make([]float64, len(cause))
	for i := 1; i < len(cause); i++ {
		effect[i] = 2 * cause[i-1]
	}

	r, n := LaggedCorrelation(cause, effect, 1)
	assert.Equal(t, 7, n)
	assert.InDelta(t, 1.0, r, 1e-9)

	_, n = LaggedCorrelation(cause, effect, len(cause))
	assert.Zero(t, n)
}

func TestLinearFit(t *testing.T) {
	y := []float64{3, 5, 7, 9, 11}
	intercept, slope, strength := LinearFit(y)
	assert.InDelta(t, 3.0, intercept, 1e-9)
	assert.InDelta(t, 2.0, slope, 1e-9)
	assert.InDelta(t, 1.0, strength, 1e-9)

	_, slope, strength = LinearFit([]float64{4, 4, 4})
	assert.InDelta(t, 0.0, slope, 1e-12)
	assert.Zero(t, strength)
}

func TestCoefficientOfVariation(t *testing.T) {
	assert.InDelta(t, 0.0, CoefficientOfVariation([]float64{0, 0, 0}), 1e-12)
	assert.True(t, math.IsInf(CoefficientOfVariation([]float64{-1, 1}), 1))
	assert.InDelta(t, 0.5, CoefficientOfVariation([]float64{1, 3}), 1e-12)
}

func TestPercentile(t *testing.T) {
	x := []float64{5, 1, 4, 2, 3}
	assert.Equal(t, 1.0, Percentile(x, 0))
	assert.Equal(t, 3.0, Percentile(x, 0.5))
	assert.Equal(t, 5.0, Percentile(x, 1))
	// input untouched
	assert.Equal(t, []float64{5, 1, 4, 2, 3}, x)
}

func TestApproxPValue(t *testing.T) {
	t.Run("no_correlation_is_insignificant", func(t *testing.T) {
		assert.InDelta(t, 1.0, ApproxPValue(0, 50), 1e-12)
	})

	t.Run("monotone_in_r", func(t *testing.T) {
		prev := 1.0
		for _, r := range []float64{0.1, 0.3, 0.5, 0.7, 0.9} {
			p := ApproxPValue(r, 30)
			assert.Less(t, p, prev, "p should shrink as |r| grows (r=%.1f)", r)
			assert.GreaterOrEqual(t, p, 0.0)
			prev = p
		}
	})

	t.Run("sign_independent", func(t *testing.T) {
		assert.InDelta(t, ApproxPValue(0.6, 20), ApproxPValue(-0.6, 20), 1e-12)
	})

	t.Run("degenerate_sample", func(t *testing.T) {
		assert.Equal(t, 1.0, ApproxPValue(0.99, 2))
		assert.Equal(t, 0.0, ApproxPValue(1, 10))
	})

	t.Run("strong_signal_large_sample", func(t *testing.T) {
		assert.Less(t, ApproxPValue(0.8, 100), 1e-6)
	})
}

func TestZForConfidence(t *testing.T) {
	assert.InDelta(t, 1.959964, ZForConfidence(0.95), 1e-5)
	assert.InDelta(t, 2.575829, ZForConfidence(0.99), 1e-5)
	// out-of-range falls back to 95%
	assert.InDelta(t, 1.959964, ZForConfidence(1.5), 1e-5)
}

func TestNewRandDeterministic(t *testing.T) {
	a, b := NewRand(42), NewRand(42)
	for i := 0; i < 10; i++ {
		require.Equal(t, a.Float64(), b.Float64())
	}
}
