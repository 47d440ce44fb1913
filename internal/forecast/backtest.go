package forecast

import "math"

// HoldoutFraction is the share of history held out by Backtest.
const HoldoutFraction = 0.2

// Backtest holds out the last 20% of the history (at least one point) and
// forecasts it naively with the last training value.
func Backtest(values []float64) Accuracy {
	n := len(values)
	if n < 2 {
		return Accuracy{}
	}
	holdout := int(math.Floor(HoldoutFraction * float64(n)))
	if holdout < 1 {
		holdout = 1
	}
	naive := values[n-holdout-1]

	var absSum, sqSum, pctSum float64
	pctCount := 0
	for _, actual := range values[n-holdout:] {
		e := actual - naive
		absSum += math.Abs(e)
		sqSum += e * e
		if actual != 0 {
			pctSum += math.Abs(e / actual)
			pctCount++
		}
	}

	acc := Accuracy{
		MAE:         absSum / float64(holdout),
		RMSE:        math.Sqrt(sqSum / float64(holdout)),
		HoldoutSize: holdout,
	}
	if pctCount > 0 {
		acc.MAPE = 100 * pctSum / float64(pctCount)
	}
	return acc
}
