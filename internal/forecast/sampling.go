package forecast

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/fractal-lba/quantcore/internal/stats"
)

// correlationNudge scales how far one unit of normalized deviation in the
// leading variable moves the following one, as a share of its range.
const correlationNudge = 0.1

// sample draws one value for v and clamps it to [Min, Max].
func sample(v Variable, rng stats.Rand) float64 {
	var x float64
	switch v.Distribution {
	case DistributionUniform:
		x = distuv.Uniform{Min: v.Min, Max: v.Max}.Quantile(rng.Float64())
	case DistributionTriangular:
		x = triangular(v, rng.Float64())
	default:
		sd := v.StdDev
		if sd == 0 {
			sd = (v.Max - v.Min) / 6
		}
		x = v.Base + sd*boxMuller(rng)
	}
	return stats.Clamp(x, v.Min, v.Max)
}

// boxMuller returns a standard normal deviate.
func boxMuller(rng stats.Rand) float64 {
	u1 := 1 - rng.Float64() // (0,1]
	u2 := rng.Float64()
	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}

// triangular inverts the triangular CDF with the mode at Base.
func triangular(v Variable, u float64) float64 {
	if v.Min >= v.Max {
		return v.Base
	}
	mode := stats.Clamp(v.Base, v.Min, v.Max)
	return distuv.NewTriangle(v.Min, v.Max, mode, nil).Quantile(u)
}

// correlate applies each configured correlation in order as a linear nudge
// on the second variable, re-clamping it afterwards.
func correlate(inputs map[string]float64, vars map[string]Variable, corrs []Correlation) {
	for _, c := range corrs {
		a, b := vars[c.VariableA], vars[c.VariableB]
		rangeA := a.Max - a.Min
		if rangeA == 0 || c.Coefficient == 0 {
			continue
		}
		deviation := (inputs[a.Name] - a.Base) / rangeA
		nudged := inputs[b.Name] + c.Coefficient*deviation*(b.Max-b.Min)*correlationNudge
		inputs[b.Name] = stats.Clamp(nudged, b.Min, b.Max)
	}
}

// combine evaluates one output metric: sum(w*x)/sum(|w|) times a
// multiplicative noise factor drawn from [0.9, 1.1].
func combine(m OutputMetric, order []string, inputs map[string]float64, rng stats.Rand) float64 {
	var num, den float64
	if len(m.Weights) == 0 {
		for _, name := range order {
			num += inputs[name]
			den++
		}
	} else {
		for _, name := range order {
			w, ok := m.Weights[name]
			if !ok {
				continue
			}
			num += w * inputs[name]
			den += math.Abs(w)
		}
	}
	noise := 0.9 + 0.2*rng.Float64()
	if den == 0 {
		return 0
	}
	return num / den * noise
}
