package forecast

import (
	"math"
	"sort"

	"github.com/fractal-lba/quantcore/internal/stats"
)

// Simulate runs the Monte Carlo simulation. rng may be nil, in which case a
// source is derived from sim.Seed.
func (e *Engine) Simulate(sim Simulation, rng stats.Rand) (*SimulationResult, error) {
	iterations, err := sim.validate(e.params)
	if err != nil {
		return nil, err
	}
	if rng == nil {
		rng = stats.RandFor(sim.Seed)
	}

	order := make([]string, len(sim.Variables))
	vars := make(map[string]Variable, len(sim.Variables))
	for i, v := range sim.Variables {
		order[i] = v.Name
		vars[v.Name] = v
	}

	prob := 1 / float64(iterations)
	outcomes := make(map[string][]float64, len(sim.OutputMetrics))
	scenarios := make([]Scenario, iterations)
	for it := 0; it < iterations; it++ {
		inputs := make(map[string]float64, len(order))
		for _, v := range sim.Variables {
			inputs[v.Name] = sample(v, rng)
		}
		correlate(inputs, vars, sim.Correlations)

		outputs := make(map[string]float64, len(sim.OutputMetrics))
		for _, m := range sim.OutputMetrics {
			val := combine(m, order, inputs, rng)
			outputs[m.Name] = val
			outcomes[m.Name] = append(outcomes[m.Name], val)
		}

		scenarios[it] = Scenario{
			ID:          it + 1,
			Inputs:      inputs,
			Outputs:     outputs,
			Probability: prob,
		}
	}

	result := &SimulationResult{
		Iterations: iterations,
		Scenarios:  scenarios,
		Statistics: make(map[string]MetricStats, len(outcomes)),
	}
	for name, values := range outcomes {
		result.Statistics[name] = summarizeMetric(values)
	}
	primary := sim.OutputMetrics[0].Name
	result.Risk = riskMetrics(primary, outcomes[primary])

	return result, nil
}

func summarizeMetric(values []float64) MetricStats {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mean, sd := stats.MeanStdDev(values)
	return MetricStats{
		Mean:   mean,
		StdDev: sd,
		P10:    stats.PercentileSorted(sorted, 0.10),
		P50:    stats.PercentileSorted(sorted, 0.50),
		P90:    stats.PercentileSorted(sorted, 0.90),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
	}
}

func riskMetrics(metric string, values []float64) RiskMetrics {
	risk := RiskMetrics{Metric: metric}
	if len(values) == 0 {
		return risk
	}

	risk.ValueAtRisk = stats.Percentile(values, VaRPercentile)
	var tail float64
	count := 0
	for _, v := range values {
		if v <= risk.ValueAtRisk {
			tail += v
			count++
		}
	}
	if count > 0 {
		risk.ConditionalVaR = tail / float64(count)
	}
	risk.MaxDrawdown = MaxDrawdown(values)
	return risk
}

// MaxDrawdown is the peak-to-trough decline across the outcomes sorted from
// best to worst, relative to the magnitude of the best outcome. It does not
// depend on the order of values. A zero best outcome yields 0.
func MaxDrawdown(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))

	peak, trough := sorted[0], sorted[len(sorted)-1]
	if peak == 0 {
		return 0
	}
	return (peak - trough) / math.Abs(peak)
}

// SimulationConfidence is 1/(1+CV) of the primary metric, 0 when the CV is
// undefined.
func SimulationConfidence(r *SimulationResult) float64 {
	if r == nil {
		return 0
	}
	s, ok := r.Statistics[r.Risk.Metric]
	if !ok {
		return 0
	}
	if s.Mean == 0 {
		if s.StdDev == 0 {
			return 1
		}
		return 0
	}
	return 1 / (1 + s.StdDev/math.Abs(s.Mean))
}
