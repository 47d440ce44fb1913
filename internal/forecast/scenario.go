package forecast

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Distribution names a sampling distribution.
type Distribution string

const (
	DistributionNormal     Distribution = "normal"
	DistributionUniform    Distribution = "uniform"
	DistributionTriangular Distribution = "triangular"

	// DefaultMetricName names the single output metric used when a
	// simulation declares none.
	DefaultMetricName = "outcome"
	// VaRPercentile is the percentile reported as Value-at-Risk.
	VaRPercentile = 0.05
)

// Variable is one uncertain scenario input.
type Variable struct {
	Name         string       `json:"name"`
	Base         float64      `json:"base"`
	Min          float64      `json:"min"`
	Max          float64      `json:"max"`
	Distribution Distribution `json:"distribution,omitempty"`
	StdDev       float64      `json:"std_dev,omitempty"` // normal only; default (max-min)/6
}

// OutputMetric is a normalized weighted combination of the inputs. Without
// weights every variable counts equally.
type OutputMetric struct {
	Name    string             `json:"name"`
	Weights map[string]float64 `json:"weights,omitempty"`
}

// UnmarshalJSON accepts either an object or a bare metric name.
func (m *OutputMetric) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*m = OutputMetric{Name: name}
		return nil
	}
	type plain OutputMetric
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*m = OutputMetric(p)
	return nil
}

// Correlation nudges VariableB toward VariableA's deviation from base.
type Correlation struct {
	VariableA   string  `json:"variable_a"`
	VariableB   string  `json:"variable_b"`
	Coefficient float64 `json:"coefficient"`
}

// Simulation is one Monte Carlo request.
type Simulation struct {
	Variables     []Variable     `json:"variables"`
	Iterations    int            `json:"iterations,omitempty"`
	OutputMetrics []OutputMetric `json:"output_metrics,omitempty"`
	Correlations  []Correlation  `json:"correlations,omitempty"`
	Seed          uint64         `json:"seed,omitempty"`
}

// Scenario is one draw.
type Scenario struct {
	ID          int                `json:"id"`
	Inputs      map[string]float64 `json:"inputs"`
	Outputs     map[string]float64 `json:"outputs"`
	Probability float64            `json:"probability"`
}

// MetricStats summarises one output metric across all draws.
type MetricStats struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	P10    float64 `json:"p10"`
	P50    float64 `json:"p50"`
	P90    float64 `json:"p90"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// RiskMetrics are computed on the primary (first) output metric.
type RiskMetrics struct {
	Metric         string  `json:"metric"`
	ValueAtRisk    float64 `json:"value_at_risk"`
	ConditionalVaR float64 `json:"conditional_var"`
	MaxDrawdown    float64 `json:"max_drawdown"`
}

// SimulationResult is the output of Engine.Simulate.
type SimulationResult struct {
	Iterations int                    `json:"iterations"`
	Scenarios  []Scenario             `json:"scenarios"`
	Statistics map[string]MetricStats `json:"statistics"`
	Risk       RiskMetrics            `json:"risk"`
}

// validate checks a simulation against the variable set and fills the
// default metric. It returns the iteration count to run.
func (s *Simulation) validate(p Params) (int, error) {
	if len(s.Variables) == 0 {
		return 0, ErrNoVariables
	}

	names := make(map[string]struct{}, len(s.Variables))
	for i, v := range s.Variables {
		if strings.TrimSpace(v.Name) == "" {
			return 0, fmt.Errorf("%w: variable %d has no name", ErrInvalidVariable, i)
		}
		if _, dup := names[v.Name]; dup {
			return 0, fmt.Errorf("%w: duplicate variable %q", ErrInvalidVariable, v.Name)
		}
		names[v.Name] = struct{}{}

		if v.Min > v.Max {
			return 0, fmt.Errorf("%w: %q has min %g > max %g", ErrInvalidVariable, v.Name, v.Min, v.Max)
		}
		if v.StdDev < 0 || math.IsNaN(v.Base) {
			return 0, fmt.Errorf("%w: %q has invalid parameters", ErrInvalidVariable, v.Name)
		}
		switch v.Distribution {
		case "", DistributionNormal, DistributionUniform, DistributionTriangular:
		default:
			return 0, fmt.Errorf("%w: %q has unknown distribution %q", ErrInvalidVariable, v.Name, v.Distribution)
		}
	}

	for _, c := range s.Correlations {
		_, okA := names[c.VariableA]
		_, okB := names[c.VariableB]
		if !okA || !okB {
			return 0, fmt.Errorf("%w: correlation %s/%s names an unknown variable", ErrInvalidVariable, c.VariableA, c.VariableB)
		}
		if c.Coefficient < -1 || c.Coefficient > 1 {
			return 0, fmt.Errorf("%w: correlation coefficient %g outside [-1,1]", ErrInvalidVariable, c.Coefficient)
		}
	}

	if len(s.OutputMetrics) == 0 {
		s.OutputMetrics = []OutputMetric{{Name: DefaultMetricName}}
	}
	metrics := make(map[string]struct{}, len(s.OutputMetrics))
	for _, m := range s.OutputMetrics {
		if strings.TrimSpace(m.Name) == "" {
			return 0, fmt.Errorf("%w: output metric has no name", ErrInvalidOptions)
		}
		if _, dup := metrics[m.Name]; dup {
			return 0, fmt.Errorf("%w: duplicate output metric %q", ErrInvalidOptions, m.Name)
		}
		metrics[m.Name] = struct{}{}
		for v := range m.Weights {
			if _, ok := names[v]; !ok {
				return 0, fmt.Errorf("%w: metric %q weights unknown variable %q", ErrInvalidVariable, m.Name, v)
			}
		}
	}

	iterations := s.Iterations
	if iterations == 0 {
		iterations = p.Iterations
	}
	if iterations < 0 {
		return 0, fmt.Errorf("%w: iterations must be positive", ErrInvalidOptions)
	}
	if iterations > p.MaxIterations {
		return 0, fmt.Errorf("%w: %d > %d", ErrTooManyIterations, iterations, p.MaxIterations)
	}
	return iterations, nil
}
