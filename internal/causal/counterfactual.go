package causal

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// maxExplained is how many deltas the explanation names.
const maxExplained = 3

// Counterfactual applies changes in order. Each change sets its variable
// and propagates downstream from the outcome produced by the changes before
// it. actual overrides the observed means used as the baseline outcome.
func (r *Reasoner) Counterfactual(g *Graph, changes []Change, actual map[string]float64) (*CounterfactualResult, error) {
	if len(changes) == 0 {
		return nil, fmt.Errorf("%w: no changes supplied", ErrInvalidOptions)
	}
	a, err := newArena(g)
	if err != nil {
		return nil, err
	}

	base := make([]float64, len(a.names))
	copy(base, a.means)
	for name, v := range actual {
		i, err := a.lookup(name)
		if err != nil {
			return nil, err
		}
		base[i] = v
	}

	outcome := make([]float64, len(base))
	copy(outcome, base)
	var confidences []float64
	for _, c := range changes {
		src, err := a.lookup(c.Variable)
		if err != nil {
			return nil, err
		}
		rel := relativeChange(c.Value, outcome[src])
		outcome[src] = c.Value

		t := a.walk(src, false)
		confidences = append(confidences, t.confidence...)
		for _, rc := range t.reached {
			outcome[rc.node] *= 1 + rc.strength*rel
		}
	}

	res := &CounterfactualResult{
		Changes:        changes,
		Actual:         make(map[string]float64, len(a.names)),
		Counterfactual: make(map[string]float64, len(a.names)),
		Deltas:         []Delta{},
		EdgeConfidence: meanOf(confidences),
	}
	for i, name := range a.names {
		res.Actual[name] = base[i]
		res.Counterfactual[name] = outcome[i]
		if d := outcome[i] - base[i]; d != 0 {
			res.Deltas = append(res.Deltas, Delta{
				Variable:       name,
				Actual:         base[i],
				Counterfactual: outcome[i],
				Delta:          d,
				PercentChange:  percent(d, base[i]),
			})
		}
	}
	sort.SliceStable(res.Deltas, func(i, j int) bool {
		di, dj := math.Abs(res.Deltas[i].Delta), math.Abs(res.Deltas[j].Delta)
		if di != dj {
			return di > dj
		}
		return res.Deltas[i].Variable < res.Deltas[j].Variable
	})
	res.Explanation = explain(res.Deltas)
	return res, nil
}

func explain(deltas []Delta) string {
	if len(deltas) == 0 {
		return "No variable changes under the alternate scenario."
	}
	n := len(deltas)
	if n > maxExplained {
		n = maxExplained
	}
	parts := make([]string, n)
	for i, d := range deltas[:n] {
		parts[i] = fmt.Sprintf("%s %+.4g (%+.1f%%)", d.Variable, d.Delta, d.PercentChange)
	}
	return fmt.Sprintf("Largest changes: %s.", strings.Join(parts, ", "))
}
