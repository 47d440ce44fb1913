package causal

import "math"

// relativeChange is (value-observed)/|observed|, or value itself when the
// observed baseline is zero.
func relativeChange(value, observed float64) float64 {
	if observed == 0 {
		return value
	}
	return (value - observed) / math.Abs(observed)
}

func percent(change, base float64) float64 {
	if base == 0 {
		return 0
	}
	return 100 * change / math.Abs(base)
}

// Intervene sets variable to value and propagates the change to every
// downstream variable. Each reached variable's mean is scaled by
// (1 + pathStrength*relativeChange).
func (r *Reasoner) Intervene(g *Graph, variable string, value float64) (*InterventionResult, error) {
	a, err := newArena(g)
	if err != nil {
		return nil, err
	}
	src, err := a.lookup(variable)
	if err != nil {
		return nil, err
	}

	observed := a.means[src]
	rel := relativeChange(value, observed)
	t := a.walk(src, false)

	res := &InterventionResult{
		Variable:       variable,
		Value:          value,
		Observed:       observed,
		RelativeChange: rel,
		DirectEffects:  []Effect{},
		SideEffects:    []Effect{},
		EdgeConfidence: meanOf(t.confidence),
	}
	for _, rc := range t.reached {
		before := a.means[rc.node]
		after := before * (1 + rc.strength*rel)
		eff := Effect{
			Variable:      a.names[rc.node],
			Before:        before,
			After:         after,
			Change:        after - before,
			PercentChange: percent(after-before, before),
			PathStrength:  rc.strength,
			Path:          a.pathNames(rc.path),
			Direct:        rc.depth == 1,
		}
		if eff.Direct {
			res.DirectEffects = append(res.DirectEffects, eff)
		} else {
			res.SideEffects = append(res.SideEffects, eff)
		}
	}
	return res, nil
}
