package causal

import (
	"fmt"
	"math"
	"sort"

	"github.com/fractal-lba/quantcore/internal/stats"
)

// Discover builds the causal graph for a set of named series. Series of
// unequal length are truncated to the shortest. For every ordered pair the
// lag in 1..maxLag with the largest |r| between cause[t] and effect[t+lag]
// is the pair's strength; pairs that are weak or insignificant are left
// out. This is an approximation of a Granger test, not the F-test itself.
func (r *Reasoner) Discover(series map[string][]float64, opts Options) (*Graph, error) {
	if len(series) == 0 {
		return nil, ErrNoSeries
	}
	cfg, err := r.resolve(opts)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(series))
	n := -1
	for name, values := range series {
		if name == "" {
			return nil, fmt.Errorf("%w: empty variable name", ErrInvalidOptions)
		}
		names = append(names, name)
		if n < 0 || len(values) < n {
			n = len(values)
		}
	}
	sort.Strings(names)

	vars := make([]Variable, len(names))
	for i, name := range names {
		values := series[name][:n]
		vars[i] = Variable{
			Name:   name,
			Type:   InferType(values),
			Mean:   stats.Mean(values),
			Values: values,
		}
	}

	var rels []Relationship
	if n >= cfg.maxLag+3 {
		for i := range vars {
			for j := range vars {
				if i == j {
					continue
				}
				rel, ok := testPair(vars[i], vars[j], cfg)
				if !ok {
					continue
				}
				if cfg.confounders {
					rel.Confounders = confounders(vars, i, j)
					rel.Confounded = len(rel.Confounders) > 0
				}
				rels = append(rels, rel)
			}
		}
	}

	sort.SliceStable(rels, func(a, b int) bool {
		sa, sb := math.Abs(rels[a].Strength), math.Abs(rels[b].Strength)
		if sa != sb {
			return sa > sb
		}
		if rels[a].From != rels[b].From {
			return rels[a].From < rels[b].From
		}
		return rels[a].To < rels[b].To
	})

	g := &Graph{Variables: vars, Relationships: rels}
	g.RootCauses, g.TerminalEffects = endpoints(rels)
	return g, nil
}

// testPair evaluates cause -> effect over lags 1..maxLag.
func testPair(cause, effect Variable, cfg resolved) (Relationship, bool) {
	bestR, bestLag, bestN := 0.0, 0, 0
	for lag := 1; lag <= cfg.maxLag; lag++ {
		r, m := stats.LaggedCorrelation(cause.Values, effect.Values, lag)
		if math.Abs(r) > math.Abs(bestR) {
			bestR, bestLag, bestN = r, lag, m
		}
	}
	if math.Abs(bestR) <= MinStrength {
		return Relationship{}, false
	}
	p := stats.ApproxPValue(bestR, bestN)
	if p >= cfg.alpha {
		return Relationship{}, false
	}

	return Relationship{
		From:       cause.Name,
		To:         effect.Name,
		Strength:   bestR,
		Confidence: 1 - p,
		PValue:     p,
		Lag:        bestLag,
		Mechanism:  mechanism(cause.Name, effect.Name, bestR, bestLag),
	}, true
}

func mechanism(from, to string, r float64, lag int) string {
	verb := "raises"
	if r < 0 {
		verb = "lowers"
	}
	steps := "step"
	if lag != 1 {
		steps = "steps"
	}
	return fmt.Sprintf("a rise in %s %s %s %d %s later (r=%.2f)", from, verb, to, lag, steps, r)
}

// confounders lists every third variable correlated with both endpoints at
// lag 0 beyond ConfounderThreshold.
func confounders(vars []Variable, from, to int) []string {
	var out []string
	for k := range vars {
		if k == from || k == to {
			continue
		}
		ra := stats.Pearson(vars[k].Values, vars[from].Values)
		rb := stats.Pearson(vars[k].Values, vars[to].Values)
		if math.Abs(ra) > ConfounderThreshold && math.Abs(rb) > ConfounderThreshold {
			out = append(out, vars[k].Name)
		}
	}
	return out
}

// endpoints derives the variables that are only sources and only targets.
func endpoints(rels []Relationship) (roots, terminals []string) {
	sources := make(map[string]bool)
	targets := make(map[string]bool)
	for _, rel := range rels {
		sources[rel.From] = true
		targets[rel.To] = true
	}
	roots = []string{}
	terminals = []string{}
	for name := range sources {
		if !targets[name] {
			roots = append(roots, name)
		}
	}
	for name := range targets {
		if !sources[name] {
			terminals = append(terminals, name)
		}
	}
	sort.Strings(roots)
	sort.Strings(terminals)
	return roots, terminals
}

// DiscoveryConfidence is the mean relationship confidence, 0 for an empty
// graph.
func DiscoveryConfidence(g *Graph) float64 {
	if g == nil || len(g.Relationships) == 0 {
		return 0
	}
	var sum float64
	for _, rel := range g.Relationships {
		sum += rel.Confidence
	}
	return sum / float64(len(g.Relationships))
}
