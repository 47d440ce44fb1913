package causal

import (
	"math"
	"sort"
)

// RootCauses walks upstream from target and ranks every ancestor by
// |path strength| descending, ties broken by name.
func (r *Reasoner) RootCauses(g *Graph, target string) (*RootCauseResult, error) {
	a, err := newArena(g)
	if err != nil {
		return nil, err
	}
	dst, err := a.lookup(target)
	if err != nil {
		return nil, err
	}

	t := a.walk(dst, true)
	res := &RootCauseResult{
		Target:         target,
		Causes:         make([]RootCause, 0, len(t.reached)),
		EdgeConfidence: meanOf(t.confidence),
	}
	for _, rc := range t.reached {
		// the walk records target -> cause; report cause -> target
		path := a.pathNames(rc.path)
		for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
			path[i], path[j] = path[j], path[i]
		}
		res.Causes = append(res.Causes, RootCause{
			Variable:     a.names[rc.node],
			PathStrength: rc.strength,
			Depth:        rc.depth,
			Path:         path,
		})
	}
	sort.SliceStable(res.Causes, func(i, j int) bool {
		si, sj := math.Abs(res.Causes[i].PathStrength), math.Abs(res.Causes[j].PathStrength)
		if si != sj {
			return si > sj
		}
		return res.Causes[i].Variable < res.Causes[j].Variable
	})
	return res, nil
}
