package causal

import (
	"fmt"
	"math"

	"github.com/fractal-lba/quantcore/internal/stats"
)

type edge struct {
	to         int
	strength   float64
	confidence float64
}

// arena is the index form of a Graph used for traversal. Variables are
// addressed by position; out and in hold the adjacency in both directions.
type arena struct {
	names []string
	means []float64
	index map[string]int
	out   [][]edge
	in    [][]edge
}

func newArena(g *Graph) (*arena, error) {
	a := &arena{
		names: make([]string, len(g.Variables)),
		means: make([]float64, len(g.Variables)),
		index: make(map[string]int, len(g.Variables)),
		out:   make([][]edge, len(g.Variables)),
		in:    make([][]edge, len(g.Variables)),
	}
	for i, v := range g.Variables {
		if _, dup := a.index[v.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate variable %q", ErrInvalidOptions, v.Name)
		}
		a.names[i] = v.Name
		a.index[v.Name] = i
		a.means[i] = v.Mean
		if len(v.Values) > 0 {
			a.means[i] = stats.Mean(v.Values)
		}
	}
	for _, rel := range g.Relationships {
		from, err := a.lookup(rel.From)
		if err != nil {
			return nil, err
		}
		to, err := a.lookup(rel.To)
		if err != nil {
			return nil, err
		}
		a.out[from] = append(a.out[from], edge{to: to, strength: rel.Strength, confidence: rel.Confidence})
		a.in[to] = append(a.in[to], edge{to: from, strength: rel.Strength, confidence: rel.Confidence})
	}
	return a, nil
}

func (a *arena) lookup(name string) (int, error) {
	i, ok := a.index[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownVariable, name)
	}
	return i, nil
}

// reach is one variable found by a traversal.
type reach struct {
	node     int
	strength float64
	depth    int
	path     []int // from the start node to node
}

// traversal is the result of a breadth-first walk.
type traversal struct {
	reached    []reach // discovery order, start excluded
	confidence []float64
}

// walk runs a breadth-first search from start over the out (downstream) or
// in (upstream) adjacency. Each variable is expanded once. A variable's path
// strength is the largest-magnitude product of edge strengths among the
// paths seen during the search; a stronger path found later updates the
// variable but is not propagated further.
func (a *arena) walk(start int, upstream bool) traversal {
	adj := a.out
	if upstream {
		adj = a.in
	}

	slot := make(map[int]int) // node -> index in reached
	visited := make([]bool, len(a.names))
	visited[start] = true
	paths := make([][]int, len(a.names))
	strengths := make([]float64, len(a.names))
	paths[start] = []int{start}
	strengths[start] = 1
	depths := make([]int, len(a.names))

	var t traversal
	queue := []int{start}
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]

		for _, e := range adj[u] {
			v := e.to
			if v == start {
				continue
			}
			t.confidence = append(t.confidence, e.confidence)
			s := strengths[u] * e.strength

			if !visited[v] {
				visited[v] = true
				strengths[v] = s
				depths[v] = depths[u] + 1
				paths[v] = extend(paths[u], v)
				slot[v] = len(t.reached)
				t.reached = append(t.reached, reach{node: v, strength: s, depth: depths[v], path: paths[v]})
				queue = append(queue, v)
				continue
			}

			if math.Abs(s) > math.Abs(strengths[v]) && !contains(paths[u], v) {
				strengths[v] = s
				paths[v] = extend(paths[u], v)
				r := &t.reached[slot[v]]
				r.strength = s
				r.path = paths[v]
			}
		}
	}
	return t
}

func extend(path []int, v int) []int {
	out := make([]int, len(path)+1)
	copy(out, path)
	out[len(path)] = v
	return out
}

func contains(path []int, v int) bool {
	for _, p := range path {
		if p == v {
			return true
		}
	}
	return false
}

func (a *arena) pathNames(path []int) []string {
	out := make([]string, len(path))
	for i, p := range path {
		out[i] = a.names[p]
	}
	return out
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stats.Mean(values)
}
