package causal

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fractal-lba/quantcore/internal/stats"
)

func uniform(rng stats.Rand) float64 {
	return 2*rng.Float64() - 1
}

// laggedPair returns x as white noise and y[t] = 0.8*x[t-1] + noise.
func laggedPair(n int, seed uint64) (x, y []float64) {
	rng := stats.NewRand(seed)
	x = make([]float64, n)
	y = make([]float64, n)
	for t := range x {
		x[t] = uniform(rng)
	}
	for t := range y {
		prev := 0.0
		if t > 0 {
			prev = x[t-1]
		}
		y[t] = 0.8*prev + 0.2*uniform(rng)
	}
	return x, y
}

func findRelationship(g *Graph, from, to string) (Relationship, bool) {
	for _, rel := range g.Relationships {
		if rel.From == from && rel.To == to {
			return rel, true
		}
	}
	return Relationship{}, false
}

func TestDiscoverLaggedRelationship(t *testing.T) {
	x, y := laggedPair(200, 17)
	r := NewReasoner(DefaultParams())

	g, err := r.Discover(map[string][]float64{"x": x, "y": y}, Options{SignificanceLevel: 0.05, MaxLag: 3})
	require.NoError(t, err)

	rel, ok := findRelationship(g, "x", "y")
	require.True(t, ok, "x -> y not discovered")
	assert.Greater(t, rel.Strength, 0.3)
	assert.Greater(t, rel.Confidence, 0.9)
	assert.Equal(t, 1, rel.Lag)
	assert.NotEmpty(t, rel.Mechanism)

	_, reverse := findRelationship(g, "y", "x")
	assert.False(t, reverse)

	assert.Equal(t, []string{"x"}, g.RootCauses)
	assert.Equal(t, []string{"y"}, g.TerminalEffects)
	assert.Greater(t, DiscoveryConfidence(g), 0.9)
}

func TestDiscoverFlagsConfounders(t *testing.T) {
	rng := stats.NewRand(5)
	n := 200
	z := make([]float64, n)
	x := make([]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		z[i] = 2*math.Sin(float64(i)/10) + 0.1*uniform(rng)
		x[i] = z[i] + 0.3*uniform(rng)
	}
	for i := 1; i < n; i++ {
		y[i] = 0.8*x[i-1] + 0.2*uniform(rng)
	}
	series := map[string][]float64{"x": x, "y": y, "z": z}
	r := NewReasoner(DefaultParams())

	g, err := r.Discover(series, Options{})
	require.NoError(t, err)
	rel, ok := findRelationship(g, "x", "y")
	require.True(t, ok)
	assert.True(t, rel.Confounded)
	assert.Contains(t, rel.Confounders, "z")
	for _, rel := range g.Relationships {
		assert.NotContains(t, rel.Confounders, rel.From)
		assert.NotContains(t, rel.Confounders, rel.To)
	}

	off := false
	g, err = r.Discover(series, Options{IncludeConfounders: &off})
	require.NoError(t, err)
	for _, rel := range g.Relationships {
		assert.False(t, rel.Confounded)
		assert.Empty(t, rel.Confounders)
	}
}

func TestDiscoverEdgeCases(t *testing.T) {
	r := NewReasoner(DefaultParams())

	_, err := r.Discover(nil, Options{})
	assert.ErrorIs(t, err, ErrNoSeries)

	_, err = r.Discover(map[string][]float64{"a": {1, 2}}, Options{SignificanceLevel: 2})
	assert.ErrorIs(t, err, ErrInvalidOptions)

	g, err := r.Discover(map[string][]float64{"a": {1, 2, 3, 4}, "b": {2, 4, 6, 8, 10}}, Options{})
	require.NoError(t, err)
	assert.Empty(t, g.Relationships)
	assert.Len(t, g.Variables[1].Values, 4, "series truncated to shortest")
	assert.Equal(t, 0.0, DiscoveryConfidence(g))
}

func TestInferType(t *testing.T) {
	assert.Equal(t, TypeBinary, InferType([]float64{0, 1, 1, 0}))
	assert.Equal(t, TypeCategorical, InferType([]float64{1, 2, 3, 2, 1}))
	assert.Equal(t, TypeContinuous, InferType([]float64{1.5, 2.25, 3}))
	assert.Equal(t, TypeContinuous, InferType([]float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}))
	assert.Equal(t, TypeContinuous, InferType(nil))
}

// chain is a -> b -> c with fixed means.
func chain() *Graph {
	return &Graph{
		Variables: []Variable{
			{Name: "a", Mean: 10},
			{Name: "b", Mean: 20},
			{Name: "c", Mean: 50},
		},
		Relationships: []Relationship{
			{From: "a", To: "b", Strength: 0.5, Confidence: 0.99},
			{From: "b", To: "c", Strength: 0.4, Confidence: 0.95},
		},
	}
}

func TestIntervene(t *testing.T) {
	r := NewReasoner(DefaultParams())

	res, err := r.Intervene(chain(), "a", 12)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, res.RelativeChange, 1e-12)

	require.Len(t, res.DirectEffects, 1)
	b := res.DirectEffects[0]
	assert.Equal(t, "b", b.Variable)
	assert.InDelta(t, 22.0, b.After, 1e-9)
	assert.InDelta(t, 10.0, b.PercentChange, 1e-9)

	require.Len(t, res.SideEffects, 1)
	c := res.SideEffects[0]
	assert.Equal(t, "c", c.Variable)
	assert.InDelta(t, 0.2, c.PathStrength, 1e-12)
	assert.InDelta(t, 52.0, c.After, 1e-9)
	assert.Equal(t, []string{"a", "b", "c"}, c.Path)
	assert.InDelta(t, 0.97, res.EdgeConfidence, 1e-12)
}

func TestInterveneWithoutOutgoingEdges(t *testing.T) {
	res, err := NewReasoner(DefaultParams()).Intervene(chain(), "c", 100)
	require.NoError(t, err)
	assert.Empty(t, res.DirectEffects)
	assert.Empty(t, res.SideEffects)
	assert.Equal(t, 0.0, res.EdgeConfidence)
}

func TestInterveneKeepsStrongestPath(t *testing.T) {
	g := chain()
	g.Relationships = append(g.Relationships, Relationship{From: "a", To: "c", Strength: 0.1, Confidence: 0.9})

	res, err := NewReasoner(DefaultParams()).Intervene(g, "a", 12)
	require.NoError(t, err)
	require.Len(t, res.DirectEffects, 2)

	c := res.DirectEffects[1]
	assert.Equal(t, "c", c.Variable)
	assert.InDelta(t, 0.2, c.PathStrength, 1e-12)
	assert.Equal(t, []string{"a", "b", "c"}, c.Path)
}

func TestInterveneTerminatesOnCycles(t *testing.T) {
	g := chain()
	g.Relationships = append(g.Relationships,
		Relationship{From: "c", To: "a", Strength: 0.9, Confidence: 0.9},
		Relationship{From: "c", To: "b", Strength: 0.9, Confidence: 0.9},
	)

	res, err := NewReasoner(DefaultParams()).Intervene(g, "a", 20)
	require.NoError(t, err)
	reached := len(res.DirectEffects) + len(res.SideEffects)
	assert.Equal(t, 2, reached)
	for _, e := range append(res.DirectEffects, res.SideEffects...) {
		assert.NotEqual(t, "a", e.Variable)
	}
}

func TestInterveneErrors(t *testing.T) {
	r := NewReasoner(DefaultParams())
	_, err := r.Intervene(chain(), "missing", 1)
	assert.ErrorIs(t, err, ErrUnknownVariable)

	g := chain()
	g.Relationships = append(g.Relationships, Relationship{From: "a", To: "ghost"})
	_, err = r.Intervene(g, "a", 1)
	assert.ErrorIs(t, err, ErrUnknownVariable)
}

func TestCounterfactualBuildsOnPriorChanges(t *testing.T) {
	res, err := NewReasoner(DefaultParams()).Counterfactual(chain(), []Change{
		{Variable: "a", Value: 12},
		{Variable: "b", Value: 30},
	}, nil)
	require.NoError(t, err)

	assert.InDelta(t, 12.0, res.Counterfactual["a"], 1e-9)
	assert.InDelta(t, 30.0, res.Counterfactual["b"], 1e-9)
	// c: 50*1.04 after the first change, then scaled by 1 + 0.4*(8/22)
	assert.InDelta(t, 52*(1+0.4*8.0/22), res.Counterfactual["c"], 1e-9)

	require.Len(t, res.Deltas, 3)
	assert.Equal(t, "b", res.Deltas[0].Variable)
	assert.Equal(t, "c", res.Deltas[1].Variable)
	assert.Equal(t, "a", res.Deltas[2].Variable)
	assert.Contains(t, res.Explanation, "b +10")
}

func TestCounterfactualActualOverride(t *testing.T) {
	r := NewReasoner(DefaultParams())
	res, err := r.Counterfactual(chain(), []Change{{Variable: "a", Value: 10}}, map[string]float64{"a": 5})
	require.NoError(t, err)
	assert.Equal(t, 5.0, res.Actual["a"])
	// relative change (10-5)/5 = 1 lifts b by the full edge strength
	assert.InDelta(t, 30.0, res.Counterfactual["b"], 1e-9)

	_, err = r.Counterfactual(chain(), []Change{{Variable: "a", Value: 1}}, map[string]float64{"zz": 1})
	assert.ErrorIs(t, err, ErrUnknownVariable)

	_, err = r.Counterfactual(chain(), nil, nil)
	assert.ErrorIs(t, err, ErrInvalidOptions)

	res, err = r.Counterfactual(chain(), []Change{{Variable: "c", Value: 50}}, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Deltas)
	assert.Contains(t, res.Explanation, "No variable changes")
}

func TestRootCauses(t *testing.T) {
	res, err := NewReasoner(DefaultParams()).RootCauses(chain(), "c")
	require.NoError(t, err)
	require.Len(t, res.Causes, 2)

	assert.Equal(t, "b", res.Causes[0].Variable)
	assert.InDelta(t, 0.4, res.Causes[0].PathStrength, 1e-12)
	assert.Equal(t, 1, res.Causes[0].Depth)

	assert.Equal(t, "a", res.Causes[1].Variable)
	assert.InDelta(t, 0.2, res.Causes[1].PathStrength, 1e-12)
	assert.Equal(t, []string{"a", "b", "c"}, res.Causes[1].Path)

	res, err = NewReasoner(DefaultParams()).RootCauses(chain(), "a")
	require.NoError(t, err)
	assert.Empty(t, res.Causes)
}
