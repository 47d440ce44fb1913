package points

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

const (
	MetricEuclidean = "euclidean"
	MetricManhattan = "manhattan"
	MetricCosine    = "cosine"
)

// DistanceFunc measures two dense vectors laid out over the same dimension
// list. w holds per-dimension weights and may be nil.
type DistanceFunc func(a, b, w []float64) float64

// MetricByName resolves a distance metric.
func MetricByName(name string) (DistanceFunc, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", MetricEuclidean:
		return Euclidean, nil
	case MetricManhattan:
		return Manhattan, nil
	case MetricCosine:
		return Cosine, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, name)
	}
}

func weightAt(w []float64, i int) float64 {
	if w == nil {
		return 1
	}
	return w[i]
}

// Euclidean is the (optionally weighted) L2 distance.
func Euclidean(a, b, w []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += weightAt(w, i) * d * d
	}
	return math.Sqrt(sum)
}

// Manhattan is the (optionally weighted) L1 distance.
func Manhattan(a, b, w []float64) float64 {
	var sum float64
	for i := range a {
		sum += weightAt(w, i) * math.Abs(a[i]-b[i])
	}
	return sum
}

// Cosine is 1 - cosine similarity. Zero vectors are at distance 1 from
// everything.
func Cosine(a, b, w []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		wi := weightAt(w, i)
		dot += wi * a[i] * b[i]
		na += wi * a[i] * a[i]
		nb += wi * b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 1
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return 1 - math.Max(-1, math.Min(1, sim))
}

// space is the dense layout shared by one analysis: every point becomes a
// vector over the sorted union of dimension names, absent keys as 0.
type space struct {
	dims    []string
	vecs    [][]float64
	weights []float64
}

func dimensionsOf(pts ...Point) []string {
	seen := make(map[string]struct{})
	for _, p := range pts {
		for d := range p.Dimensions {
			seen[d] = struct{}{}
		}
	}
	dims := make([]string, 0, len(seen))
	for d := range seen {
		dims = append(dims, d)
	}
	sort.Strings(dims)
	return dims
}

func newSpace(pts []Point, weights map[string]float64) *space {
	s := &space{dims: dimensionsOf(pts...)}
	s.vecs = make([][]float64, len(pts))
	for i, p := range pts {
		s.vecs[i] = vectorOf(p, s.dims)
	}
	if len(weights) > 0 {
		s.weights = make([]float64, len(s.dims))
		for i, d := range s.dims {
			if w, ok := weights[d]; ok {
				s.weights[i] = w
			} else {
				s.weights[i] = 1
			}
		}
	}
	return s
}

func vectorOf(p Point, dims []string) []float64 {
	v := make([]float64, len(dims))
	for i, d := range dims {
		v[i] = p.Dimensions[d]
	}
	return v
}

// column returns every point's value for dimension index j.
func (s *space) column(j int) []float64 {
	col := make([]float64, len(s.vecs))
	for i, v := range s.vecs {
		col[i] = v[j]
	}
	return col
}

// Distance measures two points over the union of their dimension keys.
func Distance(a, b Point, metric DistanceFunc) float64 {
	dims := dimensionsOf(a, b)
	return metric(vectorOf(a, dims), vectorOf(b, dims), nil)
}
