package points

import (
	"sort"

	"github.com/fractal-lba/quantcore/internal/stats"
)

// ReductionMethod names the approximation so consumers never mistake it
// for an eigen-decomposition.
const ReductionMethod = "variance_ranking"

// Reduce approximates PCA by ranking the original dimensions by variance
// of the centred data and keeping the top components. Each component's
// explained share is its variance over the total variance. This is not a
// true eigenbasis: correlated dimensions are not merged.
func Reduce(pts []Point, opts ReductionOptions) Reduction {
	return reduceSpace(pts, newSpace(pts, nil), opts)
}

func reduceSpace(pts []Point, s *space, opts ReductionOptions) Reduction {
	components := opts.Components
	if components <= 0 {
		components = DefaultReductionComponents
	}

	means := make([]float64, len(s.dims))
	ranked := make([]Component, len(s.dims))
	var total float64
	for j, d := range s.dims {
		col := s.column(j)
		means[j] = stats.Mean(col)
		centred := make([]float64, len(col))
		for i, x := range col {
			centred[i] = x - means[j]
		}
		v := stats.Variance(centred)
		ranked[j] = Component{Dimension: d, Variance: v}
		total += v
	}

	sort.SliceStable(ranked, func(a, b int) bool {
		if ranked[a].Variance != ranked[b].Variance {
			return ranked[a].Variance > ranked[b].Variance
		}
		return ranked[a].Dimension < ranked[b].Dimension
	})
	if components > len(ranked) {
		components = len(ranked)
	}
	kept := ranked[:components]

	var cumulative float64
	for i := range kept {
		if total > 0 {
			kept[i].ExplainedVariance = kept[i].Variance / total
		}
		cumulative += kept[i].ExplainedVariance
	}

	red := Reduction{
		Method:              ReductionMethod,
		Components:          kept,
		CumulativeExplained: cumulative,
	}

	if opts.Project {
		index := make(map[string]int, len(s.dims))
		for j, d := range s.dims {
			index[d] = j
		}
		red.ProjectedPoints = make([]Point, len(pts))
		for i, p := range pts {
			proj := make(map[string]float64, len(kept))
			for _, c := range kept {
				j := index[c.Dimension]
				proj[c.Dimension] = s.vecs[i][j] - means[j]
			}
			red.ProjectedPoints[i] = Point{ID: p.ID, Dimensions: proj, Label: p.Label}
		}
	}

	return red
}
