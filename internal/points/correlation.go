package points

import (
	"math"
	"sort"

	"github.com/fractal-lba/quantcore/internal/stats"
)

// SignificantCorrelation is the |r| above which a pair is reported.
const SignificantCorrelation = 0.5

// Correlate builds the Pearson matrix over every observed dimension.
// Zero-variance dimensions correlate 0 with everything else; the diagonal
// is always 1.
func Correlate(pts []Point) CorrelationMatrix {
	s := newSpace(pts, nil)
	return correlateSpace(s)
}

func correlateSpace(s *space) CorrelationMatrix {
	d := len(s.dims)
	cols := make([][]float64, d)
	for j := range cols {
		cols[j] = s.column(j)
	}

	values := make([][]float64, d)
	for i := range values {
		values[i] = make([]float64, d)
		values[i][i] = 1
	}

	n := len(s.vecs)
	var pairs []CorrelationPair
	for i := 0; i < d; i++ {
		for j := i + 1; j < d; j++ {
			r := stats.Pearson(cols[i], cols[j])
			values[i][j] = r
			values[j][i] = r

			if math.Abs(r) > SignificantCorrelation {
				pairs = append(pairs, CorrelationPair{
					DimensionA:   s.dims[i],
					DimensionB:   s.dims[j],
					Coefficient:  r,
					Significance: stats.ApproxPValue(r, n),
				})
			}
		}
	}

	sort.SliceStable(pairs, func(a, b int) bool {
		return math.Abs(pairs[a].Coefficient) > math.Abs(pairs[b].Coefficient)
	})

	return CorrelationMatrix{
		Dimensions:       s.dims,
		Values:           values,
		SignificantPairs: pairs,
	}
}
