package points

import (
	"math"
	"sort"

	"github.com/fractal-lba/quantcore/internal/stats"
)

// DetectOutliers flags every point with at least one dimension whose
// |z-score| exceeds threshold. Dimensions with zero spread are skipped.
func DetectOutliers(pts []Point, threshold float64) []Outlier {
	if threshold <= 0 {
		threshold = DefaultOutlierThreshold
	}
	return detectOutliers(pts, newSpace(pts, nil), threshold)
}

func detectOutliers(pts []Point, s *space, threshold float64) []Outlier {
	means := make([]float64, len(s.dims))
	sds := make([]float64, len(s.dims))
	for j := range s.dims {
		means[j], sds[j] = stats.MeanStdDev(s.column(j))
	}

	var outliers []Outlier
	for i, v := range s.vecs {
		var flagged []OutlierDimension
		for j, x := range v {
			if sds[j] == 0 {
				continue
			}
			z := (x - means[j]) / sds[j]
			if math.Abs(z) > threshold {
				flagged = append(flagged, OutlierDimension{
					Dimension: s.dims[j],
					Value:     x,
					ZScore:    z,
				})
			}
		}
		if len(flagged) == 0 {
			continue
		}

		sort.SliceStable(flagged, func(a, b int) bool {
			return math.Abs(flagged[a].ZScore) > math.Abs(flagged[b].ZScore)
		})
		outliers = append(outliers, Outlier{
			PointID:    pts[i].ID,
			Dimensions: flagged,
			MaxZScore:  math.Abs(flagged[0].ZScore),
		})
	}

	return outliers
}
