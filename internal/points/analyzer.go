package points

import (
	"math"

	"github.com/fractal-lba/quantcore/internal/stats"
)

// Analyzer runs full point analyses. It holds only immutable defaults and
// is safe for concurrent use.
type Analyzer struct {
	defaults Options
}

// NewAnalyzer creates an analyzer whose defaults fill unset request fields.
func NewAnalyzer(defaults Options) *Analyzer {
	return &Analyzer{defaults: defaults}
}

// Defaults returns the analyzer's default options.
func (a *Analyzer) Defaults() Options {
	return a.defaults
}

func (a *Analyzer) merge(opts Options) Options {
	out := opts
	if out.Clustering.Method == "" {
		out.Clustering.Method = a.defaults.Clustering.Method
	}
	if out.Clustering.DistanceMetric == "" {
		out.Clustering.DistanceMetric = a.defaults.Clustering.DistanceMetric
	}
	if out.Clustering.K == 0 {
		out.Clustering.K = a.defaults.Clustering.K
	}
	if out.Clustering.MinClusterSize == 0 {
		out.Clustering.MinClusterSize = a.defaults.Clustering.MinClusterSize
	}
	if def := a.defaults.OutlierDetection; def != nil {
		if out.OutlierDetection == nil {
			out.OutlierDetection = def
		} else if out.OutlierDetection.Threshold == 0 {
			od := *out.OutlierDetection
			od.Threshold = def.Threshold
			out.OutlierDetection = &od
		}
	}
	if def := a.defaults.DimensionReduction; def != nil {
		if out.DimensionReduction == nil {
			out.DimensionReduction = def
		} else if out.DimensionReduction.Components == 0 {
			dr := *out.DimensionReduction
			dr.Components = def.Components
			out.DimensionReduction = &dr
		}
	}
	if out.Weights == nil {
		out.Weights = a.defaults.Weights
	}
	return out
}

// Analyze clusters the points, computes the correlation structure, flags
// outliers and, when asked, the reduced representation. rng may be nil, in
// which case a source is derived from opts.Seed.
func (a *Analyzer) Analyze(pts []Point, opts Options, rng stats.Rand) (*Result, error) {
	if len(pts) == 0 {
		return nil, ErrEmptyInput
	}

	opts, err := a.merge(opts).normalize()
	if err != nil {
		return nil, err
	}
	metric, err := MetricByName(opts.Clustering.DistanceMetric)
	if err != nil {
		return nil, err
	}
	if rng == nil {
		rng = stats.RandFor(opts.Seed)
	}

	k := opts.Clustering.K
	estimated := false
	if k == 0 {
		k = EstimateK(pts, metric, opts.Weights, rng)
		estimated = true
	}
	if k > len(pts) {
		k = len(pts)
	}

	clusters, err := ClusterPoints(pts, k, metric, opts.Weights, rng)
	if err != nil {
		return nil, err
	}

	undersized := 0
	if opts.Clustering.MinClusterSize > 0 {
		for i := range clusters {
			if clusters[i].Size() < opts.Clustering.MinClusterSize {
				clusters[i].Undersized = true
				undersized++
			}
		}
	}

	s := newSpace(pts, nil)
	result := &Result{
		Clusters:    clusters,
		Correlation: correlateSpace(s),
	}

	if od := opts.OutlierDetection; od != nil && od.Enabled {
		result.Outliers = detectOutliers(pts, s, od.Threshold)
	}

	if dr := opts.DimensionReduction; dr != nil && dr.Enabled {
		red := reduceSpace(pts, s, *dr)
		result.Reduction = &red
	}

	result.Summary = summarize(pts, s.dims, result, estimated, undersized)
	return result, nil
}

func summarize(pts []Point, dims []string, r *Result, estimated bool, undersized int) Summary {
	var cohesion float64
	for _, c := range r.Clusters {
		cohesion += c.Cohesion
	}
	if len(r.Clusters) > 0 {
		cohesion /= float64(len(r.Clusters))
	}

	sum := Summary{
		TotalPoints:        len(pts),
		Dimensions:         dims,
		ClusterCount:       len(r.Clusters),
		EstimatedK:         estimated,
		AverageCohesion:    cohesion,
		OutlierCount:       len(r.Outliers),
		UndersizedClusters: undersized,
	}
	if len(r.Correlation.SignificantPairs) > 0 {
		strongest := r.Correlation.SignificantPairs[0]
		sum.StrongestPair = &strongest
	}
	return sum
}

// Confidence scores an analysis in [0,1]: mean cluster cohesion scaled by
// the share of points that are not outliers.
func Confidence(r *Result) float64 {
	if r == nil || r.Summary.TotalPoints == 0 {
		return 0
	}
	inliers := 1 - float64(r.Summary.OutlierCount)/float64(r.Summary.TotalPoints)
	return math.Max(0, math.Min(1, r.Summary.AverageCohesion*inliers))
}
