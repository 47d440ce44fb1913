package points

import (
	"fmt"
	"strings"
)

const (
	MethodKMeans = "kmeans"

	DefaultOutlierThreshold    = 3.0
	DefaultReductionComponents = 2
	MaxIterations              = 100
	maxEstimatedK              = 10
)

// ClusteringOptions controls the k-means run. K == 0 asks for the elbow
// estimate.
type ClusteringOptions struct {
	Method         string `json:"method,omitempty"`
	K              int    `json:"k,omitempty"`
	MinClusterSize int    `json:"min_cluster_size,omitempty"`
	DistanceMetric string `json:"distance_metric,omitempty"`
}

// ReductionOptions enables the variance-ranking projection.
type ReductionOptions struct {
	Enabled    bool `json:"enabled"`
	Components int  `json:"components,omitempty"`
	Project    bool `json:"project,omitempty"`
}

// OutlierOptions controls z-score flagging.
type OutlierOptions struct {
	Enabled   bool    `json:"enabled"`
	Threshold float64 `json:"threshold,omitempty"`
}

// Options is the full analysis configuration. Zero values mean defaults.
type Options struct {
	Clustering         ClusteringOptions  `json:"clustering"`
	DimensionReduction *ReductionOptions  `json:"dimension_reduction,omitempty"`
	OutlierDetection   *OutlierOptions    `json:"outlier_detection,omitempty"`
	Weights            map[string]float64 `json:"weights,omitempty"`
	Seed               uint64             `json:"seed,omitempty"`
}

// DefaultOptions returns the documented defaults: estimated k, euclidean
// distance, outliers on at threshold 3, no reduction.
func DefaultOptions() Options {
	return Options{
		Clustering: ClusteringOptions{
			Method:         MethodKMeans,
			DistanceMetric: MetricEuclidean,
		},
		OutlierDetection: &OutlierOptions{Enabled: true, Threshold: DefaultOutlierThreshold},
	}
}

// normalize fills defaults and validates. It returns a copy.
func (o Options) normalize() (Options, error) {
	out := o
	method := strings.ToLower(strings.TrimSpace(out.Clustering.Method))
	switch method {
	case "", MethodKMeans, "kmeans++", "k-means":
		out.Clustering.Method = MethodKMeans
	default:
		return out, fmt.Errorf("%w: %q", ErrUnknownMethod, o.Clustering.Method)
	}

	if out.Clustering.DistanceMetric == "" {
		out.Clustering.DistanceMetric = MetricEuclidean
	}
	if _, err := MetricByName(out.Clustering.DistanceMetric); err != nil {
		return out, err
	}

	if out.Clustering.K < 0 {
		return out, fmt.Errorf("%w: k must be non-negative, got %d", ErrInvalidOptions, out.Clustering.K)
	}
	if out.Clustering.MinClusterSize < 0 {
		return out, fmt.Errorf("%w: min_cluster_size must be non-negative", ErrInvalidOptions)
	}

	if out.OutlierDetection != nil {
		od := *out.OutlierDetection
		if od.Threshold == 0 {
			od.Threshold = DefaultOutlierThreshold
		}
		if od.Threshold < 0 {
			return out, fmt.Errorf("%w: outlier threshold must be positive", ErrInvalidOptions)
		}
		out.OutlierDetection = &od
	}

	if out.DimensionReduction != nil {
		dr := *out.DimensionReduction
		if dr.Components <= 0 {
			dr.Components = DefaultReductionComponents
		}
		out.DimensionReduction = &dr
	}

	for dim, w := range out.Weights {
		if w < 0 {
			return out, fmt.Errorf("%w: negative weight for %q", ErrInvalidOptions, dim)
		}
	}

	return out, nil
}
