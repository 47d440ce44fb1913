// Package points implements the point analyzer: k-means++ clustering with
// elbow-based k estimation, the dimension correlation matrix, z-score
// outliers, a variance-ranking dimensionality proxy and similarity queries.
//
// All functions are stateless. Randomness comes from an injected stats.Rand.
package points

import "errors"

var (
	ErrEmptyInput     = errors.New("no points supplied")
	ErrUnknownMetric  = errors.New("unknown distance metric")
	ErrUnknownMethod  = errors.New("unknown clustering method")
	ErrInvalidOptions = errors.New("invalid analysis options")
)

// Point is one observation. Dimension sets may differ between points; a
// missing dimension reads as 0.
type Point struct {
	ID         string             `json:"id"`
	Dimensions map[string]float64 `json:"dimensions"`
	Label      string             `json:"label,omitempty"`
	Metadata   map[string]string  `json:"metadata,omitempty"`
}

// Value returns the point's value for dim, 0 when absent.
func (p Point) Value(dim string) float64 {
	return p.Dimensions[dim]
}

// Cluster is a group of points around a centroid.
type Cluster struct {
	ID         int                `json:"id"`
	Centroid   map[string]float64 `json:"centroid"`
	Members    []Point            `json:"members"`
	Cohesion   float64            `json:"cohesion"`   // 1/(1+mean member distance), in (0,1]
	Separation float64            `json:"separation"` // distance to nearest other centroid
	Undersized bool               `json:"undersized,omitempty"`
}

// Size returns the member count.
func (c Cluster) Size() int {
	return len(c.Members)
}

// CorrelationPair is a flagged dimension pair.
type CorrelationPair struct {
	DimensionA   string  `json:"dimension_a"`
	DimensionB   string  `json:"dimension_b"`
	Coefficient  float64 `json:"coefficient"`
	Significance float64 `json:"significance"` // approximate two-tailed p-value
}

// CorrelationMatrix is symmetric over Dimensions with a unit diagonal.
type CorrelationMatrix struct {
	Dimensions       []string          `json:"dimensions"`
	Values           [][]float64       `json:"values"`
	SignificantPairs []CorrelationPair `json:"significant_pairs"`
}

// At returns the coefficient for two named dimensions.
func (m *CorrelationMatrix) At(a, b string) (float64, bool) {
	i, j := -1, -1
	for idx, d := range m.Dimensions {
		if d == a {
			i = idx
		}
		if d == b {
			j = idx
		}
	}
	if i < 0 || j < 0 {
		return 0, false
	}
	return m.Values[i][j], true
}

// OutlierDimension records one dimension whose z-score crossed the threshold.
type OutlierDimension struct {
	Dimension string  `json:"dimension"`
	Value     float64 `json:"value"`
	ZScore    float64 `json:"z_score"`
}

// Outlier is a point with at least one extreme dimension.
type Outlier struct {
	PointID    string             `json:"point_id"`
	Dimensions []OutlierDimension `json:"dimensions"`
	MaxZScore  float64            `json:"max_z_score"`
}

// Component is one retained dimension in the reduced representation.
type Component struct {
	Dimension         string  `json:"dimension"`
	Variance          float64 `json:"variance"`
	ExplainedVariance float64 `json:"explained_variance"`
}

// Reduction is the variance-ranking stand-in for PCA. Components are
// original dimensions ordered by variance, not eigenvectors.
type Reduction struct {
	Method              string      `json:"method"`
	Components          []Component `json:"components"`
	CumulativeExplained float64     `json:"cumulative_explained"`
	ProjectedPoints     []Point     `json:"projected_points,omitempty"`
}

// Neighbor is one nearest-neighbour result.
type Neighbor struct {
	Point      Point   `json:"point"`
	Similarity float64 `json:"similarity"`
	Distance   float64 `json:"distance"`
}

// Summary condenses an analysis for renderers.
type Summary struct {
	TotalPoints        int              `json:"total_points"`
	Dimensions         []string         `json:"dimensions"`
	ClusterCount       int              `json:"cluster_count"`
	EstimatedK         bool             `json:"estimated_k"`
	AverageCohesion    float64          `json:"average_cohesion"`
	OutlierCount       int              `json:"outlier_count"`
	StrongestPair      *CorrelationPair `json:"strongest_pair,omitempty"`
	UndersizedClusters int              `json:"undersized_clusters"`
}

// Result is the output of Analyze.
type Result struct {
	Clusters    []Cluster         `json:"clusters"`
	Correlation CorrelationMatrix `json:"correlation"`
	Outliers    []Outlier         `json:"outliers"`
	Reduction   *Reduction        `json:"reduction,omitempty"`
	Summary     Summary           `json:"summary"`
}
