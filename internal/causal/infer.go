package causal

import "math"

// maxCategories is the largest number of distinct integer values still
// treated as categorical.
const maxCategories = 10

// InferType classifies a series: two distinct values is binary, up to ten
// distinct integers is categorical, anything else continuous.
func InferType(values []float64) VariableType {
	distinct := make(map[float64]struct{})
	integral := true
	for _, v := range values {
		distinct[v] = struct{}{}
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			integral = false
		}
	}
	switch {
	case len(values) == 0:
		return TypeContinuous
	case len(distinct) == 2:
		return TypeBinary
	case integral && len(distinct) <= maxCategories:
		return TypeCategorical
	default:
		return TypeContinuous
	}
}
