package points

import "sort"

// Similarity is 1/(1+euclidean distance) over the union of both points'
// dimensions.
func Similarity(a, b Point) float64 {
	return 1 / (1 + Distance(a, b, Euclidean))
}

// NearestNeighbors ranks candidates by descending similarity to target.
// A candidate sharing the target's non-empty ID is skipped. n <= 0 returns
// every candidate.
func NearestNeighbors(target Point, candidates []Point, n int) []Neighbor {
	neighbors := make([]Neighbor, 0, len(candidates))
	for _, c := range candidates {
		if target.ID != "" && c.ID == target.ID {
			continue
		}
		d := Distance(target, c, Euclidean)
		neighbors = append(neighbors, Neighbor{
			Point:      c,
			Similarity: 1 / (1 + d),
			Distance:   d,
		})
	}

	sort.SliceStable(neighbors, func(i, j int) bool {
		if neighbors[i].Similarity != neighbors[j].Similarity {
			return neighbors[i].Similarity > neighbors[j].Similarity
		}
		return neighbors[i].Point.ID < neighbors[j].Point.ID
	})

	if n > 0 && n < len(neighbors) {
		neighbors = neighbors[:n]
	}
	return neighbors
}
