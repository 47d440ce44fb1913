package points

import (
	"fmt"
	"math"

	"github.com/fractal-lba/quantcore/internal/stats"
)

type kmeansRun struct {
	centroids  [][]float64
	assign     []int
	inertia    float64
	iterations int
}

// seedCentroids picks k starting centroids with the k-means++ scheme: the
// first uniformly, each next one with probability proportional to the
// squared distance to its nearest already-chosen centroid.
func seedCentroids(vecs [][]float64, w []float64, k int, dist DistanceFunc, rng stats.Rand) [][]float64 {
	n := len(vecs)
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, clone(vecs[rng.IntN(n)]))

	nearest := make([]float64, n)
	for i := range nearest {
		nearest[i] = math.Inf(1)
	}

	for len(centroids) < k {
		last := centroids[len(centroids)-1]
		var total float64
		for i, v := range vecs {
			d := dist(v, last, w)
			if d*d < nearest[i] {
				nearest[i] = d * d
			}
			total += nearest[i]
		}

		// All remaining points coincide with a centroid
		if total == 0 {
			centroids = append(centroids, clone(vecs[rng.IntN(n)]))
			continue
		}

		target := rng.Float64() * total
		chosen := n - 1
		var acc float64
		for i, d2 := range nearest {
			acc += d2
			if acc >= target && d2 > 0 {
				chosen = i
				break
			}
		}
		centroids = append(centroids, clone(vecs[chosen]))
	}

	return centroids
}

// runKMeans performs seeding plus at most maxIter assignment rounds,
// stopping as soon as no assignment changes. Centroids are not moved after
// the final round, so every point stays assigned to its nearest centroid.
func runKMeans(vecs [][]float64, w []float64, k int, dist DistanceFunc, rng stats.Rand, maxIter int) kmeansRun {
	n := len(vecs)
	if k > n {
		k = n
	}
	centroids := seedCentroids(vecs, w, k, dist, rng)

	assign := make([]int, n)
	for i := range assign {
		assign[i] = -1
	}

	iterations := 0
	for iterations < maxIter {
		iterations++
		changed := false
		for i, v := range vecs {
			best := nearestCentroid(v, centroids, w, dist)
			if best != assign[i] {
				assign[i] = best
				changed = true
			}
		}
		if !changed || iterations == maxIter {
			break
		}
		updateCentroids(vecs, assign, centroids)
	}

	var inertia float64
	for i, v := range vecs {
		d := dist(v, centroids[assign[i]], w)
		inertia += d * d
	}

	return kmeansRun{
		centroids:  centroids,
		assign:     assign,
		inertia:    inertia,
		iterations: iterations,
	}
}

func nearestCentroid(v []float64, centroids [][]float64, w []float64, dist DistanceFunc) int {
	best := 0
	bestDist := math.Inf(1)
	for c, centroid := range centroids {
		d := dist(v, centroid, w)
		if d < bestDist {
			bestDist = d
			best = c
		}
	}
	return best
}

// updateCentroids recomputes each centroid as the per-dimension mean of its
// members. A centroid with no members keeps its previous position.
func updateCentroids(vecs [][]float64, assign []int, centroids [][]float64) {
	dims := len(centroids[0])
	sums := make([][]float64, len(centroids))
	counts := make([]int, len(centroids))
	for c := range sums {
		sums[c] = make([]float64, dims)
	}

	for i, v := range vecs {
		c := assign[i]
		counts[c]++
		for j, x := range v {
			sums[c][j] += x
		}
	}

	for c := range centroids {
		if counts[c] == 0 {
			continue
		}
		for j := range centroids[c] {
			centroids[c][j] = sums[c][j] / float64(counts[c])
		}
	}
}

func clone(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}

// EstimateK picks a cluster count with the elbow method: run k-means for
// k = 1..min(10, n/2) and return the k with the largest discrete second
// difference of the inertia curve. Fewer than 3 points, or fewer than three
// candidate values of k, yield 1.
func EstimateK(pts []Point, metric DistanceFunc, weights map[string]float64, rng stats.Rand) int {
	n := len(pts)
	if n < 3 {
		return 1
	}
	maxK := n / 2
	if maxK > maxEstimatedK {
		maxK = maxEstimatedK
	}
	if maxK < 3 {
		return 1
	}

	s := newSpace(pts, weights)
	inertias := make([]float64, maxK)
	for k := 1; k <= maxK; k++ {
		inertias[k-1] = runKMeans(s.vecs, s.weights, k, metric, rng, MaxIterations).inertia
	}

	bestK := 1
	bestElbow := math.Inf(-1)
	for i := 1; i < len(inertias)-1; i++ {
		elbow := inertias[i-1] - 2*inertias[i] + inertias[i+1]
		if elbow > bestElbow {
			bestElbow = elbow
			bestK = i + 1
		}
	}
	return bestK
}

// ClusterPoints partitions the points into k clusters. Clusters that end up
// empty are dropped, so every returned cluster has at least one member and
// every point belongs to exactly one cluster.
func ClusterPoints(pts []Point, k int, metric DistanceFunc, weights map[string]float64, rng stats.Rand) ([]Cluster, error) {
	if len(pts) == 0 {
		return nil, ErrEmptyInput
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ErrInvalidOptions, k)
	}

	s := newSpace(pts, weights)
	run := runKMeans(s.vecs, s.weights, k, metric, rng, MaxIterations)

	members := make([][]int, len(run.centroids))
	for i, c := range run.assign {
		members[c] = append(members[c], i)
	}

	type built struct {
		centroid []float64
		idx      []int
	}
	var live []built
	for c, idx := range members {
		if len(idx) > 0 {
			live = append(live, built{centroid: run.centroids[c], idx: idx})
		}
	}

	clusters := make([]Cluster, len(live))
	for c, b := range live {
		memberPts := make([]Point, len(b.idx))
		present := make(map[string]struct{})
		var distSum float64
		for m, i := range b.idx {
			memberPts[m] = pts[i]
			for d := range pts[i].Dimensions {
				present[d] = struct{}{}
			}
			distSum += metric(s.vecs[i], b.centroid, s.weights)
		}

		centroid := make(map[string]float64, len(present))
		for j, d := range s.dims {
			if _, ok := present[d]; ok {
				centroid[d] = b.centroid[j]
			}
		}

		separation := 0.0
		first := true
		for o, other := range live {
			if o == c {
				continue
			}
			d := metric(b.centroid, other.centroid, s.weights)
			if first || d < separation {
				separation = d
				first = false
			}
		}

		clusters[c] = Cluster{
			ID:         c,
			Centroid:   centroid,
			Members:    memberPts,
			Cohesion:   1 / (1 + distSum/float64(len(b.idx))),
			Separation: separation,
		}
	}

	return clusters, nil
}
