// Package cluster groups loops by shape and arranges the groups in a binary merge tree.
//
// KMeans partitions curves with Lloyd's algorithm seeded by k-means++; Linkage merges the
// resulting centroids with weighted-average (WPGMA) linkage into a Tree whose merge distances
// are normalised to [0, 1]. Walk visits the tree depth-first, threading a value from each node
// to its children.
package cluster

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"

	"github.com/arloliu/loopfit/errs"
)

// DefaultMaxIterations bounds the Lloyd iterations of KMeans.
const DefaultMaxIterations = 300

// Partition is the result of KMeans.
type Partition struct {
	// Labels holds the cluster index of every input point.
	Labels []int
	// Centroids holds the k cluster means.
	Centroids [][]float64
	// Iterations is the number of Lloyd iterations performed.
	Iterations int
}

// Sizes returns the number of points in every cluster.
func (p Partition) Sizes() []int {
	sizes := make([]int, len(p.Centroids))
	for _, l := range p.Labels {
		sizes[l]++
	}

	return sizes
}

// KMeans partitions points into k clusters. All points must have the same length. The result is
// fully determined by seed.
func KMeans(points [][]float64, k int, seed uint64, maxIter int) (Partition, error) {
	n := len(points)
	if n == 0 {
		return Partition{}, fmt.Errorf("%w: no points to cluster", errs.ErrInvalidConfig)
	}
	if k < 1 || k > n {
		return Partition{}, fmt.Errorf("%w: k=%d with %d points", errs.ErrInvalidConfig, k, n)
	}
	dim := len(points[0])
	for i, p := range points {
		if len(p) != dim {
			return Partition{}, fmt.Errorf("%w: point %d has %d values, want %d", errs.ErrInvalidConfig, i, len(p), dim)
		}
	}
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	centroids := seedPlusPlus(points, k, rng)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}

	iter := 0
	for iter < maxIter {
		iter++
		changed := assign(points, centroids, labels)
		update(points, centroids, labels)
		if !changed {
			break
		}
	}

	return Partition{Labels: labels, Centroids: centroids, Iterations: iter}, nil
}

// seedPlusPlus picks k initial centroids: the first uniformly, each next one with probability
// proportional to its squared distance from the nearest centroid chosen so far.
func seedPlusPlus(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(points)
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, clone(points[rng.IntN(n)]))

	d2 := make([]float64, n)
	for i, p := range points {
		d2[i] = sq(floats.Distance(p, centroids[0], 2))
	}

	for len(centroids) < k {
		total := floats.Sum(d2)
		next := 0
		if total > 0 {
			target := rng.Float64() * total
			acc := 0.0
			next = n - 1
			for i, d := range d2 {
				acc += d
				if acc >= target && d > 0 {
					next = i
					break
				}
			}
		} else {
			// every point coincides with a centroid already; duplicate deterministically
			next = len(centroids) % n
		}
		c := clone(points[next])
		centroids = append(centroids, c)
		for i, p := range points {
			d2[i] = math.Min(d2[i], sq(floats.Distance(p, c, 2)))
		}
	}

	return centroids
}

// assign labels every point with its nearest centroid, lowest index on ties.
func assign(points, centroids [][]float64, labels []int) bool {
	changed := false
	for i, p := range points {
		best, bestDist := 0, math.Inf(1)
		for c, centroid := range centroids {
			if d := floats.Distance(p, centroid, 2); d < bestDist {
				best, bestDist = c, d
			}
		}
		if labels[i] != best {
			labels[i] = best
			changed = true
		}
	}

	return changed
}

// update recomputes centroids as member means. An empty cluster takes over the point farthest
// from its own centroid.
func update(points, centroids [][]float64, labels []int) {
	counts := make([]int, len(centroids))
	for _, c := range centroids {
		clear(c)
	}
	for i, p := range points {
		floats.Add(centroids[labels[i]], p)
		counts[labels[i]]++
	}
	for c := range centroids {
		if counts[c] > 0 {
			floats.Scale(1/float64(counts[c]), centroids[c])
		}
	}

	for c := range centroids {
		if counts[c] > 0 {
			continue
		}
		far, farDist := -1, -1.0
		for i, p := range points {
			if counts[labels[i]] < 2 {
				continue
			}
			if d := floats.Distance(p, centroids[labels[i]], 2); d > farDist {
				far, farDist = i, d
			}
		}
		if far < 0 {
			continue
		}
		counts[labels[far]]--
		labels[far] = c
		counts[c] = 1
		copy(centroids[c], points[far])
	}
}

func clone(p []float64) []float64 {
	out := make([]float64, len(p))
	copy(out, p)

	return out
}

func sq(x float64) float64 { return x * x }
