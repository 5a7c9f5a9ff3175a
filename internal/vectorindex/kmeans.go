package vectorindex

import (
	"math"
	"math/rand/v2"
)

// train runs spherical k-means over the (unit) entry vectors and returns up to
// k unit centroids. Fewer than two usable clusters returns nil, which leaves
// the index as a single exhaustive partition.
func train(entries []*entry, k, iterations int, seed uint64) [][]float32 {
	points := sample(entries, k*maxTrainingPointsPerPartition)
	k = min(k, len(points))
	if k < 2 {
		return nil
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	centroids := seedCentroids(points, k, rng)
	dim := len(points[0])
	assign := make([]int, len(points))

	for iter := 0; iter < iterations; iter++ {
		changed := false
		for i, p := range points {
			c := nearestCentroid(centroids, p)
			if iter == 0 || c != assign[i] {
				changed = true
			}
			assign[i] = c
		}

		sums := make([][]float64, k)
		counts := make([]int, k)
		for i := range sums {
			sums[i] = make([]float64, dim)
		}
		for i, p := range points {
			c := assign[i]
			counts[c]++
			for d, x := range p {
				sums[c][d] += float64(x)
			}
		}
		for c := range centroids {
			if counts[c] == 0 {
				continue // keep the previous centroid for an empty cluster
			}
			centroids[c] = unitFromSum(sums[c])
		}

		if !changed {
			break
		}
	}
	return centroids
}

// sample picks at most n points with a fixed stride so training is deterministic
func sample(entries []*entry, n int) [][]float32 {
	points := make([][]float32, 0, min(n, len(entries)))
	if len(entries) <= n {
		for _, e := range entries {
			points = append(points, e.vec)
		}
		return points
	}
	stride := float64(len(entries)) / float64(n)
	for i := 0; i < n; i++ {
		points = append(points, entries[int(float64(i)*stride)].vec)
	}
	return points
}

// seedCentroids is k-means++ initialisation over cosine distance
func seedCentroids(points [][]float32, k int, rng *rand.Rand) [][]float32 {
	centroids := make([][]float32, 0, k)
	centroids = append(centroids, clone(points[rng.IntN(len(points))]))

	dists := make([]float64, len(points))
	for i, p := range points {
		dists[i] = cosineDistance(p, centroids[0])
	}

	for len(centroids) < k {
		var total float64
		for _, d := range dists {
			total += d * d
		}

		next := 0
		if total == 0 {
			next = rng.IntN(len(points))
		} else {
			target := rng.Float64() * total
			for i, d := range dists {
				target -= d * d
				if target <= 0 {
					next = i
					break
				}
			}
		}

		c := clone(points[next])
		centroids = append(centroids, c)
		for i, p := range points {
			dists[i] = math.Min(dists[i], cosineDistance(p, c))
		}
	}
	return centroids
}

func unitFromSum(sum []float64) []float32 {
	var norm float64
	for _, x := range sum {
		norm += x * x
	}
	out := make([]float32, len(sum))
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, x := range sum {
		out[i] = float32(x / norm)
	}
	return out
}

func clone(v []float32) []float32 {
	return append([]float32(nil), v...)
}
