package ml

import (
	"math"
	"math/rand/v2"

	"demandinsights/internal/shared/domain"
)

// KMeansParams paramètres d'un k-means(++)
type KMeansParams struct {
	K       int
	NInit   int
	MaxIter int
	Seed    uint64
}

// KMeansResult meilleur partitionnement parmi les NInit initialisations
type KMeansResult struct {
	Centroids  [][]float64
	Labels     []int
	Inertia    float64
	Iterations int
}

// KMeans partitionne X en K clusters (initialisation k-means++, itérations de Lloyd)
// Le meilleur résultat (inertie minimale, la première initialisation gagne en cas
// d'égalité) parmi NInit graines dérivées de Seed est retourné.
func KMeans(X [][]float64, params KMeansParams, check Checker) (*KMeansResult, error) {
	n := len(X)
	if params.K < 1 {
		return nil, domain.NewValidationError("k", "must be at least 1")
	}
	if n < params.K {
		return nil, domain.NewDataInsufficientError("customers", params.K, n)
	}
	if params.NInit <= 0 {
		params.NInit = 10
	}
	if params.MaxIter <= 0 {
		params.MaxIter = 300
	}

	var best *KMeansResult
	for run := 0; run < params.NInit; run++ {
		rng := NewRand(params.Seed, uint64(params.K)<<32|uint64(run))
		res, err := lloyd(X, initPlusPlus(X, params.K, rng), params.MaxIter, check)
		if err != nil {
			return nil, err
		}
		if best == nil || res.Inertia < best.Inertia {
			best = res
		}
	}
	return best, nil
}

func initPlusPlus(X [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(X)
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, append([]float64(nil), X[rng.IntN(n)]...))

	dist := make([]float64, n)
	for i := range X {
		dist[i] = SquaredDistance(X[i], centroids[0])
	}

	for len(centroids) < k {
		total := 0.0
		for _, d := range dist {
			total += d
		}
		next := rng.IntN(n)
		if total > 0 {
			target := rng.Float64() * total
			acc := 0.0
			for i, d := range dist {
				acc += d
				if acc >= target && d > 0 {
					next = i
					break
				}
			}
		}
		c := append([]float64(nil), X[next]...)
		centroids = append(centroids, c)
		for i := range X {
			if d := SquaredDistance(X[i], c); d < dist[i] {
				dist[i] = d
			}
		}
	}
	return centroids
}

func lloyd(X [][]float64, centroids [][]float64, maxIter int, check Checker) (*KMeansResult, error) {
	n, k := len(X), len(centroids)
	dims := len(X[0])
	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}

	iter := 0
	for ; iter < maxIter; iter++ {
		if err := checkBudget(check); err != nil {
			return nil, err
		}

		changed := false
		for i, x := range X {
			l := nearest(x, centroids)
			if l != labels[i] {
				labels[i] = l
				changed = true
			}
		}
		if !changed {
			break
		}

		counts := make([]int, k)
		sums := make([][]float64, k)
		for c := range sums {
			sums[c] = make([]float64, dims)
		}
		for i, x := range X {
			counts[labels[i]]++
			for j, v := range x {
				sums[labels[i]][j] += v
			}
		}
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				// cluster vide: on le ré-ensemence avec le point le plus éloigné de son centre
				far := farthestPoint(X, labels, counts, centroids)
				counts[labels[far]]--
				for j, v := range X[far] {
					sums[labels[far]][j] -= v
				}
				labels[far] = c
				counts[c] = 1
				copy(sums[c], X[far])
			}
		}
		for c := 0; c < k; c++ {
			for j := range sums[c] {
				centroids[c][j] = sums[c][j] / float64(counts[c])
			}
		}
	}

	inertia := 0.0
	for i, x := range X {
		inertia += SquaredDistance(x, centroids[labels[i]])
	}
	return &KMeansResult{
		Centroids:  centroids,
		Labels:     labels,
		Inertia:    inertia,
		Iterations: iter,
	}, nil
}

func nearest(x []float64, centroids [][]float64) int {
	best, bestDist := 0, math.Inf(1)
	for c, centroid := range centroids {
		if d := SquaredDistance(x, centroid); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

func farthestPoint(X [][]float64, labels, counts []int, centroids [][]float64) int {
	far, farDist := 0, -1.0
	for i, x := range X {
		if counts[labels[i]] <= 1 {
			continue
		}
		if d := SquaredDistance(x, centroids[labels[i]]); d > farDist {
			far, farDist = i, d
		}
	}
	return far
}

// SquaredDistance distance euclidienne au carré
func SquaredDistance(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return s
}

// Silhouette coefficient de silhouette moyen d'un partitionnement
// Un point seul dans son cluster a une silhouette de 0.
func Silhouette(X [][]float64, labels []int, k int) float64 {
	n := len(X)
	if n < 2 || k < 2 {
		return 0
	}
	counts := make([]int, k)
	for _, l := range labels {
		counts[l]++
	}

	total := 0.0
	sums := make([]float64, k)
	for i := 0; i < n; i++ {
		for c := range sums {
			sums[c] = 0
		}
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			sums[labels[j]] += math.Sqrt(SquaredDistance(X[i], X[j]))
		}

		own := labels[i]
		if counts[own] <= 1 {
			continue
		}
		a := sums[own] / float64(counts[own]-1)
		b := math.Inf(1)
		for c := 0; c < k; c++ {
			if c == own || counts[c] == 0 {
				continue
			}
			if m := sums[c] / float64(counts[c]); m < b {
				b = m
			}
		}
		if math.IsInf(b, 1) {
			continue
		}
		if denom := math.Max(a, b); denom > 0 {
			total += (b - a) / denom
		}
	}
	return total / float64(n)
}
