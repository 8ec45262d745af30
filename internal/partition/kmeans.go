package partition

import (
	"math"
	"math/rand"

	"github.com/rs/zerolog/log"
)

const (
	defaultMaxRetries    = 10
	defaultMaxIterations = 100
)

// KMeans clusters observation coordinates with Lloyd's algorithm and
// k-means++ seeding. Cluster membership becomes the fold index, keeping
// folds spatially compact. Predictors and responses are never consulted.
type KMeans struct {
	MaxRetries    int // re-initializations before giving up on a degenerate split
	MaxIterations int // Lloyd iterations per attempt
}

// NewKMeans returns a spatial partitioner with default retry and
// iteration budgets.
func NewKMeans() *KMeans {
	return &KMeans{
		MaxRetries:    defaultMaxRetries,
		MaxIterations: defaultMaxIterations,
	}
}

func (km *KMeans) Name() string { return "kmeans" }

// Partition clusters coords into k folds. A degenerate attempt (empty
// cluster) is retried with fresh centroids derived from the seed; if the
// retry budget is exhausted a *Error is returned.
func (km *KMeans) Partition(coords [][2]float64, k int, seed int64) (Assignment, error) {
	if err := validateInput(coords, k); err != nil {
		return nil, &Error{K: k, Attempts: 0, Reason: err.Error()}
	}
	if distinct := distinctCoords(coords); distinct < k {
		return nil, &Error{K: k, Attempts: 0, Reason: "fewer distinct coordinates than folds"}
	}

	retries := km.MaxRetries
	if retries <= 0 {
		retries = defaultMaxRetries
	}
	iterations := km.MaxIterations
	if iterations <= 0 {
		iterations = defaultMaxIterations
	}

	for attempt := 0; attempt < retries; attempt++ {
		// Each attempt gets its own deterministic stream so retries are
		// reproducible for a given seed.
		rng := rand.New(rand.NewSource(seed + int64(attempt)*7919))

		assignment, ok := km.cluster(coords, k, iterations, rng)
		if ok {
			return assignment, nil
		}
		log.Debug().
			Int("attempt", attempt+1).
			Int("k", k).
			Msg("Clustering produced an empty fold, retrying with fresh centroids")
	}

	return nil, &Error{K: k, Attempts: retries, Reason: "clustering kept producing empty folds"}
}

func (km *KMeans) cluster(coords [][2]float64, k, iterations int, rng *rand.Rand) (Assignment, bool) {
	centroids := seedCentroids(coords, k, rng)
	assignment := make(Assignment, len(coords))

	for iter := 0; iter < iterations; iter++ {
		changed := false
		for i, c := range coords {
			best := nearestCentroid(c, centroids)
			if assignment[i] != best {
				assignment[i] = best
				changed = true
			}
		}

		counts := make([]int, k)
		sums := make([][2]float64, k)
		for i, fold := range assignment {
			counts[fold]++
			sums[fold][0] += coords[i][0]
			sums[fold][1] += coords[i][1]
		}
		for j := 0; j < k; j++ {
			if counts[j] == 0 {
				return nil, false
			}
			centroids[j][0] = sums[j][0] / float64(counts[j])
			centroids[j][1] = sums[j][1] / float64(counts[j])
		}

		if !changed {
			break
		}
	}

	return assignment, true
}

// seedCentroids picks initial centroids with k-means++: the first is
// uniform, each subsequent one is drawn proportional to squared distance
// from the nearest centroid chosen so far.
func seedCentroids(coords [][2]float64, k int, rng *rand.Rand) [][2]float64 {
	centroids := make([][2]float64, 0, k)
	centroids = append(centroids, coords[rng.Intn(len(coords))])

	dists := make([]float64, len(coords))
	for len(centroids) < k {
		var total float64
		for i, c := range coords {
			d := math.Inf(1)
			for _, ct := range centroids {
				if dd := sqDist(c, ct); dd < d {
					d = dd
				}
			}
			dists[i] = d
			total += d
		}

		if total == 0 {
			// All remaining points coincide with a centroid; fall back
			// to a uniform draw.
			centroids = append(centroids, coords[rng.Intn(len(coords))])
			continue
		}

		target := rng.Float64() * total
		var cum float64
		picked := len(coords) - 1
		for i, d := range dists {
			cum += d
			if cum >= target {
				picked = i
				break
			}
		}
		centroids = append(centroids, coords[picked])
	}

	return centroids
}

func nearestCentroid(c [2]float64, centroids [][2]float64) int {
	best := 0
	bestDist := math.Inf(1)
	for j, ct := range centroids {
		if d := sqDist(c, ct); d < bestDist {
			bestDist = d
			best = j
		}
	}
	return best
}

func sqDist(a, b [2]float64) float64 {
	dx := a[0] - b[0]
	dy := a[1] - b[1]
	return dx*dx + dy*dy
}
