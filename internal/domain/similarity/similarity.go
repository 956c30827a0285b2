// Package similarity computes pairwise mention distances.
package similarity

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Metric is a closed set of distance functions.
type Metric string

const (
	// Cosine is 1 - cos(a, b). Zero-norm vectors are at distance 1 from everything else.
	Cosine Metric = "cosine"
	// Euclidean is the L2 distance.
	Euclidean Metric = "euclidean"
)

// ParseMetric validates a metric name. Empty means Cosine.
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case "", Cosine:
		return Cosine, nil
	case Euclidean:
		return Euclidean, nil
	default:
		return "", fmt.Errorf("unknown metric %q", s)
	}
}

// Matrix is a symmetric N×N distance matrix with a zero diagonal, stored condensed
// (upper triangle, row-major) like scipy's pdist output.
type Matrix struct {
	n    int
	data []float64
}

// NewMatrix allocates an all-zero matrix of size n.
func NewMatrix(n int) *Matrix {
	size := 0
	if n > 1 {
		size = n * (n - 1) / 2
	}
	return &Matrix{n: n, data: make([]float64, size)}
}

// Size returns N.
func (m *Matrix) Size() int { return m.n }

// At returns the distance between i and j.
func (m *Matrix) At(i, j int) float64 {
	if i == j {
		return 0
	}
	return m.data[m.offset(i, j)]
}

// Set stores the distance between i and j (i != j).
func (m *Matrix) Set(i, j int, d float64) {
	m.data[m.offset(i, j)] = d
}

func (m *Matrix) offset(i, j int) int {
	if i > j {
		i, j = j, i
	}
	return m.n*i - i*(i+1)/2 + (j - i - 1)
}

// Compute builds the distance matrix for vectors under metric.
// N <= 1 returns immediately without pairwise work. Rows are computed concurrently,
// at most workers at a time (<= 0 means GOMAXPROCS); every cell is written by exactly one row.
func Compute(ctx context.Context, vectors [][]float32, metric Metric, workers int) (*Matrix, error) {
	n := len(vectors)
	m := NewMatrix(n)
	if n <= 1 {
		return m, nil
	}

	dist, err := distanceFunc(metric)
	if err != nil {
		return nil, err
	}

	norms := make([]float64, n)
	for i, v := range vectors {
		norms[i] = norm(v)
	}

	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < n-1; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return fmt.Errorf("distance row %d: %w", i, err)
			}
			for j := i + 1; j < n; j++ {
				m.Set(i, j, dist(vectors[i], vectors[j], norms[i], norms[j]))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return m, nil
}

type distanceFn func(a, b []float32, na, nb float64) float64

func distanceFunc(metric Metric) (distanceFn, error) {
	switch metric {
	case Cosine, "":
		return cosineDistance, nil
	case Euclidean:
		return euclideanDistance, nil
	default:
		return nil, fmt.Errorf("unknown metric %q", metric)
	}
}

func cosineDistance(a, b []float32, na, nb float64) float64 {
	if na == 0 || nb == 0 {
		return 1
	}
	var dot float64
	for k := range a {
		dot += float64(a[k]) * float64(b[k])
	}
	d := 1 - dot/(na*nb)
	// rounding can push identical directions slightly below 0
	return math.Min(2, math.Max(0, d))
}

func euclideanDistance(a, b []float32, _, _ float64) float64 {
	var sum float64
	for k := range a {
		diff := float64(a[k]) - float64(b[k])
		sum += diff * diff
	}
	return math.Sqrt(sum)
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
