// Package cluster partitions mentions into entity clusters and indexes the result.
package cluster

import (
	"fmt"
	"math"

	"github.com/kailas-cloud/cdcr/internal/domain"
	"github.com/kailas-cloud/cdcr/internal/domain/similarity"
)

// DefaultCutoff is the reference merge-distance cutoff.
const DefaultCutoff = 1.5

// Config holds agglomeration parameters.
type Config struct {
	// Cutoff is the largest average-linkage distance at which two clusters may still merge.
	Cutoff float64
}

// DefaultConfig returns the reference configuration.
func DefaultConfig() Config { return Config{Cutoff: DefaultCutoff} }

// Validate checks that the cutoff is a finite non-negative number.
func (c Config) Validate() error {
	if math.IsNaN(c.Cutoff) || math.IsInf(c.Cutoff, 0) || c.Cutoff < 0 {
		return domain.NewValidation("cutoff", "must be a finite non-negative number, got %v", c.Cutoff)
	}
	return nil
}

// Merge records one agglomeration step. A and B are the smallest mention indices of the
// merged clusters (A < B); the merged cluster keeps A as its identity.
type Merge struct {
	A, B     int
	Distance float64
	Size     int
}

// Assignment maps every mention index to a cluster label.
// Labels are contiguous from 0 and numbered by each cluster's smallest mention index.
type Assignment struct {
	labels []int
	count  int
	merges []Merge
}

// NewAssignment rebuilds an assignment from stored labels, renumbering them canonically.
// Every label must be non-negative.
func NewAssignment(labels []int) (Assignment, error) {
	renumber := make(map[int]int)
	out := make([]int, len(labels))
	for i, l := range labels {
		if l < 0 {
			return Assignment{}, domain.NewValidation(fmt.Sprintf("labels[%d]", i), "negative label %d", l)
		}
		nl, ok := renumber[l]
		if !ok {
			nl = len(renumber)
			renumber[l] = nl
		}
		out[i] = nl
	}
	return Assignment{labels: out, count: len(renumber)}, nil
}

// WithMerges attaches a stored merge history to a restored assignment.
func (a Assignment) WithMerges(merges []Merge) Assignment {
	a.merges = append([]Merge(nil), merges...)
	return a
}

// Len returns the number of assigned mentions.
func (a Assignment) Len() int { return len(a.labels) }

// Count returns the number of clusters.
func (a Assignment) Count() int { return a.count }

// Label returns the cluster label of mention i.
func (a Assignment) Label(i int) int { return a.labels[i] }

// Labels returns a copy of the label array in canonical mention order.
func (a Assignment) Labels() []int { return append([]int(nil), a.labels...) }

// Merges returns the merge history in execution order.
func (a Assignment) Merges() []Merge { return a.merges }

// Clusters returns the member indices of each label, ascending.
func (a Assignment) Clusters() [][]int {
	out := make([][]int, a.count)
	for i, l := range a.labels {
		out[l] = append(out[l], i)
	}
	return out
}

// Agglomerate runs average-linkage agglomerative clustering over m.
//
// Starting from singletons it repeatedly merges the pair of clusters with the smallest
// average pairwise distance while that distance is <= cfg.Cutoff. Equal distances are
// resolved by the pair's smaller minimum mention index, then the larger one.
//
// Each active cluster caches its nearest neighbour under that total order. After a merge
// only rows whose neighbour was one of the merged clusters are rescanned; every other row
// can only improve by pairing with the merged cluster. The result is identical to
// rescanning all pairs on every step.
func Agglomerate(m *similarity.Matrix, cfg Config) (Assignment, error) {
	if err := cfg.Validate(); err != nil {
		return Assignment{}, err
	}

	n := m.Size()
	switch n {
	case 0:
		return Assignment{}, nil
	case 1:
		return Assignment{labels: []int{0}, count: 1}, nil
	}

	a := newAgglomerator(m)
	for a.activeCount > 1 {
		i := a.bestRow()
		j := a.nn[i]
		d := a.nnDist[i]
		if d > cfg.Cutoff {
			break
		}
		if j < i {
			i, j = j, i
		}
		a.merge(i, j, d)
	}

	return a.assignment(), nil
}

type agglomerator struct {
	n           int
	sums        *similarity.Matrix // sum of pairwise member distances between clusters
	size        []int
	active      []bool
	activeCount int
	members     [][]int
	nn          []int
	nnDist      []float64
	merges      []Merge
}

func newAgglomerator(m *similarity.Matrix) *agglomerator {
	n := m.Size()
	a := &agglomerator{
		n:           n,
		sums:        similarity.NewMatrix(n),
		size:        make([]int, n),
		active:      make([]bool, n),
		activeCount: n,
		members:     make([][]int, n),
		nn:          make([]int, n),
		nnDist:      make([]float64, n),
	}
	for i := 0; i < n; i++ {
		a.size[i] = 1
		a.active[i] = true
		a.members[i] = []int{i}
		for j := i + 1; j < n; j++ {
			a.sums.Set(i, j, m.At(i, j))
		}
	}
	for i := 0; i < n; i++ {
		a.rescan(i)
	}
	return a
}

func (a *agglomerator) linkage(i, j int) float64 {
	return a.sums.At(i, j) / float64(a.size[i]*a.size[j])
}

// pairLess orders candidate merges by distance, then by (min id, max id).
func pairLess(d1 float64, i1, j1 int, d2 float64, i2, j2 int) bool {
	if d1 != d2 {
		return d1 < d2
	}
	lo1, hi1 := minmax(i1, j1)
	lo2, hi2 := minmax(i2, j2)
	if lo1 != lo2 {
		return lo1 < lo2
	}
	return hi1 < hi2
}

func minmax(i, j int) (int, int) {
	if i < j {
		return i, j
	}
	return j, i
}

// rescan recomputes the nearest active neighbour of row i.
func (a *agglomerator) rescan(i int) {
	best, bestDist := -1, math.Inf(1)
	for j := 0; j < a.n; j++ {
		if j == i || !a.active[j] {
			continue
		}
		d := a.linkage(i, j)
		if best == -1 || pairLess(d, i, j, bestDist, i, best) {
			best, bestDist = j, d
		}
	}
	a.nn[i], a.nnDist[i] = best, bestDist
}

// bestRow returns the active row holding the globally smallest candidate pair.
func (a *agglomerator) bestRow() int {
	best := -1
	for i := 0; i < a.n; i++ {
		if !a.active[i] || a.nn[i] == -1 {
			continue
		}
		if best == -1 || pairLess(a.nnDist[i], i, a.nn[i], a.nnDist[best], best, a.nn[best]) {
			best = i
		}
	}
	return best
}

// merge folds cluster j into cluster i (i < j).
func (a *agglomerator) merge(i, j int, d float64) {
	a.active[j] = false
	a.activeCount--
	for k := 0; k < a.n; k++ {
		if k == i || !a.active[k] {
			continue
		}
		a.sums.Set(k, i, a.sums.At(k, i)+a.sums.At(k, j))
	}
	a.size[i] += a.size[j]
	a.members[i] = append(a.members[i], a.members[j]...)
	a.members[j] = nil
	a.merges = append(a.merges, Merge{A: i, B: j, Distance: d, Size: a.size[i]})

	a.rescan(i)
	for k := 0; k < a.n; k++ {
		if k == i || !a.active[k] {
			continue
		}
		if a.nn[k] == i || a.nn[k] == j {
			a.rescan(k)
			continue
		}
		if dk := a.linkage(k, i); pairLess(dk, k, i, a.nnDist[k], k, a.nn[k]) {
			a.nn[k], a.nnDist[k] = i, dk
		}
	}
}

func (a *agglomerator) assignment() Assignment {
	labels := make([]int, a.n)
	label := 0
	// Ascending cluster identity == ascending smallest mention index.
	for i := 0; i < a.n; i++ {
		if !a.active[i] {
			continue
		}
		for _, m := range a.members[i] {
			labels[m] = label
		}
		label++
	}
	return Assignment{labels: labels, count: label, merges: a.merges}
}
