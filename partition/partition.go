package partition

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/crosscat/internal/mathx"
)

// Partition is a CRP-distributed assignment of rows to clusters.
//
// It is not safe for concurrent use; a View owns exactly one Partition
// and drives it from a single goroutine.
type Partition struct {
	alpha       float64
	assignments map[int]int
	counts      []int
	members     []*roaring.Bitmap
}

// New creates an empty partition with concentration alpha > 0.
func New(alpha float64) *Partition {
	if !(alpha > 0) {
		panic(fmt.Sprintf("partition: alpha must be positive, got %v", alpha))
	}
	return &Partition{
		alpha:       alpha,
		assignments: make(map[int]int),
	}
}

// FromAssignments creates a partition holding the given row->label map.
// Labels must be contiguous 0..K-1 but may appear in any order across
// row ids.
func FromAssignments(alpha float64, assignments map[int]int) (*Partition, error) {
	p := New(alpha)
	maxLabel := -1
	byLabel := make(map[int][]int)
	for rowid, k := range assignments {
		if k < 0 {
			return nil, fmt.Errorf("partition: row %d has negative label %d", rowid, k)
		}
		if k > maxLabel {
			maxLabel = k
		}
		byLabel[k] = append(byLabel[k], rowid)
	}
	// Rows go in label by label so every label satisfies the k <= K()
	// insertion precondition regardless of which rows carry it.
	for k := 0; k <= maxLabel; k++ {
		rowids := byLabel[k]
		if len(rowids) == 0 {
			return nil, fmt.Errorf("partition: labels are not contiguous: label %d is unoccupied but label %d is used", k, maxLabel)
		}
		sort.Ints(rowids)
		for _, rowid := range rowids {
			p.Incorporate(rowid, k)
		}
	}
	return p, nil
}

// Alpha returns the CRP concentration parameter.
func (p *Partition) Alpha() float64 { return p.alpha }

// SetAlpha overrides the concentration parameter. Used when restoring
// persisted state; inference must go through ResampleAlpha.
func (p *Partition) SetAlpha(alpha float64) {
	if !(alpha > 0) {
		panic(fmt.Sprintf("partition: alpha must be positive, got %v", alpha))
	}
	p.alpha = alpha
}

// K returns the number of active clusters.
func (p *Partition) K() int { return len(p.counts) }

// NumRows returns the number of observed rows.
func (p *Partition) NumRows() int { return len(p.assignments) }

// Count returns the occupancy of cluster k.
func (p *Partition) Count(k int) int { return p.counts[k] }

// Counts returns a copy of the per-cluster occupancy counts.
func (p *Partition) Counts() []int {
	out := make([]int, len(p.counts))
	copy(out, p.counts)
	return out
}

// Assignment returns the cluster label of rowid, if observed.
func (p *Partition) Assignment(rowid int) (int, bool) {
	k, ok := p.assignments[rowid]
	return k, ok
}

// Contains reports whether rowid is observed.
func (p *Partition) Contains(rowid int) bool {
	_, ok := p.assignments[rowid]
	return ok
}

// Assignments returns a copy of the row->label map.
func (p *Partition) Assignments() map[int]int {
	out := make(map[int]int, len(p.assignments))
	for rowid, k := range p.assignments {
		out[rowid] = k
	}
	return out
}

// RowIDs returns all observed row ids in ascending order.
func (p *Partition) RowIDs() []int {
	out := make([]int, 0, len(p.assignments))
	for rowid := range p.assignments {
		out = append(out, rowid)
	}
	sort.Ints(out)
	return out
}

// Members returns the row ids of cluster k in ascending order.
func (p *Partition) Members(k int) []int {
	out := make([]int, 0, p.counts[k])
	p.members[k].Iterate(func(rowid uint32) bool {
		out = append(out, int(rowid))
		return true
	})
	return out
}

// Incorporate assigns rowid to cluster k. Label k == K() creates a new
// cluster. The row must not already be observed and k must lie in
// [0, K()]; violations are core-logic bugs and panic.
func (p *Partition) Incorporate(rowid, k int) {
	if _, ok := p.assignments[rowid]; ok {
		panic(fmt.Sprintf("partition: row %d already incorporated", rowid))
	}
	if k < 0 || k > len(p.counts) {
		panic(fmt.Sprintf("partition: label %d out of range [0,%d]", k, len(p.counts)))
	}
	if k == len(p.counts) {
		p.counts = append(p.counts, 0)
		p.members = append(p.members, roaring.New())
	}
	p.counts[k]++
	p.members[k].Add(uint32(rowid))
	p.assignments[rowid] = k
}

// Unincorporate removes rowid from the partition. If the row was the
// last member of its cluster, the cluster is removed and all labels
// above it are decremented to keep labels contiguous.
//
// It returns the removed label, or -1 if no cluster was removed, so
// that callers can propagate the compaction to per-cluster state they
// hold (component-model records) before performing further moves.
func (p *Partition) Unincorporate(rowid int) int {
	k, ok := p.assignments[rowid]
	if !ok {
		panic(fmt.Sprintf("partition: row %d not incorporated", rowid))
	}
	p.counts[k]--
	p.members[k].Remove(uint32(rowid))
	delete(p.assignments, rowid)
	if p.counts[k] > 0 {
		return -1
	}
	p.counts = append(p.counts[:k], p.counts[k+1:]...)
	p.members = append(p.members[:k], p.members[k+1:]...)
	for rowid, z := range p.assignments {
		if z > k {
			p.assignments[rowid] = z - 1
		}
	}
	return k
}

// GibbsLogWeights returns the CRP predictive log weights used when
// resampling the cluster of an observed row: one entry per existing
// cluster, computed with rowid's own membership removed, plus one
// trailing entry for a synthetic new cluster.
//
// If rowid is a singleton, its own cluster plays the role of the new
// cluster (weight log alpha) and no trailing entry is appended, so the
// slice has length K() in that case and K()+1 otherwise.
func (p *Partition) GibbsLogWeights(rowid int) []float64 {
	z, ok := p.assignments[rowid]
	if !ok {
		panic(fmt.Sprintf("partition: row %d not incorporated", rowid))
	}
	singleton := p.counts[z] == 1
	n := len(p.counts)
	if !singleton {
		n++
	}
	w := make([]float64, n)
	for k, c := range p.counts {
		if k == z {
			if singleton {
				w[k] = math.Log(p.alpha)
			} else {
				w[k] = math.Log(float64(c - 1))
			}
			continue
		}
		w[k] = math.Log(float64(c))
	}
	if !singleton {
		w[n-1] = math.Log(p.alpha)
	}
	return w
}

// FreshLogWeights returns the unnormalized CRP predictive log weights
// for a hypothetical (unobserved) row: log count for each existing
// cluster and log alpha for a new one.
func (p *Partition) FreshLogWeights() []float64 {
	w := make([]float64, len(p.counts)+1)
	for k, c := range p.counts {
		w[k] = math.Log(float64(c))
	}
	w[len(p.counts)] = math.Log(p.alpha)
	return w
}

// LogProb returns the CRP marginal log probability of the current
// partition under the current alpha.
func (p *Partition) LogProb() float64 {
	return crpLogProb(len(p.assignments), p.counts, p.alpha)
}

// ResampleAlpha draws a new alpha by grid Gibbs: the marginal CRP
// probability of the current partition is scored under every candidate
// in grid, and alpha is drawn from the resulting categorical. This is
// the only legal way alpha changes.
func (p *Partition) ResampleAlpha(grid []float64, rng *rand.Rand) {
	logps := make([]float64, len(grid))
	for i, alpha := range grid {
		logps[i] = crpLogProb(len(p.assignments), p.counts, alpha)
	}
	p.alpha = grid[mathx.LogChoice(rng, logps)]
}

// Validate checks the structural invariants: occupancy sums to the
// number of observed rows, every label is in [0, K), no cluster is
// empty, and the membership bitmaps agree with the counts.
func (p *Partition) Validate() error {
	total := 0
	for k, c := range p.counts {
		if c <= 0 {
			return fmt.Errorf("partition: cluster %d is empty", k)
		}
		if int(p.members[k].GetCardinality()) != c {
			return fmt.Errorf("partition: cluster %d membership/count mismatch", k)
		}
		total += c
	}
	if total != len(p.assignments) {
		return fmt.Errorf("partition: occupancy %d != observed rows %d", total, len(p.assignments))
	}
	for rowid, k := range p.assignments {
		if k < 0 || k >= len(p.counts) {
			return fmt.Errorf("partition: row %d has label %d outside [0,%d)", rowid, k, len(p.counts))
		}
		if !p.members[k].Contains(uint32(rowid)) {
			return fmt.Errorf("partition: row %d missing from cluster %d bitmap", rowid, k)
		}
	}
	return nil
}

// Simulate draws cluster labels for rows 0..n-1 from CRP(alpha).
func Simulate(n int, alpha float64, rng *rand.Rand) []int {
	p := New(alpha)
	out := make([]int, n)
	for rowid := 0; rowid < n; rowid++ {
		k := mathx.LogChoice(rng, p.FreshLogWeights())
		p.Incorporate(rowid, k)
		out[rowid] = k
	}
	return out
}

// crpLogProb is the exchangeable CRP marginal:
//
//	K log(alpha) + sum_k lgamma(n_k) + lgamma(alpha) - lgamma(n + alpha)
func crpLogProb(n int, counts []int, alpha float64) float64 {
	if n == 0 {
		return 0
	}
	lp := float64(len(counts)) * math.Log(alpha)
	for _, c := range counts {
		lp += mathx.Lgamma(float64(c))
	}
	return lp + mathx.Lgamma(alpha) - mathx.Lgamma(float64(n)+alpha)
}
