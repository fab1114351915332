package testutil

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/hupe1980/crosscat/component"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed uint64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed uint64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand = rand.New(rand.NewPCG(r.seed, r.seed^0x9e3779b97f4a7c15))
}

// Seed returns the initial seed.
func (r *RNG) Seed() uint64 {
	return r.seed
}

// IntN returns a non-negative pseudo-random number in [0,n).
func (r *RNG) IntN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.IntN(n)
}

// Float64 returns a pseudo-random number in [0,1).
func (r *RNG) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float64()
}

// NormFloat64 returns a standard-normal pseudo-random number.
func (r *RNG) NormFloat64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.NormFloat64()
}

// ClusteredTable generates a column-major table of rows drawn from an
// evenly weighted mixture with the given number of clusters, one
// generator per family tag, and returns it with the ground-truth
// cluster of every row.
//
// separation in [0,1] controls how distinguishable the clusters are:
// at 0 every cluster shares one generating distribution, at 1 the
// clusters barely overlap. Supported tags: bernoulli, categorical
// (four symbols), normal, normal_uc and poisson.
func ClusteredTable(rng *RNG, rows int, families []string, clusters int, separation float64) (map[int][]float64, []int) {
	if clusters < 1 {
		panic("testutil: need at least one cluster")
	}
	separation = math.Min(math.Max(separation, 0), 1)

	truth := make([]int, rows)
	for i := range truth {
		truth[i] = rng.IntN(clusters)
	}

	data := make(map[int][]float64, len(families))
	for col, tag := range families {
		values := make([]float64, rows)
		for i := range values {
			values[i] = sampleCell(rng, tag, truth[i], separation)
		}
		data[col] = values
	}
	return data, truth
}

func sampleCell(rng *RNG, tag string, k int, sep float64) float64 {
	switch tag {
	case component.TagBernoulli:
		// Alternating success rates pushed apart by separation.
		p := 0.5 + sep*0.45
		if k%2 == 1 {
			p = 0.5 - sep*0.45
		}
		if rng.Float64() < p {
			return 1
		}
		return 0
	case component.TagCategorical:
		// Four symbols, each cluster peaked on symbol k mod 4.
		if rng.Float64() < 0.25+sep*0.7 {
			return float64(k % 4)
		}
		return float64(rng.IntN(4))
	case component.TagNormal, component.TagNormalUC:
		return float64(k)*8*sep + rng.NormFloat64()
	case component.TagPoisson:
		rate := 1 + float64(k)*9*sep
		return samplePoisson(rng, rate)
	default:
		panic(fmt.Sprintf("testutil: no generator for family %q", tag))
	}
}

// samplePoisson draws by inversion from the CDF, adequate for the small
// rates used in tests.
func samplePoisson(rng *RNG, rate float64) float64 {
	u := rng.Float64()
	p := math.Exp(-rate)
	cdf := p
	k := 0.0
	for u > cdf && k < 1e4 {
		k++
		p *= rate / k
		cdf += p
	}
	return k
}
