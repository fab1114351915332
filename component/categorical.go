package component

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/hupe1980/crosscat/internal/mathx"
)

// Categorical is the collapsed Dirichlet-categorical family. Values are
// symbol indices 0..K-1 encoded as float64; the symmetric Dirichlet
// concentration alpha is the shared hyperparameter.
type Categorical struct {
	k     int
	alpha float64
	grids map[string][]float64
}

// NewCategorical creates a Dirichlet-categorical family over k symbols.
func NewCategorical(k int) (*Categorical, error) {
	if k < 2 {
		return nil, fmt.Errorf("component: categorical needs at least 2 categories, got %d", k)
	}
	return &Categorical{k: k, alpha: 1}, nil
}

// Tag implements Family.
func (f *Categorical) Tag() string { return TagCategorical }

// Conditional implements Family.
func (f *Categorical) Conditional() bool { return false }

// Uncollapsed implements Family.
func (f *Categorical) Uncollapsed() bool { return false }

// Args implements Family.
func (f *Categorical) Args() Args { return Args{Categories: f.k} }

// Valid implements Family.
func (f *Categorical) Valid(x float64) bool {
	i := int(x)
	return float64(i) == x && i >= 0 && i < f.k
}

// Configure implements Family.
func (f *Categorical) Configure(values []float64, _ int) {
	n := math.Max(float64(len(validValues(values))), 1)
	f.grids = map[string][]float64{
		"alpha": mathx.LogLinspace(1/n, n, hyperGridSize),
	}
}

// Hypers implements Family.
func (f *Categorical) Hypers() map[string]float64 {
	return map[string]float64{"alpha": f.alpha}
}

// SetHypers implements Family.
func (f *Categorical) SetHypers(h map[string]float64) error {
	v, err := requireHypers(h, []string{"alpha"})
	if err != nil {
		return err
	}
	f.alpha = v["alpha"]
	return nil
}

// NewComponent implements Family.
func (f *Categorical) NewComponent(_ *rand.Rand) Component {
	return &categoricalComponent{f: f, counts: make([]float64, f.k)}
}

// TransitionHypers implements Family.
func (f *Categorical) TransitionHypers(clusters []Component, rng *rand.Rand) {
	gridGibbsHypers(f, f.grids, clusters, rng)
}

// RestoreComponent implements Family.
func (f *Categorical) RestoreComponent(cs ClusterState) (Component, error) {
	counts := cs.Vecs["counts"]
	if len(counts) != f.k {
		return nil, fmt.Errorf("component: categorical counts have length %d, want %d", len(counts), f.k)
	}
	return &categoricalComponent{f: f, n: cs.N, counts: append([]float64(nil), counts...)}, nil
}

type categoricalComponent struct {
	f      *Categorical
	n      float64
	counts []float64
}

func (c *categoricalComponent) symbol(x float64) (int, bool) {
	i := int(x)
	if float64(i) != x || i < 0 || i >= c.f.k {
		return 0, false
	}
	return i, true
}

func (c *categoricalComponent) N() float64 { return c.n }

func (c *categoricalComponent) Incorporate(x float64, _ []float64) {
	i, ok := c.symbol(x)
	if !ok {
		panic(fmt.Sprintf("component: categorical value must be an integer in [0,%d), got %v", c.f.k, x))
	}
	c.n++
	c.counts[i]++
}

func (c *categoricalComponent) Unincorporate(x float64, _ []float64) {
	i, _ := c.symbol(x)
	c.n--
	c.counts[i]--
}

func (c *categoricalComponent) Logpdf(x float64, _ []float64) float64 {
	i, ok := c.symbol(x)
	if !ok {
		return math.Inf(-1)
	}
	return math.Log(c.f.alpha+c.counts[i]) - math.Log(float64(c.f.k)*c.f.alpha+c.n)
}

func (c *categoricalComponent) Simulate(_ []float64, rng *rand.Rand) float64 {
	w := make([]float64, c.f.k)
	for i, count := range c.counts {
		w[i] = math.Log(c.f.alpha + count)
	}
	return float64(mathx.LogChoice(rng, w))
}

func (c *categoricalComponent) LogpdfScore() float64 {
	k := float64(c.f.k)
	score := mathx.Lgamma(k*c.f.alpha) - mathx.Lgamma(k*c.f.alpha+c.n) - k*mathx.Lgamma(c.f.alpha)
	for _, count := range c.counts {
		score += mathx.Lgamma(c.f.alpha + count)
	}
	return score
}

func (c *categoricalComponent) State() ClusterState {
	return ClusterState{N: c.n, Vecs: map[string][]float64{"counts": append([]float64(nil), c.counts...)}}
}
