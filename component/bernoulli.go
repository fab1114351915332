package component

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/hupe1980/crosscat/internal/mathx"
)

// Bernoulli is the collapsed beta-Bernoulli family for binary columns.
// Values must be 0 or 1; the beta prior parameters alpha and beta are
// the shared hyperparameters.
type Bernoulli struct {
	alpha, beta float64
	grids       map[string][]float64
}

// NewBernoulli creates a beta-Bernoulli family with a uniform Beta(1,1)
// prior.
func NewBernoulli() *Bernoulli {
	return &Bernoulli{alpha: 1, beta: 1}
}

// Tag implements Family.
func (f *Bernoulli) Tag() string { return TagBernoulli }

// Conditional implements Family.
func (f *Bernoulli) Conditional() bool { return false }

// Uncollapsed implements Family.
func (f *Bernoulli) Uncollapsed() bool { return false }

// Args implements Family.
func (f *Bernoulli) Args() Args { return Args{} }

// Valid implements Family.
func (f *Bernoulli) Valid(x float64) bool { return x == 0 || x == 1 }

// Configure derives log-uniform hyper grids on [1/n, n] from the column
// data.
func (f *Bernoulli) Configure(values []float64, _ int) {
	n := math.Max(float64(len(validValues(values))), 1)
	f.grids = map[string][]float64{
		"alpha": mathx.LogLinspace(1/n, n, hyperGridSize),
		"beta":  mathx.LogLinspace(1/n, n, hyperGridSize),
	}
}

// Hypers implements Family.
func (f *Bernoulli) Hypers() map[string]float64 {
	return map[string]float64{"alpha": f.alpha, "beta": f.beta}
}

// SetHypers implements Family.
func (f *Bernoulli) SetHypers(h map[string]float64) error {
	v, err := requireHypers(h, []string{"alpha", "beta"})
	if err != nil {
		return err
	}
	f.alpha, f.beta = v["alpha"], v["beta"]
	return nil
}

// NewComponent implements Family.
func (f *Bernoulli) NewComponent(_ *rand.Rand) Component {
	return &bernoulliComponent{f: f}
}

// TransitionHypers implements Family.
func (f *Bernoulli) TransitionHypers(clusters []Component, rng *rand.Rand) {
	gridGibbsHypers(f, f.grids, clusters, rng)
}

// RestoreComponent implements Family.
func (f *Bernoulli) RestoreComponent(cs ClusterState) (Component, error) {
	return &bernoulliComponent{f: f, n: cs.N, ones: cs.Stats["ones"]}, nil
}

type bernoulliComponent struct {
	f    *Bernoulli
	n    float64
	ones float64
}

func (c *bernoulliComponent) N() float64 { return c.n }

func (c *bernoulliComponent) Incorporate(x float64, _ []float64) {
	if x != 0 && x != 1 {
		panic(fmt.Sprintf("component: bernoulli value must be 0 or 1, got %v", x))
	}
	c.n++
	c.ones += x
}

func (c *bernoulliComponent) Unincorporate(x float64, _ []float64) {
	c.n--
	c.ones -= x
}

func (c *bernoulliComponent) Logpdf(x float64, _ []float64) float64 {
	if x != 0 && x != 1 {
		return math.Inf(-1)
	}
	p1 := (c.f.alpha + c.ones) / (c.f.alpha + c.f.beta + c.n)
	if x == 1 {
		return math.Log(p1)
	}
	return math.Log(1 - p1)
}

func (c *bernoulliComponent) Simulate(_ []float64, rng *rand.Rand) float64 {
	p1 := (c.f.alpha + c.ones) / (c.f.alpha + c.f.beta + c.n)
	if rng.Float64() < p1 {
		return 1
	}
	return 0
}

func (c *bernoulliComponent) LogpdfScore() float64 {
	return mathx.LBeta(c.f.alpha+c.ones, c.f.beta+c.n-c.ones) - mathx.LBeta(c.f.alpha, c.f.beta)
}

func (c *bernoulliComponent) State() ClusterState {
	return ClusterState{N: c.n, Stats: map[string]float64{"ones": c.ones}}
}
