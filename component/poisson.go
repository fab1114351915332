package component

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/hupe1980/crosscat/internal/mathx"
)

// Poisson is the collapsed gamma-Poisson family for count columns.
// Values are non-negative integers encoded as float64; the gamma prior
// shape a and rate b are the shared hyperparameters. The posterior
// predictive is negative binomial.
type Poisson struct {
	a, b  float64
	grids map[string][]float64
}

// NewPoisson creates a gamma-Poisson family with a Gamma(1,1) prior.
func NewPoisson() *Poisson {
	return &Poisson{a: 1, b: 1}
}

// Tag implements Family.
func (f *Poisson) Tag() string { return TagPoisson }

// Conditional implements Family.
func (f *Poisson) Conditional() bool { return false }

// Uncollapsed implements Family.
func (f *Poisson) Uncollapsed() bool { return false }

// Args implements Family.
func (f *Poisson) Args() Args { return Args{} }

// Valid implements Family.
func (f *Poisson) Valid(x float64) bool { return isCount(x) }

// Configure implements Family.
func (f *Poisson) Configure(values []float64, _ int) {
	valid := validValues(values)
	n := math.Max(float64(len(valid)), 1)
	maxVal := 1.0
	for _, x := range valid {
		maxVal = math.Max(maxVal, x)
	}
	f.grids = map[string][]float64{
		"a": mathx.LogLinspace(1, maxVal+1, hyperGridSize),
		"b": mathx.LogLinspace(1/n, n, hyperGridSize),
	}
}

// Hypers implements Family.
func (f *Poisson) Hypers() map[string]float64 {
	return map[string]float64{"a": f.a, "b": f.b}
}

// SetHypers implements Family.
func (f *Poisson) SetHypers(h map[string]float64) error {
	v, err := requireHypers(h, []string{"a", "b"})
	if err != nil {
		return err
	}
	f.a, f.b = v["a"], v["b"]
	return nil
}

// NewComponent implements Family.
func (f *Poisson) NewComponent(_ *rand.Rand) Component {
	return &poissonComponent{f: f}
}

// TransitionHypers implements Family.
func (f *Poisson) TransitionHypers(clusters []Component, rng *rand.Rand) {
	gridGibbsHypers(f, f.grids, clusters, rng)
}

// RestoreComponent implements Family.
func (f *Poisson) RestoreComponent(cs ClusterState) (Component, error) {
	return &poissonComponent{f: f, n: cs.N, sum: cs.Stats["sum"], sumLogFact: cs.Stats["sumlogfact"]}, nil
}

type poissonComponent struct {
	f          *Poisson
	n          float64
	sum        float64
	sumLogFact float64
}

func isCount(x float64) bool {
	return x >= 0 && x == math.Trunc(x) && !math.IsInf(x, 0)
}

func (c *poissonComponent) N() float64 { return c.n }

func (c *poissonComponent) Incorporate(x float64, _ []float64) {
	if !isCount(x) {
		panic(fmt.Sprintf("component: poisson value must be a non-negative integer, got %v", x))
	}
	c.n++
	c.sum += x
	c.sumLogFact += mathx.Lgamma(x + 1)
}

func (c *poissonComponent) Unincorporate(x float64, _ []float64) {
	c.n--
	c.sum -= x
	c.sumLogFact -= mathx.Lgamma(x + 1)
}

// marginal is the closed-form gamma-Poisson evidence for n observations
// with sum sx and factorial-log-sum slf.
func (c *poissonComponent) marginal(n, sx, slf float64) float64 {
	a, b := c.f.a, c.f.b
	return a*math.Log(b) - mathx.Lgamma(a) + mathx.Lgamma(a+sx) - (a+sx)*math.Log(b+n) - slf
}

func (c *poissonComponent) Logpdf(x float64, _ []float64) float64 {
	if !isCount(x) {
		return math.Inf(-1)
	}
	with := c.marginal(c.n+1, c.sum+x, c.sumLogFact+mathx.Lgamma(x+1))
	return with - c.marginal(c.n, c.sum, c.sumLogFact)
}

func (c *poissonComponent) Simulate(_ []float64, rng *rand.Rand) float64 {
	lambda := distuv.Gamma{Alpha: c.f.a + c.sum, Beta: c.f.b + c.n, Src: rng}.Rand()
	return distuv.Poisson{Lambda: lambda, Src: rng}.Rand()
}

func (c *poissonComponent) LogpdfScore() float64 {
	if c.n == 0 {
		return 0
	}
	return c.marginal(c.n, c.sum, c.sumLogFact)
}

func (c *poissonComponent) State() ClusterState {
	return ClusterState{N: c.n, Stats: map[string]float64{"sum": c.sum, "sumlogfact": c.sumLogFact}}
}
