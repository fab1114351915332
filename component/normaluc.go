package component

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// NormalUC is the uncollapsed normal family: every cluster carries an
// explicitly sampled mean mu and precision rho drawn from a
// normal-gamma prior with hyperparameters m, r, s and nu. Fresh
// clusters are seeded from the prior via the auxiliary component;
// parameters are resampled from their conditional posterior whenever
// the hyperparameters transition.
type NormalUC struct {
	m, r, s, nu float64
	grids       map[string][]float64
}

// NewNormalUC creates an uncollapsed normal family with a weakly
// informative normal-gamma prior.
func NewNormalUC() *NormalUC {
	return &NormalUC{m: 0, r: 1, s: 1, nu: 1}
}

// Tag implements Family.
func (f *NormalUC) Tag() string { return TagNormalUC }

// Conditional implements Family.
func (f *NormalUC) Conditional() bool { return false }

// Uncollapsed implements Family.
func (f *NormalUC) Uncollapsed() bool { return true }

// Args implements Family.
func (f *NormalUC) Args() Args { return Args{} }

// Valid implements Family.
func (f *NormalUC) Valid(x float64) bool { return !math.IsInf(x, 0) }

// Configure implements Family.
func (f *NormalUC) Configure(values []float64, _ int) {
	f.grids = normalHyperGrids(values)
}

// Hypers implements Family.
func (f *NormalUC) Hypers() map[string]float64 {
	return map[string]float64{"m": f.m, "r": f.r, "s": f.s, "nu": f.nu}
}

// SetHypers implements Family.
func (f *NormalUC) SetHypers(h map[string]float64) error {
	v, err := requireHypers(h, []string{"m", "r", "s", "nu"}, "m")
	if err != nil {
		return err
	}
	f.m, f.r, f.s, f.nu = v["m"], v["r"], v["s"], v["nu"]
	return nil
}

// NewComponent seeds a fresh component's parameters from the prior.
func (f *NormalUC) NewComponent(rng *rand.Rand) Component {
	c := &normalUCComponent{f: f}
	c.mu, c.rho = f.sampleParams(f.m, f.r, f.s, f.nu, rng)
	return c
}

func (f *NormalUC) sampleParams(m, r, s, nu float64, rng *rand.Rand) (mu, rho float64) {
	rho = distuv.Gamma{Alpha: nu / 2, Beta: s / 2, Src: rng}.Rand()
	rho = math.Max(rho, 1e-300)
	mu = m + rng.NormFloat64()/math.Sqrt(r*rho)
	return mu, rho
}

// TransitionHypers implements Family. The grid score is the joint log
// density of every cluster's sampled parameters under the candidate
// prior (the data term at fixed parameters does not depend on the
// hypers).
func (f *NormalUC) TransitionHypers(clusters []Component, rng *rand.Rand) {
	gridGibbsHypers(f, f.grids, clusters, rng)
}

// RestoreComponent implements Family.
func (f *NormalUC) RestoreComponent(cs ClusterState) (Component, error) {
	return &normalUCComponent{
		f:     f,
		n:     cs.N,
		sum:   cs.Stats["sum"],
		sumsq: cs.Stats["sumsq"],
		mu:    cs.Params["mu"],
		rho:   cs.Params["rho"],
	}, nil
}

type normalUCComponent struct {
	f     *NormalUC
	n     float64
	sum   float64
	sumsq float64

	// Sampled cluster parameters.
	mu, rho float64
}

func (c *normalUCComponent) N() float64 { return c.n }

func (c *normalUCComponent) Incorporate(x float64, _ []float64) {
	c.n++
	c.sum += x
	c.sumsq += x * x
}

func (c *normalUCComponent) Unincorporate(x float64, _ []float64) {
	c.n--
	c.sum -= x
	c.sumsq -= x * x
}

func (c *normalUCComponent) Logpdf(x float64, _ []float64) float64 {
	if math.IsInf(x, 0) {
		return math.Inf(-1)
	}
	return logNormalPdf(x, c.mu, c.rho)
}

func (c *normalUCComponent) Simulate(_ []float64, rng *rand.Rand) float64 {
	return c.mu + rng.NormFloat64()/math.Sqrt(c.rho)
}

// LogpdfScore is the data log likelihood at the sampled parameters plus
// the parameters' log prior.
func (c *normalUCComponent) LogpdfScore() float64 {
	sqdev := c.sumsq - 2*c.mu*c.sum + c.n*c.mu*c.mu
	data := c.n*0.5*(math.Log(c.rho)-math.Log(2*math.Pi)) - 0.5*c.rho*sqdev
	prior := logGammaPdf(c.rho, c.f.nu/2, c.f.s/2) + logNormalPdf(c.mu, c.f.m, c.f.r*c.rho)
	return data + prior
}

// ResampleParams redraws (mu, rho) from the normal-gamma conditional
// posterior given the cluster's statistics.
func (c *normalUCComponent) ResampleParams(rng *rand.Rand) {
	mn, rn, sn, nun := nixPosterior(c.f.m, c.f.r, c.f.s, c.f.nu, c.n, c.sum, c.sumsq)
	c.mu, c.rho = c.f.sampleParams(mn, rn, sn, nun, rng)
}

func (c *normalUCComponent) State() ClusterState {
	return ClusterState{
		N:      c.n,
		Stats:  map[string]float64{"sum": c.sum, "sumsq": c.sumsq},
		Params: map[string]float64{"mu": c.mu, "rho": c.rho},
	}
}
