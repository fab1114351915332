package component

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/hupe1980/crosscat/internal/mathx"
)

// Normal is the collapsed normal family under a normal-inverse-chi-
// squared prior with hyperparameters m (prior mean), r (prior mean
// precision scale), s (prior scale) and nu (prior degrees of freedom).
// The posterior predictive is a scaled Student's t.
type Normal struct {
	m, r, s, nu float64
	grids       map[string][]float64
}

// NewNormal creates a normal family with a weakly informative prior.
func NewNormal() *Normal {
	return &Normal{m: 0, r: 1, s: 1, nu: 1}
}

// Tag implements Family.
func (f *Normal) Tag() string { return TagNormal }

// Conditional implements Family.
func (f *Normal) Conditional() bool { return false }

// Uncollapsed implements Family.
func (f *Normal) Uncollapsed() bool { return false }

// Args implements Family.
func (f *Normal) Args() Args { return Args{} }

// Valid implements Family.
func (f *Normal) Valid(x float64) bool { return !math.IsInf(x, 0) }

// Configure derives hyper grids from the column data: m spans the data
// range linearly, r and nu are log-uniform in the row count, s is
// log-uniform in the sum of squared deviations.
func (f *Normal) Configure(values []float64, _ int) {
	f.grids = normalHyperGrids(values)
}

func normalHyperGrids(values []float64) map[string][]float64 {
	valid := validValues(values)
	n := math.Max(float64(len(valid)), 1)
	lo, hi := -1.0, 1.0
	ssqdev := 1.0
	if len(valid) > 0 {
		lo, hi = valid[0], valid[0]
		mean := 0.0
		for _, x := range valid {
			mean += x
			lo = math.Min(lo, x)
			hi = math.Max(hi, x)
		}
		mean /= float64(len(valid))
		ssqdev = 0.0
		for _, x := range valid {
			ssqdev += (x - mean) * (x - mean)
		}
		ssqdev = math.Max(ssqdev, 1)
	}
	if lo == hi {
		lo, hi = lo-1, hi+1
	}
	return map[string][]float64{
		"m":  linspace(lo, hi, hyperGridSize),
		"r":  mathx.LogLinspace(1/n, n, hyperGridSize),
		"s":  mathx.LogLinspace(ssqdev/100, ssqdev, hyperGridSize),
		"nu": mathx.LogLinspace(1, n, hyperGridSize),
	}
}

// Hypers implements Family.
func (f *Normal) Hypers() map[string]float64 {
	return map[string]float64{"m": f.m, "r": f.r, "s": f.s, "nu": f.nu}
}

// SetHypers implements Family.
func (f *Normal) SetHypers(h map[string]float64) error {
	v, err := requireHypers(h, []string{"m", "r", "s", "nu"}, "m")
	if err != nil {
		return err
	}
	f.m, f.r, f.s, f.nu = v["m"], v["r"], v["s"], v["nu"]
	return nil
}

// NewComponent implements Family.
func (f *Normal) NewComponent(_ *rand.Rand) Component {
	return &normalComponent{f: f}
}

// TransitionHypers implements Family.
func (f *Normal) TransitionHypers(clusters []Component, rng *rand.Rand) {
	gridGibbsHypers(f, f.grids, clusters, rng)
}

// RestoreComponent implements Family.
func (f *Normal) RestoreComponent(cs ClusterState) (Component, error) {
	return &normalComponent{f: f, n: cs.N, sum: cs.Stats["sum"], sumsq: cs.Stats["sumsq"]}, nil
}

type normalComponent struct {
	f     *Normal
	n     float64
	sum   float64
	sumsq float64
}

func (c *normalComponent) N() float64 { return c.n }

func (c *normalComponent) Incorporate(x float64, _ []float64) {
	c.n++
	c.sum += x
	c.sumsq += x * x
}

func (c *normalComponent) Unincorporate(x float64, _ []float64) {
	c.n--
	c.sum -= x
	c.sumsq -= x * x
}

// nixPosterior folds n observations with the given sums into the prior
// (m, r, s, nu).
func nixPosterior(m, r, s, nu, n, sum, sumsq float64) (mn, rn, sn, nun float64) {
	rn = r + n
	nun = nu + n
	mn = (r*m + sum) / rn
	sn = s + sumsq + r*m*m - rn*mn*mn
	// Guard against cancellation pushing the scale nonpositive.
	sn = math.Max(sn, 1e-12)
	return mn, rn, sn, nun
}

func nixLogZ(r, s, nu float64) float64 {
	return (nu+1)/2*math.Ln2 + 0.5*math.Log(math.Pi) - 0.5*math.Log(r) - nu/2*math.Log(s) + mathx.Lgamma(nu/2)
}

func (c *normalComponent) Logpdf(x float64, _ []float64) float64 {
	if math.IsInf(x, 0) {
		return math.Inf(-1)
	}
	_, rn, sn, nun := nixPosterior(c.f.m, c.f.r, c.f.s, c.f.nu, c.n, c.sum, c.sumsq)
	_, rx, sx, nux := nixPosterior(c.f.m, c.f.r, c.f.s, c.f.nu, c.n+1, c.sum+x, c.sumsq+x*x)
	return -0.5*math.Log(2*math.Pi) + nixLogZ(rx, sx, nux) - nixLogZ(rn, sn, nun)
}

func (c *normalComponent) Simulate(_ []float64, rng *rand.Rand) float64 {
	mn, rn, sn, nun := nixPosterior(c.f.m, c.f.r, c.f.s, c.f.nu, c.n, c.sum, c.sumsq)
	scale := math.Sqrt(sn * (rn + 1) / (rn * nun))
	t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: nun, Src: rng}
	return mn + scale*t.Rand()
}

func (c *normalComponent) LogpdfScore() float64 {
	if c.n == 0 {
		return 0
	}
	_, rn, sn, nun := nixPosterior(c.f.m, c.f.r, c.f.s, c.f.nu, c.n, c.sum, c.sumsq)
	return -c.n/2*math.Log(2*math.Pi) + nixLogZ(rn, sn, nun) - nixLogZ(c.f.r, c.f.s, c.f.nu)
}

func (c *normalComponent) State() ClusterState {
	return ClusterState{N: c.n, Stats: map[string]float64{"sum": c.sum, "sumsq": c.sumsq}}
}
