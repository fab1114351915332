package component

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/hupe1980/crosscat/internal/mathx"
)

// LinReg is the conditional (leaf) family: a Bayesian linear regression
// of the column on the View's root columns plus an intercept, under a
// conjugate normal-inverse-gamma prior with identity prior precision on
// the coefficients and hyperparameters a, b on the noise variance. The
// coefficients and noise are integrated out analytically; only the
// Gram-matrix sufficient statistics are tracked per cluster.
type LinReg struct {
	a, b  float64
	p     int // covariates + intercept
	grids map[string][]float64
}

// NewLinReg creates a linear-regression family. The covariate count is
// bound by Configure once the model's root inputs are known.
func NewLinReg() *LinReg {
	return &LinReg{a: 1, b: 1}
}

// Tag implements Family.
func (f *LinReg) Tag() string { return TagLinReg }

// Conditional implements Family.
func (f *LinReg) Conditional() bool { return true }

// Uncollapsed implements Family.
func (f *LinReg) Uncollapsed() bool { return false }

// Args implements Family.
func (f *LinReg) Args() Args { return Args{} }

// Valid implements Family.
func (f *LinReg) Valid(x float64) bool { return !math.IsInf(x, 0) }

// Configure binds the covariate count (root columns + intercept) and
// derives hyper grids from the column data.
func (f *LinReg) Configure(values []float64, numInputs int) {
	if p := numInputs + 1; f.p == 0 {
		f.p = p
	} else if f.p != p {
		panic(fmt.Sprintf("component: linreg bound to %d covariates, reconfigured with %d", f.p, p))
	}
	n := math.Max(float64(len(validValues(values))), 1)
	f.grids = map[string][]float64{
		"a": mathx.LogLinspace(1/n, n, hyperGridSize),
		"b": mathx.LogLinspace(1/n, n, hyperGridSize),
	}
}

// Hypers implements Family.
func (f *LinReg) Hypers() map[string]float64 {
	return map[string]float64{"a": f.a, "b": f.b}
}

// SetHypers implements Family.
func (f *LinReg) SetHypers(h map[string]float64) error {
	v, err := requireHypers(h, []string{"a", "b"})
	if err != nil {
		return err
	}
	f.a, f.b = v["a"], v["b"]
	return nil
}

// NewComponent implements Family.
func (f *LinReg) NewComponent(_ *rand.Rand) Component {
	if f.p == 0 {
		panic("component: linreg family used before Configure bound its covariates")
	}
	return &linRegComponent{
		f:   f,
		xtx: mat.NewSymDense(f.p, nil),
		xty: make([]float64, f.p),
	}
}

// TransitionHypers implements Family.
func (f *LinReg) TransitionHypers(clusters []Component, rng *rand.Rand) {
	gridGibbsHypers(f, f.grids, clusters, rng)
}

// RestoreComponent implements Family.
func (f *LinReg) RestoreComponent(cs ClusterState) (Component, error) {
	xty := cs.Vecs["xty"]
	raw := cs.Vecs["xtx"]
	if f.p == 0 {
		f.p = len(xty)
	}
	if len(xty) != f.p || len(raw) != f.p*f.p {
		return nil, fmt.Errorf("component: linreg statistics sized for %d covariates, want %d", len(xty), f.p)
	}
	xtx := mat.NewSymDense(f.p, nil)
	for i := 0; i < f.p; i++ {
		for j := i; j < f.p; j++ {
			xtx.SetSym(i, j, raw[i*f.p+j])
		}
	}
	return &linRegComponent{
		f:   f,
		n:   cs.N,
		xtx: xtx,
		xty: append([]float64(nil), xty...),
		yty: cs.Stats["yty"],
	}, nil
}

type linRegComponent struct {
	f   *LinReg
	n   float64
	xtx *mat.SymDense // design Gram matrix X'X
	xty []float64     // X'y
	yty float64       // y'y
}

// design appends the intercept to the covariate vector.
func (c *linRegComponent) design(inputs []float64) []float64 {
	if len(inputs) != c.f.p-1 {
		panic(fmt.Sprintf("component: linreg got %d covariates, want %d", len(inputs), c.f.p-1))
	}
	phi := make([]float64, c.f.p)
	copy(phi, inputs)
	phi[c.f.p-1] = 1
	return phi
}

func (c *linRegComponent) N() float64 { return c.n }

func (c *linRegComponent) Incorporate(y float64, inputs []float64) {
	phi := c.design(inputs)
	v := mat.NewVecDense(c.f.p, phi)
	c.xtx.SymRankOne(c.xtx, 1, v)
	for i, x := range phi {
		c.xty[i] += y * x
	}
	c.yty += y * y
	c.n++
}

func (c *linRegComponent) Unincorporate(y float64, inputs []float64) {
	phi := c.design(inputs)
	v := mat.NewVecDense(c.f.p, phi)
	c.xtx.SymRankOne(c.xtx, -1, v)
	for i, x := range phi {
		c.xty[i] -= y * x
	}
	c.yty -= y * y
	c.n--
}

// posterior returns the Cholesky factor of the posterior coefficient
// precision Vn^-1 = I + X'X, the posterior mean mn, and the
// inverse-gamma posterior (an, bn) on the noise variance.
func (c *linRegComponent) posterior(xtx *mat.SymDense, xty []float64, yty, n float64) (chol mat.Cholesky, mn *mat.VecDense, an, bn float64) {
	p := c.f.p
	prec := mat.NewSymDense(p, nil)
	prec.CopySym(xtx)
	for i := 0; i < p; i++ {
		prec.SetSym(i, i, prec.At(i, i)+1)
	}
	if ok := chol.Factorize(prec); !ok {
		panic("component: linreg posterior precision is not positive definite")
	}
	mn = mat.NewVecDense(p, nil)
	if err := chol.SolveVecTo(mn, mat.NewVecDense(p, append([]float64(nil), xty...))); err != nil {
		panic(fmt.Sprintf("component: linreg posterior solve failed: %v", err))
	}
	an = c.f.a + n/2
	bn = c.f.b + 0.5*(yty-mat.Dot(mn, mat.NewVecDense(p, append([]float64(nil), xty...))))
	bn = math.Max(bn, 1e-12)
	return chol, mn, an, bn
}

// marginal is the closed-form evidence of the cluster's regression data.
func (c *linRegComponent) marginal(xtx *mat.SymDense, xty []float64, yty, n float64) float64 {
	if n == 0 {
		return 0
	}
	chol, _, an, bn := c.posterior(xtx, xty, yty, n)
	return -n/2*math.Log(2*math.Pi) - 0.5*chol.LogDet() +
		c.f.a*math.Log(c.f.b) - an*math.Log(bn) + mathx.Lgamma(an) - mathx.Lgamma(c.f.a)
}

func (c *linRegComponent) Logpdf(y float64, inputs []float64) float64 {
	if math.IsInf(y, 0) {
		return math.Inf(-1)
	}
	phi := c.design(inputs)
	p := c.f.p
	xtx := mat.NewSymDense(p, nil)
	xtx.CopySym(c.xtx)
	xtx.SymRankOne(xtx, 1, mat.NewVecDense(p, phi))
	xty := make([]float64, p)
	for i, x := range phi {
		xty[i] = c.xty[i] + y*x
	}
	return c.marginal(xtx, xty, c.yty+y*y, c.n+1) - c.marginal(c.xtx, c.xty, c.yty, c.n)
}

func (c *linRegComponent) Simulate(inputs []float64, rng *rand.Rand) float64 {
	phi := c.design(inputs)
	chol, mn, an, bn := c.posterior(c.xtx, c.xty, c.yty, c.n)
	sigma2 := bn / distuv.Gamma{Alpha: an, Beta: 1, Src: rng}.Rand()
	sigma := math.Sqrt(sigma2)

	// beta = mn + sigma * L^-T z with Vn^-1 = L L'.
	p := c.f.p
	var lower mat.TriDense
	chol.LTo(&lower)
	z := make([]float64, p)
	for i := range z {
		z[i] = rng.NormFloat64()
	}
	w := make([]float64, p)
	for i := p - 1; i >= 0; i-- {
		sum := z[i]
		for j := i + 1; j < p; j++ {
			sum -= lower.At(j, i) * w[j]
		}
		w[i] = sum / lower.At(i, i)
	}
	y := sigma * rng.NormFloat64()
	for i, x := range phi {
		y += (mn.AtVec(i) + sigma*w[i]) * x
	}
	return y
}

func (c *linRegComponent) LogpdfScore() float64 {
	return c.marginal(c.xtx, c.xty, c.yty, c.n)
}

func (c *linRegComponent) State() ClusterState {
	p := c.f.p
	raw := make([]float64, p*p)
	for i := 0; i < p; i++ {
		for j := 0; j < p; j++ {
			raw[i*p+j] = c.xtx.At(i, j)
		}
	}
	return ClusterState{
		N:     c.n,
		Stats: map[string]float64{"yty": c.yty},
		Vecs: map[string][]float64{
			"xtx": raw,
			"xty": append([]float64(nil), c.xty...),
		},
	}
}
