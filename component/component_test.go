package component

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRNG() *rand.Rand {
	return rand.New(rand.NewPCG(7, 11))
}

func TestNewFamily(t *testing.T) {
	for _, tag := range []string{TagBernoulli, TagNormal, TagPoisson, TagNormalUC, TagLinReg} {
		f, err := NewFamily(tag, Args{})
		require.NoError(t, err)
		assert.Equal(t, tag, f.Tag())
	}

	f, err := NewFamily(TagCategorical, Args{Categories: 4})
	require.NoError(t, err)
	assert.Equal(t, Args{Categories: 4}, f.Args())

	_, err = NewFamily(TagCategorical, Args{Categories: 1})
	assert.Error(t, err)

	_, err = NewFamily("bogus", Args{})
	assert.Error(t, err)
}

func TestFamilyValid(t *testing.T) {
	bernoulli, _ := NewFamily(TagBernoulli, Args{})
	assert.True(t, bernoulli.Valid(0))
	assert.True(t, bernoulli.Valid(1))
	assert.False(t, bernoulli.Valid(7))
	assert.False(t, bernoulli.Valid(0.5))

	categorical, _ := NewFamily(TagCategorical, Args{Categories: 4})
	assert.True(t, categorical.Valid(3))
	assert.False(t, categorical.Valid(4))
	assert.False(t, categorical.Valid(-1))
	assert.False(t, categorical.Valid(1.5))

	poisson, _ := NewFamily(TagPoisson, Args{})
	assert.True(t, poisson.Valid(0))
	assert.True(t, poisson.Valid(12))
	assert.False(t, poisson.Valid(-1))
	assert.False(t, poisson.Valid(2.5))

	for _, tag := range []string{TagNormal, TagNormalUC, TagLinReg} {
		f, _ := NewFamily(tag, Args{})
		assert.True(t, f.Valid(-3.25), tag)
		assert.False(t, f.Valid(math.Inf(1)), tag)
	}
}

func TestModelNewClusterPromotesAux(t *testing.T) {
	rng := newRNG()
	f := NewBernoulli()
	f.Configure([]float64{0, 1, 1}, 0)
	m := NewModel(3, f, nil, rng)

	require.Equal(t, 0, m.K())
	m.Incorporate(0, 1, nil, 0, rng)
	require.Equal(t, 1, m.K())
	m.Incorporate(1, 0, nil, 1, rng)
	require.Equal(t, 2, m.K())
	assert.Panics(t, func() { m.Incorporate(2, 1, nil, 5, rng) })

	// Label K evaluates the auxiliary (empty) component.
	lp := m.Logpdf(1, nil, m.K())
	assert.InDelta(t, math.Log(0.5), lp, 1e-12)
}

func TestModelMissingValues(t *testing.T) {
	rng := newRNG()
	f := NewNormal()
	f.Configure([]float64{1, 2, math.NaN()}, 0)
	m := NewModel(0, f, nil, rng)

	m.Incorporate(0, 1, nil, 0, rng)
	m.Incorporate(1, math.NaN(), nil, 0, rng)
	assert.True(t, m.IsMissing(1))
	assert.False(t, m.IsMissing(0))
	assert.InDelta(t, 1.0, m.Cluster(0).N(), 1e-12)

	// Missing values contribute log density zero.
	assert.Zero(t, m.Logpdf(math.NaN(), nil, 0))

	m.Unincorporate(1, math.NaN(), nil, 0)
	assert.False(t, m.IsMissing(1))
}

func TestModelDropCluster(t *testing.T) {
	rng := newRNG()
	f := NewBernoulli()
	f.Configure([]float64{0, 1}, 0)
	m := NewModel(0, f, nil, rng)
	m.Incorporate(0, 1, nil, 0, rng)
	m.Incorporate(1, 0, nil, 1, rng)
	m.DropCluster(0)
	require.Equal(t, 1, m.K())
	assert.InDelta(t, 0.0, m.Cluster(0).State().Stats["ones"], 1e-12)
}

func TestBernoulliPredictive(t *testing.T) {
	f := NewBernoulli()
	c := f.NewComponent(nil)
	c.Incorporate(1, nil)

	// Beta(1,1) posterior after one success: P(x=1) = 2/3.
	assert.InDelta(t, math.Log(2.0/3.0), c.Logpdf(1, nil), 1e-12)
	assert.InDelta(t, math.Log(1.0/3.0), c.Logpdf(0, nil), 1e-12)
	assert.True(t, math.IsInf(c.Logpdf(2, nil), -1))

	// Marginal of a single 1 under Beta(1,1) is 1/2.
	assert.InDelta(t, math.Log(0.5), c.LogpdfScore(), 1e-12)
}

func TestCategoricalPredictive(t *testing.T) {
	f, err := NewCategorical(3)
	require.NoError(t, err)
	c := f.NewComponent(nil)
	c.Incorporate(2, nil)
	c.Incorporate(2, nil)

	// alpha=1: P(x=2) = (1+2)/(3+2) = 3/5.
	assert.InDelta(t, math.Log(3.0/5.0), c.Logpdf(2, nil), 1e-12)
	assert.True(t, math.IsInf(c.Logpdf(3, nil), -1))
	assert.True(t, math.IsInf(c.Logpdf(0.5, nil), -1))

	// Predictives over the support sum to one.
	total := 0.0
	for x := 0; x < 3; x++ {
		total += math.Exp(c.Logpdf(float64(x), nil))
	}
	assert.InDelta(t, 1.0, total, 1e-12)
}

func TestNormalPredictiveSumsToOne(t *testing.T) {
	f := NewNormal()
	c := f.NewComponent(nil)
	for _, x := range []float64{-0.5, 0.1, 0.4, 1.2} {
		c.Incorporate(x, nil)
	}

	// Numerically integrate the posterior predictive.
	total := 0.0
	dx := 0.01
	for x := -30.0; x < 30.0; x += dx {
		total += math.Exp(c.Logpdf(x, nil)) * dx
	}
	assert.InDelta(t, 1.0, total, 1e-3)
}

func TestNormalSimulateTracksData(t *testing.T) {
	rng := newRNG()
	f := NewNormal()
	c := f.NewComponent(nil)
	for i := 0; i < 200; i++ {
		c.Incorporate(5+rng.NormFloat64()*0.1, nil)
	}
	mean := 0.0
	n := 2000
	for i := 0; i < n; i++ {
		mean += c.Simulate(nil, rng)
	}
	mean /= float64(n)
	assert.InDelta(t, 5.0, mean, 0.2)
}

func TestPoissonPredictive(t *testing.T) {
	f := NewPoisson()
	c := f.NewComponent(nil)
	c.Incorporate(3, nil)
	c.Incorporate(4, nil)

	assert.True(t, math.IsInf(c.Logpdf(-1, nil), -1))
	assert.True(t, math.IsInf(c.Logpdf(2.5, nil), -1))

	// Negative binomial predictive sums to one over the support.
	total := 0.0
	for x := 0.0; x < 500; x++ {
		total += math.Exp(c.Logpdf(x, nil))
	}
	assert.InDelta(t, 1.0, total, 1e-9)
}

func TestNormalUCResample(t *testing.T) {
	rng := newRNG()
	f := NewNormalUC()
	c := f.NewComponent(rng).(Uncollapsed)
	for i := 0; i < 500; i++ {
		c.Incorporate(10+rng.NormFloat64(), nil)
	}
	c.ResampleParams(rng)
	st := c.State()
	assert.InDelta(t, 10.0, st.Params["mu"], 0.5)
	assert.Greater(t, st.Params["rho"], 0.0)
	assert.False(t, math.IsInf(c.LogpdfScore(), 0))
}

func TestLinRegRecoversLine(t *testing.T) {
	rng := newRNG()
	f := NewLinReg()
	f.Configure([]float64{1, 2, 3}, 1)
	c := f.NewComponent(nil)
	for i := 0; i < 100; i++ {
		x := rng.Float64() * 10
		c.Incorporate(2*x+1+0.01*rng.NormFloat64(), []float64{x})
	}

	// On-line points are far more likely than off-line points.
	on := c.Logpdf(2*5+1, []float64{5})
	off := c.Logpdf(2*5+5, []float64{5})
	assert.Greater(t, on, off+10)

	// Simulated responses stay near the line.
	total := 0.0
	n := 500
	for i := 0; i < n; i++ {
		total += c.Simulate([]float64{5}, rng)
	}
	assert.InDelta(t, 11.0, total/float64(n), 0.5)
}

func TestTransitionHypersStaysOnGrid(t *testing.T) {
	rng := newRNG()
	values := []float64{0, 1, 1, 0, 1, 1, 1, 0}
	f := NewBernoulli()
	f.Configure(values, 0)
	m := NewModel(0, f, nil, rng)
	for i, x := range values {
		m.Incorporate(i, x, nil, 0, rng)
	}
	m.TransitionHypers(rng)
	h := f.Hypers()
	assert.Contains(t, f.grids["alpha"], h["alpha"])
	assert.Contains(t, f.grids["beta"], h["beta"])
	assert.False(t, math.IsInf(m.LogpdfScore(), 0))
}

func TestComponentRoundTrip(t *testing.T) {
	rng := newRNG()
	cases := []struct {
		family Family
		values []float64
	}{
		{NewBernoulli(), []float64{1, 0, 1, 1}},
		{mustCategorical(t, 3), []float64{0, 2, 2, 1}},
		{NewNormal(), []float64{0.3, -1.2, 4.5, 2.2}},
		{NewPoisson(), []float64{1, 0, 7, 3}},
	}
	for _, tc := range cases {
		t.Run(tc.family.Tag(), func(t *testing.T) {
			c := tc.family.NewComponent(rng)
			for _, x := range tc.values {
				c.Incorporate(x, nil)
			}
			before := c.LogpdfScore()
			c.Unincorporate(tc.values[1], nil)
			c.Incorporate(tc.values[1], nil)
			assert.InDelta(t, before, c.LogpdfScore(), 1e-9)
		})
	}
}

func TestModelStateRestore(t *testing.T) {
	rng := newRNG()
	values := []float64{0.5, -0.7, 2.5, math.NaN(), 0.1}
	f := NewNormal()
	f.Configure(values, 0)
	m := NewModel(9, f, nil, rng)
	for i, x := range values {
		m.Incorporate(i, x, nil, i%2, rng)
	}

	st := m.State()
	got, err := Restore(st, rng)
	require.NoError(t, err)
	assert.Equal(t, m.ID(), got.ID())
	assert.Equal(t, m.K(), got.K())
	assert.True(t, got.IsMissing(3))
	assert.InDelta(t, m.LogpdfScore(), got.LogpdfScore(), 1e-12)
}

func TestLinRegStateRestore(t *testing.T) {
	rng := newRNG()
	f := NewLinReg()
	f.Configure([]float64{1, 2, 3, 4}, 2)
	m := NewModel(4, f, []int{0, 1}, rng)
	for i := 0; i < 10; i++ {
		x := []float64{float64(i), float64(i % 3)}
		m.Incorporate(i, 3*x[0]-x[1]+0.5, x, 0, rng)
	}

	got, err := Restore(m.State(), rng)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, got.Inputs())
	assert.InDelta(t, m.LogpdfScore(), got.LogpdfScore(), 1e-9)
	assert.InDelta(t,
		m.Logpdf(7, []float64{2, 1}, 0),
		got.Logpdf(7, []float64{2, 1}, 0), 1e-9)
}

func TestNormalUCStateRestore(t *testing.T) {
	rng := newRNG()
	f := NewNormalUC()
	f.Configure([]float64{1, 2, 3}, 0)
	m := NewModel(2, f, nil, rng)
	for i := 0; i < 5; i++ {
		m.Incorporate(i, float64(i), nil, 0, rng)
	}

	got, err := Restore(m.State(), rng)
	require.NoError(t, err)
	// Sampled parameters must survive the round trip exactly.
	assert.Equal(t, m.Cluster(0).State().Params, got.Cluster(0).State().Params)
	assert.InDelta(t, m.LogpdfScore(), got.LogpdfScore(), 1e-12)
}

func mustCategorical(t *testing.T, k int) *Categorical {
	t.Helper()
	f, err := NewCategorical(k)
	require.NoError(t, err)
	return f
}
