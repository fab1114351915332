package crosscat

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/crosscat/component"
	"github.com/hupe1980/crosscat/testutil"
)

// newBernoulliView builds a single-column bernoulli view with alpha 1
// and a uniform Beta(1,1) prior so expected probabilities are exact.
func newBernoulliView(t *testing.T, values []float64, assignments map[int]int, optFns ...Option) *View {
	t.Helper()
	opts := append([]Option{WithSeed(7), WithAlpha(1)}, optFns...)
	if assignments != nil {
		opts = append(opts, WithPartition(assignments))
	}
	v, err := New(
		map[int][]float64{0: values},
		[]Dim{{ID: 0, Family: component.TagBernoulli}},
		opts...,
	)
	require.NoError(t, err)
	require.NoError(t, v.cols[0].Family().SetHypers(map[string]float64{"alpha": 1, "beta": 1}))
	return v
}

func TestNewValidation(t *testing.T) {
	t.Run("duplicate dim", func(t *testing.T) {
		_, err := New(
			map[int][]float64{0: {1}},
			[]Dim{{ID: 0, Family: component.TagBernoulli}, {ID: 0, Family: component.TagNormal}},
		)
		assert.ErrorIs(t, err, ErrDuplicateColumn)
	})

	t.Run("missing data column", func(t *testing.T) {
		_, err := New(nil, []Dim{{ID: 0, Family: component.TagBernoulli}})
		assert.ErrorIs(t, err, ErrUnknownColumn)
	})

	t.Run("ragged data", func(t *testing.T) {
		_, err := New(
			map[int][]float64{0: {1, 0}, 1: {0.5}},
			[]Dim{{ID: 0, Family: component.TagBernoulli}, {ID: 1, Family: component.TagNormal}},
		)
		assert.Error(t, err)
	})

	t.Run("undeclared data column", func(t *testing.T) {
		_, err := New(
			map[int][]float64{0: {1}, 9: {1}},
			[]Dim{{ID: 0, Family: component.TagBernoulli}},
		)
		assert.ErrorIs(t, err, ErrUnknownColumn)
	})

	t.Run("conditional without roots", func(t *testing.T) {
		_, err := New(
			map[int][]float64{0: {1, 2}},
			[]Dim{{ID: 0, Family: component.TagLinReg}},
		)
		assert.ErrorIs(t, err, ErrConditionalFirst)
	})

	t.Run("partition must cover rows", func(t *testing.T) {
		_, err := New(
			map[int][]float64{0: {1, 0, 1}},
			[]Dim{{ID: 0, Family: component.TagBernoulli}},
			WithPartition(map[int]int{0: 0, 1: 0}),
		)
		assert.Error(t, err)
	})
}

func TestNewRespectsOptions(t *testing.T) {
	v := newBernoulliView(t, []float64{1, 0, 1}, map[int]int{0: 0, 1: 0, 2: 1})

	assert.Equal(t, 1.0, v.Alpha())
	assert.Equal(t, 2, v.K())
	assert.Equal(t, 3, v.NumRows())
	z, ok := v.Assignment(2)
	require.True(t, ok)
	assert.Equal(t, 1, z)
	assert.NotPanics(t, v.checkPartitions)
}

func TestIncorporateExplicitCluster(t *testing.T) {
	v := newBernoulliView(t, []float64{1, 0}, map[int]int{0: 0, 1: 0})

	// Opening a fresh cluster with k == K.
	require.NoError(t, v.Incorporate(2, map[int]float64{0: 1}, 1))
	assert.Equal(t, 2, v.K())
	assert.NotPanics(t, v.checkPartitions)

	var invalid *ErrInvalidCluster
	err := v.Incorporate(3, map[int]float64{0: 1}, 5)
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, 5, invalid.Label)

	assert.ErrorIs(t, v.Incorporate(2, nil, 0), ErrRowObserved)
	assert.ErrorIs(t, v.Incorporate(3, map[int]float64{9: 1}, 0), ErrUnknownColumn)
}

func TestIncorporateGibbsAssigns(t *testing.T) {
	v := newBernoulliView(t, []float64{1, 1, 0, 0}, map[int]int{0: 0, 1: 0, 2: 1, 3: 1})

	require.NoError(t, v.Incorporate(4, map[int]float64{0: 1}, -1))
	z, ok := v.Assignment(4)
	require.True(t, ok)
	assert.GreaterOrEqual(t, z, 0)
	assert.LessOrEqual(t, z, 2)
	assert.NotPanics(t, v.checkPartitions)
}

func TestUnincorporateRoundTrip(t *testing.T) {
	v := newBernoulliView(t, []float64{1, 0, 1}, map[int]int{0: 0, 1: 1, 2: 0})
	before := v.LogpdfScore()

	require.NoError(t, v.Unincorporate(1))
	assert.Equal(t, 1, v.K()) // row 1 was a singleton, cluster compacted
	assert.NotPanics(t, v.checkPartitions)

	require.NoError(t, v.Incorporate(1, map[int]float64{0: 0}, v.K()))
	assert.InDelta(t, before, v.LogpdfScore(), 1e-9)
	assert.NotPanics(t, v.checkPartitions)

	assert.ErrorIs(t, v.Unincorporate(99), ErrUnknownRow)
}

func TestIncorporateDimAndLeaves(t *testing.T) {
	v, err := New(
		map[int][]float64{0: {0, 1, 2, 3}},
		[]Dim{{ID: 0, Family: component.TagNormal}},
		WithSeed(3), WithAlpha(1), WithPartition(map[int]int{0: 0, 1: 0, 2: 0, 3: 0}),
	)
	require.NoError(t, err)

	// A regression leaf picks up the root as covariate by default.
	err = v.IncorporateDim(
		Dim{ID: 1, Family: component.TagLinReg},
		map[int]float64{0: 1, 1: 3, 2: 5, 3: 7},
	)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, v.Columns())
	assert.Equal(t, []int{0}, v.cols[1].Inputs())
	assert.NotPanics(t, v.checkPartitions)

	assert.ErrorIs(t, v.IncorporateDim(Dim{ID: 1, Family: component.TagNormal}, nil), ErrDuplicateColumn)
	assert.ErrorIs(t, v.IncorporateDim(
		Dim{ID: 2, Family: component.TagLinReg, Inputs: []int{9}}, nil,
	), ErrUnknownColumn)

	// The root cannot leave while a leaf depends on it.
	assert.ErrorIs(t, v.UnincorporateDim(0), ErrConditionalFirst)
	require.NoError(t, v.UnincorporateDim(1))
	require.NoError(t, v.UnincorporateDim(0))
	assert.Empty(t, v.Columns())
	assert.ErrorIs(t, v.UnincorporateDim(0), ErrUnknownColumn)
}

func TestUpdateFamily(t *testing.T) {
	v := newBernoulliView(t, []float64{1, 0, 1, 1}, map[int]int{0: 0, 1: 0, 2: 1, 3: 1})

	require.NoError(t, v.UpdateFamily(0, component.TagNormal, component.Args{}))
	assert.Equal(t, component.TagNormal, v.cols[0].Family().Tag())
	assert.False(t, math.IsInf(v.LogpdfScore(), 0))
	assert.NotPanics(t, v.checkPartitions)

	assert.ErrorIs(t, v.UpdateFamily(9, component.TagNormal, component.Args{}), ErrUnknownColumn)
	assert.Error(t, v.UpdateFamily(0, "nonsense", component.Args{}))
}

func TestTransitionSweeps(t *testing.T) {
	rng := testutil.NewRNG(5)
	data, _ := testutil.ClusteredTable(rng, 60,
		[]string{component.TagNormal, component.TagBernoulli}, 3, 1)

	v, err := New(data, []Dim{
		{ID: 0, Family: component.TagNormal},
		{ID: 1, Family: component.TagBernoulli},
	}, WithSeed(5))
	require.NoError(t, err)

	diags, err := v.Transition(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, diags, 10)
	for i, d := range diags {
		assert.Equal(t, i+1, d.Sweep)
		assert.False(t, math.IsNaN(d.Score))
		assert.False(t, math.IsInf(d.Score, 0))
		assert.Positive(t, d.Alpha)
		assert.GreaterOrEqual(t, d.Clusters, 1)
		assert.LessOrEqual(t, d.Clusters, 60)
	}
	assert.NotPanics(t, v.checkPartitions)
}

func TestTransitionHonorsContext(t *testing.T) {
	v := newBernoulliView(t, []float64{1, 0}, map[int]int{0: 0, 1: 0})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	diags, err := v.Transition(ctx, 10)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, diags)
}

func TestTransitionRowsTargetsSubset(t *testing.T) {
	v := newBernoulliView(t, []float64{1, 1, 0, 0, 1, 0},
		map[int]int{0: 0, 1: 0, 2: 1, 3: 1, 4: 0, 5: 1})
	before := v.Assignments()

	require.NoError(t, v.TransitionRows(4))
	after := v.Assignments()
	for rowid, k := range before {
		if rowid == 4 {
			continue
		}
		assert.Equal(t, k, after[rowid], "row %d moved without being targeted", rowid)
	}
	assert.NotPanics(t, v.checkPartitions)

	assert.ErrorIs(t, v.TransitionRows(99), ErrUnknownRow)
}

func TestTransitionHypersTargetsSubset(t *testing.T) {
	rng := testutil.NewRNG(9)
	data, _ := testutil.ClusteredTable(rng, 30,
		[]string{component.TagNormal, component.TagNormal}, 2, 1)

	v, err := New(data, []Dim{
		{ID: 0, Family: component.TagNormal},
		{ID: 1, Family: component.TagNormal},
	}, WithSeed(9))
	require.NoError(t, err)

	frozen := v.cols[1].Family().Hypers()
	for i := 0; i < 5; i++ {
		require.NoError(t, v.TransitionHypers(0))
	}
	assert.Equal(t, frozen, v.cols[1].Family().Hypers())

	assert.ErrorIs(t, v.TransitionHypers(42), ErrUnknownColumn)
}

func TestIncorporateRejectsOutOfSupport(t *testing.T) {
	v := newBernoulliView(t, []float64{1, 0}, map[int]int{0: 0, 1: 0})

	assert.ErrorIs(t, v.Incorporate(2, map[int]float64{0: 7}, 0), ErrInvalidValue)
	assert.Equal(t, 2, v.NumRows())
	assert.NotPanics(t, v.checkPartitions)

	// Construction runs the same check over the data.
	_, err := New(
		map[int][]float64{0: {1, 7}},
		[]Dim{{ID: 0, Family: component.TagBernoulli}},
	)
	assert.ErrorIs(t, err, ErrInvalidValue)

	// A family change that strands existing data is rejected and the
	// column keeps its old family.
	w, err := New(
		map[int][]float64{0: {0.5, 1.5}},
		[]Dim{{ID: 0, Family: component.TagNormal}},
		WithSeed(3),
	)
	require.NoError(t, err)
	assert.ErrorIs(t, w.UpdateFamily(0, component.TagBernoulli, component.Args{}), ErrInvalidValue)
	assert.Equal(t, component.TagNormal, w.cols[0].Family().Tag())
}

func TestLogpdfScoreIgnoresLabelOrder(t *testing.T) {
	// The joint score depends on the partition's shape, not its labels.
	a := newBernoulliView(t, []float64{1, 0, 1}, map[int]int{0: 0, 1: 1, 2: 0})
	b := newBernoulliView(t, []float64{1, 0, 1}, map[int]int{0: 1, 1: 0, 2: 1})
	assert.InDelta(t, a.LogpdfScore(), b.LogpdfScore(), 1e-9)
}

func TestLogpdfScoreExchangeable(t *testing.T) {
	// The joint score must not depend on the order rows arrived in.
	a := newBernoulliView(t, []float64{1, 0, 1}, map[int]int{0: 0, 1: 1, 2: 0})

	b := newBernoulliView(t, []float64{}, nil)
	require.NoError(t, b.Incorporate(2, map[int]float64{0: 1}, 0))
	require.NoError(t, b.Incorporate(0, map[int]float64{0: 1}, 0))
	require.NoError(t, b.Incorporate(1, map[int]float64{0: 0}, 1))

	assert.Equal(t, a.Assignments(), b.Assignments())
	assert.InDelta(t, a.LogpdfScore(), b.LogpdfScore(), 1e-9)
}

func TestMetricsCollection(t *testing.T) {
	collector := &BasicMetricsCollector{}
	v := newBernoulliView(t, []float64{1, 0}, map[int]int{0: 0, 1: 0}, WithMetrics(collector))

	require.NoError(t, v.Incorporate(2, map[int]float64{0: 1}, 0))
	assert.Error(t, v.Incorporate(2, nil, 0))
	_, err := v.Transition(context.Background(), 2)
	require.NoError(t, err)
	_, err = v.Logpdf(-1, map[int]float64{0: 1}, nil)
	require.NoError(t, err)

	stats := collector.GetStats()
	assert.Equal(t, int64(2), stats.IncorporateCount)
	assert.Equal(t, int64(1), stats.IncorporateErrors)
	assert.Equal(t, int64(2), stats.SweepCount)
	assert.Equal(t, int64(1), stats.QueryCount)
}
