package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/crosscat/component"
)

func TestRNGDeterminism(t *testing.T) {
	a := NewRNG(42)
	b := NewRNG(42)
	for i := 0; i < 100; i++ {
		assert.Equal(t, a.Float64(), b.Float64())
	}

	a.Reset()
	c := NewRNG(42)
	assert.Equal(t, c.Float64(), a.Float64())
	assert.Equal(t, uint64(42), a.Seed())
}

func TestClusteredTableShape(t *testing.T) {
	rng := NewRNG(7)
	families := []string{
		component.TagBernoulli,
		component.TagCategorical,
		component.TagNormal,
		component.TagPoisson,
	}
	data, truth := ClusteredTable(rng, 50, families, 3, 0.8)

	require.Len(t, truth, 50)
	require.Len(t, data, len(families))
	for col := range families {
		require.Len(t, data[col], 50)
	}
	for _, z := range truth {
		assert.GreaterOrEqual(t, z, 0)
		assert.Less(t, z, 3)
	}
	for _, x := range data[0] {
		assert.Contains(t, []float64{0, 1}, x)
	}
	for _, x := range data[1] {
		assert.GreaterOrEqual(t, x, 0.0)
		assert.Less(t, x, 4.0)
	}
	for _, x := range data[3] {
		assert.Equal(t, float64(int(x)), x)
		assert.GreaterOrEqual(t, x, 0.0)
	}
}

func TestClusteredTableSeparation(t *testing.T) {
	rng := NewRNG(11)
	data, truth := ClusteredTable(rng, 400, []string{component.TagNormal}, 2, 1)

	// With full separation the normal column's cluster means sit 8
	// apart, so per-cluster sample means must be far from each other.
	var sum, count [2]float64
	for i, x := range data[0] {
		sum[truth[i]] += x
		count[truth[i]]++
	}
	require.NotZero(t, count[0])
	require.NotZero(t, count[1])
	gap := sum[1]/count[1] - sum[0]/count[0]
	assert.InDelta(t, 8.0, gap, 1.5)
}
