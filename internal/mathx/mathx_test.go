package mathx

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogSumExp(t *testing.T) {
	got := LogSumExp([]float64{math.Log(1), math.Log(2), math.Log(3)})
	assert.InDelta(t, math.Log(6), got, 1e-12)
}

func TestLogMeanExp(t *testing.T) {
	got := LogMeanExp([]float64{math.Log(2), math.Log(4)})
	assert.InDelta(t, math.Log(3), got, 1e-12)
}

func TestLogNormalize(t *testing.T) {
	p := LogNormalize([]float64{0, 0, 0, 0})
	for _, lp := range p {
		assert.InDelta(t, math.Log(0.25), lp, 1e-12)
	}

	p = LogNormalize([]float64{math.Inf(-1), 0})
	assert.True(t, math.IsInf(p[0], -1))
	assert.InDelta(t, 0, p[1], 1e-12)
}

func TestLogLinspace(t *testing.T) {
	grid := LogLinspace(0.1, 10, 3)
	require.Len(t, grid, 3)
	assert.InDelta(t, 0.1, grid[0], 1e-12)
	assert.InDelta(t, 1.0, grid[1], 1e-12)
	assert.InDelta(t, 10.0, grid[2], 1e-9)
}

func TestLogChoice(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	// Degenerate weights always pick the only finite entry.
	w := []float64{math.Inf(-1), 0, math.Inf(-1)}
	for i := 0; i < 100; i++ {
		assert.Equal(t, 1, LogChoice(rng, w))
	}

	// Frequencies track the weights.
	w = []float64{math.Log(1), math.Log(9)}
	counts := [2]int{}
	n := 20000
	for i := 0; i < n; i++ {
		counts[LogChoice(rng, w)]++
	}
	assert.InDelta(t, 0.9, float64(counts[1])/float64(n), 0.02)
}

func TestLogChoices(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	idx := LogChoices(rng, []float64{0, 0}, 10)
	require.Len(t, idx, 10)
	for _, i := range idx {
		assert.Contains(t, []int{0, 1}, i)
	}
}

func TestLBeta(t *testing.T) {
	// B(1,1) = 1, B(2,3) = 1/12.
	assert.InDelta(t, 0, LBeta(1, 1), 1e-12)
	assert.InDelta(t, math.Log(1.0/12.0), LBeta(2, 3), 1e-12)
}
