package crosscat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelevancePriorIsHalf(t *testing.T) {
	// With one observed row, an empty hypothetical row carries no data
	// term, so the score reduces to the CRP prior: alpha 1 gives
	// p(same) = 1/(1+alpha) = 1/2.
	v := newBernoulliView(t, []float64{1}, map[int]int{0: 0})

	score, err := v.RelevanceScore(0, nil, []RowValues{{}})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, score, 1e-9)
}

func TestRelevancePosterior(t *testing.T) {
	// Two agreeing bernoulli ones under Beta(1,1), alpha 1:
	//   same:  1/2 * 2/3 = 1/3
	//   apart: 1/2 * 1/2 = 1/4
	//   p(same) = (1/3)/(1/3 + 1/4) = 4/7
	v := newBernoulliView(t, []float64{1, 1}, map[int]int{0: 0, 1: 0})

	score, err := v.RelevanceScore(0, []int{1}, nil)
	require.NoError(t, err)
	assert.InDelta(t, 4.0/7.0, score, 1e-9)
}

func TestRelevanceHypotheticalMatchesObserved(t *testing.T) {
	// A hypothetical row with the same cell as an observed query row
	// must yield the same score.
	observed := newBernoulliView(t, []float64{1, 1}, map[int]int{0: 0, 1: 0})
	single := newBernoulliView(t, []float64{1}, map[int]int{0: 0})

	a, err := observed.RelevanceScore(0, []int{1}, nil)
	require.NoError(t, err)
	b, err := single.RelevanceScore(0, nil, []RowValues{{0: 1}})
	require.NoError(t, err)
	assert.InDelta(t, a, b, 1e-9)
}

func TestRelevanceCommutes(t *testing.T) {
	v := newBernoulliView(t, []float64{1, 0, 1, 1}, map[int]int{0: 0, 1: 1, 2: 0, 3: 1})

	ab, err := v.RelevanceScore(0, []int{2}, nil)
	require.NoError(t, err)
	ba, err := v.RelevanceScore(2, []int{0}, nil)
	require.NoError(t, err)
	assert.InDelta(t, ab, ba, 1e-9)
}

func TestRelevanceRestoresState(t *testing.T) {
	v := newBernoulliView(t, []float64{1, 0, 1, 1, 0}, map[int]int{0: 0, 1: 1, 2: 0, 3: 2, 4: 1})
	before := v.LogpdfScore()
	assignmentsBefore := v.Assignments()

	_, err := v.RelevanceScore(3, []int{1, 4}, []RowValues{{0: 1}})
	require.NoError(t, err)

	assert.InDelta(t, before, v.LogpdfScore(), 1e-6)
	assert.NotPanics(t, v.checkPartitions)
	assert.Equal(t, len(assignmentsBefore), len(v.Assignments()))
	assert.Equal(t, 3, v.K())
}

func TestRelevanceErrors(t *testing.T) {
	v := newBernoulliView(t, []float64{1, 0}, map[int]int{0: 0, 1: 0})

	_, err := v.RelevanceScore(9, []int{0}, nil)
	assert.ErrorIs(t, err, ErrUnknownRow)

	_, err = v.RelevanceScore(0, []int{9}, nil)
	assert.ErrorIs(t, err, ErrUnknownRow)

	_, err = v.RelevanceScore(0, nil, nil)
	assert.ErrorIs(t, err, ErrEmptyQuery)

	_, err = v.RelevanceScore(0, []int{0}, nil)
	assert.ErrorIs(t, err, ErrRowObserved)

	_, err = v.RelevanceScore(0, []int{1, 1}, nil)
	assert.ErrorIs(t, err, ErrRowObserved)

	_, err = v.RelevanceScore(0, []int{1}, []RowValues{{9: 1}})
	assert.ErrorIs(t, err, ErrUnknownColumn)
}
