package crosscat

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/hupe1980/crosscat/internal/mathx"
)

// Diagnostics captures the view state after one full transition sweep.
type Diagnostics struct {
	Sweep    int
	Score    float64
	Alpha    float64
	Clusters int
}

// Transition runs full Gibbs sweeps (rows, then concentration, then
// column hyperparameters) and returns per-sweep diagnostics. The
// context is checked between sweeps.
func (v *View) Transition(ctx context.Context, sweeps int) ([]Diagnostics, error) {
	diags := make([]Diagnostics, 0, sweeps)
	for sweep := 1; sweep <= sweeps; sweep++ {
		if err := ctx.Err(); err != nil {
			return diags, err
		}
		start := time.Now()
		if err := v.TransitionRows(); err != nil {
			return diags, err
		}
		v.TransitionAlpha()
		if err := v.TransitionHypers(); err != nil {
			return diags, err
		}
		v.metrics.RecordSweep(time.Since(start), v.K())

		d := Diagnostics{
			Sweep:    sweep,
			Score:    v.LogpdfScore(),
			Alpha:    v.Alpha(),
			Clusters: v.K(),
		}
		diags = append(diags, d)
		v.logger.LogSweep(ctx, d.Sweep, d.Score, d.Alpha, d.Clusters)
	}
	return diags, nil
}

// TransitionRows resamples row cluster assignments from their Gibbs
// conditionals. With no arguments every observed row is resampled;
// otherwise only the named rows are. Rows are visited in a fresh
// random order each call.
func (v *View) TransitionRows(rows ...int) error {
	rowids := rows
	if len(rowids) == 0 {
		rowids = v.crp.RowIDs()
	} else {
		rowids = append([]int(nil), rowids...)
		for _, rowid := range rowids {
			if !v.crp.Contains(rowid) {
				return fmt.Errorf("crosscat: row %d: %w", rowid, ErrUnknownRow)
			}
		}
	}
	v.rng.Shuffle(len(rowids), func(i, j int) {
		rowids[i], rowids[j] = rowids[j], rowids[i]
	})
	for _, rowid := range rowids {
		v.transitionRow(rowid)
	}
	return nil
}

// transitionRow applies the collapsed Gibbs kernel to one row. The CRP
// term excludes the row itself; the data term scores the row's cells
// against each candidate cluster with the row's own contribution
// removed from its current one.
func (v *View) transitionRow(rowid int) {
	k0, _ := v.crp.Assignment(rowid)
	row := v.rows[rowid]

	// For a singleton row the weights cover only the K existing
	// clusters: the row's own emptied cluster doubles as the fresh
	// proposal, keeping its sampled parameters for uncollapsed
	// families. Otherwise index K is the auxiliary component.
	weights := v.crp.GibbsLogWeights(rowid)

	for _, col := range v.order {
		m := v.cols[col]
		x := v.cellValue(m, row)
		if math.IsNaN(x) {
			continue
		}
		inputs := v.cellInputs(m, row)
		m.Unincorporate(rowid, x, inputs, k0)
		for cand := range weights {
			weights[cand] += m.Logpdf(x, inputs, cand)
		}
		m.Incorporate(rowid, x, inputs, k0, v.rng)
	}

	z := mathx.LogChoice(v.rng, weights)
	if z == k0 {
		return
	}

	removed := v.crp.Unincorporate(rowid)
	for _, col := range v.order {
		m := v.cols[col]
		m.Unincorporate(rowid, v.cellValue(m, row), v.cellInputs(m, row), k0)
		if removed >= 0 {
			m.DropCluster(removed)
		}
	}
	if removed >= 0 && z > removed {
		z--
	}
	v.crp.Incorporate(rowid, z)
	for _, col := range v.order {
		m := v.cols[col]
		m.Incorporate(rowid, v.cellValue(m, row), v.cellInputs(m, row), z, v.rng)
	}
}

// TransitionAlpha resamples the CRP concentration by grid Gibbs over a
// log-spaced grid from 1/n to n.
func (v *View) TransitionAlpha() {
	n := math.Max(float64(v.crp.NumRows()), 1)
	grid := mathx.LogLinspace(1/n, n, alphaGridSize)
	v.crp.ResampleAlpha(grid, v.rng)
}

// TransitionHypers resamples column hyperparameters (and, for
// uncollapsed families, the per-cluster parameters). With no arguments
// every column is resampled; otherwise only the named columns are.
func (v *View) TransitionHypers(cols ...int) error {
	colids := cols
	if len(colids) == 0 {
		colids = v.order
	} else {
		for _, col := range colids {
			if _, ok := v.cols[col]; !ok {
				return fmt.Errorf("crosscat: column %d: %w", col, ErrUnknownColumn)
			}
		}
	}
	for _, col := range colids {
		v.cols[col].TransitionHypers(v.rng)
	}
	return nil
}
