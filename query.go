package crosscat

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/hupe1980/crosscat/component"
	"github.com/hupe1980/crosscat/internal/mathx"
)

// Logpdf returns the log predictive density of the query cells given
// the evidence cells, marginalizing over the row's cluster.
//
// rowid < 0 denotes a hypothetical row: the cluster is marginalized
// over the K existing clusters plus a fresh one under the CRP prior.
// For an observed row the cluster is fixed to its assignment, the row's
// observed cells join the evidence, and naming an observed cell in
// query or evidence is an error.
//
// When every involved column is unconditional the finite-mixture form
// is evaluated exactly; otherwise the density is estimated by
// importance sampling with the view's accuracy setting.
func (v *View) Logpdf(rowid int, query, evidence map[int]float64) (float64, error) {
	start := time.Now()
	logp, err := v.logpdf(rowid, query, evidence)
	v.metrics.RecordQuery(len(query), time.Since(start), err)
	v.logger.LogQuery(context.Background(), "logpdf", len(query), err)
	return logp, err
}

func (v *View) logpdf(rowid int, query, evidence map[int]float64) (float64, error) {
	if len(query) == 0 {
		return 0, ErrEmptyQuery
	}
	ev, err := v.mergeEvidence(rowid, query, evidence)
	if err != nil {
		return 0, err
	}

	ks, weights := v.clusterPrior(rowid)

	if v.exact && v.rootsOnly(query) && v.rootsOnly(ev) {
		// Exact finite mixture:
		//   log p(q|e) = LSE_k(w_k + e_k + q_k) - LSE_k(w_k + e_k)
		denom := make([]float64, len(ks))
		num := make([]float64, len(ks))
		for i, k := range ks {
			denom[i] = weights[i] + v.cellsLogpdf(ev, nil, k)
			num[i] = denom[i] + v.cellsLogpdf(query, nil, k)
		}
		z := mathx.LogSumExp(denom)
		if math.IsInf(z, -1) {
			return 0, ErrDegenerateEvidence
		}
		return mathx.LogSumExp(num) - z, nil
	}

	particles, err := v.weightedParticles(ks, weights, query, ev, v.accuracy)
	if err != nil {
		return 0, err
	}
	num := make([]float64, len(particles))
	den := make([]float64, len(particles))
	for i, p := range particles {
		den[i] = p.weight
		num[i] = p.weight + v.cellsLogpdf(query, p.values, p.k)
	}
	z := mathx.LogSumExp(den)
	if math.IsInf(z, -1) {
		return 0, ErrDegenerateEvidence
	}
	return mathx.LogSumExp(num) - z, nil
}

// Simulate draws n joint samples of the target columns given the
// evidence cells. Cluster handling matches Logpdf: observed rows keep
// their assignment, hypothetical rows marginalize over the CRP
// predictive.
func (v *View) Simulate(rowid int, targets []int, evidence map[int]float64, n int) ([]map[int]float64, error) {
	start := time.Now()
	samples, err := v.simulate(rowid, targets, evidence, n)
	v.metrics.RecordQuery(len(targets), time.Since(start), err)
	v.logger.LogQuery(context.Background(), "simulate", len(targets), err)
	return samples, err
}

func (v *View) simulate(rowid int, targets []int, evidence map[int]float64, n int) ([]map[int]float64, error) {
	if len(targets) == 0 {
		return nil, ErrEmptyQuery
	}
	if n <= 0 {
		return nil, fmt.Errorf("crosscat: sample count must be positive, got %d", n)
	}
	query := make(map[int]float64, len(targets))
	for _, col := range targets {
		if _, ok := query[col]; ok {
			return nil, fmt.Errorf("crosscat: target column %d: %w", col, ErrDuplicateColumn)
		}
		query[col] = math.NaN() // placeholder, values are drawn below
	}
	ev, err := v.mergeEvidence(rowid, query, evidence)
	if err != nil {
		return nil, err
	}

	ks, weights := v.clusterPrior(rowid)

	if v.exact && v.rootsOnly(query) && v.rootsOnly(ev) {
		posterior := make([]float64, len(ks))
		for i, k := range ks {
			posterior[i] = weights[i] + v.cellsLogpdf(ev, nil, k)
		}
		if math.IsInf(mathx.LogSumExp(posterior), -1) {
			return nil, ErrDegenerateEvidence
		}
		out := make([]map[int]float64, n)
		for i := range out {
			k := ks[mathx.LogChoice(v.rng, posterior)]
			draw := make(map[int]float64, len(targets))
			for _, col := range targets {
				draw[col] = v.cols[col].Simulate(k, nil, v.rng)
			}
			out[i] = draw
		}
		return out, nil
	}

	particles, err := v.weightedParticles(ks, weights, query, ev, v.accuracy*n)
	if err != nil {
		return nil, err
	}
	pw := make([]float64, len(particles))
	for i, p := range particles {
		pw[i] = p.weight
	}
	if math.IsInf(mathx.LogSumExp(pw), -1) {
		return nil, ErrDegenerateEvidence
	}
	out := make([]map[int]float64, n)
	for i, idx := range mathx.LogChoices(v.rng, pw, n) {
		p := particles[idx]
		draw := make(map[int]float64, len(targets))
		for _, col := range targets {
			m := v.cols[col]
			if x, ok := p.values[col]; ok {
				// The particle already fixed this root as a covariate.
				draw[col] = x
				continue
			}
			draw[col] = m.Simulate(p.k, v.particleInputs(m, p.values), v.rng)
		}
		out[i] = draw
	}
	return out, nil
}

// particle is one importance-sampling proposal: a cluster drawn from
// its posterior given the root evidence, the resolved root covariates,
// and the log weight contributed by the conditional evidence.
type particle struct {
	k      int
	values map[int]float64
	weight float64
}

// weightedParticles draws count particles. Root covariates needed by
// any conditional column in query or evidence resolve by priority:
// evidence, then query, then a fresh draw from the particle's cluster.
func (v *View) weightedParticles(ks []int, weights []float64, query, ev map[int]float64, count int) ([]particle, error) {
	needed := v.neededRoots(query, ev)

	// Cluster proposal: posterior given the unconditional evidence.
	// Conditional evidence enters the particle weights instead, since
	// scoring it needs per-particle covariates.
	rootEv := make(map[int]float64, len(ev))
	leafEv := make(map[int]float64)
	for col, x := range ev {
		if v.cols[col].Conditional() {
			leafEv[col] = x
		} else {
			rootEv[col] = x
		}
	}
	posterior := make([]float64, len(ks))
	for i, k := range ks {
		posterior[i] = weights[i] + v.cellsLogpdf(rootEv, nil, k)
	}
	if math.IsInf(mathx.LogSumExp(posterior), -1) {
		return nil, ErrDegenerateEvidence
	}

	particles := make([]particle, count)
	for s := range particles {
		k := ks[mathx.LogChoice(v.rng, posterior)]
		values := make(map[int]float64, len(needed))
		for _, root := range needed {
			if x, ok := ev[root]; ok {
				values[root] = x
			} else if x, ok := query[root]; ok && !math.IsNaN(x) {
				values[root] = x
			} else {
				values[root] = v.cols[root].Simulate(k, nil, v.rng)
			}
		}
		particles[s] = particle{
			k:      k,
			values: values,
			weight: v.cellsLogpdf(leafEv, values, k),
		}
	}
	return particles, nil
}

// mergeEvidence validates the query/evidence column sets and, for an
// observed row, folds the row's observed cells into the evidence.
func (v *View) mergeEvidence(rowid int, query, evidence map[int]float64) (map[int]float64, error) {
	for col := range query {
		if _, ok := v.cols[col]; !ok {
			return nil, fmt.Errorf("crosscat: query column %d: %w", col, ErrUnknownColumn)
		}
		if _, ok := evidence[col]; ok {
			return nil, fmt.Errorf("crosscat: column %d in both query and evidence: %w", col, ErrDuplicateColumn)
		}
	}
	ev := make(map[int]float64, len(evidence))
	for col, x := range evidence {
		if _, ok := v.cols[col]; !ok {
			return nil, fmt.Errorf("crosscat: evidence column %d: %w", col, ErrUnknownColumn)
		}
		ev[col] = x
	}
	if rowid >= 0 && v.crp.Contains(rowid) {
		for col, x := range v.rows[rowid] {
			if math.IsNaN(x) {
				continue
			}
			if _, ok := query[col]; ok {
				return nil, fmt.Errorf("crosscat: row %d column %d is already observed: %w", rowid, col, ErrRowObserved)
			}
			if _, ok := ev[col]; ok {
				return nil, fmt.Errorf("crosscat: row %d column %d is already observed: %w", rowid, col, ErrRowObserved)
			}
			ev[col] = x
		}
	}
	return ev, nil
}

// clusterPrior returns the candidate clusters and their log weights:
// the fixed assignment for an observed row, the CRP predictive over
// K+1 clusters for a hypothetical one.
func (v *View) clusterPrior(rowid int) ([]int, []float64) {
	if rowid >= 0 {
		if k, ok := v.crp.Assignment(rowid); ok {
			return []int{k}, []float64{0}
		}
	}
	weights := v.crp.FreshLogWeights()
	ks := make([]int, len(weights))
	for i := range ks {
		ks[i] = i
	}
	return ks, weights
}

// rootsOnly reports whether every column in cells is unconditional.
func (v *View) rootsOnly(cells map[int]float64) bool {
	for col := range cells {
		if v.cols[col].Conditional() {
			return false
		}
	}
	return true
}

// neededRoots collects the covariate columns of every conditional
// column named in query or evidence, in incorporation order.
func (v *View) neededRoots(query, ev map[int]float64) []int {
	want := make(map[int]bool)
	for _, cells := range []map[int]float64{query, ev} {
		for col := range cells {
			m := v.cols[col]
			if !m.Conditional() {
				continue
			}
			for _, in := range m.Inputs() {
				want[in] = true
			}
		}
	}
	roots := make([]int, 0, len(want))
	for _, col := range v.order {
		if want[col] {
			roots = append(roots, col)
		}
	}
	return roots
}

// cellsLogpdf sums the predictive log densities of the given cells
// under cluster k, resolving conditional covariates from values.
func (v *View) cellsLogpdf(cells map[int]float64, values map[int]float64, k int) float64 {
	logp := 0.0
	for _, col := range v.order {
		x, ok := cells[col]
		if !ok || math.IsNaN(x) {
			continue
		}
		m := v.cols[col]
		logp += m.Logpdf(x, v.particleInputs(m, values), k)
	}
	return logp
}

// particleInputs gathers a conditional column's covariates from the
// particle's resolved root values.
func (v *View) particleInputs(m *component.Model, values map[int]float64) []float64 {
	if !m.Conditional() {
		return nil
	}
	ins := m.Inputs()
	out := make([]float64, len(ins))
	for i, in := range ins {
		x, ok := values[in]
		if !ok {
			x = math.NaN()
		}
		out[i] = x
	}
	return out
}
