package crosscat

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/hupe1980/crosscat/component"
	"github.com/hupe1980/crosscat/internal/mathx"
	"github.com/hupe1980/crosscat/partition"
)

// Dim declares one column of a view: its id, distribution family and,
// for conditional families, the unconditional columns it regresses on.
type Dim struct {
	ID     int
	Family string
	Args   component.Args

	// Inputs lists the unconditional column ids feeding a conditional
	// family. Nil means all unconditional columns present when the
	// column is incorporated, in ascending id order.
	Inputs []int
}

// View is one CrossCat view: a CRP partition of rows into clusters
// shared by every column, with an independent component model per
// column and cluster.
//
// A View is not safe for concurrent use. It owns its random stream, so
// runs with a fixed seed are reproducible.
type View struct {
	rng      *rand.Rand
	logger   *Logger
	metrics  MetricsCollector
	accuracy int
	exact    bool

	crp   *partition.Partition
	cols  map[int]*component.Model
	order []int                   // column ids in incorporation order
	rows  map[int]map[int]float64 // rowid -> colid -> value, NaN = missing
}

// New constructs a view over a column-major dataset. data maps each
// declared column id to its values for rows 0..n-1 (NaN = missing);
// every dim must have a data entry of the same length.
//
// Without WithAlpha the concentration is drawn from its hyper grid;
// without WithPartition the row partition is simulated from CRP(alpha).
func New(data map[int][]float64, dims []Dim, optFns ...Option) (*View, error) {
	o := applyOptions(optFns)
	rng := rand.New(rand.NewPCG(o.seed, o.seed^0x9e3779b97f4a7c15))

	n := -1
	declared := make(map[int]bool, len(dims))
	for _, d := range dims {
		if declared[d.ID] {
			return nil, fmt.Errorf("crosscat: column %d: %w", d.ID, ErrDuplicateColumn)
		}
		declared[d.ID] = true
		values, ok := data[d.ID]
		if !ok {
			return nil, fmt.Errorf("crosscat: column %d has no data: %w", d.ID, ErrUnknownColumn)
		}
		if n < 0 {
			n = len(values)
		} else if len(values) != n {
			return nil, fmt.Errorf("crosscat: column %d has %d rows, want %d", d.ID, len(values), n)
		}
	}
	for id := range data {
		if !declared[id] {
			return nil, fmt.Errorf("crosscat: data column %d is not declared: %w", id, ErrUnknownColumn)
		}
	}
	if n < 0 {
		n = 0
	}

	alpha := o.alpha
	if !(alpha > 0) {
		grid := mathx.LogLinspace(1/math.Max(float64(n), 1), math.Max(float64(n), 1), alphaGridSize)
		alpha = grid[rng.IntN(len(grid))]
	}

	var crp *partition.Partition
	if o.assignments != nil {
		if len(o.assignments) != n {
			return nil, fmt.Errorf("crosscat: partition covers %d rows, want %d", len(o.assignments), n)
		}
		for rowid := 0; rowid < n; rowid++ {
			if _, ok := o.assignments[rowid]; !ok {
				return nil, fmt.Errorf("crosscat: partition is missing row %d: %w", rowid, ErrUnknownRow)
			}
		}
		var err error
		crp, err = partition.FromAssignments(alpha, o.assignments)
		if err != nil {
			return nil, err
		}
	} else {
		crp = partition.New(alpha)
		for rowid, k := range partition.Simulate(n, alpha, rng) {
			crp.Incorporate(rowid, k)
		}
	}

	v := &View{
		rng:      rng,
		logger:   o.logger,
		metrics:  o.metrics,
		accuracy: o.accuracy,
		exact:    o.exactShortcut,
		crp:      crp,
		cols:     make(map[int]*component.Model, len(dims)),
		rows:     make(map[int]map[int]float64, n),
	}
	for rowid := 0; rowid < n; rowid++ {
		v.rows[rowid] = make(map[int]float64, len(dims))
	}

	// Unconditional columns first so conditional ones find their inputs.
	for _, conditional := range []bool{false, true} {
		for _, d := range dims {
			f, err := component.NewFamily(d.Family, d.Args)
			if err != nil {
				return nil, err
			}
			if f.Conditional() != conditional {
				continue
			}
			values := make(map[int]float64, n)
			for rowid := 0; rowid < n; rowid++ {
				values[rowid] = data[d.ID][rowid]
			}
			if err := v.IncorporateDim(d, values); err != nil {
				return nil, err
			}
		}
	}
	return v, nil
}

// Alpha returns the CRP concentration.
func (v *View) Alpha() float64 { return v.crp.Alpha() }

// K returns the number of clusters.
func (v *View) K() int { return v.crp.K() }

// NumRows returns the number of observed rows.
func (v *View) NumRows() int { return v.crp.NumRows() }

// Columns returns the column ids in incorporation order.
func (v *View) Columns() []int { return append([]int(nil), v.order...) }

// Assignment returns the cluster label of rowid, if observed.
func (v *View) Assignment(rowid int) (int, bool) { return v.crp.Assignment(rowid) }

// Assignments returns a copy of the row->cluster map.
func (v *View) Assignments() map[int]int { return v.crp.Assignments() }

// IncorporateDim adds a column to the view. values maps every observed
// rowid to the column's value (absent rowids become missing). The new
// column's statistics are derived against the current partition and its
// hyperparameters get one grid-Gibbs transition before the column is
// exposed to queries.
func (v *View) IncorporateDim(d Dim, values map[int]float64) error {
	if _, ok := v.cols[d.ID]; ok {
		return fmt.Errorf("crosscat: column %d: %w", d.ID, ErrDuplicateColumn)
	}
	family, err := component.NewFamily(d.Family, d.Args)
	if err != nil {
		return err
	}
	inputs, err := v.resolveInputs(d.ID, family, d.Inputs)
	if err != nil {
		return err
	}
	for rowid := range values {
		if !v.crp.Contains(rowid) {
			return fmt.Errorf("crosscat: column %d values name row %d: %w", d.ID, rowid, ErrUnknownRow)
		}
	}

	for _, rowid := range v.crp.RowIDs() {
		x, ok := values[rowid]
		if !ok {
			x = math.NaN()
		}
		v.rows[rowid][d.ID] = x
	}

	model, err := v.buildColumn(d.ID, family, inputs)
	if err != nil {
		for _, rowid := range v.crp.RowIDs() {
			delete(v.rows[rowid], d.ID)
		}
		return err
	}
	v.cols[d.ID] = model
	v.order = append(v.order, d.ID)
	return nil
}

// UnincorporateDim removes a column from the view.
func (v *View) UnincorporateDim(col int) error {
	m, ok := v.cols[col]
	if !ok {
		return fmt.Errorf("crosscat: column %d: %w", col, ErrUnknownColumn)
	}
	if !m.Conditional() {
		for _, id := range v.order {
			leaf := v.cols[id]
			if !leaf.Conditional() {
				continue
			}
			for _, in := range leaf.Inputs() {
				if in == col {
					return fmt.Errorf("crosscat: column %d is an input of column %d: %w", col, id, ErrConditionalFirst)
				}
			}
		}
	}
	delete(v.cols, col)
	for i, id := range v.order {
		if id == col {
			v.order = append(v.order[:i], v.order[i+1:]...)
			break
		}
	}
	for _, row := range v.rows {
		delete(row, col)
	}
	return nil
}

// UpdateFamily swaps the distribution family of an existing column and
// rebuilds its statistics against the same partition and data.
func (v *View) UpdateFamily(col int, familyTag string, args component.Args) error {
	old, ok := v.cols[col]
	if !ok {
		return fmt.Errorf("crosscat: column %d: %w", col, ErrUnknownColumn)
	}
	family, err := component.NewFamily(familyTag, args)
	if err != nil {
		return err
	}
	if !old.Conditional() && family.Conditional() {
		// A root becoming a leaf must not strand dependents.
		for _, id := range v.order {
			leaf := v.cols[id]
			if !leaf.Conditional() {
				continue
			}
			for _, in := range leaf.Inputs() {
				if in == col {
					return fmt.Errorf("crosscat: column %d is an input of column %d: %w", col, id, ErrConditionalFirst)
				}
			}
		}
	}
	var inputs []int
	if family.Conditional() {
		inputs, err = v.resolveInputs(col, family, nil)
		if err != nil {
			return err
		}
	}
	model, err := v.buildColumn(col, family, inputs)
	if err != nil {
		return err
	}
	v.cols[col] = model
	return nil
}

// Incorporate adds a new row. values maps column ids to the row's
// values; absent columns become missing. Label k == K() opens a new
// cluster; k < 0 draws the cluster from the Gibbs predictive given the
// row's values.
func (v *View) Incorporate(rowid int, values map[int]float64, k int) (err error) {
	start := time.Now()
	defer func() { v.metrics.RecordIncorporate(time.Since(start), err) }()

	if v.crp.Contains(rowid) {
		err := fmt.Errorf("crosscat: row %d: %w", rowid, ErrRowObserved)
		v.logger.LogIncorporate(context.Background(), rowid, k, err)
		return err
	}
	if rowid < 0 {
		return fmt.Errorf("crosscat: row ids must be non-negative, got %d", rowid)
	}
	row := make(map[int]float64, len(v.order))
	for col, x := range values {
		m, ok := v.cols[col]
		if !ok {
			return fmt.Errorf("crosscat: column %d: %w", col, ErrUnknownColumn)
		}
		if !math.IsNaN(x) && !m.Family().Valid(x) {
			return fmt.Errorf("crosscat: column %d value %v: %w", col, x, ErrInvalidValue)
		}
	}
	for _, col := range v.order {
		x, ok := values[col]
		if !ok {
			x = math.NaN()
		}
		row[col] = x
	}

	K := v.crp.K()
	if k > K {
		return &ErrInvalidCluster{Label: k, K: K}
	}
	if k < 0 {
		weights := v.crp.FreshLogWeights()
		for cand := range weights {
			weights[cand] += v.rowLogpdf(row, cand)
		}
		k = mathx.LogChoice(v.rng, weights)
	}

	v.attachRow(rowid, row, k)
	v.rows[rowid] = row
	v.logger.LogIncorporate(context.Background(), rowid, k, nil)
	return nil
}

// Unincorporate removes an observed row. If the row was the last member
// of its cluster, the label compaction is propagated to every column's
// cluster records.
func (v *View) Unincorporate(rowid int) error {
	if !v.crp.Contains(rowid) {
		return fmt.Errorf("crosscat: row %d: %w", rowid, ErrUnknownRow)
	}
	v.detachRow(rowid, v.rows[rowid])
	delete(v.rows, rowid)
	return nil
}

// attachRow registers a row in the partition and every column model.
// It does not touch v.rows.
func (v *View) attachRow(rowid int, row map[int]float64, k int) {
	v.crp.Incorporate(rowid, k)
	for _, col := range v.order {
		m := v.cols[col]
		m.Incorporate(rowid, v.cellValue(m, row), v.cellInputs(m, row), k, v.rng)
	}
}

// detachRow removes a row from the partition and every column model,
// propagating cluster compaction. It does not touch v.rows.
func (v *View) detachRow(rowid int, row map[int]float64) {
	k, _ := v.crp.Assignment(rowid)
	removed := v.crp.Unincorporate(rowid)
	for _, col := range v.order {
		m := v.cols[col]
		m.Unincorporate(rowid, v.cellValue(m, row), v.cellInputs(m, row), k)
		if removed >= 0 {
			m.DropCluster(removed)
		}
	}
}

// LogpdfScore returns the joint log probability of the partition and
// all column data under the current hyperparameters: the CRP marginal
// plus every column's marginal.
func (v *View) LogpdfScore() float64 {
	score := v.crp.LogProb()
	for _, col := range v.order {
		score += v.cols[col].LogpdfScore()
	}
	return score
}

// resolveInputs validates and defaults the covariate columns of a
// conditional family.
func (v *View) resolveInputs(id int, family component.Family, inputs []int) ([]int, error) {
	if !family.Conditional() {
		return nil, nil
	}
	if inputs == nil {
		for _, other := range v.order {
			if other != id && !v.cols[other].Conditional() {
				inputs = append(inputs, other)
			}
		}
		sort.Ints(inputs)
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("crosscat: column %d: %w", id, ErrConditionalFirst)
	}
	for _, in := range inputs {
		m, ok := v.cols[in]
		if !ok || in == id {
			return nil, fmt.Errorf("crosscat: column %d input %d: %w", id, in, ErrUnknownColumn)
		}
		if m.Conditional() {
			return nil, fmt.Errorf("crosscat: column %d input %d is conditional: %w", id, in, ErrConditionalFirst)
		}
	}
	return inputs, nil
}

// buildColumn derives a column model from the stored data against the
// current partition: canonical incorporation order (cluster label, then
// rowid) followed by one hyperparameter transition.
func (v *View) buildColumn(id int, family component.Family, inputs []int) (*component.Model, error) {
	colValues := make([]float64, 0, v.crp.NumRows())
	for _, rowid := range v.crp.RowIDs() {
		colValues = append(colValues, v.rows[rowid][id])
	}
	family.Configure(colValues, len(inputs))

	model := component.NewModel(id, family, inputs, v.rng)
	for k := 0; k < v.crp.K(); k++ {
		for _, rowid := range v.crp.Members(k) {
			row := v.rows[rowid]
			x := v.cellValue(model, row)
			if !math.IsNaN(x) && !family.Valid(x) {
				return nil, fmt.Errorf("crosscat: column %d row %d value %v: %w", id, rowid, x, ErrInvalidValue)
			}
			model.Incorporate(rowid, x, v.cellInputs(model, row), k, v.rng)
		}
	}
	model.TransitionHypers(v.rng)
	return model, nil
}

// cellValue returns the value of row's cell in column m. Conditional
// cells with any missing covariate degrade to missing, since the
// regression cannot score them.
func (v *View) cellValue(m *component.Model, row map[int]float64) float64 {
	x := row[m.ID()]
	if m.Conditional() {
		for _, in := range m.Inputs() {
			if math.IsNaN(row[in]) {
				return math.NaN()
			}
		}
	}
	return x
}

// cellInputs gathers the covariate vector of row for column m.
func (v *View) cellInputs(m *component.Model, row map[int]float64) []float64 {
	ins := m.Inputs()
	if len(ins) == 0 {
		return nil
	}
	out := make([]float64, len(ins))
	for i, in := range ins {
		out[i] = row[in]
	}
	return out
}

// rowLogpdf is the joint predictive log density of a full row under
// cluster k (k == K() for a fresh cluster). Missing cells contribute
// zero.
func (v *View) rowLogpdf(row map[int]float64, k int) float64 {
	logp := 0.0
	for _, col := range v.order {
		m := v.cols[col]
		logp += m.Logpdf(v.cellValue(m, row), v.cellInputs(m, row), k)
	}
	return logp
}

// checkPartitions panics if the partition and the per-column cluster
// records have drifted apart. Exercised by tests after every kernel.
func (v *View) checkPartitions() {
	if err := v.crp.Validate(); err != nil {
		panic(err)
	}
	for _, col := range v.order {
		m := v.cols[col]
		if m.K() != v.crp.K() {
			panic(fmt.Sprintf("crosscat: column %d has %d cluster records, partition has %d", col, m.K(), v.crp.K()))
		}
		for k := 0; k < v.crp.K(); k++ {
			want := 0
			for _, rowid := range v.crp.Members(k) {
				if !math.IsNaN(v.cellValue(m, v.rows[rowid])) {
					want++
				}
			}
			if got := m.Cluster(k).N(); got != float64(want) {
				panic(fmt.Sprintf("crosscat: column %d cluster %d holds %v values, partition implies %d", col, k, got, want))
			}
		}
	}
}

// alphaGridSize matches the hyper grids used by the component families.
const alphaGridSize = 30
