package crosscat

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/hupe1980/crosscat/blobstore"
	"github.com/hupe1980/crosscat/component"
	"github.com/hupe1980/crosscat/partition"
	"github.com/hupe1980/crosscat/snapshot"
)

// Snapshot captures the full latent state of the view: concentration,
// row partition, per-column hyperparameters and sufficient statistics,
// and the raw data. FromSnapshot reproduces an equivalent view.
func (v *View) Snapshot() *snapshot.Snapshot {
	s := &snapshot.Snapshot{
		Alpha:       v.crp.Alpha(),
		Assignments: v.crp.Assignments(),
		Rows:        make(map[int][]*float64, len(v.rows)),
		Columns:     make([]component.ColumnState, 0, len(v.order)),
	}
	for _, col := range v.order {
		s.Columns = append(s.Columns, v.cols[col].State())
	}
	for rowid, row := range v.rows {
		cells := make([]float64, len(v.order))
		for i, col := range v.order {
			cells[i] = row[col]
		}
		s.Rows[rowid] = snapshot.PackRow(cells)
	}
	return s
}

// FromSnapshot rebuilds a view from a snapshot. Hyperparameters,
// sufficient statistics and the partition are restored exactly; the
// hyper grids are re-derived from the restored data. Options affecting
// the initial state (WithAlpha, WithPartition) are ignored in favor of
// the snapshot.
func FromSnapshot(s *snapshot.Snapshot, optFns ...Option) (*View, error) {
	o := applyOptions(optFns)
	rng := rand.New(rand.NewPCG(o.seed, o.seed^0x9e3779b97f4a7c15))

	crp, err := partition.FromAssignments(s.Alpha, s.Assignments)
	if err != nil {
		return nil, err
	}

	v := &View{
		rng:      rng,
		logger:   o.logger,
		metrics:  o.metrics,
		accuracy: o.accuracy,
		exact:    o.exactShortcut,
		crp:      crp,
		cols:     make(map[int]*component.Model, len(s.Columns)),
		rows:     make(map[int]map[int]float64, len(s.Rows)),
	}

	for rowid, cells := range s.Rows {
		if !crp.Contains(rowid) {
			return nil, fmt.Errorf("crosscat: snapshot row %d has data but no assignment: %w", rowid, ErrUnknownRow)
		}
		if len(cells) != len(s.Columns) {
			return nil, fmt.Errorf("crosscat: snapshot row %d has %d cells, want %d", rowid, len(cells), len(s.Columns))
		}
		values := snapshot.UnpackRow(cells)
		row := make(map[int]float64, len(s.Columns))
		for i, cs := range s.Columns {
			row[cs.ID] = values[i]
		}
		v.rows[rowid] = row
	}
	if len(v.rows) != crp.NumRows() {
		return nil, fmt.Errorf("crosscat: snapshot covers %d rows, partition has %d", len(v.rows), crp.NumRows())
	}

	for _, cs := range s.Columns {
		if _, ok := v.cols[cs.ID]; ok {
			return nil, fmt.Errorf("crosscat: snapshot column %d: %w", cs.ID, ErrDuplicateColumn)
		}
		m, err := component.Restore(cs, rng)
		if err != nil {
			return nil, err
		}
		if m.K() != crp.K() {
			return nil, fmt.Errorf("crosscat: snapshot column %d has %d cluster records, partition has %d", cs.ID, m.K(), crp.K())
		}
		colValues := make([]float64, 0, crp.NumRows())
		for _, rowid := range crp.RowIDs() {
			colValues = append(colValues, v.rows[rowid][cs.ID])
		}
		m.Family().Configure(colValues, len(cs.Inputs))
		v.cols[cs.ID] = m
		v.order = append(v.order, cs.ID)
	}
	return v, nil
}

// Save snapshots the view and writes it to the store under name.
func (v *View) Save(ctx context.Context, store blobstore.Store, name string, opts snapshot.Options) error {
	start := time.Now()
	err := snapshot.Save(ctx, store, name, v.Snapshot(), opts)
	v.metrics.RecordSnapshot(time.Since(start), err)
	v.logger.LogSnapshot(ctx, name, err)
	return err
}

// Load reads the named snapshot from the store and rebuilds the view.
func Load(ctx context.Context, store blobstore.Store, name string, optFns ...Option) (*View, error) {
	s, err := snapshot.Load(ctx, store, name)
	if err != nil {
		return nil, err
	}
	return FromSnapshot(s, optFns...)
}
