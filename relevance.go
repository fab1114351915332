package crosscat

import (
	"fmt"
	"math"

	"github.com/hupe1980/crosscat/internal/mathx"
)

// RowValues holds the cells of a hypothetical row, keyed by column id.
// Absent columns are treated as missing.
type RowValues map[int]float64

// RelevanceScore returns the posterior probability that the target row
// and every query row (plus any hypothetical rows) belong to one
// cluster.
//
// The involved observed rows are temporarily removed and every joint
// reassignment of the removed and hypothetical rows is enumerated
// exactly, weighting each by its sequential CRP predictive and the
// column predictives. The view is restored before returning, up to a
// relabeling of cluster ids.
//
// The enumeration grows with the Bell number of the involved row
// count, so keep query and hypothetical small.
func (v *View) RelevanceScore(target int, query []int, hypothetical []RowValues) (float64, error) {
	if !v.crp.Contains(target) {
		return 0, fmt.Errorf("crosscat: target row %d: %w", target, ErrUnknownRow)
	}
	if len(query)+len(hypothetical) == 0 {
		return 0, ErrEmptyQuery
	}
	seen := map[int]bool{target: true}
	for _, rowid := range query {
		if !v.crp.Contains(rowid) {
			return 0, fmt.Errorf("crosscat: query row %d: %w", rowid, ErrUnknownRow)
		}
		if seen[rowid] {
			return 0, fmt.Errorf("crosscat: row %d named twice: %w", rowid, ErrRowObserved)
		}
		seen[rowid] = true
	}

	type enumRow struct {
		id       int
		values   map[int]float64
		observed bool
	}
	rows := make([]enumRow, 0, 1+len(query)+len(hypothetical))
	rows = append(rows, enumRow{id: target, values: v.rows[target], observed: true})
	for _, rowid := range query {
		rows = append(rows, enumRow{id: rowid, values: v.rows[rowid], observed: true})
	}

	nextID := 0
	for _, rowid := range v.crp.RowIDs() {
		if rowid >= nextID {
			nextID = rowid + 1
		}
	}
	for _, h := range hypothetical {
		values := make(map[int]float64, len(v.order))
		for col := range h {
			if _, ok := v.cols[col]; !ok {
				return 0, fmt.Errorf("crosscat: hypothetical column %d: %w", col, ErrUnknownColumn)
			}
		}
		for _, col := range v.order {
			x, ok := h[col]
			if !ok {
				x = math.NaN()
			}
			values[col] = x
		}
		rows = append(rows, enumRow{id: nextID, values: values})
		nextID++
	}

	// Detach the observed rows, remembering the original labeling so
	// the partition can be rebuilt afterwards.
	before := v.crp.Assignments()
	for _, r := range rows {
		if r.observed {
			v.detachRow(r.id, r.values)
		}
	}

	var same, total []float64
	var enumerate func(i int, acc float64, allSame bool, firstLabel int)
	enumerate = func(i int, acc float64, allSame bool, firstLabel int) {
		if i == len(rows) {
			total = append(total, acc)
			if allSame {
				same = append(same, acc)
			}
			return
		}
		K := v.crp.K()
		for k := 0; k <= K; k++ {
			crpW := math.Log(v.crp.Alpha())
			if k < K {
				crpW = math.Log(float64(v.crp.Count(k)))
			}
			w := acc + crpW + v.rowLogpdf(rows[i].values, k)

			v.attachRow(rows[i].id, rows[i].values, k)
			if i == 0 {
				enumerate(1, w, true, k)
			} else {
				enumerate(i+1, w, allSame && k == firstLabel, firstLabel)
			}
			v.detachRow(rows[i].id, rows[i].values)
		}
	}
	enumerate(0, 0, true, -1)

	// Rebuild the original partition: each detached row rejoins the
	// cluster its former co-members now occupy, or a fresh one if the
	// cluster emptied.
	restored := make(map[int]int)
	for _, r := range rows {
		if !r.observed {
			continue
		}
		origLabel := before[r.id]
		k, ok := restored[origLabel]
		if !ok {
			k = -1
			for other, lbl := range before {
				if lbl != origLabel || other == r.id {
					continue
				}
				if cur, live := v.crp.Assignment(other); live {
					k = cur
					break
				}
			}
			if k < 0 {
				k = v.crp.K()
			}
			restored[origLabel] = k
		}
		v.attachRow(r.id, r.values, k)
	}

	return math.Exp(mathx.LogSumExp(same) - mathx.LogSumExp(total)), nil
}
