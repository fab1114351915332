package snapshot

import (
	"context"
	"fmt"
	"math"

	"github.com/hupe1980/crosscat/blobstore"
)

// Save encodes the snapshot and writes it to the store under name.
func Save(ctx context.Context, store blobstore.Store, name string, s *Snapshot, opts Options) error {
	data, err := Encode(s, opts)
	if err != nil {
		return err
	}
	if err := store.Put(ctx, name, data); err != nil {
		return fmt.Errorf("snapshot: put %q: %w", name, err)
	}
	return nil
}

// Load reads and decodes the named snapshot from the store.
func Load(ctx context.Context, store blobstore.Store, name string) (*Snapshot, error) {
	data, err := store.Get(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("snapshot: get %q: %w", name, err)
	}
	return Decode(data)
}

// PackRow converts a row to its persisted form, mapping NaN cells to
// null (NaN has no JSON encoding).
func PackRow(values []float64) []*float64 {
	out := make([]*float64, len(values))
	for i, v := range values {
		if !math.IsNaN(v) {
			v := v
			out[i] = &v
		}
	}
	return out
}

// UnpackRow is the inverse of PackRow.
func UnpackRow(cells []*float64) []float64 {
	out := make([]float64, len(cells))
	for i, c := range cells {
		if c == nil {
			out[i] = math.NaN()
		} else {
			out[i] = *c
		}
	}
	return out
}
