// Package testutil provides testing utilities for crosscat.
//
// This package is intended for use in tests and benchmarks only.
// It provides a seeded, thread-safe random source and a synthetic
// clustered-table generator with known ground-truth assignments.
//
// # Random Source
//
//	rng := testutil.NewRNG(seed)
//	x := rng.Float64()
//	z := rng.NormFloat64()
//
// # Synthetic Data
//
//	data, truth := testutil.ClusteredTable(rng, 100,
//		[]string{component.TagNormal, component.TagBernoulli}, 3, 0.9)
package testutil
