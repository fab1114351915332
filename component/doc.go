// Package component implements the per-column component models of a
// crosscat View.
//
// A Model owns one column: a Family carrying the column's shared
// hyperparameters, and one sufficient-statistic record (Component) per
// cluster of the View's row partition. The record list stays in
// lockstep with the partition's cluster count; the View drives cluster
// creation and removal.
//
// Collapsed families (bernoulli, categorical, normal, poisson, linreg)
// integrate their cluster-level parameters out analytically and track
// only counts and sums. Uncollapsed families (normaluc) additionally
// hold an explicitly sampled parameter per cluster that is resampled as
// part of inference.
package component
