// Package crosscat implements a single CrossCat view: a Dirichlet
// process mixture over data table rows with pluggable per-column
// component models.
//
// A view couples a CRP partition of the rows with one component model
// per column. Collapsed families (bernoulli, categorical, normal,
// poisson) integrate their parameters out analytically; uncollapsed
// families (normal_uc) carry explicit sampled parameters; conditional
// families (linear_regression) additionally regress on sibling
// unconditional columns.
//
// # Quick Start
//
//	data := map[int][]float64{
//		0: {1, 0, 1, 1, 0},
//		1: {0.3, -1.2, 0.5, 0.7, -0.9},
//	}
//	dims := []crosscat.Dim{
//		{ID: 0, Family: component.TagBernoulli},
//		{ID: 1, Family: component.TagNormal},
//	}
//	v, _ := crosscat.New(data, dims, crosscat.WithSeed(42))
//	v.Transition(ctx, 100)
//
// # Queries
//
// Logpdf and Simulate answer predictive queries against hypothetical
// or observed rows, marginalizing the cluster assignment:
//
//	logp, _ := v.Logpdf(-1, map[int]float64{1: 0.5}, map[int]float64{0: 1})
//	samples, _ := v.Simulate(-1, []int{1}, nil, 100)
//
// RelevanceScore returns the posterior probability that a set of rows
// share one cluster.
//
// # Persistence
//
// The full latent state round-trips through the snapshot package and
// any blobstore backend:
//
//	store := blobstore.NewLocalStore("./snapshots")
//	v.Save(ctx, store, "views/snap-001", snapshot.Options{})
//	v2, _ := crosscat.Load(ctx, store, "views/snap-001", crosscat.WithSeed(42))
package crosscat
