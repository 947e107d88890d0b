// Package testutil provides deterministic test data for nestward.
//
// This package is intended for use in tests and benchmarks only.
// It provides a seeded, mutex-guarded RNG with helpers for generating
// view vectors and outbound routes.
//
// # View Vectors
//
//	rng := testutil.NewRNG(seed)
//	pv := make([]float32, dim)
//	rng.FillUniform(pv)             // uniform [0, 1)
//	noisy := rng.Perturb(pv, 0.1)   // re-roll 10% of the components
//
// # Outbound Routes
//
//	poses := rng.RoutePoses(40, feeder, nest, 0.05)
//
// RoutePoses walks from feeder to nest with per-step positional jitter
// and headings that face each successive waypoint, which is what the
// learning walk expects of a recorded route.
package testutil
