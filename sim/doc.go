// Package sim provides the core tick-driven discrete-event simulation engine for desim.
//
// # Reading Guide
//
// Start with these three files to understand the simulation kernel:
//   - entity.go / state.go: the actor model. Entities carry exactly one behavior
//     state, with transitions deferred to the next tick boundary
//   - resource.go / queue.go: the contention protocol. Slot- and amount-based
//     resources with bounded overflow queues
//   - world.go: the registries and the fixed-order tick loop
//
// # Architecture
//
// A World owns every simulation object for one run: constants, resources, queues,
// quantities, generators, datasets and an ordered entity collection. Domain logic
// lives in a Model, whose hooks run at fixed points of every tick:
//
//	BeforeEntitiesUpdate → entities → quantities → AfterEntitiesUpdate → data sources → clock advance
//
// The Runner expands a batch specification (an explicit list, or the cartesian
// product of a parameter grid) into many parameterized Worlds, runs each World's
// tick loop on its own goroutine behind an errgroup join barrier, and aggregates
// per-series descriptive statistics once every World has ended. Worlds share no
// mutable state; the aggregation step is the only cross-world synchronization
// point.
//
// # Key Interfaces
//
// The extension points are small interfaces and function fields:
//   - Model: domain setup plus the two per-tick hooks
//   - State: one entity's behavior for one tick (embed StateCore)
//   - DataSource: append-only per-tick sampling for export
//   - Output: end-of-run serialization collaborator
//   - Sampler: synthetic data generation for Generators
//
// Randomness is partitioned per world and per subsystem (see rng.go) so that
// batch runs are reproducible and adding a consumer in one subsystem never
// perturbs another.
package sim
