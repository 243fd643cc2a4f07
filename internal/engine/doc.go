// Package engine schedules the actual construction of build targets over a
// captured graph snapshot. It walks the dependency graph in dependency
// order, consults the artifact cache by fingerprint, and dispatches cache
// misses to an opaque executor, under the admission control of the resource
// scheduler.
//
// Per (snapshot, target) the engine drives a small state machine:
//
//	Pending → Ready → Admitted → {CacheHit | Running → {Succeeded | Failed}}
//
// plus SkippedFailed for every transitive dependent of a failure and
// Cancelled for targets abandoned when a request is cancelled. Transitions
// are atomic, and each target's attempt (admission, cache probe, execution)
// runs inside a coalescing flight table, so concurrent overlapping build
// requests over the same snapshot share a single attempt per target and
// observe the same outcome.
//
// Failures are localized: a failed target skips its transitive dependents
// and nothing else; independent subtrees run to completion. With FailFast
// set, the engine stops admitting new work after the first failure and lets
// running work drain.
package engine
