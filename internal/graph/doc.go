// Package graph maintains the dependency graph over build targets as a
// sequence of immutable, versioned snapshots.
//
// A snapshot is never mutated after construction. Edits arrive as a Delta
// (added, removed, modified node sets) and Apply produces a new snapshot
// that structurally shares every untouched node with its predecessor. A
// delta that would leave a dangling edge or introduce a cycle is rejected
// whole; the previous snapshot stays current. Readers therefore never
// observe a partially applied edit and never need a lock: they capture a
// snapshot value and query it for as long as they like.
//
// Both a forward (declared deps) and a reverse (dependents) adjacency index
// are maintained, so Deps and RDeps queries cost the size of their answer,
// not a scan of the whole graph.
package graph
