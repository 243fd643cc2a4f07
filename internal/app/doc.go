// Package app wires the application together: it owns the logger, loads
// the dependency graph from rule files or a saved snapshot, composes the
// artifact cache tiers, and runs build requests through the engine.
package app
