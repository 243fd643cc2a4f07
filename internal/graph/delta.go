package graph

import (
	"github.com/vk/buildgrid/internal/label"
)

// Decl is one rule declaration inside a delta: the target's identity, its
// declared dependencies in declaration order, and its opaque rule metadata.
type Decl struct {
	Label    label.Label
	Deps     []label.Label
	Metadata Metadata
}

// Delta is a self-consistent batch of graph edits. Apply processes removals
// first, then additions and modifications, so a delta may remove a target
// and re-add a replacement under the same identity.
type Delta struct {
	Added    []Decl
	Removed  []label.Label
	Modified []Decl
}

// IsEmpty reports whether the delta carries no edits.
func (d Delta) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Modified) == 0
}

// Apply produces the successor snapshot of prev under the delta. The entire
// delta is validated against the resulting state: any dangling edge, cycle,
// duplicate addition, or edit of an unknown target rejects the whole delta
// with a nil snapshot, and prev remains the current, untouched snapshot.
// Unchanged nodes are shared between prev and the result.
func Apply(prev *Snapshot, delta Delta) (*Snapshot, error) {
	nodes := make(map[label.Label]*Node, len(prev.nodes)+len(delta.Added))
	for l, n := range prev.nodes {
		nodes[l] = n
	}
	rdeps := make(map[label.Label][]label.Label, len(prev.rdeps))
	for l, dependents := range prev.rdeps {
		rdeps[l] = dependents
	}

	// Removals first.
	for _, l := range delta.Removed {
		old, ok := nodes[l]
		if !ok {
			return nil, &UnknownTargetError{Target: l}
		}
		delete(nodes, l)
		dropEdges(rdeps, old)
	}

	for _, decl := range delta.Added {
		if _, ok := nodes[decl.Label]; ok {
			return nil, &DuplicateTargetError{Target: decl.Label}
		}
		n := NewNode(decl.Label, decl.Deps, decl.Metadata)
		nodes[decl.Label] = n
		insertEdges(rdeps, n)
	}

	for _, decl := range delta.Modified {
		old, ok := nodes[decl.Label]
		if !ok {
			return nil, &UnknownTargetError{Target: decl.Label}
		}
		dropEdges(rdeps, old)
		n := NewNode(decl.Label, decl.Deps, decl.Metadata)
		nodes[decl.Label] = n
		insertEdges(rdeps, n)
	}

	// Drop empty reverse-index entries. Entries surviving for removed
	// targets mean a dangling edge; the integrity check below rejects those.
	for l, dependents := range rdeps {
		if len(dependents) == 0 {
			delete(rdeps, l)
		}
	}

	next := &Snapshot{version: prev.version + 1, nodes: nodes, rdeps: rdeps}

	// Full-snapshot referential integrity check.
	for _, l := range next.Labels() {
		n := nodes[l]
		for _, d := range n.deps {
			if _, ok := nodes[d]; !ok {
				return nil, &DanglingEdgeError{From: l, Missing: d}
			}
		}
	}

	// Full-snapshot acyclicity check.
	if err := detectCycle(next); err != nil {
		return nil, err
	}

	return next, nil
}

// dropEdges removes a node's contributions from the reverse index.
// Slices are copied before shrinking so snapshots sharing them stay intact.
func dropEdges(rdeps map[label.Label][]label.Label, n *Node) {
	for _, d := range n.deps {
		dependents := rdeps[d]
		for i, dep := range dependents {
			if dep == n.label {
				next := make([]label.Label, 0, len(dependents)-1)
				next = append(next, dependents[:i]...)
				next = append(next, dependents[i+1:]...)
				rdeps[d] = next
				break
			}
		}
	}
}

// insertEdges records a node's contributions in the reverse index, keeping
// each dependents slice in canonical label order. Slices are copied before
// growing so snapshots sharing them stay intact.
func insertEdges(rdeps map[label.Label][]label.Label, n *Node) {
	for _, d := range n.deps {
		dependents := rdeps[d]
		at := len(dependents)
		for i, dep := range dependents {
			if n.label.Less(dep) {
				at = i
				break
			}
		}
		next := make([]label.Label, 0, len(dependents)+1)
		next = append(next, dependents[:at]...)
		next = append(next, n.label)
		next = append(next, dependents[at:]...)
		rdeps[d] = next
	}
}
