package graph

import (
	"github.com/vk/buildgrid/internal/label"
)

// Snapshot is one immutable, versioned state of the dependency graph.
// All query methods are safe for concurrent use because nothing ever
// mutates a published snapshot.
type Snapshot struct {
	version uint64
	nodes   map[label.Label]*Node
	// rdeps is the reverse adjacency index: for each target, the targets
	// that declare a dependency on it, kept in label order. Maintained
	// incrementally by Apply alongside the forward edges.
	rdeps map[label.Label][]label.Label
}

// Empty returns the initial snapshot: version zero, no nodes.
func Empty() *Snapshot {
	return &Snapshot{
		version: 0,
		nodes:   make(map[label.Label]*Node),
		rdeps:   make(map[label.Label][]label.Label),
	}
}

// Version returns the snapshot's monotonically increasing version number.
func (s *Snapshot) Version() uint64 { return s.version }

// Len returns the number of nodes in the snapshot.
func (s *Snapshot) Len() int { return len(s.nodes) }

// Contains reports whether the identity is present in the snapshot.
func (s *Snapshot) Contains(l label.Label) bool {
	_, ok := s.nodes[l]
	return ok
}

// Node returns the node for the given identity.
func (s *Snapshot) Node(l label.Label) (*Node, error) {
	n, ok := s.nodes[l]
	if !ok {
		return nil, &UnknownTargetError{Target: l}
	}
	return n, nil
}

// Labels returns every identity in the snapshot in canonical label order.
func (s *Snapshot) Labels() []label.Label {
	out := make([]label.Label, 0, len(s.nodes))
	for l := range s.nodes {
		out = append(out, l)
	}
	label.Sort(out)
	return out
}

// Deps returns the queried node's dependencies, excluding the node itself.
// Direct dependencies come back in declaration order. Transitive
// dependencies come back in a stable topological order (every dependency
// precedes the targets that depend on it), derived from a depth-first walk
// following declaration order.
func (s *Snapshot) Deps(l label.Label, transitive bool) ([]label.Label, error) {
	root, ok := s.nodes[l]
	if !ok {
		return nil, &UnknownTargetError{Target: l}
	}
	if !transitive {
		return root.Deps(), nil
	}

	var order []label.Label
	visited := make(map[label.Label]struct{})
	var visit func(n *Node)
	visit = func(n *Node) {
		for _, d := range n.deps {
			if _, done := visited[d]; done {
				continue
			}
			visited[d] = struct{}{}
			// Deps always resolve: the snapshot's integrity invariant
			// guarantees no dangling edges.
			visit(s.nodes[d])
			order = append(order, d)
		}
	}
	visit(root)
	return order, nil
}

// RDeps returns the targets that depend on the queried node, excluding the
// node itself, in canonical label order. With transitive set it returns the
// full reverse closure.
func (s *Snapshot) RDeps(l label.Label, transitive bool) ([]label.Label, error) {
	if _, ok := s.nodes[l]; !ok {
		return nil, &UnknownTargetError{Target: l}
	}
	direct := s.rdeps[l]
	if !transitive {
		out := make([]label.Label, len(direct))
		copy(out, direct)
		return out, nil
	}

	visited := make(map[label.Label]struct{})
	var visit func(of label.Label)
	visit = func(of label.Label) {
		for _, dependent := range s.rdeps[of] {
			if _, done := visited[dependent]; done {
				continue
			}
			visited[dependent] = struct{}{}
			visit(dependent)
		}
	}
	visit(l)

	out := make([]label.Label, 0, len(visited))
	for dependent := range visited {
		out = append(out, dependent)
	}
	label.Sort(out)
	return out, nil
}

// Nodes returns every node in canonical label order. Used for persistence
// and summaries; queries should prefer Node/Deps/RDeps.
func (s *Snapshot) Nodes() []*Node {
	labels := s.Labels()
	out := make([]*Node, len(labels))
	for i, l := range labels {
		out[i] = s.nodes[l]
	}
	return out
}
