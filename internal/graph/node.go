package graph

import (
	"github.com/vk/buildgrid/internal/label"
	"github.com/zclconf/go-cty/cty"
)

// Metadata is the opaque rule configuration attached to a node, as decoded
// from the build definition. Values are cty values so arbitrary declaration
// shapes survive untouched; the graph never interprets them.
type Metadata map[string]cty.Value

// Node is a single target in a snapshot: its identity, the dependencies it
// declares (in declaration order), and its rule metadata. Nodes are owned by
// the graph and shared structurally between snapshots, so they must never be
// mutated after construction.
type Node struct {
	label    label.Label
	deps     []label.Label
	metadata Metadata
}

// NewNode constructs an immutable node. The deps slice is copied; duplicate
// declarations are preserved order-first and deduplicated.
func NewNode(l label.Label, deps []label.Label, metadata Metadata) *Node {
	unique := make([]label.Label, 0, len(deps))
	seen := make(map[label.Label]struct{}, len(deps))
	for _, d := range deps {
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		unique = append(unique, d)
	}
	md := make(Metadata, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}
	return &Node{label: l, deps: unique, metadata: md}
}

// Label returns the node's identity.
func (n *Node) Label() label.Label { return n.label }

// Deps returns the declared direct dependencies in declaration order.
// The returned slice is a copy.
func (n *Node) Deps() []label.Label {
	out := make([]label.Label, len(n.deps))
	copy(out, n.deps)
	return out
}

// NumDeps returns the number of declared direct dependencies.
func (n *Node) NumDeps() int { return len(n.deps) }

// Metadata returns the rule metadata. The returned map is a copy; values
// are immutable cty values.
func (n *Node) Metadata() Metadata {
	out := make(Metadata, len(n.metadata))
	for k, v := range n.metadata {
		out[k] = v
	}
	return out
}

// Attr returns a single metadata attribute, or cty.NilVal when absent.
func (n *Node) Attr(name string) cty.Value {
	v, ok := n.metadata[name]
	if !ok {
		return cty.NilVal
	}
	return v
}
