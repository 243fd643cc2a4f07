package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/buildgrid/internal/graph"
	"github.com/vk/buildgrid/internal/label"
	"github.com/zclconf/go-cty/cty"
)

func lbl(name string) label.Label {
	return label.MustNew("root", "pkg", name)
}

func decl(name string, md graph.Metadata, deps ...string) graph.Decl {
	ds := make([]label.Label, len(deps))
	for i, d := range deps {
		ds[i] = lbl(d)
	}
	return graph.Decl{Label: lbl(name), Deps: ds, Metadata: md}
}

func snapshot(t *testing.T, decls ...graph.Decl) *graph.Snapshot {
	t.Helper()
	s, err := graph.Apply(graph.Empty(), graph.Delta{Added: decls})
	require.NoError(t, err)
	return s
}

func TestDeterminism(t *testing.T) {
	s := snapshot(t,
		decl("leaf", graph.Metadata{"srcs": cty.StringVal("leaf.c")}),
		decl("mid", graph.Metadata{"srcs": cty.StringVal("mid.c")}, "leaf"),
		decl("top", nil, "mid"),
	)

	t.Run("same snapshot, same value", func(t *testing.T) {
		e := New(s)
		first, err := e.Fingerprint(lbl("top"))
		require.NoError(t, err)
		second, err := e.Fingerprint(lbl("top"))
		require.NoError(t, err)
		assert.Equal(t, first, second)

		// A fresh engine over the same snapshot agrees.
		other, err := New(s).Fingerprint(lbl("top"))
		require.NoError(t, err)
		assert.Equal(t, first, other)
	})

	t.Run("unknown target", func(t *testing.T) {
		var unknown *graph.UnknownTargetError
		_, err := New(s).Fingerprint(lbl("nope"))
		assert.ErrorAs(t, err, &unknown)
	})
}

func TestChangePropagation(t *testing.T) {
	base := snapshot(t,
		decl("leaf", graph.Metadata{"srcs": cty.StringVal("leaf.c")}),
		decl("mid", nil, "leaf"),
		decl("top", nil, "mid"),
	)
	before, err := New(base).Fingerprint(lbl("top"))
	require.NoError(t, err)

	// Change only the leaf's own inputs.
	edited, err := graph.Apply(base, graph.Delta{Modified: []graph.Decl{
		decl("leaf", graph.Metadata{"srcs": cty.StringVal("leaf_v2.c")}),
	}})
	require.NoError(t, err)

	after, err := New(edited).Fingerprint(lbl("top"))
	require.NoError(t, err)
	assert.NotEqual(t, before, after, "transitive input change must reach the root fingerprint")

	// An untouched sibling subgraph keeps its value.
	sibling := snapshot(t,
		decl("leaf", graph.Metadata{"srcs": cty.StringVal("leaf.c")}),
		decl("mid", nil, "leaf"),
		decl("top", nil, "mid"),
	)
	same, err := New(sibling).Fingerprint(lbl("mid"))
	require.NoError(t, err)
	orig, err := New(base).Fingerprint(lbl("mid"))
	require.NoError(t, err)
	assert.Equal(t, orig, same)
}

func TestDependencyOrderIsSignificant(t *testing.T) {
	ab := snapshot(t,
		decl("a", nil),
		decl("b", nil),
		decl("top", nil, "a", "b"),
	)
	ba := snapshot(t,
		decl("a", nil),
		decl("b", nil),
		decl("top", nil, "b", "a"),
	)

	fpAB, err := New(ab).Fingerprint(lbl("top"))
	require.NoError(t, err)
	fpBA, err := New(ba).Fingerprint(lbl("top"))
	require.NoError(t, err)
	assert.NotEqual(t, fpAB, fpBA, "reordered dependency lists are distinct declarations")
}

func TestMetadataCanonicalization(t *testing.T) {
	// Map iteration order must not leak into the fingerprint.
	a := snapshot(t, decl("x", graph.Metadata{
		"srcs":  cty.StringVal("x.c"),
		"copts": cty.ListVal([]cty.Value{cty.StringVal("-O2")}),
	}))
	b := snapshot(t, decl("x", graph.Metadata{
		"copts": cty.ListVal([]cty.Value{cty.StringVal("-O2")}),
		"srcs":  cty.StringVal("x.c"),
	}))

	fpA, err := New(a).Fingerprint(lbl("x"))
	require.NoError(t, err)
	fpB, err := New(b).Fingerprint(lbl("x"))
	require.NoError(t, err)
	assert.Equal(t, fpA, fpB)

	// But a different value for any attribute does change it.
	c := snapshot(t, decl("x", graph.Metadata{
		"srcs":  cty.StringVal("x.c"),
		"copts": cty.ListVal([]cty.Value{cty.StringVal("-O3")}),
	}))
	fpC, err := New(c).Fingerprint(lbl("x"))
	require.NoError(t, err)
	assert.NotEqual(t, fpA, fpC)
}

func TestSharedSubgraphMemoization(t *testing.T) {
	// Diamond: both mids share the leaf; querying both roots reuses the
	// memoized leaf value and the results stay consistent.
	s := snapshot(t,
		decl("leaf", nil),
		decl("left", nil, "leaf"),
		decl("right", nil, "leaf"),
	)
	e := New(s)

	left, err := e.Fingerprint(lbl("left"))
	require.NoError(t, err)
	right, err := e.Fingerprint(lbl("right"))
	require.NoError(t, err)
	assert.NotEqual(t, left, right)

	leaf1, err := e.Fingerprint(lbl("leaf"))
	require.NoError(t, err)
	leaf2, err := New(s).Fingerprint(lbl("leaf"))
	require.NoError(t, err)
	assert.Equal(t, leaf1, leaf2)
}
