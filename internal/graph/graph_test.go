package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/buildgrid/internal/label"
)

func lbl(name string) label.Label {
	return label.MustNew("root", "pkg", name)
}

func decl(name string, deps ...string) Decl {
	ds := make([]label.Label, len(deps))
	for i, d := range deps {
		ds[i] = lbl(d)
	}
	return Decl{Label: lbl(name), Deps: ds}
}

// sampleSnapshot builds the reference graph:
// A -> B,C,D,E,H,I; D -> F,H,I; E -> G,H,I; F,G -> H,I; B,C,H,I leaves.
func sampleSnapshot(t *testing.T) *Snapshot {
	t.Helper()
	s, err := Apply(Empty(), Delta{Added: []Decl{
		decl("H"),
		decl("I"),
		decl("B"),
		decl("C"),
		decl("F", "H", "I"),
		decl("G", "H", "I"),
		decl("D", "F", "H", "I"),
		decl("E", "G", "H", "I"),
		decl("A", "B", "C", "D", "E", "H", "I"),
	}})
	require.NoError(t, err)
	return s
}

func names(labels []label.Label) []string {
	out := make([]string, len(labels))
	for i, l := range labels {
		out[i] = l.Name()
	}
	return out
}

func TestApply(t *testing.T) {
	t.Run("empty snapshot is version zero", func(t *testing.T) {
		s := Empty()
		assert.Equal(t, uint64(0), s.Version())
		assert.Zero(t, s.Len())
	})

	t.Run("versions increase per delta", func(t *testing.T) {
		s1, err := Apply(Empty(), Delta{Added: []Decl{decl("X")}})
		require.NoError(t, err)
		assert.Equal(t, uint64(1), s1.Version())

		s2, err := Apply(s1, Delta{Added: []Decl{decl("Y", "X")}})
		require.NoError(t, err)
		assert.Equal(t, uint64(2), s2.Version())
		assert.Equal(t, 1, s1.Len(), "prior snapshot unchanged")
		assert.Equal(t, 2, s2.Len())
	})

	t.Run("dangling edge rejects the whole delta", func(t *testing.T) {
		_, err := Apply(Empty(), Delta{Added: []Decl{decl("X", "missing")}})
		var dangling *DanglingEdgeError
		require.ErrorAs(t, err, &dangling)
		assert.Equal(t, lbl("X"), dangling.From)
		assert.Equal(t, lbl("missing"), dangling.Missing)
	})

	t.Run("removing a still-referenced target is rejected", func(t *testing.T) {
		s := sampleSnapshot(t)
		_, err := Apply(s, Delta{Removed: []label.Label{lbl("H")}})
		var dangling *DanglingEdgeError
		require.ErrorAs(t, err, &dangling)
		assert.Equal(t, lbl("H"), dangling.Missing)
	})

	t.Run("cycle rejects the whole delta with the offending path", func(t *testing.T) {
		s, err := Apply(Empty(), Delta{Added: []Decl{
			decl("X"),
			decl("Y", "X"),
		}})
		require.NoError(t, err)

		_, err = Apply(s, Delta{Modified: []Decl{decl("X", "Y")}})
		var cyc *CycleError
		require.ErrorAs(t, err, &cyc)
		require.GreaterOrEqual(t, len(cyc.Path), 3)
		assert.Equal(t, cyc.Path[0], cyc.Path[len(cyc.Path)-1], "path closes the loop")
		assert.ErrorContains(t, err, "dependency cycle")
	})

	t.Run("duplicate addition is rejected", func(t *testing.T) {
		s, err := Apply(Empty(), Delta{Added: []Decl{decl("X")}})
		require.NoError(t, err)
		_, err = Apply(s, Delta{Added: []Decl{decl("X")}})
		var dup *DuplicateTargetError
		assert.ErrorAs(t, err, &dup)
	})

	t.Run("modifying or removing an unknown target is rejected", func(t *testing.T) {
		var unknown *UnknownTargetError
		_, err := Apply(Empty(), Delta{Modified: []Decl{decl("X")}})
		assert.ErrorAs(t, err, &unknown)

		_, err = Apply(Empty(), Delta{Removed: []label.Label{lbl("X")}})
		assert.ErrorAs(t, err, &unknown)
	})

	t.Run("remove and re-add in one delta replaces the target", func(t *testing.T) {
		s := sampleSnapshot(t)
		next, err := Apply(s, Delta{
			Removed: []label.Label{lbl("B")},
			Added:   []Decl{decl("B", "H")},
		})
		require.NoError(t, err)
		deps, err := next.Deps(lbl("B"), false)
		require.NoError(t, err)
		assert.Equal(t, []string{"H"}, names(deps))
	})
}

func TestDeltaAtomicity(t *testing.T) {
	// A rejected delta must leave the prior snapshot observably identical.
	s := sampleSnapshot(t)
	before := s.Labels()
	rdepsBefore, err := s.RDeps(lbl("H"), true)
	require.NoError(t, err)

	_, err = Apply(s, Delta{
		Added:   []Decl{decl("J")},
		Removed: []label.Label{lbl("H")}, // still referenced: rejected
	})
	require.Error(t, err)

	assert.Equal(t, before, s.Labels())
	rdepsAfter, err := s.RDeps(lbl("H"), true)
	require.NoError(t, err)
	assert.Equal(t, rdepsBefore, rdepsAfter)
	assert.False(t, s.Contains(lbl("J")))
}

func TestDeps(t *testing.T) {
	s := sampleSnapshot(t)

	t.Run("direct deps keep declaration order", func(t *testing.T) {
		deps, err := s.Deps(lbl("A"), false)
		require.NoError(t, err)
		assert.Equal(t, []string{"B", "C", "D", "E", "H", "I"}, names(deps))
	})

	t.Run("transitive closure excludes the root", func(t *testing.T) {
		deps, err := s.Deps(lbl("A"), true)
		require.NoError(t, err)
		assert.ElementsMatch(t,
			[]string{"B", "C", "D", "E", "F", "G", "H", "I"}, names(deps))
		assert.NotContains(t, names(deps), "A")
	})

	t.Run("transitive order is topological and deterministic", func(t *testing.T) {
		first, err := s.Deps(lbl("A"), true)
		require.NoError(t, err)
		again, err := s.Deps(lbl("A"), true)
		require.NoError(t, err)
		assert.Equal(t, first, again)

		pos := make(map[string]int, len(first))
		for i, l := range first {
			pos[l.Name()] = i
		}
		// Every dependency appears before its dependents.
		assert.Less(t, pos["F"], pos["D"])
		assert.Less(t, pos["G"], pos["E"])
		assert.Less(t, pos["H"], pos["F"])
		assert.Less(t, pos["I"], pos["G"])
	})

	t.Run("unknown target", func(t *testing.T) {
		var unknown *UnknownTargetError
		_, err := s.Deps(lbl("nope"), true)
		assert.ErrorAs(t, err, &unknown)
	})
}

func TestRDeps(t *testing.T) {
	s := sampleSnapshot(t)

	t.Run("direct reverse deps", func(t *testing.T) {
		rdeps, err := s.RDeps(lbl("F"), false)
		require.NoError(t, err)
		assert.Equal(t, []string{"D"}, names(rdeps))
	})

	t.Run("transitive reverse closure", func(t *testing.T) {
		rdeps, err := s.RDeps(lbl("H"), true)
		require.NoError(t, err)
		assert.ElementsMatch(t,
			[]string{"A", "D", "E", "F", "G"}, names(rdeps))
	})

	t.Run("query duality", func(t *testing.T) {
		// y in deps(x, transitive) iff x in rdeps(y, transitive).
		for _, x := range s.Labels() {
			deps, err := s.Deps(x, true)
			require.NoError(t, err)
			for _, y := range deps {
				rdeps, err := s.RDeps(y, true)
				require.NoError(t, err)
				assert.Contains(t, rdeps, x, "%s in deps(%s) but %s not in rdeps(%s)", y, x, x, y)
			}
		}
		for _, y := range s.Labels() {
			rdeps, err := s.RDeps(y, true)
			require.NoError(t, err)
			for _, x := range rdeps {
				deps, err := s.Deps(x, true)
				require.NoError(t, err)
				assert.Contains(t, deps, y)
			}
		}
	})
}

func TestIncrementalEdits(t *testing.T) {
	s := sampleSnapshot(t)

	// An unrelated package with one target depending on I.
	other := label.MustNew("root", "other", "ext")
	s2, err := Apply(s, Delta{Added: []Decl{{Label: other, Deps: []label.Label{lbl("I")}}}})
	require.NoError(t, err)

	rdeps, err := s2.RDeps(lbl("I"), false)
	require.NoError(t, err)
	assert.Contains(t, rdeps, other)

	t.Run("removing the other package restores rdeps", func(t *testing.T) {
		s3, err := Apply(s2, Delta{Removed: []label.Label{other}})
		require.NoError(t, err)

		rdeps, err := s3.RDeps(lbl("I"), false)
		require.NoError(t, err)
		assert.NotContains(t, rdeps, other)

		// Queries over the original package are unaffected.
		deps, err := s3.Deps(lbl("A"), true)
		require.NoError(t, err)
		assert.ElementsMatch(t,
			[]string{"B", "C", "D", "E", "F", "G", "H", "I"}, names(deps))
	})

	t.Run("restructuring delta", func(t *testing.T) {
		// Remove A, E, H; retire D in favor of Z -> {F, I, Y}; add Y.
		// H is still referenced by F and G, so those must be modified in
		// the same delta or the removal is a dangling-edge violation.
		_, err := Apply(s, Delta{
			Removed: []label.Label{lbl("A"), lbl("E"), lbl("H"), lbl("D")},
			Added:   []Decl{decl("Y"), decl("Z", "F", "I", "Y")},
		})
		var dangling *DanglingEdgeError
		require.ErrorAs(t, err, &dangling, "surviving reference to removed H must reject the delta")
		assert.Equal(t, lbl("H"), dangling.Missing)

		s4, err := Apply(s, Delta{
			Removed:  []label.Label{lbl("A"), lbl("E"), lbl("H"), lbl("D")},
			Added:    []Decl{decl("Y"), decl("Z", "F", "I", "Y")},
			Modified: []Decl{decl("F", "I"), decl("G", "I")},
		})
		require.NoError(t, err)

		deps, err := s4.Deps(lbl("Z"), true)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"F", "I", "Y"}, names(deps))
		assert.NotContains(t, names(deps), "H")
	})
}

func TestReferentialIntegrityInvariant(t *testing.T) {
	// Every declared dep of every node resolves within the same snapshot,
	// across a chain of edits.
	s := sampleSnapshot(t)
	snaps := []*Snapshot{s}

	s2, err := Apply(s, Delta{Modified: []Decl{decl("B", "H", "I")}})
	require.NoError(t, err)
	snaps = append(snaps, s2)

	s3, err := Apply(s2, Delta{Removed: []label.Label{lbl("A")}})
	require.NoError(t, err)
	snaps = append(snaps, s3)

	for _, snap := range snaps {
		for _, n := range snap.Nodes() {
			for _, d := range n.Deps() {
				assert.True(t, snap.Contains(d),
					"snapshot v%d: %s declares missing dep %s", snap.Version(), n.Label(), d)
			}
		}
	}
}
