package label

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("plain target", func(t *testing.T) {
		l, err := New("root", "lib/core", "parser")
		require.NoError(t, err)
		assert.Equal(t, "root", l.Cell())
		assert.Equal(t, "lib/core", l.Pkg())
		assert.Equal(t, "parser", l.Name())
		assert.Empty(t, l.Flavors())
		assert.False(t, l.IsFlavored())
		assert.Equal(t, "root//lib/core:parser", l.String())
	})

	t.Run("flavors are sorted and deduplicated", func(t *testing.T) {
		l, err := New("root", "lib", "parser", "shared", "debug", "shared")
		require.NoError(t, err)
		assert.Equal(t, []string{"debug", "shared"}, l.Flavors())
		assert.Equal(t, "root//lib:parser#debug,shared", l.String())
	})

	t.Run("reordered flavors yield the same value", func(t *testing.T) {
		a := MustNew("root", "lib", "parser", "a", "b")
		b := MustNew("root", "lib", "parser", "b", "a")
		assert.True(t, a.Equal(b))
		assert.Equal(t, a, b)
	})

	t.Run("empty cell selects the default cell", func(t *testing.T) {
		l, err := New("", "lib", "parser")
		require.NoError(t, err)
		assert.Equal(t, "//lib:parser", l.String())
	})

	t.Run("root package of a cell", func(t *testing.T) {
		l, err := New("root", "", "all")
		require.NoError(t, err)
		assert.Equal(t, "root//:all", l.String())
	})

	t.Run("invalid inputs", func(t *testing.T) {
		_, err := New("root", "lib", "")
		assert.ErrorContains(t, err, "name cannot be empty")

		_, err = New("root", "lib//nested", "x")
		assert.ErrorContains(t, err, "empty path segment")

		_, err = New("ro ot", "lib", "x")
		assert.ErrorContains(t, err, "invalid label cell")

		_, err = New("root", "lib", "x", "bad flavor")
		assert.ErrorContains(t, err, "invalid label flavor")
	})
}

func TestParse(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		for _, raw := range []string{
			"root//lib/core:parser",
			"root//lib:parser#debug,shared",
			"//lib:parser",
			"root//:all",
		} {
			l, err := Parse(raw)
			require.NoError(t, err, raw)
			assert.Equal(t, raw, l.String())
		}
	})

	t.Run("flavors are canonicalized", func(t *testing.T) {
		l, err := Parse("root//lib:parser#shared,debug")
		require.NoError(t, err)
		assert.Equal(t, "root//lib:parser#debug,shared", l.String())
	})

	t.Run("rejects malformed labels", func(t *testing.T) {
		for _, raw := range []string{
			"",
			"root/lib:parser",
			"root//lib",
			"root//lib:parser#",
			"root//lib:",
		} {
			_, err := Parse(raw)
			assert.Error(t, err, "expected %q to be rejected", raw)
		}
	})
}

func TestCompare(t *testing.T) {
	a := MustParse("a//lib:x")
	b := MustParse("b//lib:x")
	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, 1, b.Compare(a))
	assert.Equal(t, 0, a.Compare(a))

	flavored := MustParse("a//lib:x#debug")
	assert.True(t, a.Less(flavored), "unflavored orders before flavored")

	pkgOrder := MustParse("a//zeta:x")
	assert.True(t, a.Less(pkgOrder))
}

func TestDerivedForms(t *testing.T) {
	l := MustParse("root//lib:parser#debug,shared")
	assert.Equal(t, "root//lib:parser", l.UnflavoredString())

	re, err := l.WithFlavors("release")
	require.NoError(t, err)
	assert.Equal(t, "root//lib:parser#release", re.String())

	bare, err := l.WithFlavors()
	require.NoError(t, err)
	assert.Equal(t, "root//lib:parser", bare.String())
}

func TestSort(t *testing.T) {
	labels := []Label{
		MustParse("root//b:x"),
		MustParse("root//a:y"),
		MustParse("root//a:x"),
	}
	Sort(labels)
	assert.Equal(t, "root//a:x", labels[0].String())
	assert.Equal(t, "root//a:y", labels[1].String())
	assert.Equal(t, "root//b:x", labels[2].String())
}

func TestMapKey(t *testing.T) {
	// Labels are comparable values; two independently constructed labels
	// for the same target must collide in a map.
	m := map[Label]int{}
	m[MustParse("root//lib:x#a,b")] = 1
	m[MustNew("root", "lib", "x", "b", "a")] = 2
	assert.Len(t, m, 1)
}
