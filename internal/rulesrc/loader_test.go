package rulesrc

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/buildgrid/internal/graph"
	"github.com/vk/buildgrid/internal/label"
	"github.com/zclconf/go-cty/cty"
)

func writeRuleFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoad(t *testing.T) {
	t.Run("targets, deps and metadata across packages", func(t *testing.T) {
		root := t.TempDir()
		writeRuleFile(t, root, "lib/core.build.hcl", `
target "base" {
  cpu = 2
}

target "util" {
  deps   = [":base"]
  srcs   = ["util.c", "util.h"]
  opt    = true
}
`)
		writeRuleFile(t, root, "app.build.hcl", `
target "main" {
  deps   = ["//lib:util", "root//lib:base"]
  memory = 512
}
`)

		delta, err := NewLoader("root", root).Load(context.Background())
		require.NoError(t, err)
		require.Len(t, delta.Added, 3)
		assert.Empty(t, delta.Removed)
		assert.Empty(t, delta.Modified)

		byLabel := make(map[string]graph.Decl)
		for _, d := range delta.Added {
			byLabel[d.Label.String()] = d
		}

		base := byLabel["root//lib:base"]
		require.NotZero(t, base.Label)
		assert.Empty(t, base.Deps)
		assert.True(t, cty.NumberIntVal(2).RawEquals(base.Metadata["cpu"]))

		util := byLabel["root//lib:util"]
		require.Equal(t, []label.Label{label.MustParse("root//lib:base")}, util.Deps)
		assert.True(t, cty.True.RawEquals(util.Metadata["opt"]))
		srcs := util.Metadata["srcs"]
		require.True(t, srcs.Type().IsTupleType())
		assert.Equal(t, 2, srcs.LengthInt())

		main := byLabel["root//:main"]
		require.Equal(t, []label.Label{
			label.MustParse("root//lib:util"),
			label.MustParse("root//lib:base"),
		}, main.Deps, "deps keep declaration order across reference styles")

		_, err = graph.Apply(graph.Empty(), delta)
		assert.NoError(t, err, "loaded delta applies cleanly")
	})

	t.Run("duplicate target identity is rejected", func(t *testing.T) {
		root := t.TempDir()
		writeRuleFile(t, root, "a.build.hcl", `target "x" {}`)
		writeRuleFile(t, root, "b.build.hcl", `target "x" {}`)

		_, err := NewLoader("root", root).Load(context.Background())
		var dup *DuplicateTargetError
		require.ErrorAs(t, err, &dup)
		assert.Equal(t, label.MustParse("root//:x"), dup.Target)
		assert.NotEqual(t, dup.File, dup.FirstFile)
	})

	t.Run("same short name in different packages is fine", func(t *testing.T) {
		root := t.TempDir()
		writeRuleFile(t, root, "a/rules.build.hcl", `target "x" {}`)
		writeRuleFile(t, root, "b/rules.build.hcl", `target "x" {}`)

		delta, err := NewLoader("root", root).Load(context.Background())
		require.NoError(t, err)
		assert.Len(t, delta.Added, 2)
	})

	t.Run("malformed HCL reports the file", func(t *testing.T) {
		root := t.TempDir()
		writeRuleFile(t, root, "broken.build.hcl", `target "x" {`)

		_, err := NewLoader("root", root).Load(context.Background())
		var parseErr *ParseError
		require.ErrorAs(t, err, &parseErr)
		assert.Contains(t, parseErr.File, "broken.build.hcl")
	})

	t.Run("non-list deps attribute is rejected", func(t *testing.T) {
		root := t.TempDir()
		writeRuleFile(t, root, "bad.build.hcl", `
target "x" {
  deps = "not-a-list"
}
`)
		_, err := NewLoader("root", root).Load(context.Background())
		var parseErr *ParseError
		require.ErrorAs(t, err, &parseErr)
		assert.ErrorContains(t, err, "deps must be a list")
	})

	t.Run("only rule files are picked up", func(t *testing.T) {
		root := t.TempDir()
		writeRuleFile(t, root, "rules.build.hcl", `target "x" {}`)
		writeRuleFile(t, root, "README.md", "not rules")
		writeRuleFile(t, root, "other.hcl", `target "y" {}`)

		delta, err := NewLoader("root", root).Load(context.Background())
		require.NoError(t, err)
		assert.Len(t, delta.Added, 1)
	})
}

func TestDiff(t *testing.T) {
	root := t.TempDir()
	writeRuleFile(t, root, "rules.build.hcl", `
target "a" {}

target "b" {
  deps = [":a"]
}
`)
	loader := NewLoader("root", root)

	initial, err := loader.Load(context.Background())
	require.NoError(t, err)
	snap, err := graph.Apply(graph.Empty(), initial)
	require.NoError(t, err)

	t.Run("unchanged tree yields an empty delta", func(t *testing.T) {
		delta, err := loader.Diff(context.Background(), snap)
		require.NoError(t, err)
		assert.True(t, delta.IsEmpty())
	})

	t.Run("edits surface as add, modify and remove", func(t *testing.T) {
		writeRuleFile(t, root, "rules.build.hcl", `
target "a" {
  cpu = 4
}

target "c" {
  deps = [":a"]
}
`)
		delta, err := loader.Diff(context.Background(), snap)
		require.NoError(t, err)

		require.Len(t, delta.Added, 1)
		assert.Equal(t, label.MustParse("root//:c"), delta.Added[0].Label)
		require.Len(t, delta.Modified, 1)
		assert.Equal(t, label.MustParse("root//:a"), delta.Modified[0].Label)
		require.Len(t, delta.Removed, 1)
		assert.Equal(t, label.MustParse("root//:b"), delta.Removed[0])

		next, err := graph.Apply(snap, delta)
		require.NoError(t, err)
		assert.Equal(t, snap.Version()+1, next.Version())
		assert.True(t, next.Contains(label.MustParse("root//:c")))
		assert.False(t, next.Contains(label.MustParse("root//:b")))
	})
}
