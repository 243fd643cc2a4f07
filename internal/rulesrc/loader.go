package rulesrc

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/buildgrid/internal/ctxlog"
	"github.com/vk/buildgrid/internal/graph"
	"github.com/vk/buildgrid/internal/label"
	"github.com/zclconf/go-cty/cty"
	"golang.org/x/sync/errgroup"
)

// Extension is the suffix identifying rule files inside a rule tree.
const Extension = ".build.hcl"

var targetSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "target", LabelNames: []string{"name"}},
	},
}

// Loader reads one rule tree rooted at a directory, declaring targets into
// a single cell.
type Loader struct {
	cell string
	root string
}

// NewLoader creates a loader for the rule tree at root, declaring targets
// into the given cell.
func NewLoader(cell, root string) *Loader {
	return &Loader{cell: cell, root: root}
}

// Load parses the whole rule tree and returns it as one additive delta,
// suitable for applying onto the empty snapshot.
func (l *Loader) Load(ctx context.Context) (graph.Delta, error) {
	decls, err := l.decls(ctx)
	if err != nil {
		return graph.Delta{}, err
	}
	return graph.Delta{Added: decls}, nil
}

// Diff parses the rule tree and returns the delta that carries a prior
// snapshot to the tree's current state: new targets as additions, vanished
// targets as removals, and targets whose deps or metadata changed as
// modifications. An empty delta means the tree and the snapshot agree.
func (l *Loader) Diff(ctx context.Context, prev *graph.Snapshot) (graph.Delta, error) {
	decls, err := l.decls(ctx)
	if err != nil {
		return graph.Delta{}, err
	}

	current := make(map[label.Label]graph.Decl, len(decls))
	for _, d := range decls {
		current[d.Label] = d
	}

	var delta graph.Delta
	for _, d := range decls {
		node, err := prev.Node(d.Label)
		if err != nil {
			delta.Added = append(delta.Added, d)
			continue
		}
		if declChanged(d, node) {
			delta.Modified = append(delta.Modified, d)
		}
	}
	for _, known := range prev.Labels() {
		if _, ok := current[known]; !ok {
			delta.Removed = append(delta.Removed, known)
		}
	}
	return delta, nil
}

func declChanged(d graph.Decl, node *graph.Node) bool {
	old := node.Deps()
	if len(old) != len(d.Deps) {
		return true
	}
	for i, dep := range d.Deps {
		if dep != old[i] {
			return true
		}
	}
	oldMeta := node.Metadata()
	if len(oldMeta) != len(d.Metadata) {
		return true
	}
	for k, v := range d.Metadata {
		prev, ok := oldMeta[k]
		if !ok || !v.RawEquals(prev) {
			return true
		}
	}
	return false
}

// decls parses every rule file in the tree concurrently and merges the
// results in file order, so the output is deterministic for a given tree.
func (l *Loader) decls(ctx context.Context) ([]graph.Decl, error) {
	logger := ctxlog.FromContext(ctx)

	files, err := findRuleFiles(l.root)
	if err != nil {
		return nil, fmt.Errorf("scanning rule tree %s: %w", l.root, err)
	}
	logger.Debug("Discovered rule files.", "root", l.root, "count", len(files))

	perFile := make([][]graph.Decl, len(files))
	g, _ := errgroup.WithContext(ctx)
	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			ds, err := l.parseFile(file)
			if err != nil {
				return err
			}
			perFile[i] = ds
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var decls []graph.Decl
	firstFile := make(map[label.Label]string)
	for i, ds := range perFile {
		for _, d := range ds {
			if prior, ok := firstFile[d.Label]; ok {
				return nil, &DuplicateTargetError{Target: d.Label, File: files[i], FirstFile: prior}
			}
			firstFile[d.Label] = files[i]
			decls = append(decls, d)
		}
	}
	logger.Debug("Rule tree parsed.", "targets", len(decls))
	return decls, nil
}

// parseFile decodes all target blocks of one rule file.
func (l *Loader) parseFile(path string) ([]graph.Decl, error) {
	hclFile, diags := hclparse.NewParser().ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, &ParseError{File: path, Err: diags}
	}

	content, diags := hclFile.Body.Content(targetSchema)
	if diags.HasErrors() {
		return nil, &ParseError{File: path, Err: diags}
	}

	pkg, err := l.packagePath(path)
	if err != nil {
		return nil, &ParseError{File: path, Err: err}
	}

	decls := make([]graph.Decl, 0, len(content.Blocks))
	for _, block := range content.Blocks {
		decl, err := l.decodeTarget(pkg, block)
		if err != nil {
			return nil, &ParseError{File: path, Err: err}
		}
		decls = append(decls, decl)
	}
	return decls, nil
}

func (l *Loader) decodeTarget(pkg string, block *hcl.Block) (graph.Decl, error) {
	name := block.Labels[0]
	target, err := label.New(l.cell, pkg, name)
	if err != nil {
		return graph.Decl{}, err
	}

	attrs, diags := block.Body.JustAttributes()
	if diags.HasErrors() {
		return graph.Decl{}, fmt.Errorf("target %q: %w", name, diags)
	}

	decl := graph.Decl{Label: target, Metadata: graph.Metadata{}}
	for attrName, attr := range attrs {
		value, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return graph.Decl{}, fmt.Errorf("target %q attribute %q: %w", name, attrName, diags)
		}
		if attrName == "deps" {
			deps, err := l.decodeDeps(pkg, value)
			if err != nil {
				return graph.Decl{}, fmt.Errorf("target %q: %w", name, err)
			}
			decl.Deps = deps
			continue
		}
		decl.Metadata[attrName] = value
	}
	return decl, nil
}

// decodeDeps resolves a deps attribute value into labels. Entries may be
// fully qualified (`cell//pkg:name`), cell-relative (`//pkg:name`), or
// package-relative (`:name`).
func (l *Loader) decodeDeps(pkg string, value cty.Value) ([]label.Label, error) {
	ty := value.Type()
	if !ty.IsTupleType() && !ty.IsListType() && !ty.IsSetType() {
		return nil, fmt.Errorf("deps must be a list of label strings, got %s", ty.FriendlyName())
	}

	var deps []label.Label
	// Tuple order is declaration order, which the graph preserves.
	for it := value.ElementIterator(); it.Next(); {
		_, elem := it.Element()
		if elem.Type() != cty.String {
			return nil, fmt.Errorf("deps entries must be strings, got %s", elem.Type().FriendlyName())
		}
		dep, err := l.resolveDep(pkg, elem.AsString())
		if err != nil {
			return nil, err
		}
		deps = append(deps, dep)
	}
	return deps, nil
}

func (l *Loader) resolveDep(pkg, raw string) (label.Label, error) {
	switch {
	case strings.HasPrefix(raw, ":"):
		return label.New(l.cell, pkg, raw[1:])
	case strings.HasPrefix(raw, "//"):
		return label.Parse(l.cell + raw)
	default:
		return label.Parse(raw)
	}
}

// packagePath maps a rule file to its package: the file's directory relative
// to the tree root, with the root itself being the empty package.
func (l *Loader) packagePath(path string) (string, error) {
	rel, err := filepath.Rel(l.root, filepath.Dir(path))
	if err != nil {
		return "", err
	}
	if rel == "." {
		return "", nil
	}
	return filepath.ToSlash(rel), nil
}

// findRuleFiles walks the tree and returns every rule file in sorted order.
func findRuleFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), Extension) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
