package label

import (
	"fmt"
	"sort"
	"strings"
)

// Label is the structured identity of a build target. The zero value is not
// a valid label; use New or Parse. All fields are unexported so a Label can
// never be mutated after construction, and the struct is comparable, so
// labels work directly as map keys.
type Label struct {
	cell      string
	pkg       string
	name      string
	flavors   string // canonical comma-joined form, sorted and deduplicated
	canonical string
}

// New constructs a Label from its parts. Flavors are sorted and deduplicated
// under the fixed flavor ordering, so two calls with reordered flavor sets
// yield the same value.
func New(cell, pkg, name string, flavors ...string) (Label, error) {
	if name == "" {
		return Label{}, fmt.Errorf("label name cannot be empty")
	}
	if err := validateSegment("cell", cell, cell != ""); err != nil {
		return Label{}, err
	}
	if err := validatePkg(pkg); err != nil {
		return Label{}, err
	}
	if err := validateSegment("name", name, true); err != nil {
		return Label{}, err
	}

	canonicalFlavors, err := normalizeFlavors(flavors)
	if err != nil {
		return Label{}, err
	}

	l := Label{cell: cell, pkg: pkg, name: name, flavors: canonicalFlavors}
	l.canonical = render(l)
	return l, nil
}

// MustNew is New but panics on invalid input. Intended for fixtures and
// compile-time-known labels.
func MustNew(cell, pkg, name string, flavors ...string) Label {
	l, err := New(cell, pkg, name, flavors...)
	if err != nil {
		panic(err)
	}
	return l
}

// Cell returns the cell component.
func (l Label) Cell() string { return l.cell }

// Pkg returns the package path component.
func (l Label) Pkg() string { return l.pkg }

// Name returns the short name component.
func (l Label) Name() string { return l.name }

// Flavors returns the flavors in their canonical (sorted) order.
func (l Label) Flavors() []string {
	if l.flavors == "" {
		return nil
	}
	return strings.Split(l.flavors, ",")
}

// IsFlavored reports whether the label carries any flavors.
func (l Label) IsFlavored() bool { return l.flavors != "" }

// IsZero reports whether the label is the invalid zero value.
func (l Label) IsZero() bool { return l.canonical == "" }

// String returns the cached fully qualified name,
// e.g. `cell//pkg/path:name#flavor1,flavor2`.
func (l Label) String() string { return l.canonical }

// Key returns the canonical string for use as a map key. It is the same
// value as String; the separate name marks intent at call sites.
func (l Label) Key() string { return l.canonical }

// UnflavoredString returns the fully qualified name without flavors.
func (l Label) UnflavoredString() string {
	return fmt.Sprintf("%s//%s:%s", l.cell, l.pkg, l.name)
}

// WithFlavors returns a copy of the label with the given flavor set,
// replacing any existing flavors.
func (l Label) WithFlavors(flavors ...string) (Label, error) {
	return New(l.cell, l.pkg, l.name, flavors...)
}

// Equal reports whether two labels identify the same target.
func (l Label) Equal(other Label) bool { return l.canonical == other.canonical }

// Compare imposes the total order over labels: cell, then package, then
// name, then canonical flavor list. Returns -1, 0 or +1.
func (l Label) Compare(other Label) int {
	if c := strings.Compare(l.cell, other.cell); c != 0 {
		return c
	}
	if c := strings.Compare(l.pkg, other.pkg); c != 0 {
		return c
	}
	if c := strings.Compare(l.name, other.name); c != 0 {
		return c
	}
	return strings.Compare(l.flavors, other.flavors)
}

// Less is a convenience wrapper over Compare for sort callbacks.
func (l Label) Less(other Label) bool { return l.Compare(other) < 0 }

func render(l Label) string {
	var sb strings.Builder
	sb.WriteString(l.cell)
	sb.WriteString("//")
	sb.WriteString(l.pkg)
	sb.WriteRune(':')
	sb.WriteString(l.name)
	if l.flavors != "" {
		sb.WriteRune('#')
		sb.WriteString(l.flavors)
	}
	return sb.String()
}

func normalizeFlavors(flavors []string) (string, error) {
	if len(flavors) == 0 {
		return "", nil
	}
	seen := make(map[string]struct{}, len(flavors))
	unique := make([]string, 0, len(flavors))
	for _, f := range flavors {
		if err := validateSegment("flavor", f, true); err != nil {
			return "", err
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		unique = append(unique, f)
	}
	sort.Strings(unique)
	return strings.Join(unique, ","), nil
}

// Sort orders a slice of labels in place under the canonical total order.
func Sort(labels []Label) {
	sort.Slice(labels, func(i, j int) bool { return labels[i].Less(labels[j]) })
}
