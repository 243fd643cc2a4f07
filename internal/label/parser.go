package label

import (
	"fmt"
	"regexp"
	"strings"
)

// segmentRegex validates a single name-like component: cell, short name, or
// flavor. Package paths additionally allow `/` between segments.
var segmentRegex = regexp.MustCompile(`^[a-zA-Z0-9_][a-zA-Z0-9_.+=-]*$`)

func validateSegment(kind, value string, required bool) error {
	if value == "" {
		if required {
			return fmt.Errorf("label %s cannot be empty", kind)
		}
		return nil
	}
	if !segmentRegex.MatchString(value) {
		return fmt.Errorf("invalid label %s: %q", kind, value)
	}
	return nil
}

func validatePkg(pkg string) error {
	if pkg == "" {
		return nil // the root package of a cell
	}
	for _, part := range strings.Split(pkg, "/") {
		if part == "" {
			return fmt.Errorf("label package contains empty path segment: %q", pkg)
		}
		if err := validateSegment("package segment", part, true); err != nil {
			return err
		}
	}
	return nil
}

// Parse creates a Label from its canonical string representation,
// `cell//package/path:name#flavor,flavor`. The cell may be omitted
// (`//pkg:name`), selecting the default cell.
func Parse(raw string) (Label, error) {
	if raw == "" {
		return Label{}, fmt.Errorf("label cannot be empty")
	}

	cellAndRest := strings.SplitN(raw, "//", 2)
	if len(cellAndRest) != 2 {
		return Label{}, fmt.Errorf("invalid label %q: missing '//' separator", raw)
	}
	cell, rest := cellAndRest[0], cellAndRest[1]

	pkgAndName := strings.SplitN(rest, ":", 2)
	if len(pkgAndName) != 2 {
		return Label{}, fmt.Errorf("invalid label %q: missing ':' separator", raw)
	}
	pkg, nameAndFlavors := pkgAndName[0], pkgAndName[1]

	name := nameAndFlavors
	var flavors []string
	if hash := strings.IndexRune(nameAndFlavors, '#'); hash != -1 {
		name = nameAndFlavors[:hash]
		flavorPart := nameAndFlavors[hash+1:]
		if flavorPart == "" {
			return Label{}, fmt.Errorf("invalid label %q: empty flavor list after '#'", raw)
		}
		flavors = strings.Split(flavorPart, ",")
	}

	l, err := New(cell, pkg, name, flavors...)
	if err != nil {
		return Label{}, fmt.Errorf("invalid label %q: %w", raw, err)
	}
	return l, nil
}

// MustParse is Parse but panics on invalid input.
func MustParse(raw string) Label {
	l, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return l
}
