package graph

import (
	"fmt"
	"strings"

	"github.com/vk/buildgrid/internal/label"
)

// UnknownTargetError reports a query or edit that referenced an identity
// absent from the snapshot.
type UnknownTargetError struct {
	Target label.Label
}

func (e *UnknownTargetError) Error() string {
	return fmt.Sprintf("unknown target: %s", e.Target)
}

// DanglingEdgeError reports a delta that would leave a declared dependency
// pointing at a node not present in the resulting snapshot.
type DanglingEdgeError struct {
	From    label.Label
	Missing label.Label
}

func (e *DanglingEdgeError) Error() string {
	return fmt.Sprintf("dangling edge: %s declares dependency on missing target %s", e.From, e.Missing)
}

// CycleError reports a delta that would make the graph cyclic. Path holds
// the full offending walk, starting and ending at the same target.
type CycleError struct {
	Path []label.Label
}

func (e *CycleError) Error() string {
	parts := make([]string, len(e.Path))
	for i, l := range e.Path {
		parts[i] = l.String()
	}
	return fmt.Sprintf("dependency cycle: %s", strings.Join(parts, " -> "))
}

// DuplicateTargetError reports an addition of an identity that already
// exists in the snapshot. Re-declarations must arrive as modifications.
type DuplicateTargetError struct {
	Target label.Label
}

func (e *DuplicateTargetError) Error() string {
	return fmt.Sprintf("target already exists: %s", e.Target)
}
