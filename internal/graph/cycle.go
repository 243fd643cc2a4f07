package graph

import (
	"github.com/vk/buildgrid/internal/label"
)

// detectCycle runs a depth-first search with the classic three-color
// marking over declared-dependency edges:
//
//	done:       fully visited, known cycle-free
//	inProgress: on the current recursion stack
//	unvisited:  everything else
//
// Hitting an in-progress node is a back-edge; the full offending path is
// reconstructed from the stack so diagnostics show the whole walk. Nodes are
// visited in canonical label order so the reported cycle is deterministic.
func detectCycle(s *Snapshot) error {
	done := make(map[label.Label]bool, len(s.nodes))
	inProgress := make(map[label.Label]bool)
	var stack []label.Label

	var visit func(l label.Label) *CycleError
	visit = func(l label.Label) *CycleError {
		if done[l] {
			return nil
		}
		if inProgress[l] {
			// Back-edge: slice the stack from the first occurrence of l
			// and close the loop.
			start := 0
			for i, on := range stack {
				if on == l {
					start = i
					break
				}
			}
			path := make([]label.Label, 0, len(stack)-start+1)
			path = append(path, stack[start:]...)
			path = append(path, l)
			return &CycleError{Path: path}
		}

		inProgress[l] = true
		stack = append(stack, l)

		for _, d := range s.nodes[l].deps {
			if err := visit(d); err != nil {
				return err
			}
		}

		stack = stack[:len(stack)-1]
		delete(inProgress, l)
		done[l] = true
		return nil
	}

	for _, l := range s.Labels() {
		if done[l] {
			continue
		}
		if err := visit(l); err != nil {
			return err
		}
	}
	return nil
}
