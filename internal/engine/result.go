package engine

import (
	"fmt"
	"sort"

	"github.com/vk/buildgrid/internal/cache"
	"github.com/vk/buildgrid/internal/fingerprint"
	"github.com/vk/buildgrid/internal/label"
)

// ExecutionError wraps the underlying failure of a specific target with
// enough context for later classification.
type ExecutionError struct {
	Target label.Label
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("building %s: %v", e.Target, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// SkippedError marks a target that was never attempted because an upstream
// dependency failed.
type SkippedError struct {
	Target   label.Label
	Upstream label.Label
}

func (e *SkippedError) Error() string {
	return fmt.Sprintf("%s skipped due to upstream failure of %s", e.Target, e.Upstream)
}

// Result is one target's terminal outcome within a build request.
type Result struct {
	Target      label.Label
	State       State
	Fingerprint fingerprint.Fingerprint
	Artifact    cache.Artifact
	// Err carries the underlying failure verbatim for Failed, SkippedFailed
	// and Cancelled results; nil otherwise.
	Err error
}

// Summary is the structured outcome of one build request: a terminal state
// for every target in the requested closure.
type Summary struct {
	SnapshotVersion uint64
	Results         map[label.Label]Result
	// CacheFailures counts cache backend errors that were degraded to
	// misses during the request. Non-fatal, surfaced for observability.
	CacheFailures int
}

// Failed returns every non-success result in canonical label order.
func (s *Summary) Failed() []Result {
	var out []Result
	for _, r := range s.Results {
		if !r.State.Success() {
			out = append(out, r)
		}
	}
	sortResults(out)
	return out
}

// Sorted returns all results in canonical label order.
func (s *Summary) Sorted() []Result {
	out := make([]Result, 0, len(s.Results))
	for _, r := range s.Results {
		out = append(out, r)
	}
	sortResults(out)
	return out
}

// Counts tallies results per terminal state.
func (s *Summary) Counts() map[State]int {
	out := make(map[State]int)
	for _, r := range s.Results {
		out[r.State]++
	}
	return out
}

// OK reports whether every target in the closure terminated successfully.
func (s *Summary) OK() bool {
	for _, r := range s.Results {
		if !r.State.Success() {
			return false
		}
	}
	return true
}

func sortResults(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		return results[i].Target.Less(results[j].Target)
	})
}
